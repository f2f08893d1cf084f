package sema

import (
	"fmt"

	"fortio.org/safecast"
	"github.com/minghu6/bas/pkg/ast"
	"github.com/minghu6/bas/pkg/diag"
	"github.com/minghu6/bas/pkg/mir"
	"github.com/minghu6/bas/pkg/token"
	"github.com/minghu6/bas/pkg/types"
)

var binOps = map[token.Type]types.Op{
	token.Plus:  types.OpAdd,
	token.Minus: types.OpSub,
	token.Star:  types.OpMul,
	token.Slash: types.OpDiv,
	token.Rem:   types.OpRem,
	token.Shl:   types.OpShl,
	token.Shr:   types.OpShr,
	token.And:   types.OpBitAnd,
	token.Or:    types.OpBitOr,
	token.Xor:   types.OpBitXor,
	token.EqEq:  types.OpEq,
	token.Neq:   types.OpNeq,
	token.Lt:    types.OpLt,
	token.Lte:   types.OpLe,
	token.Gt:    types.OpGt,
	token.Gte:   types.OpGe,
}

var compoundOps = map[token.Type]token.Type{
	token.PlusEq:  token.Plus,
	token.MinusEq: token.Minus,
	token.StarEq:  token.Star,
	token.SlashEq: token.Slash,
	token.RemEq:   token.Rem,
}

// analyzeExpr lowers an expression into the current scope. Every operand of
// the returned value-expression is already bound to a symbol.
func (a *Analyzer) analyzeExpr(node *ast.Node) mir.AVar {
	switch node.Type {
	case ast.Number:
		v := node.Data.(ast.NumberNode).Value
		n, err := safecast.Conv[int32](v)
		if err != nil {
			a.errorf(diag.UncastableType, diag.At(node.Tok), "integer literal %d does not fit in %s", v, types.I32)
			return mir.Undefined()
		}
		return mir.AVar{Type: types.I32, Val: mir.IntConst{Value: n}}
	case ast.FloatNumber:
		return mir.AVar{Type: types.F64, Val: mir.FloatConst{Value: node.Data.(ast.FloatNode).Value}}
	case ast.String:
		return mir.AVar{Type: types.Str, Val: mir.StrConst{Value: node.Data.(ast.StringNode).Value}}
	case ast.Bool:
		return mir.AVar{Type: types.Bool, Val: mir.BoolConst{Value: node.Data.(ast.BoolNode).Value}}
	case ast.Ident:
		return a.analyzeIdent(node)
	case ast.Assign:
		return a.lowerAssign(node)
	case ast.BinaryOp:
		d := node.Data.(ast.BinaryOpNode)
		if d.Op == token.AndAnd || d.Op == token.OrOr { return a.lowerLogical(node) }
		return a.lowerBinary(node.Tok, binOps[d.Op], d.Left, d.Right)
	case ast.UnaryOp:
		d := node.Data.(ast.UnaryOpNode)
		switch d.Op {
		case token.Inc, token.Dec:
			return a.lowerIncDec(node, d.Op, d.Expr, true)
		case token.Minus:
			return a.lowerNeg(node, d.Expr)
		}
		return a.lowerPlus(node, d.Expr)
	case ast.PostfixOp:
		d := node.Data.(ast.PostfixOpNode)
		return a.lowerIncDec(node, d.Op, d.Expr, false)
	case ast.FuncCall:
		return a.lowerCall(node)
	case ast.TypeCast:
		return a.lowerCast(node)
	case ast.If:
		return a.lowerIf(node, false)
	case ast.Loop:
		return a.lowerLoop(node)
	case ast.While:
		return a.lowerWhile(node)
	case ast.Block:
		idx := a.lowerBlockScope(node)
		return mir.AVar{Type: a.mod.Scopes[idx].TailType, Val: mir.BlockExpr{Scope: idx}}
	case ast.Return:
		return a.lowerReturn(node)
	case ast.Break:
		return a.lowerBreak(node)
	case ast.Continue:
		return mir.AVar{Type: types.Never, Val: mir.Continue{}}
	case ast.Command:
		return a.lowerCommand(node)
	}
	panic(fmt.Sprintf("sema: expression of unexpected kind %d", node.Type))
}

// exprSym lowers node and binds its value to a temporary.
func (a *Analyzer) exprSym(node *ast.Node) (string, types.AType) {
	v := a.analyzeExpr(node)
	return a.bindTemp(v), v.Type
}

func (a *Analyzer) analyzeIdent(node *ast.Node) mir.AVar {
	name := node.Data.(ast.IdentNode).Name
	b, _, ok := a.findExplicit(name)
	if !ok {
		a.errorf(diag.UnresolvedSymbol, diag.At(node.Tok), "use of undeclared identifier '%s'", name)
		return mir.Undefined()
	}
	if a.deferred(b) {
		a.errorf(diag.UnknownType, diag.At(node.Tok), "type of '%s' is not known yet", name)
		return mir.Undefined()
	}
	return mir.AVar{Type: b.Type, Val: mir.Var{Name: b.Name, Tag: b.Tag}}
}

func (a *Analyzer) lowerBinary(tok token.Token, op types.Op, left, right *ast.Node) mir.AVar {
	x, tx := a.exprSym(left)
	y, ty := a.exprSym(right)

	var ut types.AType
	var err error
	if op.IsBitwise() {
		ut, err = types.UnifyInt(op, tx, ty)
	} else {
		ut, err = types.Unify(op, tx, ty)
	}
	if err == nil && op.IsArith() && ut.IsPointer() {
		err = types.ErrIncompatible
	}
	if err != nil {
		a.errorf(diag.IncompatibleOperandTypes, diag.At(tok), "invalid operands to binary expression ('%s' %s '%s')", tx, op, ty)
		return mir.Undefined()
	}
	if ut.IsPlaceholder() { return mir.Undefined() }

	x = a.castTo(x, tx, ut)
	y = a.castTo(y, ty, ut)
	res := ut
	if op.IsComparison() {
		res = types.Bool
	}
	return mir.AVar{Type: res, Val: mir.BOp{Op: op, X: x, Y: y, OperandType: ut}}
}

// constOf materializes n as a constant of the numeric type ty.
func (a *Analyzer) constOf(ty types.AType, n int32) string {
	if ty.IsFloat() { return a.bindTemp(mir.AVar{Type: ty, Val: mir.FloatConst{Value: float64(n)}}) }
	return a.bindTemp(mir.AVar{Type: ty, Val: mir.IntConst{Value: n}})
}

func (a *Analyzer) lowerNeg(node, expr *ast.Node) mir.AVar {
	sym, ty := a.exprSym(expr)
	if ty.IsPlaceholder() { return mir.Undefined() }
	if !ty.IsInt() && !ty.IsFloat() {
		a.errorf(diag.IncompatibleOperandTypes, diag.At(node.Tok), "cannot negate a value of type %s", ty)
		return mir.Undefined()
	}
	return mir.AVar{Type: ty, Val: mir.BOp{Op: types.OpSub, X: a.constOf(ty, 0), Y: sym, OperandType: ty}}
}

func (a *Analyzer) lowerPlus(node, expr *ast.Node) mir.AVar {
	v := a.analyzeExpr(expr)
	if !v.Type.IsPlaceholder() && !v.Type.IsInt() && !v.Type.IsFloat() {
		a.errorf(diag.IncompatibleOperandTypes, diag.At(node.Tok), "invalid argument type %s to unary expression", v.Type)
		return mir.Undefined()
	}
	return v
}

// lvalue resolves the target of an assignment or increment.
func (a *Analyzer) lvalue(target *ast.Node, span diag.Span) (mir.Binding, int, bool) {
	if target.Type == ast.Ident {
		if b, scope, ok := a.findExplicit(target.Data.(ast.IdentNode).Name); ok { return b, scope, true }
	}
	a.errorf(diag.AssignmentTargetNotLvalue, span, "expression is not assignable")
	return mir.Binding{}, -1, false
}

func (a *Analyzer) lowerAssign(node *ast.Node) mir.AVar {
	d := node.Data.(ast.AssignNode)
	span := diag.At(node.Tok)
	rhs := d.Rhs
	if op, ok := compoundOps[d.Op]; ok {
		rhs = ast.NewBinaryOp(node.Tok, op, d.Lhs, d.Rhs)
	}

	b, scope, ok := a.lvalue(d.Lhs, span)
	if !ok {
		a.exprSym(d.Rhs)
		return mir.Undefined()
	}
	sym, ty := a.exprSym(rhs)
	if ty.IsPlaceholder() { return mir.Undefined() }

	if b.Type.IsPlaceholder() {
		if !a.deferred(b) {
			return mir.Undefined()
		}
		if ty.IsUnit() {
			a.errorf(diag.UnmatchedAssignmentType, diag.At(rhs.Tok), "cannot assign a value of type %s to '%s'", ty, b.Name)
			return mir.Undefined()
		}
		a.fixType(b, scope, ty)
		b.Type = ty
	}
	if err := types.TryCast(ty, b.Type); err != nil {
		a.errorf(diag.UnmatchedAssignmentType, diag.At(rhs.Tok), "cannot assign a value of type %s to '%s' of type %s", ty, b.Name, b.Type)
		return mir.Undefined()
	}
	sym = a.castTo(sym, ty, b.Type)
	return mir.AVar{Type: b.Type, Val: mir.Assign{Name: b.Name, Tag: b.Tag, Value: sym}}
}

func (a *Analyzer) lowerIncDec(node *ast.Node, op token.Type, target *ast.Node, prefix bool) mir.AVar {
	b, _, ok := a.lvalue(target, diag.At(node.Tok))
	if !ok { return mir.Undefined() }
	if a.deferred(b) {
		a.errorf(diag.UnknownType, diag.At(target.Tok), "type of '%s' is not known yet", b.Name)
		return mir.Undefined()
	}
	if b.Type.IsPlaceholder() { return mir.Undefined() }
	if !b.Type.IsInt() && !b.Type.IsFloat() {
		a.errorf(diag.IncompatibleOperandTypes, diag.At(node.Tok), "cannot increment or decrement a value of type %s", b.Type)
		return mir.Undefined()
	}

	bop := types.OpAdd
	if op == token.Dec {
		bop = types.OpSub
	}
	old := a.bindTemp(mir.AVar{Type: b.Type, Val: mir.Var{Name: b.Name, Tag: b.Tag}})
	next := a.bindTemp(mir.AVar{Type: b.Type, Val: mir.BOp{Op: bop, X: old, Y: a.constOf(b.Type, 1), OperandType: b.Type}})
	store := mir.AVar{Type: b.Type, Val: mir.Assign{Name: b.Name, Tag: b.Tag, Value: next}}
	if prefix { return store }
	a.bindTemp(store)
	return mir.AVar{Type: b.Type, Val: mir.Alias{Sym: old}}
}

func (a *Analyzer) lowerCast(node *ast.Node) mir.AVar {
	d := node.Data.(ast.TypeCastNode)
	sym, from := a.exprSym(d.Expr)
	to := a.resolveType(d.Target)
	if from.IsPlaceholder() || to.IsPlaceholder() { return mir.Undefined() }
	if from == to { return mir.AVar{Type: to, Val: mir.Alias{Sym: sym}} }
	if err := types.TryCast(from, to); err != nil {
		a.errorf(diag.UncastableType, diag.At(node.Tok), "cannot cast %s to %s", from, to)
		return mir.Undefined()
	}
	return mir.AVar{Type: to, Val: mir.TypeCast{Src: sym, From: from, To: to}}
}
