package sema

import (
	"github.com/minghu6/bas/pkg/ast"
	"github.com/minghu6/bas/pkg/diag"
	"github.com/minghu6/bas/pkg/mir"
	"github.com/minghu6/bas/pkg/token"
	"github.com/minghu6/bas/pkg/types"
)

// condSym lowers a condition in the current scope and converts it to bool.
// Numeric conditions compare against zero.
func (a *Analyzer) condSym(node *ast.Node) string {
	sym, ty := a.exprSym(node)
	switch {
	case ty == types.Bool, ty.IsPlaceholder():
		return sym
	case ty.IsInt(), ty.IsFloat():
		zero := a.constOf(ty, 0)
		return a.bindTemp(mir.AVar{Type: types.Bool, Val: mir.BOp{Op: types.OpNeq, X: sym, Y: zero, OperandType: ty}})
	}
	a.errorf(diag.UncastableType, diag.At(node.Tok), "condition of type %s cannot be used as a boolean", ty)
	return sym
}

// exprScope lowers a single expression as the tail of a fresh child scope.
func (a *Analyzer) exprScope(lower func() mir.AVar) int {
	idx := a.newScope()
	a.within(idx, func() {
		v := lower()
		s := a.cur()
		s.Tail, s.TailType = a.bindTemp(v), v.Type
	})
	return idx
}

// lowerIf lowers an if chain. Conditions are evaluated in the enclosing
// scope; each body gets its own. When discard is set the value of the if is
// unused, so it is Void even though its arms must still agree.
func (a *Analyzer) lowerIf(node *ast.Node, discard bool) mir.AVar {
	d := node.Data.(ast.IfNode)
	blk := mir.IfBlock{Else: -1}
	bodies := make([]*ast.Node, 0, len(d.Arms)+1)
	for _, arm := range d.Arms {
		cond := a.condSym(arm.Cond)
		blk.Arms = append(blk.Arms, mir.IfArm{Cond: cond, Scope: a.lowerBlockScope(arm.Body)})
		bodies = append(bodies, arm.Body)
	}
	if d.Else != nil {
		blk.Else = a.lowerBlockScope(d.Else)
		bodies = append(bodies, d.Else)
	}

	if d.Else == nil { return mir.AVar{Type: types.Void, Val: blk} }

	scopes := make([]int, 0, len(bodies))
	for _, arm := range blk.Arms {
		scopes = append(scopes, arm.Scope)
	}
	scopes = append(scopes, blk.Else)
	ty := a.armsType(scopes, bodies)
	if discard && !ty.IsNever() {
		ty = types.Void
	}
	return mir.AVar{Type: ty, Val: blk}
}

// armsType is the type of the first arm that produces a value. Diverging
// arms agree with anything; every other disagreeing arm is diagnosed.
func (a *Analyzer) armsType(scopes []int, bodies []*ast.Node) types.AType {
	ty := types.Never
	for _, idx := range scopes {
		if t := a.mod.Scopes[idx].TailType; !t.IsNever() {
			ty = t
			break
		}
	}
	if ty.IsPlaceholder() { return ty }
	for i, idx := range scopes {
		t := a.mod.Scopes[idx].TailType
		if t.IsNever() || t.IsPlaceholder() || t == ty {
			continue
		}
		span := diag.At(bodies[i].Tok)
		if tail := bodies[i].Data.(ast.BlockNode).Tail; tail != nil {
			span = diag.At(tail.Tok)
		}
		a.errorf(diag.IncompatibleIfArmTypes, span, "if arm has type %s, but the first arm has type %s", t, ty)
	}
	return ty
}

// lowerLogical desugars a && b into if a { b } else { false } and a || b into
// if a { true } else { b }.
func (a *Analyzer) lowerLogical(node *ast.Node) mir.AVar {
	d := node.Data.(ast.BinaryOpNode)
	cond := a.condSym(d.Left)
	rhs := func() mir.AVar { return mir.AVar{Type: types.Bool, Val: mir.Alias{Sym: a.condSym(d.Right)}} }
	constant := func(v bool) func() mir.AVar {
		return func() mir.AVar { return mir.AVar{Type: types.Bool, Val: mir.BoolConst{Value: v}} }
	}

	var then, els int
	if d.Op == token.AndAnd {
		then, els = a.exprScope(rhs), a.exprScope(constant(false))
	} else {
		then, els = a.exprScope(constant(true)), a.exprScope(rhs)
	}
	return mir.AVar{Type: types.Bool, Val: mir.IfBlock{Arms: []mir.IfArm{{Cond: cond, Scope: then}}, Else: els}}
}

// beginLoop opens the body scope of a loop and makes it the break target.
func (a *Analyzer) beginLoop(while bool) (int, *loopFrame) {
	idx := a.newScope()
	a.mod.Scopes[idx].Break = &mir.BreakCapture{}
	frame := &loopFrame{scope: idx, while: while}
	a.loops = append(a.loops, frame)
	return idx, frame
}

func (a *Analyzer) endLoop(frame *loopFrame) types.AType {
	a.loops = a.loops[:len(a.loops)-1]
	capture := a.mod.Scopes[frame.scope].Break
	if capture.Valued {
		for _, span := range frame.bareBreaks {
			a.errorf(diag.UnmatchedAssignmentType, span, "break without a value in a loop of type %s", capture.Type)
		}
	}
	return capture.LoopType()
}

func (a *Analyzer) lowerLoop(node *ast.Node) mir.AVar {
	body := node.Data.(ast.LoopNode).Body
	idx, frame := a.beginLoop(false)
	a.within(idx, func() { a.lowerBlockBody(body.Data.(ast.BlockNode)) })
	return mir.AVar{Type: a.endLoop(frame), Val: mir.InfiLoop{Scope: idx}}
}

// lowerWhile desugars while c { body } into loop { if c { body } else { break } }.
func (a *Analyzer) lowerWhile(node *ast.Node) mir.AVar {
	d := node.Data.(ast.WhileNode)
	idx, frame := a.beginLoop(true)
	a.within(idx, func() {
		cond := a.condSym(d.Cond)
		then := a.lowerBlockScope(d.Body)
		exit := a.exprScope(func() mir.AVar {
			a.mod.Scopes[idx].Break.Count++
			return mir.AVar{Type: types.Never, Val: mir.Break{}}
		})
		a.bindTemp(mir.AVar{Type: types.Void, Val: mir.IfBlock{Arms: []mir.IfArm{{Cond: cond, Scope: then}}, Else: exit}})
	})
	a.endLoop(frame)
	return mir.AVar{Type: types.Void, Val: mir.InfiLoop{Scope: idx}}
}

func (a *Analyzer) lowerBreak(node *ast.Node) mir.AVar {
	frame := a.loops[len(a.loops)-1]
	capture := a.mod.Scopes[frame.scope].Break
	capture.Count++
	span := diag.At(node.Tok)

	expr := node.Data.(ast.BreakNode).Expr
	if expr == nil {
		frame.bareBreaks = append(frame.bareBreaks, span)
		return mir.AVar{Type: types.Never, Val: mir.Break{}}
	}

	sym, ty := a.exprSym(expr)
	switch {
	case ty.IsPlaceholder():
	case frame.while:
		a.errorf(diag.UnmatchedAssignmentType, span, "break inside a while loop cannot carry a value")
	case ty.IsUnit():
		a.errorf(diag.UnmatchedAssignmentType, span, "break value of type %s carries no data", ty)
	case !capture.Valued:
		capture.Valued, capture.Type = true, ty
	default:
		sym = a.coerce(sym, ty, capture.Type, span, "break value")
	}
	return mir.AVar{Type: types.Never, Val: mir.Break{Value: sym}}
}

func (a *Analyzer) lowerReturn(node *ast.Node) mir.AVar {
	expr := node.Data.(ast.ReturnNode).Expr
	span := diag.At(node.Tok)
	ret := a.fn.Ret

	var sym string
	var ty types.AType = types.Void
	if expr != nil {
		sym, ty = a.exprSym(expr)
	}

	switch {
	case ty.IsNever():
		return mir.AVar{Type: types.Never, Val: mir.Return{}}
	case ret.IsVoid():
		if !ty.IsVoid() && !ty.IsPlaceholder() {
			a.errorf(diag.UnmatchedAssignmentType, span, "function '%s' returns void, but a value of type %s is returned", a.fn.Base, ty)
		}
		return mir.AVar{Type: types.Never, Val: mir.Return{}}
	case ty.IsVoid():
		a.errorf(diag.UnmatchedAssignmentType, span, "function '%s' must return %s", a.fn.Base, ret)
		return mir.AVar{Type: types.Never, Val: mir.Return{}}
	}
	return mir.AVar{Type: types.Never, Val: mir.Return{Value: a.coerce(sym, ty, ret, span, "return value")}}
}
