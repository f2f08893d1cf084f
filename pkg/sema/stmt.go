package sema

import (
	"github.com/minghu6/bas/pkg/ast"
	"github.com/minghu6/bas/pkg/config"
	"github.com/minghu6/bas/pkg/diag"
	"github.com/minghu6/bas/pkg/mir"
	"github.com/minghu6/bas/pkg/types"
)

// lowerBlockScope lowers a block into a fresh child scope of the current one.
func (a *Analyzer) lowerBlockScope(block *ast.Node) int {
	idx := a.newScope()
	a.within(idx, func() { a.lowerBlockBody(block.Data.(ast.BlockNode)) })
	return idx
}

// lowerBlockBody lowers statements and the tail into the current scope.
func (a *Analyzer) lowerBlockBody(b ast.BlockNode) {
	diverged, warned := false, false
	unreachable := func(n *ast.Node) {
		if diverged && !warned {
			a.warn(config.WarnUnreachableCode, diag.At(n.Tok), "code will never be executed")
			warned = true
		}
	}

	for _, stmt := range b.Stmts {
		unreachable(stmt)
		if a.lowerStmt(stmt).IsNever() {
			diverged = true
		}
	}

	s := a.cur()
	if b.Tail != nil {
		unreachable(b.Tail)
		v := a.analyzeExpr(b.Tail)
		s.Tail, s.TailType = a.bindTemp(v), v.Type
	}
	if diverged {
		s.TailType = types.Never
	}
}

// lowerStmt lowers one statement and returns the type of its expression, so
// the caller can tell when control never reaches the next statement.
func (a *Analyzer) lowerStmt(node *ast.Node) types.AType {
	switch node.Type {
	case ast.Let:
		a.lowerLet(node)
		return types.Void
	case ast.ExprStmt:
		expr := node.Data.(ast.ExprStmtNode).Expr
		var v mir.AVar
		switch expr.Type {
		case ast.If:
			v = a.lowerIf(expr, true)
		case ast.Number, ast.FloatNumber, ast.String, ast.Bool, ast.Ident, ast.BinaryOp, ast.TypeCast:
			a.warn(config.WarnUnusedValue, diag.At(expr.Tok), "expression result is unused")
			v = a.analyzeExpr(expr)
		default:
			v = a.analyzeExpr(expr)
		}
		a.bindTemp(v)
		return v.Type
	}
	panic("sema: statement of unexpected kind")
}

func (a *Analyzer) lowerLet(node *ast.Node) {
	d := node.Data.(ast.LetNode)
	span := diag.At(node.Tok)

	if _, _, found := a.findExplicit(d.Name); found {
		a.warn(config.WarnShadow, span, "declaration of '%s' shadows a previous binding", d.Name)
	}

	var init mir.AVar
	var initSym string
	if d.Init != nil {
		// The initializer cannot see the binding it initializes.
		init = a.analyzeExpr(d.Init)
		initSym = a.bindTemp(init)
	}

	ty := types.Placeholder
	switch {
	case d.Type != nil:
		ty = a.resolveType(d.Type)
		if ty.IsUnit() {
			a.errorf(diag.UnknownType, diag.At(d.Type.Tok), "variable '%s' cannot have type %s", d.Name, ty)
			ty = types.Placeholder
		}
	case d.Init != nil:
		ty = init.Type
		if ty.IsUnit() {
			a.errorf(diag.UnmatchedAssignmentType, diag.At(d.Init.Tok), "initializer of '%s' produces no value", d.Name)
			ty = types.Placeholder
		}
	}

	key := a.createVar(d.Name, ty, span)
	if d.Init == nil {
		if d.Type == nil {
			a.pending[key] = span
		}
		return
	}
	if ty.IsPlaceholder() { return }
	val := a.coerce(initSym, init.Type, ty, diag.At(d.Init.Tok), "initializer of '"+d.Name+"'")
	a.cur().Push(mir.MIR{Name: key.Name, Tag: key.Tag, Kind: mir.VarAssign, Type: ty, Val: mir.Alias{Sym: val}})
}
