package sema

import (
	"fmt"
	"sort"

	"github.com/minghu6/bas/pkg/ast"
	"github.com/minghu6/bas/pkg/diag"
	"github.com/minghu6/bas/pkg/mir"
	"github.com/minghu6/bas/pkg/types"
)

// Lower is Pass 2: it lowers every deferred body into its own scope and binds
// the result in the module root scope.
func (a *Analyzer) Lower(items []Item) error {
	for _, item := range items {
		a.lowerFn(item)
	}
	return a.finish()
}

func (a *Analyzer) lowerFn(item Item) {
	fn := item.Fn
	a.fn, a.allocs, a.temps = fn, a.mod.Allocs[fn.Identity], 0
	a.loops, a.pending = nil, make(map[mir.VarKey]diag.Span)
	defer func() { a.fn, a.allocs, a.sc = nil, nil, nil }()

	scope := a.mod.NewScope(0)
	fn.Scope = scope
	a.push(scope)

	for i, p := range fn.Params {
		if p.Name == "" {
			continue
		}
		key := a.createVar(p.Name, p.Type, diag.At(item.Decl.Params[i].Tok))
		a.cur().Push(mir.MIR{Name: key.Name, Tag: key.Tag, Kind: mir.VarAssign, Type: p.Type, Val: mir.FnParam{Index: i}})
	}

	body := item.Decl.Body
	a.lowerBlockBody(body.Data.(ast.BlockNode))
	a.returnTail(body)
	a.pop()

	a.checkPending()
	a.mod.Root().Push(mir.MIR{Name: fn.Identity, Kind: mir.ValBind, Type: types.Void, Val: mir.DefFn{Name: fn.Identity, Scope: scope}})
}

// returnTail synthesizes the implicit return of a function body's tail value.
func (a *Analyzer) returnTail(body *ast.Node) {
	s := a.cur()
	if s.TailType.IsNever() { return }

	span := diag.At(body.Tok)
	if t := body.Data.(ast.BlockNode).Tail; t != nil {
		span = diag.At(t.Tok)
	}

	ret := mir.Return{}
	switch {
	case a.fn.Ret.IsVoid():
	case s.Tail == "" || s.TailType.IsVoid():
		a.errorf(diag.UnmatchedAssignmentType, span, "function '%s' must return %s, but its body produces no value", a.fn.Base, a.fn.Ret)
	default:
		ret.Value = a.coerce(s.Tail, s.TailType, a.fn.Ret, span, "return value")
	}
	a.bindTemp(mir.AVar{Type: types.Never, Val: ret})
}

// checkPending diagnoses `let` bindings whose type was never fixed.
func (a *Analyzer) checkPending() {
	keys := make([]mir.VarKey, 0, len(a.pending))
	for key := range a.pending {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return a.pending[keys[i]].Offset < a.pending[keys[j]].Offset
	})
	for _, key := range keys {
		a.errorf(diag.UnknownType, a.pending[key], "cannot infer the type of '%s'", key.Name)
	}
}

// Scope stack

func (a *Analyzer) push(scope int) { a.sc = append(a.sc, scope) }
func (a *Analyzer) pop()           { a.sc = a.sc[:len(a.sc)-1] }

func (a *Analyzer) curIdx() int       { return a.sc[len(a.sc)-1] }
func (a *Analyzer) cur() *mir.Scope   { return a.mod.Scopes[a.curIdx()] }
func (a *Analyzer) newScope() int     { return a.mod.NewScope(a.curIdx()) }

// within lowers body with scope on top of the scope stack.
func (a *Analyzer) within(scope int, body func()) {
	a.push(scope)
	defer a.pop()
	body()
}

// bindTemp binds v to a fresh temporary of the current scope.
func (a *Analyzer) bindTemp(v mir.AVar) string {
	name := mir.TempName(a.temps)
	a.temps++
	a.cur().Push(mir.MIR{Name: name, Kind: mir.ValBind, Type: v.Type, Val: v.Val})
	return name
}

// createVar allocates a fresh (name, tag) for a let or parameter and makes it
// visible in the current scope.
func (a *Analyzer) createVar(name string, ty types.AType, span diag.Span) mir.VarKey {
	key := mir.VarKey{Name: name, Tag: a.allocs.NextTag(name)}
	a.allocs.Add(key, ty)
	s := a.cur()
	s.Explicit = append(s.Explicit, mir.Binding{Name: name, Tag: key.Tag, Type: ty, Span: span})
	if b, _ := s.FindExplicit(name); b.Tag != key.Tag {
		panic(fmt.Sprintf("sema: binding %s vanished right after creation", key))
	}
	return key
}

// findExplicit walks the scope chain from the current scope to the root and
// returns the innermost binding of name along with its scope.
func (a *Analyzer) findExplicit(name string) (mir.Binding, int, bool) {
	for idx := a.curIdx(); idx >= 0; idx = a.mod.Scopes[idx].Parent {
		if b, ok := a.mod.Scopes[idx].FindExplicit(name); ok { return b, idx, true }
	}
	return mir.Binding{}, -1, false
}

// deferred reports whether b was declared without a type and has not been
// assigned yet.
func (a *Analyzer) deferred(b mir.Binding) bool {
	_, ok := a.pending[mir.VarKey{Name: b.Name, Tag: b.Tag}]
	return ok
}

// fixType settles the type of a binding declared without one.
func (a *Analyzer) fixType(b mir.Binding, scope int, ty types.AType) {
	key := mir.VarKey{Name: b.Name, Tag: b.Tag}
	a.allocs.SetType(key, ty)
	a.mod.Scopes[scope].SetBindingType(key, ty)
	delete(a.pending, key)
}

// castTo converts sym to ty, emitting a cast only when the types differ.
func (a *Analyzer) castTo(sym string, from, to types.AType) string {
	if from == to { return sym }
	return a.bindTemp(mir.AVar{Type: to, Val: mir.TypeCast{Src: sym, From: from, To: to}})
}

// coerce converts sym for storage into a slot of type to, diagnosing values
// that cannot be cast. what names the destination in the message.
func (a *Analyzer) coerce(sym string, from, to types.AType, span diag.Span, what string) string {
	if from.IsPlaceholder() || to.IsPlaceholder() { return sym }
	if err := types.TryCast(from, to); err != nil {
		a.errorf(diag.UnmatchedAssignmentType, span, "%s has type %s, expected %s", what, from, to)
		return sym
	}
	return a.castTo(sym, from, to)
}
