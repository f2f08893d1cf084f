package sema

import (
	"regexp"

	"fortio.org/safecast"
	"github.com/minghu6/bas/pkg/ast"
	"github.com/minghu6/bas/pkg/corelib"
	"github.com/minghu6/bas/pkg/diag"
	"github.com/minghu6/bas/pkg/mangle"
	"github.com/minghu6/bas/pkg/mir"
	"github.com/minghu6/bas/pkg/types"
)

const rawTag = "raw"

func (a *Analyzer) lowerCall(node *ast.Node) mir.AVar {
	d := node.Data.(ast.FuncCallNode)
	span := diag.At(node.Tok)

	args := make([]string, len(d.Args))
	tys := make([]types.AType, len(d.Args))
	suppressed := false
	for i, arg := range d.Args {
		args[i], tys[i] = a.exprSym(arg)
		if tys[i].IsPlaceholder() {
			suppressed = true
		}
	}

	if d.Tag != nil {
		if d.Tag.Value != rawTag {
			a.errorf(diag.UnknownAttributeTag, diag.At(*d.Tag), "unknown call tag '%s#'", d.Tag.Value)
			return mir.Undefined()
		}
		return a.rawCall(d.Name, args, tys, span, suppressed)
	}

	if suppressed { return mir.Undefined() }
	fn := a.mod.FindFunc(mangle.Mangle(d.Name, tys))
	if fn == nil {
		a.errorf(diag.NoMatchingFunctionOverload, span, "no matching function for call to '%s%s'", d.Name, types.FormatList(tys))
		return mir.Undefined()
	}
	return fn.Call(args)
}

// rawCall calls name verbatim. Fixed parameters take implicit casts; extra
// arguments of a variadic callee get the C default promotions.
func (a *Analyzer) rawCall(name string, args []string, tys []types.AType, span diag.Span, suppressed bool) mir.AVar {
	fn := a.mod.FindFunc(name)
	if fn == nil {
		a.errorf(diag.NoMatchingFunctionOverload, span, "no function named '%s'", name)
		return mir.Undefined()
	}
	if len(args) < len(fn.Params) {
		a.errorf(diag.MissingFormalParameter, span, "too few arguments to '%s': expected %d, have %d", name, len(fn.Params), len(args))
		return mir.Undefined()
	}
	if len(args) > len(fn.Params) && !fn.IsVarArg() {
		a.errorf(diag.NoMatchingFunctionOverload, span, "too many arguments to '%s': expected %d, have %d", name, len(fn.Params), len(args))
		return mir.Undefined()
	}
	if suppressed { return mir.Undefined() }

	for i := range args {
		if i < len(fn.Params) {
			args[i] = a.coerce(args[i], tys[i], fn.Params[i].Type, span, "argument")
			continue
		}
		switch {
		case tys[i].IsInt() && tys[i].Size() < 4:
			args[i] = a.castTo(args[i], tys[i], types.I32)
		case tys[i].IsFloat():
			args[i] = a.castTo(args[i], tys[i], types.F64)
		}
	}
	return fn.Call(args)
}

var cmdSymbol = regexp.MustCompile(`\$([[:alpha:]_][[:alnum:]_]*)`)

// lowerCommand lowers a command literal. Every $name is stringified and
// substituted into the command text, the command is executed, and its output
// is printed. The value is the captured output.
func (a *Analyzer) lowerCommand(node *ast.Node) mir.AVar {
	src := node.Data.(ast.CommandNode).Src
	span := diag.At(node.Tok)

	var names, strs []string
	for _, m := range cmdSymbol.FindAllStringSubmatch(src, -1) {
		name := m[1]
		b, _, ok := a.findExplicit(name)
		if !ok {
			a.errorf(diag.UnresolvedSymbol, span, "use of undeclared identifier '%s' in command", name)
			continue
		}
		if b.Type.IsPlaceholder() {
			continue
		}
		str, ok := a.stringify(b, span)
		if !ok {
			continue
		}
		names = append(names, a.bindTemp(mir.AVar{Type: types.Str, Val: mir.StrConst{Value: name}}))
		strs = append(strs, str)
	}

	text := a.bindTemp(mir.AVar{Type: types.Str, Val: mir.StrConst{Value: src}})
	syms := a.buildStrVec(names, span)
	vals := a.buildStrVec(strs, span)

	vec := types.Array(types.PointerPri(), 1)
	replaced, ok := a.coreCall(corelib.CmdReplace, span, []types.AType{types.Str, vec, vec}, text, syms, vals)
	if !ok { return mir.Undefined() }
	out, ok := a.coreCall(corelib.Exec, span, []types.AType{types.Str}, replaced)
	if !ok { return mir.Undefined() }

	printf := a.mod.FindFunc(corelib.Printf)
	if printf == nil {
		a.errorf(diag.NoMatchingFunctionOverload, span, "no function named '%s'", corelib.Printf)
		return mir.Undefined()
	}
	format := a.bindTemp(mir.AVar{Type: types.Str, Val: mir.StrConst{Value: "%s"}})
	a.bindTemp(printf.Call([]string{format, out}))
	return mir.AVar{Type: types.Str, Val: mir.Alias{Sym: out}}
}

// stringify converts the value of b to a runtime string.
func (a *Analyzer) stringify(b mir.Binding, span diag.Span) (string, bool) {
	fname := corelib.Stringifier(b.Type)
	if fname == "" {
		a.errorf(diag.NoMatchingFunctionOverload, span, "no string conversion for '%s' of type %s", b.Name, b.Type)
		return "", false
	}
	val := a.bindTemp(mir.AVar{Type: b.Type, Val: mir.Var{Name: b.Name, Tag: b.Tag}})
	param := b.Type
	switch {
	case b.Type.IsInt():
		param = types.I32
	case b.Type.IsFloat():
		param = types.F64
	}
	val = a.castTo(val, b.Type, param)
	return a.coreCall(fname, span, []types.AType{param}, val)
}

// buildStrVec builds a runtime vector of the given strings.
func (a *Analyzer) buildStrVec(items []string, span diag.Span) string {
	n, err := safecast.Conv[int32](len(items))
	if err != nil {
		panic("sema: command has more substitutions than a vector can hold")
	}
	capacity := a.bindTemp(mir.AVar{Type: types.I32, Val: mir.IntConst{Value: n}})
	vecTy := types.Array(types.PointerPri(), 1)
	vec, ok := a.coreCall("vec_new_ptr", span, []types.AType{types.I32}, capacity)
	if !ok { return vec }
	for _, item := range items {
		a.coreCall("vec_push_ptr", span, []types.AType{vecTy, types.Str}, vec, item)
	}
	return vec
}

// coreCall calls a runtime function resolved through the external symbol set.
func (a *Analyzer) coreCall(base string, span diag.Span, params []types.AType, args ...string) (string, bool) {
	fn := a.mod.FindFunc(mangle.Mangle(base, params))
	if fn == nil {
		a.errorf(diag.NoMatchingFunctionOverload, span, "no matching function for call to '%s%s'", base, types.FormatList(params))
		return "", false
	}
	return a.bindTemp(fn.Call(args)), true
}
