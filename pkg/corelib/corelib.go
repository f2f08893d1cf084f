// Package corelib describes the runtime library every bas program links
// against. The table is registered by mangled identity and linked by the C
// symbol the runtime exports.
package corelib

import (
	"github.com/minghu6/bas/pkg/mangle"
	"github.com/minghu6/bas/pkg/mir"
	"github.com/minghu6/bas/pkg/types"
)

const ModuleName = "core"

// Fixed runtime symbols the analyzer lowers command literals into.
const (
	StringifyInt   = "stringify_i32"
	StringifyFloat = "stringify_f64"
	StrDup         = "strdup"
	CmdReplace     = "cmd_symbols_replace"
	Exec           = "exec"
	Printf         = "printf"
)

type elem struct {
	suffix string
	pri    types.Pri
}

var elems = []elem{
	{"i32", types.IntPri(-4)},
	{"f64", types.FloatPri(8)},
	{"ptr", types.PointerPri()},
}

type builder struct{ fns map[string]*mir.FnDecl }

// def registers base(params) under its mangled identity, linked as symbol.
func (b *builder) def(base, symbol string, ret types.AType, params ...types.AType) *mir.FnDecl {
	fn := &mir.FnDecl{
		Kind:     mir.External,
		Base:     base,
		Identity: mangle.Mangle(base, params),
		Symbol:   symbol,
		Ret:      ret,
		Scope:    -1,
	}
	for _, ty := range params {
		fn.Params = append(fn.Params, mir.Param{Type: ty})
	}
	if _, dup := b.fns[fn.Identity]; dup {
		panic("corelib: duplicate runtime identity " + fn.Identity)
	}
	b.fns[fn.Identity] = fn
	return fn
}

// New builds the core module. Each call returns a fresh table.
func New() *mir.ExtModule {
	b := &builder{fns: make(map[string]*mir.FnDecl)}
	i32, str := types.I32, types.Str

	for _, e := range elems {
		el := types.Primitive(e.pri)
		vec := types.Array(e.pri, 1)
		aa := types.Assoc(e.pri)

		b.def("vec_new_"+e.suffix, "vec_new_"+e.suffix, vec, i32)
		b.def("vec_push_"+e.suffix, "vec_push_"+e.suffix, i32, vec, el)
		b.def("vec_get_"+e.suffix, "vec_get_"+e.suffix, el, vec, i32)
		b.def("vec_set_"+e.suffix, "vec_set_"+e.suffix, el, vec, i32, el)
		b.def("vec_insert_"+e.suffix, "vec_insert_"+e.suffix, i32, vec, i32, el)
		b.def("vec_len", "vec_len", i32, vec)
		b.def("vec_drop", "vec_drop", types.Void, vec)

		b.def("aa_new_"+e.suffix, "aa_new_"+e.suffix, aa, i32)
		b.def("aa_insert_"+e.suffix, "aa_insert_"+e.suffix, i32, aa, str, el)
		// The index is a size_t.
		b.def("aa_get_"+e.suffix, "aa_get_"+e.suffix, el, aa, types.Int(8))

		// overloaded spellings
		b.def("len", "vec_len", i32, vec)
		b.def("push", "vec_push_"+e.suffix, i32, vec, el)
		b.def("get", "vec_get_"+e.suffix, el, vec, i32)
	}

	b.def(StringifyInt, StringifyInt, str, i32)
	b.def(StringifyFloat, StringifyFloat, str, types.F64)
	b.def(StrDup, StrDup, str, str)
	b.def("str", StringifyInt, str, i32)
	b.def("str", StringifyFloat, str, types.F64)
	b.def("str", StrDup, str, str)
	b.def(CmdReplace, CmdReplace, str, str, types.Array(types.PointerPri(), 1), types.Array(types.PointerPri(), 1))
	b.def(Exec, Exec, str, str)

	printf := &mir.FnDecl{
		Kind:     mir.External,
		Base:     Printf,
		Identity: Printf,
		Symbol:   Printf,
		Params:   []mir.Param{{Type: str}},
		Ret:      i32,
		Scope:    -1,
	}
	printf.Attrs.Add(mir.AttrNoMangle)
	printf.Attrs.Add(mir.AttrVarArg)
	b.fns[printf.Identity] = printf

	return &mir.ExtModule{Name: ModuleName, Fns: b.fns}
}

// Lookup finds the runtime function base(params...) in mod.
func Lookup(mod *mir.ExtModule, base string, params ...types.AType) *mir.FnDecl {
	return mod.Fns[mangle.Mangle(base, params)]
}

// Stringifier returns the runtime function converting a value of ty to a
// string, or "" when ty has no string form.
func Stringifier(ty types.AType) string {
	switch {
	case ty.IsFloat():
		return StringifyFloat
	case ty.IsInt():
		return StringifyInt
	case ty.IsPointer():
		return StrDup
	}
	return ""
}
