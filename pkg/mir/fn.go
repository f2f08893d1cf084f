package mir

import (
	"slices"

	"github.com/minghu6/bas/pkg/diag"
	"github.com/minghu6/bas/pkg/types"
)

type Attr uint8

const (
	AttrNoMangle Attr = 1 << iota
	AttrVarArg
)

// AttrNames maps the source spelling of an attribute to its flag.
var AttrNames = map[string]Attr{
	"no_mangle": AttrNoMangle,
	"vararg":    AttrVarArg,
}

type AttrSet uint8

func (s AttrSet) Has(a Attr) bool { return s&AttrSet(a) != 0 }

// Add sets a and reports whether it was already present.
func (s *AttrSet) Add(a Attr) (dup bool) {
	dup = s.Has(a)
	*s |= AttrSet(a)
	return dup
}

type FnKind int

const (
	Definition FnKind = iota
	External
)

type Param struct {
	Name string // empty for a bare-typed external parameter
	Type types.AType
}

type FnDecl struct {
	Kind     FnKind
	Base     string
	Identity string // lookup key: the base name or its mangled form
	Symbol   string // link-level name
	Attrs    AttrSet
	Params   []Param
	Ret      types.AType
	Span     diag.Span
	Scope    int // body scope of a definition, -1 otherwise
}

func (f *FnDecl) ParamTypes() []types.AType {
	tys := make([]types.AType, len(f.Params))
	for i, p := range f.Params {
		tys[i] = p.Type
	}
	return tys
}

func (f *FnDecl) IsVarArg() bool { return f.Attrs.Has(AttrVarArg) }

// Call returns the value-expression of calling f with args.
func (f *FnDecl) Call(args []string) AVar {
	return AVar{Type: f.Ret, Val: FnCall{Callee: f.Identity, Args: slices.Clone(args)}}
}

// ExtModule is a named table of external declarations.
type ExtModule struct {
	Name string
	Fns  map[string]*FnDecl
}

// ExtSymSet is an ordered collection of external modules, queried by exact
// identity.
type ExtSymSet struct {
	mods []*ExtModule
}

func NewExtSymSet(mods ...*ExtModule) *ExtSymSet {
	return &ExtSymSet{mods: slices.Clone(mods)}
}

func (e *ExtSymSet) Add(mod *ExtModule) { e.mods = append(e.mods, mod) }

func (e *ExtSymSet) Modules() []*ExtModule { return e.mods }

// Find returns the first declaration registered under identity.
func (e *ExtSymSet) Find(identity string) *FnDecl {
	for _, mod := range e.mods {
		if fn, ok := mod.Fns[identity]; ok { return fn }
	}
	return nil
}
