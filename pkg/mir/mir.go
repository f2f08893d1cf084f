// Package mir is the scoped, flattened intermediate representation produced
// by semantic analysis and consumed by the code generator.
//
// A Module owns an arena of Scopes. Scope 0 is the module root; every other
// scope records the index of its lexically enclosing parent. Instructions
// only ever refer to other values by symbol name, never by nested tree.
package mir

import (
	"fmt"
	"slices"
	"strings"

	"github.com/minghu6/bas/pkg/diag"
	"github.com/minghu6/bas/pkg/types"
)

// TempPrefix starts the name of every compiler-generated temporary.
const TempPrefix = "!__tmp_"

// IsTemp reports whether name belongs to an implicit binding.
func IsTemp(name string) bool { return strings.HasPrefix(name, TempPrefix) }

// TempName returns the name of the n-th temporary of a function.
func TempName(n int) string { return fmt.Sprintf("%s%d", TempPrefix, n) }

// VarKey identifies one storage location inside a function.
type VarKey struct {
	Name string
	Tag  int
}

func (k VarKey) String() string { return fmt.Sprintf("%s.%d", k.Name, k.Tag) }

type Kind int

const (
	// ValBind introduces a new immutable temporary.
	ValBind Kind = iota
	// VarAssign stores into the slot of an existing (name, tag).
	VarAssign
)

type MIR struct {
	Name string
	Tag  int // only meaningful for VarAssign
	Kind Kind
	Type types.AType
	Val  Val
}

// AVar is a typed value-expression that has not been bound to a name yet.
type AVar struct {
	Type types.AType
	Val  Val
}

// Undefined is the value substituted for anything that failed to analyze.
func Undefined() AVar { return AVar{Type: types.Placeholder, Val: Placeholder{}} }

// Binding is an explicit, source-visible variable.
type Binding struct {
	Name string
	Tag  int
	Type types.AType
	Span diag.Span
}

// BreakCapture records what the breaks of a loop body carried.
type BreakCapture struct {
	Count  int         // number of breaks that target this loop
	Valued bool        // some break carried a value
	Type   types.AType // type of the first carried value
}

// LoopType is the static type of the loop owning c.
func (c *BreakCapture) LoopType() types.AType {
	switch {
	case c.Count == 0:
		return types.Never
	case !c.Valued:
		return types.Void
	}
	return c.Type
}

type Scope struct {
	Parent   int // -1 for the root
	Explicit []Binding
	Implicit map[string]int // temporary name -> index into Mirs
	Mirs     []MIR

	// Tail is the temporary holding the scope's trailing expression, or ""
	// when the scope has none.
	Tail     string
	TailType types.AType

	// Break is non-nil when the scope is the body of a loop.
	Break *BreakCapture
}

func newScope(parent int) *Scope {
	return &Scope{Parent: parent, Implicit: make(map[string]int), TailType: types.Void}
}

// FindExplicit returns the most recent binding of name in this scope only.
func (s *Scope) FindExplicit(name string) (Binding, bool) {
	for i := len(s.Explicit) - 1; i >= 0; i-- {
		if s.Explicit[i].Name == name { return s.Explicit[i], true }
	}
	return Binding{}, false
}

// SetBindingType fixes the type of the binding (name, tag) in this scope.
func (s *Scope) SetBindingType(key VarKey, ty types.AType) bool {
	for i := len(s.Explicit) - 1; i >= 0; i-- {
		b := &s.Explicit[i]
		if b.Name == key.Name && b.Tag == key.Tag {
			b.Type = ty
			return true
		}
	}
	return false
}

// Push appends m to the scope's instruction list. Temporaries are indexed so
// they can be found by name.
func (s *Scope) Push(m MIR) {
	if m.Kind == ValBind {
		s.Implicit[m.Name] = len(s.Mirs)
	}
	s.Mirs = append(s.Mirs, m)
}

// Lookup returns the instruction that bound the temporary name.
func (s *Scope) Lookup(name string) (MIR, bool) {
	i, ok := s.Implicit[name]
	if !ok { return MIR{}, false }
	return s.Mirs[i], true
}

// AllocTable maps every (name, tag) of one function to its declared type in
// declaration order.
type AllocTable struct {
	order []VarKey
	types map[VarKey]types.AType
}

func NewAllocTable() *AllocTable { return &AllocTable{types: make(map[VarKey]types.AType)} }

// NextTag is one past the last tag handed out for name, or 0.
func (a *AllocTable) NextTag(name string) int {
	for i := len(a.order) - 1; i >= 0; i-- {
		if a.order[i].Name == name { return a.order[i].Tag + 1 }
	}
	return 0
}

func (a *AllocTable) Add(key VarKey, ty types.AType) {
	if _, dup := a.types[key]; dup {
		panic(fmt.Sprintf("mir: storage %s allocated twice", key))
	}
	a.order = append(a.order, key)
	a.types[key] = ty
}

func (a *AllocTable) Type(key VarKey) (types.AType, bool) {
	ty, ok := a.types[key]
	return ty, ok
}

func (a *AllocTable) SetType(key VarKey, ty types.AType) {
	if _, ok := a.types[key]; !ok {
		panic(fmt.Sprintf("mir: storage %s was never allocated", key))
	}
	a.types[key] = ty
}

func (a *AllocTable) Keys() []VarKey { return slices.Clone(a.order) }
func (a *AllocTable) Len() int       { return len(a.order) }

// Module is one compilation unit after semantic analysis.
type Module struct {
	Name    string
	Defs    []*FnDecl
	Externs []*FnDecl
	Allocs  map[string]*AllocTable // keyed by function identity
	Scopes  []*Scope
	Ext     *ExtSymSet

	defIndex    map[string]int
	externIndex map[string]int
}

func NewModule(name string, ext *ExtSymSet) *Module {
	if ext == nil {
		ext = NewExtSymSet()
	}
	return &Module{
		Name:        name,
		Allocs:      make(map[string]*AllocTable),
		Scopes:      []*Scope{newScope(-1)},
		Ext:         ext,
		defIndex:    make(map[string]int),
		externIndex: make(map[string]int),
	}
}

func (m *Module) Root() *Scope { return m.Scopes[0] }

// NewScope appends a scope under parent and returns its index.
func (m *Module) NewScope(parent int) int {
	m.Scopes = append(m.Scopes, newScope(parent))
	return len(m.Scopes) - 1
}

func (m *Module) AddDef(fn *FnDecl) {
	m.defIndex[fn.Identity] = len(m.Defs)
	m.Defs = append(m.Defs, fn)
	m.Allocs[fn.Identity] = NewAllocTable()
}

func (m *Module) AddExtern(fn *FnDecl) {
	m.externIndex[fn.Identity] = len(m.Externs)
	m.Externs = append(m.Externs, fn)
}

func (m *Module) Def(identity string) *FnDecl {
	if i, ok := m.defIndex[identity]; ok { return m.Defs[i] }
	return nil
}

func (m *Module) Extern(identity string) *FnDecl {
	if i, ok := m.externIndex[identity]; ok { return m.Externs[i] }
	return nil
}

// FindFunc resolves an identity against definitions, then external
// declarations, then the external symbol set.
func (m *Module) FindFunc(identity string) *FnDecl {
	if fn := m.Def(identity); fn != nil { return fn }
	if fn := m.Extern(identity); fn != nil { return fn }
	return m.Ext.Find(identity)
}

// ScopeOf narrows a scope-bearing value-expression to its scope index. The
// value is guaranteed scope-bearing when it came from an if, loop or block.
func ScopeOf(v Val) int {
	switch v := v.(type) {
	case DefFn:
		return v.Scope
	case InfiLoop:
		return v.Scope
	case BlockExpr:
		return v.Scope
	}
	panic(fmt.Sprintf("mir: %T carries no scope", v))
}
