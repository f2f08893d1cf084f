// Package sema is the two-pass semantic analyzer. Pass 1 collects function
// signatures into a Module; Pass 2 lowers every body into scoped MIR.
//
// Neither pass stops at the first problem. Anything that fails to resolve is
// diagnosed, replaced by a placeholder, and analysis continues.
package sema

import (
	"fmt"
	"slices"

	"github.com/minghu6/bas/pkg/ast"
	"github.com/minghu6/bas/pkg/config"
	"github.com/minghu6/bas/pkg/diag"
	"github.com/minghu6/bas/pkg/mir"
	"github.com/minghu6/bas/pkg/types"
)

// Item is a definition whose body is deferred to Pass 2.
type Item struct {
	Fn   *mir.FnDecl
	Decl ast.FuncDeclNode
}

// loopFrame tracks the loop a break or continue refers to.
type loopFrame struct {
	scope      int
	while      bool
	bareBreaks []diag.Span
}

type Analyzer struct {
	cfg *config.Config
	src diag.SourceFile
	mod *mir.Module
	bag *diag.Bag

	warnings []diag.Warning

	// Pass 2 state for the function being lowered.
	sc      []int
	fn      *mir.FnDecl
	allocs  *mir.AllocTable
	temps   int
	loops   []*loopFrame
	pending map[mir.VarKey]diag.Span
}

// New prepares an analyzer for one compilation unit. ext is the external
// symbol set every lookup falls back to.
func New(src diag.SourceFile, cfg *config.Config, ext *mir.ExtSymSet) *Analyzer {
	return &Analyzer{
		cfg: cfg,
		src: src,
		mod: mir.NewModule(src.Name, ext),
		bag: &diag.Bag{},
	}
}

func (a *Analyzer) Module() *mir.Module { return a.mod }

// Warnings returns the warnings of every pass run so far.
func (a *Analyzer) Warnings() []diag.Warning {
	return append(slices.Clone(a.warnings), a.bag.Warnings()...)
}

// finish closes the current pass: its bag becomes the pass result and a
// fresh bag is installed for the next pass.
func (a *Analyzer) finish() error {
	bag := a.bag
	a.warnings = append(a.warnings, bag.Warnings()...)
	a.bag = &diag.Bag{}
	return bag.Err(a.src)
}

// Analyze runs both passes over a parsed file.
func Analyze(file *ast.Node, src diag.SourceFile, cfg *config.Config, ext *mir.ExtSymSet) (*mir.Module, []diag.Warning, error) {
	a := New(src, cfg, ext)
	items, err := a.Collect(file)
	if err != nil {
		return nil, a.Warnings(), err
	}
	if err := a.Lower(items); err != nil {
		return nil, a.Warnings(), err
	}
	return a.mod, a.Warnings(), nil
}

func (a *Analyzer) errorf(reason diag.Reason, span diag.Span, format string, args ...any) {
	a.bag.Record(reason, span, format, args...)
}

func (a *Analyzer) warn(wt config.Warning, span diag.Span, format string, args ...any) {
	if !a.cfg.IsWarningEnabled(wt) { return }
	a.bag.Warn(a.cfg.Warnings[wt].Name, span, format, args...)
}

var namedTypes = map[string]types.AType{
	"int":   types.I32,
	"float": types.F64,
	"bool":  types.Bool,
	"str":   types.Str,
	"void":  types.Void,
	"i8":    types.Int(-1),
	"i16":   types.Int(-2),
	"i32":   types.Int(-4),
	"i64":   types.Int(-8),
	"u8":    types.Int(1),
	"u16":   types.Int(2),
	"u32":   types.Int(4),
	"u64":   types.Int(8),
	"f32":   types.Float(4),
	"f64":   types.Float(8),
}

// resolveType turns a written type into an AType. Unknown names are
// diagnosed and resolve to Placeholder.
func (a *Analyzer) resolveType(te *ast.TypeExpr) types.AType {
	if te == nil { return types.Void }
	span := diag.At(te.Tok)

	elem := func(kind ast.TypeExprKind) (types.Pri, bool) {
		if kind == ast.TypeStruct { return types.OpaqueStructPri(te.Name), true }
		ty, ok := namedTypes[te.Name]
		if !ok || !ty.IsPri() {
			a.errorf(diag.UnknownType, span, "unknown element type '%s'", te.Name)
			return types.Pri{}, false
		}
		return ty.Elem, true
	}

	switch te.Kind {
	case ast.TypeNamed:
		if ty, ok := namedTypes[te.Name]; ok { return ty }
		a.errorf(diag.UnknownType, span, "unknown type '%s'", te.Name)
	case ast.TypeStruct:
		return types.OpaqueStruct(te.Name)
	case ast.TypeArray:
		if p, ok := elem(te.Elem); ok { return types.Array(p, te.Dims) }
	case ast.TypeAssoc:
		if p, ok := elem(te.Elem); ok { return types.Assoc(p) }
	default:
		panic(fmt.Sprintf("sema: unhandled type expression kind %d", te.Kind))
	}
	return types.Placeholder
}
