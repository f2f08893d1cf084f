package sema

import (
	"github.com/minghu6/bas/pkg/ast"
	"github.com/minghu6/bas/pkg/config"
	"github.com/minghu6/bas/pkg/diag"
	"github.com/minghu6/bas/pkg/mangle"
	"github.com/minghu6/bas/pkg/mir"
	"github.com/minghu6/bas/pkg/types"
)

// Collect is Pass 1: it registers every function header in the module and
// returns the definitions whose bodies Pass 2 must lower.
func (a *Analyzer) Collect(file *ast.Node) ([]Item, error) {
	var items []Item
	for _, node := range file.Data.(ast.FileNode).Items {
		if node.Type != ast.FuncDecl {
			continue
		}
		if item, ok := a.collectFn(node); ok {
			items = append(items, item)
		}
	}
	return items, a.finish()
}

func (a *Analyzer) collectFn(node *ast.Node) (Item, bool) {
	d := node.Data.(ast.FuncDeclNode)
	span := diag.At(node.Tok)

	fn := &mir.FnDecl{Base: d.Name, Span: span, Scope: -1}
	for _, attr := range d.Attrs {
		flag, ok := mir.AttrNames[attr.Value]
		if !ok {
			a.errorf(diag.UnknownAttributeTag, diag.At(attr), "unknown attribute '@%s'", attr.Value)
			continue
		}
		if fn.Attrs.Add(flag) {
			a.errorf(diag.DuplicateAttribute, diag.At(attr), "attribute '@%s' applied more than once", attr.Value)
		}
	}
	if d.Name == a.cfg.Entry && a.cfg.IsFeatureEnabled(config.FeatImplicitEntry) {
		fn.Attrs.Add(mir.AttrNoMangle)
		fn.Attrs.Add(mir.AttrVarArg)
	}

	seen := make(map[string]bool)
	for _, p := range d.Params {
		ty := a.resolveType(p.Type)
		switch {
		case p.Name == "" && d.Body != nil:
			a.errorf(diag.MissingFormalParameter, diag.At(p.Tok), "parameter of type %s in the definition of '%s' has no name", ty, d.Name)
		case p.Name != "" && seen[p.Name]:
			a.errorf(diag.DuplicateDefinition, diag.At(p.Tok), "duplicate parameter '%s'", p.Name)
		}
		if ty.IsUnit() {
			a.errorf(diag.UnknownType, diag.At(p.Tok), "parameter cannot have type %s", ty)
			ty = types.Placeholder
		}
		seen[p.Name] = true
		fn.Params = append(fn.Params, mir.Param{Name: p.Name, Type: ty})
	}
	fn.Ret = a.resolveType(d.Ret)

	if fn.Attrs.Has(mir.AttrNoMangle) {
		fn.Identity = d.Name
	} else {
		fn.Identity = mangle.Mangle(d.Name, fn.ParamTypes())
	}

	if a.mod.FindFunc(fn.Identity) != nil {
		a.errorf(diag.DuplicateDefinition, span, "duplicate definition of '%s'", describeFn(fn))
		return Item{}, false
	}

	if d.Body == nil {
		fn.Kind, fn.Symbol = mir.External, d.Name
		a.mod.AddExtern(fn)
		return Item{}, false
	}
	fn.Kind, fn.Symbol = mir.Definition, fn.Identity
	a.mod.AddDef(fn)
	return Item{Fn: fn, Decl: d}, true
}

// describeFn renders a function the way a user would write a call to it.
func describeFn(fn *mir.FnDecl) string {
	return fn.Base + types.FormatList(fn.ParamTypes())
}
