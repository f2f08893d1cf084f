package mir

import (
	"fmt"
	"io"
	"strings"
)

// Dump writes a readable rendering of every function in the module.
func (m *Module) Dump(w io.Writer) {
	for _, fn := range m.Externs {
		fmt.Fprintf(w, "extern %s%s -> %s = %s\n", fn.Identity, paramList(fn), fn.Ret, fn.Symbol)
	}
	for _, mir := range m.Root().Mirs {
		def, ok := mir.Val.(DefFn)
		if !ok {
			continue
		}
		fn := m.Def(def.Name)
		fmt.Fprintf(w, "fn %s%s -> %s {\n", def.Name, paramList(fn), fn.Ret)
		m.dumpScope(w, def.Scope, 1)
		fmt.Fprintln(w, "}")
	}
}

func paramList(fn *FnDecl) string {
	parts := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		if p.Name == "" {
			parts[i] = p.Type.String()
		} else {
			parts[i] = p.Name + ": " + p.Type.String()
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (m *Module) dumpScope(w io.Writer, idx, depth int) {
	indent := strings.Repeat("  ", depth)
	s := m.Scopes[idx]
	for _, mir := range s.Mirs {
		switch mir.Kind {
		case ValBind:
			fmt.Fprintf(w, "%s%s: %s = %s\n", indent, mir.Name, mir.Type, mir.Val)
		case VarAssign:
			fmt.Fprintf(w, "%s%s.%d: %s <- %s\n", indent, mir.Name, mir.Tag, mir.Type, mir.Val)
		}
		m.dumpNested(w, mir.Val, depth+1)
	}
	if s.Tail != "" {
		fmt.Fprintf(w, "%s=> %s: %s\n", indent, s.Tail, s.TailType)
	}
}

func (m *Module) dumpNested(w io.Writer, v Val, depth int) {
	switch v := v.(type) {
	case IfBlock:
		for _, arm := range v.Arms {
			m.dumpHeader(w, arm.Scope, depth)
		}
		if v.Else >= 0 {
			m.dumpHeader(w, v.Else, depth)
		}
	case InfiLoop:
		m.dumpHeader(w, v.Scope, depth)
	case BlockExpr:
		m.dumpHeader(w, v.Scope, depth)
	}
}

func (m *Module) dumpHeader(w io.Writer, idx, depth int) {
	fmt.Fprintf(w, "%sscope#%d:\n", strings.Repeat("  ", depth-1), idx)
	m.dumpScope(w, idx, depth)
}
