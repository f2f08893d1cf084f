// Package mangle encodes a function's base name and parameter types into a
// single overload identity of the form base@t1#t2#...
package mangle

import (
	"strconv"
	"strings"

	"fortio.org/safecast"
	"github.com/minghu6/bas/pkg/types"
)

const (
	baseSep  = "@"
	paramSep = "#"
)

// TypeIdent renders the identifier of one type inside a mangled name.
func TypeIdent(t types.AType) string {
	switch t.Kind {
	case types.KindPri:
		return priIdent(t.Elem)
	case types.KindArr:
		return strings.Repeat("[", t.Dims) + priIdent(t.Elem) + strings.Repeat("]", t.Dims)
	case types.KindAA:
		return "<" + priIdent(t.Elem) + ">"
	case types.KindVoid:
		return "()"
	case types.KindNever:
		return "!"
	}
	return "?"
}

func priIdent(p types.Pri) string {
	switch p.Kind {
	case types.PriFloat:
		return "f" + strconv.Itoa(int(p.Width)*8)
	case types.PriInt:
		if p.Width < 0 { return "i" + strconv.Itoa(-int(p.Width)*8) }
		return "u" + strconv.Itoa(int(p.Width)*8)
	case types.PriPointer:
		return "ptr"
	case types.PriOpaqueStruct:
		return "{" + p.Name + "}"
	}
	return "?"
}

// Mangle builds the overload identity of base called with tys.
func Mangle(base string, tys []types.AType) string {
	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString(baseSep)
	for i, t := range tys {
		if i > 0 {
			sb.WriteString(paramSep)
		}
		sb.WriteString(TypeIdent(t))
	}
	return sb.String()
}

// Unmangle recovers the base name and parameter types from a mangled
// identity. It reports false for names Mangle cannot have produced.
func Unmangle(name string) (string, []types.AType, bool) {
	base, postfix, found := strings.Cut(name, baseSep)
	if !found || base == "" || strings.Contains(postfix, baseSep) { return "", nil, false }
	if postfix == "" { return base, []types.AType{}, true }

	parts := strings.Split(postfix, paramSep)
	tys := make([]types.AType, 0, len(parts))
	for _, part := range parts {
		t, ok := ParseTypeIdent(part)
		if !ok { return "", nil, false }
		tys = append(tys, t)
	}
	return base, tys, true
}

// ParseTypeIdent is the inverse of TypeIdent for the types Mangle can encode.
func ParseTypeIdent(s string) (types.AType, bool) {
	switch {
	case s == "()":
		return types.Void, true
	case s == "!":
		return types.Never, true
	case strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">"):
		p, ok := parsePri(s[1 : len(s)-1])
		if !ok { return types.AType{}, false }
		return types.Assoc(p), true
	case strings.HasPrefix(s, "["):
		dims := len(s) - len(strings.TrimLeft(s, "["))
		inner := s[dims:]
		if len(inner) < dims || strings.TrimLeft(inner[len(inner)-dims:], "]") != "" { return types.AType{}, false }
		p, ok := parsePri(inner[:len(inner)-dims])
		if !ok { return types.AType{}, false }
		return types.Array(p, dims), true
	}
	p, ok := parsePri(s)
	if !ok { return types.AType{}, false }
	return types.Primitive(p), true
}

func parsePri(s string) (types.Pri, bool) {
	if s == "ptr" { return types.PointerPri(), true }
	if len(s) >= 2 && s[0] == '{' && s[len(s)-1] == '}' {
		name := s[1 : len(s)-1]
		if name == "" || strings.ContainsAny(name, "{}") { return types.Pri{}, false }
		return types.OpaqueStructPri(name), true
	}
	if len(s) < 2 { return types.Pri{}, false }
	bits, err := strconv.Atoi(s[1:])
	if err != nil || bits <= 0 || bits%8 != 0 {
		return types.Pri{}, false
	}
	width, err := safecast.Conv[int8](bits / 8)
	if err != nil {
		return types.Pri{}, false
	}
	switch s[0] {
	case 'i':
		return types.IntPri(-width), true
	case 'u':
		return types.IntPri(width), true
	case 'f':
		return types.FloatPri(width), true
	}
	return types.Pri{}, false
}
