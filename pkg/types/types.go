// Package types implements the bas type lattice: primitive and composite
// types, operator unification and the implicit cast rule.
package types

import (
	"cmp"
	"fmt"
	"strings"
)

type Kind int

const (
	KindPri Kind = iota
	KindArr
	KindAA
	KindVoid
	KindNever
	KindPlaceholder
)

type PriKind int

const (
	PriFloat PriKind = iota
	PriInt
	PriPointer
	PriOpaqueStruct
)

// Pri is a primitive type. Width is in bytes; a negative integer width
// encodes a signed integer.
type Pri struct {
	Kind  PriKind
	Width int8
	Name  string
}

// AType is comparable and can be used directly as a map key.
type AType struct {
	Kind Kind
	Elem Pri // primitive itself, or the element of an array/associative array
	Dims int // array dimensions
}

func FloatPri(width int8) Pri            { return Pri{Kind: PriFloat, Width: width} }
func IntPri(width int8) Pri              { return Pri{Kind: PriInt, Width: width} }
func PointerPri() Pri                    { return Pri{Kind: PriPointer} }
func OpaqueStructPri(name string) Pri    { return Pri{Kind: PriOpaqueStruct, Name: name} }
func Primitive(p Pri) AType              { return AType{Kind: KindPri, Elem: p} }
func Array(elem Pri, dims int) AType     { return AType{Kind: KindArr, Elem: elem, Dims: dims} }
func Assoc(elem Pri) AType               { return AType{Kind: KindAA, Elem: elem} }
func Float(width int8) AType             { return Primitive(FloatPri(width)) }
func Int(width int8) AType               { return Primitive(IntPri(width)) }
func OpaqueStruct(name string) AType     { return Primitive(OpaqueStructPri(name)) }

var (
	Void        = AType{Kind: KindVoid}
	Never       = AType{Kind: KindNever}
	Placeholder = AType{Kind: KindPlaceholder}
	I32         = Int(-4)
	F64         = Float(8)
	Bool        = Int(1)
	Str         = Primitive(PointerPri())
)

func (t AType) IsPri() bool         { return t.Kind == KindPri }
func (t AType) IsPlaceholder() bool { return t.Kind == KindPlaceholder }
func (t AType) IsVoid() bool        { return t.Kind == KindVoid }
func (t AType) IsNever() bool       { return t.Kind == KindNever }

// IsUnit reports whether a value of t carries no data (Void or Never).
func (t AType) IsUnit() bool { return t.Kind == KindVoid || t.Kind == KindNever }

func (t AType) IsInt() bool     { return t.Kind == KindPri && t.Elem.Kind == PriInt }
func (t AType) IsFloat() bool   { return t.Kind == KindPri && t.Elem.Kind == PriFloat }
func (t AType) IsPointer() bool { return t.Kind == KindPri && t.Elem.Kind == PriPointer }

// IsSigned is only meaningful for integers.
func (t AType) IsSigned() bool { return t.IsInt() && t.Elem.Width < 0 }

// Size is the byte width of a primitive scalar; every reference-like type
// (pointers, structs, arrays, associative arrays) is reported as 0 so callers
// can substitute the target word size.
func (t AType) Size() int {
	if t.Kind != KindPri {
		return 0
	}
	switch t.Elem.Kind {
	case PriInt, PriFloat:
		w := int(t.Elem.Width)
		if w < 0 { return -w }
		return w
	}
	return 0
}

func (p Pri) String() string {
	switch p.Kind {
	case PriFloat:
		return fmt.Sprintf("f%d", int(p.Width)*8)
	case PriInt:
		if p.Width < 0 { return fmt.Sprintf("i%d", -int(p.Width)*8) }
		return fmt.Sprintf("u%d", int(p.Width)*8)
	case PriPointer:
		return "str"
	case PriOpaqueStruct:
		return "{" + p.Name + "}"
	}
	return "?"
}

func (t AType) String() string {
	switch t.Kind {
	case KindPri:
		if t.Elem == IntPri(1) { return "bool" }
		return t.Elem.String()
	case KindArr:
		return strings.Repeat("[", t.Dims) + t.Elem.String() + strings.Repeat("]", t.Dims)
	case KindAA:
		return "<" + t.Elem.String() + ">"
	case KindVoid:
		return "void"
	case KindNever:
		return "never"
	case KindPlaceholder:
		return "_"
	}
	return "?"
}

// ComparePri orders primitives by kind, then width, then name.
func ComparePri(a, b Pri) int {
	if c := cmp.Compare(a.Kind, b.Kind); c != 0 { return c }
	if c := cmp.Compare(a.Width, b.Width); c != 0 { return c }
	return cmp.Compare(a.Name, b.Name)
}

// Compare is a total order over types.
func Compare(a, b AType) int {
	if c := cmp.Compare(a.Kind, b.Kind); c != 0 { return c }
	if c := ComparePri(a.Elem, b.Elem); c != 0 { return c }
	return cmp.Compare(a.Dims, b.Dims)
}

// CompareList orders type lists lexicographically, shorter first on a tie.
func CompareList(a, b []AType) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := Compare(a[i], b[i]); c != 0 { return c }
	}
	return cmp.Compare(len(a), len(b))
}

// FormatList renders a parameter/argument type list as "(a, b)".
func FormatList(tys []AType) string {
	parts := make([]string, len(tys))
	for i, t := range tys {
		parts[i] = t.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
