package types

import (
	"errors"
	"fmt"
)

type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpRem
	OpShl
	OpShr
	OpBitAnd
	OpBitOr
	OpBitXor
	OpEq
	OpNeq
	OpLt
	OpLe
	OpGt
	OpGe
)

var opNames = [...]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpRem: "%",
	OpShl: "<<", OpShr: ">>", OpBitAnd: "&", OpBitOr: "|", OpBitXor: "^",
	OpEq: "==", OpNeq: "!=", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=",
}

func (op Op) String() string {
	if op >= 0 && int(op) < len(opNames) { return opNames[op] }
	return fmt.Sprintf("Op(%d)", int(op))
}

func (op Op) IsArith() bool      { return op >= OpAdd && op <= OpRem }
func (op Op) IsBitwise() bool    { return op >= OpShl && op <= OpBitXor }
func (op Op) IsComparison() bool { return op >= OpEq && op <= OpGe }

// ErrIncompatible is returned when two types have no common type under an
// operator, or when a value cannot be cast.
var ErrIncompatible = errors.New("incompatible types")

// Unify computes the common type of t1 and t2 under an arithmetic or
// comparison operator. Routing any other operator here is a caller bug.
func Unify(op Op, t1, t2 AType) (AType, error) {
	if !op.IsArith() && !op.IsComparison() {
		panic(fmt.Sprintf("types: Unify called with non-numeric operator %s", op))
	}
	if t1.IsPlaceholder() || t2.IsPlaceholder() { return Placeholder, nil }
	if !t1.IsPri() || !t2.IsPri() { return Placeholder, ErrIncompatible }

	p1, p2 := t1.Elem, t2.Elem
	switch {
	case p1.Kind == PriFloat && p2.Kind == PriInt, p1.Kind == PriInt && p2.Kind == PriFloat:
		return F64, nil
	case p1.Kind == PriFloat && p2.Kind == PriFloat:
		if p2.Width > p1.Width { return t2, nil }
		return t1, nil
	case p1.Kind == PriInt && p2.Kind == PriInt:
		return Int(widerInt(p1.Width, p2.Width)), nil
	case p1.Kind == PriPointer && p2.Kind == PriPointer:
		return Str, nil
	}
	return Placeholder, ErrIncompatible
}

// UnifyInt computes the common type of integer operands of a shift or
// bitwise operator.
func UnifyInt(op Op, t1, t2 AType) (AType, error) {
	if !op.IsBitwise() {
		panic(fmt.Sprintf("types: UnifyInt called with non-bitwise operator %s", op))
	}
	if t1.IsPlaceholder() || t2.IsPlaceholder() { return Placeholder, nil }
	if !t1.IsInt() || !t2.IsInt() { return Placeholder, ErrIncompatible }
	return Int(widerInt(t1.Elem.Width, t2.Elem.Width)), nil
}

// widerInt picks the larger magnitude; on equal magnitude the signed
// (negative) encoding wins.
func widerInt(w1, w2 int8) int8 {
	m1, m2 := abs8(w1), abs8(w2)
	switch {
	case m1 > m2:
		return w1
	case m2 > m1:
		return w2
	}
	return min(w1, w2)
}

func abs8(w int8) int8 {
	if w < 0 { return -w }
	return w
}

// TryCast reports whether a value of type from may be converted to to.
func TryCast(from, to AType) error {
	if from == to { return nil }
	if !from.IsPri() || !to.IsPri() { return ErrIncompatible }
	switch fk, tk := from.Elem.Kind, to.Elem.Kind; {
	case fk == PriFloat && tk == PriInt, fk == PriInt && tk == PriFloat:
		return nil
	case fk == PriInt && tk == PriInt, fk == PriFloat && tk == PriFloat:
		return nil
	}
	return ErrIncompatible
}
