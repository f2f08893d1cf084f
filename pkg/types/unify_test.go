package types

import (
	"errors"
	"testing"
)

var numericOps = []Op{OpAdd, OpSub, OpMul, OpDiv, OpRem, OpEq, OpNeq, OpLt, OpLe, OpGt, OpGe}

func TestUnifyFloatIntCommutes(t *testing.T) {
	for _, op := range numericOps {
		a, err := Unify(op, F64, I32)
		if err != nil {
			t.Fatalf("%s: unify(f64, i32): %v", op, err)
		}
		b, err := Unify(op, I32, F64)
		if err != nil {
			t.Fatalf("%s: unify(i32, f64): %v", op, err)
		}
		if a != F64 || b != F64 {
			t.Fatalf("%s: expected f64 both ways, got %s and %s", op, a, b)
		}
	}
	if got, _ := Unify(OpAdd, Float(4), Int(1)); got != F64 {
		t.Fatalf("f32 + u8 should widen to f64, got %s", got)
	}
}

func TestUnifyIntWidths(t *testing.T) {
	cases := []struct {
		a, b, want AType
	}{
		{Int(-4), Int(-8), Int(-8)},
		{Int(4), Int(2), Int(4)},
		{Int(4), Int(-4), Int(-4)},
		{Int(-4), Int(4), Int(-4)},
		{Int(8), Int(-4), Int(8)},
		{Int(-1), Int(2), Int(2)},
		{Bool, I32, I32},
	}
	for _, tc := range cases {
		got, err := Unify(OpAdd, tc.a, tc.b)
		if err != nil {
			t.Fatalf("unify(%s, %s): %v", tc.a, tc.b, err)
		}
		if got != tc.want {
			t.Fatalf("unify(%s, %s) = %s, want %s", tc.a, tc.b, got, tc.want)
		}
		rev, _ := Unify(OpAdd, tc.b, tc.a)
		if rev != got {
			t.Fatalf("unify is not symmetric for %s, %s: %s vs %s", tc.a, tc.b, got, rev)
		}
	}
}

func TestUnifyPlaceholderAndIncompatible(t *testing.T) {
	if got, err := Unify(OpMul, Placeholder, Str); err != nil || got != Placeholder {
		t.Fatalf("placeholder should propagate, got %s, %v", got, err)
	}
	if got, err := Unify(OpEq, Str, Str); err != nil || got != Str {
		t.Fatalf("pointer == pointer should unify to pointer, got %s, %v", got, err)
	}
	bad := [][2]AType{
		{Str, I32},
		{F64, Str},
		{OpaqueStruct("FILE"), OpaqueStruct("FILE")},
		{Array(IntPri(-4), 1), I32},
		{Void, I32},
		{Never, Never},
	}
	for _, pair := range bad {
		if _, err := Unify(OpAdd, pair[0], pair[1]); !errors.Is(err, ErrIncompatible) {
			t.Fatalf("unify(%s, %s) should be incompatible, got %v", pair[0], pair[1], err)
		}
	}
}

func TestUnifyPanicsOnBitwise(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for shift operator")
		}
	}()
	_, _ = Unify(OpShl, I32, I32)
}

func TestUnifyInt(t *testing.T) {
	if got, err := UnifyInt(OpBitAnd, Int(1), Int(-8)); err != nil || got != Int(-8) {
		t.Fatalf("u8 & i64 = %s, %v", got, err)
	}
	if _, err := UnifyInt(OpShl, F64, I32); !errors.Is(err, ErrIncompatible) {
		t.Fatalf("float shift should be incompatible, got %v", err)
	}
}

func TestTryCast(t *testing.T) {
	ok := [][2]AType{
		{I32, I32},
		{Str, Str},
		{F64, I32},
		{I32, F64},
		{I32, Bool},
		{Float(4), F64},
		{Array(IntPri(-4), 2), Array(IntPri(-4), 2)},
	}
	for _, pair := range ok {
		if err := TryCast(pair[0], pair[1]); err != nil {
			t.Fatalf("cast %s -> %s: %v", pair[0], pair[1], err)
		}
	}
	bad := [][2]AType{
		{Str, I32},
		{I32, Str},
		{OpaqueStruct("a"), OpaqueStruct("b")},
		{Array(IntPri(-4), 1), Array(IntPri(-4), 2)},
		{Void, I32},
		{F64, Never},
	}
	for _, pair := range bad {
		if err := TryCast(pair[0], pair[1]); err == nil {
			t.Fatalf("cast %s -> %s should fail", pair[0], pair[1])
		}
	}
}

func TestCompareIsTotal(t *testing.T) {
	tys := []AType{Void, Never, Placeholder, I32, F64, Bool, Str, OpaqueStruct("x"), Array(IntPri(-4), 1), Assoc(FloatPri(8))}
	for _, a := range tys {
		for _, b := range tys {
			ab, ba := Compare(a, b), Compare(b, a)
			if ab != -ba {
				t.Fatalf("compare(%s, %s)=%d but compare(%s, %s)=%d", a, b, ab, b, a, ba)
			}
			if (ab == 0) != (a == b) {
				t.Fatalf("compare(%s, %s)=%d disagrees with ==", a, b, ab)
			}
		}
	}
}

func TestString(t *testing.T) {
	cases := map[AType]string{
		I32:                       "i32",
		Int(8):                    "u64",
		Bool:                      "bool",
		F64:                       "f64",
		Str:                       "str",
		OpaqueStruct("FILE"):      "{FILE}",
		Array(IntPri(-4), 2):        "[[i32]]",
		Assoc(PointerPri()):       "<str>",
		Void:                      "void",
	}
	for ty, want := range cases {
		if got := ty.String(); got != want {
			t.Fatalf("String() = %q, want %q", got, want)
		}
	}
}
