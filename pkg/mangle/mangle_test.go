package mangle

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/minghu6/bas/pkg/types"
)

func TestMangleFormat(t *testing.T) {
	got := Mangle("vec_push", []types.AType{types.Array(types.IntPri(-4), 1), types.I32})
	if want := "vec_push@[i32]#i32"; got != want {
		t.Fatalf("Mangle = %q, want %q", got, want)
	}
	got = Mangle("f", []types.AType{types.Int(1), types.Float(4), types.Str, types.OpaqueStruct("FILE"), types.Assoc(types.FloatPri(8))})
	if want := "f@u8#f32#ptr#{FILE}#<f64>"; got != want {
		t.Fatalf("Mangle = %q, want %q", got, want)
	}
	if got := Mangle("main", nil); got != "main@" {
		t.Fatalf("Mangle with no params = %q", got)
	}
}

func TestRoundTrip(t *testing.T) {
	lists := [][]types.AType{
		{types.I32},
		{types.F64, types.I32},
		{types.Int(8), types.Int(-2), types.Int(1), types.Float(4)},
		{types.Str, types.OpaqueStruct("FILE")},
		{types.Array(types.IntPri(-4), 1), types.Array(types.PointerPri(), 3)},
		{types.Assoc(types.IntPri(-4)), types.Array(types.OpaqueStructPri("Node"), 2)},
		{},
	}
	for _, tys := range lists {
		name := Mangle("g", tys)
		base, back, ok := Unmangle(name)
		if !ok {
			t.Fatalf("Unmangle(%q) failed", name)
		}
		if base != "g" {
			t.Fatalf("Unmangle(%q) base = %q", name, base)
		}
		if diff := cmp.Diff(tys, back); diff != "" {
			t.Fatalf("round trip of %q mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestDistinctOverloads(t *testing.T) {
	a := Mangle("g", []types.AType{types.I32})
	b := Mangle("g", []types.AType{types.F64})
	if a == b {
		t.Fatalf("overloads collide: %q", a)
	}
}

func TestUnmangleRejects(t *testing.T) {
	for _, name := range []string{"printf", "g@x32", "g@i7", "@i32", "g@[i32", "g@[i32]]", "g@i32#", "g@{}", "a@b@i32"} {
		if _, _, ok := Unmangle(name); ok {
			t.Fatalf("Unmangle(%q) should fail", name)
		}
	}
}
