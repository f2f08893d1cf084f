package mir

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/minghu6/bas/pkg/types"
)

func TestAllocTableTags(t *testing.T) {
	a := NewAllocTable()
	if tag := a.NextTag("x"); tag != 0 {
		t.Fatalf("first tag = %d, want 0", tag)
	}
	a.Add(VarKey{"x", 0}, types.I32)
	a.Add(VarKey{"y", 0}, types.F64)
	a.Add(VarKey{"x", 1}, types.Str)
	if tag := a.NextTag("x"); tag != 2 {
		t.Fatalf("next tag of x = %d, want 2", tag)
	}
	if tag := a.NextTag("y"); tag != 1 {
		t.Fatalf("next tag of y = %d, want 1", tag)
	}
	want := []VarKey{{"x", 0}, {"y", 0}, {"x", 1}}
	if diff := cmp.Diff(want, a.Keys()); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
	a.SetType(VarKey{"x", 0}, types.F64)
	if ty, _ := a.Type(VarKey{"x", 0}); ty != types.F64 {
		t.Fatalf("x.0 type = %s after SetType", ty)
	}
}

func TestAllocTwicePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic on double allocation")
		}
	}()
	a := NewAllocTable()
	a.Add(VarKey{"x", 0}, types.I32)
	a.Add(VarKey{"x", 0}, types.I32)
}

func TestAttrSet(t *testing.T) {
	var s AttrSet
	if s.Add(AttrNoMangle) {
		t.Fatal("first add reported a duplicate")
	}
	if !s.Add(AttrNoMangle) {
		t.Fatal("second add should report a duplicate")
	}
	if !s.Has(AttrNoMangle) || s.Has(AttrVarArg) {
		t.Fatalf("unexpected set %08b", s)
	}
}

func TestFindFuncOrder(t *testing.T) {
	core := &ExtModule{Name: "core", Fns: map[string]*FnDecl{
		"puts": {Kind: External, Base: "puts", Identity: "puts", Symbol: "core_puts"},
		"exit": {Kind: External, Base: "exit", Identity: "exit", Symbol: "exit"},
	}}
	m := NewModule("t", NewExtSymSet(core))
	m.AddExtern(&FnDecl{Kind: External, Base: "puts", Identity: "puts", Symbol: "puts"})
	m.AddDef(&FnDecl{Kind: Definition, Base: "puts", Identity: "puts", Symbol: "puts", Scope: 1})

	if fn := m.FindFunc("puts"); fn.Kind != Definition {
		t.Fatalf("definitions must win, got %+v", fn)
	}
	if fn := m.FindFunc("exit"); fn == nil || fn.Symbol != "exit" {
		t.Fatalf("expected exit from the external set, got %+v", fn)
	}
	if fn := m.FindFunc("nope"); fn != nil {
		t.Fatalf("unexpected hit %+v", fn)
	}
	if m.Allocs["puts"] == nil {
		t.Fatal("a definition must get an allocation table")
	}
}

func TestLoopType(t *testing.T) {
	cases := []struct {
		c    BreakCapture
		want types.AType
	}{
		{BreakCapture{}, types.Never},
		{BreakCapture{Count: 2}, types.Void},
		{BreakCapture{Count: 1, Valued: true, Type: types.I32}, types.I32},
	}
	for _, tc := range cases {
		if got := tc.c.LoopType(); got != tc.want {
			t.Errorf("%+v: LoopType = %s, want %s", tc.c, got, tc.want)
		}
	}
}

func TestScopeBindings(t *testing.T) {
	m := NewModule("t", nil)
	idx := m.NewScope(0)
	s := m.Scopes[idx]
	if s.Parent != 0 || m.Root().Parent != -1 {
		t.Fatalf("unexpected parents %d %d", s.Parent, m.Root().Parent)
	}
	s.Explicit = append(s.Explicit, Binding{Name: "x", Tag: 0, Type: types.I32}, Binding{Name: "x", Tag: 1, Type: types.F64})
	if b, _ := s.FindExplicit("x"); b.Tag != 1 {
		t.Fatalf("the most recent binding must win, got tag %d", b.Tag)
	}
	s.Push(MIR{Name: TempName(0), Kind: ValBind, Type: types.I32, Val: IntConst{Value: 1}})
	s.Push(MIR{Name: "x", Tag: 0, Kind: VarAssign, Type: types.I32, Val: Alias{Sym: TempName(0)}})
	if mir, ok := s.Lookup(TempName(0)); !ok || mir.Val != (IntConst{Value: 1}) {
		t.Fatalf("lookup of the temporary failed: %+v", mir)
	}
	if _, ok := s.Lookup("x"); ok {
		t.Fatal("variable assigns must not be indexed as temporaries")
	}
	if !IsTemp(TempName(3)) || IsTemp("x") {
		t.Fatal("IsTemp mismatch")
	}
}

func TestScopeOfPanicsOnPlainValue(t *testing.T) {
	if got := ScopeOf(InfiLoop{Scope: 4}); got != 4 {
		t.Fatalf("ScopeOf = %d", got)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic")
		}
	}()
	ScopeOf(IntConst{Value: 1})
}

func TestDump(t *testing.T) {
	m := NewModule("t", nil)
	body := m.NewScope(0)
	fn := &FnDecl{Kind: Definition, Base: "one", Identity: "one@", Symbol: "one@", Ret: types.I32, Scope: body}
	m.AddDef(fn)
	s := m.Scopes[body]
	tmp := TempName(0)
	s.Push(MIR{Name: tmp, Kind: ValBind, Type: types.I32, Val: IntConst{Value: 1}})
	s.Push(MIR{Name: TempName(1), Kind: ValBind, Type: types.Never, Val: Return{Value: tmp}})
	m.Root().Push(MIR{Name: fn.Identity, Kind: ValBind, Type: types.Void, Val: DefFn{Name: fn.Identity, Scope: body}})

	var buf bytes.Buffer
	m.Dump(&buf)
	want := "fn one@() -> i32 {\n  !__tmp_0: i32 = 1\n  !__tmp_1: never = return !__tmp_0\n}\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Fatalf("dump mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(IfBlock{Arms: []IfArm{{Cond: "c", Scope: 2}}, Else: 3}.String(), "else scope#3") {
		t.Fatal("if rendering lost the else arm")
	}
}
