package codegen

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/minghu6/bas/pkg/config"
	"github.com/minghu6/bas/pkg/corelib"
	"github.com/minghu6/bas/pkg/diag"
	"github.com/minghu6/bas/pkg/lexer"
	"github.com/minghu6/bas/pkg/mir"
	"github.com/minghu6/bas/pkg/parser"
	"github.com/minghu6/bas/pkg/sema"
)

// emit analyzes src and returns the textual IR of the given backend.
func emit(t *testing.T, src, backend string) string {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Backend = backend
	file := diag.SourceFile{Name: "t.bas", Content: src}
	toks, err := lexer.Tokenize(file, cfg)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	tree, err := parser.ParseFile(file, toks)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	a := sema.New(file, cfg, mir.NewExtSymSet(corelib.New()))
	items, err := a.Collect(tree)
	if err == nil {
		err = a.Lower(items)
	}
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}

	buf, err := Generate(a.Module(), cfg, true)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return buf.String()
}

func wantContains(t *testing.T, out string, parts ...string) {
	t.Helper()
	for _, p := range parts {
		if !strings.Contains(out, p) {
			t.Errorf("output lacks %q:\n%s", p, out)
		}
	}
}

func TestQBEStraightLine(t *testing.T) {
	out := emit(t, `fn add(a: int, b: int) -> int { a + b }`, config.BackendQBE)
	wantContains(t, out,
		"export function w $add.i32.i32(w %p0, w %p1) {\n@start\n",
		"\talloc4 4\n",
		"\tstorew %p0, %t0\n",
		"\t%t4 =w add %t2, %t3\n",
		"\tjmp @b1\n@b1\n\tret %t4\n",
	)
}

func TestQBEIfMergesThroughPhi(t *testing.T) {
	out := emit(t, `fn max(a: int, b: int) -> int { if a > b { a } else { b } }`, config.BackendQBE)
	wantContains(t, out, "=w csgtw ", "\tjnz %t", "=w phi @b")
	if n := strings.Count(out, "\tret "); n != 1 {
		t.Errorf("want a single ret, got %d:\n%s", n, out)
	}
}

func TestQBEWhileLoop(t *testing.T) {
	out := emit(t, `fn count(n: int) -> int {
	let i = 0;
	while i < n { i = i + 1; }
	i
}`, config.BackendQBE)
	wantContains(t, out, "=w csltw ", "\tjnz ", "\tjmp @b1\n")
}

func TestQBEUnsignedOps(t *testing.T) {
	out := emit(t, `fn f(a: u8, b: u8) -> u8 { a / b }`, config.BackendQBE)
	wantContains(t, out, "loadub", "=w udiv ", "=w extub ", "storeb %p0, ")
}

func TestQBEVariadicCall(t *testing.T) {
	out := emit(t, `fn main() { raw#printf("%d\n", 1); }`, config.BackendQBE)
	wantContains(t, out,
		"export function $main(...) {",
		"call $printf(l $str.0, ..., w 1)\n",
		"\tret\n",
	)
}

func TestQBEStringData(t *testing.T) {
	b := NewQBEBackend(8).(*qbeBackend)
	first := b.StrConst("hi\n\"")
	if again := b.StrConst("hi\n\""); again != first {
		t.Errorf("equal strings should share one data item")
	}
	want := "data $str.0 = { b \"hi\", b 10, b 34, b 0 }\n"
	if diff := cmp.Diff(want, b.IR()); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestQBESymbols(t *testing.T) {
	tests := map[string]string{
		"main":              "main",
		"add@i32#i32":       "add.i32.i32",
		"len@[ptr]":         "len.Aptr",
		"get@<i32>#{file}": "get.Mi32.Sfile",
	}
	for in, want := range tests {
		if got := qbeSymbol(in); got != want {
			t.Errorf("qbeSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLLVMStraightLine(t *testing.T) {
	out := emit(t, `fn add(a: int, b: int) -> int { a + b }`, config.BackendLLVM)
	wantContains(t, out, "define i32 @", "alloca i32", "add i32 ", "ret i32 ")
}

func TestLLVMIfMergesThroughPhi(t *testing.T) {
	out := emit(t, `fn max(a: int, b: int) -> int { if a > b { a } else { b } }`, config.BackendLLVM)
	wantContains(t, out, "icmp sgt i32 ", "zext i1 ", "icmp ne i8 ", "br i1 ", "phi i32 ")
}

func TestLLVMCasts(t *testing.T) {
	out := emit(t, `fn f(a: int, b: u8) -> float { let c = b as i64; a as float }`, config.BackendLLVM)
	wantContains(t, out, "zext i8 ", "sitofp i32 ")
}

func TestLLVMEntryAndStrings(t *testing.T) {
	out := emit(t, `fn main() { raw#printf("hi\n"); }`, config.BackendLLVM)
	wantContains(t, out,
		"define void @main(...)",
		"declare i32 @printf(i8*",
		"= private constant [",
		"ret void",
	)
}

// resultsOf returns the result names of the instructions whose line contains
// marker, in the order they appear.
func resultsOf(out, marker string) []string {
	var names []string
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, marker) {
			continue
		}
		if lhs, _, ok := strings.Cut(strings.TrimSpace(line), " ="); ok {
			names = append(names, lhs)
		}
	}
	return names
}

func linesWith(out, marker string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, marker) {
			lines = append(lines, line)
		}
	}
	return lines
}

const (
	earlyReturn = `fn pick(a: int) -> int { if a > 0 { return 1; } 2 }`
	breakValues = `fn first(n: int) -> int {
	let i = 0;
	loop {
		if i > n { break i; }
		if i == 5 { break 0; }
		i = i + 1;
	}
}`
	shadowedLet = `fn c() -> int { let x = 1; x = 2; let x = 3; x }`
)

func TestQBEReturnsMergeInOneBlock(t *testing.T) {
	out := emit(t, earlyReturn, config.BackendQBE)
	phis := linesWith(out, " phi ")
	if len(phis) != 1 || strings.Count(phis[0], "@b") != 2 {
		t.Fatalf("want one phi over both returns, got %q:\n%s", phis, out)
	}
	if n := strings.Count(out, "\tret "); n != 1 {
		t.Errorf("want a single ret, got %d:\n%s", n, out)
	}
}

func TestQBEBreaksShareTheLoopExit(t *testing.T) {
	out := emit(t, breakValues, config.BackendQBE)
	phis := linesWith(out, " phi ")
	if len(phis) != 1 || strings.Count(phis[0], "@b") != 2 {
		t.Fatalf("want one phi over both breaks, got %q:\n%s", phis, out)
	}
	if n := strings.Count(out, "\tret "); n != 1 {
		t.Errorf("want a single ret, got %d:\n%s", n, out)
	}
}

func TestQBEShadowedLetsKeepSeparateSlots(t *testing.T) {
	out := emit(t, shadowedLet, config.BackendQBE)
	slots := resultsOf(out, " alloc4 ")
	if len(slots) != 2 {
		t.Fatalf("want two stack slots, got %v:\n%s", slots, out)
	}
	wantContains(t, out,
		"storew 1, "+slots[0]+"\n",
		"storew 2, "+slots[0]+"\n",
		"storew 3, "+slots[1]+"\n",
		"loadw "+slots[1]+"\n",
	)
	for _, bad := range []string{"storew 1, " + slots[1], "storew 2, " + slots[1], "storew 3, " + slots[0]} {
		if strings.Contains(out, bad) {
			t.Errorf("store crosses slots: %q\n%s", bad, out)
		}
	}
}

func TestLLVMReturnsMergeInOneBlock(t *testing.T) {
	out := emit(t, earlyReturn, config.BackendLLVM)
	phis := linesWith(out, " phi i32 ")
	if len(phis) != 1 || strings.Count(phis[0], "], [") != 1 {
		t.Fatalf("want one phi over both returns, got %q:\n%s", phis, out)
	}
	if n := strings.Count(out, "ret i32 "); n != 1 {
		t.Errorf("want a single ret, got %d:\n%s", n, out)
	}
}

func TestLLVMBreaksShareTheLoopExit(t *testing.T) {
	out := emit(t, breakValues, config.BackendLLVM)
	phis := linesWith(out, " phi i32 ")
	if len(phis) != 1 || strings.Count(phis[0], "], [") != 1 {
		t.Fatalf("want one phi over both breaks, got %q:\n%s", phis, out)
	}
	if n := strings.Count(out, "ret i32 "); n != 1 {
		t.Errorf("want a single ret, got %d:\n%s", n, out)
	}
}

func TestLLVMShadowedLetsKeepSeparateSlots(t *testing.T) {
	out := emit(t, shadowedLet, config.BackendLLVM)
	slots := resultsOf(out, " = alloca i32")
	if len(slots) != 2 {
		t.Fatalf("want two stack slots, got %v:\n%s", slots, out)
	}
	wantContains(t, out,
		"store i32 1, i32* "+slots[0]+"\n",
		"store i32 2, i32* "+slots[0]+"\n",
		"store i32 3, i32* "+slots[1]+"\n",
		"load i32, i32* "+slots[1]+"\n",
	)
	for _, bad := range []string{"store i32 1, i32* " + slots[1], "store i32 2, i32* " + slots[1], "store i32 3, i32* " + slots[0]} {
		if strings.Contains(out, bad+"\n") {
			t.Errorf("store crosses slots: %q\n%s", bad, out)
		}
	}
}
