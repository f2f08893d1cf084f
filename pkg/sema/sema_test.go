package sema

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/minghu6/bas/pkg/config"
	"github.com/minghu6/bas/pkg/corelib"
	"github.com/minghu6/bas/pkg/diag"
	"github.com/minghu6/bas/pkg/lexer"
	"github.com/minghu6/bas/pkg/mangle"
	"github.com/minghu6/bas/pkg/mir"
	"github.com/minghu6/bas/pkg/parser"
	"github.com/minghu6/bas/pkg/types"
)

// run parses src and runs both passes, keeping the module even on failure.
func run(t *testing.T, src string, cfg *config.Config) (*mir.Module, []diag.Warning, error) {
	t.Helper()
	if cfg == nil {
		cfg = config.NewConfig()
	}
	file := diag.SourceFile{Name: "t.bas", Content: src}
	toks, err := lexer.Tokenize(file, cfg)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	tree, err := parser.ParseFile(file, toks)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	a := New(file, cfg, mir.NewExtSymSet(corelib.New()))
	items, err := a.Collect(tree)
	if err == nil {
		err = a.Lower(items)
	}
	return a.Module(), a.Warnings(), err
}

func mustRun(t *testing.T, src string) *mir.Module {
	t.Helper()
	mod, _, err := run(t, src, nil)
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	return mod
}

// reasons lists the diagnostic reasons of err in the order they were recorded.
func reasons(t *testing.T, err error) []diag.Reason {
	t.Helper()
	var de *diag.Error
	if !errors.As(err, &de) {
		t.Fatalf("expected a *diag.Error, got %v", err)
	}
	var out []diag.Reason
	for _, d := range de.Bag.Items() {
		out = append(out, d.Reason)
	}
	return out
}

func def(t *testing.T, mod *mir.Module, base string, params ...types.AType) *mir.FnDecl {
	t.Helper()
	fn := mod.Def(mangle.Mangle(base, params))
	if fn == nil {
		t.Fatalf("no definition of %s%s", base, types.FormatList(params))
	}
	return fn
}

// vals collects every value-expression recorded in any scope.
func vals(mod *mir.Module) []mir.MIR {
	var out []mir.MIR
	for _, s := range mod.Scopes {
		out = append(out, s.Mirs...)
	}
	return out
}

func count[V mir.Val](mirs []mir.MIR) int {
	n := 0
	for _, m := range mirs {
		if _, ok := m.Val.(V); ok {
			n++
		}
	}
	return n
}

func TestMixedArithmeticCastsOnce(t *testing.T) {
	mod := mustRun(t, `fn f(a: int, b: float) -> float { a + b }`)
	fn := def(t, mod, "f", types.I32, types.F64)
	body := mod.Scopes[fn.Scope].Mirs

	if n := count[mir.TypeCast](body); n != 1 {
		t.Fatalf("expected one cast, got %d", n)
	}
	if n := count[mir.BOp](body); n != 1 {
		t.Fatalf("expected one binary op, got %d", n)
	}
	last := body[len(body)-1]
	ret, ok := last.Val.(mir.Return)
	if !ok || ret.Value == "" || !last.Type.IsNever() {
		t.Fatalf("expected the body to end in a valued return, got %s", last.Val)
	}
	var bop mir.BOp
	for _, m := range body {
		if v, ok := m.Val.(mir.BOp); ok {
			bop = v
		}
	}
	if bop.OperandType != types.F64 {
		t.Fatalf("operands unified to %s, want f64", bop.OperandType)
	}
	if root := mod.Root().Mirs; len(root) != 1 || root[0].Val.(mir.DefFn).Scope != fn.Scope {
		t.Fatalf("root scope should hold the function marker, got %v", root)
	}
}

func TestOverloadsAndDuplicates(t *testing.T) {
	mod, _, err := run(t, `
fn g(x: int) -> int { x }
fn g(x: float) -> float { x }
fn g(y: int) -> int { y }
`, nil)
	if diff := cmp.Diff([]diag.Reason{diag.DuplicateDefinition}, reasons(t, err)); diff != "" {
		t.Fatalf("reasons mismatch (-want +got):\n%s", diff)
	}
	def(t, mod, "g", types.I32)
	def(t, mod, "g", types.F64)
	if got := len(mod.Defs); got != 2 {
		t.Fatalf("expected two definitions, got %d", got)
	}
}

func TestRuntimeNamesAreTaken(t *testing.T) {
	for _, src := range []string{
		`fn stringify_i32(x: i32) -> str { "a" }`,
		`fn strdup(s: str) -> str;`,
		`@no_mangle @vararg fn printf(str) -> i32;`,
	} {
		mod, _, err := run(t, src, nil)
		if diff := cmp.Diff([]diag.Reason{diag.DuplicateDefinition}, reasons(t, err)); diff != "" {
			t.Errorf("%s: reasons mismatch (-want +got):\n%s", src, diff)
		}
		if len(mod.Defs) != 0 || len(mod.Externs) != 0 {
			t.Errorf("%s: the clashing function was registered", src)
		}
	}
}

func TestShadowingAllocatesFreshTags(t *testing.T) {
	mod := mustRun(t, `fn h() -> int { let x = 1; let x = x + 1; x }`)
	fn := def(t, mod, "h")

	want := []mir.VarKey{{Name: "x", Tag: 0}, {Name: "x", Tag: 1}}
	if diff := cmp.Diff(want, mod.Allocs[fn.Identity].Keys()); diff != "" {
		t.Fatalf("allocations mismatch (-want +got):\n%s", diff)
	}

	var reads []mir.Var
	for _, m := range mod.Scopes[fn.Scope].Mirs {
		if v, ok := m.Val.(mir.Var); ok {
			reads = append(reads, v)
		}
	}
	if diff := cmp.Diff([]mir.Var{{Name: "x", Tag: 0}, {Name: "x", Tag: 1}}, reads); diff != "" {
		t.Fatalf("the initializer must read the outer x and the tail the inner one (-want +got):\n%s", diff)
	}
}

func TestLoopTypeFromBreak(t *testing.T) {
	mod := mustRun(t, `fn d(c: bool) -> int { loop { if c { break 1; } } }`)
	fn := def(t, mod, "d", types.Bool)

	var loop mir.MIR
	for _, m := range mod.Scopes[fn.Scope].Mirs {
		if _, ok := m.Val.(mir.InfiLoop); ok {
			loop = m
		}
	}
	if loop.Val == nil {
		t.Fatal("no loop in the function body")
	}
	if loop.Type != types.I32 {
		t.Fatalf("loop type = %s, want i32", loop.Type)
	}
	capture := mod.Scopes[mir.ScopeOf(loop.Val)].Break
	if capture.Count != 1 || !capture.Valued {
		t.Fatalf("unexpected break capture %+v", capture)
	}
}

func TestLoopWithoutBreakNeverReturns(t *testing.T) {
	mod := mustRun(t, `fn spin() -> int { loop { } }`)
	body := mod.Scopes[def(t, mod, "spin").Scope]
	if !body.TailType.IsNever() {
		t.Fatalf("tail type = %s, want never", body.TailType)
	}
	if n := count[mir.Return](body.Mirs); n != 0 {
		t.Fatalf("a diverging body needs no return, got %d", n)
	}
}

func TestAssignToNonLvalue(t *testing.T) {
	mod, _, err := run(t, `fn e() { 1 = 2; }`, nil)
	if diff := cmp.Diff([]diag.Reason{diag.AssignmentTargetNotLvalue}, reasons(t, err)); diff != "" {
		t.Fatalf("reasons mismatch (-want +got):\n%s", diff)
	}
	if n := count[mir.Assign](vals(mod)); n != 0 {
		t.Fatalf("no store may be emitted, got %d", n)
	}
}

func TestDiagnosticsAccumulate(t *testing.T) {
	_, _, err := run(t, `
fn m() -> int {
	let a = y;
	let b = 1 + "s";
	foo(1);
	0
}
`, nil)
	want := []diag.Reason{diag.UnresolvedSymbol, diag.IncompatibleOperandTypes, diag.NoMatchingFunctionOverload}
	if diff := cmp.Diff(want, reasons(t, err)); diff != "" {
		t.Fatalf("reasons mismatch (-want +got):\n%s", diff)
	}
}

func TestPlaceholderSuppressesCascades(t *testing.T) {
	_, _, err := run(t, `fn p() -> int { let a = y; let b = a * 2; b + 1 }`, nil)
	if diff := cmp.Diff([]diag.Reason{diag.UnresolvedSymbol}, reasons(t, err)); diff != "" {
		t.Fatalf("reasons mismatch (-want +got):\n%s", diff)
	}
}

func TestHeaderDiagnostics(t *testing.T) {
	_, _, err := run(t, `
@no_mangle @no_mangle fn a() { }
@inline fn b() { }
fn c(int) { }
fn d(x: int, x: int) { }
fn e(x: blob) { }
`, nil)
	want := []diag.Reason{
		diag.DuplicateAttribute,
		diag.UnknownAttributeTag,
		diag.MissingFormalParameter,
		diag.DuplicateDefinition,
		diag.UnknownType,
	}
	if diff := cmp.Diff(want, reasons(t, err)); diff != "" {
		t.Fatalf("reasons mismatch (-want +got):\n%s", diff)
	}
}

func TestEntryIsUnmangled(t *testing.T) {
	mod := mustRun(t, `fn main() { }`)
	fn := mod.Def("main")
	if fn == nil || !fn.Attrs.Has(mir.AttrNoMangle) || !fn.IsVarArg() {
		t.Fatalf("main should be registered unmangled and variadic, got %+v", fn)
	}
}

func TestIfArmsMustAgree(t *testing.T) {
	_, _, err := run(t, `fn i(c: bool) -> int { let v = if c { 1 } else { "no" }; v }`, nil)
	got := reasons(t, err)
	if len(got) == 0 || got[0] != diag.IncompatibleIfArmTypes {
		t.Fatalf("expected an if-arm mismatch first, got %v", got)
	}
}

func TestStatementIfArmsMustAgree(t *testing.T) {
	_, _, err := run(t, `fn i(c: bool) { if c { 1 } else { "no" }; }`, nil)
	if diff := cmp.Diff([]diag.Reason{diag.IncompatibleIfArmTypes}, reasons(t, err)); diff != "" {
		t.Fatalf("reasons mismatch (-want +got):\n%s", diff)
	}
	mustRun(t, `fn i(c: bool) { let x = 0; if c { x = 1; } else { x = 2; }; }`)
}

func TestIfWithDivergingArm(t *testing.T) {
	mod := mustRun(t, `fn i(c: bool) -> int { let v = if c { return 0; } else { 2 }; v }`)
	if n := count[mir.IfBlock](vals(mod)); n != 1 {
		t.Fatalf("expected one if block, got %d", n)
	}
}

func TestLogicalOperatorsDesugar(t *testing.T) {
	mod := mustRun(t, `fn l(a: bool, b: bool) -> bool { a && b || a }`)
	var ifs []mir.IfBlock
	for _, m := range vals(mod) {
		if v, ok := m.Val.(mir.IfBlock); ok {
			if m.Type != types.Bool {
				t.Fatalf("short circuit has type %s", m.Type)
			}
			ifs = append(ifs, v)
		}
	}
	if len(ifs) != 2 {
		t.Fatalf("expected two desugared ifs, got %d", len(ifs))
	}
	for _, blk := range ifs {
		if len(blk.Arms) != 1 || blk.Else < 0 {
			t.Fatalf("short circuit must have one arm and an else, got %s", blk)
		}
	}
}

func TestWhileDesugarsToLoop(t *testing.T) {
	mod := mustRun(t, `fn w(n: int) -> int { let i = 0; while i < n { i += 1; } i }`)
	fn := def(t, mod, "w", types.I32)

	var loop mir.MIR
	for _, m := range mod.Scopes[fn.Scope].Mirs {
		if _, ok := m.Val.(mir.InfiLoop); ok {
			loop = m
		}
	}
	if loop.Val == nil || loop.Type != types.Void {
		t.Fatalf("expected a void loop, got %+v", loop)
	}
	inner := mod.Scopes[mir.ScopeOf(loop.Val)]
	if inner.Break.Count != 1 {
		t.Fatalf("the exit arm should be the only break, got %d", inner.Break.Count)
	}
	if n := count[mir.IfBlock](inner.Mirs); n != 1 {
		t.Fatalf("expected the condition check inside the loop, got %d ifs", n)
	}
	if n := count[mir.Assign](vals(mod)); n != 1 {
		t.Fatalf("expected one store for i += 1, got %d", n)
	}
}

func TestValuedBreakInWhile(t *testing.T) {
	_, _, err := run(t, `fn w() { while true { break 1; } }`, nil)
	if diff := cmp.Diff([]diag.Reason{diag.UnmatchedAssignmentType}, reasons(t, err)); diff != "" {
		t.Fatalf("reasons mismatch (-want +got):\n%s", diff)
	}
}

func TestMixedBreaks(t *testing.T) {
	_, _, err := run(t, `fn b(c: bool) -> int { loop { if c { break; } break 2; } }`, nil)
	if diff := cmp.Diff([]diag.Reason{diag.UnmatchedAssignmentType}, reasons(t, err)); diff != "" {
		t.Fatalf("reasons mismatch (-want +got):\n%s", diff)
	}
}

func TestDeferredLetType(t *testing.T) {
	mod := mustRun(t, `fn l() -> float { let x; x = 1.5; x }`)
	fn := def(t, mod, "l")
	if ty, _ := mod.Allocs[fn.Identity].Type(mir.VarKey{Name: "x"}); ty != types.F64 {
		t.Fatalf("x should be fixed to f64 by its first assignment, got %s", ty)
	}

	_, _, err := run(t, `fn l() { let x; }`, nil)
	if diff := cmp.Diff([]diag.Reason{diag.UnknownType}, reasons(t, err)); diff != "" {
		t.Fatalf("reasons mismatch (-want +got):\n%s", diff)
	}
}

func TestReadBeforeDeferredTypeIsFixed(t *testing.T) {
	for _, src := range []string{
		`fn main() { let x; let y = x; x = 3; }`,
		`fn main() { let x; x++; x = 3; }`,
		`fn main() { let x; x += 1; x = 3; }`,
	} {
		_, _, err := run(t, src, nil)
		if diff := cmp.Diff([]diag.Reason{diag.UnknownType}, reasons(t, err)); diff != "" {
			t.Errorf("%s: reasons mismatch (-want +got):\n%s", src, diff)
		}
	}
}

func TestIncrementForms(t *testing.T) {
	mod := mustRun(t, `fn inc() -> int { let i = 0; let a = i++; let b = ++i; a + b }`)
	if n := count[mir.Assign](vals(mod)); n != 2 {
		t.Fatalf("expected two stores to i, got %d", n)
	}
	if n := count[mir.Alias](vals(mod)); n < 1 {
		t.Fatal("the postfix form should yield the old value through an alias")
	}
}

func TestCasts(t *testing.T) {
	mod := mustRun(t, `fn c(x: float) -> u8 { x as u8 }`)
	if n := count[mir.TypeCast](vals(mod)); n != 1 {
		t.Fatalf("expected one cast, got %d", n)
	}
	_, _, err := run(t, `fn c(x: str) -> int { x as int }`, nil)
	if diff := cmp.Diff([]diag.Reason{diag.UncastableType}, reasons(t, err)); diff != "" {
		t.Fatalf("reasons mismatch (-want +got):\n%s", diff)
	}
}

func TestReturnTypeMismatch(t *testing.T) {
	_, _, err := run(t, `fn r() -> int { "text" }`, nil)
	if diff := cmp.Diff([]diag.Reason{diag.UnmatchedAssignmentType}, reasons(t, err)); diff != "" {
		t.Fatalf("reasons mismatch (-want +got):\n%s", diff)
	}
}

func callees(mirs []mir.MIR) []string {
	var out []string
	for _, m := range mirs {
		if c, ok := m.Val.(mir.FnCall); ok {
			out = append(out, c.Callee)
		}
	}
	return out
}

func TestRawCall(t *testing.T) {
	mod := mustRun(t, `
@no_mangle @vararg fn logf(str) -> i32;
fn main() { raw#logf("%d %f\n", 1 as u8, 2.5); }
`)
	var call mir.FnCall
	for _, m := range vals(mod) {
		if c, ok := m.Val.(mir.FnCall); ok {
			call = c
		}
	}
	if call.Callee != "logf" || len(call.Args) != 3 {
		t.Fatalf("unexpected call %s", call)
	}
	var promoted []types.AType
	for _, m := range vals(mod) {
		if c, ok := m.Val.(mir.TypeCast); ok && c.From == types.Int(1) {
			promoted = append(promoted, c.To)
		}
	}
	if diff := cmp.Diff([]types.AType{types.I32}, promoted); diff != "" {
		t.Fatalf("a u8 vararg should be promoted to i32 (-want +got):\n%s", diff)
	}
	if mod.Extern("logf") == nil {
		t.Fatal("logf should be registered as an external declaration")
	}
}

func TestRawCallDiagnostics(t *testing.T) {
	_, _, err := run(t, `
fn two(a: int, b: int) -> int { a + b }
@no_mangle fn pair(a: int, b: int) -> int { a + b }
fn main() {
	raw#two(1, 2);
	raw#pair(1);
	raw#pair(1, 2, 3);
	odd#pair(1, 2);
	two(1.5);
}
`, nil)
	want := []diag.Reason{
		diag.NoMatchingFunctionOverload, // two is only reachable by its mangled identity
		diag.MissingFormalParameter,
		diag.NoMatchingFunctionOverload,
		diag.UnknownAttributeTag,
		diag.NoMatchingFunctionOverload,
	}
	if diff := cmp.Diff(want, reasons(t, err)); diff != "" {
		t.Fatalf("reasons mismatch (-want +got):\n%s", diff)
	}
}

func TestMangledCallResolvesOverload(t *testing.T) {
	mod := mustRun(t, `
fn sq(x: int) -> int { x * x }
fn sq(x: float) -> float { x * x }
fn main() { let a = sq(2); let b = sq(2.0); }
`)
	main := mod.Def("main")
	want := []string{mangle.Mangle("sq", []types.AType{types.I32}), mangle.Mangle("sq", []types.AType{types.F64})}
	if diff := cmp.Diff(want, callees(mod.Scopes[main.Scope].Mirs)); diff != "" {
		t.Fatalf("callees mismatch (-want +got):\n%s", diff)
	}
}

func TestCommandLowering(t *testing.T) {
	mod := mustRun(t, `fn main() { let n = 3; !(echo $n); }`)
	main := mod.Def("main")

	vec := types.Array(types.PointerPri(), 1)
	vecNew := mangle.Mangle("vec_new_ptr", []types.AType{types.I32})
	vecPush := mangle.Mangle("vec_push_ptr", []types.AType{vec, types.Str})
	want := []string{
		mangle.Mangle(corelib.StringifyInt, []types.AType{types.I32}),
		vecNew, vecPush,
		vecNew, vecPush,
		mangle.Mangle(corelib.CmdReplace, []types.AType{types.Str, vec, vec}),
		mangle.Mangle(corelib.Exec, []types.AType{types.Str}),
		corelib.Printf,
	}
	if diff := cmp.Diff(want, callees(mod.Scopes[main.Scope].Mirs)); diff != "" {
		t.Fatalf("command lowering mismatch (-want +got):\n%s", diff)
	}
}

func TestCommandUnknownSymbol(t *testing.T) {
	_, _, err := run(t, `fn main() { !(echo $missing); }`, nil)
	if diff := cmp.Diff([]diag.Reason{diag.UnresolvedSymbol}, reasons(t, err)); diff != "" {
		t.Fatalf("reasons mismatch (-want +got):\n%s", diff)
	}
}

func TestWarnings(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetWarning(config.WarnShadow, true)
	cfg.SetWarning(config.WarnUnusedValue, true)
	_, warnings, err := run(t, `fn u() -> int { let x = 1; let x = 2; x; return x; 3 }`, cfg)
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}

	var names []string
	for _, w := range warnings {
		names = append(names, w.Name)
	}
	want := []string{"shadow", "unused-value", "unreachable-code"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("warnings mismatch (-want +got):\n%s", diff)
	}

	_, warnings, _ = run(t, `fn u() -> int { let x = 1; let x = 2; x }`, nil)
	if len(warnings) != 0 {
		t.Fatalf("shadow warnings are off by default, got %v", warnings)
	}
}
