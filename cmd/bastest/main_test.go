package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func run(backend, stdout string, code int) *BackendResult {
	return &BackendResult{Backend: backend, Run: &Execution{Stdout: stdout, ExitCode: code}}
}

func TestCompareBackends(t *testing.T) {
	tests := []struct {
		name     string
		backends []*BackendResult
		golden   *Execution
		want     string
	}{
		{"agree", []*BackendResult{run("qbe", "1\n", 0), run("llvm", "1\n", 0)}, nil, "PASS"},
		{"stdout", []*BackendResult{run("qbe", "1\n", 0), run("llvm", "2\n", 0)}, nil, "FAIL"},
		{"exit code", []*BackendResult{run("qbe", "", 0), run("llvm", "", 3)}, nil, "FAIL"},
		{"both rejected", []*BackendResult{{Backend: "qbe"}, {Backend: "llvm"}}, nil, "PASS"},
		{"one rejected", []*BackendResult{run("qbe", "", 0), {Backend: "llvm"}}, nil, "ERROR"},
		{"golden", []*BackendResult{run("qbe", "1\n", 0), run("llvm", "1\n", 0)}, &Execution{Stdout: "2\n"}, "FAIL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &FileTestResult{File: "x.bas", Backends: tt.backends}
			compareBackends(r, tt.golden, nil)
			if r.Status != tt.want {
				t.Errorf("status = %s (%s), want %s", r.Status, r.Message, tt.want)
			}
			if r.Status == "FAIL" && r.Diff == "" {
				t.Errorf("failure without a diff")
			}
		})
	}
}

func TestFilterOutput(t *testing.T) {
	got := filterOutput("a\npid 42\nb", []string{"pid"})
	if diff := cmp.Diff("a\nb", got); diff != "" {
		t.Errorf("filterOutput (-want +got):\n%s", diff)
	}
	if got := filterOutput("a\nb", nil); got != "a\nb" {
		t.Errorf("filterOutput without filters = %q", got)
	}
}

func TestGoldenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := goldenPath(dir, "/src/hello.bas")
	if filepath.Base(path) != ".hello.bas.json" {
		t.Errorf("golden path = %s", path)
	}
	if err := writeGolden(path, run("qbe", "hi\n", 0)); err != nil {
		t.Fatalf("writeGolden: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("golden file missing: %v", err)
	}
	if err := writeGolden(path, &BackendResult{Backend: "qbe"}); err == nil {
		t.Errorf("recorded a run that never compiled")
	}
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bas")
	b := filepath.Join(dir, "b.bas")
	os.WriteFile(a, []byte("fn main() { }"), 0o644)
	os.WriteFile(b, []byte("fn main() { 1; }"), 0o644)
	ha, err := hashFile(a)
	if err != nil {
		t.Fatalf("hashFile: %v", err)
	}
	hb, _ := hashFile(b)
	if len(ha) != 16 || ha == hb {
		t.Errorf("hashes %s and %s", ha, hb)
	}
}

func TestExpandGlobPatterns(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"a.bas", "b.bas", "c.txt"} {
		os.WriteFile(filepath.Join(dir, n), nil, 0o644)
	}
	pat := filepath.Join(dir, "*.bas")
	files, err := expandGlobPatterns([]string{pat, pat})
	if err != nil {
		t.Fatalf("expandGlobPatterns: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("files = %v", files)
	}
}
