package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	fs := NewFlagSet("basc")
	var out, backend string
	var verbose bool
	var warns, linker []string
	fs.String(&out, "output", "o", "a.out", "Place the output into <file>.", "file")
	fs.String(&backend, "backend", "", "qbe", "Select the backend.", "name")
	fs.Bool(&verbose, "verbose", "v", false, "Print progress.")
	fs.List(&linker, "linker-arg", "L", nil, "Pass an argument to the linker.", "arg")
	fs.Special(&warns, "W", "Enable or disable a warning.", "warning")

	err := fs.Parse([]string{"-o", "prog", "--backend=llvm", "-v", "-Wall", "-Wno-shadow", "-L-static", "a.bas", "--", "-b.bas"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if out != "prog" || backend != "llvm" || !verbose {
		t.Errorf("out=%q backend=%q verbose=%v", out, backend, verbose)
	}
	if diff := cmp.Diff([]string{"all", "no-shadow"}, warns); diff != "" {
		t.Errorf("warnings (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"-static"}, linker); diff != "" {
		t.Errorf("linker args (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a.bas", "-b.bas"}, fs.Args()); diff != "" {
		t.Errorf("args (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	fs := NewFlagSet("basc")
	var out string
	fs.String(&out, "output", "o", "", "", "file")

	for _, args := range [][]string{{"--nope"}, {"-x"}, {"--output"}} {
		if err := fs.Parse(args); err == nil {
			t.Errorf("Parse(%v) succeeded", args)
		}
	}
}

func TestHelpPage(t *testing.T) {
	app := NewApp("basc")
	app.Synopsis = "[options] <input.bas> ..."
	app.Version = "0.1.0"
	var stdout bytes.Buffer
	app.Stdout = &stdout

	var warns []string
	app.FlagSet.Special(&warns, "W", "Enable or disable a warning.", "warning")
	app.FlagSet.AddFlagGroup("Warnings", "W", "warning", "Available Warnings:", []FlagGroupEntry{
		{Name: "shadow", Usage: "Warn when let shadows a binding."},
		{Name: "unreachable-code", Usage: "Warn about dead statements.", Enabled: true},
	})

	called := false
	app.Action = func([]string) error { called = true; return nil }
	if err := app.Run([]string{"--help"}); !errors.Is(err, ErrHelp) {
		t.Fatalf("Run = %v, want ErrHelp", err)
	}
	if called {
		t.Errorf("action ran on --help")
	}

	page := stdout.String()
	for _, want := range []string{"basc 0.1.0", "Synopsis", "-W<warning>", "-Wno-<warning>", "shadow", "|x|", "|-|"} {
		if !strings.Contains(page, want) {
			t.Errorf("help page lacks %q:\n%s", want, page)
		}
	}
}

func TestWrapText(t *testing.T) {
	got := wrapText("one two three four", 9)
	if diff := cmp.Diff([]string{"one two", "three", "four"}, got); diff != "" {
		t.Errorf("wrap (-want +got):\n%s", diff)
	}
}

func TestParseSpellings(t *testing.T) {
	tests := []struct {
		args    []string
		out     string
		verbose bool
		warns   []string
	}{
		{[]string{"-oprog"}, "prog", false, []string{}},
		{[]string{"-output=prog"}, "prog", false, []string{}},
		{[]string{"--verbose=false", "-v"}, "", true, []string{}},
		{[]string{"--verbose=true", "--verbose=false"}, "", false, []string{}},
		{[]string{"-Wshadow", "-Wno-unused"}, "", false, []string{"shadow", "no-unused"}},
	}
	for _, tt := range tests {
		fs := NewFlagSet("basc")
		var out string
		var verbose bool
		var warns []string
		fs.String(&out, "output", "o", "", "", "file")
		fs.Bool(&verbose, "verbose", "v", false, "")
		fs.Special(&warns, "W", "", "warning")
		if err := fs.Parse(tt.args); err != nil {
			t.Errorf("Parse(%v): %v", tt.args, err)
			continue
		}
		if out != tt.out || verbose != tt.verbose {
			t.Errorf("Parse(%v): out=%q verbose=%v", tt.args, out, verbose)
		}
		if diff := cmp.Diff(tt.warns, warns); diff != "" {
			t.Errorf("Parse(%v) warnings (-want +got):\n%s", tt.args, diff)
		}
	}
}

func TestMissingArgumentNamesTheSpelling(t *testing.T) {
	for _, tt := range []struct{ arg, want string }{
		{"-o", "-o"},
		{"--output", "--output"},
		{"-output", "-output"},
	} {
		fs := NewFlagSet("basc")
		var out string
		var warns []string
		fs.String(&out, "output", "o", "", "", "file")
		fs.Special(&warns, "W", "", "warning")
		err := fs.Parse([]string{tt.arg})
		if err == nil || !strings.HasSuffix(err.Error(), ": "+tt.want) {
			t.Errorf("Parse(%s) = %v, want a missing argument for %s", tt.arg, err, tt.want)
		}
	}

	fs := NewFlagSet("basc")
	var warns []string
	fs.Special(&warns, "W", "", "warning")
	if err := fs.Parse([]string{"-W"}); err == nil {
		t.Errorf("bare prefix flag accepted")
	}
}

func TestUsageOnBadFlag(t *testing.T) {
	app := NewApp("basc")
	app.Synopsis = "[options] <input.bas> ..."
	var stderr bytes.Buffer
	app.Stderr = &stderr
	var backend string
	app.FlagSet.String(&backend, "backend", "b", "qbe", "Select the backend.", "name")

	if err := app.Run([]string{"--nope"}); err == nil {
		t.Fatalf("Run accepted an unknown flag")
	}
	page := stderr.String()
	for _, want := range []string{"unknown flag: --nope", "Usage: basc", "-b <name>, --backend <name>", "|qbe|", "basc --help"} {
		if !strings.Contains(page, want) {
			t.Errorf("usage lacks %q:\n%s", want, page)
		}
	}
}
