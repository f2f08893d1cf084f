package driver

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/minghu6/bas/pkg/config"
	"github.com/minghu6/bas/pkg/util"
)

// Toolchain turns backend output into objects and executables. QBE output is
// assembly for cc; LLVM output is IR for clang.
type Toolchain struct {
	cfg    *config.Config
	Driver string
	// Run executes a toolchain command; tests replace it.
	Run func(name string, args ...string) error
}

func NewToolchain(cfg *config.Config) *Toolchain {
	tc := &Toolchain{cfg: cfg, Driver: "cc", Run: runCommand}
	if cfg.Backend == config.BackendLLVM {
		tc.Driver = "clang"
	}
	return tc
}

func runCommand(name string, args ...string) error {
	util.Info("running %s %s", name, strings.Join(args, " "))
	cmd := exec.Command(name, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s command failed: %w\nOutput:\n%s", name, err, string(output))
	}
	return nil
}

// ext is the file extension of a unit's backend output.
func (tc *Toolchain) ext() string {
	switch {
	case tc.cfg.Emit == EmitIR && tc.cfg.Backend == config.BackendQBE:
		return ".ssa"
	case tc.cfg.Backend == config.BackendLLVM:
		return ".ll"
	}
	return ".s"
}

// outputFor names the artifact of a unit. An explicit output path applies
// when there is a single unit.
func (tc *Toolchain) outputFor(unit string, ext string, single bool) string {
	if single && tc.cfg.Output != "" { return tc.cfg.Output }
	return strings.TrimSuffix(unit, filepath.Ext(unit)) + ext
}

// Finish writes or links the units according to cfg.Emit.
func (tc *Toolchain) Finish(units []*Unit) error {
	switch tc.cfg.Emit {
	case EmitIR:
		return tc.writeAll(units, tc.ext())
	case EmitAsm:
		if tc.cfg.Backend == config.BackendQBE { return tc.writeAll(units, ".s") }
		return tc.compileAll(units, "-S", ".s")
	case EmitObj:
		return tc.compileAll(units, "-c", ".o")
	case EmitExe, "":
		return tc.link(units)
	}
	return fmt.Errorf("unknown emit kind '%s'", tc.cfg.Emit)
}

func (tc *Toolchain) writeAll(units []*Unit, ext string) error {
	for _, u := range units {
		out := tc.outputFor(u.Path, ext, len(units) == 1)
		if err := os.WriteFile(out, u.Output, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", out, err)
		}
		util.Info("wrote '%s'", out)
	}
	return nil
}

// compileAll runs the toolchain once per unit with mode (-S or -c).
func (tc *Toolchain) compileAll(units []*Unit, mode, ext string) error {
	inputs, cleanup, err := tc.spill(units)
	defer cleanup()
	if err != nil {
		return err
	}
	for i, u := range units {
		out := tc.outputFor(u.Path, ext, len(units) == 1)
		if err := tc.Run(tc.Driver, mode, "-o", out, inputs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (tc *Toolchain) link(units []*Unit) error {
	inputs, cleanup, err := tc.spill(units)
	defer cleanup()
	if err != nil {
		return err
	}

	out := tc.cfg.Output
	if out == "" {
		out = "a.out"
	}
	args := []string{"-no-pie", "-o", out}
	args = append(args, inputs...)
	if lib := tc.cfg.RuntimeLib; lib != "" {
		if _, err := os.Stat(lib); err == nil {
			args = append(args, lib)
		} else {
			util.Warn("runtime library '%s' not found; linking without it", lib)
		}
	}
	args = append(args, tc.cfg.LinkerArgs...)
	args = append(args, "-lm")
	util.Info("linking to create '%s'", out)
	return tc.Run(tc.Driver, args...)
}

// spill writes backend output to temporary files for the toolchain.
func (tc *Toolchain) spill(units []*Unit) ([]string, func(), error) {
	var files []string
	cleanup := func() {
		for _, f := range files {
			os.Remove(f)
		}
	}
	for _, u := range units {
		base := strings.TrimSuffix(filepath.Base(u.Path), filepath.Ext(u.Path))
		f, err := os.CreateTemp("", "basc-"+base+"-*"+tc.ext())
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to create temp file for %s: %w", u.Path, err)
		}
		files = append(files, f.Name())
		_, err = f.Write(u.Output)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to write temp file for %s: %w", u.Path, err)
		}
	}
	return files, cleanup, nil
}
