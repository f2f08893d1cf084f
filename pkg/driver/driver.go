// Package driver runs the compiler pipeline over source files and hands the
// results to the system toolchain.
package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/minghu6/bas/pkg/cache"
	"github.com/minghu6/bas/pkg/codegen"
	"github.com/minghu6/bas/pkg/config"
	"github.com/minghu6/bas/pkg/corelib"
	"github.com/minghu6/bas/pkg/diag"
	"github.com/minghu6/bas/pkg/lexer"
	"github.com/minghu6/bas/pkg/mir"
	"github.com/minghu6/bas/pkg/parser"
	"github.com/minghu6/bas/pkg/sema"
	"github.com/minghu6/bas/pkg/util"
)

const (
	EmitIR  = "ir"
	EmitAsm = "asm"
	EmitObj = "obj"
	EmitExe = "exe"
)

// Unit is one compiled source file.
type Unit struct {
	Path   string
	Output []byte // textual IR for --emit=ir, backend output otherwise
	Cached bool
	// Diagnostics holds the rendered warnings and errors of the unit.
	Diagnostics bytes.Buffer
	// MIR holds the dumped scope tree when DumpMIR is set.
	MIR bytes.Buffer
	Err error
}

// Compile runs lexer, parser, both semantic passes and the backend over one
// file. Source errors are rendered into the unit and returned.
func Compile(path string, cfg *config.Config, c *cache.Cache) *Unit {
	u := &Unit{Path: path}
	u.Err = u.compile(cfg, c)
	return u
}

func (u *Unit) compile(cfg *config.Config, c *cache.Cache) error {
	content, err := os.ReadFile(u.Path)
	if err != nil {
		return fmt.Errorf("could not read file '%s': %w", u.Path, err)
	}

	emitIR := cfg.Emit == EmitIR
	// MIR dumps need a fresh analysis.
	useCache := c != nil && !cfg.DumpMIR
	key := cache.Key(content, fmt.Sprintf("%sir=%t;", cfg.Fingerprint(), emitIR))
	if useCache {
		e, ok, err := c.Get(key)
		if err != nil {
			util.Warn("ignoring cache entry for '%s': %v", u.Path, err)
		}
		if ok {
			util.Info("'%s' is up to date", u.Path)
			u.Output, u.Cached = e.Output, true
			return nil
		}
	}

	src := diag.SourceFile{Name: u.Path, Content: string(content)}
	mod, err := u.analyze(src, cfg)
	if err != nil {
		return err
	}
	if cfg.DumpMIR {
		mod.Dump(&u.MIR)
	}

	util.Info("generating code for '%s' with the '%s' backend", u.Path, cfg.Backend)
	out, err := codegen.Generate(mod, cfg, emitIR)
	if err != nil {
		return fmt.Errorf("%s: backend code generation failed: %w", u.Path, err)
	}
	u.Output = out.Bytes()

	if useCache {
		e := &cache.Entry{Unit: u.Path, Backend: cfg.Backend, IR: emitIR, Output: u.Output}
		if err := c.Put(key, e); err != nil {
			util.Warn("could not cache '%s': %v", u.Path, err)
		}
	}
	return nil
}

func (u *Unit) analyze(src diag.SourceFile, cfg *config.Config) (*mir.Module, error) {
	toks, err := lexer.Tokenize(src, cfg)
	if err != nil {
		return nil, u.render(err)
	}
	tree, err := parser.ParseFile(src, toks)
	if err != nil {
		return nil, u.render(err)
	}

	mod, warnings, err := sema.Analyze(tree, src, cfg, mir.NewExtSymSet(corelib.New()))
	if len(warnings) > 0 {
		bag := &diag.Bag{}
		for _, w := range warnings {
			bag.Warn(w.Name, w.Span, "%s", w.Msg)
		}
		diag.RenderWarnings(&u.Diagnostics, src, bag)
	}
	if err != nil {
		return nil, u.render(err)
	}
	return mod, nil
}

func (u *Unit) render(err error) error {
	var de *diag.Error
	var se *diag.SyntaxError
	switch {
	case errors.As(err, &de):
		diag.Render(&u.Diagnostics, de)
	case errors.As(err, &se):
		diag.RenderSyntax(&u.Diagnostics, se)
	}
	return err
}

// CompileAll compiles every path with at most cfg.Jobs units in flight. The
// units come back in input order; the error joins every failed unit.
func CompileAll(ctx context.Context, paths []string, cfg *config.Config, c *cache.Cache) ([]*Unit, error) {
	units := make([]*Unit, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(cfg.Jobs, len(paths))))

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			units[i] = Compile(path, cfg, c)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return units, err
	}

	var errs []error
	for _, u := range units {
		if u.Err != nil {
			errs = append(errs, u.Err)
		}
	}
	return units, errors.Join(errs...)
}
