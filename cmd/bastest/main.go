// Command bastest compiles every test program with each backend, runs the
// binaries and reports programs whose behavior differs between backends or
// from a recorded golden run.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fatih/color"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"github.com/minghu6/bas/pkg/cli"
	"github.com/minghu6/bas/pkg/util"
)

type Execution struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
}

// BackendResult is one program compiled and run with one backend.
type BackendResult struct {
	Backend string     `json:"backend"`
	Compile Execution  `json:"compile"`
	Run     *Execution `json:"run,omitempty"`
}

type FileTestResult struct {
	File     string           `json:"file"`
	Hash     string           `json:"hash"`
	Status   string           `json:"status"` // PASS, FAIL, ERROR
	Message  string           `json:"message,omitempty"`
	Diff     string           `json:"diff,omitempty"`
	Backends []*BackendResult `json:"backends"`
}

type options struct {
	compiler string
	backends []string
	golden   bool
	dir      string
	report   string
	timeout  time.Duration
	jobs     int
	ignore   []string
	verbose  bool
}

var (
	red    = color.New(color.FgRed, color.Bold).SprintFunc()
	green  = color.New(color.FgGreen, color.Bold).SprintFunc()
	yellow = color.New(color.FgYellow, color.Bold).SprintFunc()
)

func main() {
	app := cli.NewApp("bastest")
	app.Synopsis = "[options] <file.bas> ..."
	app.Description = "Differential tester for the basc backends."

	var (
		opts     options
		backends string
		timeout  string
		jobs     string
	)
	fs := app.FlagSet
	fs.String(&opts.compiler, "compiler", "c", "basc", "Path of the compiler under test.", "path")
	fs.String(&backends, "backends", "b", "qbe,llvm", "Comma-separated backends to compare.", "list")
	fs.Bool(&opts.golden, "generate-golden", "g", false, "Record the first backend's run as the golden file.")
	fs.String(&opts.dir, "dir", "", "", "Directory of golden files (defaults to the source directory).", "dir")
	fs.String(&opts.report, "output", "o", ".bastest.json", "Write the JSON report to <file>.", "file")
	fs.String(&timeout, "timeout", "", "5s", "Timeout of every command.", "duration")
	fs.String(&jobs, "jobs", "j", "4", "Number of files tested in parallel.", "n")
	fs.List(&opts.ignore, "ignore-line", "", []string{}, "Ignore output lines containing <text>.", "text")
	fs.Bool(&opts.verbose, "verbose", "v", false, "Show passing files.")

	app.Action = func(patterns []string) error {
		opts.backends = strings.Split(backends, ",")
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout '%s': %w", timeout, err)
		}
		opts.timeout = d
		if opts.jobs, err = strconv.Atoi(jobs); err != nil || opts.jobs < 1 {
			return fmt.Errorf("invalid job count '%s'", jobs)
		}

		files, err := expandGlobPatterns(patterns)
		if err != nil {
			return err
		}
		if len(files) == 0 { return errors.New("no test files matched") }

		tempDir, err := os.MkdirTemp("", "bastest-*")
		if err != nil {
			return fmt.Errorf("failed to create temp directory: %w", err)
		}
		defer os.RemoveAll(tempDir)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		results, err := runSuite(ctx, files, tempDir, &opts)
		if err != nil {
			return err
		}
		if opts.golden { return nil }
		printSummary(os.Stdout, results, opts.verbose)
		if err := writeJSONReport(opts.report, results); err != nil {
			util.Warn("%v", err)
		}
		if hasFailures(results) { return errors.New("some tests failed") }
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		if errors.Is(err, cli.ErrHelp) {
			return
		}
		util.Error("%v", err)
		os.Exit(1)
	}
}

func runSuite(ctx context.Context, files []string, tempDir string, opts *options) ([]*FileTestResult, error) {
	results := make([]*FileTestResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.jobs)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := testFile(gctx, file, tempDir, opts)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	return results, g.Wait()
}

// hashFile computes the xxhash of a file's content.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

func goldenPath(dir, sourceFile string) string {
	name := "." + filepath.Base(sourceFile) + ".json"
	if dir != "" { return filepath.Join(dir, name) }
	return filepath.Join(filepath.Dir(sourceFile), name)
}

func testFile(ctx context.Context, file, tempDir string, opts *options) (*FileTestResult, error) {
	hash, err := hashFile(file)
	if err != nil {
		return nil, fmt.Errorf("could not hash %s: %w", file, err)
	}

	r := &FileTestResult{File: file, Hash: hash}
	for _, b := range opts.backends {
		r.Backends = append(r.Backends, compileAndRun(ctx, opts, b, file, filepath.Join(tempDir, hash+"-"+b)))
	}

	if opts.golden {
		if err := writeGolden(goldenPath(opts.dir, file), r.Backends[0]); err != nil {
			return nil, err
		}
		fmt.Printf("%s golden file for %s recorded\n", green("[SUCCESS]"), file)
		return r, nil
	}

	var golden *Execution
	if data, err := os.ReadFile(goldenPath(opts.dir, file)); err == nil {
		golden = &Execution{}
		if err := json.Unmarshal(data, golden); err != nil {
			return nil, fmt.Errorf("corrupt golden file for %s: %w", file, err)
		}
	}
	compareBackends(r, golden, opts.ignore)
	return r, nil
}

func writeGolden(path string, b *BackendResult) error {
	if b.Run == nil { return fmt.Errorf("cannot record a golden run: %s failed to compile:\n%s", b.Backend, b.Compile.Stderr) }
	data, err := json.MarshalIndent(b.Run, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func compileAndRun(ctx context.Context, opts *options, backend, sourceFile, binary string) *BackendResult {
	res := &BackendResult{Backend: backend}
	cctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	res.Compile = executeCommand(cctx, opts.compiler, "--no-cache", "-b", backend, "-o", binary, sourceFile)
	if res.Compile.ExitCode != 0 || res.Compile.TimedOut { return res }
	if _, err := os.Stat(binary); err != nil {
		res.Compile.ExitCode = -2
		res.Compile.Stderr += "\nbinary was not created: " + err.Error()
		return res
	}

	rctx, rcancel := context.WithTimeout(ctx, opts.timeout)
	defer rcancel()
	run := executeCommand(rctx, binary)
	res.Run = &run
	return res
}

func executeCommand(ctx context.Context, command string, args ...string) Execution {
	startTime := time.Now()
	cmd := exec.CommandContext(ctx, command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Execution{Stdout: stdout.String(), Stderr: stderr.String(), Duration: time.Since(startTime)}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
		res.ExitCode = -1
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	case err != nil:
		res.ExitCode = -2
		res.Stderr += "\nexecution error: " + err.Error()
	}
	return res
}

// observable is the part of a run that must agree between backends.
type observable struct {
	Stdout   string
	ExitCode int
	TimedOut bool
}

func observe(e *Execution, ignore []string) observable {
	return observable{Stdout: filterOutput(e.Stdout, ignore), ExitCode: e.ExitCode, TimedOut: e.TimedOut}
}

// compareBackends sets the status of r. Every backend must compile the file
// or every backend must reject it; runs are compared against the golden run
// when there is one and against the first backend otherwise.
func compareBackends(r *FileTestResult, golden *Execution, ignore []string) {
	var compiled, rejected []string
	for _, b := range r.Backends {
		if b.Run != nil {
			compiled = append(compiled, b.Backend)
		} else {
			rejected = append(rejected, b.Backend)
		}
	}
	switch {
	case len(compiled) == 0:
		r.Status, r.Message = "PASS", "all backends rejected the program"
		return
	case len(rejected) > 0:
		r.Status = "ERROR"
		r.Message = fmt.Sprintf("compiled with %s but not with %s", strings.Join(compiled, ","), strings.Join(rejected, ","))
		return
	}

	want, wantName := observe(r.Backends[0].Run, ignore), r.Backends[0].Backend
	rest := r.Backends[1:]
	if golden != nil {
		want, wantName, rest = observe(golden, ignore), "golden", r.Backends
	}
	for _, b := range rest {
		if diff := cmp.Diff(want, observe(b.Run, ignore)); diff != "" {
			r.Status = "FAIL"
			r.Message = fmt.Sprintf("%s differs from %s", b.Backend, wantName)
			r.Diff = diff
			return
		}
	}
	r.Status = "PASS"
}

func filterOutput(output string, ignoredSubstrings []string) string {
	if len(ignoredSubstrings) == 0 || output == "" { return output }
	lines := strings.Split(output, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		ignore := false
		for _, sub := range ignoredSubstrings {
			if sub != "" && strings.Contains(line, sub) {
				ignore = true
				break
			}
		}
		if !ignore {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond { return fmt.Sprintf("%6dµs", d.Microseconds()) }
	return fmt.Sprintf("%6dms", d.Milliseconds())
}

func formatDiff(diff string) string {
	var sb strings.Builder
	sb.WriteString("    --- Diff ---\n")
	for _, line := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "-"):
			line = red(line)
		case strings.HasPrefix(trimmed, "+"):
			line = green(line)
		}
		sb.WriteString("    " + line + "\n")
	}
	return sb.String()
}

func printSummary(w io.Writer, results []*FileTestResult, verbose bool) {
	var passed, failed, errored int
	for _, r := range results {
		switch r.Status {
		case "PASS":
			passed++
			if !verbose {
				continue
			}
			fmt.Fprintf(w, "%s %s", green("[PASS]"), r.File)
			for _, b := range r.Backends {
				if b.Run != nil {
					fmt.Fprintf(w, "  %s %s", b.Backend, formatDuration(b.Run.Duration))
				}
			}
			fmt.Fprintln(w)
		case "FAIL":
			failed++
			fmt.Fprintf(w, "%s %s: %s\n%s", red("[FAIL]"), r.File, r.Message, formatDiff(r.Diff))
		default:
			errored++
			fmt.Fprintf(w, "%s %s: %s\n", yellow("[ERROR]"), r.File, r.Message)
			for _, b := range r.Backends {
				if b.Run == nil && b.Compile.Stderr != "" {
					fmt.Fprintf(w, "    %s: %s\n", b.Backend, strings.TrimSpace(b.Compile.Stderr))
				}
			}
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, %d errored, %d total\n", passed, failed, errored, len(results))
}

func writeJSONReport(path string, results []*FileTestResult) error {
	report := make(map[string]*FileTestResult, len(results))
	for _, r := range results {
		report[r.File] = r
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results to JSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write JSON report to %s: %w", path, err)
	}
	fmt.Printf("Full test report saved to %s\n", path)
	return nil
}

func hasFailures(results []*FileTestResult) bool {
	for _, r := range results {
		if r.Status != "PASS" { return true }
	}
	return false
}

func expandGlobPatterns(patterns []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, m := range matches {
			abs, err := filepath.Abs(m)
			if err != nil || seen[abs] {
				continue
			}
			if info, err := os.Stat(abs); err == nil && info.Mode().IsRegular() {
				files = append(files, abs)
				seen[abs] = true
			}
		}
	}
	return files, nil
}
