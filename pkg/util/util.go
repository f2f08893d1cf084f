// Package util prints process-level driver messages on stderr.
package util

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

const prog = "basc"

var (
	stream  io.Writer = os.Stderr
	verbose bool

	infoTag  = color.New(color.FgCyan)
	warnTag  = color.New(color.FgYellow)
	errorTag = color.New(color.FgRed, color.Bold)
)

func init() {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		color.NoColor = true
	}
}

// SetVerbose enables Info output.
func SetVerbose(v bool) { verbose = v }

// SetOutput redirects messages; used by tests.
func SetOutput(w io.Writer) { stream = w }

func Info(format string, args ...any) {
	if !verbose { return }
	emit(infoTag, "info", format, args...)
}

func Warn(format string, args ...any) { emit(warnTag, "warning", format, args...) }

func Error(format string, args ...any) { emit(errorTag, "error", format, args...) }

// Fatal prints an error and exits the program.
func Fatal(format string, args ...any) {
	Error(format, args...)
	os.Exit(1)
}

func emit(tag *color.Color, level, format string, args ...any) {
	fmt.Fprintf(stream, "%s: %s ", prog, tag.Sprint(level+":"))
	fmt.Fprintf(stream, format, args...)
	fmt.Fprintln(stream)
}
