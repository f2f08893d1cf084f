package diag

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
)

var (
	errorColor = color.New(color.FgRed, color.Bold)
	warnColor  = color.New(color.FgYellow, color.Bold)
	caretColor = color.New(color.FgGreen)
	boldColor  = color.New(color.Bold)
)

// Render writes every error of e as a locator header, the source line and a
// caret underline. Warnings are rendered separately by RenderWarnings.
func Render(w io.Writer, e *Error) {
	for _, d := range e.Bag.items {
		renderOne(w, e.Source, d)
	}
	if n := e.Bag.Len(); n > 1 {
		fmt.Fprintf(w, "%s\n", boldColor.Sprintf("%d errors generated.", n))
	}
}

func renderOne(w io.Writer, src SourceFile, d Diagnostic) {
	fmt.Fprintf(w, "%s:%d:%d: %s %s\n",
		src.Name, d.Span.Line, d.Span.Column,
		errorColor.Sprintf("error[%s]:", d.Reason), d.Msg)
	printErrorLine(w, src.Content, d.Span)
}

// printErrorLine prints the source line of sp and a caret under its range.
func printErrorLine(w io.Writer, content string, sp Span) {
	if sp.Line <= 0 || sp.Offset < 0 || sp.Offset > len(content) { return }

	lineStart := strings.LastIndexByte(content[:sp.Offset], '\n') + 1
	lineEnd := len(content)
	if i := strings.IndexByte(content[sp.Offset:], '\n'); i >= 0 {
		lineEnd = sp.Offset + i
	}
	line := strings.TrimRight(content[lineStart:lineEnd], "\r")
	fmt.Fprintf(w, "  %s\n", line)

	// Tabs keep their width so the caret lines up under the source text.
	var pad strings.Builder
	for _, r := range content[lineStart:sp.Offset] {
		if r == '\t' {
			pad.WriteByte('\t')
			continue
		}
		pad.WriteString(strings.Repeat(" ", runewidth.RuneWidth(r)))
	}

	end := min(sp.Offset+sp.Len, lineEnd)
	width := runewidth.StringWidth(content[sp.Offset:end])
	underline := "^"
	if width > 1 {
		underline += strings.Repeat("~", width-1)
	}
	fmt.Fprintf(w, "  %s%s\n", pad.String(), caretColor.Sprint(underline))
}

// RenderWarnings writes the warnings of b.
func RenderWarnings(w io.Writer, src SourceFile, b *Bag) {
	for _, wn := range b.warnings {
		fmt.Fprintf(w, "%s:%d:%d: %s %s [-W%s]\n",
			src.Name, wn.Span.Line, wn.Span.Column, warnColor.Sprint("warning:"), wn.Msg, wn.Name)
		printErrorLine(w, src.Content, wn.Span)
	}
}

// RenderSyntax writes a syntax error in the same layout as a diagnostic.
func RenderSyntax(w io.Writer, e *SyntaxError) {
	fmt.Fprintf(w, "%s:%d:%d: %s %s\n", e.Source.Name, e.Span.Line, e.Span.Column, errorColor.Sprint("error:"), e.Msg)
	printErrorLine(w, e.Source.Content, e.Span)
}
