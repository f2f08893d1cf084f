// Package diag accumulates source diagnostics for a compilation pass and
// renders them with a caret under the offending span.
package diag

import (
	"fmt"

	"github.com/minghu6/bas/pkg/token"
)

type Reason int

const (
	DuplicateDefinition Reason = iota
	MissingFormalParameter
	IncompatibleOperandTypes
	IncompatibleIfArmTypes
	UnresolvedSymbol
	UncastableType
	UnmatchedAssignmentType
	UnknownType
	UnknownAttributeTag
	DuplicateAttribute
	NoMatchingFunctionOverload
	AssignmentTargetNotLvalue
	ReasonCount
)

var reasonNames = [ReasonCount]string{
	DuplicateDefinition:        "duplicate-definition",
	MissingFormalParameter:     "missing-formal-parameter",
	IncompatibleOperandTypes:   "incompatible-operand-types",
	IncompatibleIfArmTypes:     "incompatible-if-arm-types",
	UnresolvedSymbol:           "unresolved-symbol",
	UncastableType:             "uncastable-type",
	UnmatchedAssignmentType:    "unmatched-assignment-type",
	UnknownType:                "unknown-type",
	UnknownAttributeTag:        "unknown-attribute-tag",
	DuplicateAttribute:         "duplicate-attribute",
	NoMatchingFunctionOverload: "no-matching-function-overload",
	AssignmentTargetNotLvalue:  "assignment-target-not-an-lvalue",
}

func (r Reason) String() string {
	if r >= 0 && r < ReasonCount { return reasonNames[r] }
	return fmt.Sprintf("Reason(%d)", int(r))
}

// Span is a byte range in a source file with the 1-based line and column of
// its first character.
type Span struct {
	Offset int
	Len    int
	Line   int
	Column int
}

// At returns the span covered by tok.
func At(tok token.Token) Span {
	return Span{Offset: tok.Offset, Len: tok.Len, Line: tok.Line, Column: tok.Column}
}

type Diagnostic struct {
	Reason Reason
	Span   Span
	Msg    string
}

// Bag collects diagnostics in the order they were recorded. A pass has
// failed iff its bag is non-empty when it finishes.
type Bag struct {
	items    []Diagnostic
	warnings []Warning
}

// Warning is a non-fatal note; Name is the -W flag that controls it.
type Warning struct {
	Name string
	Span Span
	Msg  string
}

func (b *Bag) Warn(name string, span Span, format string, args ...any) {
	b.warnings = append(b.warnings, Warning{Name: name, Span: span, Msg: fmt.Sprintf(format, args...)})
}

func (b *Bag) Warnings() []Warning { return b.warnings }

func (b *Bag) Record(reason Reason, span Span, format string, args ...any) {
	b.items = append(b.items, Diagnostic{Reason: reason, Span: span, Msg: fmt.Sprintf(format, args...)})
}

func (b *Bag) Len() int             { return len(b.items) }
func (b *Bag) Empty() bool          { return len(b.items) == 0 }
func (b *Bag) Items() []Diagnostic  { return b.items }

// Count returns how many recorded diagnostics have the given reason.
func (b *Bag) Count(reason Reason) int {
	n := 0
	for _, d := range b.items {
		if d.Reason == reason {
			n++
		}
	}
	return n
}

// SourceFile is the text a bag's spans point into.
type SourceFile struct {
	Name    string
	Content string
}

// Error is returned by a pass that finished with a non-empty bag.
type Error struct {
	Source SourceFile
	Bag    *Bag
}

func (e *Error) Error() string {
	if e.Bag.Len() == 1 {
		d := e.Bag.items[0]
		return fmt.Sprintf("%s:%d:%d: %s", e.Source.Name, d.Span.Line, d.Span.Column, d.Msg)
	}
	return fmt.Sprintf("%s: %d errors", e.Source.Name, e.Bag.Len())
}

// Err wraps a non-empty bag as an *Error, or returns nil.
func (b *Bag) Err(src SourceFile) error {
	if b.Empty() { return nil }
	return &Error{Source: src, Bag: b}
}

// SyntaxError is the first lexical or grammatical error of a file.
type SyntaxError struct {
	Source SourceFile
	Span   Span
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Source.Name, e.Span.Line, e.Span.Column, e.Msg)
}
