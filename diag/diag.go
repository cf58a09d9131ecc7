// Package diag accumulates typed compiler diagnostics with source positions.
//
// Diagnostics never abort analysis. Every front-end phase (lexer, parser,
// sema, pipeline analyzer) is handed a *Bag and keeps going after recording
// an error so that as many problems as possible surface in one pass.
package diag

import "fmt"

// Kind distinguishes a hard error from an advisory warning.
type Kind int

const (
	Warning Kind = iota
	Error
)

func (k Kind) String() string {
	if k == Error {
		return "error"
	}
	return "warning"
}

// Pos is a 1-based line/column source position.
type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Diagnostic is a single accumulated error or warning.
type Diagnostic struct {
	Kind Kind
	Pos  Pos
	Msg  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s @%s - %s", d.Kind, d.Pos, d.Msg)
}

// Bag accumulates diagnostics in emission order. The zero value is ready
// to use.
type Bag struct {
	items []Diagnostic
}

// Errorf records an Error diagnostic at pos.
func (b *Bag) Errorf(pos Pos, format string, args ...any) {
	b.items = append(b.items, Diagnostic{Kind: Error, Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

// Warnf records a Warning diagnostic at pos.
func (b *Bag) Warnf(pos Pos, format string, args ...any) {
	b.items = append(b.items, Diagnostic{Kind: Warning, Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

// All returns every diagnostic in emission order.
func (b *Bag) All() []Diagnostic {
	return b.items
}

// HasErrors reports whether any accumulated diagnostic is a Kind Error.
// A compilation with any Error is a failed compilation per the CLI's exit
// code convention (0 success, 1 usage/IO error, 2 diagnostic error).
func (b *Bag) HasErrors() bool {
	for _, d := range b.items {
		if d.Kind == Error {
			return true
		}
	}
	return false
}

// Len returns the total number of accumulated diagnostics.
func (b *Bag) Len() int {
	return len(b.items)
}

// Merge appends another bag's diagnostics onto this one, preserving order.
func (b *Bag) Merge(other *Bag) {
	if other == nil {
		return
	}
	b.items = append(b.items, other.items...)
}
