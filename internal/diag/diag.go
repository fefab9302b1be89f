// Package diag implements the error taxonomy of spec §7: a single error sum
// type per pipeline layer, each carrying a source Span, so diagnostics are
// never swallowed and always locatable. Diagnostics accumulate in a plain,
// explicitly-passed Listener rather than a module-level singleton.
package diag

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Kind classifies a diagnostic per the §7 taxonomy.
type Kind int

const (
	Syntax     Kind = iota // Malformed assembly/IR input.
	Resolution             // Unknown label, register, or ambiguous symbol.
	Provenance             // Pointer deref with Unknown/Mixed BankInfo.
	Overflow               // Immediate or bank index exceeds representable width.
	Internal               // Register-manager/prologue invariant violated; a compiler bug.
)

// String renders a Kind for human-readable diagnostics.
func (k Kind) String() string {
	switch k {
	case Syntax:
		return "syntax"
	case Resolution:
		return "resolution"
	case Provenance:
		return "provenance"
	case Overflow:
		return "overflow"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Span locates a diagnostic in source text. Line and Column are 1-indexed;
// zero values mean "unknown position" (e.g. a synthesized instruction).
type Span struct {
	File   string
	Line   int
	Column int
}

// String renders "file:line:column", omitting the file when empty.
func (s Span) String() string {
	if s.File == "" {
		return fmt.Sprintf("%d:%d", s.Line, s.Column)
	}
	return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Column)
}

// Error is the located, kinded diagnostic shared by every layer. The
// compiler, assembler and linker all return *Error directly; there are no
// separate per-layer error types.
type Error struct {
	Kind    Kind
	Span    Span
	Message string
	cause   error
}

// Error implements the error interface with the one-line, file:line:column
// summary required by §7 ("no stack traces in user output").
func (e *Error) Error() string {
	if e.Span.Line == 0 && e.Span.File == "" {
		return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s error: %s", e.Span, e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/As and to
// pkg/errors' Cause().
func (e *Error) Unwrap() error {
	return e.cause
}

// New builds a located diagnostic.
func New(kind Kind, span Span, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Span: span, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a located diagnostic to an underlying cause, preserving the
// original error's frame via pkg/errors.WithStack for --debug opt-in traces.
func Wrap(cause error, kind Kind, span Span, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Span: span, Message: fmt.Sprintf(format, args...), cause: errors.WithStack(cause)}
}

// ---------------------
// ----- Functions -----
// ---------------------

// Listener collects diagnostics from a single compilation so that, per §7,
// "compilation stops at the first non-recoverable error per function but
// continues with other functions when possible". A mutex-guarded slice is
// enough: emission is per-function work, not an always-running goroutine
// pool that would need a channel-based collector.
type Listener struct {
	mu   sync.Mutex
	errs []*Error
}

// NewListener returns an empty diagnostic listener.
func NewListener() *Listener {
	return &Listener{}
}

// Append records err if non-nil.
func (l *Listener) Append(err *Error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

// Len reports how many diagnostics have been recorded.
func (l *Listener) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errs)
}

// Errors returns a snapshot of all recorded diagnostics in emission order.
func (l *Listener) Errors() []*Error {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Error, len(l.errs))
	copy(out, l.errs)
	return out
}
