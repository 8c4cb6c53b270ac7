// Package output renders CLI messages: a thin writer wrapper so commands
// print consistently and tests can capture what the user sees.
package output

import (
	"fmt"
	"io"
)

// Writer prints user-facing lines.
type Writer struct {
	out io.Writer
}

// New wraps an io.Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Success prints a completed-action line.
func (w *Writer) Success(msg string) {
	fmt.Fprintf(w.out, "✓ %s\n", msg)
}

// Error prints a failure line.
func (w *Writer) Error(msg string) {
	fmt.Fprintf(w.out, "✗ %s\n", msg)
}

// Status prints a progress or informational line, optionally prefixed.
func (w *Writer) Status(prefix, msg string) {
	if prefix != "" {
		fmt.Fprintf(w.out, "%s %s\n", prefix, msg)
		return
	}
	fmt.Fprintln(w.out, msg)
}

// Newline prints a blank separator line.
func (w *Writer) Newline() {
	fmt.Fprintln(w.out)
}
