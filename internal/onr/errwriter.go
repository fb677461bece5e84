// Package onr holds small pieces shared by the assembler, linker, and VM
// that don't warrant their own package.
package onr

import (
	"io"

	"github.com/pkg/errors"
)

// ErrWriter wraps an io.Writer and remembers the first write error it sees,
// after which every subsequent Write is a no-op returning that same error.
// This lets the linker's emit stage (spec.md §4.3) write bytes without
// checking every call: once something goes wrong, the run is fatal anyway,
// so the first error is all that matters.
type ErrWriter struct {
	w   io.Writer
	Err error
}

// NewErrWriter returns a new ErrWriter wrapping w.
func NewErrWriter(w io.Writer) *ErrWriter {
	return &ErrWriter{w: w}
}

func (w *ErrWriter) Write(p []byte) (n int, err error) {
	if w.Err != nil {
		return 0, w.Err
	}
	n, err = w.w.Write(p)
	if err != nil {
		w.Err = errors.Wrap(err, "write failed")
	}
	return n, w.Err
}
