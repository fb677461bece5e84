package asm

import (
	"fmt"

	"github.com/onramp-dev/onramp/internal/hex"
	"github.com/onramp-dev/onramp/internal/onr"
)

// emitter accumulates the hex-object text stream and tracks the word
// alignment counter mandated by spec.md §4.2: at every mnemonic start it must
// be 0, and every emitted byte advances it mod 4.
type emitter struct {
	w     *onr.ErrWriter
	align int
	line  int // current debug line, for passthrough directive bookkeeping
}

func newEmitter(w *onr.ErrWriter) *emitter {
	return &emitter{w: w}
}

// byte emits one literal byte as two hex nibbles and advances alignment.
func (e *emitter) byte(b byte) {
	var buf [3]byte
	buf[0], buf[1], buf[2] = 0, 0, ' '
	hex.EncodeByte(buf[:2], b)
	e.w.Write(buf[:])
	e.align = (e.align + 1) % 4
}

// bytes emits several literal bytes.
func (e *emitter) bytes(bs ...byte) {
	for _, b := range bs {
		e.byte(b)
	}
}

// register emits a register operand byte (0x80 + index).
func (e *emitter) register(idx byte) {
	e.byte(0x80 | idx)
}

// imm emits a mix-encoded small immediate. Callers validate range.
func (e *emitter) imm(v int) {
	e.byte(byte(int8(v)))
}

// invocation emits a sigil-prefixed label/symbol reference token
// (^NAME, <NAME, >NAME, &NAME) and advances alignment by the number of bytes
// the linker will resolve it to (4 for ^, 2 otherwise).
func (e *emitter) invocation(sigil byte, name string, width int) {
	fmt.Fprintf(e.w, "%c%s ", sigil, name)
	e.align = (e.align + width) % 4
}

// definition emits a symbol/label definition token, with any flag
// characters that precede it. A definition resets alignment to 0.
func (e *emitter) definition(flags string, sigil byte, name string) {
	if flags != "" {
		fmt.Fprint(e.w, flags)
	}
	fmt.Fprintf(e.w, "%c%s ", sigil, name)
	e.align = 0
}

// directive copies a verbatim "#..." debug line to the output unchanged.
func (e *emitter) directive(text string) {
	fmt.Fprintf(e.w, "%s\n", text)
}

// newline separates tokens defensively; hex objects are whitespace
// insensitive but emitting one token per output line keeps the object file
// readable, matching the reference assembler's line-oriented output.
func (e *emitter) newline() {
	fmt.Fprint(e.w, "\n")
}
