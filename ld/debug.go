package ld

import (
	"fmt"
	"io"
)

// debugEmitter tracks source-location and symbol state for the .od debug
// sidecar (spec.md §3.5), grounded on
// original_source/core/ld/2-full/src/emit.c's emit_source_location/
// emit_symbol/emit_byte_count trio. Directives are written only when state
// changes; bytes accumulate between changes and are flushed as a decimal
// count when the next directive is due.
type debugEmitter struct {
	w io.Writer

	filename string
	line     int
	haveLoc  bool
	symbol   string

	count int
}

func newDebugEmitter(w io.Writer, target string) *debugEmitter {
	fmt.Fprintf(w, "; Onramp debug info for: %s\n", target)
	return &debugEmitter{w: w, line: 1}
}

func (d *debugEmitter) countByte() {
	d.count++
}

func (d *debugEmitter) flushCount() {
	if d.count == 0 {
		return
	}
	fmt.Fprintf(d.w, "%d\n", d.count)
	d.count = 0
}

// setSourceLocation records a new source file/line for subsequent bytes. An
// empty filename means the file hasn't changed. A line that's exactly one
// past the previous one, with the file unchanged, is written as a bare '#'
// rather than a full #line directive.
func (d *debugEmitter) setSourceLocation(filename string, line int) {
	if d.haveLoc && (filename == "" || filename == d.filename) && line == d.line+1 {
		d.flushCount()
		d.line = line
		fmt.Fprint(d.w, "#\n")
		return
	}

	if filename != "" {
		d.filename = filename
	}
	d.line = line
	d.haveLoc = true

	d.flushCount()
	fmt.Fprintf(d.w, "#line %d %q\n", d.line, d.filename)
}

func (d *debugEmitter) incrementLine() {
	d.setSourceLocation("", d.line+1)
}

// setSymbol names the symbol that subsequent bytes belong to. Onramp's own
// assembler output never contains a "#symbol" input directive — this is
// called directly by the linker whenever current_symbol changes.
func (d *debugEmitter) setSymbol(name string) {
	if d.symbol == name {
		return
	}
	d.flushCount()
	d.symbol = name
	fmt.Fprintf(d.w, "#symbol %s\n", name)
}

func (d *debugEmitter) flush() {
	d.flushCount()
}
