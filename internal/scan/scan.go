// Package scan implements a character-at-a-time reader with line tracking
// and a one-character lookahead, used by the assembler and linker parsers.
package scan

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
)

// EOF is the distinguished end-of-file sentinel value returned in place of a
// byte.
const EOF = -1

// Position identifies a location in a source file.
type Position struct {
	File string
	Line int
}

// Scanner reads one byte at a time from a source, tracking line number and
// exposing one byte of lookahead. Lines are terminated by LF, CR, or CR+LF;
// all three are normalized to a single '\n' in the lookahead stream and
// count as one line increment.
type Scanner struct {
	r   *bufio.Reader
	pos Position
	cur int // current lookahead byte, or EOF
}

// New creates a Scanner reading from r, attributing positions to file.
func New(r io.Reader, file string) *Scanner {
	s := &Scanner{
		r:   bufio.NewReader(r),
		pos: Position{File: file, Line: 1},
	}
	s.advance()
	return s
}

// Position returns the current line position.
func (s *Scanner) Position() Position {
	return s.pos
}

// Peek returns the current lookahead byte without consuming it, or EOF.
func (s *Scanner) Peek() int {
	return s.cur
}

// advance reads the next raw byte into s.cur, collapsing CR, LF and CR+LF
// into a single normalized '\n' and a single line increment.
func (s *Scanner) advance() {
	b, err := s.r.ReadByte()
	if err != nil {
		s.cur = EOF
		return
	}
	if b == '\r' {
		s.pos.Line++
		if nb, err := s.r.ReadByte(); err == nil && nb != '\n' {
			s.r.UnreadByte()
		}
		s.cur = '\n'
		return
	}
	if b == '\n' {
		s.pos.Line++
	}
	s.cur = int(b)
}

// Next consumes and returns the current lookahead byte, advancing to the
// next one.
func (s *Scanner) Next() (int, error) {
	c := s.cur
	if c == EOF {
		return EOF, errors.Wrap(io.EOF, "unexpected end of file")
	}
	s.advance()
	return c, nil
}

// SkipByte consumes the current lookahead byte without validating it.
func (s *Scanner) SkipByte() {
	s.advance()
}
