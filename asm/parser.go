package asm

import (
	"io"
	"strconv"
	"strings"

	"github.com/onramp-dev/onramp/internal/hex"
	"github.com/onramp-dev/onramp/internal/intern"
	"github.com/onramp-dev/onramp/internal/onr"
	"github.com/onramp-dev/onramp/internal/scan"
	"github.com/pkg/errors"
)

// parser holds the mutable state threaded through a single assembler run:
// the character scanner, the hex-object emitter, and an interner for
// identifier text. The reference implementation
// (original_source/core/as/2-full/src/parse.c) keeps this as a set of
// process-wide globals (current_char, identifier, label_flags, ...); here it
// is held on a struct, following the shape of the teacher's own
// asm/parser.go, which holds a text/scanner.Scanner on a parser receiver
// rather than package state.
type parser struct {
	s  *scan.Scanner
	e  *emitter
	in *intern.Interner

	// localCount generates unique internal label names for branch targets
	// synthesized by macro expansion (shrs, divs, mods, jnz, jge, jle).
	// These names never appear in source; the parser emits both the
	// invocation and the matching definition. A user label spelled the same
	// way in the same file is reported by the linker as a duplicate label.
	localCount int
}

func newParser(s *scan.Scanner, e *emitter) *parser {
	return &parser{s: s, e: e, in: intern.NewInterner()}
}

// Assemble reads Onramp assembly from r and writes the corresponding hex
// object stream to w. name is used for error messages.
func Assemble(w io.Writer, name string, r io.Reader) error {
	s := scan.New(r, name)
	p := newParser(s, newEmitter(onr.NewErrWriter(w)))
	p.e.directive("#line 1 " + quote(name))
	for {
		ok, err := p.step()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
	}
	return nil
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	b.WriteString(s)
	b.WriteByte('"')
	return b.String()
}

func isIdentStart(c int) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentCont(c int) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isDigit(c int) bool {
	return c >= '0' && c <= '9'
}

func isSpace(c int) bool {
	return c == ' ' || c == '\t' || c == '\n'
}

func (p *parser) fatalf(format string, args ...interface{}) error {
	pos := p.s.Position()
	return errors.Wrapf(errors.Errorf(format, args...), "%s:%d", pos.File, pos.Line)
}

// skipSpace consumes spaces, tabs and newlines, but not comments or the '#'
// of a directive line; callers call this between tokens.
func (p *parser) skipSpace() {
	for isSpace(p.s.Peek()) {
		p.s.SkipByte()
	}
}

// step parses and emits the next token. It returns ok=false at end of file.
func (p *parser) step() (ok bool, err error) {
	p.skipSpace()
	c := p.s.Peek()
	switch {
	case c == scan.EOF:
		return false, nil
	case c == ';':
		p.skipLine()
		return true, nil
	case c == '#':
		return true, p.parseDirective()
	case c == '\'':
		return true, p.parseQuotedByteStandalone()
	case c == '"':
		return true, p.parseString()
	case c == '^' || c == '<' || c == '>' || c == '&':
		return true, p.parseInvocationStandalone()
	case c == '=' || c == '@' || c == ':':
		return true, p.parseDefinition("")
	case c == '?' || c == '+' || c == '{' || c == '}':
		return true, p.parseFlaggedDefinition()
	case isDigit(c) || c == '-':
		return true, p.parseNumberStandalone()
	case isIdentStart(c):
		return true, p.parseIdentStart()
	}
	return false, p.fatalf("unexpected character %q", rune(c))
}

func (p *parser) skipLine() {
	for p.s.Peek() != '\n' && p.s.Peek() != scan.EOF {
		p.s.SkipByte()
	}
}

func (p *parser) parseDirective() error {
	var b strings.Builder
	for p.s.Peek() != '\n' && p.s.Peek() != scan.EOF {
		c, _ := p.s.Next()
		b.WriteByte(byte(c))
	}
	p.e.directive(b.String())
	return nil
}

func (p *parser) readIdent() (string, error) {
	var b strings.Builder
	for isIdentCont(p.s.Peek()) {
		c, _ := p.s.Next()
		b.WriteByte(byte(c))
	}
	if b.Len() == 0 {
		return "", p.fatalf("expected identifier")
	}
	return p.in.Intern(b.String()), nil
}

func (p *parser) parseQuotedByteStandalone() error {
	b, err := p.parseQuotedByte()
	if err != nil {
		return err
	}
	p.e.byte(b)
	return nil
}

// parseQuotedByte parses 'HH, a two-hex-digit raw byte literal.
func (p *parser) parseQuotedByte() (byte, error) {
	p.s.SkipByte() // '
	hi, err := p.s.Next()
	if err != nil {
		return 0, p.fatalf("unterminated quoted byte")
	}
	lo, err := p.s.Next()
	if err != nil {
		return 0, p.fatalf("unterminated quoted byte")
	}
	v, derr := hex.DecodeByte(byte(hi), byte(lo))
	if derr != nil {
		return 0, p.fatalf("%v", derr)
	}
	return v, nil
}

func (p *parser) parseString() error {
	p.s.SkipByte() // opening quote
	for {
		c := p.s.Peek()
		if c == scan.EOF {
			return p.fatalf("unterminated string")
		}
		if c == '"' {
			p.s.SkipByte()
			return nil
		}
		p.s.SkipByte()
		p.e.byte(byte(c))
	}
}

func (p *parser) parseInvocationStandalone() error {
	sigil := byte(p.s.Peek())
	p.s.SkipByte()
	name, err := p.readIdent()
	if err != nil {
		return err
	}
	p.e.invocation(sigil, name, invocationWidth(sigil))
	return nil
}

func invocationWidth(sigil byte) int {
	if sigil == '^' {
		return 4
	}
	return 2
}

func (p *parser) parseDefinition(flags string) error {
	sigil := byte(p.s.Peek())
	p.s.SkipByte()
	name, err := p.readIdent()
	if err != nil {
		return err
	}
	p.e.definition(flags, sigil, name)
	return nil
}

// parseFlaggedDefinition parses the optional flag characters (?+{}) that may
// precede a symbol definition, then the definition itself. { and } may carry
// a decimal priority.
func (p *parser) parseFlaggedDefinition() error {
	var b strings.Builder
	for {
		c := p.s.Peek()
		switch c {
		case '?', '+':
			b.WriteByte(byte(c))
			p.s.SkipByte()
			continue
		case '{', '}':
			b.WriteByte(byte(c))
			p.s.SkipByte()
			for isDigit(p.s.Peek()) {
				d, _ := p.s.Next()
				b.WriteByte(byte(d))
			}
			continue
		}
		break
	}
	if p.s.Peek() != '=' && p.s.Peek() != '@' {
		return p.fatalf("expected symbol definition after flags")
	}
	return p.parseDefinition(b.String())
}

func (p *parser) parseNumberStandalone() error {
	v, err := p.parseNumber()
	if err != nil {
		return err
	}
	var buf [4]byte
	hex.PutUint32(buf[:], uint32(v))
	p.e.bytes(buf[0], buf[1], buf[2], buf[3])
	return nil
}

// parseNumber parses a decimal or 0x-prefixed hex integer literal, with an
// optional leading '-'.
func (p *parser) parseNumber() (int64, error) {
	neg := false
	if p.s.Peek() == '-' {
		neg = true
		p.s.SkipByte()
	}
	var b strings.Builder
	base := 10
	if p.s.Peek() == '0' {
		b.WriteByte('0')
		p.s.SkipByte()
		if p.s.Peek() == 'x' || p.s.Peek() == 'X' {
			p.s.SkipByte()
			base = 16
			b.Reset()
			for isHexDigit(p.s.Peek()) {
				c, _ := p.s.Next()
				b.WriteByte(byte(c))
			}
			if b.Len() == 0 {
				return 0, p.fatalf("malformed hex literal")
			}
			v, err := strconv.ParseInt(b.String(), 16, 64)
			if err != nil {
				return 0, p.fatalf("malformed hex literal: %v", err)
			}
			if neg {
				v = -v
			}
			return v, nil
		}
	}
	for isDigit(p.s.Peek()) {
		c, _ := p.s.Next()
		b.WriteByte(byte(c))
	}
	if b.Len() == 0 {
		return 0, p.fatalf("malformed numeric literal")
	}
	v, err := strconv.ParseInt(b.String(), base, 64)
	if err != nil {
		return 0, p.fatalf("malformed numeric literal: %v", err)
	}
	if neg {
		v = -v
	}
	return v, nil
}

func isHexDigit(c int) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// parseIdentStart reads a leading identifier and decides whether it is a
// mnemonic (dispatched) — there is no other standalone use of a bare
// identifier at the top level.
func (p *parser) parseIdentStart() error {
	name, err := p.readIdent()
	if err != nil {
		return err
	}
	if p.e.align != 0 {
		return p.fatalf("instruction %q does not start at a word-aligned position", name)
	}
	h, ok := mnemonics[name]
	if !ok {
		return p.fatalf("unknown mnemonic %q", name)
	}
	return h(p)
}
