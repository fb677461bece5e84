package asm

import "github.com/onramp-dev/onramp/internal/scan"

// Operand parsers accept registers (by name or quoted byte), mix values
// (register, signed decimal in range, single-character string, quoted
// byte), and label invocations, per spec.md §4.2.

// parseRegister parses a register operand and returns its index (0-15).
func (p *parser) parseRegister() (byte, error) {
	p.skipSpace()
	if p.s.Peek() == '\'' {
		b, err := p.parseQuotedByte()
		if err != nil {
			return 0, err
		}
		if b > 0x0F {
			return 0, p.fatalf("quoted byte %#x is not a valid register index", b)
		}
		return b, nil
	}
	name, err := p.readIdent()
	if err != nil {
		return 0, err
	}
	idx, ok := registers[name]
	if !ok {
		return 0, p.fatalf("%q is not a register", name)
	}
	return idx, nil
}

// parseRegisterNonScratch parses a register operand, rejecting ra/rb.
func (p *parser) parseRegisterNonScratch() (byte, error) {
	p.skipSpace()
	save := p.s.Position()
	idx, err := p.parseRegister()
	if err != nil {
		return 0, err
	}
	if idx == registers["ra"] || idx == registers["rb"] {
		return 0, p.fatalf("scratch register may not be used here (at %s:%d)", save.File, save.Line)
	}
	return idx, nil
}

// parseMix parses a mix-encoded operand: a register, a quoted byte, a
// single-character string, or a signed decimal/hex literal in -112..127.
func (p *parser) parseMix() (byte, error) {
	p.skipSpace()
	switch c := p.s.Peek(); {
	case isIdentStart(c):
		name, err := p.readIdent()
		if err != nil {
			return 0, err
		}
		idx, ok := registers[name]
		if !ok {
			return 0, p.fatalf("%q is not a register", name)
		}
		return 0x80 | idx, nil
	case c == '\'':
		return p.parseQuotedByte()
	case c == '"':
		return p.parseSingleCharString()
	default:
		v, err := p.parseNumber()
		if err != nil {
			return 0, err
		}
		if v < -112 || v > 127 {
			return 0, p.fatalf("immediate %d out of mix range (-112..127)", v)
		}
		return byte(int8(v)), nil
	}
}

// parseMixNonScratch parses a mix operand, rejecting the scratch registers.
func (p *parser) parseMixNonScratch() (byte, error) {
	m, err := p.parseMix()
	if err != nil {
		return 0, err
	}
	if m == (0x80|registers["ra"]) || m == (0x80|registers["rb"]) {
		return 0, p.fatalf("scratch register may not be used here")
	}
	return m, nil
}

func (p *parser) parseSingleCharString() (byte, error) {
	p.s.SkipByte() // opening quote
	c := p.s.Peek()
	if c == scan.EOF || c == '"' {
		return 0, p.fatalf("expected a single character in string")
	}
	p.s.SkipByte()
	if p.s.Peek() != '"' {
		return 0, p.fatalf("string mix operand must contain exactly one character")
	}
	p.s.SkipByte()
	if c > 0x7F {
		return 0, p.fatalf("character %q out of byte range", rune(c))
	}
	return byte(c), nil
}

// sixteen describes the operand accepted by ims's and jz's final slot: either
// a literal 16-bit value or a sigil-prefixed label invocation.
type sixteen struct {
	literal    bool
	value      int32
	sigil      byte
	name       string
}

// parseSixteen parses the final operand slot of ims (absolute high/low half)
// or jz (relative word offset): a <NAME/>NAME/&NAME invocation, or a literal
// signed number.
func (p *parser) parseSixteen() (sixteen, error) {
	p.skipSpace()
	switch p.s.Peek() {
	case '<', '>', '&':
		sig := byte(p.s.Peek())
		p.s.SkipByte()
		name, err := p.readIdent()
		if err != nil {
			return sixteen{}, err
		}
		return sixteen{sigil: sig, name: name}, nil
	default:
		v, err := p.parseNumber()
		if err != nil {
			return sixteen{}, err
		}
		if v < -32768 || v > 65535 {
			return sixteen{}, p.fatalf("16-bit literal %d out of range", v)
		}
		return sixteen{literal: true, value: int32(v)}, nil
	}
}

// emit writes the resolved sixteen-bit operand as either two literal bytes
// or a 2-byte invocation token.
func (s sixteen) emit(e *emitter) {
	if s.literal {
		e.byte(byte(s.value))
		e.byte(byte(s.value >> 8))
		return
	}
	e.invocation(s.sigil, s.name, 2)
}
