package ld

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/onramp-dev/onramp/internal/hex"
	"github.com/onramp-dev/onramp/internal/scan"
	"github.com/pkg/errors"
)

// tokenKind identifies which of the hex-object grammar's token shapes a
// token holds (spec.md §3.3).
type tokenKind int

const (
	tokHex tokenKind = iota
	tokInvoke
	tokSymbolDef
	tokLabelDef
	tokDirective
	tokArchive
)

// symbolFlags holds the optional flag characters that may precede a symbol
// definition: ? weak, + zero-fill, { constructor[priority], } destructor
// [priority].
type symbolFlags struct {
	weak         bool
	zero         bool
	ctor         bool
	ctorPriority int
	dtor         bool
	dtorPriority int
}

type directiveKind int

const (
	dirLine directiveKind = iota
	dirIncrement
)

// directive is a parsed "#..." debug line. #symbol is never part of the
// input grammar — it is an output-only directive the linker itself
// synthesizes for the .od sidecar (see debug.go), so it has no directiveKind
// here.
type directive struct {
	kind directiveKind
	line int
	file string // empty means "unchanged" for dirLine
}

// token is one lexical unit of a hex object file.
type token struct {
	kind tokenKind
	pos  scan.Position

	b byte // tokHex

	sigil byte        // tokInvoke ('^','<','>','&'), tokSymbolDef ('=','@')
	name  string       // tokInvoke, tokSymbolDef, tokLabelDef, tokArchive
	flags symbolFlags  // tokSymbolDef

	dir directive // tokDirective
}

// tokenize lexes the hex-object content of a single input (or archive) into
// a flat token stream; %filename archive records appear as tokArchive
// tokens within the stream rather than being split out here — region.go
// splits them into per-member slices afterward.
func tokenize(name string, data []byte) ([]token, error) {
	s := scan.New(bytes.NewReader(data), name)
	var toks []token

	for {
		skipSpace(s)
		c := s.Peek()
		if c == scan.EOF {
			break
		}
		pos := s.Position()

		switch {
		case c == ';':
			skipLine(s)

		case c == '#':
			s.SkipByte()
			raw := readLine(s)
			d, err := parseDirectiveText(raw)
			if err != nil {
				return nil, errors.Wrapf(err, "%s:%d", pos.File, pos.Line)
			}
			toks = append(toks, token{kind: tokDirective, pos: pos, dir: d})

		case c == '%':
			s.SkipByte()
			name := strings.TrimSpace(readLine(s))
			toks = append(toks, token{kind: tokArchive, pos: pos, name: name})

		case c == '^' || c == '<' || c == '>' || c == '&':
			sigil := byte(c)
			s.SkipByte()
			nm, err := readIdent(s)
			if err != nil {
				return nil, errors.Wrapf(err, "%s:%d", pos.File, pos.Line)
			}
			toks = append(toks, token{kind: tokInvoke, pos: pos, sigil: sigil, name: nm})

		case c == '=' || c == '@':
			sigil := byte(c)
			s.SkipByte()
			nm, err := readIdent(s)
			if err != nil {
				return nil, errors.Wrapf(err, "%s:%d", pos.File, pos.Line)
			}
			toks = append(toks, token{kind: tokSymbolDef, pos: pos, sigil: sigil, name: nm})

		case c == ':':
			s.SkipByte()
			nm, err := readIdent(s)
			if err != nil {
				return nil, errors.Wrapf(err, "%s:%d", pos.File, pos.Line)
			}
			toks = append(toks, token{kind: tokLabelDef, pos: pos, name: nm})

		case c == '?' || c == '+' || c == '{' || c == '}':
			fl, sigil, nm, err := parseFlaggedSymbol(s)
			if err != nil {
				return nil, errors.Wrapf(err, "%s:%d", pos.File, pos.Line)
			}
			toks = append(toks, token{kind: tokSymbolDef, pos: pos, sigil: sigil, name: nm, flags: fl})

		case hex.IsHexDigit(byte(c)):
			hi, _ := s.Next()
			lo, err := s.Next()
			if err != nil {
				return nil, errors.Wrapf(err, "%s:%d: truncated hex byte", pos.File, pos.Line)
			}
			v, derr := hex.DecodeByte(byte(hi), byte(lo))
			if derr != nil {
				return nil, errors.Wrapf(derr, "%s:%d", pos.File, pos.Line)
			}
			toks = append(toks, token{kind: tokHex, pos: pos, b: v})

		default:
			return nil, errors.Errorf("%s:%d: unexpected character %q", pos.File, pos.Line, rune(c))
		}
	}

	return toks, nil
}

func isSpace(c int) bool {
	return c == ' ' || c == '\t' || c == '\n'
}

func skipSpace(s *scan.Scanner) {
	for isSpace(s.Peek()) {
		s.SkipByte()
	}
}

func skipLine(s *scan.Scanner) {
	for s.Peek() != '\n' && s.Peek() != scan.EOF {
		s.SkipByte()
	}
}

// readLine consumes and returns the rest of the current line, not including
// the line terminator.
func readLine(s *scan.Scanner) string {
	var b strings.Builder
	for s.Peek() != '\n' && s.Peek() != scan.EOF {
		c, _ := s.Next()
		b.WriteByte(byte(c))
	}
	return b.String()
}

func isIdentStart(c int) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentCont(c int) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func readIdent(s *scan.Scanner) (string, error) {
	if !isIdentStart(s.Peek()) {
		return "", errors.Errorf("expected label, symbol or directive name to start with a letter, underscore or dollar sign")
	}
	var b strings.Builder
	for isIdentCont(s.Peek()) {
		c, _ := s.Next()
		b.WriteByte(byte(c))
	}
	return b.String(), nil
}

// parseFlaggedSymbol reads the flag characters preceding a symbol
// definition and the definition itself.
func parseFlaggedSymbol(s *scan.Scanner) (symbolFlags, byte, string, error) {
	var fl symbolFlags
	for {
		switch s.Peek() {
		case '?':
			if fl.weak {
				return fl, 0, "", errors.Errorf("duplicate `?` flag on symbol definition")
			}
			fl.weak = true
			s.SkipByte()
			continue
		case '+':
			if fl.zero {
				return fl, 0, "", errors.Errorf("duplicate `+` flag on symbol definition")
			}
			fl.zero = true
			s.SkipByte()
			continue
		case '{':
			if fl.ctor {
				return fl, 0, "", errors.Errorf("duplicate `{` flag on symbol definition")
			}
			fl.ctor = true
			s.SkipByte()
			fl.ctorPriority = readPriority(s)
			continue
		case '}':
			if fl.dtor {
				return fl, 0, "", errors.Errorf("duplicate `}` flag on symbol definition")
			}
			fl.dtor = true
			s.SkipByte()
			fl.dtorPriority = readPriority(s)
			continue
		}
		break
	}
	c := s.Peek()
	if c != '=' && c != '@' {
		return fl, 0, "", errors.Errorf("expected symbol definition after flags")
	}
	sigil := byte(c)
	s.SkipByte()
	nm, err := readIdent(s)
	return fl, sigil, nm, err
}

func readPriority(s *scan.Scanner) int {
	n := 0
	for s.Peek() >= '0' && s.Peek() <= '9' {
		c, _ := s.Next()
		n = n*10 + int(c-'0')
	}
	return n
}

// parseDirectiveText interprets the text following '#' on a debug
// directive line: bare (a line increment) or "line N" / `line N "file"`.
// #symbol is never valid input — it is synthesized only in output.
func parseDirectiveText(raw string) (directive, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return directive{kind: dirIncrement}, nil
	}

	fields := strings.SplitN(raw, " ", 2)
	if fields[0] != "line" {
		return directive{}, errors.Errorf("unrecognized debug directive %q", fields[0])
	}

	rest := ""
	if len(fields) > 1 {
		rest = strings.TrimSpace(fields[1])
	}

	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i == 0 {
		return directive{}, errors.Errorf("#line must be followed by a line number")
	}
	n, err := strconv.Atoi(rest[:i])
	if err != nil {
		return directive{}, errors.Wrap(err, "malformed #line number")
	}

	rest = strings.TrimSpace(rest[i:])
	file := ""
	if rest != "" {
		if len(rest) < 2 || rest[0] != '"' || rest[len(rest)-1] != '"' {
			return directive{}, errors.Errorf("expected double-quoted filename in #line directive")
		}
		file = rest[1 : len(rest)-1]
	}

	return directive{kind: dirLine, line: n, file: file}, nil
}
