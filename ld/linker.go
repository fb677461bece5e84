// Package ld implements the Onramp linker: it resolves labels and symbols
// across hex object files and static archives, optionally eliminates dead
// symbols, and emits a bytecode image with an optional debug sidecar
// (spec.md §4.3).
package ld

import (
	"io"

	"github.com/onramp-dev/onramp/internal/hex"
	"github.com/onramp-dev/onramp/internal/intern"
	"github.com/onramp-dev/onramp/internal/onr"
	"github.com/onramp-dev/onramp/internal/scan"
	"github.com/pkg/errors"
)

// Options controls the optional behaviors of a link (spec.md §6.2).
type Options struct {
	Optimize bool // dead-symbol elimination
	Debug    bool // produce a .od sidecar
}

// Input is one tokenized command-line input (a hex object or a static
// archive of several).
type Input struct {
	Name   string
	Tokens []token
}

// ReadInput reads and tokenizes a hex object or archive.
func ReadInput(name string, r io.Reader) (Input, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Input{}, errors.Wrapf(err, "reading %s", name)
	}
	toks, err := tokenize(name, data)
	if err != nil {
		return Input{}, err
	}
	return Input{Name: name, Tokens: toks}, nil
}

// Linker holds the state threaded through a single link: the symbol and
// label tables, the current parse position, and (during emission) the
// output and debug writers. This collapses the reference's process-wide
// globals (current_symbol, current_address, file_index, ...) onto a
// struct, the same way asm's parser holds its state on a receiver instead
// of package variables.
type Linker struct {
	opts    Options
	symbols *intern.SymbolTable
	labels  *intern.LabelTable

	fileIndex int
	filename  string

	currentSymbol *intern.Symbol
	currentAddr   uint32

	out *onr.ErrWriter
	dbg *debugEmitter
}

// NewLinker returns a Linker ready to process inputs under opts.
func NewLinker(opts Options) *Linker {
	return &Linker{
		opts:    opts,
		symbols: intern.NewSymbolTable(),
		labels:  intern.NewLabelTable(),
	}
}

// Link resolves all symbols and labels across inputs and writes the linked
// image to out. If opts.Debug is set, dbgOut must be non-nil and receives
// the .od sidecar naming target as its subject. Any non-fatal warnings
// encountered (such as a first symbol not named __start) are returned
// alongside a nil error.
func (l *Linker) Link(inputs []Input, out io.Writer, dbgOut io.Writer, target string) ([]string, error) {
	var warnings []string

	if err := l.passDefine(inputs, &warnings); err != nil {
		return warnings, err
	}

	if l.opts.Optimize {
		if err := l.passUseEdges(inputs); err != nil {
			return warnings, err
		}
		l.symbols.WalkUse()
	}

	if _, _, err := l.symbols.CreateGenerated(); err != nil {
		return warnings, err
	}
	l.symbols.AssignAddresses()

	l.out = onr.NewErrWriter(out)
	if l.opts.Debug {
		l.dbg = newDebugEmitter(dbgOut, target)
	}

	if err := l.passEmit(inputs); err != nil {
		return warnings, err
	}
	if l.dbg != nil {
		l.dbg.flush()
	}
	if l.out.Err != nil {
		return warnings, l.out.Err
	}
	return warnings, nil
}

func defScope(sigil byte, fileIndex int) int {
	if sigil == '=' {
		return intern.GlobalFile
	}
	return fileIndex
}

func invocationWidth(sigil byte) uint32 {
	if sigil == '^' {
		return 4
	}
	return 2
}

func applyFlags(sym *intern.Symbol, fl symbolFlags) {
	if fl.weak {
		sym.Flags |= intern.FlagWeak
	}
	if fl.zero {
		sym.Flags |= intern.FlagZero
	}
	if fl.ctor {
		sym.Flags |= intern.FlagConstructor
		sym.Priority = fl.ctorPriority
	}
	if fl.dtor {
		sym.Flags |= intern.FlagDestructor
		sym.Priority = fl.dtorPriority
	}
}

func (l *Linker) fatalAt(pos scan.Position, format string, args ...interface{}) error {
	return errors.Wrapf(errors.Errorf(format, args...), "%s:%d", pos.File, pos.Line)
}

// passDefine is pass 0: it defines every symbol and measures its size.
// Labels are not yet resolved.
func (l *Linker) passDefine(inputs []Input, warnings *[]string) error {
	l.fileIndex = -1
	l.currentSymbol = nil
	l.currentAddr = 0

	for _, in := range inputs {
		for _, rg := range splitRegions(in.Name, in.Tokens) {
			l.fileIndex++
			l.filename = rg.name

			for _, t := range rg.tokens {
				switch t.kind {
				case tokHex:
					if l.currentSymbol == nil {
						return l.fatalAt(t.pos, "bytes cannot appear outside of a symbol")
					}
					l.currentAddr++

				case tokInvoke:
					if l.currentSymbol == nil {
						return l.fatalAt(t.pos, "bytes cannot appear outside of a symbol")
					}
					l.currentAddr += invocationWidth(t.sigil)

				case tokSymbolDef:
					if l.currentSymbol != nil {
						l.currentSymbol.Size = l.currentAddr
					}
					sym, err := l.symbols.Define(t.name, defScope(t.sigil, l.fileIndex), l.opts.Optimize)
					if err != nil {
						return l.fatalAt(t.pos, "%s", err)
					}
					applyFlags(sym, t.flags)
					if w := l.symbols.Insert(sym); w != "" {
						*warnings = append(*warnings, w)
					}
					l.currentSymbol = sym
					l.currentAddr = 0
				}
			}
		}
	}

	if l.currentSymbol != nil {
		l.currentSymbol.Size = l.currentAddr
	}
	return nil
}

// passUseEdges is the optional pass 1: it records, for each symbol, the
// symbols its invocations reference, building the graph symbols.WalkUse
// marks reachability over. An invocation of a label defined in the same
// region adds an edge to the symbol that contains the label (the symbol
// resolve lands in); any other invocation adds an edge to the symbol it
// names, if one is defined.
func (l *Linker) passUseEdges(inputs []Input) error {
	l.fileIndex = -1
	l.currentSymbol = nil

	for _, in := range inputs {
		for _, rg := range splitRegions(in.Name, in.Tokens) {
			l.fileIndex++
			l.filename = rg.name

			labelOwners := make(map[string]*intern.Symbol)
			owner := l.currentSymbol
			for _, t := range rg.tokens {
				switch t.kind {
				case tokSymbolDef:
					owner = l.symbols.Find(t.name, defScope(t.sigil, l.fileIndex))
				case tokLabelDef:
					if owner != nil {
						labelOwners[t.name] = owner
					}
				}
			}

			for _, t := range rg.tokens {
				switch t.kind {
				case tokSymbolDef:
					sym := l.symbols.Find(t.name, defScope(t.sigil, l.fileIndex))
					if sym == nil {
						return l.fatalAt(t.pos, "internal error: symbol %q missing in use pass", t.name)
					}
					l.currentSymbol = sym

				case tokInvoke:
					if l.currentSymbol == nil {
						continue
					}
					if lblSym, ok := labelOwners[t.name]; ok {
						l.currentSymbol.AddUse(lblSym)
					} else if target := l.symbols.Find(t.name, l.fileIndex); target != nil {
						l.currentSymbol.AddUse(target)
					}
				}
			}
		}
	}
	return nil
}

// passEmit is the combined pass 2 (label collection) and pass 3 (byte
// emission). For each region it collects labels with one scan, then emits
// bytes with a second scan that can now resolve every reference — the
// in-memory equivalent of the reference's fgetpos/fsetpos rewind-and-reread
// (original_source/core/ld/2-full/src/parse.c's save_file_state/
// restore_file_state), sanctioned directly by spec.md §9 as an alternative
// to the live-file-handle technique.
//
// current_symbol/current_address carry on across region and file
// boundaries exactly as they do in passDefine, so that word-padding
// between two symbols defined in different regions lands at the same
// address symbols.AssignAddresses already computed. The label-collection
// scan must not disturb that running state for the emission scan that
// follows, so it runs against a saved/restored snapshot.
func (l *Linker) passEmit(inputs []Input) error {
	l.fileIndex = -1
	l.currentSymbol = nil
	l.currentAddr = 0

	for _, in := range inputs {
		for _, rg := range splitRegions(in.Name, in.Tokens) {
			l.fileIndex++
			l.filename = rg.name
			l.labels.Clear()

			savedSym, savedAddr := l.currentSymbol, l.currentAddr
			if err := l.collectLabels(rg.tokens); err != nil {
				return err
			}
			l.currentSymbol, l.currentAddr = savedSym, savedAddr
			if err := l.emitRegion(rg.tokens); err != nil {
				return err
			}
		}
	}

	return l.emitGeneratedSymbols()
}

func (l *Linker) collectLabels(tokens []token) error {
	for _, t := range tokens {
		switch t.kind {
		case tokHex:
			l.currentAddr++

		case tokInvoke:
			l.currentAddr += invocationWidth(t.sigil)

		case tokSymbolDef:
			l.currentAddr = 0
			sym := l.symbols.Find(t.name, defScope(t.sigil, l.fileIndex))
			if sym == nil {
				return l.fatalAt(t.pos, "internal error: symbol %q missing in label pass", t.name)
			}
			l.currentSymbol = sym

		case tokLabelDef:
			if l.currentSymbol == nil {
				return l.fatalAt(t.pos, "a label cannot appear outside of a symbol")
			}
			if l.symbols.Find(t.name, l.fileIndex) != nil {
				return l.fatalAt(t.pos, "label is already defined as a symbol: %s", t.name)
			}
			if _, err := l.labels.Define(t.name, l.currentSymbol, l.currentAddr); err != nil {
				return l.fatalAt(t.pos, "%s", err)
			}
		}
	}
	return nil
}

// emitRegion resolves and writes every token of one region. Tokens
// belonging to an unused (dead-eliminated) symbol are skipped entirely:
// spec.md §4.3 states plainly that "only used symbols receive addresses
// and emit bytes" — the reference snapshot this is grounded on actually
// emits dead bytes unconditionally (try_parse_hex/try_parse_invoke never
// check is_used), which would corrupt the image under -O, so this
// implementation follows the spec's stated contract instead.
func (l *Linker) emitRegion(tokens []token) error {
	if l.dbg != nil {
		l.dbg.setSourceLocation(l.filename, 1)
	}

	for _, t := range tokens {
		switch t.kind {
		case tokHex:
			if l.currentSymbol != nil && l.currentSymbol.Used {
				l.emitByte(t.b)
			}
			l.currentAddr++

		case tokInvoke:
			l.currentAddr += invocationWidth(t.sigil)
			if err := l.emitInvocation(t); err != nil {
				return err
			}

		case tokSymbolDef:
			if l.currentSymbol != nil && l.currentSymbol.Used {
				l.padToWord()
			}
			l.currentAddr = 0
			sym := l.symbols.Find(t.name, defScope(t.sigil, l.fileIndex))
			if sym == nil {
				return l.fatalAt(t.pos, "internal error: symbol %q missing in emit pass", t.name)
			}
			l.currentSymbol = sym
			if l.dbg != nil {
				l.dbg.setSymbol(sym.Name)
			}

		case tokDirective:
			l.applyDirective(t.dir)
		}
	}
	return nil
}

func (l *Linker) applyDirective(d directive) {
	if l.dbg == nil {
		return
	}
	switch d.kind {
	case dirLine:
		l.dbg.setSourceLocation(d.file, d.line)
	case dirIncrement:
		l.dbg.incrementLine()
	}
}

// emitInvocation resolves and writes one ^/</>/& reference. Resolution
// tries the current file's labels first (a label in file F shadows a
// global symbol of the same name when resolving a reference in F, per
// spec.md §3.2), then falls back to the symbol table.
func (l *Linker) emitInvocation(t token) error {
	if l.currentSymbol == nil || !l.currentSymbol.Used {
		return nil
	}

	addr, err := l.resolve(t.name, t.pos)
	if err != nil {
		return err
	}

	switch t.sigil {
	case '^':
		l.emitUint32(addr)
	case '<':
		l.emitUint16(uint16(addr >> 16))
	case '>':
		l.emitUint16(uint16(addr))
	case '&':
		refAddr := int64(l.currentSymbol.Address) + int64(l.currentAddr)
		offset := int64(addr) - refAddr
		// The stored value is a signed 16-bit word count (±0x7FFF words),
		// so the legal byte-offset range is ±0x1FFFC (spec.md §8).
		if offset < -0x1FFFC || offset > 0x1FFFC {
			return l.fatalAt(t.pos, "relative invocation out of bounds")
		}
		if offset&0x3 != 0 {
			return l.fatalAt(t.pos, "relative invocation is misaligned")
		}
		offset >>= 2
		l.emitUint16(uint16(int16(offset)))
	}
	return nil
}

func (l *Linker) resolve(name string, pos scan.Position) (uint32, error) {
	if lbl := l.labels.Find(name); lbl != nil {
		return lbl.Symbol.Address + lbl.Address, nil
	}
	sym := l.symbols.Find(name, l.fileIndex)
	if sym == nil {
		return 0, l.fatalAt(pos, "definition not found: %s", name)
	}
	return sym.Address, nil
}

func (l *Linker) padToWord() {
	for l.currentAddr&3 != 0 {
		l.emitByte(0)
		l.currentAddr++
	}
}

// emitGeneratedSymbols writes the synthesized __constructors/__destructors
// address arrays once, after every input has been emitted, grounded on
// original_source/core/ld/2-full/src/symbol.c's symbols_emit_generated.
// The reference calls this once per physical input file, but since it
// unconditionally (re-)emits the full program-wide constructor and
// destructor lists every time, calling it more than once would duplicate
// their bytes in the image; a single call after the last input produces
// the same result the reference's last, only meaningful call does.
func (l *Linker) emitGeneratedSymbols() error {
	if l.currentSymbol != nil && l.currentSymbol.Used {
		l.padToWord()
	}
	l.currentAddr = 0
	l.currentSymbol = nil

	if err := l.emitGeneratedList("__constructors", l.symbols.SortedConstructors()); err != nil {
		return err
	}
	return l.emitGeneratedList("__destructors", l.symbols.SortedDestructors())
}

func (l *Linker) emitGeneratedList(name string, list []*intern.Symbol) error {
	sym := l.symbols.Find(name, intern.GlobalFile)
	if sym == nil || !sym.Used {
		return nil
	}
	if l.dbg != nil {
		l.dbg.setSourceLocation("<builtin>", 0)
		l.dbg.setSymbol(name)
	}
	for _, s := range list {
		l.emitUint32(s.Address)
	}
	l.emitUint32(0)
	return nil
}

func (l *Linker) emitByte(b byte) {
	l.out.Write([]byte{b})
	if l.dbg != nil {
		l.dbg.countByte()
	}
}

func (l *Linker) emitUint16(v uint16) {
	var buf [2]byte
	hex.PutUint16(buf[:], v)
	l.emitByte(buf[0])
	l.emitByte(buf[1])
}

func (l *Linker) emitUint32(v uint32) {
	var buf [4]byte
	hex.PutUint32(buf[:], v)
	for _, b := range buf {
		l.emitByte(b)
	}
}
