package asm

// mnemonicHandler parses the operands of one source-level instruction
// (already past the mnemonic identifier) and emits the corresponding hex
// bytes. The alignment check that the mnemonic starts at an aligned
// position has already been performed by the caller.
type mnemonicHandler func(p *parser) error

// mnemonics is built from the primitive opcode table and the macro
// expansions; see macros.go.
var mnemonics map[string]mnemonicHandler

func init() {
	mnemonics = make(map[string]mnemonicHandler)
	for name, op := range primitiveOps {
		op := op
		mnemonics[name] = destMixMixHandler(op)
	}
	mnemonics["stw"] = mixMixMixHandler(opStw)
	mnemonics["stb"] = mixMixMixHandler(opStb)
	mnemonics["ims"] = imsHandler
	mnemonics["jz"] = jzHandler
	mnemonics["sys"] = sysHandler
	registerMacros(mnemonics)
}

func emit4(e *emitter, op, b1, b2, b3 byte) {
	e.bytes(op, b1, b2, b3)
}

// destMixMixHandler builds a handler for the "dest-reg, mix, mix" shape
// shared by add/sub/mul/divu/and/or/xor/ror/ldw/ldb/cmpu.
func destMixMixHandler(op byte) mnemonicHandler {
	return func(p *parser) error {
		d, err := p.parseRegister()
		if err != nil {
			return err
		}
		a, err := p.parseMix()
		if err != nil {
			return err
		}
		b, err := p.parseMix()
		if err != nil {
			return err
		}
		emit4(p.e, op, 0x80|d, a, b)
		return nil
	}
}

// mixMixMixHandler builds a handler for the "mix, mix, mix" shape used by
// stw/stb (value, base, offset).
func mixMixMixHandler(op byte) mnemonicHandler {
	return func(p *parser) error {
		v, err := p.parseMix()
		if err != nil {
			return err
		}
		base, err := p.parseMix()
		if err != nil {
			return err
		}
		off, err := p.parseMix()
		if err != nil {
			return err
		}
		emit4(p.e, op, v, base, off)
		return nil
	}
}

func imsHandler(p *parser) error {
	d, err := p.parseRegister()
	if err != nil {
		return err
	}
	if d == registers["rip"] {
		return p.fatalf("ims into rip is forbidden")
	}
	s, err := p.parseSixteen()
	if err != nil {
		return err
	}
	p.e.byte(opIms)
	p.e.byte(0x80 | d)
	s.emit(p.e)
	return nil
}

func jzHandler(p *parser) error {
	pred, err := p.parseMix()
	if err != nil {
		return err
	}
	off, err := p.parseSixteen()
	if err != nil {
		return err
	}
	p.e.byte(opJz)
	p.e.byte(pred)
	off.emit(p.e)
	return nil
}

func sysHandler(p *parser) error {
	p.skipSpace()
	name, err := p.readIdent()
	if err != nil {
		return err
	}
	num, ok := syscalls[name]
	if !ok {
		return p.fatalf("unknown syscall %q", name)
	}
	for i := 0; i < 2; i++ {
		p.skipSpace()
		if p.s.Peek() != '\'' {
			return p.fatalf("sys %s must be followed by two zero quoted bytes", name)
		}
		b, err := p.parseQuotedByte()
		if err != nil {
			return err
		}
		if b != 0 {
			return p.fatalf("sys %s padding byte must be zero", name)
		}
	}
	emit4(p.e, opSys, num, 0, 0)
	return nil
}
