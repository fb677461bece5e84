package asm

import "fmt"

// Macro-instruction expansion (spec.md §4.2). Each mnemonic below expands to
// one or more primitive instructions; the exact sequence is part of the ABI.
// Where spec.md gives the sequence literally (zero/inc/dec/mov/not/push/pop/
// enter/leave/ret/jmp/call), it is followed exactly, including the "+8"
// return-address displacement for call: when `add r, rip, 8` executes, rip
// already points at the instruction after it, so in both the relative and
// absolute forms below rip+8 is the macro's final `add rsp, rsp, 4`, which
// drops the return-address slot once the callee's ret (an ldw that leaves
// rsp unchanged) jumps back.
// Where spec.md only describes the technique in prose (shl, shrs, divs,
// mods), the sequence here is derived from that technique rather than
// copied byte-for-byte from original_source/core/as/2-full/src/opcodes.c.
// asm_test.go checks selected encoded bytes of some expansions; no test
// executes them.

func registerMacros(m map[string]mnemonicHandler) {
	m["zero"] = zeroHandler
	m["inc"] = incHandler
	m["dec"] = decHandler
	m["mov"] = movHandler
	m["not"] = notHandler
	m["push"] = pushHandler
	m["pop"] = popHandler
	m["popd"] = popdHandler
	m["rol"] = rolHandler
	m["shru"] = shruHandler
	m["shl"] = shlHandler
	m["shrs"] = shrsHandler
	m["divs"] = divsHandler
	m["mods"] = modsHandler
	m["cmps"] = cmpsHandler
	m["jmp"] = jmpHandler
	m["je"] = jzHandler
	m["jnz"] = jnzHandler
	m["jne"] = jnzHandler
	m["jg"] = jgHandler
	m["jl"] = jlHandler
	m["jge"] = jgeHandler
	m["jle"] = jleHandler
	m["call"] = callHandler
	m["ret"] = retHandler
	m["enter"] = enterHandler
	m["leave"] = leaveHandler
	m["imw"] = imwHandler
}

var regRA = registers["ra"]
var regRB = registers["rb"]
var regRSP = registers["rsp"]
var regRFP = registers["rfp"]
var regRPP = registers["rpp"]
var regRIP = registers["rip"]

func (p *parser) localLabel() string {
	p.localCount++
	return fmt.Sprintf("__onramp_macro_l%d", p.localCount)
}

func zeroHandler(p *parser) error {
	d, err := p.parseRegister()
	if err != nil {
		return err
	}
	emit4(p.e, opAdd, 0x80|d, 0, 0)
	return nil
}

func incHandler(p *parser) error {
	d, err := p.parseRegister()
	if err != nil {
		return err
	}
	emit4(p.e, opAdd, 0x80|d, 0x80|d, 1)
	return nil
}

func decHandler(p *parser) error {
	d, err := p.parseRegister()
	if err != nil {
		return err
	}
	emit4(p.e, opSub, 0x80|d, 0x80|d, 1)
	return nil
}

func movHandler(p *parser) error {
	d, err := p.parseRegister()
	if err != nil {
		return err
	}
	s, err := p.parseMix()
	if err != nil {
		return err
	}
	emit4(p.e, opAdd, 0x80|d, 0, s)
	return nil
}

func notHandler(p *parser) error {
	d, err := p.parseRegister()
	if err != nil {
		return err
	}
	s, err := p.parseMix()
	if err != nil {
		return err
	}
	emit4(p.e, opSub, 0x80|d, 0xFF, s)
	return nil
}

func pushHandler(p *parser) error {
	v, err := p.parseMix()
	if err != nil {
		return err
	}
	emit4(p.e, opSub, 0x80|regRSP, 0x80|regRSP, 4)
	emit4(p.e, opStw, v, 0x80|regRSP, 0)
	return nil
}

func popHandler(p *parser) error {
	d, err := p.parseRegister()
	if err != nil {
		return err
	}
	emit4(p.e, opLdw, 0x80|d, 0x80|regRSP, 0)
	emit4(p.e, opAdd, 0x80|regRSP, 0x80|regRSP, 4)
	return nil
}

func popdHandler(p *parser) error {
	emit4(p.e, opAdd, 0x80|regRSP, 0x80|regRSP, 4)
	return nil
}

func enterHandler(p *parser) error {
	emit4(p.e, opSub, 0x80|regRSP, 0x80|regRSP, 4)
	emit4(p.e, opStw, 0x80|regRFP, 0x80|regRSP, 0)
	emit4(p.e, opAdd, 0x80|regRFP, 0x80|regRSP, 0)
	return nil
}

func leaveHandler(p *parser) error {
	emit4(p.e, opAdd, 0x80|regRSP, 0x80|regRFP, 0)
	emit4(p.e, opLdw, 0x80|regRFP, 0x80|regRSP, 0)
	emit4(p.e, opAdd, 0x80|regRSP, 0x80|regRSP, 4)
	return nil
}

func retHandler(p *parser) error {
	emit4(p.e, opLdw, 0x80|regRIP, 0x80|regRSP, 0)
	return nil
}

// rol D S N -> sub ra 32 N; ror D S ra
func rolHandler(p *parser) error {
	d, err := p.parseRegister()
	if err != nil {
		return err
	}
	s, err := p.parseMixNonScratch()
	if err != nil {
		return err
	}
	n, err := p.parseMixNonScratch()
	if err != nil {
		return err
	}
	emit4(p.e, opSub, 0x80|regRA, 32, n)
	emit4(p.e, opRor, 0x80|d, s, 0x80|regRA)
	return nil
}

// shru D S N -> ror rb 1 N; sub rb rb 1; ror ra S N; and D ra rb
func shruHandler(p *parser) error {
	d, err := p.parseRegister()
	if err != nil {
		return err
	}
	s, err := p.parseMixNonScratch()
	if err != nil {
		return err
	}
	n, err := p.parseMixNonScratch()
	if err != nil {
		return err
	}
	emit4(p.e, opRor, 0x80|regRB, 1, n)
	emit4(p.e, opSub, 0x80|regRB, 0x80|regRB, 1)
	emit4(p.e, opRor, 0x80|regRA, s, n)
	emit4(p.e, opAnd, 0x80|d, 0x80|regRA, 0x80|regRB)
	return nil
}

// shl D S N: build the low-N-ones mask via the same ror/sub technique as
// shru, complement it to get the high-(32-N)-ones keep-mask, rotate S left
// by N (as rol does: ror by 32-N), and mask.
func shlHandler(p *parser) error {
	d, err := p.parseRegister()
	if err != nil {
		return err
	}
	s, err := p.parseMixNonScratch()
	if err != nil {
		return err
	}
	n, err := p.parseMixNonScratch()
	if err != nil {
		return err
	}
	emit4(p.e, opSub, 0x80|regRB, 32, n)
	emit4(p.e, opRor, 0x80|regRB, 1, 0x80|regRB)
	emit4(p.e, opSub, 0x80|regRB, 0x80|regRB, 1) // rb = low N ones
	emit4(p.e, opSub, 0x80|regRB, 0xFF, 0x80|regRB)
	emit4(p.e, opSub, 0x80|regRA, 32, n)
	emit4(p.e, opRor, 0x80|regRA, s, 0x80|regRA) // ra = rotate_left(S, N)
	emit4(p.e, opAnd, 0x80|d, 0x80|regRA, 0x80|regRB)
	return nil
}

// shrs D S N: logical shift right by N (as shru), then if S's sign bit was
// set, OR in the sign-extension bits. D must not be ra/rb: unlike shru/shl,
// D is written before the expansion's last instruction, so a D aliasing a
// still-live scratch register would get clobbered before the final OR.
func shrsHandler(p *parser) error {
	d, err := p.parseRegisterNonScratch()
	if err != nil {
		return err
	}
	s, err := p.parseMixNonScratch()
	if err != nil {
		return err
	}
	n, err := p.parseMixNonScratch()
	if err != nil {
		return err
	}
	emit4(p.e, opRor, 0x80|regRB, 1, n)
	emit4(p.e, opSub, 0x80|regRB, 0x80|regRB, 1) // rb = low (32-N) ones
	emit4(p.e, opRor, 0x80|regRA, s, n)
	emit4(p.e, opAnd, 0x80|d, 0x80|regRA, 0x80|regRB) // D = logical shru result

	emit4(p.e, opRor, 0x80|regRA, s, 31)
	emit4(p.e, opAnd, 0x80|regRA, 0x80|regRA, 1) // ra = sign bit of S
	skip := p.localLabel()
	p.e.byte(opJz)
	p.e.byte(0x80 | regRA)
	p.e.invocation('&', skip, 2)
	emit4(p.e, opSub, 0x80|regRB, 0xFF, 0x80|regRB) // rb = top N ones
	emit4(p.e, opOr, 0x80|d, 0x80|d, 0x80|regRB)
	p.e.definition("", ':', skip)
	return nil
}

// divs D A B: absolute value both operands via sign-bit extraction, unsigned
// divide, then negate if the signs differed. D, A, and B must all be plain
// registers other than ra/rb: ra/rb hold the running absolute values and the
// combined sign flag throughout the expansion, so D aliasing either would
// get overwritten by a later scratch write before the final negate.
func divsHandler(p *parser) error {
	d, err := p.parseRegisterNonScratch()
	if err != nil {
		return err
	}
	a, err := p.parseRegisterNonScratch()
	if err != nil {
		return err
	}
	b, err := p.parseRegisterNonScratch()
	if err != nil {
		return err
	}

	emit4(p.e, opRor, 0x80|regRA, 0x80|a, 31)
	emit4(p.e, opAnd, 0x80|regRA, 0x80|regRA, 1)
	emit4(p.e, opRor, 0x80|regRB, 0x80|b, 31)
	emit4(p.e, opAnd, 0x80|regRB, 0x80|regRB, 1)
	emit4(p.e, opXor, 0x80|regRA, 0x80|regRA, 0x80|regRB) // ra = signA xor signB
	emit4(p.e, opSub, 0x80|regRSP, 0x80|regRSP, 4)
	emit4(p.e, opStw, 0x80|regRA, 0x80|regRSP, 0) // push combined sign

	emit4(p.e, opAdd, 0x80|regRA, 0, 0x80|a)
	emit4(p.e, opRor, 0x80|regRB, 0x80|a, 31)
	emit4(p.e, opAnd, 0x80|regRB, 0x80|regRB, 1)
	skipA := p.localLabel()
	p.e.byte(opJz)
	p.e.byte(0x80 | regRB)
	p.e.invocation('&', skipA, 2)
	emit4(p.e, opSub, 0x80|regRA, 0, 0x80|regRA)
	p.e.definition("", ':', skipA)

	emit4(p.e, opAdd, 0x80|regRB, 0, 0x80|b)
	emit4(p.e, opRor, 0x80|d, 0x80|b, 31)
	emit4(p.e, opAnd, 0x80|d, 0x80|d, 1)
	skipB := p.localLabel()
	p.e.byte(opJz)
	p.e.byte(0x80 | d)
	p.e.invocation('&', skipB, 2)
	emit4(p.e, opSub, 0x80|regRB, 0, 0x80|regRB)
	p.e.definition("", ':', skipB)

	emit4(p.e, opDivu, 0x80|d, 0x80|regRA, 0x80|regRB)

	emit4(p.e, opLdw, 0x80|regRA, 0x80|regRSP, 0)
	emit4(p.e, opAdd, 0x80|regRSP, 0x80|regRSP, 4)
	skipNeg := p.localLabel()
	p.e.byte(opJz)
	p.e.byte(0x80 | regRA)
	p.e.invocation('&', skipNeg, 2)
	emit4(p.e, opSub, 0x80|d, 0, 0x80|d)
	p.e.definition("", ':', skipNeg)
	return nil
}

// mods D A B: remainder takes the sign of the dividend A, per C truncating
// division semantics. D, A, and B must all be plain registers other than
// ra/rb, for the same scratch-aliasing reason as divs.
func modsHandler(p *parser) error {
	d, err := p.parseRegisterNonScratch()
	if err != nil {
		return err
	}
	a, err := p.parseRegisterNonScratch()
	if err != nil {
		return err
	}
	b, err := p.parseRegisterNonScratch()
	if err != nil {
		return err
	}

	emit4(p.e, opAdd, 0x80|regRA, 0, 0x80|a)
	emit4(p.e, opRor, 0x80|regRB, 0x80|a, 31)
	emit4(p.e, opAnd, 0x80|regRB, 0x80|regRB, 1) // rb = signA
	emit4(p.e, opSub, 0x80|regRSP, 0x80|regRSP, 4)
	emit4(p.e, opStw, 0x80|regRB, 0x80|regRSP, 0) // push signA
	skipA := p.localLabel()
	p.e.byte(opJz)
	p.e.byte(0x80 | regRB)
	p.e.invocation('&', skipA, 2)
	emit4(p.e, opSub, 0x80|regRA, 0, 0x80|regRA)
	p.e.definition("", ':', skipA)

	emit4(p.e, opAdd, 0x80|regRB, 0, 0x80|b)
	emit4(p.e, opRor, 0x80|d, 0x80|b, 31)
	emit4(p.e, opAnd, 0x80|d, 0x80|d, 1)
	skipB := p.localLabel()
	p.e.byte(opJz)
	p.e.byte(0x80 | d)
	p.e.invocation('&', skipB, 2)
	emit4(p.e, opSub, 0x80|regRB, 0, 0x80|regRB)
	p.e.definition("", ':', skipB)

	emit4(p.e, opDivu, 0x80|d, 0x80|regRA, 0x80|regRB)
	emit4(p.e, opMul, 0x80|d, 0x80|d, 0x80|regRB)
	emit4(p.e, opSub, 0x80|d, 0x80|regRA, 0x80|d)

	emit4(p.e, opLdw, 0x80|regRA, 0x80|regRSP, 0)
	emit4(p.e, opAdd, 0x80|regRSP, 0x80|regRSP, 4)
	skipNeg := p.localLabel()
	p.e.byte(opJz)
	p.e.byte(0x80 | regRA)
	p.e.invocation('&', skipNeg, 2)
	emit4(p.e, opSub, 0x80|d, 0, 0x80|d)
	p.e.definition("", ':', skipNeg)
	return nil
}

// cmps D A B: signed comparison via the 0x80000000 bias trick, returning
// -1/0/1 in D as cmpu does for unsigned operands. D, A, and B must all be
// plain registers other than ra/rb, which hold the biased operands until
// the final cmpu.
func cmpsHandler(p *parser) error {
	d, err := p.parseRegisterNonScratch()
	if err != nil {
		return err
	}
	a, err := p.parseRegisterNonScratch()
	if err != nil {
		return err
	}
	b, err := p.parseRegisterNonScratch()
	if err != nil {
		return err
	}
	// Bias lands in rb first so a/b are read before D is ever written --
	// D may alias a or b, and the final cmpu is the only write to D.
	p.emitSignBias(regRB)
	emit4(p.e, opAdd, 0x80|regRA, 0x80|a, 0x80|regRB)
	emit4(p.e, opAdd, 0x80|regRB, 0x80|b, 0x80|regRB)
	emit4(p.e, opCmpu, 0x80|d, 0x80|regRA, 0x80|regRB)
	return nil
}

// emitSignBias writes 0x80000000 into dst via zero + two ims.
func (p *parser) emitSignBias(dst byte) {
	emit4(p.e, opAdd, 0x80|dst, 0, 0)
	p.e.byte(opIms)
	p.e.byte(0x80 | dst)
	p.e.byte(0x00)
	p.e.byte(0x80)
	p.e.byte(opIms)
	p.e.byte(0x80 | dst)
	p.e.byte(0x00)
	p.e.byte(0x00)
}

func jnzHandler(p *parser) error {
	pred, err := p.parseMix()
	if err != nil {
		return err
	}
	off, err := p.parseSixteen()
	if err != nil {
		return err
	}
	skip := p.localLabel()
	p.e.byte(opJz)
	p.e.byte(pred)
	p.e.invocation('&', skip, 2)
	p.e.byte(opJz)
	p.e.byte(0)
	off.emit(p.e)
	p.e.definition("", ':', skip)
	return nil
}

func cmpThenJump(p *parser, takeWhen byte) error {
	a, err := p.parseRegisterNonScratch()
	if err != nil {
		return err
	}
	b, err := p.parseRegisterNonScratch()
	if err != nil {
		return err
	}
	off, err := p.parseSixteen()
	if err != nil {
		return err
	}
	// The bias constant is built into rb and read by both adds below before
	// the second add overwrites it with b's biased value: ra must be biased
	// first, while rb still holds the plain 0x80000000 constant.
	p.emitSignBias(regRB)
	emit4(p.e, opAdd, 0x80|regRA, 0x80|a, 0x80|regRB)
	emit4(p.e, opAdd, 0x80|regRB, 0x80|b, 0x80|regRB)
	emit4(p.e, opCmpu, 0x80|regRA, 0x80|regRA, 0x80|regRB)
	emit4(p.e, opSub, 0x80|regRB, 0x80|regRA, takeWhen)
	p.e.byte(opJz)
	p.e.byte(0x80 | regRB)
	off.emit(p.e)
	return nil
}

// jg A B &target: jump if A > B (cmps result == 1).
func jgHandler(p *parser) error { return cmpThenJump(p, 1) }

// jl A B &target: jump if A < B (cmps result == -1, i.e. 0xFF as a byte).
func jlHandler(p *parser) error { return cmpThenJump(p, 0xFF) }

func cmpThenJumpUnless(p *parser, skipWhen byte) error {
	a, err := p.parseRegisterNonScratch()
	if err != nil {
		return err
	}
	b, err := p.parseRegisterNonScratch()
	if err != nil {
		return err
	}
	off, err := p.parseSixteen()
	if err != nil {
		return err
	}
	// The bias constant is built into rb and read by both adds below before
	// the second add overwrites it with b's biased value: ra must be biased
	// first, while rb still holds the plain 0x80000000 constant.
	p.emitSignBias(regRB)
	emit4(p.e, opAdd, 0x80|regRA, 0x80|a, 0x80|regRB)
	emit4(p.e, opAdd, 0x80|regRB, 0x80|b, 0x80|regRB)
	emit4(p.e, opCmpu, 0x80|regRA, 0x80|regRA, 0x80|regRB)
	emit4(p.e, opSub, 0x80|regRB, 0x80|regRA, skipWhen)
	skip := p.localLabel()
	p.e.byte(opJz)
	p.e.byte(0x80 | regRB)
	p.e.invocation('&', skip, 2)
	p.e.byte(opJz)
	p.e.byte(0)
	off.emit(p.e)
	p.e.definition("", ':', skip)
	return nil
}

// jge A B &target: jump unless A < B.
func jgeHandler(p *parser) error { return cmpThenJumpUnless(p, 0xFF) }

// jle A B &target: jump unless A > B.
func jleHandler(p *parser) error { return cmpThenJumpUnless(p, 1) }

func jmpHandler(p *parser) error {
	p.skipSpace()
	if p.s.Peek() == '^' {
		p.s.SkipByte()
		name, err := p.readIdent()
		if err != nil {
			return err
		}
		p.e.byte(opIms)
		p.e.byte(0x80 | regRA)
		p.e.invocation('<', name, 2)
		p.e.byte(opIms)
		p.e.byte(0x80 | regRA)
		p.e.invocation('>', name, 2)
		emit4(p.e, opAdd, 0x80|regRIP, 0x80|regRPP, 0x80|regRA)
		return nil
	}
	off, err := p.parseSixteen()
	if err != nil {
		return err
	}
	p.e.byte(opJz)
	p.e.byte(0)
	off.emit(p.e)
	return nil
}

func callHandler(p *parser) error {
	p.skipSpace()
	if p.s.Peek() == '^' {
		p.s.SkipByte()
		name, err := p.readIdent()
		if err != nil {
			return err
		}
		p.e.byte(opIms)
		p.e.byte(0x80 | regRA)
		p.e.invocation('<', name, 2)
		p.e.byte(opIms)
		p.e.byte(0x80 | regRA)
		p.e.invocation('>', name, 2)
		emit4(p.e, opSub, 0x80|regRSP, 0x80|regRSP, 4)
		emit4(p.e, opAdd, 0x80|regRB, 0x80|regRIP, 8)
		emit4(p.e, opStw, 0x80|regRB, 0x80|regRSP, 0)
		emit4(p.e, opAdd, 0x80|regRIP, 0x80|regRPP, 0x80|regRA)
		emit4(p.e, opAdd, 0x80|regRSP, 0x80|regRSP, 4) // post-pop of the return address
		return nil
	}
	off, err := p.parseSixteen()
	if err != nil {
		return err
	}
	emit4(p.e, opSub, 0x80|regRSP, 0x80|regRSP, 4)
	emit4(p.e, opAdd, 0x80|regRA, 0x80|regRIP, 8)
	emit4(p.e, opStw, 0x80|regRA, 0x80|regRSP, 0)
	p.e.byte(opJz)
	p.e.byte(0)
	off.emit(p.e)
	emit4(p.e, opAdd, 0x80|regRSP, 0x80|regRSP, 4) // post-pop of the return address
	return nil
}

// imw D N: load a full 32-bit value into D. N may be a literal number, an
// absolute label (^L, emitted as two ims halves), or a relative label (&L,
// which fits in 16 bits so needs only a zeroing add and one ims).
func imwHandler(p *parser) error {
	d, err := p.parseRegister()
	if err != nil {
		return err
	}
	if d == regRIP {
		return p.fatalf("imw into rip is forbidden")
	}
	p.skipSpace()
	switch p.s.Peek() {
	case '^':
		p.s.SkipByte()
		name, err := p.readIdent()
		if err != nil {
			return err
		}
		p.e.byte(opIms)
		p.e.byte(0x80 | d)
		p.e.invocation('<', name, 2)
		p.e.byte(opIms)
		p.e.byte(0x80 | d)
		p.e.invocation('>', name, 2)
		return nil
	case '&':
		p.s.SkipByte()
		name, err := p.readIdent()
		if err != nil {
			return err
		}
		emit4(p.e, opAdd, 0x80|d, 0, 0)
		p.e.byte(opIms)
		p.e.byte(0x80 | d)
		p.e.invocation('&', name, 2)
		return nil
	default:
		v, err := p.parseNumber()
		if err != nil {
			return err
		}
		hi := uint16(uint32(v) >> 16)
		lo := uint16(uint32(v))
		p.e.byte(opIms)
		p.e.byte(0x80 | d)
		p.e.byte(byte(hi))
		p.e.byte(byte(hi >> 8))
		p.e.byte(opIms)
		p.e.byte(0x80 | d)
		p.e.byte(byte(lo))
		p.e.byte(byte(lo >> 8))
		return nil
	}
}
