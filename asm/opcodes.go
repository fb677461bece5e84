package asm

// Opcode bytes for the sixteen primitive Onramp instructions (spec.md §3.1).
const (
	opAdd  = 0x70
	opSub  = 0x71
	opMul  = 0x72
	opDivu = 0x73
	opAnd  = 0x74
	opOr   = 0x75
	opXor  = 0x76
	opRor  = 0x77
	opLdw  = 0x78
	opStw  = 0x79
	opLdb  = 0x7A
	opStb  = 0x7B
	opIms  = 0x7C
	opCmpu = 0x7D
	opJz   = 0x7E
	opSys  = 0x7F
)

// registers maps register names to their register-byte index (0x80 + index).
var registers = map[string]byte{
	"r0": 0, "r1": 1, "r2": 2, "r3": 3, "r4": 4,
	"r5": 5, "r6": 6, "r7": 7, "r8": 8, "r9": 9,
	"ra": 0xA, "rb": 0xB,
	"rsp": 0xC, "rfp": 0xD, "rpp": 0xE, "rip": 0xF,
}

// scratchRegisters are clobbered by several macro-instruction expansions and
// may not be used as a source operand to those mnemonics (spec.md §4.2).
var scratchRegisters = map[string]bool{"ra": true, "rb": true}

// primitiveOps lists the primitive mnemonics of the "dest, mix, mix" shape,
// each of which encodes directly to a single instruction word with no
// expansion. ims, jz and sys are wired separately in instr.go.
// stw/stb are deliberately absent here: their operand shape is
// (value, base, offset), not (dest, mix, mix), so instr.go wires them
// through mixMixMixHandler instead of this table.
var primitiveOps = map[string]byte{
	"add": opAdd, "sub": opSub, "mul": opMul, "divu": opDivu,
	"and": opAnd, "or": opOr, "xor": opXor, "ror": opRor,
	"ldw": opLdw, "ldb": opLdb,
	"cmpu": opCmpu,
}

// syscalls maps syscall mnemonics to their numeric code (spec.md §4.4).
var syscalls = map[string]byte{
	"halt":    0x00,
	"time":    0x01,
	"spawn":   0x02,
	"fopen":   0x03,
	"fclose":  0x04,
	"fread":   0x05,
	"fwrite":  0x06,
	"fseek":   0x07,
	"ftell":   0x08,
	"ftrunc":  0x09,
	"dopen":   0x0A,
	"dclose":  0x0B,
	"dread":   0x0C,
	"stat":    0x0D,
	"rename":  0x0E,
	"symlink": 0x0F,
	"unlink":  0x10,
	"chmod":   0x11,
	"mkdir":   0x12,
	"rmdir":   0x13,
}
