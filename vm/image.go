package vm

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
)

// preamble is the 12-byte magic every Onramp bytecode image is expected to
// start with (spec.md §6.3): "~Onr~amp~   ".
var preamble = []byte("~Onr~amp~   ")

// wrapperSize is the fixed size of an optional host-discovery prefix (a
// shebang line or a BASIC REM comment) that the linker may have copied onto
// the front of the image via -wrap-header (spec.md §4.3, §6.3).
const wrapperSize = 128

// haltPaddingWords is the number of reserved words placed between the
// argv/environ/cwd strings and the loaded program, purely so a programmer
// staring at a debugger's memory dump doesn't mistake padding for code.
const haltPaddingWords = 32

// programAlign is the boundary the program image's start address is rounded
// up to, so its address looks round in a debugger.
const programAlign = 0x10000

// load fills the instance's memory with the process-info table, a
// synthesized halt instruction right after it, argv/environ/cwd blobs, and
// the program image itself, then points rpp/rip at the program's entry
// (spec.md §3.4).
// Grounded on original_source/platform/vm/c-debugger/src/vm.c's vm_init.
func (vm *Instance) load(program []byte) error {
	if len(vm.memory) < pitSize+wrapperSize {
		return errors.New("memory too small to hold the process-info table")
	}

	pattern := uint32(defaultMemoryPattern)
	for i := uint32(0); i+4 <= uint32(len(vm.memory)); i += 4 {
		vm.memory[i] = byte(pattern)
		vm.memory[i+1] = byte(pattern >> 8)
		vm.memory[i+2] = byte(pattern >> 16)
		vm.memory[i+3] = byte(pattern >> 24)
	}

	addr := vm.base + pitSize

	// sys halt, encoded as its own little-endian instruction word: opcode
	// 0x7F followed by three zero argument bytes.
	vm.storeU32(addr, opSys)
	vm.storeU32(vm.base+pitExit, addr)
	addr += 4

	vm.storeU32(vm.base+pitArgs, addr)
	addr = vm.storeStringArray(addr, vm.args)
	vm.storeU32(vm.base+pitEnviron, addr)
	addr = vm.storeStringArray(addr, vm.environ)

	vm.storeU32(vm.base+pitWorkdir, addr)
	addr = vm.storeString(addr, vm.workdir)
	addr = (addr + 0x3) &^ 0x3

	vm.storeU32(vm.base+pitInput, handleOffset+0)
	vm.storeU32(vm.base+pitOutput, handleOffset+1)
	vm.storeU32(vm.base+pitError, handleOffset+2)

	for i := 0; i < haltPaddingWords; i++ {
		vm.storeU32(addr, defaultMemoryPattern)
		addr += 4
	}

	addr = (addr + programAlign - 1) &^ (programAlign - 1)
	if !vm.checkBuffer(addr, uint32(len(program))) {
		return errors.Errorf("program image (%d bytes) does not fit in %d bytes of memory", len(program), len(vm.memory))
	}

	start := addr
	copy(vm.memory[vm.off(addr):], program)
	addr += uint32(len(program))

	entry := start
	if hasWrapper(program) {
		entry += wrapperSize
	}

	if entry+uint32(len(preamble)) > vm.base+uint32(len(vm.memory)) ||
		!bytes.Equal(vm.memory[vm.off(entry):vm.off(entry)+uint32(len(preamble))], preamble) {
		fmt.Fprintf(vm.stderr, "WARNING: program does not start with `~Onr~amp~   ` preamble\n")
	}

	// pitVersion sits at offset 0, which storeU32's near-null guard rejects
	// even for this legitimate host-constructed write.
	vm.rawStoreU32(vm.base+pitVersion, 0)
	vm.storeU32(vm.base+pitBreak, addr)

	vm.registers[R0] = vm.base
	for i := 1; i <= RFP; i++ {
		vm.registers[i] = defaultMemoryPattern
	}
	vm.registers[RSP] = vm.base + uint32(len(vm.memory))
	vm.registers[RFP] = vm.base + uint32(len(vm.memory))
	vm.registers[RPP] = entry
	vm.registers[RIP] = entry

	return nil
}

// hasWrapper reports whether program begins with a shebang line or a BASIC
// REM comment, the two host-discovery prefixes the linker's -wrap-header
// convention supports (spec.md §6.3).
func hasWrapper(program []byte) bool {
	if len(program) >= 2 && program[0] == '#' && program[1] == '!' {
		return true
	}
	if len(program) >= 3 && program[0] == 'R' && program[1] == 'E' && program[2] == 'M' {
		return true
	}
	return false
}
