// Package vm implements the Onramp virtual machine: a 32-bit register
// machine with a sixteen-opcode instruction set and a small syscall surface
// (spec.md §3.4, §4.4). It loads a bytecode image into a private address
// space, builds the process-info table (PIT) the image expects to find at
// address zero, and runs the fetch/decode/execute loop to completion.
package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Register indices, matching the 0x80-0x8F register-byte encoding minus
// 0x80 (spec.md §3.1).
const (
	R0 = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	RA
	RB
	RSP
	RFP
	RPP
	RIP

	numRegisters = 16
)

var registerNames = [numRegisters]string{
	"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7", "r8", "r9",
	"ra", "rb", "rsp", "rfp", "rpp", "rip",
}

// Opcodes, 0x70-0x7F (spec.md §3.1).
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

// Process-info table field offsets (spec.md §3.4), grounded on
// original_source/platform/vm/c-debugger/src/vm.c's VM_VERSION..VM_PIT_SIZE
// constants.
const (
	pitVersion = 0
	pitBreak   = 4
	pitExit    = 8
	pitInput   = 12
	pitOutput  = 16
	pitError   = 20
	pitArgs    = 24
	pitEnviron = 28
	pitWorkdir = 32
	pitSize    = 36
)

// DefaultMemorySize is the VM's default address-space size (spec.md §3.4).
const DefaultMemorySize = 16 * 1024 * 1024

// defaultMemoryPattern fills unwritten memory so that reads of uninitialized
// data are visibly wrong in a debugger rather than silently zero, matching
// original_source/platform/vm/c-debugger/src/vm.c's VM_DEFAULT_MEMORY.
const defaultMemoryPattern = 0xDEADDEAD

// Error sentinels returned in r0 by syscalls that fail (spec.md §4.4).
const (
	errGeneric     uint32 = 0xFFFFFFFF
	errPath        uint32 = 0xFFFFFFFE
	errIO          uint32 = 0xFFFFFFFD
	errUnsupported uint32 = 0xFFFFFFFC
)

// fileTableSize bounds the VM's open-file table (spec.md §5: "fixed
// capacity; out-of-handles is fatal" -- fatal here means the syscall
// returns errGeneric, since running out of handles is a program-visible
// resource condition, not a host fault).
const fileTableSize = 16

// handleOffset is added to file-table indices before they're exposed to the
// program, so a program can't assume small integers like 0/1/2 name stdio
// (spec.md §4.4 "Handles are offset from a large constant"), grounded on
// c-debugger/src/vm.c's FILES_OFFSET = INT_MAX - FILES_COUNT - 1.
const handleOffset uint32 = 0x7FFFFFFF - fileTableSize - 1

// Fault is a host-level VM error: out-of-range or misaligned memory access,
// an invalid opcode or mix byte, an invalid syscall number, or nonzero sys
// padding bytes (spec.md §7 category 6). A Fault terminates the run; the
// caller is expected to report it and exit with the VM host-error code.
type Fault struct {
	PC      uint32
	Message string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("vm fault at pc=0x%08X: %s", f.PC, f.Message)
}

func (vm *Instance) fault(format string, args ...interface{}) {
	panic(&Fault{PC: vm.registers[RIP], Message: fmt.Sprintf(format, args...)})
}

// fileHandle backs one entry in the open-file table. Real files go through
// f; the stdio slots (0/1/2) have no *os.File and instead read/write
// through the instance's stdin/stdout/stderr, since those may be an
// in-memory buffer (as in tests) rather than an *os.File at all.
type fileHandle struct {
	f        *os.File
	r        io.Reader
	w        io.Writer
	readOnly bool
}

func (h *fileHandle) Read(p []byte) (int, error) {
	if h.f != nil {
		return h.f.Read(p)
	}
	if h.r == nil {
		return 0, errors.New("handle is not readable")
	}
	return h.r.Read(p)
}

func (h *fileHandle) Write(p []byte) (int, error) {
	if h.f != nil {
		return h.f.Write(p)
	}
	if h.w == nil {
		return 0, errors.New("handle is not writable")
	}
	return h.w.Write(p)
}

// Instance is one running Onramp virtual machine. Each spawned child gets
// its own Instance with an independent memory slice; nothing is shared with
// the parent (see §4.5's spawn note in DESIGN.md for why this is a
// deliberate simplification of the reference's single-array, relocatable
// sub-range design).
type Instance struct {
	registers [numRegisters]uint32
	memory    []byte
	base      uint32

	files [fileTableSize]*fileHandle

	programPath string
	extraArgs   []string
	args        []string
	environ     []string
	workdir     string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	exitCode int
	halted   bool
}

// Option configures an Instance before it runs, following the functional
// options pattern db47h/ngaro's vm.New uses for Instance construction.
type Option func(*Instance) error

// MemorySize overrides the default 16 MiB address space.
func MemorySize(n uint32) Option {
	return func(vm *Instance) error {
		if n < pitSize+64 {
			return errors.Errorf("memory size %d too small for the process-info table", n)
		}
		vm.memory = make([]byte, n)
		return nil
	}
}

// Args sets the program's arguments, excluding argv[0] (which New always
// sets to the program path it was given).
func Args(args []string) Option {
	return func(vm *Instance) error {
		vm.extraArgs = args
		return nil
	}
}

// Environ sets the program's environment, in "NAME=VALUE" form. Defaults to
// os.Environ().
func Environ(env []string) Option {
	return func(vm *Instance) error {
		vm.environ = env
		return nil
	}
}

// Workdir overrides the working-directory string reported to the program.
// Defaults to os.Getwd().
func Workdir(dir string) Option {
	return func(vm *Instance) error {
		vm.workdir = dir
		return nil
	}
}

// Stdin overrides the reader backing file handle 0.
func Stdin(r io.Reader) Option {
	return func(vm *Instance) error { vm.stdin = r; return nil }
}

// Stdout overrides the writer backing file handle 1.
func Stdout(w io.Writer) Option {
	return func(vm *Instance) error { vm.stdout = w; return nil }
}

// Stderr overrides the writer backing file handle 2.
func Stderr(w io.Writer) Option {
	return func(vm *Instance) error { vm.stderr = w; return nil }
}

// New builds a VM instance, loads program into its address space, and sets
// up the process-info table and entry registers (spec.md §3.4). program is
// the raw bytecode image, preamble and optional wrapper header included.
func New(program []byte, path string, opts ...Option) (*Instance, error) {
	vm := &Instance{
		programPath: path,
		environ:     os.Environ(),
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
	}
	if wd, err := os.Getwd(); err == nil {
		vm.workdir = wd
	}

	for _, opt := range opts {
		if err := opt(vm); err != nil {
			return nil, err
		}
	}
	if vm.memory == nil {
		vm.memory = make([]byte, DefaultMemorySize)
	}
	vm.args = append([]string{vm.programPath}, vm.extraArgs...)

	vm.files[0] = &fileHandle{r: vm.stdin, readOnly: true}
	vm.files[1] = &fileHandle{w: vm.stdout}
	vm.files[2] = &fileHandle{w: vm.stderr}

	if err := vm.load(program); err != nil {
		return nil, err
	}
	return vm, nil
}

// ExitCode returns the value the program passed to the halt syscall.
func (vm *Instance) ExitCode() int { return vm.exitCode }
