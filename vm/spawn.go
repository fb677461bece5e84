package vm

import "os"

// sysSpawn implements the spawn syscall (spec.md §4.5): r0 names the child
// program's path, r1 gives the child's private memory size (0 selects
// DefaultMemorySize). Neither C reference this package is grounded on
// implements spawn at all (c-debugger/src/vm.c stubs it with "TODO spawn
// syscall not yet implemented"), so this register convention is this
// package's own design: it mirrors fopen's r0=path/r1=flag shape rather
// than invent a wider argument-passing ABI spec.md never specifies.
//
// The child gets its own Instance with an independent memory slice rather
// than a carved-out sub-range of the parent's backing array — the
// reference's relocatable memory_base/memory_size design exists to let one
// C allocation serve both parent and child; Go has no equivalent pressure
// to share a backing array, so two independent slices are simpler and
// behaviorally identical from the program's point of view, since neither
// VM instance can observe the other's memory either way.
func (vm *Instance) sysSpawn() {
	path := vm.loadString(vm.registers[R0])
	size := vm.registers[R1]

	program, err := os.ReadFile(path)
	if err != nil {
		vm.registers[R0] = errPath
		return
	}

	opts := []Option{
		Environ(vm.environ),
		Workdir(vm.workdir),
		Stdin(vm.stdin),
		Stdout(vm.stdout),
		Stderr(vm.stderr),
	}
	if size != 0 {
		opts = append(opts, MemorySize(size))
	}

	child, err := New(program, path, opts...)
	if err != nil {
		vm.registers[R0] = errGeneric
		return
	}

	code, err := child.Run()
	if err != nil {
		// A host-level fault in the child is exactly the kind of error
		// that aborts a run outright (spec.md §5 "Cancellation: none"):
		// there's no sensible sentinel a spawning program could act on.
		vm.fault("spawned program %q faulted: %v", path, err)
	}
	vm.registers[R0] = uint32(code)
}
