// Command vm runs an Onramp bytecode image (spec.md §4.4, §6.1).
package main

import (
	"fmt"
	"os"

	"github.com/onramp-dev/onramp/vm"
	"github.com/pkg/errors"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: vm [-d] <program> [program-args...]")
	os.Exit(1)
}

// parseArgs consumes a leading -d (reserved for a debugger attach that this
// implementation, per the debugger-UI non-goal, never honors beyond
// accepting the flag) and treats everything after the program path as the
// program's own argv.
func parseArgs(args []string) (program string, programArgs []string, err error) {
	i := 0
	for i < len(args) && args[i] == "-d" {
		i++
	}
	if i >= len(args) {
		return "", nil, errors.New("a program path is required")
	}
	return args[i], args[i+1:], nil
}

func main() {
	os.Exit(run())
}

func run() int {
	program, programArgs, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		usage()
	}

	image, err := os.ReadFile(program)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vm: %v\n", err)
		return 125
	}

	if restore, err := setRawIO(); err == nil {
		defer restore()
	}

	instance, err := vm.New(image, program, vm.Args(programArgs))
	if err != nil {
		fmt.Fprintf(os.Stderr, "vm: %v\n", err)
		return 125
	}

	exitCode, err := instance.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "vm: %v\n", err)
		return 125
	}
	return exitCode
}
