// Command as assembles one Onramp assembly source file into one hex object
// file (spec.md §4.2, §6.1).
package main

import (
	"fmt"
	"os"

	"github.com/onramp-dev/onramp/asm"
	"github.com/pkg/errors"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: as <input> -o <output>")
	os.Exit(1)
}

// parseArgs accepts exactly one input path and one -o output path, in
// either order (spec.md §6.1 gives both "as <input> -o <output>" and
// "as -o <output> <input>" as valid forms), so argument order can't be
// handled by flag.Parse alone, which stops at the first non-flag argument.
func parseArgs(args []string) (input, output string, err error) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-o":
			i++
			if i >= len(args) {
				return "", "", errors.New("-o requires an argument")
			}
			output = args[i]
		default:
			if input != "" {
				return "", "", errors.Errorf("unexpected extra argument %q", args[i])
			}
			input = args[i]
		}
	}
	if input == "" || output == "" {
		return "", "", errors.New("both an input file and -o <output> are required")
	}
	return input, output, nil
}

func main() {
	input, output, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		usage()
	}

	in, err := os.Open(input)
	if err != nil {
		fatal(err)
	}
	defer in.Close()

	out, err := os.Create(output)
	if err != nil {
		fatal(err)
	}
	defer out.Close()

	if err := asm.Assemble(out, input, in); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "as: %v\n", err)
	os.Exit(1)
}
