// Command ld links one or more Onramp hex object files into a bytecode
// image, with optional dead-symbol elimination and a debug sidecar
// (spec.md §4.3, §6.1).
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/onramp-dev/onramp/ld"
	"github.com/pkg/errors"
)

type cliArgs struct {
	inputs     []string
	output     string
	wrapHeader string
	optimize   bool
	debug      bool
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ld [-g] [-O] [-wrap-header <prefix>] <inputs...> -o <output>")
	os.Exit(1)
}

func parseArgs(args []string) (cliArgs, error) {
	var a cliArgs
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-g":
			a.debug = true
		case "-O":
			a.optimize = true
		case "-o":
			i++
			if i >= len(args) {
				return a, errors.New("-o requires an argument")
			}
			a.output = args[i]
		case "-wrap-header":
			i++
			if i >= len(args) {
				return a, errors.New("-wrap-header requires an argument")
			}
			a.wrapHeader = args[i]
		default:
			a.inputs = append(a.inputs, args[i])
		}
	}
	if len(a.inputs) == 0 || a.output == "" {
		return a, errors.New("at least one input file and -o <output> are required")
	}
	return a, nil
}

func main() {
	args, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		usage()
	}

	var inputs []ld.Input
	for _, name := range args.inputs {
		f, err := os.Open(name)
		if err != nil {
			fatal(err)
		}
		in, err := ld.ReadInput(name, f)
		f.Close()
		if err != nil {
			fatal(err)
		}
		inputs = append(inputs, in)
	}

	out, err := os.Create(args.output)
	if err != nil {
		fatal(err)
	}
	defer out.Close()

	if args.wrapHeader != "" {
		if err := copyWrapHeader(out, args.wrapHeader); err != nil {
			fatal(err)
		}
	}

	var dbg io.Writer
	var dbgFile *os.File
	if args.debug {
		dbgFile, err = os.Create(args.output + ".od")
		if err != nil {
			fatal(err)
		}
		defer dbgFile.Close()
		dbg = dbgFile
	}

	linker := ld.NewLinker(ld.Options{Optimize: args.optimize, Debug: args.debug})
	warnings, err := linker.Link(inputs, out, dbg, args.output)
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "ld: warning: %s\n", w)
	}
	if err != nil {
		fatal(err)
	}

	// spec.md §6.3: the output is executable bit-set on POSIX.
	if err := out.Chmod(0755); err != nil {
		fatal(err)
	}
}

// copyWrapHeader copies the -wrap-header file verbatim onto the front of
// the output (spec.md §4.3's "Output wrapper"), before any bytecode.
func copyWrapHeader(out io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(out, f)
	return err
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "ld: %v\n", err)
	os.Exit(1)
}
