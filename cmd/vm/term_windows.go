//go:build windows

package main

import "github.com/pkg/errors"

// setRawIO is a stub on Windows: the program still runs, but stdin keeps
// the host's line-buffered, echoing behavior.
func setRawIO() (func(), error) {
	return nil, errors.New("raw IO not supported on windows")
}
