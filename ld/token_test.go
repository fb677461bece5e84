package ld

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/onramp-dev/onramp/internal/scan"
)

// TestTokenizeStream checks the full decoded token stream structurally
// against a hand-built expectation, rather than poking at individual
// fields, so a change to tokenize's shape (a dropped position, a stray
// flag) shows up as a diff instead of silently passing whichever fields
// happen to get asserted.
func TestTokenizeStream(t *testing.T) {
	src := "70 80\n{5=ctor\n^ctor\n"
	got, err := tokenize("a.os", []byte(src))
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}

	want := []token{
		{kind: tokHex, pos: scan.Position{File: "a.os", Line: 1}, b: 0x70},
		{kind: tokHex, pos: scan.Position{File: "a.os", Line: 1}, b: 0x80},
		{kind: tokSymbolDef, pos: scan.Position{File: "a.os", Line: 2}, sigil: '=', name: "ctor",
			flags: symbolFlags{ctor: true, ctorPriority: 5}},
		{kind: tokInvoke, pos: scan.Position{File: "a.os", Line: 3}, sigil: '^', name: "ctor"},
	}

	if diff := cmp.Diff(want, got, cmp.AllowUnexported(token{}, symbolFlags{}, directive{}), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("tokenize(%q) mismatch (-want +got):\n%s", src, diff)
	}
}
