package ld

import (
	"bytes"
	"strings"
	"testing"

	"github.com/onramp-dev/onramp/internal/intern"
	"github.com/onramp-dev/onramp/internal/scan"
)

func link(t *testing.T, opts Options, srcs ...string) (string, []string, error) {
	t.Helper()
	var inputs []Input
	for i, src := range srcs {
		name := "a.os"
		if i > 0 {
			name = "b.os"
		}
		in, err := ReadInput(name, strings.NewReader(src))
		if err != nil {
			t.Fatalf("ReadInput: %v", err)
		}
		inputs = append(inputs, in)
	}
	var out, dbg bytes.Buffer
	l := NewLinker(opts)
	warnings, err := l.Link(inputs, &out, &dbg, "test.oe")
	return out.String(), warnings, err
}

// assertPrefix checks the deterministic lead-in of a linked image, ignoring
// the trailing __constructors/__destructors arrays every link produces
// (spec.md §3.2) since their presence isn't what the test is about.
func assertPrefix(t *testing.T, out string, want []byte) {
	t.Helper()
	if !bytes.HasPrefix([]byte(out), want) {
		t.Errorf("out = % X, want prefix % X", out, want)
	}
}

func TestSimpleLinkAddresses(t *testing.T) {
	out, warnings, err := link(t, Options{}, "=__start\n00 01 02 03\n=second\n04 05\n")
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	assertPrefix(t, out, []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x00, 0x00})
}

func TestMissingStartWarns(t *testing.T) {
	_, warnings, err := link(t, Options{}, "=notstart\n00\n")
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "__start") {
		t.Errorf("warnings = %v, want one mentioning __start", warnings)
	}
}

func TestDuplicateGlobalSymbolFatal(t *testing.T) {
	_, _, err := link(t, Options{}, "=__start\n00\n=foo\n00\n", "=foo\n01\n")
	if err == nil {
		t.Fatal("expected a duplicate symbol error")
	}
	if !strings.Contains(err.Error(), "foo") {
		t.Errorf("error %v does not mention the duplicate symbol", err)
	}
}

func TestStaticSymbolsDoNotCollideAcrossFiles(t *testing.T) {
	_, _, err := link(t, Options{}, "=__start\n00\n@helper\n00\n", "@helper\n01\n")
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
}

func TestLabelAndAbsoluteInvocation(t *testing.T) {
	out, _, err := link(t, Options{}, "=__start\n00 00\n:mid\n00 00\n^mid\n")
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	assertPrefix(t, out, []byte{0x00, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00})
}

func TestRelativeInvocationOutOfRange(t *testing.T) {
	var src strings.Builder
	src.WriteString("=__start\n")
	for i := 0; i < 0x20000; i++ {
		src.WriteString("00 ")
	}
	src.WriteString("\n=far\n00\n&__start\n")
	_, _, err := link(t, Options{}, src.String())
	if err == nil {
		t.Fatal("expected an out-of-bounds relative invocation error")
	}
	if !strings.Contains(err.Error(), "out of bounds") {
		t.Errorf("error %v does not mention bounds", err)
	}
}

func TestRelativeInvocationMisaligned(t *testing.T) {
	// 4 data bytes + the 2-byte invocation itself puts current_address at
	// 6 when the offset is computed; 0 - 6 = -6, not a multiple of 4.
	_, _, err := link(t, Options{}, "=__start\n00 00 00 00\n&__start\n")
	if err == nil {
		t.Fatal("expected a misalignment error")
	}
	if !strings.Contains(err.Error(), "misaligned") {
		t.Errorf("error %v does not mention misalignment", err)
	}
}

func TestRelativeInvocationAligned(t *testing.T) {
	// 2 data bytes + the 2-byte invocation puts current_address at 4 when
	// the offset is computed; 0 - 4 = -4, a multiple of 4.
	out, _, err := link(t, Options{}, "=__start\n00 00\n&__start\n")
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if len(out) < 4 {
		t.Fatalf("out length = %d, want at least 4", len(out))
	}
}

func TestArchiveMembers(t *testing.T) {
	out, _, err := link(t, Options{}, "=__start\n00\n%second.os\n=other\n01\n")
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	// __start's single byte, three padding bytes up to the next word
	// boundary, then other's single byte.
	assertPrefix(t, out, []byte{0x00, 0x00, 0x00, 0x00, 0x01})
}

func TestArchiveStaticScopePerMember(t *testing.T) {
	_, _, err := link(t, Options{}, "=__start\n00\n@dup\n00\n%b.os\n@dup\n01\n")
	if err != nil {
		t.Fatalf("Link: %v (static symbols in different archive members should not collide)", err)
	}
}

func TestOptimizeDropsUnreachableSymbol(t *testing.T) {
	out, _, err := link(t, Options{Optimize: true}, "=__start\n00\n=dead\n01 02 03 04\n")
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if strings.Contains(out, "\x01\x02\x03\x04") {
		t.Errorf("dead symbol's bytes were emitted: % X", out)
	}
}

func TestOptimizeKeepsUsedSymbol(t *testing.T) {
	out, _, err := link(t, Options{Optimize: true}, "=__start\n^used\n=used\n01\n")
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	assertPrefix(t, out, []byte{0x04, 0x00, 0x00, 0x00, 0x01})
}

func TestUndefinedReferenceFatal(t *testing.T) {
	_, _, err := link(t, Options{}, "=__start\n^nope\n")
	if err == nil {
		t.Fatal("expected an undefined reference error")
	}
}

func TestResolvePrefersLabelOverGlobalSymbol(t *testing.T) {
	l := NewLinker(Options{})

	owner, err := l.symbols.Define("__start", intern.GlobalFile, false)
	if err != nil {
		t.Fatal(err)
	}
	l.symbols.Insert(owner)
	owner.Address = 100

	other, err := l.symbols.Define("helper", intern.GlobalFile, false)
	if err != nil {
		t.Fatal(err)
	}
	l.symbols.Insert(other)
	other.Address = 9999

	if _, err := l.labels.Define("helper", owner, 4); err != nil {
		t.Fatal(err)
	}
	l.fileIndex = 0

	addr, err := l.resolve("helper", scan.Position{File: "t.os", Line: 1})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if addr != owner.Address+4 {
		t.Errorf("resolve(\"helper\") = %d, want %d (the label, not the global symbol)", addr, owner.Address+4)
	}
}

func TestDebugSidecarShape(t *testing.T) {
	in, err := ReadInput("x.os", strings.NewReader("#line 1 \"x.s\"\n=__start\n00 00 00 00\n"))
	if err != nil {
		t.Fatalf("ReadInput: %v", err)
	}
	var out, dbg bytes.Buffer
	l := NewLinker(Options{Debug: true})
	if _, err := l.Link([]Input{in}, &out, &dbg, "x.oe"); err != nil {
		t.Fatalf("Link: %v", err)
	}
	s := dbg.String()
	if !strings.HasPrefix(s, "; Onramp debug info for: x.oe\n") {
		t.Errorf("missing debug header, got %q", s)
	}
}

func TestConstructorTableOrdering(t *testing.T) {
	out, _, err := link(t, Options{}, "{5=second\n00\n{1=first\n00\n=__start\n^__constructors\n")
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	// second (addr 0) then first (addr 4) in declaration order; __start's
	// invocation of __constructors resolves to address 12 (after padding
	// both one-byte symbols up to a word), and the sorted constructor
	// table lists first (lower priority) before second.
	if len(out) < 16 {
		t.Fatalf("out too short: % X", out)
	}
	got := uint32(out[8]) | uint32(out[9])<<8 | uint32(out[10])<<16 | uint32(out[11])<<24
	if got != 12 {
		t.Fatalf("^__constructors resolved to %d, want 12", got)
	}
	firstAddr := uint32(out[12]) | uint32(out[13])<<8 | uint32(out[14])<<16 | uint32(out[15])<<24
	if firstAddr != 4 {
		t.Errorf("constructor table lists address %d first, want 4 (first, priority 1, before second, priority 5)", firstAddr)
	}
}
