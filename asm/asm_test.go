package asm

import (
	"bytes"
	"strings"
	"testing"
)

func assembleString(t *testing.T, src string) string {
	t.Helper()
	var buf bytes.Buffer
	if err := Assemble(&buf, "test.s", strings.NewReader(src)); err != nil {
		t.Fatalf("Assemble(%q): %v", src, err)
	}
	return buf.String()
}

func TestPrimitiveInstruction(t *testing.T) {
	out := assembleString(t, "add r0 r1 2\n")
	if !strings.Contains(out, "70 80 81 02") {
		t.Errorf("output %q does not contain expected add encoding", out)
	}
}

func TestStwOperandOrder(t *testing.T) {
	out := assembleString(t, "stw r2 rsp 4\n")
	if !strings.Contains(out, "79 82 8C 04") {
		t.Errorf("output %q does not contain expected stw encoding", out)
	}
}

func TestSysPadding(t *testing.T) {
	out := assembleString(t, "sys halt '00 '00\n")
	if !strings.Contains(out, "7F 00 00 00") {
		t.Errorf("output %q does not contain expected sys encoding", out)
	}
}

func TestSysRejectsNonzeroPadding(t *testing.T) {
	var buf bytes.Buffer
	err := Assemble(&buf, "test.s", strings.NewReader("sys halt '01 '00\n"))
	if err == nil {
		t.Fatal("expected an error for a nonzero sys padding byte")
	}
}

func TestMacroZero(t *testing.T) {
	out := assembleString(t, "zero r0\n")
	if !strings.Contains(out, "70 80 00 00") {
		t.Errorf("output %q does not contain expected zero encoding", out)
	}
}

func TestMacroIncDec(t *testing.T) {
	out := assembleString(t, "inc r3\ndec r3\n")
	if !strings.Contains(out, "70 83 83 01") {
		t.Errorf("inc: output %q missing expected encoding", out)
	}
	if !strings.Contains(out, "71 83 83 01") {
		t.Errorf("dec: output %q missing expected encoding", out)
	}
}

func TestMacroPush(t *testing.T) {
	out := assembleString(t, "push r0\n")
	if !strings.Contains(out, "71 8C 8C 04") {
		t.Errorf("push sub: output %q missing expected encoding", out)
	}
	if !strings.Contains(out, "79 80 8C 00") {
		t.Errorf("push stw: output %q missing expected encoding", out)
	}
}

func TestMacroPop(t *testing.T) {
	out := assembleString(t, "pop r1\n")
	if !strings.Contains(out, "78 81 8C 00") {
		t.Errorf("pop ldw: output %q missing expected encoding", out)
	}
	if !strings.Contains(out, "70 8C 8C 04") {
		t.Errorf("pop add: output %q missing expected encoding", out)
	}
}

func TestMacroRet(t *testing.T) {
	out := assembleString(t, "ret\n")
	if !strings.Contains(out, "78 8F 8C 00") {
		t.Errorf("ret: output %q missing expected encoding (ldw rip, rsp, 0)", out)
	}
}

func TestMacroEnterLeave(t *testing.T) {
	out := assembleString(t, "enter\nleave\n")
	if !strings.Contains(out, "71 8C 8C 04") {
		t.Errorf("enter sub: output %q missing expected encoding", out)
	}
	if !strings.Contains(out, "79 8D 8C 00") {
		t.Errorf("enter stw: output %q missing expected encoding", out)
	}
	if !strings.Contains(out, "70 8D 8C 00") {
		t.Errorf("enter add: output %q missing expected encoding", out)
	}
}

// TestMacroJnzUsesLocalLabel verifies the jnz macro emits a locally scoped
// skip label distinct from the user's own jump target, and that both the
// invocation and the matching definition appear in the stream.
func TestMacroJnzUsesLocalLabel(t *testing.T) {
	out := assembleString(t, "jnz r0 &target\n:target\n")
	if !strings.Contains(out, "&__onramp_macro_l1") {
		t.Errorf("output %q missing synthesized local label invocation", out)
	}
	if !strings.Contains(out, ":__onramp_macro_l1") {
		t.Errorf("output %q missing synthesized local label definition", out)
	}
	if !strings.Contains(out, "&target") {
		t.Errorf("output %q missing user-visible jump target", out)
	}
}

// TestLocalLabelsDoNotCollideAcrossMacros checks that two macro expansions
// needing a local label in the same file get distinct names.
func TestLocalLabelsDoNotCollideAcrossMacros(t *testing.T) {
	out := assembleString(t, "jnz r0 &a\n:a\njnz r0 &b\n:b\n")
	if !strings.Contains(out, "__onramp_macro_l1") || !strings.Contains(out, "__onramp_macro_l2") {
		t.Errorf("output %q does not contain two distinct local labels", out)
	}
}

func TestMacroDivsEmitsDivuAndSignFixup(t *testing.T) {
	out := assembleString(t, "divs r0 r2 r3\n")
	if !strings.Contains(out, "73 80 8A 8B") {
		t.Errorf("divs: output %q missing the final divu ra,rb emission", out)
	}
}

func TestMacroCmpsUsesSignBias(t *testing.T) {
	out := assembleString(t, "cmps r0 r2 r3\n")
	// The bias is built via zero + two ims into the scratch register rb.
	if !strings.Contains(out, "7C 8B") {
		t.Errorf("cmps: output %q missing ims into rb for the sign bias", out)
	}
	if !strings.Contains(out, "7D 80 8A 8B") {
		t.Errorf("cmps: output %q missing final cmpu ra,rb", out)
	}
}

func TestAlignmentViolationIsFatal(t *testing.T) {
	var buf bytes.Buffer
	err := Assemble(&buf, "test.s", strings.NewReader("'00 add r0 0 0\n"))
	if err == nil {
		t.Fatal("expected a fatal error for an instruction starting off word alignment")
	}
}

func TestImwLiteral(t *testing.T) {
	out := assembleString(t, "imw r0 0x12345678\n")
	// high half 0x1234, low half 0x5678, little-endian within each half.
	if !strings.Contains(out, "7C 80 34 12") {
		t.Errorf("imw high half: output %q missing expected encoding", out)
	}
	if !strings.Contains(out, "7C 80 78 56") {
		t.Errorf("imw low half: output %q missing expected encoding", out)
	}
}

func TestImwIntoRipRejected(t *testing.T) {
	var buf bytes.Buffer
	err := Assemble(&buf, "test.s", strings.NewReader("imw rip 0\n"))
	if err == nil {
		t.Fatal("expected an error for imw into rip")
	}
}

func TestDefinitionAndInvocation(t *testing.T) {
	out := assembleString(t, "=main add r0 0 0\n^main\n")
	if !strings.Contains(out, "=main") {
		t.Errorf("output %q missing global symbol definition", out)
	}
	if !strings.Contains(out, "^main") {
		t.Errorf("output %q missing absolute invocation", out)
	}
}

func TestComment(t *testing.T) {
	out := assembleString(t, "; a comment\nadd r0 0 0\n")
	if !strings.Contains(out, "70 80 00 00") {
		t.Errorf("output %q missing instruction after comment", out)
	}
}

func TestUnknownMnemonic(t *testing.T) {
	var buf bytes.Buffer
	err := Assemble(&buf, "test.s", strings.NewReader("bogus r0\n"))
	if err == nil {
		t.Fatal("expected an error for an unknown mnemonic")
	}
}
