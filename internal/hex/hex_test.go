package hex

import "testing"

func TestDecodeByte(t *testing.T) {
	cases := []struct {
		hi, lo byte
		want   byte
	}{
		{'0', '0', 0x00},
		{'f', 'f', 0xFF},
		{'A', 'b', 0xAB},
	}
	for _, c := range cases {
		got, err := DecodeByte(c.hi, c.lo)
		if err != nil {
			t.Fatalf("DecodeByte(%q,%q): %v", c.hi, c.lo, err)
		}
		if got != c.want {
			t.Errorf("DecodeByte(%q,%q) = %#x, want %#x", c.hi, c.lo, got, c.want)
		}
	}
}

func TestDecodeByteInvalid(t *testing.T) {
	if _, err := DecodeByte('g', '0'); err == nil {
		t.Fatal("expected error for invalid nibble")
	}
}

func TestRoundTrip(t *testing.T) {
	for v := 0; v < 256; v++ {
		var buf [2]byte
		EncodeByte(buf[:], byte(v))
		got, err := DecodeByte(buf[0], buf[1])
		if err != nil {
			t.Fatalf("decode %02x: %v", v, err)
		}
		if got != byte(v) {
			t.Errorf("round trip %02x -> %02x", v, got)
		}
	}
}

func TestUint32RoundTrip(t *testing.T) {
	var b [4]byte
	PutUint32(b[:], 0xDEADBEEF)
	if got := Uint32(b[:]); got != 0xDEADBEEF {
		t.Errorf("Uint32 = %#x, want 0xDEADBEEF", got)
	}
}
