package llong

import "testing"

func TestDivModURoundTrip(t *testing.T) {
	cases := []struct{ a, b uint64 }{
		{100, 7},
		{1 << 40, 3},
		{0xFFFFFFFFFFFFFFFF, 0xFFFFFFFF},
		{1, 1},
	}
	for _, c := range cases {
		q, r := DivModU(FromUint64(c.a), FromUint64(c.b))
		got := q.Uint64()*c.b + r.Uint64()
		if got != c.a {
			t.Errorf("divmodu(%d,%d): q*b+r = %d, want %d", c.a, c.b, got, c.a)
		}
		if r.Uint64() >= c.b {
			t.Errorf("divmodu(%d,%d): remainder %d >= divisor", c.a, c.b, r.Uint64())
		}
	}
}

func TestShiftMaskProperty(t *testing.T) {
	a := FromUint64(0x123456789ABCDEF0)
	for n := uint(0); n <= 63; n++ {
		left := Shl(a, n)
		back := ShrU(left, n)
		var mask uint64
		if n == 64 {
			mask = 0
		} else {
			mask = ^uint64(0) >> n
		}
		want := a.Uint64() & mask
		if back.Uint64() != want {
			t.Errorf("n=%d: (a shl n) shru n = %#x, want %#x", n, back.Uint64(), want)
		}
	}
}

func TestShrsSignPropagation(t *testing.T) {
	neg1 := FromInt64(-1)
	for n := uint(0); n <= 63; n++ {
		got := ShrS(neg1, n)
		if got.Int64() != -1 {
			t.Errorf("shrs(-1, %d) = %d, want -1", n, got.Int64())
		}
	}
}

func TestModSSignFollowsDividend(t *testing.T) {
	cases := []struct{ a, b, want int64 }{
		{7, 2, 1},
		{-7, 2, -1},
		{7, -2, 1},
		{-7, -2, -1},
	}
	for _, c := range cases {
		got := ModS(FromInt64(c.a), FromInt64(c.b)).Int64()
		if got != c.want {
			t.Errorf("mods(%d,%d) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
