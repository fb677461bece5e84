package scan

import (
	"strings"
	"testing"
)

func readAll(s *Scanner) string {
	var b []byte
	for s.Peek() != EOF {
		c, err := s.Next()
		if err != nil {
			break
		}
		b = append(b, byte(c))
	}
	return string(b)
}

func TestLineCounting(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"a\nb\nc", 3},
		{"a\r\nb\r\nc", 3},
		{"a\rb\rc", 3},
		{"noeol", 1},
	}
	for _, c := range cases {
		s := New(strings.NewReader(c.in), "t.os")
		readAll(s)
		if s.Position().Line != c.want {
			t.Errorf("%q: line = %d, want %d", c.in, s.Position().Line, c.want)
		}
	}
}

func TestNormalizesLineEndings(t *testing.T) {
	s := New(strings.NewReader("a\r\nb"), "t.os")
	got := readAll(s)
	if got != "a\nb" {
		t.Errorf("got %q, want %q", got, "a\nb")
	}
}

func TestEOF(t *testing.T) {
	s := New(strings.NewReader(""), "t.os")
	if s.Peek() != EOF {
		t.Fatal("expected immediate EOF")
	}
	if _, err := s.Next(); err == nil {
		t.Fatal("expected error from Next at EOF")
	}
}
