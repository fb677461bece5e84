// Package intern implements string interning and the symbol/label
// hashtables shared by the assembler and linker.
package intern

import "hash/fnv"

// Interner deduplicates identifier strings so that repeated occurrences of
// the same name share one allocation and compare equal by pointer as well
// as by value. The C reference refcounts interned strings and frees them at
// shutdown; in Go the garbage collector reclaims them once the last
// reference in a Table or parser drops, which is the "generation counter
// plus mark-and-sweep" alternative spec.md suggests.
type Interner struct {
	m map[string]string
}

// NewInterner returns an empty Interner.
func NewInterner() *Interner {
	return &Interner{m: make(map[string]string)}
}

// Intern returns the canonical copy of s.
func (in *Interner) Intern(s string) string {
	if v, ok := in.m[s]; ok {
		return v
	}
	in.m[s] = s
	return s
}

// hashName computes the FNV-1a hash of name, matching the reference
// linker's bucket hash (symbol.c, label.c).
func hashName(name string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(name))
	return h.Sum32()
}
