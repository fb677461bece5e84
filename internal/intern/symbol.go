package intern

import (
	"sort"

	"github.com/pkg/errors"
)

// Flag is a bitmask of symbol definition flags, from the sigil characters
// that may precede a definition token in a hex object file (spec.md §3.3).
type Flag uint8

const (
	FlagWeak Flag = 1 << iota
	FlagZero
	FlagConstructor
	FlagDestructor
)

// GlobalFile is the file index used for global (non-static) symbols.
const GlobalFile = -1

// Symbol is a named, sized region of the output image. It belongs either
// globally (FileIndex == GlobalFile) or statically to one source file.
type Symbol struct {
	Name      string
	FileIndex int
	Size      uint32
	Address   uint32
	Used      bool
	Flags     Flag
	Priority  int

	use []*Symbol // symbols this one references, for reachability marking
}

// IsConstructor reports whether the symbol carries the constructor flag.
func (s *Symbol) IsConstructor() bool { return s.Flags&FlagConstructor != 0 }

// IsDestructor reports whether the symbol carries the destructor flag.
func (s *Symbol) IsDestructor() bool { return s.Flags&FlagDestructor != 0 }

// IsWeak reports whether the symbol carries the weak flag.
func (s *Symbol) IsWeak() bool { return s.Flags&FlagWeak != 0 }

// IsZero reports whether the symbol is a zero-fill (bss-like) symbol.
func (s *Symbol) IsZero() bool { return s.Flags&FlagZero != 0 }

// AddUse records that s references other; used to build the reachability
// graph for dead-symbol elimination (spec.md §4.3).
func (s *Symbol) AddUse(other *Symbol) {
	s.use = append(s.use, other)
}

func (s *Symbol) walk() {
	if s.Used {
		return
	}
	s.Used = true
	for _, u := range s.use {
		u.walk()
	}
}

// SymbolTable is the linker's global symbol table: one hashtable keyed by
// name (with static/global disambiguation by file index) plus a
// declaration-order list, grounded on
// original_source/core/ld/2-full/src/symbol.c.
type SymbolTable struct {
	buckets map[uint32][]*Symbol
	all     []*Symbol

	constructors []*Symbol // declaration order
	destructors  []*Symbol // declaration order; reversed on read
}

// NewSymbolTable returns an empty SymbolTable.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{buckets: make(map[uint32][]*Symbol)}
}

// Find looks up name as seen from fileIndex. A static symbol defined in
// fileIndex is preferred over a global symbol of the same name.
func (t *SymbolTable) Find(name string, fileIndex int) *Symbol {
	var global *Symbol
	for _, s := range t.buckets[hashName(name)] {
		if s.Name != name {
			continue
		}
		if s.FileIndex == fileIndex {
			return s
		}
		if s.FileIndex == GlobalFile {
			global = s
		}
	}
	return global
}

// Define creates a new symbol named name, scoped to fileIndex. It is an
// error to redefine a symbol with the same name already defined at the
// same scope (global vs. the same file index).
func (t *SymbolTable) Define(name string, fileIndex int, optimize bool) (*Symbol, error) {
	for _, s := range t.buckets[hashName(name)] {
		if s.Name == name && s.FileIndex == fileIndex {
			scope := "global"
			if fileIndex != GlobalFile {
				scope = "static"
			}
			return nil, errors.Errorf("duplicate %s symbol: %s", scope, name)
		}
	}
	s := &Symbol{Name: name, FileIndex: fileIndex, Used: !optimize}
	return s, nil
}

// Insert adds a newly defined symbol to the table. It must not already be
// present (callers define then insert once parsing of its flags is
// complete). The first symbol ever inserted should be named "__start"; if
// it isn't, Insert returns a warning message (not an error — this is
// diagnostic only, per spec.md §3.2).
func (t *SymbolTable) Insert(s *Symbol) (warning string) {
	if len(t.all) == 0 && s.Name != "__start" {
		warning = "the first symbol is not named `__start`"
	}
	t.all = append(t.all, s)
	h := hashName(s.Name)
	t.buckets[h] = append(t.buckets[h], s)

	if s.IsConstructor() {
		t.constructors = append(t.constructors, s)
	}
	if s.IsDestructor() {
		t.destructors = append(t.destructors, s)
	}
	return warning
}

// All returns all symbols in declaration order.
func (t *SymbolTable) All() []*Symbol {
	return t.all
}

// WalkUse marks all symbols reachable from the entry point (the first
// defined symbol), the constructors, and the destructors as used. Call
// after all files have been processed with use edges recorded (pass 1).
func (t *SymbolTable) WalkUse() {
	if len(t.all) > 0 {
		t.all[0].walk()
	}
	for _, c := range t.constructors {
		c.walk()
	}
	for _, d := range t.destructors {
		d.walk()
	}
}

// AssignAddresses assigns each used symbol, in declaration order, the
// running address rounded up to a word boundary after the previous used
// symbol's size.
func (t *SymbolTable) AssignAddresses() {
	var addr uint32
	for _, s := range t.all {
		if !s.Used {
			continue
		}
		s.Address = addr
		addr += s.Size
		addr = (addr + 3) &^ 3
	}
}

// SortedConstructors returns the constructor list sorted by ascending
// priority, ties broken by declaration order. Unlike the C reference
// (which carries a documented "TODO lists must be sorted by priority!"),
// this implementation performs the sort, per spec.md §9.
func (t *SymbolTable) SortedConstructors() []*Symbol {
	return sortByPriority(t.constructors, false)
}

// SortedDestructors returns the destructor list in reverse declaration
// order among equal priorities, sorted by ascending priority overall.
func (t *SymbolTable) SortedDestructors() []*Symbol {
	return sortByPriority(t.destructors, true)
}

func sortByPriority(list []*Symbol, reverseTies bool) []*Symbol {
	out := make([]*Symbol, len(list))
	copy(out, list)
	if reverseTies {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// ConstructorCount returns the number of registered constructors.
func (t *SymbolTable) ConstructorCount() int { return len(t.constructors) }

// DestructorCount returns the number of registered destructors.
func (t *SymbolTable) DestructorCount() int { return len(t.destructors) }

// CreateGenerated defines and inserts the synthesized __constructors and
// __destructors symbols, sized to hold one address per entry plus a zero
// terminator (spec.md §3.2).
func (t *SymbolTable) CreateGenerated() (constructors, destructors *Symbol, err error) {
	constructors, err = t.Define("__constructors", GlobalFile, false)
	if err != nil {
		return nil, nil, err
	}
	constructors.Size = 4 * uint32(len(t.constructors)+1)
	t.Insert(constructors)

	destructors, err = t.Define("__destructors", GlobalFile, false)
	if err != nil {
		return nil, nil, err
	}
	destructors.Size = 4 * uint32(len(t.destructors)+1)
	t.Insert(destructors)
	return constructors, destructors, nil
}
