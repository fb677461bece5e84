package intern

import "github.com/pkg/errors"

// Label is a named offset within the currently active symbol, scoped to a
// single source file.
type Label struct {
	Name    string
	Symbol  *Symbol
	Address uint32
}

// LabelTable is the linker's per-file label table, cleared between files
// (original_source/core/ld/2-full/src/label.c).
type LabelTable struct {
	buckets map[uint32][]*Label
}

// NewLabelTable returns an empty LabelTable.
func NewLabelTable() *LabelTable {
	return &LabelTable{buckets: make(map[uint32][]*Label)}
}

// Clear removes all labels, for reuse at the start of a new file.
func (t *LabelTable) Clear() {
	for k := range t.buckets {
		delete(t.buckets, k)
	}
}

// Find returns the label named name, or nil if undefined.
func (t *LabelTable) Find(name string) *Label {
	for _, l := range t.buckets[hashName(name)] {
		if l.Name == name {
			return l
		}
	}
	return nil
}

// Define creates and inserts a label named name at the given symbol-relative
// address. It is an error to redefine a label already present in this file.
func (t *LabelTable) Define(name string, sym *Symbol, address uint32) (*Label, error) {
	if t.Find(name) != nil {
		return nil, errors.Errorf("duplicate label: %s", name)
	}
	l := &Label{Name: name, Symbol: sym, Address: address}
	h := hashName(name)
	t.buckets[h] = append(t.buckets[h], l)
	return l, nil
}
