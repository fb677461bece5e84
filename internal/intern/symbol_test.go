package intern

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefineDuplicateGlobal(t *testing.T) {
	st := NewSymbolTable()
	a, err := st.Define("foo", GlobalFile, true)
	if err != nil {
		t.Fatal(err)
	}
	st.Insert(a)
	if _, err := st.Define("foo", GlobalFile, true); err == nil {
		t.Fatal("expected duplicate global symbol error")
	}
}

func TestStaticShadowsGlobal(t *testing.T) {
	st := NewSymbolTable()
	g, _ := st.Define("foo", GlobalFile, true)
	st.Insert(g)
	s, _ := st.Define("foo", 0, true)
	st.Insert(s)

	if got := st.Find("foo", 0); got != s {
		t.Errorf("Find in file 0 should prefer static symbol")
	}
	if got := st.Find("foo", 1); got != g {
		t.Errorf("Find in file 1 should fall back to global symbol")
	}
}

func TestFirstSymbolWarning(t *testing.T) {
	st := NewSymbolTable()
	s, _ := st.Define("notstart", GlobalFile, true)
	if w := st.Insert(s); w == "" {
		t.Fatal("expected warning when first symbol isn't __start")
	}

	st2 := NewSymbolTable()
	s2, _ := st2.Define("__start", GlobalFile, true)
	if w := st2.Insert(s2); w != "" {
		t.Fatalf("unexpected warning: %q", w)
	}
}

func TestWalkUseAndAssignAddresses(t *testing.T) {
	st := NewSymbolTable()
	entry, _ := st.Define("__start", GlobalFile, true)
	entry.Size = 4
	st.Insert(entry)

	used, _ := st.Define("used", GlobalFile, true)
	used.Size = 2
	st.Insert(used)
	entry.AddUse(used)

	dead, _ := st.Define("dead", GlobalFile, true)
	dead.Size = 8
	st.Insert(dead)

	st.WalkUse()
	if !entry.Used || !used.Used {
		t.Fatal("entry and its use-edge target must be reachable")
	}
	if dead.Used {
		t.Fatal("dead symbol must not be marked used")
	}

	st.AssignAddresses()
	if entry.Address != 0 {
		t.Errorf("entry address = %d, want 0", entry.Address)
	}
	if used.Address != 4 {
		t.Errorf("used address = %d, want 4 (word-aligned after 4-byte entry)", used.Address)
	}
}

func TestSortedConstructorsByPriority(t *testing.T) {
	st := NewSymbolTable()
	a, _ := st.Define("a", GlobalFile, false)
	a.Flags = FlagConstructor
	a.Priority = 5
	st.Insert(a)

	b, _ := st.Define("b", GlobalFile, false)
	b.Flags = FlagConstructor
	b.Priority = 1
	st.Insert(b)

	got := st.SortedConstructors()
	if got[0] != b || got[1] != a {
		t.Fatalf("expected [b,a] sorted by priority, got [%s,%s]", got[0].Name, got[1].Name)
	}

	gotNames := []string{got[0].Name, got[1].Name}
	wantNames := []string{"b", "a"}
	if diff := cmp.Diff(wantNames, gotNames); diff != "" {
		t.Errorf("constructor order mismatch (-want +got):\n%s", diff)
	}
}
