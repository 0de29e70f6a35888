package idgen

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestShort_LengthAndAlphabet(t *testing.T) {
	for _, n := range []int{4, 10, 32} {
		id := Short(n)()
		if len(id) != n {
			t.Fatalf("Short(%d): got length %d", n, len(id))
		}
		for _, c := range id {
			if !strings.ContainsRune(base36, c) {
				t.Fatalf("Short(%d): unexpected character %q in %q", n, c, id)
			}
		}
	}
}

func TestShort_Unique(t *testing.T) {
	gen := Short(12)
	seen := make(map[string]bool, 500)
	for i := 0; i < 500; i++ {
		id := gen()
		if seen[id] {
			t.Fatalf("duplicate id at %d: %q", i, id)
		}
		seen[id] = true
	}
}

func TestUUIDv7_Version(t *testing.T) {
	u, err := uuid.Parse(UUIDv7()())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Version() != 7 {
		t.Errorf("version = %d, want 7", u.Version())
	}
}

func TestPrefixedGenerators(t *testing.T) {
	if id := PageID(); !strings.HasPrefix(id, "pg_") || len(id) != 13 {
		t.Errorf("PageID() = %q", id)
	}
	id := ReportID()
	if !strings.HasPrefix(id, "swp_") {
		t.Fatalf("ReportID() = %q, want swp_ prefix", id)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(id, "swp_")); err != nil {
		t.Errorf("ReportID suffix is not a uuid: %v", err)
	}
}

func TestNew_UsesDefault(t *testing.T) {
	orig := Default
	defer func() { Default = orig }()
	Default = func() string { return "fixed" }
	if got := New(); got != "fixed" {
		t.Errorf("New() = %q, want fixed", got)
	}
}
