package idgen

import (
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestNanoID_Length(t *testing.T) {
	for _, length := range []int{8, 9, 16} {
		id := NanoID(length)()
		if len(id) != length {
			t.Fatalf("NanoID(%d): got length %d", length, len(id))
		}
	}
}

func TestNanoID_Alphabet(t *testing.T) {
	id := NanoID(100)()
	for _, c := range id {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'z')) {
			t.Fatalf("NanoID: unexpected character %q in %q", c, id)
		}
	}
}

func TestUUIDv7_Uniqueness(t *testing.T) {
	gen := UUIDv7()
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		id := gen()
		if len(id) != 36 {
			t.Fatalf("UUIDv7: expected length 36, got %d", len(id))
		}
		if _, ok := seen[id]; ok {
			t.Fatalf("UUIDv7: duplicate at iteration %d", i)
		}
		seen[id] = struct{}{}
	}
}

func TestPrefixed(t *testing.T) {
	id := Prefixed("run_", NanoID(8))()
	if !strings.HasPrefix(id, "run_") || len(id) != 12 {
		t.Fatalf("Prefixed: got %q", id)
	}
}

func TestJobID_Format(t *testing.T) {
	// WHAT: job IDs embed the clock in millis and a 9-char base-36 suffix.
	// WHY: run logs are keyed by job ID and operators read them in the DB.
	fixed := time.UnixMilli(1760500000123)
	gen := JobID(func() time.Time { return fixed })
	id := gen()
	if !regexp.MustCompile(`^job_1760500000123_[0-9a-z]{9}$`).MatchString(id) {
		t.Fatalf("JobID: bad format %q", id)
	}
	if gen() == id {
		t.Fatal("JobID: two calls in the same millisecond collided")
	}
}

func TestSequence(t *testing.T) {
	gen := Sequence("n")
	if a, b := gen(), gen(); a != "n1" || b != "n2" {
		t.Fatalf("Sequence: got %q, %q", a, b)
	}
}

func TestParse(t *testing.T) {
	id := New()
	parsed, err := Parse(id)
	if err != nil || parsed != id {
		t.Fatalf("Parse(%q) = %q, %v", id, parsed, err)
	}
	if _, err := Parse("not-a-uuid"); err == nil {
		t.Fatal("Parse: expected error for invalid UUID")
	}
}
