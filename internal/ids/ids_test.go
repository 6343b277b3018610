package ids

import "testing"

func TestNewIsValidAndSorted(t *testing.T) {
	a := New()
	b := New()
	if !Valid(a) || !Valid(b) {
		t.Fatalf("generated ids must be valid: %q %q", a, b)
	}
	if a >= b {
		t.Fatalf("ids not monotonic: %q >= %q", a, b)
	}
}

func TestValidRejectsGarbage(t *testing.T) {
	for _, id := range []string{"", "abc", "not-a-ulid-not-a-ulid-0000", "01HZZZZZZZZZZZZZZZZZZZZZZ!"} {
		if Valid(id) {
			t.Fatalf("expected %q to be invalid", id)
		}
	}
}
