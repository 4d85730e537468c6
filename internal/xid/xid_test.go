package xid

import (
	"strings"
	"testing"
)

func TestNewCarriesPrefix(t *testing.T) {
	id := New("pi")
	if !strings.HasPrefix(id, "pi_") {
		t.Fatalf("expected pi_ prefix, got %s", id)
	}
	if len(id) != len("pi_")+24 {
		t.Fatalf("unexpected id length: %s", id)
	}
}

func TestNewDoesNotCollide(t *testing.T) {
	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		id := New("sale")
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
