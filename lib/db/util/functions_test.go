package util

import "testing"

func TestHashString(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		seed uint64
		same bool
	}{
		{"same input", "node-1", "node-1", 0, true},
		{"different input", "node-1", "node-2", 0, false},
		{"empty strings", "", "", 42, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := HashString(tc.a, tc.seed) == HashString(tc.b, tc.seed)
			if got != tc.same {
				t.Errorf("HashString(%q) == HashString(%q) = %v, want %v", tc.a, tc.b, got, tc.same)
			}
		})
	}

	if HashString("key", 1) == HashString("key", 2) {
		t.Errorf("expected different seeds to produce different hashes")
	}
}
