package engine

import (
	"strings"
	"testing"
)

func TestParseSeedRoundTrip(t *testing.T) {
	hex := strings.Repeat("ab", 32)
	seed, err := ParseSeed(hex)
	if err != nil {
		t.Fatalf("ParseSeed: %v", err)
	}
	if seed.String() != hex {
		t.Fatalf("round trip: got %s, want %s", seed.String(), hex)
	}
}

func TestParseSeedErrors(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"short", "abcd"},
		{"long", strings.Repeat("ab", 33)},
		{"not hex", strings.Repeat("zz", 32)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseSeed(tc.input); err == nil {
				t.Fatalf("ParseSeed(%q) accepted invalid input", tc.input)
			}
		})
	}
}

func TestDeriveSeed(t *testing.T) {
	a := DeriveSeed("table-seed", "0:0")
	b := DeriveSeed("table-seed", "0:0")
	if a != b {
		t.Fatal("same key and message produced different seeds")
	}

	if DeriveSeed("table-seed", "0:1") == a {
		t.Fatal("different messages produced the same seed")
	}
	if DeriveSeed("other-seed", "0:0") == a {
		t.Fatal("different keys produced the same seed")
	}
}

func TestHash(t *testing.T) {
	if Hash("") != "" {
		t.Fatal("empty input must hash to empty string")
	}
	h := Hash("table-seed")
	if len(h) != 64 {
		t.Fatalf("hash length %d, want 64", len(h))
	}
	if h != Hash("table-seed") {
		t.Fatal("hash is not deterministic")
	}
}
