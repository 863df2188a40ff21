package contenthash

import "testing"

func TestDeterministic(t *testing.T) {
	a := OfString("package main")
	b := OfString("package main")
	if a != b {
		t.Fatalf("expected identical content to hash identically")
	}
}

func TestDiffers(t *testing.T) {
	a := OfString("x")
	b := OfString("y")
	if a == b {
		t.Fatalf("expected different content to hash differently")
	}
}

func TestEmptyIsStable(t *testing.T) {
	a := Of(nil)
	b := Of([]byte{})
	if a != b {
		t.Fatalf("expected empty content to hash stably regardless of nil vs empty slice")
	}
	if a.IsZero() {
		t.Fatalf("FNV digest of empty input should not be the zero value")
	}
}

func TestStringRoundTrip(t *testing.T) {
	d := OfString("hello")
	if len(d.String()) != 32 {
		t.Fatalf("expected 32 hex chars for 128-bit digest, got %d", len(d.String()))
	}
}
