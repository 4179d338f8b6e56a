package cmn

import "testing"

func TestGenUUIDProducesValidDistinctIDs(t *testing.T) {
	InitShortID(1)
	a := GenUUID()
	b := GenUUID()
	if a == b {
		t.Fatalf("GenUUID produced the same id twice: %q", a)
	}
	if !IsValidUUID(a) {
		t.Fatalf("IsValidUUID(%q) = false, want true", a)
	}
	if !IsValidUUID(b) {
		t.Fatalf("IsValidUUID(%q) = false, want true", b)
	}
}

func TestIsValidUUIDRejectsTooShortOrNonAlphaLeading(t *testing.T) {
	if IsValidUUID("abc") {
		t.Fatal("expected a too-short id to be invalid")
	}
	if IsValidUUID("123456789") {
		t.Fatal("expected an id starting with a digit to be invalid")
	}
}

func TestGenTieProducesDistinctSuccessiveSuffixes(t *testing.T) {
	a := GenTie()
	b := GenTie()
	if a == b {
		t.Fatalf("GenTie produced the same suffix twice: %q", a)
	}
	if len(a) != 3 || len(b) != 3 {
		t.Fatalf("GenTie lengths = %d, %d; want 3, 3", len(a), len(b))
	}
}
