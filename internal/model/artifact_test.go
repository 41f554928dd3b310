package model

import (
	"testing"

	"github.com/google/uuid"
)

func TestValidateRankOrderStrictlyIncreasing(t *testing.T) {
	ok := []Artifact{{Rank: 0}, {Rank: 1}, {Rank: 5}}
	if err := ValidateRankOrder(ok); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	bad := []Artifact{{Rank: 0}, {Rank: 0}}
	if err := ValidateRankOrder(bad); err == nil {
		t.Errorf("expected error for non-increasing rank")
	}
}

func TestStoreIDIsStableAndPrefixed(t *testing.T) {
	id := uuid.New()
	storeID := StoreID(id, "résumé.png")
	if storeID == "" {
		t.Fatal("expected non-empty store id")
	}
	if StoreID(id, "résumé.png") != storeID {
		t.Error("StoreID must be deterministic for identical inputs")
	}
}

func TestSanitizeFilenameStripsNonASCII(t *testing.T) {
	got := SanitizeFilename("café-Ü.png")
	for _, r := range got {
		if r > 127 {
			t.Fatalf("expected only ASCII runes, found %q in %q", r, got)
		}
	}
}
