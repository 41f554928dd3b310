package model

import "testing"

func TestDeriveID(t *testing.T) {
	cases := map[string]string{
		"The Plugin":     "the_plugin",
		"Net-Zero Tool":  "netzero_tool",
		"already_snake":  "already_snake",
		"Multi   Spaces": "multi_spaces",
	}
	for name, want := range cases {
		got := DeriveID(name)
		if got != want {
			t.Errorf("DeriveID(%q) = %q, want %q", name, got, want)
		}
		if DeriveID(got) != got {
			t.Errorf("DeriveID not idempotent for %q: %q -> %q", name, got, DeriveID(got))
		}
	}
}

func TestValidateTeaser(t *testing.T) {
	ok := "Calculate your path to become CO2 neutral by 2030."
	if err := ValidateTeaser(ok); err != nil {
		t.Errorf("expected valid teaser, got %v", err)
	}
	if err := ValidateTeaser("too short."); err == nil {
		t.Errorf("expected error for too-short teaser")
	}
	if err := ValidateTeaser("starts lower case and is long enough to pass length check."); err == nil {
		t.Errorf("expected error for lower-case start")
	}
	if err := ValidateTeaser("Does not end with a period and is long enough"); err == nil {
		t.Errorf("expected error for missing trailing period")
	}
}

func TestValidateName(t *testing.T) {
	if err := ValidateName("Net-Zero Tool"); err != nil {
		t.Errorf("expected valid name, got %v", err)
	}
	if err := ValidateName("Tool_123"); err == nil {
		t.Errorf("expected error for name with digits/underscore")
	}
}
