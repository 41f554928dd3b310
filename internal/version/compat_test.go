package version

import (
	"testing"

	"github.com/Masterminds/semver/v3"
)

func mustParse(t *testing.T, s string) *semver.Version {
	t.Helper()
	v, err := semver.NewVersion(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return v
}

func TestCompatibleMajorMinorRules(t *testing.T) {
	cases := []struct {
		x, y string
		want bool
	}{
		{"1.2.0", "1.9.0", true},
		{"2.0.0", "1.9.0", false},
		{"0.1.0", "0.1.5", true},
		{"0.1.0", "0.2.0", false},
		{"1.2.3+build1", "1.2.3+build2", true},
	}
	for _, c := range cases {
		got := Compatible(mustParse(t, c.x), mustParse(t, c.y))
		if got != c.want {
			t.Errorf("Compatible(%s, %s) = %v, want %v", c.x, c.y, got, c.want)
		}
	}
}

func TestVersionMismatchScenario(t *testing.T) {
	// library_version=1.2.0 vs runtime 2.0.0: incompatible major version.
	plugin := mustParse(t, "1.2.0")
	runtime := mustParse(t, "2.0.0")
	if Compatible(plugin, runtime) {
		t.Error("expected incompatibility between major versions 1 and 2")
	}
}
