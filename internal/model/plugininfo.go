// Package model holds the persistent records of the computation
// platform: PluginInfo, Artifact, Computation and ComputationLookup.
package model

import (
	"fmt"
	"regexp"
	"time"

	"github.com/Masterminds/semver/v3"
)

// Concern is a topical tag drawn from a closed enumeration.
type Concern string

const (
	ConcernGHGEmission      Concern = "ghg_emission"
	ConcernMitigation       Concern = "mitigation"
	ConcernAdaption         Concern = "adaption"
	ConcernMobilityPedestrian Concern = "pedestrian"
	ConcernMobilityCycling  Concern = "cycling"
	ConcernWaste            Concern = "waste"
)

// PluginState is the plugin's development maturity.
type PluginState string

const (
	PluginStateExperimental PluginState = "experimental"
	PluginStateActive       PluginState = "active"
	PluginStateHibernate    PluginState = "hibernate"
	PluginStateArchive      PluginState = "archive"
)

// Author is one entry of a PluginInfo's ordered author list. Seat is
// the 0-based position within the list and is what survives the
// round trip through plugin_info_author_link, never Go map/slice
// iteration order alone.
type Author struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
	Website     string `json:"website,omitempty"`
	Seat        int    `json:"-"`
}

// DemoConfig describes how to run a demonstration computation for a
// plugin without requiring the caller to supply their own AOI/params.
type DemoConfig struct {
	Params map[string]any `json:"params"`
	Name   string         `json:"name"`
	AOI    MultiPolygon   `json:"aoi"`
}

// Assets bundles static, object-store-resident data for a plugin: an
// icon and the full citation library it may draw Sources from.
type Assets struct {
	Icon           string            `json:"icon"`
	SourcesLibrary map[string]Source `json:"sources_library,omitempty"`
}

// PluginInfo is the immutable descriptor of one plugin version.
// Key = ID + ";" + Version.String().
type PluginInfo struct {
	ID                   string          `json:"id"`
	Version              *semver.Version `json:"version"`
	LibraryVersion       *semver.Version `json:"library_version"`
	Name                 string          `json:"name"`
	Authors              []Author        `json:"authors"`
	Repository           string          `json:"repository"`
	State                PluginState     `json:"state"`
	Concerns             map[Concern]struct{} `json:"concerns"`
	Teaser               string          `json:"teaser"`
	Purpose              string          `json:"purpose"`
	Methodology          string          `json:"methodology"`
	Sources              []Source        `json:"sources"`
	DemoConfig           DemoConfig      `json:"demo_config"`
	ComputationShelfLife *time.Duration  `json:"computation_shelf_life"` // nil == unbounded
	Assets               Assets          `json:"assets"`
	OperatorSchema       map[string]any  `json:"operator_schema"`
	Latest               bool            `json:"latest"`
}

// Key is the PluginInfo primary key: "id;version".
func (p PluginInfo) Key() string {
	return fmt.Sprintf("%s;%s", p.ID, p.Version.String())
}

var idSeparators = regexp.MustCompile(`[^a-zA-Z_\s]`)
var idWhitespace = regexp.MustCompile(`\s+`)

// DeriveID lower-snake-cases a display name into a plugin id: strip
// everything but letters, underscores and whitespace, then replace whitespace runs
// with underscores and lowercase. Idempotent: DeriveID(DeriveID(x)) ==
// DeriveID(x).
func DeriveID(name string) string {
	cleaned := idSeparators.ReplaceAllString(name, "")
	cleaned = idWhitespace.ReplaceAllString(cleaned, "_")
	return toLower(cleaned)
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

var teaserPattern = regexp.MustCompile(`^[A-Z].*\.$`)

// ValidateTeaser enforces the teaser boundary: length in [20,150],
// starts upper-case, ends with a full stop.
func ValidateTeaser(teaser string) error {
	if l := len([]rune(teaser)); l < 20 || l > 150 {
		return fmt.Errorf("teaser must be between 20 and 150 characters, got %d", l)
	}
	if !teaserPattern.MatchString(teaser) {
		return fmt.Errorf("teaser must start with an upper-case letter and end with '.'")
	}
	return nil
}

var pluginNamePattern = regexp.MustCompile(`^[A-Za-z -]+$`)

// ValidateName enforces the plugin-name boundary: only letters,
// spaces and hyphens.
func ValidateName(name string) error {
	if !pluginNamePattern.MatchString(name) {
		return fmt.Errorf("plugin name %q must contain only letters, spaces and hyphens", name)
	}
	return nil
}
