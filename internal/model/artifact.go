package model

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ArtifactModality is the typed kind of one output file.
type ArtifactModality string

const (
	ModalityMarkdown       ArtifactModality = "markdown"
	ModalityTable          ArtifactModality = "table"
	ModalityImage          ArtifactModality = "image"
	ModalityChart          ArtifactModality = "chart"
	ModalityRaster         ArtifactModality = "raster"
	ModalityVector         ArtifactModality = "vector"
	ModalityComputationInfo ArtifactModality = "computation_info"
)

// ComputationInfoFilename is the reserved filename for the final
// metadata artifact every computation stores on success.
const ComputationInfoFilename = "computation_info.json"

// LegendType discriminates Legend.Data's two shapes.
type LegendType string

const (
	LegendDiscrete   LegendType = "discrete"
	LegendContinuous LegendType = "continuous"
)

// Legend carries the data needed to render an artifact's color key.
type Legend struct {
	Title string `json:"title,omitempty"`
	Type  LegendType `json:"legend_type"`
	// Discrete maps a label to a hex color; populated when Type == LegendDiscrete.
	Discrete map[string]string `json:"discrete,omitempty"`
	// ContinuousCmap and ContinuousTicks are populated when Type == LegendContinuous.
	ContinuousCmap  string             `json:"cmap_name,omitempty"`
	ContinuousTicks map[string]float64 `json:"ticks,omitempty"`
}

// Attachments bundles an optional Legend with an optional
// display-optimized sibling filename.
type Attachments struct {
	Legend          *Legend `json:"legend,omitempty"`
	DisplayFilename string  `json:"display_filename,omitempty"`
}

// Artifact is the typed metadata for one output file of a computation.
// Rank is assigned by the worker at insertion time and must be
// strictly increasing per CorrelationUUID.
type Artifact struct {
	Rank            int              `json:"rank"`
	CorrelationUUID uuid.UUID        `json:"correlation_uuid"`
	Name            string           `json:"name"`
	Modality        ArtifactModality `json:"modality"`
	Primary         bool             `json:"primary"`
	Tags            map[string]struct{} `json:"tags"`
	Summary         string           `json:"summary"`
	Description     string           `json:"description,omitempty"`
	Filename        string           `json:"filename"`
	Attachments     Attachments      `json:"attachments"`
	Sources         []Source         `json:"sources,omitempty"`
}

var nonASCII = regexp.MustCompile(`[^\x20-\x7E]`)

// SanitizeFilename deterministically strips non-ASCII runes from name
// so filenames survive an ASCII round trip.
func SanitizeFilename(name string) string {
	return nonASCII.ReplaceAllString(name, "")
}

// StoreID derives the object-store blob name for an artifact: the
// sanitized filename prefixed with the owning correlation id to
// prevent cross-computation collisions.
func StoreID(correlationUUID uuid.UUID, filename string) string {
	sanitized := SanitizeFilename(filename)
	return fmt.Sprintf("%s-%s", correlationUUID.String(), sanitized)
}

// ValidateRankOrder checks the ordering guarantee: rank must strictly
// increase across artifacts as stored (insertion order).
func ValidateRankOrder(artifacts []Artifact) error {
	for i := 1; i < len(artifacts); i++ {
		if artifacts[i].Rank <= artifacts[i-1].Rank {
			return fmt.Errorf("artifact rank must strictly increase: rank %d follows rank %d",
				artifacts[i].Rank, artifacts[i-1].Rank)
		}
	}
	return nil
}

// DisplayFilename returns filename with the `-display` suffix
// inserted before the extension, matching the Python original's
// DISPLAY_FILENAME_SUFFIX convention.
func DisplayFilename(filename string) string {
	if idx := strings.LastIndex(filename, "."); idx >= 0 {
		return filename[:idx] + "-display" + filename[idx:]
	}
	return filename + "-display"
}
