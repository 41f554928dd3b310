package operator

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// Scope is the Computation Scope: a scoped acquisition exposing a fresh temp
// directory and an artifact-error sink to the operator, released on
// every exit path (success, error, revoke) via Close. Always used
// through defer to scope per-task ephemeral state.
type Scope struct {
	CorrelationUUID uuid.UUID
	ComputationDir  string
	ArtifactErrors  map[string]string
}

// NewScope creates a fresh temp directory keyed by correlationUUID.
// The caller must defer Close.
func NewScope(correlationUUID uuid.UUID) (*Scope, error) {
	dir, err := os.MkdirTemp("", fmt.Sprintf("climatoology-%s-", correlationUUID.String()))
	if err != nil {
		return nil, fmt.Errorf("create computation scope: %w", err)
	}
	return &Scope{
		CorrelationUUID: correlationUUID,
		ComputationDir:  dir,
		ArtifactErrors:  make(map[string]string),
	}, nil
}

// Close removes the scope's temp directory unconditionally. It
// implements io.Closer so callers can `defer scope.Close()`
// regardless of how the operator's Compute call terminates.
func (s *Scope) Close() error {
	if s.ComputationDir == "" {
		return nil
	}
	return os.RemoveAll(s.ComputationDir)
}
