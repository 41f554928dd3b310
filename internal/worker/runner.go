// Package worker implements the Worker Task Runner: the per-task
// lifecycle a plugin host drives on every dispatched
// compute task, from parameter validation through artifact upload to
// the final store update.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	climatoologyerrors "github.com/GIScience/climatoology-go/internal/errors"
	"github.com/GIScience/climatoology-go/internal/model"
	"github.com/GIScience/climatoology-go/internal/operator"
	"github.com/GIScience/climatoology-go/internal/store"
	"github.com/GIScience/climatoology-go/internal/validation"
)

// ComputationStore is the narrowed store dependency the runner needs
// to drive a computation's lifecycle fields.
type ComputationStore interface {
	AddValidatedParams(ctx context.Context, correlationUUID uuid.UUID, params json.RawMessage) error
	UpdateSuccessfulComputation(ctx context.Context, info store.SuccessfulComputation, invalidateCache bool) error
	UpdateFailedComputation(ctx context.Context, correlationUUID uuid.UUID, message *string, cache bool) error
	UpdateRevokedComputation(ctx context.Context, correlationUUID uuid.UUID) error
}

// ArtifactSaver is the narrowed object-store dependency: upload one
// artifact file.
type ArtifactSaver interface {
	Save(ctx context.Context, artifact model.Artifact, filePath string) error
}

// Runner drives one plugin's operator through the task lifecycle.
// One Runner is constructed per plugin host and reused across tasks.
type Runner[P any] struct {
	Operator   operator.Operator[P]
	Schema     *validation.Schema
	Store      ComputationStore
	Objects    ArtifactSaver
	Log        zerolog.Logger
}

// errRevoked signals that the task's context was cancelled before
// completion. It is never wrapped with a message: revocation finalizes
// with no message and cache=false.
var errRevoked = errors.New("task revoked")

// Run executes the full per-task lifecycle for one dispatched task and
// reports the terminal outcome. The broker's Handler signature is
// satisfied by binding Run as a method value.
func (r *Runner[P]) Run(ctx context.Context, taskID uuid.UUID, aoiFeature model.AOIFeature, rawParams json.RawMessage) error {
	err := r.runValidated(ctx, taskID, aoiFeature, rawParams)
	if err == nil {
		return nil
	}

	if errors.Is(err, errRevoked) {
		// ctx is already cancelled here; the store write must not inherit that.
		if updateErr := r.Store.UpdateRevokedComputation(context.WithoutCancel(ctx), taskID); updateErr != nil {
			r.Log.Error().Err(updateErr).Str("correlation_uuid", taskID.String()).Msg("persist revoked computation")
		}
		return err
	}

	message := err.Error()
	cache := climatoologyerrors.CachesFailure(err)
	if updateErr := r.Store.UpdateFailedComputation(ctx, taskID, &message, cache); updateErr != nil {
		r.Log.Error().Err(updateErr).Str("correlation_uuid", taskID.String()).Msg("persist failed computation")
	}
	return err
}

func (r *Runner[P]) runValidated(ctx context.Context, taskID uuid.UUID, aoiFeature model.AOIFeature, rawParams json.RawMessage) error {
	// Step 3: validate params against the operator's schema.
	if err := r.Schema.Validate(rawParams); err != nil {
		return err
	}
	params, err := r.Operator.Parse(rawParams)
	if err != nil {
		return climatoologyerrors.InputValidation(fmt.Sprintf("malformed parameters: %v", err))
	}
	if err := r.Store.AddValidatedParams(ctx, taskID, rawParams); err != nil {
		return climatoologyerrors.Wrap(climatoologyerrors.KindUnexpected, "persist validated params", err)
	}

	// Step 4: computation scope, released on every exit path.
	scope, err := operator.NewScope(taskID)
	if err != nil {
		return climatoologyerrors.Wrap(climatoologyerrors.KindUnexpected, "create computation scope", err)
	}
	defer func() {
		if closeErr := scope.Close(); closeErr != nil {
			r.Log.Warn().Err(closeErr).Str("correlation_uuid", taskID.String()).Msg("release computation scope")
		}
	}()

	if ctx.Err() != nil {
		return errRevoked
	}

	// Step 5: run the operator.
	rawArtifacts, err := r.Operator.Compute(scope, aoiFeature, params)
	if err != nil {
		if ctx.Err() != nil {
			return errRevoked
		}
		return climatoologyerrors.Wrap(climatoologyerrors.KindUserError, "operator compute failed", err)
	}
	live := dropNilArtifacts(rawArtifacts)
	if len(live) == 0 {
		return climatoologyerrors.New(climatoologyerrors.KindUnexpected, "operator produced no artifacts")
	}

	// Step 6: upload each artifact, sanitizing the filename and
	// stamping rank/correlation id.
	artifacts := make([]model.Artifact, len(live))
	for i, a := range live {
		a.CorrelationUUID = taskID
		a.Rank = i
		a.Filename = model.SanitizeFilename(a.Filename)
		path := filepath.Join(scope.ComputationDir, a.Filename)
		if err := r.Objects.Save(ctx, *a, path); err != nil {
			scope.ArtifactErrors[a.Name] = err.Error()
		}
		artifacts[i] = *a
	}

	// Step 7: persist the final computation_info.json metadata artifact.
	infoArtifact, infoPath, err := writeComputationInfoArtifact(scope, taskID, artifacts, scope.ArtifactErrors)
	if err != nil {
		r.Log.Warn().Err(err).Str("correlation_uuid", taskID.String()).Msg("build computation info artifact")
	} else {
		if err := r.Objects.Save(ctx, infoArtifact, infoPath); err != nil {
			scope.ArtifactErrors[infoArtifact.Name] = err.Error()
		} else {
			artifacts = append(artifacts, infoArtifact)
		}
	}

	var message *string
	if len(scope.ArtifactErrors) > 0 {
		m := fmt.Sprintf("%d artifact(s) failed to upload", len(scope.ArtifactErrors))
		message = &m
	}

	// Finalize. Any artifact error invalidates the cache so a retry
	// re-runs and has another chance at a clean upload.
	if err := r.Store.UpdateSuccessfulComputation(ctx, store.SuccessfulComputation{
		CorrelationUUID: taskID,
		Artifacts:       artifacts,
		Message:         message,
		ArtifactErrors:  scope.ArtifactErrors,
	}, len(scope.ArtifactErrors) > 0); err != nil {
		return climatoologyerrors.Wrap(climatoologyerrors.KindUnexpected, "finalize successful computation", err)
	}

	return nil
}

func dropNilArtifacts(artifacts []*model.Artifact) []*model.Artifact {
	out := artifacts[:0]
	for _, a := range artifacts {
		if a == nil {
			continue
		}
		out = append(out, a)
	}
	return out
}

// writeComputationInfoArtifact persists a computation_info.json
// summary into the scope's temp dir and describes it as the final
// artifact, rank = math.MaxInt64.
func writeComputationInfoArtifact(scope *operator.Scope, taskID uuid.UUID, artifacts []model.Artifact,
	artifactErrors map[string]string) (model.Artifact, string, error) {

	summary := struct {
		CorrelationUUID uuid.UUID         `json:"correlation_uuid"`
		GeneratedAt     time.Time         `json:"generated_at"`
		ArtifactCount   int               `json:"artifact_count"`
		ArtifactErrors  map[string]string `json:"artifact_errors,omitempty"`
	}{
		CorrelationUUID: taskID,
		GeneratedAt:     time.Now().UTC(),
		ArtifactCount:   len(artifacts),
		ArtifactErrors:  artifactErrors,
	}
	payload, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return model.Artifact{}, "", fmt.Errorf("marshal computation info: %w", err)
	}

	path := filepath.Join(scope.ComputationDir, model.ComputationInfoFilename)
	if err := writeFile(path, payload); err != nil {
		return model.Artifact{}, "", err
	}

	return model.Artifact{
		CorrelationUUID: taskID,
		Rank:            math.MaxInt64,
		Name:            "Computation Info",
		Modality:        model.ModalityComputationInfo,
		Summary:         "Machine-readable summary of this computation's outcome.",
		Filename:        model.ComputationInfoFilename,
	}, path, nil
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
