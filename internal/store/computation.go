package store

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/GIScience/climatoology-go/internal/model"
)

// DeduplicationKey computes the MD5 of requestedParams || WKT(aoi),
// the hash used as part of the dedup unique constraint
// (plugin_key, deduplication_key, cache_epoch).
func DeduplicationKey(requestedParams json.RawMessage, aoi model.MultiPolygon) string {
	h := md5.New()
	h.Write(requestedParams)
	h.Write([]byte(model.WKT(aoi)))
	return hex.EncodeToString(h.Sum(nil))
}

// RegisterComputation performs the insert-or-return-existing upsert:
// a single statement against the unique constraint
// (plugin_key, deduplication_key, cache_epoch) that returns the
// winning correlation_uuid, whether it was just inserted (this caller
// originated it) or pre-existing (another caller is the canonical
// owner and this caller gets an alias handle).
func (s *Store) RegisterComputation(
	ctx context.Context,
	correlationUUID uuid.UUID,
	requestedParams json.RawMessage,
	aoi model.AOIFeature,
	pluginKey string,
	cacheEpoch *int64,
	validUntil time.Time,
) (canonicalUUID uuid.UUID, err error) {
	dedupKey := DeduplicationKey(requestedParams, aoi.Geometry)
	aoiPropsJSON, _ := json.Marshal(aoi.Properties)
	wkt := model.WKT(aoi.Geometry)

	row := s.db.QueryRowContext(ctx, `
		WITH ins AS (
			INSERT INTO ca_base.computation
				(correlation_uuid, plugin_key, deduplication_key, cache_epoch, valid_until,
				 requested_params, aoi_geom, aoi_properties, status)
			VALUES ($1, $2, $3, $4, $5, $6, ST_GeomFromText($7, 4326), $8, 'pending')
			ON CONFLICT (plugin_key, deduplication_key, cache_epoch) DO NOTHING
			RETURNING correlation_uuid
		)
		SELECT correlation_uuid FROM ins
		UNION ALL
		SELECT correlation_uuid FROM ca_base.computation
		WHERE plugin_key = $2 AND deduplication_key = $3
		  AND ((cache_epoch IS NULL AND $4 IS NULL) OR cache_epoch = $4)
		LIMIT 1
	`, correlationUUID, pluginKey, dedupKey, cacheEpoch, validUntil, requestedParams, wkt, aoiPropsJSON)

	if err := row.Scan(&canonicalUUID); err != nil {
		return uuid.Nil, fmt.Errorf("register computation: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO ca_base.computation_lookup
			(user_correlation_uuid, aoi_name, aoi_id, aoi_properties, is_demo, computation_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_correlation_uuid) DO NOTHING
	`, correlationUUID, aoi.Properties.Name, aoi.Properties.ID, aoiPropsJSON, isDemoAOI(aoi.Properties.ID), canonicalUUID); err != nil {
		return uuid.Nil, fmt.Errorf("insert computation lookup: %w", err)
	}

	return canonicalUUID, nil
}

// isDemoAOI reports whether aoiID matches the conventional demo-AOI
// pattern, computed once at lookup-insert time and not recomputed
// retroactively.
func isDemoAOI(aoiID string) bool {
	return len(aoiID) >= 5 && aoiID[:5] == "demo-"
}

// AddValidatedParams sets Params after the worker validates the raw
// request against the plugin's operator schema.
func (s *Store) AddValidatedParams(ctx context.Context, correlationUUID uuid.UUID, params json.RawMessage) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE ca_base.computation SET params = $1, status = 'started' WHERE correlation_uuid = $2`,
		params, correlationUUID)
	if err != nil {
		return fmt.Errorf("add validated params: %w", err)
	}
	return nil
}

// SuccessfulComputation bundles the fields UpdateSuccessfulComputation
// persists on success.
type SuccessfulComputation struct {
	CorrelationUUID uuid.UUID
	Artifacts       []model.Artifact
	Message         *string
	ArtifactErrors  map[string]string
}

// UpdateSuccessfulComputation writes the artifact rows and status
// message, invalidating the cache (cache_epoch = NULL, valid_until =
// now) whenever any artifact_errors are present, so a retry re-runs.
func (s *Store) UpdateSuccessfulComputation(ctx context.Context, info SuccessfulComputation, invalidateCache bool) error {
	if err := model.ValidateRankOrder(info.Artifacts); err != nil {
		return fmt.Errorf("invalid artifact ranks: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, a := range info.Artifacts {
		tags := make([]string, 0, len(a.Tags))
		for t := range a.Tags {
			tags = append(tags, t)
		}
		attachmentsJSON, _ := json.Marshal(a.Attachments)
		sourcesJSON, _ := json.Marshal(a.Sources)

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ca_base.artifact
				(correlation_uuid, rank, name, modality, "primary", tags, summary, description,
				 attachments, sources, filename)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (correlation_uuid, rank) DO UPDATE SET
				name = EXCLUDED.name, modality = EXCLUDED.modality, "primary" = EXCLUDED."primary",
				tags = EXCLUDED.tags, summary = EXCLUDED.summary, description = EXCLUDED.description,
				attachments = EXCLUDED.attachments, sources = EXCLUDED.sources, filename = EXCLUDED.filename
		`, info.CorrelationUUID, a.Rank, a.Name, string(a.Modality), a.Primary, pq.Array(tags),
			a.Summary, a.Description, attachmentsJSON, sourcesJSON, a.Filename); err != nil {
			return fmt.Errorf("insert artifact %q: %w", a.Name, err)
		}
	}

	artifactErrorsJSON, _ := json.Marshal(info.ArtifactErrors)
	if info.ArtifactErrors == nil {
		artifactErrorsJSON = []byte("{}")
	}

	if invalidateCache {
		if _, err := tx.ExecContext(ctx, `
			UPDATE ca_base.computation
			SET status = 'success', message = $1, artifact_errors = $2,
			    cache_epoch = NULL, valid_until = now()
			WHERE correlation_uuid = $3
		`, info.Message, artifactErrorsJSON, info.CorrelationUUID); err != nil {
			return fmt.Errorf("finalize successful computation: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `
			UPDATE ca_base.computation
			SET status = 'success', message = $1, artifact_errors = $2
			WHERE correlation_uuid = $3
		`, info.Message, artifactErrorsJSON, info.CorrelationUUID); err != nil {
			return fmt.Errorf("finalize successful computation: %w", err)
		}
	}

	return tx.Commit()
}

// UpdateFailedComputation sets a terminal failure. cache=true (only
// ever passed for InputValidationError) caches the failure forever so
// a retry with identical bad input short-circuits.
func (s *Store) UpdateFailedComputation(ctx context.Context, correlationUUID uuid.UUID, message *string, cache bool) error {
	var err error
	if cache {
		_, err = s.db.ExecContext(ctx, `
			UPDATE ca_base.computation
			SET status = 'failure', message = $1, cache_epoch = 0, valid_until = 'infinity'
			WHERE correlation_uuid = $2
		`, message, correlationUUID)
	} else {
		_, err = s.db.ExecContext(ctx, `
			UPDATE ca_base.computation
			SET status = 'failure', message = $1
			WHERE correlation_uuid = $2
		`, message, correlationUUID)
	}
	if err != nil {
		return fmt.Errorf("update failed computation: %w", err)
	}
	return nil
}

// UpdateRevokedComputation finalizes a computation as revoked with no
// message and cache=false.
func (s *Store) UpdateRevokedComputation(ctx context.Context, correlationUUID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE ca_base.computation SET status = 'revoked' WHERE correlation_uuid = $1`, correlationUUID)
	if err != nil {
		return fmt.Errorf("update revoked computation: %w", err)
	}
	return nil
}

// ResolveComputationID follows a user-issued correlation id to its
// canonical (possibly deduplicated) computation id.
func (s *Store) ResolveComputationID(ctx context.Context, userCorrelationUUID uuid.UUID) (uuid.UUID, error) {
	var computationID uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`SELECT computation_id FROM ca_base.computation_lookup WHERE user_correlation_uuid = $1`,
		userCorrelationUUID).Scan(&computationID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolve computation id: %w", err)
	}
	return computationID, nil
}

// ReadComputation fetches the full Computation record, its artifacts
// included, ordered by rank.
func (s *Store) ReadComputation(ctx context.Context, correlationUUID uuid.UUID) (model.Computation, error) {
	var (
		c                                model.Computation
		pluginKey, dedupKey, status      string
		requestedParamsJSON, paramsJSON  []byte
		aoiWKT                           string
		aoiPropsJSON, artifactErrorsJSON []byte
		cacheEpoch                       *int64
		message                          *string
	)
	row := s.db.QueryRowContext(ctx, `
		SELECT correlation_uuid, plugin_key, deduplication_key, cache_epoch, valid_until,
		       requested_params, params, ST_AsText(aoi_geom), aoi_properties, status, message,
		       artifact_errors, requested_at
		FROM ca_base.computation WHERE correlation_uuid = $1
	`, correlationUUID)
	if err := row.Scan(&c.CorrelationUUID, &pluginKey, &dedupKey, &cacheEpoch, &c.ValidUntil,
		&requestedParamsJSON, &paramsJSON, &aoiWKT, &aoiPropsJSON, &status, &message,
		&artifactErrorsJSON, &c.Timestamp); err != nil {
		return model.Computation{}, fmt.Errorf("read computation: %w", err)
	}

	c.PluginKey = pluginKey
	c.DeduplicationKey = dedupKey
	c.CacheEpoch = cacheEpoch
	c.RequestedParams = requestedParamsJSON
	c.Params = paramsJSON
	c.Status = model.ComputationState(status)
	c.Message = message
	_ = json.Unmarshal(artifactErrorsJSON, &c.ArtifactErrors)
	var props model.AoiProperties
	_ = json.Unmarshal(aoiPropsJSON, &props)
	c.AOI = model.AOIFeature{Properties: props}

	artifacts, err := s.ListArtifacts(ctx, correlationUUID)
	if err != nil {
		return model.Computation{}, err
	}
	c.Artifacts = artifacts
	return c, nil
}

// ListArtifacts returns a computation's artifacts ordered by rank.
func (s *Store) ListArtifacts(ctx context.Context, correlationUUID uuid.UUID) ([]model.Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rank, name, modality, "primary", tags, summary, description, attachments, sources, filename
		FROM ca_base.artifact WHERE correlation_uuid = $1 ORDER BY rank ASC
	`, correlationUUID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []model.Artifact
	for rows.Next() {
		var (
			a                          model.Artifact
			tags                       []string
			attachmentsJSON, sourcesJSON []byte
			description                *string
		)
		a.CorrelationUUID = correlationUUID
		if err := rows.Scan(&a.Rank, &a.Name, &a.Modality, &a.Primary, pq.Array(&tags), &a.Summary,
			&description, &attachmentsJSON, &sourcesJSON, &a.Filename); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		if description != nil {
			a.Description = *description
		}
		a.Tags = make(map[string]struct{}, len(tags))
		for _, t := range tags {
			a.Tags[t] = struct{}{}
		}
		_ = json.Unmarshal(attachmentsJSON, &a.Attachments)
		_ = json.Unmarshal(sourcesJSON, &a.Sources)
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}
