package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/GIScience/climatoology-go/internal/model"
)

// WriteInfo upserts a PluginInfo row and its author ordering, then
// flips the latest flag so exactly one version per id is latest.
func (s *Store) WriteInfo(ctx context.Context, info model.PluginInfo) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, author := range info.Authors {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ca_base.plugin_author (name, affiliation, website)
			VALUES ($1, $2, $3)
			ON CONFLICT (name) DO UPDATE SET affiliation = EXCLUDED.affiliation, website = EXCLUDED.website
		`, author.Name, author.Affiliation, author.Website); err != nil {
			return fmt.Errorf("upsert author %q: %w", author.Name, err)
		}
	}

	concerns := make([]string, 0, len(info.Concerns))
	for c := range info.Concerns {
		concerns = append(concerns, string(c))
	}
	concernsJSON, _ := json.Marshal(concerns)
	sourcesJSON, _ := json.Marshal(info.Sources)
	demoJSON, _ := json.Marshal(info.DemoConfig)
	assetsJSON, _ := json.Marshal(info.Assets)
	schemaJSON, _ := json.Marshal(info.OperatorSchema)

	var shelfLife any
	if info.ComputationShelfLife != nil {
		shelfLife = int64(*info.ComputationShelfLife)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ca_base.plugin_info
			(key, id, version, library_version, latest, name, repository, state,
			 concerns, teaser, purpose, methodology, sources, demo_config,
			 computation_shelf_life, assets, operator_schema)
		VALUES ($1,$2,$3,$4,false,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (key) DO UPDATE SET
			name = EXCLUDED.name, repository = EXCLUDED.repository, state = EXCLUDED.state,
			concerns = EXCLUDED.concerns, teaser = EXCLUDED.teaser, purpose = EXCLUDED.purpose,
			methodology = EXCLUDED.methodology, sources = EXCLUDED.sources,
			demo_config = EXCLUDED.demo_config, computation_shelf_life = EXCLUDED.computation_shelf_life,
			assets = EXCLUDED.assets, operator_schema = EXCLUDED.operator_schema
	`, info.Key(), info.ID, info.Version.String(), info.LibraryVersion.String(), info.Name,
		info.Repository, string(info.State), concernsJSON, info.Teaser, info.Purpose,
		info.Methodology, sourcesJSON, demoJSON, shelfLife, assetsJSON, schemaJSON); err != nil {
		return fmt.Errorf("upsert plugin_info: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM ca_base.plugin_info_author_link WHERE info_key = $1`, info.Key()); err != nil {
		return fmt.Errorf("clear author links: %w", err)
	}
	for seat, author := range info.Authors {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ca_base.plugin_info_author_link (info_key, author_id, author_seat)
			VALUES ($1, $2, $3)
		`, info.Key(), author.Name, seat); err != nil {
			return fmt.Errorf("insert author link: %w", err)
		}
	}

	// Flip latest: among all versions of this id, the highest semver
	// wins, build metadata descending as the tiebreaker.
	rows, err := tx.QueryContext(ctx, `SELECT key, version FROM ca_base.plugin_info WHERE id = $1`, info.ID)
	if err != nil {
		return fmt.Errorf("list versions of %q: %w", info.ID, err)
	}
	type versionRow struct {
		key string
		v   *semver.Version
	}
	var versions []versionRow
	for rows.Next() {
		var key, verStr string
		if err := rows.Scan(&key, &verStr); err != nil {
			rows.Close()
			return fmt.Errorf("scan version row: %w", err)
		}
		v, err := semver.NewVersion(verStr)
		if err != nil {
			rows.Close()
			return fmt.Errorf("parse version %q: %w", verStr, err)
		}
		versions = append(versions, versionRow{key: key, v: v})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	latestKey := ""
	for _, vr := range versions {
		if latestKey == "" {
			latestKey = vr.key
			continue
		}
		var cur *semver.Version
		for _, c := range versions {
			if c.key == latestKey {
				cur = c.v
				break
			}
		}
		cmp := vr.v.Compare(cur)
		if cmp > 0 || (cmp == 0 && vr.v.Metadata() > cur.Metadata()) {
			latestKey = vr.key
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE ca_base.plugin_info SET latest = (key = $1) WHERE id = $2`, latestKey, info.ID); err != nil {
		return fmt.Errorf("flip latest flags: %w", err)
	}

	return tx.Commit()
}

// ReadInfo returns the PluginInfo row for id, the latest version when
// version is nil.
func (s *Store) ReadInfo(ctx context.Context, id string, version *string) (model.PluginInfo, error) {
	var row *sql.Row
	if version == nil {
		row = s.db.QueryRowContext(ctx, pluginInfoSelect+` WHERE id = $1 AND latest`, id)
	} else {
		row = s.db.QueryRowContext(ctx, pluginInfoSelect+` WHERE id = $1 AND version = $2`, id, *version)
	}
	info, err := scanPluginInfo(row)
	if err != nil {
		return model.PluginInfo{}, err
	}
	info.Authors, err = s.readAuthors(ctx, info.Key())
	if err != nil {
		return model.PluginInfo{}, err
	}
	return info, nil
}

// ListInfo returns the latest PluginInfo row for every known plugin id,
// backing the gateway's plugin-discovery route.
func (s *Store) ListInfo(ctx context.Context) ([]model.PluginInfo, error) {
	rows, err := s.db.QueryContext(ctx, pluginInfoSelect+` WHERE latest ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list plugin info: %w", err)
	}
	defer rows.Close()

	var infos []model.PluginInfo
	for rows.Next() {
		info, err := scanPluginInfo(rows)
		if err != nil {
			return nil, err
		}
		info.Authors, err = s.readAuthors(ctx, info.Key())
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *Store) readAuthors(ctx context.Context, infoKey string) ([]model.Author, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.name, a.affiliation, a.website, l.author_seat
		FROM ca_base.plugin_info_author_link l
		JOIN ca_base.plugin_author a ON a.name = l.author_id
		WHERE l.info_key = $1
		ORDER BY l.author_seat ASC`, infoKey)
	if err != nil {
		return nil, fmt.Errorf("query authors: %w", err)
	}
	defer rows.Close()

	var authors []model.Author
	for rows.Next() {
		var a model.Author
		var affiliation, website sql.NullString
		if err := rows.Scan(&a.Name, &affiliation, &website, &a.Seat); err != nil {
			return nil, fmt.Errorf("scan author: %w", err)
		}
		a.Affiliation = affiliation.String
		a.Website = website.String
		authors = append(authors, a)
	}
	return authors, rows.Err()
}

const pluginInfoSelect = `
	SELECT key, id, version, library_version, latest, name, repository, state,
	       concerns, teaser, purpose, methodology, sources, demo_config,
	       computation_shelf_life, assets, operator_schema
	FROM ca_base.plugin_info`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPluginInfo(row rowScanner) (model.PluginInfo, error) {
	var (
		key, id, verStr, libVerStr, name, state, teaser string
		repository                                      sql.NullString
		latest                                          bool
		concernsJSON, sourcesJSON, demoJSON             []byte
		assetsJSON, schemaJSON                          []byte
		purpose, methodology                            sql.NullString
		shelfLife                                       sql.NullInt64
	)
	if err := row.Scan(&key, &id, &verStr, &libVerStr, &latest, &name, &repository, &state,
		&concernsJSON, &teaser, &purpose, &methodology, &sourcesJSON, &demoJSON,
		&shelfLife, &assetsJSON, &schemaJSON); err != nil {
		return model.PluginInfo{}, err
	}

	version, err := semver.NewVersion(verStr)
	if err != nil {
		return model.PluginInfo{}, fmt.Errorf("parse version: %w", err)
	}
	libVersion, err := semver.NewVersion(libVerStr)
	if err != nil {
		return model.PluginInfo{}, fmt.Errorf("parse library_version: %w", err)
	}

	var concernList []string
	_ = json.Unmarshal(concernsJSON, &concernList)
	concerns := make(map[model.Concern]struct{}, len(concernList))
	for _, c := range concernList {
		concerns[model.Concern(c)] = struct{}{}
	}

	var sources []model.Source
	_ = json.Unmarshal(sourcesJSON, &sources)
	var demo model.DemoConfig
	_ = json.Unmarshal(demoJSON, &demo)
	var assets model.Assets
	_ = json.Unmarshal(assetsJSON, &assets)
	var operatorSchema map[string]any
	_ = json.Unmarshal(schemaJSON, &operatorSchema)

	var duration *time.Duration
	if shelfLife.Valid {
		d := time.Duration(shelfLife.Int64)
		duration = &d
	}

	return model.PluginInfo{
		ID: id, Version: version, LibraryVersion: libVersion, Name: name,
		Repository: repository.String, State: model.PluginState(state),
		Concerns: concerns, Teaser: teaser, Purpose: purpose.String, Methodology: methodology.String,
		Sources: sources, DemoConfig: demo, ComputationShelfLife: duration,
		Assets: assets, OperatorSchema: operatorSchema, Latest: latest,
	}, nil
}
