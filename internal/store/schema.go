package store

// schemaDDL is the single declarative schema, applied idempotently at
// Bootstrap time. Historical migration chains are out of scope; there
// is exactly one schema, bumped in place and guarded by SchemaVersion.
const schemaDDL = `
CREATE SCHEMA IF NOT EXISTS ca_base;

CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS ca_base.schema_version (
	version INT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS ca_base.plugin_author (
	name        TEXT PRIMARY KEY,
	affiliation TEXT,
	website     TEXT
);

CREATE TABLE IF NOT EXISTS ca_base.plugin_info (
	key                    TEXT PRIMARY KEY,
	id                     TEXT NOT NULL,
	version                TEXT NOT NULL,
	library_version        TEXT NOT NULL,
	latest                 BOOLEAN NOT NULL DEFAULT FALSE,
	name                   TEXT NOT NULL,
	repository             TEXT,
	state                  TEXT NOT NULL,
	concerns               JSONB NOT NULL DEFAULT '[]',
	teaser                 TEXT NOT NULL,
	purpose                TEXT,
	methodology            TEXT,
	sources                JSONB NOT NULL DEFAULT '[]',
	demo_config            JSONB NOT NULL DEFAULT '{}',
	computation_shelf_life BIGINT,
	assets                 JSONB NOT NULL DEFAULT '{}',
	operator_schema        JSONB NOT NULL DEFAULT '{}',
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS plugin_info_latest_per_id
	ON ca_base.plugin_info (id) WHERE latest;

CREATE TABLE IF NOT EXISTS ca_base.plugin_info_author_link (
	info_key    TEXT NOT NULL REFERENCES ca_base.plugin_info(key) ON DELETE CASCADE,
	author_id   TEXT NOT NULL REFERENCES ca_base.plugin_author(name),
	author_seat INT  NOT NULL,
	PRIMARY KEY (info_key, author_id)
);

CREATE TABLE IF NOT EXISTS ca_base.computation (
	correlation_uuid  UUID PRIMARY KEY,
	plugin_key        TEXT NOT NULL,
	deduplication_key TEXT NOT NULL,
	cache_epoch       BIGINT,
	valid_until       TIMESTAMPTZ NOT NULL,
	params            JSONB,
	requested_params  JSONB NOT NULL,
	aoi_geom          GEOMETRY(MultiPolygon, 4326) NOT NULL,
	aoi_properties    JSONB NOT NULL DEFAULT '{}',
	status            TEXT NOT NULL DEFAULT 'pending',
	message           TEXT,
	artifact_errors   JSONB NOT NULL DEFAULT '{}',
	requested_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (plugin_key, deduplication_key, cache_epoch)
);

CREATE INDEX IF NOT EXISTS computation_valid_until_idx ON ca_base.computation (valid_until);
CREATE INDEX IF NOT EXISTS computation_plugin_key_idx ON ca_base.computation (plugin_key);

CREATE TABLE IF NOT EXISTS ca_base.artifact (
	id                SERIAL PRIMARY KEY,
	correlation_uuid  UUID NOT NULL REFERENCES ca_base.computation(correlation_uuid) ON DELETE CASCADE,
	rank              BIGINT NOT NULL,
	name              TEXT NOT NULL,
	modality          TEXT NOT NULL,
	"primary"         BOOLEAN NOT NULL DEFAULT FALSE,
	tags              TEXT[] NOT NULL DEFAULT '{}',
	summary           TEXT,
	description       TEXT,
	attachments       JSONB NOT NULL DEFAULT '{}',
	sources           JSONB NOT NULL DEFAULT '[]',
	filename          TEXT NOT NULL,
	UNIQUE (correlation_uuid, rank)
);

CREATE INDEX IF NOT EXISTS artifact_correlation_uuid_idx ON ca_base.artifact (correlation_uuid);

CREATE TABLE IF NOT EXISTS ca_base.computation_lookup (
	user_correlation_uuid UUID PRIMARY KEY,
	request_ts            TIMESTAMPTZ NOT NULL DEFAULT now(),
	aoi_name              TEXT NOT NULL,
	aoi_id                TEXT NOT NULL,
	aoi_properties        JSONB,
	is_demo               BOOLEAN NOT NULL DEFAULT FALSE,
	computation_id        UUID NOT NULL REFERENCES ca_base.computation(correlation_uuid)
);

CREATE INDEX IF NOT EXISTS computation_lookup_is_demo_idx ON ca_base.computation_lookup (is_demo);

CREATE TABLE IF NOT EXISTS ca_base.celery_taskmeta (
	id        SERIAL PRIMARY KEY,
	task_id   UUID UNIQUE NOT NULL,
	status    TEXT NOT NULL,
	result    TEXT,
	date_done TIMESTAMPTZ,
	traceback TEXT,
	name      TEXT,
	worker    TEXT,
	retries   INT NOT NULL DEFAULT 0,
	queue     TEXT
);

CREATE OR REPLACE VIEW ca_base.valid_computations AS
	SELECT * FROM ca_base.computation
	WHERE cache_epoch IS NOT NULL AND valid_until > now();

CREATE OR REPLACE VIEW ca_base.computations_summary AS
	SELECT plugin_key,
	       count(*)                                   AS total,
	       count(*) FILTER (WHERE status = 'success')  AS succeeded,
	       count(*) FILTER (WHERE status = 'failure')  AS failed,
	       count(*) FILTER (WHERE status = 'revoked')  AS revoked
	FROM ca_base.computation
	GROUP BY plugin_key;

CREATE OR REPLACE VIEW ca_base.usage_summary AS
	SELECT c.plugin_key, count(*) AS requests
	FROM ca_base.computation_lookup l
	JOIN ca_base.computation c ON c.correlation_uuid = l.computation_id
	WHERE NOT l.is_demo
	GROUP BY c.plugin_key;

-- failed_computations surfaces real failures for operators: it excludes
-- rows cached forever by UpdateFailedComputation(cache=true), which are
-- InputValidationError results retained only to short-circuit retries
-- with identical bad input, not failures of the computation itself.
CREATE OR REPLACE VIEW ca_base.failed_computations AS
	SELECT correlation_uuid, plugin_key, message,
	       left(coalesce(message, ''), 10) AS cause,
	       requested_at
	FROM ca_base.computation
	WHERE status = 'failure'
	  AND NOT (cache_epoch = 0 AND valid_until = 'infinity')
	  AND requested_at > now() - interval '30 days';

CREATE OR REPLACE VIEW ca_base.artifact_errors AS
	SELECT correlation_uuid, key AS artifact_name, value AS error_message
	FROM ca_base.computation, jsonb_each_text(artifact_errors)
	WHERE artifact_errors <> '{}';
`
