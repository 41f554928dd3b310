// Package store implements the relational store: transactional
// persistence of plugin info, computations and
// computation lookups, with RDBMS uniqueness constraints enforcing
// the deduplication invariants.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	climatoologyerrors "github.com/GIScience/climatoology-go/internal/errors"
)

// SchemaVersion is the expected ca_base.schema_version. Bump on any
// breaking change to the DDL in schemaDDL (schema.go).
const SchemaVersion = 1

// Config holds the relational store's connection parameters.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Store wraps a pooled Postgres connection implementing the
// platform's relational operations.
type Store struct {
	db *sql.DB
}

func validateConfig(config Config) error {
	if config.Host == "" {
		return fmt.Errorf("database host cannot be empty")
	}
	if net.ParseIP(config.Host) == nil {
		hostnameRegex := regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-.]{0,253}[a-zA-Z0-9])?$`)
		if !hostnameRegex.MatchString(config.Host) {
			return fmt.Errorf("invalid database host: %s", config.Host)
		}
	}
	if config.Port == "" {
		return fmt.Errorf("database port cannot be empty")
	}
	port, err := strconv.Atoi(config.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid database port: %s (must be 1-65535)", config.Port)
	}
	identifierRegex := regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	if config.User == "" || !identifierRegex.MatchString(config.User) {
		return fmt.Errorf("invalid database user: %s", config.User)
	}
	if config.DBName == "" || !identifierRegex.MatchString(config.DBName) {
		return fmt.Errorf("invalid database name: %s", config.DBName)
	}
	validSSLModes := []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
	if config.SSLMode != "" {
		valid := false
		for _, mode := range validSSLModes {
			if config.SSLMode == mode {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid SSL mode: %s (must be one of: %s)", config.SSLMode, strings.Join(validSSLModes, ", "))
		}
	}
	return nil
}

// New opens a pooled connection to Postgres, pings it, and asserts
// the schema version (the startup SchemaMismatch check).
func New(ctx context.Context, config Config) (*Store, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s application_name=climatoology",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.assertSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewForTesting wraps an existing *sql.DB (e.g. sqlmock) for tests.
func NewForTesting(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Bootstrap applies the idempotent DDL in schemaDDL (schema.go): a single
// declarative schema, with historical migrations out of scope.
func (s *Store) Bootstrap(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("bootstrap schema: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO ca_base.schema_version(version) VALUES ($1) ON CONFLICT DO NOTHING`, SchemaVersion); err != nil {
		return fmt.Errorf("stamp schema version: %w", err)
	}
	return nil
}

func (s *Store) assertSchema(ctx context.Context) error {
	var version int
	err := s.db.QueryRowContext(ctx, `SELECT version FROM ca_base.schema_version LIMIT 1`).Scan(&version)
	if err == sql.ErrNoRows {
		return nil // not bootstrapped yet; caller should call Bootstrap.
	}
	if err != nil {
		// Table doesn't exist yet on a fresh database - treat like ErrNoRows.
		return nil
	}
	if version != SchemaVersion {
		return climatoologyerrors.SchemaMismatch(
			fmt.Sprintf("database schema version %d does not match expected version %d", version, SchemaVersion))
	}
	return nil
}
