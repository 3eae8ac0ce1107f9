// Package store provides the SQLite-backed persistence layer: runtime
// configuration, the repository registry, the usage log, and the whitelist.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/user/greptbot/internal/types"
)

// Compile-time interface compliance checks.
var _ types.ConfigStore = (*ConfigTable)(nil)
var _ types.RepoStore = (*RepoTable)(nil)
var _ types.UsageStore = (*UsageTable)(nil)
var _ types.WhitelistStore = (*WhitelistTable)(nil)

const maxConnections = 5

// Store owns the database handle and hands out per-table accessors.
type Store struct {
	db *sql.DB
}

// Open creates (or opens) the bot database at path and ensures the schema
// exists. The connection pool is bounded; each statement borrows one
// connection for its duration.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(maxConnections)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS repos (
			remote TEXT NOT NULL,
			owner TEXT NOT NULL,
			name TEXT NOT NULL,
			branch TEXT NOT NULL,
			last_indexed_at TEXT,
			UNIQUE(remote, owner, name, branch)
		)`,
		`CREATE TABLE IF NOT EXISTS usage (
			user_id TEXT NOT NULL,
			class TEXT NOT NULL,
			at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_user_class_at ON usage(user_id, class, at)`,
		`CREATE TABLE IF NOT EXISTS whitelist (
			user_id TEXT PRIMARY KEY,
			role TEXT NOT NULL
		)`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Config returns the runtime configuration table.
func (s *Store) Config() *ConfigTable { return &ConfigTable{db: s.db} }

// Repos returns the repository registry.
func (s *Store) Repos() *RepoTable { return &RepoTable{db: s.db} }

// Usage returns the usage log.
func (s *Store) Usage() *UsageTable { return &UsageTable{db: s.db} }

// Whitelist returns the whitelist table.
func (s *Store) Whitelist() *WhitelistTable { return &WhitelistTable{db: s.db} }

// SeedOwner ensures the bot owner is whitelisted with the owner role. Called
// once at startup so the owner can never lock themselves out.
func (s *Store) SeedOwner(ctx context.Context, ownerID string) error {
	return (&WhitelistTable{db: s.db}).Set(ctx, ownerID, types.RoleOwner)
}
