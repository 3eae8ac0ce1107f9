package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// ConfigTable is the key→value runtime configuration. Every read hits the
// database so that admin updates are visible to the next decision that
// consults them.
type ConfigTable struct {
	db *sql.DB
}

// Get returns the value for key, or fallback when no row exists.
func (c *ConfigTable) Get(ctx context.Context, key, fallback string) (string, error) {
	var value string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("read config %s: %w", key, err)
	}
	return value, nil
}

// GetInt returns the value for key parsed as an integer, or fallback when
// the row is missing or not numeric.
func (c *ConfigTable) GetInt(ctx context.Context, key string, fallback int) (int, error) {
	raw, err := c.Get(ctx, key, "")
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, nil
	}
	return n, nil
}

// Set upserts a config value.
func (c *ConfigTable) Set(ctx context.Context, key, value string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO config (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("write config %s: %w", key, err)
	}
	return nil
}

// All returns every config row.
func (c *ConfigTable) All(ctx context.Context) (map[string]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT key, value FROM config ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan config row: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}
