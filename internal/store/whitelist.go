package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/user/greptbot/internal/types"
)

// WhitelistTable maps user IDs to roles.
type WhitelistTable struct {
	db *sql.DB
}

// Role returns the user's role and whether the user is whitelisted at all.
func (w *WhitelistTable) Role(ctx context.Context, userID string) (types.Role, bool, error) {
	var raw string
	err := w.db.QueryRowContext(ctx, `SELECT role FROM whitelist WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return types.RoleUser, false, nil
	}
	if err != nil {
		return types.RoleUser, false, fmt.Errorf("read whitelist for %s: %w", userID, err)
	}
	return types.ParseRole(raw), true, nil
}

// Set upserts the user's role.
func (w *WhitelistTable) Set(ctx context.Context, userID string, role types.Role) error {
	_, err := w.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO whitelist (user_id, role) VALUES (?, ?)`,
		userID, role.String())
	if err != nil {
		return fmt.Errorf("write whitelist for %s: %w", userID, err)
	}
	return nil
}

// Delete removes the user and reports whether a row existed.
func (w *WhitelistTable) Delete(ctx context.Context, userID string) (bool, error) {
	res, err := w.db.ExecContext(ctx, `DELETE FROM whitelist WHERE user_id = ?`, userID)
	if err != nil {
		return false, fmt.Errorf("delete whitelist for %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, nil
	}
	return n > 0, nil
}

// List returns all whitelisted users with their roles.
func (w *WhitelistTable) List(ctx context.Context) (map[string]types.Role, error) {
	rows, err := w.db.QueryContext(ctx, `SELECT user_id, role FROM whitelist ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list whitelist: %w", err)
	}
	defer rows.Close()

	out := make(map[string]types.Role)
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan whitelist row: %w", err)
		}
		out[id] = types.ParseRole(raw)
	}
	return out, rows.Err()
}
