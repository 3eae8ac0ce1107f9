package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/user/greptbot/internal/types"
)

// UsageTable is the append-only usage log. Rows are never mutated; stale
// entries are garbage-collected by the periodic sweep rather than on read.
type UsageTable struct {
	db *sql.DB
}

// Record appends one usage entry.
func (u *UsageTable) Record(ctx context.Context, userID string, class types.QueryClass, at time.Time) error {
	_, err := u.db.ExecContext(ctx,
		`INSERT INTO usage (user_id, class, at) VALUES (?, ?, ?)`,
		userID, string(class), at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record usage for %s: %w", userID, err)
	}
	return nil
}

// CountSince counts the user's entries of the given class at or after since.
// Callers pass the start of the governor's current day.
func (u *UsageTable) CountSince(ctx context.Context, userID string, class types.QueryClass, since time.Time) (int, error) {
	var count int
	err := u.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM usage WHERE user_id = ? AND class = ? AND at >= ?`,
		userID, string(class), since.UTC().Format(time.RFC3339)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count usage for %s: %w", userID, err)
	}
	return count, nil
}

// DeleteBefore removes entries older than cutoff and returns how many went.
func (u *UsageTable) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := u.db.ExecContext(ctx,
		`DELETE FROM usage WHERE at < ?`, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("sweep usage log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}
