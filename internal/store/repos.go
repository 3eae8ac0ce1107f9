package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/user/greptbot/internal/types"
)

// ErrRepoExists is returned when adding a repository whose identity tuple is
// already registered.
var ErrRepoExists = errors.New("repository already registered")

// RepoTable is the repository registry, unique on (remote, owner, name, branch).
type RepoTable struct {
	db *sql.DB
}

// Add registers a repository with a null last_indexed_at.
func (r *RepoTable) Add(ctx context.Context, repo types.Repo) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO repos (remote, owner, name, branch, last_indexed_at) VALUES (?, ?, ?, ?, NULL)`,
		repo.Remote, repo.Owner, repo.Name, repo.Branch)
	if err != nil {
		existing, getErr := r.Get(ctx, repo)
		if getErr == nil && existing != nil {
			return ErrRepoExists
		}
		return fmt.Errorf("add repository %s: %w", repo.ID(), err)
	}
	return nil
}

// Remove deletes the row for the given identity tuple.
func (r *RepoTable) Remove(ctx context.Context, repo types.Repo) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM repos WHERE remote = ? AND owner = ? AND name = ? AND branch = ?`,
		repo.Remote, repo.Owner, repo.Name, repo.Branch)
	if err != nil {
		return fmt.Errorf("remove repository %s: %w", repo.ID(), err)
	}
	return nil
}

// RemoveAll clears the registry.
func (r *RepoTable) RemoveAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM repos`); err != nil {
		return fmt.Errorf("remove repositories: %w", err)
	}
	return nil
}

// Get returns the registry row for the tuple, or nil when absent.
func (r *RepoTable) Get(ctx context.Context, repo types.Repo) (*types.RepoRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT remote, owner, name, branch, last_indexed_at FROM repos
		 WHERE remote = ? AND owner = ? AND name = ? AND branch = ?`,
		repo.Remote, repo.Owner, repo.Name, repo.Branch)
	rec, err := scanRepo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read repository %s: %w", repo.ID(), err)
	}
	return rec, nil
}

// List returns all registered repositories.
func (r *RepoTable) List(ctx context.Context) ([]types.RepoRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT remote, owner, name, branch, last_indexed_at FROM repos ORDER BY owner, name`)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	var out []types.RepoRecord
	for rows.Next() {
		rec, err := scanRepo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan repository row: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// SetLastIndexed stamps the last successful indexing time for the tuple.
func (r *RepoTable) SetLastIndexed(ctx context.Context, repo types.Repo, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE repos SET last_indexed_at = ? WHERE remote = ? AND owner = ? AND name = ? AND branch = ?`,
		at.UTC().Format(time.RFC3339), repo.Remote, repo.Owner, repo.Name, repo.Branch)
	if err != nil {
		return fmt.Errorf("update last_indexed_at for %s: %w", repo.ID(), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("repository %s not registered", repo.ID())
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRepo(row scanner) (*types.RepoRecord, error) {
	var rec types.RepoRecord
	var lastIndexed sql.NullString
	if err := row.Scan(&rec.Remote, &rec.Owner, &rec.Name, &rec.Branch, &lastIndexed); err != nil {
		return nil, err
	}
	if lastIndexed.Valid {
		if t, err := time.Parse(time.RFC3339, lastIndexed.String); err == nil {
			rec.LastIndexedAt = &t
		}
	}
	return &rec, nil
}
