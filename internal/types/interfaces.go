// internal/types/interfaces.go
package types

import (
	"context"
	"time"
)

// ConfigStore holds runtime-tunable settings (quotas, channel IDs, command
// prefix). Reads go to storage on every call so that the next read after an
// admin update sees the new value.
type ConfigStore interface {
	Get(ctx context.Context, key, fallback string) (string, error)
	GetInt(ctx context.Context, key string, fallback int) (int, error)
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) (map[string]string, error)
}

// RepoStore is the repository registry, unique on the identity 4-tuple.
type RepoStore interface {
	Add(ctx context.Context, repo Repo) error
	Remove(ctx context.Context, repo Repo) error
	RemoveAll(ctx context.Context) error
	Get(ctx context.Context, repo Repo) (*RepoRecord, error)
	List(ctx context.Context) ([]RepoRecord, error)
	SetLastIndexed(ctx context.Context, repo Repo, at time.Time) error
}

// UsageStore is the append-only usage log backing daily quotas.
type UsageStore interface {
	Record(ctx context.Context, userID string, class QueryClass, at time.Time) error
	CountSince(ctx context.Context, userID string, class QueryClass, since time.Time) (int, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// WhitelistStore maps user IDs to roles.
type WhitelistStore interface {
	Role(ctx context.Context, userID string) (Role, bool, error)
	Set(ctx context.Context, userID string, role Role) error
	Delete(ctx context.Context, userID string) (bool, error)
	List(ctx context.Context) (map[string]Role, error)
}
