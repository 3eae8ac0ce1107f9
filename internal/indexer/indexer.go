// Package indexer drives the repository indexing lifecycle: submission,
// status polling, progress estimation, and the transactional
// register-then-index flow behind the addrepo command.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/greptbot/internal/gateway"
	"github.com/user/greptbot/internal/types"
)

// ErrRegistryOccupied is returned when adding a repository while a different
// one is registered. The bot serves a single repository at a time; existing
// entries must be removed first.
var ErrRegistryOccupied = errors.New("another repository is already registered")

// ErrNoRepos is returned by Reindex when the registry is empty.
var ErrNoRepos = errors.New("no repository registered")

// ErrMultipleRepos is returned by Reindex when the registry unexpectedly
// holds more than one entry.
var ErrMultipleRepos = errors.New("multiple repositories registered")

// API is the slice of the upstream client the indexer needs.
type API interface {
	IndexRepository(ctx context.Context, repo types.Repo, reload bool) (string, error)
	RepositoryStatus(ctx context.Context, repo types.Repo) (*gateway.RepoInfo, error)
}

// Notifier receives a status re-render on every poll. Implementations
// typically edit a chat status message in place.
type Notifier func(status types.IndexStatus, progress int, detail string)

func nopNotifier(types.IndexStatus, int, string) {}

// Indexer owns the polling loop for repository lifecycles. Only one
// lifecycle runs per repository at a time, enforced by the mandatory fresh
// status pre-check rather than a lock.
type Indexer struct {
	api           API
	repos         types.RepoStore
	pollInterval  time.Duration
	advisoryAfter time.Duration
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithPollInterval overrides the default 60-second poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(ix *Indexer) { ix.pollInterval = d }
}

// WithAdvisoryAfter overrides the "processing too long" warning threshold.
func WithAdvisoryAfter(d time.Duration) Option {
	return func(ix *Indexer) { ix.advisoryAfter = d }
}

// New creates an Indexer.
func New(api API, repos types.RepoStore, opts ...Option) *Indexer {
	ix := &Indexer{
		api:           api,
		repos:         repos,
		pollInterval:  60 * time.Second,
		advisoryAfter: 2 * time.Hour,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// StartIndexing submits the repository for indexing and polls until a
// terminal state. A fresh status read always precedes submission: if the
// repository is already completed or in progress, no second submission is
// made and the current status is returned.
func (ix *Indexer) StartIndexing(ctx context.Context, repo types.Repo, reload bool, notify Notifier) (types.IndexStatus, error) {
	if notify == nil {
		notify = nopNotifier
	}

	current := ix.freshStatus(ctx, repo)
	switch current {
	case types.StatusCompleted:
		notify(current, 100, "This repository is already indexed.")
		return types.StatusCompleted, nil
	case types.StatusSubmitted, types.StatusCloning, types.StatusProcessing:
		notify(current, 0, "This repository is currently being processed. Please wait for it to complete.")
		return current, nil
	}

	ack, err := ix.api.IndexRepository(ctx, repo, reload)
	if err != nil {
		var ue *gateway.UpstreamError
		if errors.As(err, &ue) {
			notify(types.StatusFailed, 0, fmt.Sprintf("Failed to start indexing: %s", ue.Message))
			return types.StatusFailed, err
		}
		notify(types.StatusError, 0, "Failed to reach the indexing service.")
		return types.StatusError, err
	}
	slog.Info("indexing started", "repo", repo.ID(), "response", ack)
	notify(types.StatusSubmitted, 0, fmt.Sprintf("Indexing started: %s", ack))

	return ix.poll(ctx, repo, notify)
}

// freshStatus reads the repository status, mapping a communication failure
// to StatusUnindexed so that submission proceeds (the original registration
// may simply not exist upstream yet).
func (ix *Indexer) freshStatus(ctx context.Context, repo types.Repo) types.IndexStatus {
	info, err := ix.api.RepositoryStatus(ctx, repo)
	if err != nil {
		slog.Warn("status pre-check failed", "repo", repo.ID(), "error", err)
		return types.StatusUnindexed
	}
	return types.ParseIndexStatus(info.Status)
}

// poll drives the lifecycle to a terminal state, re-rendering status every
// interval. There is no hard timeout; the advisory threshold only logs.
func (ix *Indexer) poll(ctx context.Context, repo types.Repo, notify Notifier) (types.IndexStatus, error) {
	est := &progressEstimator{}
	start := time.Now()
	warned := false

	for {
		info, err := ix.api.RepositoryStatus(ctx, repo)
		if err != nil {
			notify(types.StatusError, 0, "Unable to retrieve repository status.")
			return types.StatusError, err
		}

		status := types.ParseIndexStatus(info.Status)
		switch status {
		case types.StatusCompleted:
			if err := ix.repos.SetLastIndexed(ctx, repo, time.Now()); err != nil {
				slog.Error("failed to stamp last_indexed_at", "repo", repo.ID(), "error", err)
			}
			notify(status, 100, "Repository indexing completed.")
			return types.StatusCompleted, nil
		case types.StatusFailed:
			notify(status, 0, "Repository indexing failed.")
			return types.StatusFailed, nil
		case types.StatusUnexpected:
			slog.Warn("unexpected upstream status", "repo", repo.ID(), "status", info.Status)
		}

		progress := est.estimate(info)
		notify(status, progress, fmt.Sprintf("Indexing status: %s", status))

		if !warned && time.Since(start) > ix.advisoryAfter {
			slog.Warn("repository processing longer than advisory threshold",
				"repo", repo.ID(), "elapsed", time.Since(start).Round(time.Minute))
			warned = true
		}

		select {
		case <-time.After(ix.pollInterval):
		case <-ctx.Done():
			return types.StatusError, ctx.Err()
		}
	}
}

// AddRepository registers the repository and indexes it as one transactional
// flow: on a failed indexing outcome the registration is rolled back. A
// communication error keeps the registration for manual retry.
func (ix *Indexer) AddRepository(ctx context.Context, repo types.Repo, notify Notifier) (types.IndexStatus, error) {
	existing, err := ix.repos.List(ctx)
	if err != nil {
		return types.StatusError, err
	}
	for _, rec := range existing {
		if rec.Repo == repo {
			// Already registered: just drive the lifecycle, which is
			// idempotent for completed and in-progress states.
			return ix.StartIndexing(ctx, repo, false, notify)
		}
	}
	if len(existing) > 0 {
		return types.StatusUnindexed, ErrRegistryOccupied
	}

	if err := ix.repos.Add(ctx, repo); err != nil {
		return types.StatusError, err
	}

	status, err := ix.StartIndexing(ctx, repo, false, notify)
	if status == types.StatusFailed {
		if rbErr := ix.repos.Remove(ctx, repo); rbErr != nil {
			slog.Error("rollback after failed indexing failed", "repo", repo.ID(), "error", rbErr)
		} else {
			slog.Info("registration rolled back after failed indexing", "repo", repo.ID())
		}
	}
	return status, err
}

// Reindex re-submits the single registered repository with reload set.
func (ix *Indexer) Reindex(ctx context.Context, notify Notifier) (types.IndexStatus, error) {
	repos, err := ix.repos.List(ctx)
	if err != nil {
		return types.StatusError, err
	}
	switch len(repos) {
	case 0:
		return types.StatusUnindexed, ErrNoRepos
	case 1:
	default:
		return types.StatusUnindexed, ErrMultipleRepos
	}
	return ix.StartIndexing(ctx, repos[0].Repo, true, notify)
}

// Status reads the current upstream state of the single registered
// repository without side effects.
func (ix *Indexer) Status(ctx context.Context, repo types.Repo) (types.IndexStatus, *gateway.RepoInfo, error) {
	info, err := ix.api.RepositoryStatus(ctx, repo)
	if err != nil {
		return types.StatusError, nil, err
	}
	return types.ParseIndexStatus(info.Status), info, nil
}
