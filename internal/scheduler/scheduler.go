// Package scheduler runs the background maintenance jobs: a periodic sweep
// of upstream repository status and a daily usage-log cleanup.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/greptbot/internal/gateway"
	"github.com/user/greptbot/internal/types"
)

const (
	statusSweepSchedule = "*/30 * * * *"
	usageSweepSchedule  = "30 0 * * *"

	// Usage rows older than this no longer affect any quota window.
	usageRetention = 48 * time.Hour
)

// StatusAPI reads upstream repository status.
type StatusAPI interface {
	RepositoryStatus(ctx context.Context, repo types.Repo) (*gateway.RepoInfo, error)
}

// Notifier receives sweep findings worth surfacing.
type Notifier interface {
	Log(ctx context.Context, msg string)
	Error(ctx context.Context, msg string)
}

// Scheduler owns the cron ticker and the two maintenance jobs.
type Scheduler struct {
	api    StatusAPI
	repos  types.RepoStore
	usage  types.UsageStore
	notify Notifier
	cron   *cron.Cron
}

// New creates a Scheduler. Jobs are registered at Start.
func New(api StatusAPI, repos types.RepoStore, usage types.UsageStore, notify Notifier) *Scheduler {
	return &Scheduler{
		api:    api,
		repos:  repos,
		usage:  usage,
		notify: notify,
		cron:   cron.New(),
	}
}

// Start registers the jobs and starts the cron ticker.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(statusSweepSchedule, func() { s.SweepStatus(ctx) }); err != nil {
		return fmt.Errorf("register status sweep: %w", err)
	}
	if _, err := s.cron.AddFunc(usageSweepSchedule, func() { s.SweepUsage(ctx) }); err != nil {
		return fmt.Errorf("register usage sweep: %w", err)
	}
	s.cron.Start()
	slog.Info("scheduler started",
		"status_sweep", statusSweepSchedule, "usage_sweep", usageSweepSchedule)
	return nil
}

// Stop stops the cron ticker and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// SweepStatus polls upstream status for every registered repository and
// stamps last_indexed_at when a completion is observed out of band, e.g.
// after the bot was restarted mid-indexing.
func (s *Scheduler) SweepStatus(ctx context.Context) {
	records, err := s.repos.List(ctx)
	if err != nil {
		slog.Error("status sweep: list repositories", "error", err)
		return
	}

	for _, rec := range records {
		info, err := s.api.RepositoryStatus(ctx, rec.Repo)
		if err != nil {
			s.notify.Error(ctx, fmt.Sprintf("Status check failed for %s: %v", rec.Repo.FullName(), err))
			continue
		}
		status := types.ParseIndexStatus(info.Status)
		slog.Debug("status sweep", "repo", rec.Repo.ID(), "status", status)

		if status == types.StatusCompleted && rec.LastIndexedAt == nil {
			if err := s.repos.SetLastIndexed(ctx, rec.Repo, time.Now()); err != nil {
				slog.Error("status sweep: stamp last_indexed_at", "repo", rec.Repo.ID(), "error", err)
				continue
			}
			s.notify.Log(ctx, fmt.Sprintf("Indexing of %s completed.", rec.Repo.FullName()))
		}
		if status == types.StatusFailed {
			s.notify.Error(ctx, fmt.Sprintf("Indexing of %s is in a failed state.", rec.Repo.FullName()))
		}
	}
}

// SweepUsage deletes usage rows old enough to be outside every quota window.
func (s *Scheduler) SweepUsage(ctx context.Context) {
	cutoff := time.Now().Add(-usageRetention)
	removed, err := s.usage.DeleteBefore(ctx, cutoff)
	if err != nil {
		slog.Error("usage sweep failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("usage sweep", "removed", removed)
	}
}
