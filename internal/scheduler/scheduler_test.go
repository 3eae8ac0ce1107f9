package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/user/greptbot/internal/gateway"
	"github.com/user/greptbot/internal/types"
)

var testRepo = types.Repo{Remote: "github", Owner: "acme", Name: "widgets", Branch: "main"}

type staticAPI struct {
	info *gateway.RepoInfo
	err  error
}

func (a *staticAPI) RepositoryStatus(context.Context, types.Repo) (*gateway.RepoInfo, error) {
	return a.info, a.err
}

type memRepos struct {
	mu      sync.Mutex
	records map[string]*types.RepoRecord
}

func newMemRepos() *memRepos { return &memRepos{records: make(map[string]*types.RepoRecord)} }

func (m *memRepos) Add(_ context.Context, repo types.Repo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[repo.ID()] = &types.RepoRecord{Repo: repo}
	return nil
}

func (m *memRepos) Remove(_ context.Context, repo types.Repo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, repo.ID())
	return nil
}

func (m *memRepos) RemoveAll(context.Context) error { return nil }

func (m *memRepos) Get(_ context.Context, repo types.Repo) (*types.RepoRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[repo.ID()], nil
}

func (m *memRepos) List(context.Context) ([]types.RepoRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.RepoRecord
	for _, rec := range m.records {
		out = append(out, *rec)
	}
	return out, nil
}

func (m *memRepos) SetLastIndexed(_ context.Context, repo types.Repo, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[repo.ID()]
	if !ok {
		return errors.New("not registered")
	}
	rec.LastIndexedAt = &at
	return nil
}

type memUsage struct {
	mu    sync.Mutex
	times []time.Time
}

func (m *memUsage) Record(_ context.Context, _ string, _ types.QueryClass, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.times = append(m.times, at)
	return nil
}

func (m *memUsage) CountSince(context.Context, string, types.QueryClass, time.Time) (int, error) {
	return 0, nil
}

func (m *memUsage) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []time.Time
	var removed int64
	for _, at := range m.times {
		if at.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, at)
	}
	m.times = kept
	return removed, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	logs   []string
	errors []string
}

func (n *recordingNotifier) Log(_ context.Context, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.logs = append(n.logs, msg)
}

func (n *recordingNotifier) Error(_ context.Context, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

func TestSweepStatusStampsObservedCompletion(t *testing.T) {
	repos := newMemRepos()
	repos.Add(context.Background(), testRepo)
	notify := &recordingNotifier{}
	s := New(&staticAPI{info: &gateway.RepoInfo{Status: "completed"}}, repos, &memUsage{}, notify)

	s.SweepStatus(context.Background())

	rec, _ := repos.Get(context.Background(), testRepo)
	if rec.LastIndexedAt == nil {
		t.Fatal("completion observed by the sweep should stamp last_indexed_at")
	}
	if len(notify.logs) != 1 || !strings.Contains(notify.logs[0], "completed") {
		t.Errorf("expected a completion notice, got %v", notify.logs)
	}

	// A second sweep over an already-stamped repo is quiet.
	s.SweepStatus(context.Background())
	if len(notify.logs) != 1 {
		t.Errorf("already-stamped repo should not re-notify, got %v", notify.logs)
	}
}

func TestSweepStatusReportsFailure(t *testing.T) {
	repos := newMemRepos()
	repos.Add(context.Background(), testRepo)
	notify := &recordingNotifier{}
	s := New(&staticAPI{info: &gateway.RepoInfo{Status: "failed"}}, repos, &memUsage{}, notify)

	s.SweepStatus(context.Background())
	if len(notify.errors) != 1 || !strings.Contains(notify.errors[0], "failed") {
		t.Errorf("expected a failure notice, got %v", notify.errors)
	}

	rec, _ := repos.Get(context.Background(), testRepo)
	if rec.LastIndexedAt != nil {
		t.Error("failed status must not stamp last_indexed_at")
	}
}

func TestSweepStatusReportsCommunicationErrors(t *testing.T) {
	repos := newMemRepos()
	repos.Add(context.Background(), testRepo)
	notify := &recordingNotifier{}
	s := New(&staticAPI{err: errors.New("timeout")}, repos, &memUsage{}, notify)

	s.SweepStatus(context.Background())
	if len(notify.errors) != 1 {
		t.Errorf("expected a status check error notice, got %v", notify.errors)
	}
}

func TestSweepUsageRemovesOldRows(t *testing.T) {
	usage := &memUsage{}
	now := time.Now()
	usage.Record(context.Background(), "u1", types.ClassQuery, now.Add(-72*time.Hour))
	usage.Record(context.Background(), "u1", types.ClassQuery, now.Add(-time.Hour))

	s := New(&staticAPI{}, newMemRepos(), usage, &recordingNotifier{})
	s.SweepUsage(context.Background())

	if len(usage.times) != 1 {
		t.Fatalf("expected only the recent row to survive, got %d", len(usage.times))
	}
	if usage.times[0].Before(now.Add(-usageRetention)) {
		t.Error("surviving row should be inside the retention window")
	}
}
