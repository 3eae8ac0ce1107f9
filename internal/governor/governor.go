// Package governor enforces per-user request limits: daily quotas per query
// class, a cooldown between requests, and a single-flight lock per
// (user, chat) pair. The bot owner is exempt from all three.
package governor

import (
	"context"
	"sync"
	"time"

	"github.com/user/greptbot/internal/types"
)

// DefaultCooldown is the minimum spacing between accepted requests from the
// same user.
const DefaultCooldown = 5 * time.Second

type flightKey struct {
	UserID string
	ChatID string
}

// Governor owns all throttling state. The clock is injected so tests can
// drive time deterministically.
type Governor struct {
	usage    types.UsageStore
	config   types.ConfigStore
	ownerID  string
	cooldown time.Duration
	now      func() time.Time

	mu           sync.Mutex
	inFlight     map[flightKey]struct{}
	lastAccepted map[string]time.Time
}

// Option configures a Governor.
type Option func(*Governor)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) { g.now = now }
}

// WithCooldown overrides the cooldown window.
func WithCooldown(d time.Duration) Option {
	return func(g *Governor) { g.cooldown = d }
}

// New creates a Governor. ownerID identifies the exempt owner account.
func New(usage types.UsageStore, config types.ConfigStore, ownerID string, opts ...Option) *Governor {
	g := &Governor{
		usage:        usage,
		config:       config,
		ownerID:      ownerID,
		cooldown:     DefaultCooldown,
		now:          time.Now,
		inFlight:     make(map[flightKey]struct{}),
		lastAccepted: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CheckQuota reports whether the user may make another request of the given
// class today. The ceiling is read from runtime config on every call so
// admin changes apply to the next request.
func (g *Governor) CheckQuota(ctx context.Context, userID string, class types.QueryClass) (bool, error) {
	if userID == g.ownerID {
		return true, nil
	}
	limit, err := g.config.GetInt(ctx, class.ConfigKey(), class.DefaultLimit())
	if err != nil {
		return false, err
	}
	count, err := g.usage.CountSince(ctx, userID, class, g.dayStart())
	if err != nil {
		return false, err
	}
	return count < limit, nil
}

// CheckCooldown reports whether the user is outside the cooldown window, and
// if not, how long until it reopens.
func (g *Governor) CheckCooldown(userID string) (bool, time.Duration) {
	if userID == g.ownerID {
		return true, 0
	}
	g.mu.Lock()
	last, ok := g.lastAccepted[userID]
	g.mu.Unlock()
	if !ok {
		return true, 0
	}
	elapsed := g.now().Sub(last)
	if elapsed >= g.cooldown {
		return true, 0
	}
	return false, g.cooldown - elapsed
}

// Acquire takes the single-flight lock for (user, chat). It fails closed:
// a second request while one is outstanding is rejected, not queued.
func (g *Governor) Acquire(userID, chatID string) bool {
	key := flightKey{UserID: userID, ChatID: chatID}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.inFlight[key]; held {
		return false
	}
	g.inFlight[key] = struct{}{}
	return true
}

// Release clears the single-flight lock. Unconditional; callers defer it on
// every guarded path.
func (g *Governor) Release(userID, chatID string) {
	key := flightKey{UserID: userID, ChatID: chatID}
	g.mu.Lock()
	delete(g.inFlight, key)
	g.mu.Unlock()
}

// Record logs an accepted request and stamps the cooldown clock. Called only
// after the request has been accepted and dispatched, never on denial.
func (g *Governor) Record(ctx context.Context, userID string, class types.QueryClass) error {
	now := g.now()
	g.mu.Lock()
	g.lastAccepted[userID] = now
	g.mu.Unlock()
	if userID == g.ownerID {
		// Owner usage is unmetered.
		return nil
	}
	return g.usage.Record(ctx, userID, class, now)
}

func (g *Governor) dayStart() time.Time {
	now := g.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}
