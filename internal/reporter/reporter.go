// Package reporter delivers operational notices to the configured log and
// error channels. Repeated error messages are suppressed for a short window
// so a flapping upstream does not flood the channel.
package reporter

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSuppressWindow is how long an identical error message is muted
// after being delivered.
const DefaultSuppressWindow = 5 * time.Minute

const (
	logChannelKey   = "log_channel"
	errorChannelKey = "error_channel"
)

// Sender delivers a message to a chat. The Telegram adapter provides one.
type Sender func(chatID, message string) error

// ConfigReader is the slice of runtime config the reporter needs.
type ConfigReader interface {
	Get(ctx context.Context, key, fallback string) (string, error)
}

// Reporter mirrors notices to chat channels. Channel IDs are read from
// runtime config on every call so setlogchannel takes effect immediately.
type Reporter struct {
	send    Sender
	config  ConfigReader
	ownerID string
	window  time.Duration
	now     func() time.Time

	mu       sync.Mutex
	lastMsg  string
	lastSent time.Time
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

// WithSuppressWindow overrides the duplicate suppression window.
func WithSuppressWindow(d time.Duration) Option {
	return func(r *Reporter) { r.window = d }
}

// WithOwner also delivers error notices to the owner's direct chat. For a
// private chat the chat ID equals the user ID.
func WithOwner(ownerID string) Option {
	return func(r *Reporter) { r.ownerID = ownerID }
}

// New creates a Reporter delivering through send.
func New(send Sender, config ConfigReader, opts ...Option) *Reporter {
	r := &Reporter{
		send:   send,
		config: config,
		window: DefaultSuppressWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Log mirrors an informational notice to the log channel, if one is
// configured. Delivery failures are logged and swallowed.
func (r *Reporter) Log(ctx context.Context, msg string) {
	slog.Info(msg)
	r.deliver(ctx, logChannelKey, msg)
}

// Error mirrors an error notice to the error channel, if one is configured.
// An identical message within the suppression window is dropped.
func (r *Reporter) Error(ctx context.Context, msg string) {
	slog.Error(msg)

	now := r.now()
	r.mu.Lock()
	if r.suppressed(now, msg) {
		r.mu.Unlock()
		return
	}
	r.lastMsg = msg
	r.lastSent = now
	r.mu.Unlock()

	delivered := r.deliver(ctx, errorChannelKey, msg)
	if r.ownerID != "" && delivered != r.ownerID {
		if err := r.send(r.ownerID, msg); err != nil {
			slog.Error("owner delivery failed", "chat_id", r.ownerID, "error", err)
		}
	}
}

// suppressed reports whether msg duplicates the last delivered error within
// the window. Callers hold the mutex.
func (r *Reporter) suppressed(now time.Time, msg string) bool {
	return msg == r.lastMsg && now.Sub(r.lastSent) < r.window
}

// deliver sends to the chat configured under channelKey and returns the
// chat ID used, or "" when no channel is configured.
func (r *Reporter) deliver(ctx context.Context, channelKey, msg string) string {
	chatID, err := r.config.Get(ctx, channelKey, "")
	if err != nil {
		slog.Error("failed to read channel config", "key", channelKey, "error", err)
		return ""
	}
	if chatID == "" {
		return ""
	}
	if err := r.send(chatID, msg); err != nil {
		slog.Error("channel delivery failed", "chat_id", chatID, "error", err)
	}
	return chatID
}
