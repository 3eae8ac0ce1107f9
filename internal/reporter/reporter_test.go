package reporter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type staticConfig map[string]string

func (c staticConfig) Get(_ context.Context, key, fallback string) (string, error) {
	if v, ok := c[key]; ok {
		return v, nil
	}
	return fallback, nil
}

type capture struct {
	mu    sync.Mutex
	sent  []string
	chats []string
	err   error
}

func (c *capture) send(chatID, msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chats = append(c.chats, chatID)
	c.sent = append(c.sent, msg)
	return c.err
}

func TestErrorSuppressesDuplicatesWithinWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cap := &capture{}
	r := New(cap.send, staticConfig{"error_channel": "-100"},
		WithClock(func() time.Time { return now }))

	r.Error(context.Background(), "upstream unreachable")
	r.Error(context.Background(), "upstream unreachable")
	if len(cap.sent) != 1 {
		t.Fatalf("duplicate within window should be dropped, got %d deliveries", len(cap.sent))
	}

	// A different message goes through immediately.
	r.Error(context.Background(), "disk full")
	if len(cap.sent) != 2 {
		t.Fatalf("distinct message should be delivered, got %d", len(cap.sent))
	}

	// The original message after the window expires goes through again.
	now = now.Add(DefaultSuppressWindow + time.Second)
	r.Error(context.Background(), "disk full")
	if len(cap.sent) != 3 {
		t.Fatalf("message after window should be delivered, got %d", len(cap.sent))
	}
}

func TestErrorWithoutChannelConfigured(t *testing.T) {
	cap := &capture{}
	r := New(cap.send, staticConfig{})

	r.Error(context.Background(), "upstream unreachable")
	if len(cap.sent) != 0 {
		t.Errorf("no channel configured, expected no delivery, got %d", len(cap.sent))
	}
}

func TestLogUsesLogChannelWithoutSuppression(t *testing.T) {
	cap := &capture{}
	r := New(cap.send, staticConfig{"log_channel": "-200"})

	r.Log(context.Background(), "repository indexed")
	r.Log(context.Background(), "repository indexed")
	if len(cap.sent) != 2 {
		t.Fatalf("log notices are never suppressed, got %d deliveries", len(cap.sent))
	}
	if cap.chats[0] != "-200" {
		t.Errorf("expected log channel -200, got %s", cap.chats[0])
	}
}

func TestErrorAlsoNotifiesOwner(t *testing.T) {
	cap := &capture{}
	r := New(cap.send, staticConfig{"error_channel": "-100"}, WithOwner("42"))

	r.Error(context.Background(), "upstream unreachable")
	if len(cap.chats) != 2 || cap.chats[0] != "-100" || cap.chats[1] != "42" {
		t.Fatalf("expected channel and owner delivery, got %v", cap.chats)
	}

	// When the error channel is the owner's chat there is one delivery.
	cap2 := &capture{}
	r2 := New(cap2.send, staticConfig{"error_channel": "42"}, WithOwner("42"))
	r2.Error(context.Background(), "upstream unreachable")
	if len(cap2.chats) != 1 {
		t.Fatalf("expected a single delivery, got %v", cap2.chats)
	}
}

func TestDeliveryFailureIsSwallowed(t *testing.T) {
	cap := &capture{err: errors.New("blocked by user")}
	r := New(cap.send, staticConfig{"error_channel": "-100"})

	// Must not panic or propagate.
	r.Error(context.Background(), "upstream unreachable")
}
