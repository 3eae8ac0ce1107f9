package gateway

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func fastPolicy() *RetryPolicy {
	return &RetryPolicy{MaxAttempts: 3, Unit: time.Millisecond}
}

func TestNextDelay(t *testing.T) {
	policy := DefaultRetryPolicy()
	if d := policy.NextDelay(1); d != 2*time.Second {
		t.Errorf("attempt 1: expected 2s, got %v", d)
	}
	if d := policy.NextDelay(2); d != 4*time.Second {
		t.Errorf("attempt 2: expected 4s, got %v", d)
	}
}

func TestExecuteAbsorbsDroppedConnections(t *testing.T) {
	calls := 0
	err := fastPolicy().Execute(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &TransportError{Err: io.EOF}
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestExecuteDoesNotRetryUpstreamErrors(t *testing.T) {
	calls := 0
	wantErr := &UpstreamError{Status: 400, Message: "bad branch"}
	err := fastPolicy().Execute(context.Background(), func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected upstream error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("4xx must not be retried, got %d attempts", calls)
	}
}

func TestExecuteDoesNotRetryGenericTransport(t *testing.T) {
	calls := 0
	err := fastPolicy().Execute(context.Background(), func() error {
		calls++
		return &TransportError{Err: errors.New("no such host")}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("non-dropped transport errors must not be retried, got %d attempts", calls)
	}
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy().Execute(context.Background(), func() error {
		calls++
		return &TransportError{Err: io.ErrUnexpectedEOF}
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestExecuteRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	policy := &RetryPolicy{MaxAttempts: 3, Unit: time.Minute}
	err := policy.Execute(ctx, func() error {
		return &TransportError{Err: io.EOF}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context error, got %v", err)
	}
}

func TestTransportErrorDropped(t *testing.T) {
	dropped := []error{
		io.EOF,
		io.ErrUnexpectedEOF,
		errors.New("read tcp 1.2.3.4:443: connection reset by peer"),
		errors.New("write tcp 1.2.3.4:443: broken pipe"),
	}
	for _, e := range dropped {
		te := &TransportError{Err: e}
		if !te.Dropped() {
			t.Errorf("%v should classify as dropped", e)
		}
	}
	notDropped := []error{
		errors.New("dial tcp: no such host"),
		errors.New("context deadline exceeded"),
		nil,
	}
	for _, e := range notDropped {
		te := &TransportError{Err: e}
		if te.Dropped() {
			t.Errorf("%v should not classify as dropped", e)
		}
	}
}
