package gateway

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// UpstreamError is a non-2xx response from the upstream service. It carries
// the status code and upstream message for the user-facing reply and is
// never retried.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Message)
}

// TransportError is a connection-level failure. Only the dropped-connection
// class is retried.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Dropped reports whether the failure looks like the server dropping the
// connection mid-request, the one transport condition worth retrying.
func (e *TransportError) Dropped() bool {
	if e.Err == nil {
		return false
	}
	if errors.Is(e.Err, io.EOF) || errors.Is(e.Err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(e.Err, syscall.ECONNRESET) || errors.Is(e.Err, syscall.EPIPE) {
		return true
	}
	var netErr *net.OpError
	if errors.As(e.Err, &netErr) && netErr.Op == "read" {
		return true
	}
	msg := strings.ToLower(e.Err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "server closed")
}

// retryable reports whether the error qualifies for another attempt.
func retryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Dropped()
}
