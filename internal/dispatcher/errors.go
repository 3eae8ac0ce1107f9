package dispatcher

import (
	"errors"
	"fmt"
	"time"

	"github.com/user/greptbot/internal/types"
)

// Denials are user-facing outcomes, not incidents: the adapter renders them
// as a single friendly message and nothing is logged as an error.

// ErrConcurrent means the user already has a request in flight in this chat.
var ErrConcurrent = errors.New("a request is already being processed")

// ErrNoRepos means no repository is registered yet.
var ErrNoRepos = errors.New("no repositories indexed")

// CooldownError carries the remaining wait before the next request.
type CooldownError struct {
	Wait time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown active: wait %.1f seconds", e.Wait.Seconds())
}

// QuotaError means the user exhausted today's quota for the class.
type QuotaError struct {
	Class types.QueryClass
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("daily %s quota exhausted", e.Class)
}

// TooLongError means the question exceeded the token budget.
type TooLongError struct {
	Tokens int
	Limit  int
}

func (e *TooLongError) Error() string {
	return fmt.Sprintf("question too long: %d tokens (limit %d)", e.Tokens, e.Limit)
}
