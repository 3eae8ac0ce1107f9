// Package dispatcher runs governed search and query requests against the
// indexed repositories. All three command flavours (search, query,
// smartquery) go through the same Process path, parametrized by query class.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"
	"golang.org/x/sync/semaphore"

	"github.com/user/greptbot/internal/gateway"
	"github.com/user/greptbot/internal/governor"
	"github.com/user/greptbot/internal/types"
)

const defaultMaxQuestionTokens = 256

// API is the slice of the upstream client the dispatcher needs.
type API interface {
	Search(ctx context.Context, query string, repos []types.Repo, sessionID string) ([]gateway.SearchResult, error)
	Query(ctx context.Context, question, messageID string, repos []types.Repo, sessionID string, genius bool) (*gateway.QueryResult, error)
}

// Request is one governed user request.
type Request struct {
	UserID    string
	ChatID    string
	MessageID string
	Class     types.QueryClass
	Text      string
}

// Dispatcher applies the governor and forwards accepted requests upstream.
// A weighted semaphore bounds concurrent upstream calls across all users.
type Dispatcher struct {
	api       API
	gov       *governor.Governor
	repos     types.RepoStore
	config    types.ConfigStore
	sem       *semaphore.Weighted
	tokenizer *tiktoken.Tiktoken
}

// New creates a Dispatcher. maxConcurrent bounds simultaneous upstream
// calls; the tokenizer enforces the question length budget.
func New(api API, gov *governor.Governor, repos types.RepoStore, config types.ConfigStore, maxConcurrent int64) (*Dispatcher, error) {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("get tokenizer: %w", err)
	}
	return &Dispatcher{
		api:       api,
		gov:       gov,
		repos:     repos,
		config:    config,
		sem:       semaphore.NewWeighted(maxConcurrent),
		tokenizer: enc,
	}, nil
}

// Process runs one request through the full governed path and returns the
// formatted reply messages. Checks run cheapest-first: single-flight, then
// cooldown, then quota. The single-flight lock is released on every exit.
func (d *Dispatcher) Process(ctx context.Context, req Request) ([]string, error) {
	if !d.gov.Acquire(req.UserID, req.ChatID) {
		return nil, ErrConcurrent
	}
	defer d.gov.Release(req.UserID, req.ChatID)

	if ok, wait := d.gov.CheckCooldown(req.UserID); !ok {
		return nil, &CooldownError{Wait: wait}
	}
	if ok, err := d.gov.CheckQuota(ctx, req.UserID, req.Class); err != nil {
		return nil, fmt.Errorf("check quota: %w", err)
	} else if !ok {
		return nil, &QuotaError{Class: req.Class}
	}

	records, err := d.repos.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNoRepos
	}
	repos := make([]types.Repo, len(records))
	for i, rec := range records {
		repos[i] = rec.Repo
	}

	if err := d.checkLength(ctx, req.Text); err != nil {
		return nil, err
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer d.sem.Release(1)

	start := time.Now()
	var messages []string
	switch req.Class {
	case types.ClassSearch:
		results, err := d.api.Search(ctx, req.Text, repos, d.sessionID(req))
		if err != nil {
			return nil, err
		}
		messages = formatSearchResults(results, time.Since(start))
	default:
		result, err := d.api.Query(ctx, req.Text, req.MessageID, repos, d.sessionID(req), req.Class.Genius())
		if err != nil {
			return nil, err
		}
		messages = formatQueryResult(result, time.Since(start))
	}

	if err := d.gov.Record(ctx, req.UserID, req.Class); err != nil {
		// The reply already exists; losing the usage row is an
		// accounting gap, not a user-facing failure.
		slog.Error("failed to record usage", "user_id", req.UserID, "class", req.Class, "error", err)
	}
	return messages, nil
}

// checkLength enforces the question token budget from runtime config.
func (d *Dispatcher) checkLength(ctx context.Context, text string) error {
	limit, err := d.config.GetInt(ctx, "max_question_tokens", defaultMaxQuestionTokens)
	if err != nil {
		return fmt.Errorf("read token limit: %w", err)
	}
	if limit <= 0 {
		return nil
	}
	tokens := len(d.tokenizer.Encode(text, nil, nil))
	if tokens > limit {
		return &TooLongError{Tokens: tokens, Limit: limit}
	}
	return nil
}

func (d *Dispatcher) sessionID(req Request) string {
	return fmt.Sprintf("telegram-%s-%s-%s", req.Class, req.UserID, uuid.New().String())
}
