// Package gateway is the HTTP client for the upstream code-intelligence
// service: repository indexing, semantic search, and natural-language query.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/user/greptbot/internal/types"
)

// Client issues authenticated calls to the upstream API.
type Client struct {
	baseURL     string
	apiKey      string
	githubToken string
	httpClient  *http.Client
	retry       *RetryPolicy
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-attempt request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p *RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// New creates a Client for the given base URL and credentials.
func New(baseURL, apiKey, githubToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		githubToken: githubToken,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		retry: DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call issues one API request with retries, decoding the 2xx body into out.
func (c *Client) call(ctx context.Context, method, endpoint string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	return c.retry.Execute(ctx, func() error {
		return c.once(ctx, method, endpoint, body, out)
	})
}

func (c *Client) once(ctx context.Context, method, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-GitHub-Token", c.githubToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		message := upstreamMessage(data)
		slog.Error("upstream request failed",
			"method", method, "endpoint", endpoint,
			"status", resp.StatusCode, "message", message)
		return &UpstreamError{Status: resp.StatusCode, Message: message}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// upstreamMessage extracts the error message from an upstream error body,
// falling back to the raw body when it is not the expected JSON shape.
func upstreamMessage(data []byte) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	if len(data) > 0 {
		return string(data)
	}
	return "unknown error"
}

// repoPayload is the repository reference shape upstream expects in request
// bodies.
type repoPayload struct {
	Remote     string `json:"remote"`
	Repository string `json:"repository"`
	Branch     string `json:"branch"`
}

func repoPayloads(repos []types.Repo) []repoPayload {
	out := make([]repoPayload, len(repos))
	for i, r := range repos {
		out[i] = repoPayload{Remote: r.Remote, Repository: r.FullName(), Branch: r.Branch}
	}
	return out
}

// RepoInfo is the upstream view of a repository's indexing state.
type RepoInfo struct {
	Status          string   `json:"status"`
	FilesProcessed  int      `json:"filesProcessed"`
	NumFiles        int      `json:"numFiles"`
	SampleQuestions []string `json:"sampleQuestions"`
	SHA             string   `json:"sha"`
}

// IndexRepository submits a repository for indexing and returns the
// upstream acknowledgement message.
func (c *Client) IndexRepository(ctx context.Context, repo types.Repo, reload bool) (string, error) {
	payload := struct {
		Remote     string `json:"remote"`
		Repository string `json:"repository"`
		Branch     string `json:"branch"`
		Reload     bool   `json:"reload"`
		Notify     bool   `json:"notify"`
	}{
		Remote:     repo.Remote,
		Repository: repo.FullName(),
		Branch:     repo.Branch,
		Reload:     reload,
		Notify:     false,
	}
	var result struct {
		Response string `json:"response"`
	}
	if err := c.call(ctx, http.MethodPost, "/repositories", payload, &result); err != nil {
		return "", err
	}
	return result.Response, nil
}

// RepositoryStatus reads the current indexing state of a repository. The
// repository ID is percent-encoded as a single path segment.
func (c *Client) RepositoryStatus(ctx context.Context, repo types.Repo) (*RepoInfo, error) {
	endpoint := "/repositories/" + url.PathEscape(repo.ID())
	var info RepoInfo
	if err := c.call(ctx, http.MethodGet, endpoint, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// SearchResult is one semantic-search hit.
type SearchResult struct {
	Filepath  string `json:"filepath"`
	LineStart int    `json:"linestart"`
	LineEnd   int    `json:"lineend"`
	Summary   string `json:"summary"`
}

// Search runs a semantic code search across the given repositories.
func (c *Client) Search(ctx context.Context, query string, repos []types.Repo, sessionID string) ([]SearchResult, error) {
	payload := struct {
		Query        string        `json:"query"`
		Repositories []repoPayload `json:"repositories"`
		SessionID    string        `json:"sessionId"`
		Stream       bool          `json:"stream"`
	}{
		Query:        query,
		Repositories: repoPayloads(repos),
		SessionID:    sessionID,
		Stream:       false,
	}
	var results []SearchResult
	if err := c.call(ctx, http.MethodPost, "/search", payload, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Source is a code location cited in a query answer.
type Source struct {
	Filepath  string `json:"filepath"`
	LineStart int    `json:"linestart"`
	LineEnd   int    `json:"lineend"`
}

// QueryResult is the answer to a natural-language query.
type QueryResult struct {
	Message string   `json:"message"`
	Sources []Source `json:"sources"`
}

// Query asks a natural-language question about the given repositories.
// genius selects the deeper, more expensive analysis mode.
func (c *Client) Query(ctx context.Context, question, messageID string, repos []types.Repo, sessionID string, genius bool) (*QueryResult, error) {
	type message struct {
		ID      string `json:"id"`
		Content string `json:"content"`
		Role    string `json:"role"`
	}
	payload := struct {
		Messages     []message     `json:"messages"`
		Repositories []repoPayload `json:"repositories"`
		SessionID    string        `json:"sessionId"`
		Stream       bool          `json:"stream"`
		Genius       bool          `json:"genius"`
	}{
		Messages:     []message{{ID: messageID, Content: question, Role: "user"}},
		Repositories: repoPayloads(repos),
		SessionID:    sessionID,
		Stream:       false,
		Genius:       genius,
	}
	var result QueryResult
	if err := c.call(ctx, http.MethodPost, "/query", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
