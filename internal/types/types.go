// internal/types/types.go
package types

import (
	"fmt"
	"strings"
	"time"
)

// Repo identifies a repository by its (remote, owner, name, branch) tuple.
// The tuple is the unit of deduplication everywhere: the registry holds at
// most one row per tuple and the upstream API addresses repositories by the
// canonical string form returned by ID.
type Repo struct {
	Remote string
	Owner  string
	Name   string
	Branch string
}

// ID returns the canonical repository key: remote:branch:owner/name.
func (r Repo) ID() string {
	return fmt.Sprintf("%s:%s:%s/%s", r.Remote, r.Branch, r.Owner, r.Name)
}

// FullName returns owner/name, the form the upstream API expects in payloads.
func (r Repo) FullName() string {
	return r.Owner + "/" + r.Name
}

func (r Repo) String() string { return r.ID() }

// RepoRecord is a registry row: a Repo plus its last successful indexing time.
// LastIndexedAt is nil until a completed indexing run has been observed.
type RepoRecord struct {
	Repo
	LastIndexedAt *time.Time
}

// IndexStatus is the lifecycle state of a repository as driven by polling.
type IndexStatus int

const (
	StatusUnindexed IndexStatus = iota
	StatusSubmitted
	StatusCloning
	StatusProcessing
	StatusCompleted
	StatusFailed
	// StatusError marks a communication failure with the upstream service,
	// distinct from an upstream-reported indexing failure.
	StatusError
	// StatusUnexpected covers upstream status strings this code does not
	// recognise. It is non-terminal: polling continues so that new upstream
	// statuses do not break the loop.
	StatusUnexpected
)

var statusNames = map[IndexStatus]string{
	StatusUnindexed:  "unindexed",
	StatusSubmitted:  "submitted",
	StatusCloning:    "cloning",
	StatusProcessing: "processing",
	StatusCompleted:  "completed",
	StatusFailed:     "failed",
	StatusError:      "error",
	StatusUnexpected: "unexpected",
}

func (s IndexStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether polling should stop at this status.
func (s IndexStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusError
}

// ParseIndexStatus maps an upstream status string to the internal enum.
// Unrecognised strings map to StatusUnexpected.
func ParseIndexStatus(upstream string) IndexStatus {
	switch strings.ToLower(strings.TrimSpace(upstream)) {
	case "submitted":
		return StatusSubmitted
	case "cloning":
		return StatusCloning
	case "processing":
		return StatusProcessing
	case "completed":
		return StatusCompleted
	case "failed":
		return StatusFailed
	case "":
		return StatusUnindexed
	default:
		return StatusUnexpected
	}
}

// QueryClass distinguishes the billable request kinds, each with its own
// daily ceiling.
type QueryClass string

const (
	ClassQuery      QueryClass = "query"
	ClassSmartQuery QueryClass = "smart_query"
	ClassSearch     QueryClass = "search"
)

// ConfigKey returns the runtime-config key holding this class's daily ceiling.
func (c QueryClass) ConfigKey() string {
	switch c {
	case ClassSmartQuery:
		return "max_smart_queries_per_day"
	case ClassSearch:
		return "max_searches_per_day"
	default:
		return "max_queries_per_day"
	}
}

// DefaultLimit returns the ceiling used when no config row exists. Smart
// queries are far more expensive upstream, hence the lower default.
func (c QueryClass) DefaultLimit() int {
	switch c {
	case ClassSmartQuery:
		return 1
	case ClassSearch:
		return 10
	default:
		return 5
	}
}

// Genius reports whether this class requests the deep-analysis mode upstream.
func (c QueryClass) Genius() bool { return c == ClassSmartQuery }

// Role is a whitelist authorization level. RoleNone marks a user absent
// from the whitelist entirely.
type Role int

const (
	RoleNone Role = iota - 1
	RoleUser
	RoleAdmin
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleOwner:
		return "owner"
	case RoleNone:
		return "none"
	default:
		return "user"
	}
}

// ParseRole maps a stored role string to a Role, defaulting to RoleUser.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin
	case "owner":
		return RoleOwner
	default:
		return RoleUser
	}
}

// AtLeast reports whether r grants the permissions of min.
func (r Role) AtLeast(min Role) bool { return r >= min }
