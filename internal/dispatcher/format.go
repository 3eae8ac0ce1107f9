package dispatcher

import (
	"fmt"
	"strings"
	"time"

	"github.com/user/greptbot/internal/gateway"
)

const (
	resultsPerMessage = 25
	summaryMaxLen     = 200
)

// formatSearchResults renders search hits as one or more chat messages,
// paginated so a single message never carries more than resultsPerMessage
// entries.
func formatSearchResults(results []gateway.SearchResult, elapsed time.Duration) []string {
	if len(results) == 0 {
		return []string{"No results found."}
	}

	var messages []string
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d results in %.1fs:\n", len(results), elapsed.Seconds())
	count := 0
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. `%s` (lines %d-%d)\n", i+1, r.Filepath, r.LineStart, r.LineEnd)
		if s := truncate(r.Summary, summaryMaxLen); s != "" {
			fmt.Fprintf(&b, "   %s\n", s)
		}
		count++
		if count == resultsPerMessage {
			messages = append(messages, b.String())
			b.Reset()
			count = 0
		}
	}
	if b.Len() > 0 {
		messages = append(messages, b.String())
	}
	return messages
}

// formatQueryResult renders an answer with its source references and the
// response time.
func formatQueryResult(result *gateway.QueryResult, elapsed time.Duration) []string {
	var b strings.Builder
	b.WriteString(result.Message)
	if len(result.Sources) > 0 {
		b.WriteString("\n\nSources:\n")
		for _, s := range result.Sources {
			fmt.Fprintf(&b, "- `%s` (lines %d-%d)\n", s.Filepath, s.LineStart, s.LineEnd)
		}
	}
	fmt.Fprintf(&b, "\n_Answered in %.1fs_", elapsed.Seconds())
	return []string{b.String()}
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
