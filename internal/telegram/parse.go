package telegram

import (
	"errors"
	"fmt"
	"strings"

	"github.com/user/greptbot/internal/dispatcher"
	"github.com/user/greptbot/internal/types"
)

var errBadRepoArg = errors.New("bad repository argument")

// parseRepoArg parses "owner/name", "owner/name:branch", or a full GitHub
// URL into a Repo. The branch defaults to main and the remote to github.
func parseRepoArg(arg string) (types.Repo, error) {
	arg = strings.TrimSpace(arg)
	arg = strings.TrimPrefix(arg, "https://github.com/")
	arg = strings.TrimPrefix(arg, "http://github.com/")
	arg = strings.TrimSuffix(arg, ".git")
	if arg == "" {
		return types.Repo{}, errBadRepoArg
	}

	branch := "main"
	if i := strings.LastIndex(arg, ":"); i >= 0 {
		branch = strings.TrimSpace(arg[i+1:])
		arg = arg[:i]
		if branch == "" {
			return types.Repo{}, errBadRepoArg
		}
	}

	parts := strings.Split(arg, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return types.Repo{}, errBadRepoArg
	}
	return types.Repo{
		Remote: "github",
		Owner:  parts[0],
		Name:   parts[1],
		Branch: branch,
	}, nil
}

// isDenial reports whether err is a governed rejection rather than a
// processing failure. Denials are expected outcomes, not incidents.
func isDenial(err error) bool {
	var cd *dispatcher.CooldownError
	var qe *dispatcher.QuotaError
	var tl *dispatcher.TooLongError
	return errors.Is(err, dispatcher.ErrConcurrent) ||
		errors.Is(err, dispatcher.ErrNoRepos) ||
		errors.As(err, &cd) || errors.As(err, &qe) || errors.As(err, &tl)
}

// denialMessage renders a dispatcher error as a user-facing reply.
func denialMessage(err error) string {
	var cd *dispatcher.CooldownError
	var qe *dispatcher.QuotaError
	var tl *dispatcher.TooLongError
	switch {
	case errors.Is(err, dispatcher.ErrConcurrent):
		return "Please wait for your previous request to finish."
	case errors.Is(err, dispatcher.ErrNoRepos):
		return "No repository is indexed yet. Use /addrepo first."
	case errors.As(err, &cd):
		return fmt.Sprintf("Slow down. Try again in %.0f seconds.", cd.Wait.Seconds())
	case errors.As(err, &qe):
		return fmt.Sprintf("You have reached today's %s limit. It resets at midnight.", qe.Class)
	case errors.As(err, &tl):
		return fmt.Sprintf("That question is too long (%d tokens, limit %d). Please shorten it.", tl.Tokens, tl.Limit)
	default:
		return "Sorry, something went wrong processing your request."
	}
}

// renderStatus formats a lifecycle update for the in-place status message.
func renderStatus(status types.IndexStatus, progress int, detail string) string {
	if status.Terminal() || progress <= 0 {
		return detail
	}
	return fmt.Sprintf("%s %d%%\n%s", progressBar(progress), progress, detail)
}

// progressBar renders a ten-segment bar for a 0-100 value.
func progressBar(progress int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	filled := progress / 10
	return strings.Repeat("▓", filled) + strings.Repeat("░", 10-filled)
}
