package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/greptbot/internal/dispatcher"
	"github.com/user/greptbot/internal/indexer"
	"github.com/user/greptbot/internal/types"
)

// requiredRole maps a command to the minimum role that may run it. Unknown
// commands are ignored entirely.
func requiredRole(cmd string) (types.Role, bool) {
	switch cmd {
	case "help", "start", "search", "query", "smartquery", "listrepos", "repostatus":
		return types.RoleUser, true
	case "addrepo", "removerepos", "reindex", "setconfig", "viewconfig",
		"whitelist", "setlogchannel", "seterrorchannel":
		return types.RoleAdmin, true
	case "addadmin", "removeadmin", "restart":
		return types.RoleOwner, true
	default:
		return types.RoleOwner, false
	}
}

func (a *Adapter) cmdHelp(msg *tgbotapi.Message, role types.Role) {
	var b strings.Builder
	b.WriteString("Commands:\n")
	b.WriteString("/search <text> - semantic code search\n")
	b.WriteString("/query <question> - ask about the codebase\n")
	b.WriteString("/smartquery <question> - deeper, slower analysis\n")
	b.WriteString("/listrepos - show the indexed repository\n")
	b.WriteString("/repostatus - current indexing status\n")
	if role.AtLeast(types.RoleAdmin) {
		b.WriteString("\nAdmin:\n")
		b.WriteString("/addrepo <owner>/<name>[:branch] - register and index\n")
		b.WriteString("/removerepos - clear the registry\n")
		b.WriteString("/reindex - re-submit with reload\n")
		b.WriteString("/setconfig <key> <value>\n")
		b.WriteString("/viewconfig\n")
		b.WriteString("/whitelist add|remove|list [user_id]\n")
		b.WriteString("/setlogchannel - use this chat for log notices\n")
		b.WriteString("/seterrorchannel - use this chat for error notices\n")
	}
	if role.AtLeast(types.RoleOwner) {
		b.WriteString("\nOwner:\n")
		b.WriteString("/addadmin <user_id>\n")
		b.WriteString("/removeadmin <user_id>\n")
		b.WriteString("/restart\n")
	}
	a.sendResponse(msg.Chat.ID, b.String())
}

func (a *Adapter) cmdDispatch(ctx context.Context, msg *tgbotapi.Message, class types.QueryClass) {
	text := strings.TrimSpace(msg.CommandArguments())
	if text == "" {
		a.sendResponse(msg.Chat.ID, fmt.Sprintf("Usage: /%s <text>", msg.Command()))
		return
	}

	req := dispatcher.Request{
		UserID:    strconv.FormatInt(msg.From.ID, 10),
		ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
		MessageID: strconv.Itoa(msg.MessageID),
		Class:     class,
		Text:      text,
	}

	thinking, err := a.bot.Send(tgbotapi.NewMessage(msg.Chat.ID, "Working on it..."))
	if err != nil {
		slog.Error("send placeholder failed", "chat_id", msg.Chat.ID, "error", err)
	}

	// Off the update loop so a slow upstream never blocks other chats. The
	// dispatcher's single-flight lock rejects pile-ups per user.
	go func() {
		replies, err := a.dispatcher.Process(ctx, req)
		if thinking.MessageID != 0 {
			if _, err := a.bot.Request(tgbotapi.NewDeleteMessage(msg.Chat.ID, thinking.MessageID)); err != nil {
				slog.Warn("delete placeholder failed", "chat_id", msg.Chat.ID, "error", err)
			}
		}
		if err != nil {
			if !isDenial(err) {
				a.incidents.Error(ctx, fmt.Sprintf("%s request failed: %v", class, err))
			}
			a.sendResponse(msg.Chat.ID, denialMessage(err))
			return
		}
		for _, reply := range replies {
			a.sendResponse(msg.Chat.ID, reply)
		}
	}()
}

func (a *Adapter) cmdListRepos(ctx context.Context, msg *tgbotapi.Message) {
	records, err := a.repos.List(ctx)
	if err != nil {
		a.sendResponse(msg.Chat.ID, "Failed to read the repository registry.")
		return
	}
	if len(records) == 0 {
		a.sendResponse(msg.Chat.ID, "No repository registered. Use /addrepo to add one.")
		return
	}
	var b strings.Builder
	b.WriteString("Registered repositories:\n")
	for _, rec := range records {
		fmt.Fprintf(&b, "- %s (branch %s)", rec.Repo.FullName(), rec.Repo.Branch)
		if rec.LastIndexedAt != nil {
			fmt.Fprintf(&b, ", last indexed %s", rec.LastIndexedAt.Format(time.RFC1123))
		}
		b.WriteString("\n")
	}
	a.sendResponse(msg.Chat.ID, b.String())
}

func (a *Adapter) cmdAddRepo(ctx context.Context, msg *tgbotapi.Message) {
	repo, err := parseRepoArg(msg.CommandArguments())
	if err != nil {
		a.sendResponse(msg.Chat.ID, "Usage: /addrepo <owner>/<name>[:branch]")
		return
	}

	notify := a.statusEditor(msg.Chat.ID)
	go func() {
		status, err := a.indexer.AddRepository(ctx, repo, notify)
		switch {
		case err == nil:
			slog.Info("addrepo finished", "repo", repo.ID(), "status", status)
		case errors.Is(err, indexer.ErrRegistryOccupied):
			a.sendResponse(msg.Chat.ID, "Another repository is already registered. Run /removerepos first.")
		default:
			slog.Error("addrepo failed", "repo", repo.ID(), "error", err)
			a.incidents.Error(ctx, fmt.Sprintf("Indexing %s failed: %v", repo.FullName(), err))
		}
	}()
}

func (a *Adapter) cmdRemoveRepos(ctx context.Context, msg *tgbotapi.Message) {
	if err := a.repos.RemoveAll(ctx); err != nil {
		a.sendResponse(msg.Chat.ID, "Failed to clear the registry.")
		return
	}
	a.sendResponse(msg.Chat.ID, "All repositories removed.")
}

func (a *Adapter) cmdReindex(ctx context.Context, msg *tgbotapi.Message) {
	notify := a.statusEditor(msg.Chat.ID)
	go func() {
		status, err := a.indexer.Reindex(ctx, notify)
		switch {
		case errors.Is(err, indexer.ErrNoRepos):
			a.sendResponse(msg.Chat.ID, "No repository registered. Use /addrepo first.")
		case errors.Is(err, indexer.ErrMultipleRepos):
			a.sendResponse(msg.Chat.ID, "Multiple repositories registered; remove them and re-add one.")
		case err != nil:
			slog.Error("reindex failed", "error", err)
			a.incidents.Error(ctx, fmt.Sprintf("Reindex failed: %v", err))
		default:
			slog.Info("reindex finished", "status", status)
		}
	}()
}

func (a *Adapter) cmdRepoStatus(ctx context.Context, msg *tgbotapi.Message) {
	records, err := a.repos.List(ctx)
	if err != nil || len(records) == 0 {
		a.sendResponse(msg.Chat.ID, "No repository registered.")
		return
	}
	repo := records[0].Repo
	status, info, err := a.indexer.Status(ctx, repo)
	if err != nil {
		a.sendResponse(msg.Chat.ID, fmt.Sprintf("Unable to read status for %s.", repo.FullName()))
		return
	}
	reply := fmt.Sprintf("%s: %s", repo.FullName(), status)
	if info.NumFiles > 0 {
		reply += fmt.Sprintf(" (%d/%d files)", info.FilesProcessed, info.NumFiles)
	}
	a.sendResponse(msg.Chat.ID, reply)
}

func (a *Adapter) cmdSetConfig(ctx context.Context, msg *tgbotapi.Message) {
	parts := strings.Fields(msg.CommandArguments())
	if len(parts) != 2 {
		a.sendResponse(msg.Chat.ID, "Usage: /setconfig <key> <value>")
		return
	}
	if err := a.config.Set(ctx, parts[0], parts[1]); err != nil {
		a.sendResponse(msg.Chat.ID, "Failed to store the setting.")
		return
	}
	a.sendResponse(msg.Chat.ID, fmt.Sprintf("Set %s = %s", parts[0], parts[1]))
}

func (a *Adapter) cmdViewConfig(ctx context.Context, msg *tgbotapi.Message) {
	values, err := a.config.All(ctx)
	if err != nil {
		a.sendResponse(msg.Chat.ID, "Failed to read settings.")
		return
	}
	if len(values) == 0 {
		a.sendResponse(msg.Chat.ID, "No settings stored.")
		return
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("Settings:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "%s = %s\n", k, values[k])
	}
	a.sendResponse(msg.Chat.ID, b.String())
}

func (a *Adapter) cmdWhitelist(ctx context.Context, msg *tgbotapi.Message) {
	parts := strings.Fields(msg.CommandArguments())
	if len(parts) == 0 {
		a.sendResponse(msg.Chat.ID, "Usage: /whitelist add|remove|list [user_id]")
		return
	}
	switch parts[0] {
	case "add":
		if len(parts) != 2 {
			a.sendResponse(msg.Chat.ID, "Usage: /whitelist add <user_id>")
			return
		}
		if err := a.whitelist.Set(ctx, parts[1], types.RoleUser); err != nil {
			a.sendResponse(msg.Chat.ID, "Failed to update the whitelist.")
			return
		}
		a.sendResponse(msg.Chat.ID, fmt.Sprintf("User %s whitelisted.", parts[1]))
	case "remove":
		if len(parts) != 2 {
			a.sendResponse(msg.Chat.ID, "Usage: /whitelist remove <user_id>")
			return
		}
		existed, err := a.whitelist.Delete(ctx, parts[1])
		if err != nil {
			a.sendResponse(msg.Chat.ID, "Failed to update the whitelist.")
			return
		}
		if !existed {
			a.sendResponse(msg.Chat.ID, fmt.Sprintf("User %s was not whitelisted.", parts[1]))
			return
		}
		a.sendResponse(msg.Chat.ID, fmt.Sprintf("User %s removed.", parts[1]))
	case "list":
		entries, err := a.whitelist.List(ctx)
		if err != nil {
			a.sendResponse(msg.Chat.ID, "Failed to read the whitelist.")
			return
		}
		if len(entries) == 0 {
			a.sendResponse(msg.Chat.ID, "Whitelist is empty.")
			return
		}
		ids := make([]string, 0, len(entries))
		for id := range entries {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		var b strings.Builder
		b.WriteString("Whitelist:\n")
		for _, id := range ids {
			fmt.Fprintf(&b, "- %s (%s)\n", id, entries[id])
		}
		a.sendResponse(msg.Chat.ID, b.String())
	default:
		a.sendResponse(msg.Chat.ID, "Usage: /whitelist add|remove|list [user_id]")
	}
}

func (a *Adapter) cmdSetRole(ctx context.Context, msg *tgbotapi.Message, role types.Role) {
	target := strings.TrimSpace(msg.CommandArguments())
	if target == "" {
		a.sendResponse(msg.Chat.ID, fmt.Sprintf("Usage: /%s <user_id>", msg.Command()))
		return
	}
	if target == a.ownerID {
		a.sendResponse(msg.Chat.ID, "The owner role cannot be changed.")
		return
	}
	if err := a.whitelist.Set(ctx, target, role); err != nil {
		a.sendResponse(msg.Chat.ID, "Failed to update the whitelist.")
		return
	}
	a.sendResponse(msg.Chat.ID, fmt.Sprintf("User %s is now %s.", target, role))
}

func (a *Adapter) cmdSetChannel(ctx context.Context, msg *tgbotapi.Message, key string) {
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	if err := a.config.Set(ctx, key, chatID); err != nil {
		a.sendResponse(msg.Chat.ID, "Failed to store the channel setting.")
		return
	}
	a.sendResponse(msg.Chat.ID, "This chat will now receive those notices.")
}

func (a *Adapter) cmdRestart(msg *tgbotapi.Message) {
	a.sendResponse(msg.Chat.ID, "Restarting...")
	if a.restart != nil {
		a.restart()
	}
}
