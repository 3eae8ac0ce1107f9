// Package telegram bridges chat commands to the dispatcher and indexer.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/greptbot/internal/dispatcher"
	"github.com/user/greptbot/internal/gateway"
	"github.com/user/greptbot/internal/indexer"
	"github.com/user/greptbot/internal/types"
)

const maxTelegramMessage = 4096

// Dispatcher runs governed search and query requests.
type Dispatcher interface {
	Process(ctx context.Context, req dispatcher.Request) ([]string, error)
}

// Indexer drives the repository lifecycle.
type Indexer interface {
	AddRepository(ctx context.Context, repo types.Repo, notify indexer.Notifier) (types.IndexStatus, error)
	Reindex(ctx context.Context, notify indexer.Notifier) (types.IndexStatus, error)
	Status(ctx context.Context, repo types.Repo) (types.IndexStatus, *gateway.RepoInfo, error)
}

// Incidents receives operational failures worth surfacing to operators.
type Incidents interface {
	Error(ctx context.Context, msg string)
}

type nopIncidents struct{}

func (nopIncidents) Error(context.Context, string) {}

// Adapter long-polls Telegram and routes commands.
type Adapter struct {
	bot        *tgbotapi.BotAPI
	dispatcher Dispatcher
	indexer    Indexer
	repos      types.RepoStore
	config     types.ConfigStore
	whitelist  types.WhitelistStore
	ownerID    string
	restart    func()
	incidents  Incidents
}

// New creates a Telegram adapter. restart is invoked by the /restart
// command after the reply has been sent.
func New(token string, disp Dispatcher, ix Indexer, repos types.RepoStore,
	config types.ConfigStore, whitelist types.WhitelistStore, ownerID string, restart func()) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	slog.Info("telegram bot authorized", "username", bot.Self.UserName)
	return &Adapter{
		bot:        bot,
		dispatcher: disp,
		indexer:    ix,
		repos:      repos,
		config:     config,
		whitelist:  whitelist,
		ownerID:    ownerID,
		restart:    restart,
		incidents:  nopIncidents{},
	}, nil
}

// SetIncidents wires the operator reporter. The reporter in turn delivers
// through this adapter's Send, so it is attached after construction.
func (a *Adapter) SetIncidents(i Incidents) {
	if i != nil {
		a.incidents = i
	}
}

// Start begins long-polling for updates. Blocks until ctx is cancelled.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			a.handleCommand(ctx, update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

// Send delivers a message to a chat identified by its decimal ID. Satisfies
// the reporter's Sender.
func (a *Adapter) Send(chatID, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad chat id %q: %w", chatID, err)
	}
	a.sendResponse(id, text)
	return nil
}

func (a *Adapter) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	userID := strconv.FormatInt(msg.From.ID, 10)

	role, err := a.roleOf(ctx, userID)
	if err != nil {
		slog.Error("role lookup failed", "user_id", userID, "error", err)
		return
	}
	need, known := requiredRole(cmd)
	if !known {
		return
	}
	if !role.AtLeast(need) {
		// Unauthorized users get silence, not a hint the bot exists.
		if role.AtLeast(types.RoleUser) {
			a.sendResponse(msg.Chat.ID, "You are not allowed to use this command.")
		}
		slog.Info("command denied", "command", cmd, "user_id", userID, "role", role)
		return
	}

	slog.Info("command received", "command", cmd, "user_id", userID)
	switch cmd {
	case "help", "start":
		a.cmdHelp(msg, role)
	case "search":
		a.cmdDispatch(ctx, msg, types.ClassSearch)
	case "query":
		a.cmdDispatch(ctx, msg, types.ClassQuery)
	case "smartquery":
		a.cmdDispatch(ctx, msg, types.ClassSmartQuery)
	case "listrepos":
		a.cmdListRepos(ctx, msg)
	case "addrepo":
		a.cmdAddRepo(ctx, msg)
	case "removerepos":
		a.cmdRemoveRepos(ctx, msg)
	case "reindex":
		a.cmdReindex(ctx, msg)
	case "repostatus":
		a.cmdRepoStatus(ctx, msg)
	case "setconfig":
		a.cmdSetConfig(ctx, msg)
	case "viewconfig":
		a.cmdViewConfig(ctx, msg)
	case "whitelist":
		a.cmdWhitelist(ctx, msg)
	case "addadmin":
		a.cmdSetRole(ctx, msg, types.RoleAdmin)
	case "removeadmin":
		a.cmdSetRole(ctx, msg, types.RoleUser)
	case "setlogchannel":
		a.cmdSetChannel(ctx, msg, "log_channel")
	case "seterrorchannel":
		a.cmdSetChannel(ctx, msg, "error_channel")
	case "restart":
		a.cmdRestart(msg)
	}
}

// roleOf resolves the effective role. The configured owner always holds
// RoleOwner regardless of whitelist contents.
func (a *Adapter) roleOf(ctx context.Context, userID string) (types.Role, error) {
	if userID == a.ownerID {
		return types.RoleOwner, nil
	}
	role, ok, err := a.whitelist.Role(ctx, userID)
	if err != nil {
		return types.RoleUser, err
	}
	if !ok {
		return types.RoleNone, nil
	}
	return role, nil
}

func (a *Adapter) sendResponse(chatID int64, text string) {
	for _, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := a.bot.Send(msg); err != nil {
			// Retry without markdown; answers often contain underscores
			// and brackets that break entity parsing.
			msg.ParseMode = ""
			if _, err := a.bot.Send(msg); err != nil {
				slog.Error("send message failed", "chat_id", chatID, "error", err)
			}
		}
	}
}

// statusEditor returns a Notifier that renders lifecycle progress by editing
// a single status message in place.
func (a *Adapter) statusEditor(chatID int64) indexer.Notifier {
	sent, err := a.bot.Send(tgbotapi.NewMessage(chatID, "Starting..."))
	if err != nil {
		slog.Error("send status message failed", "chat_id", chatID, "error", err)
		return func(types.IndexStatus, int, string) {}
	}
	messageID := sent.MessageID
	last := ""
	return func(status types.IndexStatus, progress int, detail string) {
		text := renderStatus(status, progress, detail)
		if text == last {
			return
		}
		last = text
		if _, err := a.bot.Send(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
			slog.Warn("edit status message failed", "chat_id", chatID, "error", err)
		}
	}
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end > len(text) {
			end = len(text)
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}
