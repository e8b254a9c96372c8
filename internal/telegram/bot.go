package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/jxucoder/telerelay/internal/session"
	"github.com/jxucoder/telerelay/internal/token"
)

// SessionStore is the subset of the session store the bot needs.
type SessionStore interface {
	CreateSession(ctx context.Context, token []byte, chatID int64) error
	DeleteSession(ctx context.Context, chatID int64) error
	FindTokenByChat(ctx context.Context, chatID int64) ([]byte, error)
}

// Sender delivers replies to a chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) (*tgbotapi.Message, error)
}

// TokenSource issues new bearer tokens.
type TokenSource interface {
	NewToken() ([]byte, error)
}

// Bot dispatches inbound updates to command handlers.
type Bot struct {
	store    SessionStore
	sender   Sender
	tokens   TokenSource
	commands *CommandSet
	log      logrus.FieldLogger
}

// NewBot creates a Bot with the default command table.
func NewBot(store SessionStore, sender Sender, tokens TokenSource, log logrus.FieldLogger) *Bot {
	return &Bot{
		store:    store,
		sender:   sender,
		tokens:   tokens,
		commands: NewCommandSet(defaultCommands()),
		log:      log,
	}
}

// Commands returns the bot's command table.
func (b *Bot) Commands() *CommandSet { return b.commands }

// HandleUpdate processes one update. Updates without a text message and
// unknown commands are ignored. Handler failures are logged and never
// returned, so one chat cannot stall a batch.
func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil || msg.Text == "" {
		return
	}

	chatID := msg.Chat.ID
	if err := b.handleMessage(ctx, chatID, msg.Text); err != nil {
		b.log.WithFields(logrus.Fields{
			"update_id": upd.UpdateID,
			"chat_id":   chatID,
			"text":      msg.Text,
		}).WithError(err).Error("Handling message failed")
	}
}

func (b *Bot) handleMessage(ctx context.Context, chatID int64, text string) error {
	cmd, args, ok := b.commands.Parse(text)
	if !ok {
		return nil
	}
	b.log.WithFields(logrus.Fields{"chat_id": chatID, "command": cmd.Name}).Debug("Running command")
	return cmd.Handler(b, ctx, chatID, args)
}

// --- Command handlers ---

func (b *Bot) handleStart(ctx context.Context, chatID int64, _ string) error {
	tok, err := b.store.FindTokenByChat(ctx, chatID)
	switch {
	case err == nil:
		return b.reply(ctx, chatID, fmt.Sprintf(
			"token already exist for your chat\n\n%s\n\n%s", token.Encode(tok), usageHint))
	case errors.Is(err, session.ErrNotFound):
	default:
		return fmt.Errorf("looking up session: %w", err)
	}

	tok, err = b.issueToken(ctx, chatID)
	if err != nil {
		return err
	}
	return b.reply(ctx, chatID, fmt.Sprintf(
		"generated token\n\n%s\n\n%s", token.Encode(tok), usageHint))
}

func (b *Bot) handleStop(ctx context.Context, chatID int64, _ string) error {
	if err := b.store.DeleteSession(ctx, chatID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return b.reply(ctx, chatID,
		"Deleted token for this chat.\n\n"+
			"You will not receive any messages from this bot until next "+CmdStart+".")
}

func (b *Bot) handleHelp(ctx context.Context, chatID int64, _ string) error {
	var list strings.Builder
	for _, c := range b.commands.List() {
		fmt.Fprintf(&list, "%s %s\n", c.Name, c.Description)
	}
	return b.reply(ctx, chatID,
		"This bot allow to send messages from web to telegram chats.\n"+
			"First connect to this bot ("+CmdStart+") and get token. "+
			"Use it to send requests using notify-me-api npm package\n\n"+
			"Available commands:\n"+list.String())
}

func (b *Bot) handleShowToken(ctx context.Context, chatID int64, _ string) error {
	tok, err := b.store.FindTokenByChat(ctx, chatID)
	if errors.Is(err, session.ErrNotFound) {
		return b.reply(ctx, chatID,
			"Token not found, this chat not connected to bot.\n\n"+
				"run "+CmdStart+" to connect and get token.")
	}
	if err != nil {
		return fmt.Errorf("looking up session: %w", err)
	}
	return b.reply(ctx, chatID, fmt.Sprintf("your token:\n\n%s\n\n%s", token.Encode(tok), usageHint))
}

func (b *Bot) handleUpdateToken(ctx context.Context, chatID int64, _ string) error {
	tok, err := b.issueToken(ctx, chatID)
	if err != nil {
		return err
	}
	return b.reply(ctx, chatID, fmt.Sprintf("new token\n\n%s\n\n%s", token.Encode(tok), usageHint))
}

// --- Helpers ---

const usageHint = "use it to send requests using notify-me-api npm package"

// issueToken generates a token and makes it the chat's only session.
func (b *Bot) issueToken(ctx context.Context, chatID int64) ([]byte, error) {
	tok, err := b.tokens.NewToken()
	if err != nil {
		return nil, fmt.Errorf("generating token: %w", err)
	}
	if err := b.store.CreateSession(ctx, tok, chatID); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	b.log.WithField("chat_id", chatID).Info("Issued new relay token")
	return tok, nil
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) error {
	if _, err := b.sender.SendMessage(ctx, chatID, text); err != nil {
		return fmt.Errorf("sending reply: %w", err)
	}
	return nil
}
