package telegram

import (
	"context"
	"strings"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// CommandMarker starts every bot command.
const CommandMarker = "/"

// Command names.
const (
	CmdStart       = "/start"
	CmdStop        = "/stop"
	CmdHelp        = "/help"
	CmdShowToken   = "/show_token"
	CmdUpdateToken = "/update_token"
)

// HandlerFunc runs a command for chatID. args is the trimmed text after the
// command name.
type HandlerFunc func(b *Bot, ctx context.Context, chatID int64, args string) error

// Command is one row of the command table.
type Command struct {
	Name        string
	Description string
	Handler     HandlerFunc
}

// defaultCommands is the single declaration of the bot's commands, in the
// order they are listed to users.
func defaultCommands() []Command {
	return []Command{
		{Name: CmdStart, Description: "Start chat (connect to bot)", Handler: (*Bot).handleStart},
		{Name: CmdStop, Description: "Stop chat (disconnect from bot)", Handler: (*Bot).handleStop},
		{Name: CmdHelp, Description: "Show commands", Handler: (*Bot).handleHelp},
		{Name: CmdShowToken, Description: "Show my current token", Handler: (*Bot).handleShowToken},
		{Name: CmdUpdateToken, Description: "Update current token", Handler: (*Bot).handleUpdateToken},
	}
}

// CommandSet is an immutable command table with a name index.
type CommandSet struct {
	list   []Command
	byName map[string]Command
}

// NewCommandSet indexes cmds by name. Later duplicates win.
func NewCommandSet(cmds []Command) *CommandSet {
	s := &CommandSet{
		list:   append([]Command(nil), cmds...),
		byName: make(map[string]Command, len(cmds)),
	}
	for _, c := range s.list {
		s.byName[c.Name] = c
	}
	return s
}

// Parse resolves text to a command and its arguments. The name must match
// exactly, marker included; anything else reports false.
func (s *CommandSet) Parse(text string) (Command, string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, CommandMarker) {
		return Command{}, "", false
	}

	name, args := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		name, args = text[:i], strings.TrimSpace(text[i:])
	}

	cmd, ok := s.byName[name]
	if !ok {
		return Command{}, "", false
	}
	return cmd, args, true
}

// List returns the commands in declaration order.
func (s *CommandSet) List() []Command {
	return append([]Command(nil), s.list...)
}

// BotCommands converts the table for setMyCommands, which expects names
// without the marker.
func (s *CommandSet) BotCommands() []tgbotapi.BotCommand {
	out := make([]tgbotapi.BotCommand, 0, len(s.list))
	for _, c := range s.list {
		out = append(out, tgbotapi.BotCommand{
			Command:     strings.TrimPrefix(c.Name, CommandMarker),
			Description: c.Description,
		})
	}
	return out
}
