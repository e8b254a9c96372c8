package telegram

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/jxucoder/telerelay/internal/session"
	"github.com/jxucoder/telerelay/internal/token"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type memStore struct {
	mu     sync.Mutex
	byChat map[int64][]byte
	err    error
}

func newMemStore() *memStore {
	return &memStore{byChat: make(map[int64][]byte)}
}

func (s *memStore) CreateSession(_ context.Context, tok []byte, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.byChat[chatID] = append([]byte(nil), tok...)
	return nil
}

func (s *memStore) DeleteSession(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	delete(s.byChat, chatID)
	return nil
}

func (s *memStore) FindTokenByChat(_ context.Context, chatID int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	tok, ok := s.byChat[chatID]
	if !ok {
		return nil, session.ErrNotFound
	}
	return tok, nil
}

type sentMessage struct {
	chatID int64
	text   string
}

type stubSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (s *stubSender) SendMessage(_ context.Context, chatID int64, text string) (*tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.sent = append(s.sent, sentMessage{chatID: chatID, text: text})
	return &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}, Text: text}, nil
}

func (s *stubSender) last(t *testing.T) sentMessage {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		t.Fatal("nothing sent")
	}
	return s.sent[len(s.sent)-1]
}

func (s *stubSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// seqTokens returns tokens filled with 1, 2, 3, ...
type seqTokens struct {
	n   byte
	err error
}

func (s *seqTokens) NewToken() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.n++
	return bytes.Repeat([]byte{s.n}, token.Size), nil
}

func textUpdate(id int, chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: id,
		Message: &tgbotapi.Message{
			Chat: &tgbotapi.Chat{ID: chatID},
			Text: text,
		},
	}
}

type botFixture struct {
	bot    *Bot
	store  *memStore
	sender *stubSender
	tokens *seqTokens
	hook   *test.Hook
}

func newBotFixture() *botFixture {
	logger, hook := test.NewNullLogger()
	f := &botFixture{
		store:  newMemStore(),
		sender: &stubSender{},
		tokens: &seqTokens{},
		hook:   hook,
	}
	f.bot = NewBot(f.store, f.sender, f.tokens, logger)
	return f
}

// ---------------------------------------------------------------------------
// /start
// ---------------------------------------------------------------------------

func TestBot_StartIssuesToken(t *testing.T) {
	f := newBotFixture()
	ctx := context.Background()

	f.bot.HandleUpdate(ctx, textUpdate(1, 42, "/start"))

	tok, err := f.store.FindTokenByChat(ctx, 42)
	if err != nil {
		t.Fatalf("expected session for chat 42: %v", err)
	}
	reply := f.sender.last(t)
	if reply.chatID != 42 {
		t.Fatalf("reply chat = %d, want 42", reply.chatID)
	}
	if !strings.HasPrefix(reply.text, "generated token") || !strings.Contains(reply.text, token.Encode(tok)) {
		t.Fatalf("unexpected reply: %q", reply.text)
	}
}

func TestBot_StartKeepsExistingToken(t *testing.T) {
	f := newBotFixture()
	ctx := context.Background()

	f.bot.HandleUpdate(ctx, textUpdate(1, 42, "/start"))
	first, _ := f.store.FindTokenByChat(ctx, 42)

	f.bot.HandleUpdate(ctx, textUpdate(2, 42, "/start"))
	second, _ := f.store.FindTokenByChat(ctx, 42)

	if !bytes.Equal(first, second) {
		t.Fatal("second /start replaced the token")
	}
	reply := f.sender.last(t)
	if !strings.HasPrefix(reply.text, "token already exist") || !strings.Contains(reply.text, token.Encode(first)) {
		t.Fatalf("unexpected reply: %q", reply.text)
	}
}

// ---------------------------------------------------------------------------
// /stop, /show_token, /update_token, /help
// ---------------------------------------------------------------------------

func TestBot_StopRemovesSession(t *testing.T) {
	f := newBotFixture()
	ctx := context.Background()

	f.bot.HandleUpdate(ctx, textUpdate(1, 7, "/start"))
	f.bot.HandleUpdate(ctx, textUpdate(2, 7, "/stop"))

	if _, err := f.store.FindTokenByChat(ctx, 7); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after /stop, got %v", err)
	}
	if !strings.Contains(f.sender.last(t).text, "Deleted token") {
		t.Fatalf("unexpected reply: %q", f.sender.last(t).text)
	}
}

func TestBot_ShowToken(t *testing.T) {
	f := newBotFixture()
	ctx := context.Background()

	f.bot.HandleUpdate(ctx, textUpdate(1, 7, "/show_token"))
	if !strings.HasPrefix(f.sender.last(t).text, "Token not found") {
		t.Fatalf("unexpected reply: %q", f.sender.last(t).text)
	}

	f.bot.HandleUpdate(ctx, textUpdate(2, 7, "/start"))
	tok, _ := f.store.FindTokenByChat(ctx, 7)

	f.bot.HandleUpdate(ctx, textUpdate(3, 7, "/show_token"))
	if !strings.Contains(f.sender.last(t).text, token.Encode(tok)) {
		t.Fatalf("reply should contain token: %q", f.sender.last(t).text)
	}
}

func TestBot_UpdateTokenRotates(t *testing.T) {
	f := newBotFixture()
	ctx := context.Background()

	f.bot.HandleUpdate(ctx, textUpdate(1, 9, "/start"))
	before, _ := f.store.FindTokenByChat(ctx, 9)

	f.bot.HandleUpdate(ctx, textUpdate(2, 9, "/update_token"))
	after, _ := f.store.FindTokenByChat(ctx, 9)

	if bytes.Equal(before, after) {
		t.Fatal("token was not rotated")
	}
	reply := f.sender.last(t)
	if !strings.HasPrefix(reply.text, "new token") || !strings.Contains(reply.text, token.Encode(after)) {
		t.Fatalf("unexpected reply: %q", reply.text)
	}
}

func TestBot_UpdateTokenWithoutSession(t *testing.T) {
	f := newBotFixture()
	ctx := context.Background()

	f.bot.HandleUpdate(ctx, textUpdate(1, 9, "/update_token"))
	if _, err := f.store.FindTokenByChat(ctx, 9); err != nil {
		t.Fatalf("expected a session after /update_token: %v", err)
	}
}

func TestBot_HelpListsCommands(t *testing.T) {
	f := newBotFixture()

	f.bot.HandleUpdate(context.Background(), textUpdate(1, 3, "/help"))

	text := f.sender.last(t).text
	for _, c := range f.bot.Commands().List() {
		if !strings.Contains(text, c.Name+" "+c.Description) {
			t.Errorf("help text missing %q", c.Name)
		}
	}
}

// ---------------------------------------------------------------------------
// Ignored updates and failures
// ---------------------------------------------------------------------------

func TestBot_IgnoresNonCommands(t *testing.T) {
	f := newBotFixture()
	ctx := context.Background()

	updates := []tgbotapi.Update{
		{UpdateID: 1},
		{UpdateID: 2, Message: &tgbotapi.Message{Text: "/start"}},
		textUpdate(3, 1, ""),
		textUpdate(4, 1, "hello"),
		textUpdate(5, 1, "/unknown"),
		textUpdate(6, 1, "/"),
	}
	for _, u := range updates {
		f.bot.HandleUpdate(ctx, u)
	}

	if n := f.sender.count(); n != 0 {
		t.Fatalf("expected no replies, got %d", n)
	}
	if len(f.store.byChat) != 0 {
		t.Fatal("expected no sessions")
	}
}

func TestBot_HandlerErrorsAreLogged(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *botFixture)
	}{
		{name: "store failure", setup: func(f *botFixture) {
			f.store.err = &session.StorageError{Op: "find token", Err: errors.New("disk I/O error")}
		}},
		{name: "random source failure", setup: func(f *botFixture) { f.tokens.err = token.ErrRandomSource }},
		{name: "send failure", setup: func(f *botFixture) {
			f.sender.err = &UpstreamError{Method: "sendMessage", Kind: KindAPI, Code: 403}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newBotFixture()
			tt.setup(f)

			f.bot.HandleUpdate(context.Background(), textUpdate(11, 77, "/start"))

			entry := f.hook.LastEntry()
			if entry == nil || entry.Level != logrus.ErrorLevel {
				t.Fatalf("expected an error log entry, got %+v", entry)
			}
			if entry.Data["chat_id"] != int64(77) || entry.Data["update_id"] != 11 {
				t.Fatalf("log fields = %v", entry.Data)
			}
		})
	}
}

func TestBot_ChatsAreIndependent(t *testing.T) {
	f := newBotFixture()
	ctx := context.Background()

	f.bot.HandleUpdate(ctx, textUpdate(1, 1, "/start"))
	f.bot.HandleUpdate(ctx, textUpdate(2, 2, "/start"))
	f.bot.HandleUpdate(ctx, textUpdate(3, 1, "/stop"))

	if _, err := f.store.FindTokenByChat(ctx, 2); err != nil {
		t.Fatalf("chat 2 lost its session: %v", err)
	}
}
