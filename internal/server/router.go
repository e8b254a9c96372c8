package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/jxucoder/telerelay/internal/config"
	"github.com/jxucoder/telerelay/internal/delivery"
	"github.com/jxucoder/telerelay/internal/session"
	"github.com/jxucoder/telerelay/internal/telegram"
	"github.com/jxucoder/telerelay/internal/token"
)

// SecretHeader carries the webhook secret on Telegram deliveries.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// maxBodyBytes bounds webhook and relay request bodies.
const maxBodyBytes = 1 << 20

// SessionFinder resolves relay tokens to chats.
type SessionFinder interface {
	FindChatByToken(ctx context.Context, token []byte) (int64, error)
}

// WebhookIngress accepts push deliveries.
type WebhookIngress interface {
	Deliver(ctx context.Context, secretHeader string, upd tgbotapi.Update) bool
}

// ModeReporter exposes the current delivery mode.
type ModeReporter interface {
	Mode() delivery.Mode
}

// Deps are the collaborators behind the HTTP routes.
type Deps struct {
	Sessions SessionFinder
	Sender   telegram.Sender
	Ingress  WebhookIngress
	Modes    ModeReporter
}

type routes struct {
	Deps
	log logrus.FieldLogger
}

// NewRouter builds the HTTP handler.
func NewRouter(d Deps, cfg config.ServerConfig, log logrus.FieldLogger) http.Handler {
	rt := &routes{Deps: d, log: log}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: log, NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Hello, World!"))
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/status", rt.handleStatus)
	r.Get("/scripts/notify-me.js", handleScript)

	r.Post("/webhook", rt.handleWebhook)
	r.Post("/send-message", rt.handleSendMessage)

	return r
}

// --- Request/Response types ---

// Relay status strings.
const (
	StatusOK           = "OK"
	StatusBadRequest   = "BAD_REQUEST"
	StatusUnauthorized = "UNAUTHORIZED"
	StatusServerError  = "SERVER_ERROR"
)

type sendMessageRequest struct {
	Token   string `json:"token"`
	Message string `json:"message"`
}

type relayResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type statusResponse struct {
	Mode string `json:"mode"`
}

// --- Handlers ---

func (rt *routes) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var upd tgbotapi.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&upd); err != nil {
		rt.log.WithError(err).Warn("Malformed webhook body")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	rt.Ingress.Deliver(r.Context(), r.Header.Get(SecretHeader), upd)
	w.WriteHeader(http.StatusOK)
}

func (rt *routes) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeRelay(w, http.StatusBadRequest, StatusBadRequest, "invalid request body")
		return
	}

	tok, err := token.Decode(req.Token)
	if err != nil {
		writeRelay(w, http.StatusBadRequest, StatusBadRequest, "Failed base64 decode token")
		return
	}

	chatID, err := rt.Sessions.FindChatByToken(r.Context(), tok)
	if errors.Is(err, session.ErrNotFound) {
		writeRelay(w, http.StatusUnauthorized, StatusUnauthorized, "token not found")
		return
	}
	if err != nil {
		rt.log.WithError(err).Error("Looking up relay token failed")
		writeRelay(w, http.StatusInternalServerError, StatusServerError, "")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeRelay(w, http.StatusBadRequest, StatusBadRequest, "message is empty")
		return
	}

	if _, err := rt.Sender.SendMessage(r.Context(), chatID, req.Message); err != nil {
		rt.log.WithError(err).WithField("chat_id", chatID).Error("Relaying message failed")
		writeRelay(w, http.StatusBadGateway, StatusServerError, "failed to deliver message")
		return
	}

	writeJSON(w, http.StatusOK, relayResponse{Status: StatusOK})
}

func (rt *routes) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Mode: rt.Modes.Mode().String()})
}

func handleScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/javascript")
	w.Write([]byte(notifyMeScript))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeRelay(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, relayResponse{Status: code, Message: msg})
}
