// Package telegram talks to the Telegram Bot API and turns inbound updates
// into bot commands.
//
// Client issues JSON RPCs and never retries; Bot parses commands out of
// updates and manages the chat's relay session.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrorKind classifies an UpstreamError.
type ErrorKind string

const (
	// KindTransport covers connection, TLS and body read failures.
	KindTransport ErrorKind = "transport"
	// KindDecode covers bodies that are not a valid Bot API envelope or result.
	KindDecode ErrorKind = "decode"
	// KindAPI covers envelopes with ok=false or a missing result.
	KindAPI ErrorKind = "api"
)

// UpstreamError is returned by every Client call that did not yield a result.
// Its message never contains the bot token.
type UpstreamError struct {
	Method      string
	Kind        ErrorKind
	Code        int    // Bot API error_code, or HTTP status for decode errors
	Description string // Bot API description
	Err         error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("telegram %s: %s error", e.Method, e.Kind)
	if e.Code != 0 {
		msg += fmt.Sprintf(" (%d)", e.Code)
	}
	if e.Description != "" {
		msg += ": " + e.Description
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Client is a minimal Bot API client. It is safe for concurrent use.
type Client struct {
	token    string
	endpoint string
	http     tgbotapi.HTTPClient
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithEndpoint sets the URL pattern; it receives the token and the method name.
func WithEndpoint(pattern string) ClientOption {
	return func(c *Client) { c.endpoint = pattern }
}

// WithHTTPClient replaces the HTTP client used for calls.
func WithHTTPClient(h tgbotapi.HTTPClient) ClientOption {
	return func(c *Client) { c.http = h }
}

// NewClient creates a Client for the bot identified by token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:    token,
		endpoint: tgbotapi.APIEndpoint,
		http:     &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// pollGrace is added to the long-poll hint to bound a stalled getUpdates call.
const pollGrace = 30 * time.Second

// allowedUpdates restricts both delivery paths to plain messages.
var allowedUpdates = []string{"message"}

type sendMessageParams struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type getUpdatesParams struct {
	Offset         int      `json:"offset,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

type setWebhookParams struct {
	URL            string   `json:"url"`
	SecretToken    string   `json:"secret_token"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

type setMyCommandsParams struct {
	Commands []tgbotapi.BotCommand `json:"commands"`
}

// GetMe returns the bot's own user record.
func (c *Client) GetMe(ctx context.Context) (*tgbotapi.User, error) {
	var user tgbotapi.User
	if err := c.call(ctx, "getMe", struct{}{}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SendMessage sends plain text to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (*tgbotapi.Message, error) {
	var msg tgbotapi.Message
	if err := c.call(ctx, "sendMessage", sendMessageParams{ChatID: chatID, Text: text}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SetMyCommands registers the bot's command list with Telegram.
func (c *Client) SetMyCommands(ctx context.Context, commands []tgbotapi.BotCommand) error {
	var ok bool
	return c.call(ctx, "setMyCommands", setMyCommandsParams{Commands: commands}, &ok)
}

// SetWebhook points Telegram at webhookURL; deliveries carry secret in the
// X-Telegram-Bot-Api-Secret-Token header.
func (c *Client) SetWebhook(ctx context.Context, webhookURL, secret string) error {
	var ok bool
	return c.call(ctx, "setWebhook", setWebhookParams{
		URL:            webhookURL,
		SecretToken:    secret,
		AllowedUpdates: allowedUpdates,
	}, &ok)
}

// DeleteWebhook removes the webhook so getUpdates can be used.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	var ok bool
	return c.call(ctx, "deleteWebhook", struct{}{}, &ok)
}

// GetUpdates long-polls for updates with update_id >= offset. timeout is the
// long-poll hint in seconds.
func (c *Client) GetUpdates(ctx context.Context, offset, timeout int) ([]tgbotapi.Update, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second+pollGrace)
	defer cancel()

	var updates []tgbotapi.Update
	err := c.call(ctx, "getUpdates", getUpdatesParams{
		Offset:         offset,
		Timeout:        timeout,
		AllowedUpdates: allowedUpdates,
	}, &updates)
	if err != nil {
		return nil, err
	}
	return updates, nil
}

// call POSTs params as JSON and decodes the envelope's result into result.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return &UpstreamError{Method: method, Kind: KindDecode, Err: fmt.Errorf("encoding params: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf(c.endpoint, c.token, method), bytes.NewReader(body))
	if err != nil {
		return &UpstreamError{Method: method, Kind: KindTransport, Err: redact(err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &UpstreamError{Method: method, Kind: KindTransport, Err: redact(err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &UpstreamError{Method: method, Kind: KindTransport, Err: redact(err)}
	}

	var envelope tgbotapi.APIResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return &UpstreamError{Method: method, Kind: KindDecode, Code: resp.StatusCode, Err: err}
	}
	if !envelope.Ok {
		return &UpstreamError{
			Method:      method,
			Kind:        KindAPI,
			Code:        envelope.ErrorCode,
			Description: envelope.Description,
			Err:         &tgbotapi.Error{Code: envelope.ErrorCode, Message: envelope.Description},
		}
	}
	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return &UpstreamError{Method: method, Kind: KindAPI, Description: "response has no result"}
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return &UpstreamError{Method: method, Kind: KindDecode, Code: resp.StatusCode, Err: err}
	}
	return nil
}

// redact drops the request URL, which embeds the bot token, from transport errors.
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s request: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
