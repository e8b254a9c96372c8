// Package server wires the relay together and serves its HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jxucoder/telerelay/internal/config"
	"github.com/jxucoder/telerelay/internal/delivery"
	"github.com/jxucoder/telerelay/internal/session"
	"github.com/jxucoder/telerelay/internal/telegram"
	"github.com/jxucoder/telerelay/internal/token"
)

// Server is the telerelay HTTP server plus its update delivery machinery.
type Server struct {
	config      *config.Config
	log         logrus.FieldLogger
	store       *session.Store
	client      *telegram.Client
	bot         *telegram.Bot
	coordinator *delivery.Coordinator
	ingress     *delivery.Ingress
	handler     http.Handler
}

// New creates a Server with all dependencies. The random source and the
// session store are opened here so that startup fails before any traffic.
func New(cfg *config.Config, log logrus.FieldLogger) (*Server, error) {
	tokens, err := token.NewSource()
	if err != nil {
		return nil, fmt.Errorf("initializing random source: %w", err)
	}
	secret, err := tokens.NewWebhookSecret()
	if err != nil {
		return nil, fmt.Errorf("generating webhook secret: %w", err)
	}

	store, err := session.NewStore(cfg.Storage.Path, cfg.Storage.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	client := telegram.NewClient(cfg.Telegram.Token, telegram.WithEndpoint(cfg.Telegram.APIEndpoint))
	bot := telegram.NewBot(store, client, tokens, log.WithField("component", "bot"))

	poller := delivery.NewPoller(client, bot, delivery.PollerConfig{
		Timeout:    cfg.Telegram.PollTimeout,
		RetryDelay: cfg.PollRetryDelay(),
		EmptyLimit: cfg.Telegram.EmptyPollLimit,
	}, log.WithField("component", "poller"))

	coordinator := delivery.NewCoordinator(client, poller, delivery.CoordinatorConfig{
		WebhookURL: cfg.Telegram.WebhookURL,
		Secret:     secret,
		RetryDelay: cfg.PollRetryDelay(),
	}, log.WithField("component", "delivery"))

	ingress := delivery.NewIngress(secret, bot, coordinator, delivery.IngressConfig{
		FastDeliveryGap: cfg.FastDeliveryGap(),
	}, log.WithField("component", "webhook"))

	s := &Server{
		config:      cfg,
		log:         log,
		store:       store,
		client:      client,
		bot:         bot,
		coordinator: coordinator,
		ingress:     ingress,
	}
	s.handler = NewRouter(Deps{
		Sessions: store,
		Sender:   client,
		Ingress:  ingress,
		Modes:    coordinator,
	}, cfg.Server, log)

	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Start registers the bot with Telegram, enters pull mode and serves HTTP
// until ctx is done. The store is closed on return.
func (s *Server) Start(ctx context.Context) error {
	defer s.store.Close()

	s.coordinator.Start(ctx)

	me, err := s.client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("checking bot identity: %w", err)
	}
	s.log.WithField("username", me.UserName).Info("Authorized on Telegram")

	if err := s.client.SetMyCommands(ctx, s.bot.Commands().BotCommands()); err != nil {
		return fmt.Errorf("registering commands: %w", err)
	}
	if err := s.coordinator.SwitchToPull(ctx); err != nil {
		return fmt.Errorf("entering pull mode: %w", err)
	}

	srv := &http.Server{
		Addr:              s.config.Server.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.WithError(err).Warn("HTTP shutdown incomplete")
		}
	}()

	s.log.WithField("addr", s.config.Server.Addr).Info("telerelay listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	// Webhook handlers may still request transitions until Shutdown returns.
	<-shutdownDone
	s.coordinator.Wait()
	return nil
}
