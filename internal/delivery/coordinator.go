package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// WebhookClient sets and clears the bot's webhook.
type WebhookClient interface {
	SetWebhook(ctx context.Context, webhookURL, secret string) error
	DeleteWebhook(ctx context.Context) error
}

// PollLoop is the background loop started on entering pull mode. Run returns
// nil when the loop decides push mode should resume.
type PollLoop interface {
	Run(ctx context.Context) error
}

// CoordinatorConfig holds what setWebhook needs.
type CoordinatorConfig struct {
	WebhookURL string
	Secret     string
	// RetryDelay is the pause before polling resumes after a failed
	// switch back to push.
	RetryDelay time.Duration
}

// Coordinator serializes mode transitions. One mutex covers the mode check,
// the Bot API call and the state write, so duplicate requests collapse into
// one call and opposite requests never overlap.
type Coordinator struct {
	webhooks WebhookClient
	poller   PollLoop
	cfg      CoordinatorConfig
	log      logrus.FieldLogger

	mu   sync.Mutex
	mode Mode

	// runCtx outlives the request that triggered a transition.
	runCtx context.Context
	wg     sync.WaitGroup
}

// NewCoordinator creates a Coordinator in ModeUnspecified.
func NewCoordinator(webhooks WebhookClient, poller PollLoop, cfg CoordinatorConfig, log logrus.FieldLogger) *Coordinator {
	return &Coordinator{
		webhooks: webhooks,
		poller:   poller,
		cfg:      cfg,
		log:      log,
		runCtx:   context.Background(),
	}
}

// Start binds background work (poll loops, requested transitions) to ctx.
// Call it before the first transition.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	c.runCtx = ctx
	c.mu.Unlock()
}

// Mode returns the current delivery mode.
func (c *Coordinator) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SwitchToPush registers the webhook. It does not stop a running poll loop;
// the loop exits on its own.
func (c *Coordinator) SwitchToPush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode == ModePush {
		return nil
	}
	if err := c.webhooks.SetWebhook(ctx, c.cfg.WebhookURL, c.cfg.Secret); err != nil {
		return fmt.Errorf("switching to push: %w", err)
	}
	c.log.WithField("from", c.mode).Info("Delivery mode is now push")
	c.mode = ModePush
	return nil
}

// SwitchToPull clears the webhook and starts one poll loop.
func (c *Coordinator) SwitchToPull(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode == ModePull {
		return nil
	}
	if err := c.webhooks.DeleteWebhook(ctx); err != nil {
		return fmt.Errorf("switching to pull: %w", err)
	}
	c.log.WithField("from", c.mode).Info("Delivery mode is now pull")
	c.mode = ModePull

	c.wg.Add(1)
	go c.runPoller(c.runCtx, uuid.NewString())
	return nil
}

// runPoller supervises one pull mode activation. While the mode stays pull a
// poll loop is running: if the switch back to push fails, polling resumes
// after RetryDelay. Errors are logged and never escape the goroutine.
func (c *Coordinator) runPoller(ctx context.Context, runID string) {
	defer c.wg.Done()
	log := c.log.WithField("run_id", runID)

	for {
		log.Info("Poll loop started")
		if err := c.poller.Run(ctx); err != nil {
			log.WithError(err).Info("Poll loop stopped")
			return
		}

		log.Info("Poll loop idle, switching to push")
		err := c.SwitchToPush(ctx)
		if err == nil {
			return
		}
		log.WithError(err).Error("Switching to push failed, resuming poll loop")

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.RetryDelay):
		}
	}
}

// RequestPull asks for pull mode without waiting for the transition. It does
// nothing once the context passed to Start is done.
func (c *Coordinator) RequestPull() {
	c.mu.Lock()
	ctx := c.runCtx
	c.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.SwitchToPull(ctx); err != nil {
			c.log.WithError(err).Error("Requested switch to pull failed")
		}
	}()
}

// Wait blocks until all background work has returned.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
