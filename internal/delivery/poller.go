package delivery

import (
	"context"
	"sort"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// UpdateFetcher long-polls Telegram for updates.
type UpdateFetcher interface {
	GetUpdates(ctx context.Context, offset, timeout int) ([]tgbotapi.Update, error)
}

// UpdateHandler processes one update. It must not fail the batch.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, upd tgbotapi.Update)
}

// PollerConfig tunes the long-poll loop.
type PollerConfig struct {
	Timeout    int           // long-poll hint in seconds
	RetryDelay time.Duration // sleep after a failed fetch
	EmptyLimit int           // consecutive empty polls before exiting
}

// Poller runs the getUpdates loop. Only one Run may be active at a time; the
// Coordinator enforces this.
type Poller struct {
	fetcher UpdateFetcher
	handler UpdateHandler
	cfg     PollerConfig
	log     logrus.FieldLogger

	mu     sync.Mutex
	cursor int
}

// NewPoller creates a Poller starting at cursor 0.
func NewPoller(fetcher UpdateFetcher, handler UpdateHandler, cfg PollerConfig, log logrus.FieldLogger) *Poller {
	if cfg.EmptyLimit < 1 {
		cfg.EmptyLimit = 1
	}
	return &Poller{fetcher: fetcher, handler: handler, cfg: cfg, log: log}
}

// Cursor returns the offset of the next update to request.
func (p *Poller) Cursor() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

func (p *Poller) advance(next int) {
	p.mu.Lock()
	if next > p.cursor {
		p.cursor = next
	}
	p.mu.Unlock()
}

// Run polls until EmptyLimit consecutive polls return nothing, then returns
// nil. It returns ctx.Err() if ctx is done first. Fetch errors are logged and
// retried after RetryDelay without counting as empty polls.
func (p *Poller) Run(ctx context.Context) error {
	empty := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		updates, err := p.fetcher.GetUpdates(ctx, p.Cursor(), p.cfg.Timeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log.WithError(err).WithField("cursor", p.Cursor()).Warn("Fetching updates failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.cfg.RetryDelay):
			}
			continue
		}

		if len(updates) == 0 {
			empty++
			p.log.WithField("empty_polls", empty).Debug("No updates")
			if empty >= p.cfg.EmptyLimit {
				return nil
			}
			continue
		}
		empty = 0

		p.process(ctx, updates)
	}
}

// process dispatches a batch in ascending update_id order, then moves the
// cursor past the highest id seen.
func (p *Poller) process(ctx context.Context, updates []tgbotapi.Update) {
	sort.SliceStable(updates, func(i, j int) bool {
		return updates[i].UpdateID < updates[j].UpdateID
	})

	for _, upd := range updates {
		p.handler.HandleUpdate(ctx, upd)
	}

	last := updates[len(updates)-1].UpdateID
	p.advance(last + 1)
	p.log.WithFields(logrus.Fields{"count": len(updates), "cursor": last + 1}).Debug("Processed updates")
}
