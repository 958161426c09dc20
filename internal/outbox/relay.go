// Package outbox relays durable outbox rows to NATS JetStream.
package outbox

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/capitalize-ai/guided-resolution/internal/model"
	"github.com/capitalize-ai/guided-resolution/pkg/logger"
	"github.com/capitalize-ai/guided-resolution/pkg/metrics"
)

// Repo is the outbox persistence the relay needs.
type Repo interface {
	ClaimDueOutbox(ctx context.Context, now time.Time, limit int) ([]model.OutboxMessage, error)
	MarkOutboxSent(ctx context.Context, id string, now time.Time) error
	FailOutbox(ctx context.Context, id, errMsg string, nextAttemptAt, now time.Time) error
	RequeueStaleOutbox(ctx context.Context, staleBefore, now time.Time) (int, error)
}

// Publisher delivers one message. msgID identifies the outbox row.
type Publisher interface {
	Publish(ctx context.Context, subject, msgID string, data []byte) (uint64, error)
}

// Config tunes the relay loop.
type Config struct {
	PollInterval   time.Duration
	BatchSize      int
	StaleThreshold time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c *Config) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 25
	}
	if c.StaleThreshold <= 0 {
		c.StaleThreshold = 5 * time.Minute
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 10 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Minute
	}
}

// Relay periodically claims due outbox messages and publishes them.
type Relay struct {
	repo   Repo
	pub    Publisher
	cfg    Config
	logger *logger.Logger
	now    func() time.Time
}

// NewRelay creates a relay.
func NewRelay(repo Repo, pub Publisher, cfg Config, log *logger.Logger) *Relay {
	cfg.defaults()
	if log == nil {
		log = logger.NewNop()
	}
	return &Relay{
		repo:   repo,
		pub:    pub,
		cfg:    cfg,
		logger: log.Named("outbox"),
		now:    time.Now,
	}
}

// RecoverStale requeues messages left in sending by a crashed relay. Call
// it once before Run.
func (r *Relay) RecoverStale(ctx context.Context) error {
	now := r.now()
	n, err := r.repo.RequeueStaleOutbox(ctx, now.Add(-r.cfg.StaleThreshold), now)
	if err != nil {
		return err
	}
	if n > 0 {
		r.logger.Info("Requeued stale outbox messages", zap.Int("count", n))
	}
	return nil
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("Starting outbox relay", zap.Duration("poll_interval", r.cfg.PollInterval))

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopping outbox relay")
			return nil
		case <-ticker.C:
			r.Poll(ctx)
		}
	}
}

// Poll claims and publishes one batch. It returns the number of messages
// published successfully.
func (r *Relay) Poll(ctx context.Context) int {
	now := r.now()
	msgs, err := r.repo.ClaimDueOutbox(ctx, now, r.cfg.BatchSize)
	if err != nil {
		r.logger.Error("Outbox claim failed", zap.Error(err))
		return 0
	}

	sent := 0
	for _, msg := range msgs {
		if _, err := r.pub.Publish(ctx, msg.Subject, msg.ID, msg.Payload); err != nil {
			next := now.Add(r.retryDelay(msg.Attempts))
			r.logger.Warn("Outbox publish failed",
				zap.String("id", msg.ID),
				zap.String("subject", msg.Subject),
				zap.Int("attempts", msg.Attempts+1),
				zap.Time("next_attempt_at", next),
				zap.Error(err),
			)
			metrics.OutboxPublished.WithLabelValues(string(msg.Kind), "error").Inc()
			if err := r.repo.FailOutbox(ctx, msg.ID, err.Error(), next, now); err != nil {
				r.logger.Error("Outbox fail bookkeeping failed", zap.String("id", msg.ID), zap.Error(err))
			}
			continue
		}

		metrics.OutboxPublished.WithLabelValues(string(msg.Kind), "ok").Inc()
		if err := r.repo.MarkOutboxSent(ctx, msg.ID, r.now()); err != nil {
			r.logger.Error("Outbox mark sent failed", zap.String("id", msg.ID), zap.Error(err))
			continue
		}
		sent++
		r.logger.Debug("Outbox message published", zap.String("id", msg.ID), zap.String("subject", msg.Subject))
	}
	return sent
}

// retryDelay is the wait before attempt number attempts+1: InitialBackoff
// doubled per prior attempt, capped at MaxBackoff.
func (r *Relay) retryDelay(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialBackoff
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = r.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.NextBackOff()
	for i := 0; i < attempts; i++ {
		d = b.NextBackOff()
	}
	return d
}
