package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"narrative-companion/internal/engine/idempotency"
	"narrative-companion/internal/pkg/metrics"
)

// Replayer drains the writer's offline queue.
type Replayer interface {
	Replay(ctx context.Context) (int, error)
}

// Janitor runs the periodic housekeeping jobs: ledger pruning and
// offline queue replay.
type Janitor struct {
	ledger   idempotency.Ledger
	ttl      time.Duration
	replayer Replayer
	metrics  *metrics.Metrics
	timeout  time.Duration
	now      func() time.Time

	cron *cron.Cron
}

// NewJanitor creates a janitor. Records older than ttl are pruned.
func NewJanitor(ledger idempotency.Ledger, ttl time.Duration, replayer Replayer, m *metrics.Metrics) *Janitor {
	return &Janitor{
		ledger:   ledger,
		ttl:      ttl,
		replayer: replayer,
		metrics:  m,
		timeout:  time.Minute,
		now:      time.Now,
	}
}

// PruneLedger drops ledger records older than the TTL.
func (j *Janitor) PruneLedger(ctx context.Context) (int, error) {
	n, err := j.ledger.Prune(ctx, j.now().Add(-j.ttl))
	if err != nil {
		return 0, fmt.Errorf("failed to prune ledger: %w", err)
	}
	j.metrics.Pruned(n)
	if n > 0 {
		log.Info().Int("pruned", n).Msg("Transaction ledger pruned")
	}
	return n, nil
}

// ReplayOffline retries the changesets that exhausted their retries.
func (j *Janitor) ReplayOffline(ctx context.Context) (int, error) {
	if j.replayer == nil {
		return 0, nil
	}
	return j.replayer.Replay(ctx)
}

// Start schedules both jobs with standard cron specs.
func (j *Janitor) Start(pruneSchedule, replaySchedule string) error {
	c := cron.New()

	if _, err := c.AddFunc(pruneSchedule, j.run("prune", func(ctx context.Context) error {
		_, err := j.PruneLedger(ctx)
		return err
	})); err != nil {
		return fmt.Errorf("failed to schedule ledger pruning: %w", err)
	}

	if _, err := c.AddFunc(replaySchedule, j.run("replay", func(ctx context.Context) error {
		_, err := j.ReplayOffline(ctx)
		return err
	})); err != nil {
		return fmt.Errorf("failed to schedule offline replay: %w", err)
	}

	j.cron = c
	c.Start()
	log.Info().
		Str("prune", pruneSchedule).
		Str("replay", replaySchedule).
		Msg("Janitor started")
	return nil
}

func (j *Janitor) run(name string, job func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
		defer cancel()
		if err := job(ctx); err != nil {
			log.Error().Err(err).Str("job", name).Msg("Janitor job failed")
		}
	}
}

// Stop waits for running jobs to finish.
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
	j.cron = nil
	log.Info().Msg("Janitor stopped")
}
