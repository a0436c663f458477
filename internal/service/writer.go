package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"narrative-companion/internal/model"
	"narrative-companion/internal/pkg/metrics"
)

// ChangesetSaver persists one changeset atomically.
type ChangesetSaver interface {
	Save(ctx context.Context, cs model.Changeset) error
}

// WriterConfig holds the writer's timing and retry settings.
type WriterConfig struct {
	Debounce       time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
	Concurrency    int
}

// DefaultWriterConfig returns the standard writer settings.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		Debounce:       750 * time.Millisecond,
		MaxAttempts:    5,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		AttemptTimeout: 5 * time.Second,
		Concurrency:    4,
	}
}

// pendingWrite accumulates the passes of one character between flushes.
type pendingWrite struct {
	dirty     *model.DirtySet
	character model.Character
	items     map[string]model.InventoryItem
	quests    map[string]model.Quest
	journal   []model.JournalEntry
}

func (p *pendingWrite) changeset() model.Changeset {
	cs := model.Changeset{CharacterID: p.dirty.CharacterID}
	if p.dirty.Character {
		c := p.character
		cs.Character = &c
	}
	for _, id := range model.SortedIDs(p.dirty.Items) {
		if it, ok := p.items[id]; ok {
			cs.Items = append(cs.Items, it)
		}
	}
	cs.DeletedItems = model.SortedIDs(p.dirty.DeletedItems)
	for _, id := range model.SortedIDs(p.dirty.Quests) {
		if q, ok := p.quests[id]; ok {
			cs.Quests = append(cs.Quests, q)
		}
	}
	for _, e := range p.journal {
		if _, ok := p.dirty.Journal[e.ID]; ok {
			cs.Journal = append(cs.Journal, e)
		}
	}
	return cs
}

// Writer persists dirty state after a quiet period. Each flush writes one
// changeset per character, several characters at once. A changeset that
// still fails after the retry budget goes to an offline queue that
// Replay drains later; while a character has queued changesets its newer
// ones queue behind them so writes never go out of order.
type Writer struct {
	saver   ChangesetSaver
	cfg     WriterConfig
	metrics *metrics.Metrics

	mu      sync.Mutex
	pending map[string]*pendingWrite
	timer   *time.Timer
	offline []model.Changeset
	closed  bool

	// flushMu serializes flushes and replays.
	flushMu sync.Mutex
}

// NewWriter creates a writer. Zero config values use the defaults.
func NewWriter(saver ChangesetSaver, cfg WriterConfig, m *metrics.Metrics) *Writer {
	def := DefaultWriterConfig()
	if cfg.Debounce <= 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	return &Writer{
		saver:   saver,
		cfg:     cfg,
		metrics: m,
		pending: make(map[string]*pendingWrite),
	}
}

// Enqueue records the outcome of a pass and schedules a flush.
func (w *Writer) Enqueue(dirty *model.DirtySet, character model.Character, items []model.InventoryItem, quests []model.Quest, journal []model.JournalEntry) {
	if dirty == nil || dirty.Empty() {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.pending[dirty.CharacterID]
	if !ok {
		p = &pendingWrite{dirty: model.NewDirtySet(dirty.CharacterID)}
		w.pending[dirty.CharacterID] = p
	}
	p.dirty.Merge(dirty)
	p.character = character
	p.items = make(map[string]model.InventoryItem, len(items))
	for _, it := range items {
		p.items[it.ID] = it
	}
	p.quests = make(map[string]model.Quest, len(quests))
	for _, q := range quests {
		p.quests[q.ID] = q
	}
	p.journal = append(p.journal, journal...)

	if w.timer == nil && !w.closed {
		w.timer = time.AfterFunc(w.cfg.Debounce, w.flushOnTimer)
	}
}

func (w *Writer) flushOnTimer() {
	if err := w.Flush(context.Background()); err != nil {
		log.Error().Err(err).Msg("Debounced flush left changesets in the offline queue")
	}
}

// Pending returns the number of characters waiting for a flush.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Offline returns the number of queued changesets.
func (w *Writer) Offline() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.offline)
}

// Flush writes everything pending now. It returns the joined errors of
// the changesets that were moved to the offline queue.
func (w *Writer) Flush(ctx context.Context) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[string]*pendingWrite)
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	queuedBehind := make(map[string]bool)
	for _, cs := range w.offline {
		queuedBehind[cs.CharacterID] = true
	}
	w.mu.Unlock()

	var (
		g        errgroup.Group
		failMu   sync.Mutex
		failures []error
	)
	g.SetLimit(w.cfg.Concurrency)

	for id, p := range batch {
		cs := p.changeset()
		if cs.Empty() {
			continue
		}
		if queuedBehind[id] {
			w.queueOffline(cs)
			w.metrics.Flush("queued")
			continue
		}
		g.Go(func() error {
			if err := w.saveWithRetry(ctx, cs); err != nil {
				w.queueOffline(cs)
				w.metrics.Flush("failed")
				log.Error().Err(err).
					Str("character_id", cs.CharacterID).
					Msg("Persistence retries exhausted, changeset queued for replay")
				failMu.Lock()
				failures = append(failures, err)
				failMu.Unlock()
				return nil
			}
			w.metrics.Flush("ok")
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(failures...)
}

// Replay retries queued changesets in order. A character whose oldest
// changeset still fails keeps the rest of its queue. It returns the
// number of changesets written.
func (w *Writer) Replay(ctx context.Context) (int, error) {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	queue := w.offline
	w.offline = nil
	w.mu.Unlock()

	if len(queue) == 0 {
		return 0, nil
	}

	var (
		written  int
		failures []error
		keep     []model.Changeset
		blocked  = make(map[string]bool)
	)
	for _, cs := range queue {
		if blocked[cs.CharacterID] || ctx.Err() != nil {
			keep = append(keep, cs)
			continue
		}
		if err := w.saveWithRetry(ctx, cs); err != nil {
			blocked[cs.CharacterID] = true
			keep = append(keep, cs)
			failures = append(failures, err)
			continue
		}
		written++
	}

	w.mu.Lock()
	w.offline = append(keep, w.offline...)
	depth := len(w.offline)
	w.mu.Unlock()
	w.metrics.SetOfflineQueue(depth)

	log.Info().
		Int("written", written).
		Int("remaining", depth).
		Msg("Offline queue replayed")

	if ctx.Err() != nil {
		failures = append(failures, ctx.Err())
	}
	return written, errors.Join(failures...)
}

// Close stops the debounce timer and flushes what is pending.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
	return w.Flush(ctx)
}

func (w *Writer) queueOffline(cs model.Changeset) {
	w.mu.Lock()
	w.offline = append(w.offline, cs)
	depth := len(w.offline)
	w.mu.Unlock()
	w.metrics.SetOfflineQueue(depth)
}

// saveWithRetry makes up to MaxAttempts attempts with exponential
// backoff, each bounded by AttemptTimeout.
func (w *Writer) saveWithRetry(ctx context.Context, cs model.Changeset) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.InitialBackoff
	b.MaxInterval = w.cfg.MaxBackoff
	b.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, w.cfg.AttemptTimeout)
		defer cancel()
		return w.saver.Save(attemptCtx, cs)
	}
	notify := func(err error, next time.Duration) {
		w.metrics.Retry()
		log.Warn().Err(err).
			Str("character_id", cs.CharacterID).
			Int("attempt", attempt).
			Dur("next_in", next).
			Msg("Persistence attempt failed, retrying")
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(w.cfg.MaxAttempts-1)), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return fmt.Errorf("failed to persist character %s after %d attempts: %w", cs.CharacterID, attempt, err)
	}
	return nil
}
