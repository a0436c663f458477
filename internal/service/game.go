// Package service hosts the update engine: it serializes work per
// character, keeps the live snapshot, and hands results to persistence
// and notification publishing.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"narrative-companion/internal/engine"
	"narrative-companion/internal/engine/leveling"
	"narrative-companion/internal/model"
	"narrative-companion/internal/notify"
	"narrative-companion/internal/pkg/lock"
)

// Common errors for game operations.
var (
	ErrInsufficientGold       = errors.New("not enough gold")
	ErrInsufficientPerkPoints = errors.New("not enough perk points")
	ErrItemNotFound           = errors.New("the merchant does not sell that")
	ErrInvalidQuantity        = errors.New("invalid quantity: must be positive")
	ErrUnknownPerk            = errors.New("unknown perk")
	ErrPerkMaxRank            = errors.New("perk is already at its highest rank")
	ErrInvalidRestDuration    = errors.New("rest must last between 1 and 24 hours")
)

// SnapshotLoader loads the persisted state of a character.
type SnapshotLoader interface {
	Load(ctx context.Context, characterID string) (engine.Snapshot, error)
}

// LevelUpStore persists leveling state.
type LevelUpStore interface {
	Load(ctx context.Context, characterID string) (leveling.State, error)
	Save(ctx context.Context, characterID string, st leveling.State) error
}

// Enqueuer receives the dirty state of a finished pass.
type Enqueuer interface {
	Enqueue(dirty *model.DirtySet, character model.Character, items []model.InventoryItem, quests []model.Quest, journal []model.JournalEntry)
}

// GameService runs update passes and player actions. Work for one
// character is serialized; different characters run concurrently.
type GameService struct {
	engine      *engine.Engine
	loader      SnapshotLoader
	levelUps    LevelUpStore
	writer      Enqueuer
	publisher   notify.Publisher
	lock        *lock.CharacterLock
	lockTimeout time.Duration
	now         func() time.Time
	newID       func() string

	mu   sync.Mutex
	live map[string]engine.Snapshot
}

// NewGameService creates a new GameService instance.
func NewGameService(
	eng *engine.Engine,
	loader SnapshotLoader,
	levelUps LevelUpStore,
	writer Enqueuer,
	publisher notify.Publisher,
	characterLock *lock.CharacterLock,
	lockTimeout time.Duration,
) *GameService {
	if publisher == nil {
		publisher = notify.NewLogPublisher()
	}
	if characterLock == nil {
		characterLock = lock.NewCharacterLock()
	}
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &GameService{
		engine:      eng,
		loader:      loader,
		levelUps:    levelUps,
		writer:      writer,
		publisher:   publisher,
		lock:        characterLock,
		lockTimeout: lockTimeout,
		now:         time.Now,
		newID:       uuid.NewString,
		live:        make(map[string]engine.Snapshot),
	}
}

// Engine returns the underlying engine.
func (s *GameService) Engine() *engine.Engine { return s.engine }

// Apply runs one game master update for a character.
func (s *GameService) Apply(ctx context.Context, characterID string, u model.Update) (*engine.Result, error) {
	var res *engine.Result
	err := s.lock.WithLockContext(ctx, characterID, s.lockTimeout, func() error {
		var err error
		res, err = s.applyLocked(ctx, characterID, u)
		return err
	})
	return res, err
}

// Snapshot returns the live state of a character.
func (s *GameService) Snapshot(ctx context.Context, characterID string) (engine.Snapshot, error) {
	var snap engine.Snapshot
	err := s.lock.WithLockContext(ctx, characterID, s.lockTimeout, func() error {
		var err error
		snap, err = s.snapshotLocked(ctx, characterID)
		return err
	})
	return snap, err
}

// Forget drops the live state of a character; the next call reloads it.
func (s *GameService) Forget(characterID string) {
	s.mu.Lock()
	delete(s.live, characterID)
	s.mu.Unlock()
	s.engine.Rest().Forget(characterID)
}

func (s *GameService) applyLocked(ctx context.Context, characterID string, u model.Update) (*engine.Result, error) {
	snap, err := s.snapshotLocked(ctx, characterID)
	if err != nil {
		return nil, err
	}

	before := s.engine.Leveling().Snapshot(characterID)
	res, err := s.engine.Apply(ctx, snap, u)
	if err != nil {
		return nil, err
	}

	s.commit(ctx, characterID, before, commitSet{
		snapshot:      engine.Snapshot{Character: res.Character, Items: res.Items, Quests: res.Quests},
		dirty:         res.Dirty,
		journal:       res.Journal,
		notifications: res.Notifications,
	})
	return res, nil
}

// snapshotLocked returns the live snapshot, loading it and the leveling
// state on first use. Callers hold the character lock.
func (s *GameService) snapshotLocked(ctx context.Context, characterID string) (engine.Snapshot, error) {
	s.mu.Lock()
	snap, ok := s.live[characterID]
	s.mu.Unlock()
	if ok {
		return snap, nil
	}

	snap, err := s.loader.Load(ctx, characterID)
	if err != nil {
		return engine.Snapshot{}, fmt.Errorf("failed to load character %s: %w", characterID, err)
	}

	if s.levelUps != nil {
		st, err := s.levelUps.Load(ctx, characterID)
		if err != nil {
			return engine.Snapshot{}, fmt.Errorf("failed to load level-up state: %w", err)
		}
		s.engine.Leveling().Restore(characterID, st)
	}

	s.mu.Lock()
	s.live[characterID] = snap
	s.mu.Unlock()
	return snap, nil
}

// commitSet is everything a pass or action produced.
type commitSet struct {
	snapshot      engine.Snapshot
	dirty         *model.DirtySet
	journal       []model.JournalEntry
	notifications []model.Notification
}

// commit stores the new live snapshot, hands the dirty state to the
// writer, saves changed leveling state and publishes notifications.
// Persistence and publishing failures are logged, never returned: the
// pass already happened.
func (s *GameService) commit(ctx context.Context, characterID string, before leveling.State, c commitSet) {
	s.mu.Lock()
	s.live[characterID] = c.snapshot
	s.mu.Unlock()

	if s.writer != nil && c.dirty != nil {
		s.writer.Enqueue(c.dirty, c.snapshot.Character, c.snapshot.Items, c.snapshot.Quests, c.journal)
	}

	after := s.engine.Leveling().Snapshot(characterID)
	if s.levelUps != nil && !sameLevelingState(before, after) {
		if err := s.levelUps.Save(ctx, characterID, after); err != nil {
			log.Error().Err(err).Str("character_id", characterID).Msg("Failed to save level-up state")
		}
	}

	if len(c.notifications) > 0 {
		if err := s.publisher.Publish(ctx, characterID, c.notifications); err != nil {
			log.Warn().Err(err).Str("character_id", characterID).Msg("Failed to publish notifications")
		}
	}
}

func sameLevelingState(a, b leveling.State) bool {
	return samePending(a.Pending, b.Pending) && samePending(a.Available, b.Available)
}

func samePending(a, b *model.PendingLevelUp) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
