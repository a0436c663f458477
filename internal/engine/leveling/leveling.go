// Package leveling tracks experience and the single pending level-up a
// character may have awaiting confirmation.
//
// States per character:
//
//	Idle -> Pending -> Idle (Apply)
//	                -> Idle (Postpone, record kept as Available)
//	Available -> Pending (RequestManual)
//
// A character has at most one Pending and at most one Available record.
package leveling

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"narrative-companion/internal/model"
)

// Defaults for the XP curve and level-up reward.
const (
	DefaultBaseXP       = 800
	DefaultStatIncrease = 10
)

// Attributes a level-up may raise.
const (
	AttributeHealth  = "health"
	AttributeMagicka = "magicka"
	AttributeStamina = "stamina"
)

var (
	// ErrNoPendingLevelUp is returned when there is nothing to confirm.
	ErrNoPendingLevelUp = errors.New("no level-up awaiting confirmation")
	// ErrAlreadyPending is returned when a level-up is already awaiting confirmation.
	ErrAlreadyPending = errors.New("a level-up is already awaiting confirmation")
	// ErrInvalidAttribute is returned for an unknown attribute choice.
	ErrInvalidAttribute = errors.New("invalid attribute")
)

// Curve is a monotonic XP-per-level curve. The cumulative XP needed to
// reach level L is Base*(L-1)*L/2.
type Curve struct {
	Base int
}

// XPForLevel returns the cumulative XP required to reach level.
func (c Curve) XPForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	base := c.Base
	if base <= 0 {
		base = DefaultBaseXP
	}
	return base * (level - 1) * level / 2
}

// LevelForXP returns the highest level reachable with xp.
func (c Curve) LevelForXP(xp int) int {
	level := 1
	for c.XPForLevel(level+1) <= xp {
		level++
	}
	return level
}

// Result is returned by Apply.
type Result struct {
	Applied   model.PendingLevelUp
	Attribute string
	Journal   model.JournalEntry
	// Next is set when the character already has XP for another level.
	Next *model.PendingLevelUp
}

// Tracker holds the pending, available and in-flight state for every
// character. It is an injected state object; tests build their own.
type Tracker struct {
	mu           sync.Mutex
	curve        Curve
	statIncrease int
	pending      map[string]model.PendingLevelUp
	available    map[string]model.PendingLevelUp
	inFlight     map[string]bool
	newID        func() string
	now          func() time.Time
}

// NewTracker creates a tracker. Non-positive values use the defaults.
func NewTracker(baseXP, statIncrease int) *Tracker {
	if baseXP <= 0 {
		baseXP = DefaultBaseXP
	}
	if statIncrease <= 0 {
		statIncrease = DefaultStatIncrease
	}
	return &Tracker{
		curve:        Curve{Base: baseXP},
		statIncrease: statIncrease,
		pending:      make(map[string]model.PendingLevelUp),
		available:    make(map[string]model.PendingLevelUp),
		inFlight:     make(map[string]bool),
		newID:        uuid.NewString,
		now:          time.Now,
	}
}

// Curve returns the tracker's XP curve.
func (t *Tracker) Curve() Curve {
	return t.curve
}

// GainXP adds delta to the character's experience and queues a pending
// level-up when the next threshold is crossed. Negative deltas are
// applied too. It returns the newly queued record, if any.
func (t *Tracker) GainXP(c *model.Character, delta int) *model.PendingLevelUp {
	t.mu.Lock()
	defer t.mu.Unlock()

	previous := c.Experience
	c.Experience += delta
	return t.evaluateLocked(c, previous)
}

func (t *Tracker) evaluateLocked(c *model.Character, previousXP int) *model.PendingLevelUp {
	if _, ok := t.pending[c.ID]; ok {
		return nil
	}
	if t.inFlight[c.ID] {
		return nil
	}
	// a postponed level-up must be consumed before a new one is queued
	if _, ok := t.available[c.ID]; ok {
		return nil
	}
	if c.Experience < t.curve.XPForLevel(c.Level+1) {
		return nil
	}

	p := model.PendingLevelUp{
		CharID:      c.ID,
		CharName:    c.Name,
		NewLevel:    c.Level + 1,
		RemainingXP: c.Experience,
		Archetype:   c.Archetype,
		PreviousXP:  previousXP,
	}
	t.pending[c.ID] = p
	t.inFlight[c.ID] = true
	return &p
}

// Apply confirms the pending level-up, raising the chosen stat maximum
// and granting one perk point.
func (t *Tracker) Apply(c *model.Character, attribute string) (Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.pending[c.ID]
	if !ok {
		return Result{}, ErrNoPendingLevelUp
	}

	attribute = strings.ToLower(strings.TrimSpace(attribute))
	switch attribute {
	case AttributeHealth:
		c.Stats.Health += t.statIncrease
	case AttributeMagicka:
		c.Stats.Magicka += t.statIncrease
	case AttributeStamina:
		c.Stats.Stamina += t.statIncrease
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidAttribute, attribute)
	}

	if p.NewLevel > c.Level {
		c.Level = p.NewLevel
	}
	c.PerkPoints++
	delete(t.pending, c.ID)
	delete(t.inFlight, c.ID)

	res := Result{
		Applied:   p,
		Attribute: attribute,
		Journal: model.JournalEntry{
			ID:          t.newID(),
			CharacterID: c.ID,
			Kind:        model.JournalLevelUp,
			Title:       fmt.Sprintf("Level %d", p.NewLevel),
			Content: fmt.Sprintf("%s reached level %d and chose %s (+%d). One perk point gained.",
				c.Name, p.NewLevel, attribute, t.statIncrease),
			GameTime:  c.Time,
			CreatedAt: t.now(),
		},
	}
	res.Next = t.evaluateLocked(c, c.Experience)
	return res, nil
}

// Postpone moves the pending level-up to Available without granting
// anything. Any earlier Available record is overwritten.
func (t *Tracker) Postpone(characterID string) (model.PendingLevelUp, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.pending[characterID]
	if !ok {
		return model.PendingLevelUp{}, ErrNoPendingLevelUp
	}
	t.available[characterID] = p
	delete(t.pending, characterID)
	delete(t.inFlight, characterID)
	return p, nil
}

// RequestManual resumes a postponed level-up, or synthesizes one at the
// next level from current XP when nothing was postponed.
func (t *Tracker) RequestManual(c *model.Character) (model.PendingLevelUp, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.pending[c.ID]; ok {
		return p, ErrAlreadyPending
	}

	p, ok := t.available[c.ID]
	if ok {
		delete(t.available, c.ID)
	} else {
		p = model.PendingLevelUp{
			CharID:      c.ID,
			CharName:    c.Name,
			NewLevel:    c.Level + 1,
			RemainingXP: c.Experience,
			Archetype:   c.Archetype,
			PreviousXP:  c.Experience,
		}
	}
	t.pending[c.ID] = p
	t.inFlight[c.ID] = true
	return p, nil
}

// Pending returns the record awaiting confirmation.
func (t *Tracker) Pending(characterID string) (model.PendingLevelUp, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[characterID]
	return p, ok
}

// Available returns the postponed record.
func (t *Tracker) Available(characterID string) (model.PendingLevelUp, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.available[characterID]
	return p, ok
}

// State is the persisted leveling state of one character.
type State struct {
	Pending   *model.PendingLevelUp
	Available *model.PendingLevelUp
}

// Snapshot returns the state of a character for persistence.
func (t *Tracker) Snapshot(characterID string) State {
	t.mu.Lock()
	defer t.mu.Unlock()

	var s State
	if p, ok := t.pending[characterID]; ok {
		s.Pending = &p
	}
	if a, ok := t.available[characterID]; ok {
		s.Available = &a
	}
	return s
}

// Restore replaces the state of a character, typically after loading
// it from storage.
func (t *Tracker) Restore(characterID string, s State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.pending, characterID)
	delete(t.available, characterID)
	delete(t.inFlight, characterID)
	if s.Pending != nil {
		t.pending[characterID] = *s.Pending
		t.inFlight[characterID] = true
	}
	if s.Available != nil {
		t.available[characterID] = *s.Available
	}
}
