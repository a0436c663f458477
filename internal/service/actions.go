package service

import (
	"context"
	"fmt"
	"strings"

	"narrative-companion/internal/engine"
	"narrative-companion/internal/engine/leveling"
	"narrative-companion/internal/model"
)

// Rest tuning: eight hours clear all fatigue.
const (
	restFatiguePerHour = 12.5
	restVitalsPerHour  = 25
	maxRestHours       = 24
)

// PerkConfig describes an unlockable perk.
type PerkConfig struct {
	ID          string
	Name        string
	Description string
	MaxRank     int
}

// Perks lists every perk a perk point can buy.
var Perks = map[string]PerkConfig{
	"armsman":        {ID: "armsman", Name: "Armsman", Description: "One-handed weapons do more damage.", MaxRank: 5},
	"overdraw":       {ID: "overdraw", Name: "Overdraw", Description: "Bows do more damage.", MaxRank: 5},
	"agile_defender": {ID: "agile_defender", Name: "Agile Defender", Description: "Light armor gives more protection.", MaxRank: 5},
	"novice_magic":   {ID: "novice_magic", Name: "Novice Magic", Description: "Novice spells cost half as much magicka.", MaxRank: 1},
	"alchemist":      {ID: "alchemist", Name: "Alchemist", Description: "Potions are stronger.", MaxRank: 5},
	"wayfarer":       {ID: "wayfarer", Name: "Wayfarer", Description: "Hunger and thirst grow more slowly.", MaxRank: 1},
}

// LevelUpStatus is what the player can confirm or resume.
type LevelUpStatus struct {
	Pending   *model.PendingLevelUp
	Available *model.PendingLevelUp
}

// actionState is the mutable state of one player action.
type actionState struct {
	char    model.Character
	dirty   *model.DirtySet
	journal []model.JournalEntry
	notes   []model.Notification
}

func (a *actionState) addJournal(e model.JournalEntry) {
	a.journal = append(a.journal, e)
	a.dirty.MarkJournal(e.ID)
}

func (a *actionState) notify(kind, msg string, data map[string]any) {
	a.notes = append(a.notes, model.Notification{Kind: kind, Message: msg, Data: data})
}

// action runs fn on the live character under the character lock and
// commits the result when fn succeeds.
func (s *GameService) action(ctx context.Context, characterID string, fn func(a *actionState) error) error {
	return s.lock.WithLockContext(ctx, characterID, s.lockTimeout, func() error {
		snap, err := s.snapshotLocked(ctx, characterID)
		if err != nil {
			return err
		}

		before := s.engine.Leveling().Snapshot(characterID)
		a := &actionState{char: snap.Character.Clone(), dirty: model.NewDirtySet(characterID)}
		if err := fn(a); err != nil {
			return err
		}

		if a.dirty.Character {
			a.char.UpdatedAt = s.now()
		}
		snap.Character = a.char
		s.commit(ctx, characterID, before, commitSet{
			snapshot:      snap,
			dirty:         a.dirty,
			journal:       a.journal,
			notifications: a.notes,
		})
		return nil
	})
}

// LevelUpStatus returns the pending and postponed level-ups.
func (s *GameService) LevelUpStatus(ctx context.Context, characterID string) (LevelUpStatus, error) {
	var st LevelUpStatus
	err := s.action(ctx, characterID, func(a *actionState) error {
		tracker := s.engine.Leveling()
		if p, ok := tracker.Pending(characterID); ok {
			st.Pending = &p
		}
		if av, ok := tracker.Available(characterID); ok {
			st.Available = &av
		}
		return nil
	})
	return st, err
}

// ApplyLevelUp confirms the pending level-up with the chosen attribute.
func (s *GameService) ApplyLevelUp(ctx context.Context, characterID, attribute string) (leveling.Result, error) {
	var res leveling.Result
	err := s.action(ctx, characterID, func(a *actionState) error {
		var err error
		res, err = s.engine.Leveling().Apply(&a.char, attribute)
		if err != nil {
			return err
		}

		a.dirty.MarkCharacter()
		a.addJournal(res.Journal)
		a.notify(model.NotifyLevelUp,
			fmt.Sprintf("Level %d reached, %s raised. One perk point gained.", res.Applied.NewLevel, res.Attribute),
			map[string]any{"level": res.Applied.NewLevel, "attribute": res.Attribute})
		if res.Next != nil {
			a.notify(model.NotifyLevelUp,
				fmt.Sprintf("Another level-up is ready: level %d.", res.Next.NewLevel),
				map[string]any{"level": res.Next.NewLevel})
		}
		return nil
	})
	return res, err
}

// PostponeLevelUp dismisses the pending level-up without applying it.
func (s *GameService) PostponeLevelUp(ctx context.Context, characterID string) (model.PendingLevelUp, error) {
	var p model.PendingLevelUp
	err := s.action(ctx, characterID, func(a *actionState) error {
		var err error
		p, err = s.engine.Leveling().Postpone(characterID)
		return err
	})
	return p, err
}

// RequestLevelUp resumes a postponed level-up, or synthesizes one.
// When a level-up is already pending it is returned with ErrAlreadyPending.
func (s *GameService) RequestLevelUp(ctx context.Context, characterID string) (model.PendingLevelUp, error) {
	var p model.PendingLevelUp
	err := s.action(ctx, characterID, func(a *actionState) error {
		var err error
		p, err = s.engine.Leveling().RequestManual(&a.char)
		if err != nil {
			return err
		}
		a.notify(model.NotifyLevelUp,
			fmt.Sprintf("Level %d is ready. Choose health, magicka or stamina.", p.NewLevel),
			map[string]any{"level": p.NewLevel})
		return nil
	})
	return p, err
}

// UnlockPerk spends one perk point on a perk, raising its rank.
func (s *GameService) UnlockPerk(ctx context.Context, characterID, perkID string) (model.Perk, error) {
	cfg, ok := Perks[strings.ToLower(strings.TrimSpace(perkID))]
	if !ok {
		return model.Perk{}, fmt.Errorf("%w: %q", ErrUnknownPerk, perkID)
	}

	var out model.Perk
	err := s.action(ctx, characterID, func(a *actionState) error {
		if a.char.PerkPoints < 1 {
			return ErrInsufficientPerkPoints
		}

		idx := -1
		for i, p := range a.char.Perks {
			if p.ID == cfg.ID {
				idx = i
				break
			}
		}
		if idx >= 0 {
			if a.char.Perks[idx].Rank >= cfg.MaxRank {
				return ErrPerkMaxRank
			}
			a.char.Perks[idx].Rank++
			out = a.char.Perks[idx]
		} else {
			out = model.Perk{ID: cfg.ID, Rank: 1}
			a.char.Perks = append(a.char.Perks, out)
		}
		a.char.PerkPoints--

		a.dirty.MarkCharacter()
		a.addJournal(model.JournalEntry{
			ID:          s.newID(),
			CharacterID: characterID,
			Kind:        model.JournalSummary,
			Title:       "Perk unlocked",
			Content:     fmt.Sprintf("%s (rank %d/%d)", cfg.Name, out.Rank, cfg.MaxRank),
			GameTime:    a.char.Time,
			CreatedAt:   s.now(),
		})
		a.notify(model.NotifyToast, fmt.Sprintf("Perk unlocked: %s (rank %d)", cfg.Name, out.Rank), nil)
		return nil
	})
	return out, err
}

// Rest advances time by hours and recovers fatigue and vitals. The rest
// is embedded in the update, so it never raises a forced rest itself.
func (s *GameService) Rest(ctx context.Context, characterID string, hours int) (*engine.Result, error) {
	if hours < 1 || hours > maxRestHours {
		return nil, ErrInvalidRestDuration
	}

	minutes := float64(hours * 60)
	recovery := float64(hours) * restFatiguePerHour
	if recovery > 100 {
		recovery = 100
	}
	vitals := hours * restVitalsPerHour

	u := model.Update{
		Narrative: &model.Narrative{
			Title:   "Rest",
			Content: fmt.Sprintf("You rest for %d hour%s.", hours, plural(hours)),
		},
		TimeAdvanceMinutes: &minutes,
		NeedsChange:        &model.NeedsDelta{Fatigue: -recovery},
		VitalsChange:       &model.VitalsDelta{Health: vitals, Magicka: vitals, Stamina: vitals},
	}
	return s.Apply(ctx, characterID, u)
}

// DismissRestPrompt closes an open forced-rest prompt without resting.
func (s *GameService) DismissRestPrompt(characterID string) {
	s.engine.Rest().DismissPrompt(characterID)
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
