// Package engine applies one game master Update to a character snapshot.
//
// A pass runs a fixed sequence of stages over a private copy of the
// snapshot. Quest rewards are folded into the gold and XP deltas before
// those are applied, and the summary journal entry observes the fully
// resolved pass. A failing stage is logged and skipped; the remaining
// stages still run.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"narrative-companion/internal/engine/idempotency"
	"narrative-companion/internal/engine/inventory"
	"narrative-companion/internal/engine/leveling"
	"narrative-companion/internal/engine/quest"
	"narrative-companion/internal/engine/survival"
	"narrative-companion/internal/model"
	"narrative-companion/internal/pkg/metrics"
)

// Stage names, in execution order.
const (
	StageCharacter      = "character_merge"
	StageSurvival       = "survival"
	StageNarrative      = "narrative"
	StageNewQuests      = "new_quests"
	StageQuestUpdates   = "quest_updates"
	StageItemAdds       = "item_adds"
	StageItemUpdates    = "item_updates"
	StageItemRemovals   = "item_removals"
	StageStats          = "stats"
	StageSkills         = "skills"
	StageVitals         = "vitals"
	StageStatusEffects  = "status_effects"
	StageCombat         = "combat"
	StageGold           = "gold"
	StageXP             = "xp"
	StageSummary        = "summary"
	StageAmbientContext = "ambient"
)

// CombatInitiator hands an encounter to the external combat subsystem.
type CombatInitiator interface {
	StartCombat(ctx context.Context, character model.Character, start model.CombatStart) error
}

// Snapshot is the state a pass starts from.
type Snapshot struct {
	Character model.Character
	Items     []model.InventoryItem
	Quests    []model.Quest
}

// StageError describes a stage that failed and was skipped.
type StageError struct {
	Stage string
	Err   error
}

func (e StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

// Result is the outcome of a pass.
type Result struct {
	Character     model.Character
	Items         []model.InventoryItem
	Quests        []model.Quest
	Journal       []model.JournalEntry
	Notifications []model.Notification
	Dirty         *model.DirtySet

	Filtered     bool
	FilterReason string
	Transaction  *model.TransactionRecord
	// RecordErr is set when the transaction could not be recorded.
	RecordErr error

	LevelUp    *model.PendingLevelUp
	ForcedRest bool
	Failures   []StageError
}

// Components are the collaborators of an Engine. Nil fields get defaults;
// Ledger defaults to an in-memory ledger.
type Components struct {
	Ledger   idempotency.Ledger
	Survival *survival.Simulator
	Rest     *survival.RestGuard
	Leveling *leveling.Tracker
	Merger   *inventory.Merger
	Quests   *quest.Aggregator
	Combat   CombatInitiator
	Metrics  *metrics.Metrics
}

// Engine runs update passes. It is safe to share between character
// workers; callers serialize passes for the same character.
type Engine struct {
	filter   *idempotency.Filter
	survival *survival.Simulator
	rest     *survival.RestGuard
	leveling *leveling.Tracker
	merger   *inventory.Merger
	quests   *quest.Aggregator
	combat   CombatInitiator
	metrics  *metrics.Metrics
	stages   []stage
	newID    func() string
	now      func() time.Time
}

type stage struct {
	name string
	run  func(*pass) error
}

// New creates an engine.
func New(c Components) *Engine {
	if c.Ledger == nil {
		c.Ledger = idempotency.NewMemoryLedger(0, 0)
	}
	if c.Survival == nil {
		c.Survival = survival.New(survival.DefaultConfig())
	}
	if c.Rest == nil {
		c.Rest = survival.NewRestGuard(nil)
	}
	if c.Leveling == nil {
		c.Leveling = leveling.NewTracker(0, 0)
	}
	if c.Merger == nil {
		c.Merger = inventory.NewMerger()
	}
	if c.Quests == nil {
		c.Quests = quest.NewAggregator()
	}

	e := &Engine{
		filter:   idempotency.NewFilter(c.Ledger),
		survival: c.Survival,
		rest:     c.Rest,
		leveling: c.Leveling,
		merger:   c.Merger,
		quests:   c.Quests,
		combat:   c.Combat,
		metrics:  c.Metrics,
		newID:    uuid.NewString,
		now:      time.Now,
	}
	e.stages = []stage{
		{StageCharacter, e.mergeCharacter},
		{StageSurvival, e.simulateSurvival},
		{StageNarrative, e.appendNarrative},
		{StageNewQuests, e.createQuests},
		{StageQuestUpdates, e.transitionQuests},
		{StageItemAdds, e.addItems},
		{StageItemUpdates, e.updateItems},
		{StageItemRemovals, e.removeItems},
		{StageStats, e.overrideStats},
		{StageSkills, e.gainSkills},
		{StageVitals, e.changeVitals},
		{StageStatusEffects, e.appendStatusEffects},
		{StageCombat, e.startCombat},
		{StageGold, e.applyGold},
		{StageXP, e.applyXP},
		{StageSummary, e.summarize},
		{StageAmbientContext, e.ambientContext},
	}
	return e
}

// Leveling returns the engine's leveling tracker.
func (e *Engine) Leveling() *leveling.Tracker { return e.leveling }

// Rest returns the engine's rest guard.
func (e *Engine) Rest() *survival.RestGuard { return e.rest }

// Survival returns the engine's survival simulator.
func (e *Engine) Survival() *survival.Simulator { return e.survival }

// pass is the mutable state of one run.
type pass struct {
	ctx    context.Context
	update model.Update

	char   model.Character
	items  []model.InventoryItem
	quests []model.Quest
	dirty  *model.DirtySet

	journal       []model.JournalEntry
	notifications []model.Notification
	summary       []string

	goldDelta int
	xpDelta   int

	levelUp     *model.PendingLevelUp
	forcedRest  bool
	onTheEdge   bool
	questClosed bool
}

func (p *pass) notify(kind, msg string, data map[string]any) {
	p.notifications = append(p.notifications, model.Notification{Kind: kind, Message: msg, Data: data})
}

func (p *pass) note(line string) {
	if line != "" {
		p.summary = append(p.summary, line)
	}
}

// Apply runs one update against snap. The snapshot is not modified.
// An error is returned only when the transaction ledger cannot be
// consulted, in which case no stage has run.
func (e *Engine) Apply(ctx context.Context, snap Snapshot, u model.Update) (*Result, error) {
	start := e.now()
	charID := snap.Character.ID

	decision, err := e.filter.Filter(ctx, u)
	if err != nil {
		e.metrics.ObservePass("rejected", e.now().Sub(start))
		return nil, fmt.Errorf("failed to filter update for character %s: %w", charID, err)
	}
	if decision.Filtered {
		e.metrics.Filtered()
		log.Info().
			Str("character_id", charID).
			Str("transaction_id", u.TransactionID).
			Str("reason", decision.Reason).
			Msg("Update trimmed by idempotency filter")
	}

	p := &pass{
		ctx:    ctx,
		update: decision.Update,
		char:   snap.Character.Clone(),
		items:  append([]model.InventoryItem(nil), snap.Items...),
		quests: append([]model.Quest(nil), snap.Quests...),
		dirty:  model.NewDirtySet(charID),
	}

	var failures []StageError
	for _, st := range e.stages {
		if err := e.runStage(p, st); err != nil {
			failures = append(failures, StageError{Stage: st.name, Err: err})
		}
	}

	if p.dirty.Character {
		p.char.UpdatedAt = e.now()
	}

	res := &Result{
		Character:     p.char,
		Items:         p.items,
		Quests:        p.quests,
		Journal:       p.journal,
		Notifications: p.notifications,
		Dirty:         p.dirty,
		Filtered:      decision.Filtered,
		FilterReason:  decision.Reason,
		LevelUp:       p.levelUp,
		ForcedRest:    p.forcedRest,
		Failures:      failures,
	}

	rec, err := e.filter.Commit(ctx, decision, u, failedFields(failures)...)
	res.Transaction = rec
	if err != nil {
		res.RecordErr = err
		log.Error().Err(err).
			Str("character_id", charID).
			Str("transaction_id", u.TransactionID).
			Msg("Failed to record transaction")
	}

	e.metrics.ObservePass("ok", e.now().Sub(start))
	return res, nil
}

// stageFields maps a stage to the ledger fields it grants.
var stageFields = map[string][]string{
	StageSurvival:      {model.FieldTime, model.FieldNeeds},
	StageNewQuests:     {model.FieldQuests},
	StageQuestUpdates:  {model.FieldQuests},
	StageItemAdds:      {model.FieldItems},
	StageItemUpdates:   {model.FieldItems},
	StageItemRemovals:  {model.FieldItems},
	StageStats:         {model.FieldStats},
	StageSkills:        {model.FieldSkills},
	StageVitals:        {model.FieldVitals},
	StageStatusEffects: {model.FieldEffects},
	StageCombat:        {model.FieldCombat},
	StageGold:          {model.FieldGold},
	StageXP:            {model.FieldXP},
}

// failedFields returns the ledger fields of the stages that failed.
func failedFields(failures []StageError) []string {
	var fields []string
	for _, f := range failures {
		fields = append(fields, stageFields[f.Stage]...)
	}
	return fields
}

// runStage runs one stage, converting a panic into an error so that the
// rest of the pass still runs.
func (e *Engine) runStage(p *pass, st stage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			e.metrics.StageFailed(st.name)
			log.Error().Err(err).
				Str("stage", st.name).
				Str("character_id", p.char.ID).
				Str("transaction_id", p.update.TransactionID).
				Msg("Update stage failed, continuing")
		}
	}()
	return st.run(p)
}
