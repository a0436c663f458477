package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"narrative-companion/internal/engine/idempotency"
	"narrative-companion/internal/engine/survival"
	"narrative-companion/internal/model"
	"narrative-companion/internal/pkg/metrics"
)

func intPtr(v int) *int                 { return &v }
func f64(v float64) *float64            { return &v }
func strPtr(v string) *string           { return &v }
func boolPtr(v bool) *bool              { return &v }
func minutes(v float64) *float64        { return &v }
func needs(f float64) *model.NeedsDelta { return &model.NeedsDelta{Fatigue: f} }

type combatFunc func(ctx context.Context, c model.Character, start model.CombatStart) error

func (f combatFunc) StartCombat(ctx context.Context, c model.Character, start model.CombatStart) error {
	return f(ctx, c, start)
}

type brokenLedger struct{}

func (brokenLedger) Lookup(context.Context, string) (model.TransactionRecord, bool, error) {
	return model.TransactionRecord{}, false, errors.New("redis: connection refused")
}
func (brokenLedger) Record(context.Context, model.TransactionRecord) error { return nil }
func (brokenLedger) Prune(context.Context, time.Time) (int, error)         { return 0, nil }

func snapshot() Snapshot {
	return Snapshot{Character: model.NewCharacter("c1", 42, "Aela")}
}

func TestApply_IdempotentReplay(t *testing.T) {
	eng := New(Components{})
	ctx := context.Background()
	u := model.Update{
		TransactionID: "tx-loot",
		Narrative:     &model.Narrative{Title: "Loot", Content: "You search the chest."},
		GoldChange:    intPtr(50),
		XPChange:      intPtr(120),
		NewItems: []model.ItemGrant{
			{Name: "Arrow", Type: "ammo", Quantity: f64(12)},
			{Name: "Elven Bow", Type: model.ItemTypeWeapon, Damage: f64(11)},
		},
	}

	once, err := eng.Apply(ctx, snapshot(), u)
	require.NoError(t, err)
	require.NotNil(t, once.Transaction)

	next := Snapshot{Character: once.Character, Items: once.Items, Quests: once.Quests}
	twice, err := eng.Apply(ctx, next, u)
	require.NoError(t, err)

	assert.True(t, twice.Filtered)
	assert.Equal(t, once.Character.Gold, twice.Character.Gold)
	assert.Equal(t, once.Character.Experience, twice.Character.Experience)
	assert.Equal(t, once.Items, twice.Items)
	// narrative still re-renders
	require.NotEmpty(t, twice.Journal)
	assert.Equal(t, model.JournalNarrative, twice.Journal[0].Kind)
}

func TestApply_LedgerErrorRejectsPass(t *testing.T) {
	eng := New(Components{Ledger: brokenLedger{}})

	res, err := eng.Apply(context.Background(), snapshot(), model.Update{TransactionID: "tx", GoldChange: intPtr(5)})

	require.Error(t, err)
	assert.True(t, errors.Is(err, idempotency.ErrLedgerUnavailable))
	assert.Nil(t, res)
}

func TestApply_LevelTwoScenario(t *testing.T) {
	eng := New(Components{})

	res, err := eng.Apply(context.Background(), snapshot(), model.Update{XPChange: intPtr(1000)})
	require.NoError(t, err)

	require.NotNil(t, res.LevelUp)
	assert.Equal(t, 2, res.LevelUp.NewLevel)
	assert.Equal(t, 1000, res.Character.Experience)
	assert.Equal(t, 1, res.Character.Level, "stats change only after confirmation")
	assert.Equal(t, 100, res.Character.Stats.Health)

	var kinds []string
	for _, n := range res.Notifications {
		kinds = append(kinds, n.Kind)
	}
	assert.Contains(t, kinds, model.NotifyLevelUp)
}

func TestApply_SinglePendingAcrossXPSources(t *testing.T) {
	eng := New(Components{})
	ctx := context.Background()
	snap := snapshot()
	snap.Quests = []model.Quest{{
		ID: "q1", Title: "Find the Amulet", Status: model.QuestActive,
		DefaultReward: &model.Reward{XP: 900, Gold: 100},
	}}

	res, err := eng.Apply(ctx, snap, model.Update{
		UpdateQuests: []model.QuestTransition{{Title: "Find the Amulet", Status: model.QuestCompleted}},
		XPChange:     intPtr(2000),
	})
	require.NoError(t, err)
	require.NotNil(t, res.LevelUp)
	assert.Equal(t, 2900, res.Character.Experience)
	assert.Equal(t, 100, res.Character.Gold)

	// a second crossing in a later pass does not queue another
	res2, err := eng.Apply(ctx, Snapshot{Character: res.Character, Quests: res.Quests}, model.Update{XPChange: intPtr(5000)})
	require.NoError(t, err)
	assert.Nil(t, res2.LevelUp)

	p, ok := eng.Leveling().Pending("c1")
	require.True(t, ok)
	assert.Equal(t, 2, p.NewLevel)
}

func TestApply_QuestRewardFoldedIntoSummary(t *testing.T) {
	eng := New(Components{})
	snap := snapshot()
	snap.Quests = []model.Quest{{
		ID: "q1", Title: "Find the Amulet", Status: model.QuestActive,
		Objectives:    []model.Objective{{Text: "Search the ruins"}},
		DefaultReward: &model.Reward{XP: 50, Gold: 100},
	}}

	res, err := eng.Apply(context.Background(), snap, model.Update{
		UpdateQuests: []model.QuestTransition{{Title: "find the amulet", Status: "completed"}},
		GoldChange:   intPtr(-30),
	})
	require.NoError(t, err)

	assert.Equal(t, 70, res.Character.Gold)
	assert.Equal(t, 50, res.Character.Experience)
	assert.True(t, res.Quests[0].Objectives[0].Completed)
	assert.Contains(t, res.Dirty.Quests, "q1")

	var summary *model.JournalEntry
	for i := range res.Journal {
		if res.Journal[i].Kind == model.JournalSummary {
			summary = &res.Journal[i]
		}
	}
	require.NotNil(t, summary)
	assert.Contains(t, summary.Content, "+70 gold")
	assert.Contains(t, summary.Content, "+50 XP")
}

func TestApply_SurvivalScenario(t *testing.T) {
	eng := New(Components{})

	res, err := eng.Apply(context.Background(), snapshot(), model.Update{TimeAdvanceMinutes: minutes(180)})
	require.NoError(t, err)

	assert.Equal(t, model.Needs{Hunger: 1.0, Thirst: 1.5, Fatigue: 2.0}, res.Character.Needs)
	assert.Equal(t, model.GameTime{Day: 1, Hour: 11}, res.Character.Time)
	assert.True(t, res.Dirty.Character)
}

func TestApply_SurvivalLeavesOtherEffects(t *testing.T) {
	eng := New(Components{})
	snap := snapshot()
	snap.Character.Needs = model.Needs{Hunger: 59}
	snap.Character.StatusEffects = []model.StatusEffect{
		{ID: "fortify_archery", Name: "Fortify Archery", Type: model.EffectBuff, Duration: 60},
		{ID: survival.EffectID(survival.NeedThirst, survival.SeverityWarn), Name: "Thirsty", Type: model.EffectDebuff, Duration: -1},
	}

	res, err := eng.Apply(context.Background(), snap, model.Update{TimeAdvanceMinutes: minutes(180)})
	require.NoError(t, err)

	var ids []string
	for _, e := range res.Character.StatusEffects {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"fortify_archery", survival.EffectID(survival.NeedHunger, survival.SeverityWarn)}, ids)
}

func TestApply_ForcedRestCooldown(t *testing.T) {
	now := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	rest := survival.NewRestGuard(func() time.Time { return now })
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	eng := New(Components{Rest: rest, Metrics: m})
	ctx := context.Background()

	snap := snapshot()
	snap.Character.Needs.Fatigue = 99.5
	res, err := eng.Apply(ctx, snap, model.Update{TimeAdvanceMinutes: minutes(60)})
	require.NoError(t, err)
	require.True(t, res.ForcedRest)
	assert.Equal(t, 100.0, res.Character.Needs.Fatigue)

	// prompt dismissed, another qualifying update inside the cooldown
	rest.DismissPrompt("c1")
	now = now.Add(2 * time.Minute)
	res, err = eng.Apply(ctx, Snapshot{Character: res.Character}, model.Update{TimeAdvanceMinutes: minutes(10)})
	require.NoError(t, err)
	assert.False(t, res.ForcedRest)

	now = now.Add(4 * time.Minute)
	res, err = eng.Apply(ctx, Snapshot{Character: res.Character}, model.Update{TimeAdvanceMinutes: minutes(10)})
	require.NoError(t, err)
	assert.True(t, res.ForcedRest)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ForcedRests))
}

func TestApply_EmbeddedRestSuppressesForcedRest(t *testing.T) {
	eng := New(Components{})
	snap := snapshot()
	snap.Character.Needs.Fatigue = 100

	res, err := eng.Apply(context.Background(), snap, model.Update{NeedsChange: needs(-0.0001), TimeAdvanceMinutes: minutes(5)})
	require.NoError(t, err)

	assert.False(t, res.ForcedRest)
}

func TestApply_FailingStageDoesNotHaltPass(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	tests := []struct {
		name   string
		combat CombatInitiator
	}{
		{"error", combatFunc(func(context.Context, model.Character, model.CombatStart) error {
			return errors.New("combat service down")
		})},
		{"panic", combatFunc(func(context.Context, model.Character, model.CombatStart) error {
			panic("nil enemy table")
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := New(Components{Combat: tt.combat, Metrics: m})

			res, err := eng.Apply(context.Background(), snapshot(), model.Update{
				CombatStart: &model.CombatStart{Enemies: []model.CombatEnemy{{Name: "Bandit", Health: 40}}},
				GoldChange:  intPtr(15),
				XPChange:    intPtr(10),
			})
			require.NoError(t, err)

			require.Len(t, res.Failures, 1)
			assert.Equal(t, StageCombat, res.Failures[0].Stage)
			assert.Equal(t, 15, res.Character.Gold)
			assert.Equal(t, 10, res.Character.Experience)
		})
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StageFailures.WithLabelValues(StageCombat)))
}

func TestApply_FailedStageRetriedUnderSameTransaction(t *testing.T) {
	ctx := context.Background()
	ledger := idempotency.NewMemoryLedger(time.Hour, 100)

	calls := 0
	eng := New(Components{
		Ledger: ledger,
		Combat: combatFunc(func(context.Context, model.Character, model.CombatStart) error {
			calls++
			if calls == 1 {
				return errors.New("combat service down")
			}
			return nil
		}),
	})

	u := model.Update{
		TransactionID: "tx-ambush",
		CombatStart:   &model.CombatStart{Enemies: []model.CombatEnemy{{Name: "Bandit", Health: 40}}},
		GoldChange:    intPtr(15),
	}

	first, err := eng.Apply(ctx, snapshot(), u)
	require.NoError(t, err)
	require.Len(t, first.Failures, 1)
	require.NotNil(t, first.Transaction)
	assert.True(t, first.Transaction.Has(model.FieldGold))
	assert.False(t, first.Transaction.Has(model.FieldCombat))

	next := Snapshot{Character: first.Character, Items: first.Items, Quests: first.Quests}
	retry, err := eng.Apply(ctx, next, u)
	require.NoError(t, err)

	assert.Empty(t, retry.Failures)
	assert.Equal(t, 2, calls, "combat starts on the retry")
	assert.Equal(t, 15, retry.Character.Gold, "gold is not granted twice")
	assert.Contains(t, retry.FilterReason, model.FieldGold)
	assert.NotContains(t, retry.FilterReason, model.FieldCombat)

	rec, ok, err := ledger.Lookup(ctx, "tx-ambush")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{model.FieldCombat, model.FieldGold}, rec.AppliedFields)
}

func TestApply_CombatStartDelegates(t *testing.T) {
	var got model.CombatStart
	eng := New(Components{Combat: combatFunc(func(_ context.Context, c model.Character, start model.CombatStart) error {
		got = start
		return nil
	})})

	res, err := eng.Apply(context.Background(), snapshot(), model.Update{
		CombatStart: &model.CombatStart{Location: "Bleak Falls", Enemies: []model.CombatEnemy{{Name: "Draugr", Health: 60}}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bleak Falls", got.Location)
	last := res.Notifications[len(res.Notifications)-1]
	assert.Equal(t, model.NotifyMusic, last.Kind)
	assert.Equal(t, MoodCombat, last.Message)
}

func TestApply_CharacterStatsVitalsSkillsEffects(t *testing.T) {
	eng := New(Components{})
	snap := snapshot()
	snap.Character.Skills = []model.Skill{{Name: "Archery", Level: 15}}

	res, err := eng.Apply(context.Background(), snap, model.Update{
		CharacterUpdates: &model.CharacterPatch{Race: strPtr("Nord"), Backstory: strPtr("  Raised in Whiterun. ")},
		StatUpdates:      &model.StatsPatch{Health: intPtr(80)},
		SkillGains:       []model.SkillGain{{Name: "archery", Amount: 2}, {Name: "Sneak", Amount: 1}, {Name: "", Amount: 4}},
		VitalsChange:     &model.VitalsDelta{Health: 30, Magicka: -150, Stamina: -10},
		StatusEffects: []model.StatusEffect{
			{Name: "Blessing of Kynareth", Type: model.EffectBuff, Duration: 120},
			{ID: "survival_fake", Name: "Spoofed"},
		},
	})
	require.NoError(t, err)

	c := res.Character
	assert.Equal(t, "Nord", c.Race)
	assert.Equal(t, "Raised in Whiterun.", c.Backstory)
	assert.Equal(t, 80, c.Stats.Health)
	assert.Equal(t, 80, c.Vitals.CurrentHealth)
	assert.Equal(t, 0, c.Vitals.CurrentMagicka)
	assert.Equal(t, 90, c.Vitals.CurrentStamina)
	assert.Equal(t, []model.Skill{{Name: "Archery", Level: 17}, {Name: "Sneak", Level: 1}}, c.Skills)
	require.Len(t, c.StatusEffects, 1)
	assert.Equal(t, "Blessing of Kynareth", c.StatusEffects[0].Name)
	assert.NotEmpty(t, c.StatusEffects[0].ID)
	assert.False(t, c.UpdatedAt.IsZero())
}

func TestApply_InventoryOrderAddsThenUpdatesThenRemoves(t *testing.T) {
	eng := New(Components{})
	snap := snapshot()
	snap.Items = []model.InventoryItem{{ID: "torch", CharacterID: "c1", Name: "Torch", Type: "misc", Quantity: 1}}

	res, err := eng.Apply(context.Background(), snap, model.Update{
		NewItems:     []model.ItemGrant{{Name: "Lockpick", Type: "misc", Quantity: f64(3)}},
		UpdatedItems: []model.ItemPatch{{ID: "torch", Quantity: intPtr(0)}},
		RemovedItems: []model.ItemRemoval{{Name: "lockpick", Quantity: intPtr(1)}},
	})
	require.NoError(t, err)

	require.Len(t, res.Items, 1)
	assert.Equal(t, "Lockpick", res.Items[0].Name)
	assert.Equal(t, 2, res.Items[0].Quantity)
	assert.Contains(t, res.Dirty.DeletedItems, "torch")
	assert.Contains(t, res.Dirty.Items, res.Items[0].ID)
}

func TestApply_DoesNotMutateSnapshot(t *testing.T) {
	eng := New(Components{})
	snap := snapshot()
	snap.Character.StatusEffects = []model.StatusEffect{{ID: "x", Name: "X", Type: model.EffectBuff}}
	snap.Items = []model.InventoryItem{{ID: "i1", Name: "Torch", Quantity: 2}}

	_, err := eng.Apply(context.Background(), snap, model.Update{
		GoldChange:    intPtr(10),
		RemovedItems:  []model.ItemRemoval{{Name: "Torch"}},
		StatusEffects: []model.StatusEffect{{ID: "x", Name: "X2", Type: model.EffectBuff}},
	})
	require.NoError(t, err)

	assert.Equal(t, 0, snap.Character.Gold)
	assert.Equal(t, 2, snap.Items[0].Quantity)
	assert.Equal(t, "X", snap.Character.StatusEffects[0].Name)
}

func TestApply_EmptyUpdate(t *testing.T) {
	eng := New(Components{})

	res, err := eng.Apply(context.Background(), snapshot(), model.Update{})
	require.NoError(t, err)

	assert.True(t, res.Dirty.Empty())
	assert.Empty(t, res.Journal)
	assert.Empty(t, res.Notifications)
	assert.Nil(t, res.Transaction)
}

func TestApply_LocallyAppliedHint(t *testing.T) {
	eng := New(Components{})

	res, err := eng.Apply(context.Background(), snapshot(), model.Update{
		TransactionID:         "tx-shop",
		AlreadyAppliedLocally: true,
		GoldChange:            intPtr(-25),
		Narrative:             &model.Narrative{Title: "Purchase", Content: "You buy a map."},
	})
	require.NoError(t, err)

	assert.True(t, res.Filtered)
	assert.Equal(t, 0, res.Character.Gold)
	require.NotNil(t, res.Transaction)
	assert.True(t, res.Transaction.Has(model.FieldGold))
	assert.True(t, strings.Contains(res.FilterReason, idempotency.ReasonAppliedLocally))
}

func TestApply_StackedAndSeparateItems(t *testing.T) {
	eng := New(Components{})
	ctx := context.Background()

	res, err := eng.Apply(ctx, snapshot(), model.Update{NewItems: []model.ItemGrant{
		{Name: "Health Potion", Type: model.ItemTypePotion, Quantity: f64(2), Stackable: boolPtr(true)},
	}})
	require.NoError(t, err)
	res, err = eng.Apply(ctx, Snapshot{Character: res.Character, Items: res.Items}, model.Update{NewItems: []model.ItemGrant{
		{Name: "Health Potion", Type: model.ItemTypePotion, Quantity: f64(3), Stackable: boolPtr(true)},
		{Name: "Iron Sword", Type: model.ItemTypeWeapon, Rarity: "common"},
		{Name: "Iron Sword", Type: model.ItemTypeWeapon, Rarity: "common"},
	}})
	require.NoError(t, err)

	require.Len(t, res.Items, 3)
	assert.Equal(t, 5, res.Items[0].Quantity)
	assert.Equal(t, model.PotionHealth, res.Items[0].Subtype)
	assert.NotEqual(t, res.Items[1].ID, res.Items[2].ID)
}

// TestReplayTotalsProperty checks that replaying any update under the
// same transaction id leaves gold, XP and item totals unchanged.
func TestReplayTotalsProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		eng := New(Components{})
		ctx := context.Background()

		u := model.Update{TransactionID: "tx-prop"}
		if rapid.Bool().Draw(rt, "hasGold") {
			u.GoldChange = intPtr(rapid.IntRange(-500, 500).Draw(rt, "gold"))
		}
		if rapid.Bool().Draw(rt, "hasXP") {
			u.XPChange = intPtr(rapid.IntRange(-100, 5000).Draw(rt, "xp"))
		}
		n := rapid.IntRange(0, 3).Draw(rt, "items")
		for i := 0; i < n; i++ {
			u.NewItems = append(u.NewItems, model.ItemGrant{
				Name:     rapid.SampledFrom([]string{"Arrow", "Bread", "Steel Sword"}).Draw(rt, "name"),
				Type:     rapid.SampledFrom([]string{"ammo", "food", model.ItemTypeWeapon}).Draw(rt, "type"),
				Quantity: f64(float64(rapid.IntRange(1, 5).Draw(rt, "qty"))),
			})
		}
		if rapid.Bool().Draw(rt, "hasTime") {
			u.TimeAdvanceMinutes = minutes(float64(rapid.IntRange(0, 600).Draw(rt, "minutes")))
		}

		first, err := eng.Apply(ctx, snapshot(), u)
		if err != nil {
			rt.Fatal(err)
		}
		second, err := eng.Apply(ctx, Snapshot{Character: first.Character, Items: first.Items, Quests: first.Quests}, u)
		if err != nil {
			rt.Fatal(err)
		}

		if first.Character.Gold != second.Character.Gold {
			rt.Fatalf("gold %d != %d", first.Character.Gold, second.Character.Gold)
		}
		if first.Character.Experience != second.Character.Experience {
			rt.Fatalf("xp %d != %d", first.Character.Experience, second.Character.Experience)
		}
		if first.Character.Time != second.Character.Time {
			rt.Fatalf("time %+v != %+v", first.Character.Time, second.Character.Time)
		}
		if countItems(first.Items) != countItems(second.Items) {
			rt.Fatalf("items %d != %d", countItems(first.Items), countItems(second.Items))
		}
	})
}

func countItems(items []model.InventoryItem) int {
	total := 0
	for _, it := range items {
		total += it.Quantity
	}
	return total
}
