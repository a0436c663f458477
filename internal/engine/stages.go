package engine

import (
	"fmt"
	"strings"

	"narrative-companion/internal/engine/inventory"
	"narrative-companion/internal/engine/survival"
	"narrative-companion/internal/model"
)

// Music moods published by the ambient context stage.
const (
	MoodCombat      = "combat"
	MoodTense       = "tense"
	MoodTriumphant  = "triumphant"
	MoodExploration = "exploration"
)

func (e *Engine) mergeCharacter(p *pass) error {
	patch := p.update.CharacterUpdates
	if patch == nil {
		return nil
	}
	changed := false
	set := func(dst *string, v *string) {
		if v == nil {
			return
		}
		s := strings.TrimSpace(*v)
		if s == "" || s == *dst {
			return
		}
		*dst = s
		changed = true
	}
	set(&p.char.Name, patch.Name)
	set(&p.char.Race, patch.Race)
	set(&p.char.Class, patch.Class)
	set(&p.char.Archetype, patch.Archetype)
	set(&p.char.Backstory, patch.Backstory)
	set(&p.char.Appearance, patch.Appearance)

	if changed {
		p.dirty.MarkCharacter()
		p.note("Character details updated")
	}
	return nil
}

func (e *Engine) simulateSurvival(p *pass) error {
	if p.update.TimeAdvanceMinutes == nil && p.update.NeedsChange == nil {
		return nil
	}

	in := survival.Input{
		Time:  p.char.Time,
		Needs: p.char.Needs,
		Rest:  e.rest.Status(p.char.ID),
		Now:   e.rest.Now(),
	}
	if p.update.TimeAdvanceMinutes != nil {
		in.ElapsedMinutes = *p.update.TimeAdvanceMinutes
	}
	if p.update.NeedsChange != nil {
		in.Deltas = *p.update.NeedsChange
	}

	out := e.survival.Advance(in)
	if out.Time != p.char.Time {
		p.note(describeElapsed(p.char.Time, out.Time))
	}
	p.char.Time = out.Time
	p.char.Needs = out.Needs
	p.char.StatusEffects = survival.ReplaceSurvivalEffects(p.char.StatusEffects, out.Effects)
	p.dirty.MarkCharacter()

	if in.Deltas.Fatigue < 0 {
		e.rest.MarkRested(p.char.ID)
	}
	if out.ForcedRest {
		e.rest.MarkForced(p.char.ID)
		p.forcedRest = true
		e.metrics.ForcedRest()
		p.notify(model.NotifyForcedRest, p.char.Name+" is collapsing from exhaustion and must rest.",
			map[string]any{"fatigue": out.Needs.Fatigue})
	}
	if out.OnTheEdge {
		p.onTheEdge = true
		p.notify(model.NotifyToast, p.char.Name+" is on the edge of collapse from hunger and thirst.", nil)
	}
	return nil
}

func (e *Engine) appendNarrative(p *pass) error {
	n := p.update.Narrative
	if n == nil || (strings.TrimSpace(n.Title) == "" && strings.TrimSpace(n.Content) == "") {
		return nil
	}
	entry := e.journalEntry(p, model.JournalNarrative, strings.TrimSpace(n.Title), strings.TrimSpace(n.Content))
	p.notify(model.NotifyJournal, entry.Title, map[string]any{"journalId": entry.ID})
	return nil
}

func (e *Engine) createQuests(p *pass) error {
	if len(p.update.NewQuests) == 0 {
		return nil
	}
	quests, out := e.quests.Create(p.quests, p.char.ID, p.update.NewQuests)
	p.quests = quests
	for _, id := range out.Created {
		p.dirty.MarkQuest(id)
	}
	p.notifications = append(p.notifications, out.Notifications...)
	p.summary = append(p.summary, out.Lines...)
	return nil
}

func (e *Engine) transitionQuests(p *pass) error {
	if len(p.update.UpdateQuests) == 0 {
		return nil
	}
	quests, out := e.quests.Transition(p.quests, p.update.UpdateQuests)
	p.quests = quests
	for _, id := range out.Updated {
		p.dirty.MarkQuest(id)
	}
	for _, q := range quests {
		for _, id := range out.Updated {
			if q.ID == id && q.Status == model.QuestCompleted {
				p.questClosed = true
			}
		}
	}
	p.goldDelta += out.GoldDelta
	p.xpDelta += out.XPDelta
	p.notifications = append(p.notifications, out.Notifications...)
	p.summary = append(p.summary, out.Lines...)
	return nil
}

func (e *Engine) addItems(p *pass) error {
	if len(p.update.NewItems) == 0 {
		return nil
	}
	items, change := e.merger.ApplyAdds(p.items, p.char.ID, p.update.NewItems)
	p.applyItemChange(items, change)
	return nil
}

func (e *Engine) updateItems(p *pass) error {
	if len(p.update.UpdatedItems) == 0 {
		return nil
	}
	items, change := inventory.ApplyUpdatesByID(p.items, p.update.UpdatedItems)
	p.applyItemChange(items, change)
	return nil
}

func (e *Engine) removeItems(p *pass) error {
	if len(p.update.RemovedItems) == 0 {
		return nil
	}
	items, change := inventory.ApplyRemoves(p.items, p.update.RemovedItems)
	p.applyItemChange(items, change)
	return nil
}

func (p *pass) applyItemChange(items []model.InventoryItem, change inventory.Change) {
	p.items = items
	change.Apply(p.dirty)
	p.summary = append(p.summary, change.Lines...)
}

func (e *Engine) overrideStats(p *pass) error {
	s := p.update.StatUpdates
	if s == nil {
		return nil
	}
	var parts []string
	set := func(label string, dst *int, v *int) {
		if v == nil || *v < 0 || *v == *dst {
			return
		}
		*dst = *v
		parts = append(parts, fmt.Sprintf("%s %d", label, *v))
	}
	set("max health", &p.char.Stats.Health, s.Health)
	set("max magicka", &p.char.Stats.Magicka, s.Magicka)
	set("max stamina", &p.char.Stats.Stamina, s.Stamina)
	if len(parts) == 0 {
		return nil
	}

	p.char.Vitals = clampVitals(p.char.Vitals, p.char.Stats)
	p.dirty.MarkCharacter()
	p.note("Stats set: " + strings.Join(parts, ", "))
	return nil
}

func (e *Engine) gainSkills(p *pass) error {
	if len(p.update.SkillGains) == 0 {
		return nil
	}
	for _, g := range p.update.SkillGains {
		name := strings.TrimSpace(g.Name)
		if name == "" || g.Amount == 0 {
			continue
		}
		idx := -1
		for i, s := range p.char.Skills {
			if strings.EqualFold(s.Name, name) {
				idx = i
				break
			}
		}
		if idx < 0 {
			p.char.Skills = append(p.char.Skills, model.Skill{Name: name})
			idx = len(p.char.Skills) - 1
		}
		p.char.Skills[idx].Level += g.Amount
		if p.char.Skills[idx].Level < 0 {
			p.char.Skills[idx].Level = 0
		}
		p.dirty.MarkCharacter()
		p.note(fmt.Sprintf("%s %+d", p.char.Skills[idx].Name, g.Amount))
	}
	return nil
}

func (e *Engine) changeVitals(p *pass) error {
	d := p.update.VitalsChange
	if d == nil || (d.Health == 0 && d.Magicka == 0 && d.Stamina == 0) {
		return nil
	}
	v := p.char.Vitals
	v.CurrentHealth += d.Health
	v.CurrentMagicka += d.Magicka
	v.CurrentStamina += d.Stamina
	p.char.Vitals = clampVitals(v, p.char.Stats)
	p.dirty.MarkCharacter()

	var parts []string
	for _, x := range []struct {
		label string
		delta int
	}{{"health", d.Health}, {"magicka", d.Magicka}, {"stamina", d.Stamina}} {
		if x.delta != 0 {
			parts = append(parts, fmt.Sprintf("%+d %s", x.delta, x.label))
		}
	}
	p.note(strings.Join(parts, ", "))
	return nil
}

func (e *Engine) appendStatusEffects(p *pass) error {
	if len(p.update.StatusEffects) == 0 {
		return nil
	}
	for _, in := range p.update.StatusEffects {
		if strings.TrimSpace(in.Name) == "" || in.IsSurvival() {
			continue
		}
		eff := in.Clone()
		if eff.ID == "" {
			eff.ID = e.newID()
		}
		if eff.Type != model.EffectBuff && eff.Type != model.EffectDebuff {
			eff.Type = model.EffectBuff
		}

		replaced := false
		for i := range p.char.StatusEffects {
			if p.char.StatusEffects[i].ID == eff.ID {
				p.char.StatusEffects[i] = eff
				replaced = true
				break
			}
		}
		if !replaced {
			p.char.StatusEffects = append(p.char.StatusEffects, eff)
		}
		p.dirty.MarkCharacter()
		p.note("Affected by " + eff.Name)
	}
	return nil
}

func (e *Engine) startCombat(p *pass) error {
	cs := p.update.CombatStart
	if cs == nil || len(cs.Enemies) == 0 {
		return nil
	}
	names := make([]string, 0, len(cs.Enemies))
	for _, en := range cs.Enemies {
		names = append(names, en.Name)
	}
	p.note("Combat with " + strings.Join(names, ", "))
	p.notify(model.NotifyCombat, "Combat begins!", map[string]any{"enemies": names, "location": cs.Location})

	if e.combat == nil {
		return nil
	}
	if err := e.combat.StartCombat(p.ctx, p.char, *cs); err != nil {
		return fmt.Errorf("failed to start combat: %w", err)
	}
	return nil
}

func (e *Engine) applyGold(p *pass) error {
	if p.update.GoldChange != nil {
		p.goldDelta += *p.update.GoldChange
	}
	if p.goldDelta == 0 {
		return nil
	}
	p.char.Gold += p.goldDelta
	p.dirty.MarkCharacter()
	p.note(fmt.Sprintf("%+d gold", p.goldDelta))
	return nil
}

func (e *Engine) applyXP(p *pass) error {
	if p.update.XPChange != nil {
		p.xpDelta += *p.update.XPChange
	}
	if p.xpDelta == 0 {
		return nil
	}
	// one consolidated delta per pass
	pending := e.leveling.GainXP(&p.char, p.xpDelta)
	p.dirty.MarkCharacter()
	p.note(fmt.Sprintf("%+d XP", p.xpDelta))

	if pending != nil {
		p.levelUp = pending
		e.metrics.LevelUpQueued()
		p.notify(model.NotifyLevelUp, fmt.Sprintf("%s can advance to level %d!", p.char.Name, pending.NewLevel),
			map[string]any{"newLevel": pending.NewLevel, "experience": pending.RemainingXP})
	}
	return nil
}

func (e *Engine) summarize(p *pass) error {
	if len(p.summary) == 0 {
		return nil
	}
	entry := e.journalEntry(p, model.JournalSummary, "What happened", strings.Join(p.summary, "; "))
	p.notify(model.NotifyToast, entry.Content, map[string]any{"journalId": entry.ID})
	return nil
}

func (e *Engine) ambientContext(p *pass) error {
	mood := ""
	switch {
	case p.update.CombatStart != nil && len(p.update.CombatStart.Enemies) > 0:
		mood = MoodCombat
	case p.forcedRest || p.onTheEdge:
		mood = MoodTense
	case p.levelUp != nil || p.questClosed:
		mood = MoodTriumphant
	case p.update.Narrative != nil:
		mood = MoodExploration
	}
	if mood == "" {
		return nil
	}
	p.notify(model.NotifyMusic, mood, map[string]any{"mood": mood})
	return nil
}

func (e *Engine) journalEntry(p *pass, kind, title, content string) model.JournalEntry {
	entry := model.JournalEntry{
		ID:          e.newID(),
		CharacterID: p.char.ID,
		Kind:        kind,
		Title:       title,
		Content:     content,
		GameTime:    p.char.Time,
		CreatedAt:   e.now(),
	}
	p.journal = append(p.journal, entry)
	p.dirty.MarkJournal(entry.ID)
	return entry
}

func clampVitals(v model.Vitals, limit model.Stats) model.Vitals {
	return model.Vitals{
		CurrentHealth:  clampInt(v.CurrentHealth, limit.Health),
		CurrentMagicka: clampInt(v.CurrentMagicka, limit.Magicka),
		CurrentStamina: clampInt(v.CurrentStamina, limit.Stamina),
	}
}

func clampInt(v, hi int) int {
	if v > hi {
		v = hi
	}
	if v < 0 {
		v = 0
	}
	return v
}

func describeElapsed(from, to model.GameTime) string {
	minutes := ((to.Day-from.Day)*24+(to.Hour-from.Hour))*60 + (to.Minute - from.Minute)
	sign := ""
	if minutes < 0 {
		sign = "-"
		minutes = -minutes
	}
	return fmt.Sprintf("%s%dh %dm passed", sign, minutes/60, minutes%60)
}
