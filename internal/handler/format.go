package handler

import (
	"fmt"
	"sort"
	"strings"

	"narrative-companion/internal/engine"
	"narrative-companion/internal/model"
	"narrative-companion/internal/service"
)

const divider = "━━━━━━━━━━━━━━━\n"

// FormatSheet renders the character sheet.
func FormatSheet(c model.Character) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🧝 %s, level %d", c.Name, c.Level)
	if c.Race != "" || c.Class != "" {
		fmt.Fprintf(&b, " %s", strings.TrimSpace(c.Race+" "+c.Class))
	}
	b.WriteString("\n")
	b.WriteString(divider)
	fmt.Fprintf(&b, "❤️ Health: %d/%d\n", c.Vitals.CurrentHealth, c.Stats.Health)
	fmt.Fprintf(&b, "💙 Magicka: %d/%d\n", c.Vitals.CurrentMagicka, c.Stats.Magicka)
	fmt.Fprintf(&b, "💚 Stamina: %d/%d\n", c.Vitals.CurrentStamina, c.Stats.Stamina)
	fmt.Fprintf(&b, "⭐ XP: %d\n", c.Experience)
	fmt.Fprintf(&b, "🪙 Gold: %d\n", c.Gold)
	if c.PerkPoints > 0 {
		fmt.Fprintf(&b, "✨ Perk points: %d\n", c.PerkPoints)
	}
	b.WriteString(divider)
	fmt.Fprintf(&b, "🕰️ %s\n", FormatGameTime(c.Time))
	fmt.Fprintf(&b, "🍖 Hunger %.0f  💧 Thirst %.0f  💤 Fatigue %.0f\n", c.Needs.Hunger, c.Needs.Thirst, c.Needs.Fatigue)

	if len(c.StatusEffects) > 0 {
		names := make([]string, 0, len(c.StatusEffects))
		for _, e := range c.StatusEffects {
			names = append(names, e.Name)
		}
		fmt.Fprintf(&b, "🌀 %s\n", strings.Join(names, ", "))
	}
	if len(c.Skills) > 0 {
		skills := append([]model.Skill(nil), c.Skills...)
		sort.Slice(skills, func(i, j int) bool { return skills[i].Level > skills[j].Level })
		parts := make([]string, 0, len(skills))
		for _, s := range skills {
			parts = append(parts, fmt.Sprintf("%s %d", s.Name, s.Level))
		}
		fmt.Fprintf(&b, "📚 %s\n", strings.Join(parts, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatGameTime renders the in-game clock.
func FormatGameTime(t model.GameTime) string {
	return fmt.Sprintf("Day %d, %02d:%02d", t.Day, t.Hour, t.Minute)
}

// FormatInventory renders the inventory list.
func FormatInventory(items []model.InventoryItem, gold int) string {
	var b strings.Builder
	b.WriteString("🎒 Inventory\n")
	b.WriteString(divider)
	if len(items) == 0 {
		b.WriteString("Empty.\n")
	}
	for _, it := range items {
		mark := "•"
		if it.Equipped {
			mark = "⚔️"
		}
		fmt.Fprintf(&b, "%s %s", mark, it.Name)
		if it.Quantity > 1 {
			fmt.Fprintf(&b, " x%d", it.Quantity)
		}
		switch {
		case it.Damage != nil && it.Type != model.ItemTypePotion:
			fmt.Fprintf(&b, " (dmg %.0f)", *it.Damage)
		case it.Armor != nil:
			fmt.Fprintf(&b, " (armor %.0f)", *it.Armor)
		}
		b.WriteString("\n")
	}
	b.WriteString(divider)
	fmt.Fprintf(&b, "🪙 Gold: %d", gold)
	return b.String()
}

// FormatQuests renders the quest log, active quests first.
func FormatQuests(quests []model.Quest) string {
	if len(quests) == 0 {
		return "📜 No quests yet."
	}

	var b strings.Builder
	b.WriteString("📜 Quest log\n")
	b.WriteString(divider)
	for _, status := range []string{model.QuestActive, model.QuestCompleted, model.QuestFailed} {
		for _, q := range quests {
			if q.Status != status {
				continue
			}
			fmt.Fprintf(&b, "%s %s\n", questIcon(q.Status), q.Title)
			if q.Status != model.QuestActive {
				continue
			}
			for _, o := range q.Objectives {
				box := "☐"
				if o.Completed {
					box = "☑"
				}
				fmt.Fprintf(&b, "   %s %s\n", box, o.Text)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func questIcon(status string) string {
	switch status {
	case model.QuestCompleted:
		return "✅"
	case model.QuestFailed:
		return "❌"
	default:
		return "🔸"
	}
}

// FormatJournal renders journal entries, newest first.
func FormatJournal(entries []model.JournalEntry) string {
	if len(entries) == 0 {
		return "📖 The journal is empty."
	}

	var b strings.Builder
	b.WriteString("📖 Journal\n")
	b.WriteString(divider)
	for _, e := range entries {
		fmt.Fprintf(&b, "[%s] %s\n%s\n\n", FormatGameTime(e.GameTime), e.Title, e.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatResult renders the outcome of an update pass for chat.
func FormatResult(res *engine.Result) string {
	var b strings.Builder
	for _, e := range res.Journal {
		if e.Kind == model.JournalNarrative {
			fmt.Fprintf(&b, "📖 %s\n%s\n\n", e.Title, e.Content)
		}
	}
	for _, e := range res.Journal {
		if e.Kind == model.JournalSummary {
			fmt.Fprintf(&b, "📝 %s\n", e.Content)
		}
	}
	for _, n := range res.Notifications {
		switch n.Kind {
		case model.NotifyLevelUp, model.NotifyForcedRest, model.NotifyQuest, model.NotifyCombat:
			fmt.Fprintf(&b, "%s %s\n", notificationIcon(n.Kind), n.Message)
		}
	}
	if res.Filtered && res.FilterReason != "" {
		fmt.Fprintf(&b, "ℹ️ Rewards skipped: %s\n", res.FilterReason)
	}
	if len(res.Failures) > 0 {
		fmt.Fprintf(&b, "⚠️ %d part(s) of this update could not be applied.\n", len(res.Failures))
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return "✅ Nothing changed."
	}
	return out
}

func notificationIcon(kind string) string {
	switch kind {
	case model.NotifyLevelUp:
		return "🎉"
	case model.NotifyForcedRest:
		return "😴"
	case model.NotifyQuest:
		return "📜"
	case model.NotifyCombat:
		return "⚔️"
	default:
		return "•"
	}
}

// FormatLevelUp renders the level-up prompt.
func FormatLevelUp(st service.LevelUpStatus) string {
	switch {
	case st.Pending != nil:
		return fmt.Sprintf("🎉 %s can advance to level %d!\nChoose an attribute to raise:",
			st.Pending.CharName, st.Pending.NewLevel)
	case st.Available != nil:
		return fmt.Sprintf("⏳ A level-up to level %d was postponed. Use /levelup resume to continue.",
			st.Available.NewLevel)
	default:
		return "No level-up is waiting."
	}
}

// FormatPerks renders the perk list with current ranks.
func FormatPerks(c model.Character) string {
	ranks := make(map[string]int, len(c.Perks))
	for _, p := range c.Perks {
		ranks[p.ID] = p.Rank
	}

	ids := make([]string, 0, len(service.Perks))
	for id := range service.Perks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	fmt.Fprintf(&b, "✨ Perks (points: %d)\n", c.PerkPoints)
	b.WriteString(divider)
	for _, id := range ids {
		p := service.Perks[id]
		fmt.Fprintf(&b, "%s [%d/%d] %s\n   %s\n", p.ID, ranks[id], p.MaxRank, p.Name, p.Description)
	}
	b.WriteString("Use /perk <id> to unlock.")
	return b.String()
}
