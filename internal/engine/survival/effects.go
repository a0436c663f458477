package survival

import (
	"narrative-companion/internal/model"
)

type effectTemplate struct {
	name     string
	stat     string
	modifier float64
}

// effectTable maps need -> severity -> effect template.
var effectTable = map[string]map[string]effectTemplate{
	NeedHunger: {
		SeverityWarn:     {name: "Hungry", stat: "staminaRegen", modifier: -10},
		SeveritySevere:   {name: "Starving", stat: "staminaRegen", modifier: -25},
		SeverityCritical: {name: "Wasting Away", stat: "healthRegen", modifier: -50},
	},
	NeedThirst: {
		SeverityWarn:     {name: "Thirsty", stat: "magickaRegen", modifier: -10},
		SeveritySevere:   {name: "Parched", stat: "magickaRegen", modifier: -25},
		SeverityCritical: {name: "Dehydrated", stat: "healthRegen", modifier: -50},
	},
	NeedFatigue: {
		SeverityWarn:     {name: "Tired", stat: "staminaRegen", modifier: -10},
		SeveritySevere:   {name: "Exhausted", stat: "stamina", modifier: -25},
		SeverityCritical: {name: "Collapsing", stat: "stamina", modifier: -50},
	},
}

// EffectID returns the stable id for a need at a severity.
func EffectID(need, severity string) string {
	return model.SurvivalEffectPrefix + need + "_" + severity
}

// Severity returns the highest severity reached by value, or "".
func (s *Simulator) Severity(value float64) string {
	switch {
	case value >= s.cfg.Thresholds.Critical:
		return SeverityCritical
	case value >= s.cfg.Thresholds.Severe:
		return SeveritySevere
	case value >= s.cfg.Thresholds.Warn:
		return SeverityWarn
	default:
		return ""
	}
}

// deriveEffects builds the full simulator-owned effect set for needs.
// Each need contributes at most one effect.
func (s *Simulator) deriveEffects(needs model.Needs, forcedRest bool) ([]model.StatusEffect, bool) {
	var effects []model.StatusEffect
	for _, n := range []struct {
		need  string
		value float64
	}{
		{NeedHunger, needs.Hunger},
		{NeedThirst, needs.Thirst},
		{NeedFatigue, needs.Fatigue},
	} {
		severity := s.Severity(n.value)
		if severity == "" {
			continue
		}
		tpl := effectTable[n.need][severity]
		effects = append(effects, model.StatusEffect{
			ID:       EffectID(n.need, severity),
			Name:     tpl.name,
			Type:     model.EffectDebuff,
			Duration: model.IndefiniteDuration,
			Effects:  []model.EffectModifier{{Stat: tpl.stat, Value: tpl.modifier}},
		})
	}

	onTheEdge := !forcedRest && needs.Hunger+needs.Thirst >= s.cfg.CollapseSum-10
	if onTheEdge {
		effects = append(effects, model.StatusEffect{
			ID:       OnTheEdgeID,
			Name:     "On the Edge",
			Type:     model.EffectDebuff,
			Duration: model.IndefiniteDuration,
			Effects: []model.EffectModifier{
				{Stat: "health", Value: -10},
				{Stat: "stamina", Value: -10},
			},
		})
	}
	return effects, onTheEdge
}

// ReplaceSurvivalEffects swaps the simulator-owned subset of all for
// derived. Effects from other producers keep their order and values.
func ReplaceSurvivalEffects(all, derived []model.StatusEffect) []model.StatusEffect {
	out := make([]model.StatusEffect, 0, len(all)+len(derived))
	for _, e := range all {
		if e.IsSurvival() {
			continue
		}
		out = append(out, e)
	}
	return append(out, derived...)
}
