package model

import "strings"

// SurvivalEffectPrefix marks status effects owned by the survival simulator.
const SurvivalEffectPrefix = "survival_"

// Effect types.
const (
	EffectBuff   = "buff"
	EffectDebuff = "debuff"
)

// EffectModifier is one stat modification carried by a status effect.
type EffectModifier struct {
	Stat  string  `json:"stat"`
	Value float64 `json:"value"`
}

// StatusEffect is a timed buff or debuff. Duration is decremented
// externally by a 1Hz ticker.
type StatusEffect struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Type     string           `json:"type"`
	Duration int              `json:"duration"`
	Effects  []EffectModifier `json:"effects,omitempty"`
}

// Clone returns a deep copy.
func (e StatusEffect) Clone() StatusEffect {
	out := e
	out.Effects = append([]EffectModifier(nil), e.Effects...)
	return out
}

// IsSurvival reports whether the survival simulator owns this effect.
func (e StatusEffect) IsSurvival() bool {
	return strings.HasPrefix(e.ID, SurvivalEffectPrefix)
}

// IndefiniteDuration marks effects that are replaced by their producer
// rather than ticked down.
const IndefiniteDuration = -1
