// Package survival advances the in-game clock and accrues hunger, thirst
// and fatigue. It derives threshold status effects and decides when a
// forced rest prompt should be raised.
package survival

import (
	"math"
	"time"

	"narrative-companion/internal/model"
)

const minutesPerDay = 24 * 60

// Need names used in effect ids.
const (
	NeedHunger  = "hunger"
	NeedThirst  = "thirst"
	NeedFatigue = "fatigue"
)

// Severities used in effect ids.
const (
	SeverityWarn     = "warn"
	SeveritySevere   = "severe"
	SeverityCritical = "critical"
)

// OnTheEdgeID is the compound hunger+thirst effect.
const OnTheEdgeID = model.SurvivalEffectPrefix + "on_the_edge"

// Rates are need accrual amounts per in-game minute.
type Rates struct {
	Hunger  float64
	Thirst  float64
	Fatigue float64
}

// Thresholds are the need levels at which effects are derived.
type Thresholds struct {
	Warn     float64
	Severe   float64
	Critical float64
}

// Config holds simulator tuning.
type Config struct {
	Rates              Rates
	Thresholds         Thresholds
	CollapseSum        float64
	RestCooldown       time.Duration
	ForcedRestCooldown time.Duration
}

// DefaultConfig returns the standard rates and thresholds.
func DefaultConfig() Config {
	return Config{
		Rates:              Rates{Hunger: 1.0 / 180, Thirst: 1.0 / 120, Fatigue: 1.0 / 90},
		Thresholds:         Thresholds{Warn: 60, Severe: 80, Critical: 100},
		CollapseSum:        200,
		RestCooldown:       60 * time.Second,
		ForcedRestCooldown: 5 * time.Minute,
	}
}

// Input is one simulation step.
type Input struct {
	Time           model.GameTime
	Needs          model.Needs
	ElapsedMinutes float64
	Deltas         model.NeedsDelta
	Rest           RestStatus
	Now            time.Time
}

// Outcome is the result of a simulation step.
type Outcome struct {
	Time       model.GameTime
	Needs      model.Needs
	Effects    []model.StatusEffect
	ForcedRest bool
	OnTheEdge  bool
}

// Simulator applies the survival rules.
type Simulator struct {
	cfg Config
}

// New creates a simulator. Zero-valued thresholds fall back to defaults.
func New(cfg Config) *Simulator {
	def := DefaultConfig()
	if cfg.Thresholds.Critical <= 0 {
		cfg.Thresholds = def.Thresholds
	}
	if cfg.CollapseSum <= 0 {
		cfg.CollapseSum = def.CollapseSum
	}
	return &Simulator{cfg: cfg}
}

// Config returns the simulator configuration.
func (s *Simulator) Config() Config {
	return s.cfg
}

// Advance runs one step. It never fails: malformed elapsed values
// simply produce no accrual and no clock movement.
func (s *Simulator) Advance(in Input) Outcome {
	out := Outcome{
		Time: AdvanceClock(in.Time, in.ElapsedMinutes),
		Needs: model.Needs{
			Hunger:  nextNeed(in.Needs.Hunger, Accrue(in.ElapsedMinutes, s.cfg.Rates.Hunger), in.Deltas.Hunger),
			Thirst:  nextNeed(in.Needs.Thirst, Accrue(in.ElapsedMinutes, s.cfg.Rates.Thirst), in.Deltas.Thirst),
			Fatigue: nextNeed(in.Needs.Fatigue, Accrue(in.ElapsedMinutes, s.cfg.Rates.Fatigue), in.Deltas.Fatigue),
		},
	}

	out.ForcedRest = s.shouldForceRest(out.Needs, in)
	out.Effects, out.OnTheEdge = s.deriveEffects(out.Needs, out.ForcedRest)
	return out
}

// AdvanceClock moves the clock by elapsed minutes using floor division,
// so negative values roll the day backward. Day never drops below 1.
func AdvanceClock(t model.GameTime, elapsed float64) model.GameTime {
	if math.IsNaN(elapsed) || math.IsInf(elapsed, 0) {
		elapsed = 0
	}
	total := t.Hour*60 + t.Minute + int(math.Round(elapsed))
	dayShift := floorDiv(total, minutesPerDay)
	remainder := ((total % minutesPerDay) + minutesPerDay) % minutesPerDay

	day := t.Day + dayShift
	if day < 1 {
		day = 1
	}
	return model.GameTime{Day: day, Hour: remainder / 60, Minute: remainder % 60}
}

// Accrue returns elapsed*rate rounded to one decimal. Non-finite or
// non-positive elapsed values accrue nothing.
func Accrue(elapsed, rate float64) float64 {
	if math.IsNaN(elapsed) || math.IsInf(elapsed, 0) || elapsed <= 0 {
		return 0
	}
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0
	}
	return round1(elapsed * rate)
}

func nextNeed(current, accrued, delta float64) float64 {
	if math.IsNaN(current) || math.IsInf(current, 0) {
		current = 0
	}
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		delta = 0
	}
	return round1(clamp(current+accrued+delta, 0, 100))
}

func (s *Simulator) shouldForceRest(needs model.Needs, in Input) bool {
	if needs.Fatigue < s.cfg.Thresholds.Critical {
		return false
	}
	// a rest already embedded in this update satisfies the need
	if in.Deltas.Fatigue < 0 {
		return false
	}
	if in.Rest.PromptOpen {
		return false
	}
	if !in.Rest.LastRestAt.IsZero() && in.Now.Sub(in.Rest.LastRestAt) < s.cfg.RestCooldown {
		return false
	}
	if !in.Rest.LastForcedRestAt.IsZero() && in.Now.Sub(in.Rest.LastForcedRestAt) < s.cfg.ForcedRestCooldown {
		return false
	}
	return true
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
