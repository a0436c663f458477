// Package model defines the data models shared by the update engine,
// the repositories and the chat adapter.
package model

import (
	"strings"
	"time"
)

// Stats holds the maxima for a character's vitals.
// Only confirmed level-ups or explicit overrides change these.
type Stats struct {
	Health  int `json:"health"`
	Magicka int `json:"magicka"`
	Stamina int `json:"stamina"`
}

// Vitals holds the current values, clamped to [0, corresponding max].
type Vitals struct {
	CurrentHealth  int `json:"currentHealth"`
	CurrentMagicka int `json:"currentMagicka"`
	CurrentStamina int `json:"currentStamina"`
}

// GameTime is the in-game clock. Day starts at 1.
type GameTime struct {
	Day    int `json:"day"`
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// Needs are the survival meters, each clamped to [0, 100].
type Needs struct {
	Hunger  float64 `json:"hunger"`
	Thirst  float64 `json:"thirst"`
	Fatigue float64 `json:"fatigue"`
}

// Perk is an unlocked perk with its rank.
type Perk struct {
	ID      string `json:"id"`
	Rank    int    `json:"rank"`
	Mastery int    `json:"mastery"`
}

// Skill is a named skill level.
type Skill struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
}

// Character is the persisted player character.
// The engine receives and returns full replacement values.
type Character struct {
	ID            string         `json:"id"`
	UserID        int64          `json:"userId"`
	Name          string         `json:"name"`
	Race          string         `json:"race,omitempty"`
	Class         string         `json:"class,omitempty"`
	Archetype     string         `json:"archetype,omitempty"`
	Backstory     string         `json:"backstory,omitempty"`
	Appearance    string         `json:"appearance,omitempty"`
	Level         int            `json:"level"`
	Experience    int            `json:"experience"`
	Stats         Stats          `json:"stats"`
	Vitals        Vitals         `json:"currentVitals"`
	Gold          int            `json:"gold"`
	Time          GameTime       `json:"time"`
	Needs         Needs          `json:"needs"`
	Perks         []Perk         `json:"perks,omitempty"`
	PerkPoints    int            `json:"perkPoints"`
	Skills        []Skill        `json:"skills,omitempty"`
	StatusEffects []StatusEffect `json:"statusEffects,omitempty"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Clone returns a deep copy so that passes never alias caller state.
func (c Character) Clone() Character {
	out := c
	out.Perks = append([]Perk(nil), c.Perks...)
	out.Skills = append([]Skill(nil), c.Skills...)
	out.StatusEffects = make([]StatusEffect, len(c.StatusEffects))
	for i, e := range c.StatusEffects {
		out.StatusEffects[i] = e.Clone()
	}
	if c.StatusEffects == nil {
		out.StatusEffects = nil
	}
	return out
}

// NewCharacter returns a level 1 character with default vitals.
func NewCharacter(id string, userID int64, name string) Character {
	stats := Stats{Health: 100, Magicka: 100, Stamina: 100}
	return Character{
		ID:     id,
		UserID: userID,
		Name:   name,
		Level:  1,
		Stats:  stats,
		Vitals: Vitals{
			CurrentHealth:  stats.Health,
			CurrentMagicka: stats.Magicka,
			CurrentStamina: stats.Stamina,
		},
		Time: GameTime{Day: 1, Hour: 8},
	}
}

// Item types with special merge rules.
const (
	ItemTypeWeapon  = "weapon"
	ItemTypeApparel = "apparel"
	ItemTypePotion  = "potion"
)

// Potion subtypes.
const (
	PotionHealth  = "health"
	PotionMagicka = "magicka"
	PotionStamina = "stamina"
)

// InventoryItem is one persisted inventory record.
// A record with Quantity <= 0 is a delete instruction, never a valid state.
type InventoryItem struct {
	ID           string   `json:"id"`
	CharacterID  string   `json:"characterId"`
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Subtype      string   `json:"subtype,omitempty"`
	Description  string   `json:"description,omitempty"`
	Quantity     int      `json:"quantity"`
	Equipped     bool     `json:"equipped"`
	EquippedBy   string   `json:"equippedBy,omitempty"`
	Armor        *float64 `json:"armor,omitempty"`
	Damage       *float64 `json:"damage,omitempty"`
	Weight       *float64 `json:"weight,omitempty"`
	Value        *float64 `json:"value,omitempty"`
	Slot         string   `json:"slot,omitempty"`
	Rarity       string   `json:"rarity,omitempty"`
	UpgradeLevel int      `json:"upgradeLevel,omitempty"`
	Stackable    bool     `json:"stackable,omitempty"`
}

// IsEquipment reports whether the item is a weapon or apparel.
func (i InventoryItem) IsEquipment() bool {
	t := strings.ToLower(i.Type)
	return t == ItemTypeWeapon || t == ItemTypeApparel
}

// Quest statuses.
const (
	QuestActive    = "active"
	QuestCompleted = "completed"
	QuestFailed    = "failed"
)

// Objective is a single quest step.
type Objective struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Reward is a gold/XP pair.
type Reward struct {
	XP   int `json:"xp"`
	Gold int `json:"gold"`
}

// Quest is an entry in the character's quest log.
type Quest struct {
	ID            string      `json:"id"`
	CharacterID   string      `json:"characterId"`
	Title         string      `json:"title"`
	Description   string      `json:"description,omitempty"`
	Status        string      `json:"status"`
	Objectives    []Objective `json:"objectives,omitempty"`
	DefaultReward *Reward     `json:"defaultReward,omitempty"`
	// Rewarded is set once the completion reward has been paid.
	Rewarded bool `json:"rewarded,omitempty"`
}

// Journal entry kinds.
const (
	JournalNarrative = "narrative"
	JournalSummary   = "summary"
	JournalLevelUp   = "level_up"
	JournalRest      = "rest"
)

// JournalEntry is one line of the story log.
type JournalEntry struct {
	ID          string    `json:"id"`
	CharacterID string    `json:"characterId"`
	Kind        string    `json:"kind"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	GameTime    GameTime  `json:"gameTime"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PendingLevelUp is a level-up earned by XP but not yet confirmed.
type PendingLevelUp struct {
	CharID      string `json:"charId"`
	CharName    string `json:"charName"`
	NewLevel    int    `json:"newLevel"`
	RemainingXP int    `json:"remainingXP"`
	Archetype   string `json:"archetype,omitempty"`
	PreviousXP  int    `json:"previousXP"`
}

// TransactionRecord remembers which effects a transaction id already granted.
type TransactionRecord struct {
	TransactionID string    `json:"transactionId"`
	AppliedFields []string  `json:"appliedFields"`
	Timestamp     time.Time `json:"timestamp"`
}

// Has reports whether the record contains the given field.
func (r TransactionRecord) Has(field string) bool {
	for _, f := range r.AppliedFields {
		if f == field {
			return true
		}
	}
	return false
}
