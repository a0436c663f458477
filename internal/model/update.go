package model

// Field names recorded in a TransactionRecord. Narrative and biography
// merges are idempotent and never recorded.
const (
	FieldXP      = "xp"
	FieldGold    = "gold"
	FieldItems   = "items"
	FieldQuests  = "quests"
	FieldTime    = "time"
	FieldNeeds   = "needs"
	FieldVitals  = "vitals"
	FieldStats   = "stats"
	FieldSkills  = "skills"
	FieldEffects = "effects"
	FieldCombat  = "combat"
)

// LocallyAppliedFields are the fields an optimistic UI update has already granted.
var LocallyAppliedFields = []string{FieldXP, FieldGold, FieldItems}

// Narrative is the story text produced for this beat.
type Narrative struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// QuestSeed creates a new quest.
type QuestSeed struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Objectives  []string `json:"objectives,omitempty"`
	Reward      *Reward  `json:"reward,omitempty"`
}

// QuestTransition moves an existing quest to a new status.
type QuestTransition struct {
	Title              string      `json:"title"`
	Status             string      `json:"status"`
	ObjectivesOverride []Objective `json:"objectivesOverride,omitempty"`
	XPAward            *int        `json:"xpAward,omitempty"`
	GoldAward          *int        `json:"goldAward,omitempty"`
}

// ItemGrant is an incoming, not yet sanitized item.
type ItemGrant struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Subtype      string   `json:"subtype,omitempty"`
	Description  string   `json:"description,omitempty"`
	Quantity     *float64 `json:"quantity,omitempty"`
	Armor        *float64 `json:"armor,omitempty"`
	Damage       *float64 `json:"damage,omitempty"`
	Weight       *float64 `json:"weight,omitempty"`
	Value        *float64 `json:"value,omitempty"`
	Slot         string   `json:"slot,omitempty"`
	Rarity       string   `json:"rarity,omitempty"`
	UpgradeLevel int      `json:"upgradeLevel,omitempty"`
	Stackable    *bool    `json:"stackable,omitempty"`
	ForceCreate  bool     `json:"forceCreate,omitempty"`
}

// ItemPatch is a full-field merge onto the item with the same ID.
type ItemPatch struct {
	ID           string   `json:"id"`
	Name         *string  `json:"name,omitempty"`
	Type         *string  `json:"type,omitempty"`
	Subtype      *string  `json:"subtype,omitempty"`
	Description  *string  `json:"description,omitempty"`
	Quantity     *int     `json:"quantity,omitempty"`
	Equipped     *bool    `json:"equipped,omitempty"`
	EquippedBy   *string  `json:"equippedBy,omitempty"`
	Armor        *float64 `json:"armor,omitempty"`
	Damage       *float64 `json:"damage,omitempty"`
	Weight       *float64 `json:"weight,omitempty"`
	Value        *float64 `json:"value,omitempty"`
	Slot         *string  `json:"slot,omitempty"`
	Rarity       *string  `json:"rarity,omitempty"`
	UpgradeLevel *int     `json:"upgradeLevel,omitempty"`
}

// ItemRemoval removes Quantity units (default 1) by name.
type ItemRemoval struct {
	Name     string `json:"name"`
	Quantity *int   `json:"quantity,omitempty"`
}

// StatsPatch overrides stat maxima directly.
type StatsPatch struct {
	Health  *int `json:"health,omitempty"`
	Magicka *int `json:"magicka,omitempty"`
	Stamina *int `json:"stamina,omitempty"`
}

// SkillGain raises (or creates) a named skill.
type SkillGain struct {
	Name   string `json:"name"`
	Amount int    `json:"amount"`
}

// VitalsDelta changes current vitals; the result is clamped.
type VitalsDelta struct {
	Health  int `json:"health"`
	Magicka int `json:"magicka"`
	Stamina int `json:"stamina"`
}

// NeedsDelta is an explicit change to survival needs. A negative
// fatigue delta means a rest is embedded in the update.
type NeedsDelta struct {
	Hunger  float64 `json:"hunger"`
	Thirst  float64 `json:"thirst"`
	Fatigue float64 `json:"fatigue"`
}

// CombatEnemy describes one opponent of a combat start.
type CombatEnemy struct {
	Name   string `json:"name"`
	Health int    `json:"health"`
	Level  int    `json:"level,omitempty"`
}

// CombatStart hands an encounter to the external combat subsystem.
type CombatStart struct {
	Location    string        `json:"location,omitempty"`
	Description string        `json:"description,omitempty"`
	Enemies     []CombatEnemy `json:"enemies"`
}

// CharacterPatch merges narrative-authored biography fields.
type CharacterPatch struct {
	Name       *string `json:"name,omitempty"`
	Race       *string `json:"race,omitempty"`
	Class      *string `json:"class,omitempty"`
	Archetype  *string `json:"archetype,omitempty"`
	Backstory  *string `json:"backstory,omitempty"`
	Appearance *string `json:"appearance,omitempty"`
}

// Update is one game master beat. Every field is optional.
type Update struct {
	TransactionID         string            `json:"transactionId,omitempty"`
	Narrative             *Narrative        `json:"narrative,omitempty"`
	NewQuests             []QuestSeed       `json:"newQuests,omitempty"`
	UpdateQuests          []QuestTransition `json:"updateQuests,omitempty"`
	NewItems              []ItemGrant       `json:"newItems,omitempty"`
	UpdatedItems          []ItemPatch       `json:"updatedItems,omitempty"`
	RemovedItems          []ItemRemoval     `json:"removedItems,omitempty"`
	StatUpdates           *StatsPatch       `json:"statUpdates,omitempty"`
	SkillGains            []SkillGain       `json:"skillGains,omitempty"`
	VitalsChange          *VitalsDelta      `json:"vitalsChange,omitempty"`
	StatusEffects         []StatusEffect    `json:"statusEffects,omitempty"`
	CombatStart           *CombatStart      `json:"combatStart,omitempty"`
	GoldChange            *int              `json:"goldChange,omitempty"`
	XPChange              *int              `json:"xpChange,omitempty"`
	TimeAdvanceMinutes    *float64          `json:"timeAdvanceMinutes,omitempty"`
	NeedsChange           *NeedsDelta       `json:"needsChange,omitempty"`
	CharacterUpdates      *CharacterPatch   `json:"characterUpdates,omitempty"`
	AlreadyAppliedLocally bool              `json:"_alreadyAppliedLocally,omitempty"`
}

// Fields lists the effect-granting fields present in the update.
func (u Update) Fields() []string {
	var fields []string
	if u.XPChange != nil {
		fields = append(fields, FieldXP)
	}
	if u.GoldChange != nil {
		fields = append(fields, FieldGold)
	}
	if len(u.NewItems) > 0 || len(u.UpdatedItems) > 0 || len(u.RemovedItems) > 0 {
		fields = append(fields, FieldItems)
	}
	if len(u.NewQuests) > 0 || len(u.UpdateQuests) > 0 {
		fields = append(fields, FieldQuests)
	}
	if u.TimeAdvanceMinutes != nil {
		fields = append(fields, FieldTime)
	}
	if u.NeedsChange != nil {
		fields = append(fields, FieldNeeds)
	}
	if u.VitalsChange != nil {
		fields = append(fields, FieldVitals)
	}
	if u.StatUpdates != nil {
		fields = append(fields, FieldStats)
	}
	if len(u.SkillGains) > 0 {
		fields = append(fields, FieldSkills)
	}
	if len(u.StatusEffects) > 0 {
		fields = append(fields, FieldEffects)
	}
	if u.CombatStart != nil {
		fields = append(fields, FieldCombat)
	}
	return fields
}

// Without returns a copy of the update with the named fields cleared.
func (u Update) Without(fields ...string) Update {
	out := u
	for _, f := range fields {
		switch f {
		case FieldXP:
			out.XPChange = nil
		case FieldGold:
			out.GoldChange = nil
		case FieldItems:
			out.NewItems = nil
			out.UpdatedItems = nil
			out.RemovedItems = nil
		case FieldQuests:
			out.NewQuests = nil
			out.UpdateQuests = nil
		case FieldTime:
			out.TimeAdvanceMinutes = nil
		case FieldNeeds:
			out.NeedsChange = nil
		case FieldVitals:
			out.VitalsChange = nil
		case FieldStats:
			out.StatUpdates = nil
		case FieldSkills:
			out.SkillGains = nil
		case FieldEffects:
			out.StatusEffects = nil
		case FieldCombat:
			out.CombatStart = nil
		}
	}
	return out
}
