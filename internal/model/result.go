package model

import (
	"sort"
	"time"
)

// Notification kinds emitted by an update pass.
const (
	NotifyJournal    = "journal"
	NotifyToast      = "toast"
	NotifyQuest      = "quest"
	NotifyLevelUp    = "level_up"
	NotifyForcedRest = "forced_rest"
	NotifyCombat     = "combat"
	NotifyMusic      = "music"
)

// Notification is a side effect for the presentation layer.
type Notification struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Delay   time.Duration  `json:"delay,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// DirtySet records which persisted entities changed during a pass.
type DirtySet struct {
	CharacterID  string
	Character    bool
	Items        map[string]struct{}
	DeletedItems map[string]struct{}
	Quests       map[string]struct{}
	Journal      map[string]struct{}
}

// NewDirtySet creates an empty dirty set for a character.
func NewDirtySet(characterID string) *DirtySet {
	return &DirtySet{
		CharacterID:  characterID,
		Items:        make(map[string]struct{}),
		DeletedItems: make(map[string]struct{}),
		Quests:       make(map[string]struct{}),
		Journal:      make(map[string]struct{}),
	}
}

// MarkCharacter flags the character row.
func (d *DirtySet) MarkCharacter() { d.Character = true }

// MarkItem flags an item for upsert.
func (d *DirtySet) MarkItem(id string) {
	delete(d.DeletedItems, id)
	d.Items[id] = struct{}{}
}

// DeleteItem flags an item for deletion.
func (d *DirtySet) DeleteItem(id string) {
	delete(d.Items, id)
	d.DeletedItems[id] = struct{}{}
}

// MarkQuest flags a quest for upsert.
func (d *DirtySet) MarkQuest(id string) { d.Quests[id] = struct{}{} }

// MarkJournal flags a new journal entry.
func (d *DirtySet) MarkJournal(id string) { d.Journal[id] = struct{}{} }

// Merge folds another dirty set for the same character into d.
// Later deletions win over earlier upserts and vice versa.
func (d *DirtySet) Merge(other *DirtySet) {
	if other == nil {
		return
	}
	if other.Character {
		d.Character = true
	}
	for id := range other.Items {
		d.MarkItem(id)
	}
	for id := range other.DeletedItems {
		d.DeleteItem(id)
	}
	for id := range other.Quests {
		d.MarkQuest(id)
	}
	for id := range other.Journal {
		d.MarkJournal(id)
	}
}

// Empty reports whether nothing is dirty.
func (d *DirtySet) Empty() bool {
	return !d.Character && len(d.Items) == 0 && len(d.DeletedItems) == 0 &&
		len(d.Quests) == 0 && len(d.Journal) == 0
}

// SortedIDs returns the keys of a set in ascending order.
func SortedIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Changeset is what a writer persists for one character: full rows to
// upsert and item ids to delete.
type Changeset struct {
	CharacterID  string
	Character    *Character
	Items        []InventoryItem
	DeletedItems []string
	Quests       []Quest
	Journal      []JournalEntry
}

// Empty reports whether there is nothing to write.
func (c Changeset) Empty() bool {
	return c.Character == nil && len(c.Items) == 0 && len(c.DeletedItems) == 0 &&
		len(c.Quests) == 0 && len(c.Journal) == 0
}
