// Package inventory resolves item grants, removals and id-based updates
// against a character's item collection.
//
// All operations are pure: they take the current items and return the
// next items plus a Change report. The input slice is never modified.
package inventory

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"narrative-companion/internal/model"
)

// Change reports what an operation did to the collection.
type Change struct {
	Created []string
	Updated []string
	Deleted []string
	// Lines are human readable descriptions for the journal summary.
	Lines []string
}

// Empty reports whether the operation changed nothing.
func (c Change) Empty() bool {
	return len(c.Created) == 0 && len(c.Updated) == 0 && len(c.Deleted) == 0
}

// Apply marks every changed id in dirty.
func (c Change) Apply(dirty *model.DirtySet) {
	for _, id := range c.Created {
		dirty.MarkItem(id)
	}
	for _, id := range c.Updated {
		dirty.MarkItem(id)
	}
	for _, id := range c.Deleted {
		dirty.DeleteItem(id)
	}
}

// Incoming is a sanitized grant ready to merge.
type Incoming struct {
	Item        model.InventoryItem
	Stackable   bool
	ForceCreate bool
}

// Merger applies grants. It owns id generation so tests can fix ids.
type Merger struct {
	newID func() string
}

// NewMerger creates a merger that assigns random UUIDs.
func NewMerger() *Merger {
	return &Merger{newID: uuid.NewString}
}

// NewMergerWithIDs creates a merger with a custom id source.
func NewMergerWithIDs(newID func() string) *Merger {
	if newID == nil {
		newID = uuid.NewString
	}
	return &Merger{newID: newID}
}

// Sanitize turns an untrusted grant into an Incoming item.
// It reports false when the grant has no usable name or a
// non-positive quantity.
func Sanitize(characterID string, g model.ItemGrant) (Incoming, bool) {
	name := strings.TrimSpace(g.Name)
	if name == "" {
		return Incoming{}, false
	}

	qty := 1
	if g.Quantity != nil && isFinite(*g.Quantity) {
		qty = int(math.Round(*g.Quantity))
	}
	if qty <= 0 {
		return Incoming{}, false
	}

	item := model.InventoryItem{
		CharacterID:  characterID,
		Name:         name,
		Type:         strings.ToLower(strings.TrimSpace(g.Type)),
		Subtype:      g.Subtype,
		Description:  g.Description,
		Quantity:     qty,
		Armor:        finiteOrNil(g.Armor),
		Damage:       finiteOrNil(g.Damage),
		Weight:       finiteOrNil(g.Weight),
		Value:        finiteOrNil(g.Value),
		Slot:         g.Slot,
		Rarity:       g.Rarity,
		UpgradeLevel: g.UpgradeLevel,
	}

	if item.Type == model.ItemTypePotion {
		info := InferPotion(item.Name, item.Description, item.Subtype, item.Damage)
		item.Subtype = info.Subtype
		if item.Damage == nil {
			item.Damage = info.Magnitude
		}
	}

	// The flag can only turn stacking on. Equipment stacks only when
	// flagged; anything else also stacks when more than one unit arrives,
	// so a single unit of an unflagged item never joins a stack.
	flagged := g.Stackable != nil && *g.Stackable
	in := Incoming{Item: item, ForceCreate: g.ForceCreate}
	switch {
	case flagged:
		in.Stackable = true
		in.Item.Stackable = true
	case item.IsEquipment():
		in.Stackable = false
	default:
		in.Stackable = qty > 1
	}
	return in, true
}

// IdentityKey is the merge equality key of an item.
func IdentityKey(item model.InventoryItem) string {
	return strings.Join([]string{
		strings.ToLower(strings.TrimSpace(item.Name)),
		item.Rarity,
		strconv.Itoa(item.UpgradeLevel),
		formatOptional(item.Damage),
		formatOptional(item.Armor),
	}, "|")
}

// ApplyAdds merges grants into items.
func (m *Merger) ApplyAdds(items []model.InventoryItem, characterID string, grants []model.ItemGrant) ([]model.InventoryItem, Change) {
	out := cloneItems(items)
	var change Change

	for _, g := range grants {
		in, ok := Sanitize(characterID, g)
		if !ok {
			continue
		}

		if !in.ForceCreate && in.Stackable {
			key := IdentityKey(in.Item)
			if idx := findByKey(out, key); idx >= 0 {
				out[idx].Quantity += in.Item.Quantity
				change.Updated = appendUnique(change.Updated, out[idx].ID)
				change.Lines = append(change.Lines, gainedLine(in.Item.Name, in.Item.Quantity))
				continue
			}
		}

		// equipment granted several at a time becomes independent records
		if in.Item.IsEquipment() && !in.Stackable && in.Item.Quantity > 1 {
			for i := 0; i < in.Item.Quantity; i++ {
				rec := in.Item
				rec.ID = m.newID()
				rec.Quantity = 1
				out = append(out, rec)
				change.Created = append(change.Created, rec.ID)
			}
			change.Lines = append(change.Lines, gainedLine(in.Item.Name, in.Item.Quantity))
			continue
		}

		rec := in.Item
		rec.ID = m.newID()
		out = append(out, rec)
		change.Created = append(change.Created, rec.ID)
		change.Lines = append(change.Lines, gainedLine(rec.Name, rec.Quantity))
	}
	return out, change
}

// ApplyRemoves decrements the first record matching each name. Unknown
// names are ignored. A nil quantity removes one unit.
func ApplyRemoves(items []model.InventoryItem, removals []model.ItemRemoval) ([]model.InventoryItem, Change) {
	out := cloneItems(items)
	var change Change

	for _, r := range removals {
		name := strings.ToLower(strings.TrimSpace(r.Name))
		if name == "" {
			continue
		}
		qty := 1
		if r.Quantity != nil {
			qty = *r.Quantity
		}
		if qty <= 0 {
			continue
		}

		idx := -1
		for i := range out {
			if strings.ToLower(strings.TrimSpace(out[i].Name)) == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}

		removed := qty
		if removed > out[idx].Quantity {
			removed = out[idx].Quantity
		}
		out[idx].Quantity -= qty
		change.Lines = append(change.Lines, lostLine(out[idx].Name, removed))

		if out[idx].Quantity <= 0 {
			change.Deleted = append(change.Deleted, out[idx].ID)
			change.Updated = removeID(change.Updated, out[idx].ID)
			out = append(out[:idx], out[idx+1:]...)
			continue
		}
		change.Updated = appendUnique(change.Updated, out[idx].ID)
	}
	return out, change
}

// ApplyUpdatesByID merges patches onto the records with matching ids.
// A patch that leaves the quantity at zero or below deletes the record.
func ApplyUpdatesByID(items []model.InventoryItem, patches []model.ItemPatch) ([]model.InventoryItem, Change) {
	out := cloneItems(items)
	var change Change

	for _, p := range patches {
		idx := -1
		for i := range out {
			if out[i].ID == p.ID {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}

		item := patchItem(out[idx], p)
		if item.Quantity <= 0 {
			change.Deleted = append(change.Deleted, item.ID)
			change.Updated = removeID(change.Updated, item.ID)
			change.Lines = append(change.Lines, "Used up "+item.Name)
			out = append(out[:idx], out[idx+1:]...)
			continue
		}
		out[idx] = item
		change.Updated = appendUnique(change.Updated, item.ID)
		change.Lines = append(change.Lines, "Updated "+item.Name)
	}
	return out, change
}

func patchItem(item model.InventoryItem, p model.ItemPatch) model.InventoryItem {
	if p.Name != nil && strings.TrimSpace(*p.Name) != "" {
		item.Name = strings.TrimSpace(*p.Name)
	}
	if p.Type != nil {
		item.Type = strings.ToLower(strings.TrimSpace(*p.Type))
	}
	if p.Subtype != nil {
		item.Subtype = *p.Subtype
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
	if p.Quantity != nil {
		item.Quantity = *p.Quantity
	}
	if p.Equipped != nil {
		item.Equipped = *p.Equipped
		if !item.Equipped {
			item.EquippedBy = ""
		}
	}
	if p.EquippedBy != nil {
		item.EquippedBy = *p.EquippedBy
	}
	if v := finiteOrNil(p.Armor); v != nil {
		item.Armor = v
	}
	if v := finiteOrNil(p.Damage); v != nil {
		item.Damage = v
	}
	if v := finiteOrNil(p.Weight); v != nil {
		item.Weight = v
	}
	if v := finiteOrNil(p.Value); v != nil {
		item.Value = v
	}
	if p.Slot != nil {
		item.Slot = *p.Slot
	}
	if p.Rarity != nil {
		item.Rarity = *p.Rarity
	}
	if p.UpgradeLevel != nil {
		item.UpgradeLevel = *p.UpgradeLevel
	}
	return item
}

func findByKey(items []model.InventoryItem, key string) int {
	for i := range items {
		if IdentityKey(items[i]) == key {
			return i
		}
	}
	return -1
}

func cloneItems(items []model.InventoryItem) []model.InventoryItem {
	if items == nil {
		return nil
	}
	return append(make([]model.InventoryItem, 0, len(items)), items...)
}

func finiteOrNil(v *float64) *float64 {
	if v == nil || !isFinite(*v) {
		return nil
	}
	out := *v
	return &out
}

func formatOptional(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func gainedLine(name string, qty int) string {
	if qty > 1 {
		return fmt.Sprintf("Gained %s x%d", name, qty)
	}
	return "Gained " + name
}

func lostLine(name string, qty int) string {
	if qty > 1 {
		return fmt.Sprintf("Lost %s x%d", name, qty)
	}
	return "Lost " + name
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}
