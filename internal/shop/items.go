// Package shop holds the merchant catalog and its chat keyboards.
package shop

import (
	"strings"

	"narrative-companion/internal/model"
)

// ItemID identifies a catalog entry.
type ItemID string

// Catalog entries.
const (
	ItemIronSword     ItemID = "iron_sword"
	ItemHuntingBow    ItemID = "hunting_bow"
	ItemLeatherArmor  ItemID = "leather_armor"
	ItemIronHelmet    ItemID = "iron_helmet"
	ItemHealthPotion  ItemID = "health_potion"
	ItemMagickaPotion ItemID = "magicka_potion"
	ItemStaminaPotion ItemID = "stamina_potion"
	ItemBread         ItemID = "bread"
	ItemWaterskin     ItemID = "waterskin"
)

// ItemConfig describes one item the merchant sells.
type ItemConfig struct {
	ID          ItemID
	Name        string
	Emoji       string
	Price       int
	Type        string
	Subtype     string
	Description string
	Damage      float64
	Armor       float64
	Weight      float64
	Slot        string
}

// Catalog contains every item for sale.
var Catalog = map[ItemID]ItemConfig{
	ItemIronSword: {
		ID: ItemIronSword, Name: "Iron Sword", Emoji: "🗡️", Price: 45,
		Type: model.ItemTypeWeapon, Description: "A plain but reliable blade.",
		Damage: 7, Weight: 9, Slot: "main_hand",
	},
	ItemHuntingBow: {
		ID: ItemHuntingBow, Name: "Hunting Bow", Emoji: "🏹", Price: 50,
		Type: model.ItemTypeWeapon, Description: "Light bow favoured by trappers.",
		Damage: 7, Weight: 7, Slot: "two_hand",
	},
	ItemLeatherArmor: {
		ID: ItemLeatherArmor, Name: "Leather Armor", Emoji: "🦺", Price: 60,
		Type: model.ItemTypeApparel, Description: "Stitched hide that turns a glancing blow.",
		Armor: 26, Weight: 6, Slot: "body",
	},
	ItemIronHelmet: {
		ID: ItemIronHelmet, Name: "Iron Helmet", Emoji: "⛑️", Price: 30,
		Type: model.ItemTypeApparel, Description: "Dented, but it holds.",
		Armor: 15, Weight: 5, Slot: "head",
	},
	ItemHealthPotion: {
		ID: ItemHealthPotion, Name: "Potion of Minor Healing", Emoji: "❤️", Price: 17,
		Type: model.ItemTypePotion, Subtype: model.PotionHealth, Description: "Restores 25 health.",
		Damage: 25, Weight: 0.5,
	},
	ItemMagickaPotion: {
		ID: ItemMagickaPotion, Name: "Potion of Minor Magicka", Emoji: "💙", Price: 20,
		Type: model.ItemTypePotion, Subtype: model.PotionMagicka, Description: "Restores 25 magicka.",
		Damage: 25, Weight: 0.5,
	},
	ItemStaminaPotion: {
		ID: ItemStaminaPotion, Name: "Potion of Minor Stamina", Emoji: "💚", Price: 20,
		Type: model.ItemTypePotion, Subtype: model.PotionStamina, Description: "Restores 25 stamina.",
		Damage: 25, Weight: 0.5,
	},
	ItemBread: {
		ID: ItemBread, Name: "Bread", Emoji: "🍞", Price: 2,
		Type: "food", Description: "A crusty loaf.", Weight: 0.2,
	},
	ItemWaterskin: {
		ID: ItemWaterskin, Name: "Waterskin", Emoji: "💧", Price: 3,
		Type: "drink", Description: "Fresh water from the river.", Weight: 1,
	},
}

// displayOrder is the order items are listed in.
var displayOrder = []ItemID{
	ItemIronSword,
	ItemHuntingBow,
	ItemLeatherArmor,
	ItemIronHelmet,
	ItemHealthPotion,
	ItemMagickaPotion,
	ItemStaminaPotion,
	ItemBread,
	ItemWaterskin,
}

// GetAllItems returns all shop items in display order.
func GetAllItems() []ItemConfig {
	items := make([]ItemConfig, 0, len(displayOrder))
	for _, id := range displayOrder {
		if item, ok := Catalog[id]; ok {
			items = append(items, item)
		}
	}
	return items
}

// GetItem returns the item config for an id.
func GetItem(id ItemID) (ItemConfig, bool) {
	item, ok := Catalog[id]
	return item, ok
}

// Find looks an item up by id or case-insensitive name.
func Find(query string) (ItemConfig, bool) {
	q := strings.TrimSpace(query)
	if item, ok := Catalog[ItemID(strings.ToLower(q))]; ok {
		return item, true
	}
	for _, item := range Catalog {
		if strings.EqualFold(item.Name, q) {
			return item, true
		}
	}
	return ItemConfig{}, false
}

// IsEquipment reports whether each purchased unit becomes its own record.
func (c ItemConfig) IsEquipment() bool {
	return c.Type == model.ItemTypeWeapon || c.Type == model.ItemTypeApparel
}

// Grants returns the item grants for buying qty units. Equipment is
// granted one unit per record with ForceCreate so every unit can be
// equipped or sold on its own.
func (c ItemConfig) Grants(qty int) []model.ItemGrant {
	if qty <= 0 {
		return nil
	}

	base := model.ItemGrant{
		Name:        c.Name,
		Type:        c.Type,
		Subtype:     c.Subtype,
		Description: c.Description,
		Slot:        c.Slot,
		Weight:      optional(c.Weight),
		Value:       optional(float64(c.Price)),
		Damage:      optional(c.Damage),
		Armor:       optional(c.Armor),
	}

	if c.IsEquipment() {
		one := 1.0
		grants := make([]model.ItemGrant, qty)
		for i := range grants {
			g := base
			g.Quantity = &one
			g.ForceCreate = true
			grants[i] = g
		}
		return grants
	}

	n := float64(qty)
	stackable := true
	base.Quantity = &n
	base.Stackable = &stackable
	return []model.ItemGrant{base}
}

func optional(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}
