package inventory

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"narrative-companion/internal/model"
)

func f64(v float64) *float64  { return &v }
func intPtr(v int) *int       { return &v }
func boolPtr(v bool) *bool    { return &v }
func strPtr(v string) *string { return &v }

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("item-%d", n)
	}
}

func TestApplyAdds_StackablePotionsMerge(t *testing.T) {
	m := NewMergerWithIDs(sequentialIDs())

	items, change := m.ApplyAdds(nil, "c1", []model.ItemGrant{
		{Name: "Health Potion", Type: model.ItemTypePotion, Quantity: f64(2), Stackable: boolPtr(true)},
	})
	require.Len(t, items, 1)
	assert.Equal(t, []string{"item-1"}, change.Created)

	items, change = m.ApplyAdds(items, "c1", []model.ItemGrant{
		{Name: "health potion", Type: model.ItemTypePotion, Quantity: f64(3), Stackable: boolPtr(true)},
	})
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)
	assert.Equal(t, []string{"item-1"}, change.Updated)
	assert.Empty(t, change.Created)
}

func TestApplyAdds_QuantityAboveOneStacksWithoutFlag(t *testing.T) {
	m := NewMergerWithIDs(sequentialIDs())

	items, _ := m.ApplyAdds(nil, "c1", []model.ItemGrant{{Name: "Arrow", Type: "ammo", Quantity: f64(10)}})
	items, _ = m.ApplyAdds(items, "c1", []model.ItemGrant{{Name: "Arrow", Type: "ammo", Quantity: f64(5)}})

	require.Len(t, items, 1)
	assert.Equal(t, 15, items[0].Quantity)
}

func TestApplyAdds_FalseFlagDoesNotBlockQuantityStacking(t *testing.T) {
	m := NewMergerWithIDs(sequentialIDs())
	grant := model.ItemGrant{Name: "Arrow", Type: "ammo", Quantity: f64(3), Stackable: boolPtr(false)}

	in, ok := Sanitize("c1", grant)
	require.True(t, ok)
	assert.True(t, in.Stackable)

	items, _ := m.ApplyAdds(nil, "c1", []model.ItemGrant{grant})
	items, _ = m.ApplyAdds(items, "c1", []model.ItemGrant{grant})

	require.Len(t, items, 1)
	assert.Equal(t, 6, items[0].Quantity)
}

func TestApplyAdds_FalseFlagKeepsEquipmentSeparate(t *testing.T) {
	m := NewMergerWithIDs(sequentialIDs())
	grant := model.ItemGrant{Name: "Iron Dagger", Type: model.ItemTypeWeapon, Quantity: f64(2), Stackable: boolPtr(false)}

	in, ok := Sanitize("c1", grant)
	require.True(t, ok)
	assert.False(t, in.Stackable)

	items, _ := m.ApplyAdds(nil, "c1", []model.ItemGrant{grant})
	items, _ = m.ApplyAdds(items, "c1", []model.ItemGrant{grant})
	require.Len(t, items, 4)
	for _, it := range items {
		assert.Equal(t, 1, it.Quantity)
	}
}

func TestApplyAdds_SingleUnitsStaySeparate(t *testing.T) {
	m := NewMergerWithIDs(sequentialIDs())
	grant := model.ItemGrant{Name: "Health Potion", Type: model.ItemTypePotion, Quantity: f64(1)}

	items, _ := m.ApplyAdds(nil, "c1", []model.ItemGrant{grant})
	items, _ = m.ApplyAdds(items, "c1", []model.ItemGrant{grant})

	require.Len(t, items, 2)
	assert.Equal(t, 1, items[0].Quantity)
	assert.Equal(t, 1, items[1].Quantity)
	assert.NotEqual(t, items[0].ID, items[1].ID)
}

func TestApplyAdds_WeaponsNeverStackByDefault(t *testing.T) {
	m := NewMergerWithIDs(sequentialIDs())
	sword := model.ItemGrant{Name: "Steel Sword", Type: model.ItemTypeWeapon, Rarity: "common", Damage: f64(12)}

	items, _ := m.ApplyAdds(nil, "c1", []model.ItemGrant{sword, sword})
	require.Len(t, items, 2)
	assert.NotEqual(t, items[0].ID, items[1].ID)

	items, change := m.ApplyAdds(nil, "c1", []model.ItemGrant{{Name: "Hide Boots", Type: model.ItemTypeApparel, Quantity: f64(3)}})
	require.Len(t, items, 3)
	assert.Len(t, change.Created, 3)
	for _, it := range items {
		assert.Equal(t, 1, it.Quantity)
	}
}

func TestApplyAdds_ExplicitlyStackableWeapon(t *testing.T) {
	m := NewMergerWithIDs(sequentialIDs())
	knife := model.ItemGrant{Name: "Throwing Knife", Type: model.ItemTypeWeapon, Quantity: f64(2), Stackable: boolPtr(true)}

	items, _ := m.ApplyAdds(nil, "c1", []model.ItemGrant{knife, knife})

	require.Len(t, items, 1)
	assert.Equal(t, 4, items[0].Quantity)
	assert.True(t, items[0].Stackable)
}

func TestApplyAdds_IdentityKeySeparatesStacks(t *testing.T) {
	m := NewMergerWithIDs(sequentialIDs())

	items, _ := m.ApplyAdds(nil, "c1", []model.ItemGrant{
		{Name: "Gem", Type: "misc", Quantity: f64(2), Rarity: "common"},
		{Name: "Gem", Type: "misc", Quantity: f64(2), Rarity: "rare"},
		{Name: "Gem", Type: "misc", Quantity: f64(2), Rarity: "rare", UpgradeLevel: 1},
		{Name: "Gem", Type: "misc", Quantity: f64(2), Rarity: "rare", Armor: f64(3)},
	})

	assert.Len(t, items, 4)
}

func TestApplyAdds_ForceCreate(t *testing.T) {
	m := NewMergerWithIDs(sequentialIDs())
	arrows := model.ItemGrant{Name: "Arrow", Type: "ammo", Quantity: f64(10)}

	items, _ := m.ApplyAdds(nil, "c1", []model.ItemGrant{arrows})
	forced := arrows
	forced.ForceCreate = true
	items, change := m.ApplyAdds(items, "c1", []model.ItemGrant{forced})

	require.Len(t, items, 2)
	assert.Equal(t, []string{"item-2"}, change.Created)
}

func TestApplyAdds_Sanitization(t *testing.T) {
	m := NewMergerWithIDs(sequentialIDs())

	items, _ := m.ApplyAdds(nil, "c1", []model.ItemGrant{
		{Name: "Odd Ring", Type: "Apparel", Quantity: f64(math.NaN()), Armor: f64(math.Inf(1)), Value: f64(40), Weight: f64(math.NaN())},
		{Name: "   ", Type: "misc"},
		{Name: "Nothing", Type: "misc", Quantity: f64(0)},
	})

	require.Len(t, items, 1)
	ring := items[0]
	assert.Equal(t, 1, ring.Quantity)
	assert.Equal(t, model.ItemTypeApparel, ring.Type)
	assert.Nil(t, ring.Armor)
	assert.Nil(t, ring.Weight)
	require.NotNil(t, ring.Value)
	assert.Equal(t, 40.0, *ring.Value)
	assert.Equal(t, "c1", ring.CharacterID)
}

func TestApplyAdds_PotionInference(t *testing.T) {
	m := NewMergerWithIDs(sequentialIDs())

	items, _ := m.ApplyAdds(nil, "c1", []model.ItemGrant{
		{Name: "Draught of Mana", Type: model.ItemTypePotion, Description: "Restores 25 magicka"},
	})

	require.Len(t, items, 1)
	assert.Equal(t, model.PotionMagicka, items[0].Subtype)
	require.NotNil(t, items[0].Damage)
	assert.Equal(t, 25.0, *items[0].Damage)
}

func TestInferPotion(t *testing.T) {
	tests := []struct {
		name        string
		itemName    string
		description string
		subtype     string
		damage      *float64
		wantSubtype string
		wantMag     *float64
	}{
		{"explicit wins", "Health Potion", "", "stamina", f64(10), "stamina", f64(10)},
		{"heal keyword", "Minor Healing Draught", "heals 15", "", nil, model.PotionHealth, f64(15)},
		{"mana keyword", "Blue Vial", "Restores mana", "", nil, model.PotionMagicka, nil},
		{"endurance keyword", "Tonic of Endurance", "+30 for a while", "", nil, model.PotionStamina, f64(30)},
		{"negative magnitude stored as abs", "Bitter Brew", "drains -12 health", "", nil, model.PotionHealth, f64(12)},
		{"nothing known", "Strange Liquid", "smells odd", "", nil, "", nil},
		{"case insensitive", "HEALTH", "", "", nil, model.PotionHealth, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InferPotion(tt.itemName, tt.description, tt.subtype, tt.damage)
			assert.Equal(t, tt.wantSubtype, got.Subtype)
			if tt.wantMag == nil {
				assert.Nil(t, got.Magnitude)
				return
			}
			require.NotNil(t, got.Magnitude)
			assert.Equal(t, *tt.wantMag, *got.Magnitude)
		})
	}
}

func TestApplyRemoves(t *testing.T) {
	base := []model.InventoryItem{
		{ID: "a", Name: "Torch", Quantity: 3},
		{ID: "b", Name: "Rope", Quantity: 1},
		{ID: "c", Name: "Torch", Quantity: 2},
	}

	t.Run("decrements first match", func(t *testing.T) {
		items, change := ApplyRemoves(base, []model.ItemRemoval{{Name: "torch"}})
		require.Len(t, items, 3)
		assert.Equal(t, 2, items[0].Quantity)
		assert.Equal(t, 2, items[2].Quantity)
		assert.Equal(t, []string{"a"}, change.Updated)
	})

	t.Run("deletes at zero", func(t *testing.T) {
		items, change := ApplyRemoves(base, []model.ItemRemoval{{Name: "Torch", Quantity: intPtr(5)}})
		require.Len(t, items, 2)
		assert.Equal(t, []string{"a"}, change.Deleted)
		assert.Equal(t, "c", items[1].ID)
	})

	t.Run("unknown name is a no-op", func(t *testing.T) {
		items, change := ApplyRemoves(base, []model.ItemRemoval{{Name: "Lantern"}})
		assert.Equal(t, base, items)
		assert.True(t, change.Empty())
	})

	t.Run("input is not modified", func(t *testing.T) {
		_, _ = ApplyRemoves(base, []model.ItemRemoval{{Name: "Rope"}})
		assert.Equal(t, 1, base[1].Quantity)
		assert.Len(t, base, 3)
	})
}

func TestApplyUpdatesByID(t *testing.T) {
	base := []model.InventoryItem{
		{ID: "a", Name: "Iron Sword", Type: model.ItemTypeWeapon, Quantity: 1, Damage: f64(8)},
		{ID: "b", Name: "Health Potion", Type: model.ItemTypePotion, Quantity: 2},
	}

	items, change := ApplyUpdatesByID(base, []model.ItemPatch{
		{ID: "a", Equipped: boolPtr(true), EquippedBy: strPtr("character"), Damage: f64(10), Armor: f64(math.NaN())},
		{ID: "b", Quantity: intPtr(0)},
		{ID: "missing", Quantity: intPtr(3)},
	})

	require.Len(t, items, 1)
	assert.True(t, items[0].Equipped)
	assert.Equal(t, "character", items[0].EquippedBy)
	assert.Equal(t, 10.0, *items[0].Damage)
	assert.Nil(t, items[0].Armor)
	assert.Equal(t, []string{"a"}, change.Updated)
	assert.Equal(t, []string{"b"}, change.Deleted)
}

func TestChangeApply(t *testing.T) {
	dirty := model.NewDirtySet("c1")
	Change{Created: []string{"x"}, Updated: []string{"y"}, Deleted: []string{"x"}}.Apply(dirty)

	assert.Equal(t, []string{"y"}, model.SortedIDs(dirty.Items))
	assert.Equal(t, []string{"x"}, model.SortedIDs(dirty.DeletedItems))
}

// TestQuantitiesStayPositiveProperty checks that no persisted record
// ever carries a non-positive quantity after any sequence of operations.
func TestQuantitiesStayPositiveProperty(t *testing.T) {
	names := []string{"Torch", "Arrow", "Health Potion", "Steel Sword"}
	types := []string{"misc", "ammo", model.ItemTypePotion, model.ItemTypeWeapon}

	rapid.Check(t, func(rt *rapid.T) {
		m := NewMergerWithIDs(sequentialIDs())
		var items []model.InventoryItem
		total := map[string]int{}

		steps := rapid.IntRange(1, 30).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			idx := rapid.IntRange(0, len(names)-1).Draw(rt, "idx")
			qty := rapid.IntRange(-2, 5).Draw(rt, "qty")
			if rapid.Bool().Draw(rt, "add") {
				items, _ = m.ApplyAdds(items, "c1", []model.ItemGrant{{Name: names[idx], Type: types[idx], Quantity: f64(float64(qty))}})
				if qty > 0 {
					total[names[idx]] += qty
				}
			} else {
				items, _ = ApplyRemoves(items, []model.ItemRemoval{{Name: names[idx], Quantity: intPtr(qty)}})
			}
		}

		seen := map[string]int{}
		for _, it := range items {
			if it.Quantity <= 0 {
				rt.Fatalf("record %s has quantity %d", it.ID, it.Quantity)
			}
			seen[it.Name] += it.Quantity
		}
		for name, q := range seen {
			if q > total[name] {
				rt.Fatalf("%s: %d held but only %d ever granted", name, q, total[name])
			}
		}
	})
}
