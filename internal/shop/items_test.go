package shop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"narrative-companion/internal/model"
)

func TestGetAllItems_DisplayOrder(t *testing.T) {
	items := GetAllItems()
	require.Len(t, items, len(Catalog))
	assert.Equal(t, ItemIronSword, items[0].ID)
	assert.Equal(t, ItemWaterskin, items[len(items)-1].ID)
}

func TestFind(t *testing.T) {
	item, ok := Find("bread")
	require.True(t, ok)
	assert.Equal(t, ItemBread, item.ID)

	item, ok = Find("  potion of minor HEALING ")
	require.True(t, ok)
	assert.Equal(t, ItemHealthPotion, item.ID)

	_, ok = Find("Daedric Sword")
	assert.False(t, ok)
}

func TestGrants_EquipmentIsOneRecordPerUnit(t *testing.T) {
	item := Catalog[ItemIronSword]
	grants := item.Grants(3)

	require.Len(t, grants, 3)
	for _, g := range grants {
		require.NotNil(t, g.Quantity)
		assert.Equal(t, 1.0, *g.Quantity)
		assert.True(t, g.ForceCreate)
		assert.Equal(t, "main_hand", g.Slot)
		require.NotNil(t, g.Damage)
		assert.Equal(t, 7.0, *g.Damage)
	}
}

func TestGrants_ConsumablesStack(t *testing.T) {
	grants := Catalog[ItemHealthPotion].Grants(4)

	require.Len(t, grants, 1)
	g := grants[0]
	assert.Equal(t, 4.0, *g.Quantity)
	require.NotNil(t, g.Stackable)
	assert.True(t, *g.Stackable)
	assert.False(t, g.ForceCreate)
	assert.Equal(t, model.PotionHealth, g.Subtype)
	assert.Nil(t, g.Armor)
}

func TestGrants_NonPositiveQuantity(t *testing.T) {
	assert.Nil(t, Catalog[ItemBread].Grants(0))
	assert.Nil(t, Catalog[ItemBread].Grants(-2))
}

// TestGrantsQuantityProperty: the granted units always add up to the
// purchased quantity.
func TestGrantsQuantityProperty(t *testing.T) {
	items := GetAllItems()
	rapid.Check(t, func(t *rapid.T) {
		item := items[rapid.IntRange(0, len(items)-1).Draw(t, "item")]
		qty := rapid.IntRange(1, 50).Draw(t, "qty")

		total := 0.0
		for _, g := range item.Grants(qty) {
			total += *g.Quantity
		}
		if total != float64(qty) {
			t.Fatalf("%s x%d granted %v units", item.ID, qty, total)
		}
	})
}

func TestFormatItemDetail(t *testing.T) {
	sword := Catalog[ItemIronSword]
	assert.Contains(t, FormatItemDetail(sword, 100), "Damage: 7")
	assert.Contains(t, FormatItemDetail(sword, 100), "Buy it?")
	assert.Contains(t, FormatItemDetail(sword, 10), "Not enough gold!")

	potion := Catalog[ItemHealthPotion]
	assert.NotContains(t, FormatItemDetail(potion, 100), "Damage")
}

func TestBuildShopPanel(t *testing.T) {
	markup := BuildShopPanel()
	// two items per row plus the refresh row
	assert.Len(t, markup.InlineKeyboard, (len(Catalog)+1)/2+1)
	assert.Equal(t, CallbackShopItem+string(ItemIronSword), markup.InlineKeyboard[0][0].Data)

	confirm := BuildConfirmPanel(ItemBread)
	require.Len(t, confirm.InlineKeyboard, 1)
	assert.Equal(t, CallbackShopBuy+"bread", confirm.InlineKeyboard[0][0].Data)
}
