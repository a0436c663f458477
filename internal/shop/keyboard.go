package shop

import (
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"
)

// Callback data prefixes.
const (
	CallbackShopItem    = "shop_item:"
	CallbackShopBuy     = "shop_buy:"
	CallbackShopCancel  = "shop_cancel"
	CallbackShopRefresh = "shop_refresh"
)

// BuildShopPanel creates the main shop panel with item buttons.
func BuildShopPanel() *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}

	items := GetAllItems()
	var rows []tele.Row

	// two buttons per row
	var currentRow []tele.Btn
	for i, item := range items {
		btn := markup.Data(
			fmt.Sprintf("%s %s (%d🪙)", item.Emoji, item.Name, item.Price),
			CallbackShopItem+string(item.ID),
		)
		currentRow = append(currentRow, btn)

		if len(currentRow) == 2 || i == len(items)-1 {
			rows = append(rows, markup.Row(currentRow...))
			currentRow = nil
		}
	}

	rows = append(rows, markup.Row(markup.Data("🔄 Refresh", CallbackShopRefresh)))

	markup.Inline(rows...)
	return markup
}

// BuildConfirmPanel creates the purchase confirmation panel.
func BuildConfirmPanel(id ItemID) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}

	buyBtn := markup.Data("✅ Buy", CallbackShopBuy+string(id))
	cancelBtn := markup.Data("❌ Cancel", CallbackShopCancel)

	markup.Inline(markup.Row(buyBtn, cancelBtn))
	return markup
}

// FormatShopMessage creates the merchant greeting.
func FormatShopMessage(gold int) string {
	var b strings.Builder
	b.WriteString("🏪 The merchant spreads out their wares\n")
	b.WriteString("━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&b, "🪙 Your gold: %d\n", gold)
	b.WriteString("━━━━━━━━━━━━━━━\n")
	b.WriteString("Pick an item to see the details:")
	return b.String()
}

// FormatItemDetail creates the item detail message.
func FormatItemDetail(item ItemConfig, gold int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", item.Emoji, item.Name)
	b.WriteString("━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&b, "🪙 Price: %d gold\n", item.Price)
	if item.Damage > 0 && item.IsEquipment() {
		fmt.Fprintf(&b, "⚔️ Damage: %.0f\n", item.Damage)
	}
	if item.Armor > 0 {
		fmt.Fprintf(&b, "🛡️ Armor: %.0f\n", item.Armor)
	}
	fmt.Fprintf(&b, "📝 %s\n", item.Description)
	b.WriteString("━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&b, "🪙 Your gold: %d\n", gold)

	if gold < item.Price {
		b.WriteString("❌ Not enough gold!")
	} else {
		b.WriteString("Buy it?")
	}
	return b.String()
}
