package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"narrative-companion/internal/service"
	"narrative-companion/internal/shop"
)

// ShopHandler handles shop-related commands
type ShopHandler struct {
	shopService *service.ShopService
	accounts    *service.AccountService
	game        *service.GameService
}

// NewShopHandler creates a new ShopHandler
func NewShopHandler(shopService *service.ShopService, accounts *service.AccountService, game *service.GameService) *ShopHandler {
	return &ShopHandler{
		shopService: shopService,
		accounts:    accounts,
		game:        game,
	}
}

// ParseBuyArgs splits "/buy <item> [qty]". The item may contain spaces.
func ParseBuyArgs(payload string) (string, int) {
	fields := strings.Fields(payload)
	if len(fields) == 0 {
		return "", 0
	}
	if len(fields) > 1 {
		if qty, err := strconv.Atoi(fields[len(fields)-1]); err == nil {
			return strings.Join(fields[:len(fields)-1], " "), qty
		}
	}
	return strings.Join(fields, " "), 1
}

func (h *ShopHandler) gold(ctx context.Context, id string) int {
	snap, err := h.game.Snapshot(ctx, id)
	if err != nil {
		return 0
	}
	return snap.Character.Gold
}

// HandleShop handles /shop to show the merchant panel
func (h *ShopHandler) HandleShop(c tele.Context) error {
	ctx := context.Background()
	id, err := resolveCharacter(ctx, h.accounts, c)
	if err != nil {
		return c.Reply("❌ Could not load your character")
	}
	return c.Send(shop.FormatShopMessage(h.gold(ctx, id)), shop.BuildShopPanel())
}

// HandleBuy handles /buy <item> [qty]
func (h *ShopHandler) HandleBuy(c tele.Context) error {
	ctx := context.Background()
	query, qty := ParseBuyArgs(c.Message().Payload)
	if query == "" {
		return c.Reply("❌ Usage: /buy <item> [quantity]")
	}

	id, err := resolveCharacter(ctx, h.accounts, c)
	if err != nil {
		return c.Reply("❌ Could not load your character")
	}

	msg, err := h.purchase(ctx, id, query, qty)
	if err != nil {
		return c.Reply(msg)
	}
	return c.Reply(msg + "\n🪙 Gold left: " + strconv.Itoa(h.gold(ctx, id)))
}

// purchase returns a chat message for the outcome. The error is non-nil
// when nothing was bought.
func (h *ShopHandler) purchase(ctx context.Context, id, query string, qty int) (string, error) {
	_, err := h.shopService.Purchase(ctx, id, query, qty)
	switch {
	case errors.Is(err, service.ErrInsufficientGold):
		return "❌ Not enough gold!", err
	case errors.Is(err, service.ErrItemNotFound):
		return "❌ The merchant does not sell that.", err
	case errors.Is(err, service.ErrInvalidQuantity):
		return "❌ Quantity must be positive.", err
	case err != nil:
		log.Error().Err(err).Str("character_id", id).Str("item", query).Msg("Purchase failed")
		return "❌ Purchase failed, please try again later", err
	}

	item, _ := shop.Find(query)
	msg := "✅ Bought " + item.Emoji + " " + item.Name
	if qty > 1 {
		msg += " x" + strconv.Itoa(qty)
	}
	return msg, nil
}

// HandleShopCallback handles shop button callbacks
func (h *ShopHandler) HandleShopCallback(c tele.Context, data string) error {
	ctx := context.Background()
	id, err := resolveCharacter(ctx, h.accounts, c)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Could not load your character", ShowAlert: true})
	}

	switch {
	case data == shop.CallbackShopRefresh, data == shop.CallbackShopCancel:
		_ = c.Respond()
		return c.Edit(shop.FormatShopMessage(h.gold(ctx, id)), shop.BuildShopPanel())

	case strings.HasPrefix(data, shop.CallbackShopItem):
		item, ok := shop.GetItem(shop.ItemID(strings.TrimPrefix(data, shop.CallbackShopItem)))
		if !ok {
			return c.Respond(&tele.CallbackResponse{Text: "❌ Unknown item"})
		}
		_ = c.Respond()
		return c.Edit(shop.FormatItemDetail(item, h.gold(ctx, id)), shop.BuildConfirmPanel(item.ID))

	case strings.HasPrefix(data, shop.CallbackShopBuy):
		itemID := strings.TrimPrefix(data, shop.CallbackShopBuy)
		msg, err := h.purchase(ctx, id, itemID, 1)
		if err != nil {
			return c.Respond(&tele.CallbackResponse{Text: msg, ShowAlert: true})
		}
		_ = c.Respond(&tele.CallbackResponse{Text: msg})
		return c.Edit(shop.FormatShopMessage(h.gold(ctx, id)), shop.BuildShopPanel())
	}

	return c.Respond()
}
