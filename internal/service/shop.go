package service

import (
	"context"
	"fmt"

	"narrative-companion/internal/engine"
	"narrative-companion/internal/model"
	"narrative-companion/internal/shop"
)

// ShopService sells catalog items. A purchase is an ordinary update pass
// with a gold cost and item grants, so it shares the merge rules and the
// idempotency ledger of game master updates.
type ShopService struct {
	game *GameService
}

// NewShopService creates a new ShopService instance.
func NewShopService(game *GameService) *ShopService {
	return &ShopService{game: game}
}

// GetShopItems returns all available shop items.
func (s *ShopService) GetShopItems() []shop.ItemConfig {
	return shop.GetAllItems()
}

// Purchase buys qty units of the item matching query.
func (s *ShopService) Purchase(ctx context.Context, characterID, query string, qty int) (*engine.Result, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	item, ok := shop.Find(query)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrItemNotFound, query)
	}
	cost := item.Price * qty

	var res *engine.Result
	err := s.game.lock.WithLockContext(ctx, characterID, s.game.lockTimeout, func() error {
		snap, err := s.game.snapshotLocked(ctx, characterID)
		if err != nil {
			return err
		}
		if snap.Character.Gold < cost {
			return ErrInsufficientGold
		}

		gold := -cost
		u := model.Update{
			TransactionID: "shop-" + s.game.newID(),
			GoldChange:    &gold,
			NewItems:      item.Grants(qty),
		}
		res, err = s.game.applyLocked(ctx, characterID, u)
		return err
	})
	return res, err
}
