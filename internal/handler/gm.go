package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"narrative-companion/internal/engine/idempotency"
	"narrative-companion/internal/model"
	"narrative-companion/internal/pkg/lock"
	"narrative-companion/internal/service"
)

// ErrEmptyUpdate is returned for /gm without a payload.
var ErrEmptyUpdate = errors.New("update payload is empty")

// GameMasterHandler accepts raw game master updates.
type GameMasterHandler struct {
	accounts *service.AccountService
	game     *service.GameService
}

// NewGameMasterHandler creates a new GameMasterHandler.
func NewGameMasterHandler(accounts *service.AccountService, game *service.GameService) *GameMasterHandler {
	return &GameMasterHandler{
		accounts: accounts,
		game:     game,
	}
}

// ParseUpdate decodes a JSON update. Unknown fields are rejected so a
// typo never silently drops an effect.
func ParseUpdate(payload string) (model.Update, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return model.Update{}, ErrEmptyUpdate
	}

	dec := json.NewDecoder(strings.NewReader(payload))
	dec.DisallowUnknownFields()

	var u model.Update
	if err := dec.Decode(&u); err != nil {
		return model.Update{}, fmt.Errorf("failed to decode update: %w", err)
	}
	return u, nil
}

// HandleUpdate handles /gm <json update>.
func (h *GameMasterHandler) HandleUpdate(c tele.Context) error {
	ctx := context.Background()

	u, err := ParseUpdate(c.Message().Payload)
	if err != nil {
		return c.Reply("❌ " + err.Error() + "\nUsage: /gm {\"narrative\": {...}, \"goldChange\": 10}")
	}

	id, err := resolveCharacter(ctx, h.accounts, c)
	if err != nil {
		return c.Reply("❌ Could not load your character")
	}

	res, err := h.game.Apply(ctx, id, u)
	switch {
	case errors.Is(err, idempotency.ErrLedgerUnavailable):
		return c.Reply("⚠️ The transaction ledger is unavailable, the update was not applied. Try again shortly.")
	case errors.Is(err, lock.ErrLockTimeout):
		return c.Reply("⏳ Still busy with your last update, try again")
	case err != nil:
		log.Error().Err(err).Str("character_id", id).Msg("Update pass failed")
		return c.Reply("❌ The update could not be applied")
	}

	if res.ForcedRest {
		return c.Reply(FormatResult(res), BuildRestPanel())
	}
	if res.LevelUp != nil {
		return c.Reply(FormatResult(res), BuildLevelUpPanel())
	}
	return c.Reply(FormatResult(res))
}
