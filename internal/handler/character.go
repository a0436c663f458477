// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"narrative-companion/internal/engine/leveling"
	"narrative-companion/internal/model"
	"narrative-companion/internal/pkg/lock"
	"narrative-companion/internal/service"
)

// Callback data prefixes for the level-up and rest keyboards.
const (
	CallbackLevelUp  = "lvl_apply:"
	CallbackPostpone = "lvl_postpone"
	CallbackRest     = "rest:"
	CallbackDismiss  = "rest_dismiss"
)

const journalPageSize = 5

// JournalReader lists recent journal entries.
type JournalReader interface {
	ListRecent(ctx context.Context, characterID string, limit int) ([]model.JournalEntry, error)
}

// CharacterHandler handles character sheet and player action commands.
type CharacterHandler struct {
	accounts *service.AccountService
	game     *service.GameService
	journal  JournalReader
}

// NewCharacterHandler creates a new CharacterHandler.
func NewCharacterHandler(accounts *service.AccountService, game *service.GameService, journal JournalReader) *CharacterHandler {
	return &CharacterHandler{
		accounts: accounts,
		game:     game,
		journal:  journal,
	}
}

// displayName returns the name a new character gets.
func displayName(sender *tele.User, payload string) string {
	if name := strings.TrimSpace(payload); name != "" {
		return name
	}
	if sender.FirstName != "" {
		return sender.FirstName
	}
	return sender.Username
}

// resolveCharacter returns the id of the sender's character, creating
// the character on first contact.
func resolveCharacter(ctx context.Context, accounts *service.AccountService, c tele.Context) (string, error) {
	sender := c.Sender()
	char, _, err := accounts.EnsureCharacter(ctx, sender.ID, displayName(sender, ""))
	if err != nil {
		return "", err
	}
	return char.ID, nil
}

// HandleStart handles /start [name].
func (h *CharacterHandler) HandleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	char, created, err := h.accounts.EnsureCharacter(ctx, sender.ID, displayName(sender, c.Message().Payload))
	if err != nil {
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to ensure character")
		return c.Reply("❌ Could not load your character, please try again later")
	}

	if created {
		return c.Reply(fmt.Sprintf(
			"🎉 Welcome, %s!\n\n"+
				"Your adventure begins with %d gold.\n\n"+
				"Commands:\n"+
				"/sheet - character sheet\n"+
				"/bag - inventory\n"+
				"/quests - quest log\n"+
				"/journal - recent journal entries\n"+
				"/levelup - confirm a level-up\n"+
				"/rest <hours> - rest\n"+
				"/shop - visit the merchant\n"+
				"/perk - perks",
			char.Name, char.Gold,
		))
	}

	return c.Reply(fmt.Sprintf("👋 Welcome back, %s!", char.Name))
}

// HandleSheet handles /sheet.
func (h *CharacterHandler) HandleSheet(c tele.Context) error {
	ctx := context.Background()
	id, err := resolveCharacter(ctx, h.accounts, c)
	if err != nil {
		return c.Reply("❌ Could not load your character")
	}

	snap, err := h.game.Snapshot(ctx, id)
	if err != nil {
		return c.Reply("❌ Could not load your character")
	}
	return c.Reply(FormatSheet(snap.Character))
}

// HandleBag handles /bag.
func (h *CharacterHandler) HandleBag(c tele.Context) error {
	ctx := context.Background()
	id, err := resolveCharacter(ctx, h.accounts, c)
	if err != nil {
		return c.Reply("❌ Could not load your character")
	}

	snap, err := h.game.Snapshot(ctx, id)
	if err != nil {
		return c.Reply("❌ Could not load your inventory")
	}
	return c.Reply(FormatInventory(snap.Items, snap.Character.Gold))
}

// HandleQuests handles /quests.
func (h *CharacterHandler) HandleQuests(c tele.Context) error {
	ctx := context.Background()
	id, err := resolveCharacter(ctx, h.accounts, c)
	if err != nil {
		return c.Reply("❌ Could not load your character")
	}

	snap, err := h.game.Snapshot(ctx, id)
	if err != nil {
		return c.Reply("❌ Could not load your quests")
	}
	return c.Reply(FormatQuests(snap.Quests))
}

// HandleJournal handles /journal. Entries still waiting in the writer
// appear after the next flush.
func (h *CharacterHandler) HandleJournal(c tele.Context) error {
	ctx := context.Background()
	id, err := resolveCharacter(ctx, h.accounts, c)
	if err != nil {
		return c.Reply("❌ Could not load your character")
	}

	entries, err := h.journal.ListRecent(ctx, id, journalPageSize)
	if err != nil {
		log.Error().Err(err).Str("character_id", id).Msg("Failed to list journal")
		return c.Reply("❌ Could not read your journal")
	}
	return c.Reply(FormatJournal(entries))
}

// HandleLevelUp handles /levelup [health|magicka|stamina|resume].
func (h *CharacterHandler) HandleLevelUp(c tele.Context) error {
	ctx := context.Background()
	id, err := resolveCharacter(ctx, h.accounts, c)
	if err != nil {
		return c.Reply("❌ Could not load your character")
	}

	arg := strings.ToLower(strings.TrimSpace(c.Message().Payload))
	switch arg {
	case "":
		st, err := h.game.LevelUpStatus(ctx, id)
		if err != nil {
			return c.Reply("❌ Could not load your character")
		}
		if st.Pending != nil {
			return c.Reply(FormatLevelUp(st), BuildLevelUpPanel())
		}
		return c.Reply(FormatLevelUp(st))
	case "resume":
		p, err := h.game.RequestLevelUp(ctx, id)
		if err != nil && !errors.Is(err, leveling.ErrAlreadyPending) {
			return c.Reply("❌ Could not resume the level-up")
		}
		return c.Reply(FormatLevelUp(service.LevelUpStatus{Pending: &p}), BuildLevelUpPanel())
	default:
		return c.Reply(h.applyLevelUp(ctx, id, arg))
	}
}

func (h *CharacterHandler) applyLevelUp(ctx context.Context, id, attribute string) string {
	res, err := h.game.ApplyLevelUp(ctx, id, attribute)
	switch {
	case errors.Is(err, leveling.ErrNoPendingLevelUp):
		return "No level-up is waiting."
	case errors.Is(err, leveling.ErrInvalidAttribute):
		return "❌ Choose health, magicka or stamina."
	case err != nil:
		return "❌ Could not apply the level-up"
	}

	msg := fmt.Sprintf("🎉 Level %d! Your %s grows stronger and you gain a perk point.", res.Applied.NewLevel, res.Attribute)
	if res.Next != nil {
		msg += fmt.Sprintf("\nAnother level-up to %d is ready: /levelup", res.Next.NewLevel)
	}
	return msg
}

// HandlePostpone handles /postpone.
func (h *CharacterHandler) HandlePostpone(c tele.Context) error {
	ctx := context.Background()
	id, err := resolveCharacter(ctx, h.accounts, c)
	if err != nil {
		return c.Reply("❌ Could not load your character")
	}
	return c.Reply(h.postpone(ctx, id))
}

func (h *CharacterHandler) postpone(ctx context.Context, id string) string {
	p, err := h.game.PostponeLevelUp(ctx, id)
	if errors.Is(err, leveling.ErrNoPendingLevelUp) {
		return "No level-up is waiting."
	}
	if err != nil {
		return "❌ Could not postpone the level-up"
	}
	return fmt.Sprintf("⏳ Level %d postponed. Use /levelup resume when you are ready.", p.NewLevel)
}

// HandleRest handles /rest <hours>.
func (h *CharacterHandler) HandleRest(c tele.Context) error {
	ctx := context.Background()
	id, err := resolveCharacter(ctx, h.accounts, c)
	if err != nil {
		return c.Reply("❌ Could not load your character")
	}

	payload := strings.TrimSpace(c.Message().Payload)
	if payload == "" {
		return c.Reply("How long do you rest?", BuildRestPanel())
	}
	hours, err := strconv.Atoi(payload)
	if err != nil {
		return c.Reply("❌ Usage: /rest <hours>")
	}
	return c.Reply(h.rest(ctx, id, hours))
}

func (h *CharacterHandler) rest(ctx context.Context, id string, hours int) string {
	res, err := h.game.Rest(ctx, id, hours)
	if errors.Is(err, service.ErrInvalidRestDuration) {
		return "❌ " + err.Error()
	}
	if err != nil {
		return "❌ Could not rest right now"
	}
	return FormatResult(res)
}

// HandlePerk handles /perk [id].
func (h *CharacterHandler) HandlePerk(c tele.Context) error {
	ctx := context.Background()
	id, err := resolveCharacter(ctx, h.accounts, c)
	if err != nil {
		return c.Reply("❌ Could not load your character")
	}

	perkID := strings.TrimSpace(c.Message().Payload)
	if perkID == "" {
		snap, err := h.game.Snapshot(ctx, id)
		if err != nil {
			return c.Reply("❌ Could not load your character")
		}
		return c.Reply(FormatPerks(snap.Character))
	}

	perk, err := h.game.UnlockPerk(ctx, id, perkID)
	switch {
	case errors.Is(err, service.ErrUnknownPerk),
		errors.Is(err, service.ErrInsufficientPerkPoints),
		errors.Is(err, service.ErrPerkMaxRank):
		return c.Reply("❌ " + err.Error())
	case errors.Is(err, lock.ErrLockTimeout):
		return c.Reply("⏳ Still busy with your last action, try again")
	case err != nil:
		return c.Reply("❌ Could not unlock the perk")
	}
	return c.Reply(fmt.Sprintf("✨ %s is now rank %d.", service.Perks[perk.ID].Name, perk.Rank))
}

// HandleCallback handles level-up and rest keyboard buttons.
func (h *CharacterHandler) HandleCallback(c tele.Context, data string) error {
	ctx := context.Background()
	id, err := resolveCharacter(ctx, h.accounts, c)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Could not load your character", ShowAlert: true})
	}

	var msg string
	switch {
	case strings.HasPrefix(data, CallbackLevelUp):
		msg = h.applyLevelUp(ctx, id, strings.TrimPrefix(data, CallbackLevelUp))
	case data == CallbackPostpone:
		msg = h.postpone(ctx, id)
	case strings.HasPrefix(data, CallbackRest):
		hours, err := strconv.Atoi(strings.TrimPrefix(data, CallbackRest))
		if err != nil {
			return c.Respond()
		}
		msg = h.rest(ctx, id, hours)
	case data == CallbackDismiss:
		h.game.DismissRestPrompt(id)
		msg = "You push on despite your exhaustion."
	default:
		return c.Respond()
	}

	_ = c.Respond()
	return c.Edit(msg)
}

// BuildLevelUpPanel creates the attribute choice keyboard.
func BuildLevelUpPanel() *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	markup.Inline(
		markup.Row(
			markup.Data("❤️ Health", CallbackLevelUp+leveling.AttributeHealth),
			markup.Data("💙 Magicka", CallbackLevelUp+leveling.AttributeMagicka),
			markup.Data("💚 Stamina", CallbackLevelUp+leveling.AttributeStamina),
		),
		markup.Row(markup.Data("⏳ Later", CallbackPostpone)),
	)
	return markup
}

// BuildRestPanel creates the rest duration keyboard. It doubles as the
// forced rest prompt.
func BuildRestPanel() *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	markup.Inline(
		markup.Row(
			markup.Data("1h", CallbackRest+"1"),
			markup.Data("4h", CallbackRest+"4"),
			markup.Data("8h", CallbackRest+"8"),
		),
		markup.Row(markup.Data("Keep going", CallbackDismiss)),
	)
	return markup
}
