// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"narrative-companion/internal/config"
	"narrative-companion/internal/handler"
	"narrative-companion/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot *tele.Bot
	cfg *config.Config

	// Handlers
	characterHandler *handler.CharacterHandler
	gmHandler        *handler.GameMasterHandler
	shopHandler      *handler.ShopHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config         *config.Config
	AccountService *service.AccountService
	GameService    *service.GameService
	ShopService    *service.ShopService
	Journal        handler.JournalReader
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			log.Error().Err(err).Msg("Handler error")
		},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot: teleBot,
		cfg: deps.Config,
	}

	// Initialize handlers
	b.characterHandler = handler.NewCharacterHandler(deps.AccountService, deps.GameService, deps.Journal)
	b.gmHandler = handler.NewGameMasterHandler(deps.AccountService, deps.GameService)
	b.shopHandler = handler.NewShopHandler(deps.ShopService, deps.AccountService, deps.GameService)

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg))
	b.bot.Use(LoggingMiddleware())
}

// registerHandlers registers all command and callback handlers.
func (b *Bot) registerHandlers() {
	// Character handlers
	b.bot.Handle("/start", b.characterHandler.HandleStart)
	b.bot.Handle("/sheet", b.characterHandler.HandleSheet)
	b.bot.Handle("/bag", b.characterHandler.HandleBag)
	b.bot.Handle("/quests", b.characterHandler.HandleQuests)
	b.bot.Handle("/journal", b.characterHandler.HandleJournal)
	b.bot.Handle("/levelup", b.characterHandler.HandleLevelUp)
	b.bot.Handle("/postpone", b.characterHandler.HandlePostpone)
	b.bot.Handle("/rest", b.characterHandler.HandleRest)
	b.bot.Handle("/perk", b.characterHandler.HandlePerk)

	// Game master updates
	gmGroup := b.bot.Group()
	gmGroup.Use(GameMasterMiddleware(b.cfg))
	gmGroup.Handle("/gm", b.gmHandler.HandleUpdate)

	// Shop handlers
	b.bot.Handle("/shop", b.shopHandler.HandleShop)
	b.bot.Handle("/buy", b.shopHandler.HandleBuy)

	b.bot.Handle(tele.OnCallback, b.handleCallback)
}

// CallbackData strips the \f prefix telebot v3 adds to callback data.
func CallbackData(raw string) string {
	return strings.TrimPrefix(raw, "\f")
}

// handleCallback routes callbacks to appropriate handlers
func (b *Bot) handleCallback(c tele.Context) error {
	callback := c.Callback()
	if callback == nil {
		return nil
	}

	data := CallbackData(callback.Data)
	log.Debug().Str("data", data).Msg("Callback received")

	if strings.HasPrefix(data, "shop_") {
		return b.shopHandler.HandleShopCallback(c, data)
	}
	return b.characterHandler.HandleCallback(c, data)
}

// Start starts the bot polling. It blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
