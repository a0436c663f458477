package bot

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"narrative-companion/internal/config"
)

const privateUserCacheSize = 10000

// privateUsers holds players seen in whitelisted groups; they may keep
// playing in private chat. The least recently seen are forgotten first.
var privateUsers = mustLRU(privateUserCacheSize)

func mustLRU(size int) *lru.Cache[int64, struct{}] {
	c, err := lru.New[int64, struct{}](size)
	if err != nil {
		panic(err)
	}
	return c
}

// AllowPrivateUser marks a user as allowed to use private chat.
func AllowPrivateUser(userID int64) {
	privateUsers.Add(userID, struct{}{})
}

// IsPrivateUserAllowed checks if a user is allowed to use private chat.
func IsPrivateUserAllowed(userID int64) bool {
	return privateUsers.Contains(userID)
}

// WhitelistMiddleware creates a middleware that checks if the chat is whitelisted.
func WhitelistMiddleware(cfg *config.Config) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			chat := c.Chat()
			sender := c.Sender()

			if chat == nil || sender == nil {
				return nil
			}

			if chat.Type == tele.ChatPrivate {
				if len(cfg.Whitelist.Chats) == 0 || IsPrivateUserAllowed(sender.ID) {
					return next(c)
				}
				log.Debug().
					Int64("user_id", sender.ID).
					Msg("Ignoring private chat from a player never seen in a whitelisted group")
				return nil
			}

			if !cfg.IsChatAllowed(chat.ID) {
				log.Debug().
					Int64("chat_id", chat.ID).
					Msg("Ignoring command from non-whitelisted chat")
				return nil
			}

			AllowPrivateUser(sender.ID)

			return next(c)
		}
	}
}

// GameMasterMiddleware rejects raw updates from users who are not game masters.
func GameMasterMiddleware(cfg *config.Config) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}

			if !cfg.IsGameMaster(sender.ID) {
				log.Warn().
					Int64("user_id", sender.ID).
					Msg("Non game master attempted a raw update")
				return c.Reply("❌ Only the game master can send raw updates")
			}

			return next(c)
		}
	}
}

// LoggingMiddleware logs every command and button press at debug level.
// Raw /gm payloads are not logged, only their size.
func LoggingMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			ev := log.Debug()
			if sender := c.Sender(); sender != nil {
				ev = ev.Int64("user_id", sender.ID).Str("username", sender.Username)
			}
			if chat := c.Chat(); chat != nil {
				ev = ev.Int64("chat_id", chat.ID)
			}

			if cb := c.Callback(); cb != nil {
				ev.Str("callback", CallbackData(cb.Data)).Msg("Button pressed")
			} else if msg := c.Message(); msg != nil && msg.Payload != "" {
				ev.Str("command", commandOf(msg.Text)).Int("payload_bytes", len(msg.Payload)).Msg("Command received")
			} else {
				ev.Str("text", c.Text()).Msg("Message received")
			}

			return next(c)
		}
	}
}

// commandOf returns the leading /command of a message.
func commandOf(text string) string {
	if i := strings.IndexAny(text, " \n"); i >= 0 {
		return text[:i]
	}
	return text
}

// RecoveryMiddleware creates a middleware that recovers from panics.
func RecoveryMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Msg("Recovered from panic in handler")
					_ = c.Reply("❌ Something went wrong, please try again later")
				}
			}()
			return next(c)
		}
	}
}
