// Package notify publishes the notifications of an update pass to the
// presentation layer.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"narrative-companion/internal/model"
)

// DefaultSubjectPrefix is followed by the character id.
const DefaultSubjectPrefix = "companion.notifications"

// Publisher delivers notifications for one character.
type Publisher interface {
	Publish(ctx context.Context, characterID string, notes []model.Notification) error
	Close() error
}

// Envelope is the wire form of one notification.
type Envelope struct {
	CharacterID string         `json:"characterId"`
	Kind        string         `json:"kind"`
	Message     string         `json:"message"`
	DelayMs     int64          `json:"delayMs,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	SentAt      time.Time      `json:"sentAt"`
}

func envelope(characterID string, n model.Notification, now time.Time) Envelope {
	return Envelope{
		CharacterID: characterID,
		Kind:        n.Kind,
		Message:     n.Message,
		DelayMs:     n.Delay.Milliseconds(),
		Data:        n.Data,
		SentAt:      now,
	}
}

// LogPublisher writes notifications to the log. It is used when no
// broker is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

// NewLogPublisher creates a publisher on the global logger.
func NewLogPublisher() *LogPublisher {
	return &LogPublisher{logger: log.Logger}
}

// NewLogPublisherWithLogger creates a publisher on logger.
func NewLogPublisherWithLogger(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs each notification.
func (p *LogPublisher) Publish(ctx context.Context, characterID string, notes []model.Notification) error {
	for _, n := range notes {
		p.logger.Info().
			Str("character_id", characterID).
			Str("kind", n.Kind).
			Dur("delay", n.Delay).
			Msg(n.Message)
	}
	return nil
}

// Close does nothing.
func (p *LogPublisher) Close() error { return nil }

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes one message per notification on
// <prefix>.<characterID>.
type NATSPublisher struct {
	nc     conn
	prefix string
	now    func() time.Time
}

// Connect dials NATS and returns a publisher.
func Connect(url, prefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("narrative-companion"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("Disconnected from NATS")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("Reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info().Str("url", url).Msg("Connected to NATS")
	return newNATSPublisher(nc, prefix), nil
}

func newNATSPublisher(nc conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{nc: nc, prefix: prefix, now: time.Now}
}

// Subject returns the subject for a character.
func (p *NATSPublisher) Subject(characterID string) string {
	return p.prefix + "." + characterID
}

// Publish sends every notification. It stops at the first failure.
func (p *NATSPublisher) Publish(ctx context.Context, characterID string, notes []model.Notification) error {
	subject := p.Subject(characterID)
	now := p.now()

	for _, n := range notes {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(envelope(characterID, n, now))
		if err != nil {
			return fmt.Errorf("failed to marshal notification: %w", err)
		}
		if err := p.nc.Publish(subject, data); err != nil {
			return fmt.Errorf("failed to publish notification: %w", err)
		}
	}
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}

// CombatRequest is the wire form of an encounter hand-off.
type CombatRequest struct {
	CharacterID string            `json:"characterId"`
	Name        string            `json:"name"`
	Level       int               `json:"level"`
	Combat      model.CombatStart `json:"combat"`
	SentAt      time.Time         `json:"sentAt"`
}

// CombatSubject receives encounter hand-offs.
func (p *NATSPublisher) CombatSubject() string {
	return p.prefix + ".combat"
}

// StartCombat publishes the encounter for the combat subsystem.
func (p *NATSPublisher) StartCombat(ctx context.Context, character model.Character, start model.CombatStart) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(CombatRequest{
		CharacterID: character.ID,
		Name:        character.Name,
		Level:       character.Level,
		Combat:      start,
		SentAt:      p.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal combat request: %w", err)
	}
	if err := p.nc.Publish(p.CombatSubject(), data); err != nil {
		return fmt.Errorf("failed to publish combat request: %w", err)
	}
	return nil
}
