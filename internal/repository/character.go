// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"narrative-companion/internal/model"
)

// Common errors for repository operations.
var (
	ErrCharacterNotFound = errors.New("character not found")
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const characterColumns = `id, user_id, name, race, class, archetype, backstory, appearance,
		level, experience, gold, perk_points, stats, vitals, game_time, needs,
		perks, skills, status_effects, updated_at`

// CharacterRepository handles character persistence.
type CharacterRepository struct {
	pool *pgxpool.Pool
}

// NewCharacterRepository creates a new CharacterRepository instance.
func NewCharacterRepository(pool *pgxpool.Pool) *CharacterRepository {
	return &CharacterRepository{pool: pool}
}

// Create inserts a new character.
func (r *CharacterRepository) Create(ctx context.Context, c model.Character) (*model.Character, error) {
	const query = `
		INSERT INTO characters (` + characterColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, NOW())
		RETURNING ` + characterColumns

	out, err := scanCharacter(r.pool.QueryRow(ctx, query, characterArgs(c)...))
	if err != nil {
		return nil, fmt.Errorf("failed to create character: %w", err)
	}
	return out, nil
}

// GetByID retrieves a character by id.
// Returns ErrCharacterNotFound if the character does not exist.
func (r *CharacterRepository) GetByID(ctx context.Context, id string) (*model.Character, error) {
	const query = `SELECT ` + characterColumns + ` FROM characters WHERE id = $1`

	c, err := scanCharacter(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCharacterNotFound
		}
		return nil, fmt.Errorf("failed to get character: %w", err)
	}
	return c, nil
}

// GetByUserID retrieves the character owned by a Telegram user.
func (r *CharacterRepository) GetByUserID(ctx context.Context, userID int64) (*model.Character, error) {
	const query = `SELECT ` + characterColumns + ` FROM characters WHERE user_id = $1`

	c, err := scanCharacter(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCharacterNotFound
		}
		return nil, fmt.Errorf("failed to get character: %w", err)
	}
	return c, nil
}

// GetOrCreate retrieves the user's character, creating c if none exists.
// The bool result reports whether a character was created.
func (r *CharacterRepository) GetOrCreate(ctx context.Context, c model.Character) (*model.Character, bool, error) {
	existing, err := r.GetByUserID(ctx, c.UserID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrCharacterNotFound) {
		return nil, false, err
	}

	created, err := r.Create(ctx, c)
	if err != nil {
		// another request may have created it first
		existing, err = r.GetByUserID(ctx, c.UserID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return created, true, nil
}

// Save upserts the full character row.
func (r *CharacterRepository) Save(ctx context.Context, c model.Character) error {
	return saveCharacter(ctx, r.pool, c)
}

func saveCharacter(ctx context.Context, q DBTX, c model.Character) error {
	const query = `
		INSERT INTO characters (` + characterColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			race = EXCLUDED.race,
			class = EXCLUDED.class,
			archetype = EXCLUDED.archetype,
			backstory = EXCLUDED.backstory,
			appearance = EXCLUDED.appearance,
			level = EXCLUDED.level,
			experience = EXCLUDED.experience,
			gold = EXCLUDED.gold,
			perk_points = EXCLUDED.perk_points,
			stats = EXCLUDED.stats,
			vitals = EXCLUDED.vitals,
			game_time = EXCLUDED.game_time,
			needs = EXCLUDED.needs,
			perks = EXCLUDED.perks,
			skills = EXCLUDED.skills,
			status_effects = EXCLUDED.status_effects,
			updated_at = EXCLUDED.updated_at
	`

	updatedAt := c.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = nowUTC()
	}
	args := append(characterArgs(c), updatedAt)
	if _, err := q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save character %s: %w", c.ID, err)
	}
	return nil
}

func characterArgs(c model.Character) []any {
	return []any{
		c.ID, c.UserID, c.Name, c.Race, c.Class, c.Archetype, c.Backstory, c.Appearance,
		c.Level, c.Experience, c.Gold, c.PerkPoints,
		c.Stats, c.Vitals, c.Time, c.Needs,
		nonNil(c.Perks), nonNil(c.Skills), nonNil(c.StatusEffects),
	}
}

func scanCharacter(row pgx.Row) (*model.Character, error) {
	var c model.Character
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Name,
		&c.Race,
		&c.Class,
		&c.Archetype,
		&c.Backstory,
		&c.Appearance,
		&c.Level,
		&c.Experience,
		&c.Gold,
		&c.PerkPoints,
		&c.Stats,
		&c.Vitals,
		&c.Time,
		&c.Needs,
		&c.Perks,
		&c.Skills,
		&c.StatusEffects,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// nonNil keeps JSONB list columns as '[]' rather than 'null'.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
