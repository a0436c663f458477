package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

type migration struct {
	name string
	sql  string
}

// migrations are applied in order; every statement is idempotent.
var migrations = []migration{
	{"characters table", `CREATE TABLE IF NOT EXISTS characters (
		id TEXT PRIMARY KEY,
		user_id BIGINT NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL,
		race VARCHAR(100) NOT NULL DEFAULT '',
		class VARCHAR(100) NOT NULL DEFAULT '',
		archetype VARCHAR(100) NOT NULL DEFAULT '',
		backstory TEXT NOT NULL DEFAULT '',
		appearance TEXT NOT NULL DEFAULT '',
		level INT NOT NULL DEFAULT 1,
		experience INT NOT NULL DEFAULT 0,
		gold INT NOT NULL DEFAULT 0,
		perk_points INT NOT NULL DEFAULT 0,
		stats JSONB NOT NULL,
		vitals JSONB NOT NULL,
		game_time JSONB NOT NULL,
		needs JSONB NOT NULL,
		perks JSONB NOT NULL DEFAULT '[]',
		skills JSONB NOT NULL DEFAULT '[]',
		status_effects JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`},
	{"inventory_items table", `CREATE TABLE IF NOT EXISTS inventory_items (
		id TEXT PRIMARY KEY,
		seq BIGSERIAL,
		character_id TEXT NOT NULL REFERENCES characters(id) ON DELETE CASCADE,
		name VARCHAR(255) NOT NULL,
		type VARCHAR(50) NOT NULL DEFAULT '',
		subtype VARCHAR(50) NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		quantity INT NOT NULL CHECK (quantity > 0),
		equipped BOOLEAN NOT NULL DEFAULT FALSE,
		equipped_by VARCHAR(255) NOT NULL DEFAULT '',
		armor DOUBLE PRECISION,
		damage DOUBLE PRECISION,
		weight DOUBLE PRECISION,
		value DOUBLE PRECISION,
		slot VARCHAR(50) NOT NULL DEFAULT '',
		rarity VARCHAR(50) NOT NULL DEFAULT '',
		upgrade_level INT NOT NULL DEFAULT 0,
		stackable BOOLEAN NOT NULL DEFAULT FALSE
	);
	CREATE INDEX IF NOT EXISTS idx_inventory_items_character ON inventory_items(character_id, seq)`},
	{"quests table", `CREATE TABLE IF NOT EXISTS quests (
		id TEXT PRIMARY KEY,
		seq BIGSERIAL,
		character_id TEXT NOT NULL REFERENCES characters(id) ON DELETE CASCADE,
		title VARCHAR(255) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL,
		objectives JSONB NOT NULL DEFAULT '[]',
		default_reward JSONB,
		rewarded BOOLEAN NOT NULL DEFAULT FALSE
	);
	CREATE INDEX IF NOT EXISTS idx_quests_character ON quests(character_id, seq)`},
	{"journal_entries table", `CREATE TABLE IF NOT EXISTS journal_entries (
		id TEXT PRIMARY KEY,
		character_id TEXT NOT NULL REFERENCES characters(id) ON DELETE CASCADE,
		kind VARCHAR(20) NOT NULL,
		title VARCHAR(255) NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		game_time JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_journal_entries_character ON journal_entries(character_id, created_at DESC)`},
	{"applied_transactions table", `CREATE TABLE IF NOT EXISTS applied_transactions (
		transaction_id TEXT PRIMARY KEY,
		applied_fields TEXT[] NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_applied_transactions_recorded ON applied_transactions(recorded_at)`},
	{"level_ups table", `CREATE TABLE IF NOT EXISTS level_ups (
		character_id TEXT PRIMARY KEY REFERENCES characters(id) ON DELETE CASCADE,
		pending JSONB,
		available JSONB,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`},
	{"quests rewarded column", `ALTER TABLE quests ADD COLUMN IF NOT EXISTS rewarded BOOLEAN NOT NULL DEFAULT FALSE`},
}

// Migrate creates the tables the repositories use.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	log.Info().Msg("Running database migrations...")

	for i, m := range migrations {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", i+1, m.name, err)
		}
		log.Info().Msgf("Migration %d: %s created", i+1, m.name)
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}
