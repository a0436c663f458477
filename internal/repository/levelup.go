package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"narrative-companion/internal/engine/leveling"
)

// LevelUpRepository persists the pending and available level-ups so that
// a postponed level-up survives a restart.
type LevelUpRepository struct {
	pool *pgxpool.Pool
}

// NewLevelUpRepository creates a new LevelUpRepository instance.
func NewLevelUpRepository(pool *pgxpool.Pool) *LevelUpRepository {
	return &LevelUpRepository{pool: pool}
}

// Load returns the stored state, or an empty state when none is stored.
func (r *LevelUpRepository) Load(ctx context.Context, characterID string) (leveling.State, error) {
	const query = `SELECT pending, available FROM level_ups WHERE character_id = $1`

	var st leveling.State
	err := r.pool.QueryRow(ctx, query, characterID).Scan(&st.Pending, &st.Available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return leveling.State{}, nil
		}
		return leveling.State{}, fmt.Errorf("failed to load level-up state: %w", err)
	}
	return st, nil
}

// Save stores the state, replacing what was there.
func (r *LevelUpRepository) Save(ctx context.Context, characterID string, st leveling.State) error {
	const query = `
		INSERT INTO level_ups (character_id, pending, available, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (character_id) DO UPDATE SET
			pending = EXCLUDED.pending,
			available = EXCLUDED.available,
			updated_at = NOW()
	`

	if _, err := r.pool.Exec(ctx, query, characterID, st.Pending, st.Available); err != nil {
		return fmt.Errorf("failed to save level-up state: %w", err)
	}
	return nil
}
