package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"narrative-companion/internal/engine"
	"narrative-companion/internal/model"
)

// Store loads engine snapshots and writes changesets atomically.
type Store struct {
	pool       *pgxpool.Pool
	characters *CharacterRepository
}

// NewStore creates a new Store instance.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, characters: NewCharacterRepository(pool)}
}

// Load reads the character with its items and quests.
func (s *Store) Load(ctx context.Context, characterID string) (engine.Snapshot, error) {
	c, err := s.characters.GetByID(ctx, characterID)
	if err != nil {
		return engine.Snapshot{}, err
	}

	items, err := listItems(ctx, s.pool, characterID)
	if err != nil {
		return engine.Snapshot{}, err
	}

	quests, err := listQuests(ctx, s.pool, characterID)
	if err != nil {
		return engine.Snapshot{}, err
	}

	return engine.Snapshot{Character: *c, Items: items, Quests: quests}, nil
}

// Save writes one changeset in a single transaction.
func (s *Store) Save(ctx context.Context, cs model.Changeset) error {
	if cs.Empty() {
		return nil
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if cs.Character != nil {
			if err := saveCharacter(ctx, tx, *cs.Character); err != nil {
				return err
			}
		}
		if err := deleteItems(ctx, tx, cs.CharacterID, cs.DeletedItems); err != nil {
			return err
		}
		if err := upsertItems(ctx, tx, cs.Items); err != nil {
			return err
		}
		if err := upsertQuests(ctx, tx, cs.Quests); err != nil {
			return err
		}
		return appendJournal(ctx, tx, cs.Journal)
	})
	if err != nil {
		return fmt.Errorf("failed to save changeset for character %s: %w", cs.CharacterID, err)
	}
	return nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
