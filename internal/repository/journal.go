package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"narrative-companion/internal/model"
)

// JournalRepository handles journal persistence. Entries are append-only.
type JournalRepository struct {
	pool *pgxpool.Pool
}

// NewJournalRepository creates a new JournalRepository instance.
func NewJournalRepository(pool *pgxpool.Pool) *JournalRepository {
	return &JournalRepository{pool: pool}
}

// Append stores new entries. Entries already stored are left untouched.
func (r *JournalRepository) Append(ctx context.Context, entries []model.JournalEntry) error {
	return appendJournal(ctx, r.pool, entries)
}

// ListRecent returns the newest entries first.
func (r *JournalRepository) ListRecent(ctx context.Context, characterID string, limit int) ([]model.JournalEntry, error) {
	const query = `
		SELECT id, character_id, kind, title, content, game_time, created_at
		FROM journal_entries
		WHERE character_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, characterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal: %w", err)
	}
	defer rows.Close()

	var entries []model.JournalEntry
	for rows.Next() {
		var e model.JournalEntry
		err := rows.Scan(
			&e.ID,
			&e.CharacterID,
			&e.Kind,
			&e.Title,
			&e.Content,
			&e.GameTime,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal: %w", err)
	}

	return entries, nil
}

func appendJournal(ctx context.Context, q DBTX, entries []model.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}

	const query = `
		INSERT INTO journal_entries (id, character_id, kind, title, content, game_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, e := range entries {
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = nowUTC()
		}
		batch.Queue(query, e.ID, e.CharacterID, e.Kind, e.Title, e.Content, e.GameTime, createdAt)
	}

	br := q.SendBatch(ctx, batch)
	defer br.Close()

	for _, e := range entries {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to append journal entry %s: %w", e.ID, err)
		}
	}
	return nil
}
