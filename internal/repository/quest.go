package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"narrative-companion/internal/model"
)

// QuestRepository handles quest log persistence.
type QuestRepository struct {
	pool *pgxpool.Pool
}

// NewQuestRepository creates a new QuestRepository instance.
func NewQuestRepository(pool *pgxpool.Pool) *QuestRepository {
	return &QuestRepository{pool: pool}
}

// ListByCharacter returns a character's quests in creation order.
func (r *QuestRepository) ListByCharacter(ctx context.Context, characterID string) ([]model.Quest, error) {
	return listQuests(ctx, r.pool, characterID)
}

// Upsert writes full quest records.
func (r *QuestRepository) Upsert(ctx context.Context, quests []model.Quest) error {
	return upsertQuests(ctx, r.pool, quests)
}

func listQuests(ctx context.Context, q DBTX, characterID string) ([]model.Quest, error) {
	const query = `
		SELECT id, character_id, title, description, status, objectives, default_reward, rewarded
		FROM quests
		WHERE character_id = $1
		ORDER BY seq
	`

	rows, err := q.Query(ctx, query, characterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quests: %w", err)
	}
	defer rows.Close()

	var quests []model.Quest
	for rows.Next() {
		var qu model.Quest
		err := rows.Scan(
			&qu.ID,
			&qu.CharacterID,
			&qu.Title,
			&qu.Description,
			&qu.Status,
			&qu.Objectives,
			&qu.DefaultReward,
			&qu.Rewarded,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quest: %w", err)
		}
		quests = append(quests, qu)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quests: %w", err)
	}

	return quests, nil
}

func upsertQuests(ctx context.Context, q DBTX, quests []model.Quest) error {
	if len(quests) == 0 {
		return nil
	}

	const query = `
		INSERT INTO quests (id, character_id, title, description, status, objectives, default_reward, rewarded)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			objectives = EXCLUDED.objectives,
			default_reward = EXCLUDED.default_reward,
			rewarded = quests.rewarded OR EXCLUDED.rewarded
	`

	batch := &pgx.Batch{}
	for _, qu := range quests {
		batch.Queue(query, qu.ID, qu.CharacterID, qu.Title, qu.Description, qu.Status,
			nonNil(qu.Objectives), qu.DefaultReward, qu.Rewarded)
	}

	br := q.SendBatch(ctx, batch)
	defer br.Close()

	for _, qu := range quests {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to upsert quest %s: %w", qu.ID, err)
		}
	}
	return nil
}
