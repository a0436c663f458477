package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"narrative-companion/internal/model"
)

const itemColumns = `id, character_id, name, type, subtype, description, quantity,
		equipped, equipped_by, armor, damage, weight, value, slot, rarity,
		upgrade_level, stackable`

// ItemRepository handles inventory persistence. Records keep the order
// in which they were first inserted.
type ItemRepository struct {
	pool *pgxpool.Pool
}

// NewItemRepository creates a new ItemRepository instance.
func NewItemRepository(pool *pgxpool.Pool) *ItemRepository {
	return &ItemRepository{pool: pool}
}

// ListByCharacter returns a character's inventory in insertion order.
func (r *ItemRepository) ListByCharacter(ctx context.Context, characterID string) ([]model.InventoryItem, error) {
	return listItems(ctx, r.pool, characterID)
}

// Upsert writes full item records.
func (r *ItemRepository) Upsert(ctx context.Context, items []model.InventoryItem) error {
	return upsertItems(ctx, r.pool, items)
}

// Delete removes items by id.
func (r *ItemRepository) Delete(ctx context.Context, characterID string, ids []string) error {
	return deleteItems(ctx, r.pool, characterID, ids)
}

func listItems(ctx context.Context, q DBTX, characterID string) ([]model.InventoryItem, error) {
	const query = `
		SELECT ` + itemColumns + `
		FROM inventory_items
		WHERE character_id = $1
		ORDER BY seq
	`

	rows, err := q.Query(ctx, query, characterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []model.InventoryItem
	for rows.Next() {
		var it model.InventoryItem
		err := rows.Scan(
			&it.ID,
			&it.CharacterID,
			&it.Name,
			&it.Type,
			&it.Subtype,
			&it.Description,
			&it.Quantity,
			&it.Equipped,
			&it.EquippedBy,
			&it.Armor,
			&it.Damage,
			&it.Weight,
			&it.Value,
			&it.Slot,
			&it.Rarity,
			&it.UpgradeLevel,
			&it.Stackable,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}

	return items, nil
}

func upsertItems(ctx context.Context, q DBTX, items []model.InventoryItem) error {
	if len(items) == 0 {
		return nil
	}

	const query = `
		INSERT INTO inventory_items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			subtype = EXCLUDED.subtype,
			description = EXCLUDED.description,
			quantity = EXCLUDED.quantity,
			equipped = EXCLUDED.equipped,
			equipped_by = EXCLUDED.equipped_by,
			armor = EXCLUDED.armor,
			damage = EXCLUDED.damage,
			weight = EXCLUDED.weight,
			value = EXCLUDED.value,
			slot = EXCLUDED.slot,
			rarity = EXCLUDED.rarity,
			upgrade_level = EXCLUDED.upgrade_level,
			stackable = EXCLUDED.stackable
	`

	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(query,
			it.ID, it.CharacterID, it.Name, it.Type, it.Subtype, it.Description, it.Quantity,
			it.Equipped, it.EquippedBy, it.Armor, it.Damage, it.Weight, it.Value, it.Slot, it.Rarity,
			it.UpgradeLevel, it.Stackable,
		)
	}

	br := q.SendBatch(ctx, batch)
	defer br.Close()

	for _, it := range items {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to upsert item %s: %w", it.ID, err)
		}
	}
	return nil
}

func deleteItems(ctx context.Context, q DBTX, characterID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	const query = `DELETE FROM inventory_items WHERE character_id = $1 AND id = ANY($2)`
	if _, err := q.Exec(ctx, query, characterID, ids); err != nil {
		return fmt.Errorf("failed to delete items: %w", err)
	}
	return nil
}
