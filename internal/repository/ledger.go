package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"narrative-companion/internal/model"
)

// TransactionLedger is the Postgres idempotency ledger. Recording a known
// transaction id unions the applied fields.
type TransactionLedger struct {
	pool *pgxpool.Pool
}

// NewTransactionLedger creates a new TransactionLedger instance.
func NewTransactionLedger(pool *pgxpool.Pool) *TransactionLedger {
	return &TransactionLedger{pool: pool}
}

// Lookup returns the record for a transaction id.
func (l *TransactionLedger) Lookup(ctx context.Context, transactionID string) (model.TransactionRecord, bool, error) {
	const query = `
		SELECT transaction_id, applied_fields, recorded_at
		FROM applied_transactions
		WHERE transaction_id = $1
	`

	var rec model.TransactionRecord
	err := l.pool.QueryRow(ctx, query, transactionID).Scan(
		&rec.TransactionID,
		&rec.AppliedFields,
		&rec.Timestamp,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TransactionRecord{}, false, nil
		}
		return model.TransactionRecord{}, false, fmt.Errorf("failed to look up transaction: %w", err)
	}
	return rec, true, nil
}

// Record stores rec, merging its fields into any existing record.
func (l *TransactionLedger) Record(ctx context.Context, rec model.TransactionRecord) error {
	const query = `
		INSERT INTO applied_transactions (transaction_id, applied_fields, recorded_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (transaction_id) DO UPDATE SET
			applied_fields = ARRAY(
				SELECT DISTINCT f
				FROM unnest(applied_transactions.applied_fields || EXCLUDED.applied_fields) AS f
				ORDER BY f
			),
			recorded_at = EXCLUDED.recorded_at
	`

	ts := rec.Timestamp
	if ts.IsZero() {
		ts = nowUTC()
	}
	if _, err := l.pool.Exec(ctx, query, rec.TransactionID, nonNil(rec.AppliedFields), ts); err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

// Prune deletes records last written before the cutoff.
func (l *TransactionLedger) Prune(ctx context.Context, before time.Time) (int, error) {
	result, err := l.pool.Exec(ctx, `DELETE FROM applied_transactions WHERE recorded_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune transactions: %w", err)
	}
	return int(result.RowsAffected()), nil
}
