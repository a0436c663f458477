package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"narrative-companion/internal/model"
)

const (
	ledgerKeyPrefix = "ledger:tx:"
	// seenField is written with every record so that a transaction
	// without effect fields still exists.
	seenField = "_seen"
)

// RedisLedger keeps transaction records as hashes of field -> unix millis.
// Keys expire after the retention TTL, so Prune has nothing to do.
type RedisLedger struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisLedger creates a Redis ledger with the given retention.
func NewRedisLedger(client redis.UniversalClient, ttl time.Duration) *RedisLedger {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisLedger{client: client, ttl: ttl}
}

func ledgerKey(transactionID string) string {
	return ledgerKeyPrefix + transactionID
}

// Lookup returns the record for a transaction id.
func (l *RedisLedger) Lookup(ctx context.Context, transactionID string) (model.TransactionRecord, bool, error) {
	vals, err := l.client.HGetAll(ctx, ledgerKey(transactionID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return model.TransactionRecord{}, false, fmt.Errorf("failed to look up transaction: %w", err)
	}
	if len(vals) == 0 {
		return model.TransactionRecord{}, false, nil
	}
	return decodeLedgerHash(transactionID, vals), true, nil
}

// Record adds rec's fields to the hash and refreshes its TTL.
func (l *RedisLedger) Record(ctx context.Context, rec model.TransactionRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = nowUTC()
	}
	key := ledgerKey(rec.TransactionID)

	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, encodeLedgerHash(rec)...)
		pipe.Expire(ctx, key, l.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

// Prune is a no-op; Redis expires records on its own.
func (l *RedisLedger) Prune(ctx context.Context, before time.Time) (int, error) {
	return 0, nil
}

// encodeLedgerHash returns HSET arguments in a stable order.
func encodeLedgerHash(rec model.TransactionRecord) []any {
	ts := rec.Timestamp.UnixMilli()
	fields := append([]string(nil), rec.AppliedFields...)
	sort.Strings(fields)

	args := []any{seenField, ts}
	for i, f := range fields {
		if f == "" || f == seenField || (i > 0 && f == fields[i-1]) {
			continue
		}
		args = append(args, f, ts)
	}
	return args
}

func decodeLedgerHash(transactionID string, vals map[string]string) model.TransactionRecord {
	rec := model.TransactionRecord{TransactionID: transactionID}
	var latest int64
	for field, raw := range vals {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil && ms > latest {
			latest = ms
		}
		if field != seenField {
			rec.AppliedFields = append(rec.AppliedFields, field)
		}
	}
	sort.Strings(rec.AppliedFields)
	if latest > 0 {
		rec.Timestamp = time.UnixMilli(latest).UTC()
	}
	return rec
}
