package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"narrative-companion/internal/model"
)

// Default retention for the in-process ledger.
const (
	DefaultTTL        = 24 * time.Hour
	DefaultMaxEntries = 10000
)

// MemoryLedger is a process-wide ledger bounded by both age and size.
// The oldest entry is evicted once MaxEntries is reached.
type MemoryLedger struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, model.TransactionRecord]
}

// NewMemoryLedger creates a ledger. Non-positive limits use the defaults.
func NewMemoryLedger(ttl time.Duration, maxEntries int) *MemoryLedger {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryLedger{
		cache: expirable.NewLRU[string, model.TransactionRecord](maxEntries, nil, ttl),
	}
}

// Lookup returns the record for transactionID if it is still retained.
func (l *MemoryLedger) Lookup(_ context.Context, transactionID string) (model.TransactionRecord, bool, error) {
	rec, ok := l.cache.Get(transactionID)
	if !ok {
		return model.TransactionRecord{}, false, nil
	}
	return cloneRecord(rec), true, nil
}

// Record stores rec, merging its fields with any retained record.
func (l *MemoryLedger) Record(_ context.Context, rec model.TransactionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if prev, ok := l.cache.Peek(rec.TransactionID); ok {
		rec.AppliedFields = UnionFields(prev.AppliedFields, rec.AppliedFields)
	} else {
		rec.AppliedFields = UnionFields(rec.AppliedFields)
	}
	l.cache.Add(rec.TransactionID, rec)
	return nil
}

// Prune drops records stamped before the cutoff and returns how many
// were removed. Expired entries are also dropped lazily by the cache.
func (l *MemoryLedger) Prune(_ context.Context, before time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for _, id := range l.cache.Keys() {
		rec, ok := l.cache.Peek(id)
		if ok && rec.Timestamp.Before(before) {
			l.cache.Remove(id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of retained records.
func (l *MemoryLedger) Len() int {
	return l.cache.Len()
}

func cloneRecord(rec model.TransactionRecord) model.TransactionRecord {
	rec.AppliedFields = append([]string(nil), rec.AppliedFields...)
	return rec
}
