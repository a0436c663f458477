package idempotency

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"narrative-companion/internal/model"
)

func TestMemoryLedger_RecordUnionsFields(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(time.Hour, 10)

	require.NoError(t, l.Record(ctx, model.TransactionRecord{TransactionID: "a", AppliedFields: []string{"xp"}, Timestamp: time.Now()}))
	require.NoError(t, l.Record(ctx, model.TransactionRecord{TransactionID: "a", AppliedFields: []string{"gold", "xp"}, Timestamp: time.Now()}))

	rec, ok, err := l.Lookup(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"gold", "xp"}, rec.AppliedFields)
}

func TestMemoryLedger_SizeBound(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(time.Hour, 3)

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Record(ctx, model.TransactionRecord{TransactionID: fmt.Sprintf("tx-%d", i), Timestamp: time.Now()}))
	}

	assert.Equal(t, 3, l.Len())
	_, ok, _ := l.Lookup(ctx, "tx-0")
	assert.False(t, ok)
	_, ok, _ = l.Lookup(ctx, "tx-4")
	assert.True(t, ok)
}

func TestMemoryLedger_TTL(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(50*time.Millisecond, 10)

	require.NoError(t, l.Record(ctx, model.TransactionRecord{TransactionID: "short", Timestamp: time.Now()}))
	_, ok, _ := l.Lookup(ctx, "short")
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok, _ := l.Lookup(ctx, "short")
		return !ok
	}, time.Second, 20*time.Millisecond)
}

func TestMemoryLedger_Prune(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(time.Hour, 10)
	now := time.Now()

	require.NoError(t, l.Record(ctx, model.TransactionRecord{TransactionID: "old", Timestamp: now.Add(-2 * time.Hour)}))
	require.NoError(t, l.Record(ctx, model.TransactionRecord{TransactionID: "new", Timestamp: now}))

	n, err := l.Prune(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, l.Len())
}

func TestMemoryLedger_ConcurrentRecord(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(time.Hour, 100)
	fields := []string{"xp", "gold", "items", "time", "needs"}

	var wg sync.WaitGroup
	for _, f := range fields {
		wg.Add(1)
		go func(field string) {
			defer wg.Done()
			_ = l.Record(ctx, model.TransactionRecord{TransactionID: "shared", AppliedFields: []string{field}, Timestamp: time.Now()})
		}(f)
	}
	wg.Wait()

	rec, ok, err := l.Lookup(ctx, "shared")
	require.NoError(t, err)
	require.True(t, ok)
	assert.ElementsMatch(t, fields, rec.AppliedFields)
}
