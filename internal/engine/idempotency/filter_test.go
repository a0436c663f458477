package idempotency

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"narrative-companion/internal/model"
)

func intPtr(v int) *int { return &v }

type failingLedger struct{ err error }

func (f failingLedger) Lookup(context.Context, string) (model.TransactionRecord, bool, error) {
	return model.TransactionRecord{}, false, f.err
}
func (f failingLedger) Record(context.Context, model.TransactionRecord) error { return f.err }
func (f failingLedger) Prune(context.Context, time.Time) (int, error)         { return 0, f.err }

func TestFilter_NoTransactionPassesThrough(t *testing.T) {
	f := NewFilter(failingLedger{err: errors.New("must not be called")})
	u := model.Update{GoldChange: intPtr(10)}

	d, err := f.Filter(context.Background(), u)
	require.NoError(t, err)
	assert.False(t, d.Filtered)
	assert.Equal(t, ReasonNoTransaction, d.Reason)
	assert.Equal(t, u, d.Update)

	rec, err := f.Commit(context.Background(), d, u)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestFilter_ReplayStripsGrantedFieldsOnly(t *testing.T) {
	ctx := context.Background()
	f := NewFilter(NewMemoryLedger(time.Hour, 100))
	u := model.Update{
		TransactionID: "tx-1",
		Narrative:     &model.Narrative{Title: "Ambush", Content: "Bandits!"},
		GoldChange:    intPtr(25),
		XPChange:      intPtr(100),
		NewItems:      []model.ItemGrant{{Name: "Iron Dagger", Type: model.ItemTypeWeapon}},
	}

	first, err := f.Filter(ctx, u)
	require.NoError(t, err)
	assert.False(t, first.Filtered)
	assert.Equal(t, ReasonFirstSight, first.Reason)

	rec, err := f.Commit(ctx, first, u)
	require.NoError(t, err)
	assert.Equal(t, []string{model.FieldGold, model.FieldItems, model.FieldXP}, rec.AppliedFields)

	second, err := f.Filter(ctx, u)
	require.NoError(t, err)
	assert.True(t, second.Filtered)
	assert.Nil(t, second.Update.GoldChange)
	assert.Nil(t, second.Update.XPChange)
	assert.Empty(t, second.Update.NewItems)
	require.NotNil(t, second.Update.Narrative)
	assert.Equal(t, "Ambush", second.Update.Narrative.Title)
	assert.Contains(t, second.Reason, ReasonAlreadyApplied)
}

func TestFilter_NewFieldOnKnownTransactionIsApplied(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(time.Hour, 100)
	require.NoError(t, ledger.Record(ctx, model.TransactionRecord{
		TransactionID: "tx-2",
		AppliedFields: []string{model.FieldGold},
		Timestamp:     time.Now(),
	}))
	f := NewFilter(ledger)

	u := model.Update{TransactionID: "tx-2", GoldChange: intPtr(5), XPChange: intPtr(50)}
	d, err := f.Filter(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, []string{model.FieldGold}, d.Stripped)
	assert.Nil(t, d.Update.GoldChange)
	require.NotNil(t, d.Update.XPChange)

	rec, err := f.Commit(ctx, d, u)
	require.NoError(t, err)
	assert.Equal(t, []string{model.FieldGold, model.FieldXP}, rec.AppliedFields)
}

func TestFilter_FailedFieldsAreNotRecorded(t *testing.T) {
	ctx := context.Background()
	f := NewFilter(NewMemoryLedger(time.Hour, 100))
	u := model.Update{
		TransactionID: "tx-4",
		GoldChange:    intPtr(10),
		CombatStart:   &model.CombatStart{Enemies: []model.CombatEnemy{{Name: "Wolf"}}},
	}

	d, err := f.Filter(ctx, u)
	require.NoError(t, err)
	rec, err := f.Commit(ctx, d, u, model.FieldCombat)
	require.NoError(t, err)
	assert.Equal(t, []string{model.FieldGold}, rec.AppliedFields)

	again, err := f.Filter(ctx, u)
	require.NoError(t, err)
	assert.Nil(t, again.Update.GoldChange)
	require.NotNil(t, again.Update.CombatStart)

	// a field granted earlier stays recorded even if its stage fails later
	rec, err = f.Commit(ctx, again, u, model.FieldGold, model.FieldCombat)
	require.NoError(t, err)
	assert.Equal(t, []string{model.FieldGold}, rec.AppliedFields)
}

func TestFilter_AlreadyAppliedLocally(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(time.Hour, 100)
	f := NewFilter(ledger)
	minutes := 30.0
	u := model.Update{
		TransactionID:         "tx-3",
		AlreadyAppliedLocally: true,
		GoldChange:            intPtr(-40),
		NewItems:              []model.ItemGrant{{Name: "Bread", Type: "food"}},
		TimeAdvanceMinutes:    &minutes,
	}

	d, err := f.Filter(ctx, u)
	require.NoError(t, err)
	assert.True(t, d.Filtered)
	assert.Equal(t, ReasonAppliedLocally, d.Reason)
	assert.Nil(t, d.Update.GoldChange)
	assert.Empty(t, d.Update.NewItems)
	require.NotNil(t, d.Update.TimeAdvanceMinutes)

	_, err = f.Commit(ctx, d, u)
	require.NoError(t, err)

	rec, ok, err := ledger.Lookup(ctx, "tx-3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, rec.Has(model.FieldGold))
	assert.True(t, rec.Has(model.FieldItems))
	assert.True(t, rec.Has(model.FieldTime))
}

func TestFilter_LookupErrorFailsPass(t *testing.T) {
	f := NewFilter(failingLedger{err: errors.New("connection refused")})

	_, err := f.Filter(context.Background(), model.Update{TransactionID: "tx-4"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLedgerUnavailable))
}

func TestFilter_RecordErrorReturnsRecord(t *testing.T) {
	f := NewFilter(failingLedger{err: errors.New("disk full")})
	u := model.Update{TransactionID: "tx-5", GoldChange: intPtr(1)}

	rec, err := f.Commit(context.Background(), Decision{Update: u}, u)
	require.Error(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "tx-5", rec.TransactionID)
}

func TestUnionFields(t *testing.T) {
	got := UnionFields([]string{"xp", "gold"}, []string{"gold", "", "items"}, nil)
	assert.Equal(t, []string{"gold", "items", "xp"}, got)
}

// TestReplayNeverRegrantsProperty checks that filtering an update a
// second time never leaves a field the first pass recorded.
func TestReplayNeverRegrantsProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		f := NewFilter(NewMemoryLedger(time.Hour, 1000))

		u := model.Update{TransactionID: fmt.Sprintf("tx-%d", rapid.IntRange(0, 5).Draw(rt, "id"))}
		if rapid.Bool().Draw(rt, "gold") {
			u.GoldChange = intPtr(rapid.IntRange(-100, 100).Draw(rt, "goldAmount"))
		}
		if rapid.Bool().Draw(rt, "xp") {
			u.XPChange = intPtr(rapid.IntRange(-100, 1000).Draw(rt, "xpAmount"))
		}
		if rapid.Bool().Draw(rt, "items") {
			u.RemovedItems = []model.ItemRemoval{{Name: "Torch"}}
		}
		u.AlreadyAppliedLocally = rapid.Bool().Draw(rt, "local")

		d, err := f.Filter(ctx, u)
		if err != nil {
			rt.Fatal(err)
		}
		if _, err := f.Commit(ctx, d, u); err != nil {
			rt.Fatal(err)
		}

		replay, err := f.Filter(ctx, u)
		if err != nil {
			rt.Fatal(err)
		}
		if fields := replay.Update.Fields(); len(fields) != 0 {
			rt.Fatalf("replay still carries %v", fields)
		}
	})
}
