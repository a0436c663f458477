package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"narrative-companion/internal/engine/leveling"
	"narrative-companion/internal/model"
)

func TestGameService_ApplyKeepsLiveSnapshot(t *testing.T) {
	f := newGameFixture(testCharacter())
	ctx := context.Background()

	res, err := f.svc.Apply(ctx, "c1", model.Update{
		TransactionID: "tx-1",
		Narrative:     &model.Narrative{Title: "Bandits", Content: "You loot the camp."},
		GoldChange:    intPtr(25),
	})
	require.NoError(t, err)
	assert.Equal(t, 125, res.Character.Gold)

	_, err = f.svc.Apply(ctx, "c1", model.Update{TransactionID: "tx-2", GoldChange: intPtr(5)})
	require.NoError(t, err)

	snap, err := f.svc.Snapshot(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 130, snap.Character.Gold)
	assert.Equal(t, 1, f.loader.loads, "live snapshot is loaded once")

	last := f.writer.last()
	assert.True(t, last.dirty.Character)
	assert.Equal(t, 130, last.character.Gold)
}

func TestGameService_ApplyReplayIsFiltered(t *testing.T) {
	f := newGameFixture(testCharacter())
	ctx := context.Background()
	u := model.Update{TransactionID: "tx-loot", GoldChange: intPtr(50)}

	_, err := f.svc.Apply(ctx, "c1", u)
	require.NoError(t, err)
	res, err := f.svc.Apply(ctx, "c1", u)
	require.NoError(t, err)

	assert.True(t, res.Filtered)
	assert.Equal(t, 150, res.Character.Gold)
}

func TestGameService_LevelUpStateIsPersisted(t *testing.T) {
	f := newGameFixture(testCharacter())
	ctx := context.Background()

	res, err := f.svc.Apply(ctx, "c1", model.Update{TransactionID: "tx-xp", XPChange: intPtr(900)})
	require.NoError(t, err)
	require.NotNil(t, res.LevelUp)

	st := f.levelUps.state("c1")
	require.NotNil(t, st.Pending)
	assert.Equal(t, 2, st.Pending.NewLevel)
	assert.Contains(t, f.publisher.kinds(), model.NotifyLevelUp)

	saves := f.levelUps.saves
	_, err = f.svc.Apply(ctx, "c1", model.Update{TransactionID: "tx-gold", GoldChange: intPtr(1)})
	require.NoError(t, err)
	assert.Equal(t, saves, f.levelUps.saves, "unchanged leveling state is not saved again")
}

func TestGameService_RestoresLevelingOnLoad(t *testing.T) {
	f := newGameFixture(testCharacter())
	f.levelUps.states["c1"] = leveling.State{Available: &model.PendingLevelUp{CharID: "c1", NewLevel: 2}}

	st, err := f.svc.LevelUpStatus(context.Background(), "c1")
	require.NoError(t, err)
	assert.Nil(t, st.Pending)
	require.NotNil(t, st.Available)
	assert.Equal(t, 2, st.Available.NewLevel)
}

func TestGameService_UnknownCharacter(t *testing.T) {
	f := newGameFixture()
	_, err := f.svc.Apply(context.Background(), "missing", model.Update{})
	assert.Error(t, err)
}

func TestGameService_ForgetReloads(t *testing.T) {
	f := newGameFixture(testCharacter())
	ctx := context.Background()

	_, err := f.svc.Snapshot(ctx, "c1")
	require.NoError(t, err)
	f.svc.Forget("c1")
	_, err = f.svc.Snapshot(ctx, "c1")
	require.NoError(t, err)

	assert.Equal(t, 2, f.loader.loads)
}
