package store

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mirrordomain "github.com/frankieli/livetable/internal/modules/mirror/domain"
	"github.com/frankieli/livetable/internal/modules/mirror/repository/memory"
	"github.com/frankieli/livetable/internal/modules/round/domain"
)

func TestStage_PreconditionOrder(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := newOpenStore(clock)
	ctx := context.Background()

	// An expired countdown wins over everything else, even a settled status.
	s.ApplyTableRecord(ctx, domain.TableRecord{
		TableID: "CF01", Status: domain.StatusSettled,
	}, domain.SourceWebSocket)
	clock.Advance(31 * time.Second)
	assert.ErrorIs(t, s.Stage(ctx, "M", 10), domain.ErrBettingClosed)
}

func TestStage_StatusRejections(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New("CF01", WithClock(clock))
	ctx := context.Background()

	s.ApplyTableRecord(ctx, domain.TableRecord{
		TableID: "CF01", RoundID: "R1", Status: domain.StatusFighting,
	}, domain.SourceWebSocket)
	assert.ErrorIs(t, s.Stage(ctx, "M", 10), domain.ErrRoundInProgress)
}

func TestStage_UnknownStatusProceeds(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New("CF01", WithClock(clock))
	ctx := context.Background()

	s.ApplyTableRecord(ctx, domain.TableRecord{
		TableID: "CF01", RoundID: "R1",
	}, domain.SourceWebSocket)

	assert.NoError(t, s.Stage(ctx, "M", 10))
	assert.Equal(t, 10.0, s.Snapshot().Pending["M"])
}

func TestStage_SingleZoneLock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := newOpenStore(clock)
	ctx := context.Background()

	require.NoError(t, s.Stage(ctx, "M", 10))
	require.NoError(t, s.Stage(ctx, "M", 10), "same zone stacks freely")
	assert.ErrorIs(t, s.Stage(ctx, "W", 10), domain.ErrZoneLocked)
}

func TestStage_MaxLimitCountsConfirmed(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := newOpenStore(clock)
	ctx := context.Background()

	s.ApplyTableRecord(ctx, domain.TableRecord{
		TableID: "CF01", BetLimitMax: floatPtr(100),
	}, domain.SourceREST)
	s.ConfirmApplied(ctx, []domain.Bet{{ID: "w1", Zone: "M", Amount: 60}}, nil)

	require.NoError(t, s.Stage(ctx, "M", 30))
	assert.ErrorIs(t, s.Stage(ctx, "M", 20), domain.ErrOverMaxLimit)
	assert.NoError(t, s.Stage(ctx, "M", 10), "exactly at the limit is allowed")
}

func TestUnstage(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := newOpenStore(clock)
	ctx := context.Background()

	require.NoError(t, s.Stage(ctx, "M", 30))
	s.Unstage(ctx, "M", 30)

	snap := s.Snapshot()
	assert.Empty(t, snap.Pending)
	assert.Empty(t, snap.StagedOrder, "zone lock released when the zone empties")
	assert.NoError(t, s.Stage(ctx, "W", 10))
}

func TestUndoLast(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := newOpenStore(clock)
	ctx := context.Background()

	zone, amount, ok := s.UndoLast(ctx)
	assert.False(t, ok)
	assert.Empty(t, zone)
	assert.Zero(t, amount)

	require.NoError(t, s.Stage(ctx, "M", 10))
	require.NoError(t, s.Stage(ctx, "M", 20))

	zone, amount, ok = s.UndoLast(ctx)
	assert.True(t, ok)
	assert.Equal(t, "M", zone)
	assert.Equal(t, 30.0, amount, "undo removes the whole zone entry")
	assert.Empty(t, s.Snapshot().Pending)
}

func TestClearPending(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := newOpenStore(clock)
	ctx := context.Background()

	require.NoError(t, s.Stage(ctx, "M", 50))
	cleared := s.ClearPending(ctx)

	assert.Equal(t, map[string]float64{"M": 50}, cleared)
	assert.Empty(t, s.Snapshot().Pending)
}

func TestDoublePending(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := newOpenStore(clock)
	ctx := context.Background()

	require.NoError(t, s.Stage(ctx, "M", 40))

	added, err := s.DoublePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"M": 40}, added)
	assert.Equal(t, 80.0, s.Snapshot().Pending["M"])
}

func TestDoublePending_MaxLimit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := newOpenStore(clock)
	ctx := context.Background()

	s.ApplyTableRecord(ctx, domain.TableRecord{
		TableID: "CF01", BetLimitMax: floatPtr(100),
	}, domain.SourceREST)
	require.NoError(t, s.Stage(ctx, "M", 60))

	_, err := s.DoublePending(ctx)
	assert.ErrorIs(t, err, domain.ErrOverMaxLimit)
	assert.Equal(t, 60.0, s.Snapshot().Pending["M"], "failed double leaves pending untouched")
}

func TestRebetLast(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := newOpenStore(clock)
	ctx := context.Background()

	// Nothing to repeat yet.
	staged, err := s.RebetLast(ctx)
	require.NoError(t, err)
	assert.Nil(t, staged)

	// Settle a round with two confirmed bets on the same zone.
	s.ConfirmApplied(ctx, []domain.Bet{
		{ID: "w1", Zone: "M", Amount: 30},
		{ID: "w2", Zone: "M", Amount: 20},
	}, nil)
	s.ApplyTableRecord(ctx, domain.TableRecord{
		TableID: "CF01", RoundNumber: 1, Result: "1",
	}, domain.SourceWebSocket)

	staged, err = s.RebetLast(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"M": 50}, staged, "amounts summed by zone")
	assert.Equal(t, 50.0, s.Snapshot().Pending["M"])
}

func TestConfirmApplied(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := newOpenStore(clock)
	ctx := context.Background()

	require.NoError(t, s.Stage(ctx, "M", 50))
	balance := 950.0
	s.ConfirmApplied(ctx, []domain.Bet{{ID: "w1", Zone: "M", Amount: 50}}, &balance)

	snap := s.Snapshot()
	assert.Empty(t, snap.Pending)
	require.Len(t, snap.Confirmed, 1)
	assert.Equal(t, 950.0, snap.Balance)
}

func TestBalanceOps(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New("CF01", WithClock(clock))

	s.SetBalance(1000)
	s.AdjustBalance(-50)
	assert.Equal(t, 950.0, s.Balance())
}

func TestRestore(t *testing.T) {
	clock := clockwork.NewFakeClock()
	mirror := memory.NewMirrorRepository()
	s := newOpenStore(clock, WithMirror(mirror))
	ctx := context.Background()

	// A previous process crashed mid-round with staged chips.
	require.NoError(t, mirror.Save(ctx, &mirrordomain.Record{
		TableID:   "CF01",
		RoundID:   "R1",
		Pending:   map[string]float64{"M": 75},
		Confirmed: []domain.Bet{{ID: "w1", Zone: "M", Amount: 25}},
		Balance:   900,
		SavedAt:   time.Now(),
	}))

	require.NoError(t, s.Restore(ctx))

	snap := s.Snapshot()
	assert.Equal(t, 75.0, snap.Pending["M"])
	require.Len(t, snap.Confirmed, 1)
	assert.Equal(t, 900.0, snap.Balance)
}

func TestRestore_IgnoresOtherRound(t *testing.T) {
	clock := clockwork.NewFakeClock()
	mirror := memory.NewMirrorRepository()
	s := newOpenStore(clock, WithMirror(mirror))
	ctx := context.Background()

	require.NoError(t, mirror.Save(ctx, &mirrordomain.Record{
		TableID: "CF01",
		RoundID: "R0",
		Pending: map[string]float64{"M": 75},
	}))

	require.NoError(t, s.Restore(ctx))
	assert.Empty(t, s.Snapshot().Pending)
}
