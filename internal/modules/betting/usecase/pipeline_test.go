package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frankieli/livetable/internal/modules/betting/domain"
	rounddomain "github.com/frankieli/livetable/internal/modules/round/domain"
	"github.com/frankieli/livetable/internal/modules/round/store"
	"github.com/frankieli/livetable/pkg/logger"
)

func init() {
	logger.Init(logger.Config{Level: "error", Format: "json", Output: io.Discard})
}

// mockGateway records placed bets and answers from canned data
type mockGateway struct {
	mu       sync.Mutex
	requests []domain.PlaceBetRequest

	placeBet func(req domain.PlaceBetRequest) (*domain.PlaceBetResult, error)
	odds     map[string]float64
	wagers   func(roundID string) ([]domain.Wager, error)
	balance  float64
}

func (g *mockGateway) PlaceBet(ctx context.Context, req domain.PlaceBetRequest) (*domain.PlaceBetResult, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	if g.placeBet != nil {
		return g.placeBet(req)
	}
	return &domain.PlaceBetResult{WagerID: "w-" + req.IdempotencyToken}, nil
}

func (g *mockGateway) GetOdds(ctx context.Context) (map[string]float64, error) {
	if g.odds == nil {
		return map[string]float64{}, nil
	}
	return g.odds, nil
}

func (g *mockGateway) GetWagersByRound(ctx context.Context, roundID string) ([]domain.Wager, error) {
	if g.wagers != nil {
		return g.wagers(roundID)
	}
	return nil, nil
}

func (g *mockGateway) GetBalance(ctx context.Context) (float64, error) {
	return g.balance, nil
}

func (g *mockGateway) placedRequests() []domain.PlaceBetRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.PlaceBetRequest, len(g.requests))
	copy(out, g.requests)
	return out
}

// newTestPipeline builds a store open for betting on round R1 with a funded
// balance, plus a pipeline over the given gateway.
func newTestPipeline(gateway *mockGateway, opts ...Option) (*Pipeline, *store.Store, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	st := store.New("CF01", store.WithClock(clock))
	st.ApplyTableRecord(context.Background(), rounddomain.TableRecord{
		TableID:     "CF01",
		RoundID:     "R1",
		RoundNumber: 1,
		Status:      rounddomain.StatusBettingOpen,
		Countdown:   intPtr(30),
		Odds:        map[string]float64{"M": 1.95, "W": 1.90, "D": 8.0},
	}, rounddomain.SourceWebSocket)
	st.SetBalance(1000)

	p := NewPipeline(st, gateway, domain.DefaultChips(), opts...)
	return p, st, clock
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestStageBet_OptimisticDebit(t *testing.T) {
	p, st, _ := newTestPipeline(&mockGateway{})
	ctx := context.Background()

	require.NoError(t, p.StageBet(ctx, "M", 100))

	snap := st.Snapshot()
	assert.Equal(t, 100.0, snap.Pending["M"])
	assert.Equal(t, 900.0, snap.Balance)
}

func TestStageBet_InsufficientBalanceRollsBackStaging(t *testing.T) {
	p, st, _ := newTestPipeline(&mockGateway{})
	ctx := context.Background()
	st.SetBalance(50)

	err := p.StageBet(ctx, "M", 100)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	snap := st.Snapshot()
	assert.Empty(t, snap.Pending, "staging must not survive a failed debit")
	assert.Equal(t, 50.0, snap.Balance)
}

func TestStageBet_Validation(t *testing.T) {
	p, _, _ := newTestPipeline(&mockGateway{})
	ctx := context.Background()

	assert.ErrorIs(t, p.StageBet(ctx, "M", 0), domain.ErrChipNotPositive)
	assert.ErrorIs(t, p.StageBet(ctx, "M", -5), domain.ErrChipNotPositive)
	assert.ErrorIs(t, p.StageBet(ctx, "X", 10), domain.ErrInvalidZone)
}

func TestConfirmBets_Success(t *testing.T) {
	serverBalance := 890.0
	gateway := &mockGateway{
		placeBet: func(req domain.PlaceBetRequest) (*domain.PlaceBetResult, error) {
			return &domain.PlaceBetResult{WagerID: "w1", Balance: &serverBalance}, nil
		},
	}

	var notified []rounddomain.Bet
	p, st, _ := newTestPipeline(gateway, WithOnConfirmed(func(bets []rounddomain.Bet) {
		notified = bets
	}))
	ctx := context.Background()

	require.NoError(t, p.StageBet(ctx, "M", 100))
	require.NoError(t, p.ConfirmBets(ctx))

	snap := st.Snapshot()
	assert.Empty(t, snap.Pending)
	require.Len(t, snap.Confirmed, 1)
	assert.Equal(t, "w1", snap.Confirmed[0].ID)
	assert.Equal(t, serverBalance, snap.Balance, "authoritative balance replaces the optimistic one")
	require.Len(t, notified, 1)

	reqs := gateway.placedRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "CF01", reqs[0].TableID)
	assert.Equal(t, "R1", reqs[0].RoundID)
	assert.Equal(t, "MERON", reqs[0].Zone)
	assert.Equal(t, 1.95, reqs[0].Odds)
	assert.NotEmpty(t, reqs[0].IdempotencyToken)
}

func TestConfirmBets_FetchesBalanceWhenResponseOmitsIt(t *testing.T) {
	gateway := &mockGateway{balance: 877}
	p, st, _ := newTestPipeline(gateway)
	ctx := context.Background()

	require.NoError(t, p.StageBet(ctx, "M", 100))
	require.NoError(t, p.ConfirmBets(ctx))

	assert.Equal(t, 877.0, st.Snapshot().Balance)
}

func TestConfirmBets_NothingPending(t *testing.T) {
	gateway := &mockGateway{}
	p, _, _ := newTestPipeline(gateway)

	require.NoError(t, p.ConfirmBets(context.Background()))
	assert.Empty(t, gateway.placedRequests())
}

func TestConfirmBets_MissingRound(t *testing.T) {
	gateway := &mockGateway{}
	clock := clockwork.NewFakeClock()
	st := store.New("CF01", store.WithClock(clock))
	st.SetBalance(1000)
	p := NewPipeline(st, gateway, domain.DefaultChips())
	ctx := context.Background()

	// Status unknown admits staging, but submission needs a resolved round.
	require.NoError(t, p.StageBet(ctx, "M", 100))
	assert.ErrorIs(t, p.ConfirmBets(ctx), domain.ErrMissingRound)
}

func TestConfirmBets_WindowExpiredSinceStaging(t *testing.T) {
	gateway := &mockGateway{}
	p, st, clock := newTestPipeline(gateway)
	ctx := context.Background()

	require.NoError(t, p.StageBet(ctx, "M", 100))
	clock.Advance(31 * time.Second)

	assert.ErrorIs(t, p.ConfirmBets(ctx), rounddomain.ErrBettingClosed)
	assert.Equal(t, 100.0, st.Snapshot().Pending["M"], "pending survives for the next round decision")
	assert.Empty(t, gateway.placedRequests())
}

func TestConfirmBets_BelowMinimum(t *testing.T) {
	gateway := &mockGateway{}
	p, st, _ := newTestPipeline(gateway)
	ctx := context.Background()

	st.ApplyTableRecord(ctx, rounddomain.TableRecord{
		TableID: "CF01", BetLimitMin: floatPtr(50),
	}, rounddomain.SourceREST)

	require.NoError(t, p.StageBet(ctx, "M", 10))
	assert.ErrorIs(t, p.ConfirmBets(ctx), domain.ErrBelowMinimum)
}

func TestConfirmBets_ExemptChipBypassesMinimum(t *testing.T) {
	gateway := &mockGateway{}
	p, st, _ := newTestPipeline(gateway)
	ctx := context.Background()

	st.ApplyTableRecord(ctx, rounddomain.TableRecord{
		TableID: "CF01", BetLimitMin: floatPtr(50),
	}, rounddomain.SourceREST)

	// 5 is one of the two smallest denominations.
	require.NoError(t, p.StageBet(ctx, "M", 5))
	require.NoError(t, p.ConfirmBets(ctx))
	assert.Len(t, gateway.placedRequests(), 1)
}

func TestConfirmBets_ZoneFailureRestoresBalance(t *testing.T) {
	gateway := &mockGateway{
		placeBet: func(req domain.PlaceBetRequest) (*domain.PlaceBetResult, error) {
			return nil, &domain.BackendError{Code: domain.CodeTableClosed, Message: "closed"}
		},
	}
	p, st, _ := newTestPipeline(gateway)
	ctx := context.Background()

	require.NoError(t, p.StageBet(ctx, "M", 100))
	balanceBeforeConfirm := st.Balance()

	err := p.ConfirmBets(ctx)
	var confirmErr *ConfirmError
	require.ErrorAs(t, err, &confirmErr)
	require.Len(t, confirmErr.Zones, 1)
	assert.Equal(t, "M", confirmErr.Zones[0].Zone)
	assert.Equal(t, "table is closed", confirmErr.Zones[0].Reason)

	snap := st.Snapshot()
	assert.Equal(t, balanceBeforeConfirm, snap.Balance)
	assert.Equal(t, 100.0, snap.Pending["M"], "pending is kept; the wager poll reconciles")
	assert.Empty(t, snap.Confirmed)
}

func TestConfirmBets_OddsChangedRetriesOnce(t *testing.T) {
	var calls int
	gateway := &mockGateway{
		odds: map[string]float64{"M": 2.10},
		placeBet: func(req domain.PlaceBetRequest) (*domain.PlaceBetResult, error) {
			calls++
			if calls == 1 {
				return nil, &domain.BackendError{Code: domain.CodeOddsChanged}
			}
			return &domain.PlaceBetResult{WagerID: "w1"}, nil
		},
	}
	p, st, _ := newTestPipeline(gateway)
	ctx := context.Background()

	require.NoError(t, p.StageBet(ctx, "M", 100))
	require.NoError(t, p.ConfirmBets(ctx))

	reqs := gateway.placedRequests()
	require.Len(t, reqs, 2)
	assert.Equal(t, 1.95, reqs[0].Odds)
	assert.Equal(t, 2.10, reqs[1].Odds, "retry carries the re-fetched odds")
	assert.Equal(t, reqs[0].IdempotencyToken, reqs[1].IdempotencyToken, "retry reuses the token")

	require.Len(t, st.Snapshot().Confirmed, 1)
	assert.Equal(t, 2.10, st.Snapshot().Confirmed[0].Odds)
}

func TestConfirmBets_OddsChangedTwiceSurfaces(t *testing.T) {
	gateway := &mockGateway{
		odds: map[string]float64{"M": 2.10},
		placeBet: func(req domain.PlaceBetRequest) (*domain.PlaceBetResult, error) {
			return nil, &domain.BackendError{Code: domain.CodeOddsChanged}
		},
	}
	p, _, _ := newTestPipeline(gateway)
	ctx := context.Background()

	require.NoError(t, p.StageBet(ctx, "M", 100))

	err := p.ConfirmBets(ctx)
	var confirmErr *ConfirmError
	require.ErrorAs(t, err, &confirmErr)
	assert.Len(t, gateway.placedRequests(), 2, "exactly one retry, then give up")
}

func TestConfirmBets_AutoAcceptSkipsRetry(t *testing.T) {
	gateway := &mockGateway{
		placeBet: func(req domain.PlaceBetRequest) (*domain.PlaceBetResult, error) {
			return nil, &domain.BackendError{Code: domain.CodeOddsChanged}
		},
	}
	p, _, _ := newTestPipeline(gateway, WithAutoAcceptOdds(true))
	ctx := context.Background()

	require.NoError(t, p.StageBet(ctx, "M", 100))

	err := p.ConfirmBets(ctx)
	assert.Error(t, err)
	reqs := gateway.placedRequests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].AutoAcceptOdds)
}

func TestConfirmBets_RejectsReentrantConfirm(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	gateway := &mockGateway{
		placeBet: func(req domain.PlaceBetRequest) (*domain.PlaceBetResult, error) {
			close(entered)
			<-release
			return &domain.PlaceBetResult{WagerID: "w1"}, nil
		},
	}
	p, _, _ := newTestPipeline(gateway)
	ctx := context.Background()

	require.NoError(t, p.StageBet(ctx, "M", 100))

	done := make(chan error, 1)
	go func() { done <- p.ConfirmBets(ctx) }()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("first confirm never reached the gateway")
	}

	assert.ErrorIs(t, p.ConfirmBets(ctx), domain.ErrConfirmInFlight)

	close(release)
	require.NoError(t, <-done)
}

func TestStageBet_RejectedWhileConfirmInFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	gateway := &mockGateway{
		balance: 900,
		placeBet: func(req domain.PlaceBetRequest) (*domain.PlaceBetResult, error) {
			close(entered)
			<-release
			return &domain.PlaceBetResult{WagerID: "w1"}, nil
		},
	}
	p, st, _ := newTestPipeline(gateway)
	ctx := context.Background()

	// 1. One staged chip, then a confirm blocked inside the gateway.
	require.NoError(t, p.StageBet(ctx, "M", 100))

	done := make(chan error, 1)
	go func() { done <- p.ConfirmBets(ctx) }()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("confirm never reached the gateway")
	}

	// 2. A chip clicked mid-confirm is rejected, not silently swallowed by
	// the confirm's commit-and-clear.
	assert.ErrorIs(t, p.StageBet(ctx, "W", 50), domain.ErrConfirmInFlight)

	close(release)
	require.NoError(t, <-done)

	// 3. Only the submitted bet exists; the rejected chip left no pending
	// entry and no debit behind.
	snap := st.Snapshot()
	assert.Empty(t, snap.Pending)
	require.Len(t, snap.Confirmed, 1)
	assert.Equal(t, "M", snap.Confirmed[0].Zone)
	assert.Equal(t, 900.0, snap.Balance)
}

func TestCancelPending_RestoresBalance(t *testing.T) {
	p, st, _ := newTestPipeline(&mockGateway{})
	ctx := context.Background()

	require.NoError(t, p.StageBet(ctx, "M", 100))
	require.NoError(t, p.StageBet(ctx, "M", 50))
	require.Equal(t, 850.0, st.Balance())

	require.NoError(t, p.CancelPending(ctx))

	snap := st.Snapshot()
	assert.Empty(t, snap.Pending)
	assert.Equal(t, 1000.0, snap.Balance)
}

func TestUndoLast_RestoresZoneBalance(t *testing.T) {
	p, st, _ := newTestPipeline(&mockGateway{})
	ctx := context.Background()

	require.NoError(t, p.StageBet(ctx, "M", 100))
	require.NoError(t, p.StageBet(ctx, "M", 50))

	require.NoError(t, p.UndoLast(ctx))

	snap := st.Snapshot()
	assert.Empty(t, snap.Pending)
	assert.Equal(t, 1000.0, snap.Balance)

	// Undo with nothing staged is a quiet no-op.
	require.NoError(t, p.UndoLast(ctx))
	assert.Equal(t, 1000.0, st.Balance())
}

func TestDoubleAll(t *testing.T) {
	p, st, _ := newTestPipeline(&mockGateway{})
	ctx := context.Background()

	require.NoError(t, p.StageBet(ctx, "M", 100))
	require.NoError(t, p.DoubleAll(ctx))

	snap := st.Snapshot()
	assert.Equal(t, 200.0, snap.Pending["M"])
	assert.Equal(t, 800.0, snap.Balance)
}

func TestDoubleAll_InsufficientBalance(t *testing.T) {
	p, st, _ := newTestPipeline(&mockGateway{})
	ctx := context.Background()

	require.NoError(t, p.StageBet(ctx, "M", 100))
	st.SetBalance(50)

	assert.ErrorIs(t, p.DoubleAll(ctx), domain.ErrInsufficientBalance)
	snap := st.Snapshot()
	assert.Equal(t, 100.0, snap.Pending["M"])
	assert.Equal(t, 50.0, snap.Balance)
}

func TestSyncWagers_ReplacesConfirmedWithUnsettled(t *testing.T) {
	gateway := &mockGateway{
		wagers: func(roundID string) ([]domain.Wager, error) {
			return []domain.Wager{
				{WagerID: "w1", Zone: "M", Amount: 100, Odds: 1.95},
				{WagerID: "w0", Zone: "W", Amount: 50, Settled: true},
			}, nil
		},
	}
	p, st, _ := newTestPipeline(gateway)
	ctx := context.Background()

	require.NoError(t, p.SyncWagers(ctx))

	snap := st.Snapshot()
	require.Len(t, snap.Confirmed, 1)
	assert.Equal(t, "w1", snap.Confirmed[0].ID)
}

func TestSyncWagers_DiscardsLateResponseForOldRound(t *testing.T) {
	var st *store.Store
	gateway := &mockGateway{}
	gateway.wagers = func(roundID string) ([]domain.Wager, error) {
		// The round moves on while the request is outstanding.
		st.ApplyTableRecord(context.Background(), rounddomain.TableRecord{
			TableID: "CF01", RoundID: "R2", RoundNumber: 2,
		}, rounddomain.SourceWebSocket)
		return []domain.Wager{{WagerID: "w1", Zone: "M", Amount: 100}}, nil
	}
	p, s, _ := newTestPipeline(gateway)
	st = s
	ctx := context.Background()

	require.NoError(t, p.SyncWagers(ctx))
	assert.Empty(t, st.Snapshot().Confirmed, "stale wager list must not land")
}

func TestSyncWagers_FetchErrorSurfaces(t *testing.T) {
	gateway := &mockGateway{
		wagers: func(roundID string) ([]domain.Wager, error) {
			return nil, errors.New("network down")
		},
	}
	p, _, _ := newTestPipeline(gateway)

	assert.Error(t, p.SyncWagers(context.Background()))
}
