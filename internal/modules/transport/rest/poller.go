package rest

import (
	"context"
	"time"

	rounddomain "github.com/frankieli/livetable/internal/modules/round/domain"
	"github.com/frankieli/livetable/internal/modules/round/store"
	"github.com/frankieli/livetable/internal/modules/throttle"
	"github.com/frankieli/livetable/pkg/logger"
)

// Throttle guard keys, one per logical resource.
const (
	keyLobby   = "poll:lobby"
	keyOdds    = "poll:odds"
	keyWagers  = "poll:wagers"
	keyBalance = "poll:balance"
)

// Intervals holds the fixed poll interval per resource. No backoff; a failed
// tick is simply retried at the next scheduled one.
type Intervals struct {
	Lobby   time.Duration
	Odds    time.Duration
	Wagers  time.Duration
	Balance time.Duration
}

// DefaultIntervals tunes each resource by criticality
func DefaultIntervals() Intervals {
	return Intervals{
		Lobby:   5 * time.Second,
		Odds:    30 * time.Second,
		Wagers:  60 * time.Second,
		Balance: 120 * time.Second,
	}
}

// WagerSyncer reconciles confirmed bets against the backend's wager list.
// Implemented by the betting pipeline.
type WagerSyncer interface {
	SyncWagers(ctx context.Context) error
}

// BalanceRefresher fetches and applies the authoritative balance.
type BalanceRefresher interface {
	Refresh(ctx context.Context) error
}

// Poller runs the fixed-interval REST polling loops. Each resource is gated
// by the throttle guard, so an in-flight call for a resource suppresses the
// next tick rather than overlapping it.
type Poller struct {
	client    *Client
	store     *store.Store
	guard     *throttle.Guard
	syncer    WagerSyncer
	refresher BalanceRefresher
	intervals Intervals
}

// NewPoller creates a poller
func NewPoller(client *Client, st *store.Store, guard *throttle.Guard, syncer WagerSyncer, refresher BalanceRefresher, intervals Intervals) *Poller {
	return &Poller{
		client:    client,
		store:     st,
		guard:     guard,
		syncer:    syncer,
		refresher: refresher,
		intervals: intervals,
	}
}

// Run starts all polling loops and blocks until ctx is cancelled
func (p *Poller) Run(ctx context.Context) {
	go p.loop(ctx, keyLobby, p.intervals.Lobby, p.pollLobby)
	go p.loop(ctx, keyOdds, p.intervals.Odds, p.pollOdds)
	go p.loop(ctx, keyWagers, p.intervals.Wagers, p.pollWagers)
	go p.loop(ctx, keyBalance, p.intervals.Balance, p.pollBalance)
	<-ctx.Done()
}

func (p *Poller) loop(ctx context.Context, key string, interval time.Duration, tick func(ctx context.Context) error) {
	// First tick fires immediately so the store fills without waiting a full
	// interval.
	p.tickOnce(ctx, key, interval, tick)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tickOnce(ctx, key, interval, tick)
		}
	}
}

func (p *Poller) tickOnce(ctx context.Context, key string, interval time.Duration, tick func(ctx context.Context) error) {
	if !p.guard.ShouldProceed(key, interval) {
		return
	}
	defer p.guard.Complete(key)

	// Transport noise never bubbles up; the next tick self-corrects.
	if err := tick(ctx); err != nil {
		logger.Warn(ctx).Str("resource", key).Err(err).Msg("poll tick failed")
	}
}

// ForceLobbyRefresh runs a caller-initiated lobby poll, bypassing the
// interval but not the in-flight exclusion.
func (p *Poller) ForceLobbyRefresh(ctx context.Context) {
	if !p.guard.Force(keyLobby) {
		return
	}
	defer p.guard.Complete(keyLobby)
	if err := p.pollLobby(ctx); err != nil {
		logger.Warn(ctx).Err(err).Msg("forced lobby refresh failed")
	}
}

func (p *Poller) pollLobby(ctx context.Context) error {
	records, err := p.client.GetLobbyInfo(ctx)
	if err != nil {
		return err
	}
	for _, rec := range records {
		p.store.ApplyTableRecord(ctx, rec, rounddomain.SourceREST)
	}
	return nil
}

func (p *Poller) pollOdds(ctx context.Context) error {
	odds, err := p.client.GetOdds(ctx)
	if err != nil {
		return err
	}
	snap := p.store.Snapshot()
	p.store.ApplyTableRecord(ctx, rounddomain.TableRecord{
		TableID: snap.TableID,
		Odds:    odds,
	}, rounddomain.SourceREST)
	return nil
}

func (p *Poller) pollWagers(ctx context.Context) error {
	return p.syncer.SyncWagers(ctx)
}

func (p *Poller) pollBalance(ctx context.Context) error {
	return p.refresher.Refresh(ctx)
}
