// Package usecase implements the bet submission pipeline: chip staging,
// limit validation, optimistic balance handling and submission with a single
// bounded retry on stale odds.
package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/frankieli/livetable/internal/modules/betting/domain"
	rounddomain "github.com/frankieli/livetable/internal/modules/round/domain"
	"github.com/frankieli/livetable/internal/modules/round/store"
	"github.com/frankieli/livetable/pkg/logger"
)

// Gateway is the backend surface the pipeline submits through. Implemented
// by the REST transport adapter.
type Gateway interface {
	PlaceBet(ctx context.Context, req domain.PlaceBetRequest) (*domain.PlaceBetResult, error)
	GetOdds(ctx context.Context) (map[string]float64, error)
	GetWagersByRound(ctx context.Context, roundID string) ([]domain.Wager, error)
	GetBalance(ctx context.Context) (float64, error)
}

// ZoneError is one zone's submission failure with its user-facing reason.
type ZoneError struct {
	Zone   string
	Err    error
	Reason string
}

// ConfirmError aggregates per-zone submission failures.
type ConfirmError struct {
	Zones []ZoneError
}

func (e *ConfirmError) Error() string {
	parts := make([]string, len(e.Zones))
	for i, z := range e.Zones {
		parts[i] = fmt.Sprintf("%s: %s", z.Zone, z.Reason)
	}
	return "confirm failed: " + strings.Join(parts, "; ")
}

// Pipeline turns chip clicks into staged pending bets and submits them.
// User-facing operations are serialized by the pipeline's mutex; a
// confirmation in flight rejects re-entrant confirm clicks.
type Pipeline struct {
	store   *store.Store
	gateway Gateway
	chips   *domain.Chips
	ledger  *Ledger

	autoAcceptOdds bool
	onConfirmed    func(bets []rounddomain.Bet)

	mu         sync.Mutex // serializes user operations, distinct from store state
	confirming bool
	tokens     map[string][]DebitToken // zone -> open debit tokens
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithAutoAcceptOdds makes submissions instruct the backend to accept its own
// drifted odds instead of rejecting. When off, the pipeline retries once with
// re-fetched odds on an odds-changed rejection.
func WithAutoAcceptOdds(on bool) Option {
	return func(p *Pipeline) { p.autoAcceptOdds = on }
}

// WithOnConfirmed registers a callback fired after a fully successful
// confirmation (for a transient UI acknowledgment).
func WithOnConfirmed(fn func(bets []rounddomain.Bet)) Option {
	return func(p *Pipeline) { p.onConfirmed = fn }
}

// NewPipeline creates a pipeline over the given store and gateway
func NewPipeline(st *store.Store, gateway Gateway, chips *domain.Chips, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:   st,
		gateway: gateway,
		chips:   chips,
		ledger:  NewLedger(st),
		tokens:  make(map[string][]DebitToken),
	}
	for _, opt := range opts {
		opt(p)
	}
	// Round transitions invalidate any still-open optimistic debits.
	st.RegisterEventHandler(p.handleStoreEvent)
	return p
}

func (p *Pipeline) handleStoreEvent(ev store.Event) {
	if ev.Type != store.EventRoundSettled && ev.Type != store.EventNewRound {
		return
	}
	p.mu.Lock()
	p.tokens = make(map[string][]DebitToken)
	p.mu.Unlock()
	p.ledger.RollbackAll()
}

// StageBet adds one chip to a zone. Preconditions, in order: no confirm in
// flight, positive chip, countdown not expired, round status open (unknown
// status proceeds, the backend decides), single active zone, table maximum.
// The chip value is optimistically debited from the balance.
func (p *Pipeline) StageBet(ctx context.Context, zone string, chip float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// A chip landing while a confirm is outstanding would be committed by the
	// confirm's token sweep and then wiped with the pending set, losing the
	// bet with its debit applied.
	if p.confirming {
		return domain.ErrConfirmInFlight
	}
	if chip <= 0 {
		return domain.ErrChipNotPositive
	}
	if _, ok := domain.ZoneByCode(zone); !ok {
		return domain.ErrInvalidZone
	}

	if err := p.store.Stage(ctx, zone, chip); err != nil {
		return err
	}
	token, err := p.ledger.Begin(chip)
	if err != nil {
		p.store.Unstage(ctx, zone, chip)
		return err
	}
	p.tokens[zone] = append(p.tokens[zone], token)

	logger.Debug(ctx).Str("zone", zone).Float64("chip", chip).Msg("chip staged")
	return nil
}

// ConfirmBets validates the staged pending set and submits it zone by zone.
// Re-entrant calls while a submission is outstanding are rejected.
func (p *Pipeline) ConfirmBets(ctx context.Context) error {
	p.mu.Lock()
	if p.confirming {
		p.mu.Unlock()
		return domain.ErrConfirmInFlight
	}
	p.confirming = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.confirming = false
		p.mu.Unlock()
	}()

	snap := p.store.Snapshot()
	if snap.TableID == "" || snap.RoundID == "" {
		return domain.ErrMissingRound
	}
	if len(snap.Pending) == 0 {
		return nil
	}
	// Time may have passed since staging; re-validate the window.
	if snap.BettingClosed() {
		return rounddomain.ErrBettingClosed
	}
	if err := rounddomain.StatusError(snap.Status); err != nil {
		return err
	}
	if err := p.checkMinimum(snap); err != nil {
		return err
	}
	// Maximum re-checked per zone at confirm time.
	if snap.BetLimitMax != nil {
		for zone, amount := range snap.Pending {
			if amount+snap.ConfirmedForZone(zone) > *snap.BetLimitMax {
				return rounddomain.ErrOverMaxLimit
			}
		}
	}

	balanceSnapshot := snap.Balance
	ctx = logger.WithFields(ctx, map[string]interface{}{
		"table_id": snap.TableID,
		"round_id": snap.RoundID,
	})

	var (
		confirmed  []rounddomain.Bet
		zoneErrors []ZoneError
		balance    *float64
	)
	for _, zone := range snap.StagedOrder {
		amount := snap.Pending[zone]
		if amount <= 0 {
			continue
		}
		bet, result, err := p.submitZone(ctx, snap, zone, amount)
		if err != nil {
			logger.Warn(ctx).
				Str("zone", zone).
				Float64("amount", amount).
				Err(err).
				Msg("zone submission failed")
			zoneErrors = append(zoneErrors, ZoneError{Zone: zone, Err: err, Reason: domain.Reason(err)})
			continue
		}
		confirmed = append(confirmed, bet)
		if result.Balance != nil {
			balance = result.Balance
		}
	}

	if len(zoneErrors) > 0 {
		// Partial success with partially-correct optimistic balance is worse
		// than a clean rollback; the wager poll reconciles what did land.
		p.store.SetBalance(balanceSnapshot)
		return &ConfirmError{Zones: zoneErrors}
	}

	p.mu.Lock()
	for _, tokens := range p.tokens {
		for _, t := range tokens {
			p.ledger.Commit(t)
		}
	}
	p.tokens = make(map[string][]DebitToken)
	p.mu.Unlock()

	p.store.ConfirmApplied(ctx, confirmed, balance)
	if balance == nil {
		if fresh, err := p.gateway.GetBalance(ctx); err == nil {
			p.store.SetBalance(fresh)
		}
	}

	logger.Info(ctx).Int("zones", len(confirmed)).Msg("bets confirmed")
	if p.onConfirmed != nil {
		p.onConfirmed(confirmed)
	}
	return nil
}

// submitZone places one zone's bet, retrying exactly once with re-fetched
// odds on an odds-changed rejection (unless auto-accept is on, in which case
// the backend absorbs the drift).
func (p *Pipeline) submitZone(ctx context.Context, snap store.Snapshot, zone string, amount float64) (rounddomain.Bet, *domain.PlaceBetResult, error) {
	z, ok := domain.ZoneByCode(zone)
	if !ok {
		return rounddomain.Bet{}, nil, domain.ErrInvalidZone
	}

	odds := snap.Odds[zone]
	req := domain.PlaceBetRequest{
		TableID:          snap.TableID,
		RoundID:          snap.RoundID,
		BetCode:          z.BetCode,
		Zone:             z.APIZone,
		Amount:           amount,
		Odds:             odds,
		IdempotencyToken: domain.NewIdempotencyToken(),
		AutoAcceptOdds:   p.autoAcceptOdds,
	}

	result, err := p.gateway.PlaceBet(ctx, req)
	if err != nil && !p.autoAcceptOdds && domain.IsOddsChanged(err) {
		fresh, oddsErr := p.gateway.GetOdds(ctx)
		if oddsErr == nil {
			if v, ok := fresh[zone]; ok {
				req.Odds = v
			}
			result, err = p.gateway.PlaceBet(ctx, req)
		}
	}
	if err != nil {
		return rounddomain.Bet{}, nil, err
	}

	id := result.WagerID
	if id == "" {
		id = req.IdempotencyToken
	}
	return rounddomain.Bet{
		ID:     id,
		Zone:   zone,
		Amount: amount,
		Odds:   req.Odds,
		Time:   time.Now(),
	}, result, nil
}

// checkMinimum applies the cumulative minimum rule: pass if already-confirmed
// bets meet the minimum, if confirmed plus pending would meet it, or if any
// pending amount is one of the exempt denominations.
func (p *Pipeline) checkMinimum(snap store.Snapshot) error {
	if snap.BetLimitMin == nil {
		return nil
	}
	min := *snap.BetLimitMin
	confirmedTotal := snap.ConfirmedTotal()
	if confirmedTotal >= min {
		return nil
	}
	if confirmedTotal+snap.PendingTotal() >= min {
		return nil
	}
	for _, amount := range snap.Pending {
		if p.chips.ExemptFromMinimum(amount) {
			return nil
		}
	}
	return domain.ErrBelowMinimum
}

// CancelPending drops the whole pending set and restores the balance.
func (p *Pipeline) CancelPending(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.gateOpen(); err != nil {
		return err
	}
	cleared := p.store.ClearPending(ctx)

	var restored float64
	for _, tokens := range p.tokens {
		for _, t := range tokens {
			restored += p.rollbackToken(t)
		}
	}
	p.tokens = make(map[string][]DebitToken)

	// Pending restored from the mirror has no live tokens; credit the rest.
	var clearedTotal float64
	for _, amount := range cleared {
		clearedTotal += amount
	}
	if residual := clearedTotal - restored; residual > 0 {
		p.store.AdjustBalance(residual)
	}
	return nil
}

// UndoLast removes the most recently staged zone's pending entry and
// restores only that zone's balance delta.
func (p *Pipeline) UndoLast(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.gateOpen(); err != nil {
		return err
	}
	zone, amount, ok := p.store.UndoLast(ctx)
	if !ok {
		return nil
	}

	var restored float64
	for _, t := range p.tokens[zone] {
		restored += p.rollbackToken(t)
	}
	delete(p.tokens, zone)

	if residual := amount - restored; residual > 0 {
		p.store.AdjustBalance(residual)
	}
	return nil
}

// DoubleAll doubles every pending zone, debiting the extra optimistically.
func (p *Pipeline) DoubleAll(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.gateOpen(); err != nil {
		return err
	}
	snap := p.store.Snapshot()
	if len(snap.Pending) == 0 {
		return nil
	}

	tokens, err := p.ledger.BeginAll(snap.Pending)
	if err != nil {
		return err
	}
	added, err := p.store.DoublePending(ctx)
	if err != nil {
		for _, t := range tokens {
			p.ledger.Rollback(t)
		}
		return err
	}
	for zone := range added {
		p.tokens[zone] = append(p.tokens[zone], tokens[zone])
	}
	return nil
}

// RebetLast stages a copy of the last settled round's bets. The user still
// has to confirm.
func (p *Pipeline) RebetLast(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.gateOpen(); err != nil {
		return err
	}
	snap := p.store.Snapshot()
	if len(snap.LastRoundBets) == 0 {
		return nil
	}

	amounts := make(map[string]float64)
	for _, bet := range snap.LastRoundBets {
		amounts[bet.Zone] += bet.Amount
	}
	tokens, err := p.ledger.BeginAll(amounts)
	if err != nil {
		return err
	}
	staged, err := p.store.RebetLast(ctx)
	if err != nil {
		for _, t := range tokens {
			p.ledger.Rollback(t)
		}
		return err
	}
	for zone := range staged {
		p.tokens[zone] = append(p.tokens[zone], tokens[zone])
	}
	return nil
}

// SyncWagers replaces confirmed bets with the backend's authoritative wager
// list for the current round. Late responses for a finished round are
// discarded.
func (p *Pipeline) SyncWagers(ctx context.Context) error {
	snap := p.store.Snapshot()
	if snap.RoundID == "" {
		return nil
	}
	wagers, err := p.gateway.GetWagersByRound(ctx, snap.RoundID)
	if err != nil {
		return fmt.Errorf("failed to fetch wagers: %w", err)
	}
	if p.store.Snapshot().RoundID != snap.RoundID {
		return nil // round moved on while the call was outstanding
	}

	bets := make([]rounddomain.Bet, 0, len(wagers))
	for _, w := range wagers {
		if w.Settled {
			continue
		}
		bets = append(bets, rounddomain.Bet{
			ID:     w.WagerID,
			Zone:   w.Zone,
			Amount: w.Amount,
			Odds:   w.Odds,
		})
	}
	p.store.SetConfirmedBets(ctx, bets)
	return nil
}

// gateOpen rejects pending-set mutations while a confirm is in flight or the
// round is not open (unknown status is allowed).
func (p *Pipeline) gateOpen() error {
	if p.confirming {
		return domain.ErrConfirmInFlight
	}
	snap := p.store.Snapshot()
	if err := rounddomain.StatusError(snap.Status); err != nil {
		return err
	}
	return nil
}

// rollbackToken rolls a token back and returns the amount it restored
func (p *Pipeline) rollbackToken(t DebitToken) float64 {
	before := p.store.Balance()
	p.ledger.Rollback(t)
	return p.store.Balance() - before
}
