package store

import (
	"context"
	"time"

	mirrordomain "github.com/frankieli/livetable/internal/modules/mirror/domain"
	"github.com/frankieli/livetable/internal/modules/round/domain"
)

// Stage adds a chip to the pending map. Preconditions are checked in a fixed
// order: countdown, round status, single-zone lock, table maximum (pending
// plus confirmed for the zone). Balance handling is the caller's concern.
func (s *Store) Stage(ctx context.Context, zone string, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cd, defined := s.countdownLocked(); defined && cd <= 0 {
		return domain.ErrBettingClosed
	}
	if err := domain.StatusError(s.status); err != nil {
		return err
	}
	for _, staged := range s.stagedOrder {
		if staged != zone {
			return domain.ErrZoneLocked
		}
	}
	if s.betLimitMax != nil && s.pending[zone]+s.confirmedZoneLocked(zone)+amount > *s.betLimitMax {
		return domain.ErrOverMaxLimit
	}

	if s.pending[zone] == 0 {
		s.stagedOrder = append(s.stagedOrder, zone)
	}
	s.pending[zone] += amount

	s.mirrorSaveLocked(ctx)
	return nil
}

// Unstage reverses part of a zone's pending amount (used when a follow-up
// step of staging fails and the chip must be taken back).
func (s *Store) Unstage(ctx context.Context, zone string, amount float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[zone] -= amount
	if s.pending[zone] <= 0 {
		delete(s.pending, zone)
		for i, staged := range s.stagedOrder {
			if staged == zone {
				s.stagedOrder = append(s.stagedOrder[:i], s.stagedOrder[i+1:]...)
				break
			}
		}
	}
	s.mirrorSaveLocked(ctx)
}

// UndoLast removes the most recently staged zone's whole pending entry and
// returns the amount freed.
func (s *Store) UndoLast(ctx context.Context) (zone string, amount float64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.stagedOrder) == 0 {
		return "", 0, false
	}
	zone = s.stagedOrder[len(s.stagedOrder)-1]
	amount = s.pending[zone]
	delete(s.pending, zone)
	s.stagedOrder = s.stagedOrder[:len(s.stagedOrder)-1]

	s.mirrorSaveLocked(ctx)
	return zone, amount, true
}

// ClearPending empties the pending map and returns what was staged per zone
func (s *Store) ClearPending(ctx context.Context) map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := s.pending
	s.pending = make(map[string]float64)
	s.stagedOrder = nil

	s.mirrorSaveLocked(ctx)
	return cleared
}

// DoublePending doubles every pending zone, re-checking the table maximum
// per zone. Returns the additional amount staged per zone.
func (s *Store) DoublePending(ctx context.Context) (map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cd, defined := s.countdownLocked(); defined && cd <= 0 {
		return nil, domain.ErrBettingClosed
	}
	if err := domain.StatusError(s.status); err != nil {
		return nil, err
	}
	for zone, amount := range s.pending {
		if s.betLimitMax != nil && amount*2+s.confirmedZoneLocked(zone) > *s.betLimitMax {
			return nil, domain.ErrOverMaxLimit
		}
	}

	added := make(map[string]float64, len(s.pending))
	for zone, amount := range s.pending {
		added[zone] = amount
		s.pending[zone] = amount * 2
	}

	s.mirrorSaveLocked(ctx)
	return added, nil
}

// RebetLast copies the last settled round's confirmed bets into the pending
// map, summed by zone. Returns the staged amounts.
func (s *Store) RebetLast(ctx context.Context) (map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cd, defined := s.countdownLocked(); defined && cd <= 0 {
		return nil, domain.ErrBettingClosed
	}
	if err := domain.StatusError(s.status); err != nil {
		return nil, err
	}
	if len(s.lastRoundBets) == 0 {
		return nil, nil
	}

	staged := make(map[string]float64)
	for _, bet := range s.lastRoundBets {
		if s.pending[bet.Zone] == 0 && staged[bet.Zone] == 0 {
			s.stagedOrder = append(s.stagedOrder, bet.Zone)
		}
		staged[bet.Zone] += bet.Amount
	}
	for zone, amount := range staged {
		if s.betLimitMax != nil && s.pending[zone]+amount+s.confirmedZoneLocked(zone) > *s.betLimitMax {
			return nil, domain.ErrOverMaxLimit
		}
	}
	for zone, amount := range staged {
		s.pending[zone] += amount
	}

	s.mirrorSaveLocked(ctx)
	return staged, nil
}

// ConfirmApplied moves a successful submission's zones from pending into
// confirmed. When the backend response carried an authoritative balance it
// replaces the optimistic one.
func (s *Store) ConfirmApplied(ctx context.Context, bets []domain.Bet, balance *float64) {
	s.mu.Lock()
	s.confirmed = append(s.confirmed, bets...)
	s.pending = make(map[string]float64)
	s.stagedOrder = nil
	if balance != nil {
		s.balance = *balance
	}
	s.mirrorSaveLocked(ctx)
	s.mu.Unlock()
}

// SetConfirmedBets replaces confirmed bets with the backend's authoritative
// wager list (used by the wager reconciliation poll).
func (s *Store) SetConfirmedBets(ctx context.Context, bets []domain.Bet) {
	s.mu.Lock()
	s.confirmed = make([]domain.Bet, len(bets))
	copy(s.confirmed, bets)
	s.mirrorSaveLocked(ctx)
	s.mu.Unlock()
}

// Balance returns the current (possibly optimistic) balance
func (s *Store) Balance() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balance
}

// SetBalance replaces the balance with an authoritative server value
func (s *Store) SetBalance(v float64) {
	s.mu.Lock()
	s.balance = v
	s.mu.Unlock()
}

// AdjustBalance applies an optimistic delta (negative for debits)
func (s *Store) AdjustBalance(delta float64) {
	s.mu.Lock()
	s.balance += delta
	s.mu.Unlock()
}

// Restore loads the mirror record for the current round, if any, and
// restores pending bets and the optimistic balance from it.
func (s *Store) Restore(ctx context.Context) error {
	s.mu.RLock()
	roundID := s.roundID
	s.mu.RUnlock()

	if s.mirror == nil || roundID == "" {
		return nil
	}
	rec, err := s.mirror.Load(ctx, roundID)
	if err != nil || rec == nil {
		return err
	}

	s.mu.Lock()
	if rec.RoundID == s.roundID {
		s.pending = make(map[string]float64, len(rec.Pending))
		s.stagedOrder = nil
		for zone, amount := range rec.Pending {
			s.pending[zone] = amount
			s.stagedOrder = append(s.stagedOrder, zone)
		}
		if len(rec.Confirmed) > 0 {
			s.confirmed = make([]domain.Bet, len(rec.Confirmed))
			copy(s.confirmed, rec.Confirmed)
		}
		s.balance = rec.Balance
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) confirmedZoneLocked(zone string) float64 {
	var total float64
	for _, bet := range s.confirmed {
		if bet.Zone == zone {
			total += bet.Amount
		}
	}
	return total
}

// mirrorSaveLocked schedules a mirror write of the current betting context.
// Best effort: mirror failures never surface to the caller.
func (s *Store) mirrorSaveLocked(ctx context.Context) {
	if s.mirror == nil || s.roundID == "" {
		return
	}
	rec := &mirrordomain.Record{
		TableID: s.tableID,
		RoundID: s.roundID,
		Pending: make(map[string]float64, len(s.pending)),
		Balance: s.balance,
		SavedAt: time.Now(),
	}
	for zone, amount := range s.pending {
		rec.Pending[zone] = amount
	}
	rec.Confirmed = make([]domain.Bet, len(s.confirmed))
	copy(rec.Confirmed, s.confirmed)

	go func() { _ = s.mirror.Save(context.WithoutCancel(ctx), rec) }()
}
