package store

import "github.com/frankieli/livetable/internal/modules/round/domain"

// Snapshot is a read-only copy of the merged round state
type Snapshot struct {
	TableID     string
	RoundID     string
	RoundNumber int
	Status      domain.RoundStatus

	// Countdown is the remaining betting seconds, valid only when
	// CountdownDefined is true. Never negative; zero means betting is closed
	// regardless of Status.
	Countdown        int
	CountdownDefined bool

	IsLive bool

	Confirmed     []domain.Bet
	Pending       map[string]float64
	StagedOrder   []string
	LastRoundBets []domain.Bet

	Balance     float64
	BetLimitMin *float64
	BetLimitMax *float64
	Odds        map[string]float64

	History []domain.HistoryEntry
}

// PendingTotal sums all staged amounts
func (s Snapshot) PendingTotal() float64 {
	var total float64
	for _, amount := range s.Pending {
		total += amount
	}
	return total
}

// ConfirmedTotal sums all confirmed amounts
func (s Snapshot) ConfirmedTotal() float64 {
	var total float64
	for _, bet := range s.Confirmed {
		total += bet.Amount
	}
	return total
}

// ConfirmedForZone sums confirmed amounts for one zone
func (s Snapshot) ConfirmedForZone(zone string) float64 {
	var total float64
	for _, bet := range s.Confirmed {
		if bet.Zone == zone {
			total += bet.Amount
		}
	}
	return total
}

// BettingClosed reports whether a defined countdown has run out
func (s Snapshot) BettingClosed() bool {
	return s.CountdownDefined && s.Countdown <= 0
}

// Snapshot returns a copy of the current state (thread-safe)
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		TableID:     s.tableID,
		RoundID:     s.roundID,
		RoundNumber: s.roundNumber,
		Status:      s.status,
		IsLive:      s.isLive,
		Balance:     s.balance,
		History:     s.history.Entries(),
	}
	snap.Countdown, snap.CountdownDefined = s.countdownLocked()

	snap.Confirmed = make([]domain.Bet, len(s.confirmed))
	copy(snap.Confirmed, s.confirmed)
	snap.LastRoundBets = make([]domain.Bet, len(s.lastRoundBets))
	copy(snap.LastRoundBets, s.lastRoundBets)
	snap.StagedOrder = make([]string, len(s.stagedOrder))
	copy(snap.StagedOrder, s.stagedOrder)

	snap.Pending = make(map[string]float64, len(s.pending))
	for zone, amount := range s.pending {
		snap.Pending[zone] = amount
	}
	snap.Odds = make(map[string]float64, len(s.odds))
	for zone, odds := range s.odds {
		snap.Odds[zone] = odds
	}

	if s.betLimitMin != nil {
		v := *s.betLimitMin
		snap.BetLimitMin = &v
	}
	if s.betLimitMax != nil {
		v := *s.betLimitMax
		snap.BetLimitMax = &v
	}
	return snap
}

// HistoryStats exposes derived statistics for streak displays
type HistoryStats struct {
	Counts        map[domain.Outcome]int
	CurrentRun    int
	CurrentSide   domain.Outcome
	LongestSideA  int
	LongestSideB  int
	LongestDraw   int
	RoundsTracked int
}

// Stats computes history-derived statistics
func (s *Store) Stats() HistoryStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	side, run := s.history.CurrentStreak()
	return HistoryStats{
		Counts:        s.history.Counts(),
		CurrentRun:    run,
		CurrentSide:   side,
		LongestSideA:  s.history.LongestStreak(domain.OutcomeSideA),
		LongestSideB:  s.history.LongestStreak(domain.OutcomeSideB),
		LongestDraw:   s.history.LongestStreak(domain.OutcomeDraw),
		RoundsTracked: s.history.Len(),
	}
}
