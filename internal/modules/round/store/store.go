// Package store implements the round state reconciliation engine. It merges
// table/round records arriving from the REST poller and the WebSocket feed
// into one authoritative view, with WebSocket records taking precedence over
// REST records for live fields.
package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	mirrordomain "github.com/frankieli/livetable/internal/modules/mirror/domain"
	"github.com/frankieli/livetable/internal/modules/round/domain"
	"github.com/frankieli/livetable/pkg/logger"
)

// ReopenCountdown is the fixed betting window opened right after a result
// lands. The backend does not restate a countdown for the next round, but the
// UI must show one, so the client opens a fixed window.
const ReopenCountdown = 20 * time.Second

// EventType classifies store transition events
type EventType int

const (
	// EventRoundSettled fires on the edge into Settled. Confirmed bets have
	// been snapshotted into lastRoundBets and cleared; a balance refresh is
	// warranted.
	EventRoundSettled EventType = iota
	// EventNewRound fires when a fresh betting round begins (post-result
	// re-open, round id change, or round number change).
	EventNewRound
)

// Event describes a store transition
type Event struct {
	Type        EventType
	TableID     string
	RoundID     string
	RoundNumber int
	Outcome     domain.Outcome
}

// EventHandler handles store transition events
type EventHandler func(event Event)

// Store is the merged round state for one table subscription. All mutations
// go through named transitions guarded by the store's mutex; readers take
// snapshots.
type Store struct {
	mu     sync.RWMutex
	clock  clockwork.Clock
	mirror mirrordomain.Repository

	tableID     string
	roundID     string
	roundNumber int
	status      domain.RoundStatus
	bettingEnd  time.Time // zero means countdown undefined
	isLive      bool

	confirmed     []domain.Bet
	pending       map[string]float64
	stagedOrder   []string
	lastRoundBets []domain.Bet

	balance     float64
	betLimitMin *float64
	betLimitMax *float64
	odds        map[string]float64
	history     *domain.History

	handlers []EventHandler
}

// Option configures a Store
type Option func(*Store)

// WithClock injects a clock (tests use a fake)
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithMirror attaches a persistence mirror for round-scoped bet/balance state
func WithMirror(r mirrordomain.Repository) Option {
	return func(s *Store) { s.mirror = r }
}

// New creates a store for the given table
func New(tableID string, opts ...Option) *Store {
	s := &Store{
		clock:   clockwork.NewRealClock(),
		tableID: tableID,
		pending: make(map[string]float64),
		odds:    make(map[string]float64),
		history: domain.NewHistory(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterEventHandler registers a transition event handler
func (s *Store) RegisterEventHandler(h EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

func (s *Store) dispatch(events []Event) {
	if len(events) == 0 {
		return
	}
	s.mu.RLock()
	handlers := make([]EventHandler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.RUnlock()

	for _, ev := range events {
		for _, h := range handlers {
			go h(ev)
		}
	}
}

// ApplyTableRecord merges a normalized table record into the store.
//
// Records for other tables are dropped (the WebSocket feed broadcasts every
// table). For round status, WebSocket always overwrites while REST only fills
// in an unset value. A record that carries a result settles the round,
// appends to history and immediately re-opens betting with the fixed
// countdown window. Malformed fields were already dropped by the transport
// normalizers, so everything present here is applied as-is.
func (s *Store) ApplyTableRecord(ctx context.Context, rec domain.TableRecord, src domain.Source) {
	s.mu.Lock()

	if rec.TableID == "" || !strings.EqualFold(rec.TableID, s.tableID) {
		s.mu.Unlock()
		logger.Debug(ctx).
			Str("record_table", rec.TableID).
			Str("store_table", s.tableID).
			Msg("dropped record for other table")
		return
	}

	var events []Event
	var invalidated string

	// A result we have already processed marks this record as a replay of a
	// settlement; its status field must not re-run the settle/re-open cycle.
	resultRound := s.roundNumber
	if rec.RoundNumber > 0 {
		resultRound = rec.RoundNumber
	}
	replayedResult := rec.Result != "" && s.history.Contains(resultRound)

	// Round identity changes clear all bets before anything else lands.
	newRound := false
	if rec.RoundID != "" && rec.RoundID != s.roundID {
		if s.roundID != "" {
			newRound = true
			invalidated = s.roundID
		}
		s.roundID = rec.RoundID
	}
	if rec.RoundNumber > 0 && rec.RoundNumber != s.roundNumber {
		if s.roundNumber > 0 {
			newRound = true
		}
		s.roundNumber = rec.RoundNumber
	}
	if newRound {
		s.clearBetsLocked()
		events = append(events, s.eventLocked(EventNewRound, domain.OutcomeUnknown))
	}

	// Status: WebSocket is the source of truth; REST only fills a blank. A
	// settled status on a record that also carries the result is handled by
	// the result branch below, which settles with the real outcome; running
	// the settle cycle here too would emit the event twice.
	statusSettlesWithResult := rec.Status == domain.StatusSettled && rec.Result != ""
	if rec.Status.Known() && !replayedResult && !statusSettlesWithResult {
		if src == domain.SourceWebSocket || !s.status.Known() {
			events = append(events, s.transitionLocked(rec.Status)...)
		}
	}

	// Countdown has no meaning once fighting starts.
	if rec.Status == domain.StatusFighting {
		s.bettingEnd = time.Time{}
	}
	// Only an explicit server value sets the countdown; an already-set value
	// is never speculatively reset. The merged status gates it, so a stale
	// REST countdown cannot land after the feed already moved on.
	if rec.Countdown != nil && s.status == domain.StatusBettingOpen {
		s.setCountdownLocked(*rec.Countdown)
	}

	if rec.Result != "" && !replayedResult {
		outcome := domain.MapResultCode(rec.Result)
		s.history.Append(resultRound, outcome, s.clock.Now())
		events = append(events, s.settleLocked(outcome)...)

		// Re-open betting for the next round with the fixed window.
		s.status = domain.StatusBettingOpen
		s.setCountdownLocked(int(ReopenCountdown.Seconds()))
		events = append(events, s.eventLocked(EventNewRound, outcome))
	}

	if rec.IsLive != nil {
		s.isLive = *rec.IsLive
	}
	if rec.BetLimitMin != nil {
		v := *rec.BetLimitMin
		s.betLimitMin = &v
	}
	if rec.BetLimitMax != nil {
		v := *rec.BetLimitMax
		s.betLimitMax = &v
	}
	for zone, v := range rec.Odds {
		s.odds[zone] = v
	}

	s.mu.Unlock()

	if invalidated != "" && s.mirror != nil {
		go func() { _ = s.mirror.Invalidate(context.Background(), invalidated) }()
	}
	s.dispatch(events)
}

// transitionLocked applies a status change with its edge side effects
func (s *Store) transitionLocked(to domain.RoundStatus) []Event {
	if to == s.status {
		return nil
	}
	switch to {
	case domain.StatusSettled:
		return s.settleLocked(domain.OutcomeUnknown)
	case domain.StatusBettingOpen:
		prev := s.status
		s.status = to
		if prev == domain.StatusSettled {
			s.clearBetsLocked()
			return []Event{s.eventLocked(EventNewRound, domain.OutcomeUnknown)}
		}
		return nil
	default:
		s.status = to
		return nil
	}
}

// settleLocked runs the round-closed side effects: snapshot confirmed bets
// for "repeat last bet", clear both bet sets, signal a balance refresh.
func (s *Store) settleLocked(outcome domain.Outcome) []Event {
	if len(s.confirmed) > 0 {
		snap := make([]domain.Bet, len(s.confirmed))
		copy(snap, s.confirmed)
		s.lastRoundBets = snap
	}
	s.clearBetsLocked()
	s.status = domain.StatusSettled
	return []Event{s.eventLocked(EventRoundSettled, outcome)}
}

func (s *Store) clearBetsLocked() {
	s.confirmed = nil
	s.pending = make(map[string]float64)
	s.stagedOrder = nil
}

func (s *Store) eventLocked(t EventType, outcome domain.Outcome) Event {
	return Event{
		Type:        t,
		TableID:     s.tableID,
		RoundID:     s.roundID,
		RoundNumber: s.roundNumber,
		Outcome:     outcome,
	}
}

func (s *Store) setCountdownLocked(seconds int) {
	if seconds < 0 {
		seconds = 0
	}
	s.bettingEnd = s.clock.Now().Add(time.Duration(seconds) * time.Second)
}

// countdownLocked returns the remaining betting seconds and whether a
// countdown is defined at all. Never negative.
func (s *Store) countdownLocked() (int, bool) {
	if s.bettingEnd.IsZero() {
		return 0, false
	}
	remaining := s.bettingEnd.Sub(s.clock.Now())
	secs := int((remaining + time.Second - 1) / time.Second)
	if secs < 0 {
		secs = 0
	}
	return secs, true
}

// OnTableSwitch switches the subscription to a new table. Every round-scoped
// field is cleared so state from the previous table cannot leak into the new
// one. The selection is persisted for reload continuity.
func (s *Store) OnTableSwitch(ctx context.Context, newTableID string) {
	s.mu.Lock()
	oldRound := s.roundID
	s.tableID = newTableID
	s.roundID = ""
	s.roundNumber = 0
	s.status = domain.StatusUnknown
	s.bettingEnd = time.Time{}
	s.isLive = false
	s.lastRoundBets = nil
	s.betLimitMin = nil
	s.betLimitMax = nil
	s.odds = make(map[string]float64)
	s.clearBetsLocked()
	s.mu.Unlock()

	logger.Info(ctx).Str("table_id", newTableID).Msg("table switched")

	if s.mirror != nil {
		if oldRound != "" {
			_ = s.mirror.Invalidate(ctx, oldRound)
		}
		_ = s.mirror.SaveTableSelection(ctx, newTableID)
	}
}
