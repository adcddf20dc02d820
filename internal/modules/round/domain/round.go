// Package domain defines the round-scoped types shared by the store and the
// transport adapters.
package domain

import (
	"strings"
	"time"
)

// RoundStatus is the lifecycle state of a table round.
// Values mirror the backend wire encoding.
type RoundStatus int

const (
	StatusUnknown     RoundStatus = 0
	StatusBettingOpen RoundStatus = 1
	StatusFighting    RoundStatus = 2
	StatusSettled     RoundStatus = 4
)

// Known reports whether the status has been set by any source yet.
func (s RoundStatus) Known() bool {
	return s != StatusUnknown
}

func (s RoundStatus) String() string {
	switch s {
	case StatusBettingOpen:
		return "betting_open"
	case StatusFighting:
		return "fighting"
	case StatusSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// Source identifies which channel produced a table record. WebSocket records
// take precedence over REST records for live fields.
type Source int

const (
	SourceREST Source = iota
	SourceWebSocket
)

func (s Source) String() string {
	if s == SourceWebSocket {
		return "websocket"
	}
	return "rest"
}

// Outcome is the three-way result of a settled round.
type Outcome string

const (
	OutcomeSideA   Outcome = "A"
	OutcomeSideB   Outcome = "B"
	OutcomeDraw    Outcome = "D"
	OutcomeUnknown Outcome = "U"
)

// MapResultCode maps a backend draw-result code to an Outcome. Both the
// numeric encoding and the short letter encoding are accepted. Codes that
// match neither map to OutcomeUnknown rather than being guessed at.
func MapResultCode(code string) Outcome {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "1", "M", "B", "R":
		return OutcomeSideA
	case "2", "W", "P":
		return OutcomeSideB
	case "3", "D", "T":
		return OutcomeDraw
	default:
		return OutcomeUnknown
	}
}

// Bet is a wager acknowledged by the backend for the current round.
type Bet struct {
	ID     string
	Zone   string
	Amount float64
	Odds   float64
	Time   time.Time
}

// TableRecord is the canonical normalized form of a table/round update. Both
// transport adapters map their raw payload shapes into this type at the
// boundary so the store never branches on field-name aliases.
//
// Optional fields use pointers (or the zero value for identifiers) so a
// record can carry only the fields its source actually supplied.
type TableRecord struct {
	TableID     string
	RoundID     string
	RoundNumber int
	Status      RoundStatus
	Countdown   *int
	IsLive      *bool
	Result      string
	Odds        map[string]float64
	BetLimitMin *float64
	BetLimitMax *float64
}
