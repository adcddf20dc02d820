// Package domain defines the betting-side types: zones, chip denominations,
// backend bet codes and the wire types for bet submission.
package domain

import (
	"sort"
	"sync"

	"github.com/bwmarrin/snowflake"
)

// Zone is a betting option within a round, with its backend encodings.
type Zone struct {
	Code    string // internal zone code, matches the odds map keys
	BetCode int    // backend bet-type code
	APIZone string // backend zone identifier
}

// The three zones of the two-sides-plus-draw table layout.
var Zones = map[string]Zone{
	"M": {Code: "M", BetCode: 1, APIZone: "MERON"},
	"W": {Code: "W", BetCode: 2, APIZone: "WALA"},
	"D": {Code: "D", BetCode: 3, APIZone: "DRAW"},
}

// ZoneByCode looks up a zone by its internal code
func ZoneByCode(code string) (Zone, bool) {
	z, ok := Zones[code]
	return z, ok
}

// Chips holds the selectable chip denominations, sorted ascending. The two
// smallest denominations are exempt from the table minimum; the backend
// enforces its minimum per bet while the table minimum is cumulative, and
// the exemption bridges the two rules.
type Chips struct {
	denominations []float64
}

// NewChips creates a chip set from the given denominations
func NewChips(denominations []float64) *Chips {
	sorted := make([]float64, len(denominations))
	copy(sorted, denominations)
	sort.Float64s(sorted)
	return &Chips{denominations: sorted}
}

// DefaultChips is the standard denomination ladder
func DefaultChips() *Chips {
	return NewChips([]float64{1, 5, 10, 50, 100, 500, 1000})
}

// Denominations returns the ladder, ascending
func (c *Chips) Denominations() []float64 {
	out := make([]float64, len(c.denominations))
	copy(out, c.denominations)
	return out
}

// Valid reports whether v is a selectable denomination
func (c *Chips) Valid(v float64) bool {
	for _, d := range c.denominations {
		if d == v {
			return true
		}
	}
	return false
}

// ExemptFromMinimum reports whether an amount equals one of the two smallest
// denominations, which are always allowed regardless of the table minimum.
func (c *Chips) ExemptFromMinimum(amount float64) bool {
	for i, d := range c.denominations {
		if i >= 2 {
			break
		}
		if d == amount {
			return true
		}
	}
	return false
}

// PlaceBetRequest is one zone's submission to the backend.
type PlaceBetRequest struct {
	TableID          string  `json:"tableid"`
	RoundID          string  `json:"roundid"`
	BetCode          int     `json:"bettype"`
	Zone             string  `json:"zone"`
	Amount           float64 `json:"amount"`
	Odds             float64 `json:"odds"`
	IdempotencyToken string  `json:"token"`
	AutoAcceptOdds   bool    `json:"acceptanyodds"`
}

// PlaceBetResult is the backend's acknowledgment of a bet.
type PlaceBetResult struct {
	WagerID string
	Balance *float64 // authoritative balance, when the backend includes it
}

// Wager is one backend-acknowledged bet, as returned by the wager listing.
type Wager struct {
	WagerID string
	Zone    string
	Amount  float64
	Odds    float64
	Settled bool
}

var (
	node *snowflake.Node
	once sync.Once
)

func initSnowflake() {
	var err error
	node, err = snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
}

// NewIdempotencyToken generates a client-side token so the backend can
// deduplicate a resubmitted bet.
func NewIdempotencyToken() string {
	once.Do(initSnowflake)
	return node.Generate().String()
}
