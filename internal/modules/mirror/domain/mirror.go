// Package domain defines the round-scoped persistence mirror contract.
//
// The mirror keeps a durable copy of the user's in-flight betting context
// keyed by round id, so a restart mid-round can restore pending bets and the
// optimistic balance. A mirror record is only ever valid for the round it was
// written for; it is invalidated as soon as the round id changes.
package domain

import (
	"context"
	"time"

	rounddomain "github.com/frankieli/livetable/internal/modules/round/domain"
)

// Record is one round's mirrored betting context.
type Record struct {
	TableID   string
	RoundID   string
	Pending   map[string]float64
	Confirmed []rounddomain.Bet
	Balance   float64
	SavedAt   time.Time
}

// Repository stores mirror records keyed by round id, plus the table
// selection so a reload rejoins the table the user was on.
type Repository interface {
	Save(ctx context.Context, rec *Record) error
	Load(ctx context.Context, roundID string) (*Record, error)
	Invalidate(ctx context.Context, roundID string) error
	SaveTableSelection(ctx context.Context, tableID string) error
	LoadTableSelection(ctx context.Context) (string, error)
}
