// Package balance refreshes the authoritative account balance after
// settlements. The store signals that a fetch is warranted; it never fetches
// itself.
package balance

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/frankieli/livetable/internal/modules/round/store"
	"github.com/frankieli/livetable/pkg/logger"
)

// Fetcher fetches the authoritative balance (the REST client)
type Fetcher interface {
	GetBalance(ctx context.Context) (float64, error)
}

// Refresher debounces balance fetches so one settlement triggers at most one
// request even when several transition events fire close together.
type Refresher struct {
	fetcher Fetcher
	store   *store.Store
	group   singleflight.Group
}

// NewRefresher creates a refresher and returns it; callers register
// HandleEvent on the store.
func NewRefresher(fetcher Fetcher, st *store.Store) *Refresher {
	return &Refresher{fetcher: fetcher, store: st}
}

// HandleEvent is a store EventHandler; settlement and new-round edges both
// warrant a balance refresh.
func (r *Refresher) HandleEvent(ev store.Event) {
	if ev.Type != store.EventRoundSettled && ev.Type != store.EventNewRound {
		return
	}
	ctx := context.Background()
	if err := r.Refresh(ctx); err != nil {
		logger.Warn(ctx).Err(err).Msg("balance refresh failed")
	}
}

// Refresh fetches and applies the balance; concurrent callers share one
// in-flight fetch.
func (r *Refresher) Refresh(ctx context.Context) error {
	v, err, _ := r.group.Do("balance", func() (interface{}, error) {
		return r.fetcher.GetBalance(ctx)
	})
	if err != nil {
		return err
	}
	r.store.SetBalance(v.(float64))
	return nil
}
