// Package memory provides the in-memory mirror repository, used in tests and
// in hosts that do not need reload continuity.
package memory

import (
	"context"
	"sync"

	"github.com/frankieli/livetable/internal/modules/mirror/domain"
)

// MirrorRepository implements domain.Repository in memory
type MirrorRepository struct {
	mu      sync.RWMutex
	records map[string]*domain.Record
	tableID string
}

// NewMirrorRepository creates an empty repository
func NewMirrorRepository() *MirrorRepository {
	return &MirrorRepository{records: make(map[string]*domain.Record)}
}

func (r *MirrorRepository) Save(ctx context.Context, rec *domain.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *rec
	stored.Pending = make(map[string]float64, len(rec.Pending))
	for zone, amount := range rec.Pending {
		stored.Pending[zone] = amount
	}
	r.records[rec.RoundID] = &stored
	return nil
}

func (r *MirrorRepository) Load(ctx context.Context, roundID string) (*domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[roundID]
	if !ok {
		return nil, nil
	}
	out := *rec
	out.Pending = make(map[string]float64, len(rec.Pending))
	for zone, amount := range rec.Pending {
		out.Pending[zone] = amount
	}
	return &out, nil
}

func (r *MirrorRepository) Invalidate(ctx context.Context, roundID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, roundID)
	return nil
}

func (r *MirrorRepository) SaveTableSelection(ctx context.Context, tableID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tableID = tableID
	return nil
}

func (r *MirrorRepository) LoadTableSelection(ctx context.Context) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tableID, nil
}
