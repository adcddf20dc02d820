// Package redis provides the Redis-backed mirror repository, for display
// wall deployments where several client instances share one betting context.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/frankieli/livetable/internal/modules/mirror/domain"
)

// Mirror records expire on their own in case invalidation is missed; a round
// never lasts anywhere near this long.
const recordTTL = 2 * time.Hour

// MirrorRepository implements domain.Repository on Redis
type MirrorRepository struct {
	client *redis.Client
	prefix string
}

// NewMirrorRepository creates a repository with the given key prefix
func NewMirrorRepository(client *redis.Client, prefix string) *MirrorRepository {
	if prefix == "" {
		prefix = "livetable"
	}
	return &MirrorRepository{client: client, prefix: prefix}
}

func (r *MirrorRepository) key(roundID string) string {
	return fmt.Sprintf("%s:mirror:%s", r.prefix, roundID)
}

func (r *MirrorRepository) Save(ctx context.Context, rec *domain.Record) error {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode mirror record: %w", err)
	}
	if err := r.client.Set(ctx, r.key(rec.RoundID), encoded, recordTTL).Err(); err != nil {
		return fmt.Errorf("failed to save mirror record: %w", err)
	}
	return nil
}

func (r *MirrorRepository) Load(ctx context.Context, roundID string) (*domain.Record, error) {
	data, err := r.client.Get(ctx, r.key(roundID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load mirror record: %w", err)
	}

	var rec domain.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode mirror record: %w", err)
	}
	return &rec, nil
}

func (r *MirrorRepository) Invalidate(ctx context.Context, roundID string) error {
	if err := r.client.Del(ctx, r.key(roundID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate mirror record: %w", err)
	}
	return nil
}

func (r *MirrorRepository) SaveTableSelection(ctx context.Context, tableID string) error {
	if err := r.client.Set(ctx, r.prefix+":table_selection", tableID, 0).Err(); err != nil {
		return fmt.Errorf("failed to save table selection: %w", err)
	}
	return nil
}

func (r *MirrorRepository) LoadTableSelection(ctx context.Context) (string, error) {
	v, err := r.client.Get(ctx, r.prefix+":table_selection").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("failed to load table selection: %w", err)
	}
	return v, nil
}
