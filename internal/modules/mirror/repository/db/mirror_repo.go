// Package db provides the gorm-backed mirror repository. SQLite gives a
// single-user host durable reload continuity; Postgres is selectable for
// shared deployments.
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/frankieli/livetable/internal/modules/mirror/domain"
	rounddomain "github.com/frankieli/livetable/internal/modules/round/domain"
)

// mirrorRow is the storage model; maps are serialized to JSON columns.
type mirrorRow struct {
	RoundID   string    `gorm:"primaryKey;type:varchar(64)"`
	TableID   string    `gorm:"type:varchar(32);not null;index:idx_mirror_table_id"`
	Pending   string    `gorm:"type:text;not null"`
	Confirmed string    `gorm:"type:text;not null"`
	Balance   float64   `gorm:"type:decimal(18,2);not null"`
	SavedAt   time.Time `gorm:"not null"`
}

func (mirrorRow) TableName() string {
	return "round_mirrors"
}

// settingRow stores single-value settings like the table selection.
type settingRow struct {
	Key   string `gorm:"primaryKey;type:varchar(32)"`
	Value string `gorm:"type:varchar(255);not null"`
}

func (settingRow) TableName() string {
	return "client_settings"
}

const tableSelectionKey = "table_selection"

// MirrorRepository implements domain.Repository on a gorm DB
type MirrorRepository struct {
	db *gorm.DB
}

// NewMirrorRepository migrates the schema and returns the repository
func NewMirrorRepository(db *gorm.DB) (*MirrorRepository, error) {
	if err := db.AutoMigrate(&mirrorRow{}, &settingRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate mirror schema: %w", err)
	}
	return &MirrorRepository{db: db}, nil
}

func (r *MirrorRepository) Save(ctx context.Context, rec *domain.Record) error {
	pending, err := json.Marshal(rec.Pending)
	if err != nil {
		return fmt.Errorf("failed to encode pending: %w", err)
	}
	confirmed, err := json.Marshal(rec.Confirmed)
	if err != nil {
		return fmt.Errorf("failed to encode confirmed: %w", err)
	}

	row := mirrorRow{
		RoundID:   rec.RoundID,
		TableID:   rec.TableID,
		Pending:   string(pending),
		Confirmed: string(confirmed),
		Balance:   rec.Balance,
		SavedAt:   rec.SavedAt,
	}
	if err := r.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("failed to save mirror record: %w", err)
	}
	return nil
}

func (r *MirrorRepository) Load(ctx context.Context, roundID string) (*domain.Record, error) {
	var row mirrorRow
	if err := r.db.WithContext(ctx).Where("round_id = ?", roundID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load mirror record: %w", err)
	}

	rec := &domain.Record{
		TableID: row.TableID,
		RoundID: row.RoundID,
		Balance: row.Balance,
		SavedAt: row.SavedAt,
	}
	if err := json.Unmarshal([]byte(row.Pending), &rec.Pending); err != nil {
		return nil, fmt.Errorf("failed to decode pending: %w", err)
	}
	var confirmed []rounddomain.Bet
	if err := json.Unmarshal([]byte(row.Confirmed), &confirmed); err != nil {
		return nil, fmt.Errorf("failed to decode confirmed: %w", err)
	}
	rec.Confirmed = confirmed
	return rec, nil
}

func (r *MirrorRepository) Invalidate(ctx context.Context, roundID string) error {
	if err := r.db.WithContext(ctx).Where("round_id = ?", roundID).Delete(&mirrorRow{}).Error; err != nil {
		return fmt.Errorf("failed to invalidate mirror record: %w", err)
	}
	return nil
}

func (r *MirrorRepository) SaveTableSelection(ctx context.Context, tableID string) error {
	row := settingRow{Key: tableSelectionKey, Value: tableID}
	if err := r.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("failed to save table selection: %w", err)
	}
	return nil
}

func (r *MirrorRepository) LoadTableSelection(ctx context.Context) (string, error) {
	var row settingRow
	if err := r.db.WithContext(ctx).Where("key = ?", tableSelectionKey).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to load table selection: %w", err)
	}
	return row.Value, nil
}
