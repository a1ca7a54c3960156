package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"breakoutexecutor/src/model"
)

// PairRepository gives access to the per-instrument trading settings.
type PairRepository struct {
	db *gorm.DB
}

func NewPairRepositoryWithDB(db *gorm.DB) *PairRepository {
	return &PairRepository{db: db}
}

// GetPairConfig returns (nil, nil) if symbol is not configured.
func (r *PairRepository) GetPairConfig(ctx context.Context, symbol string) (*model.PairConfig, error) {
	var pair model.PairConfig
	err := r.db.WithContext(ctx).Where("symbol = ?", symbol).First(&pair).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":   "PairRepository",
			"op":     "GetPairConfig",
			"symbol": symbol,
		}).WithError(err).Error("Failed to fetch pair config")
		return nil, err
	}
	return &pair, nil
}

// ListEnabledPairs returns the enabled pairs in configuration order.
func (r *PairRepository) ListEnabledPairs(ctx context.Context) ([]model.PairConfig, error) {
	var pairs []model.PairConfig
	err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("id ASC").
		Find(&pairs).Error
	return pairs, err
}

func (r *PairRepository) ListAll(ctx context.Context) ([]model.PairConfig, error) {
	var pairs []model.PairConfig
	err := r.db.WithContext(ctx).Order("id ASC").Find(&pairs).Error
	return pairs, err
}

// Upsert inserts pair or overwrites the settings of the row with the same symbol.
func (r *PairRepository) Upsert(ctx context.Context, pair *model.PairConfig) error {
	if err := pair.Validate(); err != nil {
		return err
	}

	// conflict target is symbol; a carried-over id would hit the primary key instead
	row := *pair
	row.ID = 0

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"enabled", "leverage", "take_profit_pct", "stop_loss_pct", "cancel_after", "updated_at",
		}),
	}).Create(&row).Error
	if err == nil {
		pair.ID = row.ID
	} else {
		logger.WithFields(map[string]interface{}{
			"repo":   "PairRepository",
			"op":     "Upsert",
			"symbol": pair.Symbol,
		}).WithError(err).Error("Failed to upsert pair config")
	}
	return err
}
