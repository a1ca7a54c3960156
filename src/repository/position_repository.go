package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"breakoutexecutor/src/model"
)

// PositionRepository reads and closes positions. Positions are opened by OrderRepository.MarkFilled.
type PositionRepository struct {
	db *gorm.DB
}

func NewPositionRepositoryWithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

type PositionSearchOptions struct {
	Symbol *string
	Status *model.PositionStatus
	Limit  int
	Offset int
}

// HasOpenPosition reports whether symbol currently holds an open position.
func (r *PositionRepository) HasOpenPosition(ctx context.Context, symbol string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("symbol = ? AND status = ?", symbol, model.PositionStatusOpen).
		Count(&count).Error
	return count > 0, err
}

// FindOpenBySymbol returns (nil, nil) when symbol has no open position.
func (r *PositionRepository) FindOpenBySymbol(ctx context.Context, symbol string) (*model.Position, error) {
	var position model.Position
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND status = ?", symbol, model.PositionStatusOpen).
		First(&position).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &position, nil
}

func (r *PositionRepository) ListOpen(ctx context.Context) ([]model.Position, error) {
	var positions []model.Position
	err := r.db.WithContext(ctx).
		Where("status = ?", model.PositionStatusOpen).
		Order("opened_at ASC, id ASC").
		Find(&positions).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "ListOpen",
		}).WithError(err).Error("Failed to list open positions")
		return nil, err
	}
	return positions, nil
}

// Close marks an open position closed at closedAt. It returns false if it was already closed.
func (r *PositionRepository) Close(ctx context.Context, id uint, closedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ? AND status = ?", id, model.PositionStatusOpen).
		Updates(map[string]interface{}{
			"status":     model.PositionStatusClosed,
			"closed_at":  closedAt,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "PositionRepository",
			"op":          "Close",
			"position_id": id,
		}).WithError(res.Error).Error("Failed to close position")
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Search returns positions matching opts, most recently opened first.
func (r *PositionRepository) Search(ctx context.Context, opts PositionSearchOptions) ([]model.Position, error) {
	query := r.db.WithContext(ctx).Model(&model.Position{})

	if opts.Symbol != nil {
		query = query.Where("symbol = ?", *opts.Symbol)
	}
	if opts.Status != nil {
		query = query.Where("status = ?", *opts.Status)
	}

	query = query.Order("opened_at DESC, id DESC")

	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}

	var positions []model.Position
	if err := query.Find(&positions).Error; err != nil {
		return nil, err
	}
	return positions, nil
}
