package repository

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"breakoutexecutor/src/model"
)

// ParameterRepository reads the process-wide strategy parameters.
type ParameterRepository struct {
	db *gorm.DB
}

func NewParameterRepositoryWithDB(db *gorm.DB) *ParameterRepository {
	return &ParameterRepository{db: db}
}

// GetParameter returns the stored value of key, or def when the key is missing.
func (r *ParameterRepository) GetParameter(ctx context.Context, key string, def string) (string, error) {
	var p model.Parameter
	err := r.db.WithContext(ctx).Where(&model.Parameter{Key: key}).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return def, nil
		}
		return def, err
	}
	return p.Value, nil
}

// GetFloat parses the stored value of key. A missing, malformed or non-finite
// value yields def.
func (r *ParameterRepository) GetFloat(ctx context.Context, key string, def float64) (float64, error) {
	raw, err := r.GetParameter(ctx, key, "")
	if err != nil || raw == "" {
		return def, err
	}
	v, perr := strconv.ParseFloat(raw, 64)
	if perr != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		logger.WithFields(map[string]interface{}{
			"repo":  "ParameterRepository",
			"key":   key,
			"value": raw,
		}).Warn("Invalid float parameter, using default")
		return def, nil
	}
	return v, nil
}

// GetInt parses the stored value of key. A missing or malformed value yields def.
func (r *ParameterRepository) GetInt(ctx context.Context, key string, def int) (int, error) {
	raw, err := r.GetParameter(ctx, key, "")
	if err != nil || raw == "" {
		return def, err
	}
	v, perr := strconv.Atoi(raw)
	if perr != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "ParameterRepository",
			"key":   key,
			"value": raw,
		}).Warn("Invalid integer parameter, using default")
		return def, nil
	}
	return v, nil
}

func (r *ParameterRepository) Set(ctx context.Context, key, value string) error {
	p := model.Parameter{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&p).Error
}

func (r *ParameterRepository) List(ctx context.Context) ([]model.Parameter, error) {
	var params []model.Parameter
	err := r.db.WithContext(ctx).Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).Find(&params).Error
	return params, err
}
