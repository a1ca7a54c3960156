package model

import (
	"fmt"
	"math"
	"time"
)

// PairConfig holds the trading settings of one instrument.
type PairConfig struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Symbol        string    `gorm:"size:50;not null;uniqueIndex" json:"symbol" yaml:"symbol"`
	Enabled       bool      `gorm:"not null" json:"enabled" yaml:"enabled"`
	Leverage      int       `gorm:"not null" json:"leverage" yaml:"leverage"`
	TakeProfitPct float64   `gorm:"not null" json:"tp_percent" yaml:"tp_percent"`
	StopLossPct   float64   `gorm:"not null" json:"sl_percent" yaml:"sl_percent"`
	CancelAfter   int       `gorm:"not null" json:"cancel_after" yaml:"cancel_after"` // seconds
	CreatedAt     time.Time `json:"created_at" yaml:"-"`
	UpdatedAt     time.Time `json:"updated_at" yaml:"-"`
}

func (PairConfig) TableName() string {
	return "pairs"
}

// Validate checks the ranges the engine relies on.
func (p PairConfig) Validate() error {
	if p.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if p.Leverage < 1 {
		return fmt.Errorf("leverage must be >= 1, got %d", p.Leverage)
	}
	if !finite(p.TakeProfitPct) || !finite(p.StopLossPct) {
		return fmt.Errorf("take-profit and stop-loss percents must be finite")
	}
	if p.TakeProfitPct < 0 || p.StopLossPct < 0 {
		return fmt.Errorf("take-profit and stop-loss percents must not be negative")
	}
	if p.CancelAfter < 0 {
		return fmt.Errorf("cancel_after must not be negative, got %d", p.CancelAfter)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
