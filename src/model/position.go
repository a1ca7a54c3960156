package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// Position is created when an Order fills and closed once the exchange reports the holding flat.
type Position struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	OrderID    string          `gorm:"size:64;uniqueIndex" json:"order_id"`
	Symbol     string          `gorm:"size:50;not null;index:idx_positions_symbol_status,priority:1" json:"symbol"`
	Side       Direction       `gorm:"size:10;not null" json:"side"`
	EntryPrice decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"entry_price"`
	Quantity   decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"quantity"`
	Status     PositionStatus  `gorm:"size:20;not null;index:idx_positions_symbol_status,priority:2" json:"status"`
	OpenedAt   time.Time       `json:"opened_at"`
	ClosedAt   *time.Time      `json:"closed_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}
