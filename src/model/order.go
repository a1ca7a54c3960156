package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderTypeLimit  = "limit"
	OrderTypeMarket = "market"
)

// OrderStatus is the local lifecycle of an order. Anything but open is terminal.
type OrderStatus string

const (
	OrderStatusOpen     OrderStatus = "open"
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusCanceled OrderStatus = "canceled"
	OrderStatusExpired  OrderStatus = "expired"
)

// Terminal reports whether the status can no longer change.
func (s OrderStatus) Terminal() bool {
	return s != OrderStatusOpen
}

// Order represents a limit order this engine submitted to the exchange.
// The primary key is the exchange-assigned order id.
type Order struct {
	ID            string          `gorm:"primaryKey;size:64" json:"id"`
	ClientOrderID string          `gorm:"size:64;index" json:"client_order_id"`
	Symbol        string          `gorm:"size:50;not null;index:idx_orders_symbol_status,priority:1" json:"symbol"`
	Side          Direction       `gorm:"size:10;not null" json:"side"`
	Type          string          `gorm:"size:20;not null" json:"type"`
	Price         decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"price"`
	Amount        decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"amount"`
	Status        OrderStatus     `gorm:"size:20;not null;index:idx_orders_symbol_status,priority:2" json:"status"`
	CancelAfter   int             `gorm:"not null" json:"cancel_after"` // seconds, 0 disables auto-cancel
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TableName allows you to control the exact table name for orders.
func (Order) TableName() string {
	return "orders"
}
