package connectors

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"breakoutexecutor/src/model"
)

// OrderSide is the exchange-side direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// SideFor returns the side that opens a holding in direction d.
func SideFor(d model.Direction) OrderSide {
	if d == model.DirectionShort {
		return SideSell
	}
	return SideBuy
}

func (s OrderSide) Opposite() OrderSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Supported candle timeframes.
const (
	Timeframe1m  = "1m"
	Timeframe5m  = "5m"
	Timeframe15m = "15m"
	Timeframe1h  = "1h"
)

type Ticker struct {
	Symbol string
	Last   decimal.Decimal
}

type BookLevel struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// OrderBook levels are sorted best first: bids descending, asks ascending.
type OrderBook struct {
	Symbol string
	Bids   []BookLevel
	Asks   []BookLevel
}

// BestBid returns the highest bid, false when the side is empty.
func (b *OrderBook) BestBid() (BookLevel, bool) {
	if b == nil || len(b.Bids) == 0 {
		return BookLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask, false when the side is empty.
func (b *OrderBook) BestAsk() (BookLevel, bool) {
	if b == nil || len(b.Asks) == 0 {
		return BookLevel{}, false
	}
	return b.Asks[0], true
}

// Balance is the account balance of one currency.
type Balance struct {
	Currency string
	Free     decimal.Decimal
	Used     decimal.Decimal
	Total    decimal.Decimal
}

// ExchangeOrder is the exchange's view of an order.
type ExchangeOrder struct {
	ID            string
	ClientOrderID string
	Symbol        string
	Side          OrderSide
	Price         decimal.Decimal
	Amount        decimal.Decimal
	Filled        decimal.Decimal
	AvgPrice      decimal.Decimal
	Status        model.OrderStatus
	RawStatus     string
}

// Gateway is the exchange access used by the engine. Every call is a blocking
// network round trip bound to ctx. Failures are returned as *errs.GatewayError.
type Gateway interface {
	Name() string
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error)
	FetchTicker(ctx context.Context, symbol string) (*Ticker, error)
	FetchOrderBook(ctx context.Context, symbol string) (*OrderBook, error)
	// FetchBalance returns the balance of the configured quote currency.
	FetchBalance(ctx context.Context) (*Balance, error)
	CreateLimitOrder(ctx context.Context, symbol string, side OrderSide, qty, price decimal.Decimal, clientOrderID string) (*ExchangeOrder, error)
	FetchOrder(ctx context.Context, symbol, id string) (*ExchangeOrder, error)
	// CancelOrder succeeds when the order is already gone from the book.
	CancelOrder(ctx context.Context, symbol, id string) error
	CreateMarketOrder(ctx context.Context, symbol string, side OrderSide, qty decimal.Decimal, reduceOnly bool) (*ExchangeOrder, error)
	// FetchPositionSize returns the absolute size held in symbol, zero when flat.
	FetchPositionSize(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// LongOnly is implemented by gateways that cannot sell what the account does
// not hold, such as spot markets.
type LongOnly interface {
	LongOnly() bool
}

// IsLongOnly reports whether g can only open long holdings.
func IsLongOnly(g Gateway) bool {
	lo, ok := g.(LongOnly)
	return ok && lo.LongOnly()
}

// SplitSymbol splits "BTC/USDT" into base and quote.
func SplitSymbol(symbol string) (base, quote string, err error) {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(symbol)), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid symbol %q, expected BASE/QUOTE", symbol)
	}
	return parts[0], parts[1], nil
}
