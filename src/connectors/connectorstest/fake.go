// Package connectorstest provides an in-memory Gateway for engine tests.
package connectorstest

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"breakoutexecutor/src/connectors"
	"breakoutexecutor/src/errs"
	"breakoutexecutor/src/model"
)

// MarketOrder records a CreateMarketOrder call.
type MarketOrder struct {
	Symbol     string
	Side       connectors.OrderSide
	Qty        decimal.Decimal
	ReduceOnly bool
}

// FakeGateway is a scriptable connectors.Gateway. Zero value is usable.
// Limit orders it accepts stay open until SetOrderStatus changes them.
type FakeGateway struct {
	mu sync.Mutex

	Candles   map[string][]model.Candle
	Books     map[string]*connectors.OrderBook
	Tickers   map[string]decimal.Decimal
	Free      decimal.Decimal
	Positions map[string]decimal.Decimal
	Orders    map[string]*connectors.ExchangeOrder

	// Errors keyed by operation name, e.g. "fetch_ohlcv".
	Errors map[string]error

	LimitOrders  []connectors.ExchangeOrder
	MarketOrders []MarketOrder
	Cancels      []string
	FetchCalls   map[string]int

	// SpotOnly makes the fake report itself long-only.
	SpotOnly bool

	nextID int
	// OnCancel runs inside CancelOrder before the order is marked canceled.
	// Returning false leaves the order untouched, as if it filled first.
	OnCancel func(id string) bool
}

func New() *FakeGateway {
	return &FakeGateway{
		Candles:    map[string][]model.Candle{},
		Books:      map[string]*connectors.OrderBook{},
		Tickers:    map[string]decimal.Decimal{},
		Positions:  map[string]decimal.Decimal{},
		Orders:     map[string]*connectors.ExchangeOrder{},
		Errors:     map[string]error{},
		FetchCalls: map[string]int{},
	}
}

func (f *FakeGateway) fail(op, symbol string) error {
	if err, ok := f.Errors[op]; ok && err != nil {
		return &errs.GatewayError{Op: op, Symbol: symbol, Err: err}
	}
	return nil
}

func (f *FakeGateway) count(op string) {
	if f.FetchCalls == nil {
		f.FetchCalls = map[string]int{}
	}
	f.FetchCalls[op]++
}

func (f *FakeGateway) SetBook(symbol string, bid, ask decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Books == nil {
		f.Books = map[string]*connectors.OrderBook{}
	}
	f.Books[symbol] = &connectors.OrderBook{
		Symbol: symbol,
		Bids:   []connectors.BookLevel{{Price: bid, Amount: decimal.NewFromInt(1)}},
		Asks:   []connectors.BookLevel{{Price: ask, Amount: decimal.NewFromInt(1)}},
	}
}

func (f *FakeGateway) SetError(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Errors == nil {
		f.Errors = map[string]error{}
	}
	f.Errors[op] = err
}

func (f *FakeGateway) SetOrderStatus(id string, status model.OrderStatus, filled decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.Orders[id]; ok {
		o.Status = status
		o.Filled = filled
	}
}

func (f *FakeGateway) SetPosition(symbol string, size decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Positions == nil {
		f.Positions = map[string]decimal.Decimal{}
	}
	f.Positions[symbol] = size
}

func (f *FakeGateway) SetTicker(symbol string, last decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Tickers == nil {
		f.Tickers = map[string]decimal.Decimal{}
	}
	f.Tickers[symbol] = last
}

func (f *FakeGateway) SetFree(free decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Free = free
}

func (f *FakeGateway) SetCandles(symbol string, candles []model.Candle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Candles == nil {
		f.Candles = map[string][]model.Candle{}
	}
	f.Candles[symbol] = candles
}

// Snapshot accessors for assertions from other goroutines.

func (f *FakeGateway) LimitOrderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.LimitOrders)
}

func (f *FakeGateway) MarketOrderCalls() []MarketOrder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]MarketOrder(nil), f.MarketOrders...)
}

func (f *FakeGateway) CancelCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Cancels...)
}

func (f *FakeGateway) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.FetchCalls[op]
}

func (f *FakeGateway) Name() string { return "fake" }

func (f *FakeGateway) LongOnly() bool { return f.SpotOnly }

func (f *FakeGateway) FetchOHLCV(_ context.Context, symbol, _ string, limit int) ([]model.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("fetch_ohlcv")
	if err := f.fail("fetch_ohlcv", symbol); err != nil {
		return nil, err
	}
	candles := f.Candles[symbol]
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return append([]model.Candle(nil), candles...), nil
}

func (f *FakeGateway) FetchTicker(_ context.Context, symbol string) (*connectors.Ticker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("fetch_ticker")
	if err := f.fail("fetch_ticker", symbol); err != nil {
		return nil, err
	}
	last, ok := f.Tickers[symbol]
	if !ok {
		return nil, &errs.GatewayError{Op: "fetch_ticker", Symbol: symbol, Err: fmt.Errorf("no ticker")}
	}
	return &connectors.Ticker{Symbol: symbol, Last: last}, nil
}

func (f *FakeGateway) FetchOrderBook(_ context.Context, symbol string) (*connectors.OrderBook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("fetch_order_book")
	if err := f.fail("fetch_order_book", symbol); err != nil {
		return nil, err
	}
	book, ok := f.Books[symbol]
	if !ok {
		return &connectors.OrderBook{Symbol: symbol}, nil
	}
	cp := *book
	return &cp, nil
}

func (f *FakeGateway) FetchBalance(_ context.Context) (*connectors.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("fetch_balance")
	if err := f.fail("fetch_balance", ""); err != nil {
		return nil, err
	}
	return &connectors.Balance{Currency: "USDT", Free: f.Free, Total: f.Free}, nil
}

func (f *FakeGateway) CreateLimitOrder(
	_ context.Context,
	symbol string,
	side connectors.OrderSide,
	qty, price decimal.Decimal,
	clientOrderID string,
) (*connectors.ExchangeOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("create_limit_order")
	if err := f.fail("create_limit_order", symbol); err != nil {
		return nil, err
	}

	f.nextID++
	order := &connectors.ExchangeOrder{
		ID:            fmt.Sprintf("ex-%d", f.nextID),
		ClientOrderID: clientOrderID,
		Symbol:        symbol,
		Side:          side,
		Price:         price,
		Amount:        qty,
		Status:        model.OrderStatusOpen,
	}
	if f.Orders == nil {
		f.Orders = map[string]*connectors.ExchangeOrder{}
	}
	f.Orders[order.ID] = order
	f.LimitOrders = append(f.LimitOrders, *order)

	cp := *order
	return &cp, nil
}

func (f *FakeGateway) FetchOrder(_ context.Context, symbol, id string) (*connectors.ExchangeOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("fetch_order")
	if err := f.fail("fetch_order", symbol); err != nil {
		return nil, err
	}
	order, ok := f.Orders[id]
	if !ok {
		return nil, &errs.GatewayError{Op: "fetch_order", Symbol: symbol, Err: fmt.Errorf("order %s not found", id)}
	}
	cp := *order
	return &cp, nil
}

func (f *FakeGateway) CancelOrder(_ context.Context, symbol, id string) error {
	f.mu.Lock()
	hook := f.OnCancel
	f.mu.Unlock()

	proceed := true
	if hook != nil {
		proceed = hook(id)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("cancel_order")
	if err := f.fail("cancel_order", symbol); err != nil {
		return err
	}
	f.Cancels = append(f.Cancels, id)
	if order, ok := f.Orders[id]; ok && proceed && order.Status == model.OrderStatusOpen {
		order.Status = model.OrderStatusCanceled
	}
	return nil
}

func (f *FakeGateway) CreateMarketOrder(
	_ context.Context,
	symbol string,
	side connectors.OrderSide,
	qty decimal.Decimal,
	reduceOnly bool,
) (*connectors.ExchangeOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("create_market_order")
	if err := f.fail("create_market_order", symbol); err != nil {
		return nil, err
	}
	f.MarketOrders = append(f.MarketOrders, MarketOrder{Symbol: symbol, Side: side, Qty: qty, ReduceOnly: reduceOnly})
	f.nextID++
	return &connectors.ExchangeOrder{
		ID:     fmt.Sprintf("mk-%d", f.nextID),
		Symbol: symbol,
		Side:   side,
		Amount: qty,
		Status: model.OrderStatusFilled,
	}, nil
}

func (f *FakeGateway) FetchPositionSize(_ context.Context, symbol string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("fetch_position_size")
	if err := f.fail("fetch_position_size", symbol); err != nil {
		return decimal.Zero, err
	}
	return f.Positions[symbol], nil
}

var _ connectors.Gateway = (*FakeGateway)(nil)
