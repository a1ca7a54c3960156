// Package orders submits entry orders, tracks their auto-cancel timers and
// sends the market orders that close positions.
package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"breakoutexecutor/src/connectors"
	"breakoutexecutor/src/errs"
	"breakoutexecutor/src/metrics"
	"breakoutexecutor/src/model"
	"breakoutexecutor/src/repository"
	"breakoutexecutor/src/risk"
	"breakoutexecutor/src/utils"
)

// DefaultPriceOffset shifts the limit price away from the touch: bid×(1+o) for
// LONG entries, ask×(1−o) for SHORT entries.
var DefaultPriceOffset = decimal.NewFromFloat(0.001)

type Manager struct {
	gateway     connectors.Gateway
	orders      *repository.OrderRepository
	pairs       *repository.PairRepository
	params      *repository.ParameterRepository
	sizer       *risk.Sizer
	priceOffset decimal.Decimal
	log         *logrus.Entry

	sleep      func(ctx context.Context, d time.Duration) error
	newOrderID func() string

	mu       sync.Mutex
	inFlight map[string]struct{}
	tasks    map[string]context.CancelFunc
	closed   bool
	wg       sync.WaitGroup

	tasksCtx    context.Context
	cancelTasks context.CancelFunc
}

type Options struct {
	PriceOffset decimal.Decimal
	Log         *logrus.Entry
}

func NewManager(
	gateway connectors.Gateway,
	orders *repository.OrderRepository,
	pairs *repository.PairRepository,
	params *repository.ParameterRepository,
	sizer *risk.Sizer,
	opts Options,
) *Manager {
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	offset := opts.PriceOffset
	if offset.IsNegative() {
		offset = DefaultPriceOffset
	}

	tasksCtx, cancel := context.WithCancel(context.Background())
	return &Manager{
		gateway:     gateway,
		orders:      orders,
		pairs:       pairs,
		params:      params,
		sizer:       sizer,
		priceOffset: offset,
		log:         log.WithField("component", "orders"),
		sleep:       utils.Sleep,
		newOrderID:  uuid.NewString,
		inFlight:    map[string]struct{}{},
		tasks:       map[string]context.CancelFunc{},
		tasksCtx:    tasksCtx,
		cancelTasks: cancel,
	}
}

// acquire claims symbol for one placement. The claim covers the window between
// the open-order check and the insert of the new row.
func (m *Manager) acquire(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inFlight[symbol]; busy {
		return false
	}
	m.inFlight[symbol] = struct{}{}
	return true
}

func (m *Manager) release(symbol string) {
	m.mu.Lock()
	delete(m.inFlight, symbol)
	m.mu.Unlock()
}

// PlaceLimitOrder submits an entry for symbol in direction and returns the exchange order id.
// cancelAfter > 0 arms an auto-cancel timer of that many seconds.
func (m *Manager) PlaceLimitOrder(ctx context.Context, symbol string, direction model.Direction, cancelAfter int) (string, error) {
	log := m.log.WithFields(logrus.Fields{"symbol": symbol, "direction": direction, "op": "place_limit_order"})

	if !direction.Valid() {
		return "", fmt.Errorf("invalid direction %q", direction)
	}
	if direction == model.DirectionShort && connectors.IsLongOnly(m.gateway) {
		return "", errs.ErrShortUnsupported
	}

	pair, err := m.pairs.GetPairConfig(ctx, symbol)
	if err != nil {
		return "", fmt.Errorf("load pair config for %s: %w", symbol, err)
	}
	if pair == nil {
		return "", &errs.ConfigurationError{Symbol: symbol}
	}
	if err := pair.Validate(); err != nil {
		return "", &errs.ConfigurationError{Symbol: symbol, Reason: err.Error()}
	}

	if !m.acquire(symbol) {
		return "", errs.ErrOrderAlreadyOpen
	}
	defer m.release(symbol)

	open, err := m.orders.HasOpenOrder(ctx, symbol)
	if err != nil {
		return "", fmt.Errorf("check open orders for %s: %w", symbol, err)
	}
	if open {
		return "", errs.ErrOrderAlreadyOpen
	}

	side := connectors.SideFor(direction)
	reference, price, err := m.price(ctx, symbol, direction)
	if err != nil {
		return "", err
	}

	riskPct, err := m.params.GetFloat(ctx, model.ParamRiskPerTrade, model.DefaultRiskPerTrade)
	if err != nil {
		log.WithError(err).Warn("risk_per_trade unavailable, using default")
		riskPct = model.DefaultRiskPerTrade
	}

	qty, err := m.sizer.Size(ctx, symbol, riskPct, pair.Leverage, reference)
	if err != nil {
		return "", err
	}
	if !qty.IsPositive() {
		return "", errs.ErrZeroQuantity
	}

	clientOrderID := m.newOrderID()
	placed, err := m.gateway.CreateLimitOrder(ctx, symbol, side, qty, price, clientOrderID)
	if err != nil {
		return "", &errs.OrderSubmissionError{Symbol: symbol, Side: string(side), Err: err}
	}

	order := &model.Order{
		ID:            placed.ID,
		ClientOrderID: clientOrderID,
		Symbol:        symbol,
		Side:          direction,
		Type:          model.OrderTypeLimit,
		Price:         price,
		Amount:        qty,
		Status:        model.OrderStatusOpen,
		CancelAfter:   cancelAfter,
	}
	if err := m.orders.Create(ctx, order); err != nil {
		// an untracked live order would bypass every guard, so pull it
		if cerr := m.gateway.CancelOrder(context.WithoutCancel(ctx), symbol, placed.ID); cerr != nil {
			log.WithError(cerr).WithField("order_id", placed.ID).Error("Failed to cancel untracked order")
		}
		return "", fmt.Errorf("persist order %s: %w", placed.ID, err)
	}

	metrics.OrdersPlaced.WithLabelValues(string(side)).Inc()
	log.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"side":         side,
		"price":        price.String(),
		"qty":          qty.String(),
		"cancel_after": cancelAfter,
	}).Info("Limit order placed")

	if cancelAfter > 0 {
		m.arm(order.ID, symbol, utils.Seconds(cancelAfter))
	}

	return order.ID, nil
}

// price returns the top of book used for sizing and the offset limit price.
func (m *Manager) price(ctx context.Context, symbol string, direction model.Direction) (decimal.Decimal, decimal.Decimal, error) {
	book, err := m.gateway.FetchOrderBook(ctx, symbol)
	if err != nil {
		return decimal.Zero, decimal.Zero, &errs.PricingError{Symbol: symbol, Reason: "order book unavailable", Err: err}
	}

	one := decimal.NewFromInt(1)
	if direction == model.DirectionLong {
		bid, ok := book.BestBid()
		if !ok || !bid.Price.IsPositive() {
			return decimal.Zero, decimal.Zero, &errs.PricingError{Symbol: symbol, Reason: "no valid bid"}
		}
		return bid.Price, bid.Price.Mul(one.Add(m.priceOffset)), nil
	}

	ask, ok := book.BestAsk()
	if !ok || !ask.Price.IsPositive() {
		return decimal.Zero, decimal.Zero, &errs.PricingError{Symbol: symbol, Reason: "no valid ask"}
	}
	return ask.Price, ask.Price.Mul(one.Sub(m.priceOffset)), nil
}

// arm starts the auto-cancel task for id. Tasks outlive the placing call and
// stop on Shutdown.
func (m *Manager) arm(id, symbol string, delay time.Duration) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(m.tasksCtx)
	m.tasks[id] = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	metrics.ActiveCancelTasks.Inc()

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.tasks, id)
			m.mu.Unlock()
			cancel()
			metrics.ActiveCancelTasks.Dec()
			m.wg.Done()
		}()
		m.autoCancel(ctx, id, symbol, delay)
	}()
}

func (m *Manager) autoCancel(ctx context.Context, id, symbol string, delay time.Duration) {
	log := m.log.WithFields(logrus.Fields{"symbol": symbol, "order_id": id, "op": "auto_cancel"})

	if err := m.sleep(ctx, delay); err != nil {
		log.Debug("Auto-cancel aborted by shutdown")
		return
	}

	live, err := m.gateway.FetchOrder(ctx, symbol, id)
	if err != nil {
		metrics.Errors.WithLabelValues("auto_cancel").Inc()
		log.WithError(err).Error("fetch_order failed")
		return
	}
	if live.Status != model.OrderStatusOpen {
		log.WithField("status", live.Status).Debug("Order already left the book, nothing to cancel")
		return
	}

	if err := m.gateway.CancelOrder(ctx, symbol, id); err != nil {
		metrics.Errors.WithLabelValues("auto_cancel").Inc()
		log.WithError(err).Error("cancel_order failed")
		return
	}

	// the fill can land between the status read and the cancel
	after, err := m.gateway.FetchOrder(ctx, symbol, id)
	if err != nil {
		metrics.Errors.WithLabelValues("auto_cancel").Inc()
		log.WithError(err).Warn("Cancel not confirmed, leaving it to reconciliation")
		return
	}
	if after.Status == model.OrderStatusFilled {
		log.Info("Order filled before cancel took effect, leaving it to reconciliation")
		return
	}

	changed, err := m.orders.MarkTerminal(ctx, id, model.OrderStatusCanceled)
	if err != nil {
		metrics.Errors.WithLabelValues("auto_cancel").Inc()
		log.WithError(err).Error("Failed to record cancel")
		return
	}
	if changed {
		metrics.OrdersCanceled.WithLabelValues(metrics.ReasonAutoCancel).Inc()
		log.Info("Order auto-canceled")
	}
}

// ClosePosition sends a reduce-only market order opposite to position. The
// position row is left open until reconciliation sees the holding flat.
func (m *Manager) ClosePosition(ctx context.Context, position *model.Position) error {
	if position == nil {
		return errors.New("close position: nil position")
	}

	side := connectors.SideFor(position.Side).Opposite()
	_, err := m.gateway.CreateMarketOrder(ctx, position.Symbol, side, position.Quantity, true)
	if err != nil {
		return &errs.OrderSubmissionError{Symbol: position.Symbol, Side: string(side), Err: err}
	}

	m.log.WithFields(logrus.Fields{
		"symbol":      position.Symbol,
		"position_id": position.ID,
		"side":        side,
		"qty":         position.Quantity.String(),
		"op":          "close_position",
	}).Info("Close order sent")
	return nil
}

// ActiveTasks returns the number of armed auto-cancel tasks.
func (m *Manager) ActiveTasks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Wait blocks until every armed auto-cancel task has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown stops arming new tasks, cancels the armed ones and waits for them.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancelTasks()
	m.wg.Wait()
}
