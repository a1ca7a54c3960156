// Package reconcile aligns local orders and positions with exchange state.
package reconcile

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"breakoutexecutor/src/connectors"
	"breakoutexecutor/src/errs"
	"breakoutexecutor/src/metrics"
	"breakoutexecutor/src/model"
	"breakoutexecutor/src/repository"
	"breakoutexecutor/src/utils"
)

const (
	DefaultInterval = 10 * time.Second
	DefaultBackoff  = 10 * time.Second
)

// Exit reasons.
const (
	ExitTakeProfit = "take_profit"
	ExitStopLoss   = "stop_loss"
)

// PositionCloser sends the order that flattens a position.
type PositionCloser interface {
	ClosePosition(ctx context.Context, position *model.Position) error
}

// Report counts what one sweep did.
type Report struct {
	OrdersChecked    int
	Filled           int
	Canceled         int
	Expired          int
	PositionsChecked int
	PositionsClosed  int
	ExitsRequested   int
	Errors           int
}

type Config struct {
	Interval time.Duration
	Backoff  time.Duration
	Log      *logrus.Entry
}

type Reconciler struct {
	gateway   connectors.Gateway
	orders    *repository.OrderRepository
	positions *repository.PositionRepository
	pairs     *repository.PairRepository
	closer    PositionCloser

	interval time.Duration
	backoff  time.Duration
	log      *logrus.Entry
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time

	mu           sync.Mutex
	pendingClose map[uint]struct{}
	lastSweep    time.Time
}

func New(
	gateway connectors.Gateway,
	orders *repository.OrderRepository,
	positions *repository.PositionRepository,
	pairs *repository.PairRepository,
	closer PositionCloser,
	config Config,
) *Reconciler {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Backoff <= 0 {
		config.Backoff = DefaultBackoff
	}
	log := config.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Reconciler{
		gateway:      gateway,
		orders:       orders,
		positions:    positions,
		pairs:        pairs,
		closer:       closer,
		interval:     config.Interval,
		backoff:      config.Backoff,
		log:          log.WithField("component", "reconcile"),
		sleep:        utils.Sleep,
		now:          time.Now,
		pendingClose: map[uint]struct{}{},
	}
}

// Run sweeps every interval until ctx is done. A failed or panicking sweep is
// logged and followed by the backoff pause.
func (r *Reconciler) Run(ctx context.Context) error {
	r.log.WithField("interval", r.interval).Info("Reconciliation loop started")
	for {
		wait := r.interval
		if _, err := r.safeSweep(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			metrics.Errors.WithLabelValues("reconcile").Inc()
			r.log.WithError(err).Error("Reconciliation sweep failed")
			wait = r.backoff
		}
		if err := r.sleep(ctx, wait); err != nil {
			r.log.Info("Reconciliation loop stopped")
			return nil
		}
	}
}

func (r *Reconciler) safeSweep(ctx context.Context) (report Report, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in sweep: %v", p)
		}
	}()
	return r.Sweep(ctx)
}

// Sweep runs one pass over open orders, then open positions. Per-item failures
// are logged and counted; the returned error is reserved for failures that
// stop the whole pass.
func (r *Reconciler) Sweep(ctx context.Context) (Report, error) {
	var report Report

	if err := r.sweepOrders(ctx, &report); err != nil {
		return report, err
	}
	if err := r.sweepPositions(ctx, &report); err != nil {
		return report, err
	}

	r.mu.Lock()
	r.lastSweep = r.now().UTC()
	r.mu.Unlock()

	if report.Filled+report.Canceled+report.Expired+report.PositionsClosed+report.ExitsRequested+report.Errors > 0 {
		r.log.WithFields(logrus.Fields{
			"orders":    report.OrdersChecked,
			"filled":    report.Filled,
			"canceled":  report.Canceled,
			"expired":   report.Expired,
			"positions": report.PositionsChecked,
			"closed":    report.PositionsClosed,
			"exits":     report.ExitsRequested,
			"errors":    report.Errors,
		}).Info("Sweep finished")
	}
	return report, nil
}

// LastSweep returns when the last complete sweep finished.
func (r *Reconciler) LastSweep() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSweep
}

func (r *Reconciler) itemError(report *Report, e *errs.ReconciliationError) {
	report.Errors++
	metrics.Errors.WithLabelValues("reconcile").Inc()
	r.log.WithFields(logrus.Fields{
		"op":       e.Op,
		"order_id": e.OrderID,
		"symbol":   e.Symbol,
	}).WithError(e).Error("Reconciliation item failed")
}

func (r *Reconciler) sweepOrders(ctx context.Context, report *Report) error {
	open, err := r.orders.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("list open orders: %w", err)
	}

	for i := range open {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		order := open[i]
		report.OrdersChecked++

		live, err := r.gateway.FetchOrder(ctx, order.Symbol, order.ID)
		if err != nil {
			r.itemError(report, &errs.ReconciliationError{Op: "fetch_order", OrderID: order.ID, Symbol: order.Symbol, Err: err})
			continue
		}

		log := r.log.WithFields(logrus.Fields{"order_id": order.ID, "symbol": order.Symbol})

		switch live.Status {
		case model.OrderStatusFilled:
			pos, changed, err := r.orders.MarkFilled(ctx, order.ID, live.AvgPrice, live.Filled)
			if err != nil {
				r.itemError(report, &errs.ReconciliationError{Op: "mark_filled", OrderID: order.ID, Symbol: order.Symbol, Err: err})
				continue
			}
			if changed {
				report.Filled++
				metrics.OrdersFilled.WithLabelValues(string(connectors.SideFor(order.Side))).Inc()
				log.WithFields(logrus.Fields{
					"position_id": pos.ID,
					"entry_price": pos.EntryPrice.String(),
					"quantity":    pos.Quantity.String(),
				}).Info("Order filled, position open")
			}

		case model.OrderStatusCanceled, model.OrderStatusExpired:
			changed, err := r.orders.MarkTerminal(ctx, order.ID, live.Status)
			if err != nil {
				r.itemError(report, &errs.ReconciliationError{Op: "mark_terminal", OrderID: order.ID, Symbol: order.Symbol, Err: err})
				continue
			}
			if !changed {
				continue
			}
			if live.Status == model.OrderStatusExpired {
				report.Expired++
				metrics.OrdersCanceled.WithLabelValues(metrics.ReasonExpired).Inc()
			} else {
				report.Canceled++
				metrics.OrdersCanceled.WithLabelValues(metrics.ReasonExchange).Inc()
			}
			log.WithField("status", live.Status).Info("Order closed on exchange")
		}
	}
	return nil
}

func (r *Reconciler) sweepPositions(ctx context.Context, report *Report) error {
	open, err := r.positions.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("list open positions: %w", err)
	}

	r.prunePending(open)

	for i := range open {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		pos := open[i]
		report.PositionsChecked++

		size, err := r.gateway.FetchPositionSize(ctx, pos.Symbol)
		if err != nil {
			r.itemError(report, &errs.ReconciliationError{Op: "fetch_position_size", OrderID: pos.OrderID, Symbol: pos.Symbol, Err: err})
			continue
		}

		if size.IsZero() {
			changed, err := r.positions.Close(ctx, pos.ID, r.now().UTC())
			if err != nil {
				r.itemError(report, &errs.ReconciliationError{Op: "close_position", OrderID: pos.OrderID, Symbol: pos.Symbol, Err: err})
				continue
			}
			r.clearPending(pos.ID)
			if changed {
				report.PositionsClosed++
				metrics.PositionsClosed.Inc()
				r.log.WithFields(logrus.Fields{"position_id": pos.ID, "symbol": pos.Symbol}).Info("Position closed on exchange")
			}
			continue
		}

		if err := r.checkExit(ctx, &pos, report); err != nil {
			r.itemError(report, &errs.ReconciliationError{Op: "exit", OrderID: pos.OrderID, Symbol: pos.Symbol, Err: err})
		}
	}
	return nil
}

func (r *Reconciler) checkExit(ctx context.Context, pos *model.Position, report *Report) error {
	if r.closer == nil || r.isPending(pos.ID) {
		return nil
	}

	pair, err := r.pairs.GetPairConfig(ctx, pos.Symbol)
	if err != nil {
		return err
	}
	if pair == nil || (pair.TakeProfitPct <= 0 && pair.StopLossPct <= 0) {
		return nil
	}

	ticker, err := r.gateway.FetchTicker(ctx, pos.Symbol)
	if err != nil {
		return err
	}

	reason := ExitReason(pos.Side, pos.EntryPrice, ticker.Last, pair.TakeProfitPct, pair.StopLossPct)
	if reason == "" {
		return nil
	}

	if !r.markPending(pos.ID) {
		return nil
	}
	sent := false
	defer func() {
		if !sent {
			r.clearPending(pos.ID)
		}
	}()
	if err := r.closer.ClosePosition(ctx, pos); err != nil {
		return err
	}
	sent = true

	report.ExitsRequested++
	metrics.ExitRequests.WithLabelValues(reason).Inc()
	r.log.WithFields(logrus.Fields{
		"position_id": pos.ID,
		"symbol":      pos.Symbol,
		"reason":      reason,
		"entry":       pos.EntryPrice.String(),
		"last":        ticker.Last.String(),
	}).Info("Exit requested")
	return nil
}

// ExitReason returns take_profit, stop_loss or "" for a holding in side entered
// at entry and priced at last. A non-positive or non-finite percent disables
// that bound.
func ExitReason(side model.Direction, entry, last decimal.Decimal, tpPct, slPct float64) string {
	if !entry.IsPositive() || !last.IsPositive() {
		return ""
	}
	if math.IsNaN(tpPct) || math.IsInf(tpPct, 0) {
		tpPct = 0
	}
	if math.IsNaN(slPct) || math.IsInf(slPct, 0) {
		slPct = 0
	}

	one := decimal.NewFromInt(1)
	hundred := decimal.NewFromInt(100)
	tp := decimal.NewFromFloat(tpPct).Div(hundred)
	sl := decimal.NewFromFloat(slPct).Div(hundred)

	if side == model.DirectionShort {
		if tpPct > 0 && last.LessThanOrEqual(entry.Mul(one.Sub(tp))) {
			return ExitTakeProfit
		}
		if slPct > 0 && last.GreaterThanOrEqual(entry.Mul(one.Add(sl))) {
			return ExitStopLoss
		}
		return ""
	}

	if tpPct > 0 && last.GreaterThanOrEqual(entry.Mul(one.Add(tp))) {
		return ExitTakeProfit
	}
	if slPct > 0 && last.LessThanOrEqual(entry.Mul(one.Sub(sl))) {
		return ExitStopLoss
	}
	return ""
}

func (r *Reconciler) isPending(id uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pendingClose[id]
	return ok
}

func (r *Reconciler) markPending(id uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pendingClose[id]; ok {
		return false
	}
	r.pendingClose[id] = struct{}{}
	return true
}

func (r *Reconciler) clearPending(id uint) {
	r.mu.Lock()
	delete(r.pendingClose, id)
	r.mu.Unlock()
}

// PendingCloses returns how many positions have a close order in flight.
func (r *Reconciler) PendingCloses() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pendingClose)
}

// prunePending forgets positions that are no longer open.
func (r *Reconciler) prunePending(open []model.Position) {
	keep := make(map[uint]struct{}, len(open))
	for _, p := range open {
		keep[p.ID] = struct{}{}
	}
	r.mu.Lock()
	for id := range r.pendingClose {
		if _, ok := keep[id]; !ok {
			delete(r.pendingClose, id)
		}
	}
	r.mu.Unlock()
}
