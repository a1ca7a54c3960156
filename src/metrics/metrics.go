// Package metrics holds the Prometheus collectors updated by the engine.
//
//   - executor_signals_total{direction}        signals produced by the generator
//   - executor_orders_placed_total{side}       limit orders accepted by the exchange
//   - executor_orders_filled_total{side}       orders the reconciler saw filled
//   - executor_orders_canceled_total{reason}   auto_cancel | exchange | expired
//   - executor_positions_closed_total          positions the reconciler saw flat
//   - executor_exit_requests_total{reason}     take_profit | stop_loss closes requested
//   - executor_errors_total{component}         per-item failures logged and skipped
//   - executor_active_cancel_tasks             armed auto-cancel timers
//
// Collectors are registered on the default registry in init() and served at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Signals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_signals_total",
			Help: "Signals produced by the generator",
		},
		[]string{"direction"},
	)

	OrdersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_orders_placed_total",
			Help: "Limit orders accepted by the exchange",
		},
		[]string{"side"},
	)

	OrdersFilled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_orders_filled_total",
			Help: "Orders observed filled during reconciliation",
		},
		[]string{"side"},
	)

	OrdersCanceled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_orders_canceled_total",
			Help: "Orders that reached canceled or expired, split by reason",
		},
		[]string{"reason"},
	)

	PositionsClosed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "executor_positions_closed_total",
			Help: "Positions observed flat on the exchange",
		},
	)

	ExitRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_exit_requests_total",
			Help: "Position closes requested by take-profit or stop-loss",
		},
		[]string{"reason"},
	)

	Errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_errors_total",
			Help: "Per-item errors that were logged and skipped",
		},
		[]string{"component"},
	)

	ActiveCancelTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "executor_active_cancel_tasks",
			Help: "Auto-cancel tasks currently armed",
		},
	)
)

// Cancel reasons.
const (
	ReasonAutoCancel = "auto_cancel"
	ReasonExchange   = "exchange"
	ReasonExpired    = "expired"
)

func init() {
	prometheus.MustRegister(
		Signals,
		OrdersPlaced,
		OrdersFilled,
		OrdersCanceled,
		PositionsClosed,
		ExitRequests,
		Errors,
		ActiveCancelTasks,
	)
}
