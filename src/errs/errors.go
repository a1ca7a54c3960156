// Package errs holds the error taxonomy shared by the engine components.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrDataUnavailable is returned when there is not enough candle history to evaluate a window.
	ErrDataUnavailable = errors.New("insufficient candle history")

	// ErrOrderAlreadyOpen is returned when a symbol already has an open or in-flight order.
	ErrOrderAlreadyOpen = errors.New("an open order already exists for symbol")

	// ErrZeroQuantity is returned when sizing produced nothing to trade.
	ErrZeroQuantity = errors.New("computed order quantity is zero")

	// ErrShortUnsupported is returned when a short entry is requested on a long-only gateway.
	ErrShortUnsupported = errors.New("gateway cannot open short positions")

	// ErrPositionConflict is returned when a fill is on the opposite side of an open position.
	ErrPositionConflict = errors.New("fill conflicts with open position side")
)

// GatewayError wraps a network or exchange failure.
type GatewayError struct {
	Op     string
	Symbol string
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("gateway %s %s: %v", e.Op, e.Symbol, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// ConfigurationError is returned when a symbol has no usable pair settings.
type ConfigurationError struct {
	Symbol string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("no pair configuration for %s", e.Symbol)
	}
	return fmt.Sprintf("invalid pair configuration for %s: %s", e.Symbol, e.Reason)
}

// PricingError is returned when no valid reference price can be obtained.
type PricingError struct {
	Symbol string
	Reason string
	Err    error
}

func (e *PricingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pricing %s: %s: %v", e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("pricing %s: %s", e.Symbol, e.Reason)
}

func (e *PricingError) Unwrap() error { return e.Err }

// OrderSubmissionError is returned when the exchange rejected or failed an order submission.
type OrderSubmissionError struct {
	Symbol string
	Side   string
	Err    error
}

func (e *OrderSubmissionError) Error() string {
	return fmt.Sprintf("submit %s order for %s: %v", e.Side, e.Symbol, e.Err)
}

func (e *OrderSubmissionError) Unwrap() error { return e.Err }

// ReconciliationError is a per-item failure during a reconciliation sweep.
type ReconciliationError struct {
	Op      string
	OrderID string
	Symbol  string
	Err     error
}

func (e *ReconciliationError) Error() string {
	if e.OrderID != "" {
		return fmt.Sprintf("reconcile %s order %s (%s): %v", e.Op, e.OrderID, e.Symbol, e.Err)
	}
	return fmt.Sprintf("reconcile %s %s: %v", e.Op, e.Symbol, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }
