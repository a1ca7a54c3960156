// Package risk turns account balance and a risk budget into an order quantity.
package risk

import (
	"context"
	"errors"
	"math"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"breakoutexecutor/src/connectors"
	"breakoutexecutor/src/errs"
)

// DefaultAmountPrecision is the number of decimals quantities are truncated to.
const DefaultAmountPrecision int32 = 8

var hundred = decimal.NewFromInt(100)

// Quantity computes free × risk% × leverage / price, truncated to precision.
// It returns zero for any non-positive input and never a negative quantity.
func Quantity(free, riskPercent, leverage, price decimal.Decimal, precision int32) decimal.Decimal {
	if !free.IsPositive() || !riskPercent.IsPositive() || !leverage.IsPositive() || !price.IsPositive() {
		return decimal.Zero
	}

	maxMargin := free.Mul(riskPercent).Div(hundred)
	qty := maxMargin.Mul(leverage).Div(price).Truncate(precision)
	if qty.IsNegative() {
		return decimal.Zero
	}
	return qty
}

// Sizer reads the free quote balance from the gateway on every call.
type Sizer struct {
	gateway   connectors.Gateway
	precision int32
	log       *logrus.Entry
}

func NewSizer(gateway connectors.Gateway, precision int32, log *logrus.Entry) *Sizer {
	if precision < 0 {
		precision = DefaultAmountPrecision
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Sizer{
		gateway:   gateway,
		precision: precision,
		log:       log.WithField("component", "sizer"),
	}
}

// Size returns the quantity to trade for symbol at referencePrice. Degenerate
// inputs yield zero without touching the exchange; a balance failure is a
// *errs.GatewayError.
func (s *Sizer) Size(
	ctx context.Context,
	symbol string,
	riskPercent float64,
	leverage int,
	referencePrice decimal.Decimal,
) (decimal.Decimal, error) {
	if !referencePrice.IsPositive() || !(riskPercent > 0) || math.IsInf(riskPercent, 0) || leverage <= 0 {
		return decimal.Zero, nil
	}

	balance, err := s.gateway.FetchBalance(ctx)
	if err != nil {
		var gwErr *errs.GatewayError
		if !errors.As(err, &gwErr) {
			err = &errs.GatewayError{Op: "fetch_balance", Symbol: symbol, Err: err}
		}
		return decimal.Zero, err
	}

	qty := Quantity(
		balance.Free,
		decimal.NewFromFloat(riskPercent),
		decimal.NewFromInt(int64(leverage)),
		referencePrice,
		s.precision,
	)

	s.log.WithFields(logrus.Fields{
		"symbol":   symbol,
		"free":     balance.Free.String(),
		"risk_pct": riskPercent,
		"leverage": leverage,
		"price":    referencePrice.String(),
		"qty":      qty.String(),
	}).Debug("Sized order")

	return qty, nil
}
