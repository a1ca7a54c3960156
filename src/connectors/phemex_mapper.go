package connectors

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"breakoutexecutor/src/model"
)

// parseDecimalSafe parses an exchange numeric field. Empty or malformed values
// are logged and default to zero instead of aborting the whole mapping.
func parseDecimalSafe(field, v string) decimal.Decimal {
	if v == "" {
		logger.WithField("field", field).Debug("Empty numeric field received, defaulting to 0")
		return decimal.Zero
	}

	d, err := decimal.NewFromString(v)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"field": field,
			"value": v,
		}).WithError(err).Error("Failed to parse decimal from exchange field; defaulting to 0")
		return decimal.Zero
	}
	return d
}

// rawDecimal accepts both quoted and bare JSON numbers.
func rawDecimal(raw json.RawMessage) (decimal.Decimal, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func phemexSide(side OrderSide) string {
	if side == SideSell {
		return "Sell"
	}
	return "Buy"
}

func fromPhemexSide(side string) OrderSide {
	if strings.EqualFold(side, "Sell") {
		return SideSell
	}
	return SideBuy
}

// mapPhemexStatus folds Phemex ordStatus into the local lifecycle. A canceled
// order that traded any quantity counts as filled so the holding gets tracked.
func mapPhemexStatus(ordStatus string, cumQty decimal.Decimal) model.OrderStatus {
	switch ordStatus {
	case "Created", "New", "PartiallyFilled", "Untriggered", "Triggered":
		return model.OrderStatusOpen
	case "Filled":
		return model.OrderStatusFilled
	case "Canceled":
		if cumQty.IsPositive() {
			return model.OrderStatusFilled
		}
		return model.OrderStatusCanceled
	case "Rejected":
		return model.OrderStatusCanceled
	case "Deactivated", "Expired":
		return model.OrderStatusExpired
	default:
		logger.WithField("ord_status", ordStatus).Warn("Unknown Phemex order status, treating as open")
		return model.OrderStatusOpen
	}
}

func mapPhemexOrder(symbol string, o *phemexOrder) *ExchangeOrder {
	filled := parseDecimalSafe("cumQtyRq", o.CumQtyRq)

	avg := decimal.Zero
	if o.AvgPriceRp != "" {
		avg = parseDecimalSafe("avgPriceRp", o.AvgPriceRp)
	} else if filled.IsPositive() && o.CumValueRv != "" {
		avg = parseDecimalSafe("cumValueRv", o.CumValueRv).Div(filled)
	}

	var price, amount decimal.Decimal
	if o.PriceRp != "" {
		price = parseDecimalSafe("priceRp", o.PriceRp)
	}
	if o.OrderQtyRq != "" {
		amount = parseDecimalSafe("orderQtyRq", o.OrderQtyRq)
	}

	return &ExchangeOrder{
		ID:            o.OrderID,
		ClientOrderID: o.ClOrdID,
		Symbol:        symbol,
		Side:          fromPhemexSide(o.Side),
		Price:         price,
		Amount:        amount,
		Filled:        filled,
		AvgPrice:      avg,
		Status:        mapPhemexStatus(o.OrdStatus, filled),
		RawStatus:     o.OrdStatus,
	}
}

// decodeOrderRows accepts {"rows":[...]}, a bare array or a single object.
func decodeOrderRows(data json.RawMessage) ([]phemexOrder, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var rows []phemexOrder
		err := json.Unmarshal(data, &rows)
		return rows, err
	}

	var wrapped struct {
		Rows []phemexOrder `json:"rows"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Rows != nil {
		return wrapped.Rows, nil
	}

	var single phemexOrder
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	if single.OrderID == "" {
		return nil, nil
	}
	return []phemexOrder{single}, nil
}

// parsePhemexKlines decodes kline rows laid out as
// [timestamp, interval, lastClose, open, high, low, close, volume, turnover].
func parsePhemexKlines(data json.RawMessage) ([]model.Candle, error) {
	var payload struct {
		Rows [][]json.RawMessage `json:"rows"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	candles := make([]model.Candle, 0, len(payload.Rows))
	for i, row := range payload.Rows {
		if len(row) < 8 {
			return nil, fmt.Errorf("kline row %d has %d fields", i, len(row))
		}

		var ts int64
		if err := json.Unmarshal(row[0], &ts); err != nil {
			return nil, fmt.Errorf("kline row %d timestamp: %w", i, err)
		}

		fields := make([]decimal.Decimal, 4)
		for j, idx := range []int{3, 4, 5, 6} {
			v, err := rawDecimal(row[idx])
			if err != nil {
				return nil, fmt.Errorf("kline row %d field %d: %w", i, idx, err)
			}
			fields[j] = v
		}
		volume, err := rawDecimal(row[7])
		if err != nil {
			return nil, fmt.Errorf("kline row %d volume: %w", i, err)
		}

		candles = append(candles, model.Candle{
			OpenTime: time.Unix(ts, 0).UTC(),
			Open:     fields[0],
			High:     fields[1],
			Low:      fields[2],
			Close:    fields[3],
			Volume:   volume,
		})
	}
	return candles, nil
}

func parsePhemexOrderBook(symbol string, result json.RawMessage) (*OrderBook, error) {
	type side [][]json.RawMessage
	var payload struct {
		Book *struct {
			Asks side `json:"asks"`
			Bids side `json:"bids"`
		} `json:"book"`
		OrderbookP *struct {
			Asks side `json:"asks"`
			Bids side `json:"bids"`
		} `json:"orderbook_p"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, err
	}

	var asks, bids side
	switch {
	case payload.OrderbookP != nil:
		asks, bids = payload.OrderbookP.Asks, payload.OrderbookP.Bids
	case payload.Book != nil:
		asks, bids = payload.Book.Asks, payload.Book.Bids
	default:
		return nil, errors.New("order book missing from response")
	}

	toLevels := func(rows side) ([]BookLevel, error) {
		levels := make([]BookLevel, 0, len(rows))
		for _, row := range rows {
			if len(row) < 2 {
				continue
			}
			price, err := rawDecimal(row[0])
			if err != nil {
				return nil, err
			}
			amount, err := rawDecimal(row[1])
			if err != nil {
				return nil, err
			}
			levels = append(levels, BookLevel{Price: price, Amount: amount})
		}
		return levels, nil
	}

	book := &OrderBook{Symbol: symbol}
	var err error
	if book.Asks, err = toLevels(asks); err != nil {
		return nil, err
	}
	if book.Bids, err = toLevels(bids); err != nil {
		return nil, err
	}
	book.Sort()
	return book, nil
}

// Sort orders bids descending and asks ascending by price.
func (b *OrderBook) Sort() {
	sort.SliceStable(b.Bids, func(i, j int) bool { return b.Bids[i].Price.GreaterThan(b.Bids[j].Price) })
	sort.SliceStable(b.Asks, func(i, j int) bool { return b.Asks[i].Price.LessThan(b.Asks[j].Price) })
}
