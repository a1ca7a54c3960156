package connectors

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"breakoutexecutor/src/model"
)

var goexPeriods = map[string]goex.KlinePeriod{
	Timeframe1m:  goex.KLINE_PERIOD_1MIN,
	Timeframe5m:  goex.KLINE_PERIOD_5MIN,
	Timeframe15m: goex.KLINE_PERIOD_15MIN,
	Timeframe1h:  goex.KLINE_PERIOD_1H,
}

// GoexGateway adapts any goex spot API to Gateway. Reduce-only has no spot
// meaning, so a close is a plain market order and the "position" is the base
// currency balance.
type GoexGateway struct {
	api   goex.API
	name  string
	quote string
}

// NewBinanceGateway builds a goex Binance client from config.
func NewBinanceGateway(config Config) *GoexGateway {
	endpoint := config.BaseURL
	if endpoint == "" {
		endpoint = binance.GLOBAL_API_BASE_URL
	}

	apiConfig := &goex.APIConfig{
		HttpClient:   &http.Client{Timeout: config.RequestTimeout},
		Endpoint:     endpoint,
		ApiKey:       config.APIKey,
		ApiSecretKey: config.APISecret,
	}
	return NewGoexGateway(binance.NewWithConfig(apiConfig), ExchangeBinance, config.QuoteCurrency)
}

func NewGoexGateway(api goex.API, name, quote string) *GoexGateway {
	if quote == "" {
		quote = "USDT"
	}
	return &GoexGateway{api: api, name: name, quote: strings.ToUpper(quote)}
}

func (g *GoexGateway) Name() string { return g.name }

// LongOnly is true: the goex gateway trades spot, so a short entry would sell
// base currency the account does not hold.
func (g *GoexGateway) LongOnly() bool { return true }

// goex calls take no context; refuse to start one once ctx is done.
func (g *GoexGateway) begin(ctx context.Context, op, symbol string) (goex.CurrencyPair, error) {
	if err := ctx.Err(); err != nil {
		return goex.CurrencyPair{}, gatewayErr(op, symbol, err)
	}
	if symbol == "" {
		return goex.CurrencyPair{}, nil
	}
	pair, err := GoexPair(symbol)
	if err != nil {
		return goex.CurrencyPair{}, gatewayErr(op, symbol, err)
	}
	return pair, nil
}

func (g *GoexGateway) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	const op = "fetch_ohlcv"

	pair, err := g.begin(ctx, op, symbol)
	if err != nil {
		return nil, err
	}
	period, ok := goexPeriods[timeframe]
	if !ok {
		return nil, gatewayErr(op, symbol, fmt.Errorf("unsupported timeframe %q", timeframe))
	}

	klines, err := g.api.GetKlineRecords(pair, period, limit)
	if err != nil {
		return nil, gatewayErr(op, symbol, err)
	}

	candles := make([]model.Candle, 0, len(klines))
	for _, k := range klines {
		candles = append(candles, model.Candle{
			OpenTime: timeFromSeconds(k.Timestamp),
			Open:     decimal.NewFromFloat(k.Open),
			High:     decimal.NewFromFloat(k.High),
			Low:      decimal.NewFromFloat(k.Low),
			Close:    decimal.NewFromFloat(k.Close),
			Volume:   decimal.NewFromFloat(k.Vol),
		})
	}
	return candles, nil
}

func (g *GoexGateway) FetchTicker(ctx context.Context, symbol string) (*Ticker, error) {
	const op = "fetch_ticker"

	pair, err := g.begin(ctx, op, symbol)
	if err != nil {
		return nil, err
	}

	tk, err := g.api.GetTicker(pair)
	if err != nil {
		return nil, gatewayErr(op, symbol, err)
	}
	return &Ticker{Symbol: symbol, Last: decimal.NewFromFloat(tk.Last)}, nil
}

func (g *GoexGateway) FetchOrderBook(ctx context.Context, symbol string) (*OrderBook, error) {
	const op = "fetch_order_book"

	pair, err := g.begin(ctx, op, symbol)
	if err != nil {
		return nil, err
	}

	depth, err := g.api.GetDepth(20, pair)
	if err != nil {
		return nil, gatewayErr(op, symbol, err)
	}

	book := &OrderBook{Symbol: symbol}
	for _, r := range depth.AskList {
		book.Asks = append(book.Asks, BookLevel{Price: decimal.NewFromFloat(r.Price), Amount: decimal.NewFromFloat(r.Amount)})
	}
	for _, r := range depth.BidList {
		book.Bids = append(book.Bids, BookLevel{Price: decimal.NewFromFloat(r.Price), Amount: decimal.NewFromFloat(r.Amount)})
	}
	book.Sort()
	return book, nil
}

func (g *GoexGateway) subAccount(currency string) (goex.SubAccount, bool, error) {
	acct, err := g.api.GetAccount()
	if err != nil {
		return goex.SubAccount{}, false, err
	}
	for c, sub := range acct.SubAccounts {
		if strings.EqualFold(c.Symbol, currency) {
			return sub, true, nil
		}
	}
	return goex.SubAccount{}, false, nil
}

func (g *GoexGateway) FetchBalance(ctx context.Context) (*Balance, error) {
	const op = "fetch_balance"

	if _, err := g.begin(ctx, op, ""); err != nil {
		return nil, err
	}

	sub, _, err := g.subAccount(g.quote)
	if err != nil {
		return nil, gatewayErr(op, "", err)
	}

	free := decimal.NewFromFloat(sub.Amount)
	used := decimal.NewFromFloat(sub.ForzenAmount)
	return &Balance{Currency: g.quote, Free: free, Used: used, Total: free.Add(used)}, nil
}

func (g *GoexGateway) FetchPositionSize(ctx context.Context, symbol string) (decimal.Decimal, error) {
	const op = "fetch_position_size"

	if _, err := g.begin(ctx, op, symbol); err != nil {
		return decimal.Zero, err
	}
	base, _, _ := SplitSymbol(symbol)

	sub, _, err := g.subAccount(base)
	if err != nil {
		return decimal.Zero, gatewayErr(op, symbol, err)
	}
	return decimal.NewFromFloat(sub.Amount + sub.ForzenAmount), nil
}

func (g *GoexGateway) CreateLimitOrder(
	ctx context.Context,
	symbol string,
	side OrderSide,
	qty, price decimal.Decimal,
	clientOrderID string,
) (*ExchangeOrder, error) {
	const op = "create_limit_order"

	pair, err := g.begin(ctx, op, symbol)
	if err != nil {
		return nil, err
	}

	var placed *goex.Order
	if side == SideSell {
		placed, err = g.api.LimitSell(qty.String(), price.String(), pair)
	} else {
		placed, err = g.api.LimitBuy(qty.String(), price.String(), pair)
	}
	if err != nil {
		return nil, gatewayErr(op, symbol, err)
	}

	order := mapGoexOrder(symbol, placed)
	order.ClientOrderID = clientOrderID
	if order.Side == "" {
		order.Side = side
	}
	if order.Price.IsZero() {
		order.Price = price
	}
	if order.Amount.IsZero() {
		order.Amount = qty
	}
	return order, nil
}

func (g *GoexGateway) CreateMarketOrder(
	ctx context.Context,
	symbol string,
	side OrderSide,
	qty decimal.Decimal,
	reduceOnly bool,
) (*ExchangeOrder, error) {
	const op = "create_market_order"

	pair, err := g.begin(ctx, op, symbol)
	if err != nil {
		return nil, err
	}

	// market orders still carry a reference price in goex
	tk, err := g.api.GetTicker(pair)
	if err != nil {
		return nil, gatewayErr(op, symbol, err)
	}
	last := decimal.NewFromFloat(tk.Last).String()

	logger.WithFields(map[string]interface{}{
		"exchange":    g.name,
		"symbol":      symbol,
		"side":        side,
		"qty":         qty.String(),
		"reduce_only": reduceOnly,
	}).Info("Sending market order")

	var placed *goex.Order
	if side == SideSell {
		placed, err = g.api.MarketSell(qty.String(), last, pair)
	} else {
		placed, err = g.api.MarketBuy(qty.String(), last, pair)
	}
	if err != nil {
		return nil, gatewayErr(op, symbol, err)
	}

	order := mapGoexOrder(symbol, placed)
	if order.Side == "" {
		order.Side = side
	}
	return order, nil
}

func (g *GoexGateway) FetchOrder(ctx context.Context, symbol, id string) (*ExchangeOrder, error) {
	const op = "fetch_order"

	pair, err := g.begin(ctx, op, symbol)
	if err != nil {
		return nil, err
	}

	o, err := g.api.GetOneOrder(id, pair)
	if err != nil {
		return nil, gatewayErr(op, symbol, err)
	}
	order := mapGoexOrder(symbol, o)
	if order.ID == "" {
		order.ID = id
	}
	return order, nil
}

// CancelOrder re-reads the order when the exchange refuses the cancel; an order
// that already left the book is not an error.
func (g *GoexGateway) CancelOrder(ctx context.Context, symbol, id string) error {
	const op = "cancel_order"

	pair, err := g.begin(ctx, op, symbol)
	if err != nil {
		return err
	}

	ok, cancelErr := g.api.CancelOrder(id, pair)
	if cancelErr == nil && ok {
		return nil
	}

	o, err := g.api.GetOneOrder(id, pair)
	if err == nil && o != nil && mapGoexStatus(o.Status, decimal.NewFromFloat(o.DealAmount)).Terminal() {
		return nil
	}

	if cancelErr == nil {
		cancelErr = fmt.Errorf("exchange refused cancel of %s", id)
	}
	return gatewayErr(op, symbol, cancelErr)
}

// timeFromSeconds also accepts millisecond timestamps.
func timeFromSeconds(ts int64) time.Time {
	if ts > 1e12 {
		return time.UnixMilli(ts).UTC()
	}
	return time.Unix(ts, 0).UTC()
}

func mapGoexStatus(status goex.TradeStatus, dealt decimal.Decimal) model.OrderStatus {
	switch status {
	case goex.ORDER_FINISH:
		return model.OrderStatusFilled
	case goex.ORDER_CANCEL:
		if dealt.IsPositive() {
			return model.OrderStatusFilled
		}
		return model.OrderStatusCanceled
	case goex.ORDER_REJECT, goex.ORDER_FAIL:
		return model.OrderStatusCanceled
	default:
		return model.OrderStatusOpen
	}
}

func mapGoexOrder(symbol string, o *goex.Order) *ExchangeOrder {
	if o == nil {
		return &ExchangeOrder{Symbol: symbol, Status: model.OrderStatusOpen}
	}

	id := o.OrderID2
	if id == "" && fmt.Sprint(o.OrderID) != "0" {
		id = fmt.Sprint(o.OrderID)
	}

	var side OrderSide
	switch o.Side {
	case goex.BUY, goex.BUY_MARKET:
		side = SideBuy
	case goex.SELL, goex.SELL_MARKET:
		side = SideSell
	}

	dealt := decimal.NewFromFloat(o.DealAmount)
	return &ExchangeOrder{
		ID:            id,
		ClientOrderID: o.Cid,
		Symbol:        symbol,
		Side:          side,
		Price:         decimal.NewFromFloat(o.Price),
		Amount:        decimal.NewFromFloat(o.Amount),
		Filled:        dealt,
		AvgPrice:      decimal.NewFromFloat(o.AvgPrice),
		Status:        mapGoexStatus(o.Status, dealt),
		RawStatus:     o.Status.String(),
	}
}

var _ Gateway = (*GoexGateway)(nil)
