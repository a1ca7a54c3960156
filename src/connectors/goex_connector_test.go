package connectors

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nntaoli-project/goex"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"breakoutexecutor/src/errs"
	"breakoutexecutor/src/model"
)

// fakeGoexAPI overrides the goex.API methods the gateway calls; anything else panics.
type fakeGoexAPI struct {
	goex.API

	depth     *goex.Depth
	account   *goex.Account
	ticker    *goex.Ticker
	order     *goex.Order
	cancelOK  bool
	cancelErr error

	limitBuys   []string
	marketSells []string
}

func (f *fakeGoexAPI) GetDepth(int, goex.CurrencyPair) (*goex.Depth, error) { return f.depth, nil }
func (f *fakeGoexAPI) GetAccount() (*goex.Account, error)                    { return f.account, nil }
func (f *fakeGoexAPI) GetTicker(goex.CurrencyPair) (*goex.Ticker, error)      { return f.ticker, nil }

func (f *fakeGoexAPI) GetOneOrder(string, goex.CurrencyPair) (*goex.Order, error) {
	return f.order, nil
}

func (f *fakeGoexAPI) CancelOrder(string, goex.CurrencyPair) (bool, error) {
	return f.cancelOK, f.cancelErr
}

func (f *fakeGoexAPI) LimitBuy(amount, price string, _ goex.CurrencyPair, _ ...goex.LimitOrderOptionalParameter) (*goex.Order, error) {
	f.limitBuys = append(f.limitBuys, amount+"@"+price)
	return &goex.Order{OrderID2: "bn-1", Status: goex.ORDER_UNFINISH, Side: goex.BUY}, nil
}

func (f *fakeGoexAPI) MarketSell(amount, price string, _ goex.CurrencyPair) (*goex.Order, error) {
	f.marketSells = append(f.marketSells, amount+"@"+price)
	return &goex.Order{OrderID2: "bn-2", Status: goex.ORDER_FINISH, Side: goex.SELL_MARKET}, nil
}

func TestGoexFetchOHLCVAgainstBinance(t *testing.T) {
	handler := http.NewServeMux()
	handler.HandleFunc("/api/v3/klines", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[
			[1499040000000, "0.01634790", "0.80000000", "0.01575800", "0.01577100", "148976.11427815", 1499644799999, "2434.19055334", 308, "1756.87402397", "28.46694368", "17928899.62484339"]
		]`))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	gw := NewBinanceGateway(Config{BaseURL: server.URL, QuoteCurrency: "USDT", RequestTimeout: 5 * time.Second})
	candles, err := gw.FetchOHLCV(context.Background(), "BTC/USDT", Timeframe1m, 1)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, int64(1499040000), candles[0].OpenTime.Unix())
	assert.Equal(t, "0.0163479", candles[0].Open.String())
	assert.Equal(t, "0.8", candles[0].High.String())
}

func TestGoexOrderBookIsSortedBestFirst(t *testing.T) {
	api := &fakeGoexAPI{depth: &goex.Depth{
		AskList: goex.DepthRecords{{Price: 101, Amount: 1}, {Price: 100.5, Amount: 2}},
		BidList: goex.DepthRecords{{Price: 99, Amount: 1}, {Price: 99.5, Amount: 3}},
	}}
	gw := NewGoexGateway(api, "fake", "USDT")

	book, err := gw.FetchOrderBook(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	bid, _ := book.BestBid()
	ask, _ := book.BestAsk()
	assert.Equal(t, "99.5", bid.Price.String())
	assert.Equal(t, "100.5", ask.Price.String())
}

func TestGoexBalanceAndPositionSize(t *testing.T) {
	api := &fakeGoexAPI{account: &goex.Account{SubAccounts: map[goex.Currency]goex.SubAccount{
		{Symbol: "USDT"}: {Amount: 1000, ForzenAmount: 50},
		{Symbol: "BTC"}:  {Amount: 0.01, ForzenAmount: 0},
	}}}
	gw := NewGoexGateway(api, "fake", "usdt")

	balance, err := gw.FetchBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1000", balance.Free.String())
	assert.Equal(t, "1050", balance.Total.String())

	size, err := gw.FetchPositionSize(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, "0.01", size.String())

	size, err = gw.FetchPositionSize(context.Background(), "ETH/USDT")
	require.NoError(t, err)
	assert.True(t, size.IsZero())
}

func TestGoexOrders(t *testing.T) {
	api := &fakeGoexAPI{ticker: &goex.Ticker{Last: 50000}}
	gw := NewGoexGateway(api, "fake", "USDT")

	order, err := gw.CreateLimitOrder(context.Background(), "BTC/USDT", SideBuy,
		decimal.RequireFromString("0.01"), decimal.RequireFromString("49999.5"), "cid-1")
	require.NoError(t, err)
	assert.Equal(t, "bn-1", order.ID)
	assert.Equal(t, "cid-1", order.ClientOrderID)
	assert.Equal(t, model.OrderStatusOpen, order.Status)
	assert.Equal(t, []string{"0.01@49999.5"}, api.limitBuys)

	closed, err := gw.CreateMarketOrder(context.Background(), "BTC/USDT", SideSell, decimal.RequireFromString("0.01"), true)
	require.NoError(t, err)
	assert.Equal(t, SideSell, closed.Side)
	assert.Equal(t, []string{"0.01@50000"}, api.marketSells)
}

func TestGoexCancelOrder(t *testing.T) {
	api := &fakeGoexAPI{cancelOK: true}
	gw := NewGoexGateway(api, "fake", "USDT")
	require.NoError(t, gw.CancelOrder(context.Background(), "BTC/USDT", "bn-1"))

	// refused because the order already filled
	api.cancelOK = false
	api.cancelErr = errors.New("unknown order")
	api.order = &goex.Order{OrderID2: "bn-1", Status: goex.ORDER_FINISH, DealAmount: 0.01}
	require.NoError(t, gw.CancelOrder(context.Background(), "BTC/USDT", "bn-1"))

	// refused while still live
	api.order = &goex.Order{OrderID2: "bn-1", Status: goex.ORDER_UNFINISH}
	err := gw.CancelOrder(context.Background(), "BTC/USDT", "bn-1")
	var gwErr *errs.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "cancel_order", gwErr.Op)
}

func TestGoexIsLongOnly(t *testing.T) {
	assert.True(t, IsLongOnly(NewGoexGateway(&fakeGoexAPI{}, "fake", "USDT")))
	assert.False(t, IsLongOnly(NewPhemexClient(Config{BaseURL: "http://127.0.0.1:1"})))
}

func TestGoexRespectsCanceledContext(t *testing.T) {
	gw := NewGoexGateway(&fakeGoexAPI{}, "fake", "USDT")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gw.FetchTicker(ctx, "BTC/USDT")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMapGoexStatus(t *testing.T) {
	assert.Equal(t, model.OrderStatusOpen, mapGoexStatus(goex.ORDER_UNFINISH, decimal.Zero))
	assert.Equal(t, model.OrderStatusOpen, mapGoexStatus(goex.ORDER_PART_FINISH, decimal.NewFromInt(1)))
	assert.Equal(t, model.OrderStatusFilled, mapGoexStatus(goex.ORDER_FINISH, decimal.NewFromInt(1)))
	assert.Equal(t, model.OrderStatusCanceled, mapGoexStatus(goex.ORDER_CANCEL, decimal.Zero))
	assert.Equal(t, model.OrderStatusFilled, mapGoexStatus(goex.ORDER_CANCEL, decimal.NewFromInt(1)))
	assert.Equal(t, model.OrderStatusCanceled, mapGoexStatus(goex.ORDER_REJECT, decimal.Zero))
}
