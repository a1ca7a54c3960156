// REST CLIENT FOR PHEMEX USDT-M PERPETUALS
// RESTY ONLY + INTERNAL RETRY ON READS
package connectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"breakoutexecutor/src/errs"
	"breakoutexecutor/src/model"
)

// -----------------------------
// CONFIG
// -----------------------------
const (
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second

	defaultPhemexBaseURL = "https://testnet-api.phemex.com"

	posModeHedged = "Hedged"
)

// kline/last only accepts these limits
var phemexKlineLimits = []int{5, 10, 50, 100, 500, 1000}

var phemexResolutions = map[string]int{
	Timeframe1m:  60,
	Timeframe5m:  300,
	Timeframe15m: 900,
	Timeframe1h:  3600,
}

// -----------------------------
// API RESPONSE WRAPPERS
// -----------------------------
type APIResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type mdResponse struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Result json.RawMessage `json:"result"`
}

type accountPositions struct {
	Account struct {
		Currency           string `json:"currency"`
		AccountBalanceRv   string `json:"accountBalanceRv"`
		TotalUsedBalanceRv string `json:"totalUsedBalanceRv"`
	} `json:"account"`

	Positions []struct {
		Symbol          string `json:"symbol"`
		Side            string `json:"side"`
		PosSide         string `json:"posSide"`
		SizeRq          string `json:"sizeRq"`
		AvgEntryPriceRp string `json:"avgEntryPriceRp"`
	} `json:"positions"`
}

type phemexOrder struct {
	OrderID     string `json:"orderID"`
	ClOrdID     string `json:"clOrdID"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrdStatus   string `json:"ordStatus"`
	PriceRp     string `json:"priceRp"`
	OrderQtyRq  string `json:"orderQtyRq"`
	CumQtyRq    string `json:"cumQtyRq"`
	CumValueRv  string `json:"cumValueRv"`
	AvgPriceRp  string `json:"avgPriceRp"`
	ReduceOnly  bool   `json:"reduceOnly"`
	TimeInForce string `json:"timeInForce"`
}

// -----------------------------
// AUTHENTICATED CLIENT
// -----------------------------

// Client is the Phemex implementation of Gateway.
type Client struct {
	apiKey    string
	apiSecret string
	baseURL   string
	quote     string
	posMode   string
	http      *resty.Client
	now       func() time.Time
}

// isRetryableResp retries transport errors, 5xx, 429 and 408, but never a
// non-GET request: resubmitting an order could duplicate it.
func isRetryableResp(r *resty.Response, err error) bool {
	if r != nil && r.Request != nil && r.Request.Method != "" && r.Request.Method != http.MethodGet {
		return false
	}

	if err != nil {
		return true
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == http.StatusTooManyRequests {
		return true
	}
	if code == http.StatusRequestTimeout {
		return true
	}
	return false
}

func NewPhemexClient(config Config) *Client {
	retryCount := defaultRetryAttempts - 1

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultPhemexBaseURL
		logger.WithField("base_url", baseURL).Warn("No base URL provided, using default")
	}

	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return newClient(config, baseURL, httpClient)
}

func newClient(config Config, baseURL string, httpClient *resty.Client) *Client {
	quote := strings.ToUpper(config.QuoteCurrency)
	if quote == "" {
		quote = "USDT"
	}
	return &Client{
		apiKey:    config.APIKey,
		apiSecret: config.APISecret,
		baseURL:   baseURL,
		quote:     quote,
		posMode:   config.PhemexPosMode,
		http:      httpClient,
		now:       time.Now,
	}
}

func (c *Client) Name() string { return ExchangePhemex }

func signRequest(path, query, body string, expiry int64, secret string) string {
	base := path
	if query != "" {
		base += query
	}
	base += fmt.Sprintf("%d", expiry)
	if body != "" {
		base += body
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) doRequest(ctx context.Context, method, path, query string, body []byte) (*APIResponse, error) {
	expiry := c.now().Add(1 * time.Minute).Unix()

	sig := signRequest(path, query, string(body), expiry, c.apiSecret)

	req := c.http.R().
		SetContext(ctx).
		SetHeader("x-phemex-access-token", c.apiKey).
		SetHeader("x-phemex-request-expiry", fmt.Sprintf("%d", expiry)).
		SetHeader("x-phemex-request-signature", sig)

	if query != "" {
		req = req.SetQueryString(query)
	}
	if body != nil {
		req = req.SetBody(body).SetHeader("Content-Type", "application/json")
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, err
	}

	raw := resp.Body()

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(raw))
	}

	var apiResp APIResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return nil, err
	}

	if apiResp.Code != 0 {
		return &apiResp, &APIError{Code: apiResp.Code, Msg: apiResp.Msg}
	}

	return &apiResp, nil
}

func (c *Client) doPublic(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(params).
		Get(path)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var md mdResponse
	if err := json.Unmarshal(resp.Body(), &md); err != nil {
		return nil, err
	}
	if md.Error != nil {
		return nil, &APIError{Code: md.Error.Code, Msg: md.Error.Message}
	}

	return md.Result, nil
}

func gatewayErr(op, symbol string, err error) error {
	return &errs.GatewayError{Op: op, Symbol: symbol, Err: err}
}

// -----------------------------
// MARKET DATA
// -----------------------------

func (c *Client) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	const op = "fetch_ohlcv"

	resolution, ok := phemexResolutions[timeframe]
	if !ok {
		return nil, gatewayErr(op, symbol, fmt.Errorf("unsupported timeframe %q", timeframe))
	}
	exSymbol, err := PhemexSymbol(symbol)
	if err != nil {
		return nil, gatewayErr(op, symbol, err)
	}

	query := url.Values{
		"symbol":     {exSymbol},
		"resolution": {strconv.Itoa(resolution)},
		"limit":      {strconv.Itoa(klineLimit(limit))},
	}.Encode()
	resp, err := c.doRequest(ctx, http.MethodGet, "/exchange/public/md/v2/kline/last", query, nil)
	if err != nil {
		return nil, gatewayErr(op, symbol, err)
	}

	candles, err := parsePhemexKlines(resp.Data)
	if err != nil {
		return nil, gatewayErr(op, symbol, err)
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].OpenTime.Before(candles[j].OpenTime) })
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}

	return candles, nil
}

func klineLimit(limit int) int {
	for _, allowed := range phemexKlineLimits {
		if limit <= allowed {
			return allowed
		}
	}
	return phemexKlineLimits[len(phemexKlineLimits)-1]
}

func (c *Client) FetchTicker(ctx context.Context, symbol string) (*Ticker, error) {
	const op = "fetch_ticker"

	exSymbol, err := PhemexSymbol(symbol)
	if err != nil {
		return nil, gatewayErr(op, symbol, err)
	}

	result, err := c.doPublic(ctx, "/md/v3/ticker/24hr", url.Values{"symbol": {exSymbol}})
	if err != nil {
		return nil, gatewayErr(op, symbol, err)
	}

	var tk struct {
		LastRp string `json:"lastRp"`
	}
	if err := json.Unmarshal(result, &tk); err != nil {
		return nil, gatewayErr(op, symbol, err)
	}

	last, err := decimal.NewFromString(tk.LastRp)
	if err != nil {
		return nil, gatewayErr(op, symbol, fmt.Errorf("invalid lastRp %q: %w", tk.LastRp, err))
	}

	return &Ticker{Symbol: symbol, Last: last}, nil
}

func (c *Client) FetchOrderBook(ctx context.Context, symbol string) (*OrderBook, error) {
	const op = "fetch_order_book"

	exSymbol, err := PhemexSymbol(symbol)
	if err != nil {
		return nil, gatewayErr(op, symbol, err)
	}

	result, err := c.doPublic(ctx, "/md/v2/orderbook", url.Values{"symbol": {exSymbol}})
	if err != nil {
		return nil, gatewayErr(op, symbol, err)
	}

	book, err := parsePhemexOrderBook(symbol, result)
	if err != nil {
		return nil, gatewayErr(op, symbol, err)
	}
	return book, nil
}

// -----------------------------
// ACCOUNT & POSITIONS
// -----------------------------

func (c *Client) accountPositions(ctx context.Context) (*accountPositions, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/g-accounts/accountPositions", "currency="+c.quote, nil)
	if err != nil {
		return nil, err
	}

	var parsed accountPositions
	if err := json.Unmarshal(resp.Data, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

func (c *Client) FetchBalance(ctx context.Context) (*Balance, error) {
	const op = "fetch_balance"

	acct, err := c.accountPositions(ctx)
	if err != nil {
		return nil, gatewayErr(op, "", err)
	}

	total := parseDecimalSafe("accountBalanceRv", acct.Account.AccountBalanceRv)
	used := parseDecimalSafe("totalUsedBalanceRv", acct.Account.TotalUsedBalanceRv)
	free := total.Sub(used)
	if free.IsNegative() {
		free = decimal.Zero
	}

	return &Balance{Currency: c.quote, Free: free, Used: used, Total: total}, nil
}

func (c *Client) FetchPositionSize(ctx context.Context, symbol string) (decimal.Decimal, error) {
	const op = "fetch_position_size"

	exSymbol, err := PhemexSymbol(symbol)
	if err != nil {
		return decimal.Zero, gatewayErr(op, symbol, err)
	}

	acct, err := c.accountPositions(ctx)
	if err != nil {
		return decimal.Zero, gatewayErr(op, symbol, err)
	}

	size := decimal.Zero
	for _, p := range acct.Positions {
		if p.Symbol != exSymbol {
			continue
		}
		size = size.Add(parseDecimalSafe("sizeRq", p.SizeRq).Abs())
	}
	return size, nil
}

// -----------------------------
// TRADING
// -----------------------------

// posSide picks the Phemex position side. Hedged accounts need the side of the
// holding being opened or reduced; one-way accounts always use Merged.
func (c *Client) posSide(side OrderSide, reduceOnly bool) string {
	if c.posMode != posModeHedged {
		return "Merged"
	}
	opensLong := side == SideBuy
	if reduceOnly {
		opensLong = !opensLong
	}
	if opensLong {
		return "Long"
	}
	return "Short"
}

func (c *Client) placeOrder(ctx context.Context, body map[string]interface{}) (*phemexOrder, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/g-orders", "", b)
	if err != nil {
		return nil, err
	}

	var placed phemexOrder
	if err := json.Unmarshal(resp.Data, &placed); err != nil {
		return nil, err
	}
	if placed.OrderID == "" {
		return nil, errors.New("exchange returned no order id")
	}
	return &placed, nil
}

func (c *Client) CreateLimitOrder(
	ctx context.Context,
	symbol string,
	side OrderSide,
	qty, price decimal.Decimal,
	clientOrderID string,
) (*ExchangeOrder, error) {
	const op = "create_limit_order"

	exSymbol, err := PhemexSymbol(symbol)
	if err != nil {
		return nil, gatewayErr(op, symbol, err)
	}

	body := map[string]interface{}{
		"symbol":      exSymbol,
		"side":        phemexSide(side),
		"posSide":     c.posSide(side, false),
		"ordType":     "Limit",
		"orderQtyRq":  qty.String(),
		"priceRp":     price.String(),
		"reduceOnly":  false,
		"clOrdID":     clientOrderID,
		"timeInForce": "GoodTillCancel",
	}

	placed, err := c.placeOrder(ctx, body)
	if err != nil {
		return nil, gatewayErr(op, symbol, err)
	}

	order := mapPhemexOrder(symbol, placed)
	if order.Price.IsZero() {
		order.Price = price
	}
	if order.Amount.IsZero() {
		order.Amount = qty
	}
	return order, nil
}

func (c *Client) CreateMarketOrder(
	ctx context.Context,
	symbol string,
	side OrderSide,
	qty decimal.Decimal,
	reduceOnly bool,
) (*ExchangeOrder, error) {
	const op = "create_market_order"

	exSymbol, err := PhemexSymbol(symbol)
	if err != nil {
		return nil, gatewayErr(op, symbol, err)
	}

	body := map[string]interface{}{
		"symbol":      exSymbol,
		"side":        phemexSide(side),
		"posSide":     c.posSide(side, reduceOnly),
		"ordType":     "Market",
		"orderQtyRq":  qty.String(),
		"reduceOnly":  reduceOnly,
		"clOrdID":     fmt.Sprintf("go-%d", c.now().UnixNano()),
		"timeInForce": "ImmediateOrCancel",
	}

	logger.WithFields(map[string]interface{}{
		"symbol":      symbol,
		"side":        side,
		"qty":         qty.String(),
		"reduce_only": reduceOnly,
	}).Info("Sending market order")

	placed, err := c.placeOrder(ctx, body)
	if err != nil {
		return nil, gatewayErr(op, symbol, err)
	}
	return mapPhemexOrder(symbol, placed), nil
}

func (c *Client) FetchOrder(ctx context.Context, symbol, id string) (*ExchangeOrder, error) {
	const op = "fetch_order"

	exSymbol, err := PhemexSymbol(symbol)
	if err != nil {
		return nil, gatewayErr(op, symbol, err)
	}

	query := url.Values{"symbol": {exSymbol}, "orderID": {id}}.Encode()
	resp, err := c.doRequest(ctx, http.MethodGet, "/api-data/g-futures/orders/by-order-id", query, nil)
	if err != nil {
		return nil, gatewayErr(op, symbol, err)
	}

	rows, err := decodeOrderRows(resp.Data)
	if err != nil {
		return nil, gatewayErr(op, symbol, err)
	}
	for i := range rows {
		if rows[i].OrderID == id {
			return mapPhemexOrder(symbol, &rows[i]), nil
		}
	}

	return nil, gatewayErr(op, symbol, fmt.Errorf("order %s not found", id))
}

// CancelOrder treats "order not found" as success: the order already left the book.
func (c *Client) CancelOrder(ctx context.Context, symbol, id string) error {
	const op = "cancel_order"

	exSymbol, err := PhemexSymbol(symbol)
	if err != nil {
		return gatewayErr(op, symbol, err)
	}

	posSide := c.posSide(SideBuy, false)
	if c.posMode == posModeHedged {
		// hedged cancels need the order's own posSide
		order, err := c.FetchOrder(ctx, symbol, id)
		if err != nil {
			return err
		}
		posSide = c.posSide(order.Side, false)
	}
	query := url.Values{"orderID": {id}, "symbol": {exSymbol}, "posSide": {posSide}}.Encode()

	_, err = c.doRequest(ctx, http.MethodDelete, "/g-orders/cancel", query, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.OrderGone() {
			logger.WithFields(map[string]interface{}{
				"symbol":   symbol,
				"order_id": id,
				"code":     apiErr.Code,
			}).Debug("Cancel target already gone from the book")
			return nil
		}
		return gatewayErr(op, symbol, err)
	}
	return nil
}

var _ Gateway = (*Client)(nil)
