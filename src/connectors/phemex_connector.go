// REST API CLIENT FOR PHEMEX USDT-M FUTURES
// RESTY ONLY + INTERNAL RETRY
package connectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

const (
	// Default retry configuration
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second
)

// APIResponse is the standard Phemex envelope for authenticated endpoints.
type APIResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type phemexOrder struct {
	OrderID    string `json:"orderID"`
	ClOrdID    string `json:"clOrdID"`
	Symbol     string `json:"symbol"`
	Side       string `json:"side"`
	OrdType    string `json:"ordType"`
	OrdStatus  string `json:"ordStatus"`
	PriceRp    string `json:"priceRp"`
	OrderQtyRq string `json:"orderQtyRq"`
	CumQtyRq   string `json:"cumQtyRq"`
	AvgPriceRp string `json:"avgPriceRp"`
	ActionTime int64  `json:"actionTimeNs"`
}

type phemexFill struct {
	ExecID       string `json:"execID"`
	OrderID      string `json:"orderID"`
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	ExecPriceRp  string `json:"execPriceRp"`
	ExecQtyRq    string `json:"execQtyRq"`
	ExecFeeRv    string `json:"execFeeRv"`
	TransactTime int64  `json:"transactTimeNs"`
}

type phemexPositions struct {
	Positions []struct {
		Symbol          string `json:"symbol"`
		Side            string `json:"side"`
		PosSide         string `json:"posSide"`
		SizeRq          string `json:"sizeRq"`
		AvgEntryPriceRp string `json:"avgEntryPriceRp"`
	} `json:"positions"`
}

// PhemexClient talks to the Phemex hedged USDT-M futures API and adapts
// its payloads to the ExchangeClient surface.
type PhemexClient struct {
	apiKey    string
	apiSecret string
	baseURL   string
	http      *resty.Client
}

var _ ExchangeClient = (*PhemexClient)(nil)

func isRetryableResp(r *resty.Response, err error) bool {
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
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}

func NewPhemexClient(apiKey, apiSecret, baseURL string) *PhemexClient {
	retryCount := defaultRetryAttempts - 1

	if baseURL == "" {
		baseURL = "https://testnet-api.phemex.com"
		logger.WithField("base_url", baseURL).Warn("No base URL provided, using default")
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(retryCount).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &PhemexClient{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		http:      httpClient,
	}
}

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

func (c *PhemexClient) doRequest(ctx context.Context, method, path, query string, body []byte) (*APIResponse, error) {
	expiry := time.Now().Add(1 * time.Minute).Unix()

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
		return nil, classifyTransportError(err)
	}

	raw := resp.Body()

	if resp.StatusCode() != 200 {
		if resp.StatusCode() == 408 {
			return nil, fmt.Errorf("%w: HTTP 408", ErrExchangeTimeout)
		}
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrExchangeRejected, resp.StatusCode(), string(raw))
	}

	var apiResp APIResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return nil, err
	}

	if apiResp.Code != 0 {
		return nil, &APIError{Code: apiResp.Code, Msg: apiResp.Msg}
	}

	return &apiResp, nil
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrExchangeTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "context deadline exceeded") {
		return fmt.Errorf("%w: %v", ErrExchangeTimeout, err)
	}
	return err
}

// PlaceOrder submits a limit or market order and returns the exchange order ID.
func (c *PhemexClient) PlaceOrder(ctx context.Context, symbol, side, orderType string, price, size float64, clientOrderID string) (string, error) {
	payload := map[string]interface{}{
		"symbol":     symbol,
		"side":       toPhemexSide(side),
		"posSide":    "Long",
		"ordType":    toPhemexOrdType(orderType),
		"orderQtyRq": strconv.FormatFloat(size, 'f', -1, 64),
		"clOrdID":    clientOrderID,
	}
	if strings.EqualFold(orderType, "limit") {
		payload["priceRp"] = strconv.FormatFloat(price, 'f', -1, 64)
		payload["timeInForce"] = "GoodTillCancel"
	} else {
		payload["timeInForce"] = "ImmediateOrCancel"
	}

	b, _ := json.Marshal(payload)
	resp, err := c.doRequest(ctx, "POST", "/g-orders", "", b)
	if err != nil {
		return "", err
	}

	var parsed struct {
		OrderID string `json:"orderID"`
	}
	if err := json.Unmarshal(resp.Data, &parsed); err != nil {
		return "", err
	}
	return parsed.OrderID, nil
}

// CancelOrder cancels one order by exchange order ID.
func (c *PhemexClient) CancelOrder(ctx context.Context, symbol, orderID string) error {
	query := fmt.Sprintf("symbol=%s&orderID=%s", symbol, orderID)
	_, err := c.doRequest(ctx, "DELETE", "/g-orders/cancel", query, nil)
	return err
}

// GetOpenOrders lists the resting orders for one instrument.
func (c *PhemexClient) GetOpenOrders(ctx context.Context, symbol string) ([]Order, error) {
	resp, err := c.doRequest(ctx, "GET", "/g-orders/activeList", fmt.Sprintf("symbol=%s", symbol), nil)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Rows []phemexOrder `json:"rows"`
	}
	if err := json.Unmarshal(resp.Data, &parsed); err != nil {
		return nil, err
	}

	orders := make([]Order, 0, len(parsed.Rows))
	for _, row := range parsed.Rows {
		orders = append(orders, fromPhemexOrder(row))
	}
	return orders, nil
}

// GetOrder fetches one order, open or historical.
func (c *PhemexClient) GetOrder(ctx context.Context, symbol, orderID string) (Order, error) {
	query := fmt.Sprintf("symbol=%s&orderID=%s", symbol, orderID)
	resp, err := c.doRequest(ctx, "GET", "/api-data/g-futures/orders/by-order-id", query, nil)
	if err != nil {
		return Order{}, err
	}

	var parsed struct {
		Rows []phemexOrder `json:"rows"`
	}
	if err := json.Unmarshal(resp.Data, &parsed); err != nil {
		return Order{}, err
	}
	if len(parsed.Rows) == 0 {
		return Order{}, fmt.Errorf("%w: order %s not found", ErrExchangeRejected, orderID)
	}
	return fromPhemexOrder(parsed.Rows[0]), nil
}

// GetPositions returns all non-empty positions on the account.
func (c *PhemexClient) GetPositions(ctx context.Context) ([]Position, error) {
	resp, err := c.doRequest(ctx, "GET", "/g-accounts/positions", "currency=USDT", nil)
	if err != nil {
		return nil, err
	}

	var parsed phemexPositions
	if err := json.Unmarshal(resp.Data, &parsed); err != nil {
		return nil, err
	}

	var positions []Position
	for _, p := range parsed.Positions {
		size, _ := strconv.ParseFloat(p.SizeRq, 64)
		if size == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(p.AvgEntryPriceRp, 64)
		positions = append(positions, Position{
			Symbol:     p.Symbol,
			Side:       fromPhemexSide(p.Side),
			Size:       size,
			EntryPrice: entry,
		})
	}
	return positions, nil
}

// GetTicker returns the public 24h market snapshot.
func (c *PhemexClient) GetTicker(ctx context.Context, symbol string) (Ticker, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		Get("/md/v3/ticker/24hr")
	if err != nil {
		return Ticker{}, classifyTransportError(err)
	}

	if resp.StatusCode() != 200 {
		return Ticker{}, fmt.Errorf("%w: HTTP %d: %s", ErrExchangeRejected, resp.StatusCode(), string(resp.Body()))
	}

	var md struct {
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		Result struct {
			LastRp string `json:"lastRp"`
			BidRp  string `json:"bidRp"`
			AskRp  string `json:"askRp"`
			HighRp string `json:"highRp"`
			LowRp  string `json:"lowRp"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp.Body(), &md); err != nil {
		return Ticker{}, err
	}
	if md.Error != nil {
		return Ticker{}, &APIError{Code: md.Error.Code, Msg: md.Error.Message}
	}

	last, err := strconv.ParseFloat(md.Result.LastRp, 64)
	if err != nil || last <= 0 {
		return Ticker{}, fmt.Errorf("invalid last price for %s", symbol)
	}
	bid, _ := strconv.ParseFloat(md.Result.BidRp, 64)
	ask, _ := strconv.ParseFloat(md.Result.AskRp, 64)
	high, _ := strconv.ParseFloat(md.Result.HighRp, 64)
	low, _ := strconv.ParseFloat(md.Result.LowRp, 64)

	return Ticker{
		Symbol:  symbol,
		Last:    last,
		Bid:     bid,
		Ask:     ask,
		High24h: high,
		Low24h:  low,
	}, nil
}

// GetRecentFills returns the latest executions for one instrument, newest first.
func (c *PhemexClient) GetRecentFills(ctx context.Context, symbol string, limit int) ([]Fill, error) {
	query := fmt.Sprintf("symbol=%s", symbol)
	if limit > 0 {
		query += fmt.Sprintf("&limit=%d", limit)
	}
	resp, err := c.doRequest(ctx, "GET", "/g-trades/fills", query, nil)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Rows []phemexFill `json:"rows"`
	}
	if err := json.Unmarshal(resp.Data, &parsed); err != nil {
		return nil, err
	}

	fills := make([]Fill, 0, len(parsed.Rows))
	for _, row := range parsed.Rows {
		price, _ := strconv.ParseFloat(row.ExecPriceRp, 64)
		size, _ := strconv.ParseFloat(row.ExecQtyRq, 64)
		fee, _ := strconv.ParseFloat(row.ExecFeeRv, 64)
		fills = append(fills, Fill{
			TradeID:   row.ExecID,
			OrderID:   row.OrderID,
			Symbol:    row.Symbol,
			Side:      fromPhemexSide(row.Side),
			Price:     price,
			Size:      size,
			Fee:       fee,
			Timestamp: time.Unix(0, row.TransactTime),
		})
	}
	return fills, nil
}

// GetInstrumentSpec reads the tick and lot size for one perpetual contract.
func (c *PhemexClient) GetInstrumentSpec(ctx context.Context, symbol string) (InstrumentSpec, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get("/public/products")
	if err != nil {
		return InstrumentSpec{}, classifyTransportError(err)
	}

	if resp.StatusCode() != 200 {
		return InstrumentSpec{}, fmt.Errorf("%w: HTTP %d", ErrExchangeRejected, resp.StatusCode())
	}

	var parsed struct {
		Data struct {
			PerpProductsV2 []struct {
				Symbol      string `json:"symbol"`
				TickSize    string `json:"tickSize"`
				QtyStepSize string `json:"qtyStepSize"`
			} `json:"perpProductsV2"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return InstrumentSpec{}, err
	}

	for _, p := range parsed.Data.PerpProductsV2 {
		if p.Symbol != symbol {
			continue
		}
		tick, _ := strconv.ParseFloat(p.TickSize, 64)
		lot, _ := strconv.ParseFloat(p.QtyStepSize, 64)
		return InstrumentSpec{Symbol: symbol, TickSize: tick, LotSize: lot}, nil
	}
	return InstrumentSpec{}, fmt.Errorf("no product found for %s", symbol)
}

func toPhemexSide(side string) string {
	if strings.EqualFold(side, "sell") {
		return "Sell"
	}
	return "Buy"
}

func fromPhemexSide(side string) string {
	if strings.EqualFold(side, "sell") {
		return "sell"
	}
	return "buy"
}

func toPhemexOrdType(orderType string) string {
	if strings.EqualFold(orderType, "market") {
		return "Market"
	}
	return "Limit"
}

func fromPhemexOrder(row phemexOrder) Order {
	price, _ := strconv.ParseFloat(row.PriceRp, 64)
	size, _ := strconv.ParseFloat(row.OrderQtyRq, 64)
	filled, _ := strconv.ParseFloat(row.CumQtyRq, 64)
	avg, _ := strconv.ParseFloat(row.AvgPriceRp, 64)

	var status string
	switch row.OrdStatus {
	case "Filled":
		status = ExchangeOrderFilled
	case "Canceled", "Rejected":
		status = ExchangeOrderCancelled
	default:
		status = ExchangeOrderOpen
	}

	return Order{
		OrderID:       row.OrderID,
		ClientOrderID: row.ClOrdID,
		Symbol:        row.Symbol,
		Side:          fromPhemexSide(row.Side),
		OrderType:     strings.ToLower(row.OrdType),
		Status:        status,
		Price:         price,
		Size:          size,
		FilledSize:    filled,
		AvgFillPrice:  avg,
		CreatedAt:     time.Unix(0, row.ActionTime),
	}
}
