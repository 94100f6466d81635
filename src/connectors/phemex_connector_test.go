package connectors

// Test index:
//  1. TestIsRetryableResp verifies retry decisions for various response codes and errors.
//  2. TestSignRequest validates HMAC signature generation inputs and output.
//  3. TestPlaceOrderSendsPayload checks the order payload and returned order ID.
//  4. TestPlaceOrderRejection maps bizError responses onto ErrExchangeRejected.
//  5. TestCancelOrder verifies the cancel endpoint wiring.
//  6. TestGetOpenOrders decodes the active order list into the neutral Order shape.
//  7. TestGetOrderNotFound errors when the order lookup returns no rows.
//  8. TestGetPositions filters empty positions and normalizes sides.
//  9. TestGetTicker parses the market data envelope and rejects bad prices.
// 10. TestGetRecentFills decodes execution rows.
// 11. TestGetInstrumentSpec finds the contract in the product catalog.

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
)

func newTestClient(baseURL string, httpClient *http.Client) *PhemexClient {
	restyClient := resty.New()
	restyClient.SetBaseURL(baseURL)
	restyClient.SetTransport(httpClient.Transport)

	return &PhemexClient{
		apiKey:    "test-key",
		apiSecret: "test-secret",
		baseURL:   baseURL,
		http:      restyClient,
	}
}

func mustJSON(v interface{}) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}

type assertError struct{}

func (assertError) Error() string { return "err" }

func fakeResponse(status int) *resty.Response {
	return &resty.Response{RawResponse: &http.Response{StatusCode: status}}
}

// TestIsRetryableResp verifies retry decisions for assorted errors and HTTP responses.
func TestIsRetryableResp(t *testing.T) {
	cases := []struct {
		name string
		resp *resty.Response
		err  error
		want bool
	}{
		{name: "error present", err: assertError{}, want: true},
		{name: "server error", resp: fakeResponse(500), want: true},
		{name: "too many requests", resp: fakeResponse(429), want: true},
		{name: "timeout", resp: fakeResponse(408), want: true},
		{name: "ok response", resp: fakeResponse(200), want: false},
		{name: "nil resp", want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := isRetryableResp(tc.resp, tc.err)
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

// TestSignRequest ensures HMAC signing matches the expected digest for a fixed payload and secret.
func TestSignRequest(t *testing.T) {
	expiry := int64(1700000000)
	expectedMac := hmac.New(sha256.New, []byte("secret"))
	expectedMac.Write([]byte("/testpath" + "query" + "1700000000" + "body"))
	expected := hex.EncodeToString(expectedMac.Sum(nil))

	got := signRequest("/testpath", "query", "body", expiry, "secret")
	if got != expected {
		t.Fatalf("expected signature %s, got %s", expected, got)
	}
}

// TestPlaceOrderSendsPayload checks the limit order payload and the parsed order ID.
func TestPlaceOrderSendsPayload(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/g-orders" || r.Method != http.MethodPost {
			t.Fatalf("unexpected call %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(APIResponse{Code: 0, Data: mustJSON(map[string]string{"orderID": "ord-1"})})
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.Client())
	orderID, err := client.PlaceOrder(context.Background(), "BTCUSDT", "buy", "limit", 60000, 0.01, "cl-abc")
	if err != nil {
		t.Fatalf("PlaceOrder error: %v", err)
	}

	if orderID != "ord-1" {
		t.Fatalf("expected order ID ord-1, got %s", orderID)
	}
	if captured["symbol"] != "BTCUSDT" || captured["side"] != "Buy" || captured["ordType"] != "Limit" {
		t.Fatalf("unexpected payload: %+v", captured)
	}
	if captured["clOrdID"] != "cl-abc" {
		t.Fatalf("expected client order ID to be forwarded, got %+v", captured)
	}
	if captured["priceRp"] != "60000" || captured["timeInForce"] != "GoodTillCancel" {
		t.Fatalf("unexpected limit order fields: %+v", captured)
	}
}

// TestPlaceOrderRejection maps a non-zero bizError onto ErrExchangeRejected.
func TestPlaceOrderRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(APIResponse{Code: 11051, Msg: "insufficient balance"})
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.Client())
	_, err := client.PlaceOrder(context.Background(), "BTCUSDT", "buy", "limit", 60000, 0.01, "cl-1")
	if err == nil {
		t.Fatalf("expected error for bizError response")
	}
	if !errors.Is(err, ErrExchangeRejected) {
		t.Fatalf("expected ErrExchangeRejected, got %v", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 11051 {
		t.Fatalf("expected APIError with code 11051, got %v", err)
	}
}

// TestCancelOrder verifies the cancel endpoint wiring.
func TestCancelOrder(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.Method + " " + r.URL.Path + "?" + r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(APIResponse{Code: 0, Data: mustJSON(map[string]string{"ok": "true"})})
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.Client())
	if err := client.CancelOrder(context.Background(), "BTCUSDT", "ord-9"); err != nil {
		t.Fatalf("CancelOrder error: %v", err)
	}
	if path != "DELETE /g-orders/cancel?orderID=ord-9&symbol=BTCUSDT" {
		t.Fatalf("unexpected cancel path: %s", path)
	}
}

// TestGetOpenOrders decodes the active order list into the neutral Order shape.
func TestGetOpenOrders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rows := map[string]interface{}{"rows": []phemexOrder{
			{OrderID: "o1", ClOrdID: "c1", Symbol: "BTCUSDT", Side: "Buy", OrdType: "Limit", OrdStatus: "New", PriceRp: "59000", OrderQtyRq: "0.01"},
			{OrderID: "o2", ClOrdID: "c2", Symbol: "BTCUSDT", Side: "Sell", OrdType: "Limit", OrdStatus: "PartiallyFilled", PriceRp: "61000", OrderQtyRq: "0.01", CumQtyRq: "0.005"},
		}}
		_ = json.NewEncoder(w).Encode(APIResponse{Code: 0, Data: mustJSON(rows)})
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.Client())
	orders, err := client.GetOpenOrders(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("GetOpenOrders error: %v", err)
	}

	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	if orders[0].Side != "buy" || orders[0].Price != 59000 || orders[0].Status != ExchangeOrderOpen {
		t.Fatalf("unexpected first order: %+v", orders[0])
	}
	if orders[1].Side != "sell" || orders[1].FilledSize != 0.005 || orders[1].Status != ExchangeOrderOpen {
		t.Fatalf("unexpected second order: %+v", orders[1])
	}
}

// TestGetOrderNotFound errors when the lookup returns no rows.
func TestGetOrderNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(APIResponse{Code: 0, Data: mustJSON(map[string]interface{}{"rows": []phemexOrder{}})})
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.Client())
	_, err := client.GetOrder(context.Background(), "BTCUSDT", "missing")
	if err == nil {
		t.Fatalf("expected error for missing order")
	}
	if !errors.Is(err, ErrExchangeRejected) {
		t.Fatalf("expected ErrExchangeRejected, got %v", err)
	}
}

// TestGetPositions filters empty positions and normalizes sides.
func TestGetPositions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]interface{}{
			"positions": []map[string]string{
				{"symbol": "BTCUSDT", "side": "Buy", "posSide": "Long", "sizeRq": "0.02", "avgEntryPriceRp": "58000"},
				{"symbol": "ETHUSDT", "side": "Buy", "posSide": "Long", "sizeRq": "0"},
			},
		}
		_ = json.NewEncoder(w).Encode(APIResponse{Code: 0, Data: mustJSON(payload)})
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.Client())
	positions, err := client.GetPositions(context.Background())
	if err != nil {
		t.Fatalf("GetPositions error: %v", err)
	}

	if len(positions) != 1 {
		t.Fatalf("expected the zero-size position to be dropped, got %d", len(positions))
	}
	if positions[0].Symbol != "BTCUSDT" || positions[0].Side != "buy" || positions[0].Size != 0.02 || positions[0].EntryPrice != 58000 {
		t.Fatalf("unexpected position: %+v", positions[0])
	}
}

// TestGetTicker parses the market data envelope and rejects bad prices.
func TestGetTicker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"lastRp":"60000","bidRp":"59990","askRp":"60010","highRp":"61000","lowRp":"59000"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.Client())
	ticker, err := client.GetTicker(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("GetTicker error: %v", err)
	}
	if ticker.Last != 60000 || ticker.Bid != 59990 || ticker.Ask != 60010 {
		t.Fatalf("unexpected ticker: %+v", ticker)
	}

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"lastRp":"bad"}}`))
	}))
	defer bad.Close()

	badClient := newTestClient(bad.URL, bad.Client())
	if _, err := badClient.GetTicker(context.Background(), "BTCUSDT"); err == nil {
		t.Fatalf("expected error for malformed last price")
	}
}

// TestGetRecentFills decodes execution rows.
func TestGetRecentFills(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rows := map[string]interface{}{"rows": []phemexFill{
			{ExecID: "t1", OrderID: "o1", Symbol: "BTCUSDT", Side: "Sell", ExecPriceRp: "60100", ExecQtyRq: "0.01", ExecFeeRv: "0.36"},
		}}
		_ = json.NewEncoder(w).Encode(APIResponse{Code: 0, Data: mustJSON(rows)})
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.Client())
	fills, err := client.GetRecentFills(context.Background(), "BTCUSDT", 50)
	if err != nil {
		t.Fatalf("GetRecentFills error: %v", err)
	}

	if len(fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(fills))
	}
	f := fills[0]
	if f.TradeID != "t1" || f.OrderID != "o1" || f.Side != "sell" || f.Price != 60100 || f.Size != 0.01 || f.Fee != 0.36 {
		t.Fatalf("unexpected fill: %+v", f)
	}
}

// TestGetInstrumentSpec finds the contract in the product catalog.
func TestGetInstrumentSpec(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"perpProductsV2":[
			{"symbol":"ETHUSDT","tickSize":"0.01","qtyStepSize":"0.01"},
			{"symbol":"BTCUSDT","tickSize":"0.1","qtyStepSize":"0.001"}
		]}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.Client())
	spec, err := client.GetInstrumentSpec(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("GetInstrumentSpec error: %v", err)
	}
	if spec.TickSize != 0.1 || spec.LotSize != 0.001 {
		t.Fatalf("unexpected spec: %+v", spec)
	}

	if _, err := client.GetInstrumentSpec(context.Background(), "XRPUSDT"); err == nil {
		t.Fatalf("expected error for unknown symbol")
	}
}
