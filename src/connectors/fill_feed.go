package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

const (
	feedReconnectBase = time.Second
	feedReconnectMax  = 30 * time.Second
	feedPingPeriod    = 5 * time.Second
	feedReadTimeout   = 30 * time.Second
)

// FillFeed streams private execution events over the exchange websocket.
// It is a latency optimization on top of REST fill polling: the engine
// still reconciles against GetRecentFills every tick, so dropped or
// duplicated feed messages are harmless.
type FillFeed struct {
	url       string
	apiKey    string
	apiSecret string
	symbol    string
	out       chan Fill

	dial func(ctx context.Context, url string) (*websocket.Conn, error)
}

func NewFillFeed(url, apiKey, apiSecret, symbol string, queueSize int) *FillFeed {
	if queueSize < 1 {
		queueSize = 256
	}
	return &FillFeed{
		url:       url,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		symbol:    symbol,
		out:       make(chan Fill, queueSize),
		dial: func(ctx context.Context, url string) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			return conn, err
		},
	}
}

// Fills is the stream of executions. Messages are dropped when the buffer
// is full; REST polling covers the gap.
func (f *FillFeed) Fills() <-chan Fill {
	return f.out
}

// Run connects, authenticates and reads until the context is cancelled,
// reconnecting with exponential backoff on any failure.
func (f *FillFeed) Run(ctx context.Context) {
	backoff := feedReconnectBase

	for {
		if err := ctx.Err(); err != nil {
			return
		}

		err := f.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}

		logger.WithFields(map[string]interface{}{
			"symbol":  f.symbol,
			"backoff": backoff.String(),
		}).WithError(err).Warn("Fill feed disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > feedReconnectMax {
			backoff = feedReconnectMax
		}
	}
}

func (f *FillFeed) runOnce(ctx context.Context) error {
	conn, err := f.dial(ctx, f.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := f.authenticate(conn); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := f.subscribe(conn); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	logger.WithField("symbol", f.symbol).Info("Fill feed connected")

	done := make(chan struct{})
	defer close(done)
	go f.keepAlive(ctx, conn, done)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(feedReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.handleMessage(raw)
	}
}

func (f *FillFeed) authenticate(conn *websocket.Conn) error {
	expiry := time.Now().Add(2 * time.Minute).Unix()
	sig := signRequest(f.apiKey, "", "", expiry, f.apiSecret)

	msg := map[string]interface{}{
		"method": "user.auth",
		"params": []interface{}{"API", f.apiKey, sig, expiry},
		"id":     1,
	}
	return conn.WriteJSON(msg)
}

func (f *FillFeed) subscribe(conn *websocket.Conn) error {
	msg := map[string]interface{}{
		"method": "aop_p.subscribe",
		"params": []interface{}{},
		"id":     2,
	}
	return conn.WriteJSON(msg)
}

func (f *FillFeed) keepAlive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(feedPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-done:
			return
		case <-ticker.C:
			ping := map[string]interface{}{"method": "server.ping", "params": []interface{}{}, "id": 0}
			if err := conn.WriteJSON(ping); err != nil {
				return
			}
		}
	}
}

type feedExecution struct {
	ExecID       string `json:"execID"`
	OrderID      string `json:"orderID"`
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	ExecPriceRp  string `json:"execPriceRp"`
	ExecQtyRq    string `json:"execQtyRq"`
	ExecFeeRv    string `json:"execFeeRv"`
	TransactTime int64  `json:"transactTimeNs"`
	ExecStatus   string `json:"execStatus"`
}

func (f *FillFeed) handleMessage(raw []byte) {
	var msg struct {
		Orders struct {
			Fills []feedExecution `json:"fills"`
		} `json:"orders_p"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}

	for _, exec := range msg.Orders.Fills {
		if exec.Symbol != f.symbol || exec.ExecID == "" {
			continue
		}

		price, _ := strconv.ParseFloat(exec.ExecPriceRp, 64)
		size, _ := strconv.ParseFloat(exec.ExecQtyRq, 64)
		fee, _ := strconv.ParseFloat(exec.ExecFeeRv, 64)

		fill := Fill{
			TradeID:   exec.ExecID,
			OrderID:   exec.OrderID,
			Symbol:    exec.Symbol,
			Side:      fromPhemexSide(exec.Side),
			Price:     price,
			Size:      size,
			Fee:       fee,
			Timestamp: time.Unix(0, exec.TransactTime),
		}

		select {
		case f.out <- fill:
		default:
			logger.WithField("trade_id", fill.TradeID).Warn("Fill feed buffer full, dropping event")
		}
	}
}
