package connectors

import (
	"context"
	"errors"
	"time"
)

// Typed remote-call failures. Both are retryable with backoff; the engine
// never treats a single occurrence as fatal.
var (
	ErrExchangeTimeout  = errors.New("connectors: exchange request timed out")
	ErrExchangeRejected = errors.New("connectors: exchange rejected request")
)

// Order is the exchange-side view of one order.
type Order struct {
	OrderID       string    `json:"order_id"`
	ClientOrderID string    `json:"client_order_id"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	OrderType     string    `json:"order_type"`
	Status        string    `json:"status"` // open | filled | cancelled
	Price         float64   `json:"price"`
	Size          float64   `json:"size"`
	FilledSize    float64   `json:"filled_size"`
	AvgFillPrice  float64   `json:"avg_fill_price"`
	CreatedAt     time.Time `json:"created_at"`
}

// Exchange-side order states as reported by GetOrder/GetOpenOrders.
const (
	ExchangeOrderOpen      = "open"
	ExchangeOrderFilled    = "filled"
	ExchangeOrderCancelled = "cancelled"
)

// Position is one open position per instrument/side.
type Position struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Size       float64 `json:"size"`
	EntryPrice float64 `json:"entry_price"`
}

// Ticker is the public market snapshot for an instrument.
type Ticker struct {
	Symbol  string  `json:"symbol"`
	Last    float64 `json:"last"`
	Bid     float64 `json:"bid"`
	Ask     float64 `json:"ask"`
	High24h float64 `json:"high_24h"`
	Low24h  float64 `json:"low_24h"`
}

// Fill is one execution reported by the exchange.
type Fill struct {
	TradeID   string    `json:"trade_id"`
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Fee       float64   `json:"fee"`
	Timestamp time.Time `json:"timestamp"`
}

// InstrumentSpec carries the exchange's rounding rules for an instrument.
type InstrumentSpec struct {
	Symbol   string  `json:"symbol"`
	TickSize float64 `json:"tick_size"`
	LotSize  float64 `json:"lot_size"`
}

// ExchangeClient is the surface the engine consumes from an exchange.
// Implementations must be safe for concurrent use.
type ExchangeClient interface {
	PlaceOrder(ctx context.Context, symbol, side, orderType string, price, size float64, clientOrderID string) (string, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	GetOpenOrders(ctx context.Context, symbol string) ([]Order, error)
	GetOrder(ctx context.Context, symbol, orderID string) (Order, error)
	GetPositions(ctx context.Context) ([]Position, error)
	GetTicker(ctx context.Context, symbol string) (Ticker, error)
	GetRecentFills(ctx context.Context, symbol string, limit int) ([]Fill, error)
	GetInstrumentSpec(ctx context.Context, symbol string) (InstrumentSpec, error)
}
