package model

import "time"

const (
	OrderSideBuy  = "buy"
	OrderSideSell = "sell"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusFilled    = "filled"
	OrderStatusCancelled = "cancelled"
)

const (
	OrderTypeLimit  = "limit"
	OrderTypeMarket = "market"
)

// GridOrder is one resting order the engine believes exists on the exchange.
// It is in-memory bookkeeping only: entries are re-derived from exchange truth
// on every reconciliation pass and never trusted across restarts.
type GridOrder struct {
	GridID          int       `json:"grid_id"`
	Side            string    `json:"side"`
	Price           float64   `json:"price"`
	Size            float64   `json:"size"`
	Status          string    `json:"status"`
	ExchangeOrderID string    `json:"exchange_order_id"`
	ClientOrderID   string    `json:"client_order_id"`
	CreatedAt       time.Time `json:"created_at"`
}
