package model

import "time"

// TradeRecord is an immutable record of one confirmed fill.
// Rows are append-only and never updated after creation.
type TradeRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	StrategyID string    `gorm:"size:100;index" json:"strategy_id"`
	TradeID    string    `gorm:"size:255;uniqueIndex" json:"trade_id"`
	OrderID    string    `gorm:"size:255;index" json:"order_id"`
	Symbol     string    `gorm:"size:100" json:"symbol"`
	Side       string    `gorm:"size:20" json:"side"`
	Price      float64   `json:"price"`
	Size       float64   `json:"size"`
	Fee        float64   `json:"fee"`
	Timestamp  time.Time `json:"timestamp"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName allows you to control the exact table name for trade records.
func (TradeRecord) TableName() string {
	return "trade_records"
}

const (
	TradePairStatusOpen   = "open"
	TradePairStatusClosed = "closed"
)

// TradePair is a matched buy→sell cycle used for realized profit accounting.
// Total profit is always recomputed from closed pairs, never trusted from a
// running total in memory.
type TradePair struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	StrategyID  string    `gorm:"size:100;index" json:"strategy_id"`
	PairID      string    `gorm:"size:255;uniqueIndex" json:"pair_id"`
	BuyOrderID  string    `gorm:"size:255" json:"buy_order_id"`
	SellOrderID string    `gorm:"size:255" json:"sell_order_id"`
	BuyPrice    float64   `json:"buy_price"`
	SellPrice   float64   `json:"sell_price"`
	Size        float64   `json:"size"`
	Profit      float64   `json:"profit"`
	Status      string    `gorm:"size:20;not null;default:open" json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName allows you to control the exact table name for trade pairs.
func (TradePair) TableName() string {
	return "trade_pairs"
}
