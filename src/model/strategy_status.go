package model

import "time"

// StrategyStatus is the durable snapshot of engine state: one row per
// strategy instance, overwritten on every successful tick and read once at
// startup to resume after a restart.
type StrategyStatus struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	StrategyID string `gorm:"size:100;uniqueIndex" json:"strategy_id"`
	Symbol     string `gorm:"size:100" json:"symbol"`

	BasePrice float64 `json:"base_price"`
	GridWidth float64 `json:"grid_width"`
	TradeSize float64 `json:"trade_size"`

	// LadderJSON holds the computed ladder prices as a JSON array, descending.
	LadderJSON string `gorm:"type:text" json:"ladder_json"`

	Position      float64 `json:"position"`
	TotalProfit   float64 `json:"total_profit"`
	LastFillPrice float64 `json:"last_fill_price"`
	LastFillSide  string  `gorm:"size:20" json:"last_fill_side"`
	ActiveOrders  int     `json:"active_orders"`

	// DataVerified distinguishes "known good" snapshots from ones taken while
	// the quorum reader could not confirm price/position.
	DataVerified bool `json:"data_verified"`

	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName allows you to control the exact table name for status snapshots.
func (StrategyStatus) TableName() string {
	return "strategy_statuses"
}
