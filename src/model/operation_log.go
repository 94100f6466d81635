package model

import "time"

// Operation log actions. Every order placement, cancellation, fill and
// position-build step gets one entry, tagged with the market price observed
// at the time of the action.
const (
	OperationPlace   = "place"
	OperationCancel  = "cancel"
	OperationFill    = "fill"
	OperationBuild   = "build"
	OperationReset   = "reset"
	OperationRecover = "recover"
)

// OperationLogEntry is the append-only audit trail used for post-hoc
// reconstruction. Rows are never mutated and must be persisted in the exact
// order the triggering business events occurred.
type OperationLogEntry struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	StrategyID string `gorm:"size:100;index" json:"strategy_id"`
	Action     string `gorm:"size:30;not null" json:"action"`

	// Snapshot of the order or fill the action concerns
	Symbol  string  `gorm:"size:100" json:"symbol"`
	Side    string  `gorm:"size:20" json:"side"`
	Price   float64 `json:"price"`
	Size    float64 `json:"size"`
	OrderID string  `gorm:"size:255" json:"order_id"`

	// MarketPrice is the last observed market price when the action ran.
	MarketPrice float64 `json:"market_price"`

	Detail    string    `gorm:"size:512" json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName allows you to control the exact table name for operation logs.
func (OperationLogEntry) TableName() string {
	return "operation_logs"
}
