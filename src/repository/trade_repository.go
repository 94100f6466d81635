package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gridexecutor/src/database"
	"gridexecutor/src/model"
)

// TradeRepository handles append-only trade records and matched trade pairs.
type TradeRepository struct {
	db *gorm.DB
}

// NewTradeRepository creates a new repository instance using the main database.
func NewTradeRepository() *TradeRepository {
	return &TradeRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *TradeRepository) WithDB(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// ---------------------------------------------------
// TradeRecord methods
// ---------------------------------------------------

// AppendTrade inserts one fill record. Records are immutable; a duplicate
// trade_id is silently ignored so replayed fills cannot double-insert.
func (r *TradeRepository) AppendTrade(
	ctx context.Context,
	trade *model.TradeRecord,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":     "TradeRepository",
		"op":       "AppendTrade",
		"trade_id": trade.TradeID,
		"side":     trade.Side,
		"price":    trade.Price,
		"size":     trade.Size,
	}).Debug("Appending trade record")

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "trade_id"}},
			DoNothing: true,
		}).
		Create(trade).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "TradeRepository",
			"op":       "AppendTrade",
			"trade_id": trade.TradeID,
		}).WithError(err).Error("Failed to append trade record")

		return err
	}

	return nil
}

// ListTrades returns all trades for one strategy ordered oldest to newest.
func (r *TradeRepository) ListTrades(
	ctx context.Context,
	strategyID string,
) ([]model.TradeRecord, error) {

	var trades []model.TradeRecord

	err := r.db.WithContext(ctx).
		Where("strategy_id = ?", strategyID).
		Order("id ASC").
		Find(&trades).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "TradeRepository",
			"op":          "ListTrades",
			"strategy_id": strategyID,
		}).WithError(err).Error("Failed to list trades")

		return nil, err
	}

	return trades, nil
}

// FindTradeByID fetches one trade by its exchange trade ID.
// Returns (nil, nil) if the trade is not found.
func (r *TradeRepository) FindTradeByID(
	ctx context.Context,
	tradeID string,
) (*model.TradeRecord, error) {

	var trade model.TradeRecord

	err := r.db.WithContext(ctx).
		Where("trade_id = ?", tradeID).
		First(&trade).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":     "TradeRepository",
			"op":       "FindTradeByID",
			"trade_id": tradeID,
		}).WithError(err).Error("Failed to fetch trade")

		return nil, err
	}

	return &trade, nil
}

// ---------------------------------------------------
// TradePair methods
// ---------------------------------------------------

// AppendTradePair inserts one matched buy/sell cycle.
func (r *TradeRepository) AppendTradePair(
	ctx context.Context,
	pair *model.TradePair,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":    "TradeRepository",
		"op":      "AppendTradePair",
		"pair_id": pair.PairID,
		"profit":  pair.Profit,
	}).Debug("Appending trade pair")

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pair_id"}},
			DoNothing: true,
		}).
		Create(pair).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "TradeRepository",
			"op":      "AppendTradePair",
			"pair_id": pair.PairID,
		}).WithError(err).Error("Failed to append trade pair")

		return err
	}

	return nil
}

// ListPairs returns all pairs for one strategy ordered oldest to newest.
func (r *TradeRepository) ListPairs(
	ctx context.Context,
	strategyID string,
) ([]model.TradePair, error) {

	var pairs []model.TradePair

	err := r.db.WithContext(ctx).
		Where("strategy_id = ?", strategyID).
		Order("id ASC").
		Find(&pairs).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "TradeRepository",
			"op":          "ListPairs",
			"strategy_id": strategyID,
		}).WithError(err).Error("Failed to list trade pairs")

		return nil, err
	}

	return pairs, nil
}

// SumClosedPairProfit recomputes realized profit from closed pairs. The
// running total is never trusted; this aggregate is the source of truth.
func (r *TradeRepository) SumClosedPairProfit(
	ctx context.Context,
	strategyID string,
) (float64, error) {

	var total float64

	err := r.db.WithContext(ctx).
		Model(&model.TradePair{}).
		Where("strategy_id = ? AND status = ?", strategyID, model.TradePairStatusClosed).
		Select("COALESCE(SUM(profit), 0)").
		Scan(&total).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "TradeRepository",
			"op":          "SumClosedPairProfit",
			"strategy_id": strategyID,
		}).WithError(err).Error("Failed to sum closed pair profit")

		return 0, err
	}

	return total, nil
}

// DeleteByStrategy removes all trades and pairs for one strategy.
// Only used by the operator reset flow.
func (r *TradeRepository) DeleteByStrategy(
	ctx context.Context,
	strategyID string,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":        "TradeRepository",
		"op":          "DeleteByStrategy",
		"strategy_id": strategyID,
	}).Warn("Deleting all trades and pairs for strategy")

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("strategy_id = ?", strategyID).
			Delete(&model.TradeRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("strategy_id = ?", strategyID).
			Delete(&model.TradePair{}).Error
	})
}
