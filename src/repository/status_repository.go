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

// StatusRepository handles the single durable status snapshot per strategy.
type StatusRepository struct {
	db *gorm.DB
}

// NewStatusRepository creates a new repository instance using the main database.
func NewStatusRepository() *StatusRepository {
	return &StatusRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *StatusRepository) WithDB(db *gorm.DB) *StatusRepository {
	return &StatusRepository{db: db}
}

// Save upserts the snapshot keyed by strategy_id. Every successful tick
// overwrites the previous row.
func (r *StatusRepository) Save(
	ctx context.Context,
	status *model.StrategyStatus,
) error {

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "strategy_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"symbol", "base_price", "grid_width", "trade_size", "ladder_json",
				"position", "total_profit", "last_fill_price", "last_fill_side",
				"active_orders", "data_verified", "timestamp", "updated_at",
			}),
		}).
		Create(status).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "StatusRepository",
			"op":          "Save",
			"strategy_id": status.StrategyID,
		}).WithError(err).Error("Failed to save status snapshot")

		return err
	}

	return nil
}

// Load fetches the snapshot for one strategy.
// Returns (nil, nil) if no snapshot exists yet.
func (r *StatusRepository) Load(
	ctx context.Context,
	strategyID string,
) (*model.StrategyStatus, error) {

	var status model.StrategyStatus

	err := r.db.WithContext(ctx).
		Where("strategy_id = ?", strategyID).
		First(&status).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo":        "StatusRepository",
				"op":          "Load",
				"strategy_id": strategyID,
			}).Info("No status snapshot found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":        "StatusRepository",
			"op":          "Load",
			"strategy_id": strategyID,
		}).WithError(err).Error("Failed to load status snapshot")

		return nil, err
	}

	return &status, nil
}

// DeleteByStrategy removes the snapshot for one strategy.
func (r *StatusRepository) DeleteByStrategy(
	ctx context.Context,
	strategyID string,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":        "StatusRepository",
		"op":          "DeleteByStrategy",
		"strategy_id": strategyID,
	}).Warn("Deleting status snapshot")

	return r.db.WithContext(ctx).
		Where("strategy_id = ?", strategyID).
		Delete(&model.StrategyStatus{}).Error
}
