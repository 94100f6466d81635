package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"gridexecutor/src/database"
	"gridexecutor/src/model"
)

// OperationLogRepository handles the append-only operation audit trail.
type OperationLogRepository struct {
	db *gorm.DB
}

// NewOperationLogRepository creates a new repository instance using the main database.
func NewOperationLogRepository() *OperationLogRepository {
	return &OperationLogRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *OperationLogRepository) WithDB(db *gorm.DB) *OperationLogRepository {
	return &OperationLogRepository{db: db}
}

// Append inserts one operation entry. Entries are never updated.
func (r *OperationLogRepository) Append(
	ctx context.Context,
	entry *model.OperationLogEntry,
) error {

	err := r.db.WithContext(ctx).Create(entry).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "OperationLogRepository",
			"op":     "Append",
			"action": entry.Action,
		}).WithError(err).Error("Failed to append operation log entry")

		return err
	}

	return nil
}

// FindLatest returns the latest entries ordered from newest to oldest.
func (r *OperationLogRepository) FindLatest(
	ctx context.Context,
	strategyID string,
	limit int,
) ([]model.OperationLogEntry, error) {

	if limit <= 0 {
		limit = 50
	}

	var entries []model.OperationLogEntry

	err := r.db.WithContext(ctx).
		Where("strategy_id = ?", strategyID).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "OperationLogRepository",
			"op":          "FindLatest",
			"strategy_id": strategyID,
			"limit":       limit,
		}).WithError(err).Error("Failed to fetch operation log entries")

		return nil, err
	}

	return entries, nil
}

// DeleteByStrategy removes all entries for one strategy.
// Only used by the operator reset flow.
func (r *OperationLogRepository) DeleteByStrategy(
	ctx context.Context,
	strategyID string,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":        "OperationLogRepository",
		"op":          "DeleteByStrategy",
		"strategy_id": strategyID,
	}).Warn("Deleting operation log for strategy")

	return r.db.WithContext(ctx).
		Where("strategy_id = ?", strategyID).
		Delete(&model.OperationLogEntry{}).Error
}
