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

// CredentialRepository handles encrypted exchange API credentials.
type CredentialRepository struct {
	db *gorm.DB
}

// NewCredentialRepository creates a new repository instance using the main database.
func NewCredentialRepository() *CredentialRepository {
	return &CredentialRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *CredentialRepository) WithDB(db *gorm.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// GetByExchange fetches the stored credential for one exchange.
// Returns (nil, nil) if no credential is stored.
func (r *CredentialRepository) GetByExchange(
	ctx context.Context,
	exchange string,
) (*model.ExchangeCredential, error) {

	var cred model.ExchangeCredential

	err := r.db.WithContext(ctx).
		Where("exchange = ?", exchange).
		First(&cred).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo":     "CredentialRepository",
				"op":       "GetByExchange",
				"exchange": exchange,
			}).Info("No credential stored for exchange")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":     "CredentialRepository",
			"op":       "GetByExchange",
			"exchange": exchange,
		}).WithError(err).Error("Failed to fetch credential")

		return nil, err
	}

	return &cred, nil
}

// Upsert stores or replaces the credential for one exchange.
func (r *CredentialRepository) Upsert(
	ctx context.Context,
	cred *model.ExchangeCredential,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":     "CredentialRepository",
		"op":       "Upsert",
		"exchange": cred.Exchange,
	}).Info("Storing exchange credential")

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "exchange"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"api_key", "api_secret", "run_on_server", "updated_at",
			}),
		}).
		Create(cred).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "CredentialRepository",
			"op":       "Upsert",
			"exchange": cred.Exchange,
		}).WithError(err).Error("Failed to store credential")

		return err
	}

	return nil
}
