package model

import "time"

// ExchangeCredential stores encrypted API credentials for one exchange.
// The key/secret are AES-GCM encrypted before they ever hit the database;
// the executor decrypts them at startup.
type ExchangeCredential struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Exchange      string    `gorm:"size:100;uniqueIndex" json:"exchange"`
	APIKeyHash    string    `gorm:"column:api_key;type:text" json:"-"`
	APISecretHash string    `gorm:"column:api_secret;type:text" json:"-"`
	RunOnServer   bool      `gorm:"column:run_on_server" json:"run_on_server"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName allows you to control the exact table name for credentials.
func (ExchangeCredential) TableName() string {
	return "exchange_credentials"
}
