package controller

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Flat detection and position building
	FlatConfirmations int           `envconfig:"FLAT_CONFIRMATIONS" default:"2"`
	BuildCooldown     time.Duration `envconfig:"BUILD_COOLDOWN" default:"60s"`
	BuildFillWait     time.Duration `envconfig:"BUILD_FILL_WAIT" default:"30s"`

	// Order reconciliation
	ReconcileMinInterval time.Duration `envconfig:"RECONCILE_MIN_INTERVAL" default:"5s"`
	OrderConfirmRetries  int           `envconfig:"ORDER_CONFIRM_RETRIES" default:"10"`
	OrderConfirmDelay    time.Duration `envconfig:"ORDER_CONFIRM_DELAY" default:"500ms"`
	CancelWait           time.Duration `envconfig:"CANCEL_WAIT" default:"10s"`
	CancelPollInterval   time.Duration `envconfig:"CANCEL_POLL_INTERVAL" default:"500ms"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
