package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	APIKey         string `envconfig:"PHEMEX_API_KEY"`
	APISecret      string `envconfig:"PHEMEX_API_SECRET"`
	BaseURL        string `envconfig:"BASE_URL" default:"https://testnet-api.phemex.com"`
	WSBaseURL      string `envconfig:"WS_BASE_URL" default:"wss://testnet-api.phemex.com/ws"`
	TargetExchange string `envconfig:"TARGET_EXCHANGE" default:"phemex"`
	TargetSymbol   string `envconfig:"TARGET_SYMBOL" default:"BTCUSD"`

	StrategyID string  `envconfig:"STRATEGY_ID" default:"grid-1"`
	BasePrice  float64 `envconfig:"BASE_PRICE"`
	GridWidth  float64 `envconfig:"GRID_WIDTH" default:"200"`
	TradeSize  float64 `envconfig:"TRADE_SIZE" default:"0.01"`
	DownLevels int     `envconfig:"DOWN_LEVELS" default:"5"`
	UpLevels   int     `envconfig:"UP_LEVELS" default:"5"`

	LoopPeriod        time.Duration `envconfig:"LOOP_PERIOD" default:"1s"`
	HealthCheckPeriod time.Duration `envconfig:"HEALTH_CHECK_PERIOD" default:"30s"`
	SummaryPeriod     time.Duration `envconfig:"SUMMARY_PERIOD" default:"60s"`
	FillPollLimit     int           `envconfig:"FILL_POLL_LIMIT" default:"50"`
	QueueSize         int           `envconfig:"QUEUE_SIZE" default:"256"`

	RetryAttempts int           `envconfig:"RETRY_ATTEMPTS" default:"3"`
	RetryDelay    time.Duration `envconfig:"RETRY_DELAY" default:"1s"`

	MaxConsecutiveFailures int           `envconfig:"MAX_CONSECUTIVE_FAILURES" default:"5"`
	PauseBase              time.Duration `envconfig:"PAUSE_BASE" default:"30s"`
	PauseMax               time.Duration `envconfig:"PAUSE_MAX" default:"10m"`

	VerifySamples        int           `envconfig:"VERIFY_SAMPLES" default:"3"`
	VerifySampleDelay    time.Duration `envconfig:"VERIFY_SAMPLE_DELAY" default:"300ms"`
	VerifyPriceTolerance float64       `envconfig:"VERIFY_PRICE_TOLERANCE" default:"0.001"`

	// The cache TTL must outlast the cooldown: ticks inside the cooldown
	// window are served the cached value instead of being held unverified.
	VerifyCacheTTL time.Duration `envconfig:"VERIFY_CACHE_TTL" default:"6s"`
	VerifyCooldown time.Duration `envconfig:"VERIFY_COOLDOWN" default:"5s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
