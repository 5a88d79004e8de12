package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime settings, loaded from the environment with an
// optional .env file on top.
type Config struct {
	UpbitAccessKey string `envconfig:"UPBIT_ACCESS_KEY"`
	UpbitSecretKey string `envconfig:"UPBIT_SECRET_KEY"`
	UpbitBaseURL   string `envconfig:"UPBIT_BASE_URL" default:"https://api.upbit.com"`

	ListenAddr   string `envconfig:"LISTEN_ADDR" default:":8080"`
	WebhookToken string `envconfig:"WEBHOOK_TOKEN"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
	DBPath       string `envconfig:"DB_PATH" default:"./data/bot_events.db"`

	// A day-long TTL means one TradingView alert firing twice, hours
	// apart, still counts as the same signal.
	SignalTTL     time.Duration `envconfig:"SIGNAL_TTL" default:"24h"`
	WatchInterval time.Duration `envconfig:"WATCH_INTERVAL" default:"3s"`
	MinOrderKRW   float64       `envconfig:"MIN_ORDER_KRW" default:"5000"`
	EventRingSize int           `envconfig:"EVENT_RING_SIZE" default:"50"`

	OrderRetryAttempts int           `envconfig:"ORDER_RETRY_ATTEMPTS" default:"3"`
	OrderRetryWaitMin  time.Duration `envconfig:"ORDER_RETRY_WAIT_MIN" default:"1s"`
	OrderRetryWaitMax  time.Duration `envconfig:"ORDER_RETRY_WAIT_MAX" default:"4s"`
	FillTimeout        time.Duration `envconfig:"FILL_TIMEOUT" default:"10s"`
	FillPoll           time.Duration `envconfig:"FILL_POLL" default:"1s"`
	PriceRetryAttempts int           `envconfig:"PRICE_RETRY_ATTEMPTS" default:"3"`
	PriceRetryWaitMin  time.Duration `envconfig:"PRICE_RETRY_WAIT_MIN" default:"500ms"`
	PriceRetryWaitMax  time.Duration `envconfig:"PRICE_RETRY_WAIT_MAX" default:"2s"`

	SkipRecovery bool `envconfig:"SKIP_RECOVERY" default:"false"`

	// RecoveryMarket, when set, names the KRW pair a leftover holding is
	// rebuilt into at startup. Left empty, holdings are reported but not
	// recovered. The tp/sl levels apply to the recovered position; both
	// must be set for the watcher to manage it.
	RecoveryMarket     string  `envconfig:"RECOVERY_MARKET"`
	RecoveryTakeProfit float64 `envconfig:"RECOVERY_TP" default:"0"`
	RecoveryStopLoss   float64 `envconfig:"RECOVERY_SL" default:"0"`
}

// LoadConfig reads settings from a .env file (if present) and the process
// environment, then validates them.
func LoadConfig() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	cfg.RecoveryMarket = strings.ToUpper(strings.TrimSpace(cfg.RecoveryMarket))
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	if c.UpbitAccessKey == "" {
		errs = append(errs, errors.New("UPBIT_ACCESS_KEY is required"))
	}
	if c.UpbitSecretKey == "" {
		errs = append(errs, errors.New("UPBIT_SECRET_KEY is required"))
	}
	if c.RecoveryMarket != "" {
		if quote, _, found := strings.Cut(c.RecoveryMarket, "-"); !found || quote != "KRW" {
			errs = append(errs, fmt.Errorf("RECOVERY_MARKET %q must be a KRW pair like KRW-BTC", c.RecoveryMarket))
		}
	}
	if c.SignalTTL < 0 {
		errs = append(errs, errors.New("SIGNAL_TTL must not be negative"))
	}
	if c.WatchInterval <= 0 {
		errs = append(errs, errors.New("WATCH_INTERVAL must be positive"))
	}
	if c.OrderRetryAttempts <= 0 {
		errs = append(errs, errors.New("ORDER_RETRY_ATTEMPTS must be positive"))
	}
	if c.OrderRetryWaitMax < c.OrderRetryWaitMin {
		errs = append(errs, errors.New("ORDER_RETRY_WAIT_MAX must not be below ORDER_RETRY_WAIT_MIN"))
	}
	if c.FillTimeout <= 0 || c.FillPoll <= 0 {
		errs = append(errs, errors.New("FILL_TIMEOUT and FILL_POLL must be positive"))
	}
	if c.MinOrderKRW <= 0 {
		errs = append(errs, errors.New("MIN_ORDER_KRW must be positive"))
	}
	if c.RecoveryTakeProfit < 0 || c.RecoveryStopLoss < 0 {
		errs = append(errs, errors.New("RECOVERY_TP and RECOVERY_SL must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}
	return nil
}
