package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel  string
	LogFormat string
	HTTPPort  string

	// Exchange API
	ExchangeAPIBase    string
	ExchangeWSURL      string
	ExchangeKeyID      string
	ExchangeKeyPath    string
	ExchangeRateLimit  float64 // requests per second
	ExchangeRateBurst  int
	ExchangeHTTPTimout time.Duration

	// Odds provider
	OddsAPIBase string
	OddsAPIKey  string

	// Quoting
	CheckInterval           time.Duration
	StickyResetSecs         time.Duration
	OverbidCancelDelay      time.Duration
	RebalanceFeeBufferCents int
	DefaultEdgeCents        int
	DefaultOrderSize        int
	DefaultInventoryCap     int
	ReconcileWorkers        int

	// Balance breaker
	BalanceCheckInterval   time.Duration
	BalanceFloorCents      int64
	BalanceOrderMultiplier float64
	BalanceHysteresisRatio float64

	// WebSocket
	WSDialTimeout           time.Duration
	WSPongTimeout           time.Duration
	WSPingInterval          time.Duration
	WSReconnectInitialDelay time.Duration
	WSReconnectMaxDelay     time.Duration
	WSReconnectBackoffMult  float64
	WSMessageBufferSize     int

	// Journal
	JournalDriver string // "sqlite" or "postgres"
	JournalPath   string // sqlite file path
	PostgresHost  string
	PostgresPort  string
	PostgresUser  string
	PostgresPass  string
	PostgresDB    string
	PostgresSSL   string
}

// Floors on the operator-tunable timings. Settings below these flap orders
// faster than the exchange can keep up with.
const (
	MinCheckInterval     = 500 * time.Millisecond
	MinStickyReset       = time.Second
	MinOverbidCancelWait = time.Second
)

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		// Application defaults
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "json"),
		HTTPPort:  getEnvOrDefault("HTTP_PORT", "8080"),

		// Exchange API defaults
		ExchangeAPIBase:    getEnvOrDefault("KALSHI_API_BASE", "https://api.elections.kalshi.com"),
		ExchangeWSURL:      getEnvOrDefault("KALSHI_WS_URL", "wss://api.elections.kalshi.com/trade-api/ws/v2"),
		ExchangeKeyID:      os.Getenv("KALSHI_ACCESS_KEY_ID"),
		ExchangeKeyPath:    os.Getenv("KALSHI_PRIVATE_KEY_PATH"),
		ExchangeRateLimit:  getFloat64OrDefault("KALSHI_RATE_LIMIT", 10.0),
		ExchangeRateBurst:  getIntOrDefault("KALSHI_RATE_BURST", 20),
		ExchangeHTTPTimout: getDurationOrDefault("KALSHI_HTTP_TIMEOUT", 15*time.Second),

		// Odds provider defaults
		OddsAPIBase: getEnvOrDefault("ODDS_API_BASE", "https://api.the-odds-api.com"),
		OddsAPIKey:  os.Getenv("ODDS_API_KEY"),

		// Quoting defaults
		CheckInterval:           getDurationOrDefault("CHECK_INTERVAL", 2*time.Second),
		StickyResetSecs:         getDurationOrDefault("STICKY_RESET_SECS", 30*time.Second),
		OverbidCancelDelay:      getDurationOrDefault("OVERBID_CANCEL_DELAY", 10*time.Second),
		RebalanceFeeBufferCents: getIntOrDefault("REBALANCE_FEE_BUFFER_CENTS", 2),
		DefaultEdgeCents:        getIntOrDefault("DEFAULT_EDGE_CENTS", 3),
		DefaultOrderSize:        getIntOrDefault("DEFAULT_ORDER_SIZE", 20),
		DefaultInventoryCap:     getIntOrDefault("DEFAULT_INVENTORY_CAP", 100),
		ReconcileWorkers:        getIntOrDefault("RECONCILE_WORKERS", 20),

		// Balance breaker defaults
		BalanceCheckInterval:   getDurationOrDefault("BALANCE_CHECK_INTERVAL", 30*time.Second),
		BalanceFloorCents:      int64(getIntOrDefault("BALANCE_FLOOR_CENTS", 1000)),
		BalanceOrderMultiplier: getFloat64OrDefault("BALANCE_ORDER_MULTIPLIER", 3.0),
		BalanceHysteresisRatio: getFloat64OrDefault("BALANCE_HYSTERESIS_RATIO", 1.5),

		// WebSocket defaults
		WSDialTimeout:           getDurationOrDefault("WS_DIAL_TIMEOUT", 10*time.Second),
		WSPongTimeout:           getDurationOrDefault("WS_PONG_TIMEOUT", 15*time.Second),
		WSPingInterval:          getDurationOrDefault("WS_PING_INTERVAL", 10*time.Second),
		WSReconnectInitialDelay: getDurationOrDefault("WS_RECONNECT_INITIAL_DELAY", 1*time.Second),
		WSReconnectMaxDelay:     getDurationOrDefault("WS_RECONNECT_MAX_DELAY", 30*time.Second),
		WSReconnectBackoffMult:  getFloat64OrDefault("WS_RECONNECT_BACKOFF_MULTIPLIER", 2.0),
		WSMessageBufferSize:     getIntOrDefault("WS_MESSAGE_BUFFER_SIZE", 1000),

		// Journal defaults
		JournalDriver: getEnvOrDefault("JOURNAL_DRIVER", "sqlite"),
		JournalPath:   getEnvOrDefault("JOURNAL_PATH", "pnl.db"),
		PostgresHost:  getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort:  getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser:  getEnvOrDefault("POSTGRES_USER", "kalshi"),
		PostgresPass:  getEnvOrDefault("POSTGRES_PASSWORD", "kalshi"),
		PostgresDB:    getEnvOrDefault("POSTGRES_DB", "kalshi_mm"),
		PostgresSSL:   getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if c.ExchangeAPIBase == "" {
		return fmt.Errorf("KALSHI_API_BASE cannot be empty")
	}

	if c.ExchangeWSURL == "" {
		return fmt.Errorf("KALSHI_WS_URL cannot be empty")
	}

	if c.JournalDriver != "sqlite" && c.JournalDriver != "postgres" {
		return fmt.Errorf("JOURNAL_DRIVER must be 'sqlite' or 'postgres', got %q", c.JournalDriver)
	}

	if c.CheckInterval < MinCheckInterval {
		return fmt.Errorf("CHECK_INTERVAL must be at least %s, got %s", MinCheckInterval, c.CheckInterval)
	}

	if c.StickyResetSecs < MinStickyReset {
		return fmt.Errorf("STICKY_RESET_SECS must be at least %s, got %s", MinStickyReset, c.StickyResetSecs)
	}

	if c.OverbidCancelDelay < MinOverbidCancelWait {
		return fmt.Errorf("OVERBID_CANCEL_DELAY must be at least %s, got %s", MinOverbidCancelWait, c.OverbidCancelDelay)
	}

	if c.RebalanceFeeBufferCents < 0 {
		return fmt.Errorf("REBALANCE_FEE_BUFFER_CENTS cannot be negative, got %d", c.RebalanceFeeBufferCents)
	}

	if c.DefaultEdgeCents < 1 {
		return fmt.Errorf("DEFAULT_EDGE_CENTS must be at least 1, got %d", c.DefaultEdgeCents)
	}

	if c.ReconcileWorkers < 1 {
		return fmt.Errorf("RECONCILE_WORKERS must be at least 1, got %d", c.ReconcileWorkers)
	}

	if c.BalanceFloorCents < 1 {
		return fmt.Errorf("BALANCE_FLOOR_CENTS must be at least 1, got %d", c.BalanceFloorCents)
	}

	if c.BalanceHysteresisRatio < 1.0 {
		return fmt.Errorf("BALANCE_HYSTERESIS_RATIO must be at least 1.0, got %g", c.BalanceHysteresisRatio)
	}

	return nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}
