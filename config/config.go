package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tradeEngine/internal/adapters/logger" // Import the logger package for LogLevel
)

const (
	// GatewaySimulated runs the engine against the in-process gateway.
	GatewaySimulated = "sim"
	// GatewayBinance runs the engine against Binance USD-M futures.
	GatewayBinance = "binance"
)

// Config holds all application configuration.
type Config struct {
	// Gateway selection
	Gateway string // "sim" or "binance"

	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool
	Symbols   []string // symbols to publish contracts for and subscribe to

	// Event bus
	EventQueueSize int
	TimerInterval  time.Duration

	// Position accounting
	SplitCloseExchanges  []string // venues that reject plain close and need today/yesterday legs
	TodayPenaltyProducts []string // product prefixes where closing today is penalised

	// Risk limits
	RiskMaxOrderVolume float64
	RiskMaxTotalOrders int
	RiskMaxFlowCount   int
	RiskMaxCancelCount int

	// Persistence
	DBPath           string
	PersistQueueSize int

	// Strategy configuration file
	StrategiesFile string

	// Logging
	LogLevel logger.LogLevel

	// Connection Settings
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string // Collect validation errors

	cfg.Gateway = strings.ToLower(getEnv("GATEWAY", GatewaySimulated))
	if cfg.Gateway != GatewaySimulated && cfg.Gateway != GatewayBinance {
		errs = append(errs, fmt.Sprintf("GATEWAY must be %q or %q", GatewaySimulated, GatewayBinance))
	}

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety
	if cfg.Gateway == GatewayBinance {
		if cfg.APIKey == "" {
			errs = append(errs, "BINANCE_API_KEY must be set for the binance gateway")
		}
		if cfg.SecretKey == "" {
			errs = append(errs, "BINANCE_API_SECRET must be set for the binance gateway")
		}
	}
	cfg.Symbols = getEnvAsList("SYMBOLS", []string{"ETHUSDT"})

	// Event bus
	cfg.EventQueueSize = getEnvAsInt("EVENT_QUEUE_SIZE", 10000)
	if cfg.EventQueueSize <= 0 {
		errs = append(errs, "EVENT_QUEUE_SIZE must be positive")
	}
	timerSeconds := getEnvAsInt("TIMER_INTERVAL_SECONDS", 1)
	if timerSeconds <= 0 {
		errs = append(errs, "TIMER_INTERVAL_SECONDS must be positive")
	}
	cfg.TimerInterval = time.Duration(timerSeconds) * time.Second

	// Position accounting
	cfg.SplitCloseExchanges = getEnvAsList("SPLIT_CLOSE_EXCHANGES", nil)
	cfg.TodayPenaltyProducts = getEnvAsList("TODAY_PENALTY_PRODUCTS", nil)

	// Risk limits
	cfg.RiskMaxOrderVolume = getEnvAsFloat("RISK_MAX_ORDER_VOLUME", 100)
	if cfg.RiskMaxOrderVolume <= 0 {
		errs = append(errs, "RISK_MAX_ORDER_VOLUME must be positive")
	}
	cfg.RiskMaxTotalOrders = getEnvAsInt("RISK_MAX_TOTAL_ORDERS", 500)
	if cfg.RiskMaxTotalOrders <= 0 {
		errs = append(errs, "RISK_MAX_TOTAL_ORDERS must be positive")
	}
	cfg.RiskMaxFlowCount = getEnvAsInt("RISK_MAX_FLOW_COUNT", 50)
	if cfg.RiskMaxFlowCount <= 0 {
		errs = append(errs, "RISK_MAX_FLOW_COUNT must be positive")
	}
	cfg.RiskMaxCancelCount = getEnvAsInt("RISK_MAX_CANCEL_COUNT", 500)
	if cfg.RiskMaxCancelCount <= 0 {
		errs = append(errs, "RISK_MAX_CANCEL_COUNT must be positive")
	}

	// Persistence
	cfg.DBPath = getEnv("DB_PATH", "./data/trade_engine.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}
	cfg.PersistQueueSize = getEnvAsInt("PERSIST_QUEUE_SIZE", 1000)
	if cfg.PersistQueueSize <= 0 {
		errs = append(errs, "PERSIST_QUEUE_SIZE must be positive")
	}

	// Strategy configuration file
	cfg.StrategiesFile = getEnv("STRATEGIES_FILE", "./strategies.yaml")

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Connection Settings
	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList parses a comma separated list, dropping empty entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
