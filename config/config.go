package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tradearena/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
type Config struct {
	// Market data
	Symbols      []string
	PollInterval time.Duration
	IsTestnet    bool

	// Sampling pool
	SamplingMaxSamples int
	SamplingInterval   time.Duration

	// Decision backend
	DecisionTimeout time.Duration

	// Trigger coordinator
	StrategyRefreshInterval time.Duration

	// Paper trading
	StartingCash   float64
	CommissionRate float64 // Fraction of notional per fill

	// Execution simulator overrides (0 keeps the simulator default)
	MaxOrderValueUSD     float64
	RejectionProbability float64

	// Database
	DBPath string

	// Event bus (empty disables broadcasting)
	NATSURL string

	// Metrics endpoint (empty disables the HTTP listener)
	MetricsAddr string

	// Logging
	LogLevel   logger.LogLevel // Use the LogLevel type from the logger adapter
	LogBackend string          // "zerolog" (default), "console", or "text"
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Market data
	symbolsStr := getEnv("SYMBOLS", "BTCUSDT,ETHUSDT")
	for _, s := range strings.Split(symbolsStr, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			cfg.Symbols = append(cfg.Symbols, strings.ToUpper(s))
		}
	}
	if len(cfg.Symbols) == 0 {
		errs = append(errs, "SYMBOLS must name at least one trading symbol")
	}

	pollMillis := getEnvAsInt("POLL_INTERVAL_MS", 1500)
	if pollMillis <= 0 {
		errs = append(errs, "POLL_INTERVAL_MS must be positive")
	}
	cfg.PollInterval = time.Duration(pollMillis) * time.Millisecond

	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)

	// Sampling pool
	cfg.SamplingMaxSamples = getEnvAsInt("SAMPLING_MAX_SAMPLES", 10)
	if cfg.SamplingMaxSamples <= 0 {
		errs = append(errs, "SAMPLING_MAX_SAMPLES must be positive")
	}
	samplingSeconds := getEnvAsInt("SAMPLING_INTERVAL_SECONDS", 18)
	if samplingSeconds < 0 {
		errs = append(errs, "SAMPLING_INTERVAL_SECONDS cannot be negative")
	}
	cfg.SamplingInterval = time.Duration(samplingSeconds) * time.Second

	// Decision backend
	decisionTimeoutSeconds := getEnvAsInt("DECISION_TIMEOUT_SECONDS", 30)
	if decisionTimeoutSeconds <= 0 {
		errs = append(errs, "DECISION_TIMEOUT_SECONDS must be positive")
	}
	cfg.DecisionTimeout = time.Duration(decisionTimeoutSeconds) * time.Second

	// Trigger coordinator
	refreshSeconds := getEnvAsInt("STRATEGY_REFRESH_SECONDS", 60)
	if refreshSeconds <= 0 {
		errs = append(errs, "STRATEGY_REFRESH_SECONDS must be positive")
	}
	cfg.StrategyRefreshInterval = time.Duration(refreshSeconds) * time.Second

	// Paper trading
	cfg.StartingCash, err = getEnvAsFloatRequired("STARTING_CASH", 10_000.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STARTING_CASH: %v", err))
	} else if cfg.StartingCash <= 0 {
		errs = append(errs, "STARTING_CASH must be positive")
	}

	cfg.CommissionRate, err = getEnvAsFloatRequired("COMMISSION_RATE", 0.0003)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid COMMISSION_RATE: %v", err))
	} else if cfg.CommissionRate < 0 || cfg.CommissionRate >= 1.0 {
		errs = append(errs, "COMMISSION_RATE must be between 0.0 and 1.0 (exclusive)")
	}

	// Simulator overrides
	cfg.MaxOrderValueUSD, err = getEnvAsFloatRequired("MAX_ORDER_VALUE_USD", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_ORDER_VALUE_USD: %v", err))
	} else if cfg.MaxOrderValueUSD < 0 {
		errs = append(errs, "MAX_ORDER_VALUE_USD cannot be negative")
	}
	cfg.RejectionProbability, err = getEnvAsFloatRequired("REJECTION_PROBABILITY", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid REJECTION_PROBABILITY: %v", err))
	} else if cfg.RejectionProbability < 0 || cfg.RejectionProbability >= 1.0 {
		errs = append(errs, "REJECTION_PROBABILITY must be between 0.0 and 1.0 (exclusive)")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/tradearena.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Event bus / metrics
	cfg.NATSURL = getEnv("NATS_URL", "")
	cfg.MetricsAddr = getEnv("METRICS_ADDR", "")

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package
	cfg.LogBackend = strings.ToLower(getEnv("LOG_BACKEND", "zerolog"))
	switch cfg.LogBackend {
	case "zerolog", "console", "text":
	default:
		errs = append(errs, fmt.Sprintf("unknown LOG_BACKEND '%s' (expected zerolog, console, or text)", cfg.LogBackend))
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
		// Log warning? For non-required fields, default is often acceptable.
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
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
