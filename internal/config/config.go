package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/aristath/riskengine/pkg/formulas"
)

// Config holds application configuration
type Config struct {
	DataDir       string // Base directory for the history database
	HistoryDBPath string // Full path to the SQLite history database
	LogLevel      string
	LogPretty     bool

	RiskFreeRate      float64 // Annualized, e.g. 0.02 for 2%
	PeriodsPerYear    float64 // 252 for daily data
	LongOnly          bool
	MonteCarloSamples int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "")
	if dataDir == "" {
		if _, err := os.Stat("../data"); err == nil {
			dataDir = "../data"
		} else {
			dataDir = "./data"
		}
	}

	cfg := &Config{
		DataDir:           dataDir,
		HistoryDBPath:     getEnv("HISTORY_DB_PATH", filepath.Join(dataDir, "history.db")),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogPretty:         getEnvAsBool("LOG_PRETTY", true),
		RiskFreeRate:      getEnvAsFloat("RISK_FREE_RATE", 0.02),
		PeriodsPerYear:    getEnvAsFloat("PERIODS_PER_YEAR", formulas.TradingDaysPerYear),
		LongOnly:          getEnvAsBool("LONG_ONLY", true),
		MonteCarloSamples: getEnvAsInt("MONTE_CARLO_SAMPLES", 10000),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.PeriodsPerYear <= 0 {
		return fmt.Errorf("config: periods per year %v must be positive", c.PeriodsPerYear)
	}
	if c.RiskFreeRate < 0 {
		return fmt.Errorf("config: risk-free rate %v cannot be negative", c.RiskFreeRate)
	}
	if c.MonteCarloSamples <= 0 {
		return fmt.Errorf("config: monte carlo samples %d must be positive", c.MonteCarloSamples)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
