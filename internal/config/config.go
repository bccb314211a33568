// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir         string // Base directory for all databases (always absolute)
	Port            int
	DevMode         bool
	LogLevel        string
	FxFeedURL       string // Base URL of the exchange rate feed
	MarketFeedURL   string // Base URL of the security metadata/price feed
	RefreshSchedule string // Cron expression for the nightly full refresh
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Determine data directory with fallback logic
	// 1. Check VALORA_DATA_DIR environment variable
	// 2. If not set, default to ./data
	// 3. Always resolve to absolute path
	// 4. Ensure directory exists
	dataDir := getEnv("VALORA_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:         absDataDir,
		Port:            getEnvAsInt("VALORA_PORT", 8080),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		FxFeedURL:       getEnv("FX_FEED_URL", "https://api.exchangerate-api.com/v4/latest"),
		MarketFeedURL:   getEnv("MARKET_FEED_URL", "https://query1.finance.yahoo.com"),
		RefreshSchedule: getEnv("REFRESH_SCHEDULE", "0 30 2 * * *"), // 02:30 daily
	}

	return cfg, nil
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
