// Package config loads the engine's tunables from the environment, with the
// same getEnv* + godotenv pattern the surrounding bot uses for its own
// configuration.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Config holds the Order Position Manager's tunables (spec.md §3, §10).
type Config struct {
	// MaxConcurrentGroups caps the number of non-Closed groups the Registry
	// admits at once (spec.md §3's MAX_CONCURRENT_GROUPS).
	MaxConcurrentGroups int

	// MatchTolerance is the absolute price tolerance used when matching an
	// incoming OrderRequest against an existing Pending group for
	// deduplication (spec.md §3's MATCH_TOLERANCE).
	MatchTolerance decimal.Decimal

	// EventQueueDepth sizes the Event Bus's inbound buffer.
	EventQueueDepth int

	// TelegramToken/ChatID configure the optional notify subscriber. An
	// empty TelegramToken disables it.
	TelegramToken  string
	TelegramChatID int64

	// DatabasePath is the audit log's database: a sqlite file path, or a
	// postgres:// / postgresql:// DSN. audit.Open treats an empty path as
	// "no persistence", but Load never returns one: an unset or empty
	// DATABASE_PATH falls back to data/ordergroup.db.
	DatabasePath string
}

// Load reads a .env file if present, falling back to the process
// environment, and applies spec.md's defaults for anything unset.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, using environment variables")
	}

	cfg := &Config{
		MaxConcurrentGroups: getEnvInt("MAX_CONCURRENT_GROUPS", 5),
		MatchTolerance:      getEnvDecimal("MATCH_TOLERANCE", decimal.NewFromFloat(1e-8)),
		EventQueueDepth:     getEnvInt("EVENT_QUEUE_DEPTH", 256),
		TelegramToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabasePath:        getEnv("DATABASE_PATH", "data/ordergroup.db"),
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if cfg.MaxConcurrentGroups <= 0 {
		return nil, fmt.Errorf("MAX_CONCURRENT_GROUPS must be positive, got %d", cfg.MaxConcurrentGroups)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
