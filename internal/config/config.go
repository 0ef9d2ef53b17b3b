package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultPriceFeedURL is the public spot price endpoint used when
// PRICE_FEED_URL is not set.
const DefaultPriceFeedURL = "https://api.coingecko.com/api/v3/simple/price?ids=bitcoin&vs_currencies=eur"

var defaultCategories = []string{
	"Trasporti", "Casa", "Abbigliamento", "Intrattenimento", "Cibo",
	"Regali", "Farmacia", "Ricarica", "Piano accumulo bitcoin", "Altro",
}

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int
	LogLevel           string
	LogFormat          string

	// Ledger
	AlternateInitialBalance int64
	SuggestedCategories     []string
	CategoriesFile          string

	// Price feed
	PriceFeedURL      string
	PricePollInterval time.Duration
	PriceFetchTimeout time.Duration
	RedisURL          string
	RateHistoryDB     string
	// Quotes older than this are pruned at startup, 0 keeps everything
	RateHistoryRetention time.Duration

	// AMQP
	AMQPURL        string
	AMQPExchange   string
	AMQPQueue      string
	MirrorPrefetch int

	// Google Sheets mirror
	GoogleSpreadsheetID   string
	GoogleSheetName       string
	GoogleOAuthClientFile string
	GoogleOAuthTokenFile  string
	GoogleOAuthClientJSON string
	GoogleOAuthTokenJSON  string
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),

		AlternateInitialBalance: getEnvInt64("ALTERNATE_INITIAL_BALANCE", 0),
		SuggestedCategories:     getEnvList("SUGGESTED_CATEGORIES", defaultCategories),
		CategoriesFile:          getEnv("CATEGORIES_FILE", ""),

		PriceFeedURL:         getEnvAllowEmpty("PRICE_FEED_URL", DefaultPriceFeedURL),
		PricePollInterval:    getEnvDuration("PRICE_POLL_INTERVAL", 5*time.Minute),
		PriceFetchTimeout:    getEnvDuration("PRICE_FETCH_TIMEOUT", 10*time.Second),
		RedisURL:             getEnv("REDIS_URL", ""),
		RateHistoryDB:        getEnv("RATE_HISTORY_DB", ""),
		RateHistoryRetention: getEnvDuration("RATE_HISTORY_RETENTION", 90*24*time.Hour),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "bilancio"),
		AMQPQueue:      getEnv("AMQP_QUEUE", "ledger_events"),
		MirrorPrefetch: getEnvInt("MIRROR_PREFETCH", 10),

		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:       getEnv("GOOGLE_SHEET_NAME", "Transazioni"),
		GoogleOAuthClientFile: getEnv("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthTokenFile:  getEnv("GOOGLE_OAUTH_TOKEN_FILE", ""),
		GoogleOAuthClientJSON: getEnv("GOOGLE_OAUTH_CLIENT_JSON", ""),
		GoogleOAuthTokenJSON:  getEnv("GOOGLE_OAUTH_TOKEN_JSON", ""),
	}
}

// PriceFeedEnabled reports whether the poller should run.
func (c *Config) PriceFeedEnabled() bool { return c.PriceFeedURL != "" }

// EventsEnabled reports whether ledger events are published.
func (c *Config) EventsEnabled() bool { return c.AMQPURL != "" }

// MirrorEnabled reports whether a spreadsheet mirror is configured.
func (c *Config) MirrorEnabled() bool { return c.GoogleSpreadsheetID != "" }

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	// Validate price feed
	if c.PriceFeedURL != "" {
		if u, err := url.Parse(c.PriceFeedURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid price feed URL '%s': must be an absolute http(s) URL", c.PriceFeedURL))
		}
		if c.PricePollInterval < 10*time.Second {
			errors = append(errors, fmt.Sprintf("invalid price poll interval %v: must be at least 10 seconds", c.PricePollInterval))
		} else if c.PricePollInterval > 24*time.Hour {
			errors = append(errors, fmt.Sprintf("invalid price poll interval %v: must be at most 24 hours", c.PricePollInterval))
		}
		if c.PriceFetchTimeout <= 0 {
			errors = append(errors, fmt.Sprintf("invalid price fetch timeout %v: must be positive", c.PriceFetchTimeout))
		} else if c.PriceFetchTimeout > c.PricePollInterval {
			errors = append(errors, fmt.Sprintf("invalid price fetch timeout %v: must not exceed the poll interval", c.PriceFetchTimeout))
		}
	}

	if c.RedisURL != "" {
		if u, err := url.Parse(c.RedisURL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			errors = append(errors, fmt.Sprintf("invalid Redis URL '%s': scheme must be 'redis' or 'rediss'", c.RedisURL))
		}
	}

	if c.RateHistoryRetention < 0 {
		errors = append(errors, fmt.Sprintf("invalid rate history retention %v: must not be negative", c.RateHistoryRetention))
	}

	// Check if the history directory exists or can be created
	if c.RateHistoryDB != "" {
		dir := filepath.Dir(c.RateHistoryDB)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create rate history directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
		if c.MirrorPrefetch < 1 || c.MirrorPrefetch > 1000 {
			errors = append(errors, fmt.Sprintf("invalid mirror prefetch %d: must be between 1 and 1000", c.MirrorPrefetch))
		}
	}

	// Validate Google Sheets configuration if the mirror is enabled
	if c.MirrorEnabled() {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when GOOGLE_SPREADSHEET_ID is set")
		}
		if c.GoogleOAuthClientFile != "" {
			if _, err := os.Stat(c.GoogleOAuthClientFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google OAuth client file does not exist: %s", c.GoogleOAuthClientFile))
			}
		}
		if c.GoogleOAuthTokenFile != "" {
			if _, err := os.Stat(c.GoogleOAuthTokenFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google OAuth token file does not exist: %s", c.GoogleOAuthTokenFile))
			}
		}
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty lets an explicitly empty variable override the default.
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
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

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return append([]string(nil), defaultValue...)
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
