package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Backends accepted by DATA_BACKEND.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

type Config struct {
	// HTTP Server
	Port               string
	LogLevel           string
	RateLimitPerMinute int

	// Ledger storage
	DataBackend  string
	DataFile     string
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets mirror
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	// Worker
	SyncBatchSize  int
	SyncSchedule   string
	DigestSchedule string

	// Hosted text generation for insights
	InferenceURL         string
	InferenceModel       string
	InferenceAPIKey      string
	InferenceTimeout     time.Duration
	InferenceMaxTokens   int
	InferenceTemperature float64
	InsightCacheTTL      time.Duration
}

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8081"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		DataBackend:  getEnv("DATA_BACKEND", BackendMemory),
		DataFile:     getEnv("DATA_FILE", "./data/fintrack.json"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/fintrack.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "fintrack"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "sync_transactions"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Transactions"),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),

		SyncBatchSize:  getEnvInt("SYNC_BATCH_SIZE", 50),
		SyncSchedule:   getEnv("SYNC_SCHEDULE", "*/5 * * * *"),
		DigestSchedule: getEnv("DIGEST_SCHEDULE", "0 8 * * *"),

		InferenceURL:         getEnv("INFERENCE_URL", ""),
		InferenceModel:       getEnv("INFERENCE_MODEL", ""),
		InferenceAPIKey:      getEnv("INFERENCE_API_KEY", ""),
		InferenceTimeout:     getEnvDuration("INFERENCE_TIMEOUT", 15*time.Second),
		InferenceMaxTokens:   getEnvInt("INFERENCE_MAX_TOKENS", 200),
		InferenceTemperature: getEnvFloat("INFERENCE_TEMPERATURE", 0.7),
		InsightCacheTTL:      getEnvDuration("INSIGHT_CACHE_TTL", time.Hour),
	}

	return cfg
}

// ExternalInsightsEnabled reports whether a model key was configured.
func (c *Config) ExternalInsightsEnabled() bool {
	return strings.TrimSpace(c.InferenceAPIKey) != ""
}

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

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	// Validate data backend
	validBackends := []string{BackendMemory, BackendSQLite}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if msg := ensureDir(c.SQLiteDBPath); msg != "" {
			errors = append(errors, msg)
		}
	case BackendMemory:
		// An empty DATA_FILE keeps the ledger in memory only.
		if c.DataFile != "" {
			if msg := ensureDir(c.DataFile); msg != "" {
				errors = append(errors, msg)
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
	}

	if c.GoogleSpreadsheetID != "" && c.GoogleSheetName == "" {
		errors = append(errors, "Google Sheet name is required when a spreadsheet ID is set")
	}
	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}

	// Validate worker configuration
	if c.SyncBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}
	for name, spec := range map[string]string{"sync": c.SyncSchedule, "digest": c.DigestSchedule} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			errors = append(errors, fmt.Sprintf("invalid %s schedule '%s': %v", name, spec, err))
		}
	}

	// Validate inference settings
	if c.InferenceURL != "" {
		if parsedURL, err := url.Parse(c.InferenceURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid inference URL '%s': %v", c.InferenceURL, err))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid inference URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
		}
	}
	if c.InferenceTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid inference timeout %v: must be at least 1 second", c.InferenceTimeout))
	} else if c.InferenceTimeout > 2*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid inference timeout %v: must be at most 2 minutes", c.InferenceTimeout))
	}
	if c.InferenceMaxTokens < 1 || c.InferenceMaxTokens > 2048 {
		errors = append(errors, fmt.Sprintf("invalid inference max tokens %d: must be between 1 and 2048", c.InferenceMaxTokens))
	}
	if c.InferenceTemperature < 0 || c.InferenceTemperature > 2 {
		errors = append(errors, fmt.Sprintf("invalid inference temperature %g: must be between 0 and 2", c.InferenceTemperature))
	}
	if c.InsightCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid insight cache TTL %v: must not be negative", c.InsightCacheTTL))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateWorker adds the checks only the sync worker needs.
func (c *Config) ValidateWorker() error {
	if err := c.Validate(); err != nil {
		return err
	}
	var errors []string
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP URL is required by the worker")
	}
	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path is required by the worker")
	} else if msg := ensureDir(c.SQLiteDBPath); msg != "" {
		errors = append(errors, msg)
	}
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ensureDir creates the parent directory of path and returns a message on
// failure.
func ensureDir(path string) string {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return ""
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Sprintf("cannot create directory '%s': %v", dir, err)
		}
	}
	return ""
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
