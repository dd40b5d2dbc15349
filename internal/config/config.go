package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP configuration
	HTTPAddr string

	// NATS configuration
	NatsEnabled        bool
	NatsURL            string
	NatsRequestSubject string
	NatsTimeout        time.Duration

	// Session store configuration
	StoreBackend string // "redis" or "memory"
	RedisURL     string
	SessionTTL   time.Duration

	// Catalog configuration
	CatalogPath string

	// Anthropic configuration
	AnthropicAPIKey  string
	AnthropicModel   string
	AnthropicTimeout time.Duration

	// Pipeline configuration
	CollaboratorTimeout time.Duration
	HandlerTimeout      time.Duration
	HistoryWindow       int
	CoordinatorParallel bool
	DefaultBusinessType string
	RoutingFile         string

	// Logging configuration
	LogFile  string
	LogLevel string
	LogProd  bool

	// Service configuration
	ServiceName string
}

func Load() (*Config, error) {
	cfg := &Config{
		// HTTP settings
		HTTPAddr: getEnv("HTTP_ADDR", ":8000"),

		// NATS settings
		NatsEnabled:        getBoolEnv("NATS_ENABLED", false),
		NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
		NatsRequestSubject: getEnv("NATS_REQUEST_SUBJECT", "chat.turn"),
		NatsTimeout:        getDurationEnv("NATS_TIMEOUT", 30*time.Second),

		// Session store settings
		StoreBackend: getEnv("STORE_BACKEND", "memory"),
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379/0"),
		SessionTTL:   getDurationEnv("SESSION_TTL", 30*time.Minute),

		// Catalog settings
		CatalogPath: getEnv("CATALOG_DB_PATH", "./data/catalog.db"),

		// Anthropic settings
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:   getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),
		AnthropicTimeout: getDurationEnv("ANTHROPIC_TIMEOUT", 30*time.Second),

		// Pipeline settings
		CollaboratorTimeout: getDurationEnv("COLLABORATOR_TIMEOUT", 30*time.Second),
		HandlerTimeout:      getDurationEnv("HANDLER_TIMEOUT", 30*time.Second),
		HistoryWindow:       getIntEnv("HISTORY_WINDOW", 5),
		CoordinatorParallel: getBoolEnv("COORDINATOR_PARALLEL", false),
		DefaultBusinessType: getEnv("BUSINESS_TYPE", "generic"),
		RoutingFile:         getEnv("ROUTING_FILE", ""),

		// Logging settings
		LogFile:  getEnv("LOG_FILE", "./data/logs/chatbuddy.log"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogProd:  getBoolEnv("LOG_PROD", false),

		// Service settings
		ServiceName: getEnv("SERVICE_NAME", "chatbuddy"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that required fields are set and values are in range.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR cannot be empty")
	}
	switch c.StoreBackend {
	case "redis", "memory":
	default:
		return fmt.Errorf("STORE_BACKEND must be redis or memory, got %q", c.StoreBackend)
	}
	if c.StoreBackend == "redis" && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required for the redis store")
	}
	if c.NatsEnabled && c.NatsRequestSubject == "" {
		return fmt.Errorf("NATS_REQUEST_SUBJECT cannot be empty")
	}
	if c.CatalogPath == "" {
		return fmt.Errorf("CATALOG_DB_PATH cannot be empty")
	}
	if c.HistoryWindow <= 0 {
		return fmt.Errorf("HISTORY_WINDOW must be > 0")
	}
	if c.CollaboratorTimeout <= 0 || c.HandlerTimeout <= 0 {
		return fmt.Errorf("COLLABORATOR_TIMEOUT and HANDLER_TIMEOUT must be > 0")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}

func getIntEnv(key string, defaultValue int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return n
}
