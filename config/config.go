// Package config provides configuration for the sync server.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the server configuration.
type Config struct {
	// Server settings
	HTTPPort int
	WSPort   int

	// Database
	DatabaseURL string

	// Agent sidecar settings
	AgentURL string

	// Auth settings
	APIKey string // Static API key for hello.api_key validation

	// WebSocket settings
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64

	// Conversation timing
	SettleDelay      time.Duration // wait before dispatching queued follow-ups
	DebounceInterval time.Duration // reconcile signal coalescing window

	// Safety policy
	SafetyPolicyPath string // optional rego file overriding the built-in policy

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		HTTPPort:         getEnvInt("HTTP_PORT", 8080),
		WSPort:           getEnvInt("WS_PORT", 8090),
		DatabaseURL:      getEnv("DATABASE_URL", "file:overseer.db?cache=shared&mode=rwc"),
		AgentURL:         getEnv("AGENT_URL", "http://localhost:8200"),
		APIKey:           getEnv("API_KEY", ""),
		PingInterval:     time.Duration(getEnvInt("WS_PING_INTERVAL_MS", 30000)) * time.Millisecond,
		WriteTimeout:     time.Duration(getEnvInt("WS_WRITE_TIMEOUT_MS", 10000)) * time.Millisecond,
		ReadTimeout:      time.Duration(getEnvInt("WS_READ_TIMEOUT_MS", 60000)) * time.Millisecond,
		MaxMessageSize:   int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 65536)),
		SettleDelay:      time.Duration(getEnvInt("SETTLE_DELAY_MS", 300)) * time.Millisecond,
		DebounceInterval: time.Duration(getEnvInt("DEBOUNCE_MS", 250)) * time.Millisecond,
		SafetyPolicyPath: getEnv("SAFETY_POLICY_PATH", ""),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
