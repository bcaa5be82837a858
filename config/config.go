package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Orchestrator configuration
	HandshakeTimeout time.Duration
	EventBufferSize  int

	// Polling configuration. Idle cadence applies while the change
	// subscription is healthy, fallback while it is down.
	PollIdleInterval     time.Duration
	PollFallbackInterval time.Duration

	// Maintenance configuration
	CleanupInterval  time.Duration
	SnapshotCacheTTL time.Duration

	// Security
	AttendantKeyHash   string
	RegisterRateLimit  int
	RegisterRateWindow time.Duration

	// Monitoring
	EnableMetrics bool
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Orchestrator
		HandshakeTimeout: getEnvAsDuration("HANDSHAKE_TIMEOUT", "4s"),
		EventBufferSize:  getEnvAsInt("EVENT_BUFFER_SIZE", 256),

		// Polling
		PollIdleInterval:     getEnvAsDuration("POLL_IDLE_INTERVAL", "60s"),
		PollFallbackInterval: getEnvAsDuration("POLL_FALLBACK_INTERVAL", "5s"),

		// Maintenance
		CleanupInterval:  getEnvAsDuration("CLEANUP_INTERVAL", "30s"),
		SnapshotCacheTTL: getEnvAsDuration("SNAPSHOT_CACHE_TTL", "30s"),

		// Security
		AttendantKeyHash:   getEnv("ATTENDANT_KEY_HASH", ""),
		RegisterRateLimit:  getEnvAsInt("REGISTER_RATE_LIMIT", 10),
		RegisterRateWindow: getEnvAsDuration("REGISTER_RATE_WINDOW", "1m"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
