package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures service-level settings. Endpoint and mapping configuration
// lives in a separate file loaded by LoadEndpoints so main stays lean.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	// PostgresDSN is empty when running against in-memory stores.
	PostgresDSN string

	Redis RedisConfig

	// KafkaBrokers is empty when the Kafka audit sink is not configured.
	KafkaBrokers []string
	KafkaTopic   string

	// PollInterval is the scheduler period; RequestTimeout bounds every
	// registry HTTP call; LockTTL bounds a dead worker's cycle lock.
	PollInterval   time.Duration
	RequestTimeout time.Duration
	LockTTL        time.Duration

	EndpointsFile string
}

// RedisConfig holds connection settings for the cycle lock.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		HTTPAddr:    envOr("CARELINK_ADDR", ":8080"),
		LogLevel:    envOr("CARELINK_LOG_LEVEL", "info"),
		LogFormat:   envOr("CARELINK_LOG_FORMAT", "json"),
		PostgresDSN: os.Getenv("CARELINK_POSTGRES_DSN"),
		Redis: RedisConfig{
			URL:          os.Getenv("CARELINK_REDIS_URL"),
			PoolSize:     envInt("CARELINK_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("CARELINK_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("CARELINK_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("CARELINK_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("CARELINK_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		KafkaBrokers:   envList("CARELINK_KAFKA_BROKERS"),
		KafkaTopic:     envOr("CARELINK_KAFKA_TOPIC", "carelink.sync.audit"),
		PollInterval:   envDuration("CARELINK_POLL_INTERVAL", 5*time.Minute),
		RequestTimeout: envDuration("CARELINK_REQUEST_TIMEOUT", 30*time.Second),
		LockTTL:        envDuration("CARELINK_LOCK_TTL", 15*time.Minute),
		EndpointsFile:  envOr("CARELINK_ENDPOINTS_FILE", "endpoints.yaml"),
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
