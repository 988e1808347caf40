package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnv reads .env files into the process environment. If a file does not
// exist, LoadEnv returns an error but callers can ignore it and use system env
// or defaults. With no paths, ".env" is used.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvInt64 is GetEnvInt for 64-bit values.
func GetEnvInt64(key string, fallback int64) int64 {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvDuration parses a Go duration ("90s", "1h"). A bare integer is taken
// as seconds. Invalid values yield fallback.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return fallback
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return fallback
}

// Relay is the full process configuration.
type Relay struct {
	Port      string
	LogLevel  string
	LogFormat string

	Mode          string // "direct" or "token"
	PublicBaseURL string

	StoreBackend  string // "memory" or "redis"
	StoreTTL      time.Duration
	StoreCapacity int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTimeout  time.Duration

	UpstreamTimeout   time.Duration
	UpstreamMaxBytes  int64
	UpstreamUserAgent string

	RateLimitRPM int
}

// Load builds the relay configuration from the environment.
func Load() Relay {
	return Relay{
		Port:      GetEnv("PORT", "8080"),
		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),

		Mode:          GetEnv("RELAY_MODE", "token"),
		PublicBaseURL: GetEnv("PUBLIC_BASE_URL", ""),

		StoreBackend:  GetEnv("STORE_BACKEND", "memory"),
		StoreTTL:      GetEnvDuration("STORE_TTL", time.Hour),
		StoreCapacity: GetEnvInt("STORE_CAPACITY", 50000),

		RedisAddr:     GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: GetEnv("REDIS_PASSWORD", ""),
		RedisDB:       GetEnvInt("REDIS_DB", 0),
		RedisTimeout:  GetEnvDuration("REDIS_TIMEOUT", 2*time.Second),

		UpstreamTimeout:   GetEnvDuration("UPSTREAM_TIMEOUT", 30*time.Second),
		UpstreamMaxBytes:  GetEnvInt64("UPSTREAM_MAX_BYTES", 64<<20),
		UpstreamUserAgent: GetEnv("UPSTREAM_USER_AGENT", "Mozilla/5.0 (compatible; hls-relay)"),

		RateLimitRPM: GetEnvInt("RATE_LIMIT_RPM", 0),
	}
}
