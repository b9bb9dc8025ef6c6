package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Payout API
	PaymentAPIURL   string
	PaymentAPIToken string

	// HTTP client
	HTTPTimeout     time.Duration
	MutationTimeout time.Duration // applies to create/process calls

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache & sessions
	CacheTTL   time.Duration
	SessionTTL time.Duration

	// In-flight guard. An empty RedisURL keeps the guard process-local.
	RedisURL    string
	InFlightTTL time.Duration

	// Scheduling
	PayoutTimezone string // used to resolve "today" for pay-now

	// Observability
	OTLPEndpoint string

	// JWT / Auth
	JWTSecret string

	// CORS
	CORSAllowedOrigins []string
}

// LoadDotEnv loads key=value pairs from the given files into the process
// environment. Existing variables win; missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		PaymentAPIURL:   getEnv("PAYMENT_API_URL", "http://localhost:8000"),
		PaymentAPIToken: getEnv("PAYMENT_API_TOKEN", ""),

		HTTPTimeout:     getEnvDuration("HTTP_TIMEOUT", 10*time.Second),
		MutationTimeout: getEnvDuration("MUTATION_TIMEOUT", 30*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		CacheTTL:   getEnvDuration("CACHE_TTL", 5*time.Minute),
		SessionTTL: getEnvDuration("SESSION_TTL", 30*time.Minute),

		RedisURL:    getEnv("REDIS_URL", ""),
		InFlightTTL: getEnvDuration("INFLIGHT_TTL", 2*time.Minute),

		PayoutTimezone: getEnv("PAYOUT_TIMEZONE", "Europe/Stockholm"),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}
}

// MinJWTSecretLen is the shortest admin token signing secret payoutd accepts.
const MinJWTSecretLen = 32

// ValidateServer checks the settings payoutd cannot run without. Admin
// tokens authorize payouts, so there is no built-in signing secret.
func (c *Config) ValidateServer() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < MinJWTSecretLen {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", MinJWTSecretLen)
	}
	return nil
}

// Location resolves PayoutTimezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.PayoutTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
