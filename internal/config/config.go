package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; a local .env file is read first when
// present and never overrides variables already set.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Redis: REDIS_URL wins over the discrete fields when set
	RedisURL      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	// Webhook verification; empty means the built-in Kick key
	KickPublicKeyPEM string

	// Worker pool manager
	ScanInterval     time.Duration
	ScanErrorBackoff time.Duration

	// Consumer workers
	DequeueTimeout time.Duration
	MaxIdleCycles  int
	ErrorBackoff   time.Duration
	LoadRetries    int
	LoadRetryDelay time.Duration

	// Queue store
	AlertTTL time.Duration

	// Cross-process mutual exclusion for consumers
	WorkerLeaseEnabled bool
	WorkerLeaseTTL     time.Duration

	// Alerts per second per recipient; 0 disables pacing
	DeliveryRate float64

	// Overlay connections
	HeartbeatInterval time.Duration
	WriteWait         time.Duration

	// Webhook requests per second across all callers; 0 disables the limit
	WebhookRateLimit float64

	LogLevel string
}

func Load() (*Config, error) {
	loadDotEnv(".env.local", ".env")

	keyPEM, err := publicKeyPEM()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		RedisURL:      getEnv("REDIS_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),
		RedisTLS:      getBool("REDIS_TLS", false),

		KickPublicKeyPEM: keyPEM,

		ScanInterval:     getDuration("SCAN_INTERVAL", 3*time.Second),
		ScanErrorBackoff: getDuration("SCAN_ERROR_BACKOFF", 5*time.Second),

		DequeueTimeout: getDuration("DEQUEUE_TIMEOUT", 5*time.Second),
		MaxIdleCycles:  getInt("MAX_IDLE_CYCLES", 5),
		ErrorBackoff:   getDuration("ERROR_BACKOFF", time.Second),
		LoadRetries:    getInt("LOAD_RETRIES", 3),
		LoadRetryDelay: getDuration("LOAD_RETRY_DELAY", 100*time.Millisecond),

		AlertTTL: getDuration("ALERT_TTL", 24*time.Hour),

		WorkerLeaseEnabled: getBool("WORKER_LEASE_ENABLED", false),
		WorkerLeaseTTL:     getDuration("WORKER_LEASE_TTL", 30*time.Second),

		DeliveryRate: getFloat("DELIVERY_RATE", 0),

		HeartbeatInterval: getDuration("HEARTBEAT_INTERVAL", 30*time.Second),
		WriteWait:         getDuration("WRITE_WAIT", 10*time.Second),

		WebhookRateLimit: getFloat("WEBHOOK_RATE_LIMIT", 0),

		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges that would otherwise fail at runtime.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTPPort == "" {
		errs = append(errs, errors.New("HTTP_PORT must not be empty"))
	}
	if c.RedisURL == "" && c.RedisAddr == "" {
		errs = append(errs, errors.New("one of REDIS_URL or REDIS_ADDR is required"))
	}
	if c.ScanInterval <= 0 || c.ScanErrorBackoff <= 0 {
		errs = append(errs, errors.New("SCAN_INTERVAL and SCAN_ERROR_BACKOFF must be positive"))
	}
	// BRPOP timeouts have one-second resolution
	if c.DequeueTimeout < time.Second {
		errs = append(errs, fmt.Errorf("DEQUEUE_TIMEOUT must be at least 1s, got %s", c.DequeueTimeout))
	}
	if c.MaxIdleCycles < 1 {
		errs = append(errs, errors.New("MAX_IDLE_CYCLES must be at least 1"))
	}
	if c.LoadRetries < 0 {
		errs = append(errs, errors.New("LOAD_RETRIES must not be negative"))
	}
	// consumers refresh every TTL/3; below 3s that outpaces a slow Redis round trip
	if c.WorkerLeaseEnabled && c.WorkerLeaseTTL < 3*time.Second {
		errs = append(errs, fmt.Errorf("WORKER_LEASE_TTL must be at least 3s, got %s", c.WorkerLeaseTTL))
	}
	if c.DeliveryRate < 0 || c.WebhookRateLimit < 0 {
		errs = append(errs, errors.New("DELIVERY_RATE and WEBHOOK_RATE_LIMIT must not be negative"))
	}
	if c.HeartbeatInterval <= 0 || c.WriteWait <= 0 {
		errs = append(errs, errors.New("HEARTBEAT_INTERVAL and WRITE_WAIT must be positive"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel))
	}
	return errors.Join(errs...)
}

// loadDotEnv reads each file that exists. Earlier files win because godotenv
// never overrides a variable that is already set.
func loadDotEnv(files ...string) {
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// publicKeyPEM returns KICK_PUBLIC_KEY, or the contents of
// KICK_PUBLIC_KEY_FILE, or "" for the built-in key. Inline keys may use
// literal \n sequences since most env files cannot hold multi-line values.
func publicKeyPEM() (string, error) {
	if v := os.Getenv("KICK_PUBLIC_KEY"); v != "" {
		return strings.ReplaceAll(v, `\n`, "\n"), nil
	}
	if path := os.Getenv("KICK_PUBLIC_KEY_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read KICK_PUBLIC_KEY_FILE: %w", err)
		}
		return string(b), nil
	}
	return "", nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
