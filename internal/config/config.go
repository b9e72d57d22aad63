// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, persistence, the bot transport, ingestion mode, locking, triggers
// and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Ingestion modes.
const (
	IngestPoll    = "poll"
	IngestWebhook = "webhook"
	IngestNone    = "none"
)

// DBConfig selects the persistence backend.
type DBConfig struct {
	Driver string // DB_DRIVER: sqlite|postgres
	Path   string // DB_PATH (sqlite)
	DSN    string // DB_DSN (postgres)
}

// TelegramConfig configures the bot transport and ingestion.
type TelegramConfig struct {
	Token         string        // TELEGRAM_TOKEN (required)
	APIURL        string        // TELEGRAM_API_URL
	Mode          string        // INGEST_MODE: poll|webhook|none
	PollTimeout   time.Duration // POLL_TIMEOUT
	RetryDelay    time.Duration // POLL_RETRY_DELAY
	SendTimeout   time.Duration // SEND_TIMEOUT
	WebhookURL    string        // WEBHOOK_URL (public base URL)
	WebhookSecret string        // WEBHOOK_SECRET
}

// DispatchConfig tunes the engine.
type DispatchConfig struct {
	Concurrency          int      // DISPATCH_CONCURRENCY
	BroadcastRPS         float64  // BROADCAST_RPS
	BroadcastBurst       int      // BROADCAST_BURST
	AnonymousRole        string   // ANONYMOUS_ROLE
	AnonymousPermissions []string // ANONYMOUS_PERMISSIONS (csv)
	AnnouncePermission   string   // ANNOUNCE_PERMISSION
	NotifyToken          string   // NOTIFY_TOKEN; empty disables the trigger route
	NotifyTimeout        time.Duration
}

// RedisConfig enables the cross-process chat lock when Addr is set.
type RedisConfig struct {
	Addr     string        // REDIS_ADDR
	Password string        // REDIS_PASSWORD
	DB       int           // REDIS_DB
	LockTTL  time.Duration // LOCK_TTL
}

// NATSConfig enables the NATS notify trigger when URL is set.
type NATSConfig struct {
	URL           string // NATS_URL
	SubjectPrefix string // NATS_SUBJECT_PREFIX
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool

	// Rate limiting of the notify trigger
	RateRPS   float64
	RateBurst int

	DB       DBConfig
	Telegram TelegramConfig
	Dispatch DispatchConfig
	Redis    RedisConfig
	NATS     NATSConfig
	OTEL     OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies defaults,
// normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "dispatch.db"),
			DSN:    getenv("DB_DSN", ""),
		},

		Telegram: TelegramConfig{
			Token:         strings.TrimSpace(getenv("TELEGRAM_TOKEN", "")),
			APIURL:        getenv("TELEGRAM_API_URL", "https://api.telegram.org"),
			Mode:          strings.ToLower(getenv("INGEST_MODE", IngestPoll)),
			PollTimeout:   getdur("POLL_TIMEOUT", 60*time.Second),
			RetryDelay:    getdur("POLL_RETRY_DELAY", 3*time.Second),
			SendTimeout:   getdur("SEND_TIMEOUT", 10*time.Second),
			WebhookURL:    strings.TrimRight(getenv("WEBHOOK_URL", ""), "/"),
			WebhookSecret: getenv("WEBHOOK_SECRET", ""),
		},

		Dispatch: DispatchConfig{
			Concurrency:          getint("DISPATCH_CONCURRENCY", 8),
			BroadcastRPS:         getfloat("BROADCAST_RPS", 25),
			BroadcastBurst:       getint("BROADCAST_BURST", 5),
			AnonymousRole:        getenv("ANONYMOUS_ROLE", "anonymous_telegram_user"),
			AnonymousPermissions: splitCSV(getenv("ANONYMOUS_PERMISSIONS", "")),
			AnnouncePermission:   getenv("ANNOUNCE_PERMISSION", ""),
			NotifyToken:          getenv("NOTIFY_TOKEN", ""),
			NotifyTimeout:        getdur("NOTIFY_TIMEOUT", 5*time.Minute),
		},

		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", ""),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
			LockTTL:  getdur("LOCK_TTL", 30*time.Second),
		},

		NATS: NATSConfig{
			URL:           getenv("NATS_URL", ""),
			SubjectPrefix: strings.Trim(getenv("NATS_SUBJECT_PREFIX", "chatdispatch.notify"), "."),
		},

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-chat-dispatch"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}

	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.DSN) == "" {
			return cfg, errors.New("DB_DSN is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}

	if cfg.Telegram.Token == "" {
		return cfg, errors.New("TELEGRAM_TOKEN is required")
	}
	switch cfg.Telegram.Mode {
	case IngestPoll, IngestNone:
	case IngestWebhook:
		if !strings.HasPrefix(cfg.Telegram.WebhookURL, "https://") {
			return cfg, errors.New("WEBHOOK_URL must be an https URL when INGEST_MODE=webhook")
		}
	default:
		return cfg, errors.New("INGEST_MODE must be one of: poll, webhook, none")
	}
	if cfg.Telegram.PollTimeout < 0 || cfg.Telegram.RetryDelay <= 0 || cfg.Telegram.SendTimeout <= 0 {
		return cfg, errors.New("POLL_TIMEOUT must be >= 0; POLL_RETRY_DELAY and SEND_TIMEOUT must be > 0")
	}

	if cfg.Dispatch.Concurrency < 1 {
		return cfg, errors.New("DISPATCH_CONCURRENCY must be >= 1")
	}
	if cfg.Dispatch.BroadcastRPS < 0 {
		return cfg, errors.New("BROADCAST_RPS must be >= 0")
	}
	if strings.TrimSpace(cfg.Dispatch.AnonymousRole) == "" {
		return cfg, errors.New("ANONYMOUS_ROLE must not be empty")
	}
	if cfg.Redis.Addr != "" && cfg.Redis.LockTTL <= 0 {
		return cfg, errors.New("LOCK_TTL must be > 0")
	}
	if cfg.NATS.URL != "" && cfg.NATS.SubjectPrefix == "" {
		return cfg, errors.New("NATS_SUBJECT_PREFIX must not be empty")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
