package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

// Ensure tests don't inherit configuration from the environment.
func TestMain(m *testing.M) {
	for _, k := range []string{"PORT", "TELEGRAM_TOKEN", "INGEST_MODE", "DB_DRIVER", "WEBHOOK_URL", "REDIS_ADDR", "NATS_URL"} {
		os.Unsetenv(k)
	}
	os.Exit(m.Run())
}

func withToken(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
}

func containsErr(err error, want string) bool {
	return err != nil && strings.Contains(err.Error(), want)
}

func TestMustLoad_PanicsWithoutToken(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic without TELEGRAM_TOKEN")
		}
	}()
	_ = MustLoad()
}

func TestLoad_Defaults(t *testing.T) {
	withToken(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.GinMode != "release" || cfg.LogLevel != "info" {
		t.Fatalf("server defaults: %+v", cfg)
	}
	if cfg.DB.Driver != "sqlite" || cfg.DB.Path != "dispatch.db" {
		t.Fatalf("db defaults: %+v", cfg.DB)
	}
	tg := cfg.Telegram
	if tg.Mode != IngestPoll || tg.PollTimeout != 60*time.Second || tg.RetryDelay != 3*time.Second {
		t.Fatalf("telegram defaults: %+v", tg)
	}
	if cfg.Dispatch.AnonymousRole != "anonymous_telegram_user" || cfg.Dispatch.Concurrency != 8 {
		t.Fatalf("dispatch defaults: %+v", cfg.Dispatch)
	}
	if cfg.Dispatch.NotifyToken != "" || cfg.Redis.Addr != "" || cfg.NATS.URL != "" {
		t.Fatalf("optional integrations must default off")
	}
	if cfg.NATS.SubjectPrefix != "chatdispatch.notify" {
		t.Fatalf("nats prefix default: %q", cfg.NATS.SubjectPrefix)
	}
}

func TestLoad_Overrides(t *testing.T) {
	withToken(t)
	t.Setenv("PORT", "9000")
	t.Setenv("GIN_MODE", "weird")    // normalizes to release
	t.Setenv("LOG_LEVEL", "warning") // normalizes to warn
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DB_DSN", "postgres://u:p@db/app")
	t.Setenv("INGEST_MODE", "webhook")
	t.Setenv("WEBHOOK_URL", "https://bot.example.org/")
	t.Setenv("WEBHOOK_SECRET", "s")
	t.Setenv("POLL_TIMEOUT", "0s")
	t.Setenv("DISPATCH_CONCURRENCY", "2")
	t.Setenv("ANONYMOUS_PERMISSIONS", " notify_hello, ,start ")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("LOCK_TTL", "5s")
	t.Setenv("NATS_URL", "nats://nats:4222")
	t.Setenv("NATS_SUBJECT_PREFIX", ".ops.notify.")
	t.Setenv("RATE_RPS", "x") // bad parse keeps default

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9000" || cfg.GinMode != "release" || cfg.LogLevel != "warn" || !cfg.LogPretty {
		t.Fatalf("server overrides: %+v", cfg)
	}
	if cfg.DB.Driver != "postgres" || cfg.DB.DSN == "" {
		t.Fatalf("db overrides: %+v", cfg.DB)
	}
	if cfg.Telegram.Mode != IngestWebhook || cfg.Telegram.WebhookURL != "https://bot.example.org" || cfg.Telegram.PollTimeout != 0 {
		t.Fatalf("telegram overrides: %+v", cfg.Telegram)
	}
	if want := []string{"notify_hello", "start"}; !reflect.DeepEqual(cfg.Dispatch.AnonymousPermissions, want) {
		t.Fatalf("permissions: %#v", cfg.Dispatch.AnonymousPermissions)
	}
	if cfg.Redis.DB != 3 || cfg.Redis.LockTTL != 5*time.Second {
		t.Fatalf("redis overrides: %+v", cfg.Redis)
	}
	if cfg.NATS.SubjectPrefix != "ops.notify" {
		t.Fatalf("nats prefix: %q", cfg.NATS.SubjectPrefix)
	}
	if cfg.RateRPS != 5.0 {
		t.Fatalf("RATE_RPS default expected on bad parse, got %v", cfg.RateRPS)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"no token", map[string]string{"TELEGRAM_TOKEN": ""}, "TELEGRAM_TOKEN"},
		{"log level", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"timeouts", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts"},
		{"header bytes", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"driver", map[string]string{"DB_DRIVER": "mysql"}, "DB_DRIVER"},
		{"postgres dsn", map[string]string{"DB_DRIVER": "postgres"}, "DB_DSN"},
		{"mode", map[string]string{"INGEST_MODE": "push"}, "INGEST_MODE"},
		{"webhook url", map[string]string{"INGEST_MODE": "webhook", "WEBHOOK_URL": "http://plain"}, "WEBHOOK_URL"},
		{"retry delay", map[string]string{"POLL_RETRY_DELAY": "0s"}, "POLL_RETRY_DELAY"},
		{"concurrency", map[string]string{"DISPATCH_CONCURRENCY": "0"}, "DISPATCH_CONCURRENCY"},
		{"broadcast rps", map[string]string{"BROADCAST_RPS": "-1"}, "BROADCAST_RPS"},
		{"rate rps", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"rate burst", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"lock ttl", map[string]string{"REDIS_ADDR": "r:6379", "LOCK_TTL": "0s"}, "LOCK_TTL"},
		{"nats prefix", map[string]string{"NATS_URL": "nats://n", "NATS_SUBJECT_PREFIX": "..."}, "NATS_SUBJECT_PREFIX"},
		{"sampler", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "2"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			withToken(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); !containsErr(err, tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestHelpers(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if getenv("X_EMPTY", "d") != "d" {
		t.Fatalf("getenv should fall back on empty var")
	}
	t.Setenv("F_BAD", "nope")
	if getfloat("F_BAD", 1.5) != 1.5 {
		t.Fatalf("getfloat default on bad parse failed")
	}
	t.Setenv("I_VALID", "42")
	if getint("I_VALID", 0) != 42 {
		t.Fatalf("getint parse failed")
	}
	t.Setenv("D_VALID", "150ms")
	if getdur("D_VALID", time.Second) != 150*time.Millisecond {
		t.Fatalf("getdur parse failed")
	}
	for _, v := range []string{"1", "TRUE", " yes ", "on"} {
		t.Setenv("B", v)
		if !getbool("B", false) {
			t.Fatalf("getbool(%q) = false", v)
		}
	}
	t.Setenv("B", "maybe")
	if !getbool("B", true) {
		t.Fatalf("getbool should keep default on unknown value")
	}
	if splitCSV("") != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
}
