package config

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/vanish/internal/crypto"
)

func TestDefaultConfig(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	assert.EqualValues(t, DefaultAppConfig, *cfg)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VANISH_ADDR", "127.0.0.1:9000")
	t.Setenv("VANISH_BACKEND", "redis")
	t.Setenv("VANISH_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("VANISH_CIPHER", "XChaCha20-Poly1305")
	t.Setenv("VANISH_DEFAULT_TTL_MINUTES", "15")
	t.Setenv("VANISH_DEFAULT_MAX_VIEWS", "3")
	t.Setenv("VANISH_MAX_TTL", "24h")
	t.Setenv("VANISH_MAX_VIEWS_LIMIT", "10")
	t.Setenv("VANISH_PURGE_SCHEDULE", "*/10 * * * *")
	t.Setenv("VANISH_PURGE_BATCH", "50")
	t.Setenv("VANISH_PUBLIC_URL", "https://vanish.example")
	t.Setenv("VANISH_METRICS_TOKEN", "s3cret")
	t.Setenv("VANISH_LOG_LEVEL", "debug")
	t.Setenv("VANISH_CONNECT_ATTEMPTS", "2")
	t.Setenv("VANISH_CONNECT_BACKOFF", "250ms")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, BackendRedis, cfg.Backend)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, crypto.XChaCha20Poly1305, cfg.Cipher)
	assert.Equal(t, 15*time.Minute, cfg.DefaultTTL())
	assert.Equal(t, 3, cfg.DefaultMaxViews)
	assert.Equal(t, 24*time.Hour, cfg.MaxTTL)
	assert.Equal(t, 10, cfg.MaxViewsLimit)
	assert.Equal(t, "*/10 * * * *", cfg.PurgeSchedule)
	assert.Equal(t, 50, cfg.PurgeBatch)
	assert.Equal(t, "https://vanish.example", cfg.PublicURL)
	assert.Equal(t, "s3cret", cfg.MetricsToken)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, 2, cfg.ConnectAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.ConnectBackoff)
}

func TestValidPaths(t *testing.T) {
	valid := []string{
		"data",
		"/var/lib/vanish",
		"./data",
		"relative/path/to/data",
		"nested/dir/structure",
	}
	for _, p := range valid {
		t.Setenv("VANISH_DATA_DIR", p)
		cfg, err := Load()
		if err != nil {
			t.Errorf("expected valid path %q, got error: %v", p, err)
			continue
		}
		if cfg.DataDir != p {
			t.Errorf("expected DataDir %q, got %q", p, cfg.DataDir)
		}
	}
}

func TestInvalidPaths(t *testing.T) {
	invalid := []string{
		"",
		".",
		"/",
		"//",
		"../data",
		"data/..",
		"data/../../../etc",
	}
	for _, p := range invalid {
		t.Setenv("VANISH_DATA_DIR", p)
		if _, err := Load(); err == nil {
			t.Errorf("expected error for invalid path %q, got nil", p)
		}
	}
}

func TestInvalidValues(t *testing.T) {
	cases := map[string]string{
		"VANISH_BACKEND":             "postgres",
		"VANISH_CIPHER":              "des",
		"VANISH_DEFAULT_TTL_MINUTES": "0",
		"VANISH_DEFAULT_MAX_VIEWS":   "-1",
		"VANISH_PURGE_SCHEDULE":      "whenever",
		"VANISH_PURGE_BATCH":         "0",
		"VANISH_PUBLIC_URL":          "not a url",
		"VANISH_LOG_LEVEL":           "verbose",
		"VANISH_CONNECT_ATTEMPTS":    "0",
		"VANISH_CONNECT_BACKOFF":     "soon",
		"VANISH_ADDR":                "localhost:3000",
		"VANISH_MAX_TTL":             "-1h",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", key, val)
			}
		})
	}
}

func TestValidIPPort(t *testing.T) {
	type sample struct {
		Addr string `validate:"ip_port"`
	}

	v := validator.New()
	if err := v.RegisterValidation("ip_port", validIPPort); err != nil {
		t.Fatalf("register validation: %v", err)
	}

	tests := []struct {
		name  string
		addr  string
		valid bool
	}{
		{name: "empty", addr: "", valid: false},
		{name: "missing_port", addr: "127.0.0.1", valid: false},
		{name: "missing_port_after_colon", addr: "127.0.0.1:", valid: false},
		{name: "just_colon_port", addr: ":8080", valid: true},
		{name: "loopback_ipv4", addr: "127.0.0.1:8080", valid: true},
		{name: "any_ipv4_low_port", addr: "0.0.0.0:1", valid: true},
		{name: "ipv6_loopback", addr: "[::1]:8080", valid: true},
		{name: "ipv6_any", addr: "[::]:443", valid: true},
		{name: "unbracketed_ipv6", addr: "::1:8080", valid: false},
		{name: "hostname_not_ip", addr: "localhost:8080", valid: false},
		{name: "invalid_host_chars", addr: "not_an_ip!:80", valid: false},
		{name: "non_numeric_port", addr: "127.0.0.1:http", valid: false},
		{name: "signed_port", addr: "127.0.0.1:+80", valid: false},
		{name: "port_zero", addr: "127.0.0.1:0", valid: false},
		{name: "port_max_valid", addr: "127.0.0.1:65535", valid: true},
		{name: "port_overflow", addr: "127.0.0.1:65536", valid: false},
		{name: "negative_port", addr: "127.0.0.1:-1", valid: false},
		{name: "multi_leading_zero_port", addr: "127.0.0.1:00080", valid: true},
		{name: "space_prefixed", addr: " :8080", valid: false},
		{name: "trailing_space", addr: "127.0.0.1:8080 ", valid: false},
		{name: "embedded_space", addr: "127.0. 0.1:8080", valid: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := sample{Addr: tc.addr}
			err := v.Struct(&s)
			if tc.valid && err != nil {
				t.Fatalf("expected valid, got error: %v", err)
			}
			if !tc.valid && err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestSQLiteDSN(t *testing.T) {
	params := "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_synchronous=FULL&_txlock=immediate"

	tests := []struct {
		name    string
		dataDir string
		want    string
	}{
		{name: "default_config", dataDir: DefaultAppConfig.DataDir, want: "data/vanish.db"},
		{name: "relative_no_slash", dataDir: "data", want: "data/vanish.db"},
		{name: "relative_trailing_slash", dataDir: "data/", want: "data/vanish.db"},
		{name: "absolute_no_slash", dataDir: "/var/lib/vanish", want: "/var/lib/vanish/vanish.db"},
		{name: "absolute_trailing_slash", dataDir: "/var/lib/vanish/", want: "/var/lib/vanish/vanish.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{DataDir: tt.dataDir}
			got := c.SQLiteDSN()
			assert.Equal(t, "file:"+tt.want+params, got, "expected DSN mismatch")
			assert.Contains(t, got, "_journal_mode=WAL", "missing WAL mode")
			assert.Contains(t, got, "_busy_timeout=5000", "missing busy timeout")
			assert.Contains(t, got, "_txlock=immediate", "missing immediate transactions")
			assert.Equal(t, 1, strings.Count(got, "?"), "expected exactly one '?' in DSN")
			assert.True(t, strings.HasSuffix(strings.TrimSuffix(c.MetricsDSN(), params), "vanish-metrics.db"))
		})
	}
}

func TestSlogLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	} {
		c := Config{LogLevel: in}
		assert.Equal(t, want, c.SlogLevel(), in)
	}
}

func TestLoadDefaultError(t *testing.T) {
	// swap out the defaultLoader to return an error
	orig := defaultLoader
	t.Cleanup(func() { defaultLoader = orig })
	defaultLoader = func(k *koanf.Koanf) error {
		assert.NotNil(t, k)
		return assert.AnError
	}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, assert.AnError) {
		t.Fatalf("expected assert.AnError, got: %v", err)
	}
}

func TestLoadEnvError(t *testing.T) {
	// swap out the envLoader to return an error
	orig := envLoader
	t.Cleanup(func() { envLoader = orig })
	envLoader = func(k *koanf.Koanf) error {
		assert.NotNil(t, k)
		return assert.AnError
	}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, assert.AnError) {
		t.Fatalf("expected assert.AnError, got: %v", err)
	}
}

func TestRegisterValidationFails(t *testing.T) {
	orig := registerValidators
	t.Cleanup(func() { registerValidators = orig })
	registerValidators = func(v *validator.Validate) error {
		assert.NotNil(t, v)
		return assert.AnError
	}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, assert.AnError) {
		t.Fatalf("expected assert.AnError, got: %v", err)
	}
}

func TestRedisRequiresURL(t *testing.T) {
	t.Setenv("VANISH_BACKEND", "redis")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if err.Error() != "redis_url is required when backend is redis" {
		t.Fatalf("expected redis_url error, got: %v", err)
	}
}

func TestDefaultTTLAboveMax(t *testing.T) {
	t.Setenv("VANISH_DEFAULT_TTL_MINUTES", "120")
	t.Setenv("VANISH_MAX_TTL", "1h")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if err.Error() != "default_ttl_minutes must not exceed max_ttl" {
		t.Fatalf("expected default/max ttl error, got: %v", err)
	}
}

func TestDefaultViewsAboveLimit(t *testing.T) {
	t.Setenv("VANISH_DEFAULT_MAX_VIEWS", "5")
	t.Setenv("VANISH_MAX_VIEWS_LIMIT", "4")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if err.Error() != "default_max_views must not exceed max_views_limit" {
		t.Fatalf("expected default/limit views error, got: %v", err)
	}
}

func TestUnboundedLimits(t *testing.T) {
	t.Setenv("VANISH_MAX_TTL", "0s")
	t.Setenv("VANISH_MAX_VIEWS_LIMIT", "0")
	t.Setenv("VANISH_DEFAULT_MAX_VIEWS", "1000")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.MaxTTL)
	assert.Zero(t, cfg.MaxViewsLimit)
}
