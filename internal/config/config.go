// Package config provides layered configuration loading for the vanish service.
// It merges Defaults -> Environment Variables (VANISH_*), decodes with
// mapstructure hooks and validates the result.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"

	"github.com/haukened/vanish/internal/crypto"
)

// EnvPrefix namespaces every environment variable the service reads.
const EnvPrefix = "VANISH_"

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds the merged runtime configuration for the vanish service.
type Config struct {
	Addr              string           `koanf:"addr" validate:"required,ip_port"`
	Backend           string           `koanf:"backend" validate:"oneof=sqlite redis memory"`
	DataDir           string           `koanf:"data_dir" validate:"required,safe_path"`
	RedisURL          string           `koanf:"redis_url" validate:"omitempty,url"`
	Cipher            crypto.Algorithm `koanf:"cipher" validate:"required"`
	DefaultTTLMinutes int              `koanf:"default_ttl_minutes" validate:"gt=0"`
	DefaultMaxViews   int              `koanf:"default_max_views" validate:"gt=0"`
	MaxTTL            time.Duration    `koanf:"max_ttl" validate:"gte=0"`
	MaxViewsLimit     int              `koanf:"max_views_limit" validate:"gte=0"`
	PurgeSchedule     string           `koanf:"purge_schedule" validate:"required,cron_spec"`
	PurgeBatch        int              `koanf:"purge_batch" validate:"gt=0"`
	PublicURL         string           `koanf:"public_url" validate:"required,http_url"`
	MetricsToken      string           `koanf:"metrics_token"`
	LogLevel          string           `koanf:"log_level" validate:"oneof=debug info warn error"`
	ConnectAttempts   int              `koanf:"connect_attempts" validate:"gte=1"`
	ConnectBackoff    time.Duration    `koanf:"connect_backoff" validate:"gt=0"`
}

// DefaultAppConfig is the configuration used when no environment overrides
// are present.
var DefaultAppConfig = Config{
	Addr:              ":3000",
	Backend:           BackendSQLite,
	DataDir:           "./data",
	Cipher:            crypto.AES256GCM,
	DefaultTTLMinutes: 60,
	DefaultMaxViews:   1,
	MaxTTL:            7 * 24 * time.Hour,
	MaxViewsLimit:     100,
	PurgeSchedule:     "@every 5m",
	PurgeBatch:        500,
	PublicURL:         "http://localhost:3000",
	LogLevel:          "info",
	ConnectAttempts:   5,
	ConnectBackoff:    500 * time.Millisecond,
}

// Test seams.
var (
	defaultLoader = func(k *koanf.Koanf) error {
		return k.Load(structs.Provider(DefaultAppConfig, "koanf"), nil)
	}
	envLoader = func(k *koanf.Koanf) error {
		return k.Load(env.Provider(".", env.Opt{
			Prefix: EnvPrefix,
			TransformFunc: func(key, value string) (string, any) {
				return strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), value
			},
		}), nil)
	}
	registerValidators = func(v *validator.Validate) error {
		for tag, fn := range map[string]validator.Func{
			"ip_port":   validIPPort,
			"safe_path": validSafePath,
			"cron_spec": validCronSpec,
		} {
			if err := v.RegisterValidation(tag, fn); err != nil {
				return err
			}
		}
		return nil
	}
)

// Load builds a Config from defaults and VANISH_* environment variables and
// validates it.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				StringToAlgorithm(),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	v := validator.New()
	if err := registerValidators(v); err != nil {
		return nil, fmt.Errorf("register validators: %w", err)
	}
	if err := v.Struct(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.crossCheck(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// crossCheck enforces rules spanning more than one field.
func (c *Config) crossCheck() error {
	if c.Backend == BackendRedis && c.RedisURL == "" {
		return errors.New("redis_url is required when backend is redis")
	}
	if c.MaxTTL > 0 && c.DefaultTTL() > c.MaxTTL {
		return errors.New("default_ttl_minutes must not exceed max_ttl")
	}
	if c.MaxViewsLimit > 0 && c.DefaultMaxViews > c.MaxViewsLimit {
		return errors.New("default_max_views must not exceed max_views_limit")
	}
	return nil
}

// DefaultTTL returns DefaultTTLMinutes as a duration.
func (c *Config) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLMinutes) * time.Minute
}

// SQLiteDSN returns the DSN for the secrets database inside DataDir.
// Transactions begin IMMEDIATE so a consume holds the write lock from its
// first read.
func (c *Config) SQLiteDSN() string {
	return "file:" + filepath.Join(c.DataDir, "vanish.db") + sqliteParams
}

// MetricsDSN returns the DSN for the standalone metrics database used when the
// secrets backend is not SQLite.
func (c *Config) MetricsDSN() string {
	return "file:" + filepath.Join(c.DataDir, "vanish-metrics.db") + sqliteParams
}

const sqliteParams = "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_synchronous=FULL&_txlock=immediate"

// SlogLevel maps LogLevel onto a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// validIPPort accepts ":port" or "ip:port" with a literal IP and a port in
// 1..65535.
func validIPPort(fl validator.FieldLevel) bool {
	host, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil || port == "" {
		return false
	}
	for _, r := range port {
		if r < '0' || r > '9' {
			return false
		}
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return false
	}
	return host == "" || net.ParseIP(host) != nil
}

// validSafePath rejects empty, root, current-directory and any path that
// walks upward with "..".
func validSafePath(fl validator.FieldLevel) bool {
	p := fl.Field().String()
	if strings.TrimSpace(p) == "" {
		return false
	}
	for _, seg := range strings.Split(filepath.ToSlash(p), "/") {
		if seg == ".." {
			return false
		}
	}
	clean := filepath.Clean(p)
	return clean != "." && clean != string(filepath.Separator)
}

func validCronSpec(fl validator.FieldLevel) bool {
	_, err := cron.ParseStandard(fl.Field().String())
	return err == nil
}
