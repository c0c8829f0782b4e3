package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goGuard/notify"
	"github.com/MrEthical07/goGuard/settings"
)

// config is the process configuration. Runtime thresholds live in the
// settings store, not here.
type config struct {
	LogFormat string `env:"GUARD_LOG_FORMAT" envDefault:"json"`
	LogLevel  string `env:"GUARD_LOG_LEVEL"  envDefault:"info"`

	HTTPAddr        string        `env:"GUARD_HTTP_ADDR"         envDefault:":8080"`
	TrustProxy      bool          `env:"GUARD_TRUST_PROXY"       envDefault:"false"`
	ShutdownTimeout time.Duration `env:"GUARD_SHUTDOWN_TIMEOUT"  envDefault:"10s"`

	RedisAddr     string `env:"GUARD_REDIS_ADDR"     envDefault:"127.0.0.1:6379"`
	RedisPassword string `env:"GUARD_REDIS_PASSWORD"`
	RedisDB       int    `env:"GUARD_REDIS_DB"       envDefault:"0"`

	KeyPrefix   string `env:"GUARD_KEY_PREFIX"   envDefault:"gg"`
	SettingsKey string `env:"GUARD_SETTINGS_KEY" envDefault:"gg:settings"`

	// DatabaseURL switches subjects, activity and recovery onto PostgreSQL.
	// Recovery is disabled without it, since there is no subject source.
	DatabaseURL       string        `env:"GUARD_DATABASE_URL"`
	ActivityRetention time.Duration `env:"GUARD_ACTIVITY_RETENTION" envDefault:"720h"`

	NATSEnabled bool `env:"GUARD_NATS_ENABLED" envDefault:"false"`
	NATS        notify.Config

	AuditEnabled bool `env:"GUARD_AUDIT_ENABLED" envDefault:"true"`

	Settings settings.Defaults
}

func loadConfig() (config, error) {
	var c config
	if err := env.Parse(&c); err != nil {
		return config{}, fmt.Errorf("config: parse environment: %w", err)
	}
	return c, nil
}

func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("config: log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "json", "":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("config: unknown log format %q", format)
	}
}

func (c config) redisClient() redis.UniversalClient {
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{c.RedisAddr},
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
}
