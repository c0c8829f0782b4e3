package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/notify"
	"github.com/MrEthical07/goGuard/pgstore"
	"github.com/MrEthical07/goGuard/settings"
)

// runtime is the wired engine plus the resources it owns.
type runtime struct {
	engine   *goGuard.Engine
	redis    redis.UniversalClient
	settings *settings.Redis
	db       *pgstore.Store
	logger   *slog.Logger
	closers  []func() error
}

// newRuntime wires an Engine against client. Environment defaults are
// seeded into the Redis settings hash with HSETNX and also layered below
// it, so a deleted field falls back instead of failing closed.
func newRuntime(ctx context.Context, c config, client redis.UniversalClient, logger *slog.Logger) (*runtime, error) {
	rt := &runtime{
		redis:    client,
		settings: settings.NewRedis(client, c.SettingsKey),
		logger:   logger,
	}
	if err := rt.settings.Seed(ctx, c.Settings.Values()); err != nil {
		return nil, fmt.Errorf("seed settings: %w", err)
	}

	engCfg := goGuard.DefaultConfig()
	engCfg.KeyPrefix = c.KeyPrefix
	engCfg.Activity.Retention = c.ActivityRetention
	engCfg.Audit.Enabled = c.AuditEnabled
	engCfg.Metrics.EnableLatencyHistograms = true

	b := goGuard.New().
		WithRedis(client).
		WithSettings(settings.Layered{rt.settings, c.Settings.Memory()}).
		WithLogger(logger).
		WithAuditSink(goGuard.NewSlogSink(logger))

	if c.DatabaseURL != "" {
		db, err := pgstore.Open(c.DatabaseURL, pgstore.WithRetention(c.ActivityRetention))
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.DB().PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		rt.db = db
		rt.closers = append(rt.closers, db.Close)
		b.WithSubjectProvider(db).WithActivityStore(db).WithRecoveryStore(db)
	} else {
		engCfg.Recovery.Enabled = false
		logger.Info("recovery disabled: no database configured")
	}

	notifier, err := rt.notifier(c)
	if err != nil {
		rt.Close()
		return nil, err
	}
	b.WithNotifier(notifier).WithConfig(engCfg)

	engine, err := b.Build()
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("build engine: %w", err)
	}
	rt.engine = engine
	return rt, nil
}

func (rt *runtime) notifier(c config) (goGuard.Notifier, error) {
	if !c.NATSEnabled {
		return notify.Log{Logger: rt.logger}, nil
	}
	conn, err := notify.Connect(c.NATS, rt.logger)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, func() error { return conn.Drain() })
	n, err := notify.NewNATS(conn, c.NATS.Subject)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// Close stops the engine first so queued audit events flush, then releases
// owned resources in reverse order.
func (rt *runtime) Close() error {
	if rt.engine != nil {
		rt.engine.Close()
	}
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openRuntime is the command-side entry: logger, Redis and engine.
func openRuntime(ctx context.Context) (*runtime, error) {
	logger, err := newLogger(rootCmd.ErrOrStderr(), cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	client := cfg.redisClient()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}
	rt, err := newRuntime(ctx, cfg, client, logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	rt.closers = append([]func() error{client.Close}, rt.closers...)
	return rt, nil
}
