package goGuard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/goGuard/credential"
	"github.com/MrEthical07/goGuard/internal/limiters"
	"github.com/MrEthical07/goGuard/policy"
	"github.com/MrEthical07/goGuard/settings"
	"github.com/redis/go-redis/v9"
)

type namedPackage struct {
	name string
	pred policy.Predicate
}

// Builder assembles an Engine. A Builder can be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	settings  settings.Reader
	subjects  SubjectProvider
	activity  ActivityStore
	recovery  RecoveryStore
	notifier  Notifier
	clock     Clock
	logger    *slog.Logger
	auditSink AuditSink
	packages  []namedPackage

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithSettings sets the runtime settings reader. It is re-read on every
// evaluation.
func (b *Builder) WithSettings(r settings.Reader) *Builder {
	b.settings = r
	return b
}

// WithRedis supplies the client behind the default activity store,
// recovery store and recovery request limiter.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithSubjectProvider(p SubjectProvider) *Builder {
	b.subjects = p
	return b
}

// WithActivityStore overrides the Redis activity store.
func (b *Builder) WithActivityStore(s ActivityStore) *Builder {
	b.activity = s
	return b
}

// WithRecoveryStore overrides the Redis recovery store. A store that also
// implements CredentialRecoveryStore clears the token and writes the new
// credential in one transaction.
func (b *Builder) WithRecoveryStore(s RecoveryStore) *Builder {
	b.recovery = s
	return b
}

func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithClock(c Clock) *Builder {
	b.clock = c
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithPolicy registers an additional auth package. Names collide with the
// built-ins at Build time.
func (b *Builder) WithPolicy(name string, pred policy.Predicate) *Builder {
	b.packages = append(b.packages, namedPackage{name: name, pred: pred})
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates configuration, loads the runtime settings once to fail
// fast on missing keys, and freezes the auth package registry.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.settings == nil {
		return nil, errors.New("settings reader required")
	}

	activity := b.activity
	recovery := b.recovery
	var limiter *limiters.RecoveryLimiter
	if b.redis != nil {
		if activity == nil {
			activity = NewRedisActivityStore(b.redis, cfg.KeyPrefix, cfg.Activity.Retention)
		}
		if recovery == nil {
			recovery = NewRedisRecoveryStore(b.redis, cfg.KeyPrefix)
		}
		if cfg.Recovery.EnableIdentifierThrottle || cfg.Recovery.EnableIPThrottle {
			limiter = limiters.NewRecoveryLimiter(b.redis, cfg.KeyPrefix+":rl", limiters.RecoveryConfig{
				EnableIdentifierThrottle: cfg.Recovery.EnableIdentifierThrottle,
				EnableIPThrottle:         cfg.Recovery.EnableIPThrottle,
				MaxRequests:              cfg.Recovery.MaxRequests,
				Window:                   cfg.Recovery.RequestWindow,
			})
		}
	}
	if activity == nil {
		return nil, errors.New("activity store or redis client required")
	}
	if cfg.Recovery.Enabled {
		switch {
		case recovery == nil:
			return nil, errors.New("recovery store or redis client required")
		case b.subjects == nil:
			return nil, errors.New("subject provider required when recovery is enabled")
		case b.notifier == nil:
			return nil, errors.New("notifier required when recovery is enabled")
		}
	}

	hasher, err := credential.NewHasher(cfg.Credential.hasherConfig())
	if err != nil {
		return nil, err
	}

	registry := policy.NewRegistry()
	for _, p := range b.packages {
		if err := registry.Register(p.name, p.pred); err != nil {
			return nil, err
		}
	}
	registry.Freeze()

	if _, err := settings.Load(context.Background(), b.settings); err != nil {
		return nil, fmt.Errorf("load settings: %w", mapSettingsError(err))
	}

	clock := b.clock
	if clock == nil {
		clock = systemClock{}
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	e := &Engine{
		config:          cfg,
		settings:        b.settings,
		registry:        registry,
		subjects:        b.subjects,
		activity:        activity,
		recovery:        recovery,
		recoveryLimiter: limiter,
		notifier:        b.notifier,
		hasher:          hasher,
		clock:           clock,
		logger:          logger,
		audit:           newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:         NewMetrics(cfg.Metrics),
	}
	e.flows.Authorize = e.authorizeFlowDeps()
	e.flows.Recovery = e.recoveryFlowDeps()

	b.built = true
	return e, nil
}
