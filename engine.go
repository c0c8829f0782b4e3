package goGuard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/goGuard/credential"
	internalflows "github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/internal/limiters"
	"github.com/MrEthical07/goGuard/policy"
	"github.com/MrEthical07/goGuard/settings"
)

// Engine is the composed policy engine. Build one with New().…Build(); it
// is safe for concurrent use afterwards.
type Engine struct {
	config          Config
	settings        settings.Reader
	registry        *policy.Registry
	subjects        SubjectProvider
	activity        ActivityStore
	recovery        RecoveryStore
	recoveryLimiter *limiters.RecoveryLimiter
	notifier        Notifier
	hasher          *credential.Hasher
	clock           Clock
	logger          *slog.Logger
	audit           *auditDispatcher
	metrics         *Metrics
	flows           internalflows.Deps
}

// Close drains the audit dispatcher. The engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports events discarded because the audit buffer was full
// or the emitting context ended first.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns current counter values. It is empty when metrics
// are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Settings loads a fresh snapshot of the runtime settings.
func (e *Engine) Settings(ctx context.Context) (settings.Snapshot, error) {
	if e == nil || e.settings == nil {
		return settings.Snapshot{}, ErrEngineNotReady
	}
	return e.loadSettings(ctx)
}

func (e *Engine) loadSettings(ctx context.Context) (settings.Snapshot, error) {
	snap, err := settings.Load(ctx, e.settings)
	if err != nil {
		return settings.Snapshot{}, mapSettingsError(err)
	}
	return snap, nil
}

func mapSettingsError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, settings.ErrInvalid):
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	default:
		// absent keys and unreachable backends alike must never read as "unlimited"
		return fmt.Errorf("%w: %v", ErrConfigMissing, err)
	}
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now().UTC()
	}
	return e.clock.Now()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricAdd(id MetricID, n uint64) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Add(id, n)
}
