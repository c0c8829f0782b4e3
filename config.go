package goGuard

import (
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/credential"
)

// Config holds the static engine configuration. Runtime thresholds such as
// flood limits and token widths are not here: they are read from the
// settings Reader on every evaluation.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable.
type Config struct {
	KeyPrefix  string
	Recovery   RecoveryConfig
	Credential CredentialConfig
	Activity   ActivityConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
RECOVERY CONFIG
====================================
*/

// RecoveryConfig controls credential recovery.
type RecoveryConfig struct {
	Enabled bool
	// RetentionGrace is added to the token width when choosing the storage
	// TTL, so that expired records are still observed and cleared through
	// the injected clock.
	RetentionGrace           time.Duration
	EnableIdentifierThrottle bool
	EnableIPThrottle         bool
	MaxRequests              int
	RequestWindow            time.Duration
}

/*
====================================
CREDENTIAL CONFIG
====================================
*/

// CredentialConfig selects Argon2id parameters for replacement credentials.
type CredentialConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

/*
====================================
ACTIVITY CONFIG
====================================
*/

// ActivityConfig controls the built-in Redis activity store.
type ActivityConfig struct {
	// Retention bounds how far back per-subject timestamps are kept. It
	// must exceed any initial_account_period_width operators will set.
	// Zero keeps everything.
	Retention time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit pipeline.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds gate events when the buffer is full. Recovery
	// events wait for space regardless.
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig toggles in-process counters and the authorize latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns a production-leaning configuration.
func DefaultConfig() Config {
	cred := credential.DefaultConfig()
	return Config{
		KeyPrefix: "gg",
		Recovery: RecoveryConfig{
			Enabled:                  true,
			RetentionGrace:           time.Hour,
			EnableIdentifierThrottle: true,
			EnableIPThrottle:         true,
			MaxRequests:              5,
			RequestWindow:            15 * time.Minute,
		},
		Credential: CredentialConfig{
			Memory:      cred.Memory,
			Time:        cred.Time,
			Parallelism: cred.Parallelism,
			SaltLength:  cred.SaltLength,
			KeyLength:   cred.KeyLength,
			MinLength:   cred.MinLength,
		},
		Activity: ActivityConfig{
			Retention: 30 * 24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func (c CredentialConfig) hasherConfig() credential.Config {
	return credential.Config{
		Memory:      c.Memory,
		Time:        c.Time,
		Parallelism: c.Parallelism,
		SaltLength:  c.SaltLength,
		KeyLength:   c.KeyLength,
		MinLength:   c.MinLength,
	}
}

// Validate checks static configuration invariants.
func (c *Config) Validate() error {
	if c.KeyPrefix == "" {
		return errors.New("KeyPrefix must not be empty")
	}

	// Recovery
	if c.Recovery.RetentionGrace < 0 {
		return errors.New("Recovery RetentionGrace must be >= 0")
	}
	if c.Recovery.EnableIdentifierThrottle || c.Recovery.EnableIPThrottle {
		if c.Recovery.MaxRequests <= 0 {
			return errors.New("Recovery MaxRequests must be > 0 when throttling is enabled")
		}
		if c.Recovery.RequestWindow <= 0 {
			return errors.New("Recovery RequestWindow must be > 0 when throttling is enabled")
		}
	}

	// Credential
	if err := c.Credential.hasherConfig().Validate(); err != nil {
		return err
	}

	// Activity
	if c.Activity.Retention < 0 {
		return errors.New("Activity Retention must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}
	return nil
}
