package settings

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Snapshot is a parsed, point-in-time view of every recognized setting.
// Callers load a fresh Snapshot per evaluation.
type Snapshot struct {
	CaptchaPeriod             int64
	InitialAccountPeriodTotal int64
	InitialAccountPeriodLimit int64
	InitialAccountPeriodWidth time.Duration
	RecoveryTokenWidth        time.Duration
	MaxPostLength             int64
}

// Load reads and parses every recognized key from r. A key absent from r
// is reported as ErrMissing; no default is substituted.
func Load(ctx context.Context, r Reader) (Snapshot, error) {
	if r == nil {
		return Snapshot{}, fmt.Errorf("%w: nil reader", ErrMissing)
	}

	var (
		s   Snapshot
		err error
	)
	if s.CaptchaPeriod, err = readInt(ctx, r, KeyCaptchaPeriod); err != nil {
		return Snapshot{}, err
	}
	if s.InitialAccountPeriodTotal, err = readInt(ctx, r, KeyInitialAccountPeriodTotal); err != nil {
		return Snapshot{}, err
	}
	if s.InitialAccountPeriodLimit, err = readInt(ctx, r, KeyInitialAccountPeriodLimit); err != nil {
		return Snapshot{}, err
	}
	if s.InitialAccountPeriodWidth, err = readDuration(ctx, r, KeyInitialAccountPeriodWidth); err != nil {
		return Snapshot{}, err
	}
	if s.RecoveryTokenWidth, err = readDuration(ctx, r, KeyRecoveryTokenWidth); err != nil {
		return Snapshot{}, err
	}
	if s.MaxPostLength, err = readInt(ctx, r, KeyMaxPostLength); err != nil {
		return Snapshot{}, err
	}

	if err := s.Validate(); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// Validate rejects negative thresholds and widths.
func (s Snapshot) Validate() error {
	switch {
	case s.CaptchaPeriod < 0:
		return fmt.Errorf("%w: %s must be >= 0", ErrInvalid, KeyCaptchaPeriod)
	case s.InitialAccountPeriodTotal < 0:
		return fmt.Errorf("%w: %s must be >= 0", ErrInvalid, KeyInitialAccountPeriodTotal)
	case s.InitialAccountPeriodLimit < 0:
		return fmt.Errorf("%w: %s must be >= 0", ErrInvalid, KeyInitialAccountPeriodLimit)
	case s.InitialAccountPeriodWidth < 0:
		return fmt.Errorf("%w: %s must be >= 0", ErrInvalid, KeyInitialAccountPeriodWidth)
	case s.RecoveryTokenWidth < 0:
		return fmt.Errorf("%w: %s must be >= 0", ErrInvalid, KeyRecoveryTokenWidth)
	case s.MaxPostLength < 0:
		return fmt.Errorf("%w: %s must be >= 0", ErrInvalid, KeyMaxPostLength)
	}
	return nil
}

// Map renders the snapshot back into storable string values.
func (s Snapshot) Map() map[string]string {
	return map[string]string{
		KeyCaptchaPeriod:             strconv.FormatInt(s.CaptchaPeriod, 10),
		KeyInitialAccountPeriodTotal: strconv.FormatInt(s.InitialAccountPeriodTotal, 10),
		KeyInitialAccountPeriodLimit: strconv.FormatInt(s.InitialAccountPeriodLimit, 10),
		KeyInitialAccountPeriodWidth: FormatDuration(s.InitialAccountPeriodWidth),
		KeyRecoveryTokenWidth:        FormatDuration(s.RecoveryTokenWidth),
		KeyMaxPostLength:             strconv.FormatInt(s.MaxPostLength, 10),
	}
}

func readInt(ctx context.Context, r Reader, key string) (int64, error) {
	raw, err := r.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalid, key, raw)
	}
	return n, nil
}

func readDuration(ctx context.Context, r Reader, key string) (time.Duration, error) {
	raw, err := r.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	d, err := ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalid, key, raw)
	}
	return d, nil
}
