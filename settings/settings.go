package settings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Recognized setting keys.
const (
	KeyCaptchaPeriod             = "captcha_period"
	KeyInitialAccountPeriodTotal = "initial_account_period_total"
	KeyInitialAccountPeriodLimit = "initial_account_period_limit"
	KeyInitialAccountPeriodWidth = "initial_account_period_width"
	KeyRecoveryTokenWidth        = "recovery_token_width"
	KeyMaxPostLength             = "max_post_length"
)

var (
	// ErrMissing is returned when a required key has no value in any layer.
	ErrMissing = errors.New("setting missing")
	// ErrInvalid is returned when a stored value cannot be parsed or is out of range.
	ErrInvalid = errors.New("setting invalid")
	// ErrUnknownKey is returned by writers for keys outside the recognized set.
	ErrUnknownKey = errors.New("unknown setting key")
)

// Kind describes how a setting value is parsed.
type Kind uint8

const (
	KindInt Kind = iota + 1
	KindDuration
)

var kinds = map[string]Kind{
	KeyCaptchaPeriod:             KindInt,
	KeyInitialAccountPeriodTotal: KindInt,
	KeyInitialAccountPeriodLimit: KindInt,
	KeyInitialAccountPeriodWidth: KindDuration,
	KeyRecoveryTokenWidth:        KindDuration,
	KeyMaxPostLength:             KindInt,
}

// Keys returns every recognized key in lexical order.
func Keys() []string {
	out := make([]string, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// KindOf reports the value kind of key.
func KindOf(key string) (Kind, bool) {
	k, ok := kinds[key]
	return k, ok
}

// CheckValue verifies that value parses for key. Writers call it before
// persisting so that a bad operator edit fails at write time.
func CheckValue(key, value string) error {
	kind, ok := kinds[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	switch kind {
	case KindInt:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: %s=%q", ErrInvalid, key, value)
		}
	case KindDuration:
		d, err := ParseDuration(value)
		if err != nil || d < 0 {
			return fmt.Errorf("%w: %s=%q", ErrInvalid, key, value)
		}
	}
	return nil
}

// Reader is the narrow configuration contract consumed by the engine.
// Implementations must be safe for concurrent use and must return an error
// wrapping ErrMissing for keys they do not hold.
type Reader interface {
	Get(ctx context.Context, key string) (string, error)
}

// Memory is a process-local, runtime-mutable settings store.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory returns a store seeded with values. The map is copied.
func NewMemory(values map[string]string) *Memory {
	m := &Memory{values: make(map[string]string, len(values))}
	for k, v := range values {
		m.values[k] = v
	}
	return m
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissing, key)
	}
	return v, nil
}

// Set stores value for key after checking that it parses.
func (m *Memory) Set(key, value string) error {
	if err := CheckValue(key, value); err != nil {
		return err
	}

	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}

// SetInt is a typed convenience over Set.
func (m *Memory) SetInt(key string, value int64) error {
	return m.Set(key, strconv.FormatInt(value, 10))
}

// SetDuration is a typed convenience over Set.
func (m *Memory) SetDuration(key string, value time.Duration) error {
	return m.Set(key, value.String())
}

// Delete removes key. Subsequent reads report ErrMissing.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
}

// All returns a copy of every stored value.
func (m *Memory) All() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// Layered consults readers in order and returns the first value found.
// Errors other than ErrMissing stop the lookup.
type Layered []Reader

func (l Layered) Get(ctx context.Context, key string) (string, error) {
	for _, r := range l {
		if r == nil {
			continue
		}
		v, err := r.Get(ctx, key)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrMissing) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s", ErrMissing, key)
}
