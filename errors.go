package goGuard

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPolicyDenied is the user-facing "forbidden" outcome.
	ErrPolicyDenied = errors.New("policy denied")
	// ErrRateLimited is returned by Decision.Err when flood control refused
	// the action. It is retryable after Decision.RetryAfter.
	ErrRateLimited = errors.New("rate limited")
	// ErrTokenInvalid covers unknown, consumed and expired recovery tokens.
	ErrTokenInvalid = errors.New("recovery token invalid or expired")
	// ErrTokenExpired matches ErrTokenInvalid and additionally marks expiry
	// for internal accounting and tests.
	ErrTokenExpired = fmt.Errorf("%w: expired", ErrTokenInvalid)
	// ErrConfigMissing is returned when a required setting is absent. It is
	// a programmer or operator error and is never converted into an allow.
	ErrConfigMissing = errors.New("required setting missing")
	// ErrConfigInvalid is returned when a setting cannot be parsed or is out of range.
	ErrConfigInvalid = errors.New("setting invalid")
	// ErrUnknownAuthPackage is returned by forum validation for unregistered package names.
	ErrUnknownAuthPackage = errors.New("unknown auth package")
	// ErrEngineNotReady is returned when an Engine is used without its collaborators.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrSubjectNotFound is returned by SubjectProvider implementations.
	ErrSubjectNotFound = errors.New("subject not found")
	// ErrCredentialPolicy is returned when a replacement credential is rejected.
	ErrCredentialPolicy = errors.New("credential policy violation")
	// ErrRecoveryDisabled is returned when recovery is switched off in Config.
	ErrRecoveryDisabled = errors.New("recovery disabled")
	// ErrRecoveryRateLimited is returned when recovery requests exceed their window.
	ErrRecoveryRateLimited = errors.New("recovery rate limited")
	// ErrRecoveryUnavailable wraps recovery storage and notification failures.
	ErrRecoveryUnavailable = errors.New("recovery backend unavailable")
	// ErrActivityUnavailable wraps activity storage failures.
	ErrActivityUnavailable = errors.New("activity backend unavailable")
)

// RetryableError carries how long a throttled caller should wait before
// trying again. It unwraps to the sentinel it qualifies.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("%v: retry after %s", e.Err, e.RetryAfter)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// RetryAfter returns the wait carried by err, or zero when err carries none.
func RetryAfter(err error) time.Duration {
	var re *RetryableError
	if errors.As(err, &re) {
		return re.RetryAfter
	}
	return 0
}
