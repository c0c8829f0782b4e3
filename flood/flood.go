// Package flood decides whether a young account may perform another write
// action. Every function is pure: callers supply the clock reading and the
// counts, and record the action themselves once it succeeds.
package flood

import "time"

// Limits is the initial-account-period configuration for one evaluation.
type Limits struct {
	// Limit is the number of actions allowed inside one window.
	Limit int64
	// Total is the lifetime action count past which an account graduates.
	Total int64
	// Width is the sliding window length and the initial period length.
	Width time.Duration
}

// History is what the caller knows about a subject's activity.
type History struct {
	CreatedAt time.Time
	// Lifetime counts every recorded action.
	Lifetime int64
	// InWindow counts actions with timestamp >= WindowStart.
	InWindow int64
	// Oldest is the earliest timestamp inside the window, zero when empty.
	Oldest time.Time
}

// Verdict is the outcome of MayAct.
type Verdict struct {
	Allowed bool
	// RetryAfter is set on denial: the time until the oldest counted
	// action leaves the window.
	RetryAfter time.Duration
}

// Disabled reports whether the limiter is switched off by configuration.
func Disabled(l Limits) bool {
	return l.Limit == 0 || l.Width == 0
}

// Graduated reports whether the subject has left the initial period,
// either by account age or by lifetime contribution.
func Graduated(now time.Time, h History, l Limits) bool {
	if now.Sub(h.CreatedAt) > l.Width {
		return true
	}
	return h.Lifetime > l.Total
}

// InInitialPeriod reports whether flood control applies to the subject.
func InInitialPeriod(now time.Time, h History, l Limits) bool {
	return !Disabled(l) && !Graduated(now, h, l)
}

// WindowStart is the inclusive lower bound of the counting window.
func WindowStart(now time.Time, l Limits) time.Time {
	return now.Add(-l.Width)
}

// MayAct allows the action unless the subject is inside its initial period
// and already has Limit actions in the window.
func MayAct(now time.Time, h History, l Limits) Verdict {
	if !InInitialPeriod(now, h, l) {
		return Verdict{Allowed: true}
	}
	if h.InWindow < l.Limit {
		return Verdict{Allowed: true}
	}

	v := Verdict{}
	if !h.Oldest.IsZero() {
		if wait := h.Oldest.Add(l.Width).Sub(now); wait > 0 {
			v.RetryAfter = wait
		}
	}
	return v
}

// MayThank applies the contribution threshold for thanking posts. It is
// keyed on lifetime count only.
func MayThank(lifetime, total int64) bool {
	return lifetime > total
}

// CaptchaRequired reports whether the subject is still inside the captcha
// period. A period of zero disables captchas.
func CaptchaRequired(lifetime, period int64) bool {
	return lifetime < period
}

// CountSince counts timestamps in [since, until] and returns the earliest
// one counted. It is the reference window query for in-memory histories.
func CountSince(timestamps []time.Time, since, until time.Time) (int64, time.Time) {
	var (
		n      int64
		oldest time.Time
	)
	for _, ts := range timestamps {
		if ts.Before(since) || ts.After(until) {
			continue
		}
		n++
		if oldest.IsZero() || ts.Before(oldest) {
			oldest = ts
		}
	}
	return n, oldest
}

// Build assembles a History from raw timestamps.
func Build(createdAt time.Time, timestamps []time.Time, now time.Time, l Limits) History {
	inWindow, oldest := CountSince(timestamps, WindowStart(now, l), now)
	return History{
		CreatedAt: createdAt,
		Lifetime:  int64(len(timestamps)),
		InWindow:  inWindow,
		Oldest:    oldest,
	}
}
