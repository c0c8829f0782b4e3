package internaldefs

import (
	goGuard "github.com/MrEthical07/goGuard"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goGuard.MetricAuthorizeAllowed, Name: "goguard_authorize_allowed_total", Help: "Gate requests that were allowed."},
	{ID: goGuard.MetricAuthorizeDenied, Name: "goguard_authorize_denied_total", Help: "Gate requests that were denied, including failures."},
	{ID: goGuard.MetricFloodLimited, Name: "goguard_flood_limited_total", Help: "Posts refused by the initial-account flood limiter."},
	{ID: goGuard.MetricPolicyDenied, Name: "goguard_policy_denied_total", Help: "Requests refused by an auth package or thread lock."},
	{ID: goGuard.MetricUnknownPackage, Name: "goguard_unknown_auth_package_total", Help: "Requests naming an unregistered auth package."},
	{ID: goGuard.MetricCaptchaRequired, Name: "goguard_captcha_required_total", Help: "Posts refused pending a solved captcha."},
	{ID: goGuard.MetricThankDenied, Name: "goguard_thank_denied_total", Help: "Thanks refused for self-thanking or low contribution."},
	{ID: goGuard.MetricBannedDenied, Name: "goguard_banned_denied_total", Help: "Requests refused for inactive or banned subjects."},
	{ID: goGuard.MetricContentTruncated, Name: "goguard_content_truncated_total", Help: "Allowed posts whose content was shortened."},
	{ID: goGuard.MetricActionRecorded, Name: "goguard_action_recorded_total", Help: "Actions appended to subject histories."},
	{ID: goGuard.MetricRecoveryIssued, Name: "goguard_recovery_issued_total", Help: "Recovery tokens issued."},
	{ID: goGuard.MetricRecoveryUnknownSubject, Name: "goguard_recovery_unknown_subject_total", Help: "Recovery requests for unknown usernames."},
	{ID: goGuard.MetricRecoveryNotifyFailed, Name: "goguard_recovery_notify_failed_total", Help: "Recovery notices the notifier failed to deliver."},
	{ID: goGuard.MetricRecoveryIssueFailed, Name: "goguard_recovery_issue_failed_total", Help: "Recovery requests dropped by a provider or store failure."},
	{ID: goGuard.MetricRecoveryRateLimited, Name: "goguard_recovery_rate_limited_total", Help: "Recovery requests refused by the request throttle."},
	{ID: goGuard.MetricRecoveryConsumed, Name: "goguard_recovery_consumed_total", Help: "Recovery tokens consumed successfully."},
	{ID: goGuard.MetricRecoveryInvalid, Name: "goguard_recovery_invalid_total", Help: "Recovery attempts with unknown or malformed tokens."},
	{ID: goGuard.MetricRecoveryExpired, Name: "goguard_recovery_expired_total", Help: "Recovery attempts with expired tokens."},
	{ID: goGuard.MetricRecoverySwept, Name: "goguard_recovery_swept_total", Help: "Expired recovery grants removed by sweeps."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goGuard.MetricAuthorizeLatency, Name: "goguard_authorize_latency_seconds", Help: "Authorize latency histogram."},
}

// HistogramUpperBounds are the bucket bounds in seconds, matching the
// engine's fixed buckets. The last bucket is +Inf and has no entry.
var HistogramUpperBounds = []float64{0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1}

var HistogramBounds = []string{
	"0.001",
	"0.002",
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"+Inf",
}

var HistogramBoundSuffix = []string{
	"0_001",
	"0_002",
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, zero-filling short input.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
