package goGuard

import (
	"context"
	"time"
)

// Subject is the identity performing an action, as supplied by the external
// identity provider.
type Subject struct {
	ID        string
	Username  string
	Email     string
	CreatedAt time.Time
	IsAdmin   bool
	IsStaff   bool
	IsActive  bool
	// BannedUntil is zero when the subject has no pending ban.
	BannedUntil time.Time
}

// Elevated reports whether the subject holds a staff or administrator role.
func (s Subject) Elevated() bool {
	return s.IsStaff || s.IsAdmin
}

// Banned reports whether a ban is pending at now.
func (s Subject) Banned(now time.Time) bool {
	return !s.BannedUntil.IsZero() && now.Before(s.BannedUntil)
}

// Forum carries the auth packages attached to a forum. An empty package
// name is the open default.
type Forum struct {
	ID                  string
	CreateThreadPackage string
	ReplyPackage        string
}

// Thread is the reply target.
type Thread struct {
	ID       string
	AuthorID string
	Locked   bool
}

// Post is the edit or thank target.
type Post struct {
	ID       string
	AuthorID string
}

// Action names a privileged operation.
type Action string

const (
	ActionCreateThread Action = "create-thread"
	ActionNewReply     Action = "new-reply"
	ActionEditPost     Action = "edit-post"
	ActionDeletePosts  Action = "delete-posts"
	ActionThankPost    Action = "thank-post"
)

// Valid reports whether a is one of the gated actions.
func (a Action) Valid() bool {
	switch a {
	case ActionCreateThread, ActionNewReply, ActionEditPost, ActionDeletePosts, ActionThankPost:
		return true
	}
	return false
}

// Request is one ActionGate evaluation.
type Request struct {
	Subject Subject
	Action  Action
	Forum   Forum
	Thread  Thread
	Post    Post
	// Content is the submitted text for create-thread, new-reply and edit-post.
	Content string
	// CaptchaSolved is set by the caller once a captcha challenge passed.
	CaptchaSolved bool
}

// Reason explains a denial.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonForbidden       Reason = "forbidden"
	ReasonRateLimited     Reason = "rate_limited"
	ReasonUnknownAction   Reason = "unknown_action"
	ReasonUnknownPackage  Reason = "unknown_auth_package"
	ReasonBanned          Reason = "banned"
	ReasonThreadLocked    Reason = "thread_locked"
	ReasonSelfThank       Reason = "self_thank"
	ReasonNoob            Reason = "insufficient_contribution"
	ReasonCaptchaRequired Reason = "captcha_required"
	ReasonUnavailable     Reason = "unavailable"
)

// Decision is the ActionGate verdict. Content holds the text the caller
// should persist, truncated when Truncated is set.
type Decision struct {
	Allowed    bool
	Reason     Reason
	Content    string
	Truncated  bool
	RetryAfter time.Duration
}

// Err maps a denial onto ErrRateLimited or ErrPolicyDenied. It returns nil
// for allowed decisions.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	if d.Reason == ReasonRateLimited {
		return ErrRateLimited
	}
	return ErrPolicyDenied
}

// RecoveryOutcome distinguishes consume results internally. Callers facing
// users should only surface success or ErrTokenInvalid.
type RecoveryOutcome uint8

const (
	RecoveryInvalid RecoveryOutcome = iota
	RecoverySuccess
	RecoveryExpired
)

func (o RecoveryOutcome) String() string {
	switch o {
	case RecoverySuccess:
		return "success"
	case RecoveryExpired:
		return "expired"
	default:
		return "invalid"
	}
}

// RecoveryResult is returned by Engine.ConsumeRecovery.
type RecoveryResult struct {
	Outcome   RecoveryOutcome
	SubjectID string
}

// RecoveryNotice is handed to the Notifier after a token is issued.
type RecoveryNotice struct {
	SubjectID string    `json:"subject_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RecoveryGrant is a token digest bound to a subject. Retain is how long the
// store should keep the record; it exceeds the validity window so that
// expiry is observed rather than silently evicted.
type RecoveryGrant struct {
	SubjectID string
	TokenHash [32]byte
	ExpiresAt time.Time
	Retain    time.Duration
}

// ActivityWindow summarizes a subject's actions inside one time range.
type ActivityWindow struct {
	Count  int64
	Oldest time.Time
}

// SubjectProvider resolves identities and stores replacement credentials.
// GetSubjectByUsername returns an error matching ErrSubjectNotFound for
// unknown usernames.
type SubjectProvider interface {
	GetSubjectByUsername(ctx context.Context, username string) (Subject, error)
	UpdateCredential(ctx context.Context, subjectID, credentialHash string) error
}

// ActivityStore owns the action history read by flood control.
type ActivityStore interface {
	Record(ctx context.Context, subjectID string, at time.Time) error
	Window(ctx context.Context, subjectID string, since, until time.Time) (ActivityWindow, error)
	Lifetime(ctx context.Context, subjectID string) (int64, error)
}

// RecoveryStore owns recovery token state. Issue must replace any prior
// grant for the subject atomically. Consume and Peek return errors matching
// ErrTokenInvalid for unknown digests and ErrTokenExpired for expired ones,
// and both delete expired grants they observe.
type RecoveryStore interface {
	Issue(ctx context.Context, grant RecoveryGrant) error
	Consume(ctx context.Context, tokenHash [32]byte, now time.Time) (string, error)
	Peek(ctx context.Context, tokenHash [32]byte, now time.Time) (string, error)
	Sweep(ctx context.Context, now time.Time, limit int) (int, error)
}

// CredentialRecoveryStore is implemented by stores that can clear a token
// and write the replacement credential in one transaction.
type CredentialRecoveryStore interface {
	RecoveryStore
	ConsumeWithCredential(ctx context.Context, tokenHash [32]byte, now time.Time, credentialHash string) (string, error)
}

// Notifier delivers recovery tokens out of band.
type Notifier interface {
	Send(ctx context.Context, notice RecoveryNotice) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, notice RecoveryNotice) error

func (f NotifierFunc) Send(ctx context.Context, notice RecoveryNotice) error {
	return f(ctx, notice)
}

// Clock supplies the current instant. Tests inject a fixed clock.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
