package flows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/goGuard/settings"
)

// Recovery outcomes. Values match the root RecoveryOutcome constants.
const (
	RecoveryOutcomeInvalid = iota
	RecoveryOutcomeSuccess
	RecoveryOutcomeExpired
)

type RecoverySubject struct {
	ID       string
	Username string
	Email    string
}

type RecoveryNotice struct {
	SubjectID string
	Username  string
	Email     string
	Token     string
	ExpiresAt time.Time
}

type RecoveryConsumeResult struct {
	Outcome   int
	SubjectID string
}

type RecoveryMetrics struct {
	Issued         int
	UnknownSubject int
	NotifyFailed   int
	IssueFailed    int
	RateLimited    int
	Consumed       int
	Invalid        int
	Expired        int
	Swept          int
}

type RecoveryEvents struct {
	Request      string
	Consume      string
	Check        string
	NotifyFailed string
	Sweep        string
}

type RecoveryErrors struct {
	EngineNotReady   error
	Disabled         error
	TokenInvalid     error
	TokenExpired     error
	RateLimited      error
	Unavailable      error
	CredentialPolicy error
	ConfigInvalid    error
}

type RecoveryDeps struct {
	Enabled        bool
	RetentionGrace time.Duration

	Now                 func() time.Time
	ClientIPFromContext func(context.Context) string
	LoadSettings        func(context.Context) (settings.Snapshot, error)
	Logger              *slog.Logger

	CheckLimiter    func(context.Context, string, string) error
	MapLimiterError func(error) error

	GetSubjectByUsername func(context.Context, string) (RecoverySubject, error)
	IsSubjectNotFound    func(error) bool
	UpdateCredential     func(context.Context, string, string) error

	NewToken   func() (string, [32]byte, error)
	ParseToken func(string) ([32]byte, error)

	IssueGrant                 func(context.Context, string, [32]byte, time.Time, time.Duration) error
	ConsumeGrant               func(context.Context, [32]byte, time.Time) (string, error)
	ConsumeGrantWithCredential func(context.Context, [32]byte, time.Time, string) (string, error)
	PeekGrant                  func(context.Context, [32]byte, time.Time) (string, error)
	SweepGrants                func(context.Context, time.Time, int) (int, error)

	CheckCredentialPolicy func(string) error
	HashCredential        func(string) (string, error)

	Notify func(context.Context, RecoveryNotice) error

	MetricInc     func(int)
	MetricAdd     func(int, uint64)
	EmitAudit     func(context.Context, string, bool, string, string, error, func() map[string]string)
	EmitRateLimit func(context.Context, string, func() map[string]string)

	Metrics RecoveryMetrics
	Events  RecoveryEvents
	Errors  RecoveryErrors
}

func normalizeRecoveryDeps(deps *RecoveryDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.MapLimiterError == nil {
		deps.MapLimiterError = func(err error) error { return err }
	}
	if deps.IsSubjectNotFound == nil {
		deps.IsSubjectNotFound = func(error) bool { return false }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.MetricAdd == nil {
		deps.MetricAdd = func(int, uint64) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.EmitRateLimit == nil {
		deps.EmitRateLimit = func(context.Context, string, func() map[string]string) {}
	}
}

// RunIssueRecovery issues a token for username and hands it to the
// notifier. Unknown usernames complete with a nil error and no state change,
// and so does any backend failure once the username has been looked up.
func RunIssueRecovery(ctx context.Context, username string, deps RecoveryDeps) error {
	normalizeRecoveryDeps(&deps)

	if !deps.Enabled {
		return deps.Errors.Disabled
	}
	if deps.LoadSettings == nil || deps.GetSubjectByUsername == nil || deps.NewToken == nil ||
		deps.IssueGrant == nil || deps.Notify == nil {
		return deps.Errors.EngineNotReady
	}

	ip := deps.ClientIPFromContext(ctx)
	if deps.CheckLimiter != nil {
		if err := deps.CheckLimiter(ctx, username, ip); err != nil {
			mapped := deps.MapLimiterError(err)
			if errors.Is(mapped, deps.Errors.RateLimited) {
				deps.MetricInc(deps.Metrics.RateLimited)
				deps.EmitRateLimit(ctx, "recovery_request", func() map[string]string {
					return map[string]string{"username": username}
				})
			}
			deps.EmitAudit(ctx, deps.Events.Request, false, "", "", mapped, func() map[string]string {
				return map[string]string{"username": username}
			})
			return mapped
		}
	}

	snap, err := deps.LoadSettings(ctx)
	if err != nil {
		return err
	}
	if snap.RecoveryTokenWidth <= 0 {
		return fmt.Errorf("%w: %s must be > 0", deps.Errors.ConfigInvalid, settings.KeyRecoveryTokenWidth)
	}

	if username == "" {
		deps.MetricInc(deps.Metrics.UnknownSubject)
		return nil
	}

	subject, err := deps.GetSubjectByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if deps.IsSubjectNotFound(err) {
			deps.MetricInc(deps.Metrics.UnknownSubject)
			deps.EmitAudit(ctx, deps.Events.Request, true, "", "", nil, func() map[string]string {
				return map[string]string{
					"username":         username,
					"enumeration_safe": "true",
				}
			})
			return nil
		}
		issueFailed(ctx, &deps, "", fmt.Errorf("%w: %v", deps.Errors.Unavailable, err))
		return nil
	}

	token, hash, err := deps.NewToken()
	if err != nil {
		issueFailed(ctx, &deps, subject.ID, fmt.Errorf("%w: %v", deps.Errors.Unavailable, err))
		return nil
	}

	now := deps.Now()
	expiresAt := now.Add(snap.RecoveryTokenWidth)
	if err := deps.IssueGrant(ctx, subject.ID, hash, expiresAt, snap.RecoveryTokenWidth+deps.RetentionGrace); err != nil {
		issueFailed(ctx, &deps, subject.ID, err)
		return nil
	}
	deps.MetricInc(deps.Metrics.Issued)

	notice := RecoveryNotice{
		SubjectID: subject.ID,
		Username:  subject.Username,
		Email:     subject.Email,
		Token:     token,
		ExpiresAt: expiresAt,
	}
	if err := deps.Notify(ctx, notice); err != nil {
		deps.MetricInc(deps.Metrics.NotifyFailed)
		deps.Logger.WarnContext(ctx, "recovery notification failed",
			slog.String("subject_id", subject.ID),
			slog.Any("error", err),
		)
		deps.EmitAudit(ctx, deps.Events.NotifyFailed, false, subject.ID, "", err, nil)
		return nil
	}

	deps.EmitAudit(ctx, deps.Events.Request, true, subject.ID, "", nil, func() map[string]string {
		return map[string]string{
			"expires_at": expiresAt.UTC().Format(time.RFC3339),
		}
	})
	return nil
}

// issueFailed records a backend failure past the username lookup. The
// caller still completes normally: an error here would only ever be seen
// for usernames that exist.
func issueFailed(ctx context.Context, deps *RecoveryDeps, subjectID string, err error) {
	deps.MetricInc(deps.Metrics.IssueFailed)
	deps.Logger.ErrorContext(ctx, "recovery issue failed",
		slog.String("subject_id", subjectID),
		slog.Any("error", err),
	)
	deps.EmitAudit(ctx, deps.Events.Request, false, subjectID, "", err, nil)
}

// RunConsumeRecovery validates token and, when live, replaces the subject's
// credential. The token is cleared before the credential write.
func RunConsumeRecovery(ctx context.Context, token, newCredential string, deps RecoveryDeps) (RecoveryConsumeResult, error) {
	normalizeRecoveryDeps(&deps)

	if !deps.Enabled {
		return RecoveryConsumeResult{}, deps.Errors.Disabled
	}
	if deps.ParseToken == nil || deps.CheckCredentialPolicy == nil || deps.HashCredential == nil {
		return RecoveryConsumeResult{}, deps.Errors.EngineNotReady
	}
	if deps.ConsumeGrantWithCredential == nil && (deps.ConsumeGrant == nil || deps.UpdateCredential == nil) {
		return RecoveryConsumeResult{}, deps.Errors.EngineNotReady
	}

	hash, err := deps.ParseToken(token)
	if err != nil {
		deps.MetricInc(deps.Metrics.Invalid)
		deps.EmitAudit(ctx, deps.Events.Consume, false, "", "", deps.Errors.TokenInvalid, func() map[string]string {
			return map[string]string{"reason": "malformed"}
		})
		return RecoveryConsumeResult{}, deps.Errors.TokenInvalid
	}

	if err := deps.CheckCredentialPolicy(newCredential); err != nil {
		return RecoveryConsumeResult{}, fmt.Errorf("%w: %v", deps.Errors.CredentialPolicy, err)
	}
	encoded, err := deps.HashCredential(newCredential)
	if err != nil {
		return RecoveryConsumeResult{}, fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}

	now := deps.Now()
	var subjectID string
	if deps.ConsumeGrantWithCredential != nil {
		subjectID, err = deps.ConsumeGrantWithCredential(ctx, hash, now, encoded)
	} else {
		subjectID, err = deps.ConsumeGrant(ctx, hash, now)
	}
	if err != nil {
		return consumeFailure(ctx, err, &deps)
	}

	if deps.ConsumeGrantWithCredential == nil {
		if err := deps.UpdateCredential(ctx, subjectID, encoded); err != nil {
			deps.EmitAudit(ctx, deps.Events.Consume, false, subjectID, "", err, func() map[string]string {
				return map[string]string{"reason": "credential_update_failed"}
			})
			return RecoveryConsumeResult{SubjectID: subjectID}, fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
		}
	}

	deps.MetricInc(deps.Metrics.Consumed)
	deps.EmitAudit(ctx, deps.Events.Consume, true, subjectID, "", nil, nil)
	return RecoveryConsumeResult{Outcome: RecoveryOutcomeSuccess, SubjectID: subjectID}, nil
}

func consumeFailure(ctx context.Context, err error, deps *RecoveryDeps) (RecoveryConsumeResult, error) {
	switch {
	case errors.Is(err, deps.Errors.TokenExpired):
		deps.MetricInc(deps.Metrics.Expired)
		deps.EmitAudit(ctx, deps.Events.Consume, false, "", "", err, func() map[string]string {
			return map[string]string{"reason": "expired"}
		})
		return RecoveryConsumeResult{Outcome: RecoveryOutcomeExpired}, deps.Errors.TokenExpired
	case errors.Is(err, deps.Errors.TokenInvalid):
		deps.MetricInc(deps.Metrics.Invalid)
		deps.EmitAudit(ctx, deps.Events.Consume, false, "", "", err, func() map[string]string {
			return map[string]string{"reason": "unknown"}
		})
		return RecoveryConsumeResult{Outcome: RecoveryOutcomeInvalid}, deps.Errors.TokenInvalid
	default:
		deps.EmitAudit(ctx, deps.Events.Consume, false, "", "", err, nil)
		return RecoveryConsumeResult{}, err
	}
}

// RunCheckRecovery reports whether token is live without consuming it.
func RunCheckRecovery(ctx context.Context, token string, deps RecoveryDeps) (string, error) {
	normalizeRecoveryDeps(&deps)

	if !deps.Enabled {
		return "", deps.Errors.Disabled
	}
	if deps.ParseToken == nil || deps.PeekGrant == nil {
		return "", deps.Errors.EngineNotReady
	}

	hash, err := deps.ParseToken(token)
	if err != nil {
		return "", deps.Errors.TokenInvalid
	}
	subjectID, err := deps.PeekGrant(ctx, hash, deps.Now())
	if err != nil {
		if errors.Is(err, deps.Errors.TokenExpired) {
			deps.MetricInc(deps.Metrics.Expired)
			deps.EmitAudit(ctx, deps.Events.Check, false, "", "", err, nil)
			return "", deps.Errors.TokenExpired
		}
		return "", err
	}
	return subjectID, nil
}

// RunSweepRecovery deletes up to limit expired grants.
func RunSweepRecovery(ctx context.Context, limit int, deps RecoveryDeps) (int, error) {
	normalizeRecoveryDeps(&deps)

	if deps.SweepGrants == nil {
		return 0, deps.Errors.EngineNotReady
	}
	removed, err := deps.SweepGrants(ctx, deps.Now(), limit)
	if removed > 0 {
		deps.MetricAdd(deps.Metrics.Swept, uint64(removed))
	}
	if err != nil {
		return removed, err
	}
	deps.EmitAudit(ctx, deps.Events.Sweep, true, "", "", nil, func() map[string]string {
		return map[string]string{"removed": fmt.Sprint(removed)}
	})
	return removed, nil
}
