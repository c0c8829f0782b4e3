package goGuard

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/internal"
	internalflows "github.com/MrEthical07/goGuard/internal/flows"
)

// IssueRecovery issues a fresh recovery token for username, replacing any
// live one, and hands it to the Notifier. It returns nil for unknown
// usernames and for backend failures after the username lookup, so the
// result never reveals whether the account exists. ErrRecoveryRateLimited is returned once the
// per-username or per-IP window is exhausted, wrapped in a *RetryableError
// that reports when the window resets.
func (e *Engine) IssueRecovery(ctx context.Context, username string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return internalflows.RunIssueRecovery(ctx, username, e.flows.Recovery)
}

// ConsumeRecovery validates token and replaces the subject's credential
// with newCredential. The token is single use: once it matched a live
// grant it is gone, even if the credential write then fails.
//
// Errors: ErrTokenInvalid for unknown, consumed or malformed tokens;
// ErrTokenExpired (which matches ErrTokenInvalid) for expired ones;
// ErrCredentialPolicy when newCredential is rejected, in which case the
// token is left untouched.
func (e *Engine) ConsumeRecovery(ctx context.Context, token, newCredential string) (RecoveryResult, error) {
	if e == nil {
		return RecoveryResult{}, ErrEngineNotReady
	}
	res, err := internalflows.RunConsumeRecovery(ctx, token, newCredential, e.flows.Recovery)
	return RecoveryResult{Outcome: RecoveryOutcome(res.Outcome), SubjectID: res.SubjectID}, err
}

// CheckRecovery reports whether token is live without consuming it, for
// rendering a reset form. Expired grants observed here are cleared.
func (e *Engine) CheckRecovery(ctx context.Context, token string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	_, err := internalflows.RunCheckRecovery(ctx, token, e.flows.Recovery)
	return err
}

// SweepRecovery removes up to limit expired grants (all when limit <= 0).
// Lazy expiry already hides them; this only reclaims storage.
func (e *Engine) SweepRecovery(ctx context.Context, limit int) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	return internalflows.RunSweepRecovery(ctx, limit, e.flows.Recovery)
}

func (e *Engine) recoveryFlowDeps() internalflows.RecoveryDeps {
	cfg := e.config

	deps := internalflows.RecoveryDeps{
		Enabled:             cfg.Recovery.Enabled,
		RetentionGrace:      cfg.Recovery.RetentionGrace,
		Now:                 e.now,
		ClientIPFromContext: clientIPFromContext,
		LoadSettings:        e.loadSettings,
		Logger:              e.logger,
		MapLimiterError:     mapRecoveryLimiterError,
		IsSubjectNotFound: func(err error) bool {
			return errors.Is(err, ErrSubjectNotFound)
		},
		NewToken: func() (string, [32]byte, error) {
			tok, err := internal.NewRecoveryToken()
			if err != nil {
				return "", [32]byte{}, err
			}
			return tok.Value, tok.Hash, nil
		},
		ParseToken: internal.ParseRecoveryToken,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		MetricAdd: func(id int, n uint64) {
			e.metricAdd(MetricID(id), n)
		},
		EmitAudit:     e.emitAudit,
		EmitRateLimit: e.emitRateLimit,
		Metrics: internalflows.RecoveryMetrics{
			Issued:         int(MetricRecoveryIssued),
			UnknownSubject: int(MetricRecoveryUnknownSubject),
			NotifyFailed:   int(MetricRecoveryNotifyFailed),
			IssueFailed:    int(MetricRecoveryIssueFailed),
			RateLimited:    int(MetricRecoveryRateLimited),
			Consumed:       int(MetricRecoveryConsumed),
			Invalid:        int(MetricRecoveryInvalid),
			Expired:        int(MetricRecoveryExpired),
			Swept:          int(MetricRecoverySwept),
		},
		Events: internalflows.RecoveryEvents{
			Request:      auditEventRecoveryRequest,
			Consume:      auditEventRecoveryConsume,
			Check:        auditEventRecoveryCheck,
			NotifyFailed: auditEventRecoveryNotifyFailed,
			Sweep:        auditEventRecoverySweep,
		},
		Errors: internalflows.RecoveryErrors{
			EngineNotReady:   ErrEngineNotReady,
			Disabled:         ErrRecoveryDisabled,
			TokenInvalid:     ErrTokenInvalid,
			TokenExpired:     ErrTokenExpired,
			RateLimited:      ErrRecoveryRateLimited,
			Unavailable:      ErrRecoveryUnavailable,
			CredentialPolicy: ErrCredentialPolicy,
			ConfigInvalid:    ErrConfigInvalid,
		},
	}

	if e.recoveryLimiter != nil {
		deps.CheckLimiter = e.recoveryLimiter.Check
	}
	if e.subjects != nil {
		deps.GetSubjectByUsername = func(ctx context.Context, username string) (internalflows.RecoverySubject, error) {
			s, err := e.subjects.GetSubjectByUsername(ctx, username)
			if err != nil {
				return internalflows.RecoverySubject{}, err
			}
			return internalflows.RecoverySubject{ID: s.ID, Username: s.Username, Email: s.Email}, nil
		}
		deps.UpdateCredential = e.subjects.UpdateCredential
	}
	if e.recovery != nil {
		deps.IssueGrant = func(ctx context.Context, subjectID string, hash [32]byte, expiresAt time.Time, retain time.Duration) error {
			return e.recovery.Issue(ctx, RecoveryGrant{
				SubjectID: subjectID,
				TokenHash: hash,
				ExpiresAt: expiresAt,
				Retain:    retain,
			})
		}
		deps.ConsumeGrant = e.recovery.Consume
		deps.PeekGrant = e.recovery.Peek
		deps.SweepGrants = e.recovery.Sweep
		if cs, ok := e.recovery.(CredentialRecoveryStore); ok {
			deps.ConsumeGrantWithCredential = cs.ConsumeWithCredential
		}
	}
	if e.notifier != nil {
		deps.Notify = func(ctx context.Context, n internalflows.RecoveryNotice) error {
			return e.notifier.Send(ctx, RecoveryNotice{
				SubjectID: n.SubjectID,
				Username:  n.Username,
				Email:     n.Email,
				Token:     n.Token,
				ExpiresAt: n.ExpiresAt,
			})
		}
	}
	if e.hasher != nil {
		deps.CheckCredentialPolicy = e.hasher.CheckPolicy
		deps.HashCredential = e.hasher.Hash
	}

	return deps
}
