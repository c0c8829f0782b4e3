package goGuard

import (
	"context"
	"fmt"
	"time"

	internalflows "github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/policy"
)

// Authorize runs the action gate for req. Denials are returned as a
// Decision with a nil error; use Decision.Err to map them onto
// ErrPolicyDenied or ErrRateLimited. A non-nil error (ErrConfigMissing,
// ErrConfigInvalid, ErrActivityUnavailable, ErrEngineNotReady) always comes
// with a denying Decision.
//
// On success the caller performs the mutation with Decision.Content and
// then calls RecordAction for create-thread and new-reply.
func (e *Engine) Authorize(ctx context.Context, req Request) (Decision, error) {
	if e == nil {
		return Decision{Reason: ReasonUnavailable}, ErrEngineNotReady
	}

	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
	}

	res, err := internalflows.RunAuthorize(ctx, internalflows.AuthorizeRequest{
		SubjectID:           req.Subject.ID,
		IsAdmin:             req.Subject.IsAdmin,
		IsStaff:             req.Subject.IsStaff,
		IsActive:            req.Subject.IsActive,
		CreatedAt:           req.Subject.CreatedAt,
		BannedUntil:         req.Subject.BannedUntil,
		Action:              string(req.Action),
		ForumID:             req.Forum.ID,
		CreateThreadPackage: req.Forum.CreateThreadPackage,
		ReplyPackage:        req.Forum.ReplyPackage,
		ThreadID:            req.Thread.ID,
		ThreadAuthorID:      req.Thread.AuthorID,
		ThreadLocked:        req.Thread.Locked,
		PostID:              req.Post.ID,
		PostAuthorID:        req.Post.AuthorID,
		Content:             req.Content,
		CaptchaSolved:       req.CaptchaSolved,
	}, e.flows.Authorize)

	if !start.IsZero() {
		e.metrics.Observe(MetricAuthorizeLatency, time.Since(start))
	}

	return Decision{
		Allowed:    res.Allowed,
		Reason:     Reason(res.Reason),
		Content:    res.Content,
		Truncated:  res.Truncated,
		RetryAfter: res.RetryAfter,
	}, err
}

// RecordAction appends one action at the engine clock's current time to
// the subject's history. Call it only after the gated mutation succeeded.
func (e *Engine) RecordAction(ctx context.Context, subjectID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return internalflows.RunRecordAction(ctx, subjectID, e.flows.Authorize)
}

// ValidateAuthPackage reports ErrUnknownAuthPackage for names that are not
// registered. The empty name is the open default and is valid.
func (e *Engine) ValidateAuthPackage(name string) error {
	if e == nil || e.registry == nil {
		return ErrEngineNotReady
	}
	if err := e.registry.Validate(name); err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownAuthPackage, err)
	}
	return nil
}

// ValidateForum checks every package attached to f. Call it when forum
// configuration is loaded or edited so unknown names fail before any
// request is gated.
func (e *Engine) ValidateForum(f Forum) error {
	if err := e.ValidateAuthPackage(f.CreateThreadPackage); err != nil {
		return fmt.Errorf("forum %s create-thread: %w", f.ID, err)
	}
	if err := e.ValidateAuthPackage(f.ReplyPackage); err != nil {
		return fmt.Errorf("forum %s reply: %w", f.ID, err)
	}
	return nil
}

// AuthPackages lists the registered package names.
func (e *Engine) AuthPackages() []string {
	if e == nil || e.registry == nil {
		return nil
	}
	return e.registry.Names()
}

func (e *Engine) authorizeFlowDeps() internalflows.AuthorizeDeps {
	return internalflows.AuthorizeDeps{
		Now:             e.now,
		LoadSettings:    e.loadSettings,
		ValidatePackage: e.registry.Validate,
		EvaluatePackage: func(name string, s policy.Subject, t policy.Target) bool {
			return e.registry.Evaluate(name, s, t)
		},
		ActivityWindow: func(ctx context.Context, subjectID string, since, until time.Time) (int64, time.Time, error) {
			w, err := e.activity.Window(ctx, subjectID, since, until)
			if err != nil {
				return 0, time.Time{}, mapActivityStoreError(err)
			}
			return w.Count, w.Oldest, nil
		},
		ActivityLifetime: func(ctx context.Context, subjectID string) (int64, error) {
			n, err := e.activity.Lifetime(ctx, subjectID)
			return n, mapActivityStoreError(err)
		},
		RecordActivity: func(ctx context.Context, subjectID string, at time.Time) error {
			return mapActivityStoreError(e.activity.Record(ctx, subjectID, at))
		},
		ActivityRetention: e.config.Activity.Retention,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Actions: internalflows.AuthorizeActions{
			CreateThread: string(ActionCreateThread),
			NewReply:     string(ActionNewReply),
			EditPost:     string(ActionEditPost),
			DeletePosts:  string(ActionDeletePosts),
			ThankPost:    string(ActionThankPost),
		},
		Reasons: internalflows.AuthorizeReasons{
			Forbidden:       string(ReasonForbidden),
			RateLimited:     string(ReasonRateLimited),
			UnknownAction:   string(ReasonUnknownAction),
			UnknownPackage:  string(ReasonUnknownPackage),
			Banned:          string(ReasonBanned),
			ThreadLocked:    string(ReasonThreadLocked),
			SelfThank:       string(ReasonSelfThank),
			Noob:            string(ReasonNoob),
			CaptchaRequired: string(ReasonCaptchaRequired),
			Unavailable:     string(ReasonUnavailable),
		},
		Metrics: internalflows.AuthorizeMetrics{
			Allowed:          int(MetricAuthorizeAllowed),
			Denied:           int(MetricAuthorizeDenied),
			FloodLimited:     int(MetricFloodLimited),
			PolicyDenied:     int(MetricPolicyDenied),
			UnknownPackage:   int(MetricUnknownPackage),
			CaptchaRequired:  int(MetricCaptchaRequired),
			ThankDenied:      int(MetricThankDenied),
			BannedDenied:     int(MetricBannedDenied),
			ContentTruncated: int(MetricContentTruncated),
			ActionRecorded:   int(MetricActionRecorded),
		},
		Events: internalflows.AuthorizeEvents{
			Denied:      auditEventActionDenied,
			Unavailable: auditEventActionUnavailable,
		},
		Errors: internalflows.AuthorizeErrors{
			EngineNotReady: ErrEngineNotReady,
			ConfigInvalid:  ErrConfigInvalid,
			PolicyDenied:   ErrPolicyDenied,
			RateLimited:    ErrRateLimited,
		},
	}
}
