package flows

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/goGuard/flood"
	"github.com/MrEthical07/goGuard/policy"
	"github.com/MrEthical07/goGuard/settings"
)

// AuthorizeRequest is the flattened view of a gate request.
type AuthorizeRequest struct {
	SubjectID   string
	IsAdmin     bool
	IsStaff     bool
	IsActive    bool
	CreatedAt   time.Time
	BannedUntil time.Time

	Action string

	ForumID             string
	CreateThreadPackage string
	ReplyPackage        string

	ThreadID       string
	ThreadAuthorID string
	ThreadLocked   bool

	PostID       string
	PostAuthorID string

	Content       string
	CaptchaSolved bool
}

// AuthorizeResult mirrors the root Decision.
type AuthorizeResult struct {
	Allowed    bool
	Reason     string
	Content    string
	Truncated  bool
	RetryAfter time.Duration
}

type AuthorizeActions struct {
	CreateThread string
	NewReply     string
	EditPost     string
	DeletePosts  string
	ThankPost    string
}

type AuthorizeReasons struct {
	Forbidden       string
	RateLimited     string
	UnknownAction   string
	UnknownPackage  string
	Banned          string
	ThreadLocked    string
	SelfThank       string
	Noob            string
	CaptchaRequired string
	Unavailable     string
}

type AuthorizeMetrics struct {
	Allowed          int
	Denied           int
	FloodLimited     int
	PolicyDenied     int
	UnknownPackage   int
	CaptchaRequired  int
	ThankDenied      int
	BannedDenied     int
	ContentTruncated int
	ActionRecorded   int
}

type AuthorizeEvents struct {
	Denied      string
	Unavailable string
}

type AuthorizeErrors struct {
	EngineNotReady error
	ConfigInvalid  error
	PolicyDenied   error
	RateLimited    error
}

type AuthorizeDeps struct {
	Now          func() time.Time
	LoadSettings func(context.Context) (settings.Snapshot, error)

	ValidatePackage func(string) error
	EvaluatePackage func(string, policy.Subject, policy.Target) bool

	ActivityWindow   func(context.Context, string, time.Time, time.Time) (int64, time.Time, error)
	ActivityLifetime func(context.Context, string) (int64, error)
	RecordActivity   func(context.Context, string, time.Time) error
	// ActivityRetention is how far back the activity store keeps
	// timestamps. Zero means unbounded.
	ActivityRetention time.Duration

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)

	Actions AuthorizeActions
	Reasons AuthorizeReasons
	Metrics AuthorizeMetrics
	Events  AuthorizeEvents
	Errors  AuthorizeErrors
}

func normalizeAuthorizeDeps(deps *AuthorizeDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
}

// RunAuthorize evaluates one gate request. Expected denials come back as a
// result with Allowed unset and a nil error; the error return is reserved
// for configuration and storage failures, which also deny.
func RunAuthorize(ctx context.Context, req AuthorizeRequest, deps AuthorizeDeps) (AuthorizeResult, error) {
	normalizeAuthorizeDeps(&deps)

	if deps.LoadSettings == nil || deps.ValidatePackage == nil || deps.EvaluatePackage == nil ||
		deps.ActivityWindow == nil || deps.ActivityLifetime == nil {
		return AuthorizeResult{Reason: deps.Reasons.Unavailable}, deps.Errors.EngineNotReady
	}

	g := gate{ctx: ctx, req: req, deps: &deps}

	switch req.Action {
	case deps.Actions.CreateThread, deps.Actions.NewReply, deps.Actions.EditPost,
		deps.Actions.DeletePosts, deps.Actions.ThankPost:
	default:
		return g.deny(deps.Reasons.UnknownAction, -1), nil
	}
	if req.SubjectID == "" {
		return g.deny(deps.Reasons.Forbidden, deps.Metrics.PolicyDenied), nil
	}

	now := deps.Now()
	if !req.IsActive || (!req.BannedUntil.IsZero() && now.Before(req.BannedUntil)) {
		return g.deny(deps.Reasons.Banned, deps.Metrics.BannedDenied), nil
	}

	snap, err := deps.LoadSettings(ctx)
	if err != nil {
		return g.fail(err)
	}
	g.now = now
	g.snap = snap

	switch req.Action {
	case deps.Actions.CreateThread:
		if res, done := g.checkPackage(req.CreateThreadPackage, ""); done {
			return res, nil
		}
		return g.posting()

	case deps.Actions.NewReply:
		if req.ThreadLocked && !req.IsStaff && !req.IsAdmin {
			return g.deny(deps.Reasons.ThreadLocked, deps.Metrics.PolicyDenied), nil
		}
		if res, done := g.checkPackage(req.ReplyPackage, req.ThreadAuthorID); done {
			return res, nil
		}
		return g.posting()

	case deps.Actions.EditPost:
		if res, done := g.checkPackage(policy.AuthorOrStaff, req.PostAuthorID); done {
			return res, nil
		}
		return g.allow(), nil

	case deps.Actions.DeletePosts:
		if res, done := g.checkPackage(policy.StaffRequired, req.PostAuthorID); done {
			return res, nil
		}
		return g.allow(), nil

	default: // thank-post
		if req.PostAuthorID != "" && req.PostAuthorID == req.SubjectID {
			return g.deny(deps.Reasons.SelfThank, deps.Metrics.ThankDenied), nil
		}
		lifetime, err := deps.ActivityLifetime(ctx, req.SubjectID)
		if err != nil {
			return g.fail(err)
		}
		if !flood.MayThank(lifetime, snap.InitialAccountPeriodTotal) {
			return g.deny(deps.Reasons.Noob, deps.Metrics.ThankDenied), nil
		}
		return g.allow(), nil
	}
}

type gate struct {
	ctx  context.Context
	req  AuthorizeRequest
	deps *AuthorizeDeps
	now  time.Time
	snap settings.Snapshot
}

func (g *gate) checkPackage(name, ownerID string) (AuthorizeResult, bool) {
	if err := g.deps.ValidatePackage(name); err != nil {
		return g.deny(g.deps.Reasons.UnknownPackage, g.deps.Metrics.UnknownPackage), true
	}
	subject := policy.Subject{ID: g.req.SubjectID, IsAdmin: g.req.IsAdmin, IsStaff: g.req.IsStaff}
	target := policy.Target{
		ForumID:  g.req.ForumID,
		ThreadID: g.req.ThreadID,
		PostID:   g.req.PostID,
		OwnerID:  ownerID,
	}
	if !g.deps.EvaluatePackage(name, subject, target) {
		return g.deny(g.deps.Reasons.Forbidden, g.deps.Metrics.PolicyDenied), true
	}
	return AuthorizeResult{}, false
}

// posting applies the captcha and flood checks shared by new threads and
// replies. A subject without a creation time cannot be placed relative to
// the initial period and is refused.
func (g *gate) posting() (AuthorizeResult, error) {
	if g.req.CreatedAt.IsZero() {
		return g.deny(g.deps.Reasons.Forbidden, g.deps.Metrics.PolicyDenied), nil
	}

	limits := flood.Limits{
		Limit: g.snap.InitialAccountPeriodLimit,
		Total: g.snap.InitialAccountPeriodTotal,
		Width: g.snap.InitialAccountPeriodWidth,
	}
	if !flood.Disabled(limits) && g.deps.ActivityRetention > 0 && limits.Width > g.deps.ActivityRetention {
		return g.fail(fmt.Errorf("%w: initial_account_period_width %s exceeds activity retention %s",
			g.deps.Errors.ConfigInvalid, limits.Width, g.deps.ActivityRetention))
	}

	lifetime, err := g.deps.ActivityLifetime(g.ctx, g.req.SubjectID)
	if err != nil {
		return g.fail(err)
	}
	if !g.req.CaptchaSolved && flood.CaptchaRequired(lifetime, g.snap.CaptchaPeriod) {
		return g.deny(g.deps.Reasons.CaptchaRequired, g.deps.Metrics.CaptchaRequired), nil
	}

	history := flood.History{CreatedAt: g.req.CreatedAt, Lifetime: lifetime}
	if flood.InInitialPeriod(g.now, history, limits) {
		count, oldest, err := g.deps.ActivityWindow(g.ctx, g.req.SubjectID, flood.WindowStart(g.now, limits), g.now)
		if err != nil {
			return g.fail(err)
		}
		history.InWindow = count
		history.Oldest = oldest
		if v := flood.MayAct(g.now, history, limits); !v.Allowed {
			res := g.deny(g.deps.Reasons.RateLimited, g.deps.Metrics.FloodLimited)
			res.RetryAfter = v.RetryAfter
			return res, nil
		}
	}
	return g.allow(), nil
}

func (g *gate) allow() AuthorizeResult {
	res := AuthorizeResult{Allowed: true, Content: g.req.Content}
	if g.req.Action != g.deps.Actions.DeletePosts && g.req.Action != g.deps.Actions.ThankPost {
		res.Content, res.Truncated = Truncate(g.req.Content, g.snap.MaxPostLength)
	}
	if res.Truncated {
		g.deps.MetricInc(g.deps.Metrics.ContentTruncated)
	}
	g.deps.MetricInc(g.deps.Metrics.Allowed)
	return res
}

func (g *gate) deny(reason string, metric int) AuthorizeResult {
	g.deps.MetricInc(g.deps.Metrics.Denied)
	if metric >= 0 {
		g.deps.MetricInc(metric)
	}
	g.deps.EmitAudit(g.ctx, g.deps.Events.Denied, false, g.req.SubjectID, g.req.Action, g.denyErr(reason), func() map[string]string {
		return map[string]string{
			"reason":   reason,
			"forum_id": g.req.ForumID,
		}
	})
	return AuthorizeResult{Reason: reason}
}

func (g *gate) denyErr(reason string) error {
	if reason == g.deps.Reasons.RateLimited {
		return g.deps.Errors.RateLimited
	}
	return g.deps.Errors.PolicyDenied
}

func (g *gate) fail(err error) (AuthorizeResult, error) {
	g.deps.MetricInc(g.deps.Metrics.Denied)
	g.deps.EmitAudit(g.ctx, g.deps.Events.Unavailable, false, g.req.SubjectID, g.req.Action, err, nil)
	return AuthorizeResult{Reason: g.deps.Reasons.Unavailable}, err
}

// Truncate shortens s to at most limit runes. A limit of zero or less
// disables it.
func Truncate(s string, limit int64) (string, bool) {
	if limit <= 0 || int64(len(s)) <= limit {
		return s, false
	}
	var n int64
	for i := range s {
		if n == limit {
			return s[:i], true
		}
		n++
	}
	return s, false
}

// RunRecordAction appends one activity record for subjectID at the current time.
func RunRecordAction(ctx context.Context, subjectID string, deps AuthorizeDeps) error {
	normalizeAuthorizeDeps(&deps)

	if deps.RecordActivity == nil {
		return deps.Errors.EngineNotReady
	}
	if subjectID == "" {
		return deps.Errors.PolicyDenied
	}
	if err := deps.RecordActivity(ctx, subjectID, deps.Now()); err != nil {
		return err
	}
	deps.MetricInc(deps.Metrics.ActionRecorded)
	return nil
}
