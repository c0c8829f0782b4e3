package goGuard

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/MrEthical07/goGuard/policy"
	"github.com/MrEthical07/goGuard/settings"
	"github.com/brianvoe/gofakeit/v6"
)

func gateOnlyConfig() Config {
	cfg := testConfig()
	cfg.Recovery.Enabled = false
	return cfg
}

func authorize(t *testing.T, e *Engine, req Request) Decision {
	t.Helper()
	d, err := e.Authorize(context.Background(), req)
	if err != nil {
		t.Fatalf("Authorize(%s) failed: %v", req.Action, err)
	}
	return d
}

func post(t *testing.T, env *testEnv, s Subject, at time.Time) Decision {
	t.Helper()
	env.clock.Set(at)
	d := authorize(t, env.engine, Request{Subject: s, Action: ActionNewReply, Content: "hello"})
	if d.Allowed {
		if err := env.engine.RecordAction(context.Background(), s.ID); err != nil {
			t.Fatalf("RecordAction failed: %v", err)
		}
	}
	return d
}

func TestFloodScenarioDeniesFourthPostAndCoolsDown(t *testing.T) {
	env := newTestEnv(t, gateOnlyConfig())
	s := member("u1", t0)

	for i := 1; i <= 3; i++ {
		if d := post(t, env, s, t0.Add(time.Duration(i)*time.Hour)); !d.Allowed {
			t.Fatalf("post %d denied: %+v", i, d)
		}
	}

	d := post(t, env, s, t0.Add(4*time.Hour))
	if d.Allowed || d.Reason != ReasonRateLimited {
		t.Fatalf("expected 4th post to be rate limited, got %+v", d)
	}
	if !errors.Is(d.Err(), ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", d.Err())
	}
	if d.RetryAfter != 21*time.Hour {
		t.Fatalf("expected retry after 21h, got %v", d.RetryAfter)
	}

	// Same subject, but the three posts happened 25h before creation.
	cooled := newTestEnv(t, gateOnlyConfig())
	for i := 0; i < 3; i++ {
		cooled.clock.Set(t0.Add(-25 * time.Hour))
		if err := cooled.engine.RecordAction(context.Background(), s.ID); err != nil {
			t.Fatalf("RecordAction failed: %v", err)
		}
	}
	if d := post(t, cooled, s, t0.Add(4*time.Hour)); !d.Allowed {
		t.Fatalf("expected post after cooldown to be allowed, got %+v", d)
	}
}

func TestFloodWindowAllowsExactlyLimit(t *testing.T) {
	faker := gofakeit.New(7)
	for round := 0; round < 5; round++ {
		limit := int64(faker.IntRange(1, 6))
		env := newTestEnv(t, gateOnlyConfig())
		if err := env.settings.SetInt(settings.KeyInitialAccountPeriodLimit, limit); err != nil {
			t.Fatalf("SetInt failed: %v", err)
		}
		if err := env.settings.SetInt(settings.KeyInitialAccountPeriodTotal, 100); err != nil {
			t.Fatalf("SetInt failed: %v", err)
		}
		s := member(faker.Username(), t0)

		for i := int64(0); i < limit; i++ {
			if d := post(t, env, s, t0.Add(time.Duration(i+1)*time.Minute)); !d.Allowed {
				t.Fatalf("limit %d: post %d denied: %+v", limit, i+1, d)
			}
		}
		if d := post(t, env, s, t0.Add(time.Hour)); d.Allowed {
			t.Fatalf("limit %d: post %d should be denied", limit, limit+1)
		}
	}
}

func TestFloodGraduationByLifetimeCount(t *testing.T) {
	env := newTestEnv(t, gateOnlyConfig())
	_ = env.settings.SetInt(settings.KeyInitialAccountPeriodTotal, 3)
	_ = env.settings.SetInt(settings.KeyInitialAccountPeriodLimit, 2)
	s := member("u1", t0)

	env.clock.Set(t0.Add(time.Hour))
	for i := 0; i < 4; i++ {
		if err := env.engine.RecordAction(context.Background(), s.ID); err != nil {
			t.Fatalf("RecordAction failed: %v", err)
		}
	}

	if d := post(t, env, s, t0.Add(2*time.Hour)); !d.Allowed {
		t.Fatalf("expected graduated subject to be unrestricted, got %+v", d)
	}
}

func TestFloodGraduationByAge(t *testing.T) {
	env := newTestEnv(t, gateOnlyConfig())
	s := member("u1", t0.Add(-48*time.Hour))

	for i := 1; i <= 6; i++ {
		if d := post(t, env, s, t0.Add(time.Duration(i)*time.Minute)); !d.Allowed {
			t.Fatalf("expected old account to post freely, post %d got %+v", i, d)
		}
	}
}

func TestFloodZeroLimitDisables(t *testing.T) {
	env := newTestEnv(t, gateOnlyConfig())
	_ = env.settings.SetInt(settings.KeyInitialAccountPeriodLimit, 0)
	s := member("u1", t0)

	for i := 1; i <= 8; i++ {
		if d := post(t, env, s, t0.Add(time.Duration(i)*time.Minute)); !d.Allowed {
			t.Fatalf("expected disabled limiter, post %d got %+v", i, d)
		}
	}
}

func TestFloodRereadsSettingsEveryEvaluation(t *testing.T) {
	env := newTestEnv(t, gateOnlyConfig())
	s := member("u1", t0)

	if d := post(t, env, s, t0.Add(time.Minute)); !d.Allowed {
		t.Fatalf("first post denied: %+v", d)
	}
	_ = env.settings.SetInt(settings.KeyInitialAccountPeriodLimit, 1)
	if d := post(t, env, s, t0.Add(2*time.Minute)); d.Allowed {
		t.Fatalf("expected lowered limit to apply immediately")
	}
}

func TestFloodWidthBeyondRetentionFailsClosed(t *testing.T) {
	cfg := gateOnlyConfig()
	cfg.Activity.Retention = time.Hour
	env := newTestEnv(t, cfg)
	s := member("u1", t0)

	for i := 1; i <= 6; i++ {
		env.clock.Set(t0.Add(time.Duration(i) * 2 * time.Hour))
		d, err := env.engine.Authorize(context.Background(), Request{Subject: s, Action: ActionNewReply, Content: "hi"})
		if !errors.Is(err, ErrConfigInvalid) {
			t.Fatalf("post %d: expected ErrConfigInvalid, got %v", i, err)
		}
		if d.Allowed || d.Reason != ReasonUnavailable {
			t.Fatalf("post %d: expected deny, got %+v", i, d)
		}
	}

	// A width inside the retention horizon is evaluated normally.
	if err := env.settings.Set(settings.KeyInitialAccountPeriodWidth, "1h"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if d := post(t, env, s, t0.Add(30*time.Minute)); !d.Allowed {
		t.Fatalf("expected allow once width fits retention, got %+v", d)
	}

	// A disabled limiter does not depend on retention.
	_ = env.settings.Set(settings.KeyInitialAccountPeriodWidth, "24h")
	_ = env.settings.SetInt(settings.KeyInitialAccountPeriodLimit, 0)
	if d := post(t, env, s, t0.Add(40*time.Minute)); !d.Allowed {
		t.Fatalf("expected disabled limiter to allow, got %+v", d)
	}
}

func TestPostingWithoutCreationTimeDenied(t *testing.T) {
	env := newTestEnv(t, gateOnlyConfig())
	s := member("u9", time.Time{})

	for _, action := range []Action{ActionCreateThread, ActionNewReply} {
		d := authorize(t, env.engine, Request{Subject: s, Action: action, Content: "hi"})
		if d.Allowed || d.Reason != ReasonForbidden {
			t.Fatalf("%s: expected forbidden without created_at, got %+v", action, d)
		}
		if !errors.Is(d.Err(), ErrPolicyDenied) {
			t.Fatalf("%s: expected ErrPolicyDenied, got %v", action, d.Err())
		}
	}

	if d := authorize(t, env.engine, Request{Subject: s, Action: ActionEditPost, Post: Post{AuthorID: "u9"}}); !d.Allowed {
		t.Fatalf("expected edit-post to be independent of creation time, got %+v", d)
	}
}

func TestAuthorizeMissingSettingFailsClosed(t *testing.T) {
	env := newTestEnv(t, gateOnlyConfig())
	env.settings.Delete(settings.KeyInitialAccountPeriodLimit)

	d, err := env.engine.Authorize(context.Background(), Request{Subject: member("u1", t0), Action: ActionNewReply})
	if !errors.Is(err, ErrConfigMissing) {
		t.Fatalf("expected ErrConfigMissing, got %v", err)
	}
	if d.Allowed {
		t.Fatalf("expected deny alongside config error")
	}

	if err := env.settings.Set(settings.KeyInitialAccountPeriodLimit, "lots"); !errors.Is(err, settings.ErrInvalid) {
		t.Fatalf("expected unparsable write to be refused, got %v", err)
	}
	if _, err := env.engine.Authorize(context.Background(), Request{Subject: member("u1", t0), Action: ActionNewReply}); !errors.Is(err, ErrConfigMissing) {
		t.Fatalf("expected key to stay missing, got %v", err)
	}
}

func TestCaptchaPeriodByLifetimePosts(t *testing.T) {
	env := newTestEnv(t, gateOnlyConfig())
	_ = env.settings.SetInt(settings.KeyCaptchaPeriod, 2)
	s := member("u1", t0)
	env.clock.Set(t0.Add(time.Minute))

	d := authorize(t, env.engine, Request{Subject: s, Action: ActionCreateThread})
	if d.Allowed || d.Reason != ReasonCaptchaRequired {
		t.Fatalf("expected captcha requirement, got %+v", d)
	}
	d = authorize(t, env.engine, Request{Subject: s, Action: ActionCreateThread, CaptchaSolved: true})
	if !d.Allowed {
		t.Fatalf("expected solved captcha to pass, got %+v", d)
	}

	for i := 0; i < 2; i++ {
		_ = env.engine.RecordAction(context.Background(), s.ID)
	}
	d = authorize(t, env.engine, Request{Subject: s, Action: ActionCreateThread})
	if !d.Allowed {
		t.Fatalf("expected captcha period to end after 2 posts, got %+v", d)
	}
}

func TestCreateThreadUsesForumPackage(t *testing.T) {
	env := newTestEnv(t, gateOnlyConfig())
	env.clock.Set(t0.Add(time.Minute))
	forum := Forum{ID: "f1", CreateThreadPackage: policy.AdminRequired}

	d := authorize(t, env.engine, Request{Subject: member("u1", t0), Action: ActionCreateThread, Forum: forum})
	if d.Allowed || d.Reason != ReasonForbidden {
		t.Fatalf("expected non-admin to be forbidden, got %+v", d)
	}
	if !errors.Is(d.Err(), ErrPolicyDenied) {
		t.Fatalf("expected ErrPolicyDenied, got %v", d.Err())
	}

	admin := member("a1", t0)
	admin.IsAdmin = true
	if d := authorize(t, env.engine, Request{Subject: admin, Action: ActionCreateThread, Forum: forum}); !d.Allowed {
		t.Fatalf("expected admin to pass, got %+v", d)
	}

	open := Forum{ID: "f2"}
	if d := authorize(t, env.engine, Request{Subject: member("u1", t0), Action: ActionCreateThread, Forum: open}); !d.Allowed {
		t.Fatalf("expected forum without package to be open, got %+v", d)
	}
}

func TestUnknownPackageFailsClosed(t *testing.T) {
	env := newTestEnv(t, gateOnlyConfig())
	admin := member("a1", t0)
	admin.IsAdmin = true

	forum := Forum{ID: "f1", CreateThreadPackage: "MODS_ONLY"}
	d := authorize(t, env.engine, Request{Subject: admin, Action: ActionCreateThread, Forum: forum})
	if d.Allowed || d.Reason != ReasonUnknownPackage {
		t.Fatalf("expected unknown package to deny even admins, got %+v", d)
	}
	if err := env.engine.ValidateForum(forum); !errors.Is(err, ErrUnknownAuthPackage) {
		t.Fatalf("expected ErrUnknownAuthPackage, got %v", err)
	}
	if err := env.engine.ValidateForum(Forum{ID: "f2", ReplyPackage: policy.StaffRequired}); err != nil {
		t.Fatalf("expected built-in packages to validate, got %v", err)
	}
}

func TestRegisteredPackageIsEvaluated(t *testing.T) {
	env := newTestEnv(t, gateOnlyConfig(), func(b *Builder) {
		b.WithPolicy("VETERAN", func(s policy.Subject, _ policy.Target) bool {
			return strings.HasPrefix(s.ID, "vet-")
		})
	})
	forum := Forum{ID: "f1", ReplyPackage: "VETERAN"}
	env.clock.Set(t0.Add(time.Minute))

	if d := authorize(t, env.engine, Request{Subject: member("vet-1", t0), Action: ActionNewReply, Forum: forum}); !d.Allowed {
		t.Fatalf("expected veteran to reply, got %+v", d)
	}
	if d := authorize(t, env.engine, Request{Subject: member("u1", t0), Action: ActionNewReply, Forum: forum}); d.Allowed {
		t.Fatalf("expected non-veteran to be denied")
	}
	if err := env.engine.ValidateAuthPackage("VETERAN"); err != nil {
		t.Fatalf("expected registered package to validate, got %v", err)
	}
}

func TestLockedThreadRefusesMembers(t *testing.T) {
	env := newTestEnv(t, gateOnlyConfig())
	env.clock.Set(t0.Add(time.Minute))
	thread := Thread{ID: "t1", AuthorID: "u2", Locked: true}

	d := authorize(t, env.engine, Request{Subject: member("u1", t0), Action: ActionNewReply, Thread: thread})
	if d.Allowed || d.Reason != ReasonThreadLocked {
		t.Fatalf("expected locked thread denial, got %+v", d)
	}

	staff := member("s1", t0)
	staff.IsStaff = true
	if d := authorize(t, env.engine, Request{Subject: staff, Action: ActionNewReply, Thread: thread}); !d.Allowed {
		t.Fatalf("expected staff to reply to locked thread, got %+v", d)
	}
}

func TestDeletePostsRequiresElevatedRole(t *testing.T) {
	env := newTestEnv(t, gateOnlyConfig())
	forum := Forum{ID: "f1", CreateThreadPackage: policy.Open, ReplyPackage: policy.Open}

	d := authorize(t, env.engine, Request{Subject: member("u1", t0), Action: ActionDeletePosts, Forum: forum, Post: Post{ID: "p1", AuthorID: "u1"}})
	if d.Allowed {
		t.Fatalf("expected members to be unable to delete posts, even their own")
	}

	staff := member("s1", t0)
	staff.IsStaff = true
	if d := authorize(t, env.engine, Request{Subject: staff, Action: ActionDeletePosts, Forum: forum}); !d.Allowed {
		t.Fatalf("expected staff to delete, got %+v", d)
	}
	admin := member("a1", t0)
	admin.IsAdmin = true
	if d := authorize(t, env.engine, Request{Subject: admin, Action: ActionDeletePosts, Forum: forum}); !d.Allowed {
		t.Fatalf("expected admin to delete, got %+v", d)
	}
}

func TestEditPostAuthorOrStaff(t *testing.T) {
	env := newTestEnv(t, gateOnlyConfig())
	p := Post{ID: "p1", AuthorID: "u1"}

	if d := authorize(t, env.engine, Request{Subject: member("u1", t0), Action: ActionEditPost, Post: p, Content: "fixed"}); !d.Allowed || d.Content != "fixed" {
		t.Fatalf("expected author edit, got %+v", d)
	}
	if d := authorize(t, env.engine, Request{Subject: member("u2", t0), Action: ActionEditPost, Post: p}); d.Allowed {
		t.Fatalf("expected other member edit to be denied")
	}
	staff := member("s1", t0)
	staff.IsStaff = true
	if d := authorize(t, env.engine, Request{Subject: staff, Action: ActionEditPost, Post: p}); !d.Allowed {
		t.Fatalf("expected staff edit, got %+v", d)
	}
}

func TestThankPostRules(t *testing.T) {
	env := newTestEnv(t, gateOnlyConfig())
	_ = env.settings.SetInt(settings.KeyInitialAccountPeriodTotal, 3)
	p := Post{ID: "p1", AuthorID: "author"}
	thanked := 0

	thank := func(s Subject) Decision {
		d := authorize(t, env.engine, Request{Subject: s, Action: ActionThankPost, Post: p})
		if d.Allowed {
			thanked++
		}
		return d
	}

	if d := thank(member("author", t0)); d.Reason != ReasonSelfThank {
		t.Fatalf("expected self thank denial, got %+v", d)
	}

	noob := member("noob", t0)
	_ = env.engine.RecordAction(context.Background(), noob.ID)
	if d := thank(noob); d.Reason != ReasonNoob {
		t.Fatalf("expected noob denial, got %+v", d)
	}
	if thanked != 0 {
		t.Fatalf("expected thanked count unchanged, got %d", thanked)
	}

	regular := member("regular", t0)
	for i := 0; i < 4; i++ {
		_ = env.engine.RecordAction(context.Background(), regular.ID)
	}
	if d := thank(regular); !d.Allowed {
		t.Fatalf("expected regular to thank, got %+v", d)
	}
	if thanked != 1 {
		t.Fatalf("expected one thank, got %d", thanked)
	}
}

func TestContentTruncatedNotRejected(t *testing.T) {
	env := newTestEnv(t, gateOnlyConfig())
	env.clock.Set(t0.Add(time.Minute))

	d := authorize(t, env.engine, Request{
		Subject: member("u1", t0),
		Action:  ActionCreateThread,
		Content: strings.Repeat("a", 21000),
	})
	if !d.Allowed {
		t.Fatalf("expected long content to be allowed, got %+v", d)
	}
	if !d.Truncated || len(d.Content) > 10000 {
		t.Fatalf("expected content truncated to 10000, got len=%d truncated=%v", len(d.Content), d.Truncated)
	}

	_ = env.settings.SetInt(settings.KeyMaxPostLength, 5)
	d = authorize(t, env.engine, Request{
		Subject: member("u1", t0),
		Action:  ActionEditPost,
		Post:    Post{ID: "p1", AuthorID: "u1"},
		Content: "ééééééé",
	})
	if !d.Allowed || utf8.RuneCountInString(d.Content) != 5 || !utf8.ValidString(d.Content) {
		t.Fatalf("expected rune-safe truncation to 5, got %q", d.Content)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricContentTruncated]; got != 2 {
		t.Fatalf("expected 2 truncations counted, got %d", got)
	}
}

func TestInactiveAndBannedSubjectsDenied(t *testing.T) {
	env := newTestEnv(t, gateOnlyConfig())

	inactive := member("u1", t0)
	inactive.IsActive = false
	if d := authorize(t, env.engine, Request{Subject: inactive, Action: ActionNewReply}); d.Reason != ReasonBanned {
		t.Fatalf("expected inactive subject denial, got %+v", d)
	}

	banned := member("u2", t0)
	banned.BannedUntil = t0.Add(time.Hour)
	if d := authorize(t, env.engine, Request{Subject: banned, Action: ActionNewReply}); d.Reason != ReasonBanned {
		t.Fatalf("expected banned subject denial, got %+v", d)
	}

	env.clock.Set(t0.Add(2 * time.Hour))
	if d := authorize(t, env.engine, Request{Subject: banned, Action: ActionNewReply}); !d.Allowed {
		t.Fatalf("expected lapsed ban to allow, got %+v", d)
	}
}

func TestUnknownActionAndAnonymousDenied(t *testing.T) {
	env := newTestEnv(t, gateOnlyConfig())

	if d := authorize(t, env.engine, Request{Subject: member("u1", t0), Action: "merge-threads"}); d.Reason != ReasonUnknownAction {
		t.Fatalf("expected unknown action denial, got %+v", d)
	}
	if d := authorize(t, env.engine, Request{Action: ActionNewReply}); d.Reason != ReasonForbidden {
		t.Fatalf("expected anonymous denial, got %+v", d)
	}
}

type failingActivity struct{}

func (failingActivity) Record(context.Context, string, time.Time) error {
	return errors.New("disk on fire")
}

func (failingActivity) Window(context.Context, string, time.Time, time.Time) (ActivityWindow, error) {
	return ActivityWindow{}, errors.New("disk on fire")
}

func (failingActivity) Lifetime(context.Context, string) (int64, error) {
	return 0, errors.New("disk on fire")
}

func TestActivityFailureDenies(t *testing.T) {
	env := newTestEnv(t, gateOnlyConfig(), func(b *Builder) {
		b.WithActivityStore(failingActivity{})
	})

	d, err := env.engine.Authorize(context.Background(), Request{Subject: member("u1", t0), Action: ActionNewReply})
	if !errors.Is(err, ErrActivityUnavailable) {
		t.Fatalf("expected ErrActivityUnavailable, got %v", err)
	}
	if d.Allowed {
		t.Fatalf("expected deny on store failure")
	}
	if err := env.engine.RecordAction(context.Background(), "u1"); !errors.Is(err, ErrActivityUnavailable) {
		t.Fatalf("expected RecordAction to surface ErrActivityUnavailable, got %v", err)
	}
}

func TestAuthorizeLatencyHistogram(t *testing.T) {
	cfg := gateOnlyConfig()
	cfg.Metrics.EnableLatencyHistograms = true
	env := newTestEnv(t, cfg)

	for i := 0; i < 3; i++ {
		authorize(t, env.engine, Request{Subject: member("u1", t0), Action: ActionEditPost, Post: Post{AuthorID: "u1"}})
	}

	snap := env.engine.MetricsSnapshot()
	var total uint64
	for _, n := range snap.Histograms[MetricAuthorizeLatency] {
		total += n
	}
	if total != 3 {
		t.Fatalf("expected 3 latency samples, got %d", total)
	}
	if snap.Counters[MetricAuthorizeAllowed] != 3 {
		t.Fatalf("expected 3 allowed, got %d", snap.Counters[MetricAuthorizeAllowed])
	}
}
