package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/notify"
	"github.com/MrEthical07/goGuard/settings"
)

func testDefaults() settings.Defaults {
	return settings.Defaults{
		CaptchaPeriod:             5,
		InitialAccountPeriodTotal: 10,
		InitialAccountPeriodLimit: 3,
		InitialAccountPeriodWidth: 24 * time.Hour,
		RecoveryTokenWidth:        time.Hour,
		MaxPostLength:             20,
	}
}

func newTestClient(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestServer(t *testing.T) (*httptest.Server, *runtime) {
	t.Helper()
	_, client := newTestClient(t)

	c := config{
		KeyPrefix:         "gg",
		SettingsKey:       "gg:settings",
		ActivityRetention: 48 * time.Hour,
		Settings:          testDefaults(),
	}
	rt, err := newRuntime(context.Background(), c, client, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	a := &api{engine: rt.engine, logger: rt.logger}
	srv := httptest.NewServer(a.routes(false))
	t.Cleanup(srv.Close)
	return srv, rt
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	resp, err := http.Post(url, "application/json", &buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func newThread(subjectID string, created time.Time, content string) map[string]any {
	return map[string]any{
		"subject": map[string]any{
			"id":         subjectID,
			"username":   subjectID,
			"created_at": created,
			"is_active":  true,
		},
		"action":         "create-thread",
		"content":        content,
		"captcha_solved": true,
	}
}

func TestServeAuthorizeFloodCycle(t *testing.T) {
	srv, _ := newTestServer(t)
	created := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 3; i++ {
		resp := postJSON(t, srv.URL+"/v1/authorize", newThread("u1", created, "hi"))
		require.Equal(t, http.StatusOK, resp.StatusCode)

		rec, err := http.Post(srv.URL+"/v1/subjects/u1/actions", "application/json", nil)
		require.NoError(t, err)
		_ = rec.Body.Close()
		require.Equal(t, http.StatusNoContent, rec.StatusCode)
	}

	resp := postJSON(t, srv.URL+"/v1/authorize", newThread("u1", created, "hi"))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	var body struct {
		Reason string `json:"reason"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "rate_limited", body.Reason)
}

func TestServeAuthorizeTruncatesContent(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/authorize", newThread("u2", time.Now().UTC(), strings.Repeat("x", 50)))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var d decisionBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&d))
	assert.True(t, d.Allowed)
	assert.True(t, d.Truncated)
	assert.Len(t, d.Content, 20)
}

func TestServeAuthorizeMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/authorize", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServeAuthorizeRequiresCreatedAt(t *testing.T) {
	srv, _ := newTestServer(t)

	body := newThread("u4", time.Time{}, "hi")
	delete(body["subject"].(map[string]any), "created_at")
	resp := postJSON(t, srv.URL+"/v1/authorize", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body["action"] = "edit-post"
	body["post"] = map[string]any{"author_id": "u4"}
	resp = postJSON(t, srv.URL+"/v1/authorize", body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServeSettingsReflectRedisEdits(t *testing.T) {
	srv, rt := newTestServer(t)
	require.NoError(t, rt.settings.Set(context.Background(), settings.KeyMaxPostLength, "99"))

	resp, err := http.Get(srv.URL + "/v1/settings")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "99", got[settings.KeyMaxPostLength])
	assert.Equal(t, "1d", got[settings.KeyInitialAccountPeriodWidth])
}

func TestServeRecoveryDisabledWithoutDatabase(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/recovery", map[string]string{"username": "alice"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestServeMetricsAndHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	postJSON(t, srv.URL+"/v1/authorize", newThread("u3", time.Now().UTC(), "hello"))

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "goguard_authorize_allowed_total 1")

	health, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

type staticSubjects struct {
	subjects map[string]goGuard.Subject
	creds    map[string]string
}

func (s *staticSubjects) GetSubjectByUsername(_ context.Context, username string) (goGuard.Subject, error) {
	sub, ok := s.subjects[username]
	if !ok {
		return goGuard.Subject{}, goGuard.ErrSubjectNotFound
	}
	return sub, nil
}

func (s *staticSubjects) UpdateCredential(_ context.Context, subjectID, hash string) error {
	s.creds[subjectID] = hash
	return nil
}

func TestServeRecoveryRoundTrip(t *testing.T) {
	_, client := newTestClient(t)
	notices := notify.NewChannel(4)
	subjects := &staticSubjects{
		subjects: map[string]goGuard.Subject{"alice": {ID: "u1", Username: "alice", IsActive: true}},
		creds:    map[string]string{},
	}

	engine, err := goGuard.New().
		WithRedis(client).
		WithSettings(testDefaults().Memory()).
		WithSubjectProvider(subjects).
		WithNotifier(notices).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	srv := httptest.NewServer((&api{engine: engine, logger: discardLogger()}).routes(false))
	t.Cleanup(srv.Close)

	resp := postJSON(t, srv.URL+"/v1/recovery", map[string]string{"username": "alice"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp = postJSON(t, srv.URL+"/v1/recovery", map[string]string{"username": "nobody"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	notice := <-notices.Notices()
	assert.Equal(t, "u1", notice.SubjectID)

	check, err := http.Get(srv.URL + "/v1/recovery/" + notice.Token)
	require.NoError(t, err)
	_ = check.Body.Close()
	assert.Equal(t, http.StatusNoContent, check.StatusCode)

	short := postJSON(t, srv.URL+"/v1/recovery/"+notice.Token, map[string]string{"credential": "x"})
	assert.Equal(t, http.StatusUnprocessableEntity, short.StatusCode)

	ok := postJSON(t, srv.URL+"/v1/recovery/"+notice.Token, map[string]string{"credential": "a much longer passphrase"})
	require.Equal(t, http.StatusOK, ok.StatusCode)
	assert.NotEmpty(t, subjects.creds["u1"])

	replay := postJSON(t, srv.URL+"/v1/recovery/"+notice.Token, map[string]string{"credential": "a much longer passphrase"})
	assert.Equal(t, http.StatusNotFound, replay.StatusCode)
}

type countingSweeper struct {
	remaining int
	calls     int
}

func (s *countingSweeper) SweepRecovery(_ context.Context, limit int) (int, error) {
	s.calls++
	n := min(limit, s.remaining)
	s.remaining -= n
	return n, nil
}

func TestSweepAllDrainsInBatches(t *testing.T) {
	s := &countingSweeper{remaining: 25}
	n, err := sweepAll(context.Background(), s, rate.NewLimiter(rate.Inf, 1), 10)
	require.NoError(t, err)
	assert.Equal(t, 25, n)
	assert.Equal(t, 3, s.calls)
}

func TestSweepAllStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sweepAll(ctx, &countingSweeper{remaining: 5}, rate.NewLimiter(1, 1), 10)
	require.ErrorIs(t, err, context.Canceled)
}

func TestShowSettingsMarksSources(t *testing.T) {
	_, client := newTestClient(t)
	store := settings.NewRedis(client, "gg:settings")
	require.NoError(t, store.Set(context.Background(), settings.KeyCaptchaPeriod, "9"))

	var out bytes.Buffer
	require.NoError(t, showSettings(context.Background(), &out, store, testDefaults()))
	assert.Regexp(t, `captcha_period\s+9\s+\(redis\)`, out.String())
	assert.Regexp(t, `max_post_length\s+20\s+\(default\)`, out.String())
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger(io.Discard, "xml", "info")
	require.Error(t, err)
	_, err = newLogger(io.Discard, "text", "loud")
	require.Error(t, err)
	l, err := newLogger(io.Discard, "json", "debug")
	require.NoError(t, err)
	assert.True(t, l.Enabled(context.Background(), slog.LevelDebug))
}

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(1), percentile(samples, 0))
	assert.Equal(t, time.Duration(5), percentile(samples, 50))
	assert.Equal(t, time.Duration(10), percentile(samples, 100))
	assert.Zero(t, percentile(nil, 50))
}
