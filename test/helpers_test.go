//go:build integration
// +build integration

package test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/settings"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// cmdCounter is a go-redis Hook that counts Redis round-trips.
type cmdCounter struct {
	commands  atomic.Int64
	pipelines atomic.Int64
}

func (h *cmdCounter) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *cmdCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.commands.Add(1)
		return next(ctx, cmd)
	}
}

func (h *cmdCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		h.pipelines.Add(1)
		h.commands.Add(int64(len(cmds)))
		return next(ctx, cmds)
	}
}

func (h *cmdCounter) Reset() {
	h.commands.Store(0)
	h.pipelines.Store(0)
}

func (h *cmdCounter) Commands() int64  { return h.commands.Load() }
func (h *cmdCounter) Pipelines() int64 { return h.pipelines.Load() }

type fixedSubjects struct {
	byUsername map[string]goGuard.Subject
}

func (f fixedSubjects) GetSubjectByUsername(_ context.Context, username string) (goGuard.Subject, error) {
	s, ok := f.byUsername[username]
	if !ok {
		return goGuard.Subject{}, goGuard.ErrSubjectNotFound
	}
	return s, nil
}

func (fixedSubjects) UpdateCredential(context.Context, string, string) error { return nil }

type lastNotice struct {
	notice atomic.Pointer[goGuard.RecoveryNotice]
}

func (l *lastNotice) Send(_ context.Context, n goGuard.RecoveryNotice) error {
	l.notice.Store(&n)
	return nil
}

func integrationSettings() *settings.Memory {
	return settings.Defaults{
		CaptchaPeriod:             0,
		InitialAccountPeriodTotal: 10,
		InitialAccountPeriodLimit: 3,
		InitialAccountPeriodWidth: 24 * time.Hour,
		RecoveryTokenWidth:        time.Hour,
		MaxPostLength:             10000,
	}.Memory()
}

// newCountedEngine builds an Engine on miniredis with a cmdCounter hook
// installed after a warmup ping. Reset the counter before each measured call.
func newCountedEngine(t *testing.T, clock goGuard.Clock) (*goGuard.Engine, *miniredis.Miniredis, *cmdCounter, *lastNotice) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("warmup ping: %v", err)
	}
	counter := &cmdCounter{}
	rdb.AddHook(counter)

	cfg := goGuard.DefaultConfig()
	cfg.Credential.Memory = 8 * 1024
	cfg.Credential.Time = 1

	notices := &lastNotice{}
	engine, err := goGuard.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithSettings(integrationSettings()).
		WithSubjectProvider(fixedSubjects{byUsername: map[string]goGuard.Subject{
			"alice": {ID: "u1", Username: "alice", IsActive: true},
		}}).
		WithNotifier(notices).
		WithClock(clock).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	counter.Reset()
	return engine, mr, counter, notices
}

func newcomer(id string, created time.Time) goGuard.Subject {
	return goGuard.Subject{ID: id, Username: id, CreatedAt: created, IsActive: true}
}
