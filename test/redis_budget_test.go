//go:build integration
// +build integration

package test

import (
	"context"
	"testing"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
)

var budgetNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func budgetClock() goGuard.Clock {
	return goGuard.ClockFunc(func() time.Time { return budgetNow })
}

// TestEditPostRedisBudget verifies that ownership checks never reach Redis.
func TestEditPostRedisBudget(t *testing.T) {
	engine, _, counter, _ := newCountedEngine(t, budgetClock())

	d, err := engine.Authorize(context.Background(), goGuard.Request{
		Subject: newcomer("u1", budgetNow),
		Action:  goGuard.ActionEditPost,
		Post:    goGuard.Post{AuthorID: "u1"},
	})
	if err != nil || !d.Allowed {
		t.Fatalf("expected allow, got %+v err=%v", d, err)
	}
	if cmds := counter.Commands(); cmds != 0 {
		t.Errorf("edit-post used %d Redis commands; budget is 0", cmds)
	}
}

// TestNewcomerPostRedisBudget verifies that a flood-checked post costs one
// GET for the lifetime count plus one pipelined window query.
func TestNewcomerPostRedisBudget(t *testing.T) {
	engine, _, counter, _ := newCountedEngine(t, budgetClock())

	d, err := engine.Authorize(context.Background(), goGuard.Request{
		Subject: newcomer("u2", budgetNow.Add(-time.Hour)),
		Action:  goGuard.ActionCreateThread,
	})
	if err != nil || !d.Allowed {
		t.Fatalf("expected allow, got %+v err=%v", d, err)
	}

	if cmds := counter.Commands(); cmds > 3 {
		t.Errorf("create-thread used %d Redis commands; budget is <= 3 (GET + ZCOUNT/ZRANGEBYSCORE)", cmds)
	}
	if p := counter.Pipelines(); p > 1 {
		t.Errorf("create-thread used %d pipelines; budget is 1", p)
	}
	t.Logf("create-thread (newcomer): %d commands, %d pipelines", counter.Commands(), counter.Pipelines())
}

// TestVeteranPostRedisBudget verifies that graduated subjects skip the
// window query.
func TestVeteranPostRedisBudget(t *testing.T) {
	engine, _, counter, _ := newCountedEngine(t, budgetClock())

	d, err := engine.Authorize(context.Background(), goGuard.Request{
		Subject: newcomer("u3", budgetNow.Add(-30*24*time.Hour)),
		Action:  goGuard.ActionCreateThread,
	})
	if err != nil || !d.Allowed {
		t.Fatalf("expected allow, got %+v err=%v", d, err)
	}
	if cmds := counter.Commands(); cmds > 1 {
		t.Errorf("veteran create-thread used %d Redis commands; budget is <= 1", cmds)
	}
}

// TestRecordActionRedisBudget verifies that recording is a single
// transactional pipeline.
func TestRecordActionRedisBudget(t *testing.T) {
	engine, _, counter, _ := newCountedEngine(t, budgetClock())

	if err := engine.RecordAction(context.Background(), "u4"); err != nil {
		t.Fatalf("RecordAction: %v", err)
	}
	if p := counter.Pipelines(); p != 1 {
		t.Errorf("RecordAction used %d pipelines; budget is 1", p)
	}
	t.Logf("RecordAction: %d commands, %d pipelines", counter.Commands(), counter.Pipelines())
}

// TestRecoveryIssueRedisBudget bounds the WATCH/MULTI issue path plus the
// limiter counters.
func TestRecoveryIssueRedisBudget(t *testing.T) {
	engine, _, counter, notices := newCountedEngine(t, budgetClock())

	if err := engine.IssueRecovery(context.Background(), "alice"); err != nil {
		t.Fatalf("IssueRecovery: %v", err)
	}
	if notices.notice.Load() == nil {
		t.Fatal("expected a notice")
	}
	if cmds := counter.Commands(); cmds > 16 {
		t.Errorf("IssueRecovery used %d Redis commands; budget is <= 16", cmds)
	}
	t.Logf("IssueRecovery: %d commands, %d pipelines", counter.Commands(), counter.Pipelines())
}
