package stores

import (
	"context"
	"strconv"
	"testing"
	"time"
)

func sequentialIDs() func(time.Time) (string, error) {
	n := 0
	return func(time.Time) (string, error) {
		n++
		return "r" + strconv.Itoa(n), nil
	}
}

func TestActivityWindowCountsInclusiveRange(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewActivityStore(rdb, "", 0, sequentialIDs())
	ctx := context.Background()

	at := []time.Time{storeNow.Add(-25 * time.Hour), storeNow.Add(-24 * time.Hour), storeNow.Add(-time.Hour), storeNow}
	for _, ts := range at {
		if err := s.Record(ctx, "u1", ts); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	w, err := s.Window(ctx, "u1", storeNow.Add(-24*time.Hour), storeNow)
	if err != nil {
		t.Fatalf("Window failed: %v", err)
	}
	if w.Count != 3 {
		t.Fatalf("expected 3 records in window, got %d", w.Count)
	}
	if !w.Oldest.Equal(storeNow.Add(-24 * time.Hour)) {
		t.Fatalf("expected oldest at window start, got %v", w.Oldest)
	}

	lifetime, err := s.Lifetime(ctx, "u1")
	if err != nil {
		t.Fatalf("Lifetime failed: %v", err)
	}
	if lifetime != 4 {
		t.Fatalf("expected lifetime 4, got %d", lifetime)
	}
}

func TestActivityRetentionTrimsWindowButNotLifetime(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewActivityStore(rdb, "", 48*time.Hour, sequentialIDs())
	ctx := context.Background()

	if err := s.Record(ctx, "u1", storeNow.Add(-72*time.Hour)); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := s.Record(ctx, "u1", storeNow); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	w, err := s.Window(ctx, "u1", storeNow.Add(-100*time.Hour), storeNow)
	if err != nil {
		t.Fatalf("Window failed: %v", err)
	}
	if w.Count != 1 {
		t.Fatalf("expected trimmed history of 1, got %d", w.Count)
	}
	if n, _ := s.Lifetime(ctx, "u1"); n != 2 {
		t.Fatalf("expected lifetime 2 after trim, got %d", n)
	}
}

func TestActivityEmptySubject(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewActivityStore(rdb, "", 0, sequentialIDs())

	w, err := s.Window(context.Background(), "nobody", storeNow.Add(-time.Hour), storeNow)
	if err != nil {
		t.Fatalf("Window failed: %v", err)
	}
	if w.Count != 0 || !w.Oldest.IsZero() {
		t.Fatalf("expected empty window, got %+v", w)
	}
	if n, err := s.Lifetime(context.Background(), "nobody"); err != nil || n != 0 {
		t.Fatalf("expected lifetime 0, got %d (%v)", n, err)
	}
}
