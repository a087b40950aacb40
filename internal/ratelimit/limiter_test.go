package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"
)

// scriptedStore is a hand-rolled CounterStore whose answers and failures are
// fully controlled by the test.
type scriptedStore struct {
	count   int64
	present bool
	ttl     time.Duration

	getErr, incrErr, ttlErr, delErr error

	getCalls, incrCalls int
	deleted             []string
}

func (s *scriptedStore) Get(_ context.Context, _ string) (int64, bool, error) {
	s.getCalls++
	if s.getErr != nil {
		return 0, false, s.getErr
	}
	return s.count, s.present, nil
}

func (s *scriptedStore) Incr(_ context.Context, _ string, _ time.Duration) (int64, error) {
	s.incrCalls++
	if s.incrErr != nil {
		return 0, s.incrErr
	}
	s.count++
	s.present = true
	return s.count, nil
}

func (s *scriptedStore) TTL(_ context.Context, _ string) (time.Duration, error) {
	if s.ttlErr != nil {
		return 0, s.ttlErr
	}
	return s.ttl, nil
}

func (s *scriptedStore) Delete(_ context.Context, key string) error {
	if s.delErr != nil {
		return s.delErr
	}
	s.deleted = append(s.deleted, key)
	s.count = 0
	s.present = false
	return nil
}

// testClock gives the limiter and its stores one adjustable time source.
type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, 0, time.Minute, 0); err == nil {
		t.Fatalf("expected error for max < 1")
	}
	if _, err := New(nil, 5, 0, 0); err == nil {
		t.Fatalf("expected error for non-positive window")
	}
	l, err := New(nil, 5, time.Minute, 0)
	if err != nil || l == nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if l.Max() != 5 {
		t.Fatalf("Max() = %d; want 5", l.Max())
	}
}

func TestLimiter_FixedWindowCycle(t *testing.T) {
	clock := newTestClock()

	store := NewMemoryStore()
	store.now = clock.now

	l, err := New(store, 2, 60*time.Second, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.now = clock.now

	ctx := context.Background()

	r := l.Check(ctx, "1.2.3.4")
	if !r.Allowed || r.Remaining != 1 {
		t.Fatalf("first check = %+v; want allowed, remaining 1", r)
	}
	r = l.Check(ctx, "1.2.3.4")
	if !r.Allowed || r.Remaining != 0 {
		t.Fatalf("second check = %+v; want allowed, remaining 0", r)
	}
	r = l.Check(ctx, "1.2.3.4")
	if r.Allowed || r.Remaining != 0 {
		t.Fatalf("third check = %+v; want denied, remaining 0", r)
	}
	if r.ResetAt.Before(clock.now()) {
		t.Fatalf("denied ResetAt %v is in the past", r.ResetAt)
	}

	// A different identifier is unaffected.
	if r := l.Check(ctx, "5.6.7.8"); !r.Allowed || r.Remaining != 1 {
		t.Fatalf("other identifier = %+v; want fresh window", r)
	}

	// After the window elapses the counter restarts.
	clock.advance(61 * time.Second)
	r = l.Check(ctx, "1.2.3.4")
	if !r.Allowed || r.Remaining != 1 {
		t.Fatalf("post-window check = %+v; want allowed, remaining 1", r)
	}
}

func TestLimiter_MemoizationShortCircuitsStore(t *testing.T) {
	clock := newTestClock()
	store := &scriptedStore{}

	l, err := New(store, 10, time.Hour, 3*time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.now = clock.now

	ctx := context.Background()
	first := l.Check(ctx, "c1")
	if !first.Allowed {
		t.Fatalf("first check denied: %+v", first)
	}
	gets := store.getCalls

	// Within the cache TTL the stored result is reused verbatim.
	second := l.Check(ctx, "c1")
	if store.getCalls != gets {
		t.Fatalf("store consulted during cache window (%d -> %d calls)", gets, store.getCalls)
	}
	if second != first {
		t.Fatalf("cached result differs: %+v vs %+v", second, first)
	}

	// Once the TTL passes the store is consulted again.
	clock.advance(3 * time.Second)
	l.Check(ctx, "c1")
	if store.getCalls == gets {
		t.Fatalf("store not consulted after cache expiry")
	}
}

func TestLimiter_StaleCounterSelfHeals(t *testing.T) {
	clock := newTestClock()
	// Counter at the cap but with no remaining lifetime: the window elapsed
	// yet the key survived.
	store := &scriptedStore{count: 5, present: true, ttl: 0}

	l, err := New(store, 5, time.Hour, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.now = clock.now

	r := l.Check(context.Background(), "c1")
	if !r.Allowed {
		t.Fatalf("stale counter still denies: %+v", r)
	}
	if len(store.deleted) != 1 {
		t.Fatalf("stale key not deleted (deletes=%v)", store.deleted)
	}
	if r.Remaining != 4 {
		t.Fatalf("remaining after heal = %d; want 4", r.Remaining)
	}
}

func TestLimiter_AtCapWithLiveTTLDenies(t *testing.T) {
	clock := newTestClock()
	store := &scriptedStore{count: 5, present: true, ttl: 10 * time.Minute}

	l, err := New(store, 5, time.Hour, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.now = clock.now

	r := l.Check(context.Background(), "c1")
	if r.Allowed {
		t.Fatalf("expected denial at cap: %+v", r)
	}
	want := clock.now().Add(10 * time.Minute)
	if !r.ResetAt.Equal(want) {
		t.Fatalf("ResetAt = %v; want %v", r.ResetAt, want)
	}
	if store.incrCalls != 0 {
		t.Fatalf("denied request must not increment (incrCalls=%d)", store.incrCalls)
	}
}

func TestLimiter_StoreErrorFallsBackToLocal(t *testing.T) {
	clock := newTestClock()
	store := &scriptedStore{getErr: errors.New("connection refused")}

	l, err := New(store, 2, time.Hour, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.now = clock.now
	l.local.now = clock.now

	ctx := context.Background()

	// The endpoint stays available on local counters.
	if r := l.Check(ctx, "c1"); !r.Allowed || r.Remaining != 1 {
		t.Fatalf("fallback first check = %+v; want allowed, remaining 1", r)
	}
	if r := l.Check(ctx, "c1"); !r.Allowed || r.Remaining != 0 {
		t.Fatalf("fallback second check = %+v", r)
	}
	// The local counters still enforce the cap.
	if r := l.Check(ctx, "c1"); r.Allowed {
		t.Fatalf("fallback does not enforce cap: %+v", r)
	}
}

func TestLimiter_NilStoreUsesLocalOnly(t *testing.T) {
	clock := newTestClock()

	l, err := New(nil, 1, time.Hour, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.now = clock.now
	l.local.now = clock.now

	ctx := context.Background()
	if r := l.Check(ctx, "c1"); !r.Allowed {
		t.Fatalf("first local check denied: %+v", r)
	}
	if r := l.Check(ctx, "c1"); r.Allowed {
		t.Fatalf("second local check allowed past cap: %+v", r)
	}
}

func TestLimiter_EmptyIdentifierSharesUnknownBucket(t *testing.T) {
	clock := newTestClock()

	l, err := New(nil, 1, time.Hour, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.now = clock.now
	l.local.now = clock.now

	ctx := context.Background()
	if r := l.Check(ctx, ""); !r.Allowed {
		t.Fatalf("first unknown check denied: %+v", r)
	}
	// The named unknown sentinel lands in the same bucket.
	if r := l.Check(ctx, IdentityUnknown); r.Allowed {
		t.Fatalf("unknown bucket not shared: %+v", r)
	}
}

func TestFormatReset_EpochMillis(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	got := FormatReset(at)
	want := strconv.FormatInt(at.UnixMilli(), 10)
	if got != want {
		t.Fatalf("FormatReset = %q; want %q", got, want)
	}
}
