package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// cachePurgeEvery bounds how often the memoization map is scanned for stale
// entries, mirroring the opportunistic sweep in MemoryStore.
const cachePurgeEvery = 4096

// Result is the outcome of one quota check.
type Result struct {
	// Allowed reports whether the request may proceed.
	Allowed bool
	// Remaining is how many further requests the identifier has in the
	// current window (0 when denied).
	Remaining int
	// ResetAt is when the current window expires and the counter restarts.
	ResetAt time.Time
}

// Limiter enforces a fixed-window request quota per client identifier.
//
// The primary store (typically Redis) holds the shared counters; when it is
// nil or a call against it errors, the check is re-run against a
// process-local MemoryStore so the endpoint stays available at the cost of
// per-instance (rather than global) accuracy. Results are memoized for a few
// seconds per identifier to absorb bursts.
//
// Limiter is safe for concurrent use. Concurrent checks for the same
// identifier race harmlessly: the store's atomic increment decides who gets
// the last slot in a window.
type Limiter struct {
	store CounterStore // nil when running fallback-only
	local *MemoryStore

	max    int
	window time.Duration

	cacheTTL time.Duration
	mu       sync.Mutex
	cache    map[string]cachedResult
	cacheN   uint64

	// now is a seam for tests; defaults to time.Now.
	now func() time.Time
}

type cachedResult struct {
	res Result
	at  time.Time
}

// New constructs a Limiter allowing max requests per window. store may be nil,
// in which case all counting is process-local. cacheTTL <= 0 disables result
// memoization.
func New(store CounterStore, max int, window, cacheTTL time.Duration) (*Limiter, error) {
	if max < 1 {
		return nil, errors.New("ratelimit: max requests must be >= 1")
	}
	if window <= 0 {
		return nil, errors.New("ratelimit: window must be > 0")
	}
	return &Limiter{
		store:    store,
		local:    NewMemoryStore(),
		max:      max,
		window:   window,
		cacheTTL: cacheTTL,
		cache:    make(map[string]cachedResult),
		now:      time.Now,
	}, nil
}

// Max returns the configured per-window quota (used for response headers).
func (l *Limiter) Max() int { return l.max }

// Check decides whether a request from identifier is allowed right now.
// Empty identifiers are folded into the shared unknown bucket. Check never
// fails: a broken store degrades to local counting, not to an error.
func (l *Limiter) Check(ctx context.Context, identifier string) Result {
	if identifier == "" {
		identifier = IdentityUnknown
	}
	key := "ratelimit:" + identifier

	if res, ok := l.cached(key); ok {
		return res
	}

	var res Result
	if l.store != nil {
		r, err := l.checkStore(ctx, l.store, key)
		if err == nil {
			res = r
			l.remember(key, res)
			if !res.Allowed {
				deniedTotal.Inc()
			}
			return res
		}
		fallbackTotal.Inc()
		log.Warn().Err(err).Str("identifier", identifier).
			Msg("rate-limit store unavailable, using local counters")
	}

	res, _ = l.checkStore(ctx, l.local, key) // MemoryStore operations cannot fail
	l.remember(key, res)
	if !res.Allowed {
		deniedTotal.Inc()
	}
	return res
}

// checkStore runs the fixed-window algorithm against one store. The same
// routine serves both the shared store and the local fallback, so the two
// modes cannot drift apart behaviorally.
func (l *Limiter) checkStore(ctx context.Context, store CounterStore, key string) (Result, error) {
	now := l.now()

	count, ok, err := store.Get(ctx, key)
	if err != nil {
		return Result{}, err
	}

	if !ok {
		return l.startWindow(ctx, store, key, now)
	}

	if count >= int64(l.max) {
		ttl, err := store.TTL(ctx, key)
		if err != nil {
			return Result{}, err
		}
		if ttl <= 0 {
			// Stale counter: the window elapsed but the key survived
			// (clock/TTL drift, or a store without expiry support).
			// Recreate rather than deny forever.
			if err := store.Delete(ctx, key); err != nil {
				return Result{}, err
			}
			return l.startWindow(ctx, store, key, now)
		}
		return Result{Allowed: false, Remaining: 0, ResetAt: now.Add(ttl)}, nil
	}

	n, err := store.Incr(ctx, key, l.window)
	if err != nil {
		return Result{}, err
	}
	resetAt := now.Add(l.window)
	if ttl, err := store.TTL(ctx, key); err == nil && ttl > 0 {
		resetAt = now.Add(ttl)
	}
	remaining := l.max - int(n)
	if remaining < 0 {
		remaining = 0
	}
	// A racing increment may push n past max; the loser is denied.
	return Result{Allowed: n <= int64(l.max), Remaining: remaining, ResetAt: resetAt}, nil
}

// startWindow creates a fresh counter for key and admits the request.
func (l *Limiter) startWindow(ctx context.Context, store CounterStore, key string, now time.Time) (Result, error) {
	n, err := store.Incr(ctx, key, l.window)
	if err != nil {
		return Result{}, err
	}
	remaining := l.max - int(n)
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: n <= int64(l.max), Remaining: remaining, ResetAt: now.Add(l.window)}, nil
}

// cached returns a still-fresh memoized result for key.
func (l *Limiter) cached(key string) (Result, bool) {
	if l.cacheTTL <= 0 {
		return Result{}, false
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.cache[key]
	if !ok || now.Sub(c.at) >= l.cacheTTL {
		return Result{}, false
	}
	return c.res, true
}

// remember memoizes a result for key, purging stale entries periodically so
// the map stays bounded under identifier churn.
func (l *Limiter) remember(key string, res Result) {
	if l.cacheTTL <= 0 {
		return
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.cacheN++
	if l.cacheN >= cachePurgeEvery {
		for k, c := range l.cache {
			if now.Sub(c.at) >= l.cacheTTL {
				delete(l.cache, k)
			}
		}
		l.cacheN = 0
	}

	l.cache[key] = cachedResult{res: res, at: now}
}

// FormatReset renders a window expiry for the X-RateLimit-Reset header
// (epoch milliseconds, matching what the site frontend expects).
func FormatReset(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
