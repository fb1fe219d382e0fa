package core

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultRateLimit and DefaultRateWindow implement the §4.1 admission quota:
// at most DefaultRateLimit accepted validations per DefaultRateWindow, per
// source peer.
const (
	DefaultRateLimit  = 5
	DefaultRateWindow = time.Hour
)

// maxTrackedPeers bounds the rate limiter's peer-id map, per DESIGN NOTES §9
// ("cap the total keys and evict LRU").
const maxTrackedPeers = 100_000

// peerWindow is one peer's sliding-window attempt log: the timestamps of its
// accepted attempts still inside the window, oldest first.
type peerWindow struct {
	mu    sync.Mutex
	times []time.Time
}

// prune drops timestamps older than window, measured from now.
func (w *peerWindow) prune(now time.Time, window time.Duration) {
	cut := 0
	for cut < len(w.times) && now.Sub(w.times[cut]) >= window {
		cut++
	}
	if cut > 0 {
		w.times = append([]time.Time(nil), w.times[cut:]...)
	}
}

// RateLimiter is a process-wide, per-peer sliding-window attempt counter
// (§4.1, §5 "Shared resources"). Each peer's accepted-attempt timestamps are
// tracked directly so the window's boundary behavior is exact: an attempt
// ages out of the window one at a time, in the order it was accepted,
// rather than refilling in bulk the way a token bucket would. The peer-id
// map itself is LRU-bounded so an unbounded number of ephemeral peer ids
// cannot grow the limiter without bound (DESIGN NOTES §9).
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows *lru.Cache[string, *peerWindow]
	clock   func() time.Time
}

// NewRateLimiter constructs a limiter allowing limit accepted attempts per
// window, per peer.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = DefaultRateWindow
	}
	cache, _ := lru.New[string, *peerWindow](maxTrackedPeers)
	return &RateLimiter{limit: limit, window: window, windows: cache, clock: time.Now}
}

func (rl *RateLimiter) now() time.Time {
	if rl.clock != nil {
		return rl.clock()
	}
	return time.Now()
}

func (rl *RateLimiter) windowFor(peer string) *peerWindow {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if w, ok := rl.windows.Get(peer); ok {
		return w
	}
	w := &peerWindow{}
	rl.windows.Add(peer, w)
	return w
}

// Allow reports whether peer may make one more attempt right now, without
// consuming quota. Admission calls Allow to decide acceptance and Commit
// only after every other check has also passed (§4.1: "the rate limiter
// commits the attempt only on the final Ok").
func (rl *RateLimiter) Allow(peer string) bool {
	w := rl.windowFor(peer)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(rl.now(), rl.window)
	return len(w.times) < rl.limit
}

// Commit consumes one unit of peer's quota. Call only after an attempt is
// fully accepted.
func (rl *RateLimiter) Commit(peer string) {
	w := rl.windowFor(peer)
	now := rl.now()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(now, rl.window)
	w.times = append(w.times, now)
}
