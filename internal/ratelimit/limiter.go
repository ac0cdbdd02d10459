// Package ratelimit admits or rejects chat requests per client key.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"chatdesk/internal/clock"
)

const (
	DefaultWindow = 60 * time.Second
	DefaultMax    = 20

	StrategyFixed = "fixed"
	StrategyToken = "token"
)

// Limiter decides whether a request for key may proceed.
type Limiter interface {
	Allow(key string) bool
	Prune(now time.Time) int
}

// New returns the limiter for strategy; unknown strategies get a fixed window.
func New(strategy string, window time.Duration, max int, clk clock.Clock) Limiter {
	if strategy == StrategyToken {
		return NewTokenBucket(window, max, clk)
	}
	return NewFixedWindow(window, max, clk)
}

type windowCounter struct {
	start time.Time
	count int
}

// FixedWindow admits at most max requests per key in each wall-clock aligned
// window. Up to 2*max requests can pass across a window boundary.
type FixedWindow struct {
	mu       sync.Mutex
	counters map[string]*windowCounter
	window   time.Duration
	max      int
	clock    clock.Clock
}

func NewFixedWindow(window time.Duration, max int, clk clock.Clock) *FixedWindow {
	if window <= 0 {
		window = DefaultWindow
	}
	if max <= 0 {
		max = DefaultMax
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &FixedWindow{
		counters: make(map[string]*windowCounter),
		window:   window,
		max:      max,
		clock:    clk,
	}
}

func (l *FixedWindow) Allow(key string) bool {
	start := l.clock.Now().Truncate(l.window)

	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.counters[key]
	if !ok || !c.start.Equal(start) {
		c = &windowCounter{start: start}
		l.counters[key] = c
	}
	if c.count >= l.max {
		return false
	}
	c.count++
	return true
}

// Prune drops counters whose window has ended.
func (l *FixedWindow) Prune(now time.Time) int {
	current := now.Truncate(l.window)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, c := range l.counters {
		if c.start.Before(current) {
			delete(l.counters, k)
			n++
		}
	}
	return n
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// TokenBucket smooths admission: each key holds max tokens refilled at
// max per window.
type TokenBucket struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	window  time.Duration
	limit   rate.Limit
	burst   int
	clock   clock.Clock
}

func NewTokenBucket(window time.Duration, max int, clk clock.Clock) *TokenBucket {
	if window <= 0 {
		window = DefaultWindow
	}
	if max <= 0 {
		max = DefaultMax
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &TokenBucket{
		buckets: make(map[string]*bucket),
		window:  window,
		limit:   rate.Every(window / time.Duration(max)),
		burst:   max,
		clock:   clk,
	}
}

func (l *TokenBucket) Allow(key string) bool {
	now := l.clock.Now()
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()
	return b.limiter.AllowN(now, 1)
}

// Prune drops buckets unused for a full window; they would be full again.
func (l *TokenBucket) Prune(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.window {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}
