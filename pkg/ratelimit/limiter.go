package ratelimit

import (
	"sync"
	"time"
)

// bucket tracks the remaining budget for one key.
type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// Limiter hands out one token bucket per key. Keys are resolved device
// tokens, or "ip:"-prefixed client addresses for anonymous traffic.
type Limiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	capacity   int
	refillRate float64
	ttl        time.Duration
	now        func() time.Time
}

// Option configures a Limiter
type Option func(*Limiter)

// WithClock overrides the limiter's time source
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// NewLimiter creates a limiter allowing a burst of capacity requests per
// key, refilled at refillRate tokens per second. Buckets idle longer than
// ttl are swept; a ttl of zero keeps them forever.
func NewLimiter(capacity int, refillRate float64, ttl time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		buckets:    make(map[string]*bucket),
		capacity:   capacity,
		refillRate: refillRate,
		ttl:        ttl,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	if ttl > 0 {
		go l.sweepLoop()
	}

	return l
}

// Allow spends one token from the key's bucket, reporting whether the
// request is within budget. Unknown keys start with a full bucket.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.capacity), lastRefill: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = min(float64(l.capacity), b.tokens+elapsed*l.refillRate)
	b.lastRefill = now

	if b.tokens < 1.0 {
		return false
	}
	b.tokens--
	return true
}

// Forget drops the key's bucket so its next request starts a fresh budget
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// sweep drops buckets that have seen no traffic within the ttl
func (l *Limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, b := range l.buckets {
		if now.Sub(b.lastRefill) > l.ttl {
			delete(l.buckets, key)
		}
	}
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.ttl)
	defer ticker.Stop()

	for range ticker.C {
		l.sweep(l.now())
	}
}
