package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLimiter_BurstThenRefill(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(2, 1.0, 0, WithClock(clock.Now))

	assert.True(t, l.Allow("tok-a"))
	assert.True(t, l.Allow("tok-a"))
	assert.False(t, l.Allow("tok-a"), "burst budget should be spent")

	clock.Advance(1 * time.Second)
	assert.True(t, l.Allow("tok-a"), "one token should have refilled")
	assert.False(t, l.Allow("tok-a"))

	// A long quiet stretch refills only up to capacity
	clock.Advance(1 * time.Hour)
	assert.True(t, l.Allow("tok-a"))
	assert.True(t, l.Allow("tok-a"))
	assert.False(t, l.Allow("tok-a"))
}

func TestLimiter_PerKeyBuckets(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(1, 1.0, 0, WithClock(clock.Now))

	assert.True(t, l.Allow("tok-a"))
	assert.False(t, l.Allow("tok-a"))

	// Another device and an anonymous caller each get their own budget
	assert.True(t, l.Allow("tok-b"))
	assert.True(t, l.Allow("ip:203.0.113.7"))
}

func TestLimiter_Forget(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(1, 1.0, 0, WithClock(clock.Now))

	assert.True(t, l.Allow("tok-a"))
	assert.False(t, l.Allow("tok-a"))

	l.Forget("tok-a")
	assert.True(t, l.Allow("tok-a"), "forgotten key should start fresh")
}

func TestLimiter_Sweep(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(5, 1.0, 1*time.Hour, WithClock(clock.Now))

	l.Allow("tok-idle")
	clock.Advance(30 * time.Minute)
	l.Allow("tok-busy")
	assert.Equal(t, 2, l.size())

	// tok-idle is 75m stale, tok-busy only 45m
	clock.Advance(45 * time.Minute)
	l.sweep(clock.Now())
	assert.Equal(t, 1, l.size())
}

func TestLimiter_ConcurrentAllow(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(100, 0, 0, WithClock(clock.Now))

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if l.Allow("tok-shared") {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	// With no refill, exactly the burst capacity gets through
	assert.Equal(t, int64(100), allowed.Load())
	assert.Equal(t, 1, l.size())
}

func BenchmarkLimiter_Allow(b *testing.B) {
	l := NewLimiter(1000000, 1000000.0, 0)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.Allow("tok-bench")
	}
}

func BenchmarkLimiter_AllowConcurrent(b *testing.B) {
	l := NewLimiter(1000000, 1000000.0, 0)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			l.Allow("tok-bench")
		}
	})
}
