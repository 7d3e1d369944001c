package rate

import (
	"sync"
	"time"
)

// Limiter decides whether another attempt under key is allowed inside the
// current window. When it is not, the second result is the wait until the
// window resets.
type Limiter interface {
	Allow(key string, limit int, window time.Duration) (bool, time.Duration)
}

// MemoryLimiter is a fixed-window counter per key, local to the process.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
	// sweepAt bounds how often expired buckets are collected
	sweepAt time.Time
}

type bucket struct {
	count   int
	resetAt time.Time
	window  time.Duration
}

func NewMemory() *MemoryLimiter {
	return &MemoryLimiter{buckets: make(map[string]*bucket), now: time.Now}
}

func (m *MemoryLimiter) Allow(key string, limit int, window time.Duration) (bool, time.Duration) {
	if limit <= 0 {
		return true, 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now, window)

	b, ok := m.buckets[key]
	if !ok || !now.Before(b.resetAt) || b.window != window {
		b = &bucket{resetAt: now.Add(window), window: window}
		m.buckets[key] = b
	}

	if b.count >= limit {
		return false, b.resetAt.Sub(now)
	}
	b.count++
	return true, b.resetAt.Sub(now)
}

func (m *MemoryLimiter) sweep(now time.Time, window time.Duration) {
	if now.Before(m.sweepAt) {
		return
	}
	for k, b := range m.buckets {
		if !now.Before(b.resetAt) {
			delete(m.buckets, k)
		}
	}
	m.sweepAt = now.Add(window)
}

// Len reports the number of live buckets.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}
