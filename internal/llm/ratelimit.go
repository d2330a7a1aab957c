package llm

import (
	"sync"
	"time"
)

// rateLimiter is a token bucket holding at most one minute of model calls.
// It never makes a caller wait: tryAcquire either spends a token or reports
// that the bucket is empty, and the caller answers locally instead. Tokens
// are credited lazily from the time elapsed since the last credit, so the
// limiter runs no goroutine of its own.
type rateLimiter struct {
	last     time.Time
	now      func() time.Time
	interval time.Duration
	tokens   int
	capacity int
	mu       sync.Mutex
}

// newRateLimiter creates a full bucket allowing requestsPerMinute calls per
// minute. A non-positive rate selects 60.
func newRateLimiter(requestsPerMinute int) *rateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &rateLimiter{
		now:      time.Now,
		last:     time.Now(),
		interval: time.Minute / time.Duration(requestsPerMinute),
		tokens:   requestsPerMinute,
		capacity: requestsPerMinute,
	}
}

// tryAcquire spends a token if one is available.
func (rl *rateLimiter) tryAcquire() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.credit()
	if rl.tokens == 0 {
		return false
	}
	rl.tokens--
	return true
}

// credit adds one token per elapsed interval, up to capacity. Time left over
// from a partial interval carries into the next call.
func (rl *rateLimiter) credit() {
	now := rl.now()
	earned := int(now.Sub(rl.last) / rl.interval)
	if earned <= 0 {
		return
	}
	if rl.tokens+earned >= rl.capacity {
		rl.tokens = rl.capacity
		rl.last = now
		return
	}
	rl.tokens += earned
	rl.last = rl.last.Add(time.Duration(earned) * rl.interval)
}
