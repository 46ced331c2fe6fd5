package middleware

import (
	"sync"
	"time"
)

// Default limit for failed authentication: 5 attempts per minute per key.
const (
	DefaultAuthAttempts = 5
	DefaultAuthWindow   = time.Minute
)

// InvalidAuthRateLimiter limits failed authentication attempts per key
// (client IP). Successful attempts are not counted.
type InvalidAuthRateLimiter struct {
	mu       sync.Mutex
	attempts map[string]*attemptInfo
	limit    int
	window   time.Duration
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

type attemptInfo struct {
	count   int
	firstAt time.Time
}

// NewInvalidAuthRateLimiter creates a limiter allowing limit failures per
// window. Non-positive values select the defaults.
func NewInvalidAuthRateLimiter(limit int, window time.Duration) *InvalidAuthRateLimiter {
	if limit <= 0 {
		limit = DefaultAuthAttempts
	}
	if window <= 0 {
		window = DefaultAuthWindow
	}
	rl := &InvalidAuthRateLimiter{
		attempts: make(map[string]*attemptInfo),
		limit:    limit,
		window:   window,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Allow records a failed attempt for key and reports whether it is still
// within the limit.
func (r *InvalidAuthRateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	info, exists := r.attempts[key]
	if !exists || now.Sub(info.firstAt) > r.window {
		r.attempts[key] = &attemptInfo{count: 1, firstAt: now}
		return true
	}

	if info.count >= r.limit {
		return false
	}
	info.count++
	return true
}

// Blocked reports whether key has exhausted its attempts without recording one.
func (r *InvalidAuthRateLimiter) Blocked(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, exists := r.attempts[key]
	return exists && r.now().Sub(info.firstAt) <= r.window && info.count >= r.limit
}

// Reset forgets the failures of key.
func (r *InvalidAuthRateLimiter) Reset(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attempts, key)
}

// Stop ends the cleanup goroutine.
func (r *InvalidAuthRateLimiter) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *InvalidAuthRateLimiter) cleanup() {
	ticker := time.NewTicker(5 * r.window)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.mu.Lock()
			now := r.now()
			for key, info := range r.attempts {
				if now.Sub(info.firstAt) > r.window {
					delete(r.attempts, key)
				}
			}
			r.mu.Unlock()
		case <-r.stop:
			return
		}
	}
}
