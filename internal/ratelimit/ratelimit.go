// Package ratelimit is a fixed-window request counter keyed by an arbitrary
// string (typically client IP plus route). It is per-process and best-effort:
// an abuse deterrent, not a hard quota.
package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// Limiter counts requests per key within fixed windows. Windows reset lazily
// on the next check rather than on a timer.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewLimiter creates an empty limiter.
func NewLimiter() *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// IsRateLimited records one request against the key and reports whether the
// key has exceeded maxRequests within the current window.
func (l *Limiter) IsRateLimited(key string, maxRequests int, windowSize time.Duration) bool {
	limited, _ := l.Check(key, maxRequests, windowSize)
	return limited
}

// Check is IsRateLimited plus the remaining time until the window resets,
// for the Retry-After header.
func (l *Limiter) Check(key string, maxRequests int, windowSize time.Duration) (bool, time.Duration) {
	if maxRequests <= 0 || windowSize <= 0 {
		return false, 0
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(windowSize)}
		l.windows[key] = w
		l.pruneLocked(now)
	}
	w.count++
	if w.count > maxRequests {
		return true, w.resetAt.Sub(now)
	}
	return false, 0
}

// pruneLocked drops expired windows so the map does not grow without bound.
// Called opportunistically while the lock is already held.
func (l *Limiter) pruneLocked(now time.Time) {
	if len(l.windows) < 1024 {
		return
	}
	for key, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, key)
		}
	}
}

// Respond429 writes the standard rate-limit response with a Retry-After
// header rounded up to whole seconds.
func Respond429(w http.ResponseWriter, retryAfter time.Duration) {
	seconds := int(retryAfter.Seconds())
	if retryAfter > 0 && seconds == 0 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": "too many requests",
	})
}
