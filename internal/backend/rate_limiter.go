package backend

import (
	"sync"
	"time"

	"github.com/dkeye/classroom/internal/domain"
)

// RateLimiter is a sliding-window limiter keyed by attendee.
type RateLimiter struct {
	mu       sync.Mutex
	history  map[domain.AttendeeID][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		history:  make(map[domain.AttendeeID][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(id domain.AttendeeID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[id]
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false
	}
	rl.history[id] = append(fresh, now)
	return true
}

// Forget drops an attendee's history once its socket is gone.
func (rl *RateLimiter) Forget(id domain.AttendeeID) {
	rl.mu.Lock()
	delete(rl.history, id)
	rl.mu.Unlock()
}
