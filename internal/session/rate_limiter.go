package session

import (
	"sync"
	"time"

	"chat-live/internal/models"
)

// SendLimiter is a per-user sliding window over send attempts. A nil
// limiter allows everything.
type SendLimiter struct {
	mu       sync.Mutex
	history  map[models.UserID][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

// NewSendLimiter returns nil when limit or interval is not positive.
func NewSendLimiter(limit int, interval time.Duration) *SendLimiter {
	if limit <= 0 || interval <= 0 {
		return nil
	}
	return &SendLimiter{
		history:  make(map[models.UserID][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *SendLimiter) Allow(uid models.UserID) bool {
	if rl == nil {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[uid]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[uid] = fresh
		return false
	}

	rl.history[uid] = append(fresh, now)
	return true
}

// Forget drops the user's history once they have no live connection.
func (rl *SendLimiter) Forget(uid models.UserID) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	delete(rl.history, uid)
	rl.mu.Unlock()
}
