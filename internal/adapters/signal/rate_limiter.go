package signal

import (
	"sync"
	"time"

	"github.com/dkeye/VideoShare/internal/domain"
	"github.com/samber/lo"
)

// ShareRateLimiter bounds share toggles per participant over a sliding window.
type ShareRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.ParticipantID][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewShareRateLimiter(limit int, interval time.Duration) *ShareRateLimiter {
	return &ShareRateLimiter{
		history:  make(map[domain.ParticipantID][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *ShareRateLimiter) Allow(id domain.ParticipantID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	fresh := lo.Filter(rl.history[id], func(t time.Time, _ int) bool { return t.After(windowStart) })
	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false
	}
	rl.history[id] = append(fresh, now)
	return true
}

// Forget drops the participant's history.
func (rl *ShareRateLimiter) Forget(id domain.ParticipantID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, id)
}
