package middleware

import (
	"sync"
	"time"
)

// RateLimiter пропускает не больше limit событий пользователя за скользящее окно.
type RateLimiter struct {
	mu     sync.Mutex
	hits   map[int64][]time.Time
	limit  int
	window time.Duration
	now    func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter создаёт лимитер и запускает чистку старых записей.
// Остановить её — Close.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		hits:   make(map[int64][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	go rl.sweepLoop(5 * time.Minute)
	return rl
}

// Close останавливает чистку.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// SetClock подменяет часы (для тестов).
func (rl *RateLimiter) SetClock(now func() time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.now = now
}

// Allow учитывает событие пользователя. false — лимит исчерпан,
// отклонённое событие в окно не попадает.
func (rl *RateLimiter) Allow(identity int64) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	recent := inWindow(rl.hits[identity], now.Add(-rl.window))
	if len(recent) >= rl.limit {
		rl.hits[identity] = recent
		return false
	}
	rl.hits[identity] = append(recent, now)
	return true
}

// sweep выбрасывает пользователей без событий в текущем окне.
func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.window)
	for identity, times := range rl.hits {
		if recent := inWindow(times, cutoff); len(recent) > 0 {
			rl.hits[identity] = recent
		} else {
			delete(rl.hits, identity)
		}
	}
}

func (rl *RateLimiter) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

// inWindow отрезает отметки не позже cutoff. Отметки идут по возрастанию.
func inWindow(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}
