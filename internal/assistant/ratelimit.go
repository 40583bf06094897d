package assistant

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles chat actions with one token bucket per broker.
// Sessions share their broker's bucket, so opening new tabs does not raise
// the allowance.
type RateLimiter struct {
	mu      sync.Mutex
	brokers map[string]*brokerLimit
	limit   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

type brokerLimit struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows limit actions per window for each broker, refilling
// evenly across the window, and starts evicting idle brokers.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := newRateLimiter(limit, window, time.Now)
	go rl.evictLoop()
	return rl
}

func newRateLimiter(limit int, window time.Duration, now func() time.Time) *RateLimiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		brokers: make(map[string]*brokerLimit),
		limit:   rate.Every(window / time.Duration(limit)),
		burst:   limit,
		idle:    window,
		now:     now,
		done:    make(chan struct{}),
	}
}

// Allow reports whether the broker may perform another action now.
func (r *RateLimiter) Allow(brokerID string) bool {
	now := r.now()

	r.mu.Lock()
	b, ok := r.brokers[brokerID]
	if !ok {
		b = &brokerLimit{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.brokers[brokerID] = b
	}
	b.lastSeen = now
	r.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// Stop ends the eviction goroutine.
func (r *RateLimiter) Stop() {
	r.once.Do(func() { close(r.done) })
}

func (r *RateLimiter) evictLoop() {
	ticker := time.NewTicker(r.idle)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.evict()
		}
	}
}

// evict drops brokers idle for a full window. Their buckets have refilled,
// so a fresh limiter behaves the same.
func (r *RateLimiter) evict() {
	cutoff := r.now().Add(-r.idle)

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, b := range r.brokers {
		if !b.lastSeen.After(cutoff) {
			delete(r.brokers, id)
		}
	}
}
