package backend

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// sendLimiter keeps one token bucket per sender and forgets idle senders.
// A nil limiter allows everything.
type sendLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu     sync.Mutex
	byUser map[string]*bucket
	calls  uint64
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newSendLimiter(perSecond float64, burst int) *sendLimiter {
	if perSecond <= 0 || burst <= 0 {
		return nil
	}
	return &sendLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idleTTL: 10 * time.Minute,
		byUser:  make(map[string]*bucket),
	}
}

func (l *sendLimiter) allow(userID string, now time.Time) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.byUser[userID]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byUser[userID] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)

	l.calls++
	if l.calls%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for id, v := range l.byUser {
			if v.lastSeen.Before(cutoff) {
				delete(l.byUser, id)
			}
		}
	}
	return allowed
}
