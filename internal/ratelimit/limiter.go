// Package ratelimit throttles outbound sends.
package ratelimit

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// sweepEvery is how many AllowSend calls pass between idle sweeps.
const sweepEvery = 256

// SendLimiter keeps two token buckets per send: one for the calling client
// address and one for the recipient number. A send goes out only when both
// buckets have a token, so one caller cannot flood the relay and many
// callers cannot flood one recipient.
type SendLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu         sync.Mutex
	clients    map[string]*bucket
	recipients map[string]*bucket
	calls      uint64
}

type bucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

// New returns a limiter allowing rps sends per second with the given burst
// on each dimension. It returns nil when rps or burst is not positive; a nil
// limiter allows every send.
func New(rps float64, burst int, idleTTL time.Duration) *SendLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &SendLimiter{
		limit:      rate.Limit(rps),
		burst:      burst,
		idleTTL:    idleTTL,
		clients:    make(map[string]*bucket),
		recipients: make(map[string]*bucket),
	}
}

// AllowSend reports whether client may send to recipient at now. An empty
// key skips that dimension. A denied send consumes no tokens.
func (l *SendLimiter) AllowSend(client, recipient string, now time.Time) bool {
	if l == nil {
		return true
	}
	client = strings.TrimSpace(client)
	recipient = strings.TrimSpace(recipient)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.calls%sweepEvery == 0 {
		l.sweep(now)
	}

	var held []*rate.Reservation
	for _, b := range []*bucket{l.take(l.clients, client, now), l.take(l.recipients, recipient, now)} {
		if b == nil {
			continue
		}
		r := b.tokens.ReserveN(now, 1)
		if !r.OK() || r.DelayFrom(now) > 0 {
			r.CancelAt(now)
			for _, h := range held {
				h.CancelAt(now)
			}
			return false
		}
		held = append(held, r)
	}
	return true
}

func (l *SendLimiter) take(m map[string]*bucket, key string, now time.Time) *bucket {
	if key == "" {
		return nil
	}
	b, ok := m[key]
	if !ok {
		b = &bucket{tokens: rate.NewLimiter(l.limit, l.burst)}
		m[key] = b
	}
	b.lastSeen = now
	return b
}

func (l *SendLimiter) sweep(now time.Time) {
	cutoff := now.Add(-l.idleTTL)
	for _, m := range []map[string]*bucket{l.clients, l.recipients} {
		for k, b := range m {
			if b.lastSeen.Before(cutoff) {
				delete(m, k)
			}
		}
	}
}

// Tracked returns how many client and recipient buckets are held.
func (l *SendLimiter) Tracked() (clients, recipients int) {
	if l == nil {
		return 0, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients), len(l.recipients)
}
