// Package ratelimit provides a token bucket limiter used to pace catalog
// API requests.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

var (
	// DefaultRate is the default minimum time between requests
	DefaultRate = 250 * time.Millisecond
	// DefaultBurst is the default burst size
	DefaultBurst = 3
)

// Limiter implements a token bucket rate limiter with jittered waits.
type Limiter struct {
	mu        sync.Mutex
	last      time.Time
	rate      time.Duration
	tokens    int
	maxTokens int
}

// New creates a Limiter. rate is the minimum time between requests, burst
// the number of requests that may proceed without waiting.
func New(rate time.Duration, burst int) *Limiter {
	if rate <= 0 {
		rate = DefaultRate
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &Limiter{
		last:      time.Now(),
		rate:      rate,
		tokens:    burst,
		maxTokens: burst,
	}
}

// Wait blocks until a token is available or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()

	now := time.Now()

	// Refill tokens based on time passed
	delta := now.Sub(l.last)
	newTokens := int(float64(delta) / float64(l.rate))
	if newTokens > 0 {
		l.tokens += newTokens
		if l.tokens > l.maxTokens {
			l.tokens = l.maxTokens
		}
		l.last = now
	}

	if l.tokens > 0 {
		l.tokens--
		l.mu.Unlock()
		return nil
	}

	// Wait with jitter (up to 20% of rate)
	waitTime := l.rate + time.Duration(rand.Float64()*0.2*float64(l.rate))
	next := l.last.Add(waitTime)
	l.mu.Unlock()

	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		l.mu.Lock()
		l.last = next
		l.tokens = 0
		l.mu.Unlock()
		return nil
	}
}
