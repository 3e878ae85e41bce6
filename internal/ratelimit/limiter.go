// Package ratelimit bounds how fast each backend is queried. Public catalogs
// such as archive.org throttle aggressive clients; one limiter per backend
// keeps batch metadata fan-outs polite.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter wraps rate.Limiter with a backend name for logging.
type Limiter struct {
	limiter *rate.Limiter
	backend string
}

// New creates a limiter allowing requestsPerSecond, with matching burst.
func New(backend string, requestsPerSecond int) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		backend: backend,
	}
}

// Wait blocks until the limiter allows a request or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", l.backend, err)
	}
	return nil
}

// Allow reports whether a request may proceed without blocking.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Backend returns the backend this limiter protects.
func (l *Limiter) Backend() string {
	return l.backend
}

var (
	mu       sync.Mutex
	limiters = map[string]*Limiter{}
)

// For returns the process-wide limiter for a backend, creating it on first
// use. Concurrent searches against the same backend share one limiter.
func For(backend string, requestsPerSecond int) *Limiter {
	mu.Lock()
	defer mu.Unlock()
	if l, ok := limiters[backend]; ok {
		return l
	}
	l := New(backend, requestsPerSecond)
	limiters[backend] = l
	return l
}
