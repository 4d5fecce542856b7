package provider

import (
	"context"
	"sync"
	"time"

	"fbmonitor/internal/domain"
)

// RateLimiter paces completion requests as a token bucket: burst requests
// go through at once, then one every 60/perMinute seconds.
type RateLimiter struct {
	mu       sync.Mutex
	burst    float64
	perSec   float64
	avail    float64
	refilled time.Time
}

func NewRateLimiter(burst int, perMinute float64) *RateLimiter {
	if burst <= 0 {
		burst = 3
	}
	if perMinute <= 0 {
		perMinute = 20
	}
	return &RateLimiter{
		burst:    float64(burst),
		perSec:   perMinute / 60,
		avail:    float64(burst),
		refilled: time.Now(),
	}
}

// reserve takes a token if one is available, else reports how long until
// the next one.
func (l *RateLimiter) reserve(now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.avail = min(l.burst, l.avail+now.Sub(l.refilled).Seconds()*l.perSec)
	l.refilled = now
	if l.avail >= 1 {
		l.avail--
		return 0
	}
	return time.Duration((1 - l.avail) / l.perSec * float64(time.Second))
}

// Wait blocks until a request may be sent or ctx ends.
func (l *RateLimiter) Wait(ctx context.Context) error {
	for {
		wait := l.reserve(time.Now())
		if wait == 0 {
			return nil
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Limited wraps a provider so every call passes the limiter first.
type Limited struct {
	domain.Provider
	limiter *RateLimiter
}

func NewLimited(p domain.Provider, l *RateLimiter) *Limited {
	return &Limited{Provider: p, limiter: l}
}

func (l *Limited) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.Provider.Complete(ctx, req)
}
