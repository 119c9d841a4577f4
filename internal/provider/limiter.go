package provider

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// adaptiveLimiter paces calls to one backend. It speeds up by 20% on each
// success (up to 2x the configured rate) and halves on a 429 (down to 1/4).
type adaptiveLimiter struct {
	name        string
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

func newAdaptiveLimiter(name string, perSecond float64) *adaptiveLimiter {
	if perSecond <= 0 {
		return nil
	}
	r := rate.Limit(perSecond)
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &adaptiveLimiter{
		name:        name,
		limiter:     rate.NewLimiter(r, burst),
		maxRate:     r * 2,
		minRate:     r / 4,
		currentRate: r,
	}
}

// Wait blocks until the limiter allows a call or ctx is done.
func (a *adaptiveLimiter) Wait(ctx context.Context) error {
	if a == nil {
		return nil
	}
	return a.limiter.Wait(ctx)
}

func (a *adaptiveLimiter) onSuccess() {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	next := a.currentRate * 1.2
	if next > a.maxRate {
		next = a.maxRate
	}
	a.currentRate = next
	a.limiter.SetLimit(next)
}

func (a *adaptiveLimiter) onRateLimit() {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	next := a.currentRate * 0.5
	if next < a.minRate {
		next = a.minRate
	}
	a.currentRate = next
	a.limiter.SetLimit(next)
	zap.L().Warn("provider: reducing request rate after 429",
		zap.String("provider", a.name),
		zap.Float64("new_rate", float64(next)),
	)
}

func (a *adaptiveLimiter) rate() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}
