package provider

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_ApplySuccess(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := newMetricsCell(Seed{CostPerRequest: 0.08, AvgResponseTime: 30 * time.Second, AvgQuality: 0.9}).snapshot()

	got := m.apply(attemptOutcome{success: true, elapsed: 10 * time.Second, quality: 0.5, at: at})

	assert.Equal(t, int64(1), got.TotalRequests)
	assert.InDelta(t, 1.0, got.SuccessRate, 1e-12)
	assert.InDelta(t, 28.0, got.AvgResponseTime, 1e-9)
	assert.InDelta(t, 0.86, got.AvgQuality, 1e-9)
	assert.Equal(t, at, got.LastSuccess)
	assert.True(t, got.LastFailure.IsZero())
	assert.Equal(t, 0.08, got.CostPerRequest)
}

func TestMetrics_ApplyFailure(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := Metrics{SuccessRate: 1, AvgResponseTime: 20, AvgQuality: 0.8}

	got := m.apply(attemptOutcome{success: false, elapsed: 120 * time.Second, quality: 0.99, at: at})

	assert.InDelta(t, 0.9, got.SuccessRate, 1e-12)
	assert.InDelta(t, 30.0, got.AvgResponseTime, 1e-9)
	assert.Equal(t, 0.8, got.AvgQuality, "quality only moves on success")
	assert.Equal(t, at, got.LastFailure)
}

func TestMetrics_ApplyRejectionKeepsResponseTime(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := Metrics{SuccessRate: 1, AvgResponseTime: 20, AvgQuality: 0.8}

	got := m.apply(attemptOutcome{success: false, rejected: true, elapsed: time.Microsecond, at: at})

	assert.Equal(t, int64(1), got.TotalRequests)
	assert.InDelta(t, 0.9, got.SuccessRate, 1e-12)
	assert.Equal(t, 20.0, got.AvgResponseTime)
	assert.Equal(t, at, got.LastFailure)
}

func TestMetrics_ZeroQualityIgnored(t *testing.T) {
	m := Metrics{SuccessRate: 1, AvgQuality: 0.8}
	got := m.apply(attemptOutcome{success: true})
	assert.Equal(t, 0.8, got.AvgQuality)
}

func TestMetrics_SuccessRateDropsBelowEligibility(t *testing.T) {
	m := Metrics{SuccessRate: 1}
	var failures int
	for m.SuccessRate >= 0.5 {
		m = m.apply(attemptOutcome{success: false})
		failures++
	}
	assert.Equal(t, 7, failures)
}

func TestMetricsCell_ConcurrentRecord(t *testing.T) {
	c := newMetricsCell(Seed{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.record(attemptOutcome{success: true, elapsed: time.Second})
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), c.snapshot().TotalRequests)
}
