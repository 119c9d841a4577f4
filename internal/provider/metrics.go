package provider

import (
	"sync"
	"time"
)

// emaAlpha is the smoothing factor for every rolling metric.
const emaAlpha = 0.1

// Metrics is a snapshot of one provider's rolling performance.
type Metrics struct {
	SuccessRate     float64   `json:"success_rate"`
	AvgResponseTime float64   `json:"avg_response_time_secs"`
	AvgQuality      float64   `json:"avg_quality_score"`
	CostPerRequest  float64   `json:"cost_per_request"`
	TotalRequests   int64     `json:"total_requests"`
	LastSuccess     time.Time `json:"last_success,omitempty"`
	LastFailure     time.Time `json:"last_failure,omitempty"`
}

// Seed holds the starting metric values for a provider. A new provider
// starts fully trusted (success rate 1.0).
type Seed struct {
	CostPerRequest  float64
	AvgResponseTime time.Duration
	AvgQuality      float64
}

// attemptOutcome is what a finished call attempt contributes to the metrics.
type attemptOutcome struct {
	success bool
	elapsed time.Duration
	// quality is only applied on success when positive.
	quality float64
	// rejected marks a breaker rejection: a failure that never reached the
	// backend, so it says nothing about response time.
	rejected bool
	at       time.Time
}

// apply folds one attempt into m and returns the new metrics.
func (m Metrics) apply(o attemptOutcome) Metrics {
	m.TotalRequests++
	signal := 0.0
	if o.success {
		signal = 1.0
	}
	m.SuccessRate = (1-emaAlpha)*m.SuccessRate + emaAlpha*signal
	if !o.rejected {
		m.AvgResponseTime = (1-emaAlpha)*m.AvgResponseTime + emaAlpha*o.elapsed.Seconds()
	}
	if o.success {
		if o.quality > 0 {
			m.AvgQuality = (1-emaAlpha)*m.AvgQuality + emaAlpha*o.quality
		}
		m.LastSuccess = o.at
	} else {
		m.LastFailure = o.at
	}
	return m
}

// metricsCell serializes read-modify-write of one provider's metrics.
type metricsCell struct {
	mu sync.Mutex
	m  Metrics
}

func newMetricsCell(seed Seed) *metricsCell {
	return &metricsCell{m: Metrics{
		SuccessRate:     1.0,
		AvgResponseTime: seed.AvgResponseTime.Seconds(),
		AvgQuality:      seed.AvgQuality,
		CostPerRequest:  seed.CostPerRequest,
	}}
}

func (c *metricsCell) record(o attemptOutcome) Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = c.m.apply(o)
	return c.m
}

func (c *metricsCell) snapshot() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m
}
