package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/orderparse/internal/model"
	"github.com/sells-group/orderparse/internal/provider"
	"github.com/sells-group/orderparse/internal/resilience"
	"github.com/sells-group/orderparse/internal/store"
)

// MetricsSnapshot holds a point-in-time view of parsing health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal      int     `json:"runs_total"`
	RunsComplete   int     `json:"runs_complete"`
	RunsFailed     int     `json:"runs_failed"`
	RunsInFlight   int     `json:"runs_in_flight"`
	FailRate       float64 `json:"fail_rate"`
	ManualReviews  int     `json:"manual_reviews"`
	ManualRate     float64 `json:"manual_review_rate"`
	Escalated      int     `json:"escalated"`
	EscalationRate float64 `json:"escalation_rate"`
	AvgConfidence  float64 `json:"avg_confidence"`
	CostUSD        float64 `json:"cost_usd"`
	AvgTokens      int     `json:"avg_tokens"`

	// ProviderUsage counts finished runs by the provider that produced them.
	ProviderUsage map[string]int `json:"provider_usage"`

	// Live provider state, when a provider manager is attached.
	Providers    []provider.Status `json:"providers,omitempty"`
	OpenCircuits []string          `json:"open_circuits,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the read side of the run store.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// ProviderStatuser reports live breaker and routing state. *provider.Manager
// implements it.
type ProviderStatuser interface {
	Status() map[string]provider.Status
}

// Collector gathers metrics from the run store and the provider manager.
type Collector struct {
	runs      RunLister
	providers ProviderStatuser
}

// NewCollector creates a new metrics collector. providers may be nil.
func NewCollector(runs RunLister, providers ProviderStatuser) *Collector {
	return &Collector{runs: runs, providers: providers}
}

// Collect gathers a snapshot of metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		ProviderUsage: map[string]int{},
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{
		CreatedAfter: cutoff,
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	var totalConfidence float64
	var totalTokens, scored, withOutcome int

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		default:
			snap.RunsInFlight++
		}

		out := r.Outcome
		if out == nil {
			continue
		}
		withOutcome++
		if out.RequiresManualReview {
			snap.ManualReviews++
		}
		if out.Metadata.Escalated {
			snap.Escalated++
		}
		if out.ProviderUsed != "" && out.ProviderUsed != "none" {
			snap.ProviderUsage[out.ProviderUsed]++
		}
		snap.CostUSD += out.Usage.Cost
		totalTokens += out.Usage.InputTokens + out.Usage.OutputTokens
		if out.Confidence != nil {
			totalConfidence += out.Confidence.Overall
			scored++
		}
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if withOutcome > 0 {
		snap.ManualRate = float64(snap.ManualReviews) / float64(withOutcome)
		snap.EscalationRate = float64(snap.Escalated) / float64(withOutcome)
		snap.AvgTokens = totalTokens / withOutcome
	}
	if scored > 0 {
		snap.AvgConfidence = totalConfidence / float64(scored)
	}

	if c.providers != nil {
		statuses := c.providers.Status()
		names := make([]string, 0, len(statuses))
		for name := range statuses {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			st := statuses[name]
			snap.Providers = append(snap.Providers, st)
			if st.BreakerState == resilience.CircuitOpen.String() {
				snap.OpenCircuits = append(snap.OpenCircuits, name)
			}
		}
	}

	return snap, nil
}
