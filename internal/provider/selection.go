package provider

import "math"

// Balanced-score weights and normalisation bounds.
const (
	weightQuality     = 0.30
	weightSpeed       = 0.20
	weightCost        = 0.20
	weightReliability = 0.30

	speedCeilingSecs = 120.0
	costCeilingUSD   = 0.20
)

// Candidate is an eligible provider as seen by the selection policy.
type Candidate struct {
	Name    string
	Metrics Metrics
}

// BalancedScore is the weighted composite used by the balanced policy.
func BalancedScore(m Metrics) float64 {
	speed := math.Max(0, 1-m.AvgResponseTime/speedCeilingSecs)
	cost := math.Max(0, 1-m.CostPerRequest/costCeilingUSD)
	return weightQuality*m.AvgQuality +
		weightSpeed*speed +
		weightCost*cost +
		weightReliability*m.SuccessRate
}

// Select returns the index of the candidate chosen by priority, or -1 when
// candidates is empty. Ties go to the earliest candidate in iteration order:
// deterministic, but not meaningful beyond configuration order.
func Select(candidates []Candidate, priority Priority) int {
	if len(candidates) == 0 {
		return -1
	}
	var key func(Metrics) float64
	switch priority {
	case PriorityCost:
		key = func(m Metrics) float64 { return -m.CostPerRequest }
	case PrioritySpeed:
		key = func(m Metrics) float64 { return -m.AvgResponseTime }
	case PriorityQuality:
		key = func(m Metrics) float64 { return m.AvgQuality }
	default:
		key = BalancedScore
	}

	best := 0
	bestScore := key(candidates[0].Metrics)
	for i := 1; i < len(candidates); i++ {
		if s := key(candidates[i].Metrics); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}
