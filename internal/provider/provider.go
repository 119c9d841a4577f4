// Package provider routes extraction requests across interchangeable AI
// backends, protecting each one with a circuit breaker and choosing between
// them from rolling performance metrics.
package provider

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/orderparse/internal/model"
)

// Adapter wraps a single extraction backend. Implementations must be safe
// for concurrent use and must return typed errors for malformed responses.
type Adapter interface {
	// Name is the stable provider identity, e.g. "openai" or "claude".
	Name() string
	// Extract sends one document to the backend.
	Extract(ctx context.Context, doc *model.Document, hints model.Hints) (*model.ExtractionResult, error)
	// HealthCheck issues a lightweight probe. It reports failure in the
	// returned status rather than as an error.
	HealthCheck(ctx context.Context) HealthStatus
}

// HealthStatus is the result of one health probe.
type HealthStatus struct {
	Provider     string        `json:"provider"`
	Healthy      bool          `json:"healthy"`
	ResponseTime time.Duration `json:"response_time"`
	Error        string        `json:"error,omitempty"`
	CheckedAt    time.Time     `json:"checked_at"`
}

// Priority selects the policy used to pick among eligible providers.
type Priority string

const (
	PriorityCost     Priority = "cost"
	PrioritySpeed    Priority = "speed"
	PriorityQuality  Priority = "quality"
	PriorityBalanced Priority = "balanced"
)

// ParsePriority converts a user-supplied policy name. Empty means balanced.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PriorityBalanced, nil
	case PriorityCost, PrioritySpeed, PriorityQuality, PriorityBalanced:
		return p, nil
	default:
		return "", eris.Errorf("provider: unknown priority %q", s)
	}
}

// Request describes one extraction call to the Manager.
type Request struct {
	Priority Priority
	// Exclude names providers that must not be chosen for this call.
	Exclude []string
	Hints   model.Hints
}
