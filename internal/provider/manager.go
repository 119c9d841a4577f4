package provider

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/orderparse/internal/model"
	"github.com/sells-group/orderparse/internal/resilience"
)

// Config controls routing across providers.
type Config struct {
	Breaker resilience.CircuitBreakerConfig
	// MaxAttempts is the retry ceiling across providers for one Parse call.
	MaxAttempts int
	// CallTimeout bounds a single adapter call. A timeout is a failure.
	CallTimeout time.Duration
	// HealthTimeout bounds a single health probe.
	HealthTimeout time.Duration
	// MinSuccessRate is the rolling success rate below which a provider
	// stops being eligible.
	MinSuccessRate float64
}

// DefaultConfig returns the routing defaults.
func DefaultConfig() Config {
	return Config{
		Breaker:        resilience.DefaultCircuitBreakerConfig(),
		MaxAttempts:    3,
		CallTimeout:    120 * time.Second,
		HealthTimeout:  10 * time.Second,
		MinSuccessRate: 0.5,
	}
}

// Registration configures one provider.
type Registration struct {
	Adapter Adapter
	Seed    Seed
	// RequestsPerSecond paces calls to the backend. Zero disables pacing.
	RequestsPerSecond float64
}

type entry struct {
	name    string
	adapter Adapter
	breaker *resilience.CircuitBreaker
	metrics *metricsCell
	limiter *adaptiveLimiter
}

// Manager owns one adapter, breaker and metrics set per configured provider.
// It is safe for concurrent use; updates to different providers never
// contend with each other.
type Manager struct {
	cfg      Config
	entries  []*entry
	byName   map[string]*entry
	breakers *resilience.ServiceBreakers
	tracer   trace.Tracer
	nowFunc  func() time.Time
}

// NewManager builds a Manager. Registration order is the iteration order
// used to break selection ties.
func NewManager(cfg Config, regs ...Registration) (*Manager, error) {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = def.HealthTimeout
	}
	if cfg.MinSuccessRate < 0 {
		cfg.MinSuccessRate = def.MinSuccessRate
	}

	breakers := resilience.NewServiceBreakers(cfg.Breaker)
	breakers.OnStateChange = func(service string, from, to resilience.CircuitState) {
		zap.L().Warn("provider: circuit breaker transition",
			zap.String("provider", service),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}

	m := &Manager{
		cfg:      cfg,
		byName:   make(map[string]*entry, len(regs)),
		breakers: breakers,
		tracer:   otel.Tracer("github.com/sells-group/orderparse/internal/provider"),
		nowFunc:  time.Now,
	}
	for _, r := range regs {
		if r.Adapter == nil {
			return nil, eris.New("provider: registration without adapter")
		}
		name := r.Adapter.Name()
		if name == "" {
			return nil, eris.New("provider: adapter has empty name")
		}
		if _, dup := m.byName[name]; dup {
			return nil, eris.Errorf("provider: duplicate provider %q", name)
		}
		e := &entry{
			name:    name,
			adapter: r.Adapter,
			breaker: breakers.Get(name),
			metrics: newMetricsCell(r.Seed),
			limiter: newAdaptiveLimiter(name, r.RequestsPerSecond),
		}
		m.entries = append(m.entries, e)
		m.byName[name] = e
	}
	return m, nil
}

// Providers returns the configured provider names in iteration order.
func (m *Manager) Providers() []string {
	names := make([]string, len(m.entries))
	for i, e := range m.entries {
		names[i] = e.name
	}
	return names
}

// Parse extracts doc with the best eligible provider, failing over to other
// eligible providers up to the attempt ceiling. It returns
// ErrNoHealthyProviders if nothing is eligible before the first attempt and
// *AllProvidersFailedError once attempts are exhausted.
func (m *Manager) Parse(ctx context.Context, doc *model.Document, req Request) (*model.ExtractionResult, error) {
	if doc == nil {
		return nil, eris.New("provider: nil document")
	}
	priority := req.Priority
	if priority == "" {
		priority = PriorityBalanced
	}

	ctx, span := m.tracer.Start(ctx, "provider.parse", trace.WithAttributes(
		attribute.String("document", doc.Ref),
		attribute.String("priority", string(priority)),
	))
	defer span.End()

	skip := make(map[string]bool, len(req.Exclude)+m.cfg.MaxAttempts)
	for _, name := range req.Exclude {
		skip[name] = true
	}

	var (
		tried   []string
		lastErr error
	)
	for len(tried) < m.cfg.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "provider: parse cancelled")
		}

		e := m.choose(priority, skip)
		if e == nil {
			if len(tried) == 0 {
				span.SetStatus(codes.Error, ErrNoHealthyProviders.Error())
				zap.L().Warn("provider: no healthy providers",
					zap.String("document", doc.Ref),
					zap.Strings("excluded", req.Exclude),
				)
				return nil, ErrNoHealthyProviders
			}
			break
		}
		tried = append(tried, e.name)
		skip[e.name] = true

		zap.L().Info("provider: attempting extraction",
			zap.String("provider", e.name),
			zap.String("document", doc.Ref),
			zap.Int("attempt", len(tried)),
		)

		res, err := m.attempt(ctx, e, doc, req.Hints)
		if err == nil {
			span.SetAttributes(attribute.String("provider", e.name), attribute.Int("attempts", len(tried)))
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, eris.Wrap(ctxErr, "provider: parse cancelled")
		}
		lastErr = err
		zap.L().Warn("provider: extraction failed",
			zap.String("provider", e.name),
			zap.String("document", doc.Ref),
			zap.Int("attempt", len(tried)),
			zap.Bool("transient", resilience.IsTransient(err)),
			zap.Error(err),
		)
	}

	failed := &AllProvidersFailedError{Attempts: len(tried), Tried: tried, Last: lastErr}
	span.RecordError(failed)
	span.SetStatus(codes.Error, "all providers failed")
	return nil, failed
}

// choose applies the eligibility filter then the selection policy.
func (m *Manager) choose(priority Priority, skip map[string]bool) *entry {
	var (
		eligible   []*entry
		candidates []Candidate
	)
	for _, e := range m.entries {
		if skip[e.name] {
			continue
		}
		if e.breaker.State() == resilience.CircuitOpen {
			continue
		}
		snap := e.metrics.snapshot()
		if snap.SuccessRate < m.cfg.MinSuccessRate {
			continue
		}
		eligible = append(eligible, e)
		candidates = append(candidates, Candidate{Name: e.name, Metrics: snap})
	}
	idx := Select(candidates, priority)
	if idx < 0 {
		return nil
	}
	return eligible[idx]
}

// attempt performs one breaker-protected call and records its outcome.
// Caller cancellation is returned without touching metrics.
func (m *Manager) attempt(ctx context.Context, e *entry, doc *model.Document, hints model.Hints) (*model.ExtractionResult, error) {
	ctx, span := m.tracer.Start(ctx, "provider.attempt", trace.WithAttributes(
		attribute.String("provider", e.name),
	))
	defer span.End()

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrapf(err, "provider %s: rate limiter", e.name)
	}

	start := m.nowFunc()
	res, err := resilience.ExecuteVal(ctx, e.breaker, func(ctx context.Context) (*model.ExtractionResult, error) {
		callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
		defer cancel()
		res, err := e.adapter.Extract(callCtx, doc, hints)
		if err == nil && res == nil {
			err = eris.Errorf("provider %s: empty result", e.name)
		}
		return res, err
	})
	elapsed := m.nowFunc().Sub(start)

	if err != nil && ctx.Err() != nil {
		return nil, err
	}

	quality := 0.0
	if err == nil {
		quality = res.AverageConfidence()
	}
	snap := e.metrics.record(attemptOutcome{
		success:  err == nil,
		elapsed:  elapsed,
		quality:  quality,
		rejected: errors.Is(err, resilience.ErrCircuitOpen),
		at:       m.nowFunc(),
	})
	zap.L().Debug("provider: metrics updated",
		zap.String("provider", e.name),
		zap.Bool("success", err == nil),
		zap.Float64("success_rate", snap.SuccessRate),
		zap.Float64("avg_response_time", snap.AvgResponseTime),
		zap.Float64("avg_quality", snap.AvgQuality),
		zap.Int64("total_requests", snap.TotalRequests),
	)

	if err != nil {
		var te *resilience.TransientError
		if errors.As(err, &te) && te.StatusCode == 429 {
			e.limiter.onRateLimit()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, eris.Wrapf(err, "provider %s", e.name)
	}

	e.limiter.onSuccess()
	res.Provider = e.name
	if res.Duration <= 0 {
		res.Duration = elapsed
	}
	return res, nil
}

// Status is an observability snapshot of one provider.
type Status struct {
	Provider            string  `json:"provider"`
	BreakerState        string  `json:"breaker_state"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	Eligible            bool    `json:"eligible"`
	Metrics             Metrics `json:"metrics"`
	RequestsPerSecond   float64 `json:"requests_per_second,omitempty"`
}

// Status returns a read-only snapshot of every provider's breaker and metrics.
func (m *Manager) Status() map[string]Status {
	out := make(map[string]Status, len(m.entries))
	for _, e := range m.entries {
		failures, _ := e.breaker.Counters()
		state := e.breaker.State()
		snap := e.metrics.snapshot()
		st := Status{
			Provider:            e.name,
			BreakerState:        state.String(),
			ConsecutiveFailures: failures,
			Eligible:            state != resilience.CircuitOpen && snap.SuccessRate >= m.cfg.MinSuccessRate,
			Metrics:             snap,
		}
		if e.limiter != nil {
			st.RequestsPerSecond = float64(e.limiter.rate())
		}
		out[e.name] = st
	}
	return out
}

// CheckHealth probes every provider concurrently, each bounded by the
// health timeout. Results follow registration order. Probes do not affect
// breakers or metrics.
func (m *Manager) CheckHealth(ctx context.Context) []HealthStatus {
	results := make([]HealthStatus, len(m.entries))
	g, gctx := errgroup.WithContext(ctx)
	for i, e := range m.entries {
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(gctx, m.cfg.HealthTimeout)
			defer cancel()

			start := m.nowFunc()
			st := e.adapter.HealthCheck(probeCtx)
			st.Provider = e.name
			if st.ResponseTime <= 0 {
				st.ResponseTime = m.nowFunc().Sub(start)
			}
			if st.CheckedAt.IsZero() {
				st.CheckedAt = m.nowFunc()
			}
			results[i] = st
			if !st.Healthy {
				zap.L().Warn("provider: health check failed",
					zap.String("provider", e.name),
					zap.String("error", st.Error),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
