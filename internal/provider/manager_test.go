package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/orderparse/internal/model"
	"github.com/sells-group/orderparse/internal/resilience"
)

var testDoc = &model.Document{Ref: "order-1.pdf", Text: "Transport order"}

func okResult(conf float64) *model.ExtractionResult {
	return &model.ExtractionResult{
		Fields:     model.Fields{"client_company_name": model.String("Acme SRL")},
		Confidence: map[string]float64{"client_company_name": conf},
		Duration:   time.Second,
	}
}

func openaiReg(a Adapter) Registration {
	return Registration{Adapter: a, Seed: Seed{CostPerRequest: 0.08, AvgResponseTime: 30 * time.Second, AvgQuality: 0.9}}
}

func claudeReg(a Adapter) Registration {
	return Registration{Adapter: a, Seed: Seed{CostPerRequest: 0.06, AvgResponseTime: 25 * time.Second, AvgQuality: 0.85}}
}

func newTestManager(t *testing.T, cfg Config, regs ...Registration) *Manager {
	t.Helper()
	m, err := NewManager(cfg, regs...)
	require.NoError(t, err)
	return m
}

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager(DefaultConfig(), Registration{})
	assert.Error(t, err)

	_, err = NewManager(DefaultConfig(), openaiReg(newMockAdapter("")))
	assert.Error(t, err)

	_, err = NewManager(DefaultConfig(), openaiReg(newMockAdapter("x")), claudeReg(newMockAdapter("x")))
	assert.Error(t, err)

	m, err := NewManager(Config{}, openaiReg(newMockAdapter("openai")), claudeReg(newMockAdapter("claude")))
	require.NoError(t, err)
	assert.Equal(t, []string{"openai", "claude"}, m.Providers())
	assert.Equal(t, 3, m.cfg.MaxAttempts)
	assert.Equal(t, 120*time.Second, m.cfg.CallTimeout)
}

func TestManager_Parse_BalancedPicksBestScore(t *testing.T) {
	openai := newMockAdapter("openai")
	claude := newMockAdapter("claude")
	claude.On("Extract", mock.Anything, testDoc, mock.Anything).Return(okResult(0.9), nil).Once()

	m := newTestManager(t, DefaultConfig(), openaiReg(openai), claudeReg(claude))
	res, err := m.Parse(context.Background(), testDoc, Request{})
	require.NoError(t, err)

	assert.Equal(t, "claude", res.Provider)
	openai.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything, mock.Anything)
	claude.AssertExpectations(t)

	st := m.Status()["claude"]
	assert.Equal(t, int64(1), st.Metrics.TotalRequests)
	assert.InDelta(t, 0.9*0.85+0.1*0.9, st.Metrics.AvgQuality, 1e-9)
}

func TestManager_Parse_QualityPriority(t *testing.T) {
	openai := newMockAdapter("openai")
	claude := newMockAdapter("claude")
	openai.On("Extract", mock.Anything, testDoc, mock.Anything).Return(okResult(0.9), nil).Once()

	m := newTestManager(t, DefaultConfig(), openaiReg(openai), claudeReg(claude))
	res, err := m.Parse(context.Background(), testDoc, Request{Priority: PriorityQuality})
	require.NoError(t, err)
	assert.Equal(t, "openai", res.Provider)
}

func TestManager_Parse_ExclusionRespected(t *testing.T) {
	openai := newMockAdapter("openai")
	claude := newMockAdapter("claude")
	openai.On("Extract", mock.Anything, testDoc, mock.Anything).Return(okResult(0.9), nil).Once()

	m := newTestManager(t, DefaultConfig(), openaiReg(openai), claudeReg(claude))
	res, err := m.Parse(context.Background(), testDoc, Request{Exclude: []string{"claude"}})
	require.NoError(t, err)
	assert.Equal(t, "openai", res.Provider)
	claude.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything, mock.Anything)
}

func TestManager_Parse_FailsOverToNextProvider(t *testing.T) {
	openai := newMockAdapter("openai")
	claude := newMockAdapter("claude")
	claude.On("Extract", mock.Anything, testDoc, mock.Anything).
		Return(nil, resilience.NewTransientError(errors.New("overloaded"), 529)).Once()
	openai.On("Extract", mock.Anything, testDoc, mock.Anything).Return(okResult(0.8), nil).Once()

	m := newTestManager(t, DefaultConfig(), openaiReg(openai), claudeReg(claude))
	res, err := m.Parse(context.Background(), testDoc, Request{})
	require.NoError(t, err)
	assert.Equal(t, "openai", res.Provider)

	st := m.Status()
	assert.InDelta(t, 0.9, st["claude"].Metrics.SuccessRate, 1e-12)
	assert.False(t, st["claude"].Metrics.LastFailure.IsZero())
	assert.Equal(t, 1, st["claude"].ConsecutiveFailures)
	assert.InDelta(t, 1.0, st["openai"].Metrics.SuccessRate, 1e-12)
}

func TestManager_Parse_AllProvidersFailed(t *testing.T) {
	openai := newMockAdapter("openai")
	claude := newMockAdapter("claude")
	last := errors.New("openai down")
	claude.On("Extract", mock.Anything, testDoc, mock.Anything).Return(nil, errors.New("claude down")).Once()
	openai.On("Extract", mock.Anything, testDoc, mock.Anything).Return(nil, last).Once()

	m := newTestManager(t, DefaultConfig(), openaiReg(openai), claudeReg(claude))
	_, err := m.Parse(context.Background(), testDoc, Request{})

	var failed *AllProvidersFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, 2, failed.Attempts)
	assert.Equal(t, []string{"claude", "openai"}, failed.Tried)
	assert.Contains(t, failed.Error(), "openai down")
	assert.ErrorIs(t, err, last)
}

func TestManager_Parse_RetryCeiling(t *testing.T) {
	var regs []Registration
	var adapters []*mockAdapter
	for _, name := range []string{"a", "b", "c", "d"} {
		a := newMockAdapter(name)
		a.On("Extract", mock.Anything, testDoc, mock.Anything).Return(nil, errors.New(name+" failed")).Maybe()
		adapters = append(adapters, a)
		regs = append(regs, Registration{Adapter: a, Seed: Seed{AvgQuality: 0.5}})
	}

	m := newTestManager(t, DefaultConfig(), regs...)
	_, err := m.Parse(context.Background(), testDoc, Request{})

	var failed *AllProvidersFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, 3, failed.Attempts)
	adapters[3].AssertNotCalled(t, "Extract", mock.Anything, mock.Anything, mock.Anything)
}

func TestManager_Parse_NoHealthyProviders(t *testing.T) {
	t.Run("no providers", func(t *testing.T) {
		m := newTestManager(t, DefaultConfig())
		_, err := m.Parse(context.Background(), testDoc, Request{})
		assert.ErrorIs(t, err, ErrNoHealthyProviders)
	})

	t.Run("all excluded", func(t *testing.T) {
		openai := newMockAdapter("openai")
		m := newTestManager(t, DefaultConfig(), openaiReg(openai))
		_, err := m.Parse(context.Background(), testDoc, Request{Exclude: []string{"openai"}})
		assert.ErrorIs(t, err, ErrNoHealthyProviders)
		openai.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("all breakers open", func(t *testing.T) {
		openai := newMockAdapter("openai")
		claude := newMockAdapter("claude")
		openai.On("Extract", mock.Anything, testDoc, mock.Anything).Return(nil, errors.New("down")).Once()
		claude.On("Extract", mock.Anything, testDoc, mock.Anything).Return(nil, errors.New("down")).Once()

		cfg := DefaultConfig()
		cfg.Breaker.FailureThreshold = 1
		m := newTestManager(t, cfg, openaiReg(openai), claudeReg(claude))

		_, err := m.Parse(context.Background(), testDoc, Request{})
		var failed *AllProvidersFailedError
		require.ErrorAs(t, err, &failed)

		_, err = m.Parse(context.Background(), testDoc, Request{})
		assert.ErrorIs(t, err, ErrNoHealthyProviders)
		openai.AssertNumberOfCalls(t, "Extract", 1)
		claude.AssertNumberOfCalls(t, "Extract", 1)

		for _, st := range m.Status() {
			assert.Equal(t, "open", st.BreakerState)
			assert.False(t, st.Eligible)
		}
	})

	t.Run("low success rate", func(t *testing.T) {
		openai := newMockAdapter("openai")
		m := newTestManager(t, DefaultConfig(), openaiReg(openai))
		m.entries[0].metrics.m.SuccessRate = 0.49
		_, err := m.Parse(context.Background(), testDoc, Request{})
		assert.ErrorIs(t, err, ErrNoHealthyProviders)
	})
}

func TestManager_Parse_HalfOpenTrial(t *testing.T) {
	openai := newMockAdapter("openai")
	openai.On("Extract", mock.Anything, testDoc, mock.Anything).Return(nil, errors.New("down")).Once()
	openai.On("Extract", mock.Anything, testDoc, mock.Anything).Return(okResult(0.9), nil).Once()

	cfg := DefaultConfig()
	cfg.Breaker = resilience.CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: 20 * time.Millisecond}
	m := newTestManager(t, cfg, openaiReg(openai))

	_, err := m.Parse(context.Background(), testDoc, Request{})
	require.Error(t, err)
	assert.Equal(t, "open", m.Status()["openai"].BreakerState)

	require.Eventually(t, func() bool {
		return m.Status()["openai"].BreakerState == "half-open"
	}, time.Second, 5*time.Millisecond)

	res, err := m.Parse(context.Background(), testDoc, Request{})
	require.NoError(t, err)
	assert.Equal(t, "openai", res.Provider)
	assert.Equal(t, "closed", m.Status()["openai"].BreakerState)
}

func TestManager_Parse_RejectionDuringTrialSkipsResponseTime(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	openai := newMockAdapter("openai")
	openai.On("Extract", mock.Anything, testDoc, mock.Anything).Return(nil, errors.New("down")).Once()
	openai.On("Extract", mock.Anything, testDoc, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(okResult(0.9), nil).Once()

	cfg := DefaultConfig()
	cfg.Breaker = resilience.CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: 20 * time.Millisecond}
	m := newTestManager(t, cfg, openaiReg(openai))

	_, err := m.Parse(context.Background(), testDoc, Request{})
	require.Error(t, err)
	require.Eventually(t, func() bool {
		return m.Status()["openai"].BreakerState == "half-open"
	}, time.Second, 5*time.Millisecond)

	trialDone := make(chan error, 1)
	go func() {
		_, err := m.Parse(context.Background(), testDoc, Request{})
		trialDone <- err
	}()
	<-started
	before := m.Status()["openai"].Metrics

	_, err = m.Parse(context.Background(), testDoc, Request{})
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)

	after := m.Status()["openai"].Metrics
	assert.Equal(t, before.TotalRequests+1, after.TotalRequests)
	assert.Less(t, after.SuccessRate, before.SuccessRate)
	assert.Equal(t, before.AvgResponseTime, after.AvgResponseTime)

	close(release)
	require.NoError(t, <-trialDone)
	openai.AssertNumberOfCalls(t, "Extract", 2)
}

func TestManager_Parse_CallTimeoutIsFailure(t *testing.T) {
	openai := newMockAdapter("openai")
	openai.On("Extract", mock.Anything, testDoc, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded).Once()

	cfg := DefaultConfig()
	cfg.CallTimeout = 10 * time.Millisecond
	cfg.Breaker.FailureThreshold = 1
	m := newTestManager(t, cfg, openaiReg(openai))

	_, err := m.Parse(context.Background(), testDoc, Request{})
	var failed *AllProvidersFailedError
	require.ErrorAs(t, err, &failed)

	st := m.Status()["openai"]
	assert.Equal(t, int64(1), st.Metrics.TotalRequests)
	assert.InDelta(t, 0.9, st.Metrics.SuccessRate, 1e-12)
	assert.Equal(t, "open", st.BreakerState)
}

func TestManager_Parse_CallerCancellationLeavesStateUntouched(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	openai := newMockAdapter("openai")
	openai.On("Extract", mock.Anything, testDoc, mock.Anything).
		Run(func(args mock.Arguments) {
			cancel()
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.Canceled).Once()

	cfg := DefaultConfig()
	cfg.Breaker.FailureThreshold = 1
	m := newTestManager(t, cfg, openaiReg(openai))

	_, err := m.Parse(ctx, testDoc, Request{})
	assert.ErrorIs(t, err, context.Canceled)

	st := m.Status()["openai"]
	assert.Equal(t, int64(0), st.Metrics.TotalRequests)
	assert.Equal(t, 1.0, st.Metrics.SuccessRate)
	assert.Equal(t, "closed", st.BreakerState)
	assert.Equal(t, 0, st.ConsecutiveFailures)
}

func TestManager_Parse_NilResultIsFailure(t *testing.T) {
	openai := newMockAdapter("openai")
	openai.On("Extract", mock.Anything, testDoc, mock.Anything).Return(nil, nil).Once()

	m := newTestManager(t, DefaultConfig(), openaiReg(openai))
	_, err := m.Parse(context.Background(), testDoc, Request{})
	var failed *AllProvidersFailedError
	assert.ErrorAs(t, err, &failed)
}

func TestManager_Parse_RateLimitedProvider(t *testing.T) {
	openai := newMockAdapter("openai")
	openai.On("Extract", mock.Anything, testDoc, mock.Anything).
		Return(nil, resilience.NewTransientError(errors.New("slow down"), 429)).Once()

	reg := openaiReg(openai)
	reg.RequestsPerSecond = 4
	m := newTestManager(t, DefaultConfig(), reg)

	_, err := m.Parse(context.Background(), testDoc, Request{})
	require.Error(t, err)
	assert.InDelta(t, 2.0, m.Status()["openai"].RequestsPerSecond, 1e-9)
}

func TestManager_CheckHealth(t *testing.T) {
	openai := newMockAdapter("openai")
	claude := newMockAdapter("claude")
	openai.On("HealthCheck", mock.Anything).Return(HealthStatus{Healthy: true, ResponseTime: 40 * time.Millisecond})
	claude.On("HealthCheck", mock.Anything).Return(HealthStatus{Healthy: false, Error: "status 401"})

	m := newTestManager(t, DefaultConfig(), openaiReg(openai), claudeReg(claude))
	results := m.CheckHealth(context.Background())

	require.Len(t, results, 2)
	assert.Equal(t, "openai", results[0].Provider)
	assert.True(t, results[0].Healthy)
	assert.Equal(t, 40*time.Millisecond, results[0].ResponseTime)
	assert.Equal(t, "claude", results[1].Provider)
	assert.False(t, results[1].Healthy)
	assert.False(t, results[1].CheckedAt.IsZero())

	// Probes never touch routing state.
	assert.Equal(t, int64(0), m.Status()["claude"].Metrics.TotalRequests)
}

func TestManager_CheckHealth_Timeout(t *testing.T) {
	openai := newMockAdapter("openai")
	openai.On("HealthCheck", mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
		}).
		Return(HealthStatus{Healthy: true})

	cfg := DefaultConfig()
	cfg.HealthTimeout = time.Second
	m := newTestManager(t, cfg, openaiReg(openai))
	results := m.CheckHealth(context.Background())
	require.Len(t, results, 1)
	openai.AssertExpectations(t)
}

func TestAllProvidersFailedError(t *testing.T) {
	inner := errors.New("boom")
	err := &AllProvidersFailedError{Attempts: 2, Tried: []string{"a", "b"}, Last: inner}
	assert.Equal(t, "all providers failed after 2 attempts (a, b): boom", err.Error())
	assert.ErrorIs(t, err, inner)
}
