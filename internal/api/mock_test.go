package api

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/orderparse/internal/model"
	"github.com/sells-group/orderparse/internal/monitoring"
	"github.com/sells-group/orderparse/internal/provider"
)

type mockParser struct{ mock.Mock }

func (m *mockParser) Parse(ctx context.Context, ref string, hints model.Hints) *model.Outcome {
	args := m.Called(ctx, ref, hints)
	return args.Get(0).(*model.Outcome)
}

type mockProviders struct{ mock.Mock }

func (m *mockProviders) Status() map[string]provider.Status {
	args := m.Called()
	return args.Get(0).(map[string]provider.Status)
}

func (m *mockProviders) CheckHealth(ctx context.Context) []provider.HealthStatus {
	args := m.Called(ctx)
	return args.Get(0).([]provider.HealthStatus)
}

type mockRuns struct{ mock.Mock }

func (m *mockRuns) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	args := m.Called(ctx, runID)
	if v := args.Get(0); v != nil {
		return v.(*model.Run), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockMetrics struct{ mock.Mock }

func (m *mockMetrics) Collect(ctx context.Context, lookbackHours int) (*monitoring.MetricsSnapshot, error) {
	args := m.Called(ctx, lookbackHours)
	if v := args.Get(0); v != nil {
		return v.(*monitoring.MetricsSnapshot), args.Error(1)
	}
	return nil, args.Error(1)
}
