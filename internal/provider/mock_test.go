package provider

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/orderparse/internal/model"
)

// mockAdapter is a testify mock for Adapter. Name is fixed, not mocked.
type mockAdapter struct {
	mock.Mock
	name string
}

func newMockAdapter(name string) *mockAdapter {
	return &mockAdapter{name: name}
}

func (m *mockAdapter) Name() string { return m.name }

func (m *mockAdapter) Extract(ctx context.Context, doc *model.Document, hints model.Hints) (*model.ExtractionResult, error) {
	args := m.Called(ctx, doc, hints)
	res, _ := args.Get(0).(*model.ExtractionResult)
	return res, args.Error(1)
}

func (m *mockAdapter) HealthCheck(ctx context.Context) HealthStatus {
	args := m.Called(ctx)
	return args.Get(0).(HealthStatus)
}
