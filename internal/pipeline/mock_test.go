package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/orderparse/internal/model"
	"github.com/sells-group/orderparse/internal/provider"
)

// --- Preprocessor Mock ---

type mockPreprocessor struct {
	mock.Mock
}

func (m *mockPreprocessor) Process(ctx context.Context, ref string) (*model.Document, error) {
	args := m.Called(ctx, ref)
	doc, _ := args.Get(0).(*model.Document)
	return doc, args.Error(1)
}

// --- Extractor Mock ---

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Parse(ctx context.Context, doc *model.Document, req provider.Request) (*model.ExtractionResult, error) {
	args := m.Called(ctx, doc, req)
	res, _ := args.Get(0).(*model.ExtractionResult)
	return res, args.Error(1)
}

// --- Run Recorder Mock ---

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) CreateRun(ctx context.Context, documentRef string) (*model.Run, error) {
	args := m.Called(ctx, documentRef)
	run, _ := args.Get(0).(*model.Run)
	return run, args.Error(1)
}

func (m *mockRecorder) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	return m.Called(ctx, runID, status).Error(0)
}

func (m *mockRecorder) CompleteRun(ctx context.Context, runID string, outcome *model.Outcome) error {
	return m.Called(ctx, runID, outcome).Error(0)
}

// --- Provider Adapter Mock ---

type mockAdapter struct {
	mock.Mock
	name string
}

func (m *mockAdapter) Name() string { return m.name }

func (m *mockAdapter) Extract(ctx context.Context, doc *model.Document, hints model.Hints) (*model.ExtractionResult, error) {
	args := m.Called(ctx, doc, hints)
	res, _ := args.Get(0).(*model.ExtractionResult)
	return res, args.Error(1)
}

func (m *mockAdapter) HealthCheck(ctx context.Context) provider.HealthStatus {
	return provider.HealthStatus{Provider: m.name, Healthy: true}
}
