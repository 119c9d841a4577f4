package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/orderparse/internal/model"
	"github.com/sells-group/orderparse/internal/provider"
	"github.com/sells-group/orderparse/internal/resilience"
)

const testRef = "orders/2026-03-01-acme.pdf"

func testDocument() *model.Document {
	return &model.Document{
		Ref:  testRef,
		Text: "Transport order 4411 from Transilvania Logistic SRL",
		Metadata: model.DocumentMetadata{
			FileName:  "2026-03-01-acme.pdf",
			MediaType: "application/pdf",
			PageCount: 1,
		},
	}
}

func cleanOrder() model.Fields {
	return model.Fields{
		model.FieldClientCompanyName:  model.String("Transilvania Logistic SRL"),
		model.FieldClientVATNumber:    model.String("RO12345678"),
		model.FieldClientOfferedPrice: model.Number(1500),
		model.FieldPickupAddress:      model.String("Str. Fabricii 12, Cluj-Napoca"),
		model.FieldDeliveryAddress:    model.String("Via Roma 1, Milano"),
	}
}

func resultOf(fields model.Fields, conf float64) *model.ExtractionResult {
	c := make(map[string]float64, len(fields))
	for k := range fields {
		c[k] = conf
	}
	return &model.ExtractionResult{Fields: fields, Confidence: c, Duration: time.Second}
}

func newAdapter(name string) *mockAdapter {
	return &mockAdapter{name: name}
}

// newManager builds a real provider manager whose breakers open after a
// single failure.
func newManager(t *testing.T, adapters ...*mockAdapter) *provider.Manager {
	t.Helper()
	cfg := provider.DefaultConfig()
	cfg.Breaker = resilience.CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour}
	regs := make([]provider.Registration, len(adapters))
	for i, a := range adapters {
		regs[i] = provider.Registration{Adapter: a}
	}
	m, err := provider.NewManager(cfg, regs...)
	require.NoError(t, err)
	return m
}

func stubPreprocessor(doc *model.Document) *mockPreprocessor {
	pre := &mockPreprocessor{}
	pre.On("Process", mock.Anything, doc.Ref).Return(doc, nil)
	return pre
}

func phaseStatuses(out *model.Outcome) map[string]model.PhaseStatus {
	m := make(map[string]model.PhaseStatus, len(out.Phases))
	for _, p := range out.Phases {
		m[p.Name] = p.Status
	}
	return m
}
