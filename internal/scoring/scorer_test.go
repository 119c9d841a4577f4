package scoring

import (
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/orderparse/internal/model"
)

func cleanOrder() model.Fields {
	return model.Fields{
		model.FieldClientCompanyName:  model.String("Transilvania Logistic SRL"),
		model.FieldClientVATNumber:    model.String("RO12345678"),
		model.FieldClientOfferedPrice: model.Number(1500),
		model.FieldPickupAddress:      model.String("Str. Fabricii 12, Cluj-Napoca"),
		model.FieldDeliveryAddress:    model.String("Via Roma 1, Milano"),
	}
}

func uniform(fields model.Fields, c float64) map[string]float64 {
	out := make(map[string]float64, len(fields))
	for k := range fields {
		out[k] = c
	}
	return out
}

func TestScore_CleanOrder(t *testing.T) {
	s := New(DefaultConfig())
	fields := cleanOrder()

	dc := s.Score(Input{Fields: fields, ProviderConfidence: uniform(fields, 0.95)})

	require.Len(t, dc.Fields, 5)
	assert.InDelta(t, 0.825, dc.Fields[model.FieldClientCompanyName].Confidence, 1e-9)
	assert.InDelta(t, 0.86, dc.Fields[model.FieldClientVATNumber].Confidence, 1e-9)
	assert.InDelta(t, 0.90, dc.Fields[model.FieldClientOfferedPrice].Confidence, 1e-9)
	assert.InDelta(t, 0.825, dc.Fields[model.FieldPickupAddress].Confidence, 1e-9)
	assert.InDelta(t, 0.847, dc.Critical, 1e-9)
	assert.InDelta(t, 0.8029, dc.Overall, 1e-9)
	assert.False(t, dc.ManualReviewRequired)
	assert.Empty(t, dc.ReviewReasons)

	vat := dc.Fields[model.FieldClientVATNumber]
	assert.True(t, vat.ValidationPassed)
	assert.Equal(t, []string{
		"client_vat_number: Valid Romanian VAT format",
		"client_vat_number: No specific business rules violated",
		"client_vat_number: VAT and company both present",
	}, vat.Reasons)
}

func TestScore_MissingCriticalFieldIsScored(t *testing.T) {
	s := New(DefaultConfig())
	fields := cleanOrder()
	delete(fields, model.FieldClientVATNumber)

	dc := s.Score(Input{Fields: fields, ProviderConfidence: uniform(fields, 0.95)})

	vat, ok := dc.Fields[model.FieldClientVATNumber]
	require.True(t, ok)
	assert.InDelta(t, 0.38, vat.Confidence, 1e-9)
	assert.False(t, vat.ValidationPassed)
	assert.True(t, dc.ManualReviewRequired)
	assert.Contains(t, dc.ReviewReasons, "Critical field 'client_vat_number' has very low confidence: 0.38")
	assert.Contains(t, dc.ReviewReasons, "Critical fields failed validation: client_vat_number")
}

func TestScore_LowCriticalMean(t *testing.T) {
	s := New(DefaultConfig())
	dc := s.Score(Input{})

	assert.Len(t, dc.Fields, 5)
	assert.True(t, dc.ManualReviewRequired)
	require.NotEmpty(t, dc.ReviewReasons)
	assert.True(t, strings.HasPrefix(dc.ReviewReasons[0], "Critical fields confidence too low: "))
	assert.True(t, strings.HasPrefix(dc.ReviewReasons[1], "Overall confidence too low: "))
	for _, f := range model.DefaultCriticalFields() {
		assert.Contains(t, strings.Join(dc.ReviewReasons, "\n"), "'"+f+"'")
	}
}

func TestScore_ValidationErrorsForceReview(t *testing.T) {
	s := New(DefaultConfig())
	fields := cleanOrder()

	dc := s.Score(Input{
		Fields:             fields,
		ProviderConfidence: uniform(fields, 0.95),
		ValidationErrors:   []string{"Client price seems too low for transport order"},
	})

	assert.True(t, dc.ManualReviewRequired)
	assert.Equal(t, []string{"Validation errors: Client price seems too low for transport order"}, dc.ReviewReasons)
}

func TestScore_SameCityIgnoresDiacritics(t *testing.T) {
	s := New(DefaultConfig())
	fields := cleanOrder()
	fields[model.FieldPickupCity] = model.String("Brașov")
	fields[model.FieldDeliveryCity] = model.String(" brasov ")

	dc := s.Score(Input{Fields: fields})

	assert.Contains(t, dc.Fields[model.FieldPickupCity].Reasons, "pickup_city: Same pickup and delivery city (unusual)")

	fields[model.FieldDeliveryCity] = model.String("Timișoara")
	dc = s.Score(Input{Fields: fields})
	assert.Contains(t, dc.Fields[model.FieldPickupCity].Reasons, "pickup_city: Different pickup/delivery cities")
}

func TestScore_Bounds(t *testing.T) {
	s := New(DefaultConfig())
	r := rand.New(rand.NewPCG(3, 5))
	names := []string{
		model.FieldClientCompanyName, model.FieldClientVATNumber, model.FieldClientOfferedPrice,
		model.FieldClientContactEmail, model.FieldPickupPostcode, model.FieldCargoWeightKg,
		model.FieldPickupCity, model.FieldDeliveryCity, model.FieldPickupDateStart, "notes",
	}
	values := []model.Value{
		model.String("x"), model.String("RO1234567890"), model.Number(-5), model.Number(1e9),
		model.String("ops@example.com"), model.String("400001"), model.Missing(), model.Number(0),
	}

	for i := 0; i < 300; i++ {
		fields := model.Fields{}
		conf := map[string]float64{}
		for _, n := range names {
			if r.IntN(3) == 0 {
				continue
			}
			fields[n] = values[r.IntN(len(values))]
			conf[n] = r.Float64()*4 - 2
		}
		dc := s.Score(Input{Fields: fields, ProviderConfidence: conf})
		assert.GreaterOrEqual(t, dc.Overall, 0.0)
		assert.LessOrEqual(t, dc.Overall, 1.0)
		assert.GreaterOrEqual(t, dc.Critical, 0.0)
		assert.LessOrEqual(t, dc.Critical, 1.0)
		for _, fc := range dc.Fields {
			assert.GreaterOrEqual(t, fc.Confidence, 0.0)
			assert.LessOrEqual(t, fc.Confidence, 1.0)
			if fc.Confidence < 0.5 && s.IsCritical(fc.Field) {
				assert.True(t, dc.ManualReviewRequired)
				assert.Contains(t, strings.Join(dc.ReviewReasons, "\n"), fc.Field)
			}
		}
	}
}

func TestFormatSignal(t *testing.T) {
	tests := []struct {
		field string
		value model.Value
		score float64
	}{
		{"client_contact_email", model.String("ops@example.com"), 0.95},
		{"client_contact_email", model.String("ops at example"), 0.2},
		{"client_vat_number", model.String("RO12345678"), 0.9},
		{"client_vat_number", model.String("DE123456789"), 0.85},
		{"client_vat_number", model.String("12345678"), 0.3},
		{"client_offered_price", model.Number(1500), 0.9},
		{"client_offered_price", model.Number(-10), 0.4},
		{"client_offered_price", model.Number(0), 0},
		{"client_offered_price", model.String("negotiable"), 0.2},
		{"pickup_address", model.String("Str. Fabricii 12"), 0.8},
		{"pickup_address", model.String("Cluj"), 0.5},
		{"pickup_postcode", model.String("400001"), 0.9},
		{"delivery_postcode", model.String("20121"), 0.7},
		{"delivery_postcode", model.String("SW1A 1AA"), 0.4},
		{"client_company_name", model.String("Acme"), 0.8},
		{"client_company_name", model.String("12"), 0.4},
		{"pickup_city", model.String("Arad"), 0.7},
		{"pickup_city", model.String("X"), 0.3},
		{"pickup_city", model.Missing(), 0},
	}
	for _, tt := range tests {
		t.Run(tt.field+"/"+tt.value.Text(), func(t *testing.T) {
			assert.InDelta(t, tt.score, formatSignal(tt.field, tt.value).score, 1e-9)
		})
	}
}

func TestBusinessSignal(t *testing.T) {
	s := New(Config{PriceMin: 200, PriceMax: 10000})
	tests := []struct {
		field string
		value model.Value
		score float64
	}{
		{"client_offered_price", model.Number(200), 0.9},
		{"client_offered_price", model.Number(150), 0.6},
		{"client_offered_price", model.Number(10001), 0.5},
		{"client_offered_price", model.Missing(), 0.3},
		{"pickup_date_start", model.String("2026-05-01"), 0.8},
		{"cargo_weight_kg", model.Number(24000), 0.9},
		{"cargo_ldm", model.Number(0.5), 0.5},
		{"cargo_ldm", model.String("full truck"), 0.4},
		{"special_requirements", model.String("ADR"), 0.7},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.score, s.businessSignal(tt.field, tt.value).score, 1e-9, "%s=%s", tt.field, tt.value)
	}
}

func TestFallback(t *testing.T) {
	dc := Fallback(errors.New("boom"))
	assert.Equal(t, 0.3, dc.Overall)
	assert.Equal(t, 0.3, dc.Critical)
	assert.True(t, dc.ManualReviewRequired)
	assert.Equal(t, []string{"Confidence scoring failed: boom"}, dc.ReviewReasons)
	assert.NotNil(t, dc.Fields)
}

func TestSummarize(t *testing.T) {
	dc := model.DocumentConfidence{
		Overall:  0.72,
		Critical: 0.8,
		Fields: map[string]model.FieldConfidence{
			"a": {Field: "a", Confidence: 0.95},
			"b": {Field: "b", Confidence: 0.75},
			"d": {Field: "d", Confidence: 0.3},
			"c": {Field: "c", Confidence: 0.55},
		},
		ManualReviewRequired: true,
		ReviewReasons:        []string{"r"},
	}

	sum := Summarize(dc)

	assert.Equal(t, model.ConfidenceMedium, sum.Level)
	assert.Equal(t, 4, sum.FieldCount)
	assert.Equal(t, 1, sum.HighConfidenceFields)
	assert.Equal(t, []string{"c", "d"}, sum.LowConfidenceFields)
	assert.True(t, sum.ManualReviewRequired)
}

func TestNew_Defaults(t *testing.T) {
	s := New(Config{})
	assert.Equal(t, DefaultConfig(), s.Config())
	assert.True(t, s.IsCritical(model.FieldDeliveryAddress))
	assert.False(t, s.IsCritical(model.FieldPickupCity))

	custom := New(Config{CriticalFields: []string{"client_reference_number"}})
	assert.True(t, custom.IsCritical("client_reference_number"))
	assert.False(t, custom.IsCritical(model.FieldClientVATNumber))
}
