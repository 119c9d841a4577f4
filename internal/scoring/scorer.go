package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/orderparse/internal/model"
)

// defaultProviderConfidence stands in for a field the provider did not score.
const defaultProviderConfidence = 0.5

// Input is what the scorer evaluates.
type Input struct {
	Fields model.Fields
	// ProviderConfidence is the raw per-field confidence reported by the
	// extraction provider. Nil means none was reported.
	ProviderConfidence map[string]float64
	// ValidationErrors from domain validation force manual review.
	ValidationErrors []string
}

// Scorer computes field and document confidence. It is safe for concurrent
// use.
type Scorer struct {
	cfg      Config
	critical map[string]bool
}

// New creates a Scorer. Zero-valued config fields take their defaults.
func New(cfg Config) *Scorer {
	cfg = cfg.withDefaults()
	critical := make(map[string]bool, len(cfg.CriticalFields))
	for _, f := range cfg.CriticalFields {
		critical[f] = true
	}
	return &Scorer{cfg: cfg, critical: critical}
}

// Config returns the effective configuration.
func (s *Scorer) Config() Config { return s.cfg }

// IsCritical reports whether field is configured as critical.
func (s *Scorer) IsCritical(field string) bool { return s.critical[field] }

// Score evaluates every extracted field plus any critical field the
// extraction is missing. It never fails: internal errors degrade to a
// conservative result that requires manual review.
func (s *Scorer) Score(in Input) (dc model.DocumentConfidence) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("scoring: confidence scoring failed", zap.Any("panic", r))
			dc = Fallback(fmt.Errorf("%v", r))
		}
	}()

	fields := make(map[string]model.FieldConfidence, len(in.Fields)+len(s.cfg.CriticalFields))
	for name, v := range in.Fields {
		fields[name] = s.ScoreField(name, v, in.ProviderConfidence, in.Fields)
	}
	for _, name := range s.cfg.CriticalFields {
		if _, ok := fields[name]; !ok {
			fields[name] = s.ScoreField(name, model.Missing(), in.ProviderConfidence, in.Fields)
		}
	}

	dc = model.DocumentConfidence{
		Overall:  s.overall(fields),
		Critical: s.criticalMean(fields),
		Fields:   fields,
	}
	dc.ReviewReasons = s.reviewReasons(dc)
	if len(in.ValidationErrors) > 0 {
		dc.ReviewReasons = append(dc.ReviewReasons, "Validation errors: "+strings.Join(in.ValidationErrors, "; "))
	}
	dc.ManualReviewRequired = len(dc.ReviewReasons) > 0
	return dc
}

// ScoreField combines the provider, format, business and consistency
// signals for one field.
func (s *Scorer) ScoreField(name string, v model.Value, providerConf map[string]float64, all model.Fields) model.FieldConfidence {
	provider := defaultProviderConfidence
	if c, ok := providerConf[name]; ok {
		provider = clamp01(c)
	}
	format := formatSignal(name, v)
	business := s.businessSignal(name, v)
	consistency := consistencySignal(name, v, all)

	score := clamp01(weightProvider*provider +
		weightFormat*format.score +
		weightBusiness*business.score +
		weightConsistency*consistency.score)

	return model.FieldConfidence{
		Field:            name,
		Value:            v,
		Confidence:       score,
		Reasons:          []string{format.reason, business.reason, consistency.reason},
		ValidationPassed: score >= fieldValidationPass,
	}
}

func (s *Scorer) overall(fields map[string]model.FieldConfidence) float64 {
	if len(fields) == 0 {
		return fallbackConfidence
	}
	var crit, other []float64
	for name, fc := range fields {
		if s.critical[name] {
			crit = append(crit, fc.Confidence)
		} else {
			other = append(other, fc.Confidence)
		}
	}
	return clamp01(0.7*meanOr(crit, 0.5) + 0.3*meanOr(other, 0.7))
}

func (s *Scorer) criticalMean(fields map[string]model.FieldConfidence) float64 {
	var crit []float64
	for name, fc := range fields {
		if s.critical[name] {
			crit = append(crit, fc.Confidence)
		}
	}
	return meanOr(crit, 0.5)
}

func (s *Scorer) reviewReasons(dc model.DocumentConfidence) []string {
	var reasons []string
	if dc.Critical < criticalReviewThreshold {
		reasons = append(reasons, fmt.Sprintf("Critical fields confidence too low: %.2f", dc.Critical))
	}
	if dc.Overall < overallReviewThreshold {
		reasons = append(reasons, fmt.Sprintf("Overall confidence too low: %.2f", dc.Overall))
	}

	var failed []string
	for _, name := range s.criticalInOrder(dc.Fields) {
		fc := dc.Fields[name]
		if fc.Confidence < criticalFieldFloor {
			reasons = append(reasons, fmt.Sprintf("Critical field '%s' has very low confidence: %.2f", name, fc.Confidence))
		}
		if !fc.ValidationPassed {
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		reasons = append(reasons, "Critical fields failed validation: "+strings.Join(failed, ", "))
	}
	return reasons
}

// criticalInOrder lists the critical fields present in fields, in
// configuration order.
func (s *Scorer) criticalInOrder(fields map[string]model.FieldConfidence) []string {
	out := make([]string, 0, len(s.cfg.CriticalFields))
	for _, name := range s.cfg.CriticalFields {
		if _, ok := fields[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Fallback is the conservative result reported when scoring fails.
func Fallback(err error) model.DocumentConfidence {
	return model.DocumentConfidence{
		Overall:              fallbackConfidence,
		Critical:             fallbackConfidence,
		ManualReviewRequired: true,
		ReviewReasons:        []string{fmt.Sprintf("Confidence scoring failed: %v", err)},
		Fields:               map[string]model.FieldConfidence{},
	}
}

// Summary is a compact view of a DocumentConfidence for logs and the API.
type Summary struct {
	Overall              float64               `json:"overall_confidence"`
	Level                model.ConfidenceLevel `json:"confidence_level"`
	Critical             float64               `json:"critical_fields_confidence"`
	ManualReviewRequired bool                  `json:"manual_review_required"`
	ReviewReasons        []string              `json:"review_reasons"`
	FieldCount           int                   `json:"field_count"`
	HighConfidenceFields int                   `json:"high_confidence_fields"`
	LowConfidenceFields  []string              `json:"low_confidence_fields"`
}

// Summarize condenses dc. Low-confidence field names are sorted.
func Summarize(dc model.DocumentConfidence) Summary {
	sum := Summary{
		Overall:              dc.Overall,
		Level:                dc.Level(),
		Critical:             dc.Critical,
		ManualReviewRequired: dc.ManualReviewRequired,
		ReviewReasons:        dc.ReviewReasons,
		FieldCount:           len(dc.Fields),
		LowConfidenceFields:  []string{},
	}
	for name, fc := range dc.Fields {
		switch fc.Level() {
		case model.ConfidenceHigh:
			sum.HighConfidenceFields++
		case model.ConfidenceLow, model.ConfidenceVeryLow:
			sum.LowConfidenceFields = append(sum.LowConfidenceFields, name)
		}
	}
	sort.Strings(sum.LowConfidenceFields)
	return sum
}

func meanOr(xs []float64, def float64) float64 {
	if len(xs) == 0 {
		return def
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func clamp01(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return math.Max(0, math.Min(1, f))
}
