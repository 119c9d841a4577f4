package model

// ConfidenceLevel buckets a confidence score for routing and display.
type ConfidenceLevel string

const (
	ConfidenceHigh    ConfidenceLevel = "high"     // >= 0.9, auto-process
	ConfidenceMedium  ConfidenceLevel = "medium"   // >= 0.7, auto-process with notification
	ConfidenceLow     ConfidenceLevel = "low"      // >= 0.5, review recommended
	ConfidenceVeryLow ConfidenceLevel = "very_low" // < 0.5, review required
)

// LevelFor classifies a score.
func LevelFor(score float64) ConfidenceLevel {
	switch {
	case score >= 0.9:
		return ConfidenceHigh
	case score >= 0.7:
		return ConfidenceMedium
	case score >= 0.5:
		return ConfidenceLow
	default:
		return ConfidenceVeryLow
	}
}

// FieldConfidence is the calibrated trust in one extracted field.
type FieldConfidence struct {
	Field            string   `json:"field"`
	Value            Value    `json:"value"`
	Confidence       float64  `json:"confidence"`
	Reasons          []string `json:"reasons"`
	ValidationPassed bool     `json:"validation_passed"`
}

// Level classifies the field confidence.
func (f FieldConfidence) Level() ConfidenceLevel { return LevelFor(f.Confidence) }

// DocumentConfidence is the aggregate trust decision for one document.
type DocumentConfidence struct {
	Overall              float64                    `json:"overall_confidence"`
	Critical             float64                    `json:"critical_fields_confidence"`
	ManualReviewRequired bool                       `json:"manual_review_required"`
	ReviewReasons        []string                   `json:"review_reasons"`
	Fields               map[string]FieldConfidence `json:"field_confidences"`
}

// Level classifies the overall confidence.
func (d DocumentConfidence) Level() ConfidenceLevel { return LevelFor(d.Overall) }

// Scores flattens per-field calibrated confidences.
func (d DocumentConfidence) Scores() map[string]float64 {
	out := make(map[string]float64, len(d.Fields))
	for name, fc := range d.Fields {
		out[name] = fc.Confidence
	}
	return out
}
