package extract

import (
	"math"
	"unicode"

	"github.com/sells-group/orderparse/internal/model"
)

// Reserved response keys that are not order fields.
const (
	keyConfidenceFlags = "confidence_flags"
	keyFieldConfidence = "field_confidence"
)

// Profile is a heuristic confidence model used when the backend does not
// report per-field confidence.
type Profile struct {
	Base    float64
	Present float64
	// FormatBonus is added when the VAT number has a plausible digit count
	// or the price parses as a number; FormatPenalty is subtracted when the
	// price does not parse. Both are ignored when CheckFormat is false.
	FormatBonus   float64
	FormatPenalty float64
	CheckFormat   bool
}

// Heuristic profiles of the built-in adapters.
var (
	OpenAIProfile = Profile{Base: 0.7, Present: 0.2, FormatBonus: 0.1, FormatPenalty: 0.2, CheckFormat: true}
	ClaudeProfile = Profile{Base: 0.75, Present: 0.15}
)

// Score returns the heuristic confidence for one present value.
func (p Profile) Score(field string, v model.Value) float64 {
	c := p.Base
	if !v.IsMissing() {
		c += p.Present
	}
	if p.CheckFormat && !v.IsMissing() {
		switch field {
		case model.FieldClientVATNumber:
			if n := countDigits(v.Text()); n >= 2 && n <= 10 {
				c += p.FormatBonus
			}
		case model.FieldClientOfferedPrice:
			if _, ok := v.Float(); ok {
				c += p.FormatBonus
			} else {
				c -= p.FormatPenalty
			}
		}
	}
	return clamp01(c)
}

// BuildResult converts a decoded, schema-valid response into an
// ExtractionResult. Missing values are dropped. Backend-reported
// field_confidence takes precedence over the profile.
func BuildResult(provider string, obj map[string]any, p Profile) *model.ExtractionResult {
	reported := reportedConfidence(obj[keyFieldConfidence])

	fields := make(model.Fields, len(obj))
	conf := make(map[string]float64, len(obj))
	for k, raw := range obj {
		if k == keyConfidenceFlags || k == keyFieldConfidence {
			continue
		}
		v := model.FromAny(raw)
		if v.IsMissing() {
			continue
		}
		fields[k] = v
		if c, ok := reported[k]; ok {
			conf[k] = c
		} else {
			conf[k] = p.Score(k, v)
		}
	}
	return &model.ExtractionResult{Fields: fields, Confidence: conf, Provider: provider}
}

func reportedConfidence(raw any) map[string]float64 {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		f, ok := v.(float64)
		if !ok || math.IsNaN(f) {
			continue
		}
		out[k] = clamp01(f)
	}
	return out
}

func countDigits(s string) int {
	var n int
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

func clamp01(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}
