// Package scoring turns extracted order fields and provider-reported
// confidence into calibrated per-field and per-document trust scores, and
// decides when a document needs a second opinion or manual review.
package scoring

import "github.com/sells-group/orderparse/internal/model"

// Signal weights of the per-field score.
const (
	weightProvider    = 0.30
	weightFormat      = 0.35
	weightBusiness    = 0.20
	weightConsistency = 0.15
)

// Document-level review thresholds.
const (
	criticalReviewThreshold = 0.7
	overallReviewThreshold  = 0.6
	criticalFieldFloor      = 0.5
	fieldValidationPass     = 0.6

	// fallbackConfidence is reported when scoring itself fails.
	fallbackConfidence = 0.3
)

// epsilon absorbs float noise when comparing means against thresholds.
const epsilon = 1e-9

// Config holds the configurable parts of scoring and escalation.
type Config struct {
	CriticalFields []string `yaml:"critical_fields" mapstructure:"critical_fields"`
	// FieldThreshold is the raw per-field confidence below which a
	// critical field triggers a second opinion.
	FieldThreshold float64 `yaml:"field_threshold" mapstructure:"field_threshold"`
	// OverallThreshold is the raw mean confidence below which a result
	// triggers a second opinion.
	OverallThreshold float64 `yaml:"overall_threshold" mapstructure:"overall_threshold"`
	// PriceMin and PriceMax bound a plausible transport price in EUR.
	PriceMin   float64 `yaml:"price_min" mapstructure:"price_min"`
	PriceMax   float64 `yaml:"price_max" mapstructure:"price_max"`
	PriceField string  `yaml:"price_field" mapstructure:"price_field"`
	VATField   string  `yaml:"vat_field" mapstructure:"vat_field"`
}

// DefaultConfig returns the stock thresholds for freight orders.
func DefaultConfig() Config {
	return Config{
		CriticalFields:   model.DefaultCriticalFields(),
		FieldThreshold:   0.85,
		OverallThreshold: 0.80,
		PriceMin:         100,
		PriceMax:         50000,
		PriceField:       model.FieldClientOfferedPrice,
		VATField:         model.FieldClientVATNumber,
	}
}

// withDefaults fills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if len(c.CriticalFields) == 0 {
		c.CriticalFields = d.CriticalFields
	}
	if c.FieldThreshold <= 0 {
		c.FieldThreshold = d.FieldThreshold
	}
	if c.OverallThreshold <= 0 {
		c.OverallThreshold = d.OverallThreshold
	}
	if c.PriceMin <= 0 && c.PriceMax <= 0 {
		c.PriceMin, c.PriceMax = d.PriceMin, d.PriceMax
	}
	if c.PriceField == "" {
		c.PriceField = d.PriceField
	}
	if c.VATField == "" {
		c.VATField = d.VATField
	}
	return c
}
