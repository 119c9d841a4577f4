package scoring

import (
	"fmt"
	"unicode"

	"github.com/sells-group/orderparse/internal/model"
)

// NeedsSecondOpinion decides from raw provider confidence whether a result
// should be checked by another provider. A missing critical field counts as
// confidence 0. Thresholds are inclusive: a value exactly on the threshold
// does not escalate. The returned reasons explain every trigger that fired.
func (s *Scorer) NeedsSecondOpinion(res *model.ExtractionResult) (bool, []string) {
	var reasons []string
	for _, name := range s.cfg.CriticalFields {
		c := res.FieldConfidence(name)
		if c < s.cfg.FieldThreshold-epsilon {
			reasons = append(reasons, fmt.Sprintf("critical field %s confidence %.2f below %.2f", name, c, s.cfg.FieldThreshold))
		}
	}
	if avg := res.AverageConfidence(); avg < s.cfg.OverallThreshold-epsilon {
		reasons = append(reasons, fmt.Sprintf("average confidence %.2f below %.2f", avg, s.cfg.OverallThreshold))
	}
	var fields model.Fields
	if res != nil {
		fields = res.Fields
	}
	reasons = append(reasons, s.DetectAnomalies(fields)...)
	return len(reasons) > 0, reasons
}

// DetectAnomalies flags implausible data: a price outside the configured
// range, two or more missing critical fields, or a malformed VAT number.
func (s *Scorer) DetectAnomalies(fields model.Fields) []string {
	var out []string

	if price, ok := fields.Get(s.cfg.PriceField).Float(); ok {
		if price < s.cfg.PriceMin || price > s.cfg.PriceMax {
			out = append(out, fmt.Sprintf("price %.2f outside [%.0f, %.0f]", price, s.cfg.PriceMin, s.cfg.PriceMax))
		}
	}

	var missing int
	for _, name := range s.cfg.CriticalFields {
		if !fields.Present(name) {
			missing++
		}
	}
	if missing >= 2 {
		out = append(out, fmt.Sprintf("%d critical fields missing", missing))
	}

	if vat := fields.Get(s.cfg.VATField); !vat.IsMissing() && !ValidVATFormat(vat.Text()) {
		out = append(out, fmt.Sprintf("malformed VAT number %q", vat.Text()))
	}
	return out
}

// ValidVATFormat reports whether a Romanian VAT/CUI identifier has a
// plausible number of digits (2 to 10), ignoring prefixes and separators.
func ValidVATFormat(vat string) bool {
	var digits int
	for _, r := range vat {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return digits >= 2 && digits <= 10
}
