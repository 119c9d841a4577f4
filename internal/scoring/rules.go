package scoring

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sells-group/orderparse/internal/model"
)

var (
	emailPattern       = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	romanianVATPattern = regexp.MustCompile(`^RO\d{8,10}$`)
	euVATPattern       = regexp.MustCompile(`^[A-Z]{2}\d{8,12}$`)
	romanianPostcode   = regexp.MustCompile(`^\d{6}$`)
)

// cargo bounds shared by weight (kg) and loading metres.
const (
	cargoMin = 1
	cargoMax = 25000
)

type signal struct {
	score  float64
	reason string
}

func sig(score float64, field, format string, args ...any) signal {
	return signal{score: score, reason: field + ": " + fmt.Sprintf(format, args...)}
}

// empty reports whether v carries no usable content. Numeric zero counts as
// empty for format purposes.
func empty(v model.Value) bool {
	if v.IsMissing() {
		return true
	}
	if f, ok := v.Float(); ok && v.Kind() == model.KindNumber && f == 0 {
		return true
	}
	return false
}

// formatSignal checks the shape of a value based on its field name.
func formatSignal(field string, v model.Value) signal {
	if empty(v) {
		return sig(0, field, "Empty value")
	}
	text := v.Text()
	name := strings.ToLower(field)

	switch {
	case strings.Contains(name, "email"):
		if emailPattern.MatchString(text) {
			return sig(0.95, field, "Valid email format")
		}
		return sig(0.2, field, "Invalid email format")

	case strings.Contains(name, "vat"):
		switch {
		case romanianVATPattern.MatchString(text):
			return sig(0.9, field, "Valid Romanian VAT format")
		case euVATPattern.MatchString(text):
			return sig(0.85, field, "Valid EU VAT format")
		default:
			return sig(0.3, field, "Invalid VAT format")
		}

	case strings.Contains(name, "price") || strings.Contains(name, "cost"):
		f, ok := v.Float()
		switch {
		case !ok:
			return sig(0.2, field, "Invalid price format")
		case f > 0:
			return sig(0.9, field, "Valid price format")
		default:
			return sig(0.4, field, "Price must be positive")
		}

	case strings.Contains(name, "address"):
		if utf8.RuneCountInString(text) >= 10 && strings.IndexFunc(text, unicode.IsDigit) >= 0 {
			return sig(0.8, field, "Reasonable address format")
		}
		return sig(0.5, field, "Questionable address format")

	case strings.Contains(name, "postcode"):
		switch {
		case romanianPostcode.MatchString(text):
			return sig(0.9, field, "Valid Romanian postcode")
		case len(text) >= 4 && allDigits(text):
			return sig(0.7, field, "Valid international postcode format")
		default:
			return sig(0.4, field, "Invalid postcode format")
		}

	case strings.Contains(name, "company"):
		if utf8.RuneCountInString(text) >= 3 && strings.IndexFunc(text, unicode.IsLetter) >= 0 {
			return sig(0.8, field, "Reasonable company name")
		}
		return sig(0.4, field, "Questionable company name")
	}

	if utf8.RuneCountInString(text) >= 2 {
		return sig(0.7, field, "Non-empty value")
	}
	return sig(0.3, field, "Very short value")
}

// businessSignal checks domain plausibility.
func (s *Scorer) businessSignal(field string, v model.Value) signal {
	name := strings.ToLower(field)
	switch {
	case strings.Contains(name, "price"):
		f, ok := v.Float()
		switch {
		case !ok:
			return sig(0.3, field, "Cannot validate price range")
		case f >= s.cfg.PriceMin && f <= s.cfg.PriceMax:
			return sig(0.9, field, "Price in reasonable range")
		case f < s.cfg.PriceMin:
			return sig(0.6, field, "Price seems low for transport")
		default:
			return sig(0.5, field, "Price seems high for transport")
		}

	case strings.Contains(name, "date"):
		return sig(0.8, field, "Date format acceptable")

	case field == model.FieldCargoWeightKg || field == model.FieldCargoLDM:
		f, ok := v.Float()
		switch {
		case !ok:
			return sig(0.4, field, "Invalid numeric value")
		case f >= cargoMin && f <= cargoMax:
			return sig(0.9, field, "Value in reasonable range")
		default:
			return sig(0.5, field, "Value outside typical range")
		}
	}
	return sig(0.7, field, "No specific business rules violated")
}

// consistencySignal checks a field against the rest of the document.
func consistencySignal(field string, v model.Value, all model.Fields) signal {
	switch field {
	case model.FieldPickupCity:
		if other, ok := all[model.FieldDeliveryCity]; ok && !other.IsMissing() {
			if fold(v.Text()) == fold(other.Text()) {
				return sig(0.6, field, "Same pickup and delivery city (unusual)")
			}
			return sig(0.9, field, "Different pickup/delivery cities")
		}

	case model.FieldClientVATNumber:
		if company, ok := all[model.FieldClientCompanyName]; ok && !company.IsMissing() {
			if strings.HasPrefix(strings.TrimSpace(v.Text()), "RO") {
				return sig(0.8, field, "VAT and company both present")
			}
			return sig(0.6, field, "VAT/company consistency unclear")
		}
	}
	return sig(0.8, field, "No consistency issues detected")
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
