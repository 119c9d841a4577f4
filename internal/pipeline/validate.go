package pipeline

import (
	"github.com/sells-group/orderparse/internal/model"
	"github.com/sells-group/orderparse/internal/scoring"
)

// Bounds of a believable client price, independent of the escalation range.
const (
	priceTooLow  = 50
	priceTooHigh = 100000
)

// Validate applies the freight-order business rules and returns one message
// per violation. The result is never nil.
func Validate(fields model.Fields, cfg scoring.Config) []string {
	errs := []string{}
	for _, name := range cfg.CriticalFields {
		if !fields.Present(name) {
			errs = append(errs, "Missing required field: "+name)
		}
	}

	if price := fields.Get(cfg.PriceField); !price.IsMissing() {
		switch f, ok := price.Float(); {
		case !ok:
			errs = append(errs, "Client price is not a valid number")
		case f <= 0:
			errs = append(errs, "Client price must be positive")
		case f < priceTooLow:
			errs = append(errs, "Client price seems too low for transport order")
		case f > priceTooHigh:
			errs = append(errs, "Client price seems too high for typical transport order")
		}
	}

	if vat := fields.Get(cfg.VATField); !vat.IsMissing() && !scoring.ValidVATFormat(vat.Text()) {
		errs = append(errs, "Invalid Romanian VAT number format")
	}
	return errs
}
