package extract

import "github.com/sells-group/orderparse/internal/model"

// Parse turns raw backend text into an ExtractionResult. Every failure is an
// *InvalidResponseError.
func Parse(provider, raw string, p Profile) (*model.ExtractionResult, error) {
	obj, err := DecodeObject(raw)
	if err != nil {
		return nil, Invalid(provider, "no JSON object in response", err)
	}
	if err := ValidateAgainstSchema(obj); err != nil {
		return nil, Invalid(provider, "schema mismatch", err)
	}
	res := BuildResult(provider, obj, p)
	if len(res.Fields) == 0 {
		return nil, Invalid(provider, "no fields extracted", nil)
	}
	return res, nil
}
