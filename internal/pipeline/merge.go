package pipeline

import (
	"fmt"
	"sort"

	"github.com/sells-group/orderparse/internal/model"
)

// Merge combines a primary and a secondary extraction field by field. Each
// field keeps the value whose raw confidence is higher; ties keep the
// primary. A critical field on which the two providers disagree is still
// picked by confidence and also reported as a warning. Neither input is
// modified.
func Merge(primary, secondary *model.ExtractionResult, isCritical func(string) bool) (*model.ExtractionResult, []string) {
	names := make(map[string]struct{}, len(primary.Fields)+len(secondary.Fields))
	for name := range primary.Fields {
		names[name] = struct{}{}
	}
	for name := range secondary.Fields {
		names[name] = struct{}{}
	}
	ordered := make([]string, 0, len(names))
	for name := range names {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)

	merged := &model.ExtractionResult{
		Fields:     make(model.Fields, len(ordered)),
		Confidence: make(map[string]float64, len(ordered)),
		Provider:   primary.Provider + "+" + secondary.Provider,
		Duration:   primary.Duration + secondary.Duration,
		Usage:      primary.Usage,
	}
	merged.Usage.Add(secondary.Usage)

	var warnings []string
	for _, name := range ordered {
		pv, sv := primary.Fields.Get(name), secondary.Fields.Get(name)
		pc, sc := primary.FieldConfidence(name), secondary.FieldConfidence(name)

		if isCritical != nil && isCritical(name) && !pv.Equal(sv) {
			warnings = append(warnings, fmt.Sprintf("critical field %s differs: %s=%q, %s=%q",
				name, primary.Provider, pv.Text(), secondary.Provider, sv.Text()))
		}

		v, c := pv, pc
		if sc > pc || pv.IsMissing() {
			v, c = sv, sc
		}
		// A winner without a value defers to the other provider's value.
		if v.IsMissing() {
			v, c = pv, pc
		}
		if v.IsMissing() {
			continue
		}
		merged.Fields[name] = v
		merged.Confidence[name] = c
	}
	return merged, warnings
}
