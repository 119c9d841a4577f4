package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// DecodeObject parses a JSON object out of model output. Plain JSON is tried
// first, then a fenced ```json block, then the span from the first '{' to
// the last '}'.
func DecodeObject(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, eris.New("empty response")
	}

	candidates := []string{raw}
	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, m[1])
	}
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		candidates = append(candidates, raw[start:end+1])
	}

	var lastErr error
	for _, c := range candidates {
		var obj map[string]any
		err := json.Unmarshal([]byte(c), &obj)
		if err == nil && obj != nil {
			return obj, nil
		}
		if err == nil {
			err = eris.New("response is not a JSON object")
		}
		lastErr = err
	}
	return nil, eris.Wrap(lastErr, "decode json object")
}
