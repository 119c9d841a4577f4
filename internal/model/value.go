package model

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
)

// ValueKind discriminates the variants of a Value.
type ValueKind int

const (
	// KindMissing marks a field the provider did not find.
	KindMissing ValueKind = iota
	// KindString is free text.
	KindString
	// KindNumber is a numeric amount (prices, weights, counts).
	KindNumber
	// KindDate is a calendar date without time of day.
	KindDate
)

func (k ValueKind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	default:
		return "unknown"
	}
}

// DateLayout is the wire format for date values.
const DateLayout = "2006-01-02"

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Value is a single extracted field value. The zero Value is missing.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	date time.Time
}

// String returns a text value. Blank text is treated as missing.
func String(s string) Value {
	s = strings.TrimSpace(s)
	if s == "" {
		return Missing()
	}
	return Value{kind: KindString, str: s}
}

// Number returns a numeric value. NaN and Inf are treated as missing.
func Number(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Missing()
	}
	return Value{kind: KindNumber, num: f}
}

// Date returns a date value truncated to the day in UTC.
func Date(t time.Time) Value {
	if t.IsZero() {
		return Missing()
	}
	y, m, d := t.Date()
	return Value{kind: KindDate, date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// Missing returns the missing value.
func Missing() Value { return Value{} }

// Kind reports which variant v holds.
func (v Value) Kind() ValueKind { return v.kind }

// IsMissing reports whether v carries no value.
func (v Value) IsMissing() bool { return v.kind == KindMissing }

// Float returns the numeric interpretation of v. Text values are parsed
// leniently so a provider returning "1500", "1.500 EUR" or "1500,00 lei"
// still yields a number.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		s := strings.TrimSpace(v.str)
		for _, suffix := range []string{"EUR", "eur", "€", "RON", "lei"} {
			s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
		}
		return parseAmount(s)
	default:
		return 0, false
	}
}

var (
	dotGrouped   = regexp.MustCompile(`^-?[1-9]\d{0,2}(\.\d{3})+$`)
	commaGrouped = regexp.MustCompile(`^-?[1-9]\d{0,2}(,\d{3})+$`)
	separators   = strings.NewReplacer(".", "", ",", "")
)

// parseAmount reads an amount as written on European and English orders.
// Groups of exactly three digits after a single kind of separator are
// thousands ("1.500", "1,500", "1 500"). With both separators present the
// last one is the decimal point ("1.500,50", "1,500.50"). A lone comma
// otherwise is a decimal comma ("2400,75").
func parseAmount(s string) (float64, bool) {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	switch {
	case dotGrouped.MatchString(s), commaGrouped.MatchString(s):
		s = separators.Replace(s)
	case strings.Contains(s, ".") && strings.Contains(s, ","):
		dec := max(strings.LastIndex(s, "."), strings.LastIndex(s, ","))
		s = separators.Replace(s[:dec]) + "." + s[dec+1:]
	default:
		s = strings.ReplaceAll(s, ",", ".")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Time returns the date held by v.
func (v Value) Time() (time.Time, bool) {
	if v.kind != KindDate {
		return time.Time{}, false
	}
	return v.date, true
}

// Text renders v as display text; missing values render as "".
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindDate:
		return v.date.Format(DateLayout)
	default:
		return ""
	}
}

// String implements fmt.Stringer.
func (v Value) String() string {
	if v.kind == KindMissing {
		return "<missing>"
	}
	return v.Text()
}

// Equal reports whether two values hold the same variant and content.
// Text comparison ignores case and surrounding whitespace.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindMissing:
		return true
	case KindString:
		return strings.EqualFold(v.str, o.str)
	case KindNumber:
		return v.num == o.num
	case KindDate:
		return v.date.Equal(o.date)
	default:
		return false
	}
}

// FromAny converts a decoded JSON value into a Value. Nested objects and
// arrays are not field values and convert to missing.
func FromAny(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Missing()
	case Value:
		return t
	case string:
		s := strings.TrimSpace(t)
		if strings.EqualFold(s, "null") || strings.EqualFold(s, "n/a") {
			return Missing()
		}
		if isoDate.MatchString(s) {
			if d, err := time.Parse(DateLayout, s); err == nil {
				return Date(d)
			}
		}
		return String(s)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return Number(f)
		}
		return String(t.String())
	case bool:
		return String(strconv.FormatBool(t))
	case time.Time:
		return Date(t)
	default:
		return Missing()
	}
}

// MarshalJSON encodes missing as null, dates as YYYY-MM-DD.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindDate:
		return json.Marshal(v.date.Format(DateLayout))
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes any scalar JSON value.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "model: decode value")
	}
	*v = FromAny(raw)
	return nil
}

// Fields maps business-defined field names to extracted values.
type Fields map[string]Value

// Get returns the value for name, or missing.
func (f Fields) Get(name string) Value {
	if f == nil {
		return Missing()
	}
	return f[name]
}

// Present reports whether name holds a non-missing value.
func (f Fields) Present(name string) bool {
	return !f.Get(name).IsMissing()
}

// Clone returns a shallow copy.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// FieldsFromMap converts a decoded JSON object into Fields.
func FieldsFromMap(m map[string]any) Fields {
	out := make(Fields, len(m))
	for k, raw := range m {
		switch raw.(type) {
		case map[string]any, []any:
			continue
		}
		out[k] = FromAny(raw)
	}
	return out
}
