package customer

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// FromValues builds a Record from submitted form values. Every Schema field
// must be present and inside its domain.
func FromValues(values url.Values) (Record, error) {
	raw := make(map[string]any, len(Schema))
	for _, f := range Schema {
		if v, ok := values[f.Name]; ok && len(v) > 0 {
			raw[f.Name] = v[0]
		}
	}
	return FromMap(raw)
}

// FromMap builds a Record from decoded JSON or form values. Numeric fields
// accept numbers or numeric strings.
func FromMap(raw map[string]any) (Record, error) {
	var rec Record
	for _, f := range Schema {
		v, ok := raw[f.Name]
		if !ok || v == nil {
			return Record{}, &FieldError{Field: f.Name, Reason: "missing"}
		}
		cell, err := f.parse(v)
		if err != nil {
			return Record{}, err
		}
		if err := f.check(cell); err != nil {
			return Record{}, err
		}
		rec.set(f.Name, cell)
	}
	return rec, nil
}

func (f Field) parse(v any) (Cell, error) {
	if f.Kind == Categorical {
		s, ok := v.(string)
		if !ok {
			return Cell{}, &FieldError{Field: f.Name, Value: fmt.Sprint(v), Reason: "expected a string"}
		}
		return text(strings.TrimSpace(s)), nil
	}

	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case int:
		n = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return Cell{}, &FieldError{Field: f.Name, Value: t.String(), Reason: "expected a number"}
		}
		n = parsed
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return Cell{}, &FieldError{Field: f.Name, Reason: "missing"}
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Cell{}, &FieldError{Field: f.Name, Value: t, Reason: "expected a number"}
		}
		n = parsed
	default:
		return Cell{}, &FieldError{Field: f.Name, Value: fmt.Sprint(v), Reason: "expected a number"}
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return Cell{}, &FieldError{Field: f.Name, Value: fmt.Sprint(v), Reason: "expected a finite number"}
	}
	if f.Integer && n != math.Trunc(n) {
		return Cell{}, &FieldError{Field: f.Name, Value: fmt.Sprint(v), Reason: "expected a whole number"}
	}
	return num(n), nil
}
