package backend

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// TimestampLayout is the fixed-width ISO-8601 layout used for every stored
// timestamp so lexical order equals chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// FormatTimestamp renders t in UTC with TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Row is a single record as exchanged with the backend: column name to value.
type Row map[string]any

// Clone returns a deep copy of the row, including nested maps and slices.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Row:
		return t.Clone()
	case map[string]any:
		return map[string]any(Row(t).Clone())
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Merge copies every field of patch into r, overwriting existing values.
func (r Row) Merge(patch Row) {
	for k, v := range patch {
		r[k] = cloneValue(v)
	}
}

// String returns the field as a string, or "" when absent or not a string.
func (r Row) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Int returns the field as an integer when it holds an integral number.
func (r Row) Int(key string) (int64, bool) {
	return toInt(r[key])
}

// Has reports whether the field is present and non-nil.
func (r Row) Has(key string) bool {
	v, ok := r[key]
	return ok && v != nil
}

// Decode copies the row into a typed entity using its json tags.
func (r Row) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("build row decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(normalizeNumbers(r))); err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	return nil
}

// NormalizeNumbers converts json.Number and machine-sized integers into
// int64 or float64.
func NormalizeNumbers(r Row) Row {
	return normalizeNumbers(r)
}

func normalizeNumbers(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		return map[string]any(normalizeNumbers(t))
	case Row:
		return normalizeNumbers(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}

func toInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		if t == math.Trunc(t) {
			return int64(t), true
		}
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int, int32, int64, json.Number:
		if i, ok := toInt(t); ok {
			return float64(i), true
		}
		if n, ok := t.(json.Number); ok {
			f, err := n.Float64()
			return f, err == nil
		}
	case float32:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

// ValuesEqual compares two field values, treating all numeric kinds alike.
// A string holding a number or boolean equals that value, as it would after
// a Postgres text coercion.
func ValuesEqual(a, b any) bool {
	if _, ok := a.(string); ok {
		if _, ok := b.(string); !ok {
			a, b = b, a
		}
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		if bs, ok := b.(string); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(bs), 64)
			return err == nil && f == af
		}
		return false
	}
	switch at := a.(type) {
	case nil:
		return b == nil
	case string:
		bs, ok := b.(string)
		return ok && at == bs
	case bool:
		switch bt := b.(type) {
		case bool:
			return at == bt
		case string:
			v, err := strconv.ParseBool(bt)
			return err == nil && v == at
		}
		return false
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// CompareValues orders two field values. Missing values sort before present
// ones; numbers compare numerically, everything else lexically.
func CompareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ab == bb:
				return 0
			case !ab:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
