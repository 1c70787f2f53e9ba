// Package features turns raw device readings into the fixed-shape numeric
// vector the classifier expects.
package features

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gaswatch/internal/types"
)

// FeatureCoercionError reports a reading field whose value cannot be turned
// into the numeric type the classifier requires.
type FeatureCoercionError struct {
	Field string
	Value any
	Err   error
}

func (e *FeatureCoercionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("feature %s: cannot coerce %v (%T): %v", e.Field, e.Value, e.Value, e.Err)
	}
	return fmt.Sprintf("feature %s: cannot coerce %v (%T)", e.Field, e.Value, e.Value)
}

func (e *FeatureCoercionError) Unwrap() error { return e.Err }

// AppError converts the coercion failure into the API error taxonomy.
func (e *FeatureCoercionError) AppError() *types.AppError {
	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationFeatureCoercion,
		fmt.Sprintf("sensor field %s has a non-numeric value", e.Field),
		e,
		map[string]any{"field": e.Field},
	)
}

// Extract builds a FeatureVector from a reading. Missing fields (and JSON
// null) become zero. Fields not in the canonical feature set are ignored.
// The reading is not modified.
func Extract(r types.Reading) (types.FeatureVector, error) {
	var (
		fv  types.FeatureVector
		err error
	)

	floats := []struct {
		field string
		dst   *float64
	}{
		{types.FieldMQ2ADC, &fv.MQ2ADC},
		{types.FieldMQ2PPM, &fv.MQ2PPM},
		{types.FieldMQ6ADC, &fv.MQ6ADC},
		{types.FieldMQ6PPM, &fv.MQ6PPM},
		{types.FieldSuhu, &fv.Suhu},
		{types.FieldKelembapan, &fv.Kelembapan},
	}
	for _, f := range floats {
		if *f.dst, err = toFloat(f.field, r[f.field]); err != nil {
			return types.FeatureVector{}, err
		}
	}

	if fv.Flame, err = toInt(types.FieldFlame, r[types.FieldFlame]); err != nil {
		return types.FeatureVector{}, err
	}
	return fv, nil
}

func toFloat(field string, v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, &FeatureCoercionError{Field: field, Value: v, Err: err}
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, &FeatureCoercionError{Field: field, Value: v, Err: err}
		}
		return f, nil
	default:
		return 0, &FeatureCoercionError{Field: field, Value: v}
	}
}

func toInt(field string, v any) (int, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, &FeatureCoercionError{Field: field, Value: v, Err: err}
		}
		return i, nil
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, &FeatureCoercionError{Field: field, Value: v, Err: err}
		}
		return truncate(field, v, f)
	default:
		f, err := toFloat(field, v)
		if err != nil {
			return 0, err
		}
		return truncate(field, v, f)
	}
}

func truncate(field string, raw any, f float64) (int, error) {
	// float64(math.MaxInt64) rounds up to 2^63, hence >=.
	if math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, &FeatureCoercionError{Field: field, Value: raw}
	}
	return int(math.Trunc(f)), nil
}
