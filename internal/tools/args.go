package tools

import (
	"encoding/json"
	"strings"
)

// Argument accessors. Tool-call arguments are decoded with json.Number so
// integer/number schema checks stay faithful; these helpers coerce the
// resulting values back into the Go types tool implementations want.

// StringArg returns args[key] as a string, or fallback when absent or not a
// string.
func StringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return fallback
}

// IntArg returns args[key] as an int, coercing json.Number and float
// values. Returns fallback when absent or non-numeric.
func IntArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
		if f, err := v.Float64(); err == nil {
			return int(f)
		}
	}
	return fallback
}

// FloatArg returns args[key] as a float64, coercing integer and json.Number
// values. Returns fallback when absent or non-numeric.
func FloatArg(args map[string]any, key string, fallback float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return fallback
}

// BoolArg returns args[key] as a bool, or fallback when absent or not a
// bool.
func BoolArg(args map[string]any, key string, fallback bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return fallback
}

// DecodeArguments parses a JSON argument object keeping numbers as
// json.Number, so schema validation can tell integers from floats.
func DecodeArguments(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	args := map[string]any{}
	if err := dec.Decode(&args); err != nil {
		return nil, err
	}
	return args, nil
}
