package tools

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ValidateArguments checks an argument object against a JSON Schema at the
// top level: required keys present, provided keys declared, primitive types
// matching. Nested constraints (enum, minimum, item shapes) are the tool's
// own business. A nil schema or a schema without declared properties accepts
// any arguments.
//
// Numeric rules follow JSON semantics: an integer value satisfies "number",
// a float never satisfies "integer" (even when fractionless, if it arrived
// as a float), and booleans satisfy neither.
func ValidateArguments(schema map[string]any, args map[string]any) error {
	if schema == nil {
		return nil
	}

	for _, name := range requiredKeys(schema) {
		if _, ok := args[name]; !ok {
			return fmt.Errorf("missing required parameter %q", name)
		}
	}

	properties, ok := schema["properties"].(map[string]any)
	if !ok || len(properties) == 0 {
		return nil
	}

	for name, value := range args {
		raw, declared := properties[name]
		if !declared {
			return fmt.Errorf("unexpected parameter %q", name)
		}
		prop, _ := raw.(map[string]any)
		want, _ := prop["type"].(string)
		if want == "" {
			continue
		}
		if !typeMatches(want, value) {
			return fmt.Errorf("parameter %q must be of type %s, got %s", name, want, jsonTypeName(value))
		}
	}
	return nil
}

// requiredKeys extracts the required-key list, tolerating both []string and
// the []any produced by JSON decoding.
func requiredKeys(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		keys := make([]string, 0, len(req))
		for _, v := range req {
			if s, ok := v.(string); ok {
				keys = append(keys, s)
			}
		}
		return keys
	default:
		return nil
	}
}

// typeMatches reports whether a Go value satisfies a JSON Schema primitive
// type name. Unknown type names accept anything.
func typeMatches(want string, value any) bool {
	switch want {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "integer":
		return isInteger(value)
	case "number":
		return isNumber(value)
	case "array":
		switch value.(type) {
		case []any, []string, []int, []float64:
			return true
		}
		return false
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "null":
		return value == nil
	default:
		return true
	}
}

// isInteger accepts Go integer kinds and json.Number literals without a
// fraction or exponent. Floats are rejected regardless of value, mirroring
// the distinction JSON keeps between 3 and 3.0.
func isInteger(value any) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case json.Number:
		s := v.String()
		return !strings.ContainsAny(s, ".eE")
	default:
		return false
	}
}

// isNumber accepts any numeric value, integer or float. Booleans are not
// numbers.
func isNumber(value any) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return true
	default:
		return false
	}
}

// jsonTypeName names a Go value in JSON Schema vocabulary for diagnostics.
func jsonTypeName(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "integer"
	case float32, float64:
		return "number"
	case json.Number:
		if isInteger(v) {
			return "integer"
		}
		return "number"
	case []any, []string, []int, []float64:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}
