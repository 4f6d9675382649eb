package parser

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// stringValue renders a decoded JSON value as plain text.
// Objects and arrays are re-encoded as compact JSON.
func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}

// floatValue converts a decoded JSON number or numeric string to a finite float.
func floatValue(v any) (float64, error) {
	var f float64
	var err error

	switch val := v.(type) {
	case json.Number:
		f, err = val.Float64()
	case string:
		f, err = strconv.ParseFloat(val, 64)
	case float64:
		f = val
	default:
		return 0, fmt.Errorf("unsupported clock value %v", v)
	}
	if err != nil {
		return 0, err
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("clock is not finite: %v", v)
	}
	return f, nil
}
