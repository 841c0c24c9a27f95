// Package coerce converts loosely typed JSON and form values to strings and
// numbers the way the engines compare and display them.
package coerce

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// String renders v for display and substring search. nil renders as "";
// integral floats render without a fraction.
func String(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(s)
	case json.Number:
		return s.String()
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}

// Number returns v as a float64 when v holds a Go numeric kind or a
// json.Number. Strings are not parsed.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// ParseNumber is Number plus parsing of numeric strings, as typed into a
// form field.
func ParseNumber(v any) (float64, bool) {
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	return Number(v)
}
