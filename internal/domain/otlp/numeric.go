package otlp

import (
	"encoding/json"
	"strconv"
	"strings"
)

// SafeInt coerces an OTLP JSON numeric field (which may arrive as a JSON
// string, number, or be absent/invalid) to int64. It never panics; ok is
// false for nil, empty, or unparsable input, in which case the returned
// value is 0.
func SafeInt(v any) (int64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return i, true
	case float64:
		return int64(t), true
	case float32:
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	case json.Number:
		i, err := t.Int64()
		if err == nil {
			return i, true
		}
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return int64(f), true
	default:
		return 0, false
	}
}

// SafeFloat coerces an OTLP JSON numeric field to float64 with the same
// never-throw contract as SafeInt.
func SafeFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// safeIntRaw coerces a json.RawMessage (a string or number literal as it
// appears in an OTLP payload) to int64, for use while unmarshalling.
func safeIntRaw(raw json.RawMessage) (int64, bool) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return SafeInt(asString)
	}
	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return SafeInt(asNumber)
	}
	return 0, false
}

// safeFloatRaw is safeIntRaw's float64 counterpart.
func safeFloatRaw(raw json.RawMessage) (float64, bool) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return SafeFloat(asString)
	}
	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return SafeFloat(asNumber)
	}
	return 0, false
}
