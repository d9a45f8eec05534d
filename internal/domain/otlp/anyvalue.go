// Package otlp models the OTLP-JSON wire shapes this pipeline decodes:
// ExportLogsServiceRequest, ExportMetricsServiceRequest, and
// ExportTraceServiceRequest, plus the AnyValue tagged union shared by all
// three and the safe numeric coercion helpers OTLP's string-encoded
// integers require.
package otlp

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// AnyValue is OTLP's tagged union over scalar and composite attribute
// values. Exactly one field is populated; Kind reports which.
type AnyValue struct {
	Kind      AnyValueKind
	String    string
	Int64     int64
	Float64   float64
	Bool      bool
	Bytes     []byte
	Array     []AnyValue
	KVList    map[string]AnyValue
}

type AnyValueKind int

const (
	KindNone AnyValueKind = iota
	KindString
	KindInt64
	KindFloat64
	KindBool
	KindBytes
	KindArray
	KindKVList
)

// rawAnyValue mirrors OTLP-JSON's literal field names for an AnyValue.
type rawAnyValue struct {
	StringValue *string          `json:"stringValue"`
	IntValue    *json.RawMessage `json:"intValue"`
	DoubleValue *json.RawMessage `json:"doubleValue"`
	BoolValue   *bool            `json:"boolValue"`
	BytesValue  *string          `json:"bytesValue"`
	ArrayValue  *rawArrayValue   `json:"arrayValue"`
	KvlistValue *rawKvlistValue  `json:"kvlistValue"`
}

type rawArrayValue struct {
	Values []rawAnyValue `json:"values"`
}

type rawKvlistValue struct {
	Values []rawKeyValue `json:"values"`
}

type rawKeyValue struct {
	Key   string      `json:"key"`
	Value rawAnyValue `json:"value"`
}

// ParseAnyValue decodes a raw OTLP-JSON AnyValue object into the tagged
// union. A malformed or empty value decodes to KindNone rather than erroring
// -- C1's decoder treats a bad attribute value as "no value", not a reason
// to drop the whole record.
func ParseAnyValue(raw json.RawMessage) AnyValue {
	if len(raw) == 0 {
		return AnyValue{Kind: KindNone}
	}
	var rv rawAnyValue
	if err := json.Unmarshal(raw, &rv); err != nil {
		return AnyValue{Kind: KindNone}
	}
	return fromRaw(rv)
}

func fromRaw(rv rawAnyValue) AnyValue {
	switch {
	case rv.StringValue != nil:
		return AnyValue{Kind: KindString, String: *rv.StringValue}
	case rv.IntValue != nil:
		if i, ok := safeIntRaw(*rv.IntValue); ok {
			return AnyValue{Kind: KindInt64, Int64: i}
		}
		return AnyValue{Kind: KindNone}
	case rv.DoubleValue != nil:
		if f, ok := safeFloatRaw(*rv.DoubleValue); ok {
			return AnyValue{Kind: KindFloat64, Float64: f}
		}
		return AnyValue{Kind: KindNone}
	case rv.BoolValue != nil:
		return AnyValue{Kind: KindBool, Bool: *rv.BoolValue}
	case rv.BytesValue != nil:
		return AnyValue{Kind: KindBytes, Bytes: []byte(*rv.BytesValue)}
	case rv.ArrayValue != nil:
		items := make([]AnyValue, 0, len(rv.ArrayValue.Values))
		for _, v := range rv.ArrayValue.Values {
			items = append(items, fromRaw(v))
		}
		return AnyValue{Kind: KindArray, Array: items}
	case rv.KvlistValue != nil:
		m := make(map[string]AnyValue, len(rv.KvlistValue.Values))
		for _, kv := range rv.KvlistValue.Values {
			m[kv.Key] = fromRaw(kv.Value)
		}
		return AnyValue{Kind: KindKVList, KVList: m}
	default:
		return AnyValue{Kind: KindNone}
	}
}

// Native returns a plain Go value (string, int64, float64, bool, []byte,
// []any, map[string]any) suitable for JSON re-encoding, or nil for KindNone.
func (v AnyValue) Native() any {
	switch v.Kind {
	case KindString:
		return v.String
	case KindInt64:
		return v.Int64
	case KindFloat64:
		return v.Float64
	case KindBool:
		return v.Bool
	case KindBytes:
		return string(v.Bytes)
	case KindArray:
		out := make([]any, 0, len(v.Array))
		for _, item := range v.Array {
			out = append(out, item.Native())
		}
		return out
	case KindKVList:
		out := make(map[string]any, len(v.KVList))
		for k, item := range v.KVList {
			out[k] = item.Native()
		}
		return out
	default:
		return nil
	}
}

// AsString renders the value the way it is needed for attributes_flat: a
// scalar prints as its literal text form, a composite value is JSON-encoded
// inline.
func (v AnyValue) AsString() string {
	switch v.Kind {
	case KindString:
		return v.String
	case KindInt64:
		return strconv.FormatInt(v.Int64, 10)
	case KindFloat64:
		return strconv.FormatFloat(v.Float64, 'g', -1, 64)
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindBytes:
		return string(v.Bytes)
	case KindNone:
		return ""
	default:
		b, err := json.Marshal(v.Native())
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// AttributeMap is a decoded OTLP `attributes: [{key,value}]` array, keyed by
// attribute key. Later duplicate keys win, matching OTLP's field semantics.
type AttributeMap map[string]AnyValue

func parseAttributes(raw []rawKeyValue) AttributeMap {
	m := make(AttributeMap, len(raw))
	for _, kv := range raw {
		m[kv.Key] = fromRaw(kv.Value)
	}
	return m
}

// Merge returns a new map containing m's entries overwritten by other's.
func (m AttributeMap) Merge(other AttributeMap) AttributeMap {
	out := make(AttributeMap, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// ExtractServiceName returns the `service.name` resource attribute, and a
// copy of the map with that key removed (spec: "removed from
// attributes_json" / "removed after extraction").
func (m AttributeMap) ExtractServiceName() (string, AttributeMap) {
	svc := ""
	if v, ok := m["service.name"]; ok {
		svc = v.AsString()
	}
	out := make(AttributeMap, len(m))
	for k, v := range m {
		if k == "service.name" {
			continue
		}
		out[k] = v
	}
	return svc, out
}

// FlattenSorted renders the attribute map as metrics-table attributes_flat:
// "k1=v1,k2=v2,..." with keys sorted ascending.
func (m AttributeMap) FlattenSorted() string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+m[k].AsString())
	}
	return strings.Join(parts, ",")
}

// JSON renders the attribute map as a compact JSON object, used for
// logs/spans/events/links attribute columns.
func (m AttributeMap) JSON() string {
	native := make(map[string]any, len(m))
	for k, v := range m {
		native[k] = v.Native()
	}
	b, err := json.Marshal(native)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Get looks up a key, returning its value and true if present (scalar or
// composite alike), or a zero AnyValue and false if absent.
func (m AttributeMap) Get(key string) (AnyValue, bool) {
	v, ok := m[key]
	return v, ok
}
