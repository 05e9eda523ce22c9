package value

import (
	"encoding/json"
	"fmt"
	"strings"
)

// refKey marks a serialized Reference so it can be told apart from an
// ordinary one-field map when read back.
const refKey = "$ref"

// MarshalJSON renders a Value as native JSON: strings, numbers, booleans,
// arrays and objects map directly, null maps to JSON null. A Reference
// (which should normally be fully substituted before persistence) is
// written as {"$ref": "binding.attribute"} so an interrupted run still
// round-trips.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindInteger:
		return json.Marshal(v.i)
	case KindBoolean:
		return json.Marshal(v.b)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case KindMap:
		if v.m == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.m)
	case KindReference:
		return json.Marshal(map[string]string{refKey: v.ref.String()})
	}
	return nil, fmt.Errorf("cannot marshal value of kind %v", v.Kind)
}

// UnmarshalJSON is the inverse of MarshalJSON. Numbers are read as
// integers; a fractional number is an error since the attribute grammar
// has no float type.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := fromJSON(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func fromJSON(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case bool:
		return Boolean(t), nil
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return Value{}, fmt.Errorf("non-integer number %q in attribute value", t.String())
		}
		return Integer(i), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			parsed, err := fromJSON(item)
			if err != nil {
				return Value{}, err
			}
			items[i] = parsed
		}
		return List(items), nil
	case map[string]any:
		if refRaw, ok := t[refKey]; ok && len(t) == 1 {
			if s, ok := refRaw.(string); ok {
				binding, attr, found := strings.Cut(s, ".")
				if !found {
					return Value{}, fmt.Errorf("malformed reference %q", s)
				}
				return Ref(Reference{Binding: binding, Attribute: attr}), nil
			}
		}
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			parsed, err := fromJSON(item)
			if err != nil {
				return Value{}, err
			}
			fields[k] = parsed
		}
		return Map(fields), nil
	}
	return Value{}, fmt.Errorf("unsupported JSON value %T", raw)
}
