package form

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is the working value of one field. The concrete kinds are Scalar,
// Choice and MultiChoice; callers switch over them exhaustively.
type Value interface {
	IsEmpty() bool
	isValue()
}

// Scalar holds text, number, date, datetime, checkbox and boolean answers.
// V is a string, float64, bool or nil.
type Scalar struct {
	V any
}

func (Scalar) isValue() {}

// IsEmpty reports nil and empty strings as empty
func (s Scalar) IsEmpty() bool {
	switch v := s.V.(type) {
	case nil:
		return true
	case string:
		return v == ""
	default:
		return false
	}
}

// Choice is a selected option. Compound is true when the option requires a
// quantity or a percentage, in which case the value behaves as an object.
type Choice struct {
	Value      string
	Quantity   *float64
	Percentage *float64
	Compound   bool
}

func (Choice) isValue() {}

// IsEmpty reports whether no option is selected
func (c Choice) IsEmpty() bool {
	return c.Value == ""
}

// MarshalJSON renders a compound choice with all three keys and a plain
// choice as its option value.
func (c Choice) MarshalJSON() ([]byte, error) {
	if !c.Compound {
		return json.Marshal(c.Value)
	}
	return json.Marshal(struct {
		Value      string   `json:"value"`
		Quantity   *float64 `json:"quantity"`
		Percentage *float64 `json:"percentage"`
	}{c.Value, c.Quantity, c.Percentage})
}

// MultiChoice is the ordered set of options chosen in a multiselect
type MultiChoice []Choice

func (MultiChoice) isValue() {}

// IsEmpty reports whether nothing is selected
func (m MultiChoice) IsEmpty() bool {
	return len(m) == 0
}

// Find returns the index of the choice with the given option value, or -1
func (m MultiChoice) Find(value string) int {
	for i, c := range m {
		if c.Value == value {
			return i
		}
	}
	return -1
}

// IsEmptyValue treats a missing value as empty
func IsEmptyValue(v Value) bool {
	return v == nil || v.IsEmpty()
}

// ParseNumber converts user text to a number. Non-numeric text yields nil,
// never NaN or an error. A decimal comma is accepted.
func ParseNumber(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	s = strings.Replace(s, ",", ".", 1)
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil
	}
	return &n
}

// EncodedChoice is the wire shape of a compound option answer
type EncodedChoice struct {
	Value      string   `json:"value"`
	Quantity   *float64 `json:"quantity,omitempty"`
	Percentage *float64 `json:"percentage,omitempty"`
}

// Encode converts a working value to its wire representation for the field.
// Compound answers only carry the sub-values their option asks for.
func Encode(field Field, v Value) any {
	switch val := v.(type) {
	case nil:
		return nil
	case Scalar:
		return val.V
	case Choice:
		return encodeChoice(field, val)
	case MultiChoice:
		out := make([]any, 0, len(val))
		for _, c := range val {
			out = append(out, encodeChoice(field, c))
		}
		return out
	default:
		return nil
	}
}

func encodeChoice(field Field, c Choice) any {
	opt, ok := field.Option(c.Value)
	if !ok {
		if c.Compound {
			return EncodedChoice{Value: c.Value, Quantity: c.Quantity, Percentage: c.Percentage}
		}
		return c.Value
	}
	if !opt.Compound() {
		return c.Value
	}
	enc := EncodedChoice{Value: c.Value}
	if opt.RequiresQuantity {
		enc.Quantity = c.Quantity
	}
	if opt.RequiresPercentage {
		enc.Percentage = c.Percentage
	}
	return enc
}

// DecodeJSON decodes a stored response into a working value for the field
func DecodeJSON(field Field, raw json.RawMessage) (Value, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to decode response for field %s: %w", field.ID, err)
	}
	return Decode(field, v)
}

// Decode converts a generic JSON value into a working value for the field
func Decode(field Field, raw any) (Value, error) {
	if raw == nil {
		return nil, nil
	}

	switch {
	case field.Type == FieldTypeSelect:
		return decodeChoice(field, raw)
	case field.Type == FieldTypeMultiSelect:
		items, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("field %s: multiselect value must be an array", field.ID)
		}
		out := make(MultiChoice, 0, len(items))
		for _, item := range items {
			c, err := decodeChoice(field, item)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil
	case field.Type.IsNumeric():
		switch n := raw.(type) {
		case float64:
			return Scalar{V: n}, nil
		case string:
			if p := ParseNumber(n); p != nil {
				return Scalar{V: *p}, nil
			}
			return Scalar{V: nil}, nil
		default:
			return nil, fmt.Errorf("field %s: number value has unexpected type %T", field.ID, raw)
		}
	case field.Type.IsBoolean():
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("field %s: boolean value has unexpected type %T", field.ID, raw)
		}
		return Scalar{V: b}, nil
	default:
		s, ok := raw.(string)
		if !ok {
			return Scalar{V: fmt.Sprint(raw)}, nil
		}
		return Scalar{V: s}, nil
	}
}

func decodeChoice(field Field, raw any) (Choice, error) {
	switch v := raw.(type) {
	case string:
		opt, _ := field.Option(v)
		return Choice{Value: v, Compound: opt.Compound()}, nil
	case map[string]any:
		value, _ := v["value"].(string)
		c := Choice{Value: value, Compound: true}
		if q, ok := v["quantity"].(float64); ok {
			c.Quantity = &q
		}
		if p, ok := v["percentage"].(float64); ok {
			c.Percentage = &p
		}
		return c, nil
	default:
		return Choice{}, fmt.Errorf("field %s: choice value has unexpected type %T", field.ID, raw)
	}
}

// CheckOptions verifies that every option value referenced by v is declared on the field
func CheckOptions(field Field, v Value) error {
	var values []string
	switch val := v.(type) {
	case Choice:
		if val.Value != "" {
			values = append(values, val.Value)
		}
	case MultiChoice:
		for _, c := range val {
			values = append(values, c.Value)
		}
	default:
		return nil
	}
	for _, value := range values {
		if _, ok := field.Option(value); !ok {
			return ValidationError{Field: field.ID, Message: fmt.Sprintf("unknown option: %s", value)}
		}
	}
	return nil
}

// Values is the working value map of a form. Iteration follows first
// insertion order, which is also the order responses are assembled in.
type Values struct {
	order []string
	m     map[string]Value
}

// NewValues creates an empty value map
func NewValues() *Values {
	return &Values{m: make(map[string]Value)}
}

// Set stores a value, keeping the key's original position if it already exists
func (v *Values) Set(fieldID string, val Value) {
	if _, ok := v.m[fieldID]; !ok {
		v.order = append(v.order, fieldID)
	}
	v.m[fieldID] = val
}

// Get returns the value for a field
func (v *Values) Get(fieldID string) (Value, bool) {
	val, ok := v.m[fieldID]
	return val, ok
}

// Delete removes a field from the map
func (v *Values) Delete(fieldID string) {
	if _, ok := v.m[fieldID]; !ok {
		return
	}
	delete(v.m, fieldID)
	for i, id := range v.order {
		if id == fieldID {
			v.order = append(v.order[:i], v.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of stored values
func (v *Values) Len() int {
	return len(v.order)
}

// Keys returns field IDs in insertion order
func (v *Values) Keys() []string {
	out := make([]string, len(v.order))
	copy(out, v.order)
	return out
}

// Each calls fn for every value in insertion order
func (v *Values) Each(fn func(fieldID string, val Value)) {
	for _, id := range v.order {
		fn(id, v.m[id])
	}
}

// Clone returns a shallow copy that can be mutated independently
func (v *Values) Clone() *Values {
	c := &Values{order: make([]string, len(v.order)), m: make(map[string]Value, len(v.m))}
	copy(c.order, v.order)
	for k, val := range v.m {
		if mc, ok := val.(MultiChoice); ok {
			val = append(MultiChoice(nil), mc...)
		}
		c.m[k] = val
	}
	return c
}
