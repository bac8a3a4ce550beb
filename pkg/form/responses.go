package form

// ResponseInput is one answered field as sent to the backend
type ResponseInput struct {
	FieldID string    `json:"field_id" yaml:"field_id"`
	Type    FieldType `json:"type" yaml:"type"`
	Value   any       `json:"value" yaml:"value"`
}

// BuildResponses assembles one ResponseInput per entry of values, in the
// insertion order of values. Fields without a value are not sent.
func BuildResponses(fields []Field, values *Values) []ResponseInput {
	byID := make(map[string]Field, len(fields))
	for _, f := range fields {
		byID[f.ID] = f
	}

	out := make([]ResponseInput, 0, values.Len())
	values.Each(func(fieldID string, v Value) {
		f, ok := byID[fieldID]
		if !ok {
			f = Field{ID: fieldID}
		}
		out = append(out, ResponseInput{
			FieldID: fieldID,
			Type:    f.Type,
			Value:   Encode(f, v),
		})
	})
	return out
}
