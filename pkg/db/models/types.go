// Package models contains database models for the closure service.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/yourorg/fire-closure/pkg/form"
)

// JSONMap is a custom type for JSON object fields
type JSONMap map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface
func (j *JSONMap) Scan(value interface{}) error {
	data, err := scanBytes(value)
	if err != nil || data == nil {
		*j = nil
		return err
	}
	return json.Unmarshal(data, j)
}

// JSON is a raw JSON document column
type JSON []byte

// Value implements the driver.Valuer interface
func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

// Scan implements the sql.Scanner interface
func (j *JSON) Scan(value interface{}) error {
	data, err := scanBytes(value)
	if err != nil {
		return err
	}
	*j = append((*j)[:0], data...)
	return nil
}

// MarshalJSON emits the document as is
func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON stores a copy of the document
func (j *JSON) UnmarshalJSON(data []byte) error {
	*j = append((*j)[:0], data...)
	return nil
}

// OptionList is the JSON-encoded option set of a field
type OptionList []form.Option

// Value implements the driver.Valuer interface
func (o OptionList) Value() (driver.Value, error) {
	if len(o) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the sql.Scanner interface
func (o *OptionList) Scan(value interface{}) error {
	data, err := scanBytes(value)
	if err != nil || data == nil {
		*o = nil
		return err
	}
	return json.Unmarshal(data, o)
}

// scanBytes accepts the representations drivers use for JSON columns
func scanBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported JSON column type %T", value)
	}
}
