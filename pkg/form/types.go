// Package form implements the schema-driven closure form engine: template
// definitions, per-type field rendering and validation, and response assembly.
package form

import (
	"fmt"
	"sort"
	"strings"
)

// FieldType is the declared kind of a template field
type FieldType string

const (
	FieldTypeText        FieldType = "text"
	FieldTypeTextarea    FieldType = "textarea"
	FieldTypeNumber      FieldType = "number"
	FieldTypeDate        FieldType = "date"
	FieldTypeDateTime    FieldType = "datetime"
	FieldTypeSelect      FieldType = "select"
	FieldTypeMultiSelect FieldType = "multiselect"
	FieldTypeCheckbox    FieldType = "checkbox"
	FieldTypePercentage  FieldType = "percentage"
	FieldTypeBoolean     FieldType = "boolean"
)

var knownFieldTypes = map[FieldType]bool{
	FieldTypeText:        true,
	FieldTypeTextarea:    true,
	FieldTypeNumber:      true,
	FieldTypeDate:        true,
	FieldTypeDateTime:    true,
	FieldTypeSelect:      true,
	FieldTypeMultiSelect: true,
	FieldTypeCheckbox:    true,
	FieldTypePercentage:  true,
	FieldTypeBoolean:     true,
}

// Known reports whether the engine knows how to render and validate the type
func (t FieldType) Known() bool {
	return knownFieldTypes[t]
}

// IsChoice reports whether the type is select or multiselect
func (t FieldType) IsChoice() bool {
	return t == FieldTypeSelect || t == FieldTypeMultiSelect
}

// IsNumeric reports whether values of the type are parsed as numbers
func (t FieldType) IsNumeric() bool {
	return t == FieldTypeNumber || t == FieldTypePercentage
}

// IsBoolean reports whether values of the type are booleans
func (t FieldType) IsBoolean() bool {
	return t == FieldTypeCheckbox || t == FieldTypeBoolean
}

// Template is an admin-authored closure form schema
type Template struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Active      bool      `json:"active" yaml:"active"`
	Version     int       `json:"version" yaml:"version"`
	Sections    []Section `json:"sections,omitempty" yaml:"sections,omitempty"`
}

// Fields returns every field of the template in section then field order
func (t *Template) Fields() []Field {
	var fields []Field
	for _, s := range t.Sections {
		fields = append(fields, s.Fields...)
	}
	return fields
}

// Section groups fields inside a template
type Section struct {
	ID          string  `json:"id" yaml:"id"`
	TemplateID  string  `json:"template_id" yaml:"template_id"`
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Order       int     `json:"order" yaml:"order"`
	Fields      []Field `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Field is one typed question within a section.
// ParentFieldID and Dependencies are carried through but not evaluated.
type Field struct {
	ID            string         `json:"id" yaml:"id"`
	SectionID     string         `json:"section_id" yaml:"section_id"`
	ParentFieldID string         `json:"parent_field_id,omitempty" yaml:"parent_field_id,omitempty"`
	Name          string         `json:"name" yaml:"name"`
	Description   string         `json:"description,omitempty" yaml:"description,omitempty"`
	Placeholder   string         `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Type          FieldType      `json:"type" yaml:"type"`
	Order         int            `json:"order" yaml:"order"`
	Required      bool           `json:"required" yaml:"required"`
	Unit          string         `json:"unit,omitempty" yaml:"unit,omitempty"`
	Options       []Option       `json:"options,omitempty" yaml:"options,omitempty"`
	Validations   map[string]any `json:"validations,omitempty" yaml:"validations,omitempty"`
	Dependencies  map[string]any `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// Option looks up a declared option by value
func (f *Field) Option(value string) (Option, bool) {
	for _, o := range f.Options {
		if o.Value == value {
			return o, true
		}
	}
	return Option{}, false
}

// Option is one selectable choice of a select or multiselect field
type Option struct {
	Value              string `json:"value" yaml:"value"`
	Label              string `json:"label" yaml:"label"`
	RequiresQuantity   bool   `json:"requiresQuantity,omitempty" yaml:"requires_quantity,omitempty"`
	RequiresPercentage bool   `json:"requiresPercentage,omitempty" yaml:"requires_percentage,omitempty"`
	QuantityLabel      string `json:"quantityLabel,omitempty" yaml:"quantity_label,omitempty"`
	PercentageLabel    string `json:"percentageLabel,omitempty" yaml:"percentage_label,omitempty"`
}

// Compound reports whether choosing the option stores a {value, quantity, percentage} object
func (o Option) Compound() bool {
	return o.RequiresQuantity || o.RequiresPercentage
}

// SortSections orders sections and their fields by Order. Ties keep insertion order.
func SortSections(sections []Section) {
	sort.SliceStable(sections, func(i, j int) bool {
		return sections[i].Order < sections[j].Order
	})
	for i := range sections {
		SortFields(sections[i].Fields)
	}
}

// SortFields orders fields by Order. Ties keep insertion order.
func SortFields(fields []Field) {
	sort.SliceStable(fields, func(i, j int) bool {
		return fields[i].Order < fields[j].Order
	})
}

// Unsupported returns the fields whose type the engine ignores
func Unsupported(fields []Field) []Field {
	var out []Field
	for _, f := range fields {
		if !f.Type.Known() {
			out = append(out, f)
		}
	}
	return out
}

// ValidateFieldDefinition checks a field definition before it is stored
func ValidateFieldDefinition(f Field) error {
	var errs ValidationErrors

	if strings.TrimSpace(f.Name) == "" {
		errs = append(errs, ValidationError{"name", "required field"})
	}
	if !f.Type.Known() {
		errs = append(errs, ValidationError{"type", fmt.Sprintf("invalid type: %s", f.Type)})
	}

	if f.Type.IsChoice() {
		if len(f.Options) == 0 {
			errs = append(errs, ValidationError{"options", "must have at least one option"})
		}
		seen := make(map[string]bool, len(f.Options))
		for i, o := range f.Options {
			prefix := fmt.Sprintf("options[%d]", i)
			if strings.TrimSpace(o.Value) == "" {
				errs = append(errs, ValidationError{prefix + ".value", "required field"})
				continue
			}
			if seen[o.Value] {
				errs = append(errs, ValidationError{prefix + ".value", fmt.Sprintf("duplicate option value: %s", o.Value)})
			}
			seen[o.Value] = true
		}
	} else if len(f.Options) > 0 {
		errs = append(errs, ValidationError{"options", "only select and multiselect fields take options"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
