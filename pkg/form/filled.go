package form

import (
	"encoding/json"
	"fmt"
)

// FilledForm is the active template of an incident with its stored responses
type FilledForm struct {
	Template   Template        `json:"template"`
	Secciones  []FilledSection `json:"secciones"`
	Extinguido bool            `json:"extinguido"`
}

// FilledSection is a section with its fields and their responses
type FilledSection struct {
	Section
	Campos []FilledField `json:"campos"`
}

// FilledField is a field with its stored response, if any
type FilledField struct {
	Field
	Respuesta json.RawMessage `json:"respuesta,omitempty"`
}

// Schema returns the template with sections and fields attached and ordered
func (f *FilledForm) Schema() Template {
	t := f.Template
	t.Sections = make([]Section, 0, len(f.Secciones))
	for _, fs := range f.Secciones {
		s := fs.Section
		s.Fields = make([]Field, 0, len(fs.Campos))
		for _, c := range fs.Campos {
			s.Fields = append(s.Fields, c.Field)
		}
		SortFields(s.Fields)
		t.Sections = append(t.Sections, s)
	}
	SortSections(t.Sections)
	return t
}

// Values decodes the stored responses into a working value map
func (f *FilledForm) Values() (*Values, error) {
	values := NewValues()
	for _, s := range f.Schema().Sections {
		for _, field := range s.Fields {
			raw := f.response(field.ID)
			if raw == nil {
				continue
			}
			v, err := DecodeJSON(field, raw)
			if err != nil {
				return nil, fmt.Errorf("failed to decode stored responses: %w", err)
			}
			if v != nil {
				values.Set(field.ID, v)
			}
		}
	}
	return values, nil
}

func (f *FilledForm) response(fieldID string) json.RawMessage {
	for _, s := range f.Secciones {
		for _, c := range s.Campos {
			if c.ID == fieldID {
				return c.Respuesta
			}
		}
	}
	return nil
}
