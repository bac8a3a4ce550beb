package template

import (
	"github.com/yourorg/fire-closure/pkg/db/models"
	"github.com/yourorg/fire-closure/pkg/form"
)

// ToForm converts a stored template with its structure to the engine model
func ToForm(t *models.Template) form.Template {
	out := form.Template{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Active:      t.Status == models.TemplateStatusActive,
		Version:     t.Version,
		Sections:    make([]form.Section, 0, len(t.Sections)),
	}
	for _, s := range t.Sections {
		section := SectionToForm(s)
		out.Sections = append(out.Sections, section)
	}
	form.SortSections(out.Sections)
	return out
}

// SectionToForm converts a stored section and its fields
func SectionToForm(s models.Section) form.Section {
	section := form.Section{
		ID:          s.ID,
		TemplateID:  s.TemplateID,
		Name:        s.Name,
		Description: s.Description,
		Order:       s.SortOrder,
		Fields:      make([]form.Field, 0, len(s.Fields)),
	}
	for _, f := range s.Fields {
		section.Fields = append(section.Fields, FieldToForm(f))
	}
	form.SortFields(section.Fields)
	return section
}

// FieldToForm converts a stored field
func FieldToForm(f models.Field) form.Field {
	out := form.Field{
		ID:           f.ID,
		SectionID:    f.SectionID,
		Name:         f.Name,
		Description:  f.Description,
		Placeholder:  f.Placeholder,
		Type:         form.FieldType(f.Type),
		Order:        f.SortOrder,
		Required:     f.Required,
		Unit:         f.Unit,
		Options:      []form.Option(f.Options),
		Validations:  f.Validations,
		Dependencies: f.Dependencies,
	}
	if f.ParentFieldID != nil {
		out.ParentFieldID = *f.ParentFieldID
	}
	return out
}

func toModel(f form.Field, tenantID string) *models.Field {
	out := &models.Field{
		ID:           f.ID,
		SectionID:    f.SectionID,
		TenantID:     tenantID,
		Name:         f.Name,
		Description:  f.Description,
		Placeholder:  f.Placeholder,
		Type:         string(f.Type),
		SortOrder:    f.Order,
		Required:     f.Required,
		Unit:         f.Unit,
		Options:      models.OptionList(f.Options),
		Validations:  models.JSONMap(f.Validations),
		Dependencies: models.JSONMap(f.Dependencies),
	}
	if f.ParentFieldID != "" {
		parent := f.ParentFieldID
		out.ParentFieldID = &parent
	}
	return out
}
