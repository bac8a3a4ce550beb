package models

import (
	"time"
)

// TemplateStatus represents the status of a closure template
type TemplateStatus string

const (
	TemplateStatusDraft   TemplateStatus = "draft"
	TemplateStatusActive  TemplateStatus = "active"
	TemplateStatusDeleted TemplateStatus = "deleted"
)

// Template is an admin-authored closure form (plantilla)
type Template struct {
	ID          string         `gorm:"primaryKey;size:64" json:"id"`
	TenantID    string         `gorm:"size:64;not null;index" json:"tenant_id"`
	Name        string         `gorm:"size:255;not null" json:"name"`
	Description string         `gorm:"type:text" json:"description,omitempty"`
	Version     int            `gorm:"default:1" json:"version"`
	Status      TemplateStatus `gorm:"size:16;not null;default:'draft';index" json:"status"`
	CreatedBy   string         `gorm:"size:255" json:"created_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`

	// Relationships
	Sections []Section `gorm:"foreignKey:TemplateID" json:"sections,omitempty"`
}

// TableName returns the table name for Template
func (Template) TableName() string {
	return "closure_templates"
}

// Section groups fields of a template (seccion)
type Section struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	TemplateID  string    `gorm:"size:64;not null;index" json:"template_id"`
	TenantID    string    `gorm:"size:64;not null;index" json:"tenant_id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	SortOrder   int       `gorm:"not null;default:0" json:"order"`
	Seq         int64     `gorm:"not null;default:0" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Relationships
	Fields []Field `gorm:"foreignKey:SectionID" json:"fields,omitempty"`
}

// TableName returns the table name for Section
func (Section) TableName() string {
	return "closure_sections"
}

// Field is one typed question of a section (campo)
type Field struct {
	ID            string     `gorm:"primaryKey;size:64" json:"id"`
	SectionID     string     `gorm:"size:64;not null;index" json:"section_id"`
	TenantID      string     `gorm:"size:64;not null;index" json:"tenant_id"`
	ParentFieldID *string    `gorm:"size:64" json:"parent_field_id,omitempty"`
	Name          string     `gorm:"size:255;not null" json:"name"`
	Description   string     `gorm:"type:text" json:"description,omitempty"`
	Placeholder   string     `gorm:"size:255" json:"placeholder,omitempty"`
	Type          string     `gorm:"size:32;not null" json:"type"`
	SortOrder     int        `gorm:"not null;default:0" json:"order"`
	Seq           int64      `gorm:"not null;default:0" json:"-"`
	Required      bool       `gorm:"not null;default:false" json:"required"`
	Unit          string     `gorm:"size:32" json:"unit,omitempty"`
	Options       OptionList `gorm:"type:json" json:"options,omitempty"`
	Validations   JSONMap    `gorm:"type:json" json:"validations,omitempty"`
	Dependencies  JSONMap    `gorm:"type:json" json:"dependencies,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the table name for Field
func (Field) TableName() string {
	return "closure_fields"
}
