package models

import (
	"time"
)

// ClosureRecord is the catalog-backed closure record of an incident
type ClosureRecord struct {
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	TenantID     string    `gorm:"size:64;not null;uniqueIndex:idx_closure_record_incident" json:"tenant_id"`
	IncidentID   string    `gorm:"size:64;not null;uniqueIndex:idx_closure_record_incident" json:"incendio_uuid"`
	EstadoCierre string    `gorm:"size:32" json:"estado_cierre,omitempty"`
	Data         JSON      `gorm:"type:json" json:"data"`
	UpdatedBy    string    `gorm:"size:255" json:"updated_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the table name for ClosureRecord
func (ClosureRecord) TableName() string {
	return "closure_records"
}

// CatalogItem is one entry of an admin-maintained catalog
type CatalogItem struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	TenantID  string    `gorm:"size:64;not null;index:idx_catalog_item" json:"tenant_id"`
	Catalog   string    `gorm:"size:64;not null;index:idx_catalog_item" json:"catalog"`
	Nombre    string    `gorm:"size:255;not null" json:"nombre"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for CatalogItem
func (CatalogItem) TableName() string {
	return "catalog_items"
}

// IncidentForm tracks the template-based closure form of an incident
type IncidentForm struct {
	ID           string     `gorm:"primaryKey;size:64" json:"id"`
	TenantID     string     `gorm:"size:64;not null;uniqueIndex:idx_incident_form" json:"tenant_id"`
	IncidentID   string     `gorm:"size:64;not null;uniqueIndex:idx_incident_form" json:"incident_id"`
	TemplateID   string     `gorm:"size:64;not null" json:"template_id"`
	Extinguido   bool       `gorm:"not null;default:false" json:"extinguido"`
	ExtinguidoAt *time.Time `json:"extinguido_at,omitempty"`
	FinalizedBy  string     `gorm:"size:255" json:"finalized_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName returns the table name for IncidentForm
func (IncidentForm) TableName() string {
	return "incident_forms"
}

// Response is the stored answer of one field for one incident
type Response struct {
	ID         string    `gorm:"primaryKey;size:64" json:"id"`
	TenantID   string    `gorm:"size:64;not null;uniqueIndex:idx_response_field" json:"tenant_id"`
	IncidentID string    `gorm:"size:64;not null;uniqueIndex:idx_response_field" json:"incident_id"`
	FieldID    string    `gorm:"size:64;not null;uniqueIndex:idx_response_field" json:"field_id"`
	Type       string    `gorm:"size:32" json:"type"`
	Value      JSON      `gorm:"type:json" json:"value"`
	UpdatedBy  string    `gorm:"size:255" json:"updated_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the table name for Response
func (Response) TableName() string {
	return "closure_responses"
}
