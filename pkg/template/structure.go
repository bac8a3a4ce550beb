package template

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yourorg/fire-closure/pkg/db"
	"github.com/yourorg/fire-closure/pkg/db/models"
	"github.com/yourorg/fire-closure/pkg/form"
)

// SectionRequest represents a request to add a section
type SectionRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Order       int    `json:"order"`
}

// UpdateSectionRequest represents a request to change a section
type UpdateSectionRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Order       *int    `json:"order"`
}

// FieldRequest describes a field definition
type FieldRequest struct {
	Name          string                 `json:"name" binding:"required"`
	Description   string                 `json:"description"`
	Placeholder   string                 `json:"placeholder"`
	Type          string                 `json:"type" binding:"required"`
	Order         int                    `json:"order"`
	Required      bool                   `json:"required"`
	Unit          string                 `json:"unit"`
	ParentFieldID *string                `json:"parent_field_id"`
	Options       []form.Option          `json:"options"`
	Validations   map[string]interface{} `json:"validations"`
	Dependencies  map[string]interface{} `json:"dependencies"`
}

func (r *FieldRequest) definition(id, sectionID string) form.Field {
	f := form.Field{
		ID:           id,
		SectionID:    sectionID,
		Name:         r.Name,
		Description:  r.Description,
		Placeholder:  r.Placeholder,
		Type:         form.FieldType(r.Type),
		Order:        r.Order,
		Required:     r.Required,
		Unit:         r.Unit,
		Options:      r.Options,
		Validations:  r.Validations,
		Dependencies: r.Dependencies,
	}
	if r.ParentFieldID != nil {
		f.ParentFieldID = *r.ParentFieldID
	}
	return f
}

// AddSection appends a section to a template
func (m *Manager) AddSection(ctx context.Context, tenantID, templateID string, req *SectionRequest) (*models.Section, error) {
	now := time.Now()
	section := &models.Section{
		ID:          uuid.New().String(),
		TemplateID:  templateID,
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		SortOrder:   req.Order,
		Seq:         now.UnixNano(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := m.requireTemplate(tx, tenantID, templateID); err != nil {
			return err
		}
		if err := tx.Create(section).Error; err != nil {
			return fmt.Errorf("failed to create section: %w", err)
		}
		return bumpVersion(tx, templateID)
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("section added",
		zap.String("template_id", templateID),
		zap.String("section_id", section.ID))

	return section, nil
}

// UpdateSection changes the name, description or order of a section
func (m *Manager) UpdateSection(ctx context.Context, tenantID, sectionID string, req *UpdateSectionRequest) (*models.Section, error) {
	var section models.Section
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Scopes(db.TenantScope(tenantID)).First(&section, "id = ?", sectionID).Error; err != nil {
			return db.NotFound(err, "section", sectionID)
		}

		updates := make(map[string]interface{})
		if req.Name != nil {
			updates["name"] = *req.Name
		}
		if req.Description != nil {
			updates["description"] = *req.Description
		}
		if req.Order != nil {
			updates["sort_order"] = *req.Order
		}
		if len(updates) == 0 {
			return nil
		}
		updates["updated_at"] = time.Now()

		if err := tx.Model(&section).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update section: %w", err)
		}
		return bumpVersion(tx, section.TemplateID)
	})
	if err != nil {
		return nil, err
	}
	return &section, nil
}

// DeleteSection removes a section together with its fields
func (m *Manager) DeleteSection(ctx context.Context, tenantID, sectionID string) error {
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var section models.Section
		if err := tx.Scopes(db.TenantScope(tenantID)).First(&section, "id = ?", sectionID).Error; err != nil {
			return db.NotFound(err, "section", sectionID)
		}
		if err := tx.Where("section_id = ?", sectionID).Delete(&models.Field{}).Error; err != nil {
			return fmt.Errorf("failed to delete section fields: %w", err)
		}
		if err := tx.Delete(&section).Error; err != nil {
			return fmt.Errorf("failed to delete section: %w", err)
		}
		return bumpVersion(tx, section.TemplateID)
	})
	if err != nil {
		return err
	}

	m.logger.Info("section deleted", zap.String("section_id", sectionID))
	return nil
}

// AddField appends a field to a section. The definition is validated first.
func (m *Manager) AddField(ctx context.Context, tenantID, sectionID string, req *FieldRequest) (*models.Field, error) {
	id := uuid.New().String()
	def := req.definition(id, sectionID)
	if err := form.ValidateFieldDefinition(def); err != nil {
		return nil, err
	}

	now := time.Now()
	field := toModel(def, tenantID)
	field.Seq = now.UnixNano()
	field.CreatedAt = now
	field.UpdatedAt = now

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var section models.Section
		if err := tx.Scopes(db.TenantScope(tenantID)).First(&section, "id = ?", sectionID).Error; err != nil {
			return db.NotFound(err, "section", sectionID)
		}
		if err := tx.Create(field).Error; err != nil {
			return fmt.Errorf("failed to create field: %w", err)
		}
		return bumpVersion(tx, section.TemplateID)
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("field added",
		zap.String("section_id", sectionID),
		zap.String("field_id", field.ID),
		zap.String("type", field.Type))

	return field, nil
}

// UpdateField replaces the definition of a field
func (m *Manager) UpdateField(ctx context.Context, tenantID, fieldID string, req *FieldRequest) (*models.Field, error) {
	var field models.Field
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Scopes(db.TenantScope(tenantID)).First(&field, "id = ?", fieldID).Error; err != nil {
			return db.NotFound(err, "field", fieldID)
		}

		def := req.definition(fieldID, field.SectionID)
		if err := form.ValidateFieldDefinition(def); err != nil {
			return err
		}
		next := toModel(def, tenantID)
		next.Seq = field.Seq
		next.CreatedAt = field.CreatedAt
		next.UpdatedAt = time.Now()

		if err := tx.Save(next).Error; err != nil {
			return fmt.Errorf("failed to update field: %w", err)
		}
		field = *next

		var section models.Section
		if err := tx.First(&section, "id = ?", field.SectionID).Error; err != nil {
			return fmt.Errorf("failed to load section: %w", err)
		}
		return bumpVersion(tx, section.TemplateID)
	})
	if err != nil {
		return nil, err
	}
	return &field, nil
}

// DeleteField removes a field
func (m *Manager) DeleteField(ctx context.Context, tenantID, fieldID string) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var field models.Field
		if err := tx.Scopes(db.TenantScope(tenantID)).First(&field, "id = ?", fieldID).Error; err != nil {
			return db.NotFound(err, "field", fieldID)
		}
		if err := tx.Delete(&field).Error; err != nil {
			return fmt.Errorf("failed to delete field: %w", err)
		}
		var section models.Section
		if err := tx.First(&section, "id = ?", field.SectionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		return bumpVersion(tx, section.TemplateID)
	})
}

func (m *Manager) requireTemplate(tx *gorm.DB, tenantID, templateID string) error {
	var count int64
	if err := tx.Model(&models.Template{}).
		Scopes(db.TenantScope(tenantID)).
		Where("id = ? AND status != ?", templateID, models.TemplateStatusDeleted).
		Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check template: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("template %s: %w", templateID, db.ErrNotFound)
	}
	return nil
}
