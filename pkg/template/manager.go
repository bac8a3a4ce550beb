// Package template provides closure template (plantilla) authoring.
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
)

var (
	// ErrTemplateActive is returned when deleting the active template
	ErrTemplateActive = errors.New("active template cannot be deleted")
	// ErrNoActiveTemplate is returned when a tenant has no active template
	ErrNoActiveTemplate = errors.New("no active closure template")
)

// Manager manages closure templates
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager creates a new template manager
func NewManager(db *gorm.DB, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		db:     db,
		logger: logger,
	}
}

// CreateTemplateRequest represents a request to create a template
type CreateTemplateRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	CreatedBy   string `json:"-"`
}

// Create creates a new draft template
func (m *Manager) Create(ctx context.Context, tenantID string, req *CreateTemplateRequest) (*models.Template, error) {
	now := time.Now()
	template := &models.Template{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     1,
		Status:      models.TemplateStatusDraft,
		CreatedBy:   req.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := m.db.WithContext(ctx).Create(template).Error; err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	m.logger.Info("template created",
		zap.String("template_id", template.ID),
		zap.String("tenant_id", tenantID),
		zap.String("name", req.Name))

	return template, nil
}

// Get retrieves a template with its ordered sections and fields
func (m *Manager) Get(ctx context.Context, tenantID, templateID string) (*models.Template, error) {
	var template models.Template
	err := m.withStructure(m.db.WithContext(ctx)).
		Scopes(db.TenantScope(tenantID)).
		Where("id = ? AND status != ?", templateID, models.TemplateStatusDeleted).
		First(&template).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, db.NotFound(err, "template", templateID)
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return &template, nil
}

// Active returns the active template of the tenant
func (m *Manager) Active(ctx context.Context, tenantID string) (*models.Template, error) {
	var template models.Template
	err := m.withStructure(m.db.WithContext(ctx)).
		Scopes(db.TenantScope(tenantID)).
		Where("status = ?", models.TemplateStatusActive).
		First(&template).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("tenant %s: %w: %w", tenantID, ErrNoActiveTemplate, db.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get active template: %w", err)
	}
	return &template, nil
}

func (m *Manager) withStructure(q *gorm.DB) *gorm.DB {
	return q.
		Preload("Sections", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("sort_order ASC, seq ASC")
		}).
		Preload("Sections.Fields", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("sort_order ASC, seq ASC")
		})
}

// ListTemplatesRequest represents a request to list templates
type ListTemplatesRequest struct {
	TenantID string
	Status   models.TemplateStatus
	Limit    int
	Offset   int
}

// List lists templates that are not deleted
func (m *Manager) List(ctx context.Context, req *ListTemplatesRequest) ([]models.Template, int64, error) {
	query := m.db.WithContext(ctx).Model(&models.Template{}).Scopes(db.TenantScope(req.TenantID))

	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	} else {
		query = query.Where("status != ?", models.TemplateStatusDeleted)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count templates: %w", err)
	}

	if req.Limit > 0 {
		query = query.Limit(req.Limit)
	}
	if req.Offset > 0 {
		query = query.Offset(req.Offset)
	}

	var templates []models.Template
	if err := query.Order("created_at DESC").Find(&templates).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list templates: %w", err)
	}

	return templates, total, nil
}

// UpdateTemplateRequest represents a request to update a template
type UpdateTemplateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// Update renames or redescribes a template, bumping its version
func (m *Manager) Update(ctx context.Context, tenantID, templateID string, req *UpdateTemplateRequest) (*models.Template, error) {
	template, err := m.Get(ctx, tenantID, templateID)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.Name != nil && *req.Name != template.Name {
		updates["name"] = *req.Name
	}
	if req.Description != nil && *req.Description != template.Description {
		updates["description"] = *req.Description
	}
	if len(updates) == 0 {
		return template, nil
	}
	updates["version"] = gorm.Expr("version + 1")
	updates["updated_at"] = time.Now()

	if err := m.db.WithContext(ctx).Model(&models.Template{}).
		Where("id = ? AND tenant_id = ?", templateID, tenantID).
		Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}

	m.logger.Info("template updated",
		zap.String("template_id", templateID),
		zap.String("tenant_id", tenantID))

	return m.Get(ctx, tenantID, templateID)
}

// Activate makes the template the only active one of its tenant
func (m *Manager) Activate(ctx context.Context, tenantID, templateID string) (*models.Template, error) {
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var template models.Template
		if err := tx.Scopes(db.TenantScope(tenantID)).
			Where("id = ? AND status != ?", templateID, models.TemplateStatusDeleted).
			First(&template).Error; err != nil {
			return db.NotFound(err, "template", templateID)
		}

		if err := tx.Model(&models.Template{}).
			Scopes(db.TenantScope(tenantID)).
			Where("status = ? AND id != ?", models.TemplateStatusActive, templateID).
			Updates(map[string]interface{}{"status": models.TemplateStatusDraft, "updated_at": time.Now()}).Error; err != nil {
			return fmt.Errorf("failed to deactivate templates: %w", err)
		}

		return tx.Model(&models.Template{}).
			Where("id = ?", templateID).
			Updates(map[string]interface{}{"status": models.TemplateStatusActive, "updated_at": time.Now()}).Error
	})
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to activate template: %w", err)
	}

	m.logger.Info("template activated",
		zap.String("template_id", templateID),
		zap.String("tenant_id", tenantID))

	return m.Get(ctx, tenantID, templateID)
}

// Delete soft-deletes a template. The active template cannot be deleted.
func (m *Manager) Delete(ctx context.Context, tenantID, templateID string) error {
	template, err := m.Get(ctx, tenantID, templateID)
	if err != nil {
		return err
	}
	if template.Status == models.TemplateStatusActive {
		return ErrTemplateActive
	}

	if err := m.db.WithContext(ctx).Model(&models.Template{}).
		Where("id = ? AND tenant_id = ?", templateID, tenantID).
		Updates(map[string]interface{}{"status": models.TemplateStatusDeleted, "updated_at": time.Now()}).Error; err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	m.logger.Info("template deleted",
		zap.String("template_id", templateID),
		zap.String("tenant_id", tenantID))

	return nil
}

// bumpVersion marks a structural change of the template
func bumpVersion(tx *gorm.DB, templateID string) error {
	return tx.Model(&models.Template{}).
		Where("id = ?", templateID).
		Updates(map[string]interface{}{"version": gorm.Expr("version + 1"), "updated_at": time.Now()}).Error
}
