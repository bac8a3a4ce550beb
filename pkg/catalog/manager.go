// Package catalog manages the admin-maintained catalogs referenced by
// closure records.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yourorg/fire-closure/pkg/closure"
	"github.com/yourorg/fire-closure/pkg/db"
	"github.com/yourorg/fire-closure/pkg/db/models"
)

// MaxPageSize caps a single listing page
const MaxPageSize = 1000

// ErrUnknownCatalog is returned for a catalog name outside closure.CatalogNames
var ErrUnknownCatalog = errors.New("unknown catalog")

// Manager manages catalog items
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager creates a new catalog manager
func NewManager(db *gorm.DB, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		db:     db,
		logger: logger,
	}
}

// List returns one page of a catalog ordered by name. Pages start at 1.
func (m *Manager) List(ctx context.Context, tenantID, catalog string, page, pageSize int) (*closure.CatalogPage, error) {
	if !closure.IsCatalog(catalog) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCatalog, catalog)
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = closure.DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	query := m.db.WithContext(ctx).Model(&models.CatalogItem{}).
		Scopes(db.TenantScope(tenantID)).
		Where("catalog = ?", catalog)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count catalog items: %w", err)
	}

	var rows []models.CatalogItem
	if err := query.Order("nombre ASC, id ASC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list catalog items: %w", err)
	}

	items := make([]closure.CatalogItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, closure.CatalogItem{ID: r.ID, Nombre: r.Nombre})
	}
	return &closure.CatalogPage{
		Items:    items,
		Total:    int(total),
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// CreateItemRequest represents a request to add a catalog item
type CreateItemRequest struct {
	Nombre string `json:"nombre" binding:"required"`
}

// Create adds an item to a catalog
func (m *Manager) Create(ctx context.Context, tenantID, catalog string, req *CreateItemRequest) (*closure.CatalogItem, error) {
	if !closure.IsCatalog(catalog) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCatalog, catalog)
	}
	nombre := strings.TrimSpace(req.Nombre)
	if nombre == "" {
		return nil, closure.ValidationErrors{{Field: "nombre", Message: "required field"}}
	}

	row := &models.CatalogItem{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Catalog:   catalog,
		Nombre:    nombre,
		CreatedAt: time.Now(),
	}
	if err := m.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("failed to create catalog item: %w", err)
	}

	m.logger.Info("catalog item created",
		zap.String("tenant_id", tenantID),
		zap.String("catalog", catalog),
		zap.String("item_id", row.ID))

	return &closure.CatalogItem{ID: row.ID, Nombre: row.Nombre}, nil
}

// Delete removes an item from a catalog
func (m *Manager) Delete(ctx context.Context, tenantID, catalog, itemID string) error {
	result := m.db.WithContext(ctx).
		Scopes(db.TenantScope(tenantID)).
		Where("catalog = ? AND id = ?", catalog, itemID).
		Delete(&models.CatalogItem{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete catalog item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("catalog item %s: %w", itemID, db.ErrNotFound)
	}

	m.logger.Info("catalog item deleted",
		zap.String("tenant_id", tenantID),
		zap.String("catalog", catalog),
		zap.String("item_id", itemID))

	return nil
}

// Seed fills every empty catalog of the tenant with the default items and
// returns the number of items created.
func (m *Manager) Seed(ctx context.Context, tenantID string) (int, error) {
	created := 0
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, name := range closure.CatalogNames {
			var count int64
			if err := tx.Model(&models.CatalogItem{}).
				Scopes(db.TenantScope(tenantID)).
				Where("catalog = ?", name).
				Count(&count).Error; err != nil {
				return fmt.Errorf("failed to count catalog %s: %w", name, err)
			}
			if count > 0 {
				continue
			}

			now := time.Now()
			rows := make([]models.CatalogItem, 0, len(Defaults[name]))
			for _, nombre := range Defaults[name] {
				rows = append(rows, models.CatalogItem{
					ID:        uuid.New().String(),
					TenantID:  tenantID,
					Catalog:   name,
					Nombre:    nombre,
					CreatedAt: now,
				})
			}
			if len(rows) == 0 {
				continue
			}
			if err := tx.CreateInBatches(rows, 100).Error; err != nil {
				return fmt.Errorf("failed to seed catalog %s: %w", name, err)
			}
			created += len(rows)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	m.logger.Info("catalogs seeded",
		zap.String("tenant_id", tenantID),
		zap.Int("items", created))

	return created, nil
}

// Source adapts the manager to closure.CatalogSource for one tenant
func (m *Manager) Source(tenantID string) closure.CatalogSource {
	return tenantSource{m: m, tenantID: tenantID}
}

type tenantSource struct {
	m        *Manager
	tenantID string
}

func (s tenantSource) ListCatalogoItems(ctx context.Context, catalog string, page, pageSize int) (*closure.CatalogPage, error) {
	return s.m.List(ctx, s.tenantID, catalog, page, pageSize)
}
