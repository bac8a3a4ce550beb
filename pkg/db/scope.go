package db

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a tenant-scoped lookup finds nothing
var ErrNotFound = errors.New("not found")

// TenantScope is a GORM scope that filters by tenant
func TenantScope(tenantID string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tenant_id = ?", tenantID)
	}
}

// NotFound maps gorm.ErrRecordNotFound to ErrNotFound, naming the entity
func NotFound(err error, entity, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
	}
	return err
}
