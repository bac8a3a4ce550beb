// Package record stores catalog-backed closure records and applies their
// lifecycle transitions.
package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yourorg/fire-closure/pkg/auth"
	"github.com/yourorg/fire-closure/pkg/closure"
	"github.com/yourorg/fire-closure/pkg/db"
	"github.com/yourorg/fire-closure/pkg/db/models"
	"github.com/yourorg/fire-closure/pkg/lifecycle"
)

// Manager manages closure records
type Manager struct {
	db     *gorm.DB
	policy *auth.Policy
	logger *zap.Logger
	now    func() time.Time
}

// NewManager creates a new closure record manager. The policy decides who
// may edit extinguished records.
func NewManager(db *gorm.DB, policy *auth.Policy, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		db:     db,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// InitRequest represents a request to create the record of an incident
type InitRequest struct {
	IncendioUUID string `json:"incendio_uuid" binding:"required"`
}

// Init creates an empty record for the incident. An existing record is
// returned unchanged.
func (m *Manager) Init(ctx context.Context, tenantID string, req *InitRequest, user auth.User) (*closure.Record, error) {
	row, err := m.load(m.db.WithContext(ctx), tenantID, req.IncendioUUID)
	if err == nil {
		return toRecord(row)
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	now := m.now()
	row = &models.ClosureRecord{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		IncidentID: req.IncendioUUID,
		Data:       models.JSON("{}"),
		UpdatedBy:  user.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.db.WithContext(ctx).Create(row).Error; err != nil {
		// a concurrent init may have won the unique index
		if existing, lerr := m.load(m.db.WithContext(ctx), tenantID, req.IncendioUUID); lerr == nil {
			return toRecord(existing)
		}
		return nil, fmt.Errorf("failed to create closure record: %w", err)
	}

	m.logger.Info("closure record initialized",
		zap.String("tenant_id", tenantID),
		zap.String("incident_id", req.IncendioUUID))

	return toRecord(row)
}

// Get returns the record of an incident
func (m *Manager) Get(ctx context.Context, tenantID, incidentID string) (*closure.Record, error) {
	row, err := m.load(m.db.WithContext(ctx), tenantID, incidentID)
	if err != nil {
		return nil, err
	}
	return toRecord(row)
}

// Patch merges a sparse payload onto the stored record. Extinguished
// records can only be patched by users the policy lets edit them.
func (m *Manager) Patch(ctx context.Context, tenantID, incidentID string, patch *closure.Payload, user auth.User) (*closure.Record, error) {
	return m.mutate(ctx, tenantID, incidentID, user, func(r *closure.Record, st lifecycle.State) error {
		if err := m.policy.CanEdit(user, st); err != nil {
			return err
		}
		r.Apply(patch)
		return nil
	})
}

// Finalizar marks the incident extinguished. The extinguished timestamp is
// kept when already set.
func (m *Manager) Finalizar(ctx context.Context, tenantID, incidentID string, user auth.User) (*closure.Record, error) {
	return m.mutate(ctx, tenantID, incidentID, user, func(r *closure.Record, st lifecycle.State) error {
		if err := lifecycle.CanFinalize(st, user.IsAdmin); err != nil {
			return err
		}
		r.MarkExtinguished(m.now().UTC())
		r.EstadoCierre = string(lifecycle.Extinguido)
		return nil
	})
}

// Reabrir reopens an extinguished incident. The stored state is cleared so
// it is inferred again from the remaining timestamps. Reopening an incident
// that is not extinguished leaves it unchanged.
func (m *Manager) Reabrir(ctx context.Context, tenantID, incidentID string, user auth.User) (*closure.Record, error) {
	return m.mutate(ctx, tenantID, incidentID, user, func(r *closure.Record, st lifecycle.State) error {
		if err := lifecycle.CanReopen(st, user.IsAdmin); err != nil {
			return err
		}
		r.ClearExtinguished()
		r.EstadoCierre = ""
		return nil
	})
}

func (m *Manager) mutate(ctx context.Context, tenantID, incidentID string, user auth.User, fn func(*closure.Record, lifecycle.State) error) (*closure.Record, error) {
	var out *closure.Record
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := m.load(tx, tenantID, incidentID)
		if err != nil {
			return err
		}
		rec, err := toRecord(row)
		if err != nil {
			return err
		}

		st := lifecycle.Resolve(rec.EstadoCierre, rec.SecuenciaControl)
		if err := fn(rec, st); err != nil {
			if errors.Is(err, lifecycle.ErrNotExtinguished) {
				out = rec
				return nil
			}
			return err
		}

		data, err := json.Marshal(&rec.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode closure record: %w", err)
		}
		now := m.now()
		if err := tx.Model(row).Updates(map[string]interface{}{
			"data":          models.JSON(data),
			"estado_cierre": rec.EstadoCierre,
			"updated_by":    user.ID,
			"updated_at":    now,
		}).Error; err != nil {
			return fmt.Errorf("failed to update closure record: %w", err)
		}
		rec.UpdatedAt = &now
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("closure record updated",
		zap.String("tenant_id", tenantID),
		zap.String("incident_id", incidentID),
		zap.String("user_id", user.ID),
		zap.String("estado", string(lifecycle.Resolve(out.EstadoCierre, out.SecuenciaControl))))

	return out, nil
}

func (m *Manager) load(q *gorm.DB, tenantID, incidentID string) (*models.ClosureRecord, error) {
	var row models.ClosureRecord
	err := q.Scopes(db.TenantScope(tenantID)).
		Where("incident_id = ?", incidentID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, db.NotFound(err, "closure record", incidentID)
		}
		return nil, fmt.Errorf("failed to get closure record: %w", err)
	}
	return &row, nil
}

func toRecord(row *models.ClosureRecord) (*closure.Record, error) {
	rec := &closure.Record{
		IncendioUUID: row.IncidentID,
		EstadoCierre: row.EstadoCierre,
	}
	if len(row.Data) > 0 {
		if err := json.Unmarshal(row.Data, &rec.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode closure record %s: %w", row.IncidentID, err)
		}
	}
	updated := row.UpdatedAt
	rec.UpdatedAt = &updated
	rec.Normalize()
	return rec, nil
}
