// Package formfill serves the template-based closure form of an incident:
// the active template with the stored responses, response saving and the
// incident finalization.
package formfill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yourorg/fire-closure/pkg/auth"
	"github.com/yourorg/fire-closure/pkg/db"
	"github.com/yourorg/fire-closure/pkg/db/models"
	"github.com/yourorg/fire-closure/pkg/form"
	"github.com/yourorg/fire-closure/pkg/lifecycle"
	"github.com/yourorg/fire-closure/pkg/template"
)

// Manager manages filled closure forms
type Manager struct {
	db        *gorm.DB
	templates *template.Manager
	policy    *auth.Policy
	logger    *zap.Logger
	now       func() time.Time
}

// NewManager creates a new filled-form manager. The policy decides who may
// still answer the form of an extinguished incident.
func NewManager(db *gorm.DB, templates *template.Manager, policy *auth.Policy, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		db:        db,
		templates: templates,
		policy:    policy,
		logger:    logger,
		now:       time.Now,
	}
}

// Load returns the active template of the tenant with the stored responses
// of the incident. Sections and fields come back ordered.
func (m *Manager) Load(ctx context.Context, tenantID, incidentID string) (*form.FilledForm, error) {
	stored, err := m.templates.Active(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	tpl := template.ToForm(stored)

	var rows []models.Response
	if err := m.db.WithContext(ctx).
		Scopes(db.TenantScope(tenantID)).
		Where("incident_id = ?", incidentID).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load responses: %w", err)
	}
	answers := make(map[string]json.RawMessage, len(rows))
	for _, r := range rows {
		if len(r.Value) > 0 {
			answers[r.FieldID] = json.RawMessage(r.Value)
		}
	}

	incident, err := m.incident(m.db.WithContext(ctx), tenantID, incidentID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	out := &form.FilledForm{
		Secciones:  make([]form.FilledSection, 0, len(tpl.Sections)),
		Extinguido: incident != nil && incident.Extinguido,
	}
	for _, s := range tpl.Sections {
		fs := form.FilledSection{Campos: make([]form.FilledField, 0, len(s.Fields))}
		for _, f := range s.Fields {
			fs.Campos = append(fs.Campos, form.FilledField{Field: f, Respuesta: answers[f.ID]})
		}
		s.Fields = nil
		fs.Section = s
		out.Secciones = append(out.Secciones, fs)
	}
	tpl.Sections = nil
	out.Template = tpl

	return out, nil
}

// SaveRequest is the body of a response submission
type SaveRequest struct {
	Respuestas []form.ResponseInput `json:"respuestas" binding:"required"`
}

// SaveResponses upserts one response per submitted field. A null value
// removes the stored response. The last write wins. Once the incident is
// extinguished only users allowed by the policy may save.
func (m *Manager) SaveResponses(ctx context.Context, tenantID, incidentID string, responses []form.ResponseInput, user auth.User) error {
	stored, err := m.templates.Active(ctx, tenantID)
	if err != nil {
		return err
	}
	tpl := template.ToForm(stored)
	fields := make(map[string]form.Field)
	for _, f := range tpl.Fields() {
		fields[f.ID] = f
	}

	var errs form.ValidationErrors
	type entry struct {
		field form.Field
		value any
	}
	entries := make([]entry, 0, len(responses))
	for _, r := range responses {
		field, ok := fields[r.FieldID]
		if !ok {
			errs = append(errs, form.ValidationError{Field: r.FieldID, Message: "unknown field"})
			continue
		}
		v, err := decode(field, r.Value)
		if err != nil {
			errs = append(errs, form.ValidationError{Field: r.FieldID, Message: err.Error()})
			continue
		}
		if err := form.CheckOptions(field, v); err != nil {
			var verr form.ValidationError
			if errors.As(err, &verr) {
				errs = append(errs, verr)
				continue
			}
			return err
		}
		var encoded any
		if !form.IsEmptyValue(v) {
			encoded = form.Encode(field, v)
		}
		entries = append(entries, entry{field: field, value: encoded})
	}
	if len(errs) > 0 {
		return errs
	}

	now := m.now()
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		incident, err := m.ensureIncident(tx, tenantID, incidentID, stored.ID)
		if err != nil {
			return err
		}
		if err := m.policy.CanEdit(user, stateOf(incident)); err != nil {
			return err
		}
		for _, e := range entries {
			if e.value == nil {
				if err := tx.Scopes(db.TenantScope(tenantID)).
					Where("incident_id = ? AND field_id = ?", incidentID, e.field.ID).
					Delete(&models.Response{}).Error; err != nil {
					return fmt.Errorf("failed to clear response: %w", err)
				}
				continue
			}

			data, err := json.Marshal(e.value)
			if err != nil {
				return fmt.Errorf("failed to encode response: %w", err)
			}
			row := models.Response{
				ID:         uuid.New().String(),
				TenantID:   tenantID,
				IncidentID: incidentID,
				FieldID:    e.field.ID,
				Type:       string(e.field.Type),
				Value:      models.JSON(data),
				UpdatedBy:  user.ID,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "incident_id"}, {Name: "field_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"type", "value", "updated_by", "updated_at"}),
			}).Create(&row).Error; err != nil {
				return fmt.Errorf("failed to save response: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Info("closure responses saved",
		zap.String("tenant_id", tenantID),
		zap.String("incident_id", incidentID),
		zap.String("user_id", user.ID),
		zap.Int("count", len(entries)))

	return nil
}

// FinalizeIncident marks the template-based form of the incident
// extinguished. This is independent from the closure record finalization.
func (m *Manager) FinalizeIncident(ctx context.Context, tenantID, incidentID string, user auth.User) error {
	stored, err := m.templates.Active(ctx, tenantID)
	if err != nil {
		return err
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		incident, err := m.ensureIncident(tx, tenantID, incidentID, stored.ID)
		if err != nil {
			return err
		}
		if err := lifecycle.CanFinalize(stateOf(incident), user.IsAdmin); err != nil {
			return err
		}

		updates := map[string]interface{}{
			"extinguido":   true,
			"finalized_by": user.ID,
			"updated_at":   m.now(),
		}
		if incident.ExtinguidoAt == nil {
			updates["extinguido_at"] = m.now().UTC()
		}
		if err := tx.Model(incident).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to finalize incident: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Info("incident finalized",
		zap.String("tenant_id", tenantID),
		zap.String("incident_id", incidentID),
		zap.String("user_id", user.ID))

	return nil
}

// stateOf is the lifecycle state of the form. Only the extinguished flag is
// tracked for template-based forms.
func stateOf(f *models.IncidentForm) lifecycle.State {
	if f.Extinguido {
		return lifecycle.Extinguido
	}
	return lifecycle.Pendiente
}

func (m *Manager) incident(q *gorm.DB, tenantID, incidentID string) (*models.IncidentForm, error) {
	var row models.IncidentForm
	err := q.Scopes(db.TenantScope(tenantID)).
		Where("incident_id = ?", incidentID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, db.NotFound(err, "incident form", incidentID)
		}
		return nil, fmt.Errorf("failed to get incident form: %w", err)
	}
	return &row, nil
}

func (m *Manager) ensureIncident(tx *gorm.DB, tenantID, incidentID, templateID string) (*models.IncidentForm, error) {
	row, err := m.incident(tx, tenantID, incidentID)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	now := m.now()
	row = &models.IncidentForm{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		IncidentID: incidentID,
		TemplateID: templateID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := tx.Create(row).Error; err != nil {
		return nil, fmt.Errorf("failed to create incident form: %w", err)
	}
	return row, nil
}

// decode reads a submitted value through its JSON form so values built in
// Go and values read from a request body are handled alike
func decode(field form.Field, raw any) (form.Value, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", field.ID, err)
	}
	return form.DecodeJSON(field, data)
}
