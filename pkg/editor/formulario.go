package editor

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/yourorg/fire-closure/pkg/form"
	"github.com/yourorg/fire-closure/pkg/lifecycle"
)

// FinalizeConfirmation is the question asked before finalizing a form
const FinalizeConfirmation = "Finalizing closes the incident and cannot be undone by responders. Continue?"

// ErrNotOpen is returned when a form operation runs before a successful Open
var ErrNotOpen = fmt.Errorf("closure form is not open")

// FormEditorOptions configures a FormEditor
type FormEditorOptions struct {
	// CanFinalize is the caller's permission to finalize the incident
	CanFinalize bool
	// IsAdmin lets the caller keep answering an extinguished form
	IsAdmin     bool
	Confirmer   Confirmer
	Logger      *zap.Logger
}

// SectionView is a rendered section with its supported fields
type SectionView struct {
	ID          string
	Name        string
	Description string
	Fields      []*form.FieldView
}

// FormEditor fills in the template-based closure form of one incident
type FormEditor struct {
	backend     FormBackend
	confirmer   Confirmer
	canFinalize bool
	isAdmin     bool
	logger      *zap.Logger

	mu         sync.Mutex
	incidentID string
	schema     *form.Template
	fields     map[string]form.Field
	values     *form.Values
	errors     map[string]string
	extinguido bool
	closed     bool
}

// NewFormEditor creates a closure form editor
func NewFormEditor(b FormBackend, opts FormEditorOptions) *FormEditor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	confirmer := opts.Confirmer
	if confirmer == nil {
		confirmer = AlwaysConfirm
	}
	return &FormEditor{
		backend:     b,
		confirmer:   confirmer,
		canFinalize: opts.CanFinalize,
		isAdmin:     opts.IsAdmin,
		logger:      logger,
		values:      form.NewValues(),
		errors:      map[string]string{},
	}
}

// Open loads the form of the incident. A failed load closes the editor.
func (e *FormEditor) Open(ctx context.Context, incidentID string) error {
	filled, err := e.backend.GetFormularioCierre(ctx, incidentID)
	if err != nil {
		e.Close()
		e.logger.Error("failed to load closure form",
			zap.String("incident_id", incidentID),
			zap.Error(err))
		return newLoadError("closure form", err)
	}

	values, err := filled.Values()
	if err != nil {
		e.Close()
		return &LoadError{Resource: "closure form", Message: err.Error(), Err: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.incidentID = incidentID
	e.load(filled, values)

	if unsupported := form.Unsupported(e.schema.Fields()); len(unsupported) > 0 {
		e.logger.Warn("closure form has fields of unsupported type",
			zap.String("incident_id", incidentID),
			zap.Int("count", len(unsupported)))
	}
	return nil
}

func (e *FormEditor) load(filled *form.FilledForm, values *form.Values) {
	schema := filled.Schema()
	e.schema = &schema
	e.fields = make(map[string]form.Field)
	for _, f := range schema.Fields() {
		e.fields[f.ID] = f
	}
	e.values = values
	e.errors = map[string]string{}
	e.extinguido = filled.Extinguido
}

// Template returns the loaded template with ordered sections and fields
func (e *FormEditor) Template() *form.Template {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.schema
}

// Extinguished reports whether the form has been finalized
func (e *FormEditor) Extinguished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.extinguido
}

// CanFinalize reports whether Finalize may be called
func (e *FormEditor) CanFinalize() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.canFinalize && !e.extinguido
}

// CanEdit reports whether answers may still be changed and saved
func (e *FormEditor) CanEdit() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return lifecycle.CanEdit(e.state(), e.isAdmin) == nil
}

func (e *FormEditor) state() lifecycle.State {
	if e.extinguido {
		return lifecycle.Extinguido
	}
	return lifecycle.Pendiente
}

// Values returns a copy of the working values
func (e *FormEditor) Values() *form.Values {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.values.Clone()
}

// Errors returns the field errors of the last validation
func (e *FormEditor) Errors() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.errors))
	for k, v := range e.errors {
		out[k] = v
	}
	return out
}

// Render builds the view of every section. Fields of unsupported type are
// left out.
func (e *FormEditor) Render() []SectionView {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.schema == nil {
		return nil
	}

	views := make([]SectionView, 0, len(e.schema.Sections))
	for _, s := range e.schema.Sections {
		sv := SectionView{ID: s.ID, Name: s.Name, Description: s.Description}
		for _, f := range s.Fields {
			current, _ := e.values.Get(f.ID)
			view := form.Render(f, current)
			if view == nil {
				continue
			}
			view.Error = e.errors[f.ID]
			sv.Fields = append(sv.Fields, view)
		}
		views = append(views, sv)
	}
	return views
}

// Unsupported lists the fields that Render leaves out
func (e *FormEditor) Unsupported() []form.Field {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.schema == nil {
		return nil
	}
	return form.Unsupported(e.schema.Fields())
}

// SetText applies typed text to a text, date or numeric field
func (e *FormEditor) SetText(fieldID, raw string) error {
	return e.change(fieldID, func(f form.Field, _ form.Value) form.Value {
		return form.SetText(f, raw)
	})
}

// SetBool applies a checkbox or boolean change
func (e *FormEditor) SetBool(fieldID string, checked bool) error {
	return e.change(fieldID, func(f form.Field, _ form.Value) form.Value {
		return form.SetBool(f, checked)
	})
}

// Select picks or, when already picked, clears an option of a select field
func (e *FormEditor) Select(fieldID, option string) error {
	return e.change(fieldID, func(f form.Field, cur form.Value) form.Value {
		return form.Select(f, cur, option)
	})
}

// Toggle adds or removes an option of a multiselect field
func (e *FormEditor) Toggle(fieldID, option string) error {
	return e.change(fieldID, func(f form.Field, cur form.Value) form.Value {
		return form.Toggle(f, cur, option)
	})
}

// SetQuantity sets the quantity of a selected option
func (e *FormEditor) SetQuantity(fieldID, option, raw string) error {
	return e.change(fieldID, func(f form.Field, cur form.Value) form.Value {
		return form.SetQuantity(f, cur, option, raw)
	})
}

// SetPercentage sets the percentage of a selected option
func (e *FormEditor) SetPercentage(fieldID, option, raw string) error {
	return e.change(fieldID, func(f form.Field, cur form.Value) form.Value {
		return form.SetPercentage(f, cur, option, raw)
	})
}

// change runs a field change handler. A cleared answer stays in the map as
// nil so the next save sends it as null.
func (e *FormEditor) change(fieldID string, fn func(form.Field, form.Value) form.Value) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.schema == nil {
		return ErrNotOpen
	}
	f, ok := e.fields[fieldID]
	if !ok {
		return fmt.Errorf("unknown field: %s", fieldID)
	}
	if !f.Type.Known() {
		return fmt.Errorf("field %s has unsupported type %q", fieldID, f.Type)
	}
	if err := lifecycle.CanEdit(e.state(), e.isAdmin); err != nil {
		return &PermissionError{Action: "edit", Err: err}
	}
	current, _ := e.values.Get(fieldID)
	e.values.Set(fieldID, fn(f, current))
	delete(e.errors, fieldID)
	return nil
}

// Responses assembles the wire responses of the working values
func (e *FormEditor) Responses() []form.ResponseInput {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.schema == nil {
		return nil
	}
	return form.BuildResponses(e.schema.Fields(), e.values)
}

// Save checks every required field and submits the responses. Missing
// fields are all reported at once and nothing is sent. An extinguished form
// is only saved for administrators.
func (e *FormEditor) Save(ctx context.Context) error {
	e.mu.Lock()
	if e.schema == nil {
		e.mu.Unlock()
		return ErrNotOpen
	}
	if err := lifecycle.CanEdit(e.state(), e.isAdmin); err != nil {
		e.mu.Unlock()
		return &PermissionError{Action: "save", Err: err}
	}
	errs := form.Validate(e.schema.Fields(), e.values)
	e.errors = errs
	if len(errs) > 0 {
		e.mu.Unlock()
		return &ValidationError{Fields: errs}
	}
	incidentID := e.incidentID
	responses := form.BuildResponses(e.schema.Fields(), e.values)
	e.mu.Unlock()

	if err := e.backend.SaveRespuestas(ctx, incidentID, responses); err != nil {
		e.logger.Warn("closure form save failed",
			zap.String("incident_id", incidentID),
			zap.Error(err))
		return &SaveError{Message: serverMessage(err, MsgSaveFailed), Err: err}
	}

	e.logger.Info("closure form saved",
		zap.String("incident_id", incidentID),
		zap.Int("responses", len(responses)))
	return nil
}

// Finalize asks for confirmation, finalizes the incident and reloads the
// form. A declined confirmation returns false with no error.
func (e *FormEditor) Finalize(ctx context.Context) (bool, error) {
	e.mu.Lock()
	if e.schema == nil {
		e.mu.Unlock()
		return false, ErrNotOpen
	}
	switch {
	case !e.canFinalize:
		e.mu.Unlock()
		return false, &PermissionError{Action: "finalize", Err: fmt.Errorf("caller may not finalize incidents")}
	case e.extinguido:
		e.mu.Unlock()
		return false, &PermissionError{Action: "finalize", Err: fmt.Errorf("form is already extinguished")}
	}
	incidentID := e.incidentID
	e.mu.Unlock()

	ok, err := e.confirmer.Confirm(ctx, FinalizeConfirmation)
	if err != nil {
		return false, &FinalizeError{Message: MsgFinalizeFailed, Err: err}
	}
	if !ok {
		return false, nil
	}

	if err := e.backend.FinalizarIncendio(ctx, incidentID); err != nil {
		return false, &FinalizeError{Message: serverMessage(err, MsgFinalizeFailed), Err: err}
	}

	filled, err := e.backend.GetFormularioCierre(ctx, incidentID)
	if err != nil {
		e.logger.Warn("failed to refresh closure form after finalize",
			zap.String("incident_id", incidentID),
			zap.Error(err))
		e.mu.Lock()
		if !e.closed {
			e.extinguido = true
		}
		e.mu.Unlock()
		return true, nil
	}

	values, verr := filled.Values()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return true, nil
	}
	if verr == nil {
		e.load(filled, values)
	}
	e.extinguido = true
	e.logger.Info("closure form finalized", zap.String("incident_id", incidentID))
	return true, nil
}

// Close detaches the editor. Results of requests still in flight are dropped.
func (e *FormEditor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

// Closed reports whether the editor has been closed
func (e *FormEditor) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
