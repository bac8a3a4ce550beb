package editor

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/yourorg/fire-closure/pkg/auth"
	"github.com/yourorg/fire-closure/pkg/backend"
	"github.com/yourorg/fire-closure/pkg/closure"
	"github.com/yourorg/fire-closure/pkg/lifecycle"
)

// CierreEditorOptions configures a CierreEditor
type CierreEditorOptions struct {
	PageSize int
	Mapper   *closure.TechniqueMapper
	Logger   *zap.Logger
}

// CierreEditor edits the catalog-backed closure record of one incident.
// Network calls are made without holding the lock, so concurrent saves are
// all sent and whichever answer arrives last is kept.
type CierreEditor struct {
	backend  RecordBackend
	session  Session
	mapper   *closure.TechniqueMapper
	pageSize int
	logger   *zap.Logger

	mu         sync.Mutex
	incidentID string
	user       *auth.User
	catalogs   *closure.Catalogs
	record     *closure.Record
	state      *closure.FormState
	loadErr    error
	closed     bool
}

// NewCierreEditor creates a closure record editor
func NewCierreEditor(b RecordBackend, session Session, opts CierreEditorOptions) *CierreEditor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CierreEditor{
		backend:  b,
		session:  session,
		mapper:   opts.Mapper,
		pageSize: opts.PageSize,
		logger:   logger,
		catalogs: &closure.Catalogs{},
		state:    closure.NewFormState(),
	}
}

// Open loads the catalogs and the record of the incident, creating the record
// when the backend has none. On failure the editor stays usable with empty
// state and the LoadError is returned.
func (e *CierreEditor) Open(ctx context.Context, incidentID string) error {
	e.mu.Lock()
	e.incidentID = incidentID
	e.mu.Unlock()

	catalogs, err := closure.LoadCatalogs(ctx, e.backend, e.pageSize)
	if err != nil {
		return e.failLoad(newLoadError("catalogs", err))
	}

	rec, err := e.backend.GetCierre(ctx, incidentID)
	if backend.IsNotFound(err) {
		rec, err = e.backend.InitCierre(ctx, incidentID)
	}
	if err != nil {
		return e.failLoad(newLoadError("closure record", err))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.catalogs = catalogs
	e.record = rec
	e.state = closure.FromRecord(rec, catalogs.Tecnicas, e.mapper)
	e.loadErr = nil

	if dropped := e.mapper.Unmapped(catalogs.Tecnicas); len(dropped) > 0 {
		e.logger.Warn("technique catalog items without slug mapping",
			zap.String("incident_id", incidentID),
			zap.Int("count", len(dropped)))
	}
	return nil
}

func (e *CierreEditor) failLoad(err *LoadError) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.loadErr = err
	e.logger.Error("failed to open closure editor",
		zap.String("incident_id", e.incidentID),
		zap.Error(err))
	return err
}

// LoadErr returns the error of the last failed Open, if any
func (e *CierreEditor) LoadErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadErr
}

// Catalogs returns the loaded catalogs
func (e *CierreEditor) Catalogs() *closure.Catalogs {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.catalogs
}

// Record returns the last record received from the backend
func (e *CierreEditor) Record() *closure.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record
}

// State returns a copy of the working state
func (e *CierreEditor) State() *closure.FormState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// Lifecycle returns the current closure state of the incident
func (e *CierreEditor) Lifecycle() lifecycle.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lifecycleLocked()
}

func (e *CierreEditor) lifecycleLocked() lifecycle.State {
	if e.record == nil {
		return lifecycle.Infer(&e.state.Secuencia)
	}
	return lifecycle.Resolve(e.record.EstadoCierre, e.record.SecuenciaControl)
}

// Payload returns the sparse patch for the working state
func (e *CierreEditor) Payload() *closure.Payload {
	e.mu.Lock()
	defer e.mu.Unlock()
	return closure.BuildPayload(e.state, e.catalogs.Tecnicas, e.mapper)
}

// Unmapped lists technique catalog items that map to no slug
func (e *CierreEditor) Unmapped() []closure.CatalogItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mapper.Unmapped(e.catalogs.Tecnicas)
}

// Update applies fn to the working state
func (e *CierreEditor) Update(ctx context.Context, fn func(s *closure.FormState)) error {
	user, err := e.currentUser(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := lifecycle.CanEdit(e.lifecycleLocked(), user.IsAdmin); err != nil {
		return &PermissionError{Action: "edit", Err: err}
	}
	fn(e.state)
	return nil
}

// Validate checks the percentage invariants of the working state
func (e *CierreEditor) Validate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.validateLocked()
}

func (e *CierreEditor) validateLocked() error {
	err := closure.ValidateBeforeSave(e.state, e.catalogs.Tecnicas, e.mapper)
	var verrs closure.ValidationErrors
	if errors.As(err, &verrs) {
		return &ValidationError{Fields: verrs.ByField()}
	}
	return err
}

// Save validates the working state and patches it to the backend. A failed
// save leaves the working state untouched.
func (e *CierreEditor) Save(ctx context.Context) (*closure.Record, error) {
	user, err := e.currentUser(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if err := e.validateLocked(); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if err := lifecycle.CanEdit(e.lifecycleLocked(), user.IsAdmin); err != nil {
		e.mu.Unlock()
		return nil, &PermissionError{Action: "save", Err: err}
	}
	incidentID := e.incidentID
	payload := closure.BuildPayload(e.state, e.catalogs.Tecnicas, e.mapper)
	e.mu.Unlock()

	rec, err := e.backend.PatchCierreCatalogos(ctx, incidentID, payload)
	if err != nil {
		e.logger.Warn("closure save failed",
			zap.String("incident_id", incidentID),
			zap.Error(err))
		return nil, &SaveError{Message: serverMessage(err, MsgSaveFailed), Err: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.record = rec
	}
	e.logger.Info("closure saved",
		zap.String("incident_id", incidentID),
		zap.Strings("groups", payload.Groups()))
	return rec, nil
}

// Finalize marks the incident extinguished
func (e *CierreEditor) Finalize(ctx context.Context) (*closure.Record, error) {
	user, err := e.currentUser(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if err := lifecycle.CanFinalize(e.lifecycleLocked(), user.IsAdmin); err != nil {
		e.mu.Unlock()
		return nil, &PermissionError{Action: "finalize", Err: err}
	}
	incidentID := e.incidentID
	e.mu.Unlock()

	rec, err := e.backend.Finalizar(ctx, incidentID)
	if err != nil {
		return nil, &FinalizeError{Message: serverMessage(err, MsgFinalizeFailed), Err: err}
	}

	e.applyTransition(rec)
	e.logger.Info("closure finalized", zap.String("incident_id", incidentID))
	return rec, nil
}

// Reopen clears the extinguished state. Only administrators may reopen;
// reopening an incident that is not extinguished does nothing.
func (e *CierreEditor) Reopen(ctx context.Context) (*closure.Record, error) {
	user, err := e.currentUser(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	err = lifecycle.CanReopen(e.lifecycleLocked(), user.IsAdmin)
	incidentID := e.incidentID
	current := e.record
	e.mu.Unlock()

	switch {
	case errors.Is(err, lifecycle.ErrNotExtinguished):
		return current, nil
	case err != nil:
		return nil, &PermissionError{Action: "reopen", Err: err}
	}

	rec, err := e.backend.Reabrir(ctx, incidentID)
	if err != nil {
		return nil, &ReopenError{Message: serverMessage(err, MsgReopenFailed), Err: err}
	}

	e.applyTransition(rec)
	e.logger.Info("closure reopened", zap.String("incident_id", incidentID))
	return rec, nil
}

// applyTransition stores the record returned by finalize or reopen and
// syncs the extinguished timestamp of the working state with it
func (e *CierreEditor) applyTransition(rec *closure.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || rec == nil {
		return
	}
	e.record = rec
	e.state.Secuencia.ExtinguidoAt = nil
	if rec.SecuenciaControl != nil {
		e.state.Secuencia.ExtinguidoAt = rec.SecuenciaControl.ExtinguidoAt
	}
}

// Close detaches the editor. Results of requests still in flight are dropped.
func (e *CierreEditor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

func (e *CierreEditor) currentUser(ctx context.Context) (auth.User, error) {
	e.mu.Lock()
	if e.user != nil {
		u := *e.user
		e.mu.Unlock()
		return u, nil
	}
	e.mu.Unlock()

	u, err := e.session.User(ctx)
	if err != nil {
		return auth.User{}, newLoadError("session", err)
	}

	e.mu.Lock()
	e.user = &u
	e.mu.Unlock()
	return u, nil
}
