// Package editor drives the two closure editors: the catalog-backed closure
// record and the template-based closure form.
package editor

import (
	"context"

	"github.com/yourorg/fire-closure/pkg/auth"
	"github.com/yourorg/fire-closure/pkg/closure"
	"github.com/yourorg/fire-closure/pkg/form"
)

// Session resolves the current caller
type Session interface {
	User(ctx context.Context) (auth.User, error)
}

// RecordBackend is the part of the backend the closure record editor uses
type RecordBackend interface {
	closure.CatalogSource
	GetCierre(ctx context.Context, incidentID string) (*closure.Record, error)
	InitCierre(ctx context.Context, incidentID string) (*closure.Record, error)
	PatchCierreCatalogos(ctx context.Context, incidentID string, payload *closure.Payload) (*closure.Record, error)
	Finalizar(ctx context.Context, incidentID string) (*closure.Record, error)
	Reabrir(ctx context.Context, incidentID string) (*closure.Record, error)
}

// FormBackend is the part of the backend the closure form editor uses
type FormBackend interface {
	GetFormularioCierre(ctx context.Context, incidentID string) (*form.FilledForm, error)
	SaveRespuestas(ctx context.Context, incidentID string, responses []form.ResponseInput) error
	FinalizarIncendio(ctx context.Context, incidentID string) error
}

// Confirmer asks the user to confirm an irreversible action
type Confirmer interface {
	Confirm(ctx context.Context, message string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer
type ConfirmFunc func(ctx context.Context, message string) (bool, error)

// Confirm calls f
func (f ConfirmFunc) Confirm(ctx context.Context, message string) (bool, error) {
	return f(ctx, message)
}

// AlwaysConfirm accepts every confirmation
var AlwaysConfirm = ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })
