// Package lifecycle derives the incident state from its control sequence
// and guards the finalize and reopen transitions.
package lifecycle

import (
	"errors"
	"strings"

	"github.com/yourorg/fire-closure/pkg/closure"
)

// State is the lifecycle state of an incident
type State string

const (
	Pendiente  State = "Pendiente"
	EnAtencion State = "En atención"
	Controlado State = "Controlado"
	Extinguido State = "Extinguido"
)

// States lists the lifecycle states in order
var States = []State{Pendiente, EnAtencion, Controlado, Extinguido}

var (
	// ErrAdminRequired is returned when a non-admin attempts an admin transition
	ErrAdminRequired = errors.New("only administrators can perform this action")
	// ErrAlreadyExtinguished is returned when finalizing an extinguished incident
	ErrAlreadyExtinguished = errors.New("incident is already extinguished")
	// ErrNotExtinguished is returned when reopening an incident that is not extinguished
	ErrNotExtinguished = errors.New("incident is not extinguished")
	// ErrLocked is returned when a non-admin edits an extinguished incident
	ErrLocked = errors.New("extinguished incidents can only be edited by administrators")
)

// Parse matches a backend state string. Case and accents are ignored.
func Parse(s string) (State, bool) {
	folded := closure.Fold(strings.TrimSpace(s))
	if folded == "" {
		return "", false
	}
	for _, st := range States {
		if closure.Fold(string(st)) == folded {
			return st, true
		}
	}
	return "", false
}

// Infer derives the state from the control sequence. The most advanced
// timestamp wins.
func Infer(seq *closure.SecuenciaControl) State {
	switch {
	case seq == nil:
		return Pendiente
	case seq.ExtinguidoAt != nil:
		return Extinguido
	case seq.ControladoAt != nil:
		return Controlado
	case seq.LlegadaMediosTerrestresAt != nil || seq.LlegadaMediosAereosAt != nil:
		return EnAtencion
	}
	return Pendiente
}

// Resolve prefers a recognised authoritative state string and falls back to
// inference.
func Resolve(authoritative string, seq *closure.SecuenciaControl) State {
	if st, ok := Parse(authoritative); ok {
		return st
	}
	return Infer(seq)
}

// CanFinalize reports whether the caller may mark the incident extinguished.
// Only administrators may finalize an already extinguished incident again.
func CanFinalize(st State, isAdmin bool) error {
	if st == Extinguido && !isAdmin {
		return ErrAlreadyExtinguished
	}
	return nil
}

// CanReopen reports whether the caller may reopen the incident. Reopening
// a non-extinguished incident is a no-op reported as ErrNotExtinguished.
func CanReopen(st State, isAdmin bool) error {
	if !isAdmin {
		return ErrAdminRequired
	}
	if st != Extinguido {
		return ErrNotExtinguished
	}
	return nil
}

// CanEdit reports whether the caller may modify the closure record
func CanEdit(st State, isAdmin bool) error {
	if st == Extinguido && !isAdmin {
		return ErrLocked
	}
	return nil
}
