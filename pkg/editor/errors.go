package editor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yourorg/fire-closure/pkg/backend"
)

// ValidationError is a client-side rejection. It carries every offending
// field or group at once and is raised before any network call.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// LoadError reports a failed catalog, template or record fetch
type LoadError struct {
	Resource string
	Message  string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %s", e.Resource, e.Message)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SaveError reports a rejected or failed save
type SaveError struct {
	Message string
	Err     error
}

func (e *SaveError) Error() string { return e.Message }

func (e *SaveError) Unwrap() error { return e.Err }

// FinalizeError reports a rejected or failed finalize
type FinalizeError struct {
	Message string
	Err     error
}

func (e *FinalizeError) Error() string { return e.Message }

func (e *FinalizeError) Unwrap() error { return e.Err }

// ReopenError reports a rejected or failed reopen
type ReopenError struct {
	Message string
	Err     error
}

func (e *ReopenError) Error() string { return e.Message }

func (e *ReopenError) Unwrap() error { return e.Err }

// PermissionError is a client-side short-circuit for a forbidden action.
// It never reaches the network.
type PermissionError struct {
	Action string
	Err    error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s not permitted: %v", e.Action, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// Generic messages used when the backend gave none
const (
	MsgSaveFailed     = "could not save the closure, try again"
	MsgFinalizeFailed = "could not finalize the incident, try again"
	MsgReopenFailed   = "could not reopen the incident, try again"
	MsgLoadFailed     = "could not reach the server"
)

func serverMessage(err error, generic string) string {
	if msg, ok := backend.ServerMessage(err); ok {
		return msg
	}
	return generic
}

func newLoadError(resource string, err error) *LoadError {
	return &LoadError{Resource: resource, Message: serverMessage(err, MsgLoadFailed), Err: err}
}
