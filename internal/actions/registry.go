// Package actions implements the Action Registry (spec §4.4): a
// name→handler mapping for success/failure actions. Handlers receive an
// ActionContext exposing the current run/step and operations to retry the
// step or invoke another handler, modeled on the registry/executor pattern
// in station/internal/workflows/runtime/executor.go, generalized from
// Station's fixed step-type dispatch to spec.md's open action-name
// extension point.
package actions

import (
	"context"
	"fmt"
	"log"
)

// Handler is a success or failure action. It receives the params carried
// by the step's action descriptor (spec §3 ActionDescriptor) and an
// ActionContext to act through.
type Handler func(ctx context.Context, actx Context, params map[string]interface{}) error

// Registry is a name→Handler mapping. Two distinct Registry values exist
// in the mediator: one for success actions, one for failure actions
// (spec §4.4).
type Registry struct {
	kind     string
	handlers map[string]Handler
}

// NewRegistry returns an empty registry. kind is used only in warning
// messages ("success" or "failure").
func NewRegistry(kind string) *Registry {
	return &Registry{kind: kind, handlers: make(map[string]Handler)}
}

// Register installs a handler under name, overwriting any existing
// handler of the same name. This is the extension point for user-supplied
// actions registered at startup (spec §9).
func (r *Registry) Register(name string, h Handler) {
	r.handlers[name] = h
}

// Run invokes the named handler. An unregistered name produces an
// operator-visible warning and is otherwise a no-op (spec §4.4), since a
// failing action must never crash the mediator process.
func (r *Registry) Run(ctx context.Context, actx Context, name string, params map[string]interface{}) error {
	h, ok := r.handlers[name]
	if !ok {
		log.Printf("actions: unknown %s action %q, ignoring", r.kind, name)
		return nil
	}
	if err := h(ctx, actx, params); err != nil {
		return fmt.Errorf("actions: %s action %q: %w", r.kind, name, err)
	}
	return nil
}

// Has reports whether name is registered, used by callers that want to
// distinguish "unknown action" from "handler ran and returned nil" without
// duplicating Run's warning log.
func (r *Registry) Has(name string) bool {
	_, ok := r.handlers[name]
	return ok
}
