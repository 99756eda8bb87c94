// Package dataflow implements the Template Resolver (spec §4.2): it
// evaluates a step's `{{Step.field}}` input expressions against recorded
// step outputs, the same narrow responsibility
// station/internal/workflows/dataflow/resolver.go gives its own resolver,
// adapted here to the `{{Name.field}}` expression grammar spec.md defines
// rather than Station's positional predecessor-step lookup.
package dataflow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/flowmediator/mediator/internal/runstate"
)

var exprPattern = regexp.MustCompile(`^\{\{\s*([a-zA-Z0-9_]+)\.([a-zA-Z0-9_]+)\s*\}\}$`)

// TemplateError is returned when a step input cannot be resolved against
// the current run state (spec §7: aborts dispatch of that step, surfaces
// as a run failure).
type TemplateError struct {
	Key  string
	Expr string
	Msg  string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template error resolving %q (%q): %s", e.Key, e.Expr, e.Msg)
}

// ResolveInputs evaluates every (key, expr) pair in input against steps,
// producing the resolved parameter mapping. Resolution is total: the first
// unresolvable expression aborts with a *TemplateError and no partial
// result is returned (spec §4.2: "partial resolution is never surfaced").
func ResolveInputs(input map[string]string, steps map[string]runstate.StepState) (map[string]interface{}, error) {
	result := make(map[string]interface{}, len(input))
	for key, expr := range input {
		value, err := resolveOne(key, expr, steps)
		if err != nil {
			return nil, err
		}
		result[key] = value
	}
	return result, nil
}

func resolveOne(key, expr string, steps map[string]runstate.StepState) (interface{}, error) {
	m := exprPattern.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return nil, &TemplateError{Key: key, Expr: expr, Msg: "not a single {{Step.field}} expression"}
	}
	stepName, field := m[1], m[2]

	stepState, ok := steps[stepName]
	if !ok {
		return nil, &TemplateError{Key: key, Expr: expr, Msg: fmt.Sprintf("no recorded state for step %q", stepName)}
	}
	if stepState.Payload == nil {
		return nil, &TemplateError{Key: key, Expr: expr, Msg: fmt.Sprintf("step %q has no payload yet", stepName)}
	}
	if stepState.Payload.Output == nil {
		return nil, &TemplateError{Key: key, Expr: expr, Msg: fmt.Sprintf("step %q payload has no output", stepName)}
	}
	value, ok := stepState.Payload.Output[field]
	if !ok {
		return nil, &TemplateError{Key: key, Expr: expr, Msg: fmt.Sprintf("step %q output has no field %q", stepName, field)}
	}
	return value, nil
}
