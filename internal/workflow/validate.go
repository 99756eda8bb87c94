package workflow

import (
	"fmt"
	"regexp"
	"strings"
)

var stepNamePattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
var versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
var templateExprPattern = regexp.MustCompile(`^\{\{\s*([a-zA-Z0-9_]+)\.([a-zA-Z0-9_]+)\s*\}\}$`)

// knownActions is used only to produce non-fatal warnings (spec §4.1: "the
// validator does not reject unknown actions but may warn").
var knownActions = map[string]struct{}{
	"log": {}, "log_output": {}, "retry": {}, "skip": {}, "abort": {},
}

// Warnings accumulates non-fatal validation findings alongside the
// ValidationError. A definition with only warnings is still usable.
type Warnings struct {
	Issues []ValidationIssue
}

// ValidateDefinition performs the structural checks of spec §4.1 against an
// already-parsed Definition. It returns (nil, warnings) on success, or a
// *ValidationError (wrapping ErrDefinition) listing every offense found —
// validation never stops at the first error so operators see the whole
// picture at once.
func ValidateDefinition(def *Definition) (*ValidationError, *Warnings) {
	var errs []ValidationIssue
	var warns []ValidationIssue

	if strings.TrimSpace(def.Name) == "" {
		errs = append(errs, ValidationIssue{Path: "/name", Message: "name must not be empty"})
	}

	if !versionPattern.MatchString(def.Version) {
		errs = append(errs, ValidationIssue{
			Path:    "/version",
			Message: fmt.Sprintf("version %q must match X.Y.Z", def.Version),
		})
	}

	if strings.TrimSpace(def.InitiatingEvent.Topic) == "" {
		errs = append(errs, ValidationIssue{Path: "/initiating_event/topic", Message: "initiating_event.topic must not be empty"})
	}

	if len(def.Steps) < 2 {
		errs = append(errs, ValidationIssue{Path: "/steps", Message: "a workflow requires at least two steps"})
	}

	names := make(map[string]int)
	for i, step := range def.Steps {
		path := fmt.Sprintf("/steps/%d", i)

		if !stepNamePattern.MatchString(step.Name) {
			errs = append(errs, ValidationIssue{
				Path:    path + "/name",
				Message: fmt.Sprintf("step name %q must be alphanumeric", step.Name),
			})
		} else if prev, dup := names[step.Name]; dup {
			errs = append(errs, ValidationIssue{
				Path:    path + "/name",
				Message: fmt.Sprintf("step name %q duplicates step at /steps/%d", step.Name, prev),
			})
		} else {
			names[step.Name] = i
		}

		if !isExecuteTopic(step.Topic) {
			errs = append(errs, ValidationIssue{
				Path:    path + "/topic",
				Message: fmt.Sprintf("topic %q must match <ns>.execute.<action>", step.Topic),
			})
		}

		if len(step.ResponseTopics.Success) == 0 {
			errs = append(errs, ValidationIssue{Path: path + "/response_topic/success", Message: "at least one success response topic is required"})
		}
		for j, t := range step.ResponseTopics.Success {
			if !isSuccessTopic(t) {
				errs = append(errs, ValidationIssue{
					Path:    fmt.Sprintf("%s/response_topic/success/%d", path, j),
					Message: fmt.Sprintf("topic %q must match <ns>.success.<action>", t),
				})
			}
		}

		if len(step.ResponseTopics.Failure) == 0 {
			errs = append(errs, ValidationIssue{Path: path + "/response_topic/failure", Message: "at least one failure response topic is required"})
		}
		for j, t := range step.ResponseTopics.Failure {
			if !isFailureTopic(t) {
				errs = append(errs, ValidationIssue{
					Path:    fmt.Sprintf("%s/response_topic/failure/%d", path, j),
					Message: fmt.Sprintf("topic %q must match <ns>.failure.<action>", t),
				})
			}
		}

		for key, expr := range step.Input {
			if !templateExprPattern.MatchString(strings.TrimSpace(expr)) {
				errs = append(errs, ValidationIssue{
					Path:    fmt.Sprintf("%s/input/%s", path, key),
					Message: fmt.Sprintf("input expression %q must be a single {{Step.field}} reference", expr),
				})
			}
		}

		for _, a := range step.OnSuccess {
			if _, ok := knownActions[a.Action]; !ok {
				warns = append(warns, ValidationIssue{
					Path:    path + "/on_success",
					Message: fmt.Sprintf("unknown success action %q", a.Action),
				})
			}
		}
		if step.OnFailure != nil {
			if _, ok := knownActions[step.OnFailure.Action]; !ok {
				warns = append(warns, ValidationIssue{
					Path:    path + "/on_failure",
					Message: fmt.Sprintf("unknown failure action %q", step.OnFailure.Action),
				})
			}
		}
	}

	// depends_on references must name an existing step in the same workflow.
	for i, step := range def.Steps {
		path := fmt.Sprintf("/steps/%d/depends_on", i)
		for _, dep := range step.DependsOn {
			if _, ok := names[dep]; !ok {
				errs = append(errs, ValidationIssue{
					Path:    path,
					Message: fmt.Sprintf("depends_on references unknown step %q", dep),
				})
			}
		}
	}

	if cyclePath := findCycle(def); cyclePath != "" {
		errs = append(errs, ValidationIssue{Path: "/steps", Message: "cyclic depends_on: " + cyclePath})
	}

	var verr *ValidationError
	if len(errs) > 0 {
		verr = &ValidationError{Issues: errs}
	}
	var w *Warnings
	if len(warns) > 0 {
		w = &Warnings{Issues: warns}
	}
	return verr, w
}

// findCycle runs a DFS over the depends_on graph and returns a
// human-readable description of the first cycle found, or "" if the graph
// is acyclic. Unknown depends_on references are ignored here (already
// reported separately) to avoid masking the cycle message with noise.
func findCycle(def *Definition) string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(def.Steps))
	for _, s := range def.Steps {
		color[s.Name] = white
	}

	var stack []string
	var dfs func(name string) string
	dfs = func(name string) string {
		color[name] = gray
		stack = append(stack, name)
		step := def.StepByName(name)
		if step != nil {
			for _, dep := range step.DependsOn {
				if _, known := color[dep]; !known {
					continue
				}
				switch color[dep] {
				case gray:
					return strings.Join(append(append([]string{}, stack...), dep), " -> ")
				case white:
					if cycle := dfs(dep); cycle != "" {
						return cycle
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
		return ""
	}

	for _, s := range def.Steps {
		if color[s.Name] == white {
			if cycle := dfs(s.Name); cycle != "" {
				return cycle
			}
		}
	}
	return ""
}
