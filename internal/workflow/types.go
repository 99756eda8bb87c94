// Package workflow implements the Workflow Definition Model & Validator:
// the schema of workflows and steps, topic-name discipline, dependency
// references, templated inputs, and success/failure action descriptors.
package workflow

import "errors"

// Definition is an immutable, validated workflow document.
type Definition struct {
	Name            string           `json:"name" yaml:"name"`
	Description     string           `json:"description,omitempty" yaml:"description,omitempty"`
	Version         string           `json:"version" yaml:"version"`
	InitiatingEvent InitiatingEvent  `json:"initiating_event" yaml:"initiating_event"`
	Steps           []StepDefinition `json:"steps" yaml:"steps"`
}

// InitiatingEvent names the topic whose arrival creates a new run, and the
// pseudo-step key under which its payload is recorded.
type InitiatingEvent struct {
	Name  string `json:"name" yaml:"name"`
	Topic string `json:"topic" yaml:"topic"`
}

// ResponseTopics groups a step's success and failure reply topics.
type ResponseTopics struct {
	Success []string `json:"success" yaml:"success"`
	Failure []string `json:"failure" yaml:"failure"`
}

// ActionDescriptor names a success/failure action and carries its
// action-specific parameters. Interpretation is deferred to the Action
// Registry.
type ActionDescriptor struct {
	Action string                 `json:"action" yaml:"action"`
	Params map[string]interface{} `json:"-" yaml:"-"`
}

// StepDefinition is one request/response exchange in a workflow.
type StepDefinition struct {
	Name           string            `json:"name" yaml:"name"`
	Topic          string            `json:"topic" yaml:"topic"`
	Input          map[string]string `json:"input,omitempty" yaml:"input,omitempty"`
	DependsOn      []string          `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	ResponseTopics ResponseTopics    `json:"response_topic" yaml:"response_topic"`
	OnSuccess      []ActionDescriptor `json:"on_success,omitempty" yaml:"on_success,omitempty"`
	OnFailure      *ActionDescriptor  `json:"on_failure,omitempty" yaml:"on_failure,omitempty"`
}

// StepByName returns the step with the given name, or nil.
func (d *Definition) StepByName(name string) *StepDefinition {
	for i := range d.Steps {
		if d.Steps[i].Name == name {
			return &d.Steps[i]
		}
	}
	return nil
}

// StepForResponseTopic finds the step whose success or failure response-topic
// set contains topic, and reports which outcome it corresponds to.
func (d *Definition) StepForResponseTopic(topic string) (*StepDefinition, Outcome, bool) {
	for i := range d.Steps {
		for _, t := range d.Steps[i].ResponseTopics.Success {
			if t == topic {
				return &d.Steps[i], OutcomeSuccess, true
			}
		}
		for _, t := range d.Steps[i].ResponseTopics.Failure {
			if t == topic {
				return &d.Steps[i], OutcomeFailure, true
			}
		}
	}
	return nil, "", false
}

// Outcome classifies a response topic's middle segment.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Topics returns the union of every topic referenced by the definition:
// the initiating topic, every step's execute topic, and every response
// topic.
func (d *Definition) Topics() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(t string) {
		if t == "" {
			return
		}
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	add(d.InitiatingEvent.Topic)
	for _, s := range d.Steps {
		add(s.Topic)
		for _, t := range s.ResponseTopics.Success {
			add(t)
		}
		for _, t := range s.ResponseTopics.Failure {
			add(t)
		}
	}
	return out
}

// ValidationIssue is a single structural offense found while validating a
// definition.
type ValidationIssue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError aggregates every offense found validating a definition.
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "workflow definition validation failed"
	}
	msg := e.Issues[0].Path + ": " + e.Issues[0].Message
	for _, issue := range e.Issues[1:] {
		msg += "; " + issue.Path + ": " + issue.Message
	}
	return msg
}

// Unwrap lets callers use errors.Is(err, ErrDefinition) against a ValidationError.
func (e *ValidationError) Unwrap() error {
	return ErrDefinition
}

// ErrDefinition is the sentinel DefinitionError (spec §7): a schema or
// validation failure at load time. Callers use errors.Is against this to
// distinguish it from transport/state errors.
var ErrDefinition = errors.New("definition error")
