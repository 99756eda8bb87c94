// Package runstate defines the mutable per-run state (spec §3 "Run State" /
// "Step State") as a small, dependency-free type shared by the Template
// Resolver and the Run State Machine, so the resolver never needs to import
// the orchestration engine it feeds.
package runstate

import (
	"encoding/json"
	"time"

	"github.com/flowmediator/mediator/pkg/eventpayload"
)

// Status is a workflow run's lifecycle status (spec §3).
type Status string

const (
	StatusInProgress Status = "InProgress"
	StatusSuccess    Status = "Success"
	StatusFailed     Status = "Failed"
)

// StepStatus is a single step's lifecycle status (spec §3).
type StepStatus string

const (
	StepAbsent  StepStatus = ""
	StepOngoing StepStatus = "ongoing"
	StepSuccess StepStatus = "success"
	StepFailure StepStatus = "failure"
)

// StepState is the last observed status and payload for one step within a run.
type StepState struct {
	Name    string                     `json:"name"`
	Status  StepStatus                 `json:"status"`
	Payload *eventpayload.EventPayload `json:"payload,omitempty"`
}

// RunState is the persisted, mutable state of a single workflow run.
type RunState struct {
	WorkflowID  string               `json:"workflow_id"`
	Name        string               `json:"name"`
	InitiatedAt time.Time            `json:"initiated_at"`
	Status      Status               `json:"status"`
	Steps       map[string]StepState `json:"steps"`
}

// New builds an empty in-progress run state.
func New(workflowID, name string, now time.Time) *RunState {
	return &RunState{
		WorkflowID:  workflowID,
		Name:        name,
		InitiatedAt: now,
		Status:      StatusInProgress,
		Steps:       make(map[string]StepState),
	}
}

// Done returns the set of step names currently at status success.
func (r *RunState) Done() map[string]struct{} {
	done := make(map[string]struct{})
	for name, s := range r.Steps {
		if s.Status == StepSuccess {
			done[name] = struct{}{}
		}
	}
	return done
}

// Marshal serializes the run state for persistence.
func (r *RunState) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// Unmarshal deserializes a persisted run state.
func Unmarshal(data []byte) (*RunState, error) {
	var r RunState
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	if r.Steps == nil {
		r.Steps = make(map[string]StepState)
	}
	return &r, nil
}
