package dataflow

import (
	"testing"

	"github.com/flowmediator/mediator/internal/runstate"
	"github.com/flowmediator/mediator/pkg/eventpayload"
)

func TestResolveInputs_Success(t *testing.T) {
	steps := map[string]runstate.StepState{
		"ChargeCard": {
			Name:   "ChargeCard",
			Status: runstate.StepSuccess,
			Payload: &eventpayload.EventPayload{
				Output: map[string]interface{}{"charge_id": "ch_123"},
			},
		},
	}

	out, err := ResolveInputs(map[string]string{"charge_id": "{{ChargeCard.charge_id}}"}, steps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["charge_id"] != "ch_123" {
		t.Fatalf("expected charge_id ch_123, got %v", out["charge_id"])
	}
}

func TestResolveInputs_UnknownStep(t *testing.T) {
	_, err := ResolveInputs(map[string]string{"x": "{{Missing.field}}"}, map[string]runstate.StepState{})
	if err == nil {
		t.Fatal("expected a template error for a step with no recorded state")
	}
}

func TestResolveInputs_NoPayloadYet(t *testing.T) {
	steps := map[string]runstate.StepState{
		"ChargeCard": {Name: "ChargeCard", Status: runstate.StepOngoing},
	}
	_, err := ResolveInputs(map[string]string{"x": "{{ChargeCard.charge_id}}"}, steps)
	if err == nil {
		t.Fatal("expected a template error for a step with no payload yet")
	}
}

func TestResolveInputs_MissingField(t *testing.T) {
	steps := map[string]runstate.StepState{
		"ChargeCard": {
			Name:    "ChargeCard",
			Status:  runstate.StepSuccess,
			Payload: &eventpayload.EventPayload{Output: map[string]interface{}{"other": "value"}},
		},
	}
	_, err := ResolveInputs(map[string]string{"x": "{{ChargeCard.charge_id}}"}, steps)
	if err == nil {
		t.Fatal("expected a template error for a missing output field")
	}
}

func TestResolveInputs_MalformedExpression(t *testing.T) {
	_, err := ResolveInputs(map[string]string{"x": "ChargeCard.charge_id"}, map[string]runstate.StepState{})
	if err == nil {
		t.Fatal("expected a template error for a malformed expression")
	}
}

func TestResolveInputs_AbortsOnFirstErrorNoPartialResult(t *testing.T) {
	steps := map[string]runstate.StepState{
		"ChargeCard": {
			Name:    "ChargeCard",
			Status:  runstate.StepSuccess,
			Payload: &eventpayload.EventPayload{Output: map[string]interface{}{"charge_id": "ch_123"}},
		},
	}
	out, err := ResolveInputs(map[string]string{
		"charge_id": "{{ChargeCard.charge_id}}",
		"missing":   "{{Nope.field}}",
	}, steps)
	if err == nil {
		t.Fatal("expected an error")
	}
	if out != nil {
		t.Fatalf("expected no partial result, got %v", out)
	}
}
