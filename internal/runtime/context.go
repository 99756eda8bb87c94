package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"github.com/flowmediator/mediator/internal/actions"
	"github.com/flowmediator/mediator/internal/dataflow"
	"github.com/flowmediator/mediator/internal/runstate"
	"github.com/flowmediator/mediator/internal/state"
	"github.com/flowmediator/mediator/internal/workflow"
)

// actionContext implements actions.Context for a single continue()
// invocation. It is discarded once that invocation completes.
type actionContext struct {
	engine   *Engine
	def      *workflow.Definition
	state    *runstate.RunState
	stepName string
	registry *actions.Registry // the registry matching the current dispatch context

	successOverride bool
}

func (a *actionContext) Run() *runstate.RunState {
	return a.state
}

func (a *actionContext) StepName() string {
	return a.stepName
}

func (a *actionContext) MarkSuccess() {
	a.successOverride = true
}

func (a *actionContext) Logf(format string, args ...interface{}) {
	log.Printf("action[%s/%s]: %s", a.state.WorkflowID, a.stepName, fmt.Sprintf(format, args...))
}

func (a *actionContext) IncrementRetryCounter(ctx context.Context) (int, error) {
	key := state.RetryCounterKey(a.state.WorkflowID, a.stepName)

	count := 0
	raw, err := a.engine.store.Get(ctx, key)
	switch {
	case err == nil:
		n, convErr := strconv.Atoi(string(raw))
		if convErr != nil {
			return 0, fmt.Errorf("retry counter %s: corrupt value %q", key, raw)
		}
		count = n
	case err == state.ErrNotFound:
		count = 0
	default:
		return 0, err
	}

	count++
	if err := a.engine.store.Set(ctx, key, []byte(strconv.Itoa(count))); err != nil {
		return 0, err
	}
	return count, nil
}

func (a *actionContext) RetryStep(ctx context.Context) error {
	step := a.def.StepByName(a.stepName)
	if step == nil {
		return fmt.Errorf("retry_step: unknown step %q", a.stepName)
	}

	inputs, err := dataflow.ResolveInputs(step.Input, a.state.Steps)
	if err != nil {
		return fmt.Errorf("retry_step: %w", err)
	}

	a.state.Steps[a.stepName] = runstate.StepState{Name: a.stepName, Status: runstate.StepOngoing}

	if err := a.engine.persist(ctx, a.state); err != nil {
		return fmt.Errorf("retry_step: persisting run: %w", err)
	}

	body, err := json.Marshal(inputs)
	if err != nil {
		return fmt.Errorf("retry_step: encoding inputs: %w", err)
	}
	return a.engine.publisher.Publish(ctx, step.Topic, body)
}

func (a *actionContext) RunHandler(ctx context.Context, name string, params map[string]interface{}) error {
	return a.registry.Run(ctx, a, name, params)
}
