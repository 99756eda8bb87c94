package actions

import (
	"context"

	"github.com/flowmediator/mediator/internal/runstate"
)

// Context is the capability set spec §4.4 gives a handler: the current run
// and step state, plus operations to retry the step or hand off to another
// handler. The Run State Machine implements this; the actions package never
// touches the bus or state store directly.
type Context interface {
	// Run returns the current run state. Handlers may read it freely;
	// mutation happens only through the methods below so the engine can
	// keep terminal-state bookkeeping consistent.
	Run() *runstate.RunState

	// StepName is the name of the step whose outcome triggered this
	// handler invocation.
	StepName() string

	// RetryStep resets the step to `ongoing`, persists the run, and
	// re-emits the step's execute-topic message with freshly re-resolved
	// inputs (spec §4.4 retry_step()).
	RetryStep(ctx context.Context) error

	// RunHandler looks up name in the registry matching the current
	// dispatch context (the failure registry when called from a failure
	// handler) and invokes it (spec §4.4 run_handler()).
	RunHandler(ctx context.Context, name string, params map[string]interface{}) error

	// MarkSuccess sets the run's status to Success despite a prior
	// failure (used by the built-in `skip` action).
	MarkSuccess()

	// IncrementRetryCounter increments and returns the persisted retry
	// counter for (run, step) (spec §3 Retry Counter).
	IncrementRetryCounter(ctx context.Context) (int, error)

	// Logf emits an operator-visible log line attributed to the action.
	Logf(format string, args ...interface{})
}
