// Package runtime implements the Run-time Orchestration Engine (spec §4.5):
// the per-run state machine that resolves dependencies, dispatches ready
// steps, correlates response-topic replies, idempotently handles duplicate
// or late replies, evaluates success/failure actions, and detects terminal
// states. It plays the role station/internal/workflows/runtime/consumer.go
// and executor.go play for the teacher's Serverless Workflow profile,
// generalized to spec.md's DAG-of-steps model.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/flowmediator/mediator/internal/actions"
	"github.com/flowmediator/mediator/internal/dataflow"
	"github.com/flowmediator/mediator/internal/runstate"
	"github.com/flowmediator/mediator/internal/state"
	"github.com/flowmediator/mediator/internal/workflow"
	"github.com/flowmediator/mediator/pkg/eventpayload"
)

// Publisher is the narrow capability the engine needs from the bus: emit
// an execute-topic message. internal/bus.NATSBus satisfies this.
type Publisher interface {
	Publish(ctx context.Context, topic string, body []byte) error
}

// Engine drives workflow runs to completion. One Engine serves every run of
// every loaded definition; per-run isolation comes from RunLocks plus the
// state store being keyed by workflow_id.
type Engine struct {
	store           state.Store
	publisher       Publisher
	successRegistry *actions.Registry
	failureRegistry *actions.Registry
	locks           *RunLocks
	telemetry       RunTelemetry
}

// RunTelemetry is the narrow observability hook the engine drives; it is
// satisfied by *telemetry.Telemetry but kept as an interface here to avoid
// the runtime package importing the OTel SDK directly. NewEngine installs a
// no-op implementation, and WithTelemetry(nil) leaves it in place.
type RunTelemetry interface {
	StartRun(ctx context.Context, workflowID, workflowName string) context.Context
	EndRun(ctx context.Context, workflowID, workflowName, status string, duration time.Duration, err error)
}

type noopTelemetry struct{}

func (noopTelemetry) StartRun(ctx context.Context, _, _ string) context.Context { return ctx }
func (noopTelemetry) EndRun(context.Context, string, string, string, time.Duration, error) {}

// NewEngine builds an Engine. Pass actions.NewSuccessRegistry() /
// actions.NewFailureRegistry() for the built-in action set, or a registry
// with additional user-supplied handlers registered (spec §9).
func NewEngine(store state.Store, publisher Publisher, successRegistry, failureRegistry *actions.Registry) *Engine {
	return &Engine{
		store:           store,
		publisher:       publisher,
		successRegistry: successRegistry,
		failureRegistry: failureRegistry,
		locks:           NewRunLocks(),
		telemetry:       noopTelemetry{},
	}
}

// WithTelemetry installs a RunTelemetry sink, returning the engine for
// chaining at construction time.
func (e *Engine) WithTelemetry(t RunTelemetry) *Engine {
	if t != nil {
		e.telemetry = t
	}
	return e
}

// Init begins a new run of definition, triggered by a message on its
// initiating topic (spec §4.5 init).
func (e *Engine) Init(ctx context.Context, def *workflow.Definition, initiatingOutputRaw []byte) (*runstate.RunState, error) {
	workflowID, err := e.store.NewKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: allocating run id: %w", err)
	}

	unlock := e.locks.Lock(workflowID)
	defer unlock()

	ctx = e.telemetry.StartRun(ctx, workflowID, def.Name)

	var output map[string]interface{}
	if len(initiatingOutputRaw) > 0 {
		if err := json.Unmarshal(initiatingOutputRaw, &output); err != nil {
			return nil, fmt.Errorf("engine: parsing initiating payload: %w", err)
		}
	}
	if output == nil {
		output = map[string]interface{}{}
	}

	now := time.Now().UTC()
	payload := &eventpayload.EventPayload{
		WorkflowID: workflowID,
		Timestamp:  eventpayload.Now(),
		Success:    true,
		Output:     output,
	}

	st := runstate.New(workflowID, def.Name, now)
	st.Steps[def.InitiatingEvent.Name] = runstate.StepState{
		Name:    def.InitiatingEvent.Name,
		Status:  runstate.StepSuccess,
		Payload: payload,
	}

	if err := e.advance(ctx, def, st); err != nil {
		st.Status = runstate.StatusFailed
		if persistErr := e.persist(ctx, st); persistErr != nil {
			log.Printf("engine: failed to persist run %s after dispatch error: %v", workflowID, persistErr)
		}
		e.telemetry.EndRun(ctx, workflowID, def.Name, string(st.Status), time.Since(now), err)
		return st, err
	}

	if err := e.persist(ctx, st); err != nil {
		return st, fmt.Errorf("engine: persisting new run %s: %w", workflowID, err)
	}

	if st.Status != runstate.StatusInProgress {
		e.telemetry.EndRun(ctx, workflowID, def.Name, string(st.Status), time.Since(now), nil)
	}

	return st, nil
}

// Continue advances a run in response to a message on one of its steps'
// response topics (spec §4.5 continue).
func (e *Engine) Continue(ctx context.Context, def *workflow.Definition, topic string, payload *eventpayload.EventPayload) error {
	outcome, ok := workflow.ClassifyResponseTopic(topic)
	if !ok {
		// Execute topics are outbound-only (spec §4.5 step 1); anything
		// that fails discipline entirely is a DeliveryAnomaly, not fatal.
		log.Printf("engine: topic %q is not a response topic, ignoring", topic)
		return nil
	}

	step, _, found := def.StepForResponseTopic(topic)
	if !found {
		log.Printf("engine: no step in workflow %q declares response topic %q, dropping", def.Name, topic)
		return nil
	}

	unlock := e.locks.Lock(payload.WorkflowID)
	defer unlock()

	st, err := e.load(ctx, payload.WorkflowID)
	if errors.Is(err, state.ErrNotFound) {
		log.Printf("engine: run %s not found, dropping message on %q", payload.WorkflowID, topic)
		return nil
	}
	if err != nil {
		return fmt.Errorf("engine: loading run %s: %w", payload.WorkflowID, err)
	}

	current := st.Steps[step.Name]
	if current.Status != runstate.StepOngoing {
		log.Printf("engine: step %s of run %s is %q (not ongoing), dropping duplicate/out-of-order reply", step.Name, st.WorkflowID, current.Status)
		return nil
	}

	st.Steps[step.Name] = runstate.StepState{
		Name:    step.Name,
		Status:  runstate.StepStatus(outcome),
		Payload: payload,
	}

	st.Status = computeTerminal(def, st)

	var advanceErr error
	if st.Status == runstate.StatusInProgress {
		if advanceErr = e.advance(ctx, def, st); advanceErr != nil {
			st.Status = runstate.StatusFailed
		}
	}

	actx := &actionContext{engine: e, def: def, state: st, stepName: step.Name}

	var handlerErr error
	if outcome == workflow.OutcomeSuccess {
		actx.registry = e.successRegistry
		for _, a := range step.OnSuccess {
			if err := e.successRegistry.Run(ctx, actx, a.Action, a.Params); err != nil {
				log.Printf("engine: success action %q on step %s failed: %v", a.Action, step.Name, err)
				handlerErr = err
			}
		}
	} else {
		actx.registry = e.failureRegistry
		if step.OnFailure != nil {
			if err := e.failureRegistry.Run(ctx, actx, step.OnFailure.Action, step.OnFailure.Params); err != nil {
				log.Printf("engine: failure action %q on step %s failed: %v", step.OnFailure.Action, step.Name, err)
				handlerErr = err
			}
		}
	}

	// Re-check the terminal condition after handlers run. An advance()
	// failure (e.g. TemplateError resolving a downstream step's input) is
	// terminal and must stick: the blocked step never entered ongoing and
	// nothing will advance() it again, so computeTerminal here would just
	// see no failed step and resurrect the run to InProgress (spec §8 S5).
	// Absent that, skip's explicit override wins; otherwise recompute from
	// the (possibly handler-mutated, e.g. retried) step statuses.
	switch {
	case advanceErr != nil:
		st.Status = runstate.StatusFailed
	case actx.successOverride:
		st.Status = runstate.StatusSuccess
	default:
		st.Status = computeTerminal(def, st)
	}

	if err := e.persist(ctx, st); err != nil {
		return fmt.Errorf("engine: persisting run %s: %w", st.WorkflowID, err)
	}

	if st.Status != runstate.StatusInProgress {
		terminalErr := advanceErr
		if terminalErr == nil {
			terminalErr = handlerErr
		}
		e.telemetry.EndRun(ctx, st.WorkflowID, def.Name, string(st.Status), time.Since(st.InitiatedAt), terminalErr)
	}

	if advanceErr != nil {
		return advanceErr
	}
	return handlerErr
}

// computeTerminal applies spec §3 invariants 4 and 5: Success iff every
// declared step is success; Failed iff some step is failure (and has not
// been superseded by a retry resetting it back to ongoing); else InProgress.
func computeTerminal(def *workflow.Definition, st *runstate.RunState) runstate.Status {
	allSuccess := true
	anyFailure := false
	for _, step := range def.Steps {
		s, ok := st.Steps[step.Name]
		if !ok || s.Status != runstate.StepSuccess {
			allSuccess = false
		}
		if ok && s.Status == runstate.StepFailure {
			anyFailure = true
		}
	}
	switch {
	case allSuccess:
		return runstate.StatusSuccess
	case anyFailure:
		return runstate.StatusFailed
	default:
		return runstate.StatusInProgress
	}
}

func (e *Engine) load(ctx context.Context, workflowID string) (*runstate.RunState, error) {
	raw, err := e.store.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return runstate.Unmarshal(raw)
}

func (e *Engine) persist(ctx context.Context, st *runstate.RunState) error {
	data, err := st.Marshal()
	if err != nil {
		return fmt.Errorf("engine: marshaling run %s: %w", st.WorkflowID, err)
	}
	return e.store.Set(ctx, st.WorkflowID, data)
}

// advance dispatches every step whose dependencies are all satisfied and
// which has not yet been dispatched (spec §4.5 advance). A TemplateError
// resolving any ready step's inputs aborts the whole advance call; the
// caller marks the run Failed per spec §7.
func (e *Engine) advance(ctx context.Context, def *workflow.Definition, st *runstate.RunState) error {
	done := st.Done()

	var ready []*workflow.StepDefinition
	for i := range def.Steps {
		step := &def.Steps[i]
		if _, exists := st.Steps[step.Name]; exists {
			continue
		}
		if dependenciesSatisfied(step.DependsOn, done) {
			ready = append(ready, step)
		}
	}

	if len(ready) == 0 {
		return nil
	}

	resolved := make(map[string]map[string]interface{}, len(ready))
	for _, step := range ready {
		inputs, err := dataflow.ResolveInputs(step.Input, st.Steps)
		if err != nil {
			return fmt.Errorf("engine: dispatching step %s: %w", step.Name, err)
		}
		resolved[step.Name] = inputs
	}

	if err := e.dispatchAll(ctx, ready, resolved); err != nil {
		return err
	}

	for _, step := range ready {
		st.Steps[step.Name] = runstate.StepState{Name: step.Name, Status: runstate.StepOngoing}
	}
	return nil
}

// dispatchAll publishes the execute-topic message for every ready step
// concurrently (spec §5: distinct ready steps of the same advance() call
// may dispatch in parallel). The first publish error is returned; the
// others are logged, since a partially-dispatched advance still leaves
// state.Steps accurate for whichever publishes did succeed only if the
// caller records just the ones that succeeded — here we dispatch all
// before recording any, so on error advance() records none of them and
// the next advance() call will retry every ready step.
func (e *Engine) dispatchAll(ctx context.Context, ready []*workflow.StepDefinition, resolved map[string]map[string]interface{}) error {
	type result struct {
		step *workflow.StepDefinition
		err  error
	}

	results := make(chan result, len(ready))
	for _, step := range ready {
		step := step
		go func() {
			body, err := json.Marshal(resolved[step.Name])
			if err != nil {
				results <- result{step, fmt.Errorf("encoding inputs: %w", err)}
				return
			}
			results <- result{step, e.publisher.Publish(ctx, step.Topic, body)}
		}()
	}

	var firstErr error
	for range ready {
		r := <-results
		if r.err != nil {
			log.Printf("engine: publishing to %s for step %s: %v", r.step.Topic, r.step.Name, r.err)
			if firstErr == nil {
				firstErr = fmt.Errorf("publishing step %s: %w", r.step.Name, r.err)
			}
		}
	}
	return firstErr
}

func dependenciesSatisfied(dependsOn []string, done map[string]struct{}) bool {
	for _, dep := range dependsOn {
		if _, ok := done[dep]; !ok {
			return false
		}
	}
	return true
}
