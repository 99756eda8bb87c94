// Package mediator wires the Message Bus Adapter to the Run-time
// Orchestration Engine: it loads workflow definitions, indexes them by
// initiating topic, provisions every topic they reference, subscribes one
// bus consumer per distinct topic, and routes inbound messages to
// Engine.Init or Engine.Continue. It plays the role
// station/internal/workflows/runtime/dispatcher.go plays for the teacher's
// engine, generalized from a single run-event subject to the spec's
// per-workflow topic set.
package mediator

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/flowmediator/mediator/internal/bus"
	"github.com/flowmediator/mediator/internal/runstate"
	"github.com/flowmediator/mediator/internal/runtime"
	"github.com/flowmediator/mediator/internal/state"
	"github.com/flowmediator/mediator/internal/workflow"
	"github.com/flowmediator/mediator/pkg/eventpayload"
)

// Mediator owns the set of loaded workflow definitions and drives their
// execution against a Bus and an Engine.
type Mediator struct {
	bus    bus.Bus
	engine *runtime.Engine
	store  state.Store

	byInitiatingTopic map[string]*workflow.Definition
	definitions       []*workflow.Definition

	closeOnce sync.Once
}

// New validates that no two definitions share an initiating topic (spec §6
// "duplicate initiating topics are a configuration error") and returns a
// Mediator ready to Start.
func New(defs []*workflow.Definition, b bus.Bus, engine *runtime.Engine, store state.Store) (*Mediator, error) {
	byTopic := make(map[string]*workflow.Definition, len(defs))
	for _, def := range defs {
		topic := def.InitiatingEvent.Topic
		if existing, ok := byTopic[topic]; ok {
			return nil, fmt.Errorf("mediator: workflows %q and %q both initiate on topic %q", existing.Name, def.Name, topic)
		}
		byTopic[topic] = def
	}

	return &Mediator{
		bus:               b,
		engine:            engine,
		store:             store,
		byInitiatingTopic: byTopic,
		definitions:       defs,
	}, nil
}

// Start provisions every topic referenced by every loaded definition and
// subscribes a single bus consumer per distinct topic (spec §4.6 "one
// consumer group per topic", not per workflow, so two workflows sharing a
// response topic are served by one subscription).
func (m *Mediator) Start(ctx context.Context) error {
	required := make(map[string]struct{})
	for _, def := range m.definitions {
		for _, t := range def.Topics() {
			required[t] = struct{}{}
		}
	}

	existing, err := m.bus.Topics(ctx)
	if err != nil {
		return fmt.Errorf("mediator: listing existing topics: %w", err)
	}

	for topic := range required {
		if _, ok := existing[topic]; ok {
			continue
		}
		if err := m.bus.EnsureTopic(ctx, topic); err != nil {
			return fmt.Errorf("mediator: provisioning topic %q: %w", topic, err)
		}
	}

	subscribed := make(map[string]struct{})
	for _, def := range m.definitions {
		for _, topic := range def.Topics() {
			if topic == def.InitiatingEvent.Topic {
				continue
			}
			if isExecuteTopic(def, topic) {
				continue
			}
			if _, ok := subscribed[topic]; ok {
				continue
			}
			subscribed[topic] = struct{}{}
			if err := m.bus.Subscribe(ctx, topic, m.handleResponse); err != nil {
				return fmt.Errorf("mediator: subscribing response topic %q: %w", topic, err)
			}
		}
	}

	for topic, def := range m.byInitiatingTopic {
		def := def
		if err := m.bus.Subscribe(ctx, topic, m.handlerForInitiatingTopic(def)); err != nil {
			return fmt.Errorf("mediator: subscribing initiating topic %q: %w", topic, err)
		}
	}

	return nil
}

// isExecuteTopic reports whether topic is one of def's step execute topics
// (outbound-only; the mediator never subscribes to its own dispatch topics).
func isExecuteTopic(def *workflow.Definition, topic string) bool {
	for _, s := range def.Steps {
		if s.Topic == topic {
			return true
		}
	}
	return false
}

func (m *Mediator) handlerForInitiatingTopic(def *workflow.Definition) bus.Handler {
	return func(ctx context.Context, topic string, body []byte) error {
		st, err := m.engine.Init(ctx, def, body)
		if err != nil {
			log.Printf("mediator: initiating workflow %q on topic %q: %v", def.Name, topic, err)
			return nil
		}
		log.Printf("mediator: started run %s of workflow %q", st.WorkflowID, def.Name)
		return nil
	}
}

// handleResponse is the single entry point for every response-topic
// message, dispatched to whichever loaded workflow declares that topic on
// one of its steps. A response topic may be reused by workflows of the
// same or different definitions as long as the workflow_id embedded in the
// payload resolves an in-flight run (spec §4.6).
func (m *Mediator) handleResponse(ctx context.Context, topic string, body []byte) error {
	payload, err := eventpayload.Parse(body)
	if err != nil {
		// Malformed payload is a DeliveryAnomaly (spec §7): log and ack,
		// never block the consumer group on a poison message.
		log.Printf("mediator: malformed payload on topic %q: %v", topic, err)
		return nil
	}

	var matched bool
	for _, def := range m.definitions {
		if _, _, ok := def.StepForResponseTopic(topic); !ok {
			continue
		}
		matched = true
		if err := m.engine.Continue(ctx, def, topic, payload); err != nil {
			log.Printf("mediator: continuing run %s on topic %q: %v", payload.WorkflowID, topic, err)
		}
	}
	if !matched {
		log.Printf("mediator: no loaded workflow declares response topic %q, dropping", topic)
	}
	return nil
}

// InspectRun returns the current persisted state of a run (supplemented
// feature: `mediator inspect`).
func (m *Mediator) InspectRun(ctx context.Context, workflowID string) (*runstate.RunState, error) {
	raw, err := m.store.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return runstate.Unmarshal(raw)
}

// Close shuts down the bus connection. Consumers are detached by the bus
// itself when its context is cancelled; Close only releases the transport.
// Safe to call more than once (spec "idempotent graceful shutdown").
func (m *Mediator) Close() {
	m.closeOnce.Do(m.bus.Close)
}
