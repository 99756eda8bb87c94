package mediator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowmediator/mediator/internal/actions"
	"github.com/flowmediator/mediator/internal/bus"
	"github.com/flowmediator/mediator/internal/runstate"
	"github.com/flowmediator/mediator/internal/runtime"
	"github.com/flowmediator/mediator/internal/state"
	"github.com/flowmediator/mediator/internal/workflow"
	"github.com/flowmediator/mediator/pkg/eventpayload"
)

func orderDefinition() *workflow.Definition {
	return &workflow.Definition{
		Name:    "order-fulfillment",
		Version: "1.0.0",
		InitiatingEvent: workflow.InitiatingEvent{
			Name:  "OrderPlaced",
			Topic: "orders.execute.place",
		},
		Steps: []workflow.StepDefinition{
			{
				Name:  "ChargeCard",
				Topic: "billing.execute.charge",
				Input: map[string]string{"order_id": "{{OrderPlaced.order_id}}"},
				ResponseTopics: workflow.ResponseTopics{
					Success: []string{"billing.success.charge"},
					Failure: []string{"billing.failure.charge"},
				},
			},
		},
	}
}

func TestNew_RejectsDuplicateInitiatingTopics(t *testing.T) {
	a := orderDefinition()
	b := orderDefinition()
	b.Name = "order-fulfillment-v2"

	_, err := New([]*workflow.Definition{a, b}, nil, nil, nil)
	require.Error(t, err, "expected an error for two definitions sharing an initiating topic")
}

func TestMediator_EndToEndRunThroughEmbeddedBus(t *testing.T) {
	def := orderDefinition()

	opts := bus.DefaultOptions()
	opts.Embedded = true
	opts.Stream = "TEST_" + t.Name()
	opts.ConsumerGroup = "test"
	opts.AckWait = 2 * time.Second

	nb, err := bus.Connect(opts)
	require.NoError(t, err, "connect")
	defer nb.Close()

	store := state.NewMemoryStore()
	engine := runtime.NewEngine(store, nb, actions.NewSuccessRegistry(), actions.NewFailureRegistry())

	m, err := New([]*workflow.Definition{def}, nb, engine, store)
	require.NoError(t, err, "new mediator")
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, m.Start(ctx), "start")

	chargeReceived := make(chan []byte, 1)
	err = nb.Subscribe(ctx, "billing.execute.charge", func(ctx context.Context, topic string, body []byte) error {
		chargeReceived <- body
		return nil
	})
	require.NoError(t, err, "test subscribe")

	require.NoError(t, nb.Publish(ctx, "orders.execute.place", []byte(`{"order_id":"o1"}`)), "publish initiating event")

	var chargeBody []byte
	select {
	case chargeBody = <-chargeReceived:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for ChargeCard dispatch")
	}
	require.JSONEq(t, `{"order_id":"o1"}`, string(chargeBody), "unexpected ChargeCard input")

	var workflowID string
	for i := 0; i < 30; i++ {
		ids := listRunIDs(t, store)
		if len(ids) == 1 {
			workflowID = ids[0]
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if workflowID == "" {
		t.Fatal("timed out waiting for a run to be persisted")
	}

	payload := &eventpayload.EventPayload{
		WorkflowID: workflowID,
		Timestamp:  eventpayload.Now(),
		Success:    true,
		Output:     map[string]interface{}{"charge_id": "ch_1"},
	}
	body, err := eventpayload.Marshal(payload)
	require.NoError(t, err, "marshal payload")
	require.NoError(t, nb.Publish(ctx, "billing.success.charge", body), "publish charge success")

	var final *runstate.RunState
	for i := 0; i < 30; i++ {
		raw, err := store.Get(ctx, workflowID)
		if err == nil {
			final, err = runstate.Unmarshal(raw)
			require.NoError(t, err, "unmarshal run state")
			if final.Status == runstate.StatusSuccess {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("expected run to reach Success, got %+v", final)
}

// listRunIDs inspects the in-memory store directly; there is no public
// enumeration method on state.Store (spec §4.2 exposes only Get/Set/NewKey),
// and the same map also holds retry-counter keys (which embed a ":"), so
// run IDs are the keys that contain no ":".
func listRunIDs(t *testing.T, store *state.MemoryStore) []string {
	t.Helper()
	var out []string
	for _, k := range store.Keys() {
		if !strings.Contains(k, ":") {
			out = append(out, k)
		}
	}
	return out
}
