package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/flowmediator/mediator/internal/workflow"
)

const validYAML = `
name: order-fulfillment
version: 1.0.0
initiating_event:
  name: OrderPlaced
  topic: orders.execute.place
steps:
  - name: ChargeCard
    topic: billing.execute.charge
    input:
      order_id: "{{OrderPlaced.order_id}}"
    response_topic:
      success: ["billing.success.charge"]
      failure: ["billing.failure.charge"]
    on_failure:
      action: retry
      max_attempts: 3
      action_after_attempts: abort
  - name: ShipOrder
    topic: shipping.execute.ship
    depends_on: ["ChargeCard"]
    input:
      charge_id: "{{ChargeCard.charge_id}}"
    response_topic:
      success: ["shipping.success.ship"]
      failure: ["shipping.failure.ship"]
    on_success:
      - action: log
        message: shipped
`

func TestParse_ValidDefinition(t *testing.T) {
	def, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.Name != "order-fulfillment" {
		t.Fatalf("unexpected name: %s", def.Name)
	}
	if len(def.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(def.Steps))
	}

	retry := def.Steps[0].OnFailure
	if retry == nil || retry.Action != "retry" {
		t.Fatalf("expected ChargeCard.on_failure.action == retry, got %+v", retry)
	}
	if maxAttempts, ok := retry.Params["max_attempts"]; !ok || maxAttempts != 3 {
		t.Fatalf("expected max_attempts param 3, got %v", retry.Params["max_attempts"])
	}
}

func TestParse_InvalidDefinitionWrapsErrDefinition(t *testing.T) {
	_, err := Parse([]byte("name: incomplete\nversion: 1.0.0\n"))
	if err == nil {
		t.Fatal("expected a definition error for a workflow missing steps")
	}
	if !errors.Is(err, workflow.ErrDefinition) {
		t.Fatalf("expected error to wrap workflow.ErrDefinition, got %v", err)
	}
}

func TestLoadAll_SkipsInvalidFilesButLoadsOthers(t *testing.T) {
	dir := t.TempDir()

	writeFile(t, dir, "good.workflow.yaml", validYAML)
	writeFile(t, dir, "bad.workflow.yaml", "name: bad\nversion: not-a-version\n")

	result, err := New(dir).LoadAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Definitions) != 1 {
		t.Fatalf("expected exactly one valid definition, got %d", len(result.Definitions))
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected exactly one load error, got %d", len(result.Errors))
	}
}

func TestLoadAll_MissingDirectoryIsNotAnError(t *testing.T) {
	result, err := New(filepath.Join(t.TempDir(), "does-not-exist")).LoadAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Definitions) != 0 || len(result.Errors) != 0 {
		t.Fatalf("expected an empty result, got %+v", result)
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture %s: %v", name, err)
	}
}

