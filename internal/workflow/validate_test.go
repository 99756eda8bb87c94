package workflow

import "testing"

func validDefinition() *Definition {
	return &Definition{
		Name:    "order-fulfillment",
		Version: "1.0.0",
		InitiatingEvent: InitiatingEvent{
			Name:  "OrderPlaced",
			Topic: "orders.execute.place",
		},
		Steps: []StepDefinition{
			{
				Name:  "ChargeCard",
				Topic: "billing.execute.charge",
				Input: map[string]string{
					"order_id": "{{OrderPlaced.order_id}}",
				},
				ResponseTopics: ResponseTopics{
					Success: []string{"billing.success.charge"},
					Failure: []string{"billing.failure.charge"},
				},
			},
			{
				Name:      "ShipOrder",
				Topic:     "shipping.execute.ship",
				DependsOn: []string{"ChargeCard"},
				Input: map[string]string{
					"charge_id": "{{ChargeCard.charge_id}}",
				},
				ResponseTopics: ResponseTopics{
					Success: []string{"shipping.success.ship"},
					Failure: []string{"shipping.failure.ship"},
				},
			},
		},
	}
}

func TestValidateDefinition_Valid(t *testing.T) {
	def := validDefinition()
	verr, warn := ValidateDefinition(def)
	if verr != nil {
		t.Fatalf("expected no errors, got %v", verr)
	}
	if warn != nil {
		t.Fatalf("expected no warnings, got %v", warn.Issues)
	}
}

func TestValidateDefinition_RejectsTooFewSteps(t *testing.T) {
	def := validDefinition()
	def.Steps = def.Steps[:1]

	verr, _ := ValidateDefinition(def)
	if verr == nil {
		t.Fatal("expected a validation error for a single-step workflow")
	}
}

func TestValidateDefinition_RejectsBadTopicDiscipline(t *testing.T) {
	def := validDefinition()
	def.Steps[0].Topic = "billing.charge" // missing .execute. segment

	verr, _ := ValidateDefinition(def)
	if verr == nil {
		t.Fatal("expected a validation error for a malformed execute topic")
	}
}

func TestValidateDefinition_RejectsUnknownDependsOn(t *testing.T) {
	def := validDefinition()
	def.Steps[1].DependsOn = []string{"NoSuchStep"}

	verr, _ := ValidateDefinition(def)
	if verr == nil {
		t.Fatal("expected a validation error for an unresolved depends_on reference")
	}
}

func TestValidateDefinition_RejectsCycle(t *testing.T) {
	def := validDefinition()
	def.Steps[0].DependsOn = []string{"ShipOrder"}
	def.Steps[1].DependsOn = []string{"ChargeCard"}

	verr, _ := ValidateDefinition(def)
	if verr == nil {
		t.Fatal("expected a validation error for a depends_on cycle")
	}
}

func TestValidateDefinition_WarnsOnUnknownAction(t *testing.T) {
	def := validDefinition()
	def.Steps[0].OnSuccess = []ActionDescriptor{{Action: "notify_slack"}}

	verr, warn := ValidateDefinition(def)
	if verr != nil {
		t.Fatalf("unknown actions must only warn, got error: %v", verr)
	}
	if warn == nil || len(warn.Issues) == 0 {
		t.Fatal("expected a warning for an unknown success action")
	}
}

func TestValidateDefinition_RejectsDuplicateStepNames(t *testing.T) {
	def := validDefinition()
	def.Steps[1].Name = def.Steps[0].Name

	verr, _ := ValidateDefinition(def)
	if verr == nil {
		t.Fatal("expected a validation error for duplicate step names")
	}
}

func TestValidateDefinition_RejectsBadVersion(t *testing.T) {
	def := validDefinition()
	def.Version = "v1"

	verr, _ := ValidateDefinition(def)
	if verr == nil {
		t.Fatal("expected a validation error for a non X.Y.Z version")
	}
}
