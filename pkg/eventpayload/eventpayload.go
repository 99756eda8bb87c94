// Package eventpayload defines the wire format exchanged over response
// topics. Execute topics carry a bare JSON object of resolved inputs, which
// has no type here.
package eventpayload

import (
	"encoding/json"
	"time"
)

// EventPayload is the standard reply envelope published on success/failure
// response topics.
type EventPayload struct {
	WorkflowID string                 `json:"workflow_id" validate:"required"`
	Timestamp  string                 `json:"timestamp" validate:"required"`
	Success    bool                   `json:"success"`
	Output     map[string]interface{} `json:"output"`
}

// Now formats the current instant per the ISO-8601 wire format.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Parse decodes a response-topic message body into an EventPayload and
// validates it against the wire schema. A message that fails to decode or
// fails validation is a DeliveryAnomaly, never a fatal error.
func Parse(data []byte) (*EventPayload, error) {
	var p EventPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if err := Validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Marshal encodes an EventPayload back to its wire form.
func Marshal(p *EventPayload) ([]byte, error) {
	return json.Marshal(p)
}
