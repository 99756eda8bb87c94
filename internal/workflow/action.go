package workflow

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML captures the descriptor's "action" field plus every other
// sibling key as Params, so action-specific parameters (max_attempts,
// action_after_attempts, message, ...) don't need a fixed schema here —
// the Action Registry owns their interpretation.
func (a *ActionDescriptor) UnmarshalYAML(value *yaml.Node) error {
	raw := map[string]interface{}{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	return a.fromRaw(raw)
}

// UnmarshalJSON mirrors UnmarshalYAML for JSON-sourced definitions.
func (a *ActionDescriptor) UnmarshalJSON(data []byte) error {
	raw := map[string]interface{}{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return a.fromRaw(raw)
}

func (a *ActionDescriptor) fromRaw(raw map[string]interface{}) error {
	if name, ok := raw["action"].(string); ok {
		a.Action = name
	}
	a.Params = make(map[string]interface{}, len(raw))
	for k, v := range raw {
		if k == "action" {
			continue
		}
		a.Params[k] = v
	}
	return nil
}

// MarshalYAML re-flattens Params alongside Action for round-tripping.
func (a ActionDescriptor) MarshalYAML() (interface{}, error) {
	out := make(map[string]interface{}, len(a.Params)+1)
	for k, v := range a.Params {
		out[k] = v
	}
	out["action"] = a.Action
	return out, nil
}

// MarshalJSON mirrors MarshalYAML for JSON serialization.
func (a ActionDescriptor) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(a.Params)+1)
	for k, v := range a.Params {
		out[k] = v
	}
	out["action"] = a.Action
	return json.Marshal(out)
}
