package eventpayload

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// Validate checks the wire-level shape of a decoded EventPayload:
// workflow_id and timestamp must be non-empty. success and output are not
// checked; output may be absent.
func Validate(p *EventPayload) error {
	return validate.Struct(p)
}
