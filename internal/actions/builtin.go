package actions

import (
	"context"
	"fmt"
	"strconv"
)

// NewSuccessRegistry returns a Registry pre-populated with the built-in
// success actions: log, log_output.
func NewSuccessRegistry() *Registry {
	r := NewRegistry("success")
	r.Register("log", actionLog)
	r.Register("log_output", actionLogOutput)
	return r
}

// NewFailureRegistry returns a Registry pre-populated with the built-in
// failure actions: retry, skip, abort.
func NewFailureRegistry() *Registry {
	r := NewRegistry("failure")
	r.Register("retry", actionRetry)
	r.Register("skip", actionSkip)
	r.Register("abort", actionAbort)
	return r
}

// actionLog emits an operator-visible log line (params: message).
func actionLog(ctx context.Context, actx Context, params map[string]interface{}) error {
	message, _ := params["message"].(string)
	actx.Logf("%s", message)
	return nil
}

// actionLogOutput emits the step's last payload to the operator log.
func actionLogOutput(ctx context.Context, actx Context, params map[string]interface{}) error {
	run := actx.Run()
	step := run.Steps[actx.StepName()]
	if step.Payload == nil {
		actx.Logf("step %s: no payload to log", actx.StepName())
		return nil
	}
	actx.Logf("step %s output: %+v", actx.StepName(), step.Payload.Output)
	return nil
}

// actionRetry increments the retry counter; below max_attempts it calls
// RetryStep, otherwise it hands off to action_after_attempts.
func actionRetry(ctx context.Context, actx Context, params map[string]interface{}) error {
	maxAttempts, err := intParam(params, "max_attempts")
	if err != nil {
		return fmt.Errorf("retry: %w", err)
	}

	attempts, err := actx.IncrementRetryCounter(ctx)
	if err != nil {
		return fmt.Errorf("retry: incrementing retry counter: %w", err)
	}

	if attempts < maxAttempts {
		actx.Logf("step %s: retrying (attempt %d/%d)", actx.StepName(), attempts, maxAttempts)
		return actx.RetryStep(ctx)
	}

	after, _ := params["action_after_attempts"].(string)
	if after == "" {
		after = "abort"
	}
	actx.Logf("step %s: retry attempts exhausted (%d/%d), invoking %q", actx.StepName(), attempts, maxAttempts, after)
	return actx.RunHandler(ctx, after, nil)
}

// actionSkip marks the run Success despite the failure.
func actionSkip(ctx context.Context, actx Context, params map[string]interface{}) error {
	actx.Logf("step %s: failure skipped, run marked Success", actx.StepName())
	actx.MarkSuccess()
	return nil
}

// actionAbort is a no-op: the workflow's failure state stands.
func actionAbort(ctx context.Context, actx Context, params map[string]interface{}) error {
	actx.Logf("step %s: aborting, run remains Failed", actx.StepName())
	return nil
}

// intParam reads a parameter that may arrive as a number (int from the
// YAML definition loader, float64 from JSON) or a numeric string, per spec
// §4.4 ("max_attempts: int|numeric-string").
func intParam(params map[string]interface{}, key string) (int, error) {
	v, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("missing required parameter %q", key)
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("parameter %q: %w", key, err)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("parameter %q has unsupported type %T", key, v)
	}
}
