// Package state implements the State Store Adapter (spec §4.3): a narrow
// key/value contract the Run State Machine uses to persist Run State and
// retry counters. The contract intentionally offers no cross-key
// transactions — every Set is the commit point for whatever invariant it
// establishes (spec §4.3).
package state

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no value is stored under key.
var ErrNotFound = errors.New("state: key not found")

// Store is the capability set spec §4.3 requires of the state store:
// new_key, get, set. Implementations must make Set atomic at the
// per-key level; no multi-key transaction is assumed by the core.
type Store interface {
	// NewKey returns a globally unique opaque identifier, used both for
	// new run IDs and is otherwise never reused.
	NewKey(ctx context.Context) (string, error)

	// Get retrieves the raw bytes previously stored under key, or
	// ErrNotFound if the key has never been set.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set overwrites the value stored under key.
	Set(ctx context.Context, key string, value []byte) error
}

// RetryCounterKey returns the persistence key for the retry counter of a
// (workflow_id, step_name) pair (spec §3: "<workflow_id>:<step_name>").
func RetryCounterKey(workflowID, stepName string) string {
	return workflowID + ":" + stepName
}
