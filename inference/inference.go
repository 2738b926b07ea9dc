// Package inference defines the opaque model-execution boundary. The
// engine never loads model weights itself; it forwards inputs to a runner
// and returns outputs verbatim.
package inference

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrUnavailable: the runner could not be reached or timed out.
	// Distinct from every entitlement outcome; callers may retry.
	ErrUnavailable = errors.New("inference: runner unavailable")

	// ErrModelNotFound: the runner has no artifact for the model.
	ErrModelNotFound = errors.New("inference: model not found")

	// ErrExecution: the runner accepted the request but failed to
	// produce outputs.
	ErrExecution = errors.New("inference: execution failed")
)

// Runner executes a model against structured inputs.
type Runner interface {
	Run(ctx context.Context, modelID string, inputs json.RawMessage) (json.RawMessage, error)
}
