package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for control, tuning and simulation.
var (
	// ErrInvalidObservation indicates an observation with the wrong length.
	ErrInvalidObservation = errors.New("dynamo: invalid observation (expected 8 values)")

	// ErrInvalidStep indicates a non-positive optimizer step index.
	ErrInvalidStep = errors.New("dynamo: optimizer step must be positive")

	// ErrUnsupportedObservationKind indicates the controller cannot consume
	// what the environment observes (e.g. rendered frames).
	ErrUnsupportedObservationKind = errors.New("dynamo: unsupported observation kind")

	// ErrUnknownEnvironment indicates no environment is registered for an id.
	ErrUnknownEnvironment = errors.New("dynamo: unknown environment id")

	// ErrInvalidAction indicates an action the environment cannot apply.
	ErrInvalidAction = errors.New("dynamo: invalid action")

	// ErrInvalidState indicates a state vector with NaN or Inf values.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")
)

// SimulationError wraps an error with episode context.
type SimulationError struct {
	Step    int
	Seed    *uint64
	Wrapped error
}

func (e *SimulationError) Error() string {
	if e.Seed != nil {
		return fmt.Sprintf("step %d (seed %d): %v", e.Step, *e.Seed, e.Wrapped)
	}
	return fmt.Sprintf("step %d: %v", e.Step, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
