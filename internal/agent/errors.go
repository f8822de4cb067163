package agent

import (
	"errors"
	"fmt"
)

// Common sentinel errors for control loop operations.
var (
	// ErrMaxIterations indicates the loop exhausted its step budget
	// without producing terminal text.
	ErrMaxIterations = errors.New("max iterations exceeded")

	// ErrNoOutputText indicates the model terminated without tool calls
	// and without any text content.
	ErrNoOutputText = errors.New("model response contained no output text")

	// ErrNoProvider indicates no LLM provider is configured.
	ErrNoProvider = errors.New("no provider configured")
)

// LoopPhase identifies where in the control loop an error occurred.
type LoopPhase string

const (
	PhaseInit         LoopPhase = "init"
	PhaseExchange     LoopPhase = "exchange"
	PhaseExecuteTools LoopPhase = "execute_tools"
	PhaseComplete     LoopPhase = "complete"
)

// LoopError wraps a control loop failure with its phase and iteration.
type LoopError struct {
	Phase     LoopPhase
	Iteration int
	Cause     error
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("loop %s (iteration %d): %v", e.Phase, e.Iteration, e.Cause)
}

func (e *LoopError) Unwrap() error {
	return e.Cause
}
