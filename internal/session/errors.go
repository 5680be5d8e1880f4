package session

import "fmt"

// Phase names the stage of a run that an error escalated from.
type Phase string

const (
	PhaseBuild     Phase = "build"
	PhaseCompile   Phase = "compile"
	PhaseRetrieval Phase = "retrieval"
)

// ErrorKind classifies escalated failures. Validation and query failures
// are fed back into the conversation and never escalate on their own; the
// kinds below are the ones a run can terminate with.
type ErrorKind string

const (
	// KindConvergence: the turn bound was exhausted before the model stopped
	// calling tools.
	KindConvergence ErrorKind = "convergence"

	// KindTransport: the model endpoint stayed unreachable through retries.
	KindTransport ErrorKind = "transport"

	// KindCompile: the compile pass produced output that would not load.
	KindCompile ErrorKind = "compile"
)

// RunError is the terminal failure of a run, tagged with the phase it
// escalated from and the failure kind.
type RunError struct {
	Phase Phase
	Kind  ErrorKind
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Phase, e.Kind, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// NewRunError wraps err with phase and kind tags.
func NewRunError(phase Phase, kind ErrorKind, err error) *RunError {
	return &RunError{Phase: phase, Kind: kind, Err: err}
}
