package pipeline

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the state store, the stage runner and the CLI.
// Match with errors.Is; backends join their own sentinels alongside these.
var (
	ErrNotFound  = errors.New("not found")
	ErrMalformed = errors.New("malformed")

	// ErrMissingConnection is a Malformed document: no connection is bound.
	ErrMissingConnection = fmt.Errorf("%w: no connection bound", ErrMalformed)

	ErrAlreadyExists    = errors.New("already exists")
	ErrNotReady         = errors.New("not ready")
	ErrTransportFailure = errors.New("transport failure")

	// ErrUnsupportedDriver is a transport that cannot perform the operation at all.
	ErrUnsupportedDriver = fmt.Errorf("%w: unsupported by driver", ErrTransportFailure)

	ErrInvariantViolation = errors.New("invariant violation")
)

// StageError reports which stage and file a failure happened on.
type StageError struct {
	Stage Stage
	File  string
	Err   error
}

func (e *StageError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("stage=%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("stage=%s file=%s: %v", e.Stage, e.File, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
