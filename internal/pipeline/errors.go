package pipeline

import (
	"errors"
	"fmt"
)

// ErrInvalidURL is returned when no valid video id can be derived from the
// request.
var ErrInvalidURL = errors.New("invalid video url or id")

// Kind classifies a stage failure. The orchestrator decides from the kind
// whether a run aborts or continues.
type Kind int

const (
	// KindFatal aborts the run.
	KindFatal Kind = iota
	// KindRecoverable is logged and the run continues without the stage output.
	KindRecoverable
	// KindMissingPrerequisite means an earlier stage's artifact is absent.
	KindMissingPrerequisite
	// KindNotFound means the video itself is unknown.
	KindNotFound
	// KindInput is a malformed request.
	KindInput
)

func (k Kind) String() string {
	switch k {
	case KindFatal:
		return "fatal"
	case KindRecoverable:
		return "recoverable"
	case KindMissingPrerequisite:
		return "missing_prerequisite"
	case KindNotFound:
		return "not_found"
	case KindInput:
		return "input"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// StageError is the error returned by every stage.
type StageError struct {
	Stage string
	Kind  Kind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageError(stage string, kind Kind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// KindOf returns the kind of err, or KindFatal when err is not a StageError.
func KindOf(err error) Kind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindFatal
}
