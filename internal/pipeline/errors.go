package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrPrecondition is returned when a stage's gate is not satisfied.
	ErrPrecondition = errors.New("stage precondition not met")
	// ErrNoImage is a precondition failure caused by a missing image.
	ErrNoImage = fmt.Errorf("%w: no image loaded", ErrPrecondition)
	// ErrEmptyInput is returned when speech is requested for blank text.
	ErrEmptyInput = errors.New("speech input is empty")
	// ErrStaleImage is returned when a result is committed for an image that was replaced.
	ErrStaleImage = errors.New("image changed while stage was running")
	// ErrUnknownStage is returned for stage names outside the pipeline.
	ErrUnknownStage = errors.New("unknown stage")
)

// Collaborator kinds used in CollaboratorError.
const (
	KindVision = "vision"
	KindOCR    = "ocr"
	KindSpeech = "speech"
)

// CollaboratorError wraps a failure of an external capability.
type CollaboratorError struct {
	Kind string
	Err  error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s collaborator failed: %v", e.Kind, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// ErrQuotaExceeded is wrapped in a CollaboratorError when the limiter denies a call.
var ErrQuotaExceeded = errors.New("quota exceeded")

var errEmptyAudio = errors.New("synthesizer returned no audio")

var errAborted = errors.New("stage run aborted")
