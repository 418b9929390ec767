package pipeline

import (
	"context"
	"errors"
	"fmt"

	"gifbot/internal/delivery"
	"gifbot/internal/transcoder"
)

// ErrorKind groups failures by what the user is told.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindValidation
	KindTimeout
	KindEncodeFailed
	KindDeliveryExhausted
	KindUnexpected
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindTimeout:
		return "timeout"
	case KindEncodeFailed:
		return "encode_failed"
	case KindDeliveryExhausted:
		return "delivery_exhausted"
	default:
		return "unexpected"
	}
}

var (
	// ErrInputTooLarge marks a declared input over the size limit.
	ErrInputTooLarge = errors.New("input too large")
	// ErrOutputTooLarge marks a produced animation over the size limit.
	ErrOutputTooLarge = errors.New("output too large")
	// ErrSizeMismatch marks a download larger than the declared limit allows.
	ErrSizeMismatch = errors.New("downloaded size exceeds limit")
)

// ValidationError carries the user-facing reason for a rejected request.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// StageError is a stage-aware failure.
type StageError struct {
	Stage State
	Kind  ErrorKind
	Err   error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newStageError(stage State, err error) *StageError {
	return &StageError{Stage: stage, Kind: classifyCause(err), Err: err}
}

// Classify maps an error to the kind the user is told about.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var se *StageError
	if errors.As(err, &se) && se.Kind != KindNone {
		return se.Kind
	}
	return classifyCause(err)
}

func classifyCause(err error) ErrorKind {
	var ve *ValidationError
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &ve), errors.Is(err, transcoder.ErrTooLarge):
		return KindValidation
	case errors.Is(err, transcoder.ErrEncodeFailed):
		return KindEncodeFailed
	case errors.Is(err, delivery.ErrExhausted), errors.Is(err, delivery.ErrTooLarge):
		return KindDeliveryExhausted
	default:
		return KindUnexpected
	}
}

// User-facing messages.
const (
	NotVideoMessage         = "Please send a video file to convert to GIF."
	TooLargeMessage         = "Sorry, that video is too large for me to convert."
	TimeoutMessage          = "Sorry, that took too long. Please try a shorter or smaller video."
	EncodeFailedMessage     = "Sorry, I couldn't convert your video to GIF. Please try again with a different video."
	DeliveryFailedMessage   = "Your GIF was created but I couldn't send it. Please try again later."
	DeliveryTooLargeMessage = "Your GIF was created but it is too large for Telegram to accept. Please try a shorter clip."
	UnexpectedMessage       = "Sorry, something went wrong on my side. Please try again later."
)

// Message returns the single message shown to the user for err.
func Message(err error) string {
	switch Classify(err) {
	case KindNone:
		return ""
	case KindValidation:
		var ve *ValidationError
		if errors.As(err, &ve) && ve.Reason != "" {
			return ve.Reason
		}
		return TooLargeMessage
	case KindTimeout:
		return TimeoutMessage
	case KindEncodeFailed:
		return EncodeFailedMessage
	case KindDeliveryExhausted:
		if errors.Is(err, delivery.ErrTooLarge) {
			return DeliveryTooLargeMessage
		}
		return DeliveryFailedMessage
	default:
		return UnexpectedMessage
	}
}
