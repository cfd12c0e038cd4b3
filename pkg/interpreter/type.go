package interpreter

import (
	"errors"
	"fmt"

	"github.com/delento/iot-data-processor/pkg/types"
)

var (
	// ErrUnknownMessageKind marks a message whose type tag is not one of
	// the four known kinds. Recovered locally, never fatal.
	ErrUnknownMessageKind = errors.New("unknown message kind")

	// ErrMalformedMessage is the sentinel wrapped by every
	// MalformedMessageError, for errors.Is checks.
	ErrMalformedMessage = errors.New("malformed message")
)

// MalformedMessageError reports a required field absent or of the wrong
// type in a message's data. The message is skipped; state is untouched.
type MalformedMessageError struct {
	Kind  types.MessageKind
	Field string
	Cause error
}

func (e *MalformedMessageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed %s message: field %q: %v", e.Kind, e.Field, e.Cause)
	}
	return fmt.Sprintf("malformed %s message: missing required field %q", e.Kind, e.Field)
}

func (e *MalformedMessageError) Unwrap() error {
	return ErrMalformedMessage
}

func malformed(kind types.MessageKind, field string) error {
	return &MalformedMessageError{Kind: kind, Field: field}
}

// BatchReport aggregates per-message outcomes of one batch run. Failures
// are isolated per message; a malformed message never blocks the next one.
type BatchReport struct {
	Total   int      `json:"total"`
	Emitted int      `json:"emitted"`
	Silent  int      `json:"silent"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}
