package podcast

import (
	"errors"
	"fmt"
)

// GenerationError is returned when a text generation call fails or yields
// no usable content.
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed in %s stage: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// SchemaValidationError is returned when a structured payload does not
// match the conversation schema. Index is -1 when the failure is not tied
// to a single turn.
type SchemaValidationError struct {
	Index  int
	Field  string
	Reason string
	Err    error
}

func (e *SchemaValidationError) Error() string {
	msg := "invalid conversation payload"
	if e.Index >= 0 {
		msg = fmt.Sprintf("invalid turn %d", e.Index)
	}
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Reason != "" {
		msg += " " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaValidationError) Unwrap() error {
	return e.Err
}

// SynthesisError is returned when synthesizing a single turn fails.
// Stage is the step that failed: "voice", "descriptor", "render" or "join".
// Index is -1 for join failures.
type SynthesisError struct {
	Index int
	Stage string
	Err   error
}

func (e *SynthesisError) Error() string {
	if e.Stage == "join" {
		return fmt.Sprintf("joining segments failed: %v", e.Err)
	}
	return fmt.Sprintf("synthesis of turn %d failed at %s: %v", e.Index, e.Stage, e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

// TransportError is returned by remote collaborators for network failures
// and non-2xx responses. StatusCode is zero for network failures.
type TransportError struct {
	Service    string
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s returned status %d", e.Service, e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Service, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the call could succeed
func (e *TransportError) Temporary() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// IsTemporaryTransport reports whether err carries a retryable TransportError
func IsTemporaryTransport(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Temporary()
	}
	return false
}
