package codec

import (
	"errors"
	"fmt"
)

// Sentinel errors for session handling. These enable callers to
// programmatically distinguish failure modes using errors.Is.
var (
	// ErrInvalidConfig indicates a session constructor was given
	// parameters the hardware session cannot be bound to.
	ErrInvalidConfig = errors.New("codec: invalid session configuration")

	// ErrSessionClosed indicates a call on a session after Close.
	ErrSessionClosed = errors.New("codec: session closed")

	// ErrNotReady is a backend poll signal: the submitted unit has not
	// completed yet. It never escapes the session layer.
	ErrNotReady = errors.New("codec: unit not ready")

	// ErrEndOfStream is a backend poll signal: the hardware pipeline has
	// drained completely.
	ErrEndOfStream = errors.New("codec: end of stream")
)

// InsufficientBufferError indicates a caller-supplied output buffer too
// small for the produced unit. Required reports the exact size needed;
// no partial data is written. For encode, the already-dequeued
// compressed unit is discarded and cannot be recovered by retrying with
// a larger buffer.
type InsufficientBufferError struct {
	Required int
	Capacity int
}

func (e *InsufficientBufferError) Error() string {
	return fmt.Sprintf("codec: output buffer too small: need %d bytes, have %d", e.Required, e.Capacity)
}

// FormatError indicates a decoded frame whose pixel format is not NV12.
// No conversion between pixel formats is attempted.
type FormatError struct {
	Got string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("codec: decoded frame is not nv12 (got %s)", e.Got)
}

// HardwareError is an opaque passthrough of a failure in the underlying
// acceleration layer. Op names the submit/drain step that failed; the
// wrapped error is not reinterpreted.
type HardwareError struct {
	Op  string
	Err error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("codec: hardware %s: %v", e.Op, e.Err)
}

func (e *HardwareError) Unwrap() error {
	return e.Err
}
