// Package errors provides code-carrying errors for the release engine.
//
// Every failure surfaced to the operator carries a stable machine-readable
// code, the engine phase it originated in, and, where it applies, the
// settings path that caused it.
package errors

import (
	"errors"
	"fmt"
)

// Code classifies engine failures.
type Code string

const (
	// ErrCodeConflict reports a settings merge ambiguity, such as an
	// override scope replacing a mapping with a scalar.
	ErrCodeConflict Code = "CONFLICT"

	// ErrCodeConfiguration reports a missing or contradictory required
	// value, such as an external database mode without a host.
	ErrCodeConfiguration Code = "CONFIGURATION"

	// ErrCodeNamingCollision reports two components of one release
	// truncating to the same resource name. Unreachable by construction;
	// fatal if it ever triggers.
	ErrCodeNamingCollision Code = "NAMING_COLLISION"

	// ErrCodeMigrationFailed reports a migration task that exited
	// non-zero or timed out.
	ErrCodeMigrationFailed Code = "MIGRATION_FAILED"

	// ErrCodeDriver reports a failed call to the cluster driver.
	ErrCodeDriver Code = "DRIVER"

	// ErrCodeTimeout reports a bounded wait that expired.
	ErrCodeTimeout Code = "TIMEOUT"

	// ErrCodeInternal reports an unexpected internal failure.
	ErrCodeInternal Code = "INTERNAL"
)

// Error is the engine error type. Phase names the pipeline stage
// (resolve, render, schedule, apply) and Path the offending settings
// path when one is known.
type Error struct {
	Code    Code
	Phase   string
	Path    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = fmt.Sprintf("%s (at %s)", msg, e.Path)
	}
	if e.Phase != "" {
		msg = fmt.Sprintf("%s: %s", e.Phase, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is match on code, so sentinel-style checks like
// errors.Is(err, &Error{Code: ErrCodeConflict}) work across wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New creates an error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a code and message. Returns nil if err is nil.
func Wrap(code Code, msg string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// WithPhase annotates the error with the failing engine phase.
func (e *Error) WithPhase(phase string) *Error {
	e.Phase = phase
	return e
}

// WithPath annotates the error with the offending settings path.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// CodeOf extracts the engine code from err, or ErrCodeInternal if err
// carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// PhaseOf extracts the failing phase from err, or "" if unknown.
func PhaseOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Phase
	}
	return ""
}

// IsCode reports whether err carries the given engine code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
