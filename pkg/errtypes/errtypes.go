// Package errtypes provides the closed set of error kinds the rest of the
// confetti-box packages return. Handlers type-switch on these to pick an
// HTTP status; nothing below the HTTP layer needs to know about status
// codes at all.
package errtypes

import (
	"fmt"

	"github.com/pkg/errors"
)

// NotFoundError signals a missing resource: unknown MMID, unknown upload
// UUID, or a blob file that vanished from disk.
type NotFoundError string

func (e NotFoundError) Error() string { return "not found: " + string(e) }

// NotFound constructs a NotFoundError.
func NotFound(msg string) error { return NotFoundError(msg) }

// ValidationError signals a malformed request the server will never retry:
// malformed request body or UUID, disallowed duration, oversized upload,
// empty name. A malformed MMID is reported as NotFound instead (see
// pkg/lookup).
type ValidationError string

func (e ValidationError) Error() string { return "invalid request: " + string(e) }

// Validation constructs a ValidationError.
func Validation(msg string) error { return ValidationError(msg) }

// ValidationErrorf constructs a ValidationError with a formatted message.
func ValidationErrorf(format string, args ...interface{}) error {
	return ValidationError(fmt.Sprintf(format, args...))
}

// ProtocolViolationError signals a fatal upload-protocol violation: a
// chunk write past the declared size, a duplicate chunk index, too many
// bytes on a WebSocket frame. The upload is always aborted when this is
// returned.
type ProtocolViolationError string

func (e ProtocolViolationError) Error() string { return "protocol violation: " + string(e) }

// ProtocolViolation constructs a ProtocolViolationError.
func ProtocolViolation(msg string) error { return ProtocolViolationError(msg) }

// InternalError signals an unexpected failure: I/O error, index corruption,
// exhausted MMID collision retries.
type InternalError string

func (e InternalError) Error() string { return "internal error: " + string(e) }

// Internal constructs an InternalError.
func Internal(msg string) error { return InternalError(msg) }

// InternalWrap constructs an InternalError carrying cause's message under
// msg, the same annotate-and-flatten shape as the teacher's pervasive
// errors.Wrap(err, "...") calls.
func InternalWrap(cause error, msg string) error {
	return InternalError(errors.Wrap(cause, msg).Error())
}

// IsNotFound reports whether err is a NotFoundError. Wrapped errors are not
// unwrapped.
func IsNotFound(err error) bool {
	_, ok := err.(NotFoundError)
	return ok
}

// IsValidation reports whether err is a ValidationError. Wrapped errors are
// not unwrapped.
func IsValidation(err error) bool {
	_, ok := err.(ValidationError)
	return ok
}

// IsProtocolViolation reports whether err is a ProtocolViolationError.
// Wrapped errors are not unwrapped.
func IsProtocolViolation(err error) bool {
	_, ok := err.(ProtocolViolationError)
	return ok
}
