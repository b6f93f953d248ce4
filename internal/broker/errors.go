package broker

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies every user-visible broker failure into one of
// ten fixed categories.
type ErrorKind string

const (
	KindBadRequest     ErrorKind = "BadRequest"
	KindPolicyRejected ErrorKind = "PolicyRejected"
	KindNotFound       ErrorKind = "NotFound"
	KindUnsupported    ErrorKind = "Unsupported"
	KindRateLimited    ErrorKind = "RateLimited"
	KindCircuitOpen    ErrorKind = "CircuitOpen"
	KindTimeout        ErrorKind = "Timeout"
	KindOutputOverflow ErrorKind = "OutputOverflow"
	KindSpawnFailed    ErrorKind = "SpawnFailed"
	KindInternal       ErrorKind = "Internal"
)

// Error is the uniform failure type every broker method returns.
type Error struct {
	Kind       ErrorKind
	Reason     string
	Cause      error
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind ErrorKind, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, Cause: cause}
}

// AsKind extracts the ErrorKind from err, defaulting to Internal for
// anything not already a *Error.
func AsKind(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindInternal
}
