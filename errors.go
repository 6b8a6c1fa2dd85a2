// errors.go: structured error handling for the lockless primitives.
//
// Per the spec, only two failure modes ever surface as a Go error:
// OutOfMemory (allocation failure in an atomizer) and CallerError
// (a programming-contract violation: double mark, RCU use outside a
// critical section, a magic-value collision). Every other "failure"
// named by the design — DuplicateKey, NotFound, Full, Empty,
// ContentionRetry — is a distinguishable false/zero-value return from
// the operation itself, never wrapped in an error.
package lockless

import (
	goerrors "errors"

	"github.com/agilira/go-errors"
)

// Error codes, banded the way balios bands its own.
const (
	// Allocation errors (1xxx)
	ErrCodeOutOfMemory errors.ErrorCode = "LOCKLESS_OUT_OF_MEMORY"

	// Caller-contract errors (2xxx)
	ErrCodeCallerError errors.ErrorCode = "LOCKLESS_CALLER_ERROR"
)

const (
	msgOutOfMemory = "allocation failed"
	msgCallerError = "caller contract violated"
)

// NewErrOutOfMemory reports an allocation failure inside an atomizer.
// component names the package that attempted the allocation (for
// example "hashmap" or "ring"); size is the requested word count, when
// known.
func NewErrOutOfMemory(component string, size int) error {
	return errors.NewWithContext(ErrCodeOutOfMemory, msgOutOfMemory, map[string]interface{}{
		"component": component,
		"size":      size,
	})
}

// NewErrCallerError reports a violated caller contract: a double mark,
// a dereference outside an RCU critical section, a user-supplied value
// that collides with a reserved magic word, or similar. These are
// programming bugs, not runtime conditions; callers should not retry.
func NewErrCallerError(operation string, detail string) error {
	return errors.NewWithContext(ErrCodeCallerError, msgCallerError, map[string]interface{}{
		"operation": operation,
		"detail":    detail,
	})
}

// IsOutOfMemory reports whether err is an allocation failure.
func IsOutOfMemory(err error) bool {
	return errors.HasCode(err, ErrCodeOutOfMemory)
}

// IsCallerError reports whether err is a violated caller contract.
func IsCallerError(err error) bool {
	return errors.HasCode(err, ErrCodeCallerError)
}

// GetErrorCode extracts the error code carried by err, if any.
func GetErrorCode(err error) errors.ErrorCode {
	if err == nil {
		return ""
	}
	var coder errors.ErrorCoder
	if goerrors.As(err, &coder) {
		return coder.ErrorCode()
	}
	return ""
}

// GetErrorContext extracts the structured context carried by err.
func GetErrorContext(err error) map[string]interface{} {
	if err == nil {
		return nil
	}
	var lerr *errors.Error
	if goerrors.As(err, &lerr) {
		return lerr.Context
	}
	return nil
}
