// Package errors defines the error taxonomy shared by the transfer engine,
// its transports and the cancellation registry.
//
// Transports translate their native failures into these types once, at the
// boundary, so that retry classification and callers only ever inspect this
// package with errors.Is and errors.As.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common sentinel errors.
var (
	// ErrCancelled is matched by every CancelledError.
	ErrCancelled = errors.New("transfer: cancelled")

	// ErrInvalidInput indicates invalid input parameters.
	ErrInvalidInput = errors.New("transfer: invalid input")

	// ErrInvalidBucketName indicates the bucket name is invalid.
	ErrInvalidBucketName = errors.New("transfer: invalid bucket name")

	// ErrInvalidObjectKey indicates the object key is invalid.
	ErrInvalidObjectKey = errors.New("transfer: invalid object key")

	// ErrMissingIdentityID indicates a protected or private identity without an owner id.
	ErrMissingIdentityID = errors.New("transfer: identity id required for access level")

	// ErrObjectNotFound indicates the requested object does not exist.
	ErrObjectNotFound = errors.New("transfer: object not found")

	// ErrSizeMismatch indicates a range delivered fewer or more bytes than requested.
	ErrSizeMismatch = errors.New("transfer: size mismatch")

	// ErrTooManyParts indicates the content cannot be split within the part limit.
	ErrTooManyParts = errors.New("transfer: too many parts")

	// ErrDuplicateHandle indicates a handle is already registered.
	ErrDuplicateHandle = errors.New("transfer: duplicate handle")
)

// NetworkError is a transport-level failure: connection reset, timeout,
// truncated body. It is always retryable.
type NetworkError struct {
	Err error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("transfer: network error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPError is a response with a non-success status code.
type HTTPError struct {
	StatusCode int
	// Code is the service error code, when the service returned one.
	Code string
	Err  error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("transfer: http %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the status is throttling or a server error.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// BlockedError is a policy rejection of the request. Never retried.
type BlockedError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *BlockedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transfer: request blocked: %s: %v", e.Reason, e.Err)
	}
	return "transfer: request blocked: " + e.Reason
}

// Unwrap returns the underlying error.
func (e *BlockedError) Unwrap() error {
	return e.Err
}

// CancelledError reports that an operation ended because it was cancelled.
type CancelledError struct {
	// Cause is the reason attached to the cancellation, if any.
	Cause error
}

// NewCancelledError wraps cause as a cancellation.
func NewCancelledError(cause error) *CancelledError {
	return &CancelledError{Cause: cause}
}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	if e.Cause == nil || errors.Is(e.Cause, ErrCancelled) {
		return ErrCancelled.Error()
	}
	return fmt.Sprintf("%s: %v", ErrCancelled, e.Cause)
}

// Is makes errors.Is(err, ErrCancelled) hold for every CancelledError.
func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}

// Unwrap returns the cancellation cause.
func (e *CancelledError) Unwrap() error {
	return e.Cause
}

// StorageError carries the operation and object key an unrecoverable storage
// failure happened in.
type StorageError struct {
	Op  string // Operation that failed (e.g., "commit", "openUpload")
	Key string // Object key (if applicable)
	Err error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("transfer.%s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("transfer.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new StorageError with the given operation and error.
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{
		Op:  op,
		Err: err,
	}
}

// WithKey adds object key information to the error.
func (e *StorageError) WithKey(key string) *StorageError {
	e.Key = key
	return e
}

// WithMessage adds a custom message to the error.
func (e *StorageError) WithMessage(msg string) *StorageError {
	e.Err = fmt.Errorf("%s: %w", msg, e.Err)
	return e
}

// IsCancelled reports whether err is a cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// IsNetwork reports whether err is a NetworkError.
func IsNetwork(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// IsBlocked reports whether err is a BlockedError.
func IsBlocked(err error) bool {
	var blocked *BlockedError
	return errors.As(err, &blocked)
}

// IsNotFound checks if an error indicates a missing object.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrObjectNotFound) {
		return true
	}
	code, ok := StatusCode(err)
	return ok && code == http.StatusNotFound
}

// StatusCode extracts the HTTP status from the first HTTPError in the chain.
func StatusCode(err error) (int, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode, true
	}
	return 0, false
}
