package errors

import (
	"errors"
	"net/http"
)

// ErrorCode names a failure class of a transfer.
// Codes are string-based for debuggability and natural JSON serialization.
type ErrorCode string

const (
	// Resource errors.

	// CodeNotFound indicates the object does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// Permission errors.

	// CodeForbidden indicates the request was rejected by an access policy.
	CodeForbidden ErrorCode = "FORBIDDEN"

	// Validation errors.

	// CodeInvalidInput indicates the provided input is invalid or malformed.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// Infrastructure errors.

	// CodeNetwork indicates a network operation failed.
	CodeNetwork ErrorCode = "NETWORK_ERROR"

	// CodeRateLimit indicates the service throttled the request.
	CodeRateLimit ErrorCode = "RATE_LIMIT_EXCEEDED"

	// CodeUnavailable indicates a server-side failure.
	CodeUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	// CodeStorage indicates an unrecoverable storage operation failure.
	CodeStorage ErrorCode = "STORAGE_ERROR"

	// Lifecycle errors.

	// CodeCancelled indicates the operation was cancelled.
	CodeCancelled ErrorCode = "CANCELLED"

	// Generic errors.

	// CodeUnknown indicates an unknown or unclassified error occurred.
	CodeUnknown ErrorCode = "UNKNOWN"
)

// CodeOf classifies err. The most specific member of the chain wins, so a
// StorageError wrapping an HTTP 404 reports CodeNotFound.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}

	var httpErr *HTTPError
	switch {
	case IsCancelled(err):
		return CodeCancelled
	case IsBlocked(err):
		return CodeForbidden
	case IsNetwork(err):
		return CodeNetwork
	case errors.Is(err, ErrObjectNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidObjectKey), errors.Is(err, ErrInvalidBucketName),
		errors.Is(err, ErrMissingIdentityID), errors.Is(err, ErrTooManyParts):
		return CodeInvalidInput
	case errors.As(err, &httpErr):
		switch {
		case httpErr.StatusCode == http.StatusNotFound:
			return CodeNotFound
		case httpErr.StatusCode == http.StatusForbidden:
			return CodeForbidden
		case httpErr.StatusCode == http.StatusTooManyRequests:
			return CodeRateLimit
		case httpErr.StatusCode >= http.StatusInternalServerError:
			return CodeUnavailable
		}
		return CodeInvalidInput
	}

	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return CodeStorage
	}
	return CodeUnknown
}
