package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/aws/smithy-go"

	transfererrors "github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
)

// IsRetryable is the default classification: transient network failures,
// throttling and server errors are retried; client errors, policy
// rejections and cancellations are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		transfererrors.IsCancelled(err) ||
		transfererrors.IsBlocked(err) {
		return false
	}

	if transfererrors.IsNetwork(err) {
		return true
	}

	var httpErr *transfererrors.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}

	// Check for smithy API errors (AWS SDK v2 error type)
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "SlowDown",
			"Throttling",
			"ThrottlingException",
			"RequestLimitExceeded",
			"TooManyRequestsException",
			"RequestTimeout",
			"InternalError",
			"ServiceUnavailable":
			return true
		case "AccessDenied",
			"AllAccessDisabled",
			"NoSuchKey",
			"NoSuchBucket",
			"NoSuchUpload",
			"InvalidPart",
			"InvalidRange",
			"EntityTooSmall",
			"PreconditionFailed":
			return false
		}
	}

	var withStatus interface{ HTTPStatusCode() int }
	if errors.As(err, &withStatus) {
		code := withStatus.HTTPStatusCode()
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}

	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}
