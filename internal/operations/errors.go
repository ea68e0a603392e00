package operations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/aws/smithy-go"

	transfererrors "github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
)

// Error codes S3 uses for requests rejected by policy.
var blockedCodes = map[string]bool{
	"AccessDenied":          true,
	"AllAccessDisabled":     true,
	"AccountProblem":        true,
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
}

// Error codes that mean the caller is being throttled, whatever the status.
var throttleCodes = map[string]bool{
	"SlowDown":                 true,
	"Throttling":               true,
	"ThrottlingException":      true,
	"RequestLimitExceeded":     true,
	"TooManyRequestsException": true,
}

type statusCoder interface {
	HTTPStatusCode() int
}

// TranslateError maps an SDK error onto the transfer error taxonomy.
// Context errors and errors that are already translated pass through.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		transfererrors.IsCancelled(err) {
		return err
	}

	var (
		httpErr *transfererrors.HTTPError
		netErr  *transfererrors.NetworkError
		blocked *transfererrors.BlockedError
	)
	if errors.As(err, &httpErr) || errors.As(err, &netErr) || errors.As(err, &blocked) {
		return err
	}

	var code string
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.ErrorCode()
	}
	var status int
	var sc statusCoder
	if errors.As(err, &sc) {
		status = sc.HTTPStatusCode()
	}

	if translated := TranslateResponse(err, status, code); translated != nil {
		return translated
	}
	if apiErr != nil {
		// A modeled error without a response; leave it to code-based retry classification.
		return err
	}

	var ne net.Error
	if errors.As(err, &ne) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return &transfererrors.NetworkError{Err: err}
	}
	return err
}

// TranslateResponse classifies a service error by its HTTP status and
// service error code. It returns nil when neither identifies the failure.
func TranslateResponse(err error, status int, code string) error {
	switch {
	case blockedCodes[code]:
		return &transfererrors.BlockedError{Reason: code, Err: err}
	case code == "NoSuchKey" || code == "NotFound" || status == http.StatusNotFound:
		return &transfererrors.HTTPError{
			StatusCode: http.StatusNotFound,
			Code:       code,
			Err:        fmt.Errorf("%w: %w", transfererrors.ErrObjectNotFound, err),
		}
	case throttleCodes[code] && status < http.StatusInternalServerError:
		return &transfererrors.HTTPError{StatusCode: http.StatusTooManyRequests, Code: code, Err: err}
	case status != 0:
		return &transfererrors.HTTPError{StatusCode: status, Code: code, Err: err}
	}
	return nil
}
