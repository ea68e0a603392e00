// Package transfertypes provides shared type definitions for the transfer module.
package transfertypes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/cancellation"
)

// State is the lifecycle state of a transfer task.
type State int32

// Task states. Completed, Failed and Cancelled are terminal.
const (
	StatePending State = iota
	StateInProgress
	StatePaused
	StateCompleted
	StateFailed
	StateCancelled
)

// String returns the transfer status name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateInProgress:
		return "IN_PROGRESS"
	case StatePaused:
		return "PAUSED"
	case StateCompleted:
		return "COMPLETE"
	case StateFailed:
		return "FAILED"
	case StateCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// IsTerminal reports whether no further transition can leave s.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Direction is the direction bytes flow in a transfer.
type Direction int

// Transfer directions.
const (
	DirectionUpload Direction = iota
	DirectionDownload
)

// String returns a lowercase direction name.
func (d Direction) String() string {
	if d == DirectionDownload {
		return "download"
	}
	return "upload"
}

// ByteRange is a half-open byte interval [Offset, Offset+Length).
type ByteRange struct {
	Offset int64
	Length int64
}

// End returns the exclusive end offset.
func (r ByteRange) End() int64 {
	return r.Offset + r.Length
}

// HTTPRange formats the range as an HTTP Range header value.
// It returns an empty string for an empty range, which has no HTTP form.
func (r ByteRange) HTTPRange() string {
	if r.Length <= 0 {
		return ""
	}
	return fmt.Sprintf("bytes=%d-%d", r.Offset, r.End()-1)
}

// Progress is a snapshot of the bytes moved by a task.
type Progress struct {
	Transferred int64
	Total       int64
}

// Fraction returns Transferred/Total in [0,1]. An empty transfer reports 1.
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 1
	}
	return float64(p.Transferred) / float64(p.Total)
}

// ProgressObserver receives progress snapshots. Calls for one task are
// serialized and never decrease.
type ProgressObserver func(Progress)

// ObjectReference describes a stored object produced by a completed transfer
// or a listing. LastModified is only set on listed objects.
type ObjectReference struct {
	Identity     Identity
	Key          string // Resolved storage key
	Size         int64
	ETag         string
	VersionID    string
	ContentType  string
	LastModified time.Time
	Duration     time.Duration
}

// ListResult is one page of a listing.
type ListResult struct {
	Objects []ObjectReference
	// NextToken continues the listing; empty on the last page.
	NextToken string
}

// HasNextToken reports whether more pages follow.
func (r *ListResult) HasNextToken() bool {
	return r.NextToken != ""
}

// ObjectURL is a pre-signed download URL.
type ObjectURL struct {
	URL       string
	ExpiresAt time.Time
}

// RemoveResult describes a deleted object.
type RemoveResult struct {
	Key          string
	VersionID    string
	DeleteMarker bool
}

// RetryPolicy configures per-part retries. Zero fields take defaults.
type RetryPolicy struct {
	// MaxAttempts bounds the attempts per part, including the first one.
	MaxAttempts int
	// BaseDelay is the wait before the second attempt.
	BaseDelay time.Duration
	// MaxDelay caps any single wait.
	MaxDelay time.Duration
	// Jitter is the +/- fraction applied to each wait, in (0,1]. A negative
	// value disables jitter.
	Jitter float64
	// Retryable overrides the default classification when set.
	Retryable func(error) bool
}

// ObjectACL represents the access control list for stored objects.
type ObjectACL string

// Predefined object ACLs
const (
	ACLPrivate           ObjectACL = "private"
	ACLPublicRead        ObjectACL = "public-read"
	ACLPublicReadWrite   ObjectACL = "public-read-write"
	ACLAuthenticatedRead ObjectACL = "authenticated-read"
	ACLBucketOwnerRead   ObjectACL = "bucket-owner-read"
	ACLBucketOwnerFull   ObjectACL = "bucket-owner-full-control"
)

// SSEType represents the server-side encryption type for objects.
type SSEType string

// Predefined server-side encryption types
const (
	// SSES3 uses service-managed encryption keys
	SSES3 SSEType = "AES256"

	// SSEKMS uses KMS-managed encryption keys
	SSEKMS SSEType = "aws:kms"
)

// SSEConfig holds server-side encryption configuration.
type SSEConfig struct {
	Type     SSEType
	KMSKeyID string
}

// UploadMetadata is handed to the transport when a session is opened.
type UploadMetadata struct {
	ContentType string
	Metadata    map[string]string
	ACL         ObjectACL
	SSE         *SSEConfig
}

// Task is the control surface of a running transfer.
type Task interface {
	// Handle identifies the task in its cancellation registry.
	Handle() cancellation.Handle
	// State returns the current state.
	State() State
	// Pause stops dispatching new parts. It is a no-op unless the task is in progress.
	Pause() State
	// Resume continues a paused task. It is a no-op unless the task is paused.
	Resume() State
	// Cancel ends a non-terminal task with a cancellation.
	Cancel() State
	// Progress returns the latest snapshot.
	Progress() Progress
	// Result blocks until the task settles or ctx is done.
	Result(ctx context.Context) (*ObjectReference, error)
	// Done is closed once the task has settled.
	Done() <-chan struct{}
}

// TransferConfig holds the engine settings shared by uploads and downloads.
type TransferConfig struct {
	PartSize      int64
	Concurrency   int
	Retry         *RetryPolicy
	Observer      ProgressObserver
	AsyncObserver bool
}

// ClientConfig holds configuration for the transfer client.
type ClientConfig struct {
	Region          string
	Endpoint        string
	ForcePathStyle  bool
	CustomAWSConfig *aws.Config
	Bucket          string
	PartSize        int64
	Concurrency     int
	Retry           *RetryPolicy
	Registry        *cancellation.Registry
	Logger          *slog.Logger
}

// UploadOptionConfig holds configuration for upload operations.
type UploadOptionConfig struct {
	TransferConfig
	ContentType string
	Metadata    map[string]string
	SSE         *SSEConfig
	ACL         ObjectACL
}

// DownloadOptionConfig holds configuration for download operations.
type DownloadOptionConfig struct {
	TransferConfig
}

// ListOptionConfig holds configuration for list operations.
type ListOptionConfig struct {
	// PageSize bounds the objects per page; zero means the S3 maximum.
	PageSize  int32
	// All drains every page into one result.
	All       bool
	NextToken string
}

// URLOptionConfig holds configuration for pre-signed URLs.
type URLOptionConfig struct {
	ExpiresIn                  time.Duration
	ResponseContentType        string
	ResponseContentDisposition string
}

// Functional option types
type (
	// Option configures a Client.
	Option func(*ClientConfig)
	// UploadOption configures an upload.
	UploadOption func(*UploadOptionConfig)
	// DownloadOption configures a download.
	DownloadOption func(*DownloadOptionConfig)
	// ListOption configures a listing.
	ListOption func(*ListOptionConfig)
	// URLOption configures a pre-signed URL.
	URLOption func(*URLOptionConfig)
)
