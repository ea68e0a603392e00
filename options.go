package transfer

import (
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/cancellation"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// WithRegion sets the AWS region for S3 operations.
// If not specified, uses the region from the default credential chain.
func WithRegion(region string) transfertypes.Option {
	return func(c *transfertypes.ClientConfig) {
		c.Region = region
	}
}

// WithEndpoint sets a custom S3 endpoint URL.
// This is useful for S3-compatible services or local testing with LocalStack.
func WithEndpoint(endpoint string) transfertypes.Option {
	return func(c *transfertypes.ClientConfig) {
		c.Endpoint = endpoint
	}
}

// WithForcePathStyle forces path-style URLs instead of virtual-hosted style.
func WithForcePathStyle(forcePathStyle bool) transfertypes.Option {
	return func(c *transfertypes.ClientConfig) {
		c.ForcePathStyle = forcePathStyle
	}
}

// WithAWSConfig provides a custom AWS configuration instead of loading the
// default one. The client copies it and replaces its retryer.
func WithAWSConfig(config *aws.Config) transfertypes.Option {
	return func(c *transfertypes.ClientConfig) {
		c.CustomAWSConfig = config
	}
}

// WithBucket sets the bucket every transfer of the client targets.
func WithBucket(bucket string) transfertypes.Option {
	return func(c *transfertypes.ClientConfig) {
		c.Bucket = bucket
	}
}

// WithPartSize sets the default part size. Default is 5MB.
func WithPartSize(partSize int64) transfertypes.Option {
	return func(c *transfertypes.ClientConfig) {
		if partSize > 0 {
			c.PartSize = partSize
		}
	}
}

// WithConcurrency sets the default number of parts in flight per transfer.
// Default is 4.
func WithConcurrency(concurrency int) transfertypes.Option {
	return func(c *transfertypes.ClientConfig) {
		if concurrency > 0 {
			c.Concurrency = concurrency
		}
	}
}

// WithRetryPolicy sets the default per-part retry policy.
func WithRetryPolicy(policy *transfertypes.RetryPolicy) transfertypes.Option {
	return func(c *transfertypes.ClientConfig) {
		c.Retry = policy
	}
}

// WithRegistry enrolls the client's operations in r instead of the default
// registry.
func WithRegistry(r *cancellation.Registry) transfertypes.Option {
	return func(c *transfertypes.ClientConfig) {
		c.Registry = r
	}
}

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) transfertypes.Option {
	return func(c *transfertypes.ClientConfig) {
		c.Logger = logger
	}
}

// WithContentType sets the content type for upload operations.
// Without it the type is detected from the content and the key.
func WithContentType(contentType string) transfertypes.UploadOption {
	return func(c *transfertypes.UploadOptionConfig) {
		c.ContentType = contentType
	}
}

// WithMetadata sets metadata for upload operations.
func WithMetadata(metadata map[string]string) transfertypes.UploadOption {
	return func(c *transfertypes.UploadOptionConfig) {
		if c.Metadata == nil {
			c.Metadata = make(map[string]string, len(metadata))
		}
		for k, v := range metadata {
			c.Metadata[k] = v
		}
	}
}

// WithACL sets the canned ACL for upload operations.
func WithACL(acl transfertypes.ObjectACL) transfertypes.UploadOption {
	return func(c *transfertypes.UploadOptionConfig) {
		c.ACL = acl
	}
}

// WithServerSideEncryption sets server-side encryption configuration for upload operations.
func WithServerSideEncryption(sse *transfertypes.SSEConfig) transfertypes.UploadOption {
	return func(c *transfertypes.UploadOptionConfig) {
		c.SSE = sse
	}
}

// WithUploadPartSize overrides the client part size for this upload.
func WithUploadPartSize(partSize int64) transfertypes.UploadOption {
	return func(c *transfertypes.UploadOptionConfig) {
		if partSize > 0 {
			c.PartSize = partSize
		}
	}
}

// WithUploadConcurrency overrides the client concurrency for this upload.
func WithUploadConcurrency(concurrency int) transfertypes.UploadOption {
	return func(c *transfertypes.UploadOptionConfig) {
		if concurrency > 0 {
			c.Concurrency = concurrency
		}
	}
}

// WithUploadRetryPolicy overrides the client retry policy for this upload.
func WithUploadRetryPolicy(policy *transfertypes.RetryPolicy) transfertypes.UploadOption {
	return func(c *transfertypes.UploadOptionConfig) {
		c.Retry = policy
	}
}

// WithUploadProgress calls observer with every progress snapshot, on the
// goroutine that completed the bytes. observer must not block.
func WithUploadProgress(observer transfertypes.ProgressObserver) transfertypes.UploadOption {
	return func(c *transfertypes.UploadOptionConfig) {
		c.Observer = observer
		c.AsyncObserver = false
	}
}

// WithAsyncUploadProgress delivers progress to observer on its own
// goroutine. Snapshots that arrive while observer runs are coalesced to the
// latest one.
func WithAsyncUploadProgress(observer transfertypes.ProgressObserver) transfertypes.UploadOption {
	return func(c *transfertypes.UploadOptionConfig) {
		c.Observer = observer
		c.AsyncObserver = true
	}
}

// WithDownloadPartSize overrides the client part size for this download.
func WithDownloadPartSize(partSize int64) transfertypes.DownloadOption {
	return func(c *transfertypes.DownloadOptionConfig) {
		if partSize > 0 {
			c.PartSize = partSize
		}
	}
}

// WithDownloadConcurrency overrides the client concurrency for this download.
func WithDownloadConcurrency(concurrency int) transfertypes.DownloadOption {
	return func(c *transfertypes.DownloadOptionConfig) {
		if concurrency > 0 {
			c.Concurrency = concurrency
		}
	}
}

// WithDownloadRetryPolicy overrides the client retry policy for this download.
func WithDownloadRetryPolicy(policy *transfertypes.RetryPolicy) transfertypes.DownloadOption {
	return func(c *transfertypes.DownloadOptionConfig) {
		c.Retry = policy
	}
}

// WithDownloadProgress is the download counterpart of WithUploadProgress.
func WithDownloadProgress(observer transfertypes.ProgressObserver) transfertypes.DownloadOption {
	return func(c *transfertypes.DownloadOptionConfig) {
		c.Observer = observer
		c.AsyncObserver = false
	}
}

// WithAsyncDownloadProgress is the download counterpart of WithAsyncUploadProgress.
func WithAsyncDownloadProgress(observer transfertypes.ProgressObserver) transfertypes.DownloadOption {
	return func(c *transfertypes.DownloadOptionConfig) {
		c.Observer = observer
		c.AsyncObserver = true
	}
}

// WithPageSize bounds the objects returned per page. Values above 1000 are
// clamped by S3.
func WithPageSize(pageSize int32) transfertypes.ListOption {
	return func(c *transfertypes.ListOptionConfig) {
		if pageSize > 0 {
			c.PageSize = pageSize
		}
	}
}

// WithListAll drains every page into a single result.
func WithListAll() transfertypes.ListOption {
	return func(c *transfertypes.ListOptionConfig) {
		c.All = true
	}
}

// WithNextToken continues a listing from a previous page.
func WithNextToken(token string) transfertypes.ListOption {
	return func(c *transfertypes.ListOptionConfig) {
		c.NextToken = token
	}
}

// WithURLExpiry sets how long a pre-signed URL stays valid. Default is 15
// minutes, maximum 7 days.
func WithURLExpiry(expiresIn time.Duration) transfertypes.URLOption {
	return func(c *transfertypes.URLOptionConfig) {
		c.ExpiresIn = expiresIn
	}
}

// WithResponseContentType overrides the Content-Type served through the URL.
func WithResponseContentType(contentType string) transfertypes.URLOption {
	return func(c *transfertypes.URLOptionConfig) {
		c.ResponseContentType = contentType
	}
}

// WithResponseContentDisposition sets the Content-Disposition served through
// the URL, for example to force a download.
func WithResponseContentDisposition(disposition string) transfertypes.URLOption {
	return func(c *transfertypes.URLOptionConfig) {
		c.ResponseContentDisposition = disposition
	}
}
