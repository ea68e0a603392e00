package transfer

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/cancellation"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/transfer/multipart"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// Client starts transfers against one bucket and tracks them in a
// cancellation registry. It is safe for concurrent use.
type Client struct {
	// s3Client is nil when the client was built over a custom transport
	s3Client  s3api.S3API
	// presigner is nil unless s3Client is a real S3 client
	presigner s3api.Presigner
	transport transfertypes.Transport
	cfg       transfertypes.ClientConfig
	registry  *cancellation.Registry
	logger    *slog.Logger
}

func newConfig(opts []transfertypes.Option) transfertypes.ClientConfig {
	cfg := transfertypes.ClientConfig{
		PartSize:    multipart.DefaultPartSize,
		Concurrency: multipart.DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Registry == nil {
		cfg.Registry = cancellation.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return cfg
}

// New creates a client over the AWS S3 API. Credentials and region come
// from the default AWS credential chain unless overridden by options.
// WithBucket is required.
//
// SDK-level retries are disabled; parts are retried by the transfer engine.
func New(ctx context.Context, opts ...transfertypes.Option) (*Client, error) {
	clientCfg := newConfig(opts)
	if err := validation.ValidateBucketName(clientCfg.Bucket); err != nil {
		return nil, err
	}

	var cfg aws.Config
	if clientCfg.CustomAWSConfig != nil {
		cfg = clientCfg.CustomAWSConfig.Copy()
	} else {
		var err error
		cfg, err = config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, errors.NewStorageError("client initialization", err)
		}
	}

	if clientCfg.Region != "" {
		cfg.Region = clientCfg.Region
	} else if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	cfg.Retryer = func() aws.Retryer { return aws.NopRetryer{} }

	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = clientCfg.ForcePathStyle
		if clientCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(clientCfg.Endpoint)
		}
	})

	return build(s3Client, &s3Transport{s3Client: s3Client, bucket: clientCfg.Bucket}, clientCfg), nil
}

// NewWithClient creates a client over a custom S3API implementation.
// This is primarily used for testing with mocked clients.
func NewWithClient(s3Client s3api.S3API, opts ...transfertypes.Option) (*Client, error) {
	cfg := newConfig(opts)
	if err := validation.ValidateBucketName(cfg.Bucket); err != nil {
		return nil, err
	}
	return build(s3Client, &s3Transport{s3Client: s3Client, bucket: cfg.Bucket}, cfg), nil
}

// NewWithTransport creates a client over any transport, for example the
// MinIO transport. Copy, Remove, List and GetURL need the S3 API and are
// unavailable on such a client.
func NewWithTransport(t transfertypes.Transport, opts ...transfertypes.Option) *Client {
	return build(nil, t, newConfig(opts))
}

func build(s3Client s3api.S3API, t transfertypes.Transport, cfg transfertypes.ClientConfig) *Client {
	var presigner s3api.Presigner
	if sc, ok := s3Client.(*s3.Client); ok {
		presigner = s3.NewPresignClient(sc)
	}
	return &Client{
		s3Client:  s3Client,
		presigner: presigner,
		transport: t,
		cfg:       cfg,
		registry:  cfg.Registry,
		logger:    cfg.Logger.With("bucket", cfg.Bucket),
	}
}

// Registry returns the registry the client enrolls its operations in.
func (c *Client) Registry() *cancellation.Registry {
	return c.registry
}

// Cancel cancels any operation enrolled in the client's registry.
// It returns StatusCancelled when this call ended the operation and
// StatusAlreadyResolved when it had already settled or was never known.
func (c *Client) Cancel(h cancellation.Handle) cancellation.Status {
	status := c.registry.Cancel(h)
	c.logger.Debug("cancel requested", "handle", string(h), "status", string(status))
	return status
}

func (c *Client) transferDefaults() transfertypes.TransferConfig {
	return transfertypes.TransferConfig{
		PartSize:    c.cfg.PartSize,
		Concurrency: c.cfg.Concurrency,
		Retry:       c.cfg.Retry,
	}
}
