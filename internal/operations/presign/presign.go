// Package presign builds pre-signed S3 download URLs.
package presign

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	transfererrors "github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/operations"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

const (
	// DefaultExpiry is the lifetime of a URL when none is requested.
	DefaultExpiry = 15 * time.Minute
	// MaxExpiry is the longest lifetime SigV4 allows.
	MaxExpiry = 7 * 24 * time.Hour
)

// Signer turns object keys into pre-signed GET URLs.
type Signer struct {
	presigner s3api.Presigner
	now       func() time.Time
}

// NewSigner creates a signer over presigner.
func NewSigner(presigner s3api.Presigner) *Signer {
	return &Signer{presigner: presigner, now: time.Now}
}

// URL signs a GET of bucket/key. The object is not checked for existence.
func (s *Signer) URL(
	ctx context.Context,
	bucket, key string,
	cfg *transfertypes.URLOptionConfig,
) (*transfertypes.ObjectURL, error) {
	expires := cfg.ExpiresIn
	switch {
	case expires == 0:
		expires = DefaultExpiry
	case expires < time.Second || expires > MaxExpiry:
		return nil, fmt.Errorf("%w: url expiry must be between 1s and %s, got %s",
			transfererrors.ErrInvalidInput, MaxExpiry, expires)
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if cfg.ResponseContentType != "" {
		input.ResponseContentType = aws.String(cfg.ResponseContentType)
	}
	if cfg.ResponseContentDisposition != "" {
		input.ResponseContentDisposition = aws.String(cfg.ResponseContentDisposition)
	}

	signedAt := s.now()
	req, err := s.presigner.PresignGetObject(ctx, input, s3.WithPresignExpires(expires))
	if err != nil {
		return nil, operations.TranslateError(err)
	}
	return &transfertypes.ObjectURL{URL: req.URL, ExpiresAt: signedAt.Add(expires)}, nil
}
