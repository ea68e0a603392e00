package transfer

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/cancellation"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/operations"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/operations/copy"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// CopyOperation is a running server-side copy.
type CopyOperation = cancellation.Operation[*transfertypes.ObjectReference]

// Copy copies src to dst inside the client's bucket. The copy runs in the
// background, enrolled in the client's registry, so it can be cancelled
// through the returned operation or by its handle.
//
// Only the content type, metadata, ACL and encryption upload options apply.
// When a content type or metadata is given it replaces the source's.
func (c *Client) Copy(
	ctx context.Context,
	src, dst transfertypes.Identity,
	opts ...transfertypes.UploadOption,
) (*CopyOperation, error) {
	if c.s3Client == nil {
		return nil, errors.NewStorageError("copy", errors.ErrInvalidInput).
			WithKey(dst.Key).WithMessage("copy requires an S3 client")
	}
	if err := validation.ValidateIdentity(src); err != nil {
		return nil, err
	}

	cfg := &transfertypes.UploadOptionConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if err := validation.ValidateUpload(dst, cfg); err != nil {
		return nil, err
	}

	var meta *transfertypes.UploadMetadata
	if cfg.ContentType != "" || len(cfg.Metadata) > 0 || cfg.ACL != "" || cfg.SSE != nil {
		meta = &transfertypes.UploadMetadata{
			ContentType: cfg.ContentType,
			Metadata:    cfg.Metadata,
			ACL:         cfg.ACL,
			SSE:         cfg.SSE,
		}
	}

	srcKey, dstKey := src.ResolveKey(), dst.ResolveKey()
	copier := copy.NewCopier(c.s3Client)
	logger := c.logger.With("src", srcKey, "key", dstKey)

	op := cancellation.Go(ctx, c.registry, func(ctx context.Context) (*transfertypes.ObjectReference, error) {
		ref, err := copier.Copy(ctx, c.cfg.Bucket, srcKey, c.cfg.Bucket, dstKey, meta)
		if err != nil {
			logger.Debug("copy failed", "error", err)
			return nil, errors.NewStorageError("copy", err).WithKey(dstKey)
		}
		ref.Identity = dst
		logger.Debug("copy completed", "etag", ref.ETag)
		return ref, nil
	})
	logger.Debug("copy started", "handle", string(op.Handle()))
	return op, nil
}

// Remove deletes the object behind id. Removing a missing object is not an
// error. On a versioned bucket the result carries the delete marker's
// version.
func (c *Client) Remove(ctx context.Context, id transfertypes.Identity) (*transfertypes.RemoveResult, error) {
	if c.s3Client == nil {
		return nil, errors.NewStorageError("remove", errors.ErrInvalidInput).
			WithKey(id.Key).WithMessage("remove requires an S3 client")
	}
	if err := validation.ValidateIdentity(id); err != nil {
		return nil, err
	}

	key := id.ResolveKey()
	output, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.NewStorageError("remove", operations.TranslateError(err)).WithKey(key)
	}
	c.logger.Debug("object removed", "key", key)
	return &transfertypes.RemoveResult{
		Key:          key,
		VersionID:    aws.ToString(output.VersionId),
		DeleteMarker: aws.ToBool(output.DeleteMarker),
	}, nil
}
