// Package miniotransport provides a transfer transport over the MinIO client.
//
// It speaks the same multipart and ranged-read protocol as the S3 transport
// but through minio-go's low-level Core API, so it works against MinIO and
// any other S3-compatible server minio-go supports.
package miniotransport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/encrypt"

	transfererrors "github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/operations"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// API is the subset of *minio.Core the transport uses.
type API interface {
	NewMultipartUpload(ctx context.Context, bucket, object string, opts minio.PutObjectOptions) (string, error)
	PutObjectPart(
		ctx context.Context,
		bucket, object, uploadID string,
		partID int,
		data io.Reader,
		size int64,
		opts minio.PutObjectPartOptions,
	) (minio.ObjectPart, error)
	CompleteMultipartUpload(
		ctx context.Context,
		bucket, object, uploadID string,
		parts []minio.CompletePart,
		opts minio.PutObjectOptions,
	) (minio.UploadInfo, error)
	AbortMultipartUpload(ctx context.Context, bucket, object, uploadID string) error
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	GetObject(
		ctx context.Context,
		bucket, object string,
		opts minio.GetObjectOptions,
	) (io.ReadCloser, minio.ObjectInfo, http.Header, error)
}

var _ API = (*minio.Core)(nil)

// Config holds the connection settings for NewFromEndpoint.
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string
	Secure          bool
}

// Transport opens transfer sessions against one bucket.
type Transport struct {
	api    API
	bucket string
}

var _ transfertypes.Transport = (*Transport)(nil)

// New returns a transport that uses api for every request.
func New(api API, bucket string) *Transport {
	return &Transport{api: api, bucket: bucket}
}

// NewFromEndpoint connects to a server with static credentials.
func NewFromEndpoint(cfg Config, bucket string) (*Transport, error) {
	core, err := minio.NewCore(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("miniotransport: create client for %s: %w", cfg.Endpoint, err)
	}
	return New(core, bucket), nil
}

// OpenUpload starts a multipart upload for id.
func (t *Transport) OpenUpload(
	ctx context.Context,
	id transfertypes.Identity,
	_ int64,
	meta *transfertypes.UploadMetadata,
) (transfertypes.Session, error) {
	opts, err := putOptions(meta)
	if err != nil {
		return nil, err
	}

	key := id.ResolveKey()
	uploadID, err := t.api.NewMultipartUpload(ctx, t.bucket, key, opts)
	if err != nil {
		return nil, translateError(err)
	}
	return &uploadSession{api: t.api, bucket: t.bucket, key: key, uploadID: uploadID}, nil
}

// OpenDownload stats the object behind id and returns a ranged-read session.
func (t *Transport) OpenDownload(
	ctx context.Context,
	id transfertypes.Identity,
) (transfertypes.Session, int64, error) {
	key := id.ResolveKey()
	info, err := t.api.StatObject(ctx, t.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, 0, translateError(err)
	}
	s := &downloadSession{api: t.api, bucket: t.bucket, key: key, info: info}
	return s, info.Size, nil
}

func putOptions(meta *transfertypes.UploadMetadata) (minio.PutObjectOptions, error) {
	var opts minio.PutObjectOptions
	if meta == nil {
		return opts, nil
	}

	opts.ContentType = meta.ContentType
	if len(meta.Metadata) > 0 || meta.ACL != "" {
		opts.UserMetadata = make(map[string]string, len(meta.Metadata)+1)
		for k, v := range meta.Metadata {
			opts.UserMetadata[k] = v
		}
		// minio-go sends x-amz-* user metadata keys as request headers.
		if meta.ACL != "" {
			opts.UserMetadata["x-amz-acl"] = string(meta.ACL)
		}
	}

	if meta.SSE != nil {
		switch meta.SSE.Type {
		case transfertypes.SSES3:
			opts.ServerSideEncryption = encrypt.NewSSE()
		case transfertypes.SSEKMS:
			sse, err := encrypt.NewSSEKMS(meta.SSE.KMSKeyID, nil)
			if err != nil {
				return opts, transfererrors.NewStorageError("openUpload", transfererrors.ErrInvalidInput).
					WithMessage(err.Error())
			}
			opts.ServerSideEncryption = sse
		}
	}
	return opts, nil
}

// translateError maps minio errors onto the transfer error taxonomy.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if resp := minio.ToErrorResponse(err); resp.StatusCode != 0 || resp.Code != "" {
		if translated := operations.TranslateResponse(err, resp.StatusCode, resp.Code); translated != nil {
			return translated
		}
	}
	return operations.TranslateError(err)
}
