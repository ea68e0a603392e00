package transfer

import (
	"context"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/operations/download"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/operations/upload"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// s3Transport opens multipart upload and ranged download sessions in one bucket.
type s3Transport struct {
	s3Client s3api.S3API
	bucket   string
}

var _ transfertypes.Transport = (*s3Transport)(nil)

//nolint:ireturn // transfertypes.Session is the transport contract.
func (t *s3Transport) OpenUpload(
	ctx context.Context,
	id transfertypes.Identity,
	_ int64,
	meta *transfertypes.UploadMetadata,
) (transfertypes.Session, error) {
	s, err := upload.Open(ctx, t.s3Client, t.bucket, id.ResolveKey(), meta)
	if err != nil {
		return nil, err
	}
	return s, nil
}

//nolint:ireturn // transfertypes.Session is the transport contract.
func (t *s3Transport) OpenDownload(
	ctx context.Context,
	id transfertypes.Identity,
) (transfertypes.Session, int64, error) {
	s, err := download.Open(ctx, t.s3Client, t.bucket, id.ResolveKey())
	if err != nil {
		return nil, 0, err
	}
	return s, s.Size(), nil
}
