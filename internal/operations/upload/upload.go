// Package upload implements transfer sessions over S3 multipart uploads.
//
// A session is one multipart upload: every byte range becomes an UploadPart
// call, Commit completes the upload with the parts in byte order, and Abort
// discards whatever parts S3 has already stored.
package upload

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	transfererrors "github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/operations"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// Session is an open multipart upload. It implements transfertypes.Session.
type Session struct {
	s3Client s3api.S3API
	bucket   string
	key      string
	uploadID string

	mu       sync.Mutex
	finished bool
}

var _ transfertypes.Session = (*Session)(nil)

// Open creates the multipart upload for key. meta may be nil.
func Open(
	ctx context.Context,
	s3Client s3api.S3API,
	bucket, key string,
	meta *transfertypes.UploadMetadata,
) (*Session, error) {
	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	applyMetadata(input, meta)

	output, err := s3Client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return nil, operations.TranslateError(err)
	}

	return &Session{
		s3Client: s3Client,
		bucket:   bucket,
		key:      key,
		uploadID: aws.ToString(output.UploadId),
	}, nil
}

// UploadID returns the S3 multipart upload id.
func (s *Session) UploadID() string {
	return s.uploadID
}

// TransmitRange uploads one part.
func (s *Session) TransmitRange(
	ctx context.Context,
	req *transfertypes.RangeRequest,
) (*transfertypes.RangeReceipt, error) {
	output, err := s.s3Client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key),
		UploadId:      aws.String(s.uploadID),
		PartNumber:    aws.Int32(req.PartNumber),
		Body:          req.Body,
		ContentLength: aws.Int64(req.Range.Length),
	})
	if err != nil {
		return nil, operations.TranslateError(err)
	}

	return &transfertypes.RangeReceipt{
		PartNumber: req.PartNumber,
		Range:      req.Range,
		ETag:       aws.ToString(output.ETag),
		Checksum:   aws.ToString(output.ChecksumCRC32),
	}, nil
}

// Commit completes the multipart upload.
func (s *Session) Commit(
	ctx context.Context,
	receipts []transfertypes.RangeReceipt,
) (*transfertypes.ObjectReference, error) {
	sorted := append([]transfertypes.RangeReceipt(nil), receipts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	parts := make([]awstypes.CompletedPart, 0, len(sorted))
	var size int64
	for _, r := range sorted {
		part := awstypes.CompletedPart{
			ETag:       aws.String(r.ETag),
			PartNumber: aws.Int32(r.PartNumber),
		}
		if r.Checksum != "" {
			part.ChecksumCRC32 = aws.String(r.Checksum)
		}
		parts = append(parts, part)
		size += r.Range.Length
	}

	output, err := s.s3Client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(s.key),
		UploadId: aws.String(s.uploadID),
		MultipartUpload: &awstypes.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	if err != nil {
		return nil, operations.TranslateError(err)
	}

	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()

	return &transfertypes.ObjectReference{
		Key:       s.key,
		Size:      size,
		ETag:      aws.ToString(output.ETag),
		VersionID: aws.ToString(output.VersionId),
	}, nil
}

// Abort discards the multipart upload. It is a no-op once the upload was
// completed or aborted, and an upload S3 no longer knows is not an error.
func (s *Session) Abort(ctx context.Context) error {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return nil
	}
	s.finished = true
	s.mu.Unlock()

	_, err := s.s3Client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(s.key),
		UploadId: aws.String(s.uploadID),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchUpload" {
			return nil
		}
		return transfererrors.NewStorageError("abortUpload", operations.TranslateError(err)).WithKey(s.key)
	}
	return nil
}

func applyMetadata(input *s3.CreateMultipartUploadInput, meta *transfertypes.UploadMetadata) {
	if meta == nil {
		return
	}

	if meta.ContentType != "" {
		input.ContentType = aws.String(meta.ContentType)
	}
	if len(meta.Metadata) > 0 {
		input.Metadata = meta.Metadata
	}
	if meta.ACL != "" {
		input.ACL = awstypes.ObjectCannedACL(meta.ACL)
	}

	if meta.SSE != nil {
		switch meta.SSE.Type {
		case transfertypes.SSES3:
			input.ServerSideEncryption = awstypes.ServerSideEncryptionAes256
		case transfertypes.SSEKMS:
			input.ServerSideEncryption = awstypes.ServerSideEncryptionAwsKms
			if meta.SSE.KMSKeyID != "" {
				input.SSEKMSKeyId = aws.String(meta.SSE.KMSKeyID)
			}
		}
	}
}
