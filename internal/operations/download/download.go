// Package download implements transfer sessions over ranged S3 GetObject
// requests.
//
// Opening a session reads the object size and ETag with HeadObject. Every
// range is then fetched with If-Match on that ETag, so an object replaced
// mid-transfer fails with 412 instead of mixing two versions.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	transfererrors "github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/operations"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// Session reads one object by range. It implements transfertypes.Session.
type Session struct {
	s3Client    s3api.S3API
	bucket      string
	key         string
	size        int64
	etag        string
	versionID   string
	contentType string
}

var _ transfertypes.Session = (*Session)(nil)

// Open looks up the object and returns a session for it.
func Open(ctx context.Context, s3Client s3api.S3API, bucket, key string) (*Session, error) {
	output, err := s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, operations.TranslateError(err)
	}

	return &Session{
		s3Client:    s3Client,
		bucket:      bucket,
		key:         key,
		size:        aws.ToInt64(output.ContentLength),
		etag:        aws.ToString(output.ETag),
		versionID:   aws.ToString(output.VersionId),
		contentType: aws.ToString(output.ContentType),
	}, nil
}

// Size returns the object size found when the session was opened.
func (s *Session) Size() int64 {
	return s.size
}

// TransmitRange fetches one range into req.Sink.
func (s *Session) TransmitRange(
	ctx context.Context,
	req *transfertypes.RangeRequest,
) (*transfertypes.RangeReceipt, error) {
	receipt := &transfertypes.RangeReceipt{
		PartNumber: req.PartNumber,
		Range:      req.Range,
		ETag:       s.etag,
	}
	// An empty object has no range to request.
	if req.Range.Length == 0 {
		return receipt, nil
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Range:  aws.String(req.Range.HTTPRange()),
	}
	if s.etag != "" {
		input.IfMatch = aws.String(s.etag)
	}
	if s.versionID != "" {
		input.VersionId = aws.String(s.versionID)
	}

	output, err := s.s3Client.GetObject(ctx, input)
	if err != nil {
		return nil, operations.TranslateError(err)
	}
	defer func() { _ = output.Body.Close() }()

	n, err := io.Copy(req.Sink, output.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// A full part buffer means the server sent more than asked for.
		if errors.Is(err, transfererrors.ErrSizeMismatch) {
			return nil, err
		}
		return nil, &transfererrors.NetworkError{
			Err: fmt.Errorf("read range %s after %d bytes: %w", req.Range.HTTPRange(), n, err),
		}
	}
	return receipt, nil
}

// Commit returns the reference of the downloaded object. Ranges are
// written to the sink as they complete, so nothing is left to assemble.
func (s *Session) Commit(
	_ context.Context,
	_ []transfertypes.RangeReceipt,
) (*transfertypes.ObjectReference, error) {
	return &transfertypes.ObjectReference{
		Key:         s.key,
		Size:        s.size,
		ETag:        s.etag,
		VersionID:   s.versionID,
		ContentType: s.contentType,
	}, nil
}

// Abort is a no-op; a download leaves nothing behind on the server.
func (s *Session) Abort(context.Context) error {
	return nil
}
