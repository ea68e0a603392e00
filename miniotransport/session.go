package miniotransport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/minio/minio-go/v7"

	transfererrors "github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

type uploadSession struct {
	api      API
	bucket   string
	key      string
	uploadID string

	mu       sync.Mutex
	finished bool
}

func (s *uploadSession) TransmitRange(
	ctx context.Context,
	req *transfertypes.RangeRequest,
) (*transfertypes.RangeReceipt, error) {
	part, err := s.api.PutObjectPart(
		ctx, s.bucket, s.key, s.uploadID,
		int(req.PartNumber), req.Body, req.Range.Length,
		minio.PutObjectPartOptions{},
	)
	if err != nil {
		return nil, translateError(err)
	}
	return &transfertypes.RangeReceipt{
		PartNumber: req.PartNumber,
		Range:      req.Range,
		ETag:       part.ETag,
		Checksum:   part.ChecksumCRC32,
	}, nil
}

func (s *uploadSession) Commit(
	ctx context.Context,
	receipts []transfertypes.RangeReceipt,
) (*transfertypes.ObjectReference, error) {
	sorted := append([]transfertypes.RangeReceipt(nil), receipts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	parts := make([]minio.CompletePart, 0, len(sorted))
	var size int64
	for _, r := range sorted {
		parts = append(parts, minio.CompletePart{
			PartNumber:    int(r.PartNumber),
			ETag:          r.ETag,
			ChecksumCRC32: r.Checksum,
		})
		size += r.Range.Length
	}

	info, err := s.api.CompleteMultipartUpload(ctx, s.bucket, s.key, s.uploadID, parts, minio.PutObjectOptions{})
	if err != nil {
		return nil, translateError(err)
	}

	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()

	return &transfertypes.ObjectReference{
		Key:       s.key,
		Size:      size,
		ETag:      info.ETag,
		VersionID: info.VersionID,
	}, nil
}

func (s *uploadSession) Abort(ctx context.Context) error {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return nil
	}
	s.finished = true
	s.mu.Unlock()

	if err := s.api.AbortMultipartUpload(ctx, s.bucket, s.key, s.uploadID); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchUpload" {
			return nil
		}
		return transfererrors.NewStorageError("abortUpload", translateError(err)).WithKey(s.key)
	}
	return nil
}

type downloadSession struct {
	api    API
	bucket string
	key    string
	info   minio.ObjectInfo
}

func (s *downloadSession) TransmitRange(
	ctx context.Context,
	req *transfertypes.RangeRequest,
) (*transfertypes.RangeReceipt, error) {
	receipt := &transfertypes.RangeReceipt{
		PartNumber: req.PartNumber,
		Range:      req.Range,
		ETag:       s.info.ETag,
	}
	if req.Range.Length == 0 {
		return receipt, nil
	}

	var opts minio.GetObjectOptions
	if err := opts.SetRange(req.Range.Offset, req.Range.End()-1); err != nil {
		return nil, transfererrors.NewStorageError("readRange", transfererrors.ErrInvalidInput).
			WithKey(s.key).WithMessage(err.Error())
	}
	if s.info.ETag != "" {
		if err := opts.SetMatchETag(s.info.ETag); err != nil {
			return nil, transfererrors.NewStorageError("readRange", transfererrors.ErrInvalidInput).
				WithKey(s.key).WithMessage(err.Error())
		}
	}
	opts.VersionID = s.info.VersionID

	body, _, _, err := s.api.GetObject(ctx, s.bucket, s.key, opts)
	if err != nil {
		return nil, translateError(err)
	}
	defer func() { _ = body.Close() }()

	n, err := io.Copy(req.Sink, body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, transfererrors.ErrSizeMismatch) {
			return nil, err
		}
		return nil, &transfererrors.NetworkError{
			Err: fmt.Errorf("read range %s after %d bytes: %w", req.Range.HTTPRange(), n, err),
		}
	}
	return receipt, nil
}

func (s *downloadSession) Commit(
	context.Context,
	[]transfertypes.RangeReceipt,
) (*transfertypes.ObjectReference, error) {
	return &transfertypes.ObjectReference{
		Key:         s.key,
		Size:        s.info.Size,
		ETag:        s.info.ETag,
		VersionID:   s.info.VersionID,
		ContentType: s.info.ContentType,
	}, nil
}

func (s *downloadSession) Abort(context.Context) error {
	return nil
}
