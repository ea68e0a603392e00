package transfertypes

import (
	"context"
	"io"
)

// Source is content to upload. Size must be stable for the life of a task
// and ReadAt must be safe for concurrent use.
type Source interface {
	Size() (int64, error)
	ReadAt(p []byte, off int64) (int, error)
}

// Sink receives downloaded content. Parts are written at their offsets,
// possibly out of order and concurrently.
type Sink interface {
	WriteAt(p []byte, off int64) (int, error)
}

// RangeRequest asks a session to move one part.
type RangeRequest struct {
	PartNumber int32
	Range      ByteRange
	// Body holds the part payload for uploads. It may be read more than once
	// after seeking back to the start.
	Body io.ReadSeeker
	// Sink receives the part payload for downloads.
	Sink io.Writer
}

// RangeReceipt acknowledges a transmitted part.
type RangeReceipt struct {
	PartNumber int32
	Range      ByteRange
	ETag       string
	Checksum   string
}

// Session is one object transfer on a transport.
type Session interface {
	// TransmitRange moves one byte range. Errors are classified by the
	// retry engine, so sessions return transfer/errors types where they can.
	TransmitRange(ctx context.Context, req *RangeRequest) (*RangeReceipt, error)
	// Commit finalizes the object from receipts sorted by part number.
	Commit(ctx context.Context, receipts []RangeReceipt) (*ObjectReference, error)
	// Abort discards any partial state. It must be safe to call after a
	// failed Commit and more than once.
	Abort(ctx context.Context) error
}

// Transport opens sessions against a storage service.
type Transport interface {
	OpenUpload(ctx context.Context, id Identity, size int64, meta *UploadMetadata) (Session, error)
	// OpenDownload returns the session and the object size.
	OpenDownload(ctx context.Context, id Identity) (Session, int64, error)
}
