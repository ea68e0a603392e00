package multipart

import (
	"bytes"
	"fmt"
	"io"

	transfererrors "github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
)

// partReader serves an upload payload and reports the read position.
// Transports may rewind it to re-send or to hash the body first.
type partReader struct {
	r      *bytes.Reader
	report func(n int64)
}

func newPartReader(payload []byte, report func(n int64)) *partReader {
	return &partReader{r: bytes.NewReader(payload), report: report}
}

func (pr *partReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.report(pr.r.Size() - int64(pr.r.Len()))
	}
	return n, err
}

func (pr *partReader) Seek(offset int64, whence int) (int64, error) {
	return pr.r.Seek(offset, whence)
}

// Len returns the unread byte count.
func (pr *partReader) Len() int {
	return pr.r.Len()
}

// partWriter receives a download payload into a fixed buffer.
type partWriter struct {
	buf    []byte
	n      int
	report func(n int64)
}

func newPartWriter(buf []byte, report func(n int64)) *partWriter {
	return &partWriter{buf: buf, report: report}
}

func (pw *partWriter) Write(p []byte) (int, error) {
	if len(p) > len(pw.buf)-pw.n {
		return 0, fmt.Errorf("%w: range overflow at %d bytes", transfererrors.ErrSizeMismatch, pw.n+len(p))
	}
	n := copy(pw.buf[pw.n:], p)
	pw.n += n
	pw.report(int64(pw.n))
	return n, nil
}

// readPayload fills payload from src at off.
func readPayload(src io.ReaderAt, payload []byte, off int64) error {
	n, err := src.ReadAt(payload, off)
	if n == len(payload) {
		return nil
	}
	if err == nil || err == io.EOF {
		return fmt.Errorf("%w: read %d of %d bytes at offset %d",
			transfererrors.ErrSizeMismatch, n, len(payload), off)
	}
	return err
}
