// Package content provides the sources uploads read from and the sinks
// downloads write to.
//
// Files are opened through go-billy, so the same code serves the local disk
// (osfs), in-memory filesystems (memfs) and anything else with a billy
// implementation.
package content

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-git/go-billy/v5"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// sniffLength is how many leading bytes are read to detect a content type.
const sniffLength = 3072

const defaultContentType = "application/octet-stream"

var (
	_ transfertypes.Source = (*Bytes)(nil)
	_ transfertypes.Source = (*File)(nil)
	_ transfertypes.Sink   = (*Buffer)(nil)
	_ transfertypes.Sink   = (*FileSink)(nil)
)

// Bytes is an in-memory source.
type Bytes struct {
	r *bytes.Reader
}

// FromBytes returns a source over data. data must not be modified while the
// source is in use.
func FromBytes(data []byte) *Bytes {
	return &Bytes{r: bytes.NewReader(data)}
}

// FromReader reads r to the end and returns a source over the bytes.
func FromReader(r io.Reader) (*Bytes, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("content: read source: %w", err)
	}
	return FromBytes(data), nil
}

// Size implements transfertypes.Source.
func (b *Bytes) Size() (int64, error) {
	return b.r.Size(), nil
}

// ReadAt implements transfertypes.Source.
func (b *Bytes) ReadAt(p []byte, off int64) (int, error) {
	return b.r.ReadAt(p, off)
}

// File is a source over a file in a billy filesystem.
type File struct {
	fs   billy.Filesystem
	path string

	mu   sync.Mutex
	file billy.File
}

// OpenFile opens path in fs for reading.
func OpenFile(fs billy.Filesystem, path string) (*File, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("content: open %q: %w", path, err)
	}
	return &File{fs: fs, path: path, file: f}, nil
}

// Name returns the path the file was opened with.
func (f *File) Name() string {
	return f.path
}

// Size implements transfertypes.Source.
func (f *File) Size() (int64, error) {
	info, err := f.fs.Stat(f.path)
	if err != nil {
		return 0, fmt.Errorf("content: stat %q: %w", f.path, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("content: %q is a directory", f.path)
	}
	return info.Size(), nil
}

// ReadAt implements transfertypes.Source. Concurrent calls are serialized
// because not every billy file supports parallel positional reads.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, err := f.file.ReadAt(p, off)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("content: readat %q off=%d: %w", f.path, off, err)
	}
	return n, err
}

// Close closes the underlying file.
func (f *File) Close() error {
	if err := f.file.Close(); err != nil {
		return fmt.Errorf("content: close %q: %w", f.path, err)
	}
	return nil
}

// Buffer is an in-memory sink that grows to fit every write.
type Buffer struct {
	mu  sync.Mutex
	buf []byte
}

// NewBuffer returns a sink preallocated for size bytes.
func NewBuffer(size int64) *Buffer {
	if size < 0 {
		size = 0
	}
	return &Buffer{buf: make([]byte, 0, size)}
}

// WriteAt implements transfertypes.Sink.
func (b *Buffer) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("content: negative offset %d", off)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if end := off + int64(len(p)); end > int64(len(b.buf)) {
		if end > int64(cap(b.buf)) {
			grown := make([]byte, end, max(end, 2*int64(cap(b.buf))))
			copy(grown, b.buf)
			b.buf = grown
		} else {
			b.buf = b.buf[:end]
		}
	}
	return copy(b.buf[off:], p), nil
}

// Bytes returns the bytes written so far.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf
}

// Len returns the length of the written content.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// FileSink writes a download into a file in a billy filesystem.
type FileSink struct {
	path string

	mu   sync.Mutex
	file billy.File
}

// CreateFile creates (or truncates) path in fs, making parent directories.
func CreateFile(fs billy.Filesystem, path string) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "/" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("content: mkdirall %q: %w", dir, err)
		}
	}
	f, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("content: create %q: %w", path, err)
	}
	return &FileSink{path: path, file: f}, nil
}

// WriteAt implements transfertypes.Sink.
func (s *FileSink) WriteAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Seek(off, io.SeekStart); err != nil {
		return 0, fmt.Errorf("content: seek %q off=%d: %w", s.path, off, err)
	}
	n, err := s.file.Write(p)
	if err != nil {
		return n, fmt.Errorf("content: write %q off=%d: %w", s.path, off, err)
	}
	return n, nil
}

// Sync flushes the file to stable storage when the filesystem supports it.
func (s *FileSink) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	syncer, ok := s.file.(interface{ Sync() error })
	if !ok {
		return nil
	}
	if err := syncer.Sync(); err != nil {
		return fmt.Errorf("content: sync %q: %w", s.path, err)
	}
	return nil
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.file.Close(); err != nil {
		return fmt.Errorf("content: close %q: %w", s.path, err)
	}
	return nil
}

// DetectContentType sniffs the leading bytes of src. When the bytes are not
// recognized it falls back to the extension of name, then to
// application/octet-stream.
func DetectContentType(src transfertypes.Source, name string) string {
	size, err := src.Size()
	if err == nil && size > 0 {
		buf := make([]byte, min(size, sniffLength))
		n, _ := src.ReadAt(buf, 0)
		if n > 0 {
			if mt := mimetype.Detect(buf[:n]); mt != nil && !mt.Is(defaultContentType) {
				return mt.String()
			}
		}
	}

	if name != "" {
		if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
			return ct
		}
	}
	return defaultContentType
}
