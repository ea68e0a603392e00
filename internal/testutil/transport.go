package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// MockSession is an in-memory transfertypes.Session. Downloads are served
// from Data; uploaded parts are kept and assembled on Commit.
type MockSession struct {
	// Data is the object served to range reads.
	Data []byte
	// Delay simulates per-range latency. The wait ends early on cancel.
	Delay time.Duration
	// ChunkSize splits range writes into several Write calls (default 4KB).
	ChunkSize int

	// TransmitFunc runs before every attempt; a non-nil error fails it.
	TransmitFunc func(ctx context.Context, req *transfertypes.RangeRequest, attempt int) error
	// CommitFunc replaces the default commit.
	CommitFunc func(ctx context.Context, receipts []transfertypes.RangeReceipt) (*transfertypes.ObjectReference, error)

	mu        sync.Mutex
	active    int
	maxActive int
	attempts  map[int32]int
	received  map[int32][]byte
	assembled []byte
	commits   int
	aborts    int
	started   []int32
}

// TransmitRange implements transfertypes.Session.
func (m *MockSession) TransmitRange(
	ctx context.Context,
	req *transfertypes.RangeRequest,
) (*transfertypes.RangeReceipt, error) {
	m.mu.Lock()
	if m.attempts == nil {
		m.attempts = make(map[int32]int)
	}
	m.attempts[req.PartNumber]++
	attempt := m.attempts[req.PartNumber]
	m.started = append(m.started, req.PartNumber)
	m.active++
	if m.active > m.maxActive {
		m.maxActive = m.active
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.active--
		m.mu.Unlock()
	}()

	if m.TransmitFunc != nil {
		if err := m.TransmitFunc(ctx, req, attempt); err != nil {
			return nil, err
		}
	}

	if m.Delay > 0 {
		timer := time.NewTimer(m.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		if m.received == nil {
			m.received = make(map[int32][]byte)
		}
		m.received[req.PartNumber] = data
		m.mu.Unlock()
		return &transfertypes.RangeReceipt{ETag: CalculateETag(data)}, nil
	}

	if req.Sink != nil {
		end := req.Range.End()
		if end > int64(len(m.Data)) {
			return nil, fmt.Errorf("mock: range %d-%d beyond object size %d", req.Range.Offset, end, len(m.Data))
		}
		chunk := m.ChunkSize
		if chunk <= 0 {
			chunk = 4 * 1024
		}
		for off := req.Range.Offset; off < end; off += int64(chunk) {
			stop := off + int64(chunk)
			if stop > end {
				stop = end
			}
			if _, err := req.Sink.Write(m.Data[off:stop]); err != nil {
				return nil, err
			}
		}
		return &transfertypes.RangeReceipt{ETag: CalculateETag(m.Data[req.Range.Offset:end])}, nil
	}

	return &transfertypes.RangeReceipt{}, nil
}

// Commit implements transfertypes.Session.
func (m *MockSession) Commit(
	ctx context.Context,
	receipts []transfertypes.RangeReceipt,
) (*transfertypes.ObjectReference, error) {
	m.mu.Lock()
	m.commits++
	m.mu.Unlock()

	if m.CommitFunc != nil {
		return m.CommitFunc(ctx, receipts)
	}

	var buf bytes.Buffer
	var size int64
	m.mu.Lock()
	for _, r := range receipts {
		buf.Write(m.received[r.PartNumber])
		size += r.Range.Length
	}
	m.assembled = buf.Bytes()
	m.mu.Unlock()

	return &transfertypes.ObjectReference{Size: size, ETag: "mock-etag"}, nil
}

// Abort implements transfertypes.Session.
func (m *MockSession) Abort(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborts++
	return nil
}

// MaxActive returns the highest number of concurrent TransmitRange calls.
func (m *MockSession) MaxActive() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxActive
}

// Attempts returns the number of attempts made for a part.
func (m *MockSession) Attempts(part int32) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[part]
}

// Started returns part numbers in the order their attempts began.
func (m *MockSession) Started() []int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int32(nil), m.started...)
}

// ReceivedParts returns the numbers of uploaded parts in ascending order.
func (m *MockSession) ReceivedParts() []int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	parts := make([]int32, 0, len(m.received))
	for n := range m.received {
		parts = append(parts, n)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i] < parts[j] })
	return parts
}

// Assembled returns the object built by the last default Commit.
func (m *MockSession) Assembled() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assembled
}

// Commits returns how many times Commit was called.
func (m *MockSession) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

// Aborts returns how many times Abort was called.
func (m *MockSession) Aborts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aborts
}

// MockTransport opens MockSessions.
type MockTransport struct {
	Session *MockSession
	// OpenErr fails every Open call when set.
	OpenErr error

	mu           sync.Mutex
	lastIdentity transfertypes.Identity
	lastMeta     *transfertypes.UploadMetadata
	lastSize     int64
}

// NewMockTransport returns a transport serving data to downloads.
func NewMockTransport(data []byte) *MockTransport {
	return &MockTransport{Session: &MockSession{Data: data}}
}

// OpenUpload implements transfertypes.Transport.
//
//nolint:ireturn // transfertypes.Session is the transport contract.
func (t *MockTransport) OpenUpload(
	_ context.Context,
	id transfertypes.Identity,
	size int64,
	meta *transfertypes.UploadMetadata,
) (transfertypes.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastIdentity, t.lastMeta, t.lastSize = id, meta, size
	if t.OpenErr != nil {
		return nil, t.OpenErr
	}
	return t.Session, nil
}

// OpenDownload implements transfertypes.Transport.
//
//nolint:ireturn // transfertypes.Session is the transport contract.
func (t *MockTransport) OpenDownload(
	_ context.Context,
	id transfertypes.Identity,
) (transfertypes.Session, int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastIdentity = id
	if t.OpenErr != nil {
		return nil, 0, t.OpenErr
	}
	return t.Session, int64(len(t.Session.Data)), nil
}

// LastIdentity returns the identity of the latest Open call.
func (t *MockTransport) LastIdentity() transfertypes.Identity {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastIdentity
}

// LastMetadata returns the upload metadata of the latest OpenUpload call.
func (t *MockTransport) LastMetadata() *transfertypes.UploadMetadata {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastMeta
}

// LastSize returns the size of the latest OpenUpload call.
func (t *MockTransport) LastSize() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSize
}
