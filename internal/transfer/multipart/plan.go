package multipart

import (
	"fmt"
	"sync"

	transfererrors "github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

const (
	// DefaultPartSize is the default part size (5MB).
	DefaultPartSize = 5 * 1024 * 1024
	// MaxParts is the largest number of parts in one transfer.
	MaxParts = 10000
	// DefaultConcurrency is the default number of parts in flight.
	DefaultConcurrency = 4
)

// PartState is the lifecycle state of one part.
type PartState int

// Part states
const (
	PartPending PartState = iota
	PartActive
	PartDone
	PartFailed
)

// String implements fmt.Stringer.
func (s PartState) String() string {
	switch s {
	case PartPending:
		return "pending"
	case PartActive:
		return "active"
	case PartDone:
		return "done"
	case PartFailed:
		return "failed"
	default:
		return fmt.Sprintf("PartState(%d)", int(s))
	}
}

// Part is one byte range of a transfer.
type Part struct {
	Number int32
	Range  transfertypes.ByteRange

	mu       sync.Mutex
	state    PartState
	attempts int
	lastErr  error
	receipt  *transfertypes.RangeReceipt
}

// State returns the current part state.
func (p *Part) State() PartState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Attempts returns how many attempts were made.
func (p *Part) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// LastError returns the error of the latest attempt, nil if it succeeded.
func (p *Part) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Receipt returns the receipt of a done part.
func (p *Part) Receipt() *transfertypes.RangeReceipt {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.receipt
}

// RecordAttempt implements retry.Recorder.
func (p *Part) RecordAttempt(attempt int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts = attempt
	p.lastErr = err
}

func (p *Part) setState(s PartState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

func (p *Part) finish(receipt *transfertypes.RangeReceipt) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.receipt = receipt
	p.state = PartDone
}

// PartSize returns the part size used for size bytes: the requested size
// (or the default when not positive), raised so that at most MaxParts parts
// are needed.
func PartSize(size, partSize int64) int64 {
	if partSize <= 0 {
		partSize = DefaultPartSize
	}
	if size > partSize*MaxParts {
		partSize = (size + MaxParts - 1) / MaxParts
	}
	return partSize
}

// Plan splits [0, size) into parts in byte order. Every part but the last is
// exactly the part size. A zero-size object has one empty part.
func Plan(size, partSize int64) ([]*Part, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", transfererrors.ErrInvalidInput, size)
	}
	partSize = PartSize(size, partSize)

	if size == 0 {
		return []*Part{{Number: 1}}, nil
	}

	count := (size + partSize - 1) / partSize
	if count > MaxParts {
		return nil, fmt.Errorf("%w: %d parts", transfererrors.ErrTooManyParts, count)
	}

	parts := make([]*Part, 0, count)
	for offset, n := int64(0), int32(1); offset < size; offset, n = offset+partSize, n+1 {
		length := partSize
		if offset+length > size {
			length = size - offset
		}
		parts = append(parts, &Part{
			Number: n,
			Range:  transfertypes.ByteRange{Offset: offset, Length: length},
		})
	}
	return parts, nil
}
