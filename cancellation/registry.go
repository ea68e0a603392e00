// Package cancellation tracks in-flight asynchronous operations by opaque
// handle so that any of them can be cancelled from anywhere in the process.
//
// Each operation registers a Token when it starts. Exactly one of Cancel or
// Settle later removes the entry; whichever runs first decides the outcome
// the caller observes.
package cancellation

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/google/uuid"

	transfererrors "github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
)

const shardCount = 32

// Handle identifies a registered operation.
type Handle string

// NewHandle returns a fresh random handle.
func NewHandle() Handle {
	return Handle(uuid.NewString())
}

// Status is the outcome of a cancel request.
type Status string

// Cancel outcomes
const (
	// StatusCancelled means the operation was live and is now cancelled.
	StatusCancelled Status = "CANCELLED"
	// StatusAlreadyResolved means the operation had already settled or been cancelled.
	StatusAlreadyResolved Status = "ALREADY_RESOLVED"
)

type shard struct {
	mu      sync.Mutex
	entries map[Handle]*Token
}

// Registry maps handles to the tokens of live operations. Entries are
// spread over shards so unrelated operations never contend on one lock.
type Registry struct {
	shards [shardCount]shard
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].entries = make(map[Handle]*Token)
	}
	return r
}

func (r *Registry) shardFor(h Handle) *shard {
	hash := fnv.New32a()
	_, _ = hash.Write([]byte(h))
	return &r.shards[hash.Sum32()%shardCount]
}

// Register enrolls a new operation and returns its handle and token.
func (r *Registry) Register(parent context.Context) (Handle, *Token) {
	for {
		h := NewHandle()
		tok, err := r.RegisterHandle(parent, h)
		if err == nil {
			return h, tok
		}
	}
}

// RegisterHandle enrolls an operation under a caller-chosen handle.
func (r *Registry) RegisterHandle(parent context.Context, h Handle) (*Token, error) {
	s := r.shardFor(h)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[h]; exists {
		return nil, fmt.Errorf("%w: %s", transfererrors.ErrDuplicateHandle, h)
	}
	tok := NewToken(parent)
	s.entries[h] = tok
	return tok, nil
}

// Cancel cancels the operation registered under h.
func (r *Registry) Cancel(h Handle) Status {
	return r.CancelWithCause(h, nil)
}

// CancelWithCause cancels the operation registered under h, attaching cause.
func (r *Registry) CancelWithCause(h Handle, cause error) Status {
	s := r.shardFor(h)
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.entries[h]
	if !ok {
		return StatusAlreadyResolved
	}
	delete(s.entries, h)
	// Flipped under the shard lock so a concurrent Settle or second Cancel
	// observes the removal and the flip together.
	tok.Cancel(cause)
	return StatusCancelled
}

// Settle removes the entry of an operation that finished on its own. It
// reports true when a cancel got there first.
func (r *Registry) Settle(h Handle) bool {
	s := r.shardFor(h)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[h]; !ok {
		return true
	}
	delete(s.entries, h)
	return false
}

// Contains reports whether h is still live.
func (r *Registry) Contains(h Handle) bool {
	s := r.shardFor(h)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[h]
	return ok
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Cancel cancels h in the process-wide registry.
func Cancel(h Handle) Status {
	return defaultRegistry.Cancel(h)
}
