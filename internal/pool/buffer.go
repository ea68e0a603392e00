// Package pool provides reusable part buffers.
//
// Upload parts are read into a buffer before transmission and download
// parts are received into one before they are committed to the sink, so a
// task holds at most one buffer per concurrently active part.
package pool

import (
	"sync"
)

const (
	// SmallBufferSize is the smallest buffer class (4KB).
	SmallBufferSize = 4 * 1024
	// ClassGranularity is the step between buffer classes above SmallBufferSize (64KB).
	ClassGranularity = 64 * 1024
	// MaxPooledSize is the largest buffer kept for reuse (64MB).
	MaxPooledSize = 64 * 1024 * 1024
)

// BufferPool manages reusable buffers grouped by capacity class.
type BufferPool struct {
	mu    sync.RWMutex
	pools map[int]*sync.Pool
}

// NewBufferPool creates an empty buffer pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		pools: make(map[int]*sync.Pool),
	}
}

// classFor rounds size up to its capacity class.
func classFor(size int) int {
	if size <= SmallBufferSize {
		return SmallBufferSize
	}
	return (size + ClassGranularity - 1) / ClassGranularity * ClassGranularity
}

func (bp *BufferPool) poolFor(class int) *sync.Pool {
	bp.mu.RLock()
	p, ok := bp.pools[class]
	bp.mu.RUnlock()
	if ok {
		return p
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()
	if p, ok = bp.pools[class]; ok {
		return p
	}
	p = &sync.Pool{
		New: func() interface{} {
			buf := make([]byte, class)
			return &buf
		},
	}
	bp.pools[class] = p
	return p
}

// Get returns a buffer with length size. Its contents are unspecified.
// The caller is responsible for calling Put to return the buffer to the pool.
func (bp *BufferPool) Get(size int) []byte {
	if size < 0 {
		size = 0
	}
	class := classFor(size)
	if class > MaxPooledSize {
		// For very large buffers, allocate new ones
		return make([]byte, size)
	}
	bufPtr := bp.poolFor(class).Get().(*[]byte)
	return (*bufPtr)[:size]
}

// Put returns a buffer obtained from Get. The buffer must not be used afterwards.
// Buffers whose capacity is not a class size are dropped.
func (bp *BufferPool) Put(buf []byte) {
	capacity := cap(buf)
	if capacity > MaxPooledSize || classFor(capacity) != capacity {
		return
	}
	buf = buf[:capacity]
	bp.poolFor(capacity).Put(&buf)
}

// Classes returns the number of capacity classes created so far.
func (bp *BufferPool) Classes() int {
	bp.mu.RLock()
	defer bp.mu.RUnlock()
	return len(bp.pools)
}

// Global buffer pool instance for use throughout the module.
var globalBufferPool = NewBufferPool()

// GetBuffer returns a buffer of length size from the global pool.
func GetBuffer(size int) []byte {
	return globalBufferPool.Get(size)
}

// PutBuffer returns a buffer to the global pool.
func PutBuffer(buf []byte) {
	globalBufferPool.Put(buf)
}
