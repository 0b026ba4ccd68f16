// Package pool provides reusable byte buffers for streaming copies.
package pool

import "sync"

// DefaultCopyBufferSize is the chunk size used when streaming file contents.
const DefaultCopyBufferSize = 256 * 1024

// FixedBufferPool hands out byte slices of a single fixed size. Copy loops
// borrow a buffer per transfer instead of allocating one each time.
type FixedBufferPool struct {
	size int
	pool sync.Pool
}

// NewFixedBuffer creates a pool of buffers of exactly size bytes.
func NewFixedBuffer(size int) *FixedBufferPool {
	return &FixedBufferPool{
		size: size,
		pool: sync.Pool{
			New: func() any {
				b := make([]byte, size)
				return &b
			},
		},
	}
}

// Get borrows a buffer. The caller must return it with Put.
func (fp *FixedBufferPool) Get() *[]byte {
	return fp.pool.Get().(*[]byte)
}

// Put returns a buffer to the pool. Foreign or resliced buffers whose
// capacity no longer matches are discarded.
func (fp *FixedBufferPool) Put(b *[]byte) {
	if b == nil || cap(*b) != fp.size {
		return
	}
	*b = (*b)[:fp.size]
	fp.pool.Put(b)
}
