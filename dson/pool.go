package dson

import (
	"sync"
)

// ============================================================
// Buffer pool
// ============================================================

// bufferPool provides reusable output buffers for writers.
var bufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 0, 512)
		return &buf
	},
}

// getPooledBuffer gets a buffer from pool and resets it.
func getPooledBuffer() *[]byte {
	b := bufferPool.Get().(*[]byte)
	*b = (*b)[:0]
	return b
}

// putPooledBuffer returns a buffer to the pool.
func putPooledBuffer(b *[]byte) {
	// large buffers are left to the GC
	if cap(*b) < 64*1024 {
		bufferPool.Put(b)
	}
}
