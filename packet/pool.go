package packet

import (
	"bytes"
	"sync"
)

// bufferPool reuses *bytes.Buffer across MarshalPayload calls (currently
// Connect.MarshalPayload), the same shape as
// the teacher's packet.Buffer: a sync.Pool wrapped to hide Get/Put/Reset.
type bufferPool struct {
	pool *sync.Pool
}

func newBufferPool() *bufferPool {
	return &bufferPool{
		pool: &sync.Pool{New: func() any { return new(bytes.Buffer) }},
	}
}

func (b *bufferPool) Get() *bytes.Buffer {
	return b.pool.Get().(*bytes.Buffer)
}

func (b *bufferPool) Put(buf *bytes.Buffer) {
	buf.Reset()
	b.pool.Put(buf)
}

var buffers = newBufferPool()

// GetBuffer returns a zeroed, pooled buffer for building a payload.
func GetBuffer() *bytes.Buffer { return buffers.Get() }

// PutBuffer returns buf to the pool after resetting it.
func PutBuffer(buf *bytes.Buffer) { buffers.Put(buf) }
