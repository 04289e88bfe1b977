package protocol

import (
	"bytes"
	"sync"
)

// MaxPooledBuffer is the largest buffer returned to the pool; bigger ones are dropped.
const MaxPooledBuffer = 1024 * 1024

// bufferPool holds record encoding buffers
var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// GetBuffer retrieves a reset buffer from the pool.
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool.
// Buffers larger than MaxPooledBuffer are not pooled to prevent memory bloat.
func PutBuffer(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	if buf.Cap() > MaxPooledBuffer {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}

// GetBufferWithSize retrieves a buffer from the pool and grows it to the size hint.
func GetBufferWithSize(sizeHint int) *bytes.Buffer {
	buf := GetBuffer()
	if sizeHint > 0 && buf.Cap() < sizeHint {
		buf.Grow(sizeHint)
	}
	return buf
}
