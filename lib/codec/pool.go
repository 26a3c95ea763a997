package codec

import (
	"bytes"
	"sync"
)

const maxPooledBuffer = 1 << 20

var bufferPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// GetBuffer checks out an empty scratch buffer. Return it with PutBuffer once
// its contents are no longer referenced.
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer obtained from GetBuffer. Very large buffers are
// dropped so the pool does not pin memory.
func PutBuffer(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > maxPooledBuffer {
		return
	}
	bufferPool.Put(buf)
}

var scratchPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 256)
		return &b
	},
}

func getScratch() []byte {
	return (*scratchPool.Get().(*[]byte))[:0]
}

func putScratch(b []byte) {
	if cap(b) > maxPooledBuffer {
		return
	}
	b = b[:0]
	scratchPool.Put(&b)
}
