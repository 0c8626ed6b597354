package buffer

import "sync"

const (
	defaultBufSize = 4 * 1024
	bigBufSize     = 64 * 1024
	maxBufSize     = 4 * 1024 * 1024 // larger buffers are left to the GC
)

var bufPool = sync.Pool{
	New: func() any {
		return &memBuffer{
			buf: make([]byte, 0, defaultBufSize),
		}
	},
}

var bigBufPool = sync.Pool{
	New: func() any {
		return &memBuffer{
			buf: make([]byte, 0, bigBufSize),
		}
	},
}

// PooledBuffer is a byte slice borrowed from a pool. It must not be used
// after Release.
type PooledBuffer interface {
	Data() []byte
	Len() int
	Release()
}

// Get returns a pooled buffer of the given length. Contents are not zeroed.
func Get(size int) PooledBuffer {
	var b *memBuffer
	if size >= bigBufSize {
		b = bigBufPool.Get().(*memBuffer) //nolint:forcetypeassert // pool only holds *memBuffer
	} else {
		b = bufPool.Get().(*memBuffer) //nolint:forcetypeassert // pool only holds *memBuffer
	}

	if cap(b.buf) < size {
		b.buf = make([]byte, size)
	}
	b.buf = b.buf[:size]
	b.released = false
	return b
}

// From returns a pooled buffer holding a copy of data.
func From(data []byte) PooledBuffer {
	b := Get(len(data))
	copy(b.Data(), data)
	return b
}

type memBuffer struct {
	buf      []byte
	released bool
}

func (b *memBuffer) Data() []byte {
	return b.buf
}

func (b *memBuffer) Len() int {
	return len(b.buf)
}

// Release returns the buffer to its pool. Releasing twice is a no-op.
func (b *memBuffer) Release() {
	if b.released {
		return
	}
	b.released = true

	if cap(b.buf) > maxBufSize {
		b.buf = nil
		return
	}

	b.buf = b.buf[:0]
	if cap(b.buf) >= bigBufSize {
		bigBufPool.Put(b)
	} else {
		bufPool.Put(b)
	}
}
