package node

import (
	"fmt"

	"github.com/fzft/go-mock-kv/proto"
)

const (
	// bufferBlock is the allocation granularity for connection buffers.
	bufferBlock = 4096

	// lowWaterMark is the headroom below which a read buffer is compacted while waiting for a header.
	lowWaterMark = 1024
)

func roundUp(n, block int) int {
	return (n + block - 1) / block * block
}

// Buffer is a byte array with a write cursor (size) and a read cursor (offset).
// offset <= size <= capacity always holds.
type Buffer struct {
	buf    []byte
	size   int
	offset int
}

func NewBuffer(capacity int) *Buffer {
	return &Buffer{buf: make([]byte, capacity)}
}

func (b *Buffer) Cap() int { return len(b.buf) }

// Len is the number of unread bytes.
func (b *Buffer) Len() int { return b.size - b.offset }

// Free is the room left after the write cursor.
func (b *Buffer) Free() int { return len(b.buf) - b.size }

// Bytes returns the unread bytes.
func (b *Buffer) Bytes() []byte { return b.buf[b.offset:b.size] }

// Tail returns the writable region after the write cursor.
func (b *Buffer) Tail() []byte { return b.buf[b.size:] }

// Advance moves the write cursor past n bytes written into Tail.
func (b *Buffer) Advance(n int) {
	if n < 0 || n > b.Free() {
		panic(fmt.Sprintf("node: advance %d with %d free", n, b.Free()))
	}
	b.size += n
}

// Consume moves the read cursor past n unread bytes.
func (b *Buffer) Consume(n int) {
	if n < 0 || n > b.Len() {
		panic(fmt.Sprintf("node: consume %d with %d unread", n, b.Len()))
	}
	b.offset += n
	if b.offset == b.size {
		b.Reset()
	}
}

func (b *Buffer) Reset() {
	b.size, b.offset = 0, 0
}

// Compact moves the unread bytes to the start of the buffer.
func (b *Buffer) Compact() {
	if b.offset == 0 {
		return
	}
	n := copy(b.buf, b.buf[b.offset:b.size])
	b.size, b.offset = n, 0
}

// Grow makes room for target bytes counted from the read cursor. The new capacity is rounded up to the
// block size and capped at max; unread bytes are kept and moved to the start.
func (b *Buffer) Grow(target, max int) error {
	if target > max {
		return fmt.Errorf("grow to %d bytes, max %d: %w", target, max, proto.ErrFrameTooLarge)
	}
	if target <= len(b.buf) {
		b.Compact()
		return nil
	}
	capacity := roundUp(target, bufferBlock)
	if capacity > max {
		capacity = max
	}
	buf := make([]byte, capacity)
	n := copy(buf, b.buf[b.offset:b.size])
	b.buf, b.size, b.offset = buf, n, 0
	return nil
}
