package node

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/fzft/go-mock-kv/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferCursors(t *testing.T) {
	b := NewBuffer(8)
	n := copy(b.Tail(), "abcdef")
	b.Advance(n)
	assert.Equal(t, 6, b.Len())
	assert.Equal(t, 2, b.Free())

	b.Consume(2)
	assert.Equal(t, "cdef", string(b.Bytes()))

	b.Compact()
	assert.Equal(t, "cdef", string(b.Bytes()))
	assert.Equal(t, 4, b.Free())

	b.Consume(4)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 8, b.Free(), "draining resets the cursors")
}

func TestBufferGrowRoundsToBlock(t *testing.T) {
	b := NewBuffer(proto.DefaultBufferSize)
	require.NoError(t, b.Grow(5000, proto.MaxMessageSize))
	assert.Equal(t, 8192, b.Cap())

	require.NoError(t, b.Grow(65000, proto.MaxMessageSize))
	assert.Equal(t, proto.MaxMessageSize, b.Cap())

	assert.ErrorIs(t, b.Grow(proto.MaxMessageSize+1, proto.MaxMessageSize), proto.ErrFrameTooLarge)
	assert.Equal(t, proto.MaxMessageSize, b.Cap())
}

// Unread bytes survive any interleaving of partial writes, reads, compactions and growth.
func TestBufferGrowPreservesUnread(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	b := NewBuffer(16)
	var want []byte
	var next byte

	for i := 0; i < 5000; i++ {
		switch rng.Intn(4) {
		case 0:
			n := rng.Intn(b.Free() + 1)
			tail := b.Tail()
			for j := 0; j < n; j++ {
				tail[j] = next
				want = append(want, next)
				next++
			}
			b.Advance(n)
		case 1:
			n := rng.Intn(b.Len() + 1)
			b.Consume(n)
			want = want[n:]
		case 2:
			b.Compact()
		case 3:
			target := min(b.Len()+rng.Intn(2*bufferBlock), proto.MaxMessageSize)
			require.NoError(t, b.Grow(target, proto.MaxMessageSize))
			assert.GreaterOrEqual(t, b.Cap(), target)
		}
		require.True(t, bytes.Equal(want, b.Bytes()), "step %d", i)
	}
}
