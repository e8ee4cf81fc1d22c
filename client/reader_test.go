package client

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/fzft/go-mock-kv/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderSplitsFrames(t *testing.T) {
	var stream []byte
	var err error
	for i := 0; i < 500; i++ {
		stream, err = proto.AppendResponse(stream, proto.StatusOK, []byte{byte(i), byte(i >> 8)})
		require.NoError(t, err)
	}
	stream, err = proto.AppendResponse(stream, proto.StatusBadKey, nil)
	require.NoError(t, err)

	// one byte at a time forces a refill for every frame and several compactions
	src := iotest.OneByteReader(bytes.NewReader(stream))
	var r reader
	for i := 0; i < 500; i++ {
		status, payload, err := r.next(src)
		require.NoError(t, err)
		assert.Equal(t, proto.StatusOK, status)
		assert.Equal(t, []byte{byte(i), byte(i >> 8)}, payload)
	}
	status, payload, err := r.next(src)
	require.NoError(t, err)
	assert.Equal(t, proto.StatusBadKey, status)
	assert.Empty(t, payload)

	_, _, err = r.next(src)
	assert.Equal(t, io.EOF, err)
}

func TestReaderTruncatedFrame(t *testing.T) {
	frame, err := proto.AppendResponse(nil, proto.StatusOK, []byte("payload"))
	require.NoError(t, err)

	var r reader
	_, _, err = r.next(bytes.NewReader(frame[:len(frame)-2]))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func TestReaderMalformedFrame(t *testing.T) {
	var r reader
	_, _, err := r.next(bytes.NewReader([]byte{1, 0, 0, 0}))
	assert.True(t, errors.Is(err, proto.ErrMalformed))
}
