package client

import (
	"errors"
	"fmt"
	"io"

	"github.com/fzft/go-mock-kv/proto"
)

const (
	readChunk = 4096
	// discard consumed bytes once this many have piled up
	maxConsumed = 1024
)

// reader splits response frames out of a byte stream.
type reader struct {
	buf []byte
	pos int
}

// next returns the next response, reading from src as needed. The payload is only valid until the
// next call.
func (r *reader) next(src io.Reader) (proto.Status, []byte, error) {
	for {
		status, payload, n, err := proto.ParseResponse(r.buf[r.pos:])
		if err == nil {
			r.pos += n
			return status, payload, nil
		}
		if !errors.Is(err, proto.ErrShortFrame) {
			return 0, nil, err
		}
		if err := r.fill(src); err != nil {
			return 0, nil, err
		}
	}
}

func (r *reader) fill(src io.Reader) error {
	if r.pos > maxConsumed {
		n := copy(r.buf, r.buf[r.pos:])
		r.buf = r.buf[:n]
		r.pos = 0
	}
	if cap(r.buf)-len(r.buf) < readChunk {
		grown := make([]byte, len(r.buf), len(r.buf)+readChunk*2)
		copy(grown, r.buf)
		r.buf = grown
	}
	n, err := src.Read(r.buf[len(r.buf):cap(r.buf)])
	r.buf = r.buf[:len(r.buf)+n]
	if n > 0 {
		return nil
	}
	if err == io.EOF && len(r.buf) > r.pos {
		return fmt.Errorf("connection closed mid response: %w", io.ErrUnexpectedEOF)
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return err
}
