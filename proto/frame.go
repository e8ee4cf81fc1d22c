package proto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// LenSize is the width of every length, count and status field on the wire.
	LenSize = 2

	DefaultBufferSize = 4096
	MaxMessageSize    = 65536

	// ResponseHeaderSize covers the length prefix and the status.
	ResponseHeaderSize = LenSize + 2
)

var (
	ErrFrameTooLarge = errors.New("frame exceeds maximum message size")
	ErrMalformed     = errors.New("malformed frame")
	ErrShortFrame    = errors.New("incomplete frame")
)

var order = binary.LittleEndian

// FrameLen reads a length prefix.
func FrameLen(b []byte) int {
	return int(order.Uint16(b))
}

// AppendRequest appends a request frame carrying args to dst. The first arg is the command name.
func AppendRequest(dst []byte, args ...[]byte) ([]byte, error) {
	body := LenSize
	for _, arg := range args {
		if len(arg) > math.MaxUint16 {
			return dst, fmt.Errorf("argument of %d bytes: %w", len(arg), ErrFrameTooLarge)
		}
		body += LenSize + len(arg)
	}
	if body > math.MaxUint16 || LenSize+body > MaxMessageSize {
		return dst, fmt.Errorf("request body of %d bytes: %w", body, ErrFrameTooLarge)
	}
	if len(args) > math.MaxUint16 {
		return dst, fmt.Errorf("%d arguments: %w", len(args), ErrFrameTooLarge)
	}

	dst = order.AppendUint16(dst, uint16(body))
	dst = order.AppendUint16(dst, uint16(len(args)))
	for _, arg := range args {
		dst = order.AppendUint16(dst, uint16(len(arg)))
		dst = append(dst, arg...)
	}
	return dst, nil
}

// ParseRequest splits a request body (the frame without its length prefix) into its sub-fields.
// The returned slices alias body.
func ParseRequest(body []byte) ([][]byte, error) {
	if len(body) < LenSize {
		return nil, fmt.Errorf("missing field count: %w", ErrMalformed)
	}
	n := int(order.Uint16(body))
	off := LenSize
	args := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		if off+LenSize > len(body) {
			return nil, fmt.Errorf("field %d: length past end of frame: %w", i, ErrMalformed)
		}
		l := int(order.Uint16(body[off:]))
		off += LenSize
		if off+l > len(body) {
			return nil, fmt.Errorf("field %d: %d bytes past end of frame: %w", i, off+l-len(body), ErrMalformed)
		}
		args = append(args, body[off:off+l])
		off += l
	}
	if off != len(body) {
		return nil, fmt.Errorf("%d trailing bytes: %w", len(body)-off, ErrMalformed)
	}
	return args, nil
}

// ResponseSize is the encoded size of a response with a payload of n bytes.
func ResponseSize(n int) int {
	return ResponseHeaderSize + n
}

func AppendResponse(dst []byte, status Status, payload []byte) ([]byte, error) {
	if ResponseSize(len(payload)) > MaxMessageSize || 2+len(payload) > math.MaxUint16 {
		return dst, fmt.Errorf("response payload of %d bytes: %w", len(payload), ErrFrameTooLarge)
	}
	dst = order.AppendUint16(dst, uint16(2+len(payload)))
	dst = order.AppendUint16(dst, uint16(status))
	return append(dst, payload...), nil
}

// ParseResponse decodes the response frame at the start of b and reports how many bytes it used.
// ErrShortFrame means more bytes are needed.
func ParseResponse(b []byte) (status Status, payload []byte, n int, err error) {
	if len(b) < ResponseHeaderSize {
		return 0, nil, 0, ErrShortFrame
	}
	l := FrameLen(b)
	if l < 2 {
		return 0, nil, 0, fmt.Errorf("response length %d: %w", l, ErrMalformed)
	}
	n = LenSize + l
	if len(b) < n {
		return 0, nil, 0, ErrShortFrame
	}
	status = Status(int16(order.Uint16(b[LenSize:])))
	if n > ResponseHeaderSize {
		payload = b[ResponseHeaderSize:n]
	}
	return status, payload, n, nil
}
