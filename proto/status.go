package proto

import (
	"errors"
	"fmt"
)

// Status is the int16 carried in every response frame.
type Status int16

const (
	StatusOK Status = iota
	StatusUnknown
	StatusErrServer
	StatusErrClient
	StatusBadCmd
	StatusBadType
	StatusBadKey
	StatusBadArgs
	StatusBadOp
	StatusBadIx
	StatusBadHash
)

var statusNames = [...]string{
	StatusOK:        "OK",
	StatusUnknown:   "UNKNOWN",
	StatusErrServer: "ERR_SERVER",
	StatusErrClient: "ERR_CLIENT",
	StatusBadCmd:    "BAD_CMD",
	StatusBadType:   "BAD_TYPE",
	StatusBadKey:    "BAD_KEY",
	StatusBadArgs:   "BAD_ARGS",
	StatusBadOp:     "BAD_OP",
	StatusBadIx:     "BAD_IX",
	StatusBadHash:   "BAD_HASH",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("STATUS(%d)", int16(s))
}

// StatusOf maps a codec error to the status a response should carry.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrNotHashable):
		return StatusBadHash
	case errors.Is(err, ErrBadType), errors.Is(err, ErrEmbeddedCollection):
		return StatusBadType
	case errors.Is(err, ErrMalformed), errors.Is(err, ErrShortFrame):
		return StatusErrClient
	default:
		return StatusUnknown
	}
}
