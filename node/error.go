package node

import "errors"

var (
	ErrSignalStopped = errors.New("signal stopped")
	ErrServerStarted = errors.New("server already started")
	ErrServerClosed  = errors.New("server closed")
)
