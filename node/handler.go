package node

import (
	"fmt"

	"github.com/fzft/go-mock-kv/log"
	"github.com/fzft/go-mock-kv/proto"
	"go.uber.org/zap"
)

// Response is what a Dispatcher produces for one request frame.
type Response struct {
	Status  proto.Status
	Payload []byte
}

// Dispatcher executes one request. body is the frame without its length prefix and is only valid for
// the duration of the call. Failures are reported through Response.Status.
type Dispatcher interface {
	Dispatch(connID uint64, body []byte) Response
}

// DispatcherFunc adapts a function to a Dispatcher.
type DispatcherFunc func(connID uint64, body []byte) Response

func (f DispatcherFunc) Dispatch(connID uint64, body []byte) Response {
	return f(connID, body)
}

// safeDispatch turns a dispatcher panic into ERR_SERVER so one bad request cannot take down a worker.
func safeDispatch(d Dispatcher, connID uint64, body []byte) (res Response) {
	defer func() {
		if r := recover(); r != nil {
			log.Logger.Error("dispatch panic",
				zap.Uint64("conn", connID),
				zap.Error(fmt.Errorf("%v", r)),
				zap.Stack("stack"))
			res = Response{Status: proto.StatusErrServer}
		}
	}()
	return d.Dispatch(connID, body)
}
