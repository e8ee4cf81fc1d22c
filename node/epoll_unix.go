//go:build linux

package node

import (
	"os"

	"golang.org/x/sys/unix"
)

// https://copyconstruct.medium.com/the-method-to-epolls-madness-d9d2d6378642

const (
	readEvents  = unix.EPOLLIN | unix.EPOLLPRI
	writeEvents = unix.EPOLLOUT

	// Connections are armed one-shot: a connection that fired stays silent until it is re-armed.
	oneShot = unix.EPOLLONESHOT
)

// epollSet is a thin wrapper over an epoll instance.
type epollSet struct {
	fd int
}

func newEpollSet() (*epollSet, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	return &epollSet{fd: fd}, nil
}

func (e *epollSet) add(fd int, events uint32) error {
	return os.NewSyscallError("epoll_ctl add",
		unix.EpollCtl(e.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: events}))
}

func (e *epollSet) mod(fd int, events uint32) error {
	return os.NewSyscallError("epoll_ctl mod",
		unix.EpollCtl(e.fd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Fd: int32(fd), Events: events}))
}

func (e *epollSet) del(fd int) error {
	return os.NewSyscallError("epoll_ctl del", unix.EpollCtl(e.fd, unix.EPOLL_CTL_DEL, fd, nil))
}

// armRead waits for the next readable event on fd.
func (e *epollSet) armRead(fd int) error {
	return e.mod(fd, readEvents|oneShot)
}

// armWrite waits for the next writable event on fd.
func (e *epollSet) armWrite(fd int) error {
	return e.mod(fd, writeEvents|oneShot)
}

func (e *epollSet) wait(events []unix.EpollEvent, msec int) (int, error) {
	n, err := unix.EpollWait(e.fd, events, msec)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, os.NewSyscallError("epoll_wait", err)
	}
	return n, nil
}

func (e *epollSet) close() error {
	return CloseFd(e.fd)
}
