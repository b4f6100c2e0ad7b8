// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

//go:build linux

package demux

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/intuitivelabs/reactor"
)

// Epoll is a Linux epoll-backed reactor.Demultiplexer. It is not
// goroutine-safe; like every Demultiplexer, only the reactor's loop
// thread is supposed to call its methods.
type Epoll struct {
	epfd int
	buf  []unix.EpollEvent
}

var _ reactor.Demultiplexer = (*Epoll)(nil)

// NewEpoll creates and opens a new epoll instance, sized to report up to
// maxEvents ready handles per Demultiplex call (a sensible default of
// 128 is used if maxEvents <= 0).
func NewEpoll(maxEvents int) (*Epoll, error) {
	if maxEvents <= 0 {
		maxEvents = 128
	}
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Epoll{epfd: fd, buf: make([]unix.EpollEvent, maxEvents)}, nil
}

// Close releases the underlying epoll file descriptor.
func (e *Epoll) Close() error {
	return unix.Close(e.epfd)
}

func toEpollMask(mask reactor.EventMask) uint32 {
	var m uint32
	if mask&reactor.Read != 0 {
		m |= unix.EPOLLIN
	}
	if mask&reactor.Write != 0 {
		m |= unix.EPOLLOUT
	}
	// errors and hangups are always of interest: the reactor needs to
	// see them regardless of what the caller asked for, same as a raw
	// epoll_wait would report them unconditionally.
	m |= unix.EPOLLERR | unix.EPOLLHUP
	return m
}

func fromEpollMask(m uint32) reactor.EventMask {
	var ev reactor.EventMask
	if m&(unix.EPOLLIN|unix.EPOLLHUP) != 0 {
		ev |= reactor.Read
	}
	if m&unix.EPOLLOUT != 0 {
		ev |= reactor.Write
	}
	if m&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		ev |= reactor.Error
	}
	return ev
}

// RegisterHandle adds h to the epoll instance with interest in mask.
func (e *Epoll) RegisterHandle(h reactor.Handle, mask reactor.EventMask) error {
	ev := unix.EpollEvent{Events: toEpollMask(mask), Fd: int32(h)}
	return unix.EpollCtl(e.epfd, unix.EPOLL_CTL_ADD, int(h), &ev)
}

// ModifyEvents changes the interest mask for an already-registered h.
func (e *Epoll) ModifyEvents(h reactor.Handle, mask reactor.EventMask) error {
	ev := unix.EpollEvent{Events: toEpollMask(mask), Fd: int32(h)}
	return unix.EpollCtl(e.epfd, unix.EPOLL_CTL_MOD, int(h), &ev)
}

// RemoveHandle drops h from the epoll instance.
func (e *Epoll) RemoveHandle(h reactor.Handle) error {
	return unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, int(h), nil)
}

// Demultiplex blocks up to timeout waiting for readiness, then ORs
// observed readiness into each ready handle's registry entry and
// appends it to out at most once.
func (e *Epoll) Demultiplex(registry reactor.RegistryView, out *[]*reactor.RegHandler, timeout time.Duration) error {
	n, err := unix.EpollWait(e.epfd, e.buf, int(timeout/time.Millisecond))
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}
	for i := 0; i < n; i++ {
		h := reactor.Handle(e.buf[i].Fd)
		rh, ok := registry.Lookup(h)
		if !ok {
			continue
		}
		addIfFirst(rh, fromEpollMask(e.buf[i].Events), out)
	}
	return nil
}
