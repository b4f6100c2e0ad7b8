// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package demux

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/intuitivelabs/reactor"
)

// Poll is a portable poll(2)-backed reactor.Demultiplexer reference
// implementation. It scans every registered handle on each Demultiplex
// call, so it is O(n) in the number of registered handles rather than
// O(ready); Epoll should be preferred on Linux for anything beyond a
// handful of handles.
type Poll struct {
	// masks tracks the interest mask per handle so pollfds can be
	// rebuilt on every Demultiplex call without the caller re-supplying
	// it.
	masks map[reactor.Handle]reactor.EventMask
}

var _ reactor.Demultiplexer = (*Poll)(nil)

// NewPoll returns an empty, ready to use Poll.
func NewPoll() *Poll {
	return &Poll{masks: make(map[reactor.Handle]reactor.EventMask)}
}

func toPollMask(mask reactor.EventMask) int16 {
	var m int16
	if mask&reactor.Read != 0 {
		m |= unix.POLLIN
	}
	if mask&reactor.Write != 0 {
		m |= unix.POLLOUT
	}
	return m
}

func fromPollMask(m int16) reactor.EventMask {
	var ev reactor.EventMask
	if m&(unix.POLLIN|unix.POLLHUP) != 0 {
		ev |= reactor.Read
	}
	if m&unix.POLLOUT != 0 {
		ev |= reactor.Write
	}
	if m&(unix.POLLERR|unix.POLLNVAL|unix.POLLHUP) != 0 {
		ev |= reactor.Error
	}
	return ev
}

// RegisterHandle starts tracking h with interest in mask.
func (p *Poll) RegisterHandle(h reactor.Handle, mask reactor.EventMask) error {
	p.masks[h] = mask
	return nil
}

// ModifyEvents changes the interest mask for an already-registered h.
func (p *Poll) ModifyEvents(h reactor.Handle, mask reactor.EventMask) error {
	p.masks[h] = mask
	return nil
}

// RemoveHandle stops tracking h.
func (p *Poll) RemoveHandle(h reactor.Handle) error {
	delete(p.masks, h)
	return nil
}

// Demultiplex builds a pollfd array from every tracked handle, blocks up
// to timeout in poll(2), and ORs observed readiness into each ready
// handle's registry entry.
func (p *Poll) Demultiplex(registry reactor.RegistryView, out *[]*reactor.RegHandler, timeout time.Duration) error {
	if len(p.masks) == 0 {
		if timeout > 0 {
			time.Sleep(timeout)
		}
		return nil
	}
	fds := make([]unix.PollFd, 0, len(p.masks))
	for h, mask := range p.masks {
		fds = append(fds, unix.PollFd{Fd: int32(h), Events: toPollMask(mask)})
	}
	n, err := unix.Poll(fds, int(timeout/time.Millisecond))
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}
	if n == 0 {
		return nil
	}
	for _, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		h := reactor.Handle(pfd.Fd)
		rh, ok := registry.Lookup(h)
		if !ok {
			continue
		}
		addIfFirst(rh, fromPollMask(pfd.Revents), out)
	}
	return nil
}
