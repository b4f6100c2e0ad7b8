// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package reactor

import (
	"sync"
	"time"
)

// DeferredReactor is a Reactor whose public mutators can be called from
// any thread while the loop thread is blocked in the Demultiplexer. It
// is composition over subclassing: a Reactor wrapped with an added
// command queue, rather than an inheritance hierarchy.
//
// Every mutator appends a Command under mqlock and returns immediately.
// At the start of each loop iteration the queue is swapped into a local
// buffer under the lock, the lock is released, and the buffered commands
// are applied by calling straight through to the embedded Reactor's real
// mutators — no callback or Demultiplexer call ever happens while
// mqlock is held.
//
// The drain loop iterates the *swapped-out* buffer rather than the
// emptied queue slot, every mutator returns an explicit value on every
// path, and ResetTimer is a first-class, honored command.
type DeferredReactor struct {
	*Reactor

	mq     []Command
	mqlock sync.Mutex
}

// NewDeferredReactor returns a DeferredReactor driving demux.
func NewDeferredReactor(demux Demultiplexer) *DeferredReactor {
	return &DeferredReactor{Reactor: NewReactor(demux)}
}

func (r *DeferredReactor) push(c Command) {
	r.mqlock.Lock()
	r.mq = append(r.mq, c)
	r.mqlock.Unlock()
}

// RegisterHandler enqueues a REGISTER_HANDLER command and returns
// immediately; the registry is not updated until the next drain.
func (r *DeferredReactor) RegisterHandler(p EventHandler, mask EventMask, creator EventHandlerCreator) error {
	if p == nil {
		return ErrInvalidArgument
	}
	r.push(Command{kind: cmdRegisterHandler, handler: p, mask: mask, creator: creator})
	return nil
}

// RemoveHandler enqueues a REMOVE_HANDLER command.
func (r *DeferredReactor) RemoveHandler(p EventHandler, mask EventMask) error {
	if p == nil {
		return ErrInvalidArgument
	}
	r.push(Command{kind: cmdRemoveHandler, handler: p, mask: mask})
	return nil
}

// RegisterTimer pre-allocates the id via the process-wide atomic counter
// (so the caller gets a usable id synchronously) and enqueues a
// REGISTER_TIMER command carrying that id.
func (r *DeferredReactor) RegisterTimer(p EventHandler, delay time.Duration) (TimerId, error) {
	if p == nil {
		return InvalidTimer, ErrInvalidArgument
	}
	if delay <= 0 {
		return InvalidTimer, ErrInvalidArgument
	}
	id := AllocTimerId()
	r.push(Command{kind: cmdRegisterTimer, handler: p, timerId: id, delay: delay})
	return id, nil
}

// RemoveTimer enqueues a REMOVE_TIMER command.
func (r *DeferredReactor) RemoveTimer(id TimerId) error {
	if id == InvalidTimer {
		return ErrInvalidArgument
	}
	r.push(Command{kind: cmdRemoveTimer, timerId: id})
	return nil
}

// ResetTimer enqueues a RESET_TIMER command.
func (r *DeferredReactor) ResetTimer(id TimerId) error {
	if id == InvalidTimer {
		return ErrInvalidArgument
	}
	r.push(Command{kind: cmdResetTimer, timerId: id})
	return nil
}

// Run drains the command queue at the start of every iteration, then
// runs the same poll/expire/dispatch loop as the base Reactor.
func (r *DeferredReactor) Run() error {
	return r.Reactor.run(r.drain)
}

// drain swaps the command queue into a local buffer under the lock,
// releases it, then applies each command in order by calling straight
// through to the embedded Reactor's real mutators.
func (r *DeferredReactor) drain() {
	var batch []Command
	r.mqlock.Lock()
	if len(r.mq) > 0 {
		batch = r.mq
		r.mq = nil
	}
	r.mqlock.Unlock()

	for _, cmd := range batch {
		r.apply(cmd)
	}
}

func (r *DeferredReactor) apply(cmd Command) {
	switch cmd.kind {
	case cmdRegisterHandler:
		if err := r.Reactor.RegisterHandler(cmd.handler, cmd.mask, cmd.creator); err != nil {
			ERR("drain: RegisterHandler failed: %v", err)
		}
	case cmdRemoveHandler:
		if err := r.Reactor.RemoveHandler(cmd.handler, cmd.mask); err != nil {
			ERR("drain: RemoveHandler failed: %v", err)
		}
	case cmdRegisterTimer:
		if _, err := r.Reactor.RegisterTimerWithID(cmd.handler, cmd.timerId, cmd.delay); err != nil {
			ERR("drain: RegisterTimer failed: %v", err)
		}
	case cmdRemoveTimer:
		if err := r.Reactor.RemoveTimer(cmd.timerId); err != nil {
			ERR("drain: RemoveTimer failed: %v", err)
		}
	case cmdResetTimer:
		if err := r.Reactor.ResetTimer(cmd.timerId); err != nil {
			ERR("drain: ResetTimer failed: %v", err)
		}
	default:
		BUG("drain: unknown command kind %d", cmd.kind)
	}
}
