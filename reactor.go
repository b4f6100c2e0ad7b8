// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package reactor

import (
	"time"
)

// Reactor owns the handler registry, drives the main loop, and
// orchestrates the TimerQueue and Demultiplexer. All of its methods
// (other than the thread-safe subset documented on DeferredReactor) are
// intended to be called from the loop thread only.
type Reactor struct {
	demux  Demultiplexer
	timerQ *TimerQueue

	// byHandler is the canonical registry, keyed by handler identity so
	// that a NoIO handler without a real Handle can still be found again
	// on a subsequent RegisterHandler call.
	byHandler map[EventHandler]*RegHandler
	// byHandle indexes entries that do carry a real (or synthetic)
	// Handle key, for Demultiplexer lookups and handle-collision
	// detection.
	byHandle map[Handle]*RegHandler

	// evList is the pending dispatch list for the current/next
	// iteration.
	evList []*RegHandler

	running      bool
	pollCeiling  time.Duration
	syntheticSeq Handle // next synthetic key to hand out, counts down from -2
}

// NewReactor returns a Reactor driving demux, with POLL_CEILING defaulted
// to DefaultReactInterval. The reactor starts in the running state, as
// the original source's constructor does when given a non-nil impl.
func NewReactor(demux Demultiplexer) *Reactor {
	return &Reactor{
		demux:        demux,
		timerQ:       NewTimerQueue(),
		byHandler:    make(map[EventHandler]*RegHandler),
		byHandle:     make(map[Handle]*RegHandler),
		running:      demux != nil,
		pollCeiling:  DefaultReactInterval,
		syntheticSeq: InvalidHandle - 1,
	}
}

// Lookup implements RegistryView for the Demultiplexer.
func (r *Reactor) Lookup(h Handle) (*RegHandler, bool) {
	rh, ok := r.byHandle[h]
	return rh, ok
}

// Running reports whether the loop is (supposed to be) running.
func (r *Reactor) Running() bool { return r.running }

func (r *Reactor) allocSyntheticKey() Handle {
	k := r.syntheticSeq
	r.syntheticSeq--
	return k
}

// RegisterHandler registers p for the events in mask. If p is already
// registered, the new bits in mask are merged into its existing
// registration (propagated to the demultiplexer if the entry is
// Normal); a NoIO entry cannot later gain I/O bits.
func (r *Reactor) RegisterHandler(p EventHandler, mask EventMask, creator EventHandlerCreator) error {
	if p == nil {
		return ErrInvalidArgument
	}
	if !r.running {
		return ErrBadState
	}
	if rh, ok := r.byHandler[p]; ok {
		return r.mergeHandlerEvents(rh, mask)
	}
	return r.registerNewHandler(p, mask, creator)
}

func (r *Reactor) mergeHandlerEvents(rh *RegHandler, mask EventMask) error {
	newBits := mask &^ rh.events
	if newBits == 0 {
		return nil
	}
	if rh.events&NoIO != 0 && mask&^NoIO != 0 {
		return ErrBadState
	}
	rh.events |= mask
	if rh.state == Normal && rh.registeredWithDemux {
		if err := r.demux.ModifyEvents(rh.key, rh.events&^NoIO); err != nil {
			ERR("RegisterHandler: ModifyEvents(%d, %v) failed: %v", rh.key, rh.events, err)
			return ErrDemuxFailure
		}
	}
	return nil
}

func (r *Reactor) registerNewHandler(p EventHandler, mask EventMask, creator EventHandlerCreator) error {
	h := p.Handle()
	key := h
	wantsIO := mask&NoIO == 0

	if wantsIO {
		if h == InvalidHandle {
			return ErrInvalidArgument
		}
		if existing, ok := r.byHandle[h]; ok && existing.handler != p {
			return ErrDuplicateHandle
		}
		if err := r.demux.RegisterHandle(h, mask); err != nil {
			ERR("RegisterHandler: RegisterHandle(%d, %v) failed: %v", h, mask, err)
			return ErrDemuxFailure
		}
	} else if h == InvalidHandle {
		key = r.allocSyntheticKey()
	} else if existing, ok := r.byHandle[h]; ok && existing.handler != p {
		return ErrDuplicateHandle
	}

	rh := newRegHandler(key, p, mask)
	rh.registeredWithDemux = wantsIO
	r.byHandler[p] = rh
	r.byHandle[key] = rh

	p.SetDeleter(creator)
	p.AddRef()
	p.SetReactor(r)
	return nil
}

// RemoveHandler removes the bits in mask from p's registration. If mask
// covers every currently registered bit, or p's handle is InvalidHandle,
// the entry is removed entirely (including every timer it owns).
// Removing a handler that isn't registered is a no-op, matching the
// original source's "not found => success" convention.
func (r *Reactor) RemoveHandler(p EventHandler, mask EventMask) error {
	if p == nil {
		return ErrInvalidArgument
	}
	return r.removeHandlerAt(p.Handle(), p, mask)
}

// removeHandlerAt is RemoveHandler's implementation, keyed by an
// explicit Handle h rather than re-reading p.Handle() inside: h decides
// whether the entry is removed entirely (h == InvalidHandle) or only
// loses the bits in mask.
func (r *Reactor) removeHandlerAt(h Handle, p EventHandler, mask EventMask) error {
	if !r.running {
		return ErrBadState
	}
	rh, ok := r.byHandler[p]
	if !ok {
		return nil
	}
	reg := rh.events & mask
	if reg == rh.events || h == InvalidHandle {
		return r.removeHandlerEntirely(p, rh)
	}
	rh.events ^= reg
	if rh.state == Normal && rh.registeredWithDemux {
		if err := r.demux.ModifyEvents(rh.key, rh.events&^NoIO); err != nil {
			ERR("RemoveHandler: ModifyEvents(%d, %v) failed: %v", rh.key, rh.events, err)
			return ErrDemuxFailure
		}
	}
	return nil
}

func (r *Reactor) removeHandlerEntirely(p EventHandler, rh *RegHandler) error {
	if rh.registeredWithDemux {
		if err := r.demux.RemoveHandle(rh.key); err != nil {
			ERR("RemoveHandler: RemoveHandle(%d) failed: %v", rh.key, err)
		}
	}
	ids := make([]TimerId, 0, len(rh.timers))
	for id := range rh.timers {
		ids = append(ids, id)
	}
	for _, id := range ids {
		r.timerQ.Remove(id)
	}
	p.DelRef()
	p.SetReactor(nil)
	delete(r.byHandler, p)
	delete(r.byHandle, rh.key)
	return nil
}

// SuspendHandler stops I/O delivery to a Normal entry (moves it to
// Suspended) without dropping its timers.
func (r *Reactor) SuspendHandler(p EventHandler) error {
	if p == nil {
		return ErrInvalidArgument
	}
	if !r.running {
		return ErrBadState
	}
	rh, ok := r.byHandler[p]
	if !ok {
		return ErrNotFound
	}
	if rh.state != Normal {
		return nil
	}
	if rh.registeredWithDemux {
		if err := r.demux.ModifyEvents(rh.key, None); err != nil {
			return ErrDemuxFailure
		}
	}
	rh.state = Suspended
	return nil
}

// ResumeHandler restores I/O delivery on a Suspended entry.
func (r *Reactor) ResumeHandler(p EventHandler) error {
	if p == nil {
		return ErrInvalidArgument
	}
	if !r.running {
		return ErrBadState
	}
	rh, ok := r.byHandler[p]
	if !ok {
		return ErrNotFound
	}
	if rh.state != Suspended {
		return nil
	}
	if rh.registeredWithDemux {
		if err := r.demux.ModifyEvents(rh.key, rh.events&^NoIO); err != nil {
			return ErrDemuxFailure
		}
	}
	rh.state = Normal
	return nil
}

// TriggerHandler ORs mask&All into a Normal entry's revents and appends
// it to the dispatch list iff it wasn't already pending. It is
// loop-thread only; cross-thread wakeups go through DeferredReactor's
// command queue instead.
func (r *Reactor) TriggerHandler(p EventHandler, mask EventMask) error {
	if p == nil {
		return ErrInvalidArgument
	}
	if !r.running {
		return ErrBadState
	}
	rh, ok := r.byHandler[p]
	if !ok {
		return ErrNotFound
	}
	if rh.state != Normal {
		return ErrBadState
	}
	addToList := rh.revents == None
	rh.revents |= mask & All
	if rh.revents != None && addToList {
		r.evList = append(r.evList, rh)
	}
	return nil
}

// RegisterTimer allocates a fresh TimerId and registers it against p.
func (r *Reactor) RegisterTimer(p EventHandler, delay time.Duration) (TimerId, error) {
	return r.registerTimer(p, delay, InvalidTimer, false)
}

// RegisterTimerWithID is like RegisterTimer but uses a caller-supplied
// id (precondition: not currently in use).
func (r *Reactor) RegisterTimerWithID(p EventHandler, id TimerId, delay time.Duration) (TimerId, error) {
	return r.registerTimer(p, delay, id, true)
}

func (r *Reactor) registerTimer(p EventHandler, delay time.Duration, id TimerId, useID bool) (TimerId, error) {
	if p == nil {
		return InvalidTimer, ErrInvalidArgument
	}
	if !r.running {
		return InvalidTimer, ErrLoopNotRunning
	}
	rh, ok := r.byHandler[p]
	if !ok {
		return InvalidTimer, ErrNotFound
	}
	var tid TimerId
	var err error
	if useID {
		tid, err = r.timerQ.RegisterWithID(id, rh, delay)
	} else {
		tid, err = r.timerQ.Register(rh, delay)
	}
	if err != nil {
		return InvalidTimer, err
	}
	rh.events |= Timer
	p.SetTimer(tid)
	return tid, nil
}

// RemoveTimer delegates to the TimerQueue.
func (r *Reactor) RemoveTimer(id TimerId) error {
	if !r.running {
		return ErrLoopNotRunning
	}
	r.timerQ.Remove(id)
	return nil
}

// ResetTimer delegates to the TimerQueue.
func (r *Reactor) ResetTimer(id TimerId) error {
	if !r.running {
		return ErrLoopNotRunning
	}
	r.timerQ.Reset(id)
	return nil
}

// Stop clears the loop flag; Run exits after the current iteration.
func (r *Reactor) Stop() {
	r.running = false
}

// Run is the main loop: drain is a hook DeferredReactor uses to apply
// queued commands before each iteration's I/O poll; the base Reactor
// passes a no-op.
func (r *Reactor) Run() error {
	return r.run(func() {})
}

func (r *Reactor) run(drain func()) error {
	for r.running {
		drain()
		if err := r.pollAndDispatch(); err != nil {
			ERR("Run: iteration failed: %v", err)
		}
	}
	return nil
}

func (r *Reactor) pollAndDispatch() error {
	timeout := time.Duration(0)
	if len(r.evList) == 0 {
		timeout = r.timerQ.NextTimeout()
		if timeout > r.pollCeiling {
			timeout = r.pollCeiling
		}
	}
	if err := r.demux.Demultiplex(r, &r.evList, timeout); err != nil {
		ERR("Demultiplex failed: %v", err)
	}
	r.timerQ.Schedule(&r.evList)
	r.handleEvents()
	return nil
}

// processOne dispatches one registry entry: its expired timers and its
// pending I/O events, in that order, at most once per iteration. A
// non-zero HandleInput/HandleOutput return (or an Error event) moves the
// entry to Closed and calls HandleClose; the entry stays in the registry
// until RemoveHandler is called for it.
func (r *Reactor) processOne(rh *RegHandler) {
	ev := rh.takeREvents()
	timers := rh.takeTimeoutList()
	handler := rh.handler
	if ev == None || handler == nil {
		return
	}

	if ev&Timer != 0 {
		for _, id := range timers {
			if handler.HandleTimeout(id) != 0 {
				r.timerQ.Remove(id)
			} else {
				r.timerQ.Reset(id)
			}
		}
	}

	var closeMask EventMask
	if ev&Error != 0 {
		closeMask |= Error
	} else {
		if ev&Read != 0 {
			if handler.HandleInput(handler.Handle()) != 0 {
				closeMask |= Read
			}
		}
		if ev&Write != 0 {
			if handler.HandleOutput(handler.Handle()) != 0 {
				closeMask |= Write
			}
		}
	}

	if closeMask != None {
		h := handler.Handle()
		rh.state = Closed
		handler.HandleClose(h, closeMask)
	}
}

// handleEvents swaps the dispatch list out to a local list so that a
// re-entrant TriggerHandler call during dispatch targets a fresh list
// for the next iteration, then processes each entry.
func (r *Reactor) handleEvents() {
	if len(r.evList) == 0 {
		return
	}
	list := r.evList
	r.evList = nil
	for _, rh := range list {
		if rh != nil {
			r.processOne(rh)
		}
	}
}
