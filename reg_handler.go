// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package reactor

// RegHandler is the reactor's per-handler registry entry. The registry
// owns entries by pointer (so a *RegHandler can be stashed inside a
// Timer without the TimerQueue needing to know about EventHandler at
// all), keyed by the handler's Handle (or, for NoIO handlers, a
// synthetic negative key assigned at registration time).
//
// All mutation of a RegHandler happens on the loop thread; there is no
// internal locking.
type RegHandler struct {
	handler EventHandler
	events  EventMask
	state   HandlerState

	// revents is the mask of events pending dispatch on this entry for
	// the current iteration.
	revents EventMask

	// timeoutList holds the TimerIds that fired on this entry during
	// the current iteration, in firing (deadline) order.
	timeoutList []TimerId

	// timers is the set of TimerIds currently owned by this entry.
	timers map[TimerId]struct{}

	// key is the registry key this entry was filed under (its Handle,
	// or a synthetic key for NoIO handlers without a real handle).
	key Handle

	// registeredWithDemux records whether demux.RegisterHandle was
	// called for this entry (NoIO entries never are).
	registeredWithDemux bool
}

func newRegHandler(key Handle, h EventHandler, mask EventMask) *RegHandler {
	return &RegHandler{
		handler: h,
		events:  mask,
		state:   Normal,
		key:     key,
		timers:  make(map[TimerId]struct{}),
	}
}

// Handler returns the owning EventHandler.
func (rh *RegHandler) Handler() EventHandler { return rh.handler }

// Events returns the currently registered mask.
func (rh *RegHandler) Events() EventMask { return rh.events }

// State returns the current lifecycle state.
func (rh *RegHandler) State() HandlerState { return rh.state }

// addTimer records that id is now owned by this entry.
func (rh *RegHandler) addTimer(id TimerId) {
	rh.timers[id] = struct{}{}
}

// removeTimer forgets id; no-op if not present.
func (rh *RegHandler) removeTimer(id TimerId) {
	delete(rh.timers, id)
}

// markTimeout appends id to the firing list for this iteration and ORs
// in the Timer bit. Returns true the first time in an iteration that
// this entry transitions from "nothing pending" to "has something
// pending" purely due to Timer — the caller uses that to decide whether
// to append the entry to the dispatch list exactly once.
func (rh *RegHandler) markTimeout(id TimerId) bool {
	wasEmpty := rh.revents == None
	rh.timeoutList = append(rh.timeoutList, id)
	rh.revents |= Timer
	return wasEmpty
}

// takeTimeoutList snapshots and clears the per-iteration timeout list.
func (rh *RegHandler) takeTimeoutList() []TimerId {
	l := rh.timeoutList
	rh.timeoutList = nil
	return l
}

// takeREvents snapshots and clears the per-iteration revents.
func (rh *RegHandler) takeREvents() EventMask {
	ev := rh.revents
	rh.revents = None
	return ev
}

// MergeRevents ORs mask into the entry's pending revents for the current
// iteration and reports whether the entry had nothing pending before
// this call — the signal a Demultiplexer implementation uses to decide
// whether to append the entry to its out list (at most once per call).
func (rh *RegHandler) MergeRevents(mask EventMask) (wasEmpty bool) {
	wasEmpty = rh.revents == None
	rh.revents |= mask
	return wasEmpty
}
