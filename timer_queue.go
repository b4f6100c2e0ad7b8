// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package reactor

import (
	"container/heap"
	"sync/atomic"
	"time"
)

// nextTimerId is the process-wide TimerId allocator. It outlives any
// single Reactor or TimerQueue instance, since ids allocated through a
// DeferredReactor's public API may outlive the reactor that allocated
// them (see DESIGN.md).
var nextTimerId uint64

// AllocTimerId atomically allocates a fresh, process-wide unique
// TimerId. Ids start at 1; 0 is reserved as InvalidTimer.
func AllocTimerId() TimerId {
	return TimerId(atomic.AddUint64(&nextTimerId, 1))
}

// timerHeap is a container/heap.Interface over *Timer, ordered by
// (deadline, id).
type timerHeap []*Timer

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].before(h[j]) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx = i
	h[j].heapIdx = j
}

func (h *timerHeap) Push(x interface{}) {
	t := x.(*Timer)
	t.heapIdx = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.heapIdx = -1
	*h = old[:n-1]
	return t
}

// TimerQueue maintains the set of pending timers ordered by deadline,
// offering O(log n) insertion/cancellation, next-deadline lookup, and
// batch expiration. It is loop-thread only: no internal locking.
type TimerQueue struct {
	byDeadline timerHeap
	byId       map[TimerId]*Timer
}

// NewTimerQueue returns an empty TimerQueue ready for use.
func NewTimerQueue() *TimerQueue {
	return &TimerQueue{
		byId: make(map[TimerId]*Timer),
	}
}

// Len returns the number of pending timers.
func (tq *TimerQueue) Len() int { return len(tq.byId) }

// AllocID allocates a fresh process-wide TimerId without registering a
// timer.
func (tq *TimerQueue) AllocID() TimerId {
	return AllocTimerId()
}

// Register allocates a fresh id and registers a timer that will fire
// after delay, delivering to entry. Returns ErrInvalidArgument if delay
// is not positive or entry is nil.
func (tq *TimerQueue) Register(entry *RegHandler, delay time.Duration) (TimerId, error) {
	if delay <= 0 || entry == nil {
		return InvalidTimer, ErrInvalidArgument
	}
	id := tq.AllocID()
	return tq.insert(id, entry, delay)
}

// RegisterWithID is like Register but uses a caller-supplied id.
// Precondition: id must not currently be present in the queue; violating
// this is an internal invariant error (the original id allocator
// contract guarantees ids are unique, so a caller hitting this found a
// bug elsewhere).
func (tq *TimerQueue) RegisterWithID(id TimerId, entry *RegHandler, delay time.Duration) (TimerId, error) {
	if delay <= 0 || entry == nil || id == InvalidTimer {
		return InvalidTimer, ErrInvalidArgument
	}
	if _, present := tq.byId[id]; present {
		BUG("RegisterWithID called with already-present id %d", id)
		return InvalidTimer, ErrAlreadyPresent
	}
	return tq.insert(id, entry, delay)
}

func (tq *TimerQueue) insert(id TimerId, entry *RegHandler, delay time.Duration) (TimerId, error) {
	t := &Timer{
		id:       id,
		deadline: now().Add(delay),
		delay:    delay,
		entry:    entry,
	}
	tq.byId[id] = t
	heap.Push(&tq.byDeadline, t)
	entry.addTimer(id)
	return id, nil
}

// Remove removes id if present; no-op otherwise. It handles both a
// still-pending timer (removed from the heap) and one that already
// expired but hasn't been resolved by dispatch yet (the cancel path):
// in the latter case it is only off the heap, not yet out of byId, and
// removing it here finishes the job.
func (tq *TimerQueue) Remove(id TimerId) {
	t, ok := tq.byId[id]
	if !ok {
		return
	}
	if t.pending() {
		heap.Remove(&tq.byDeadline, t.heapIdx)
	}
	delete(tq.byId, id)
	if t.entry != nil {
		t.entry.removeTimer(id)
	}
}

// Reset recomputes id's deadline from now using its original delay and
// reinserts it preserving ordering. No-op if id is not present. This
// also implements the reschedule path: an expired timer that
// HandleTimeout asked to keep is still present in byId (just off the
// heap) and gets pushed back on here with a fresh deadline.
func (tq *TimerQueue) Reset(id TimerId) {
	t, ok := tq.byId[id]
	if !ok {
		return
	}
	t.deadline = now().Add(t.delay)
	if t.pending() {
		heap.Fix(&tq.byDeadline, t.heapIdx)
	} else {
		heap.Push(&tq.byDeadline, t)
	}
}

// NextTimeout returns the duration until the earliest deadline, or
// time.Duration(math.MaxInt64) if the queue is empty.
func (tq *TimerQueue) NextTimeout() time.Duration {
	if len(tq.byDeadline) == 0 {
		return maxDuration
	}
	return msUntil(tq.byDeadline[0].deadline, now())
}

// Schedule moves all timers whose deadline has passed out of the heap
// (they remain in byId, keyed by id, until dispatch resolves them via
// Remove — cancel — or Reset — reschedule), appends their id
// to the owning entry's timeoutList, sets the Timer bit on revents, and
// appends the entry to out at most once, and returns the next timeout
// (or maxDuration if the heap is now empty).
//
// Schedule is idempotent for an entry within one call: an entry already
// appended to out (because one of its timers fired earlier in this same
// call) is never appended twice, even if several of its timers fire in
// the same batch.
func (tq *TimerQueue) Schedule(out *[]*RegHandler) time.Duration {
	t := now()
	for len(tq.byDeadline) > 0 {
		top := tq.byDeadline[0]
		if !expired(top.deadline, t) {
			return msUntil(top.deadline, t)
		}
		heap.Pop(&tq.byDeadline)
		entry := top.entry
		if entry == nil {
			continue
		}
		firstPending := entry.markTimeout(top.id)
		if firstPending {
			*out = append(*out, entry)
		}
	}
	return maxDuration
}
