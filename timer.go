// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package reactor

import (
	"time"

	"github.com/intuitivelabs/timestamp"
)

// Timer is a single pending timer. Ordering key is (deadline, id) so
// that ties between timers registered in the same tick break
// deterministically in allocation order.
type Timer struct {
	id       TimerId
	deadline timestamp.TS
	delay    time.Duration // original delay, used by Reset()
	entry    *RegHandler   // owning registry entry

	// heapIdx is the timer's current position in the TimerQueue's heap,
	// maintained by container/heap so Remove()/Reset() can locate and
	// fix up the timer in O(log n) without a linear scan.
	heapIdx int
}

// Id returns the timer's id.
func (t *Timer) Id() TimerId { return t.id }

// Deadline returns the timer's absolute expiry timestamp.
func (t *Timer) Deadline() timestamp.TS { return t.deadline }

// pending reports whether the timer is currently sitting in the
// TimerQueue's heap (as opposed to having expired and awaiting a
// cancel/reschedule decision from dispatch).
func (t *Timer) pending() bool { return t.heapIdx >= 0 }

// before reports whether t sorts strictly before o under the
// (deadline, id) ordering key.
func (t *Timer) before(o *Timer) bool {
	if t.deadline.Before(o.deadline) {
		return true
	}
	if o.deadline.Before(t.deadline) {
		return false
	}
	return t.id < o.id
}
