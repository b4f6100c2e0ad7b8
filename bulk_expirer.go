// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package reactor

import (
	"time"

	"github.com/intuitivelabs/reactor/wheel"
)

// wakeDelay is the delay RegisterTimer is called with to turn a
// cross-thread wheel expiry into a loop-thread HandleTimeout callback as
// soon as the next command drain runs, rather than adding a dedicated
// cross-thread trigger command.
const wakeDelay = time.Nanosecond

// BulkExpirer pairs a wheel.WTimer with a DeferredReactor so a handler
// set that needs coarse, very-high-volume expiry tracking (idle-
// connection sweeps across tens of thousands of NOIO entries, say) can
// register with the wheel's O(1) bucket structure instead of burdening
// the main TimerQueue's O(log n) heap, while still having every firing
// delivered back through the normal HandleTimeout path on the loop
// thread.
//
// The wheel's own goroutines run the expiry callback below; it never
// touches the DeferredReactor's registry directly, only its thread-safe
// command queue.
type BulkExpirer struct {
	wt *wheel.WTimer
	dr *DeferredReactor
}

// NewBulkExpirer returns a BulkExpirer driving a wheel with the given
// tick resolution, started and ready to accept Add calls. tick should be
// chosen coarser than any single expiry this pool tracks is allowed to
// be: the wheel's whole purpose is trading precision for throughput.
func NewBulkExpirer(dr *DeferredReactor, tick time.Duration) (*BulkExpirer, error) {
	wt := &wheel.WTimer{}
	if err := wt.Init(tick); err != nil {
		return nil, err
	}
	wt.Start()
	return &BulkExpirer{wt: wt, dr: dr}, nil
}

// Add schedules p to receive a HandleTimeout callback after d, tracked by
// the wheel rather than the DeferredReactor's TimerQueue. p must already
// be registered with dr. Returns the wheel.TimerLnk handle needed to
// Remove the entry before it fires.
func (b *BulkExpirer) Add(p EventHandler, d time.Duration) *wheel.TimerLnk {
	tl := b.wt.NewTimer()
	if tl == nil {
		return nil
	}
	if err := b.wt.Add(tl, d, b.onExpire(p), nil); err != nil {
		ERR("BulkExpirer.Add failed: %v", err)
		return nil
	}
	return tl
}

func (b *BulkExpirer) onExpire(p EventHandler) wheel.TimerHandlerF {
	return func(wt *wheel.WTimer, h *wheel.TimerLnk, arg interface{}) (bool, time.Duration) {
		if _, err := b.dr.RegisterTimer(p, wakeDelay); err != nil {
			ERR("BulkExpirer: RegisterTimer wake failed: %v", err)
		}
		return false, 0
	}
}

// Remove cancels a pending bulk timer and returns true. If the timer
// already fired, nothing is cancelled and Remove returns false.
func (b *BulkExpirer) Remove(tl *wheel.TimerLnk) (bool, error) {
	return b.wt.Del(tl)
}

// Shutdown stops the wheel's background goroutines and waits for them to
// exit. It does not touch the paired DeferredReactor.
func (b *BulkExpirer) Shutdown() {
	b.wt.Shutdown()
}
