// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package reactor

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property 1: registry bijection. For every Handle currently registered,
// the entry filed under it was registered with exactly that key.
func TestPropertyRegistryBijection(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("every byHandle entry is keyed by its own rh.key", prop.ForAll(
		func(handles []int) bool {
			r := NewReactor(newStubDemux())
			seen := make(map[Handle]bool)
			for _, raw := range handles {
				h := Handle(raw%1000 + 2000) // keep well clear of InvalidHandle/synthetic range
				if seen[h] {
					continue
				}
				seen[h] = true
				sh := newStubHandler(h)
				if err := r.RegisterHandler(sh, Read, nil); err != nil {
					return false
				}
			}
			for key, rh := range r.byHandle {
				if rh.key != key {
					return false
				}
				if rh.events&NoIO == 0 && rh.handler.Handle() != key {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(20, gen.IntRange(0, 10000)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Property 2: timer/entry bijection. Every id an entry claims to own is
// tracked by the TimerQueue against that same entry, and vice versa.
func TestPropertyTimerEntryBijection(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("entry.timers and TimerQueue.byId agree", prop.ForAll(
		func(n int) bool {
			tq := NewTimerQueue()
			entry := newRegHandler(1, nil, None)
			ids := make([]TimerId, 0, n)
			for i := 0; i < n; i++ {
				id, err := tq.Register(entry, time.Hour)
				if err != nil {
					return false
				}
				ids = append(ids, id)
			}
			for id := range entry.timers {
				timer, ok := tq.byId[id]
				if !ok || timer.entry != entry {
					return false
				}
			}
			for _, t := range tq.byId {
				if _, ok := t.entry.timers[t.id]; !ok {
					return false
				}
			}
			// remove half, recheck the invariant still holds
			for i := 0; i < len(ids)/2; i++ {
				tq.Remove(ids[i])
			}
			for id := range entry.timers {
				if _, ok := tq.byId[id]; !ok {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 30),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Property 3: at-most-once dispatch. Repeated TriggerHandler calls in the
// same iteration never produce duplicate dispatch-list entries.
func TestPropertyAtMostOnceDispatch(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("an entry appears at most once in evList per iteration", prop.ForAll(
		func(triggers []uint8) bool {
			r := NewReactor(newStubDemux())
			h := newStubHandler(InvalidHandle)
			if err := r.RegisterHandler(h, NoIO, nil); err != nil {
				return false
			}
			for _, bits := range triggers {
				mask := EventMask(bits) & All
				if mask == None {
					mask = Read
				}
				if err := r.TriggerHandler(h, mask); err != nil {
					return false
				}
			}
			count := 0
			for _, rh := range r.evList {
				if rh.handler == h {
					count++
				}
			}
			return count <= 1
		},
		gen.SliceOfN(15, gen.UInt8Range(0, 255)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Property 4: monotonic ids. TimerIds handed out by the process-wide
// allocator are strictly increasing, regardless of how many TimerQueues
// are drawing from it.
func TestPropertyMonotonicTimerIds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("AllocTimerId is strictly increasing", prop.ForAll(
		func(n int) bool {
			var prev TimerId
			for i := 0; i < n; i++ {
				id := AllocTimerId()
				if id <= prev {
					return false
				}
				prev = id
			}
			return true
		},
		gen.IntRange(1, 200),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Property 5: loop liveness. With no registered I/O and no pending
// timers, pollAndDispatch never asks the demultiplexer to block past
// pollCeiling, so Run always wakes up to drain the command queue.
func TestPropertyLoopLiveness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("pollAndDispatch caps the poll timeout at pollCeiling when idle", prop.ForAll(
		func(ceilingMs int) bool {
			d := newStubDemux()
			r := NewReactor(d)
			r.pollCeiling = time.Duration(ceilingMs) * time.Millisecond
			if err := r.pollAndDispatch(); err != nil {
				return false
			}
			return d.lastTimeout == r.pollCeiling
		},
		gen.IntRange(1, 5000),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Property 6: command idempotence. Draining a DeferredReactor's command
// queue a second time (now empty) is a no-op: the registry is unchanged.
func TestPropertyCommandQueueDrainIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("second drain of an empty queue changes nothing", prop.ForAll(
		func(n int) bool {
			r := NewDeferredReactor(newStubDemux())
			for i := 0; i < n; i++ {
				h := newStubHandler(Handle(5000 + i))
				if err := r.RegisterHandler(h, Read, nil); err != nil {
					return false
				}
			}
			r.drain()
			before := len(r.Reactor.byHandler)
			r.drain() // second, empty drain
			after := len(r.Reactor.byHandler)
			return before == after && len(r.mq) == 0
		},
		gen.IntRange(0, 25),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
