// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package reactortest

import (
	"sync"
	"time"

	"github.com/intuitivelabs/reactor"
)

// FakeDemux is an in-memory reactor.Demultiplexer: Register/Modify/Remove
// calls are just recorded and tracked in a map, and tests drive readiness
// explicitly via Ready() instead of touching real kernel handles.
//
// It is safe for the test goroutine to call Ready()/Calls() concurrently
// with the reactor's own (single) loop-thread calls into Demultiplex,
// which is the one piece of cross-thread interaction a test needs to
// simulate a loop blocked in the demultiplexer while another goroutine
// marks handles ready.
type FakeDemux struct {
	mu sync.Mutex

	registered map[reactor.Handle]reactor.EventMask
	ready      map[reactor.Handle]reactor.EventMask

	registerCalls int
	modifyCalls   int
	removeCalls   int
}

// NewFakeDemux returns an empty FakeDemux.
func NewFakeDemux() *FakeDemux {
	return &FakeDemux{
		registered: make(map[reactor.Handle]reactor.EventMask),
		ready:      make(map[reactor.Handle]reactor.EventMask),
	}
}

func (d *FakeDemux) RegisterHandle(h reactor.Handle, mask reactor.EventMask) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.registerCalls++
	d.registered[h] = mask
	return nil
}

func (d *FakeDemux) ModifyEvents(h reactor.Handle, mask reactor.EventMask) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.modifyCalls++
	d.registered[h] = mask
	return nil
}

func (d *FakeDemux) RemoveHandle(h reactor.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeCalls++
	delete(d.registered, h)
	return nil
}

// Demultiplex reports every handle marked Ready() since the last call,
// then clears the ready set. If nothing is ready it sleeps for the full
// timeout (the Reactor itself caps that at its poll ceiling) and returns
// with no events, matching a real poll's blocking contract.
func (d *FakeDemux) Demultiplex(registry reactor.RegistryView, out *[]*reactor.RegHandler, timeout time.Duration) error {
	d.mu.Lock()
	ready := d.ready
	d.ready = make(map[reactor.Handle]reactor.EventMask)
	d.mu.Unlock()

	if len(ready) == 0 {
		if timeout > 0 {
			time.Sleep(timeout)
		}
		return nil
	}
	d.mu.Lock()
	registered := d.registered
	d.mu.Unlock()

	for h, mask := range ready {
		// A real demux only ever reports bits that are currently part of
		// the registered interest mask (e.g. a suspended handle was told
		// ModifyEvents(None) and will not be polled for again until
		// resumed); mirror that so Ready() calls made before a Suspend
		// can't leak through.
		mask &= registered[h]
		if mask == reactor.None {
			continue
		}
		rh, ok := registry.Lookup(h)
		if !ok {
			continue
		}
		if wasEmpty := rh.MergeRevents(mask); wasEmpty {
			*out = append(*out, rh)
		}
	}
	return nil
}

// Ready marks h as reporting mask on the next Demultiplex call.
func (d *FakeDemux) Ready(h reactor.Handle, mask reactor.EventMask) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ready[h] |= mask
}

// RegisteredMask returns the mask h was last registered/modified with,
// and whether it is currently registered at all.
func (d *FakeDemux) RegisteredMask(h reactor.Handle) (reactor.EventMask, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.registered[h]
	return m, ok
}

// Calls returns the number of times RegisterHandle/ModifyEvents/
// RemoveHandle have each been called.
func (d *FakeDemux) Calls() (register, modify, remove int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.registerCalls, d.modifyCalls, d.removeCalls
}
