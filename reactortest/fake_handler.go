// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Package reactortest provides an in-memory fake Demultiplexer and a
// scriptable fake EventHandler for exercising reactor.Reactor and
// reactor.DeferredReactor without real kernel I/O, following the
// teacher's own *_test.go convention of hand-rolled fakes rather than a
// mocking framework.
package reactortest

import (
	"sync"
	"sync/atomic"

	"github.com/intuitivelabs/reactor"
)

// FakeHandler is a scriptable reactor.EventHandler for tests. All the
// HandleXxx return values are configurable via exported fields so a test
// can drive every dispatch branch without a mocking framework, using
// small, explicit test helpers instead.
type FakeHandler struct {
	mu sync.Mutex

	h reactor.Handle

	InputRet   int
	OutputRet  int
	TimeoutRet int

	refs    int32
	reactor *reactor.Reactor
	deleter reactor.EventHandlerCreator

	Inputs   []reactor.Handle
	Outputs  []reactor.Handle
	Timeouts []reactor.TimerId
	Closes   []reactor.EventMask
}

// NewFakeHandler returns a FakeHandler that reports h from Handle().
func NewFakeHandler(h reactor.Handle) *FakeHandler {
	return &FakeHandler{h: h}
}

func (f *FakeHandler) Handle() reactor.Handle { return f.h }

func (f *FakeHandler) HandleInput(h reactor.Handle) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Inputs = append(f.Inputs, h)
	return f.InputRet
}

func (f *FakeHandler) HandleOutput(h reactor.Handle) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Outputs = append(f.Outputs, h)
	return f.OutputRet
}

func (f *FakeHandler) HandleTimeout(id reactor.TimerId) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Timeouts = append(f.Timeouts, id)
	return f.TimeoutRet
}

func (f *FakeHandler) HandleClose(h reactor.Handle, closeMask reactor.EventMask) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closes = append(f.Closes, closeMask)
}

func (f *FakeHandler) AddRef() int32 { return atomic.AddInt32(&f.refs, 1) }
func (f *FakeHandler) DelRef() int32 { return atomic.AddInt32(&f.refs, -1) }

func (f *FakeHandler) SetDeleter(creator reactor.EventHandlerCreator) { f.deleter = creator }
func (f *FakeHandler) SetReactor(r *reactor.Reactor)                  { f.reactor = r }

func (f *FakeHandler) SetTimer(id reactor.TimerId)    {}
func (f *FakeHandler) SetTimeout(id reactor.TimerId)  {}
func (f *FakeHandler) SetEvents(mask reactor.EventMask) {}
func (f *FakeHandler) REvents() reactor.EventMask     { return reactor.None }

// RefCount returns the current reference count (for bijection/round-trip
// assertions in tests).
func (f *FakeHandler) RefCount() int32 { return atomic.LoadInt32(&f.refs) }

// Reactor returns the back-reference installed by SetReactor, or nil.
func (f *FakeHandler) Reactor() *reactor.Reactor { return f.reactor }
