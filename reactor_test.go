// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package reactor

import (
	"sync"
	"testing"
	"time"
)

func TestRegisterHandlerRejectsNilHandler(t *testing.T) {
	r := NewReactor(newStubDemux())
	if err := r.RegisterHandler(nil, Read, nil); err != ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestRegisterHandlerRejectsWhenNotRunning(t *testing.T) {
	r := NewReactor(newStubDemux())
	r.Stop()
	h := newStubHandler(3)
	if err := r.RegisterHandler(h, Read, nil); err != ErrBadState {
		t.Fatalf("expected ErrBadState, got %v", err)
	}
}

func TestRegisterHandlerDuplicateHandle(t *testing.T) {
	r := NewReactor(newStubDemux())
	h1 := newStubHandler(5)
	h2 := newStubHandler(5)
	if err := r.RegisterHandler(h1, Read, nil); err != nil {
		t.Fatalf("first RegisterHandler failed: %v", err)
	}
	if err := r.RegisterHandler(h2, Read, nil); err != ErrDuplicateHandle {
		t.Fatalf("expected ErrDuplicateHandle, got %v", err)
	}
}

func TestRegisterHandlerMergesEvents(t *testing.T) {
	d := newStubDemux()
	r := NewReactor(d)
	h := newStubHandler(5)
	if err := r.RegisterHandler(h, Read, nil); err != nil {
		t.Fatalf("RegisterHandler failed: %v", err)
	}
	if err := r.RegisterHandler(h, Write, nil); err != nil {
		t.Fatalf("merge RegisterHandler failed: %v", err)
	}
	rh := r.byHandler[h]
	if rh.events&(Read|Write) != Read|Write {
		t.Fatalf("expected merged Read|Write, got %v", rh.events)
	}
	if d.modifyCalls != 1 {
		t.Fatalf("expected exactly 1 ModifyEvents call, got %d", d.modifyCalls)
	}
}

func TestRegisterHandlerNoIORejectsInvalidHandleWithIO(t *testing.T) {
	r := NewReactor(newStubDemux())
	h := newStubHandler(InvalidHandle)
	if err := r.RegisterHandler(h, Read, nil); err != ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument for InvalidHandle+IO bits, got %v", err)
	}
}

func TestRegisterHandlerNoIOGetsSyntheticKey(t *testing.T) {
	r := NewReactor(newStubDemux())
	h1 := newStubHandler(InvalidHandle)
	h2 := newStubHandler(InvalidHandle)
	if err := r.RegisterHandler(h1, NoIO, nil); err != nil {
		t.Fatalf("RegisterHandler h1 failed: %v", err)
	}
	if err := r.RegisterHandler(h2, NoIO, nil); err != nil {
		t.Fatalf("RegisterHandler h2 failed: %v", err)
	}
	rh1 := r.byHandler[h1]
	rh2 := r.byHandler[h2]
	if rh1.key == rh2.key {
		t.Fatalf("expected distinct synthetic keys, got %d == %d", rh1.key, rh2.key)
	}
}

func TestRemoveHandlerNotFoundIsNoop(t *testing.T) {
	r := NewReactor(newStubDemux())
	h := newStubHandler(1)
	if err := r.RemoveHandler(h, Read); err != nil {
		t.Fatalf("expected nil for not-found RemoveHandler, got %v", err)
	}
}

func TestRemoveHandlerPartialKeepsEntry(t *testing.T) {
	d := newStubDemux()
	r := NewReactor(d)
	h := newStubHandler(7)
	r.RegisterHandler(h, Read|Write, nil)
	if err := r.RemoveHandler(h, Write); err != nil {
		t.Fatalf("RemoveHandler failed: %v", err)
	}
	rh, ok := r.byHandler[h]
	if !ok {
		t.Fatalf("expected entry to survive partial removal")
	}
	if rh.events&Write != 0 {
		t.Fatalf("expected Write bit cleared, got %v", rh.events)
	}
	if rh.events&Read == 0 {
		t.Fatalf("expected Read bit to survive, got %v", rh.events)
	}
}

func TestRemoveHandlerFullDropsEntryAndTimers(t *testing.T) {
	d := newStubDemux()
	r := NewReactor(d)
	h := newStubHandler(7)
	r.RegisterHandler(h, Read, nil)
	id, err := r.RegisterTimer(h, time.Hour)
	if err != nil {
		t.Fatalf("RegisterTimer failed: %v", err)
	}
	// RegisterTimer added Timer to the registered events, so the mask
	// has to cover Read|Timer for a full removal.
	if err := r.RemoveHandler(h, Read|Timer); err != nil {
		t.Fatalf("RemoveHandler failed: %v", err)
	}
	if _, ok := r.byHandler[h]; ok {
		t.Fatalf("expected entry removed entirely")
	}
	if _, ok := r.byHandle[7]; ok {
		t.Fatalf("expected byHandle entry dropped")
	}
	if r.timerQ.Len() != 0 {
		t.Fatalf("expected owned timer %d removed, Len=%d", id, r.timerQ.Len())
	}
	if d.removeCalls != 1 {
		t.Fatalf("expected exactly 1 RemoveHandle call, got %d", d.removeCalls)
	}
	if h.refs != 0 {
		t.Fatalf("expected AddRef/DelRef balanced, refs=%d", h.refs)
	}
}

func TestSuspendResumeHandler(t *testing.T) {
	d := newStubDemux()
	r := NewReactor(d)
	h := newStubHandler(9)
	r.RegisterHandler(h, Read, nil)

	if err := r.SuspendHandler(h); err != nil {
		t.Fatalf("SuspendHandler failed: %v", err)
	}
	rh := r.byHandler[h]
	if rh.state != Suspended {
		t.Fatalf("expected Suspended, got %v", rh.state)
	}
	// suspend again is a no-op, not an error
	if err := r.SuspendHandler(h); err != nil {
		t.Fatalf("second SuspendHandler should be a no-op, got %v", err)
	}

	if err := r.ResumeHandler(h); err != nil {
		t.Fatalf("ResumeHandler failed: %v", err)
	}
	if rh.state != Normal {
		t.Fatalf("expected Normal after resume, got %v", rh.state)
	}
}

func TestSuspendResumeNotFound(t *testing.T) {
	r := NewReactor(newStubDemux())
	h := newStubHandler(9)
	if err := r.SuspendHandler(h); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := r.ResumeHandler(h); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTriggerHandlerRequiresNormalState(t *testing.T) {
	r := NewReactor(newStubDemux())
	h := newStubHandler(11)
	r.RegisterHandler(h, Read, nil)
	r.SuspendHandler(h)
	if err := r.TriggerHandler(h, Read); err != ErrBadState {
		t.Fatalf("expected ErrBadState for suspended entry, got %v", err)
	}
}

func TestTriggerHandlerAppendsOnce(t *testing.T) {
	r := NewReactor(newStubDemux())
	h := newStubHandler(11)
	r.RegisterHandler(h, Read, nil)
	if err := r.TriggerHandler(h, Read); err != nil {
		t.Fatalf("TriggerHandler failed: %v", err)
	}
	if err := r.TriggerHandler(h, Write); err != nil {
		t.Fatalf("second TriggerHandler failed: %v", err)
	}
	if len(r.evList) != 1 {
		t.Fatalf("expected single dispatch-list entry for repeated triggers, got %d", len(r.evList))
	}
	rh := r.byHandler[h]
	if rh.revents&(Read|Write) != Read|Write {
		t.Fatalf("expected merged revents, got %v", rh.revents)
	}
}

func TestRegisterTimerSetsTimerBitAndNotifiesHandler(t *testing.T) {
	r := NewReactor(newStubDemux())
	h := newStubHandler(13)
	r.RegisterHandler(h, Read, nil)
	id, err := r.RegisterTimer(h, time.Minute)
	if err != nil {
		t.Fatalf("RegisterTimer failed: %v", err)
	}
	rh := r.byHandler[h]
	if rh.events&Timer == 0 {
		t.Fatalf("expected Timer bit set")
	}
	if h.lastTimerSet != id {
		t.Fatalf("expected SetTimer(%d) called, got %d", id, h.lastTimerSet)
	}
}

func TestRegisterTimerRejectsUnregisteredHandler(t *testing.T) {
	r := NewReactor(newStubDemux())
	h := newStubHandler(13)
	if _, err := r.RegisterTimer(h, time.Minute); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDispatchInputCloseOnNonZeroReturn(t *testing.T) {
	d := newStubDemux()
	r := NewReactor(d)
	h := newStubHandler(17)
	h.inputRet = 1
	r.RegisterHandler(h, Read, nil)
	d.ready[17] = Read

	if err := r.pollAndDispatch(); err != nil {
		t.Fatalf("pollAndDispatch failed: %v", err)
	}
	if len(h.inputCalls) != 1 {
		t.Fatalf("expected HandleInput called once, got %d", len(h.inputCalls))
	}
	if len(h.closeCalls) != 1 || h.closeCalls[0] != Read {
		t.Fatalf("expected HandleClose(Read) once, got %v", h.closeCalls)
	}
	if _, ok := r.byHandler[h]; !ok {
		t.Fatalf("handle-close does not itself deregister; entry should still be tracked")
	}
	rh := r.byHandler[h]
	if rh.state != Closed {
		t.Fatalf("expected Closed state after non-zero HandleInput, got %v", rh.state)
	}
}

func TestDispatchInputStaysOpenOnZeroReturn(t *testing.T) {
	d := newStubDemux()
	r := NewReactor(d)
	h := newStubHandler(19)
	r.RegisterHandler(h, Read, nil)
	d.ready[19] = Read

	if err := r.pollAndDispatch(); err != nil {
		t.Fatalf("pollAndDispatch failed: %v", err)
	}
	if len(h.closeCalls) != 0 {
		t.Fatalf("expected no HandleClose, got %v", h.closeCalls)
	}
	rh := r.byHandler[h]
	if rh.state != Normal {
		t.Fatalf("expected Normal state to survive, got %v", rh.state)
	}
}

func TestDispatchTimeoutCancelVsReschedule(t *testing.T) {
	d := newStubDemux()
	r := NewReactor(d)

	cancel := newStubHandler(21)
	cancel.timeoutRet = 1
	r.RegisterHandler(cancel, NoIO, nil)
	idCancel, _ := r.RegisterTimer(cancel, time.Nanosecond)

	reschedule := newStubHandler(23)
	reschedule.timeoutRet = 0
	r.RegisterHandler(reschedule, NoIO, nil)
	idResched, _ := r.RegisterTimer(reschedule, time.Nanosecond)

	time.Sleep(5 * time.Millisecond)
	if err := r.pollAndDispatch(); err != nil {
		t.Fatalf("pollAndDispatch failed: %v", err)
	}

	if len(cancel.timeoutCalls) != 1 || cancel.timeoutCalls[0] != idCancel {
		t.Fatalf("expected cancel handler notified once with %d, got %v", idCancel, cancel.timeoutCalls)
	}
	if len(reschedule.timeoutCalls) != 1 || reschedule.timeoutCalls[0] != idResched {
		t.Fatalf("expected reschedule handler notified once with %d, got %v", idResched, reschedule.timeoutCalls)
	}
	if r.timerQ.Len() != 1 {
		t.Fatalf("expected cancelled timer gone and rescheduled timer kept, Len=%d", r.timerQ.Len())
	}
	if _, ok := r.timerQ.byId[idResched]; !ok {
		t.Fatalf("expected rescheduled timer %d still tracked", idResched)
	}
}

func TestRunStopsWhenStopCalled(t *testing.T) {
	d := newStubDemux()
	r := NewReactor(d)
	h := newStubHandler(29)
	r.RegisterHandler(h, Read, nil)

	d.onDemultiplex = func() {
		r.Stop()
	}
	done := make(chan error, 1)
	go func() { done <- r.Run() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not exit after Stop")
	}
}

// --- minimal loop-thread-only test doubles (package-local; reactortest's
// fakes live in a separate package and can't see unexported fields like
// byHandler/timerQ that these white-box tests need to inspect). ---

type stubDemux struct {
	registered    map[Handle]EventMask
	ready         map[Handle]EventMask
	modifyCalls   int
	removeCalls   int
	onDemultiplex func()
	lastTimeout   time.Duration
}

func newStubDemux() *stubDemux {
	return &stubDemux{
		registered: make(map[Handle]EventMask),
		ready:      make(map[Handle]EventMask),
	}
}

func (d *stubDemux) RegisterHandle(h Handle, mask EventMask) error {
	d.registered[h] = mask
	return nil
}

func (d *stubDemux) ModifyEvents(h Handle, mask EventMask) error {
	d.modifyCalls++
	d.registered[h] = mask
	return nil
}

func (d *stubDemux) RemoveHandle(h Handle) error {
	d.removeCalls++
	delete(d.registered, h)
	return nil
}

func (d *stubDemux) Demultiplex(registry RegistryView, out *[]*RegHandler, timeout time.Duration) error {
	d.lastTimeout = timeout
	if d.onDemultiplex != nil {
		d.onDemultiplex()
	}
	for h, mask := range d.ready {
		rh, ok := registry.Lookup(h)
		if !ok {
			continue
		}
		if wasEmpty := rh.MergeRevents(mask); wasEmpty {
			*out = append(*out, rh)
		}
	}
	d.ready = make(map[Handle]EventMask)
	return nil
}

type stubHandler struct {
	mu sync.Mutex

	h            Handle
	refs         int32
	inputRet     int
	outputRet    int
	timeoutRet   int
	lastTimerSet TimerId

	inputCalls   []Handle
	outputCalls  []Handle
	timeoutCalls []TimerId
	closeCalls   []EventMask
}

func newStubHandler(h Handle) *stubHandler { return &stubHandler{h: h} }

func (s *stubHandler) Handle() Handle { return s.h }
func (s *stubHandler) HandleInput(h Handle) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputCalls = append(s.inputCalls, h)
	return s.inputRet
}
func (s *stubHandler) HandleOutput(h Handle) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputCalls = append(s.outputCalls, h)
	return s.outputRet
}
func (s *stubHandler) HandleTimeout(id TimerId) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeoutCalls = append(s.timeoutCalls, id)
	return s.timeoutRet
}
func (s *stubHandler) HandleClose(h Handle, closeMask EventMask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls = append(s.closeCalls, closeMask)
}
func (s *stubHandler) AddRef() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs++
	return s.refs
}
func (s *stubHandler) DelRef() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs--
	return s.refs
}
func (s *stubHandler) SetDeleter(creator EventHandlerCreator) {}
func (s *stubHandler) SetReactor(r *Reactor)                  {}
func (s *stubHandler) SetTimer(id TimerId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTimerSet = id
}
func (s *stubHandler) SetTimeout(id TimerId)    {}
func (s *stubHandler) SetEvents(mask EventMask) {}
func (s *stubHandler) REvents() EventMask       { return None }
