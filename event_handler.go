// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package reactor

// EventHandler is the capability implemented by user code that reacts to
// I/O readiness and/or timeouts. The reactor never constructs one; it
// only holds one strong reference per registration (via AddRef/DelRef).
//
// Return conventions:
//   - HandleInput/HandleOutput: 0 means "keep open", non-zero means
//     "close this side" (READ_MASK or WRITE_MASK is added to the close
//     mask passed to HandleClose).
//   - HandleTimeout: 0 means "reschedule from now with the original
//     delay", non-zero means "cancel, do not reschedule".
//   - HandleClose: best-effort notification, no return contract.
type EventHandler interface {
	// Handle returns the kernel I/O handle this EventHandler owns, or
	// InvalidHandle for a timer-only (NoIO) handler.
	Handle() Handle

	HandleInput(h Handle) int
	HandleOutput(h Handle) int
	HandleTimeout(id TimerId) int
	HandleClose(h Handle, closeMask EventMask)

	// AddRef/DelRef adjust the handler's reference count. The registry
	// calls AddRef exactly once on registration and DelRef exactly once
	// on removal.
	AddRef() int32
	DelRef() int32

	// SetDeleter installs the factory/deleter supplied at registration
	// time (may be nil).
	SetDeleter(creator EventHandlerCreator)

	// SetReactor installs (or, called with nil, clears) the handler's
	// non-owning back-reference to the reactor that owns it.
	SetReactor(r *Reactor)

	SetTimer(id TimerId)
	SetTimeout(id TimerId)
	SetEvents(mask EventMask)
	REvents() EventMask
}

// EventHandlerCreator is an opaque factory/deleter hook installed on an
// EventHandler at registration time; the reactor never inspects it, it
// only carries it through SetDeleter so the handler can use it to
// recreate or release itself.
type EventHandlerCreator interface {
	// Create may be used by a handler's own close path to produce a
	// replacement handler (e.g. accept a new connection after closing
	// one); Reactor never calls it directly.
	Create() EventHandler
}
