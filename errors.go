// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package reactor

import (
	"errors"
)

// InvalidArgument: null handler, non-positive delay, invalid id.
var ErrInvalidArgument = errors.New("invalid argument")

// NotFound: unknown handler or timer.
var ErrNotFound = errors.New("not found")

// BadState: loop not running, or a NOIO handler attempting an I/O op.
var ErrBadState = errors.New("bad reactor state")

// DemuxFailure: the Demultiplexer refused a register/modify/remove call.
var ErrDemuxFailure = errors.New("demultiplexer failure")

// Duplicate: the same handle was re-registered with a different handler.
var ErrDuplicateHandle = errors.New("handle already registered to a different handler")

// ErrAlreadyPresent is returned by RegisterWithID when the caller-supplied
// timer id is already in use; callers are expected never to hit this in
// practice (the precondition is "not currently present"), it exists so
// the violation is reported instead of silently corrupting the heap.
var ErrAlreadyPresent = errors.New("timer id already present")

// ErrLoopNotRunning mirrors BadState for the timer-registration paths
// that need a distinguishable cause.
var ErrLoopNotRunning = errors.New("reactor loop not running")
