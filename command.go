// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package reactor

import "time"

// commandKind tags a Command's payload, following a flat tagged-record
// convention rather than a Go interface-per-variant split: the payloads
// are small and homogeneous enough that one flat struct reads more
// plainly than five tiny types plus a type switch.
type commandKind uint8

const (
	cmdRegisterHandler commandKind = iota
	cmdRemoveHandler
	cmdRegisterTimer
	cmdRemoveTimer
	cmdResetTimer
)

// Command is a deferred mutation enqueued by a foreign thread through a
// DeferredReactor and applied on the loop thread at the next drain
// point.
type Command struct {
	kind    commandKind
	handler EventHandler
	mask    EventMask
	creator EventHandlerCreator
	timerId TimerId
	delay   time.Duration
}
