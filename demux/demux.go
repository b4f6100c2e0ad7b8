// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Package demux provides reference implementations of the
// reactor.Demultiplexer capability: a Linux epoll adapter and a
// portable poll(2) adapter. Application code is free to bring its own
// Demultiplexer (kqueue, IOCP, a test fake); these two are the trivial
// reference implementations bundled with the module.
package demux
