// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package wheel

// logging functions

import (
	"fmt"

	"github.com/intuitivelabs/slog"
)

// Log is the generic log.
var Log slog.Log = slog.New(slog.LERR, slog.LbackTraceL|slog.LlocInfoL,
	slog.LStdErr)

// WARN is a shorthand for logging a warning message.
func WARN(f string, a ...interface{}) {
	Log.LLog(slog.LWARN, 1, "WARNING: wheel: ", f, a...)
}

// ERR is a shorthand for logging an error message.
func ERR(f string, a ...interface{}) {
	Log.LLog(slog.LERR, 1, "ERROR: wheel: ", f, a...)
}

// WARNon is a shorthand for checking if logging at LWARN level is enabled.
func WARNon() bool {
	return Log.WARNon()
}

// ERRon is a shorthand for checking if logging at LERR level is enabled.
func ERRon() bool {
	return Log.ERRon()
}

// BUG is a shorthand for logging an internal invariant violation.
func BUG(f string, a ...interface{}) {
	Log.LLog(slog.LBUG, 1, "BUG: wheel: ", f, a...)
}

// PANIC logs an unrecoverable internal invariant violation and panics;
// used on wheel/bucket corruption paths where continuing would silently
// run on inconsistent intrusive list state.
func PANIC(f string, a ...interface{}) {
	Log.LLog(slog.LBUG, 1, "PANIC: wheel: ", f, a...)
	panic(fmt.Sprintf(f, a...))
}
