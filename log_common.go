// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package reactor

// logging functions

import (
	"github.com/intuitivelabs/slog"
)

// Log is the generic log.
var Log slog.Log = slog.New(slog.LERR, slog.LbackTraceL|slog.LlocInfoL,
	slog.LStdErr)

// WARN is a shorthand for logging a warning message.
func WARN(f string, a ...interface{}) {
	Log.LLog(slog.LWARN, 1, "WARNING: reactor: ", f, a...)
}

// ERR is a shorthand for logging an error message.
func ERR(f string, a ...interface{}) {
	Log.LLog(slog.LERR, 1, "ERROR: reactor: ", f, a...)
}

// BUG is a shorthand for logging an internal invariant violation.
func BUG(f string, a ...interface{}) {
	Log.LLog(slog.LBUG, 1, "BUG: reactor: ", f, a...)
}
