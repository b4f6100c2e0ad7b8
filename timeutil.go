// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package reactor

import (
	"math"
	"time"

	"github.com/intuitivelabs/timestamp"
)

// maxDuration is the saturated "+infinity" next-timeout value returned
// when the TimerQueue is empty.
const maxDuration = time.Duration(math.MaxInt64)

// now returns the current reference timestamp used for deadline
// computations. Kept as a single indirection point (rather than calling
// timestamp.Now() everywhere) so tests can be written against the
// timestamp package's own clock without the reactor depending on
// time.Time directly on its hot paths.
func now() timestamp.TS {
	return timestamp.Now()
}

// expired reports whether deadline has already passed relative to t.
func expired(deadline timestamp.TS, t timestamp.TS) bool {
	return !t.Before(deadline)
}

// msUntil returns the non-negative duration from t until deadline, 0 if
// deadline is not in the future relative to t.
func msUntil(deadline timestamp.TS, t timestamp.TS) time.Duration {
	if expired(deadline, t) {
		return 0
	}
	return deadline.Sub(t)
}
