// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package demux

import "github.com/intuitivelabs/reactor"

// addIfFirst merges mask into rh's pending revents and appends rh to out
// the first time (for this Demultiplex call) it transitions from
// nothing-pending to something-pending.
func addIfFirst(rh *reactor.RegHandler, mask reactor.EventMask, out *[]*reactor.RegHandler) {
	wasEmpty := rh.MergeRevents(mask)
	if wasEmpty {
		*out = append(*out, rh)
	}
}
