// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package coverage

import (
	"fmt"
)

// MaxCover is the cumulative best-seen map. Slots only ever grow.
type MaxCover struct {
	tab      []byte
	counters bool
	covered  int
}

// NewMaxCover returns an empty cumulative map of the given size. With
// counters disabled any hit saturates the slot, so only new points count.
func NewMaxCover(size int, counters bool) *MaxCover {
	return &MaxCover{tab: make([]byte, size), counters: counters}
}

func (mc *MaxCover) checkSize(cur []byte) {
	if len(cur) != len(mc.tab) {
		panic(fmt.Sprintf("bad cover table size (%v, %v)", len(mc.tab), len(cur)))
	}
}

// Improves reports whether m reaches a point, or a hit-count bucket, that
// the cumulative map has not seen.
func (mc *MaxCover) Improves(m *Map) bool {
	cur := m.Bytes()
	mc.checkSize(cur)
	for i, v := range mc.tab {
		if mc.roundUp(cur[i]) > v {
			return true
		}
	}
	return false
}

// Merge folds m into the cumulative map and returns the number of covered points.
func (mc *MaxCover) Merge(m *Map) int {
	cur := m.Bytes()
	mc.checkSize(cur)
	cnt := 0
	for i, x := range cur {
		x = mc.roundUp(x)
		v := mc.tab[i]
		if v != 0 || x > 0 {
			cnt++
		}
		if v < x {
			mc.tab[i] = x
		}
	}
	mc.covered = cnt
	return cnt
}

// Covered is the number of points reached by any merged map.
func (mc *MaxCover) Covered() int { return mc.covered }

func (mc *MaxCover) Len() int { return len(mc.tab) }

func (mc *MaxCover) Fingerprint() Fingerprint {
	return fingerprintOf(mc.tab)
}

// Quantize the counters. Otherwise we get too inflated corpus.
func (mc *MaxCover) roundUp(x byte) byte {
	if !mc.counters && x > 0 {
		return 255
	}

	if x <= 5 {
		return x
	} else if x <= 8 {
		return 8
	} else if x <= 16 {
		return 16
	} else if x <= 32 {
		return 32
	} else if x <= 64 {
		return 64
	}
	return 255
}
