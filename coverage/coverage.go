// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package coverage holds the per-execution coverage map written by harnesses
// and the cumulative state the fuzzer compares it against.
package coverage

import (
	"fmt"
)

const (
	Size         = 64 << 10
	MaxInputSize = 1 << 20
)

// Map holds code coverage for a single execution.
// Harnesses write to it while they run; the executor resets it before each run.
type Map struct {
	tab []byte
}

// New returns a zeroed map with size slots.
func New(size int) *Map {
	if size <= 0 {
		panic(fmt.Sprintf("bad cover table size %v", size))
	}
	return &Map{tab: make([]byte, size)}
}

func (m *Map) Len() int { return len(m.tab) }

// Reset zeroes every slot.
func (m *Map) Reset() {
	for i := range m.tab {
		m.tab[i] = 0
	}
}

// Set marks point i as reached without counting hits.
func (m *Map) Set(i int) {
	if m.tab[i] == 0 {
		m.tab[i] = 1
	}
}

// Hit increments the counter of point i, saturating at 255.
func (m *Map) Hit(i int) {
	if m.tab[i] != 255 {
		m.tab[i]++
	}
}

// Bytes exposes the raw counters. Callers must not retain it across executions.
func (m *Map) Bytes() []byte { return m.tab }

// Snapshot returns a copy of the counters.
func (m *Map) Snapshot() []byte {
	return append([]byte{}, m.tab...)
}

// Fingerprint returns the set of reached points.
func (m *Map) Fingerprint() Fingerprint {
	return fingerprintOf(m.tab)
}
