// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"fmt"

	"github.com/bradleyjkemp/babyfuzz/coverage"
)

type CorpusEntry struct {
	ID          uint64
	Data        Input
	Fingerprint coverage.Fingerprint
	Iteration   uint64 // iteration at which the entry was found
}

// Corpus is the append-only set of inputs that produced new coverage.
// Entry ids equal their insertion index.
type Corpus struct {
	entries []CorpusEntry
	sigs    map[Sig]struct{}
}

func NewCorpus() *Corpus {
	return &Corpus{sigs: make(map[Sig]struct{})}
}

func (c *Corpus) Len() int { return len(c.entries) }

// Add stores a copy of data and returns the new entry's id.
func (c *Corpus) Add(data []byte, fp coverage.Fingerprint, iteration uint64) uint64 {
	id := uint64(len(c.entries))
	c.entries = append(c.entries, CorpusEntry{
		ID:          id,
		Data:        makeCopy(data),
		Fingerprint: fp,
		Iteration:   iteration,
	})
	c.sigs[hash(data)] = struct{}{}
	return id
}

// Contains reports whether an input with exactly this content is stored.
func (c *Corpus) Contains(data []byte) bool {
	_, ok := c.sigs[hash(data)]
	return ok
}

// Get returns the entry with the given id. An unknown id is a scheduling bug.
func (c *Corpus) Get(id uint64) *CorpusEntry {
	if id >= uint64(len(c.entries)) {
		panic(fmt.Sprintf("corpus entry %v requested, corpus has %v entries", id, len(c.entries)))
	}
	return &c.entries[id]
}

// Entries returns the entries in insertion order. The slice must not be modified.
func (c *Corpus) Entries() []CorpusEntry { return c.entries }

func makeCopy(data []byte) []byte {
	return append([]byte{}, data...)
}
