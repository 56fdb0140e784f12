// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

// Scheduler picks the corpus entry to mutate next.
type Scheduler interface {
	Next(c *Corpus) uint64
}

var _ Scheduler = new(QueueScheduler)

// QueueScheduler walks the corpus in insertion order and wraps around.
// Entries appended during a cycle are visited before the wrap.
type QueueScheduler struct {
	pos uint64
}

func (s *QueueScheduler) Next(c *Corpus) uint64 {
	n := uint64(c.Len())
	if n == 0 {
		panic("scheduling on an empty corpus")
	}
	if s.pos >= n {
		s.pos = 0
	}
	id := s.pos
	s.pos++
	return id
}
