// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"encoding/binary"
	"math/rand"
)

const arithMax = 35

var (
	interesting8  = []int8{-128, -1, 0, 1, 16, 32, 64, 100, 127}
	interesting16 = []int16{-32768, -129, 128, 255, 256, 512, 1000, 1024, 4096, 32767}
	interesting32 = []int32{-2147483648, -100663046, -32769, 32768, 65535, 65536, 100663045, 2147483647}
)

// mutation is one atomic havoc operator. It returns false, leaving res
// untouched, when it cannot act on res (e.g. res is empty).
type mutation struct {
	name string
	fn   func(m *Mutator, res []byte) ([]byte, bool)
}

// mutations is the fixed operator set. Each candidate applies a random
// number of operators drawn uniformly from it.
var mutations = []mutation{
	{"BitFlip", (*Mutator).bitFlip},
	{"ByteFlip", (*Mutator).byteFlip},
	{"ByteInc", (*Mutator).byteInc},
	{"ByteDec", (*Mutator).byteDec},
	{"ByteRand", (*Mutator).byteRand},
	{"SetInteresting8", (*Mutator).setInteresting8},
	{"SetInteresting16", (*Mutator).setInteresting16},
	{"SetInteresting32", (*Mutator).setInteresting32},
	{"ByteInsert", (*Mutator).byteInsert},
	{"ByteDelete", (*Mutator).byteDelete},
	{"ChunkDelete", (*Mutator).chunkDelete},
	{"ChunkDup", (*Mutator).chunkDup},
	{"CrossoverReplace", (*Mutator).crossoverReplace},
	{"CrossoverInsert", (*Mutator).crossoverInsert},
	{"Arith8", (*Mutator).arith8},
	{"Arith16", (*Mutator).arith16},
	{"Arith32", (*Mutator).arith32},
}

// Mutator produces candidates by stacking havoc operators on a seed.
// Given the same random source state and corpus it produces the same candidate.
type Mutator struct {
	r        *rand.Rand
	corpus   *Corpus
	stackMin int
	stackMax int
	maxLen   int
}

func newMutator(r *rand.Rand, cfg Config) *Mutator {
	return &Mutator{
		r:        r,
		stackMin: cfg.StackMin,
		stackMax: cfg.StackMax,
		maxLen:   cfg.MaxInputLen,
	}
}

func (m *Mutator) rand(n int) int {
	return m.r.Intn(n)
}

func (m *Mutator) randbool() bool {
	return m.r.Int63()&1 == 0
}

func (m *Mutator) randByteOrder() binary.ByteOrder {
	if m.randbool() {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// chooseLen chooses length of range mutation.
// It gives preference to shorter lengths.
func (m *Mutator) chooseLen(n int) int {
	switch x := m.rand(100); {
	case x < 90:
		return m.rand(min(8, n)) + 1
	case x < 99:
		return m.rand(min(32, n)) + 1
	default:
		return m.rand(n) + 1
	}
}

// Mutate returns a mutated copy of seed. corpus supplies donors for the
// crossover operators and may be nil.
func (m *Mutator) Mutate(seed []byte, corpus *Corpus) Input {
	m.corpus = corpus
	defer func() { m.corpus = nil }()

	res := makeCopy(seed)
	depth := m.stackMin + m.rand(m.stackMax-m.stackMin+1)
	for i := 0; i < depth; i++ {
		mut := mutations[m.rand(len(mutations))]
		if out, ok := mut.fn(m, res); ok {
			res = out
		}
	}
	if len(res) > m.maxLen {
		res = res[:m.maxLen]
	}
	return res
}

func (m *Mutator) bitFlip(res []byte) ([]byte, bool) {
	if len(res) == 0 {
		return res, false
	}
	pos := m.rand(len(res))
	res[pos] ^= 1 << uint(m.rand(8))
	return res, true
}

func (m *Mutator) byteFlip(res []byte) ([]byte, bool) {
	if len(res) == 0 {
		return res, false
	}
	res[m.rand(len(res))] ^= 0xff
	return res, true
}

func (m *Mutator) byteInc(res []byte) ([]byte, bool) {
	if len(res) == 0 {
		return res, false
	}
	res[m.rand(len(res))]++
	return res, true
}

func (m *Mutator) byteDec(res []byte) ([]byte, bool) {
	if len(res) == 0 {
		return res, false
	}
	res[m.rand(len(res))]--
	return res, true
}

func (m *Mutator) byteRand(res []byte) ([]byte, bool) {
	if len(res) == 0 {
		return res, false
	}
	// Xor with a non-zero value so the byte always changes.
	res[m.rand(len(res))] ^= byte(m.rand(255)) + 1
	return res, true
}

func (m *Mutator) setInteresting8(res []byte) ([]byte, bool) {
	if len(res) == 0 {
		return res, false
	}
	res[m.rand(len(res))] = byte(interesting8[m.rand(len(interesting8))])
	return res, true
}

func (m *Mutator) setInteresting16(res []byte) ([]byte, bool) {
	if len(res) < 2 {
		return res, false
	}
	pos := m.rand(len(res) - 1)
	v := uint16(interesting16[m.rand(len(interesting16))])
	m.randByteOrder().PutUint16(res[pos:], v)
	return res, true
}

func (m *Mutator) setInteresting32(res []byte) ([]byte, bool) {
	if len(res) < 4 {
		return res, false
	}
	pos := m.rand(len(res) - 3)
	v := uint32(interesting32[m.rand(len(interesting32))])
	m.randByteOrder().PutUint32(res[pos:], v)
	return res, true
}

// byteInsert also works on an empty input, so "" can grow.
func (m *Mutator) byteInsert(res []byte) ([]byte, bool) {
	if len(res) >= m.maxLen {
		return res, false
	}
	pos := m.rand(len(res) + 1)
	res = append(res, 0)
	copy(res[pos+1:], res[pos:])
	res[pos] = byte(m.rand(256))
	return res, true
}

func (m *Mutator) byteDelete(res []byte) ([]byte, bool) {
	if len(res) == 0 {
		return res, false
	}
	pos := m.rand(len(res))
	copy(res[pos:], res[pos+1:])
	return res[:len(res)-1], true
}

func (m *Mutator) chunkDelete(res []byte) ([]byte, bool) {
	if len(res) < 2 {
		return res, false
	}
	n := m.chooseLen(len(res) - 1)
	pos0 := m.rand(len(res) - n + 1)
	pos1 := pos0 + n
	copy(res[pos0:], res[pos1:])
	return res[:len(res)-n], true
}

// chunkDup inserts a copy of a range of res at a random position.
func (m *Mutator) chunkDup(res []byte) ([]byte, bool) {
	if len(res) == 0 || len(res) >= m.maxLen {
		return res, false
	}
	n := m.chooseLen(min(len(res), m.maxLen-len(res)))
	src := m.rand(len(res) - n + 1)
	chunk := makeCopy(res[src : src+n])
	return insertAt(res, m.rand(len(res)+1), chunk), true
}

// donor picks another corpus entry to splice from.
func (m *Mutator) donor(res []byte) []byte {
	if m.corpus == nil || m.corpus.Len() == 0 {
		return nil
	}
	data := m.corpus.Get(uint64(m.rand(m.corpus.Len()))).Data
	if len(data) == 0 || string(data) == string(res) {
		return nil
	}
	return data
}

// crossoverReplace overwrites a range of res with a chunk of a donor entry.
func (m *Mutator) crossoverReplace(res []byte) ([]byte, bool) {
	if len(res) == 0 {
		return res, false
	}
	other := m.donor(res)
	if other == nil {
		return res, false
	}
	n := m.chooseLen(min(len(res), len(other)))
	src := m.rand(len(other) - n + 1)
	dst := m.rand(len(res) - n + 1)
	copy(res[dst:dst+n], other[src:src+n])
	return res, true
}

// crossoverInsert inserts a chunk of a donor entry into res.
func (m *Mutator) crossoverInsert(res []byte) ([]byte, bool) {
	if len(res) >= m.maxLen {
		return res, false
	}
	other := m.donor(res)
	if other == nil {
		return res, false
	}
	n := m.chooseLen(min(len(other), m.maxLen-len(res)))
	src := m.rand(len(other) - n + 1)
	return insertAt(res, m.rand(len(res)+1), other[src:src+n]), true
}

func (m *Mutator) arithDelta() int {
	v := m.rand(arithMax) + 1
	if m.randbool() {
		v = -v
	}
	return v
}

func (m *Mutator) arith8(res []byte) ([]byte, bool) {
	if len(res) == 0 {
		return res, false
	}
	pos := m.rand(len(res))
	res[pos] = byte(int(res[pos]) + m.arithDelta())
	return res, true
}

func (m *Mutator) arith16(res []byte) ([]byte, bool) {
	if len(res) < 2 {
		return res, false
	}
	pos := m.rand(len(res) - 1)
	bo := m.randByteOrder()
	bo.PutUint16(res[pos:], uint16(int(bo.Uint16(res[pos:]))+m.arithDelta()))
	return res, true
}

func (m *Mutator) arith32(res []byte) ([]byte, bool) {
	if len(res) < 4 {
		return res, false
	}
	pos := m.rand(len(res) - 3)
	bo := m.randByteOrder()
	bo.PutUint32(res[pos:], uint32(int64(bo.Uint32(res[pos:]))+int64(m.arithDelta())))
	return res, true
}

func insertAt(res []byte, pos int, chunk []byte) []byte {
	out := make([]byte, 0, len(res)+len(chunk))
	out = append(out, res[:pos]...)
	out = append(out, chunk...)
	return append(out, res[pos:]...)
}
