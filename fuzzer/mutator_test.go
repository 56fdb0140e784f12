// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"bytes"
	"math/bits"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bradleyjkemp/babyfuzz/coverage"
)

func testMutator(seed int64, maxLen int) *Mutator {
	cfg := DefaultConfig()
	cfg.MaxInputLen = maxLen
	return newMutator(rand.New(rand.NewSource(seed)), cfg)
}

func testCorpus(inputs ...string) *Corpus {
	c := NewCorpus()
	for _, in := range inputs {
		c.Add([]byte(in), coverage.NewFingerprint(0), 0)
	}
	return c
}

func TestMutateEmpty(t *testing.T) {
	m := testMutator(1, 64)
	corpus := testCorpus("hello", "world")
	grew := false
	for i := 0; i < 1000; i++ {
		res := m.Mutate(nil, corpus)
		if len(res) > 64 {
			t.Fatalf("mutation produced %v bytes, limit is 64", len(res))
		}
		if len(res) != 0 {
			grew = true
		}
	}
	if !grew {
		t.Fatalf("empty input never grew")
	}
	// Without donors the insertion operators are the only ones that apply.
	for i := 0; i < 1000; i++ {
		m.Mutate([]byte{}, nil)
	}
}

func TestMutateNonEmpty(t *testing.T) {
	m := testMutator(2, 128)
	corpus := testCorpus("", "a", "abcdefgh", "0123456789abcdef0123456789abcdef")
	seed := []byte("the quick brown fox")
	orig := append([]byte{}, seed...)
	changed := 0
	for i := 0; i < 1000; i++ {
		res := m.Mutate(seed, corpus)
		if res == nil {
			t.Fatalf("mutation returned nil")
		}
		if len(res) > 128 {
			t.Fatalf("mutation produced %v bytes, limit is 128", len(res))
		}
		if !bytes.Equal(res, seed) {
			changed++
		}
	}
	if !bytes.Equal(seed, orig) {
		t.Fatalf("seed was modified: %q", seed)
	}
	if changed < 900 {
		t.Fatalf("only %v of 1000 candidates differ from the seed", changed)
	}
}

func TestMutateDeterministic(t *testing.T) {
	corpus := testCorpus("abc", "hello world", "\x00\x01\x02\x03")
	m1 := testMutator(42, 256)
	m2 := testMutator(42, 256)
	seed := []byte("determinism")
	for i := 0; i < 200; i++ {
		a := m1.Mutate(seed, corpus)
		b := m2.Mutate(seed, corpus)
		if diff := cmp.Diff(a, b); diff != "" {
			t.Fatalf("candidate %v differs (-first +second):\n%s", i, diff)
		}
		seed = a
	}
}

func TestMutateMaxLen(t *testing.T) {
	m := testMutator(3, 8)
	corpus := testCorpus("0123456789", "abcdefghijklmnop")
	for i := 0; i < 2000; i++ {
		if res := m.Mutate([]byte("01234567"), corpus); len(res) > 8 {
			t.Fatalf("mutation produced %v bytes, limit is 8", len(res))
		}
	}
}

func TestMutationsInIsolation(t *testing.T) {
	sameLen := map[string]bool{
		"BitFlip": true, "ByteFlip": true, "ByteInc": true, "ByteDec": true, "ByteRand": true,
		"SetInteresting8": true, "SetInteresting16": true, "SetInteresting32": true,
		"CrossoverReplace": true, "Arith8": true, "Arith16": true, "Arith32": true,
	}
	inputs := [][]byte{nil, {}, {'x'}, []byte("ab"), []byte("abcde"), bytes.Repeat([]byte{0xaa}, 64)}
	for _, mut := range mutations {
		mut := mut
		t.Run(mut.name, func(t *testing.T) {
			m := testMutator(4, 64)
			m.corpus = testCorpus("donor one", "donor two")
			applied := false
			for _, in := range inputs {
				for i := 0; i < 200; i++ {
					res := append([]byte{}, in...)
					out, ok := mut.fn(m, res)
					if !ok {
						if !bytes.Equal(out, in) {
							t.Fatalf("skipped operator changed %q into %q", in, out)
						}
						continue
					}
					applied = true
					if len(out) > 64 {
						t.Fatalf("%q grew to %v bytes", in, len(out))
					}
					if sameLen[mut.name] && len(out) != len(in) {
						t.Fatalf("%q changed length to %v", in, len(out))
					}
				}
			}
			if !applied {
				t.Fatalf("operator never applied")
			}
		})
	}
}

func TestMutationsSkipEmpty(t *testing.T) {
	m := testMutator(5, 64)
	for _, mut := range mutations {
		if mut.name == "ByteInsert" || mut.name == "CrossoverInsert" {
			continue
		}
		if _, ok := mut.fn(m, []byte{}); ok {
			t.Errorf("%v applied to an empty input", mut.name)
		}
	}
}

func TestBitFlip(t *testing.T) {
	m := testMutator(6, 64)
	in := []byte("abcdefgh")
	for i := 0; i < 100; i++ {
		out, _ := m.bitFlip(append([]byte{}, in...))
		diff := 0
		for j := range in {
			diff += bits.OnesCount8(in[j] ^ out[j])
		}
		if diff != 1 {
			t.Fatalf("bit flip changed %v bits", diff)
		}
	}
}

func TestByteRandChanges(t *testing.T) {
	m := testMutator(7, 64)
	in := []byte("abcdefgh")
	for i := 0; i < 100; i++ {
		out, _ := m.byteRand(append([]byte{}, in...))
		diff := 0
		for j := range in {
			if in[j] != out[j] {
				diff++
			}
		}
		if diff != 1 {
			t.Fatalf("random byte changed %v bytes", diff)
		}
	}
}

func TestInsertDelete(t *testing.T) {
	m := testMutator(8, 4)
	out, ok := m.byteInsert([]byte("ab"))
	if !ok || len(out) != 3 {
		t.Fatalf("insert: got %q, %v", out, ok)
	}
	if _, ok := m.byteInsert([]byte("abcd")); ok {
		t.Fatalf("insert exceeded max length")
	}
	out, ok = m.byteDelete([]byte("ab"))
	if !ok || len(out) != 1 {
		t.Fatalf("delete: got %q, %v", out, ok)
	}
}

func TestCrossoverNeedsDonor(t *testing.T) {
	m := testMutator(9, 64)
	if _, ok := m.crossoverReplace([]byte("abc")); ok {
		t.Fatalf("crossover applied without a corpus")
	}
	m.corpus = testCorpus("abc")
	if _, ok := m.crossoverInsert([]byte("abc")); ok {
		t.Fatalf("crossover used the input itself as donor")
	}
	m.corpus = testCorpus("xyz")
	out, ok := m.crossoverInsert([]byte("abc"))
	if !ok || len(out) <= 3 {
		t.Fatalf("crossover insert: got %q, %v", out, ok)
	}
}
