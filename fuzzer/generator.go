// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"fmt"
	"math/rand"
)

// Generator produces seed inputs for the initial corpus.
type Generator interface {
	Generate(r *rand.Rand) (Input, error)
}

// RandPrintables generates printable ASCII strings of 1 to MaxSize bytes.
type RandPrintables struct {
	MaxSize int
}

func (g RandPrintables) Generate(r *rand.Rand) (Input, error) {
	if g.MaxSize < 1 {
		return nil, fmt.Errorf("bad max size %v", g.MaxSize)
	}
	size := 1 + r.Intn(g.MaxSize)
	res := make(Input, size)
	for i := range res {
		res[i] = byte(' ' + r.Intn('~'-' '+1))
	}
	return res, nil
}

// GenerateInputs draws exactly count inputs from g.
func GenerateInputs(g Generator, r *rand.Rand, count int) ([]Input, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: requested %v inputs", ErrGeneration, count)
	}
	inputs := make([]Input, 0, count)
	for len(inputs) < count {
		in, err := g.Generate(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}
