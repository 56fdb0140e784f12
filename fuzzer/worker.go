// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/bradleyjkemp/babyfuzz/coverage"
)

// Input is a raw candidate. Stored inputs are never modified in place.
type Input []byte

type ExitKind int

const (
	Normal ExitKind = iota
	Crash
	Timeout
)

func (k ExitKind) String() string {
	switch k {
	case Normal:
		return "normal"
	case Crash:
		return "crash"
	case Timeout:
		return "timeout"
	}
	return fmt.Sprintf("ExitKind(%d)", int(k))
}

// Harness is the function under test. It writes the points it reaches into
// cover and must not retain data or cover after returning. A harness may
// report Crash itself; a panic is reported as Crash by the executor.
// Without a timeout the harness runs on the caller's goroutine, so it must
// not call runtime.Goexit.
type Harness func(data []byte, cover *coverage.Map) ExitKind

// Outcome describes one execution.
type Outcome struct {
	Kind     ExitKind
	Output   []byte // panic value and goroutine dump for crashes
	Duration time.Duration
}

// Executor runs the harness on one candidate at a time and owns the
// coverage map for the duration of each run.
type Executor struct {
	harness Harness
	cover   *coverage.Map
	timeout time.Duration

	execs     uint64
	abandoned uint64
}

func NewExecutor(harness Harness, mapSize int, timeout time.Duration) *Executor {
	return &Executor{
		harness: harness,
		cover:   coverage.New(mapSize),
		timeout: timeout,
	}
}

// Cover is the map written by the last execution. It is valid until the
// next call to Execute.
func (e *Executor) Cover() *coverage.Map { return e.cover }

func (e *Executor) Execs() uint64 { return e.execs }

// Abandoned is the number of timed out harness goroutines left running.
func (e *Executor) Abandoned() uint64 { return e.abandoned }

// Execute resets the coverage map and runs the harness on data.
func (e *Executor) Execute(data []byte) Outcome {
	e.execs++
	e.cover.Reset()
	input := data[0:len(data):len(data)]
	t0 := time.Now()
	var res Outcome
	if e.timeout <= 0 {
		res = runFuzzFunc(e.harness, input, e.cover)
	} else {
		res = e.runWithTimeout(input)
	}
	res.Duration = time.Since(t0)
	return res
}

// runWithTimeout runs the harness on its own goroutine. A goroutine cannot be
// killed, so on overrun it is left behind writing into a detached map and the
// executor continues with a fresh one.
func (e *Executor) runWithTimeout(input []byte) Outcome {
	done := make(chan Outcome, 1)
	cover := e.cover
	go func() {
		res := Outcome{Kind: Crash, Output: []byte("harness exited without returning\n")}
		defer func() { done <- res }()
		res = runFuzzFunc(e.harness, input, cover)
	}()
	timer := time.NewTimer(e.timeout)
	defer timer.Stop()
	select {
	case res := <-done:
		return res
	case <-timer.C:
		// The detached map is still being written, so the timeout is
		// reported with an empty map.
		e.abandoned++
		e.cover = coverage.New(cover.Len())
		return Outcome{
			Kind:   Timeout,
			Output: []byte(fmt.Sprintf("hanger: no return after %v\n", e.timeout)),
		}
	}
}

func runFuzzFunc(harness Harness, input []byte, cover *coverage.Map) (res Outcome) {
	returned := false
	defer func() {
		if returned {
			return
		}
		err := recover()
		res.Kind = Crash
		if err == nil {
			// runtime.Goexit
			err = "harness exited without returning"
		}
		res.Output = []byte(fmt.Sprintf("panic: %v\n\n%s", err, debug.Stack()))
	}()
	res.Kind = harness(input, cover)
	returned = true
	return res
}
