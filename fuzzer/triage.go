// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"bytes"
	"context"
	"io/ioutil"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/maruel/panicparse/stack"
)

// extractSuppression reduces a crash dump to the crash site and the harness
// frames above the executor. Dumps that cannot be parsed are returned as is.
func extractSuppression(out []byte) []byte {
	ctx, err := stack.ParseDump(bytes.NewReader(elideArgs(out)), ioutil.Discard, false)
	if err != nil || ctx == nil {
		return out
	}

	for _, gr := range ctx.Goroutines {
		if !gr.First {
			continue
		}

		calls := gr.Stack.Calls
		start := -1
		for i, c := range calls {
			if strings.HasSuffix(c.SrcPath, "runtime/panic.go") {
				start = i + 1
			}
		}
		if start < 0 {
			return out
		}
		// Runtime frames that raised the panic (nil deref, bounds check).
		for start < len(calls) && isRuntimeFrame(calls[start]) {
			start++
		}
		if start == len(calls) {
			return out
		}

		// first part of suppression should include line number
		suppression := []byte(calls[start].FullSrcLine() + " " + calls[start].Func.PkgDotName())
		for _, c := range calls[start+1:] {
			if strings.HasSuffix(c.Func.Raw, ".runFuzzFunc") {
				// no longer in the harness
				break
			}
			suppression = append(suppression, []byte("\n"+c.Func.PkgDotName())...)
		}
		return suppression
	}

	return out
}

func isRuntimeFrame(c stack.Call) bool {
	return strings.HasPrefix(c.Func.Raw, "runtime.") || strings.Contains(c.SrcPath, "/src/runtime/")
}

// elideArgs replaces call arguments with "..." since newer toolchains print
// argument forms ("{0x1, 0x2}", "0x1?") that older dump parsers reject.
func elideArgs(out []byte) []byte {
	lines := strings.Split(string(out), "\n")
	for i, line := range lines {
		if line == "" || line[0] == '\t' || strings.HasPrefix(line, "goroutine ") ||
			strings.HasPrefix(line, "created by ") || !strings.HasSuffix(line, ")") {
			continue
		}
		if idx := strings.LastIndexByte(line, '('); idx > 0 {
			lines[i] = line[:idx] + "(...)"
		}
	}
	return []byte(strings.Join(lines, "\n"))
}

// minimizeInput applies series of minimizing transformations to data
// and asks pred whether the input is equivalent to the original one or not.
func minimizeInput(ctx context.Context, data []byte, budget time.Duration, pred func(candidate []byte) bool) []byte {
	if glog.V(2) {
		glog.Infof("minimizing input [%v]%v", len(data), hash(data))
	}
	res := makeCopy(data)
	start := time.Now()
	shouldStop := func() bool {
		return time.Since(start) > budget || ctx.Err() != nil
	}

	// First, try to cut tail.
	for n := 1024; n != 0; n /= 2 {
		for len(res) > n {
			if shouldStop() {
				return res
			}
			candidate := res[:len(res)-n]
			if !pred(candidate) {
				break
			}
			res = makeCopy(candidate)
		}
	}

	// Then, try to remove each individual byte.
	tmp := make([]byte, len(res))
	for i := 0; i < len(res); i++ {
		if shouldStop() {
			return res
		}
		candidate := tmp[:len(res)-1]
		copy(candidate[:i], res[:i])
		copy(candidate[i:], res[i+1:])
		if !pred(candidate) {
			continue
		}
		res = makeCopy(candidate)
		i--
	}

	// Then, try to remove each possible subset of bytes.
	for i := 0; i < len(res)-1; i++ {
		copy(tmp, res[:i])
		for j := len(res); j > i+1; j-- {
			if shouldStop() {
				return res
			}
			candidate := tmp[:len(res)-j+i]
			copy(candidate[i:], res[j:])
			if !pred(candidate) {
				continue
			}
			res = makeCopy(candidate)
			j = len(res)
		}
	}

	return res
}
