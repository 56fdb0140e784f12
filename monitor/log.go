// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package monitor contains the progress reporters a fuzzing session can be
// started with. None of them can influence the session.
package monitor

import (
	"github.com/golang/glog"

	"github.com/bradleyjkemp/babyfuzz/fuzzer"
)

// Log writes one stats line per event. New corpus entries are only logged
// at -v=1 and above.
type Log struct{}

var _ fuzzer.Monitor = Log{}

func (Log) Display(s fuzzer.Stats) {
	if s.Event == fuzzer.EventTestcase && !glog.V(1) {
		return
	}
	glog.Info(s.String())
}
