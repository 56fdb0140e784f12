// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package monitor

import (
	"fmt"
	"time"

	"github.com/buger/goterm"
	"github.com/golang/glog"

	"github.com/bradleyjkemp/babyfuzz/fuzzer"
)

// Terminal redraws a status screen on every event.
type Terminal struct {
	Target   string
	CrashDir string
}

var _ fuzzer.Monitor = (*Terminal)(nil)

func (t *Terminal) Display(s fuzzer.Stats) {
	goterm.Clear()
	goterm.MoveCursor(1, 1)
	for _, line := range t.render(s) {
		gtPrintf("%s\n", line)
	}
	goterm.Flush()
}

func (t *Terminal) render(s fuzzer.Stats) []string {
	lines := []string{
		goterm.Bold(fmt.Sprintf("Target: %s", t.Target)),
		fmt.Sprintf("uptime: %v - last event: %v", s.Uptime.Truncate(time.Second), s.Event),
		fmt.Sprintf("iterations: %v - execs: %v (%.0f/sec)", s.Iteration, s.Execs, s.ExecsPerSec),
		fmt.Sprintf("corpus: %v (last new input: %v) - cover: %v",
			s.Corpus, sinceOrNever(s.LastNewInputTime), s.Cover),
	}
	crashes := fmt.Sprintf("total unique crashes: %v - timeouts: %v", s.Crashers, s.Timeouts)
	if s.Crashers != 0 {
		crashes = goterm.Color(crashes, goterm.RED)
	}
	lines = append(lines, crashes)
	if t.CrashDir != "" {
		lines = append(lines, fmt.Sprintf("crashers are saved in %v", t.CrashDir))
	}
	return lines
}

func sinceOrNever(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return time.Since(t).Truncate(time.Second).String() + " ago"
}

func gtPrintf(format string, a ...interface{}) {
	if _, err := goterm.Printf(format, a...); err != nil {
		glog.Warningf("error while using goterm: %v", err)
	}
}
