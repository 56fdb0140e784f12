// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"strings"

	"github.com/bradleyjkemp/babyfuzz/coverage"
)

// Feedback classifies an execution from its exit kind and coverage map.
// The set of implementations is closed; compose them with Any.
type Feedback interface {
	Evaluate(kind ExitKind, cover *coverage.Map) bool
	Name() string
	feedback()
}

var (
	_ Feedback = new(MaxMapFeedback)
	_ Feedback = CrashFeedback{}
	_ Feedback = TimeoutFeedback{}
	_ Feedback = AnyFeedback{}
)

// MaxMapFeedback reports executions that reach a point or hit-count bucket
// never seen before, and merges them into the cumulative map.
type MaxMapFeedback struct {
	max *coverage.MaxCover
}

func NewMaxMapFeedback(max *coverage.MaxCover) *MaxMapFeedback {
	return &MaxMapFeedback{max: max}
}

func (f *MaxMapFeedback) Evaluate(kind ExitKind, cover *coverage.Map) bool {
	if !f.max.Improves(cover) {
		return false
	}
	f.max.Merge(cover)
	return true
}

func (f *MaxMapFeedback) Name() string { return "maxmap" }
func (*MaxMapFeedback) feedback()      {}

type CrashFeedback struct{}

func (CrashFeedback) Evaluate(kind ExitKind, _ *coverage.Map) bool { return kind == Crash }
func (CrashFeedback) Name() string                                  { return "crash" }
func (CrashFeedback) feedback()                                     {}

type TimeoutFeedback struct{}

func (TimeoutFeedback) Evaluate(kind ExitKind, _ *coverage.Map) bool { return kind == Timeout }
func (TimeoutFeedback) Name() string                                  { return "timeout" }
func (TimeoutFeedback) feedback()                                     {}

// AnyFeedback is true if any of its members is. Every member is evaluated,
// so stateful members see every execution.
type AnyFeedback []Feedback

func Any(fs ...Feedback) AnyFeedback { return AnyFeedback(fs) }

func (a AnyFeedback) Evaluate(kind ExitKind, cover *coverage.Map) bool {
	res := false
	for _, f := range a {
		if f.Evaluate(kind, cover) {
			res = true
		}
	}
	return res
}

func (a AnyFeedback) Name() string {
	names := make([]string, len(a))
	for i, f := range a {
		names[i] = f.Name()
	}
	return strings.Join(names, "|")
}

func (AnyFeedback) feedback() {}

// objectiveFor returns the objective used by a session with cfg.
func objectiveFor(cfg Config) Feedback {
	if cfg.TimeoutsAreObjectives {
		return Any(CrashFeedback{}, TimeoutFeedback{})
	}
	return CrashFeedback{}
}
