// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer_test

import (
	"context"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bradleyjkemp/babyfuzz/coverage"
	"github.com/bradleyjkemp/babyfuzz/examples/baby"
	"github.com/bradleyjkemp/babyfuzz/fuzzer"
)

func testConfig(t *testing.T) fuzzer.Config {
	cfg := baby.Config()
	cfg.Seed = 1
	cfg.CrashDir = t.TempDir()
	return cfg
}

func newFuzzer(t *testing.T, cfg fuzzer.Config, monitors ...fuzzer.Monitor) *fuzzer.Fuzzer {
	f, err := fuzzer.New(cfg, baby.Harness, monitors...)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestBabyHarness(t *testing.T) {
	tests := []struct {
		input string
		kind  fuzzer.ExitKind
		cover coverage.Fingerprint
	}{
		{"", fuzzer.Normal, coverage.NewFingerprint(0)},
		{"a", fuzzer.Normal, coverage.NewFingerprint(0, 1)},
		{"ab", fuzzer.Normal, coverage.NewFingerprint(0, 1, 2)},
		{"abc", fuzzer.Crash, coverage.NewFingerprint(0, 1, 2)},
		{"abcxyz", fuzzer.Crash, coverage.NewFingerprint(0, 1, 2)},
		{"b", fuzzer.Normal, coverage.NewFingerprint(0)},
		{"xbc", fuzzer.Normal, coverage.NewFingerprint(0)},
	}
	e := fuzzer.NewExecutor(baby.Harness, baby.MapSize, 0)
	for _, test := range tests {
		res := e.Execute([]byte(test.input))
		if res.Kind != test.kind {
			t.Errorf("%q: got %v, want %v", test.input, res.Kind, test.kind)
		}
		if diff := cmp.Diff(test.cover, e.Cover().Fingerprint()); diff != "" {
			t.Errorf("%q: cover (-want +got):\n%s", test.input, diff)
		}
	}
}

func TestBabyScenarios(t *testing.T) {
	f := newFuzzer(t, testConfig(t))
	ctx := context.Background()
	steps := []struct {
		input string
		want  fuzzer.Verdict
	}{
		{"", fuzzer.NewInput},
		{"", fuzzer.Discarded},
		{"a", fuzzer.NewInput},
		{"ab", fuzzer.NewInput},
		{"abc", fuzzer.NewCrasher},
		{"abcxyz", fuzzer.DuplicateCrasher},
		{"b", fuzzer.Discarded},
		{"ab", fuzzer.Discarded},
	}
	for _, step := range steps {
		got, err := f.Evaluate(ctx, []byte(step.input))
		if err != nil {
			t.Fatalf("%q: %v", step.input, err)
		}
		if got != step.want {
			t.Fatalf("%q: got %v, want %v", step.input, got, step.want)
		}
	}
	if n := f.Corpus().Len(); n != 3 {
		t.Fatalf("corpus has %v entries, want 3", n)
	}
	for _, e := range f.Corpus().Entries() {
		if string(e.Data) == "abc" || string(e.Data) == "abcxyz" {
			t.Fatalf("crasher %q entered the corpus", e.Data)
		}
	}
	recs := f.Crashers().Records()
	if len(recs) != 1 {
		t.Fatalf("crash store has %v records, want 1", len(recs))
	}
	if string(recs[0].Data) != "abc" || recs[0].Kind != fuzzer.Crash {
		t.Fatalf("stored crasher %q (%v)", recs[0].Data, recs[0].Kind)
	}
	if diff := cmp.Diff(coverage.NewFingerprint(0, 1, 2), recs[0].Fingerprint); diff != "" {
		t.Fatalf("crash fingerprint (-want +got):\n%s", diff)
	}
}

func TestHitCountsDoNotGrowCorpus(t *testing.T) {
	// Point 0 is hit once per byte, plus once.
	harness := func(data []byte, cover *coverage.Map) fuzzer.ExitKind {
		for i := 0; i <= len(data); i++ {
			cover.Hit(0)
		}
		if len(data) > 3 {
			cover.Set(1)
		}
		return fuzzer.Normal
	}
	tests := []struct {
		counters bool
		want     []fuzzer.Verdict
	}{
		{false, []fuzzer.Verdict{fuzzer.NewInput, fuzzer.Discarded, fuzzer.NewInput, fuzzer.Discarded}},
		{true, []fuzzer.Verdict{fuzzer.NewInput, fuzzer.NewInput, fuzzer.NewInput, fuzzer.NewInput}},
	}
	inputs := []string{"", "xx", "xxxx", "xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx"}
	for _, test := range tests {
		cfg := testConfig(t)
		cfg.CoverCounters = test.counters
		f, err := fuzzer.New(cfg, harness)
		if err != nil {
			t.Fatal(err)
		}
		for i, in := range inputs {
			got, err := f.Evaluate(context.Background(), []byte(in))
			if err != nil {
				t.Fatal(err)
			}
			if got != test.want[i] {
				t.Fatalf("counters=%v, input %v: got %v, want %v", test.counters, i, got, test.want[i])
			}
		}
		if test.counters {
			continue
		}
		// Every entry brings a point no earlier entry has.
		var seen coverage.Fingerprint
		for _, e := range f.Corpus().Entries() {
			if e.Fingerprint.Subset(seen) {
				t.Fatalf("entry %v %v adds nothing to %v", e.ID, e.Fingerprint, seen)
			}
			seen = coverage.NewFingerprint(append(append([]int{}, seen...), e.Fingerprint...)...)
		}
	}
}

func TestObjectivePrecedence(t *testing.T) {
	f := newFuzzer(t, testConfig(t))
	ctx := context.Background()
	// "abc" reaches points nobody has seen yet, but it crashes.
	if got, err := f.Evaluate(ctx, []byte("abc")); err != nil || got != fuzzer.NewCrasher {
		t.Fatalf("got %v, %v", got, err)
	}
	if n := f.Corpus().Len(); n != 0 {
		t.Fatalf("corpus has %v entries after a crash", n)
	}
	// The crash did not count as coverage.
	if got, _ := f.Evaluate(ctx, []byte("ab")); got != fuzzer.NewInput {
		t.Fatalf("got %v for \"ab\"", got)
	}
}

func TestCrashDedupAcrossRestarts(t *testing.T) {
	cfg := testConfig(t)
	f := newFuzzer(t, cfg)
	if got, _ := f.Evaluate(context.Background(), []byte("abc")); got != fuzzer.NewCrasher {
		t.Fatalf("got %v", got)
	}
	f = newFuzzer(t, cfg)
	if got, _ := f.Evaluate(context.Background(), []byte("abcd")); got != fuzzer.DuplicateCrasher {
		t.Fatalf("got %v after restart", got)
	}
	if n := f.Crashers().Len(); n != 1 {
		t.Fatalf("crash store has %v records", n)
	}
}

func TestCrashWriteFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	f := newFuzzer(t, cfg)
	if err := os.RemoveAll(cfg.CrashDir); err != nil {
		t.Fatal(err)
	}
	_, err := f.Evaluate(context.Background(), []byte("abc"))
	if !errors.Is(err, fuzzer.ErrCrashWrite) {
		t.Fatalf("got %v, want ErrCrashWrite", err)
	}
}

func TestMinimizeCrashers(t *testing.T) {
	cfg := testConfig(t)
	cfg.MinimizeCrashers = time.Minute
	f := newFuzzer(t, cfg)
	if got, _ := f.Evaluate(context.Background(), []byte("abc\x00\x01\x02 trailing garbage")); got != fuzzer.NewCrasher {
		t.Fatalf("got %v", got)
	}
	rec := f.Crashers().Records()[0]
	if string(rec.Data) != "abc" {
		t.Fatalf("crasher minimized to %q", rec.Data)
	}
	data, err := ioutil.ReadFile(f.Crashers().Path(rec))
	if err != nil || string(data) != "abc" {
		t.Fatalf("stored file holds %q, %v", data, err)
	}
}

type recorder struct {
	mu     sync.Mutex
	events []fuzzer.Stats
}

func (r *recorder) Display(s fuzzer.Stats) {
	r.mu.Lock()
	r.events = append(r.events, s)
	r.mu.Unlock()
}

func TestRunIterations(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxIterations = 500
	rec := new(recorder)
	f := newFuzzer(t, cfg, rec)
	if f.State() != fuzzer.StateIdle {
		t.Fatalf("new fuzzer in state %v", f.State())
	}
	if err := f.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.State() != fuzzer.StateStopped {
		t.Fatalf("state %v after Run", f.State())
	}
	if f.Corpus().Len() == 0 {
		t.Fatalf("empty corpus after seeding")
	}
	last := rec.events[len(rec.events)-1]
	if last.Event != fuzzer.EventFinal || last.Iteration != 500 {
		t.Fatalf("last event %v at iteration %v", last.Event, last.Iteration)
	}
	if last.Execs < 500 {
		t.Fatalf("%v execs for 500 iterations", last.Execs)
	}
	if err := f.Run(context.Background()); err == nil {
		t.Fatalf("second Run succeeded")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFuzzer(t, testConfig(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if got := f.Stats(fuzzer.EventFinal).Iteration; got != 0 {
		t.Fatalf("ran %v iterations after cancellation", got)
	}
	// Seeding still ran.
	if f.Corpus().Len() == 0 {
		t.Fatalf("empty corpus")
	}
}

func TestRunFindsCrash(t *testing.T) {
	if testing.Short() {
		t.Skip("long fuzzing session")
	}
	cfg := testConfig(t)
	cfg.MaxDuration = time.Minute
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := fuzzer.MonitorFunc(func(s fuzzer.Stats) {
		if s.Event == fuzzer.EventObjective {
			cancel()
		}
	})
	f := newFuzzer(t, cfg, stop)
	if err := f.Run(ctx); err != nil {
		t.Fatal(err)
	}
	recs := f.Crashers().Records()
	if len(recs) != 1 {
		t.Fatalf("found %v crashers in %v iterations", len(recs), f.Stats(fuzzer.EventFinal).Iteration)
	}
	if d := recs[0].Data; len(d) < 3 || string(d[:3]) != "abc" {
		t.Fatalf("crasher %q", d)
	}
	files, err := filepath.Glob(filepath.Join(cfg.CrashDir, "*"))
	if err != nil || len(files) != 2 {
		t.Fatalf("crash dir holds %v, %v", files, err)
	}
}

func TestSeedingKeepsRepeatedInputs(t *testing.T) {
	cfg := testConfig(t)
	cfg.InitialCorpusSize = 200
	cfg.InitialInputMaxLen = 1
	f := newFuzzer(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.Run(ctx); err != nil {
		t.Fatal(err)
	}
	// 200 one-byte printables cannot all differ.
	if n := f.Corpus().Len(); n != 200 {
		t.Fatalf("corpus has %v entries, want 200", n)
	}
}

func TestSeedingFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.InitialCorpusSize = 0
	err := newFuzzer(t, cfg).Run(context.Background())
	if !errors.Is(err, fuzzer.ErrGeneration) {
		t.Fatalf("got %v, want ErrGeneration", err)
	}

	cfg = testConfig(t)
	f, err := fuzzer.New(cfg, func([]byte, *coverage.Map) fuzzer.ExitKind { panic("always") })
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Run(context.Background()); !errors.Is(err, fuzzer.ErrGeneration) {
		t.Fatalf("got %v, want ErrGeneration", err)
	}
	if f.State() != fuzzer.StateStopped {
		t.Fatalf("state %v", f.State())
	}
	if n := f.Crashers().Len(); n != 1 {
		t.Fatalf("crash store has %v records", n)
	}
}

func TestNewErrors(t *testing.T) {
	cfg := testConfig(t)
	if _, err := fuzzer.New(cfg, nil); !errors.Is(err, fuzzer.ErrConfig) {
		t.Fatalf("nil harness: %v", err)
	}
	bad := cfg
	bad.StackMin, bad.StackMax = 4, 2
	if _, err := fuzzer.New(bad, baby.Harness); !errors.Is(err, fuzzer.ErrConfig) {
		t.Fatalf("bad stack range: %v", err)
	}
	file := filepath.Join(t.TempDir(), "file")
	if err := ioutil.WriteFile(file, nil, 0660); err != nil {
		t.Fatal(err)
	}
	bad = cfg
	bad.CrashDir = filepath.Join(file, "crashes")
	if _, err := fuzzer.New(bad, baby.Harness); !errors.Is(err, fuzzer.ErrCrashDir) {
		t.Fatalf("bad crash dir: %v", err)
	}
}

func TestTimeoutObjective(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	harness := func(data []byte, cover *coverage.Map) fuzzer.ExitKind {
		cover.Set(0)
		if len(data) > 0 && data[0] == 's' {
			<-release
		}
		return fuzzer.Normal
	}
	for _, hangs := range []bool{false, true} {
		cfg := testConfig(t)
		cfg.Timeout = 20 * time.Millisecond
		cfg.TimeoutsAreObjectives = hangs
		f, err := fuzzer.New(cfg, harness)
		if err != nil {
			t.Fatal(err)
		}
		got, err := f.Evaluate(context.Background(), []byte("sleep"))
		if err != nil {
			t.Fatal(err)
		}
		want := fuzzer.Discarded
		if hangs {
			want = fuzzer.NewCrasher
		}
		if got != want {
			t.Fatalf("hangs=%v: got %v, want %v", hangs, got, want)
		}
		if s := f.Stats(fuzzer.EventFinal); s.Timeouts != 1 {
			t.Fatalf("hangs=%v: %v timeouts", hangs, s.Timeouts)
		}
	}
}

func TestTimeoutDoesNotShadowCrash(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	harness := func(data []byte, cover *coverage.Map) fuzzer.ExitKind {
		if len(data) > 0 && data[0] == 's' {
			<-release
		}
		if len(data) > 0 && data[0] == 'p' {
			panic("before any point")
		}
		return fuzzer.Normal
	}
	cfg := testConfig(t)
	cfg.Timeout = 20 * time.Millisecond
	cfg.TimeoutsAreObjectives = true
	f, err := fuzzer.New(cfg, harness)
	if err != nil {
		t.Fatal(err)
	}
	steps := []struct {
		input string
		want  fuzzer.Verdict
	}{
		{"sleep", fuzzer.NewCrasher},
		{"panic", fuzzer.NewCrasher},
		{"snooze", fuzzer.DuplicateCrasher},
		{"pop", fuzzer.DuplicateCrasher},
	}
	for _, step := range steps {
		got, err := f.Evaluate(context.Background(), []byte(step.input))
		if err != nil {
			t.Fatal(err)
		}
		if got != step.want {
			t.Fatalf("%q: got %v, want %v", step.input, got, step.want)
		}
	}
	kinds := map[fuzzer.ExitKind]int{}
	for _, rec := range f.Crashers().Records() {
		kinds[rec.Kind]++
	}
	if diff := cmp.Diff(map[fuzzer.ExitKind]int{fuzzer.Timeout: 1, fuzzer.Crash: 1}, kinds); diff != "" {
		t.Fatalf("stored kinds (-want +got):\n%s", diff)
	}
}

func TestCorpusDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.CorpusDir = t.TempDir()
	f := newFuzzer(t, cfg)
	if got, _ := f.Evaluate(context.Background(), []byte("ab")); got != fuzzer.NewInput {
		t.Fatalf("got %v", got)
	}
	files, err := filepath.Glob(filepath.Join(cfg.CorpusDir, "*"))
	if err != nil || len(files) != 1 {
		t.Fatalf("corpus dir holds %v, %v", files, err)
	}

	cfg.MaxIterations = 1
	f = newFuzzer(t, cfg)
	if err := f.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !f.Corpus().Contains([]byte("ab")) {
		t.Fatalf("corpus dir entry was not loaded")
	}
}
