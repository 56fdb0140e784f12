// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/bradleyjkemp/babyfuzz/coverage"
)

type State int32

const (
	StateIdle State = iota
	StateSeeding
	StateIterating
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSeeding:
		return "seeding"
	case StateIterating:
		return "iterating"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Verdict is what happened to one evaluated candidate.
type Verdict int

const (
	Discarded Verdict = iota
	NewInput
	NewCrasher
	DuplicateCrasher
)

func (v Verdict) String() string {
	switch v {
	case Discarded:
		return "discarded"
	case NewInput:
		return "new input"
	case NewCrasher:
		return "new crasher"
	case DuplicateCrasher:
		return "duplicate crasher"
	}
	return fmt.Sprintf("Verdict(%d)", int(v))
}

// Fuzzer is the engine state. It is driven by a single goroutine; only
// State is safe to call while Run is in progress.
type Fuzzer struct {
	cfg Config

	r         *rand.Rand
	gen       Generator
	mutator   *Mutator
	exec      *Executor
	sched     Scheduler
	maxCover  *coverage.MaxCover
	feedback  Feedback
	objective Feedback

	corpus    *Corpus
	corpusDir *PersistentSet
	crashers  *CrashStore

	monitors []Monitor
	events   *dispatcher

	state     int32
	iteration uint64
	timeouts  uint64

	startTime        time.Time
	lastNewInputTime time.Time
	lastSync         time.Time
}

// New checks cfg and opens the crash directory. Errors returned from New are
// fatal startup errors.
func New(cfg Config, harness Harness, monitors ...Monitor) (*Fuzzer, error) {
	if harness == nil {
		return nil, fmt.Errorf("%w: nil harness", ErrConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	crashers, err := OpenCrashStore(cfg.CrashDir)
	if err != nil {
		return nil, err
	}
	var corpusDir *PersistentSet
	if cfg.CorpusDir != "" {
		if corpusDir, err = newPersistentSet(cfg.CorpusDir); err != nil {
			return nil, fmt.Errorf("%w: corpus dir: %v", ErrConfig, err)
		}
	}
	glog.V(1).Infof("fuzzer seed %v, crash dir %v", cfg.Seed, cfg.CrashDir)

	r := rand.New(rand.NewSource(cfg.Seed))
	maxCover := coverage.NewMaxCover(cfg.MapSize, cfg.CoverCounters)
	f := &Fuzzer{
		cfg:       cfg,
		r:         r,
		gen:       RandPrintables{MaxSize: cfg.InitialInputMaxLen},
		mutator:   newMutator(r, cfg),
		exec:      NewExecutor(harness, cfg.MapSize, cfg.Timeout),
		sched:     new(QueueScheduler),
		maxCover:  maxCover,
		feedback:  NewMaxMapFeedback(maxCover),
		objective: objectiveFor(cfg),
		corpus:    NewCorpus(),
		corpusDir: corpusDir,
		crashers:  crashers,
		monitors:  monitors,
	}
	return f, nil
}

func (f *Fuzzer) State() State { return State(atomic.LoadInt32(&f.state)) }

func (f *Fuzzer) setState(s State) { atomic.StoreInt32(&f.state, int32(s)) }

func (f *Fuzzer) Config() Config { return f.cfg }

func (f *Fuzzer) Corpus() *Corpus { return f.corpus }

func (f *Fuzzer) Crashers() *CrashStore { return f.crashers }

// Run seeds the corpus and fuzzes until ctx is done, a configured budget
// runs out or a fatal error occurs. A stopped fuzzer cannot be restarted.
func (f *Fuzzer) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&f.state, int32(StateIdle), int32(StateSeeding)) {
		return errors.New("fuzzer has already been run")
	}
	f.startTime = time.Now()
	f.lastNewInputTime = f.startTime
	f.lastSync = f.startTime
	f.events = newDispatcher(f.monitors)
	defer func() {
		f.setState(StateStopped)
		f.events.pushFinal(f.Stats(EventFinal))
		f.events.close()
		if n := f.events.Dropped(); n != 0 {
			glog.V(1).Infof("dropped %v monitor events", n)
		}
	}()

	if err := f.seed(); err != nil {
		return err
	}
	glog.Infof("seeded corpus with %v inputs, cover %v", f.corpus.Len(), f.maxCover.Covered())

	f.setState(StateIterating)
	var deadline time.Time
	if f.cfg.MaxDuration > 0 {
		deadline = f.startTime.Add(f.cfg.MaxDuration)
	}
	for {
		if ctx.Err() != nil {
			glog.V(1).Infof("stop requested after %v iterations", f.iteration)
			return nil
		}
		if f.cfg.MaxIterations != 0 && f.iteration >= f.cfg.MaxIterations {
			return nil
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return nil
		}
		if err := f.fuzzOne(ctx); err != nil {
			return err
		}
		f.heartbeat()
	}
}

// seed runs every generated input, plus the inputs found in the corpus
// directory, and adds them to the corpus without asking the feedback.
// Seeds that hit the objective are stored as crashers instead. Corpus
// directory inputs that repeat a generated one are skipped.
func (f *Fuzzer) seed() error {
	inputs, err := GenerateInputs(f.gen, f.r, f.cfg.InitialCorpusSize)
	if err != nil {
		return err
	}
	generated := len(inputs)
	if f.corpusDir != nil {
		sigs := make([]Sig, 0, len(f.corpusDir.m))
		for sig := range f.corpusDir.m {
			sigs = append(sigs, sig)
		}
		// Map order is random, the seed order must not be.
		sort.Slice(sigs, func(i, j int) bool { return bytes.Compare(sigs[i][:], sigs[j][:]) < 0 })
		for _, sig := range sigs {
			inputs = append(inputs, f.corpusDir.m[sig])
		}
		glog.V(1).Infof("loaded %v inputs from %v", len(sigs), f.corpusDir.dir)
	}

	for i, in := range inputs {
		if len(in) > f.cfg.MaxInputLen {
			in = in[:f.cfg.MaxInputLen]
		}
		// Generated inputs are always added, even repeated ones.
		if i >= generated && f.corpus.Contains(in) {
			glog.V(1).Infof("corpus dir input %v is already in the corpus", hash(in))
			continue
		}
		res := f.exec.Execute(in)
		cover := f.exec.Cover()
		if f.objective.Evaluate(res.Kind, cover) {
			if _, err := f.noteCrasher(context.Background(), in, res, cover.Fingerprint()); err != nil {
				return err
			}
			continue
		}
		fp := cover.Fingerprint()
		f.maxCover.Merge(cover)
		f.addToCorpus(in, fp)
	}
	if f.corpus.Len() == 0 {
		return fmt.Errorf("%w: all %v seed inputs are objectives", ErrGeneration, len(inputs))
	}
	return nil
}

func (f *Fuzzer) fuzzOne(ctx context.Context) error {
	f.iteration++
	id := f.sched.Next(f.corpus)
	candidate := f.mutator.Mutate(f.corpus.Get(id).Data, f.corpus)
	_, err := f.Evaluate(ctx, candidate)
	return err
}

// Evaluate executes data once and routes it to the crash store or the corpus.
// An objective never enters the corpus. The returned error is fatal.
func (f *Fuzzer) Evaluate(ctx context.Context, data []byte) (Verdict, error) {
	res := f.exec.Execute(data)
	if res.Kind == Timeout {
		f.timeouts++
		if glog.V(1) {
			glog.Infof("hanger [%v]%q, %v harness goroutines abandoned", len(data), data, f.exec.Abandoned())
		}
	}
	cover := f.exec.Cover()
	if f.objective.Evaluate(res.Kind, cover) {
		return f.noteCrasher(ctx, data, res, cover.Fingerprint())
	}
	if f.feedback.Evaluate(res.Kind, cover) {
		f.addToCorpus(data, cover.Fingerprint())
		return NewInput, nil
	}
	return Discarded, nil
}

func (f *Fuzzer) addToCorpus(data []byte, fp coverage.Fingerprint) {
	id := f.corpus.Add(data, fp, f.iteration)
	f.lastNewInputTime = time.Now()
	if glog.V(2) {
		glog.Infof("new input #%v [%v]%q cover=%v", id, len(data), data, fp)
	}
	if f.corpusDir != nil {
		if _, err := f.corpusDir.add(data); err != nil {
			glog.Warningf("failed to write input to corpus dir: %v", err)
		}
	}
	if f.State() == StateIterating {
		f.events.push(f.Stats(EventTestcase))
	}
}

func (f *Fuzzer) noteCrasher(ctx context.Context, data []byte, res Outcome, fp coverage.Fingerprint) (Verdict, error) {
	if f.crashers.Known(res.Kind, fp) {
		if glog.V(2) {
			glog.Infof("duplicate %v %v", res.Kind, fp)
		}
		return DuplicateCrasher, nil
	}
	if f.cfg.MinimizeCrashers > 0 && res.Kind == Crash {
		data, res = f.minimizeCrasher(ctx, data, res, fp)
	}
	rec := CrashRecord{
		Data:        data,
		Fingerprint: fp,
		Iteration:   f.iteration,
		Kind:        res.Kind,
		Output:      res.Output,
		Suppression: extractSuppression(res.Output),
	}
	added, err := f.crashers.Add(rec)
	if err != nil {
		return DuplicateCrasher, fmt.Errorf("iteration %v: %w", f.iteration, err)
	}
	if !added {
		return DuplicateCrasher, nil
	}
	glog.Infof("new %v at iteration %v: %v", res.Kind, f.iteration, f.crashers.Path(rec))
	f.events.push(f.Stats(EventObjective))
	return NewCrasher, nil
}

// minimizeCrasher shrinks data while it keeps failing the same way and
// returns the shortest reproducer with its outcome.
func (f *Fuzzer) minimizeCrasher(ctx context.Context, data []byte, res Outcome, fp coverage.Fingerprint) ([]byte, Outcome) {
	shrunk := minimizeInput(ctx, data, f.cfg.MinimizeCrashers, func(candidate []byte) bool {
		r := f.exec.Execute(candidate)
		return r.Kind == res.Kind && fp.Equal(f.exec.Cover().Fingerprint())
	})
	if len(shrunk) == len(data) {
		return data, res
	}
	r := f.exec.Execute(shrunk)
	if r.Kind != res.Kind || !fp.Equal(f.exec.Cover().Fingerprint()) {
		// Flaky harness.
		return data, res
	}
	glog.V(1).Infof("minimized crasher from %v to %v bytes", len(data), len(shrunk))
	return shrunk, r
}

func (f *Fuzzer) heartbeat() {
	if time.Since(f.lastSync) < f.cfg.ReportPeriod {
		return
	}
	f.lastSync = time.Now()
	f.events.push(f.Stats(EventHeartbeat))
}

// Stats returns a progress snapshot. It must not be called concurrently with Run.
func (f *Fuzzer) Stats(ev Event) Stats {
	uptime := time.Since(f.startTime)
	if f.startTime.IsZero() {
		uptime = 0
	}
	execs := f.exec.Execs()
	s := Stats{
		Event:            ev,
		Iteration:        f.iteration,
		Corpus:           uint64(f.corpus.Len()),
		Crashers:         uint64(f.crashers.Len()),
		Timeouts:         f.timeouts,
		Execs:            execs,
		Cover:            uint64(f.maxCover.Covered()),
		StartTime:        f.startTime,
		LastNewInputTime: f.lastNewInputTime,
		Uptime:           uptime,
	}
	if uptime > 0 {
		s.ExecsPerSec = float64(execs) / uptime.Seconds()
	}
	return s
}
