// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"errors"
	"fmt"
	"time"

	"github.com/bradleyjkemp/babyfuzz/coverage"
)

var (
	ErrGeneration = errors.New("failed to generate the initial corpus")
	ErrCrashDir   = errors.New("crash directory is not usable")
	ErrCrashWrite = errors.New("failed to persist crasher")
	ErrConfig     = errors.New("invalid config")
)

const (
	syncPeriod = 3 * time.Second

	defaultCrashDir = "./crashes"
)

// Config controls a fuzzing session. The zero value is not usable; start
// from DefaultConfig.
type Config struct {
	// Seed of the random source. Zero means time based.
	Seed int64

	InitialCorpusSize  int
	InitialInputMaxLen int

	// Number of stacked mutations per candidate, drawn from [StackMin, StackMax].
	StackMin int
	StackMax int

	// Wall-clock budget for one harness call. Zero disables the check.
	Timeout time.Duration
	// Report timeouts as objectives next to crashes.
	TimeoutsAreObjectives bool

	CrashDir  string
	CorpusDir string // optional mirror of the in-memory corpus

	MapSize int
	// Rate an input interesting when it reaches a new hit-count bucket of a
	// known point. Such inputs add no point to the fingerprint.
	CoverCounters bool
	MaxInputLen   int

	// Stop conditions. Zero means unbounded.
	MaxIterations uint64
	MaxDuration   time.Duration

	ReportPeriod time.Duration

	// Time budget for shrinking each new crasher. Zero disables minimization.
	MinimizeCrashers time.Duration
}

func DefaultConfig() Config {
	return Config{
		InitialCorpusSize:  8,
		InitialInputMaxLen: 32,
		StackMin:           1,
		StackMax:           16,
		CrashDir:           defaultCrashDir,
		MapSize:            coverage.Size,
		MaxInputLen:        coverage.MaxInputSize,
		ReportPeriod:       syncPeriod,
	}
}

func (cfg *Config) Validate() error {
	switch {
	case cfg.StackMin < 1 || cfg.StackMax < cfg.StackMin:
		return fmt.Errorf("%w: mutation stack depth [%v, %v]", ErrConfig, cfg.StackMin, cfg.StackMax)
	case cfg.MapSize <= 0:
		return fmt.Errorf("%w: map size %v", ErrConfig, cfg.MapSize)
	case cfg.MaxInputLen <= 0 || cfg.MaxInputLen > coverage.MaxInputSize:
		return fmt.Errorf("%w: max input length %v", ErrConfig, cfg.MaxInputLen)
	case cfg.InitialInputMaxLen > cfg.MaxInputLen:
		return fmt.Errorf("%w: initial input length %v exceeds max input length %v",
			ErrConfig, cfg.InitialInputMaxLen, cfg.MaxInputLen)
	case cfg.CrashDir == "":
		return fmt.Errorf("%w: empty crash dir", ErrConfig)
	case cfg.Timeout < 0 || cfg.MaxDuration < 0 || cfg.MinimizeCrashers < 0:
		return fmt.Errorf("%w: negative duration", ErrConfig)
	}
	if cfg.ReportPeriod <= 0 {
		cfg.ReportPeriod = syncPeriod
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return nil
}
