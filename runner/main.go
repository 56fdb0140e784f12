// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Command runner fuzzes the baby example harness.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	"net/http"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"syscall"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/bradleyjkemp/babyfuzz/examples/baby"
	"github.com/bradleyjkemp/babyfuzz/fuzzer"
	"github.com/bradleyjkemp/babyfuzz/monitor"
)

const shutdownGrace = 10 * time.Second

var (
	flagSeed          = flag.Int64("seed", 0, "random seed (0 means time based)")
	flagInitial       = flag.Int("initial", 8, "number of generated seed inputs")
	flagInitialLen    = flag.Int("initiallen", 32, "max length of generated seed inputs")
	flagStackMin      = flag.Int("stackmin", 1, "min number of stacked mutations")
	flagStackMax      = flag.Int("stackmax", 16, "max number of stacked mutations")
	flagTimeout       = flag.Duration("timeout", 0, "time limit for one execution (0 disables)")
	flagHangs         = flag.Bool("hangs", false, "save timeouts as crashers")
	flagCrashDir      = flag.String("crashdir", "./crashes", "dir with crashers")
	flagCorpusDir     = flag.String("corpusdir", "", "dir to mirror the corpus to and load seeds from")
	flagIterations    = flag.Uint64("iterations", 0, "stop after this many iterations (0 means unbounded)")
	flagDuration      = flag.Duration("duration", 0, "stop after this long (0 means unbounded)")
	flagMinimize      = flag.Duration("minimize", 0, "time limit for crasher minimization (0 disables)")
	flagCoverCounters = flag.Bool("covercounters", false, "also keep inputs that only reach a new hit count bucket")
	flagHTTP          = flag.String("http", "", "HTTP server listen address")
	flagTerm          = flag.Bool("term", false, "redraw a status screen instead of logging stats")
	flagReplay        = flag.String("replay", "", "run the harness once on this file and exit")
)

func main() {
	flag.Parse()
	defer glog.Flush()

	cfg := baby.Config()
	cfg.Seed = *flagSeed
	cfg.InitialCorpusSize = *flagInitial
	cfg.InitialInputMaxLen = *flagInitialLen
	cfg.StackMin = *flagStackMin
	cfg.StackMax = *flagStackMax
	cfg.Timeout = *flagTimeout
	cfg.TimeoutsAreObjectives = *flagHangs
	cfg.CrashDir = expandHomeDir(*flagCrashDir)
	cfg.CorpusDir = expandHomeDir(*flagCorpusDir)
	cfg.MaxIterations = *flagIterations
	cfg.MaxDuration = *flagDuration
	cfg.MinimizeCrashers = *flagMinimize
	cfg.CoverCounters = *flagCoverCounters

	if *flagReplay != "" {
		replay(cfg, *flagReplay)
		return
	}

	lowerPriority()

	var monitors []fuzzer.Monitor
	if *flagTerm {
		monitors = append(monitors, &monitor.Terminal{Target: "baby", CrashDir: cfg.CrashDir})
	} else {
		monitors = append(monitors, monitor.Log{})
	}
	var web *monitor.HTTP
	if *flagHTTP != "" {
		web = monitor.NewHTTP()
		monitors = append(monitors, web)
	}

	f, err := fuzzer.New(cfg, baby.Harness, monitors...)
	if err != nil {
		glog.Exitf("failed to start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handleSignals(cancel)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return f.Run(gctx)
	})
	if web != nil {
		srv := &http.Server{Addr: *flagHTTP, Handler: web.Handler()}
		g.Go(func() error {
			glog.Infof("serving statistics on http://%s/", *flagHTTP)
			if err := srv.ListenAndServe(); err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			// Event streams never go idle, so Shutdown would wait forever.
			return srv.Close()
		})
	}
	err = g.Wait()

	monitor.Summary(os.Stdout, f.Stats(fuzzer.EventFinal), f.Corpus(), f.Crashers())
	if err != nil {
		glog.Exitf("fuzzing stopped: %v", err)
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		glog.Info("shutting down...")
		cancel()

		// If this hasn't terminated after a delay then exit with an error.
		// A second signal exits right away.
		select {
		case <-sigChan:
		case <-time.After(shutdownGrace):
		}
		glog.Exitf("failed to stop within %v", shutdownGrace)
	}()
}

// replay runs one input outside of a session, for checking crashers.
func replay(cfg fuzzer.Config, path string) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		glog.Exitf("failed to read input: %v", err)
	}
	exec := fuzzer.NewExecutor(baby.Harness, cfg.MapSize, cfg.Timeout)
	res := exec.Execute(data)
	fmt.Printf("%v: %v after %v, cover %v\n", path, res.Kind, res.Duration, exec.Cover().Fingerprint())
	if len(res.Output) != 0 {
		fmt.Printf("\n%s\n", res.Output)
	}
	if res.Kind != fuzzer.Normal {
		glog.Flush()
		os.Exit(2)
	}
}

// expandHomeDir expands the tilde sign and replaces it
// with current users home directory and returns it.
func expandHomeDir(path string) string {
	if len(path) > 2 && path[:2] == "~/" {
		usr, _ := user.Current()
		path = filepath.Join(usr.HomeDir, path[2:])
	}
	return path
}
