// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type Event string

const (
	EventTestcase  Event = "testcase"
	EventObjective Event = "objective"
	EventHeartbeat Event = "heartbeat"
	EventFinal     Event = "final"
)

// Stats is the progress snapshot pushed to monitors.
type Stats struct {
	Event            Event
	Iteration        uint64
	Corpus           uint64
	Crashers         uint64
	Timeouts         uint64
	Execs            uint64
	ExecsPerSec      float64
	Cover            uint64
	StartTime        time.Time
	LastNewInputTime time.Time
	Uptime           time.Duration
}

func (s Stats) String() string {
	return fmt.Sprintf("[%v] iteration: %v, corpus: %v (%v ago), crashers: %v, timeouts: %v,"+
		" execs: %v (%.0f/sec), cover: %v, uptime: %v",
		s.Event, s.Iteration, s.Corpus, time.Since(s.LastNewInputTime).Truncate(time.Second),
		s.Crashers, s.Timeouts, s.Execs, s.ExecsPerSec, s.Cover, s.Uptime.Truncate(time.Second))
}

// Monitor receives progress events. It never influences the fuzzer.
type Monitor interface {
	Display(s Stats)
}

// MonitorFunc adapts a function to Monitor.
type MonitorFunc func(s Stats)

func (f MonitorFunc) Display(s Stats) { f(s) }

const eventBuffer = 64

// dispatcher delivers events to monitors on its own goroutine. Push never
// blocks: when the buffer is full the event is dropped.
type dispatcher struct {
	c        chan Stats
	monitors []Monitor
	dropped  uint64
	wg       sync.WaitGroup
}

func newDispatcher(monitors []Monitor) *dispatcher {
	d := &dispatcher{
		c:        make(chan Stats, eventBuffer),
		monitors: monitors,
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

func (d *dispatcher) loop() {
	defer d.wg.Done()
	for s := range d.c {
		for _, m := range d.monitors {
			m.Display(s)
		}
	}
}

func (d *dispatcher) push(s Stats) {
	if d == nil || len(d.monitors) == 0 {
		return
	}
	select {
	case d.c <- s:
	default:
		atomic.AddUint64(&d.dropped, 1)
	}
}

// pushFinal blocks until the event is queued. Only used on shutdown.
func (d *dispatcher) pushFinal(s Stats) {
	if len(d.monitors) == 0 {
		return
	}
	d.c <- s
}

// close delivers the pending events and waits for the monitors to return.
func (d *dispatcher) close() {
	close(d.c)
	d.wg.Wait()
}

func (d *dispatcher) Dropped() uint64 { return atomic.LoadUint64(&d.dropped) }
