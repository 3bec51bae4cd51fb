// SPDX-License-Identifier: GPL-3.0

// Package sim provides the discrete-event core of the simulation: the virtual
// clock, the global event queue, and the attribute defaults applied to the
// network model before a run starts.
package sim

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Clock represents the virtual simulation time.
type Clock time.Duration

// ClockInfinity is the maximum Clock value.
const ClockInfinity = Clock(math.MaxInt64)

// Tick is the granularity of the simulation clock.
const Tick = Clock(1)

// Seconds returns the Clock as a floating point number of seconds.
func (c Clock) Seconds() float64 {
	return time.Duration(c).Seconds()
}

// Micros returns the Clock as a floating point number of microseconds.
func (c Clock) Micros() float64 {
	return float64(c) / float64(time.Microsecond)
}

func (c Clock) String() string {
	return fmt.Sprintf("%f", time.Duration(c).Seconds())
}

// An event is a callback scheduled to fire at a virtual time.  Events with
// equal times fire in the order they were scheduled.
type event struct {
	at  Clock
	seq uint64
	fn  func()
}

// Sim is a discrete time network simulator.  All activity runs as callbacks
// on a single event queue ordered by (time, scheduling order), so there is no
// true parallelism anywhere in a run.
type Sim struct {
	now      Clock
	seq      uint64
	queue    []event
	stop     Clock
	running  bool
	Defaults *Defaults
}

// New returns a new Sim with an empty event queue and default attributes.
func New() *Sim {
	return &Sim{
		0,             // now
		0,             // seq
		nil,           // queue
		ClockInfinity, // stop
		false,         // running
		NewDefaults(), // Defaults
	}
}

// Now returns the current virtual time.
func (s *Sim) Now() Clock {
	return s.now
}

// Schedule schedules fn to run after the given delay.
func (s *Sim) Schedule(delay Clock, fn func()) {
	if delay < 0 {
		delay = 0
	}
	s.insert(event{s.now + delay, s.seq, fn})
	s.seq++
}

// ScheduleNow schedules fn to run at the current time, after any events
// already scheduled for it.
func (s *Sim) ScheduleNow(fn func()) {
	s.Schedule(0, fn)
}

// ScheduleAt schedules fn to run at the given absolute time, which must not
// be in the virtual past.
func (s *Sim) ScheduleAt(at Clock, fn func()) {
	if at < s.now {
		at = s.now
	}
	s.insert(event{at, s.seq, fn})
	s.seq++
}

// insert adds an event to the queue, keeping it sorted by time.  sort.Search
// finds the first event strictly later than e, so equal times keep their
// scheduling order.
func (s *Sim) insert(e event) {
	i := sort.Search(len(s.queue), func(i int) bool {
		return s.queue[i].at > e.at
	})
	if i == len(s.queue) {
		s.queue = append(s.queue, e)
		return
	}
	s.queue = append(s.queue[:i+1], s.queue[i:]...)
	s.queue[i] = e
}

// Stop sets the teardown time.  Events scheduled after it are discarded when
// the run ends, without firing.
func (s *Sim) Stop(at Clock) {
	s.stop = at
}

// Run runs events in order until the queue is empty or the stop time is
// reached, then discards whatever is still pending.
func (s *Sim) Run() error {
	if s.running {
		return fmt.Errorf("sim: Run called re-entrantly")
	}
	s.running = true
	defer func() { s.running = false }()
	for len(s.queue) > 0 {
		e := s.queue[0]
		if e.at > s.stop {
			break
		}
		s.queue = s.queue[1:]
		s.now = e.at
		e.fn()
	}
	s.queue = nil
	if s.stop != ClockInfinity && s.now < s.stop {
		s.now = s.stop
	}
	return nil
}
