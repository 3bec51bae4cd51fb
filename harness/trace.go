// SPDX-License-Identifier: GPL-3.0

package harness

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"dumbbell/netem"
	"dumbbell/sim"
	"dumbbell/tcp"
)

// SampleInterval is the polling period of the queue and throughput tracers.
const SampleInterval = sim.Clock(200 * time.Millisecond)

// throughputStart is when the throughput tracer takes its first sample.
// The counters are still zero then, so the first delta is zero; that first
// degenerate sample is accepted rather than suppressed.
const throughputStart = sim.Clock(time.Microsecond)

// A CancelToken stops a tracer from re-arming.  Run teardown cancels every
// tracer explicitly, so tracer lifecycles do not depend on the engine being
// torn down under them.
type CancelToken struct {
	cancelled bool
}

// Cancel marks the token cancelled.
func (t *CancelToken) Cancel() {
	t.cancelled = true
}

// Cancelled returns whether Cancel was called.
func (t *CancelToken) Cancelled() bool {
	return t.cancelled
}

// CwndTracer appends one line per congestion window change, as
// "<timeSeconds> <windowInSegments>".  It is event driven: a socket whose
// window never changes produces no samples, which is valid.
type CwndTracer struct {
	w       io.Writer
	segSize sim.Bytes
	samples int
	token   CancelToken
}

// NewCwndTracer returns a CwndTracer writing to w, converting windows from
// bytes to segments of segSize.
func NewCwndTracer(w io.Writer, segSize sim.Bytes) *CwndTracer {
	return &CwndTracer{
		w,             // w
		segSize,       // segSize
		0,             // samples
		CancelToken{}, // token
	}
}

// Attach subscribes to a socket's window changes.  The socket reference is
// captured directly; nothing is looked up by name at sample time.
func (c *CwndTracer) Attach(s *sim.Sim, sock *tcp.Socket) {
	sock.OnCwndChange(func(old, new sim.Bytes) {
		if c.token.Cancelled() {
			return
		}
		fmt.Fprintf(c.w, "%s %s\n", s.Now(),
			strconv.FormatFloat(float64(new)/float64(c.segSize),
				'f', -1, 64))
		c.samples++
	})
}

// Samples returns the number of samples written.
func (c *CwndTracer) Samples() int {
	return c.samples
}

// Cancel stops the tracer.
func (c *CwndTracer) Cancel() {
	c.token.Cancel()
}

// QueueTracer polls the bottleneck queue discipline's occupancy on a fixed
// interval, appending "<timeSeconds> <queueLengthPackets>" lines.
type QueueTracer struct {
	sim      *sim.Sim
	qdisc    netem.QueueDisc
	w        io.Writer
	interval sim.Clock
	samples  int
	token    CancelToken
}

// NewQueueTracer returns a QueueTracer reading qdisc.
func NewQueueTracer(s *sim.Sim, qdisc netem.QueueDisc,
	w io.Writer) *QueueTracer {
	return &QueueTracer{
		s,              // sim
		qdisc,          // qdisc
		w,              // w
		SampleInterval, // interval
		0,              // samples
		CancelToken{},  // token
	}
}

// Start takes the first sample at the current time and re-arms from there.
func (q *QueueTracer) Start() {
	q.sim.ScheduleNow(q.sample)
}

// sample emits one sample and re-arms, unless cancelled.
func (q *QueueTracer) sample() {
	if q.token.Cancelled() {
		return
	}
	fmt.Fprintf(q.w, "%s %d\n", q.sim.Now(), q.qdisc.Len())
	q.samples++
	q.sim.Schedule(q.interval, q.sample)
}

// Samples returns the number of samples written.
func (q *QueueTracer) Samples() int {
	return q.samples
}

// Cancel stops the tracer; a pending re-arm becomes a no-op.
func (q *QueueTracer) Cancel() {
	q.token.Cancel()
}

// A FlowCountError reports that the flow monitor does not hold the expected
// records, meaning the two-sender topology assumption has been violated.
// It is fatal for the run.
type FlowCountError struct {
	Want int
	Got  int
}

func (e *FlowCountError) Error() string {
	return fmt.Sprintf("flow monitor: want %d directional records, got %d",
		e.Want, e.Got)
}

// ThroughputTracer polls per-flow cumulative transmitted-byte counters on a
// fixed interval and appends
// "<timeSeconds>s <aggregateMbps>Mbps <flow0Mbps>Mbps <flow1Mbps>Mbps".
// Previous-counter state is keyed by flow ID, so the number of flows is
// configuration rather than a constant inside the rate computation.
type ThroughputTracer struct {
	sim      *sim.Sim
	mon      *netem.FlowMonitor
	data     []netem.FlowKey
	expect   int
	prev     map[int]sim.Bytes
	prevTime sim.Clock
	w        io.Writer
	interval sim.Clock
	samples  int
	token    CancelToken
}

// NewThroughputTracer returns a ThroughputTracer over the given data-bearing
// flows.  Each end-to-end flow contributes two directional monitor records
// (data and ACKs), so the expected record count is twice the flow count.
func NewThroughputTracer(s *sim.Sim, mon *netem.FlowMonitor,
	data []netem.FlowKey, w io.Writer) *ThroughputTracer {
	return &ThroughputTracer{
		sim:      s,
		mon:      mon,
		data:     data,
		expect:   2 * len(data),
		prev:     make(map[int]sim.Bytes),
		w:        w,
		interval: SampleInterval,
	}
}

// Validate checks the monitor's record count against the expected flow
// layout.  It runs once, before the sampling loop starts; a mismatch is a
// configuration error, not something to tolerate mid-run.
func (t *ThroughputTracer) Validate() error {
	if got := len(t.mon.Records()); got != t.expect {
		return &FlowCountError{t.expect, got}
	}
	for _, k := range t.data {
		if _, ok := t.mon.Lookup(k); !ok {
			return &FlowCountError{t.expect, 0}
		}
	}
	return nil
}

// Start schedules the first sample just after time zero, against the
// all-zero counter snapshot.
func (t *ThroughputTracer) Start() {
	t.sim.Schedule(throughputStart, t.sample)
}

// sample computes per-flow and aggregate rates from counter deltas, emits
// one line, and re-arms.
func (t *ThroughputTracer) sample() {
	if t.token.Cancelled() {
		return
	}
	now := t.sim.Now()
	elapsed := (now - t.prevTime).Micros()
	var agg float64
	rates := make([]float64, 0, len(t.data))
	for _, k := range t.data {
		f, _ := t.mon.Lookup(k)
		delta := f.TxBytes - t.prev[f.ID]
		rate := 8 * float64(delta) / elapsed
		rates = append(rates, rate)
		agg += rate
		t.prev[f.ID] = f.TxBytes
	}
	fmt.Fprintf(t.w, "%ss %sMbps", now, fmtRate(agg))
	for _, r := range rates {
		fmt.Fprintf(t.w, " %sMbps", fmtRate(r))
	}
	fmt.Fprintln(t.w)
	t.prevTime = now
	t.samples++
	t.sim.Schedule(t.interval, t.sample)
}

// fmtRate formats a rate in Mbps.
func fmtRate(r float64) string {
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// Samples returns the number of samples written.
func (t *ThroughputTracer) Samples() int {
	return t.samples
}

// Cancel stops the tracer; a pending re-arm becomes a no-op.
func (t *ThroughputTracer) Cancel() {
	t.token.Cancel()
}
