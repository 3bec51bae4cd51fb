// SPDX-License-Identifier: GPL-3.0

package harness

import (
	"time"

	"github.com/pkg/errors"

	"dumbbell/netem"
	"dumbbell/sim"
	"dumbbell/tcp"
)

const (
	// BasePort is the first sink port; sender i uses BasePort + i.
	BasePort = 50000

	// AppStart is when the bulk senders begin, leaving the sinks already
	// listening from time zero.
	AppStart = sim.Clock(100 * time.Millisecond)

	// CwndTraceAttach is when the cwnd tracers attach, just after the
	// senders start so the sockets exist.
	CwndTraceAttach = AppStart + sim.Clock(time.Millisecond)
)

// TrafficSet is the installed traffic: one bulk flow per sender with a
// matching sink, and the directional flow keys registered with the monitor.
// Data flows are registered before ACK flows, so they hold the low IDs.
type TrafficSet struct {
	Apps      []*tcp.BulkSend
	Sinks     []*tcp.Sink
	DataFlows []netem.FlowKey
	AckFlows  []netem.FlowKey
}

// InstallTraffic sets up one flow per sender: port BasePort+i, bulk sender
// from AppStart to stop, sink from time zero to stop.  Ports are unique
// within the run and each sink's lifetime covers its sender's.
func InstallTraffic(s *sim.Sim, t *Topology, stop sim.Clock) (*TrafficSet,
	error) {
	set := &TrafficSet{}
	for i := 0; i < NumSenders; i++ {
		port := uint16(BasePort + i)
		sink, err := tcp.NewSink(t.Receiver, t.ReceiverAddr, port)
		if err != nil {
			return nil, errors.Wrap(err, "install sink")
		}
		s.ScheduleAt(stop, sink.Stop)
		app := tcp.NewBulkSend(t.Senders[i], netem.FlowID(i),
			t.SenderAddrs[i], t.ReceiverAddr, port, port)
		app.Install(s, AppStart, stop)
		set.Apps = append(set.Apps, app)
		set.Sinks = append(set.Sinks, sink)
		set.DataFlows = append(set.DataFlows, netem.FlowKey{
			Src:     t.SenderAddrs[i],
			Dst:     t.ReceiverAddr,
			SrcPort: port,
			DstPort: port,
		})
		set.AckFlows = append(set.AckFlows, netem.FlowKey{
			Src:     t.ReceiverAddr,
			Dst:     t.SenderAddrs[i],
			SrcPort: port,
			DstPort: port,
		})
	}
	// stable monitor IDs: data flows first, then their ACK counterparts
	for _, k := range set.DataFlows {
		t.Monitor.Register(k)
	}
	for _, k := range set.AckFlows {
		t.Monitor.Register(k)
	}
	return set, nil
}
