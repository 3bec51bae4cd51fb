// SPDX-License-Identifier: GPL-3.0

package harness

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"dumbbell/netem"
	"dumbbell/sim"
)

// The fixed dumbbell:
//
//	sender0 ---1000Mbps/5ms--- R1 ---10Mbps/10ms--- R2 ---1000Mbps/5ms--- receiver
//	sender1 ---1000Mbps/5ms---/
//
// The R1-R2 link is the only bottleneck; every sender reaches the receiver
// through it.
const (
	NumSenders = 2

	edgeRate        = 1000 * sim.Mbps
	edgeDelay       = sim.Clock(5 * time.Millisecond)
	bottleneckRate  = 10 * sim.Mbps
	bottleneckDelay = sim.Clock(10 * time.Millisecond)

	// edge queue disciplines are effectively unconstrained
	edgeQueuePackets = 1000
)

// Topology is the built dumbbell: the nodes, the receiver's address, the
// bottleneck-side interface of the sender-side router (whose queue the
// queue sampler reads), and the flow monitor installed on the hosts.
type Topology struct {
	Senders         []*netem.Node
	R1              *netem.Node
	R2              *netem.Node
	Receiver        *netem.Node
	SenderAddrs     []string
	ReceiverAddr    string
	BottleneckIface *netem.Iface
	Monitor         *netem.FlowMonitor
	Nodes           []*netem.Node
}

// BuildTopology constructs the dumbbell with one subnet per link, installs
// the resolved queue discipline on R1's bottleneck interface, and computes
// static routes for every node.  Defaults must already be resolved.
func BuildTopology(s *sim.Sim) (*Topology, error) {
	if bottleneckRate >= edgeRate {
		return nil, errors.New("topology: bottleneck must be the smallest link")
	}
	t := &Topology{
		Monitor: netem.NewFlowMonitor(),
	}
	t.R1 = netem.NewNode("R1", s)
	t.R2 = netem.NewNode("R2", s)
	t.Receiver = netem.NewNode("receiver", s)

	// bottleneck link, subnet 10.0.0.0/24, resolved qdisc on the R1 side
	r1bn := netem.NewIface("R1-bn", "10.0.0.1", bottleneckRate,
		bottleneckDelay, newQueueDisc(s.Defaults), s)
	r2bn := netem.NewIface("R2-bn", "10.0.0.2", bottleneckRate,
		bottleneckDelay, netem.NewFifo(s.Defaults.Int(sim.QueueDiscSize)), s)
	netem.Connect(t.R1, r1bn, t.R2, r2bn)
	t.BottleneckIface = r1bn

	// sender edges, one subnet per sender: 10.0.(i+1).0/24
	var r1Edges []*netem.Iface
	for i := 0; i < NumSenders; i++ {
		n := netem.NewNode(fmt.Sprintf("sender%d", i), s)
		addr := fmt.Sprintf("10.0.%d.1", i+1)
		r1addr := fmt.Sprintf("10.0.%d.2", i+1)
		si := netem.NewIface(fmt.Sprintf("sender%d-0", i), addr,
			edgeRate, edgeDelay, netem.NewFifo(edgeQueuePackets), s)
		ri := netem.NewIface(fmt.Sprintf("R1-%d", i), r1addr,
			edgeRate, edgeDelay, netem.NewFifo(edgeQueuePackets), s)
		netem.Connect(n, si, t.R1, ri)
		n.SetMonitor(t.Monitor)
		t.Senders = append(t.Senders, n)
		t.SenderAddrs = append(t.SenderAddrs, addr)
		r1Edges = append(r1Edges, ri)
	}

	// receiver edge, subnet 10.0.3.0/24
	r2e := netem.NewIface("R2-e", "10.0.3.1", edgeRate, edgeDelay,
		netem.NewFifo(edgeQueuePackets), s)
	rcv := netem.NewIface("receiver-0", "10.0.3.2", edgeRate, edgeDelay,
		netem.NewFifo(edgeQueuePackets), s)
	netem.Connect(t.R2, r2e, t.Receiver, rcv)
	t.ReceiverAddr = "10.0.3.2"
	t.Receiver.SetMonitor(t.Monitor)

	// populate routing state
	for _, n := range t.Senders {
		n.AddRoute(t.ReceiverAddr, n.Ifaces()[0])
	}
	for i, addr := range t.SenderAddrs {
		t.R1.AddRoute(addr, r1Edges[i])
		t.R2.AddRoute(addr, r2bn)
		t.Receiver.AddRoute(addr, rcv)
	}
	t.R1.AddRoute(t.ReceiverAddr, r1bn)
	t.R2.AddRoute(t.ReceiverAddr, r2e)

	t.Nodes = append(t.Senders, t.R1, t.R2, t.Receiver)
	return t, nil
}

// newQueueDisc constructs the resolved bottleneck queue discipline.  CoDel
// parameters follow the usual 5 ms target and 100 ms interval.
func newQueueDisc(d *sim.Defaults) netem.QueueDisc {
	size := d.Int(sim.QueueDiscSize)
	switch d.String(sim.QueueDiscType) {
	case FqCoDelQueueDisc:
		return netem.NewCoDel(size,
			sim.Clock(5*time.Millisecond),
			sim.Clock(100*time.Millisecond),
			d.Bool(sim.QueueDiscEcn))
	default:
		return netem.NewFifo(size)
	}
}
