// SPDX-License-Identifier: GPL-3.0

package tcp

import (
	"dumbbell/netem"
	"dumbbell/sim"
)

// BulkSend is a throughput-maximizing application: it opens one socket at
// its start time and keeps the window full until its stop time.  The
// transfer size is unbounded.
type BulkSend struct {
	node    *netem.Node
	flow    netem.FlowID
	src     string
	dst     string
	srcPort uint16
	dstPort uint16
	sock    *Socket
}

// NewBulkSend returns a BulkSend from src to (dst, dstPort).
func NewBulkSend(node *netem.Node, flow netem.FlowID, src, dst string,
	srcPort, dstPort uint16) *BulkSend {
	return &BulkSend{
		node,    // node
		flow,    // flow
		src,     // src
		dst,     // dst
		srcPort, // srcPort
		dstPort, // dstPort
		nil,     // sock
	}
}

// Install schedules the application's start and stop.  The socket does not
// exist until the start time fires.
func (b *BulkSend) Install(s *sim.Sim, start, stop sim.Clock) {
	s.ScheduleAt(start, func() {
		sock, err := NewSocket(b.node, b.flow, b.src, b.dst,
			b.srcPort, b.dstPort)
		if err != nil {
			panic(err) // defaults validated before the run
		}
		b.sock = sock
		if err = sock.Start(); err != nil {
			panic(err)
		}
	})
	s.ScheduleAt(stop, func() {
		if b.sock != nil {
			b.sock.Stop()
		}
	})
}

// Socket returns the application's socket, or nil before the start time.
func (b *BulkSend) Socket() *Socket {
	return b.sock
}
