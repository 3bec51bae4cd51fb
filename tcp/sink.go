// SPDX-License-Identifier: GPL-3.0

package tcp

import (
	"sort"
	"time"

	"dumbbell/netem"
	"dumbbell/sim"
)

// delAckTimeout bounds how long an ACK may be withheld.
const delAckTimeout = sim.Clock(200 * time.Millisecond)

// Sink is a packet sink: the receiving side of one bulk connection.  It
// acknowledges in-order data with delayed ACKs, acknowledges out-of-order
// data immediately (producing the duplicate ACKs the sender's fast
// retransmit needs), and echoes CE marks as ECE.  Out-of-order data is held
// in a reorder buffer bounded by the receive buffer size.
type Sink struct {
	sim  *sim.Sim
	node *netem.Node
	addr string
	port uint16

	delAck  int
	rcvBuf  sim.Bytes
	next    netem.Seq
	buf     []netem.Packet
	pending int
	ackGen  uint64
	echoECE bool
	last    netem.Packet
	stopped bool

	totalRx sim.Bytes
}

// NewSink returns a Sink listening on the given address and port, with the
// delayed ACK count and receive buffer size taken from the simulator's
// defaults.
func NewSink(node *netem.Node, addr string, port uint16) (*Sink, error) {
	d := node.Sim().Defaults
	k := &Sink{
		sim:    node.Sim(),
		node:   node,
		addr:   addr,
		port:   port,
		delAck: d.Int(sim.TCPDelAckCount),
		rcvBuf: d.Bytes(sim.TCPRcvBufSize),
	}
	if err := node.Bind(port, k); err != nil {
		return nil, err
	}
	return k, nil
}

// TotalRx returns the payload bytes received so far.  Each segment counts
// once; retransmitted duplicates add nothing.
func (k *Sink) TotalRx() sim.Bytes {
	return k.totalRx
}

// Stop ceases acknowledgement of further data.
func (k *Sink) Stop() {
	k.stopped = true
}

// Handle implements netem.Handler.
func (k *Sink) Handle(pkt netem.Packet, n *netem.Node) {
	if k.stopped {
		return
	}
	if pkt.CE {
		k.echoECE = true
	}
	k.last = pkt
	if pkt.Seq != k.next {
		if pkt.Seq > k.next && k.insert(pkt) {
			k.totalRx += pkt.SegmentLen()
		}
		// duplicate ACK for the hole
		k.sendAck(pkt)
		return
	}
	k.totalRx += pkt.SegmentLen()
	k.next = pkt.NextSeq()
	for len(k.buf) > 0 && k.buf[0].Seq == k.next {
		k.next = k.buf[0].NextSeq()
		k.buf = k.buf[1:]
	}
	k.pending++
	if k.pending >= k.delAck || k.delAck <= 1 {
		k.sendAck(pkt)
		return
	}
	k.scheduleAck(pkt)
}

// insert buffers an out-of-order packet in sequence order, reporting whether
// it was newly buffered.  Duplicates and packets beyond the receive buffer
// are refused.
func (k *Sink) insert(pkt netem.Packet) bool {
	if sim.Bytes(len(k.buf))*pkt.SegmentLen() >= k.rcvBuf {
		return false
	}
	i := sort.Search(len(k.buf), func(i int) bool {
		return k.buf[i].Seq >= pkt.Seq
	})
	if i < len(k.buf) && k.buf[i].Seq == pkt.Seq {
		return false
	}
	k.buf = append(k.buf[:i], append([]netem.Packet{pkt}, k.buf[i:]...)...)
	return true
}

// sendAck acknowledges everything received in order so far.
func (k *Sink) sendAck(pkt netem.Packet) {
	k.pending = 0
	k.ackGen++
	k.node.Send(netem.Packet{
		Len:     netem.HeaderLen,
		Src:     k.addr,
		Dst:     pkt.Src,
		ECT:     pkt.ECT,
		SrcPort: k.port,
		DstPort: pkt.SrcPort,
		Flow:    pkt.Flow,
		AckNum:  k.next,
		ACK:     true,
		ECE:     k.echoECE,
		Sent:    k.sim.Now(),
	})
	k.echoECE = false
}

// scheduleAck arms the delayed ACK timer.  A later ACK supersedes it via the
// generation counter.
func (k *Sink) scheduleAck(pkt netem.Packet) {
	gen := k.ackGen
	k.sim.Schedule(delAckTimeout, func() {
		if gen != k.ackGen || k.pending == 0 || k.stopped {
			return
		}
		k.sendAck(k.last)
	})
}
