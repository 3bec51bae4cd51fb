// SPDX-License-Identifier: GPL-3.0

package netem

import (
	"dumbbell/sim"
)

// Tap observes packets as they begin transmission on an interface, for
// packet capture.
type Tap func(pkt Packet, now sim.Clock)

// Iface is one egress interface of a Node: a point-to-point attachment with
// a rate, a propagation delay, a queue discipline, and a peer on the far end.
// A packet handed to Transmit sits in the queue discipline until the device
// below it has room, serializes at the interface rate, then arrives at the
// peer one propagation delay later.  The device capacity comes from the
// device.queue attribute; at the default of one packet, the device holds only
// the packet being serialized, so queueing happens in the discipline where it
// can be observed.
type Iface struct {
	name    string
	addr    string
	rate    sim.Bitrate
	delay   sim.Clock
	qdisc   QueueDisc
	peer    *Node
	sim     *sim.Sim
	devMax  int
	dev     []Packet
	inDev   int
	busy    bool
	tap     Tap
	txBytes sim.Bytes
}

// NewIface returns a new Iface, with the device capacity taken from the
// simulator's defaults.
func NewIface(name, addr string, rate sim.Bitrate, delay sim.Clock,
	qdisc QueueDisc, s *sim.Sim) *Iface {
	devMax := s.Defaults.Int(sim.DeviceQueue)
	if devMax < 1 {
		devMax = 1
	}
	return &Iface{
		name,   // name
		addr,   // addr
		rate,   // rate
		delay,  // delay
		qdisc,  // qdisc
		nil,    // peer
		s,      // sim
		devMax, // devMax
		nil,    // dev
		0,      // inDev
		false,  // busy
		nil,    // tap
		0,      // txBytes
	}
}

// Name returns the interface name.
func (i *Iface) Name() string {
	return i.name
}

// Addr returns the interface address.
func (i *Iface) Addr() string {
	return i.addr
}

// Qdisc returns the installed queue discipline.
func (i *Iface) Qdisc() QueueDisc {
	return i.qdisc
}

// SetTap installs a transmit observer.
func (i *Iface) SetTap(tap Tap) {
	i.tap = tap
}

// connect attaches the far-end node.
func (i *Iface) connect(peer *Node) {
	i.peer = peer
}

// Transmit queues a packet for transmission.  Packets rejected by the queue
// discipline are silently dropped, as on a real device.
func (i *Iface) Transmit(pkt Packet) {
	if !i.qdisc.Enqueue(pkt, i.sim.Now()) {
		return
	}
	i.fill()
}

// fill admits packets from the queue discipline while the device has room,
// then starts the wire if it is idle.  A device slot stays held from
// admission until its packet finishes serializing.
func (i *Iface) fill() {
	for i.inDev < i.devMax {
		pkt, ok := i.qdisc.Dequeue(i.sim.Now())
		if !ok {
			break
		}
		i.dev = append(i.dev, pkt)
		i.inDev++
	}
	if !i.busy {
		i.kick()
	}
}

// kick serializes the next device packet and schedules its delivery.  The
// next serialization starts when this one ends, while the packet is still
// propagating.
func (i *Iface) kick() {
	if len(i.dev) == 0 {
		i.busy = false
		return
	}
	var pkt Packet
	pkt, i.dev = i.dev[0], i.dev[1:]
	i.busy = true
	if i.tap != nil {
		i.tap(pkt, i.sim.Now())
	}
	i.txBytes += pkt.Len
	i.sim.Schedule(sim.TransferTime(i.rate, pkt.Len), func() {
		i.sim.Schedule(i.delay, func() {
			i.peer.Receive(pkt)
		})
		i.inDev--
		i.busy = false
		i.fill()
	})
}
