// SPDX-License-Identifier: GPL-3.0

package netem

import (
	"github.com/pkg/errors"

	"dumbbell/sim"
)

// A Handler receives packets delivered to a bound port.
type Handler interface {
	Handle(pkt Packet, n *Node)
}

// Node is a host or router.  Hosts originate and terminate traffic through
// bound ports; routers forward by destination address.  Routing state is
// static, computed by the topology builder before the run.
type Node struct {
	name    string
	sim     *sim.Sim
	ifaces  []*Iface
	addrs   map[string]bool
	routes  map[string]*Iface
	ports   map[uint16]Handler
	monitor *FlowMonitor
}

// NewNode returns a new Node.
func NewNode(name string, s *sim.Sim) *Node {
	return &Node{
		name,                     // name
		s,                        // sim
		make([]*Iface, 0),        // ifaces
		make(map[string]bool),    // addrs
		make(map[string]*Iface),  // routes
		make(map[uint16]Handler), // ports
		nil,                      // monitor
	}
}

// Name returns the node name.
func (n *Node) Name() string {
	return n.name
}

// Sim returns the simulator the node runs on.
func (n *Node) Sim() *sim.Sim {
	return n.sim
}

// Ifaces returns the node's interfaces, in the order added.
func (n *Node) Ifaces() []*Iface {
	return n.ifaces
}

// AddIface attaches an interface and claims its address.
func (n *Node) AddIface(i *Iface) {
	n.ifaces = append(n.ifaces, i)
	n.addrs[i.addr] = true
}

// AddRoute installs a static route: packets for dst leave through via.
func (n *Node) AddRoute(dst string, via *Iface) {
	n.routes[dst] = via
}

// SetMonitor installs the flow monitor that counts traffic originated and
// terminated at this node.
func (n *Node) SetMonitor(m *FlowMonitor) {
	n.monitor = m
}

// Bind claims a port for a handler.  Ports are unique within a run.
func (n *Node) Bind(port uint16, h Handler) error {
	if _, ok := n.ports[port]; ok {
		return errors.Errorf("%s: port %d already bound", n.name, port)
	}
	n.ports[port] = h
	return nil
}

// Owns returns whether addr belongs to this node.
func (n *Node) Owns(addr string) bool {
	return n.addrs[addr]
}

// Send originates a packet from this node.
func (n *Node) Send(pkt Packet) {
	if n.monitor != nil {
		n.monitor.CountTx(pkt, n.sim.Now())
	}
	n.forward(pkt)
}

// Receive accepts a packet from the wire, delivering it locally or
// forwarding it.
func (n *Node) Receive(pkt Packet) {
	if !n.Owns(pkt.Dst) {
		n.forward(pkt)
		return
	}
	if n.monitor != nil {
		n.monitor.CountRx(pkt, n.sim.Now())
	}
	if h, ok := n.ports[pkt.DstPort]; ok {
		h.Handle(pkt, n)
	}
}

// forward sends a packet out the route for its destination.  A missing route
// is a topology bug, and the packet is dropped.
func (n *Node) forward(pkt Packet) {
	if i, ok := n.routes[pkt.Dst]; ok {
		i.Transmit(pkt)
	}
}

// Connect wires two interfaces on two nodes as the ends of one
// point-to-point link.
func Connect(a *Node, ai *Iface, b *Node, bi *Iface) {
	a.AddIface(ai)
	b.AddIface(bi)
	ai.connect(b)
	bi.connect(a)
}
