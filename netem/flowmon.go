// SPDX-License-Identifier: GPL-3.0

package netem

import (
	"dumbbell/sim"
)

// FlowKey identifies one direction of an end-to-end flow.
type FlowKey struct {
	Src     string
	Dst     string
	SrcPort uint16
	DstPort uint16
}

// FlowStats holds cumulative counters for one directional flow.  TxBytes is
// non-decreasing for the life of the run.
type FlowStats struct {
	ID        int
	Key       FlowKey
	TxBytes   sim.Bytes
	TxPackets int
	RxBytes   sim.Bytes
	RxPackets int
	FirstTx   sim.Clock
	LastRx    sim.Clock
}

// FlowMonitor counts bytes per directional flow.  Flow IDs are assigned in
// registration order, starting at 1, and are stable for the whole run: flows
// neither appear nor disappear once traffic setup has registered them.
type FlowMonitor struct {
	flows map[FlowKey]*FlowStats
	order []*FlowStats
}

// NewFlowMonitor returns a new FlowMonitor.
func NewFlowMonitor() *FlowMonitor {
	return &FlowMonitor{
		make(map[FlowKey]*FlowStats), // flows
		make([]*FlowStats, 0),        // order
	}
}

// Register adds a directional flow, returning its stats record.  Registering
// an existing key returns the existing record.
func (m *FlowMonitor) Register(key FlowKey) *FlowStats {
	if f, ok := m.flows[key]; ok {
		return f
	}
	f := &FlowStats{
		len(m.order) + 1, // ID
		key,              // Key
		0,                // TxBytes
		0,                // TxPackets
		0,                // RxBytes
		0,                // RxPackets
		0,                // FirstTx
		0,                // LastRx
	}
	m.flows[key] = f
	m.order = append(m.order, f)
	return f
}

// CountTx counts a packet originated at its source node.
func (m *FlowMonitor) CountTx(pkt Packet, now sim.Clock) {
	f := m.Register(FlowKey{pkt.Src, pkt.Dst, pkt.SrcPort, pkt.DstPort})
	if f.TxPackets == 0 {
		f.FirstTx = now
	}
	f.TxBytes += pkt.Len
	f.TxPackets++
}

// CountRx counts a packet delivered at its destination node.
func (m *FlowMonitor) CountRx(pkt Packet, now sim.Clock) {
	f := m.Register(FlowKey{pkt.Src, pkt.Dst, pkt.SrcPort, pkt.DstPort})
	f.RxBytes += pkt.Len
	f.RxPackets++
	f.LastRx = now
}

// Records returns all directional flow records in ID order.
func (m *FlowMonitor) Records() []*FlowStats {
	return m.order
}

// Lookup returns the record for a key, if registered.
func (m *FlowMonitor) Lookup(key FlowKey) (*FlowStats, bool) {
	f, ok := m.flows[key]
	return f, ok
}
