// SPDX-License-Identifier: GPL-3.0

// Package netem provides the network model: packets, nodes, point-to-point
// interfaces with rate and propagation delay, bottleneck queue disciplines,
// and the flow monitor that counts per-flow bytes.
package netem

import (
	"dumbbell/sim"
)

// FlowID identifies an end-to-end flow within a run.
type FlowID int

// Seq is a TCP sequence number, in segments.
type Seq int64

// HeaderLen approximates the IP and TCP header overhead of a segment.
const HeaderLen sim.Bytes = 40

// Packet represents a network packet in the simulation, which always includes
// an approximation of a TCP segment.
type Packet struct {
	// IP fields
	Len sim.Bytes
	Src string
	Dst string
	ECT bool
	CE  bool

	// TCP segment fields
	SrcPort uint16
	DstPort uint16
	Flow    FlowID
	Seq     Seq
	AckNum  Seq
	SYN     bool
	ACK     bool
	ECE     bool
	Sent    sim.Clock

	// AQM fields
	Enqueue sim.Clock
}

// SegmentLen returns the size of the payload (IP length minus header bytes).
func (p Packet) SegmentLen() sim.Bytes {
	if p.Len < HeaderLen {
		return 0
	}
	return p.Len - HeaderLen
}

// NextSeq returns the next expected sequence number after this Packet.
func (p Packet) NextSeq() Seq {
	if p.SYN || p.SegmentLen() > 0 {
		return p.Seq + 1
	}
	return p.Seq
}
