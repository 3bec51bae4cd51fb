// SPDX-License-Identifier: GPL-3.0

package tcp

import (
	"dumbbell/sim"
)

// Reno implements the loss-based TcpNewReno congestion control: slow start,
// congestion avoidance, window halving on fast retransmit, and a one-MSS
// restart after a retransmission timeout.  Under a drop-tail bottleneck it
// grows the queue toward capacity until loss, giving the classic sawtooth.
type Reno struct {
	caAcked   sim.Bytes
	priorCEMD sim.Clock
}

// NewReno returns a new Reno (the algorithm is NewReno, the value a Reno :).
func NewReno() *Reno {
	return &Reno{
		0, // caAcked
		0, // priorCEMD
	}
}

// Name implements CCA.
func (r *Reno) Name() string {
	return "TcpNewReno"
}

// Init implements CCA.
func (r *Reno) Init(s *Socket, now sim.Clock) {
}

// OnAck implements CCA.  Slow start grows the window by the bytes acked;
// congestion avoidance by one MSS per window acked.
func (r *Reno) OnAck(s *Socket, acked sim.Bytes, rtt sim.Clock,
	now sim.Clock) {
	if s.InSlowStart() {
		s.SetCwnd(s.Cwnd() + acked)
		return
	}
	r.caAcked += acked
	if r.caAcked >= s.Cwnd() {
		r.caAcked = 0
		s.SetCwnd(s.Cwnd() + s.MSS())
	}
}

// OnDupAckLoss implements CCA: halve on fast retransmit, inflated by the
// three duplicates.
func (r *Reno) OnDupAckLoss(s *Socket, now sim.Clock) {
	s.SetSsthresh(s.Cwnd() / 2)
	s.SetCwnd(s.Ssthresh() + 3*s.MSS())
	r.caAcked = 0
}

// OnRTO implements CCA.
func (r *Reno) OnRTO(s *Socket, now sim.Clock) {
	s.SetSsthresh(s.Cwnd() / 2)
	s.SetCwnd(s.MSS())
	r.caAcked = 0
}

// OnECE implements CCA: respond to an ECN echo like a loss, at most once
// per RTT.
func (r *Reno) OnECE(s *Socket, now sim.Clock) {
	if now-r.priorCEMD <= s.SRTT() {
		return
	}
	s.SetSsthresh(s.Cwnd() / 2)
	s.SetCwnd(s.Ssthresh())
	r.priorCEMD = now
	r.caAcked = 0
}
