// SPDX-License-Identifier: GPL-3.0

package tcp

import (
	"time"

	"dumbbell/netem"
	"dumbbell/sim"
)

// RTT estimator constants, per RFC 6298.
const (
	rttAlpha = 0.125
	rttBeta  = 0.25
	minRTO   = sim.Clock(200 * time.Millisecond)
	maxRTO   = sim.Clock(60 * time.Second)
)

// ssthreshInfinity leaves slow start uncapped until the first loss.
const ssthreshInfinity = sim.Bytes(1 << 40)

// CwndCallback observes congestion window changes, with the old and new
// window in bytes.
type CwndCallback func(old, new sim.Bytes)

// Socket is the sending side of one bulk TCP connection.  Sequence numbers
// count segments; every data packet carries one MSS of payload.
type Socket struct {
	sim     *sim.Sim
	node    *netem.Node
	flow    netem.FlowID
	src     string
	dst     string
	srcPort uint16
	dstPort uint16

	mss    sim.Bytes
	sndBuf sim.Bytes
	ecn    bool
	cca    CCA

	cwnd     sim.Bytes
	ssthresh sim.Bytes
	sndNxt   netem.Seq
	sndUna   netem.Seq
	inFlight sim.Bytes
	sentAt   map[netem.Seq]sim.Clock

	srtt   sim.Clock
	rttvar sim.Clock
	minRtt sim.Clock
	rto    sim.Clock
	rtoGen uint64

	dupAcks    int
	inRecovery bool
	recover    netem.Seq

	delivered sim.Bytes
	started   bool
	stopped   bool

	cwndCbs []CwndCallback
}

// NewSocket returns a Socket configured from the simulator's defaults.  The
// congestion control is constructed from the tcp.socketType attribute, which
// the configuration layer has already validated.
func NewSocket(node *netem.Node, flow netem.FlowID, src, dst string,
	srcPort, dstPort uint16) (*Socket, error) {
	d := node.Sim().Defaults
	cca, err := NewCCA(d.String(sim.TCPSocketType))
	if err != nil {
		return nil, err
	}
	mss := d.Bytes(sim.TCPSegmentSize)
	return &Socket{
		sim:      node.Sim(),
		node:     node,
		flow:     flow,
		src:      src,
		dst:      dst,
		srcPort:  srcPort,
		dstPort:  dstPort,
		mss:      mss,
		sndBuf:   d.Bytes(sim.TCPSndBufSize),
		ecn:      d.Bool(sim.TCPUseEcn),
		cca:      cca,
		cwnd:     sim.Bytes(d.Int(sim.TCPInitialCwnd)) * mss,
		ssthresh: ssthreshInfinity,
		sentAt:   make(map[netem.Seq]sim.Clock),
		rto:      sim.Clock(time.Second),
	}, nil
}

// MSS returns the segment size in bytes.
func (s *Socket) MSS() sim.Bytes {
	return s.mss
}

// Cwnd returns the congestion window in bytes.
func (s *Socket) Cwnd() sim.Bytes {
	return s.cwnd
}

// InFlight returns the unacknowledged bytes in flight.
func (s *Socket) InFlight() sim.Bytes {
	return s.inFlight
}

// SRTT returns the smoothed RTT estimate.
func (s *Socket) SRTT() sim.Clock {
	return s.srtt
}

// MinRTT returns the minimum RTT observed.
func (s *Socket) MinRTT() sim.Clock {
	return s.minRtt
}

// OnCwndChange subscribes a callback to congestion window changes.
func (s *Socket) OnCwndChange(cb CwndCallback) {
	s.cwndCbs = append(s.cwndCbs, cb)
}

// SetCwnd sets the congestion window, clamped to [1 MSS, send buffer], and
// notifies subscribers of the change.
func (s *Socket) SetCwnd(w sim.Bytes) {
	if w < s.mss {
		w = s.mss
	}
	if w > s.sndBuf {
		w = s.sndBuf
	}
	if w == s.cwnd {
		return
	}
	old := s.cwnd
	s.cwnd = w
	for _, cb := range s.cwndCbs {
		cb(old, w)
	}
}

// SetSsthresh sets the slow start threshold, at least 2 MSS.
func (s *Socket) SetSsthresh(t sim.Bytes) {
	if t < 2*s.mss {
		t = 2 * s.mss
	}
	s.ssthresh = t
}

// Ssthresh returns the slow start threshold.
func (s *Socket) Ssthresh() sim.Bytes {
	return s.ssthresh
}

// InSlowStart returns whether the window is below the slow start threshold.
func (s *Socket) InSlowStart() bool {
	return s.cwnd < s.ssthresh
}

// Start binds the ACK return port and begins transmitting.
func (s *Socket) Start() error {
	if err := s.node.Bind(s.srcPort, ackHandler{s}); err != nil {
		return err
	}
	s.started = true
	s.cca.Init(s, s.sim.Now())
	s.send()
	s.armRTO()
	return nil
}

// Stop ceases transmission of new data.
func (s *Socket) Stop() {
	s.stopped = true
}

// send transmits segments while the window allows.  The application is a
// bulk sender, so data is always available.
func (s *Socket) send() {
	if s.stopped {
		return
	}
	for s.inFlight+s.mss <= s.cwnd {
		s.transmit(s.sndNxt, false)
		s.sentAt[s.sndNxt] = s.sim.Now()
		s.sndNxt++
		s.inFlight += s.mss
	}
}

// transmit sends one segment.
func (s *Socket) transmit(seq netem.Seq, retx bool) {
	s.node.Send(netem.Packet{
		Len:     s.mss + netem.HeaderLen,
		Src:     s.src,
		Dst:     s.dst,
		ECT:     s.ecn,
		SrcPort: s.srcPort,
		DstPort: s.dstPort,
		Flow:    s.flow,
		Seq:     seq,
		Sent:    s.sim.Now(),
	})
	if retx {
		delete(s.sentAt, seq)
	}
}

// ackHandler delivers returning ACKs to the socket.
type ackHandler struct {
	sock *Socket
}

// Handle implements netem.Handler.
func (h ackHandler) Handle(pkt netem.Packet, n *netem.Node) {
	h.sock.handleAck(pkt)
}

// handleAck processes one acknowledgement.
func (s *Socket) handleAck(pkt netem.Packet) {
	now := s.sim.Now()
	if pkt.AckNum > s.sndUna {
		acked := sim.Bytes(pkt.AckNum-s.sndUna) * s.mss
		var rtt sim.Clock
		if at, ok := s.sentAt[pkt.AckNum-1]; ok {
			rtt = now - at
			s.updateRTT(rtt)
		} else {
			rtt = s.srtt
		}
		for q := s.sndUna; q < pkt.AckNum; q++ {
			delete(s.sentAt, q)
		}
		s.sndUna = pkt.AckNum
		if s.inFlight -= acked; s.inFlight < 0 {
			s.inFlight = 0
		}
		s.delivered += acked
		s.dupAcks = 0
		if s.inRecovery && pkt.AckNum >= s.recover {
			s.inRecovery = false
		}
		if pkt.ECE {
			s.cca.OnECE(s, now)
		}
		s.cca.OnAck(s, acked, rtt, now)
		s.armRTO()
	} else if pkt.AckNum == s.sndUna && s.sndNxt > s.sndUna {
		s.dupAcks++
		if s.dupAcks == 3 && !s.inRecovery {
			s.inRecovery = true
			s.recover = s.sndNxt
			s.cca.OnDupAckLoss(s, now)
			s.transmit(s.sndUna, true)
			s.armRTO()
		}
	}
	s.send()
}

// updateRTT feeds one sample to the RFC 6298 estimator.
func (s *Socket) updateRTT(r sim.Clock) {
	if s.minRtt == 0 || r < s.minRtt {
		s.minRtt = r
	}
	if s.srtt == 0 {
		s.srtt = r
		s.rttvar = r / 2
	} else {
		d := s.srtt - r
		if d < 0 {
			d = -d
		}
		s.rttvar = sim.Clock((1-rttBeta)*float64(s.rttvar) +
			rttBeta*float64(d))
		s.srtt = sim.Clock((1-rttAlpha)*float64(s.srtt) +
			rttAlpha*float64(r))
	}
	s.rto = s.srtt + 4*s.rttvar
	if s.rto < minRTO {
		s.rto = minRTO
	}
	if s.rto > maxRTO {
		s.rto = maxRTO
	}
}

// armRTO resets the retransmission timer.  The generation counter
// invalidates timers superseded by later activity.
func (s *Socket) armRTO() {
	s.rtoGen++
	gen := s.rtoGen
	s.sim.Schedule(s.rto, func() {
		if gen != s.rtoGen || s.stopped || s.sndUna == s.sndNxt {
			return
		}
		s.onRTO()
	})
}

// onRTO retransmits the oldest outstanding segment and backs off the timer.
func (s *Socket) onRTO() {
	s.inRecovery = false
	s.dupAcks = 0
	s.cca.OnRTO(s, s.sim.Now())
	s.inFlight = s.mss
	s.sndNxt = s.sndUna + 1
	s.transmit(s.sndUna, true)
	s.rto *= 2
	if s.rto > maxRTO {
		s.rto = maxRTO
	}
	s.armRTO()
}
