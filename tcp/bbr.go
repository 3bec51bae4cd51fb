// SPDX-License-Identifier: GPL-3.0

package tcp

import (
	"time"

	"dumbbell/sim"
)

// bbrMode is the BBR state machine mode.
type bbrMode int

const (
	bbrStartup bbrMode = iota
	bbrDrain
	bbrProbeBW
	bbrProbeRTT
)

const (
	// bbrHighGain is the STARTUP window gain, 2/ln(2).
	bbrHighGain = 2.885

	// bbrProbeRTTCwndSegs is the window during PROBE_RTT, in segments.
	bbrProbeRTTCwndSegs = 4

	// bbrProbeRTTDuration is the minimum time spent in PROBE_RTT.
	bbrProbeRTTDuration = sim.Clock(200 * time.Millisecond)

	// bbrRtPropWindow is the validity window of the min RTT estimate.
	// Expiry forces a PROBE_RTT, which is what produces the periodic
	// queue dips every 10 seconds.
	bbrRtPropWindow = sim.Clock(10 * time.Second)

	// bbrBtlBwWindow is the validity window of the bandwidth estimate.
	bbrBtlBwWindow = sim.Clock(10 * time.Second)
)

// bbrCycleGains is the PROBE_BW gain cycle, advanced once per min RTT.
var bbrCycleGains = []float64{1.25, 0.75, 1, 1, 1, 1, 1, 1}

// Bbr implements a model of the BBR congestion control sufficient for the
// experiments: bandwidth and min-RTT estimation, the
// STARTUP/DRAIN/PROBE_BW/PROBE_RTT mode machine, and window-based gain
// application.  It reacts to bandwidth and RTT measurements rather than to
// loss, so drop-tail losses do not collapse the window.
type Bbr struct {
	mode bbrMode

	btlBw      sim.Bitrate
	btlBwStamp sim.Clock

	rtProp       sim.Clock
	rtPropStamp  sim.Clock
	probeRttMin  sim.Clock
	probeRttDone sim.Clock
	priorCwnd    sim.Bytes

	cycleIndex int
	cycleStamp sim.Clock

	fullBw      sim.Bitrate
	fullBwCount int
}

// NewBbr returns a new Bbr in STARTUP.
func NewBbr() *Bbr {
	return &Bbr{}
}

// Name implements CCA.
func (b *Bbr) Name() string {
	return "TcpBbr"
}

// Init implements CCA.
func (b *Bbr) Init(s *Socket, now sim.Clock) {
	b.mode = bbrStartup
}

// OnAck implements CCA.
func (b *Bbr) OnAck(s *Socket, acked sim.Bytes, rtt sim.Clock,
	now sim.Clock) {
	if rtt > 0 {
		if b.mode != bbrProbeRTT &&
			(b.rtProp == 0 || rtt <= b.rtProp) {
			b.rtProp = rtt
			b.rtPropStamp = now
		}
		// delivery rate sample from the data in flight over this RTT
		bw := sim.CalcBitrate(s.InFlight()+acked, time.Duration(rtt))
		if bw >= b.btlBw || now-b.btlBwStamp > bbrBtlBwWindow {
			b.btlBw = bw
			b.btlBwStamp = now
		}
	}
	bdp := b.bdp()
	switch b.mode {
	case bbrStartup:
		s.SetCwnd(s.Cwnd() + sim.Bytes(float64(acked)*(bbrHighGain-1)))
		b.checkFullPipe()
		if b.fullBwCount >= 3 {
			b.mode = bbrDrain
		}
	case bbrDrain:
		s.SetCwnd(bdp)
		if s.InFlight() <= bdp {
			b.mode = bbrProbeBW
			b.cycleStamp = now
		}
	case bbrProbeBW:
		if now-b.cycleStamp > b.rtProp {
			b.cycleIndex = (b.cycleIndex + 1) % len(bbrCycleGains)
			b.cycleStamp = now
		}
		w := sim.Bytes(bbrCycleGains[b.cycleIndex] * float64(bdp))
		if w < bbrProbeRTTCwndSegs*s.MSS() {
			w = bbrProbeRTTCwndSegs * s.MSS()
		}
		s.SetCwnd(w)
	case bbrProbeRTT:
		if b.probeRttMin == 0 || rtt < b.probeRttMin {
			b.probeRttMin = rtt
		}
		if now >= b.probeRttDone {
			b.exitProbeRTT(s, now)
		}
		return
	}
	if now-b.rtPropStamp > bbrRtPropWindow {
		b.enterProbeRTT(s, now)
	}
}

// bdp returns the estimated bandwidth-delay product in bytes.
func (b *Bbr) bdp() sim.Bytes {
	if b.btlBw == 0 || b.rtProp == 0 {
		return 0
	}
	return sim.Bytes(float64(b.btlBw) / 8 *
		time.Duration(b.rtProp).Seconds())
}

// checkFullPipe counts rounds without 25% bandwidth growth.
func (b *Bbr) checkFullPipe() {
	if b.btlBw > b.fullBw+(b.fullBw/4) {
		b.fullBw = b.btlBw
		b.fullBwCount = 0
		return
	}
	b.fullBwCount++
}

// enterProbeRTT clamps the window to drain the bottleneck queue and
// re-measure the path's minimum RTT.
func (b *Bbr) enterProbeRTT(s *Socket, now sim.Clock) {
	b.priorCwnd = s.Cwnd()
	b.mode = bbrProbeRTT
	b.probeRttMin = 0
	b.probeRttDone = now + bbrProbeRTTDuration
	s.SetCwnd(bbrProbeRTTCwndSegs * s.MSS())
}

// exitProbeRTT adopts the re-measured minimum RTT and restores the window.
func (b *Bbr) exitProbeRTT(s *Socket, now sim.Clock) {
	if b.probeRttMin > 0 {
		b.rtProp = b.probeRttMin
	}
	b.rtPropStamp = now
	if b.fullBw > 0 {
		b.mode = bbrProbeBW
		b.cycleStamp = now
	} else {
		b.mode = bbrStartup
	}
	s.SetCwnd(b.priorCwnd)
}

// OnDupAckLoss implements CCA.  BBR does not reduce the window on isolated
// loss; the bandwidth estimate governs.
func (b *Bbr) OnDupAckLoss(s *Socket, now sim.Clock) {
}

// OnRTO implements CCA.
func (b *Bbr) OnRTO(s *Socket, now sim.Clock) {
	s.SetCwnd(bbrProbeRTTCwndSegs * s.MSS())
}

// OnECE implements CCA.  Classic BBR ignores ECN signals.
func (b *Bbr) OnECE(s *Socket, now sim.Clock) {
}
