// SPDX-License-Identifier: GPL-3.0

package tcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dumbbell/netem"
	"dumbbell/sim"
)

func testSocket(t *testing.T) (*sim.Sim, *Socket) {
	s := sim.New()
	n := netem.NewNode("sender", s)
	sock, err := NewSocket(n, 1, "10.0.1.2", "10.0.3.2", 49153, 50000)
	require.NoError(t, err)
	return s, sock
}

func TestNewCCA(t *testing.T) {
	for _, name := range []string{"TcpNewReno", "TcpBbr"} {
		c, err := NewCCA(name)
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())
	}
	_, err := NewCCA("TcpVegas")
	assert.Error(t, err)
	assert.Equal(t, []string{"TcpBbr", "TcpNewReno"}, Variants())
}

func TestSocketWindowClamps(t *testing.T) {
	_, sock := testSocket(t)
	mss := sock.MSS()

	sock.SetCwnd(0)
	assert.Equal(t, mss, sock.Cwnd(), "window floor is one MSS")
	sock.SetCwnd(sim.Bytes(1 << 30))
	assert.Equal(t, sock.sndBuf, sock.Cwnd(), "window ceiling is SndBuf")

	sock.SetSsthresh(0)
	assert.Equal(t, 2*mss, sock.Ssthresh(), "ssthresh floor is two MSS")
}

func TestSocketCwndCallback(t *testing.T) {
	_, sock := testSocket(t)
	var olds, news []sim.Bytes
	sock.OnCwndChange(func(old, new sim.Bytes) {
		olds = append(olds, old)
		news = append(news, new)
	})
	w := sock.Cwnd()
	sock.SetCwnd(w + sock.MSS())
	sock.SetCwnd(w + sock.MSS()) // no change, no callback
	require.Len(t, news, 1)
	assert.Equal(t, w, olds[0])
	assert.Equal(t, w+sock.MSS(), news[0])
}

func TestRenoSlowStart(t *testing.T) {
	_, sock := testSocket(t)
	r := NewReno()
	w := sock.Cwnd()
	require.True(t, sock.InSlowStart())
	r.OnAck(sock, 2*sock.MSS(), sim.Clock(40*time.Millisecond), 0)
	assert.Equal(t, w+2*sock.MSS(), sock.Cwnd())
}

func TestRenoCongestionAvoidance(t *testing.T) {
	_, sock := testSocket(t)
	r := NewReno()
	sock.SetSsthresh(sock.Cwnd()) // leave slow start
	require.False(t, sock.InSlowStart())

	w := sock.Cwnd()
	acked := sim.Bytes(0)
	for acked < w {
		r.OnAck(sock, 2*sock.MSS(), sim.Clock(40*time.Millisecond), 0)
		acked += 2 * sock.MSS()
	}
	assert.Equal(t, w+sock.MSS(), sock.Cwnd(),
		"one MSS per window acknowledged")
}

func TestRenoFastRetransmitHalves(t *testing.T) {
	_, sock := testSocket(t)
	r := NewReno()
	sock.SetCwnd(20 * sock.MSS())
	r.OnDupAckLoss(sock, 0)
	assert.Equal(t, 10*sock.MSS(), sock.Ssthresh())
	assert.Equal(t, 13*sock.MSS(), sock.Cwnd(),
		"half, inflated by the three duplicates")
}

func TestRenoRTO(t *testing.T) {
	_, sock := testSocket(t)
	r := NewReno()
	sock.SetCwnd(20 * sock.MSS())
	r.OnRTO(sock, 0)
	assert.Equal(t, 10*sock.MSS(), sock.Ssthresh())
	assert.Equal(t, sock.MSS(), sock.Cwnd())
}

func TestRenoECEOncePerRTT(t *testing.T) {
	_, sock := testSocket(t)
	r := NewReno()
	sock.updateRTT(sim.Clock(40 * time.Millisecond))
	sock.SetCwnd(20 * sock.MSS())

	r.OnECE(sock, sim.Clock(time.Second))
	assert.Equal(t, 10*sock.MSS(), sock.Cwnd())

	// a second echo within the same RTT is ignored
	r.OnECE(sock, sim.Clock(time.Second+10*time.Millisecond))
	assert.Equal(t, 10*sock.MSS(), sock.Cwnd())

	r.OnECE(sock, sim.Clock(2*time.Second))
	assert.Equal(t, 5*sock.MSS(), sock.Cwnd())
}

func TestBbrStartupToProbeBW(t *testing.T) {
	_, sock := testSocket(t)
	b := NewBbr()
	b.Init(sock, 0)
	require.Equal(t, bbrStartup, b.mode)

	// a flat delivery rate for three rounds fills the pipe
	rtt := sim.Clock(40 * time.Millisecond)
	now := sim.Clock(0)
	for i := 0; i < 10 && b.mode == bbrStartup; i++ {
		b.OnAck(sock, 2*sock.MSS(), rtt, now)
		now += rtt
	}
	require.Equal(t, bbrDrain, b.mode)

	// nothing in flight, so drain completes immediately
	b.OnAck(sock, 2*sock.MSS(), rtt, now)
	assert.Equal(t, bbrProbeBW, b.mode)
	assert.Greater(t, int64(b.bdp()), int64(0))
}

func TestBbrProbeRTTClampsWindow(t *testing.T) {
	_, sock := testSocket(t)
	b := NewBbr()
	b.Init(sock, 0)

	rtt := sim.Clock(40 * time.Millisecond)
	b.OnAck(sock, 2*sock.MSS(), rtt, 0)
	prior := sim.Bytes(20 * sock.MSS())
	sock.SetCwnd(prior)

	// min RTT estimate expires: enter PROBE_RTT with a four segment window
	now := sim.Clock(11 * time.Second)
	b.OnAck(sock, 2*sock.MSS(), rtt+sim.Clock(time.Millisecond), now)
	require.Equal(t, bbrProbeRTT, b.mode)
	assert.Equal(t, 4*sock.MSS(), sock.Cwnd())

	// after the dwell time, the prior window is restored
	now += bbrProbeRTTDuration + sim.Clock(time.Millisecond)
	b.OnAck(sock, 2*sock.MSS(), rtt, now)
	assert.NotEqual(t, bbrProbeRTT, b.mode)
	assert.Equal(t, b.priorCwnd, sock.Cwnd())
}

func TestSinkDelayedAck(t *testing.T) {
	s := sim.New()
	n := netem.NewNode("receiver", s)
	k, err := NewSink(n, "10.0.3.2", 50000)
	require.NoError(t, err)

	data := func(seq netem.Seq) netem.Packet {
		return netem.Packet{
			Len:     1488,
			Src:     "10.0.1.2",
			Dst:     "10.0.3.2",
			SrcPort: 49153,
			DstPort: 50000,
			Seq:     seq,
		}
	}

	k.Handle(data(0), n)
	assert.Equal(t, netem.Seq(1), k.next)
	assert.Equal(t, 1, k.pending, "first segment withheld")
	k.Handle(data(1), n)
	assert.Equal(t, 0, k.pending, "second segment acknowledged")
	assert.Equal(t, sim.Bytes(2*1448), k.TotalRx())
}

func TestSinkOutOfOrder(t *testing.T) {
	s := sim.New()
	n := netem.NewNode("receiver", s)
	k, err := NewSink(n, "10.0.3.2", 50000)
	require.NoError(t, err)

	data := func(seq netem.Seq) netem.Packet {
		return netem.Packet{
			Len: 1488, Src: "10.0.1.2", Dst: "10.0.3.2",
			SrcPort: 49153, DstPort: 50000, Seq: seq,
		}
	}

	k.Handle(data(0), n)
	k.Handle(data(2), n) // hole at 1
	assert.Equal(t, netem.Seq(1), k.next)
	assert.Len(t, k.buf, 1)
	k.Handle(data(2), n) // duplicate of the buffered segment
	assert.Len(t, k.buf, 1)

	k.Handle(data(1), n) // hole filled, buffered segment consumed
	assert.Equal(t, netem.Seq(3), k.next)
	assert.Empty(t, k.buf)
	assert.Equal(t, sim.Bytes(3*1448), k.TotalRx(),
		"each segment counted once, duplicates not at all")

	// a retransmitted duplicate of delivered data adds nothing
	k.Handle(data(0), n)
	assert.Equal(t, sim.Bytes(3*1448), k.TotalRx())
}

func TestSinkReceiveBufferBound(t *testing.T) {
	s := sim.New()
	require.NoError(t, s.Defaults.Set(sim.TCPRcvBufSize, sim.Bytes(2*1448)))
	n := netem.NewNode("receiver", s)
	k, err := NewSink(n, "10.0.3.2", 50000)
	require.NoError(t, err)

	data := func(seq netem.Seq) netem.Packet {
		return netem.Packet{
			Len: 1488, Src: "10.0.1.2", Dst: "10.0.3.2",
			SrcPort: 49153, DstPort: 50000, Seq: seq,
		}
	}

	// hole at 0: two segments fit the reorder buffer, the third is refused
	k.Handle(data(1), n)
	k.Handle(data(2), n)
	k.Handle(data(3), n)
	assert.Len(t, k.buf, 2)
	assert.Equal(t, sim.Bytes(2*1448), k.TotalRx())
}

func TestSinkEchoesCE(t *testing.T) {
	s := sim.New()
	n := netem.NewNode("receiver", s)
	k, err := NewSink(n, "10.0.3.2", 50000)
	require.NoError(t, err)

	pkt := netem.Packet{
		Len: 1488, Src: "10.0.1.2", Dst: "10.0.3.2",
		SrcPort: 49153, DstPort: 50000, Seq: 0,
		ECT: true, CE: true,
	}
	k.Handle(pkt, n)
	assert.True(t, k.echoECE, "CE mark held until the next ACK")
	pkt.CE = false
	pkt.Seq = 1
	k.Handle(pkt, n) // delayed ACK count reached, ACK sent with ECE
	assert.False(t, k.echoECE)
}

// TestBulkTransfer runs a sender and sink over a symmetric link and checks
// that slow start opens the window and data is delivered.
func TestBulkTransfer(t *testing.T) {
	s := sim.New()
	sn := netem.NewNode("sender", s)
	rn := netem.NewNode("receiver", s)
	si := netem.NewIface("s0", "10.0.0.1", 100*sim.Mbps,
		sim.Clock(5*time.Millisecond), netem.NewFifo(1000), s)
	ri := netem.NewIface("r0", "10.0.0.2", 100*sim.Mbps,
		sim.Clock(5*time.Millisecond), netem.NewFifo(1000), s)
	netem.Connect(sn, si, rn, ri)
	sn.AddRoute("10.0.0.2", si)
	rn.AddRoute("10.0.0.1", ri)

	k, err := NewSink(rn, "10.0.0.2", 50000)
	require.NoError(t, err)
	app := NewBulkSend(sn, 1, "10.0.0.1", "10.0.0.2", 49153, 50000)
	app.Install(s, 0, sim.Clock(2*time.Second))

	s.Stop(sim.Clock(2 * time.Second))
	require.NoError(t, s.Run())

	sock := app.Socket()
	require.NotNil(t, sock)
	assert.Greater(t, int64(sock.Cwnd()), int64(10*sock.MSS()),
		"slow start must have opened the window")
	assert.Greater(t, int64(k.TotalRx()), int64(100000))
	assert.Greater(t, int64(sock.SRTT()),
		int64(10*time.Millisecond), "RTT at least the path delay")
	assert.Greater(t, int64(sock.MinRTT()), int64(0))
	assert.LessOrEqual(t, int64(sock.MinRTT()), int64(sock.SRTT()))
}
