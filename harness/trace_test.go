// SPDX-License-Identifier: GPL-3.0

package harness

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dumbbell/netem"
	"dumbbell/sim"
	"dumbbell/tcp"
)

func TestQueueTracerCadence(t *testing.T) {
	s := sim.New()
	q := netem.NewFifo(100)
	require.True(t, q.Enqueue(netem.Packet{Len: 1488}, 0))
	require.True(t, q.Enqueue(netem.Packet{Len: 1488}, 0))

	var buf bytes.Buffer
	tr := NewQueueTracer(s, q, &buf)
	tr.Start()
	s.Stop(sim.Clock(time.Second))
	require.NoError(t, s.Run())

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 6, "floor(stop/interval)+1 samples")
	assert.Equal(t, 6, tr.Samples())
	assert.Equal(t, "0.000000 2", lines[0])
	assert.Equal(t, "0.200000 2", lines[1])
	assert.Equal(t, "1.000000 2", lines[5])
}

func TestQueueTracerCancel(t *testing.T) {
	s := sim.New()
	var buf bytes.Buffer
	tr := NewQueueTracer(s, netem.NewFifo(100), &buf)
	s.ScheduleAt(sim.Clock(500*time.Millisecond), tr.Cancel)
	tr.Start()
	s.Stop(sim.Clock(time.Second))
	require.NoError(t, s.Run())

	// samples at 0, 0.2 and 0.4; the re-arm at 0.6 sees the cancel
	assert.Equal(t, 3, tr.Samples())
}

func TestCwndTracer(t *testing.T) {
	s := sim.New()
	n := netem.NewNode("sender", s)
	require.NoError(t, s.Defaults.Set(sim.TCPSegmentSize, sim.Bytes(1448)))
	sock, err := tcp.NewSocket(n, 1, "10.0.1.1", "10.0.3.2", 50000, 50000)
	require.NoError(t, err)

	var buf bytes.Buffer
	tr := NewCwndTracer(&buf, 1448)
	tr.Attach(s, sock)

	sock.SetCwnd(11 * 1448)
	sock.SetCwnd(11 * 1448) // no change, no sample
	assert.Equal(t, 1, tr.Samples())
	assert.Equal(t, "0.000000 11\n", buf.String())

	tr.Cancel()
	sock.SetCwnd(12 * 1448)
	assert.Equal(t, 1, tr.Samples(), "no samples after cancel")
}

func testFlows() (data, acks []netem.FlowKey) {
	for i := 0; i < NumSenders; i++ {
		src := []string{"10.0.1.1", "10.0.2.1"}[i]
		port := uint16(BasePort + i)
		data = append(data, netem.FlowKey{
			Src:     src,
			Dst:     "10.0.3.2",
			SrcPort: port,
			DstPort: port,
		})
		acks = append(acks, netem.FlowKey{
			Src:     "10.0.3.2",
			Dst:     src,
			SrcPort: port,
			DstPort: port,
		})
	}
	return
}

func TestThroughputTracer(t *testing.T) {
	s := sim.New()
	mon := netem.NewFlowMonitor()
	data, acks := testFlows()
	for _, k := range data {
		mon.Register(k)
	}
	for _, k := range acks {
		mon.Register(k)
	}

	var buf bytes.Buffer
	tr := NewThroughputTracer(s, mon, data, &buf)
	require.NoError(t, tr.Validate())

	count := func(k netem.FlowKey, b sim.Bytes) func() {
		return func() {
			mon.CountTx(netem.Packet{
				Len:     b,
				Src:     k.Src,
				Dst:     k.Dst,
				SrcPort: k.SrcPort,
				DstPort: k.DstPort,
			}, s.Now())
		}
	}
	// 25000 bytes per 200 ms interval is 1 Mbps
	s.ScheduleAt(sim.Clock(100*time.Millisecond), count(data[0], 25000))
	s.ScheduleAt(sim.Clock(300*time.Millisecond), count(data[0], 25000))
	s.ScheduleAt(sim.Clock(300*time.Millisecond), count(data[1], 25000))

	tr.Start()
	s.Stop(sim.Clock(500 * time.Millisecond))
	require.NoError(t, s.Run())

	assert.Equal(t, 3, tr.Samples())
	assert.Equal(t,
		"0.000001s 0Mbps 0Mbps 0Mbps\n"+
			"0.200001s 1Mbps 1Mbps 0Mbps\n"+
			"0.400001s 2Mbps 1Mbps 1Mbps\n",
		buf.String())
}

func TestThroughputTracerValidate(t *testing.T) {
	s := sim.New()
	mon := netem.NewFlowMonitor()
	data, _ := testFlows()
	for _, k := range data {
		mon.Register(k) // ACK flows missing
	}
	tr := NewThroughputTracer(s, mon, data, &bytes.Buffer{})
	err := tr.Validate()
	require.Error(t, err)
	var ferr *FlowCountError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, 4, ferr.Want)
	assert.Equal(t, 2, ferr.Got)
}
