// SPDX-License-Identifier: GPL-3.0

package harness

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dumbbell/logger"
)

func testLogger() *logger.Logger {
	return logger.New(io.Discard, logger.ErrorLevel)
}

func readLines(t *testing.T, path string) []string {
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	s := strings.TrimSuffix(string(b), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func TestRunBbrFifo(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.StopTime = 3 * time.Second

	sum, err := Run(cfg, root, testLogger())
	require.NoError(t, err)

	dir := filepath.Join(root, "TcpBbrFifoQueueDisc")
	assert.Equal(t,
		"tcpTypeId TcpBbr\nqueueDisc FifoQueueDisc\n",
		string(mustRead(t, filepath.Join(dir, "config.dat"))))

	queue := readLines(t, filepath.Join(dir, "queueSize.dat"))
	assert.Len(t, queue, 16, "floor(stop/interval)+1 queue samples")
	assert.Equal(t, len(queue), sum.QueueSamples)
	for _, l := range queue {
		f := strings.Fields(l)
		require.Len(t, f, 2)
		_, err = strconv.Atoi(f[1])
		require.NoError(t, err)
	}

	thr := readLines(t, filepath.Join(dir, "throughput.dat"))
	assert.Len(t, thr, 15)
	assert.Equal(t, len(thr), sum.ThroughputSamples)
	for _, l := range thr {
		f := strings.Fields(l)
		require.Len(t, f, 4, "time, aggregate, and one rate per flow")
		agg := mbps(t, f[1])
		assert.InDelta(t, agg, mbps(t, f[2])+mbps(t, f[3]), 1e-6,
			"aggregate is the sum of the per-flow rates")
	}

	cwnd := readLines(t, filepath.Join(dir, "cwnd.dat"))
	assert.NotEmpty(t, cwnd, "slow start must move the window")
	assert.Equal(t, len(cwnd), sum.CwndSamples)

	require.Len(t, sum.FlowRxBytes, NumSenders)
	for i, rx := range sum.FlowRxBytes {
		assert.Greater(t, rx, int64(0), "flow %d received nothing", i)
	}
	assert.Equal(t, sum.FlowRxBytes[0]+sum.FlowRxBytes[1], sum.TotalRxBytes)

	var onDisk Summary
	require.NoError(t, json.Unmarshal(
		mustRead(t, filepath.Join(dir, "summary.json")), &onDisk))
	assert.Equal(t, *sum, onDisk)
}

func TestRunNewRenoFqCoDelEcn(t *testing.T) {
	root := t.TempDir()
	cfg := RunConfiguration{
		CcVariant:      "TcpNewReno",
		QueueDisc:      FqCoDelQueueDisc,
		EcnEnabled:     true,
		DelAckCount:    2,
		CaptureEnabled: true,
		StopTime:       2 * time.Second,
	}
	sum, err := Run(cfg, root, testLogger())
	require.NoError(t, err)
	assert.Greater(t, sum.TotalRxBytes, int64(0))

	dir := filepath.Join(root, "TcpNewRenoFqCoDelQueueDisc")
	assert.Len(t, readLines(t, filepath.Join(dir, "queueSize.dat")), 11)
	assert.Len(t, readLines(t, filepath.Join(dir, "throughput.dat")), 10)

	// one capture per interface: 2 sender, 3 R1, 2 R2, 1 receiver
	pcaps, err := filepath.Glob(filepath.Join(dir, "pcap", "*.pcap"))
	require.NoError(t, err)
	assert.Len(t, pcaps, 8)
	for _, p := range pcaps {
		fi, err := os.Stat(p)
		require.NoError(t, err)
		assert.Greater(t, fi.Size(), int64(24),
			"%s holds more than a file header", p)
	}
}

func TestRunIsolation(t *testing.T) {
	root := t.TempDir()
	bbr := DefaultConfig()
	bbr.StopTime = time.Second
	reno := bbr
	reno.CcVariant = "TcpNewReno"

	_, err := Run(bbr, root, testLogger())
	require.NoError(t, err)
	_, err = Run(reno, root, testLogger())
	require.NoError(t, err)

	for _, dir := range []string{"TcpBbrFifoQueueDisc",
		"TcpNewRenoFifoQueueDisc"} {
		_, err = os.Stat(filepath.Join(root, dir, "throughput.dat"))
		assert.NoError(t, err, dir)
	}
}

// TestRunBbrQueueDips checks the characteristic BBR queue behavior under a
// drop-tail bottleneck: the standing queue periodically drains when ProbeRTT
// clamps the windows.
func TestRunBbrQueueDips(t *testing.T) {
	if testing.Short() {
		t.Skip("long simulated run")
	}
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.StopTime = 25 * time.Second
	_, err := Run(cfg, root, testLogger())
	require.NoError(t, err)

	var peak, dips int
	lines := readLines(t, filepath.Join(root, "TcpBbrFifoQueueDisc",
		"queueSize.dat"))
	for _, l := range lines {
		f := strings.Fields(l)
		require.Len(t, f, 2)
		at, err := strconv.ParseFloat(f[0], 64)
		require.NoError(t, err)
		n, err := strconv.Atoi(f[1])
		require.NoError(t, err)
		if n > peak {
			peak = n
		}
		if at > 2 && n <= 4 {
			dips++
		}
	}
	assert.GreaterOrEqual(t, peak, 10, "queue must build under load")
	assert.GreaterOrEqual(t, dips, 2, "queue must periodically drain")
}

func TestRunConfigError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CcVariant = "TcpVegas"
	_, err := Run(cfg, t.TempDir(), testLogger())
	require.Error(t, err)
	var cerr *ConfigError
	assert.True(t, errors.As(err, &cerr))
}

func mustRead(t *testing.T, path string) []byte {
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return b
}

func mbps(t *testing.T, s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "Mbps"), 64)
	require.NoError(t, err)
	return v
}
