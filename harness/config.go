// SPDX-License-Identifier: GPL-3.0

// Package harness drives one experiment run: it resolves the run
// configuration into engine defaults, builds the dumbbell topology, installs
// the traffic, samples the live counters into trace files, and bundles the
// output into an isolated per-run directory.
package harness

import (
	"fmt"
	"time"

	"dumbbell/sim"
	"dumbbell/tcp"
)

// Supported queue discipline names.
const (
	FifoQueueDisc    = "FifoQueueDisc"
	FqCoDelQueueDisc = "FqCoDelQueueDisc"
)

// Fixed per-run socket and queue parameters.  The buffer sizes follow the
// usual Linux defaults so the sender is window-limited, not buffer-limited.
const (
	sndBufSize       = sim.Bytes(4194304)
	rcvBufSize       = sim.Bytes(6291456)
	segmentSize      = sim.Bytes(1448)
	initialCwnd      = 10
	queueDiscPackets = 100
	devicePackets    = 1
)

// RunConfiguration is the immutable description of one run.  It is fixed
// before the run starts and never mutated during it.
type RunConfiguration struct {
	CcVariant      string
	QueueDisc      string
	EcnEnabled     bool
	DelAckCount    int
	CaptureEnabled bool
	StopTime       time.Duration
}

// DefaultConfig returns the configuration of the baseline BBR run.
func DefaultConfig() RunConfiguration {
	return RunConfiguration{
		CcVariant:   "TcpBbr",
		QueueDisc:   FifoQueueDisc,
		DelAckCount: 2,
		StopTime:    100 * time.Second,
	}
}

// A ConfigError reports an unusable run configuration.  It is detected at
// resolution time, before any run-time cost is paid.
type ConfigError struct {
	Param  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration: %s=%v: %s", e.Param, e.Value, e.Reason)
}

// Resolve validates cfg and writes the corresponding attribute defaults to
// the simulator.  It must run before the topology is built so that sockets
// and queues inherit the resolved defaults.  When ECN is enabled the
// ECN-capable marking mode of the queue discipline is selected; under
// FifoQueueDisc the flag has no effect, which is a documented property of
// that discipline rather than something validated here.
func Resolve(cfg RunConfiguration, s *sim.Sim) error {
	if _, err := tcp.NewCCA(cfg.CcVariant); err != nil {
		return &ConfigError{"tcpTypeId", cfg.CcVariant,
			fmt.Sprintf("want one of %v", tcp.Variants())}
	}
	switch cfg.QueueDisc {
	case FifoQueueDisc, FqCoDelQueueDisc:
	default:
		return &ConfigError{"queueDisc", cfg.QueueDisc,
			"want FifoQueueDisc or FqCoDelQueueDisc"}
	}
	if cfg.DelAckCount < 1 {
		return &ConfigError{"delAckCount", cfg.DelAckCount, "must be >= 1"}
	}
	if cfg.StopTime <= 0 {
		return &ConfigError{"stopTime", cfg.StopTime, "must be positive"}
	}
	d := s.Defaults
	for _, a := range []struct {
		name  string
		value any
	}{
		{sim.TCPSocketType, cfg.CcVariant},
		{sim.TCPSndBufSize, sndBufSize},
		{sim.TCPRcvBufSize, rcvBufSize},
		{sim.TCPInitialCwnd, initialCwnd},
		{sim.TCPDelAckCount, cfg.DelAckCount},
		{sim.TCPSegmentSize, segmentSize},
		{sim.TCPUseEcn, cfg.EcnEnabled},
		{sim.DeviceQueue, devicePackets},
		{sim.DeviceByteQueue, true},
		{sim.QueueDiscType, cfg.QueueDisc},
		{sim.QueueDiscSize, queueDiscPackets},
		{sim.QueueDiscEcn, cfg.EcnEnabled},
	} {
		if err := d.Set(a.name, a.value); err != nil {
			return err
		}
	}
	return nil
}
