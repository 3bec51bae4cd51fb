// SPDX-License-Identifier: GPL-3.0

package harness

import (
	"dumbbell/logger"
	"dumbbell/sim"
)

// Summary is the per-run summary record written alongside the traces, for
// downstream comparison tooling.
type Summary struct {
	TcpTypeId         string  `json:"tcpTypeId"`
	QueueDisc         string  `json:"queueDisc"`
	Ecn               bool    `json:"ecn"`
	StopTimeSeconds   float64 `json:"stopTimeSeconds"`
	FlowRxBytes       []int64 `json:"flowRxBytes"`
	TotalRxBytes      int64   `json:"totalRxBytes"`
	CwndSamples       int     `json:"cwndSamples"`
	QueueSamples      int     `json:"queueSamples"`
	ThroughputSamples int     `json:"throughputSamples"`
}

// Run executes one experiment: resolve the configuration, build the
// topology, install the traffic, sample the live counters for the run
// duration, and finalize the output bundle under root.  All fatal
// conditions abort the whole run; there are no retries, and a failed run is
// re-invoked by the sweep driver, not here.
func Run(cfg RunConfiguration, root string, log *logger.Logger) (*Summary,
	error) {
	s := sim.New()
	if err := Resolve(cfg, s); err != nil {
		return nil, err
	}
	topo, err := BuildTopology(s)
	if err != nil {
		return nil, err
	}
	stop := sim.Clock(cfg.StopTime)
	traffic, err := InstallTraffic(s, topo, stop)
	if err != nil {
		return nil, err
	}
	bundle, err := OpenBundle(root, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.CaptureEnabled {
		var dir string
		if dir, err = bundle.PcapDir(); err != nil {
			return nil, err
		}
		var cap *Capture
		if cap, err = EnableCapture(dir, topo); err != nil {
			return nil, err
		}
		defer cap.Close()
	}

	segSize := s.Defaults.Bytes(sim.TCPSegmentSize)
	cwndTr := NewCwndTracer(bundle.CwndWriter(), segSize)
	for _, app := range traffic.Apps {
		a := app
		s.ScheduleAt(CwndTraceAttach, func() {
			cwndTr.Attach(s, a.Socket())
		})
	}
	queueTr := NewQueueTracer(s, topo.BottleneckIface.Qdisc(),
		bundle.QueueWriter())
	thrTr := NewThroughputTracer(s, topo.Monitor, traffic.DataFlows,
		bundle.ThroughputWriter())

	// the flow layout is validated once, before any sampling happens
	if err = thrTr.Validate(); err != nil {
		bundle.Close()
		return nil, err
	}
	queueTr.Start()
	thrTr.Start()

	log.Info("run starting",
		logger.String("tcpTypeId", cfg.CcVariant),
		logger.String("queueDisc", cfg.QueueDisc),
		logger.Bool("ecn", cfg.EcnEnabled),
		logger.Duration("stopTime", cfg.StopTime),
		logger.String("dir", bundle.Dir))

	s.Stop(stop + sim.Tick)
	if err = s.Run(); err != nil {
		bundle.Close()
		return nil, err
	}

	// teardown: cancel tracers before releasing their files
	cwndTr.Cancel()
	queueTr.Cancel()
	thrTr.Cancel()
	if err = bundle.Close(); err != nil {
		return nil, err
	}

	sum := &Summary{
		TcpTypeId:         cfg.CcVariant,
		QueueDisc:         cfg.QueueDisc,
		Ecn:               cfg.EcnEnabled,
		StopTimeSeconds:   stop.Seconds(),
		CwndSamples:       cwndTr.Samples(),
		QueueSamples:      queueTr.Samples(),
		ThroughputSamples: thrTr.Samples(),
	}
	for _, k := range traffic.Sinks {
		rx := int64(k.TotalRx())
		sum.FlowRxBytes = append(sum.FlowRxBytes, rx)
		sum.TotalRxBytes += rx
	}
	if err = bundle.WriteSummary(sum); err != nil {
		return nil, err
	}
	log.Info("run complete",
		logger.Int("queueSamples", sum.QueueSamples),
		logger.Int("throughputSamples", sum.ThroughputSamples),
		logger.Int("cwndSamples", sum.CwndSamples),
		logger.Float64("totalRxMB",
			float64(sum.TotalRxBytes)/1e6))
	return sum, nil
}
