// SPDX-License-Identifier: GPL-3.0

// Command sweep runs the harness once per combination in a sweep plan,
// each combination writing into its own output directory.
package main

import (
	"flag"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"dumbbell/harness"
	"dumbbell/logger"
)

// duration wraps time.Duration so plans can say "100s".
type duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	td, err := time.ParseDuration(value.Value)
	if err != nil {
		return err
	}
	*d = duration(td)
	return nil
}

// A Plan is the sweep parameter space.  Combinations are unwound in order:
// congestion control, then queue discipline, then ECN.  ECN under
// FifoQueueDisc has no effect, so that combination is skipped.
type Plan struct {
	OutDir      string   `yaml:"outDir"`
	StopTime    duration `yaml:"stopTime"`
	DelAckCount int      `yaml:"delAckCount"`
	EnablePcap  bool     `yaml:"enablePcap"`
	CcVariants  []string `yaml:"ccVariants"`
	QueueDiscs  []string `yaml:"queueDiscs"`
	Ecn         []bool   `yaml:"ecn"`
}

// unwind expands the plan into one run configuration per combination.
func (p *Plan) unwind() []harness.RunConfiguration {
	var runs []harness.RunConfiguration
	for _, cc := range p.CcVariants {
		for _, qd := range p.QueueDiscs {
			for _, ecn := range p.Ecn {
				if ecn && qd == harness.FifoQueueDisc {
					continue
				}
				runs = append(runs, harness.RunConfiguration{
					CcVariant:      cc,
					QueueDisc:      qd,
					EcnEnabled:     ecn,
					DelAckCount:    p.DelAckCount,
					CaptureEnabled: p.EnablePcap,
					StopTime:       time.Duration(p.StopTime),
				})
			}
		}
	}
	return runs
}

// runRoot returns the output root for one run.  The run directory under it is
// named by variant and discipline only, so the ECN runs get their own root to
// keep every combination's output isolated.
func runRoot(outDir string, cfg harness.RunConfiguration) string {
	if cfg.EcnEnabled {
		return filepath.Join(outDir, "ecn")
	}
	return outDir
}

func main() {
	planFile := flag.String("plan", "sweep.yaml", "sweep plan file")
	logFile := flag.String("logFile", "", "optional rotating log file")
	flag.Parse()

	log := logger.Default()
	if *logFile != "" {
		log = logger.NewFile(*logFile, logger.InfoLevel)
		logger.ReplaceDefault(log)
	}
	defer log.Sync()

	plan, err := loadPlan(*planFile)
	if err != nil {
		log.Fatal("load plan", logger.Error(err))
	}
	runs := plan.unwind()
	log.Info("sweep starting",
		logger.String("plan", *planFile),
		logger.Int("runs", len(runs)))
	failed := 0
	for _, cfg := range runs {
		if _, err := harness.Run(cfg, runRoot(plan.OutDir, cfg), log); err != nil {
			// one failed run does not stop the sweep; it is re-invoked
			// from a fresh plan, never retried here
			log.Error("run failed",
				logger.String("tcpTypeId", cfg.CcVariant),
				logger.String("queueDisc", cfg.QueueDisc),
				logger.Error(err))
			failed++
		}
	}
	if failed > 0 {
		log.Error("sweep finished with failures", logger.Int("failed", failed))
		log.Sync()
		os.Exit(1)
	}
	log.Info("sweep complete")
}

// loadPlan reads and validates the sweep plan.
func loadPlan(path string) (*Plan, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p := &Plan{
		OutDir:      "results",
		StopTime:    duration(100 * time.Second),
		DelAckCount: 2,
		CcVariants:  []string{"TcpBbr", "TcpNewReno"},
		QueueDiscs:  []string{harness.FifoQueueDisc},
		Ecn:         []bool{false},
	}
	if err = yaml.Unmarshal(b, p); err != nil {
		return nil, err
	}
	return p, nil
}
