// SPDX-License-Identifier: GPL-3.0

// Command dumbbell runs one congestion-control experiment over the fixed
// two-sender dumbbell topology and writes its traces to an isolated output
// directory.
package main

import (
	"flag"
	"os"
	"time"

	"dumbbell/harness"
	"dumbbell/logger"
)

func main() {
	tcpTypeId := flag.String("tcpTypeId",
		"TcpBbr", "transport protocol to use: TcpNewReno, TcpBbr")
	queueDisc := flag.String("queueDisc",
		"FifoQueueDisc", "FifoQueueDisc, FqCoDelQueueDisc")
	delAckCount := flag.Uint("delAckCount", 2, "delayed ACK count")
	enablePcap := flag.Bool("enablePcap", false,
		"enable/disable pcap file generation")
	stopTime := flag.Duration("stopTime", 100*time.Second,
		"stop time for applications / simulation time will be stopTime + 1")
	ecn := flag.Bool("ecn", false, "enable ECN")
	outDir := flag.String("outDir", "results", "output root directory")
	logFile := flag.String("logFile", "", "optional rotating log file")
	flag.Parse()

	log := logger.Default()
	if *logFile != "" {
		log = logger.NewFile(*logFile, logger.InfoLevel)
		logger.ReplaceDefault(log)
	}
	defer log.Sync()

	cfg := harness.RunConfiguration{
		CcVariant:      *tcpTypeId,
		QueueDisc:      *queueDisc,
		EcnEnabled:     *ecn,
		DelAckCount:    int(*delAckCount),
		CaptureEnabled: *enablePcap,
		StopTime:       *stopTime,
	}
	if _, err := harness.Run(cfg, *outDir, log); err != nil {
		log.Error("run failed", logger.Error(err))
		log.Sync()
		os.Exit(1)
	}
}
