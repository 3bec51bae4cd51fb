// SPDX-License-Identifier: GPL-3.0

package harness

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Bundle is one run's output directory and trace files.  It is created once
// at run start, written to throughout the run, and immutable once closed.
// Each trace file is written only by its corresponding tracer.
type Bundle struct {
	Dir string

	cwnd       *os.File
	queue      *os.File
	throughput *os.File
	cwndW      *bufio.Writer
	queueW     *bufio.Writer
	thrW       *bufio.Writer
}

// OpenBundle creates the run directory under root, named by the
// configuration's variant and discipline, writes config.dat, and opens the
// three trace files.  Unopenable files are fatal for the run: a partial
// trace set is worse than none.
func OpenBundle(root string, cfg RunConfiguration) (*Bundle, error) {
	b := &Bundle{
		Dir: filepath.Join(root, cfg.CcVariant+cfg.QueueDisc),
	}
	if err := os.MkdirAll(b.Dir, 0755); err != nil {
		return nil, errors.Wrap(err, "create run directory")
	}
	c, err := os.Create(filepath.Join(b.Dir, "config.dat"))
	if err != nil {
		return nil, errors.Wrap(err, "open config record")
	}
	fmt.Fprintf(c, "tcpTypeId %s\n", cfg.CcVariant)
	fmt.Fprintf(c, "queueDisc %s\n", cfg.QueueDisc)
	if err = c.Close(); err != nil {
		return nil, errors.Wrap(err, "write config record")
	}
	if b.cwnd, err = os.Create(filepath.Join(b.Dir, "cwnd.dat")); err != nil {
		return nil, errors.Wrap(err, "open cwnd trace")
	}
	if b.queue, err = os.Create(
		filepath.Join(b.Dir, "queueSize.dat")); err != nil {
		return nil, errors.Wrap(err, "open queue trace")
	}
	if b.throughput, err = os.Create(
		filepath.Join(b.Dir, "throughput.dat")); err != nil {
		return nil, errors.Wrap(err, "open throughput trace")
	}
	b.cwndW = bufio.NewWriter(b.cwnd)
	b.queueW = bufio.NewWriter(b.queue)
	b.thrW = bufio.NewWriter(b.throughput)
	return b, nil
}

// CwndWriter returns the congestion window trace writer.
func (b *Bundle) CwndWriter() io.Writer {
	return b.cwndW
}

// QueueWriter returns the queue occupancy trace writer.
func (b *Bundle) QueueWriter() io.Writer {
	return b.queueW
}

// ThroughputWriter returns the throughput trace writer.
func (b *Bundle) ThroughputWriter() io.Writer {
	return b.thrW
}

// PcapDir creates and returns the packet capture subdirectory.
func (b *Bundle) PcapDir() (string, error) {
	d := filepath.Join(b.Dir, "pcap")
	if err := os.MkdirAll(d, 0755); err != nil {
		return "", errors.Wrap(err, "create pcap directory")
	}
	return d, nil
}

// WriteSummary writes the per-run summary record.
func (b *Bundle) WriteSummary(s *Summary) error {
	j, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(b.Dir, "summary.json"), j, 0644)
}

// Close flushes and closes the trace files.
func (b *Bundle) Close() (err error) {
	err = multierr.Append(err, b.cwndW.Flush())
	err = multierr.Append(err, b.queueW.Flush())
	err = multierr.Append(err, b.thrW.Flush())
	err = multierr.Append(err, b.cwnd.Close())
	err = multierr.Append(err, b.queue.Close())
	err = multierr.Append(err, b.throughput.Close())
	return
}
