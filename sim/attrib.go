// SPDX-License-Identifier: GPL-3.0

package sim

import (
	"github.com/pkg/errors"
)

// Attribute names configurable through Defaults.  Components of the network
// model read these at construction time, so defaults must be in place before
// any node is created.  DeviceByteQueue is recorded for the configuration
// surface only: a device holds at most DeviceQueue packets' worth of bytes,
// so its byte limit is inherent rather than separately enforced.
const (
	TCPSocketType   = "tcp.socketType"   // string: congestion control name
	TCPSndBufSize   = "tcp.sndBufSize"   // Bytes: socket send buffer
	TCPRcvBufSize   = "tcp.rcvBufSize"   // Bytes: socket receive buffer
	TCPInitialCwnd  = "tcp.initialCwnd"  // int: initial window in segments
	TCPDelAckCount  = "tcp.delAckCount"  // int: delayed ACK segment count
	TCPSegmentSize  = "tcp.segmentSize"  // Bytes: MSS
	TCPUseEcn       = "tcp.useEcn"       // bool: negotiate ECN on sockets
	DeviceQueue     = "device.queue"     // int: device queue capacity, packets
	DeviceByteQueue = "device.byteQueue" // bool: recorded; see above
	QueueDiscType   = "queueDisc.type"   // string: queue discipline name
	QueueDiscSize   = "queueDisc.size"   // int: qdisc capacity, packets
	QueueDiscEcn    = "queueDisc.ecn"    // bool: CE-mark instead of drop
)

// attribDefaults declares the known attribute names, and for each its
// fallback value, which also fixes the attribute's type.
var attribDefaults = map[string]any{
	TCPSocketType:   "TcpNewReno",
	TCPSndBufSize:   Bytes(131072),
	TCPRcvBufSize:   Bytes(131072),
	TCPInitialCwnd:  10,
	TCPDelAckCount:  2,
	TCPSegmentSize:  Bytes(1448),
	TCPUseEcn:       false,
	DeviceQueue:     1,
	DeviceByteQueue: true,
	QueueDiscType:   "FifoQueueDisc",
	QueueDiscSize:   100,
	QueueDiscEcn:    false,
}

// Defaults holds named attribute values applied to the network model before a
// run starts, in the manner of global protocol defaults.
type Defaults struct {
	value map[string]any
}

// NewDefaults returns a Defaults with every attribute at its fallback value.
func NewDefaults() *Defaults {
	return &Defaults{make(map[string]any)}
}

// Set assigns a value to a named attribute.  Unknown names and values of the
// wrong type are errors, so misconfiguration surfaces before the run.
func (d *Defaults) Set(name string, value any) error {
	f, ok := attribDefaults[name]
	if !ok {
		return errors.Errorf("unknown attribute %q", name)
	}
	switch f.(type) {
	case string:
		if _, ok = value.(string); !ok {
			return errors.Errorf("attribute %q wants a string, got %T",
				name, value)
		}
	case int:
		if _, ok = value.(int); !ok {
			return errors.Errorf("attribute %q wants an int, got %T",
				name, value)
		}
	case bool:
		if _, ok = value.(bool); !ok {
			return errors.Errorf("attribute %q wants a bool, got %T",
				name, value)
		}
	case Bytes:
		if _, ok = value.(Bytes); !ok {
			return errors.Errorf("attribute %q wants sim.Bytes, got %T",
				name, value)
		}
	}
	d.value[name] = value
	return nil
}

// get returns the assigned or fallback value for name.
func (d *Defaults) get(name string) any {
	if v, ok := d.value[name]; ok {
		return v
	}
	return attribDefaults[name]
}

// String returns the value of a string attribute.
func (d *Defaults) String(name string) string {
	return d.get(name).(string)
}

// Int returns the value of an int attribute.
func (d *Defaults) Int(name string) int {
	return d.get(name).(int)
}

// Bool returns the value of a bool attribute.
func (d *Defaults) Bool(name string) bool {
	return d.get(name).(bool)
}

// Bytes returns the value of a Bytes attribute.
func (d *Defaults) Bytes(name string) Bytes {
	return d.get(name).(Bytes)
}
