// SPDX-License-Identifier: GPL-3.0

package sim

import (
	"fmt"
	"time"
)

// Bytes is a number of bytes.
type Bytes int64

func (b Bytes) String() string {
	return fmt.Sprintf("%d", int64(b))
}

// Bitrate is a bitrate in bits per second.
type Bitrate int64

const (
	Kbps Bitrate = 1000
	Mbps         = 1000 * Kbps
	Gbps         = 1000 * Mbps
)

// Mbps returns the Bitrate as a floating point number of megabits per second.
func (b Bitrate) Mbps() float64 {
	return float64(b) / float64(Mbps)
}

func (b Bitrate) String() string {
	switch {
	case b >= Gbps:
		return fmt.Sprintf("%.2fGbps", float64(b)/float64(Gbps))
	case b >= Mbps:
		return fmt.Sprintf("%.2fMbps", float64(b)/float64(Mbps))
	case b >= Kbps:
		return fmt.Sprintf("%.2fKbps", float64(b)/float64(Kbps))
	}
	return fmt.Sprintf("%dbps", int64(b))
}

// CalcBitrate returns the Bitrate of the given number of Bytes over the given
// duration.
func CalcBitrate(b Bytes, d time.Duration) Bitrate {
	if d == 0 {
		return 0
	}
	return Bitrate(float64(8*b) / d.Seconds())
}

// TransferTime returns the time to transfer the given number of Bytes at the
// given Bitrate.
func TransferTime(rate Bitrate, b Bytes) Clock {
	return Clock(8 * b * Bytes(time.Second) / Bytes(rate))
}
