// SPDX-License-Identifier: GPL-3.0

package netem

import (
	"math"

	"dumbbell/sim"
)

// A QueueDisc governs how packets are enqueued, dequeued and dropped at an
// interface.  Len is the current occupancy in packets, which the queue
// sampler reads while the run is in progress.
type QueueDisc interface {
	Enqueue(pkt Packet, now sim.Clock) bool
	Dequeue(now sim.Clock) (Packet, bool)
	Peek() (Packet, bool)
	Len() int
}

// Fifo is a drop-tail queue discipline with a fixed packet limit.
type Fifo struct {
	limit int
	queue []Packet
	drops int
}

// NewFifo returns a new Fifo with the given capacity in packets.
func NewFifo(limit int) *Fifo {
	return &Fifo{
		limit,             // limit
		make([]Packet, 0), // queue
		0,                 // drops
	}
}

// Enqueue implements QueueDisc.
func (f *Fifo) Enqueue(pkt Packet, now sim.Clock) bool {
	if len(f.queue) >= f.limit {
		f.drops++
		return false
	}
	pkt.Enqueue = now
	f.queue = append(f.queue, pkt)
	return true
}

// Dequeue implements QueueDisc.
func (f *Fifo) Dequeue(now sim.Clock) (pkt Packet, ok bool) {
	if len(f.queue) == 0 {
		return
	}
	pkt, f.queue = f.queue[0], f.queue[1:]
	ok = true
	return
}

// Peek implements QueueDisc.
func (f *Fifo) Peek() (pkt Packet, ok bool) {
	if len(f.queue) == 0 {
		return
	}
	return f.queue[0], true
}

// Len implements QueueDisc.
func (f *Fifo) Len() int {
	return len(f.queue)
}

// Drops returns the number of packets dropped at enqueue.
func (f *Fifo) Drops() int {
	return f.drops
}

// CoDel is a sojourn-time queue discipline in the manner of RFC 8289, used
// for the FqCoDelQueueDisc variant.  With ECN enabled it CE-marks ECT packets
// instead of dropping them, so congestion is signaled without loss.
type CoDel struct {
	limit    int
	target   sim.Clock
	interval sim.Clock
	ecn      bool

	queue      []Packet
	count      int
	lastCount  int
	dropping   bool
	firstAbove sim.Clock
	dropNext   sim.Clock
	drops      int
	marks      int
}

// NewCoDel returns a new CoDel with the given capacity in packets and the
// given target and interval.  ecn selects CE marking instead of dropping.
func NewCoDel(limit int, target, interval sim.Clock, ecn bool) *CoDel {
	return &CoDel{
		limit,             // limit
		target,            // target
		interval,          // interval
		ecn,               // ecn
		make([]Packet, 0), // queue
		0,                 // count
		0,                 // lastCount
		false,             // dropping
		0,                 // firstAbove
		0,                 // dropNext
		0,                 // drops
		0,                 // marks
	}
}

// Enqueue implements QueueDisc.
func (c *CoDel) Enqueue(pkt Packet, now sim.Clock) bool {
	if len(c.queue) >= c.limit {
		c.drops++
		return false
	}
	pkt.Enqueue = now
	c.queue = append(c.queue, pkt)
	return true
}

// Dequeue implements QueueDisc.
func (c *CoDel) Dequeue(now sim.Clock) (pkt Packet, ok bool) {
	for {
		if pkt, ok = c.pop(); !ok {
			c.dropping = false
			return
		}
		over := c.overTarget(pkt, now)
		if c.dropping {
			if !over {
				c.dropping = false
				return
			}
			if now < c.dropNext {
				return
			}
			if c.signal(&pkt) {
				return
			}
			c.count++
			c.dropNext = c.controlLaw(c.dropNext)
			continue
		}
		if over && now-c.firstAbove >= 0 && c.firstAbove > 0 &&
			now >= c.firstAbove+c.interval {
			c.dropping = true
			// restart from a count related to the last cycle
			if c.count > 2 && now-c.dropNext < 8*c.interval {
				c.count = c.count - c.lastCount
			} else {
				c.count = 1
			}
			c.lastCount = c.count
			c.dropNext = c.controlLaw(now)
			if c.signal(&pkt) {
				return
			}
			continue
		}
		return
	}
}

// pop removes and returns the head packet.
func (c *CoDel) pop() (pkt Packet, ok bool) {
	if len(c.queue) == 0 {
		return
	}
	pkt, c.queue = c.queue[0], c.queue[1:]
	ok = true
	return
}

// overTarget updates the first-above-target time and returns whether the
// packet's sojourn exceeds target.
func (c *CoDel) overTarget(pkt Packet, now sim.Clock) bool {
	if now-pkt.Enqueue < c.target || len(c.queue) == 0 {
		c.firstAbove = 0
		return false
	}
	if c.firstAbove == 0 {
		c.firstAbove = now
	}
	return true
}

// signal marks the packet with CE if ECN is on and the packet is ECT, and
// returns true so the marked packet is delivered.  Otherwise the packet is
// dropped and false is returned.
func (c *CoDel) signal(pkt *Packet) bool {
	if c.ecn && pkt.ECT {
		pkt.CE = true
		c.marks++
		return true
	}
	c.drops++
	return false
}

// controlLaw returns the next drop time after t.
func (c *CoDel) controlLaw(t sim.Clock) sim.Clock {
	return t + sim.Clock(float64(c.interval)/math.Sqrt(float64(c.count)))
}

// Peek implements QueueDisc.
func (c *CoDel) Peek() (pkt Packet, ok bool) {
	if len(c.queue) == 0 {
		return
	}
	return c.queue[0], true
}

// Len implements QueueDisc.
func (c *CoDel) Len() int {
	return len(c.queue)
}

// Drops returns the number of packets dropped.
func (c *CoDel) Drops() int {
	return c.drops
}

// Marks returns the number of packets CE-marked.
func (c *CoDel) Marks() int {
	return c.marks
}
