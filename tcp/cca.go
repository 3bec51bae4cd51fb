// SPDX-License-Identifier: GPL-3.0

// Package tcp approximates the TCP sender and receiver used in the
// experiments: a bulk-transfer socket with a pluggable congestion control
// algorithm, and a packet sink with delayed ACKs and ECN echo.
package tcp

import (
	"sort"

	"github.com/pkg/errors"

	"dumbbell/sim"
)

// A CCA adjusts the congestion window of a Socket in response to
// acknowledgements, losses and ECN signals.
type CCA interface {
	Name() string
	Init(s *Socket, now sim.Clock)
	OnAck(s *Socket, acked sim.Bytes, rtt sim.Clock, now sim.Clock)
	OnDupAckLoss(s *Socket, now sim.Clock)
	OnRTO(s *Socket, now sim.Clock)
	OnECE(s *Socket, now sim.Clock)
}

// ccas maps congestion control names to their factories.
var ccas = map[string]func() CCA{
	"TcpNewReno": func() CCA { return NewReno() },
	"TcpBbr":     func() CCA { return NewBbr() },
}

// NewCCA returns a new CCA of the given name.
func NewCCA(name string) (CCA, error) {
	f, ok := ccas[name]
	if !ok {
		return nil, errors.Errorf("unknown congestion control %q", name)
	}
	return f(), nil
}

// Variants returns the supported congestion control names, sorted.
func Variants() []string {
	var v []string
	for n := range ccas {
		v = append(v, n)
	}
	sort.Strings(v)
	return v
}
