// SPDX-License-Identifier: GPL-3.0

package harness

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"

	"dumbbell/netem"
	"dumbbell/sim"
)

// captureEpoch anchors virtual time in the capture files.
var captureEpoch = time.Unix(0, 0)

// Capture writes one pcap file per network interface, serializing simulated
// packets as Ethernet/IPv4/TCP frames as they begin transmission.
type Capture struct {
	files []*os.File
}

// EnableCapture opens a capture file for every interface in the topology
// under dir and taps each interface's transmit path.
func EnableCapture(dir string, t *Topology) (*Capture, error) {
	c := &Capture{}
	mac := 0
	for _, n := range t.Nodes {
		for i, ifc := range n.Ifaces() {
			name := fmt.Sprintf("dumbbell-%s-%d.pcap", n.Name(), i)
			f, err := os.Create(filepath.Join(dir, name))
			if err != nil {
				c.Close()
				return nil, errors.Wrap(err, "open capture file")
			}
			w := pcapgo.NewWriter(f)
			if err = w.WriteFileHeader(65535,
				layers.LinkTypeEthernet); err != nil {
				c.Close()
				return nil, errors.Wrap(err, "write capture header")
			}
			c.files = append(c.files, f)
			src := hwAddr(mac)
			dst := hwAddr(mac + 1)
			mac += 2
			ifc.SetTap(func(pkt netem.Packet, now sim.Clock) {
				writeFrame(w, pkt, now, src, dst)
			})
		}
	}
	return c, nil
}

// hwAddr fabricates a locally administered MAC address.
func hwAddr(i int) net.HardwareAddr {
	return net.HardwareAddr{0x02, 0, 0, 0, byte(i >> 8), byte(i)}
}

// writeFrame serializes one simulated packet into a capture file.
func writeFrame(w *pcapgo.Writer, pkt netem.Packet, now sim.Clock,
	src, dst net.HardwareAddr) {
	eth := layers.Ethernet{
		SrcMAC:       src,
		DstMAC:       dst,
		EthernetType: layers.EthernetTypeIPv4,
	}
	var tos uint8
	if pkt.ECT {
		tos = 0x02 // ECT(0)
	}
	if pkt.CE {
		tos = 0x03 // CE
	}
	ip := layers.IPv4{
		Version:  4,
		TTL:      64,
		TOS:      tos,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.ParseIP(pkt.Src).To4(),
		DstIP:    net.ParseIP(pkt.Dst).To4(),
	}
	tcpl := layers.TCP{
		SrcPort: layers.TCPPort(pkt.SrcPort),
		DstPort: layers.TCPPort(pkt.DstPort),
		Seq:     uint32(pkt.Seq),
		Ack:     uint32(pkt.AckNum),
		SYN:     pkt.SYN,
		ACK:     pkt.ACK,
		ECE:     pkt.ECE,
		Window:  65535,
	}
	tcpl.SetNetworkLayerForChecksum(&ip)
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	payload := make([]byte, pkt.SegmentLen())
	if err := gopacket.SerializeLayers(buf, opts,
		&eth, &ip, &tcpl, gopacket.Payload(payload)); err != nil {
		return
	}
	data := buf.Bytes()
	w.WritePacket(gopacket.CaptureInfo{
		Timestamp:     captureEpoch.Add(time.Duration(now)),
		CaptureLength: len(data),
		Length:        len(data),
	}, data)
}

// Close closes the capture files.
func (c *Capture) Close() {
	for _, f := range c.files {
		f.Close()
	}
}
