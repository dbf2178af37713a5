package main

import (
	"net"
	"time"

	"github.com/google/gopacket/layers"

	"github.com/postmanlabs/go-tcpstack/netif"
	"github.com/postmanlabs/go-tcpstack/printer"
	"github.com/postmanlabs/go-tcpstack/tcpconn"
)

// deliver hands every segment client currently has queued straight to peer,
// logging each one. A real driver would serialize through netif and an IP/
// Ethernet encoder instead; that framing is out of this module's scope, so
// the demo delivers segments directly between the two connections.
func deliver(label string, from, to *tcpconn.TCPConnection) {
	for _, seg := range from.DrainSegmentsOut() {
		printer.Stderr.Debugf("%s: seq=%v ack=%v win=%d flags=%v len=%d\n",
			label, seg.Header.SeqNo, seg.Header.AckNo, seg.Header.Win, seg.Header.Flags, len(seg.Payload))
		to.SegmentReceived(seg)
	}
}

// runLoopback drives the handshake, a one-way message transfer, and a
// simultaneous-ish teardown between two in-process TCPConnections, ticking
// both with real elapsed time so the retransmission timer behaves as it
// would against a real peer.
func runLoopback(client, server *tcpconn.TCPConnection, msg []byte, clock *logicalClock) {
	client.Connect()
	deliver("client->server", client, server)
	deliver("server->client", server, client)
	deliver("client->server", client, server)

	client.Write(msg)
	deliver("client->server", client, server)
	deliver("server->client", server, client)

	client.EndInputStream()
	deliver("client->server", client, server)
	deliver("server->client", server, client)

	server.EndInputStream()
	deliver("server->client", server, client)
	deliver("client->server", client, server)

	for client.Active() || server.Active() {
		time.Sleep(5 * time.Millisecond)
		ms := clock.ElapsedMillis()
		client.Tick(ms)
		server.Tick(ms)
		deliver("client->server", client, server)
		deliver("server->client", server, client)
	}

	received := server.Receiver().Reassembler().Output().Read(len(msg))
	printer.Stderr.Infof("server received: %q\n", received)

	demoARPResolution()
}

// demoARPResolution exercises netif in isolation: two hosts on the same
// logical segment resolve each other's MAC before the first payload goes
// out, independent of the TCP connections above.
func demoARPResolution() {
	hostA := netif.New(net.HardwareAddr{0x02, 0, 0, 0, 0, 1}, net.IPv4(10, 0, 0, 1))
	hostB := netif.New(net.HardwareAddr{0x02, 0, 0, 0, 0, 2}, net.IPv4(10, 0, 0, 2))

	hostA.SendDatagram([]byte("first datagram, blocked on ARP"), net.IPv4(10, 0, 0, 2))
	for _, frame := range hostA.DrainFramesOut() {
		if frame.EtherType == layers.EthernetTypeARP {
			printer.Stderr.Infof("host A: ARP who-has 10.0.0.2\n")
			hostB.RecvFrame(frame)
		}
	}
	for _, frame := range hostB.DrainFramesOut() {
		if frame.EtherType == layers.EthernetTypeARP {
			printer.Stderr.Infof("host B: ARP reply, I am 10.0.0.2\n")
			if payload, ok := hostA.RecvFrame(frame); ok {
				printer.Stderr.Infof("host A: unexpected IPv4 payload from ARP reply: %q\n", payload)
			}
		}
	}
	for _, frame := range hostA.DrainFramesOut() {
		if frame.EtherType == layers.EthernetTypeIPv4 {
			if payload, ok := hostB.RecvFrame(frame); ok {
				printer.Stderr.Infof("host B received: %q\n", payload)
			}
		}
	}
}
