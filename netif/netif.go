// Package netif implements the boundary between the internet layer and the
// link layer: an ARP cache, a queue of datagrams blocked on address
// resolution, and the logic to decide when frames go out and come in.
// Ethernet and ARP wire encoding/decoding are external collaborators (see
// SPEC_FULL.md §6); this package deals only in already-framed
// github.com/google/gopacket/layers types and its own ARPMessage, never in
// raw bytes off a wire.
package netif

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// arpEntryTTLMillis is how long a learned MAC stays valid before a fresh
// ARP request is required, mirroring the 30-second cache lifetime used by
// the reference implementation this package is grounded on.
const arpEntryTTLMillis = 30_000

// arpRetryIntervalMillis bounds how often an unanswered ARP request for the
// same next hop is resent.
const arpRetryIntervalMillis = 5_000

var broadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ARPMessage is the decoded form of an ARP request or reply, as handed to
// this package by an external frame parser. Operation uses the
// layers.ARPRequest / layers.ARPReply constants.
type ARPMessage struct {
	Operation              uint16
	SenderHardwareAddress  net.HardwareAddr
	SenderProtocolAddress  net.IP
	TargetHardwareAddress  net.HardwareAddr
	TargetProtocolAddress  net.IP
}

// EthernetFrame is the decoded form of an Ethernet frame: exactly one of
// IPv4Payload or ARP is set, selected by EtherType.
type EthernetFrame struct {
	DstMAC    net.HardwareAddr
	SrcMAC    net.HardwareAddr
	EtherType layers.EthernetType

	IPv4Payload []byte
	ARP         *ARPMessage
}

type arpCacheEntry struct {
	mac   net.HardwareAddr
	ageMs uint32
}

type blockedDatagram struct {
	payload []byte
	nextHop net.IP
	ageMs   uint32
}

// NetworkInterface translates IP datagrams into Ethernet frames (resolving
// the next hop's MAC via ARP when needed) and Ethernet frames back into IP
// datagrams or learned ARP mappings.
type NetworkInterface struct {
	mac net.HardwareAddr
	ip  net.IP

	framesOut []EthernetFrame

	arpCache map[gopacket.Endpoint]*arpCacheEntry
	blocked  map[gopacket.Endpoint]*blockedDatagram
}

// New creates a NetworkInterface with the given hardware and IP addresses.
func New(mac net.HardwareAddr, ip net.IP) *NetworkInterface {
	return &NetworkInterface{
		mac:      mac,
		ip:       ip.To4(),
		arpCache: make(map[gopacket.Endpoint]*arpCacheEntry),
		blocked:  make(map[gopacket.Endpoint]*blockedDatagram),
	}
}

// ipEndpoint turns an IPv4 address into the gopacket.Endpoint used as the
// ARP cache and blocked-datagram key, the same endpoint type
// layers.IPv4.NetworkFlow() produces for an already-parsed datagram.
func ipEndpoint(ip net.IP) gopacket.Endpoint {
	return layers.NewIPEndpoint(ip.To4())
}

// DrainFramesOut removes and returns all frames queued for transmission.
func (n *NetworkInterface) DrainFramesOut() []EthernetFrame {
	out := n.framesOut
	n.framesOut = nil
	return out
}

func (n *NetworkInterface) emit(f EthernetFrame) {
	f.SrcMAC = n.mac
	n.framesOut = append(n.framesOut, f)
}

func (n *NetworkInterface) sendARPRequest(nextHop net.IP) {
	n.emit(EthernetFrame{
		DstMAC:    broadcastMAC,
		EtherType: layers.EthernetTypeARP,
		ARP: &ARPMessage{
			Operation:             layers.ARPRequest,
			SenderHardwareAddress: n.mac,
			SenderProtocolAddress: n.ip,
			TargetProtocolAddress: nextHop.To4(),
		},
	})
}

// SendDatagram queues an IPv4 datagram for nextHop. If the next hop's MAC is
// already known, the datagram goes out immediately; otherwise it is
// remembered (replacing any previously blocked datagram for the same next
// hop) and an ARP request is issued, no more often than once per
// arpRetryIntervalMillis.
func (n *NetworkInterface) SendDatagram(payload []byte, nextHop net.IP) {
	key := ipEndpoint(nextHop)

	if entry, ok := n.arpCache[key]; ok {
		n.emit(EthernetFrame{
			DstMAC:      entry.mac,
			EtherType:   layers.EthernetTypeIPv4,
			IPv4Payload: payload,
		})
		return
	}

	if _, alreadyBlocked := n.blocked[key]; !alreadyBlocked {
		n.sendARPRequest(nextHop)
	}
	n.blocked[key] = &blockedDatagram{payload: payload, nextHop: nextHop.To4()}
}

// RecvFrame processes an inbound frame. If it carries an IPv4 datagram
// addressed to this interface, the datagram is returned with ok true. ARP
// requests and replies are absorbed: requests directed at this interface's
// IP get an ARP reply queued, and both requests and replies cause the
// sender's mapping to be learned, releasing any datagram blocked on it.
func (n *NetworkInterface) RecvFrame(frame EthernetFrame) ([]byte, bool) {
	addressedToUs := macEqual(frame.DstMAC, n.mac) || macEqual(frame.DstMAC, broadcastMAC)
	if !addressedToUs {
		return nil, false
	}

	switch frame.EtherType {
	case layers.EthernetTypeIPv4:
		return frame.IPv4Payload, true

	case layers.EthernetTypeARP:
		if frame.ARP == nil {
			return nil, false
		}
		n.learn(frame.ARP.SenderProtocolAddress, frame.ARP.SenderHardwareAddress)

		if frame.ARP.Operation == layers.ARPRequest && frame.ARP.TargetProtocolAddress.Equal(n.ip) {
			n.emit(EthernetFrame{
				DstMAC:    frame.ARP.SenderHardwareAddress,
				EtherType: layers.EthernetTypeARP,
				ARP: &ARPMessage{
					Operation:             layers.ARPReply,
					SenderHardwareAddress: n.mac,
					SenderProtocolAddress: n.ip,
					TargetHardwareAddress: frame.ARP.SenderHardwareAddress,
					TargetProtocolAddress: frame.ARP.SenderProtocolAddress,
				},
			})
		}
		return nil, false
	}

	return nil, false
}

func (n *NetworkInterface) learn(ip net.IP, mac net.HardwareAddr) {
	if ip == nil || mac == nil {
		return
	}
	key := ipEndpoint(ip)
	n.arpCache[key] = &arpCacheEntry{mac: mac}

	if blocked, ok := n.blocked[key]; ok {
		n.emit(EthernetFrame{
			DstMAC:      mac,
			EtherType:   layers.EthernetTypeIPv4,
			IPv4Payload: blocked.payload,
		})
		delete(n.blocked, key)
	}
}

// Tick ages the ARP cache and the blocked-datagram table, expiring entries
// older than their TTL and re-requesting MACs for next hops still waiting.
func (n *NetworkInterface) Tick(ms uint32) {
	for key, entry := range n.arpCache {
		entry.ageMs += ms
		if entry.ageMs >= arpEntryTTLMillis {
			delete(n.arpCache, key)
		}
	}

	for _, blocked := range n.blocked {
		blocked.ageMs += ms
		if blocked.ageMs >= arpRetryIntervalMillis {
			blocked.ageMs = 0
			n.sendARPRequest(blocked.nextHop)
		}
	}
}

func macEqual(a, b net.HardwareAddr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
