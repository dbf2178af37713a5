package netif

import (
	"bytes"
	"net"
	"testing"

	"github.com/google/gopacket/layers"
)

func mac(b byte) net.HardwareAddr {
	return net.HardwareAddr{0x02, 0, 0, 0, 0, b}
}

func TestSendDatagramQueuesARPRequestWhenMACUnknown(t *testing.T) {
	n := New(mac(1), net.IPv4(192, 168, 0, 1))
	n.SendDatagram([]byte("payload"), net.IPv4(192, 168, 0, 2))

	frames := n.DrainFramesOut()
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1 ARP request", len(frames))
	}
	if frames[0].EtherType != layers.EthernetTypeARP {
		t.Fatalf("EtherType = %v, want ARP", frames[0].EtherType)
	}
	if frames[0].ARP.Operation != layers.ARPRequest {
		t.Fatalf("Operation = %v, want ARPRequest", frames[0].ARP.Operation)
	}
}

func TestSendDatagramDoesNotResendARPWhileBlocked(t *testing.T) {
	n := New(mac(1), net.IPv4(192, 168, 0, 1))
	dst := net.IPv4(192, 168, 0, 2)
	n.SendDatagram([]byte("first"), dst)
	n.DrainFramesOut()
	n.SendDatagram([]byte("second"), dst)

	if frames := n.DrainFramesOut(); len(frames) != 0 {
		t.Fatalf("got %d frames while ARP still outstanding, want 0", len(frames))
	}
}

func TestLearningMACReleasesBlockedDatagram(t *testing.T) {
	n := New(mac(1), net.IPv4(192, 168, 0, 1))
	dst := net.IPv4(192, 168, 0, 2)
	n.SendDatagram([]byte("payload"), dst)
	n.DrainFramesOut()

	peerMAC := mac(2)
	n.RecvFrame(EthernetFrame{
		DstMAC:    mac(1),
		EtherType: layers.EthernetTypeARP,
		ARP: &ARPMessage{
			Operation:             layers.ARPReply,
			SenderHardwareAddress: peerMAC,
			SenderProtocolAddress: dst,
		},
	})

	frames := n.DrainFramesOut()
	if len(frames) != 1 {
		t.Fatalf("got %d frames after learning MAC, want 1 released datagram", len(frames))
	}
	if frames[0].EtherType != layers.EthernetTypeIPv4 {
		t.Fatalf("EtherType = %v, want IPv4", frames[0].EtherType)
	}
	if !bytes.Equal(frames[0].IPv4Payload, []byte("payload")) {
		t.Fatalf("payload = %q, want %q", frames[0].IPv4Payload, "payload")
	}
	if !macEqual(frames[0].DstMAC, peerMAC) {
		t.Fatalf("DstMAC = %v, want %v", frames[0].DstMAC, peerMAC)
	}
}

func TestSendDatagramUsesCachedMAC(t *testing.T) {
	n := New(mac(1), net.IPv4(192, 168, 0, 1))
	dst := net.IPv4(192, 168, 0, 2)
	peerMAC := mac(2)
	n.RecvFrame(EthernetFrame{
		DstMAC:    mac(1),
		EtherType: layers.EthernetTypeARP,
		ARP: &ARPMessage{
			Operation:             layers.ARPReply,
			SenderHardwareAddress: peerMAC,
			SenderProtocolAddress: dst,
		},
	})
	n.DrainFramesOut()

	n.SendDatagram([]byte("direct"), dst)
	frames := n.DrainFramesOut()
	if len(frames) != 1 || frames[0].EtherType != layers.EthernetTypeIPv4 {
		t.Fatalf("got %v, want one immediate IPv4 frame", frames)
	}
}

func TestRecvARPRequestForUsSendsReply(t *testing.T) {
	n := New(mac(1), net.IPv4(192, 168, 0, 1))
	peerMAC := mac(2)
	n.RecvFrame(EthernetFrame{
		DstMAC:    broadcastMAC,
		EtherType: layers.EthernetTypeARP,
		ARP: &ARPMessage{
			Operation:              layers.ARPRequest,
			SenderHardwareAddress:  peerMAC,
			SenderProtocolAddress:  net.IPv4(192, 168, 0, 2),
			TargetProtocolAddress:  net.IPv4(192, 168, 0, 1),
		},
	})

	frames := n.DrainFramesOut()
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1 ARP reply", len(frames))
	}
	if frames[0].ARP.Operation != layers.ARPReply {
		t.Fatalf("Operation = %v, want ARPReply", frames[0].ARP.Operation)
	}
	if !macEqual(frames[0].DstMAC, peerMAC) {
		t.Fatalf("reply DstMAC = %v, want requester's MAC", frames[0].DstMAC)
	}
}

func TestRecvFrameNotAddressedToUsIgnored(t *testing.T) {
	n := New(mac(1), net.IPv4(192, 168, 0, 1))
	payload, ok := n.RecvFrame(EthernetFrame{
		DstMAC:      mac(99),
		EtherType:   layers.EthernetTypeIPv4,
		IPv4Payload: []byte("not for us"),
	})
	if ok {
		t.Fatalf("RecvFrame() ok=true for a frame addressed elsewhere, payload=%q", payload)
	}
}

func TestRecvIPv4FrameReturnsPayload(t *testing.T) {
	n := New(mac(1), net.IPv4(192, 168, 0, 1))
	payload, ok := n.RecvFrame(EthernetFrame{
		DstMAC:      mac(1),
		EtherType:   layers.EthernetTypeIPv4,
		IPv4Payload: []byte("datagram"),
	})
	if !ok || !bytes.Equal(payload, []byte("datagram")) {
		t.Fatalf("RecvFrame() = (%q, %v), want (%q, true)", payload, ok, "datagram")
	}
}

func TestARPCacheEntryExpiresAfterTTL(t *testing.T) {
	n := New(mac(1), net.IPv4(192, 168, 0, 1))
	dst := net.IPv4(192, 168, 0, 2)
	n.RecvFrame(EthernetFrame{
		DstMAC:    mac(1),
		EtherType: layers.EthernetTypeARP,
		ARP: &ARPMessage{
			Operation:             layers.ARPReply,
			SenderHardwareAddress: mac(2),
			SenderProtocolAddress: dst,
		},
	})
	n.DrainFramesOut()

	n.Tick(arpEntryTTLMillis - 1)
	n.SendDatagram([]byte("still cached"), dst)
	frames := n.DrainFramesOut()
	if len(frames) != 1 || frames[0].EtherType != layers.EthernetTypeIPv4 {
		t.Fatalf("cache expired early: got %v", frames)
	}

	n.Tick(1) // now at the TTL boundary, entry expires
	n.SendDatagram([]byte("needs arp again"), dst)
	frames = n.DrainFramesOut()
	if len(frames) != 1 || frames[0].EtherType != layers.EthernetTypeARP {
		t.Fatalf("expected a fresh ARP request after expiry, got %v", frames)
	}
}

func TestBlockedDatagramRetriesARPAfterInterval(t *testing.T) {
	n := New(mac(1), net.IPv4(192, 168, 0, 1))
	dst := net.IPv4(192, 168, 0, 2)
	n.SendDatagram([]byte("payload"), dst)
	n.DrainFramesOut()

	n.Tick(arpRetryIntervalMillis)
	frames := n.DrainFramesOut()
	if len(frames) != 1 || frames[0].EtherType != layers.EthernetTypeARP {
		t.Fatalf("got %v, want a resent ARP request", frames)
	}
}
