// Package tcpseg models a TCP segment's header and payload as the core
// state machines see them. Parsing the segment off the wire and serializing
// it back are external collaborators (see SPEC_FULL.md §6); this package
// only defines the in-memory shape, with a thin bridge to
// github.com/google/gopacket/layers.TCP for interop with a gopacket-based
// collaborator.
package tcpseg

import (
	"github.com/google/gopacket/layers"

	"github.com/postmanlabs/go-tcpstack/seqnum"
)

// MaxPayloadSize is the largest payload, in bytes, the sender will ever
// place in a single segment. It stands in for the MSS option, which is
// otherwise out of scope (§1 NON-GOALS).
const MaxPayloadSize = 1452

// Flags is a TCP control-bit bitmask. Only the four bits this stack reasons
// about are modeled; others are neither set nor inspected.
type Flags uint8

const (
	FlagFIN Flags = 1 << iota
	FlagSYN
	FlagRST
	FlagACK
)

// Has reports whether all bits of mask are set in flags.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}

func (f Flags) String() string {
	if f == 0 {
		return "[]"
	}
	var b []byte
	b = append(b, '[')
	first := true
	add := func(name string) {
		if !first {
			b = append(b, ',')
		}
		b = append(b, name...)
		first = false
	}
	if f.Has(FlagSYN) {
		add("SYN")
	}
	if f.Has(FlagACK) {
		add("ACK")
	}
	if f.Has(FlagFIN) {
		add("FIN")
	}
	if f.Has(FlagRST) {
		add("RST")
	}
	b = append(b, ']')
	return string(b)
}

// Header is a TCP segment's control information, excluding the payload.
type Header struct {
	SeqNo seqnum.WrappingInt32
	AckNo seqnum.WrappingInt32 // meaningful only when Flags.Has(FlagACK)
	Win   uint16
	Flags Flags
}

// Segment is a TCP header plus its payload.
type Segment struct {
	Header  Header
	Payload []byte
}

// LengthInSequenceSpace returns the payload length plus one for each of SYN
// and FIN that is set.
func (s Segment) LengthInSequenceSpace() int {
	n := len(s.Payload)
	if s.Header.Flags.Has(FlagSYN) {
		n++
	}
	if s.Header.Flags.Has(FlagFIN) {
		n++
	}
	return n
}

// ToLayer renders the segment as a *layers.TCP, for handoff to an external
// gopacket-based serializer. SrcPort/DstPort/checksum are left to the
// caller, since port assignment and checksumming over the IP pseudo-header
// are outside this module's scope.
func (s Segment) ToLayer() *layers.TCP {
	l := &layers.TCP{
		Seq:    s.Header.SeqNo.Raw(),
		Ack:    s.Header.AckNo.Raw(),
		SYN:    s.Header.Flags.Has(FlagSYN),
		FIN:    s.Header.Flags.Has(FlagFIN),
		RST:    s.Header.Flags.Has(FlagRST),
		ACK:    s.Header.Flags.Has(FlagACK),
		Window: s.Header.Win,
	}
	// Payload is promoted from the embedded layers.BaseLayer and can't be set
	// in the composite literal above.
	l.Payload = s.Payload
	return l
}

// FromLayer builds a Segment from a parsed *layers.TCP, as handed to this
// module by an external collaborator.
func FromLayer(tcp *layers.TCP) Segment {
	var flags Flags
	if tcp.SYN {
		flags |= FlagSYN
	}
	if tcp.FIN {
		flags |= FlagFIN
	}
	if tcp.RST {
		flags |= FlagRST
	}
	if tcp.ACK {
		flags |= FlagACK
	}
	return Segment{
		Header: Header{
			SeqNo: seqnum.WrappingInt32(tcp.Seq),
			AckNo: seqnum.WrappingInt32(tcp.Ack),
			Win:   tcp.Window,
			Flags: flags,
		},
		Payload: tcp.LayerPayload(),
	}
}

// ClampWindow clamps a capacity to the 16-bit window field's range.
func ClampWindow(n int) uint16 {
	if n < 0 {
		return 0
	}
	if n > 0xffff {
		return 0xffff
	}
	return uint16(n)
}
