// Package tcpreceiver implements the inbound half of a TCP endpoint: it
// unwraps arriving segments' sequence numbers, feeds an owned
// reassembler.StreamReassembler, and reports the ackno and window the
// connection should advertise back to the peer.
package tcpreceiver

import (
	"github.com/postmanlabs/go-tcpstack/reassembler"
	"github.com/postmanlabs/go-tcpstack/seqnum"
	"github.com/postmanlabs/go-tcpstack/tcpseg"
)

// TCPReceiver is the inbound side of a TCP connection.
type TCPReceiver struct {
	reassembler *reassembler.StreamReassembler

	hasISN bool
	isn    seqnum.WrappingInt32

	hasAckno bool
	ackno    seqnum.WrappingInt32
}

// New creates a TCPReceiver whose reassembler output has the given
// capacity.
func New(capacity int) *TCPReceiver {
	return &TCPReceiver{
		reassembler: reassembler.New(capacity),
	}
}

// Reassembler returns the owned reassembler, whose Output is where
// delivered application bytes accumulate.
func (r *TCPReceiver) Reassembler() *reassembler.StreamReassembler {
	return r.reassembler
}

// SegmentReceived processes one inbound segment.
func (r *TCPReceiver) SegmentReceived(seg tcpseg.Segment) {
	if seg.Header.Flags.Has(tcpseg.FlagSYN) && !r.hasISN {
		r.hasISN = true
		r.isn = seg.Header.SeqNo
	}

	if r.hasISN {
		checkpoint := r.reassembler.Output().BytesWritten()
		absoluteSeqno := seqnum.Unwrap(seg.Header.SeqNo, r.isn, checkpoint)

		var absoluteIndex uint64
		if seg.Header.Flags.Has(tcpseg.FlagSYN) {
			// The byte immediately after the SYN starts at absolute stream
			// index 0.
			absoluteIndex = 0
		} else {
			absoluteIndex = absoluteSeqno - 1
		}

		r.reassembler.PushSubstring(seg.Payload, absoluteIndex, seg.Header.Flags.Has(tcpseg.FlagFIN))

		r.recomputeAckno()
	}
}

func (r *TCPReceiver) recomputeAckno() {
	n := r.reassembler.Output().BytesWritten() + 1
	if r.reassembler.Output().InputEnded() {
		n++
	}
	r.hasAckno = true
	r.ackno = seqnum.Wrap(n, r.isn)
}

// Ackno returns the current acknowledgment number and whether one is
// available yet (it is not, before the first SYN has been seen).
func (r *TCPReceiver) Ackno() (seqnum.WrappingInt32, bool) {
	return r.ackno, r.hasAckno
}

// WindowSize returns the window the receiver is currently able to accept,
// clamped to what fits in a 16-bit wire field.
func (r *TCPReceiver) WindowSize() uint16 {
	return tcpseg.ClampWindow(r.reassembler.Output().RemainingCapacity())
}
