// Package tcpsender implements the outbound half of a TCP endpoint:
// segment construction and window filling, processing of incoming acks,
// and retransmission with exponential backoff and zero-window probing.
package tcpsender

import (
	"github.com/postmanlabs/go-tcpstack/bytestream"
	"github.com/postmanlabs/go-tcpstack/rto"
	"github.com/postmanlabs/go-tcpstack/seqnum"
	"github.com/postmanlabs/go-tcpstack/tcpseg"
)

// outstandingSegment pairs a sent segment with its absolute starting
// sequence number, so bytes_in_flight bookkeeping doesn't have to re-unwrap
// on every ack.
type outstandingSegment struct {
	seqnoAbs uint64
	seg      tcpseg.Segment
}

// TCPSender is the outbound side of a TCP connection.
type TCPSender struct {
	streamIn *bytestream.ByteStream
	timer    *rto.Timer

	isn seqnum.WrappingInt32

	nextSeqno     uint64 // absolute; counts SYN and FIN as 1 each
	receiverAck   uint64 // absolute; highest cumulative ack received
	receiverWin   uint16
	consecutiveRT int

	finSent bool

	outstanding []outstandingSegment
	segmentsOut []tcpseg.Segment
}

// New creates a TCPSender with the given stream capacity, initial RTO
// (milliseconds), and initial sequence number.
func New(capacity int, initialRTOMillis uint32, isn seqnum.WrappingInt32) *TCPSender {
	return &TCPSender{
		streamIn:    bytestream.New(capacity),
		timer:       rto.New(initialRTOMillis),
		isn:         isn,
		receiverWin: 1, // until the first window update arrives, assume room for one byte
	}
}

// StreamIn returns the owned input stream; callers write application bytes
// to it and call EndInput to signal FIN.
func (s *TCPSender) StreamIn() *bytestream.ByteStream {
	return s.streamIn
}

// BytesInFlight returns next_seqno - receiver_ack.
func (s *TCPSender) BytesInFlight() uint64 {
	return s.nextSeqno - s.receiverAck
}

// ConsecutiveRetransmissions returns how many retransmissions have fired
// in a row without an intervening ack of new data.
func (s *TCPSender) ConsecutiveRetransmissions() int {
	return s.consecutiveRT
}

// NextSeqno returns the absolute sequence number the next emitted segment
// will start at.
func (s *TCPSender) NextSeqno() uint64 {
	return s.nextSeqno
}

// FINSent reports whether a FIN has already been placed on the wire.
func (s *TCPSender) FINSent() bool {
	return s.finSent
}

// DrainSegmentsOut removes and returns all segments queued for the driver
// to send, in the order they were produced.
func (s *TCPSender) DrainSegmentsOut() []tcpseg.Segment {
	out := s.segmentsOut
	s.segmentsOut = nil
	return out
}

func (s *TCPSender) emit(seg tcpseg.Segment) {
	s.segmentsOut = append(s.segmentsOut, seg)
}

func (s *TCPSender) effectiveWindow() int {
	w := int(s.receiverWin)
	if w == 0 {
		return 1
	}
	return w
}

// FillWindow pushes segments until either the effective window is
// exhausted, the input stream has no bytes and is not yet at EOF, or FIN
// has already been sent.
func (s *TCPSender) FillWindow() {
	if s.nextSeqno == 0 {
		seg := tcpseg.Segment{Header: tcpseg.Header{
			SeqNo: seqnum.Wrap(s.nextSeqno, s.isn),
			Flags: tcpseg.FlagSYN,
		}}
		s.sendAndTrack(seg)
		return
	}

	for {
		available := s.effectiveWindow() - int(s.BytesInFlight())
		if available <= 0 {
			return
		}
		if s.finSent {
			return
		}

		payloadLen := available
		if payloadLen > s.streamIn.BufferSize() {
			payloadLen = s.streamIn.BufferSize()
		}
		if payloadLen > tcpseg.MaxPayloadSize {
			payloadLen = tcpseg.MaxPayloadSize
		}

		payload := s.streamIn.Read(payloadLen)

		attachFIN := false
		if s.streamIn.EOF() && available >= len(payload)+1 {
			attachFIN = true
		}

		seg := tcpseg.Segment{
			Header:  tcpseg.Header{SeqNo: seqnum.Wrap(s.nextSeqno, s.isn)},
			Payload: payload,
		}
		if attachFIN {
			seg.Header.Flags |= tcpseg.FlagFIN
		}

		if seg.LengthInSequenceSpace() == 0 {
			return
		}

		if attachFIN {
			s.finSent = true
		}

		s.sendAndTrack(seg)

		if attachFIN {
			return
		}
		if s.streamIn.BufferSize() == 0 {
			// No more data to pull right now; wait for more writes or acks.
			return
		}
	}
}

func (s *TCPSender) sendAndTrack(seg tcpseg.Segment) {
	seqnoAbs := s.nextSeqno
	s.nextSeqno += uint64(seg.LengthInSequenceSpace())
	s.outstanding = append(s.outstanding, outstandingSegment{seqnoAbs: seqnoAbs, seg: seg})
	s.emit(seg)
	s.timer.Start()
}

// AckReceived processes an incoming ackno/window pair.
func (s *TCPSender) AckReceived(ackno seqnum.WrappingInt32, window uint16) {
	a := seqnum.Unwrap(ackno, s.isn, s.nextSeqno)
	if a > s.nextSeqno || a < s.receiverAck {
		return
	}

	s.receiverWin = window

	removed := false
	for len(s.outstanding) > 0 {
		first := s.outstanding[0]
		rightEdge := first.seqnoAbs + uint64(first.seg.LengthInSequenceSpace())
		if rightEdge > a {
			break
		}
		s.outstanding = s.outstanding[1:]
		s.receiverAck = rightEdge
		removed = true
	}

	if removed {
		s.timer.Reset()
		s.consecutiveRT = 0
	}
	if len(s.outstanding) == 0 {
		s.timer.Stop()
	}

	s.FillWindow()
}

// Tick advances the retransmission timer by ms milliseconds and, if it
// fires, retransmits the oldest outstanding segment.
func (s *TCPSender) Tick(ms uint32) {
	if !s.timer.Tick(ms) {
		return
	}

	if len(s.outstanding) == 0 {
		s.timer.Stop()
		return
	}

	oldest := s.outstanding[0].seg
	s.emit(oldest)

	// consecutive_retransmissions counts every retransmit, zero-window probes
	// included; only the RTO doubling itself is skipped for probes.
	s.consecutiveRT++
	if s.receiverWin == 0 {
		s.timer.Reset()
	} else {
		s.timer.HandleExpired()
	}
	s.timer.Start()
}

// SendEmptySegment emits a zero-length segment at the current send
// position without touching next_seqno or the outstanding list. Used by
// the connection for pure ACKs and RSTs.
func (s *TCPSender) SendEmptySegment(flags tcpseg.Flags) {
	s.emit(tcpseg.Segment{Header: tcpseg.Header{
		SeqNo: seqnum.Wrap(s.nextSeqno, s.isn),
		Flags: flags,
	}})
}
