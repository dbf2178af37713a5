// Package tcpconn orchestrates a tcpsender.TCPSender and a
// tcpreceiver.TCPReceiver into a single TCP connection: it stamps outbound
// segments with ack/window, reacts to inbound segments (including RST), and
// decides when the connection is done, including a linger period to absorb
// a retransmitted final FIN from the peer.
package tcpconn

import (
	"github.com/google/uuid"

	"github.com/postmanlabs/go-tcpstack/seqnum"
	"github.com/postmanlabs/go-tcpstack/tcpreceiver"
	"github.com/postmanlabs/go-tcpstack/tcpsender"
	"github.com/postmanlabs/go-tcpstack/tcpseg"
)

// Config holds the knobs a TCPConnection needs at construction.
// ReceiveCapacity sizes both the sender's and the receiver's streams,
// InitialRTOMillis seeds the sender's retransmission timer, and
// MaxRetxAttempts bounds consecutive retransmissions before an RST.
// cfg.LoadTCPConfig builds one from YAML and environment settings.
type Config struct {
	ReceiveCapacity  int
	InitialRTOMillis uint32
	MaxRetxAttempts  int
}

// TCPConnection is a full-duplex TCP connection: an inbound receiver, an
// outbound sender, and the glue that turns one into segments for the other.
type TCPConnection struct {
	id       uuid.UUID
	cfg      Config
	sender   *tcpsender.TCPSender
	receiver *tcpreceiver.TCPReceiver

	active                   bool
	lingerAfterStreamsFinish bool
	timeSinceLastSegment     uint32

	segmentsOut []tcpseg.Segment
}

// New creates an active TCPConnection with the given configuration and
// initial sequence number. Each connection gets a random ID for log
// correlation, since the stack itself never sees the 4-tuple that would
// otherwise identify it (that lives with the external collaborator that
// demultiplexes inbound frames to connections).
func New(cfg Config, isn seqnum.WrappingInt32) *TCPConnection {
	return &TCPConnection{
		id:                       uuid.New(),
		cfg:                      cfg,
		sender:                   tcpsender.New(cfg.ReceiveCapacity, cfg.InitialRTOMillis, isn),
		receiver:                 tcpreceiver.New(cfg.ReceiveCapacity),
		active:                   true,
		lingerAfterStreamsFinish: true,
	}
}

// ID returns the connection's log-correlation identifier.
func (c *TCPConnection) ID() uuid.UUID {
	return c.id
}

// Active reports whether the connection is still alive in either direction.
func (c *TCPConnection) Active() bool {
	return c.active
}

// Sender returns the owned sender, whose StreamIn is where the application
// writes outgoing bytes.
func (c *TCPConnection) Sender() *tcpsender.TCPSender {
	return c.sender
}

// Receiver returns the owned receiver, whose Reassembler().Output() is where
// the application reads incoming bytes.
func (c *TCPConnection) Receiver() *tcpreceiver.TCPReceiver {
	return c.receiver
}

// BytesInFlight returns the sender's unacknowledged byte count.
func (c *TCPConnection) BytesInFlight() uint64 {
	return c.sender.BytesInFlight()
}

// UnassembledBytes returns the receiver reassembler's pending byte count.
func (c *TCPConnection) UnassembledBytes() int {
	return c.receiver.Reassembler().Unassembled()
}

// TimeSinceLastSegmentReceived returns the milliseconds elapsed since the
// last inbound segment, as accumulated by Tick.
func (c *TCPConnection) TimeSinceLastSegmentReceived() uint32 {
	return c.timeSinceLastSegment
}

// DrainSegmentsOut removes and returns all segments queued for the driver to
// send, already stamped with ack/window.
func (c *TCPConnection) DrainSegmentsOut() []tcpseg.Segment {
	out := c.segmentsOut
	c.segmentsOut = nil
	return out
}

func (c *TCPConnection) stampAckAndWindow(seg tcpseg.Segment) tcpseg.Segment {
	if ackno, ok := c.receiver.Ackno(); ok {
		seg.Header.Flags |= tcpseg.FlagACK
		seg.Header.AckNo = ackno
	}
	seg.Header.Win = c.receiver.WindowSize()
	return seg
}

// sendNewSegments drains the sender's pending segments, stamps each with the
// receiver's current ack/window, and reports whether anything was sent.
func (c *TCPConnection) sendNewSegments() bool {
	pending := c.sender.DrainSegmentsOut()
	for _, seg := range pending {
		c.segmentsOut = append(c.segmentsOut, c.stampAckAndWindow(seg))
	}
	return len(pending) > 0
}

func (c *TCPConnection) setError() {
	c.receiver.Reassembler().Output().SetError()
	c.sender.StreamIn().SetError()
	c.active = false
}

func (c *TCPConnection) sendRSTSegment() {
	c.sender.SendEmptySegment(0)
	pending := c.sender.DrainSegmentsOut()
	if len(pending) == 0 {
		return
	}
	seg := c.stampAckAndWindow(pending[0])
	seg.Header.Flags |= tcpseg.FlagRST
	c.segmentsOut = append(c.segmentsOut, seg)
}

func (c *TCPConnection) inboundAssembledAndEnded() bool {
	r := c.receiver.Reassembler()
	return r.Empty() && r.Output().InputEnded()
}

func (c *TCPConnection) outboundEndedAndFINSent() bool {
	return c.sender.StreamIn().EOF() && c.sender.FINSent()
}

func (c *TCPConnection) outboundFullyAcked() bool {
	return c.sender.BytesInFlight() == 0
}

// SegmentReceived processes one inbound segment: an RST tears the
// connection down immediately; otherwise it feeds the receiver, reacts to
// any ack, and ensures the peer gets a reply for any segment that consumed
// sequence space.
func (c *TCPConnection) SegmentReceived(seg tcpseg.Segment) {
	c.timeSinceLastSegment = 0

	if seg.Header.Flags.Has(tcpseg.FlagRST) {
		c.setError()
		return
	}

	c.receiver.SegmentReceived(seg)

	if c.inboundAssembledAndEnded() && !c.sender.StreamIn().EOF() {
		c.lingerAfterStreamsFinish = false
	}

	if seg.Header.Flags.Has(tcpseg.FlagACK) {
		if _, ok := c.receiver.Ackno(); !ok {
			// Listening: nothing to ack against yet, drop the ACK.
			return
		}
		c.sender.AckReceived(seg.Header.AckNo, seg.Header.Win)
		c.sender.FillWindow()
		c.sendNewSegments()
	}

	if seg.LengthInSequenceSpace() > 0 {
		c.sender.FillWindow()
		if !c.sendNewSegments() {
			c.sender.SendEmptySegment(0)
			pending := c.sender.DrainSegmentsOut()
			for _, s := range pending {
				c.segmentsOut = append(c.segmentsOut, c.stampAckAndWindow(s))
			}
		}
	}
}

// Write pushes data into the outbound stream and sends whatever segments
// that makes available. It returns the number of bytes actually accepted.
func (c *TCPConnection) Write(data []byte) int {
	n := c.sender.StreamIn().Write(data)
	c.sender.FillWindow()
	c.sendNewSegments()
	return n
}

// EndInputStream signals that the application has no more outbound bytes,
// triggering the eventual FIN once everything already queued drains out.
func (c *TCPConnection) EndInputStream() {
	c.sender.StreamIn().EndInput()
	c.sender.FillWindow()
	c.sendNewSegments()
}

// Connect kicks off the handshake by sending the initial SYN.
func (c *TCPConnection) Connect() {
	c.sender.FillWindow()
	c.sendNewSegments()
}

// Tick advances both the sender's retransmission timer and the connection's
// own bookkeeping by ms milliseconds. A segment that has exhausted its
// retransmission budget carries an RST and aborts the connection.
func (c *TCPConnection) Tick(ms uint32) {
	c.timeSinceLastSegment += ms
	c.sender.Tick(ms)

	pending := c.sender.DrainSegmentsOut()
	if len(pending) > 0 {
		seg := c.stampAckAndWindow(pending[0])
		if c.sender.ConsecutiveRetransmissions() > c.cfg.MaxRetxAttempts {
			c.setError()
			seg.Header.Flags |= tcpseg.FlagRST
		}
		c.segmentsOut = append(c.segmentsOut, seg)
	}

	if c.inboundAssembledAndEnded() && c.outboundEndedAndFINSent() && c.outboundFullyAcked() {
		if !c.lingerAfterStreamsFinish {
			c.active = false
		} else if c.timeSinceLastSegment >= 10*c.cfg.InitialRTOMillis {
			c.active = false
		}
	}
}

// Abort tears the connection down unilaterally, sending an RST to the peer.
// Callers should invoke this on unclean shutdown (e.g. the driver exiting
// while Active() is still true), in place of relying on a destructor.
func (c *TCPConnection) Abort() {
	if !c.active {
		return
	}
	c.setError()
	c.sendRSTSegment()
}
