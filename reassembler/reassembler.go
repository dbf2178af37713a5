// Package reassembler orders and merges possibly-overlapping,
// possibly-out-of-order substrings of a byte stream into a contiguous
// bytestream.ByteStream.
//
// The window buffer is physically a ring sized to the output stream's
// capacity, indexed by absolute_index mod capacity, with a parallel "dirty"
// bitmap as the source of truth for which slots have arrived. This keeps
// overlapping retransmissions from being double-counted or double-delivered.
package reassembler

import "github.com/postmanlabs/go-tcpstack/bytestream"

// StreamReassembler reassembles out-of-order substrings into an owned
// bytestream.ByteStream.
type StreamReassembler struct {
	output *bytestream.ByteStream

	capacity int
	data     []byte // ring, length capacity
	marked   []bool // dirty bitmap, length capacity

	nextIndex   uint64 // next absolute byte index to deliver
	unassembled int    // count of stored-but-undelivered bytes

	shouldEOF bool
}

// New creates a StreamReassembler whose output stream and window both have
// the given capacity.
func New(capacity int) *StreamReassembler {
	return &StreamReassembler{
		output:   bytestream.New(capacity),
		capacity: capacity,
		data:     make([]byte, capacity),
		marked:   make([]bool, capacity),
	}
}

// Output returns the owned output stream.
func (r *StreamReassembler) Output() *bytestream.ByteStream {
	return r.output
}

// NextIndex returns the absolute index of the next byte to be delivered.
func (r *StreamReassembler) NextIndex() uint64 {
	return r.nextIndex
}

// Unassembled returns the number of bytes stored in the window but not yet
// delivered to the output stream.
func (r *StreamReassembler) Unassembled() int {
	return r.unassembled
}

// Empty reports whether the reassembler currently holds no undelivered
// bytes.
func (r *StreamReassembler) Empty() bool {
	return r.unassembled == 0
}

// PushSubstring inserts data starting at the given absolute stream index,
// optionally marking the end of the stream if eof is true. Bytes that lie
// wholly outside the current window [next_index, next_index+capacity) are
// discarded. Overlapping bytes already stored are deduplicated: storing the
// same byte twice has no additional effect.
func (r *StreamReassembler) PushSubstring(data []byte, index uint64, eof bool) {
	windowEnd := r.nextIndex + uint64(r.capacity)

	// An empty EOF exactly at the window's leading edge always sticks, even
	// though it clips to nothing below.
	if len(data) == 0 {
		if eof && index == r.nextIndex {
			r.shouldEOF = true
		}
		r.tryDeliver()
		return
	}

	// Wholly beyond the window, or wholly before next_index: discard.
	if index >= windowEnd || index+uint64(len(data)) <= r.nextIndex {
		r.tryDeliver()
		return
	}

	start := index
	if start < r.nextIndex {
		start = r.nextIndex
	}
	stop := index + uint64(len(data))
	truncatedOnRight := stop > windowEnd
	if truncatedOnRight {
		stop = windowEnd
	}

	for p := start; p < stop; p++ {
		slot := int(p % uint64(r.capacity))
		if !r.marked[slot] {
			r.data[slot] = data[p-index]
			r.marked[slot] = true
			r.unassembled++
		}
	}

	if !truncatedOnRight && eof {
		r.shouldEOF = true
	}

	r.tryDeliver()
}

// tryDeliver drains the longest available contiguous prefix starting at
// next_index that output currently has room for, then ends the output if
// should_eof has been set and nothing remains unassembled.
func (r *StreamReassembler) tryDeliver() {
	max := r.output.RemainingCapacity()
	if max > r.unassembled {
		max = r.unassembled
	}

	buf := make([]byte, 0, max)
	for len(buf) < max {
		slot := int((r.nextIndex + uint64(len(buf))) % uint64(r.capacity))
		if !r.marked[slot] {
			break
		}
		buf = append(buf, r.data[slot])
	}

	if len(buf) > 0 {
		n := r.output.Write(buf)
		for i := 0; i < n; i++ {
			slot := int((r.nextIndex + uint64(i)) % uint64(r.capacity))
			r.marked[slot] = false
		}
		r.nextIndex += uint64(n)
		r.unassembled -= n
	}

	if r.shouldEOF && r.unassembled == 0 {
		r.output.EndInput()
	}
}
