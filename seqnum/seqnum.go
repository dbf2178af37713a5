// Package seqnum implements the 32-bit wrapping sequence-number arithmetic
// used by the TCP sender and receiver to translate between the wire's
// modular sequence space and the stack's 64-bit absolute stream indices.
package seqnum

import "fmt"

// modulus is the size of the sequence space, 2**32.
const modulus = uint64(1) << 32

// WrappingInt32 is a 32-bit sequence number that wraps around modulo 2**32.
// Arithmetic on it is ordinary unsigned overflow, which is exactly modular
// addition/subtraction in Go.
type WrappingInt32 uint32

// Wrap returns the WrappingInt32 that is n (mod 2**32) past isn.
func Wrap(n uint64, isn WrappingInt32) WrappingInt32 {
	return isn + WrappingInt32(uint32(n))
}

// Unwrap returns the absolute 64-bit sequence number congruent to
// seq-isn (mod 2**32) that lies closest to checkpoint. checkpoint is
// typically the number of bytes the stream has already absorbed, which
// keeps the unwrapped value from jumping by whole multiples of 2**32 as
// long as the sender and receiver stay within one window of each other.
func Unwrap(seq WrappingInt32, isn WrappingInt32, checkpoint uint64) uint64 {
	offset := uint64(uint32(seq - isn))
	base := checkpoint - (checkpoint % modulus) + offset

	best := base
	bestDist := absDiff(base, checkpoint)

	if base >= modulus {
		lower := base - modulus
		if d := absDiff(lower, checkpoint); d < bestDist {
			best, bestDist = lower, d
		}
	}

	upper := base + modulus
	if d := absDiff(upper, checkpoint); d < bestDist {
		best = upper
	}

	return best
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

func (w WrappingInt32) String() string {
	return fmt.Sprintf("%d", uint32(w))
}

// Raw returns the underlying 32-bit value.
func (w WrappingInt32) Raw() uint32 {
	return uint32(w)
}
