package bytestream

import (
	"bytes"
	"testing"
)

func TestWriteReadIdentity(t *testing.T) {
	s := New(15)
	n := s.Write([]byte("hello world"))
	if n != len("hello world") {
		t.Fatalf("Write returned %d, want %d", n, len("hello world"))
	}
	if got := s.BufferSize(); got != 11 {
		t.Fatalf("BufferSize() = %d, want 11", got)
	}
	out := s.Read(11)
	if !bytes.Equal(out, []byte("hello world")) {
		t.Fatalf("Read() = %q, want %q", out, "hello world")
	}
	if s.BytesWritten() != s.BytesRead() {
		t.Fatalf("bytes_written=%d != bytes_read=%d after full drain", s.BytesWritten(), s.BytesRead())
	}
}

func TestPartialWriteWhenFull(t *testing.T) {
	s := New(4)
	n := s.Write([]byte("abcdef"))
	if n != 4 {
		t.Fatalf("Write() = %d, want 4 (capacity-limited)", n)
	}
	if s.RemainingCapacity() != 0 {
		t.Fatalf("RemainingCapacity() = %d, want 0", s.RemainingCapacity())
	}
}

func TestInvariantBytesWrittenMinusReadEqualsSize(t *testing.T) {
	s := New(10)
	s.Write([]byte("abcde"))
	s.PopOutput(2)
	s.Write([]byte("fg"))
	if got, want := s.BytesWritten()-s.BytesRead(), uint64(s.BufferSize()); got != want {
		t.Fatalf("bytes_written-bytes_read = %d, want BufferSize() = %d", got, want)
	}
}

func TestEndInputAndEOF(t *testing.T) {
	s := New(10)
	s.Write([]byte("ab"))
	if s.EOF() {
		t.Fatalf("EOF() = true before EndInput")
	}
	s.EndInput()
	if s.EOF() {
		t.Fatalf("EOF() = true while bytes remain unread")
	}
	s.Read(2)
	if !s.EOF() {
		t.Fatalf("EOF() = false after EndInput and full drain")
	}
}

func TestWriteAfterEndInputSetsError(t *testing.T) {
	s := New(10)
	s.EndInput()
	n := s.Write([]byte("x"))
	if n != 0 {
		t.Fatalf("Write() after EndInput = %d, want 0", n)
	}
	if !s.Error() {
		t.Fatalf("Error() = false after write-after-EndInput")
	}
}

func TestErrorStateMakesReadsWritesNoOps(t *testing.T) {
	s := New(10)
	s.Write([]byte("abc"))
	s.SetError()
	if n := s.Write([]byte("d")); n != 0 {
		t.Fatalf("Write() after SetError = %d, want 0", n)
	}
	if out := s.Read(3); len(out) != 0 {
		t.Fatalf("Read() after SetError = %q, want empty", out)
	}
}

func TestRingWrapsAround(t *testing.T) {
	s := New(4)
	s.Write([]byte("ab"))
	s.PopOutput(2)
	s.Write([]byte("cdef"))
	if got := s.Read(4); !bytes.Equal(got, []byte("cdef")) {
		t.Fatalf("Read() after wraparound = %q, want %q", got, "cdef")
	}
}
