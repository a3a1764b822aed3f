package at

import "errors"

// ErrBufferFull is returned by RingBuffer.Write when the incoming data
// does not fit into the remaining capacity.
var ErrBufferFull = errors.New("ring buffer full")

// RingBuffer is a fixed-capacity byte buffer with read/write cursors.
// The monitor loop appends raw transport reads to it and extracts
// complete response records from the front, so a record split across
// two reads is reassembled without copying the whole backlog around.
type RingBuffer struct {
	buf   []byte
	start int // read cursor
	size  int // bytes currently stored
}

// NewRingBuffer creates a ring buffer with the given capacity.
func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{buf: make([]byte, capacity)}
}

// Len returns the number of buffered bytes.
func (rb *RingBuffer) Len() int { return rb.size }

// Free returns the remaining capacity.
func (rb *RingBuffer) Free() int { return len(rb.buf) - rb.size }

// Write appends p to the buffer. It writes all of p or nothing,
// returning ErrBufferFull when p exceeds the free space.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	if len(p) > rb.Free() {
		return 0, ErrBufferFull
	}
	pos := (rb.start + rb.size) % len(rb.buf)
	n := copy(rb.buf[pos:], p)
	if n < len(p) {
		copy(rb.buf, p[n:])
	}
	rb.size += len(p)
	return len(p), nil
}

// at returns the byte at logical offset i from the read cursor.
func (rb *RingBuffer) at(i int) byte {
	return rb.buf[(rb.start+i)%len(rb.buf)]
}

// discard advances the read cursor by n bytes.
func (rb *RingBuffer) discard(n int) {
	if n > rb.size {
		n = rb.size
	}
	rb.start = (rb.start + n) % len(rb.buf)
	rb.size -= n
}

// slice copies the logical range [from, to) into a new byte slice.
func (rb *RingBuffer) slice(from, to int) []byte {
	out := make([]byte, to-from)
	for i := range out {
		out[i] = rb.at(from + i)
	}
	return out
}

// index returns the logical offset of the first occurrence of seq at or
// after offset from, or -1 if seq is not buffered in full.
func (rb *RingBuffer) index(seq string, from int) int {
	for i := from; i+len(seq) <= rb.size; i++ {
		match := true
		for j := 0; j < len(seq); j++ {
			if rb.at(i+j) != seq[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// ExtractRecord removes and returns the next complete response record:
// either a CRLF-terminated line (without the terminator) or the SMS
// prompt. Leading line terminators and empty lines are consumed and
// skipped. It returns ok=false when no complete record is buffered yet.
//
// Like Classify, this assumes "No Echo" mode (ATE0).
func (rb *RingBuffer) ExtractRecord() (record string, ok bool) {
	for {
		// Drop leading CR/LF left over from the previous record.
		skip := 0
		for skip < rb.size && (rb.at(skip) == '\r' || rb.at(skip) == '\n') {
			skip++
		}
		rb.discard(skip)

		if rb.index(Prompt, 0) == 0 {
			rb.discard(len(Prompt))
			return Prompt, true
		}

		end := rb.index(CRLF, 0)
		if end < 0 {
			return "", false
		}
		line := string(rb.slice(0, end))
		rb.discard(end + len(CRLF))
		if line != "" {
			return line, true
		}
	}
}
