package wire

import (
	"fmt"
	"sync"
)

// FrameSplitter accumulates bytes for one connection and splits them into
// complete EOT-terminated frames, keeping a FIFO of completed frames
// ready for ReceiveOne. The accumulator is one owned, reused byte slice,
// never reallocated per packet; the only per-message allocation is the
// copy made of each completed frame.
//
// Multiple complete messages arriving in a single underlying transport
// read are delivered one at a time, in arrival order.
type FrameSplitter struct {
	mu      sync.Mutex
	acc     []byte
	maxSize int
	pending [][]byte
}

// NewFrameSplitter creates a splitter with the default 512-byte cap.
func NewFrameSplitter() *FrameSplitter {
	return NewFrameSplitterWithMaxSize(DefaultMaxFrameSize)
}

// NewFrameSplitterWithMaxSize creates a splitter with a custom cap.
func NewFrameSplitterWithMaxSize(maxSize int) *FrameSplitter {
	return &FrameSplitter{
		acc:     make([]byte, 0, maxSize),
		maxSize: maxSize,
	}
}

// Feed appends newly-read bytes to the accumulator and extracts any
// complete (EOT-terminated) frames into the pending FIFO. A frame never
// includes the EOT byte itself. If the accumulator would exceed its cap
// before an EOT is seen, Feed resets the accumulator to empty and returns
// ErrFramingOverflow; this must not abort the receive loop.
func (s *FrameSplitter) Feed(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range data {
		if b == EOT {
			frame := make([]byte, len(s.acc))
			copy(frame, s.acc)
			s.pending = append(s.pending, frame)
			s.acc = s.acc[:0]
			continue
		}
		if len(s.acc) >= s.maxSize {
			s.acc = s.acc[:0]
			return fmt.Errorf("%w: exceeded %d bytes", ErrFramingOverflow, s.maxSize)
		}
		s.acc = append(s.acc, b)
	}
	return nil
}

// ReceiveOne pops the oldest complete frame, if any.
func (s *FrameSplitter) ReceiveOne() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil, false
	}
	frame := s.pending[0]
	s.pending = s.pending[1:]
	return frame, true
}

// Pending returns the number of complete frames waiting to be received.
func (s *FrameSplitter) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
