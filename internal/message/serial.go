package message

import "sync/atomic"

// SerialSource hands out monotonically increasing, nonzero serial
// numbers for outbound method calls and signals. The value 1 is
// skipped by convention (some routers reserve it).
type SerialSource struct {
	next uint32
}

// NewSerialSource returns a source that begins at 2.
func NewSerialSource() *SerialSource {
	return &SerialSource{next: 2}
}

// Next returns the next serial, skipping 0 and 1.
func (s *SerialSource) Next() uint32 {
	for {
		v := atomic.AddUint32(&s.next, 1) - 1
		if v != 0 && v != 1 {
			return v
		}
	}
}
