package producer

import "sync/atomic"

// Seq is a monotonic counter stamped on every indexed member, so the member
// index orders placements without relying on wall-clock time.
//
// Thread-safety: Seq is safe for concurrent use (atomic operations).
type Seq struct {
	n atomic.Int64
}

// NewSeqAt creates a counter whose next value is start+1. Used to resume
// from the highest sequence number in the member index.
func NewSeqAt(start int64) *Seq {
	s := &Seq{}
	s.n.Store(start)
	return s
}

// Next returns the next sequence number.
func (s *Seq) Next() int64 { return s.n.Add(1) }

// Current returns the last issued sequence number.
func (s *Seq) Current() int64 { return s.n.Load() }
