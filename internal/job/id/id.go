// Package id provides submission-ordered job identifiers.
package id

import "sync/atomic"

// Sequence hands out strictly increasing identifiers.
type Sequence struct {
	last atomic.Int64
}

// NewSequence returns a Sequence whose first value is start+1.
func NewSequence(start int64) *Sequence {
	s := &Sequence{}
	s.last.Store(start)
	return s
}

// Next returns the next identifier.
func (s *Sequence) Next() int64 {
	return s.last.Add(1)
}
