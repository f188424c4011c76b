package queue

import "sync/atomic"

// Skip is a one-shot skip request shared between the command side and the
// audio polling side. Redundant requests collapse into one.
type Skip struct {
	pending atomic.Bool
}

// Request marks a skip as pending.
func (s *Skip) Request() {
	s.pending.Store(true)
}

// ConsumeIfSet clears a pending skip and reports whether there was one.
func (s *Skip) ConsumeIfSet() bool {
	return s.pending.CompareAndSwap(true, false)
}

// Pending reports whether a skip is waiting to be consumed.
func (s *Skip) Pending() bool {
	return s.pending.Load()
}
