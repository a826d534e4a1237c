package scheduler

// Slots counts the execution slots of one run. It is owned by the
// admission loop and is not safe for concurrent use.
type Slots struct {
	capacity int
	free     int
}

// NewSlots creates a counter with every slot free
func NewSlots(capacity int) *Slots {
	return &Slots{capacity: capacity, free: capacity}
}

// Acquire claims a slot and reports whether one was free
func (s *Slots) Acquire() bool {
	if s.free == 0 {
		return false
	}
	s.free--
	return true
}

// Release frees a claimed slot. Releasing with nothing claimed is a no-op.
func (s *Slots) Release() {
	if s.free < s.capacity {
		s.free++
	}
}

// Available returns the number of free slots
func (s *Slots) Available() int { return s.free }

// Capacity returns the number of slots
func (s *Slots) Capacity() int { return s.capacity }
