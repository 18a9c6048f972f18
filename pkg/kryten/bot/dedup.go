package bot

import "sync"

// SeenSet remembers recently processed message IDs so a message is never
// handled twice. Entries are evicted FIFO once the capacity is reached;
// re-checking an ID does not refresh its position.
type SeenSet struct {
	mu    sync.Mutex
	cap   int
	set   map[int64]struct{}
	order []int64
}

// NewSeenSet creates a SeenSet holding up to capacity IDs.
func NewSeenSet(capacity int) *SeenSet {
	if capacity <= 0 {
		capacity = 2000
	}
	return &SeenSet{
		cap: capacity,
		set: make(map[int64]struct{}, capacity),
	}
}

// MarkSeen records the ID and reports whether it was already present.
// The check and insert happen under one lock acquisition.
func (s *SeenSet) MarkSeen(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.set[id]; ok {
		return true
	}
	if len(s.order) >= s.cap {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.set, oldest)
	}
	s.set[id] = struct{}{}
	s.order = append(s.order, id)
	return false
}

// Len returns the number of remembered IDs.
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.set)
}
