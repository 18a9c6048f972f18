package bot

import "testing"

func TestSeenSetMarkSeen(t *testing.T) {
	t.Parallel()
	s := NewSeenSet(10)

	if s.MarkSeen(1) {
		t.Error("MarkSeen(1) first call = true, want false")
	}
	if !s.MarkSeen(1) {
		t.Error("MarkSeen(1) second call = false, want true")
	}
}

func TestSeenSetEvictsOldestFirst(t *testing.T) {
	t.Parallel()
	s := NewSeenSet(3)

	s.MarkSeen(1)
	s.MarkSeen(2)
	s.MarkSeen(3)

	// Re-checking must not refresh eviction order.
	if !s.MarkSeen(1) {
		t.Fatal("MarkSeen(1) = false, want true")
	}

	// Inserting a fourth ID evicts 1, the oldest.
	s.MarkSeen(4)
	if s.MarkSeen(1) {
		t.Error("MarkSeen(1) after eviction = true, want false")
	}
	// Re-inserting 1 evicted 2; 3 and 4 remain.
	if !s.MarkSeen(3) {
		t.Error("MarkSeen(3) = false, want true; should still be remembered")
	}
	if !s.MarkSeen(4) {
		t.Error("MarkSeen(4) = false, want true; should still be remembered")
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
}
