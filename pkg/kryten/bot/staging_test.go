package bot

import "testing"

func TestStagingReplaceAndClaim(t *testing.T) {
	t.Parallel()
	p := NewPhotoStaging()

	p.Stage(1, []PhotoRef{{FileID: "old"}})
	p.Stage(1, []PhotoRef{{FileID: "new", LocalPath: "/tmp/new.jpg"}})

	peeked := p.Peek(1)
	if len(peeked) != 1 || peeked[0].FileID != "new" {
		t.Fatalf("Peek() = %v, want the replacing batch", peeked)
	}
	// Peek must not consume.
	if got := p.Peek(1); len(got) != 1 {
		t.Fatalf("Peek() after Peek() = %v, want still staged", got)
	}

	claimed := p.ClaimAndClear(1)
	if len(claimed) != 1 || claimed[0].FileID != "new" {
		t.Fatalf("ClaimAndClear() = %v", claimed)
	}
	if got := p.ClaimAndClear(1); len(got) != 0 {
		t.Errorf("ClaimAndClear() second call = %v, want empty", got)
	}
}

func TestStagingPerChat(t *testing.T) {
	t.Parallel()
	p := NewPhotoStaging()

	p.Stage(1, []PhotoRef{{FileID: "a"}})
	if got := p.Peek(2); len(got) != 0 {
		t.Errorf("Peek(other chat) = %v, want empty", got)
	}
}
