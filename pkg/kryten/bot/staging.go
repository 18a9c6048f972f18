package bot

import "sync"

// PhotoRef identifies a staged photo by its Telegram file ID and, when
// the download succeeded, its local copy.
type PhotoRef struct {
	FileID    string
	LocalPath string
}

// PhotoStaging holds photos received without a caption, per chat, until
// a later text message claims them for an exercise record. Staging a new
// batch replaces any previous one.
type PhotoStaging struct {
	mu     sync.Mutex
	staged map[int64][]PhotoRef
}

// NewPhotoStaging creates an empty staging area.
func NewPhotoStaging() *PhotoStaging {
	return &PhotoStaging{staged: make(map[int64][]PhotoRef)}
}

// Stage replaces the chat's staged photos with the given batch.
func (p *PhotoStaging) Stage(chatID int64, photos []PhotoRef) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.staged[chatID] = photos
}

// Peek returns a copy of the chat's staged photos without clearing them.
func (p *PhotoStaging) Peek(chatID int64) []PhotoRef {
	p.mu.Lock()
	defer p.mu.Unlock()
	photos := p.staged[chatID]
	out := make([]PhotoRef, len(photos))
	copy(out, photos)
	return out
}

// ClaimAndClear atomically takes and clears the chat's staged photos.
func (p *PhotoStaging) ClaimAndClear(chatID int64) []PhotoRef {
	p.mu.Lock()
	defer p.mu.Unlock()
	photos := p.staged[chatID]
	delete(p.staged, chatID)
	return photos
}
