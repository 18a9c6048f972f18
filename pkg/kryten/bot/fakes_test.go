package bot

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/kryten-bot/kryten/pkg/kryten/llm"
	"github.com/kryten-bot/kryten/pkg/kryten/store"
)

// sentText records one SendText call.
type sentText struct {
	ChatID int64
	Text   string
	Rich   bool
}

// sentPhoto records one SendPhoto call.
type sentPhoto struct {
	ChatID  int64
	FileID  string
	Caption string
}

// fakeMessenger captures outgoing messages in memory.
type fakeMessenger struct {
	mu     sync.Mutex
	nextID int64
	texts  []sentText
	photos []sentPhoto
}

func (f *fakeMessenger) SendText(_ context.Context, chatID int64, text string, rich bool) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.texts = append(f.texts, sentText{ChatID: chatID, Text: text, Rich: rich})
	return f.nextID, nil
}

func (f *fakeMessenger) SendPhoto(_ context.Context, chatID int64, fileID, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photos = append(f.photos, sentPhoto{ChatID: chatID, FileID: fileID, Caption: caption})
	return nil
}

func (f *fakeMessenger) SendTyping(context.Context, int64) error { return nil }

func (f *fakeMessenger) sentTexts() []sentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentText, len(f.texts))
	copy(out, f.texts)
	return out
}

func (f *fakeMessenger) lastText() (sentText, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return sentText{}, false
	}
	return f.texts[len(f.texts)-1], true
}

// fakeMedia returns fixed photo bytes.
type fakeMedia struct{}

func (fakeMedia) DownloadPhoto(context.Context, string) ([]byte, string, error) {
	return []byte("jpeg-bytes"), ".jpg", nil
}

// fakeBackend replays a scripted sequence of responses and records the
// message lists it was invoked with.
type fakeBackend struct {
	mu        sync.Mutex
	responses []*llm.Response
	calls     [][]llm.Message
}

func (f *fakeBackend) Invoke(_ context.Context, _ string, _ []llm.Tool, messages []llm.Message) (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := make([]llm.Message, len(messages))
	copy(copied, messages)
	f.calls = append(f.calls, copied)
	if len(f.responses) == 0 {
		return textResponse("fallback"), nil
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func textResponse(text string) *llm.Response {
	return &llm.Response{
		Content:    []llm.ContentBlock{{Type: "text", Text: text}},
		StopReason: llm.StopEndTurn,
		Usage:      llm.Usage{InputTokens: 10, OutputTokens: 5},
	}
}

func toolUseResponse(id, name, input string) *llm.Response {
	return &llm.Response{
		Content: []llm.ContentBlock{
			{Type: "tool_use", ID: id, Name: name, Input: []byte(input)},
		},
		StopReason: llm.StopToolUse,
		Usage:      llm.Usage{InputTokens: 20, OutputTokens: 8},
	}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "test.db")}, slog.Default())
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
