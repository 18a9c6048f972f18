package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/kryten-bot/kryten/pkg/kryten/channels"
	"github.com/kryten-bot/kryten/pkg/kryten/llm"
	"github.com/kryten-bot/kryten/pkg/kryten/store"
)

func newTestBot(t *testing.T, backend ModelBackend) (*Bot, *fakeMessenger, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	messenger := &fakeMessenger{}
	staging := NewPhotoStaging()
	gate := NewAccessGate(st, messenger, adminID, nil, nil)
	tools := NewToolExecutor(st, messenger, staging, "test-model", nil)
	b := New(nil, messenger, fakeMedia{}, backend, st, gate, tools, staging, Options{
		Model:          "test-model",
		PhotosDir:      t.TempDir(),
		MaxHistory:     20,
		DedupCapacity:  100,
		InputCostPerM:  3.0,
		OutputCostPerM: 15.0,
	}, nil)
	return b, messenger, st
}

func adminMessage(text string) *channels.IncomingMessage {
	return &channels.IncomingMessage{
		ID:        1,
		ChatID:    adminID,
		UserID:    adminID,
		FirstName: "Bob",
		Username:  "bob",
		Type:      channels.MessageText,
		Text:      text,
	}
}

func TestHelpCommandSkipsModel(t *testing.T) {
	t.Parallel()
	backend := &fakeBackend{}
	b, messenger, _ := newTestBot(t, backend)

	b.handleMessage(context.Background(), adminMessage("help"))

	if backend.callCount() != 0 {
		t.Errorf("backend invoked %d times for a zero-cost command", backend.callCount())
	}
	last, ok := messenger.lastText()
	if !ok || !strings.Contains(last.Text, "Fitness Tracking Bot") {
		t.Errorf("help reply = %+v", last)
	}
}

func TestPhotosCommandBadDate(t *testing.T) {
	t.Parallel()
	b, messenger, _ := newTestBot(t, &fakeBackend{})

	b.handleMessage(context.Background(), adminMessage("photos next tuesday"))

	last, _ := messenger.lastText()
	if last.Text != "Usage: photos [today|yesterday|YYYY-MM-DD]" {
		t.Errorf("bad date reply = %q", last.Text)
	}
}

func TestHandleMessageRecordsUsage(t *testing.T) {
	t.Parallel()
	backend := &fakeBackend{responses: []*llm.Response{textResponse("Noted, Sir.")}}
	b, messenger, st := newTestBot(t, backend)

	b.handleMessage(context.Background(), adminMessage("I did 25 pushups"))

	last, _ := messenger.lastText()
	if last.Text != "Noted, Sir." || last.Rich {
		t.Errorf("reply = %+v, want plain text", last)
	}

	// The user turn carries the sender's name.
	first := backend.calls[0][len(backend.calls[0])-1]
	if first.Content != "User 'Bob' says: I did 25 pushups" {
		t.Errorf("user turn = %v", first.Content)
	}

	u, err := st.GetUsageSummary()
	if err != nil {
		t.Fatalf("GetUsageSummary() error = %v", err)
	}
	if u.Calls != 1 || u.InputTokens != 10 || u.OutputTokens != 5 {
		t.Errorf("usage = %+v", u)
	}
	// 10 in at $3/M + 5 out at $15/M.
	want := 10.0/1_000_000*3.0 + 5.0/1_000_000*15.0
	if u.TotalCost < want*0.99 || u.TotalCost > want*1.01 {
		t.Errorf("cost = %v, want ~%v", u.TotalCost, want)
	}
}

func TestHandleMessageHistoryKeepsOnlyFinalTurns(t *testing.T) {
	t.Parallel()
	backend := &fakeBackend{responses: []*llm.Response{
		toolUseResponse("tu_1", "get_usage", "{}"),
		textResponse("All free so far, Sir."),
	}}
	b, _, _ := newTestBot(t, backend)

	b.handleMessage(context.Background(), adminMessage("what's the damage?"))

	h := b.history.Snapshot(adminID)
	if len(h) != 2 {
		t.Fatalf("history len = %d, want user turn + final reply only", len(h))
	}
	if h[1].Content != "All free so far, Sir." {
		t.Errorf("stored assistant turn = %v", h[1].Content)
	}
}

func TestHandleMessagePhotoOnly(t *testing.T) {
	t.Parallel()
	backend := &fakeBackend{responses: []*llm.Response{textResponse("A fine proof photo, Sir.")}}
	b, _, _ := newTestBot(t, backend)

	msg := adminMessage("")
	msg.Type = channels.MessageImage
	msg.PhotoFileID = "file-123"
	b.handleMessage(context.Background(), msg)

	if backend.callCount() != 1 {
		t.Fatalf("backend invoked %d times, want 1", backend.callCount())
	}
	turn := backend.calls[0][len(backend.calls[0])-1]
	if turn.Content != "User 'Bob' says: [sent a photo] [attached 1 photo]" {
		t.Errorf("user turn = %v", turn.Content)
	}
	// Staging never outlives the message.
	if got := b.staging.Peek(adminID); len(got) != 0 {
		t.Errorf("staged photos left behind: %v", got)
	}
}

func TestHandleMessageCodeBlockGoesRich(t *testing.T) {
	t.Parallel()
	backend := &fakeBackend{responses: []*llm.Response{
		textResponse("Your stats, Sir:\n```\nName  Push\nBob     25\n```"),
	}}
	b, messenger, _ := newTestBot(t, backend)

	b.handleMessage(context.Background(), adminMessage("stats"))

	last, _ := messenger.lastText()
	if !last.Rich {
		t.Error("table reply sent plain, want rich")
	}
	if !strings.Contains(last.Text, "<pre>") {
		t.Errorf("reply = %q, want <pre> markup", last.Text)
	}
}

func TestHandleMessageApologyOnFailure(t *testing.T) {
	t.Parallel()
	// A backend that always asks for tools exhausts the round budget.
	backend := &fakeBackend{responses: []*llm.Response{
		toolUseResponse("tu_x", "get_usage", "{}"),
	}}
	b, messenger, st := newTestBot(t, backend)

	b.handleMessage(context.Background(), adminMessage("loop"))

	last, _ := messenger.lastText()
	if !strings.HasPrefix(last.Text, apologyPrefix) {
		t.Errorf("failure reply = %q, want apology", last.Text)
	}
	// History keeps nothing from a failed run.
	if h := b.history.Snapshot(adminID); len(h) != 0 {
		t.Errorf("history after failure = %v, want empty", h)
	}
	// Tokens were still spent and must be accounted.
	u, _ := st.GetUsageSummary()
	if u.Calls != 1 || u.InputTokens != 20*maxToolRounds {
		t.Errorf("usage after failure = %+v", u)
	}
}

func TestStripMention(t *testing.T) {
	t.Parallel()
	b, _, _ := newTestBot(t, &fakeBackend{})
	b.SetUsernameSource(func() string { return "KrytenBot" })

	tests := []struct {
		in   string
		want string
	}{
		{"@KrytenBot how are we doing?", "how are we doing?"},
		{"@krytenbot stats", "stats"},
		{"no mention here", "no mention here"},
		{"@KrytenBot", ""},
	}
	for _, tt := range tests {
		if got := b.stripMention(tt.in); got != tt.want {
			t.Errorf("stripMention(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncateErrorKeepsRunesWhole(t *testing.T) {
	t.Parallel()

	short := errors.New("short failure")
	if got := truncateError(short); got != "short failure" {
		t.Errorf("truncateError(short) = %q", got)
	}

	// A two-byte rune straddles the 200-byte cut point.
	long := errors.New(strings.Repeat("x", 199) + strings.Repeat("é", 50))
	got := truncateError(long)
	if len(got) > 200 {
		t.Errorf("truncated error is %d bytes, want <= 200", len(got))
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncated error is not valid UTF-8: %q", got)
	}
	if !strings.HasPrefix(got, strings.Repeat("x", 199)) {
		t.Errorf("truncated error lost leading content: %q", got)
	}
}
