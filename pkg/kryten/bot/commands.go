package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kryten-bot/kryten/pkg/kryten/store"
)

const helpMsg = "🤖 Kryten — Fitness Tracking Bot\n" +
	"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n" +
	"\n" +
	"Just talk to me naturally:\n" +
	"  \"I did 25 pushups\"\n" +
	"  \"Brian and I biked 10 miles on the rail trail\"\n" +
	"  \"30 second plank, felt hard\"\n" +
	"  Send a photo with a caption → attached as proof\n" +
	"  \"How are we doing this week?\" → stats table\n" +
	"\n" +
	"I track any exercise:\n" +
	"  • Reps — pushups, situps, squats, pullups, burpees...\n" +
	"  • Timed — planks, wall sits, yoga...\n" +
	"  • Distance — biking, running, walking, swimming...\n" +
	"\n" +
	"I work in group chats too — I'll track everyone and\n" +
	"encourage friendly competition.\n" +
	"\n" +
	"Commands (zero API cost):\n" +
	"  help / about — this message\n" +
	"  usage — API cost summary\n" +
	"  photos — today's exercise photos\n" +
	"  photos yesterday — yesterday's photos\n" +
	"  photos 2026-02-15 — photos from a specific date\n"

// handleCommand intercepts the zero-cost command surface. Returns true
// when the text was consumed as a command.
func (b *Bot) handleCommand(ctx context.Context, chatID int64, text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	switch lower {
	case "help", "/help", "about", "/about":
		b.send(ctx, chatID, helpMsg, false)
		return true
	case "usage", "/usage":
		b.sendUsageSummary(ctx, chatID)
		return true
	}
	if strings.HasPrefix(lower, "photos") || strings.HasPrefix(lower, "/photos") {
		b.handlePhotosCommand(ctx, chatID, lower)
		return true
	}
	return false
}

func (b *Bot) sendUsageSummary(ctx context.Context, chatID int64) {
	s, err := b.store.GetUsageSummary()
	if err != nil {
		b.logger.Error("usage summary failed", "error", err)
		b.send(ctx, chatID, "I do apologise, Sir, I could not retrieve the usage figures.", false)
		return
	}
	text := fmt.Sprintf(
		"📊 API Usage Summary\n"+
			"━━━━━━━━━━━━━━━━━━━\n"+
			"Calls:         %d\n"+
			"Input tokens:  %s\n"+
			"Output tokens: %s\n"+
			"Total cost:    $%.4f\n"+
			"Model:         %s",
		s.Calls, groupDigits(s.InputTokens), groupDigits(s.OutputTokens), s.TotalCost, b.model)
	b.send(ctx, chatID, text, false)
}

// handlePhotosCommand parses "photos [today|yesterday|YYYY-MM-DD]" and
// sends the matching photos.
func (b *Bot) handlePhotosCommand(ctx context.Context, chatID int64, lower string) {
	arg := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(lower, "/photos"), "photos"))
	var date string
	switch arg {
	case "", "today":
		date = store.Today()
	case "yesterday":
		date = time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	default:
		if _, err := time.Parse("2006-01-02", arg); err != nil {
			b.send(ctx, chatID, "Usage: photos [today|yesterday|YYYY-MM-DD]", false)
			return
		}
		date = arg
	}
	b.sendPhotosForDate(ctx, chatID, date)
}

func (b *Bot) sendPhotosForDate(ctx context.Context, chatID int64, date string) {
	photos, err := b.store.PhotosForDate(date)
	if err != nil {
		b.logger.Error("photos lookup failed", "date", date, "error", err)
		return
	}
	if len(photos) == 0 {
		b.send(ctx, chatID, fmt.Sprintf("No photos recorded for %s.", date), false)
		return
	}
	plural := ""
	if len(photos) != 1 {
		plural = "s"
	}
	b.send(ctx, chatID, fmt.Sprintf("📷 %d photo%s from %s:", len(photos), plural, date), false)
	for _, p := range photos {
		if err := b.messenger.SendPhoto(ctx, chatID, p.FileID, photoCaption(p)); err != nil {
			b.logger.Warn("failed to send photo", "file_id", p.FileID, "error", err)
		}
	}
}

// groupDigits formats n with thousands separators.
func groupDigits(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
