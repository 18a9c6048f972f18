package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/kryten-bot/kryten/pkg/kryten/channels"
	"github.com/kryten-bot/kryten/pkg/kryten/store"
)

// Digest sends a daily exercise summary to a chat on a cron schedule.
type Digest struct {
	store     *store.Store
	messenger channels.Messenger
	chatID    int64
	schedule  string
	logger    *slog.Logger
	cron      *cron.Cron
}

// NewDigest creates a digest sender. schedule is a standard cron
// expression; an empty chatID disables the digest.
func NewDigest(st *store.Store, messenger channels.Messenger, chatID int64, schedule string, logger *slog.Logger) *Digest {
	if logger == nil {
		logger = slog.Default()
	}
	if schedule == "" {
		schedule = "0 21 * * *"
	}
	return &Digest{
		store:     st,
		messenger: messenger,
		chatID:    chatID,
		schedule:  schedule,
		logger:    logger.With("component", "digest"),
	}
}

// Start schedules the digest. No-op when no chat is configured.
func (d *Digest) Start(ctx context.Context) error {
	if d.chatID == 0 {
		d.logger.Debug("digest disabled, no chat configured")
		return nil
	}
	d.cron = cron.New()
	if _, err := d.cron.AddFunc(d.schedule, func() { d.sendDigest(ctx) }); err != nil {
		return fmt.Errorf("schedule digest %q: %w", d.schedule, err)
	}
	d.cron.Start()
	d.logger.Info("digest scheduled", "schedule", d.schedule, "chat_id", d.chatID)
	return nil
}

// Stop cancels the schedule and waits for a running send to finish.
func (d *Digest) Stop() {
	if d.cron != nil {
		<-d.cron.Stop().Done()
	}
}

func (d *Digest) sendDigest(ctx context.Context) {
	rows, err := d.store.Stats(1, 0)
	if err != nil {
		d.logger.Error("digest stats failed", "error", err)
		return
	}
	if len(rows) == 0 {
		d.logger.Debug("digest skipped, no activity today")
		return
	}
	if _, err := d.messenger.SendText(ctx, d.chatID, formatDigest(rows), false); err != nil {
		d.logger.Error("digest send failed", "error", err)
	}
}

// formatDigest renders today's totals, one line per person and exercise.
func formatDigest(rows []store.StatRow) string {
	var b strings.Builder
	b.WriteString("📋 Today's fitness report, Sirs and Ma'ams:\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "  %s: %s %s %s", r.FirstName, formatCount(r.Total), r.Unit, r.Exercise)
		if r.Photos > 0 {
			fmt.Fprintf(&b, " (📷 %d)", r.Photos)
		}
		b.WriteByte('\n')
	}
	b.WriteString("Splendid work, everyone!")
	return b.String()
}
