// Package bot wires the Telegram channel, the model client, and the
// store into the Kryten fitness-tracking conversation loop.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kryten-bot/kryten/pkg/kryten/channels"
	"github.com/kryten-bot/kryten/pkg/kryten/llm"
	"github.com/kryten-bot/kryten/pkg/kryten/store"
)

const apologyPrefix = "I do apologise, Sir, but I appear to have suffered a malfunction. Error: "

// Options configures a Bot.
type Options struct {
	Model         string
	PhotosDir     string
	MaxHistory    int
	DedupCapacity int

	// Cost per million tokens, for usage accounting.
	InputCostPerM  float64
	OutputCostPerM float64
}

// Bot is the message dispatcher. Each incoming message is deduplicated
// and then handled on its own goroutine.
type Bot struct {
	channel   channels.Channel
	messenger channels.Messenger
	media     channels.MediaFetcher
	backend   ModelBackend
	store     *store.Store
	gate      *AccessGate
	tools     *ToolExecutor
	history   *ConversationStore
	staging   *PhotoStaging
	seen      *SeenSet
	opts      Options
	model     string
	logger    *slog.Logger
	wg        sync.WaitGroup

	// botUsername is used to strip @mentions in group chats.
	botUsername func() string
}

// New creates a Bot. The channel must also implement Messenger and
// MediaFetcher; the Telegram channel does. The staging area is shared
// with the tool executor so log_exercise can attach staged photos.
func New(ch channels.Channel, messenger channels.Messenger, media channels.MediaFetcher,
	backend ModelBackend, st *store.Store, gate *AccessGate, tools *ToolExecutor,
	staging *PhotoStaging, opts Options, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	if staging == nil {
		staging = NewPhotoStaging()
	}
	if opts.PhotosDir == "" {
		opts.PhotosDir = "./data/photos"
	}
	return &Bot{
		channel:     ch,
		messenger:   messenger,
		media:       media,
		backend:     backend,
		store:       st,
		gate:        gate,
		tools:       tools,
		history:     NewConversationStore(opts.MaxHistory),
		staging:     staging,
		seen:        NewSeenSet(opts.DedupCapacity),
		opts:        opts,
		model:       opts.Model,
		logger:      logger.With("component", "bot"),
		botUsername: func() string { return "" },
	}
}

// SetUsernameSource lets the bot strip @mentions of its own handle.
func (b *Bot) SetUsernameSource(fn func() string) {
	if fn != nil {
		b.botUsername = fn
	}
}

// Run consumes the channel until ctx is cancelled, then waits for
// in-flight handlers to finish.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("dispatcher running")
	for {
		select {
		case <-ctx.Done():
			b.wg.Wait()
			return ctx.Err()
		case msg, ok := <-b.channel.Receive():
			if !ok {
				b.wg.Wait()
				return nil
			}
			if b.seen.MarkSeen(msg.ID) {
				b.logger.Debug("duplicate message dropped", "message_id", msg.ID)
				continue
			}
			b.wg.Add(1)
			go func(m *channels.IncomingMessage) {
				defer b.wg.Done()
				b.handleMessage(ctx, m)
			}(msg)
		}
	}
}

// handleMessage runs the full pipeline for one message: photo staging,
// mention stripping, access gating, zero-cost commands, and finally the
// model agent loop.
func (b *Bot) handleMessage(ctx context.Context, msg *channels.IncomingMessage) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panic", "message_id", msg.ID, "panic", r)
		}
	}()

	text := msg.Text
	photoCount := 0
	if msg.Type == channels.MessageImage && msg.PhotoFileID != "" {
		b.stagePhoto(ctx, msg.ChatID, msg.PhotoFileID)
		photoCount = 1
		if text == "" {
			text = "[sent a photo]"
		}
	}
	// Staged photos never outlive this message's handling.
	defer b.staging.ClaimAndClear(msg.ChatID)

	text = b.stripMention(text)
	if text == "" {
		return
	}

	if b.gate.Check(ctx, msg) == Blocked {
		return
	}

	if b.handleCommand(ctx, msg.ChatID, text) {
		return
	}

	name := msg.FirstName
	if name == "" {
		name = msg.Username
	}
	if name == "" {
		name = fmt.Sprintf("%d", msg.UserID)
	}
	if err := b.store.UpsertUser(msg.UserID, msg.Username, msg.FirstName); err != nil {
		b.logger.Warn("failed to upsert user", "user_id", msg.UserID, "error", err)
	}

	b.logger.Info("handling message", "user", name, "group", msg.IsGroup, "chat_id", msg.ChatID)
	if err := b.messenger.SendTyping(ctx, msg.ChatID); err != nil {
		b.logger.Debug("typing indicator failed", "error", err)
	}

	photoNote := ""
	if photoCount > 0 {
		plural := ""
		if photoCount > 1 {
			plural = "s"
		}
		photoNote = fmt.Sprintf(" [attached %d photo%s]", photoCount, plural)
	}
	userTurn := llm.UserText(fmt.Sprintf("User '%s' says: %s%s", name, text, photoNote))

	messages := append(b.history.Snapshot(msg.ChatID), userTurn)
	inv := Invocation{UserID: msg.UserID, Username: name, ChatID: msg.ChatID}
	system := BuildSystemPrompt(store.Today())

	result, err := AgentRun(ctx, b.backend, b.tools, system, messages, inv, b.logger)
	if result != nil && (result.Usage.InputTokens > 0 || result.Usage.OutputTokens > 0) {
		cost := b.cost(result.Usage)
		if logErr := b.store.LogAPIUsage(msg.UserID, result.Usage.InputTokens, result.Usage.OutputTokens, b.model, cost); logErr != nil {
			b.logger.Warn("failed to record usage", "error", logErr)
		}
	}
	if err != nil {
		b.logger.Error("agent run failed", "user", name, "error", err)
		b.send(ctx, msg.ChatID, apologyPrefix+truncateError(err), false)
		return
	}

	b.history.Append(msg.ChatID, userTurn, llm.AssistantText(result.Reply))

	if containsCodeBlock(result.Reply) {
		b.send(ctx, msg.ChatID, toHTML(result.Reply), true)
	} else {
		b.send(ctx, msg.ChatID, result.Reply, false)
	}
}

// stagePhoto downloads the photo and stages it for attachment. Download
// failures still stage the file ID so the Telegram reference survives.
func (b *Bot) stagePhoto(ctx context.Context, chatID int64, fileID string) {
	ref := PhotoRef{FileID: fileID}
	data, ext, err := b.media.DownloadPhoto(ctx, fileID)
	if err != nil {
		b.logger.Warn("photo download failed", "file_id", fileID, "error", err)
	} else if path, err := b.savePhoto(data, ext); err != nil {
		b.logger.Warn("photo save failed", "file_id", fileID, "error", err)
	} else {
		ref.LocalPath = path
	}
	b.staging.Stage(chatID, []PhotoRef{ref})
}

func (b *Bot) savePhoto(data []byte, ext string) (string, error) {
	if err := os.MkdirAll(b.opts.PhotosDir, 0755); err != nil {
		return "", fmt.Errorf("create photos dir: %w", err)
	}
	path := filepath.Join(b.opts.PhotosDir, uuid.NewString()+ext)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write photo: %w", err)
	}
	return path, nil
}

// stripMention removes @BotUsername references, case-insensitively.
func (b *Bot) stripMention(text string) string {
	username := b.botUsername()
	if username == "" {
		return strings.TrimSpace(text)
	}
	mention := "@" + strings.ToLower(username)
	lower := strings.ToLower(text)
	var out strings.Builder
	for {
		idx := strings.Index(lower, mention)
		if idx < 0 {
			out.WriteString(text)
			break
		}
		out.WriteString(text[:idx])
		text = text[idx+len(mention):]
		lower = lower[idx+len(mention):]
	}
	return strings.TrimSpace(out.String())
}

func (b *Bot) send(ctx context.Context, chatID int64, text string, rich bool) {
	if _, err := b.messenger.SendText(ctx, chatID, text, rich); err != nil {
		b.logger.Error("send failed", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) cost(u llm.Usage) float64 {
	return float64(u.InputTokens)/1_000_000*b.opts.InputCostPerM +
		float64(u.OutputTokens)/1_000_000*b.opts.OutputCostPerM
}

// truncateError caps the error text surfaced to the chat, cutting on a
// rune boundary so the reply stays valid UTF-8.
func truncateError(err error) string {
	s := err.Error()
	if len(s) <= 200 {
		return s
	}
	n := 200
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
