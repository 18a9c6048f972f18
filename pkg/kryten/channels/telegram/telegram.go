// Package telegram implements the Telegram channel by talking to the
// Bot API directly over HTTP.
//
// Features:
//   - Long polling for updates (getUpdates)
//   - Send/receive text and photos
//   - Typing indicators (sendChatAction)
//   - Photo download via getFile
//   - HTML formatting with automatic plain-text fallback
//   - Group and DM support
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/kryten-bot/kryten/pkg/kryten/channels"
)

// maxMessageLen is the largest text payload sent in one message. Telegram's
// hard limit is 4096; longer replies are truncated with a marker.
const maxMessageLen = 4000

// maxCaptionLen is Telegram's photo caption limit.
const maxCaptionLen = 1024

// Config holds Telegram channel configuration.
type Config struct {
	// Token is the Telegram Bot API token (from @BotFather).
	Token string `yaml:"token"`

	// PollTimeout is the getUpdates long-poll timeout in seconds.
	PollTimeout int `yaml:"poll_timeout"`

	// RequestTimeout bounds each Bot API request in seconds. The long-poll
	// request gets this on top of PollTimeout.
	RequestTimeout int `yaml:"request_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollTimeout:    30,
		RequestTimeout: 30,
	}
}

// Telegram implements channels.Channel, channels.Messenger, and
// channels.MediaFetcher.
type Telegram struct {
	cfg    Config
	logger *slog.Logger
	client *http.Client

	// pollClient allows the getUpdates long poll to outlive RequestTimeout.
	pollClient *http.Client

	// baseURL is the Bot API base URL (https://api.telegram.org/bot<token>).
	baseURL string

	// fileBaseURL serves file downloads (https://api.telegram.org/file/bot<token>).
	fileBaseURL string

	// messages is the channel for incoming messages forwarded to the bot.
	messages chan *channels.IncomingMessage

	// botUsername is the bot's own handle, discovered via getMe at connect.
	botUsername atomic.Value // string

	// connected tracks connection state.
	connected atomic.Bool

	// lastMsg tracks the last message timestamp for health.
	lastMsg atomic.Value // time.Time

	// errorCount tracks consecutive polling errors.
	errorCount atomic.Int64

	// offset is the last processed update ID + 1.
	offset int64

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Telegram channel instance.
func New(cfg Config, logger *slog.Logger) *Telegram {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30
	}
	return &Telegram{
		cfg:         cfg,
		logger:      logger.With("component", "telegram"),
		client:      &http.Client{Timeout: time.Duration(cfg.RequestTimeout) * time.Second},
		pollClient:  &http.Client{Timeout: time.Duration(cfg.PollTimeout+cfg.RequestTimeout) * time.Second},
		baseURL:     "https://api.telegram.org/bot" + cfg.Token,
		fileBaseURL: "https://api.telegram.org/file/bot" + cfg.Token,
		messages:    make(chan *channels.IncomingMessage, 256),
	}
}

// ---------- Channel Interface ----------

// Name returns "telegram".
func (t *Telegram) Name() string { return "telegram" }

// Connect verifies the token, removes any webhook so long polling works,
// and starts the polling loop.
func (t *Telegram) Connect(ctx context.Context) error {
	if t.cfg.Token == "" {
		return fmt.Errorf("telegram: bot token is required")
	}

	// Prevent double-connect goroutine leak.
	if t.connected.Load() {
		return nil
	}

	t.ctx, t.cancel = context.WithCancel(ctx)

	me, err := t.getMe(t.ctx)
	if err != nil {
		return fmt.Errorf("telegram: failed to verify token: %w", err)
	}
	t.botUsername.Store(me.Username)

	// A registered webhook blocks getUpdates.
	if _, err := t.apiCall(t.ctx, "deleteWebhook", nil); err != nil {
		t.logger.Warn("telegram: deleteWebhook failed", "error", err)
	}

	t.logger.Info("telegram: connected", "bot", me.Username, "id", me.ID)
	t.connected.Store(true)

	go t.pollLoop()

	return nil
}

// Disconnect stops the polling loop.
func (t *Telegram) Disconnect() error {
	if t.cancel != nil {
		t.cancel()
	}
	t.connected.Store(false)
	t.logger.Info("telegram: disconnected")
	return nil
}

// Receive returns the incoming messages channel.
func (t *Telegram) Receive() <-chan *channels.IncomingMessage {
	return t.messages
}

// IsConnected returns true if the bot is connected.
func (t *Telegram) IsConnected() bool { return t.connected.Load() }

// BotUsername returns the bot's own handle, empty before Connect.
func (t *Telegram) BotUsername() string {
	if v := t.botUsername.Load(); v != nil {
		return v.(string)
	}
	return ""
}

// Health returns the channel health status.
func (t *Telegram) Health() channels.HealthStatus {
	var lastAt time.Time
	if v := t.lastMsg.Load(); v != nil {
		lastAt = v.(time.Time)
	}
	return channels.HealthStatus{
		Connected:     t.connected.Load(),
		LastMessageAt: lastAt,
		ErrorCount:    int(t.errorCount.Load()),
	}
}

// ---------- Messenger Interface ----------

// SendText sends a text message and returns the sent message ID.
// With rich=true the text is sent with parse_mode HTML; if Telegram rejects
// it (usually malformed markup) the send is retried once as plain text.
func (t *Telegram) SendText(ctx context.Context, chatID int64, text string, rich bool) (int64, error) {
	if !t.connected.Load() {
		return 0, channels.ErrChannelDisconnected
	}
	if len(text) > maxMessageLen {
		text = truncateUTF8(text, maxMessageLen) + "\n\n(truncated)"
	}

	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if rich {
		payload["parse_mode"] = "HTML"
	}

	result, err := t.apiCall(ctx, "sendMessage", payload)
	if err != nil && rich {
		t.logger.Warn("telegram: rich send failed, retrying as plain text", "error", err)
		delete(payload, "parse_mode")
		result, err = t.apiCall(ctx, "sendMessage", payload)
	}
	if err != nil {
		return 0, err
	}

	var sent struct {
		MessageID int64 `json:"message_id"`
	}
	if err := json.Unmarshal(result, &sent); err != nil {
		return 0, fmt.Errorf("telegram: parsing sendMessage result: %w", err)
	}
	return sent.MessageID, nil
}

// SendPhoto sends a photo by Telegram file_id (no re-upload needed).
func (t *Telegram) SendPhoto(ctx context.Context, chatID int64, fileID, caption string) error {
	if !t.connected.Load() {
		return channels.ErrChannelDisconnected
	}
	if len(caption) > maxCaptionLen {
		caption = truncateUTF8(caption, maxCaptionLen)
	}
	payload := map[string]any{
		"chat_id": chatID,
		"photo":   fileID,
	}
	if caption != "" {
		payload["caption"] = caption
	}
	_, err := t.apiCall(ctx, "sendPhoto", payload)
	return err
}

// SendTyping sends a "typing..." chat action.
func (t *Telegram) SendTyping(ctx context.Context, chatID int64) error {
	if !t.connected.Load() {
		return nil
	}
	_, err := t.apiCall(ctx, "sendChatAction", map[string]any{
		"chat_id": chatID,
		"action":  "typing",
	})
	return err
}

// ---------- MediaFetcher Interface ----------

// DownloadPhoto downloads a photo by file_id. Returns the raw bytes and a
// filename extension hint derived from the server-side file path.
func (t *Telegram) DownloadPhoto(ctx context.Context, fileID string) ([]byte, string, error) {
	fileInfo, err := t.getFile(ctx, fileID)
	if err != nil {
		return nil, "", fmt.Errorf("telegram: getFile failed: %w", err)
	}

	downloadURL := t.fileBaseURL + "/" + fileInfo.FilePath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("telegram: creating download request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("telegram: download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: status %d", channels.ErrMediaDownloadFailed, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("telegram: reading media: %w", err)
	}

	ext := path.Ext(fileInfo.FilePath)
	if ext == "" {
		ext = ".jpg"
	}
	return data, ext, nil
}

// ---------- Internal Methods ----------

// pollLoop runs the getUpdates long-polling loop.
func (t *Telegram) pollLoop() {
	t.logger.Info("telegram: polling started")
	backoff := time.Second

	for {
		select {
		case <-t.ctx.Done():
			t.logger.Info("telegram: polling stopped")
			return
		default:
		}

		updates, err := t.getUpdates(t.offset, 100, t.cfg.PollTimeout)
		if err != nil {
			t.errorCount.Add(1)
			t.logger.Warn("telegram: getUpdates error", "error", err, "backoff", backoff)
			select {
			case <-t.ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}

		backoff = time.Second
		t.errorCount.Store(0)

		for _, u := range updates {
			if u.UpdateID >= t.offset {
				t.offset = u.UpdateID + 1
			}
			t.processUpdate(u)
		}
	}
}

// processUpdate converts a Telegram update into an IncomingMessage.
func (t *Telegram) processUpdate(u tgUpdate) {
	msg := u.Message
	if msg == nil {
		return
	}

	isGroup := msg.Chat.Type == "group" || msg.Chat.Type == "supergroup"

	incoming := &channels.IncomingMessage{
		ID:        msg.MessageID,
		Channel:   "telegram",
		ChatID:    msg.Chat.ID,
		IsGroup:   isGroup,
		Type:      channels.MessageText,
		Text:      msg.Text,
		Timestamp: time.Unix(int64(msg.Date), 0),
	}

	if msg.From != nil {
		incoming.UserID = msg.From.ID
		incoming.FirstName = strings.TrimSpace(msg.From.FirstName)
		incoming.Username = msg.From.Username
	}

	// Media messages carry a caption instead of text.
	if msg.Caption != "" && incoming.Text == "" {
		incoming.Text = msg.Caption
	}

	if msg.ReplyToMessage != nil {
		incoming.ReplyTo = msg.ReplyToMessage.MessageID
	}

	if len(msg.Photo) > 0 {
		// Use the largest size variant (last in array).
		photo := msg.Photo[len(msg.Photo)-1]
		incoming.Type = channels.MessageImage
		incoming.PhotoFileID = photo.FileID
	}

	t.lastMsg.Store(time.Now())

	select {
	case t.messages <- incoming:
	default:
		t.logger.Warn("telegram: message buffer full, dropping message", "msg_id", incoming.ID)
	}
}

// ---------- Telegram Bot API Types ----------

type tgUpdate struct {
	UpdateID int64      `json:"update_id"`
	Message  *tgMessage `json:"message"`
}

type tgMessage struct {
	MessageID      int64      `json:"message_id"`
	From           *tgUser    `json:"from"`
	Chat           tgChat     `json:"chat"`
	Date           int        `json:"date"`
	Text           string     `json:"text"`
	Caption        string     `json:"caption"`
	ReplyToMessage *tgMessage `json:"reply_to_message"`
	Photo          []tgPhoto  `json:"photo"`
}

type tgUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	IsBot     bool   `json:"is_bot"`
}

type tgChat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"` // "private", "group", "supergroup", "channel"
}

type tgPhoto struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int    `json:"file_size"`
}

type tgFile struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
	FileSize int    `json:"file_size"`
}

type tgBotUser struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// ---------- API Helpers ----------

// apiCall makes a POST request to the Telegram Bot API.
func (t *Telegram) apiCall(ctx context.Context, method string, payload map[string]any) (json.RawMessage, error) {
	return t.apiCallWith(ctx, t.client, method, payload)
}

func (t *Telegram) apiCallWith(ctx context.Context, client *http.Client, method string, payload map[string]any) (json.RawMessage, error) {
	url := t.baseURL + "/" + method
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("telegram: marshal %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("telegram: creating request for %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description"`
		Result      json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("telegram: decoding %s response: %w", method, err)
	}
	if !result.OK {
		return nil, fmt.Errorf("telegram: %s: %s", method, result.Description)
	}
	return result.Result, nil
}

// getMe verifies the bot token and returns bot info.
func (t *Telegram) getMe(ctx context.Context) (*tgBotUser, error) {
	data, err := t.apiCall(ctx, "getMe", nil)
	if err != nil {
		return nil, err
	}
	var user tgBotUser
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("telegram: parsing getMe: %w", err)
	}
	return &user, nil
}

// getUpdates fetches new updates using long polling.
func (t *Telegram) getUpdates(offset int64, limit, timeoutSecs int) ([]tgUpdate, error) {
	payload := map[string]any{
		"offset":          offset,
		"limit":           limit,
		"timeout":         timeoutSecs,
		"allowed_updates": []string{"message"},
	}
	data, err := t.apiCallWith(t.ctx, t.pollClient, "getUpdates", payload)
	if err != nil {
		return nil, err
	}
	var updates []tgUpdate
	if err := json.Unmarshal(data, &updates); err != nil {
		return nil, fmt.Errorf("telegram: parsing updates: %w", err)
	}
	return updates, nil
}

// getFile retrieves file info for downloading.
func (t *Telegram) getFile(ctx context.Context, fileID string) (*tgFile, error) {
	data, err := t.apiCall(ctx, "getFile", map[string]any{"file_id": fileID})
	if err != nil {
		return nil, err
	}
	var file tgFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("telegram: parsing getFile: %w", err)
	}
	return &file, nil
}

// Compile-time interface verification.
var (
	_ channels.Channel      = (*Telegram)(nil)
	_ channels.Messenger    = (*Telegram)(nil)
	_ channels.MediaFetcher = (*Telegram)(nil)
)
