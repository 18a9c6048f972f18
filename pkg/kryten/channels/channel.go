// Package channels defines the interfaces and types the bot core uses to
// talk to a messaging platform. The Telegram implementation lives in the
// telegram subpackage; the bot only sees these interfaces so tests can
// substitute fakes.
package channels

import (
	"context"
	"fmt"
	"time"
)

// MessageType identifies the kind of message content.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
)

// Channel is the connection-level interface every platform must implement.
type Channel interface {
	// Name returns the channel identifier (e.g. "telegram").
	Name() string

	// Connect establishes the connection and starts delivering messages.
	Connect(ctx context.Context) error

	// Disconnect gracefully closes the connection.
	Disconnect() error

	// Receive returns a Go channel that emits incoming messages.
	Receive() <-chan *IncomingMessage

	// IsConnected returns true if the channel is connected.
	IsConnected() bool

	// Health returns the channel health status.
	Health() HealthStatus
}

// Messenger is the outbound surface the bot core depends on.
type Messenger interface {
	// SendText sends a text message and returns the platform message ID of
	// the sent message. With rich=true the text carries HTML markup; the
	// implementation must retry once as plain text if the rich send fails.
	SendText(ctx context.Context, chatID int64, text string, rich bool) (int64, error)

	// SendPhoto sends a previously uploaded photo by its platform file ID.
	SendPhoto(ctx context.Context, chatID int64, fileID, caption string) error

	// SendTyping shows a "typing..." indicator in the chat.
	SendTyping(ctx context.Context, chatID int64) error
}

// MediaFetcher downloads media referenced by an incoming message.
type MediaFetcher interface {
	// DownloadPhoto fetches the photo bytes for a file ID and returns the
	// data plus a filename extension hint (e.g. ".jpg").
	DownloadPhoto(ctx context.Context, fileID string) ([]byte, string, error)
}

// IncomingMessage represents a message received from a channel.
type IncomingMessage struct {
	// ID is the platform message identifier.
	ID int64

	// Channel identifies the source channel (e.g. "telegram").
	Channel string

	// ChatID is the group or DM identifier.
	ChatID int64

	// IsGroup indicates whether the message is from a group chat.
	IsGroup bool

	// UserID is the sender's platform identifier.
	UserID int64

	// FirstName is the sender's display name (if available).
	FirstName string

	// Username is the sender's platform handle (if available).
	Username string

	// Type is the message content type.
	Type MessageType

	// Text is the text content, or the caption for media messages.
	Text string

	// PhotoFileID references the attached photo, if any. For messages with
	// multiple size variants this is the largest one.
	PhotoFileID string

	// ReplyTo is the ID of the message being replied to, 0 if none.
	ReplyTo int64

	// Timestamp is when the message was sent.
	Timestamp time.Time
}

// HealthStatus represents the health state of a channel.
type HealthStatus struct {
	Connected     bool
	LastMessageAt time.Time
	ErrorCount    int
}

// Errors.
var (
	ErrChannelDisconnected = fmt.Errorf("channel is not connected")
	ErrSendFailed          = fmt.Errorf("failed to send message")
	ErrMediaDownloadFailed = fmt.Errorf("failed to download media")
)
