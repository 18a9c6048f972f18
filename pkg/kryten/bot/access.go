package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kryten-bot/kryten/pkg/kryten/channels"
	"github.com/kryten-bot/kryten/pkg/kryten/store"
)

// Canned access-control replies. These never cost model tokens.
const (
	introMsg = "Hello! I'm Kryten, a Series 4000 mechanoid assigned to fitness tracking duties. " +
		"I will be able to converse with you fully, once your access has been approved by Bob."

	pendingMsg = "I'm sorry, I'm not yet approved to speak with you."

	approvedUserMsg = "Good news! Your access has been approved. " +
		"I'm Kryten, at your service! How can I help you today?"
)

// Decision is the outcome of an access check.
type Decision int

const (
	// Blocked means the message must not reach the model. Any required
	// canned replies have already been sent.
	Blocked Decision = iota

	// Allowed means the message may proceed to normal handling.
	Allowed
)

// pendingApproval tracks an access request awaiting the admin's reply,
// keyed by the notification message ID sent to the admin.
type pendingApproval struct {
	userID    int64
	firstName string
	username  string
}

// AccessGate decides whether a sender may talk to the model. Group
// chats bypass the gate; the admin and pre-approved users always pass;
// everyone else goes through a pending/approved/denied lifecycle driven
// by the admin replying to notification messages.
type AccessGate struct {
	store     *store.Store
	messenger channels.Messenger
	adminID   int64
	allowed   map[int64]struct{}
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[int64]pendingApproval
}

// NewAccessGate creates an access gate. allowedUsers are pre-approved
// sender IDs from configuration.
func NewAccessGate(st *store.Store, messenger channels.Messenger, adminID int64, allowedUsers []int64, logger *slog.Logger) *AccessGate {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[int64]struct{}, len(allowedUsers))
	for _, id := range allowedUsers {
		allowed[id] = struct{}{}
	}
	return &AccessGate{
		store:     st,
		messenger: messenger,
		adminID:   adminID,
		allowed:   allowed,
		logger:    logger.With("component", "access"),
		pending:   make(map[int64]pendingApproval),
	}
}

// Check runs the access decision for an incoming message and performs
// any side effects (canned replies, admin notification, approval
// handling). A Blocked decision means handling stops here.
func (g *AccessGate) Check(ctx context.Context, msg *channels.IncomingMessage) Decision {
	// Group chats are trusted: the bot was explicitly added.
	if msg.IsGroup {
		return Allowed
	}

	if msg.UserID == g.adminID && g.adminID != 0 {
		// An admin reply to a pending notification resolves that
		// request instead of being handled as a normal message.
		if msg.ReplyTo != 0 {
			g.mu.Lock()
			req, ok := g.pending[msg.ReplyTo]
			if ok {
				delete(g.pending, msg.ReplyTo)
			}
			g.mu.Unlock()
			if ok {
				g.resolve(ctx, msg.ChatID, msg.Text, req)
				return Blocked
			}
		}
		return Allowed
	}

	if _, ok := g.allowed[msg.UserID]; ok {
		return Allowed
	}

	status, err := g.store.AccessStatus(msg.UserID)
	if err != nil {
		g.logger.Error("access status lookup failed", "user_id", msg.UserID, "error", err)
		return Blocked
	}

	switch status {
	case store.AccessApproved:
		return Allowed
	case store.AccessPending, store.AccessDenied:
		g.logger.Info("blocked message", "user_id", msg.UserID, "status", status)
		if _, err := g.messenger.SendText(ctx, msg.ChatID, pendingMsg, false); err != nil {
			g.logger.Warn("failed to send pending reply", "error", err)
		}
		return Blocked
	}

	// First contact. RequestAccess inserts at most one row per sender,
	// so only the caller that actually created it sends the intro and
	// notifies the admin. Concurrent duplicates get the pending reply.
	created, err := g.store.RequestAccess(msg.UserID, msg.FirstName, msg.Username)
	if err != nil {
		g.logger.Error("failed to record access request", "user_id", msg.UserID, "error", err)
		return Blocked
	}
	if !created {
		if _, err := g.messenger.SendText(ctx, msg.ChatID, pendingMsg, false); err != nil {
			g.logger.Warn("failed to send pending reply", "error", err)
		}
		return Blocked
	}

	g.logger.Info("new access request", "user_id", msg.UserID, "name", msg.FirstName)
	if _, err := g.messenger.SendText(ctx, msg.ChatID, introMsg, false); err != nil {
		g.logger.Warn("failed to send intro", "error", err)
	}
	g.notifyAdmin(ctx, msg)
	return Blocked
}

// notifyAdmin sends the approval request and remembers the sent message
// ID so the admin's reply can be correlated later.
func (g *AccessGate) notifyAdmin(ctx context.Context, msg *channels.IncomingMessage) {
	if g.adminID == 0 {
		return
	}

	name := msg.FirstName
	if msg.Username != "" {
		name = strings.TrimSpace(name + " (@" + msg.Username + ")")
	}
	if name == "" {
		name = "Unknown"
	}
	text := fmt.Sprintf("New access request from %s (ID: %d).\n\nReply YES to approve or NO to deny.", name, msg.UserID)

	sentID, err := g.messenger.SendText(ctx, g.adminID, text, false)
	if err != nil {
		g.logger.Warn("failed to notify admin", "error", err)
		return
	}
	g.mu.Lock()
	g.pending[sentID] = pendingApproval{
		userID:    msg.UserID,
		firstName: msg.FirstName,
		username:  msg.Username,
	}
	g.mu.Unlock()
}

// resolve applies the admin's verdict. Anything other than an
// affirmative token denies.
func (g *AccessGate) resolve(ctx context.Context, adminChatID int64, reply string, req pendingApproval) {
	name := req.firstName
	if name == "" {
		name = fmt.Sprintf("%d", req.userID)
	}

	switch strings.ToLower(strings.TrimSpace(reply)) {
	case "yes", "y", "approve", "ok":
		if err := g.store.ApproveAccess(req.userID); err != nil {
			g.logger.Error("failed to approve access", "user_id", req.userID, "error", err)
			return
		}
		if _, err := g.messenger.SendText(ctx, adminChatID, fmt.Sprintf("Approved! %s can now use Kryten.", name), false); err != nil {
			g.logger.Warn("failed to confirm approval", "error", err)
		}
		// The user may not have an open DM; a failure here is fine.
		if _, err := g.messenger.SendText(ctx, req.userID, approvedUserMsg, false); err != nil {
			g.logger.Debug("could not notify approved user", "user_id", req.userID, "error", err)
		}
		g.logger.Info("access approved", "user_id", req.userID, "name", name)
	default:
		if err := g.store.DenyAccess(req.userID); err != nil {
			g.logger.Error("failed to deny access", "user_id", req.userID, "error", err)
			return
		}
		if _, err := g.messenger.SendText(ctx, adminChatID, fmt.Sprintf("Denied. %s will not have access.", name), false); err != nil {
			g.logger.Warn("failed to confirm denial", "error", err)
		}
		g.logger.Info("access denied", "user_id", req.userID, "name", name)
	}
}

// PendingCount reports how many approval requests await a reply.
func (g *AccessGate) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}
