package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kryten-bot/kryten/pkg/kryten/channels"
	"github.com/kryten-bot/kryten/pkg/kryten/llm"
	"github.com/kryten-bot/kryten/pkg/kryten/store"
)

// Invocation carries the sender context a tool call executes under.
type Invocation struct {
	UserID   int64
	Username string
	ChatID   int64
}

// ToolExecutor dispatches model tool calls against the store and chat.
type ToolExecutor struct {
	store     *store.Store
	messenger channels.Messenger
	staging   *PhotoStaging
	model     string
	logger    *slog.Logger
}

// NewToolExecutor creates a tool executor.
func NewToolExecutor(st *store.Store, messenger channels.Messenger, staging *PhotoStaging, model string, logger *slog.Logger) *ToolExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolExecutor{
		store:     st,
		messenger: messenger,
		staging:   staging,
		model:     model,
		logger:    logger.With("component", "tools"),
	}
}

// Catalog returns the tool definitions advertised to the model.
func (t *ToolExecutor) Catalog() []llm.Tool {
	return []llm.Tool{
		{
			Name:        "log_exercise",
			Description: "Record an exercise entry. Call this whenever someone reports doing any exercise. If the user is reporting exercises for someone else (e.g. 'Brian did 15 pushups'), use the for_user field with that person's name.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"exercise": {
						"type": "string",
						"description": "The type of exercise, normalized to a simple lowercase name. Examples: pushups, situps, squats, planks, pullups, biking, running, walking, swimming, yoga, jumping_jacks, burpees, etc."
					},
					"count": {
						"type": "number",
						"description": "The amount of exercise. Could be reps (25), seconds (30), minutes (45), miles (5.2), km (10), etc."
					},
					"unit": {
						"type": "string",
						"enum": ["reps", "seconds", "minutes", "hours", "miles", "km", "meters", "yards", "laps", "sets"],
						"description": "The unit of measurement. Use 'reps' for countable exercises (pushups, situps), 'seconds' or 'minutes' for timed exercises (planks, wall sits), 'miles' or 'km' for distance (biking, running)."
					},
					"notes": {
						"type": "string",
						"description": "Optional free-text notes about the exercise. Examples: 'felt easy', 'new personal best', 'with 20lb vest'. Leave empty if no notes."
					},
					"for_user": {
						"type": "string",
						"description": "Name of the person who did the exercise, if logging on behalf of someone else. The person must already have a Telegram account and have messaged the bot at least once. Leave empty to log for the sender."
					}
				},
				"required": ["exercise", "count", "unit"]
			}`),
		},
		{
			Name:        "get_stats",
			Description: "Get exercise stats for a flexible number of days. Use this for any stats request: today (days=1), last 3 days (days=3), this week (days=7), etc.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"days": {
						"type": "integer",
						"description": "Number of days to look back. 1 = today only, 3 = last 3 days, 7 = last week, etc."
					},
					"for_everyone": {
						"type": "boolean",
						"description": "If true, show stats for all users. If false, just the requesting user."
					}
				},
				"required": ["days"]
			}`),
		},
		{
			Name:        "get_photos",
			Description: "Get exercise photos for a specific date. Returns photo details that will be sent to the chat automatically. Use this when someone asks to see photos, pictures, or proof from a particular day.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"date": {
						"type": "string",
						"description": "Date in YYYY-MM-DD format. Use today's date if not specified."
					}
				},
				"required": ["date"]
			}`),
		},
		{
			Name:        "get_usage",
			Description: "Get API usage and cost summary for the bot.",
			InputSchema: json.RawMessage(`{"type": "object", "properties": {}, "required": []}`),
		},
	}
}

// Execute runs one tool call and returns a JSON-encoded result string.
// Tool failures are reported inside the result, never as an error, so
// the model can recover in conversation.
func (t *ToolExecutor) Execute(ctx context.Context, name string, input json.RawMessage, inv Invocation) string {
	t.logger.Info("executing tool", "tool", name, "user_id", inv.UserID)

	switch name {
	case "log_exercise":
		return t.logExercise(input, inv)
	case "get_stats":
		return t.getStats(input, inv)
	case "get_photos":
		return t.getPhotos(ctx, input, inv)
	case "get_usage":
		return t.getUsage()
	}
	return toolError(fmt.Sprintf("Unknown tool: %s", name))
}

func (t *ToolExecutor) logExercise(input json.RawMessage, inv Invocation) string {
	var args struct {
		Exercise string  `json:"exercise"`
		Count    float64 `json:"count"`
		Unit     string  `json:"unit"`
		Notes    string  `json:"notes"`
		ForUser  string  `json:"for_user"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return toolError(fmt.Sprintf("invalid input: %v", err))
	}
	if args.Unit == "" {
		args.Unit = "reps"
	}

	targetID := inv.UserID
	logName := inv.Username
	if args.ForUser != "" {
		target, err := t.store.FindUserByName(args.ForUser)
		if err != nil {
			if errors.Is(err, store.ErrUserNotFound) {
				return toolError(fmt.Sprintf("I don't know anyone named '%s'. They need to message me first so I can learn who they are.", args.ForUser))
			}
			return toolError(err.Error())
		}
		targetID = target.UserID
		logName = args.ForUser
	}

	eid, err := t.store.LogExercise(targetID, logName, args.Exercise, args.Count, args.Unit, args.Notes)
	if err != nil {
		return toolError(err.Error())
	}

	// Attach the chat's staged photos as proof. A Peek keeps them staged
	// so several log_exercise calls in one turn all pick them up; the
	// dispatcher clears the staging area when the turn finishes.
	for _, p := range t.staging.Peek(inv.ChatID) {
		if err := t.store.AddExercisePhoto(eid, p.FileID, p.LocalPath); err != nil {
			t.logger.Warn("failed to attach photo", "exercise_id", eid, "error", err)
		}
	}

	recorded := map[string]any{
		"exercise": args.Exercise,
		"count":    args.Count,
		"unit":     args.Unit,
		"user":     logName,
	}
	if args.Notes != "" {
		recorded["notes"] = args.Notes
	}
	out, _ := json.Marshal(map[string]any{
		"success":     true,
		"exercise_id": eid,
		"recorded":    recorded,
	})
	return string(out)
}

func (t *ToolExecutor) getStats(input json.RawMessage, inv Invocation) string {
	var args struct {
		Days        int   `json:"days"`
		ForEveryone *bool `json:"for_everyone"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return toolError(fmt.Sprintf("invalid input: %v", err))
	}
	if args.Days <= 0 {
		args.Days = 7
	}
	userID := int64(0)
	if args.ForEveryone != nil && !*args.ForEveryone {
		userID = inv.UserID
	}

	rows, err := t.store.Stats(args.Days, userID)
	if err != nil {
		return toolError(err.Error())
	}

	stats := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		stats = append(stats, map[string]any{
			"first_name": r.FirstName,
			"exercise":   r.Exercise,
			"unit":       r.Unit,
			"total":      r.Total,
			"sessions":   r.Sessions,
			"photos":     r.Photos,
		})
	}
	out, _ := json.Marshal(map[string]any{"days": args.Days, "stats": stats})
	return string(out)
}

func (t *ToolExecutor) getPhotos(ctx context.Context, input json.RawMessage, inv Invocation) string {
	var args struct {
		Date string `json:"date"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return toolError(fmt.Sprintf("invalid input: %v", err))
	}

	photos, err := t.store.PhotosForDate(args.Date)
	if err != nil {
		return toolError(err.Error())
	}

	// Side effect: the photos go straight to the chat. The model only
	// gets a summary so it can comment.
	for _, p := range photos {
		if err := t.messenger.SendPhoto(ctx, inv.ChatID, p.FileID, photoCaption(p)); err != nil {
			t.logger.Warn("failed to send photo", "file_id", p.FileID, "error", err)
		}
	}

	summary := make([]map[string]any, 0, len(photos))
	for _, p := range photos {
		summary = append(summary, map[string]any{
			"person":   p.FirstName,
			"exercise": p.Exercise,
			"count":    p.Count,
			"unit":     p.Unit,
		})
	}
	out, _ := json.Marshal(map[string]any{
		"date":        args.Date,
		"photo_count": len(photos),
		"photos":      summary,
	})
	return string(out)
}

func (t *ToolExecutor) getUsage() string {
	s, err := t.store.GetUsageSummary()
	if err != nil {
		return toolError(err.Error())
	}
	out, _ := json.Marshal(map[string]any{
		"usage": map[string]any{
			"total_calls":  s.Calls,
			"total_input":  s.InputTokens,
			"total_output": s.OutputTokens,
			"total_cost":   s.TotalCost,
			"model":        t.model,
		},
	})
	return string(out)
}

// photoCaption formats "Name — count unit exercise" with whole counts
// rendered without a decimal point.
func photoCaption(p store.PhotoRecord) string {
	caption := fmt.Sprintf("%s — %s %s %s", p.FirstName, formatCount(p.Count), p.Unit, p.Exercise)
	if p.Notes != "" {
		caption += "\n" + p.Notes
	}
	return caption
}

func formatCount(c float64) string {
	if c == float64(int64(c)) {
		return fmt.Sprintf("%d", int64(c))
	}
	return fmt.Sprintf("%g", c)
}

func toolError(msg string) string {
	out, _ := json.Marshal(map[string]string{"error": msg})
	return string(out)
}
