package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestInvoke(t *testing.T) {
	t.Parallel()
	var gotReq struct {
		Model     string          `json:"model"`
		MaxTokens int             `json:"max_tokens"`
		System    string          `json:"system"`
		Messages  []Message       `json:"messages"`
		Tools     json.RawMessage `json:"tools"`
	}
	var gotHeaders http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":    "msg_1",
			"model": "test-model",
			"content": []map[string]any{
				{"type": "text", "text": "Certainly,"},
				{"type": "text", "text": "Sir."},
			},
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 42, "output_tokens": 7},
		})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{APIKey: "key-1", BaseURL: srv.URL, MaxTokens: 512}, "test-model", nil)
	resp, err := c.Invoke(context.Background(), "be kryten", nil, []Message{UserText("hello")})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	if gotHeaders.Get("x-api-key") != "key-1" {
		t.Errorf("x-api-key = %q", gotHeaders.Get("x-api-key"))
	}
	if gotHeaders.Get("anthropic-version") != "2023-06-01" {
		t.Errorf("anthropic-version = %q", gotHeaders.Get("anthropic-version"))
	}
	if gotReq.Model != "test-model" || gotReq.MaxTokens != 512 || gotReq.System != "be kryten" {
		t.Errorf("request = %+v", gotReq)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" {
		t.Errorf("messages = %+v", gotReq.Messages)
	}

	if resp.StopReason != StopEndTurn {
		t.Errorf("StopReason = %q", resp.StopReason)
	}
	if got := resp.Text(); got != "Certainly,\nSir." {
		t.Errorf("Text() = %q", got)
	}
	if resp.Usage.InputTokens != 42 || resp.Usage.OutputTokens != 7 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
}

func TestInvokeToolUseResponse(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "tool_use", "id": "tu_1", "name": "log_exercise",
					"input": map[string]any{"exercise": "pushups", "count": 25, "unit": "reps"}},
			},
			"stop_reason": "tool_use",
			"usage":       map[string]int{"input_tokens": 10, "output_tokens": 3},
		})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{APIKey: "k", BaseURL: srv.URL}, "test-model", nil)
	resp, err := c.Invoke(context.Background(), "", nil, []Message{UserText("25 pushups")})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	uses := resp.ToolUses()
	if len(uses) != 1 || uses[0].Name != "log_exercise" || uses[0].ID != "tu_1" {
		t.Fatalf("ToolUses() = %+v", uses)
	}
	var input struct {
		Exercise string  `json:"exercise"`
		Count    float64 `json:"count"`
	}
	if err := json.Unmarshal(uses[0].Input, &input); err != nil {
		t.Fatalf("unmarshal input: %v", err)
	}
	if input.Exercise != "pushups" || input.Count != 25 {
		t.Errorf("input = %+v", input)
	}
}

func TestInvokeHTTPError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{APIKey: "k", BaseURL: srv.URL}, "test-model", nil)
	if _, err := c.Invoke(context.Background(), "", nil, []Message{UserText("hi")}); err == nil {
		t.Fatal("Invoke() error = nil, want rate limit error")
	}
}

func TestUsageAdd(t *testing.T) {
	t.Parallel()
	u := Usage{InputTokens: 10, OutputTokens: 5}
	u.Add(Usage{InputTokens: 20, OutputTokens: 8})
	if u.InputTokens != 30 || u.OutputTokens != 13 {
		t.Errorf("Usage after Add = %+v", u)
	}
}
