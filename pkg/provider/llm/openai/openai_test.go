package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/toolroute/pkg/provider/llm"
)

func TestMessage_Roles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		role  string
		check func(t *testing.T, m llm.Message)
	}{
		{llm.RoleSystem, func(t *testing.T, m llm.Message) {
			p, err := message(m)
			if err != nil || p.OfSystem == nil {
				t.Fatalf("system: param=%+v err=%v", p, err)
			}
		}},
		{llm.RoleUser, func(t *testing.T, m llm.Message) {
			p, err := message(m)
			if err != nil || p.OfUser == nil {
				t.Fatalf("user: param=%+v err=%v", p, err)
			}
		}},
		{llm.RoleAssistant, func(t *testing.T, m llm.Message) {
			p, err := message(m)
			if err != nil || p.OfAssistant == nil {
				t.Fatalf("assistant: param=%+v err=%v", p, err)
			}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.role, func(t *testing.T) {
			t.Parallel()
			tc.check(t, llm.Message{Role: tc.role, Content: "hello"})
		})
	}
}

func TestMessage_UserWithImage(t *testing.T) {
	t.Parallel()

	p, err := message(llm.Message{
		Role:      llm.RoleUser,
		Content:   "what's in this image?",
		ImageURLs: []string{"https://example.com/a.jpg"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.OfUser == nil {
		t.Fatal("expected OfUser to be set")
	}
	parts := p.OfUser.Content.OfArrayOfContentParts
	if len(parts) != 2 {
		t.Fatalf("content parts = %d, want 2", len(parts))
	}
	if parts[0].OfText == nil || parts[0].OfText.Text != "what's in this image?" {
		t.Errorf("first part = %+v, want the text prompt", parts[0])
	}
	if parts[1].OfImageURL == nil || parts[1].OfImageURL.ImageURL.URL != "https://example.com/a.jpg" {
		t.Errorf("second part = %+v, want the image URL", parts[1])
	}
}

func TestMessage_Errors(t *testing.T) {
	t.Parallel()

	if _, err := message(llm.Message{Role: "tool", Content: "x"}); err == nil {
		t.Error("expected error for unknown role")
	}
	if _, err := message(llm.Message{Role: llm.RoleAssistant, ImageURLs: []string{"u"}}); err == nil {
		t.Error("expected error for image on assistant message")
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"tool\":\"chat_gpt4o\",\"args\":{}}"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
		}`)
	}))
	t.Cleanup(srv.Close)

	p, err := New("sk-test", "gpt-4o", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt: "route",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Temperature:  0.2,
		JSONObject:   true,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != `{"tool":"chat_gpt4o","args":{}}` {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("finish reason = %q, want stop", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 17 {
		t.Errorf("total tokens = %d, want 17", resp.Usage.TotalTokens)
	}
	if got["model"] != "gpt-4o" {
		t.Errorf("request model = %v, want gpt-4o", got["model"])
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Errorf("request messages = %d, want system + user", len(msgs))
	}
	format, _ := got["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Errorf("response_format = %v, want json_object", got["response_format"])
	}
}

func TestComplete_EmptyChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","created":1,"model":"gpt-4o","choices":[]}`)
	}))
	t.Cleanup(srv.Close)

	p, err := New("sk-test", "gpt-4o", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if !errors.Is(err, ErrEmptyChoices) {
		t.Fatalf("err = %v, want ErrEmptyChoices", err)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("sk-test", "gpt-4o",
		WithBaseURL("https://custom.example.com"),
		WithOrganization("org-123"),
	); err != nil {
		t.Fatalf("unexpected error with valid options: %v", err)
	}
}
