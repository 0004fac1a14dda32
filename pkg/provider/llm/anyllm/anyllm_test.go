package anyllm

import (
	"context"
	"errors"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/toolroute/pkg/provider/llm"
)

// ── buildParams ───────────────────────────────────────────────────────────────

func TestBuildParams(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "claude-3-5-haiku-latest"}
	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "route the request",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "draw a cat"},
			{Role: llm.RoleAssistant, Content: "ok"},
		},
		Temperature: 0.1,
		MaxTokens:   256,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Model != "claude-3-5-haiku-latest" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem || params.Messages[0].ContentString() != "route the request" {
		t.Errorf("first message = %+v, want the system prompt", params.Messages[0])
	}
	if params.Messages[1].ContentString() != "draw a cat" {
		t.Errorf("user content = %q", params.Messages[1].ContentString())
	}
	if params.Temperature == nil || *params.Temperature != 0.1 {
		t.Errorf("temperature = %v, want 0.1", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 256 {
		t.Errorf("max tokens = %v, want 256", params.MaxTokens)
	}
}

func TestBuildParams_ZeroValuesOmitted(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "llama3"}
	params, err := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(params.Messages) != 1 {
		t.Errorf("messages = %d, want 1 (no system prompt)", len(params.Messages))
	}
	if params.Temperature != nil || params.MaxTokens != nil {
		t.Errorf("expected nil temperature and max tokens, got %v %v", params.Temperature, params.MaxTokens)
	}
}

func TestBuildParams_JSONObjectHint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		system string
		want   string
	}{
		{name: "appended to prompt", system: "route", want: "route\n\n" + jsonObjectHint},
		{name: "alone", system: "", want: jsonObjectHint},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := &Provider{model: "llama3"}
			params, err := p.buildParams(llm.CompletionRequest{
				SystemPrompt: tc.system,
				Messages:     []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
				JSONObject:   true,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := params.Messages[0].ContentString(); got != tc.want {
				t.Errorf("system message = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestComplete_RejectsImages(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "llama3"}
	_, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "look", ImageURLs: []string{"https://x/y.jpg"}}},
	})
	if !errors.Is(err, ErrImagesUnsupported) {
		t.Fatalf("err = %v, want ErrImagesUnsupported", err)
	}
}

// ── Constructor ───────────────────────────────────────────────────────────────

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		backend string
		model   string
	}{
		{"empty backend", "", "gpt-4o"},
		{"empty model", "openai", ""},
		{"unsupported backend", "fakecloud", "some-model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tt.backend, tt.model, anyllmlib.WithAPIKey("dummy")); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNew_OpenAI_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New("openai", "gpt-4o"); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestNew_Backends(t *testing.T) {
	t.Parallel()

	tests := []struct {
		backend string
		model   string
		opts    []anyllmlib.Option
	}{
		{"openai", "gpt-4o", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-test")}},
		{"Anthropic", "claude-3-5-sonnet-latest", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-ant-test")}},
		{"ollama", "llama3", nil},
		{"llamacpp", "llama3", nil},
		{"llamafile", "llama3", nil},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			t.Parallel()
			p, err := New(tt.backend, tt.model, tt.opts...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.model != tt.model {
				t.Errorf("model = %q, want %q", p.model, tt.model)
			}
			if p.Name() == "" || p.Name() != p.name {
				t.Errorf("Name() = %q", p.Name())
			}
		})
	}
}

func TestBackends_MatchFactories(t *testing.T) {
	t.Parallel()
	if len(Backends) != len(backends) {
		t.Fatalf("Backends lists %d names, %d factories registered", len(Backends), len(backends))
	}
	for _, name := range Backends {
		if _, ok := backends[name]; !ok {
			t.Errorf("backend %q has no factory", name)
		}
	}
}
