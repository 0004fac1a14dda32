package console

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/toolroute/internal/app"
	artifactmock "github.com/MrWong99/toolroute/internal/artifact/mock"
	"github.com/MrWong99/toolroute/internal/dispatch"
	"github.com/MrWong99/toolroute/internal/mcp"
	mcpmock "github.com/MrWong99/toolroute/internal/mcp/mock"
	"github.com/MrWong99/toolroute/internal/observe"
	"github.com/MrWong99/toolroute/internal/router"
	"github.com/MrWong99/toolroute/internal/tools"
	"github.com/MrWong99/toolroute/pkg/provider/llm"
	llmmock "github.com/MrWong99/toolroute/pkg/provider/llm/mock"
)

// newApp builds a pipeline whose oracle picks the tool named after "tool:"
// in the user text and chat otherwise.
func newApp(t *testing.T, inv *mcpmock.Invoker, store *artifactmock.Store) *app.App {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	oracle := &llmmock.Provider{Func: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		text := req.Messages[0].Content
		if name, ok := strings.CutPrefix(text, "tool:"); ok {
			return &llm.CompletionResponse{Content: `{"tool":"` + name + `","args":{}}`}, nil
		}
		return &llm.CompletionResponse{Content: `{"tool":"chat_gpt4o","args":{"prompt":"x"}}`}, nil
	}}
	return app.New(
		router.New(oracle, tools.Default(), router.WithMetrics(m)),
		dispatch.New(inv, store, dispatch.WithMetrics(m)),
		app.WithMetrics(m),
	)
}

func TestRun_Session(t *testing.T) {
	t.Parallel()
	inv := &mcpmock.Invoker{Results: map[string]mcp.Result{
		tools.Chat:          mcp.TextResult("hello human"),
		tools.CaptureImage:  {Kind: mcp.ResultAwaitingClient},
		tools.DescribeImage: mcp.TextResult("a cracked windshield"),
	}}
	store := &artifactmock.Store{URL: "https://artifacts.test/a.jpg"}
	a := newApp(t, inv, store)

	input := strings.Join([]string{
		"hi",
		"",
		"tool:capture_image_from_camera",
		"/image photo.png",
		"tool:describe_image_from_camera",
		"/history",
		"/quit",
		"never reached",
	}, "\n")
	var out bytes.Buffer
	c := New(a, strings.NewReader(input), &out, WithReadFile(func(path string) ([]byte, error) {
		if path != "photo.png" {
			return nil, os.ErrNotExist
		}
		return []byte("\x89PNG"), nil
	}))

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"hello human",
		dispatch.MsgTakePicture,
		"/image <path>",
		"https://artifacts.test/a.jpg",
		"a cracked windshield",
		"[user] hi",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if n := inv.CallCount(tools.Chat); n != 1 {
		t.Errorf("chat calls = %d, want 1 (blank lines and commands are not turns)", n)
	}
	if len(store.Uploads) != 1 || store.Uploads[0].ContentType != "image/png" {
		t.Errorf("uploads = %+v", store.Uploads)
	}
	if n := a.Conversations().Len(); n != 0 {
		t.Errorf("conversations left open = %d", n)
	}
}

func TestRun_Commands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "image without path", input: "/image", want: "usage: /image <path>"},
		{name: "image read error", input: "/image missing.jpg", want: "error: file does not exist"},
		{name: "new conversation", input: "/new", want: "started conversation "},
		{name: "eof ends", input: "", want: "toolroute console."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			a := newApp(t, &mcpmock.Invoker{}, &artifactmock.Store{})
			var out bytes.Buffer
			c := New(a, strings.NewReader(tc.input), &out, WithReadFile(func(string) ([]byte, error) {
				return nil, os.ErrNotExist
			}))
			if err := c.Run(context.Background()); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if !strings.Contains(out.String(), tc.want) {
				t.Errorf("output missing %q:\n%s", tc.want, out.String())
			}
		})
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("tty gone") }

func TestRun_ReadError(t *testing.T) {
	t.Parallel()
	a := newApp(t, &mcpmock.Invoker{}, &artifactmock.Store{})
	err := New(a, errReader{}, &bytes.Buffer{}).Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "tty gone") {
		t.Errorf("err = %v, want read error", err)
	}
}

func TestRender(t *testing.T) {
	t.Parallel()
	audio := "data:audio/mpeg;base64," + base64.StdEncoding.EncodeToString([]byte("ID3"))

	tests := []struct {
		name string
		env  dispatch.Envelope
		want []string
	}{
		{
			name: "image",
			env:  dispatch.Envelope{Kind: dispatch.KindImage, Payload: "https://img.test/1.png", Caption: "DALL·E image for: cat"},
			want: []string{"DALL·E image for: cat", "https://img.test/1.png"},
		},
		{
			name: "audio without dir",
			env:  dispatch.Envelope{Kind: dispatch.KindAudio, Payload: audio, Caption: "Speech synthesized for: hi"},
			want: []string{"Speech synthesized for: hi", "[audio: 3 bytes]"},
		},
		{
			name: "malformed audio",
			env:  dispatch.Envelope{Kind: dispatch.KindAudio, Payload: "data:audio/mpeg"},
			want: []string{"[audio: malformed data URL]"},
		},
		{
			name: "error",
			env:  dispatch.Envelope{Kind: dispatch.KindError, Caption: "Could not reach the tool server", Payload: "dial tcp: refused"},
			want: []string{"error: Could not reach the tool server", "dial tcp: refused"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var out bytes.Buffer
			(&Console{out: &out}).render(tc.env)
			for _, w := range tc.want {
				if !strings.Contains(out.String(), w) {
					t.Errorf("output missing %q:\n%s", w, out.String())
				}
			}
		})
	}
}

func TestRender_SavesAudio(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	var out bytes.Buffer
	c := &Console{out: &out, audioDir: dir}
	c.render(dispatch.Envelope{
		Kind:    dispatch.KindAudio,
		Payload: "data:audio/mp3;base64," + base64.StdEncoding.EncodeToString([]byte("mp3data")),
	})

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("ReadDir = %v, %v", entries, err)
	}
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil || string(data) != "mp3data" {
		t.Errorf("saved audio = %q, %v", data, err)
	}
	if !strings.Contains(out.String(), "[audio saved to ") {
		t.Errorf("output = %q", out.String())
	}
}

func TestContentType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		path string
		data []byte
		want string
	}{
		{"a.png", nil, "image/png"},
		{"A.JPG", nil, "image/jpeg"},
		{"noext", []byte("\xff\xd8\xff\xe0"), "image/jpeg"},
	}
	for _, tc := range tests {
		if got := contentType(tc.path, tc.data); got != tc.want {
			t.Errorf("contentType(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}
