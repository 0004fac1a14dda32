package toolserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/toolroute/internal/mcp"
	"github.com/MrWong99/toolroute/internal/mcp/bridge"
	"github.com/MrWong99/toolroute/internal/members"
	"github.com/MrWong99/toolroute/internal/observe"
	"github.com/MrWong99/toolroute/internal/toolserver"
	"github.com/MrWong99/toolroute/internal/tools"
	imagemock "github.com/MrWong99/toolroute/pkg/provider/imagegen/mock"
	"github.com/MrWong99/toolroute/pkg/provider/llm"
	llmmock "github.com/MrWong99/toolroute/pkg/provider/llm/mock"
	"github.com/MrWong99/toolroute/pkg/provider/tts"
	ttsmock "github.com/MrWong99/toolroute/pkg/provider/tts/mock"
)

type fixture struct {
	chat   *llmmock.Provider
	vision *llmmock.Provider
	images *imagemock.Provider
	speech *ttsmock.Provider
	store  *members.MemStore
	bridge *bridge.Bridge
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		chat:   &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "hi there"}},
		vision: &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "a cracked bumper"}},
		images: &imagemock.Provider{URL: "https://images.test/1.png"},
		speech: &ttsmock.Provider{},
		store: members.NewMemStore(
			members.Member{ID: "m1", Name: "Ann", Email: "ann@example.com", Role: "admin", Status: "active", CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
			members.Member{ID: "m2", Name: "Bob", Email: "bob@example.com", Role: "user", Status: "active", CreatedAt: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)},
		),
	}
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	srv, err := toolserver.New(toolserver.Providers{
		Chat:   f.chat,
		Vision: f.vision,
		Images: f.images,
		Speech: f.speech,
	}, f.store, toolserver.WithMetrics(m))
	if err != nil {
		t.Fatalf("toolserver.New: %v", err)
	}

	transport := func(ctx context.Context) (mcpsdk.Transport, error) {
		clientT, serverT := mcpsdk.NewInMemoryTransports()
		if _, err := srv.MCP().Connect(ctx, serverT, nil); err != nil {
			return nil, err
		}
		return clientT, nil
	}
	f.bridge, err = bridge.New(mcp.ServerConfig{Name: "toolserver"}, bridge.WithTransport(transport), bridge.WithMetrics(m))
	if err != nil {
		t.Fatalf("bridge.New: %v", err)
	}
	return f
}

func (f *fixture) call(t *testing.T, tool string, args map[string]any) mcp.Result {
	t.Helper()
	return f.bridge.Invoke(context.Background(), tool, args)
}

func wantText(t *testing.T, res mcp.Result) string {
	t.Helper()
	if res.Kind != mcp.ResultText {
		t.Fatalf("Kind = %v, want text (failure: %+v)", res.Kind, res.Failure)
	}
	return res.Text
}

func TestNew_RequiresStore(t *testing.T) {
	t.Parallel()
	if _, err := toolserver.New(toolserver.Providers{}, nil); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func TestTools_AllRegistered(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	names, err := f.bridge.Tools(context.Background())
	if err != nil {
		t.Fatalf("Tools: %v", err)
	}
	got := make(map[string]bool, len(names))
	for _, n := range names {
		got[n] = true
	}
	for _, spec := range tools.DefaultSpecs() {
		if !got[spec.Name] {
			t.Errorf("tool %q not registered", spec.Name)
		}
	}
}

func TestChat(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if got := wantText(t, f.call(t, tools.Chat, map[string]any{"prompt": "hello"})); got != "hi there" {
		t.Errorf("text = %q", got)
	}
	req := f.chat.CompleteCalls[0].Req
	if req.SystemPrompt != toolserver.ChatSystemPrompt || req.Messages[0].Content != "hello" {
		t.Errorf("request = %+v", req)
	}

	f.chat.CompleteErr = errors.New("rate limited")
	if got := wantText(t, f.call(t, tools.Chat, map[string]any{"prompt": "hello"})); got != "[OpenAI Error] rate limited" {
		t.Errorf("error text = %q", got)
	}
}

func TestGenerateImage(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if got := wantText(t, f.call(t, tools.GenerateImage, map[string]any{"prompt": "a fox"})); got != "https://images.test/1.png" {
		t.Errorf("url = %q", got)
	}
	f.images.Err = errors.New("content policy")
	if got := wantText(t, f.call(t, tools.GenerateImage, map[string]any{"prompt": "a fox"})); got != "[ImageGen Error] content policy" {
		t.Errorf("error text = %q", got)
	}
}

func TestSpeak(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	got := wantText(t, f.call(t, tools.Speak, map[string]any{"text": "welcome"}))
	if !strings.HasPrefix(got, "data:audio/mp3;base64,") {
		t.Errorf("audio = %q", got)
	}
	want := tts.Request{Text: "welcome", Voice: tts.DefaultVoice, Tone: tts.DefaultTone}
	if f.speech.Calls[0] != want {
		t.Errorf("request = %+v, want %+v", f.speech.Calls[0], want)
	}

	f.speech.Err = errors.New("quota")
	res := f.call(t, tools.Speak, map[string]any{"text": "x", "voice": "alloy", "tone": "calm"})
	if res.Kind != mcp.ResultFailure || res.Failure.Kind != mcp.FailureTool {
		t.Fatalf("result = %+v, want tool failure", res)
	}
	if f.speech.Calls[1].Voice != "alloy" || f.speech.Calls[1].Tone != "calm" {
		t.Errorf("request = %+v", f.speech.Calls[1])
	}
}

func TestCapture(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if res := f.call(t, tools.CaptureImage, nil); res.Kind != mcp.ResultAwaitingClient {
		t.Fatalf("Kind = %v, want awaiting_client", res.Kind)
	}
}

func TestDescribe(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	got := wantText(t, f.call(t, tools.DescribeImage, map[string]any{"image_url": "https://artifacts.test/1.jpg"}))
	if got != "a cracked bumper" {
		t.Errorf("text = %q", got)
	}
	msg := f.vision.CompleteCalls[0].Req.Messages[0]
	if msg.Content != toolserver.DescribePrompt || len(msg.ImageURLs) != 1 || msg.ImageURLs[0] != "https://artifacts.test/1.jpg" {
		t.Errorf("message = %+v", msg)
	}

	if res := f.call(t, tools.DescribeImage, nil); res.Kind != mcp.ResultFailure {
		t.Errorf("describe without url = %+v, want failure", res)
	}
	if f.vision.CallCount() != 1 {
		t.Errorf("vision calls = %d, want 1", f.vision.CallCount())
	}
}

func TestMissingProviders(t *testing.T) {
	t.Parallel()

	srv, err := toolserver.New(toolserver.Providers{}, &members.MemStore{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clientT, serverT := mcpsdk.NewInMemoryTransports()
	ctx := context.Background()
	if _, err := srv.MCP().Connect(ctx, serverT, nil); err != nil {
		t.Fatalf("server connect: %v", err)
	}
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test", Version: "0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer cs.Close()

	res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{Name: tools.Chat, Arguments: map[string]any{"prompt": "x"}})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if text := res.Content[0].(*mcpsdk.TextContent).Text; !strings.HasPrefix(text, "[OpenAI Error]") {
		t.Errorf("text = %q", text)
	}
}

func decodeMember(t *testing.T, res mcp.Result) members.Member {
	t.Helper()
	var m members.Member
	if err := json.Unmarshal([]byte(wantText(t, res)), &m); err != nil {
		t.Fatalf("decode member: %v", err)
	}
	return m
}

func TestMembers_ListAndGet(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var list []members.Member
	if err := json.Unmarshal([]byte(wantText(t, f.call(t, tools.ListMembers, nil))), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "m2" {
		t.Errorf("default list (newest first) = %+v", list)
	}

	list = nil
	res := f.call(t, tools.ListMembers, map[string]any{"order": "asc", "role": "admin", "limit": 5})
	if err := json.Unmarshal([]byte(wantText(t, res)), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].ID != "m1" {
		t.Errorf("admin list = %+v", list)
	}

	if res := f.call(t, tools.ListMembers, map[string]any{"sort": "password"}); res.Kind != mcp.ResultFailure {
		t.Errorf("bad sort = %+v, want failure", res)
	}
	if res := f.call(t, tools.ListMembers, map[string]any{"order": "sideways"}); res.Kind != mcp.ResultFailure {
		t.Errorf("bad order = %+v, want failure", res)
	}

	if m := decodeMember(t, f.call(t, tools.GetMember, map[string]any{"member_id": "m1"})); m.Email != "ann@example.com" {
		t.Errorf("member = %+v", m)
	}
	if got := wantText(t, f.call(t, tools.GetMember, map[string]any{"member_id": "nope"})); got != "null" {
		t.Errorf("missing member = %q, want null", got)
	}
}

func TestMembers_CreateUpdateDelete(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	created := decodeMember(t, f.call(t, tools.CreateMember, map[string]any{"name": "Cy", "email": "cy@example.com"}))
	if created.ID == "" || created.Role != members.DefaultRole || created.Status != members.DefaultStatus {
		t.Errorf("created = %+v", created)
	}

	res := f.call(t, tools.CreateMember, map[string]any{"name": "Cy 2", "email": "cy@example.com"})
	if res.Kind != mcp.ResultFailure || !strings.Contains(res.Failure.Message, "email already in use") {
		t.Errorf("duplicate create = %+v", res)
	}

	updated := decodeMember(t, f.call(t, tools.UpdateMember, map[string]any{"member_id": created.ID, "status": "inactive"}))
	if updated.Status != "inactive" || updated.Name != "Cy" {
		t.Errorf("updated = %+v", updated)
	}

	deleted := decodeMember(t, f.call(t, tools.DeleteMember, map[string]any{"member_id": created.ID}))
	if deleted.ID != created.ID || deleted.Status != "inactive" {
		t.Errorf("deleted = %+v", deleted)
	}
	res = f.call(t, tools.DeleteMember, map[string]any{"member_id": created.ID})
	if res.Kind != mcp.ResultFailure || !strings.Contains(res.Failure.Message, "not found") {
		t.Errorf("second delete = %+v", res)
	}
}
