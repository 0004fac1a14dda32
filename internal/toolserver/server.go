// Package toolserver is the MCP server behind the router's tool catalogue.
//
// It registers every tool named in [tools.DefaultSpecs] on an
// [mcpsdk.Server]. The generative tools delegate to the provider interfaces
// in pkg/provider, the member tools to a [members.Store]. The camera capture
// tool does no work of its own: it answers with [mcp.AwaitingClientSentinel]
// and leaves the upload to the client.
package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/toolroute/internal/mcp"
	"github.com/MrWong99/toolroute/internal/members"
	"github.com/MrWong99/toolroute/internal/observe"
	"github.com/MrWong99/toolroute/internal/tools"
	"github.com/MrWong99/toolroute/pkg/provider/imagegen"
	"github.com/MrWong99/toolroute/pkg/provider/llm"
	"github.com/MrWong99/toolroute/pkg/provider/tts"
)

// Prompts used by the chat and describe tools.
const (
	ChatSystemPrompt = "You are a helpful assistant."
	DescribePrompt   = "what's in this image?"
)

// Version is advertised in the MCP implementation info.
const Version = "1.0.0"

// Providers groups the generative backends. A nil field disables the tools
// that depend on it: they stay registered but answer with an error.
type Providers struct {
	Chat   llm.Provider
	Vision llm.Provider
	Images imagegen.Provider
	Speech tts.Provider
}

// Option is a functional option for configuring a [Server].
type Option func(*Server)

// WithMetrics records provider requests on m.
// The default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithName overrides the implementation name advertised to clients.
func WithName(name string) Option {
	return func(s *Server) {
		s.name = name
	}
}

// Server owns the dependencies shared by all tool handlers.
type Server struct {
	providers Providers
	members   members.Store
	metrics   *observe.Metrics
	name      string
	mcp       *mcpsdk.Server
}

// New builds a Server and registers all tools. store must not be nil.
func New(p Providers, store members.Store, opts ...Option) (*Server, error) {
	if store == nil {
		return nil, errors.New("toolserver: members store must not be nil")
	}
	s := &Server{providers: p, members: store, name: "toolroute-server"}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	s.mcp = mcpsdk.NewServer(&mcpsdk.Implementation{Name: s.name, Version: Version}, nil)
	specs := make(map[string]tools.ToolSpec)
	for _, spec := range tools.DefaultSpecs() {
		specs[spec.Name] = spec
	}
	tool := func(name string) *mcpsdk.Tool {
		return &mcpsdk.Tool{Name: name, Description: specs[name].Description}
	}

	mcpsdk.AddTool(s.mcp, tool(tools.Chat), s.chat)
	mcpsdk.AddTool(s.mcp, tool(tools.GenerateImage), s.generateImage)
	mcpsdk.AddTool(s.mcp, tool(tools.Speak), s.speak)
	mcpsdk.AddTool(s.mcp, tool(tools.CaptureImage), s.capture)
	mcpsdk.AddTool(s.mcp, tool(tools.DescribeImage), s.describe)
	mcpsdk.AddTool(s.mcp, tool(tools.ListMembers), s.listMembers)
	mcpsdk.AddTool(s.mcp, tool(tools.GetMember), s.getMember)
	mcpsdk.AddTool(s.mcp, tool(tools.CreateMember), s.createMember)
	mcpsdk.AddTool(s.mcp, tool(tools.UpdateMember), s.updateMember)
	mcpsdk.AddTool(s.mcp, tool(tools.DeleteMember), s.deleteMember)
	return s, nil
}

// MCP returns the underlying SDK server, e.g. to connect it to an in-memory
// transport.
func (s *Server) MCP() *mcpsdk.Server { return s.mcp }

// Run serves a single client over stdin/stdout until ctx is done or the
// client disconnects.
func (s *Server) Run(ctx context.Context) error {
	if err := s.mcp.Run(ctx, &mcpsdk.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("toolserver: stdio: %w", err)
	}
	return nil
}

// Handler returns a streamable HTTP handler serving this server to every
// request.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return s.mcp }, nil)
}

// ---------------------------------------------------------------------------
// Generative tools
// ---------------------------------------------------------------------------

type promptArgs struct {
	Prompt string `json:"prompt" jsonschema:"the text to send"`
}

type speakArgs struct {
	Text  string `json:"text" jsonschema:"text to speak"`
	Voice string `json:"voice,omitempty" jsonschema:"voice name, default nova"`
	Tone  string `json:"tone,omitempty" jsonschema:"speaking tone, default cheerful"`
}

type describeArgs struct {
	ImageURL string `json:"image_url,omitempty" jsonschema:"public URL of the captured photo"`
}

type noArgs struct{}

func (s *Server) chat(ctx context.Context, _ *mcpsdk.CallToolRequest, in promptArgs) (*mcpsdk.CallToolResult, any, error) {
	if s.providers.Chat == nil {
		return textResult("[OpenAI Error] chat provider not configured"), nil, nil
	}
	resp, err := s.providers.Chat.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: ChatSystemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: in.Prompt}},
	})
	if err != nil {
		s.metrics.RecordProviderRequest(ctx, "llm", "chat", "error")
		slog.Warn("toolserver: chat completion failed", "err", err)
		return textResult("[OpenAI Error] " + err.Error()), nil, nil
	}
	s.metrics.RecordProviderRequest(ctx, "llm", "chat", "ok")
	return textResult(resp.Content), nil, nil
}

func (s *Server) generateImage(ctx context.Context, _ *mcpsdk.CallToolRequest, in promptArgs) (*mcpsdk.CallToolResult, any, error) {
	if s.providers.Images == nil {
		return textResult("[ImageGen Error] image provider not configured"), nil, nil
	}
	url, err := s.providers.Images.Generate(ctx, in.Prompt)
	if err != nil {
		s.metrics.RecordProviderRequest(ctx, "imagegen", "image", "error")
		slog.Warn("toolserver: image generation failed", "err", err)
		return textResult("[ImageGen Error] " + err.Error()), nil, nil
	}
	s.metrics.RecordProviderRequest(ctx, "imagegen", "image", "ok")
	return textResult(url), nil, nil
}

func (s *Server) speak(ctx context.Context, _ *mcpsdk.CallToolRequest, in speakArgs) (*mcpsdk.CallToolResult, any, error) {
	if s.providers.Speech == nil {
		return nil, nil, errors.New("speech provider not configured")
	}
	req := tts.Request{Text: in.Text, Voice: in.Voice, Tone: in.Tone}
	if req.Voice == "" {
		req.Voice = tts.DefaultVoice
	}
	if req.Tone == "" {
		req.Tone = tts.DefaultTone
	}
	speech, err := s.providers.Speech.Synthesize(ctx, req)
	if err != nil {
		s.metrics.RecordProviderRequest(ctx, "tts", "speech", "error")
		return nil, nil, fmt.Errorf("speech synthesis failed: %w", err)
	}
	s.metrics.RecordProviderRequest(ctx, "tts", "speech", "ok")
	return textResult(speech.DataURL()), nil, nil
}

func (s *Server) capture(context.Context, *mcpsdk.CallToolRequest, noArgs) (*mcpsdk.CallToolResult, any, error) {
	return textResult(mcp.AwaitingClientSentinel), nil, nil
}

func (s *Server) describe(ctx context.Context, _ *mcpsdk.CallToolRequest, in describeArgs) (*mcpsdk.CallToolResult, any, error) {
	if in.ImageURL == "" {
		return nil, nil, errors.New("image_url is required; capture an image first")
	}
	if s.providers.Vision == nil {
		return textResult("[OpenAI Error] vision provider not configured"), nil, nil
	}
	resp, err := s.providers.Vision.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: DescribePrompt, ImageURLs: []string{in.ImageURL}}},
	})
	if err != nil {
		s.metrics.RecordProviderRequest(ctx, "llm", "vision", "error")
		slog.Warn("toolserver: image description failed", "err", err)
		return textResult("[OpenAI Error] " + err.Error()), nil, nil
	}
	s.metrics.RecordProviderRequest(ctx, "llm", "vision", "ok")
	return textResult(resp.Content), nil, nil
}

func textResult(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}}}
}

// jsonResult renders v as indented JSON text.
func jsonResult(v any) (*mcpsdk.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encode result: %w", err)
	}
	return textResult(string(data)), nil, nil
}
