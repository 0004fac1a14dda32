// Package dispatch executes routing decisions against the tool server and
// normalises whatever comes back into an [Envelope] a sink can render.
//
// The Dispatcher is the only writer of [session.Conversation]. Every turn
// appends the user text before anything else, so the history records the turn
// even when the tool call fails. The camera flow is split in two phases:
// capture_image_from_camera moves the conversation to
// [session.PhaseAwaitingArtifact] and returns a [KindCollect] envelope; the
// sink then calls [Dispatcher.SubmitArtifact] with the photo, which is
// uploaded and remembered as the conversation's last artifact for
// describe_image_from_camera.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/toolroute/internal/artifact"
	"github.com/MrWong99/toolroute/internal/mcp"
	"github.com/MrWong99/toolroute/internal/observe"
	"github.com/MrWong99/toolroute/internal/router"
	"github.com/MrWong99/toolroute/internal/session"
	"github.com/MrWong99/toolroute/internal/tools"
)

// User-facing messages.
const (
	MsgCaptureFirst   = "Please capture an image first."
	MsgTakePicture    = "Please take a picture to proceed."
	MsgNoImageData    = "No image data received."
	MsgInvalidAudio   = "Invalid audio data URL"
	MsgDescribeHeader = "Image description:"
	MsgCaptured       = "Image captured from camera"
)

const audioPrefix = "data:audio/"

// Option is a functional option for configuring a [Dispatcher].
type Option func(*Dispatcher)

// WithRegistry overrides the default tool catalogue.
func WithRegistry(r *tools.Registry) Option {
	return func(d *Dispatcher) { d.registry = r }
}

// WithMetrics overrides the default metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher runs decisions. It holds no per-conversation state and is safe
// for concurrent use across distinct conversations.
type Dispatcher struct {
	invoker  mcp.Invoker
	store    artifact.Store
	registry *tools.Registry
	metrics  *observe.Metrics
}

// New creates a Dispatcher that calls tools through invoker and stores
// captured images in store.
func New(invoker mcp.Invoker, store artifact.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		invoker:  invoker,
		store:    store,
		registry: tools.Default(),
		metrics:  observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch executes dec on behalf of conv and returns the rendered outcome.
// conv is updated in place.
func (d *Dispatcher) Dispatch(ctx context.Context, dec router.Decision, conv *session.Conversation) Envelope {
	ctx, span := observe.StartSpan(observe.WithConversation(ctx, conv.ID), "dispatch.turn")
	defer span.End()

	conv.Append(session.RoleUser, dec.Input)

	env := d.dispatch(ctx, dec, conv)

	conv.Append(session.RoleAssistant, env.Text())
	d.metrics.RecordEnvelope(ctx, string(env.Kind), env.Tool)
	span.SetAttributes(
		attribute.String("tool", env.Tool),
		attribute.String("envelope.kind", string(env.Kind)),
	)
	return env
}

func (d *Dispatcher) dispatch(ctx context.Context, dec router.Decision, conv *session.Conversation) Envelope {
	tool, args := dec.Tool, dec.Args
	if _, ok := d.registry.Lookup(tool); !ok {
		observe.Logger(ctx).Warn("dispatch: unknown tool, using fallback", "tool", tool)
		tool = d.registry.Fallback()
		args = map[string]any{"prompt": dec.Input}
	}

	if tool == tools.DescribeImage {
		ref := conv.LastArtifact()
		if ref == "" {
			return Envelope{Kind: KindText, Payload: MsgCaptureFirst, Tool: tool}
		}
		args = map[string]any{"image_url": ref}
	}

	clean, err := d.registry.Validate(tool, args)
	if err != nil {
		return Envelope{
			Kind:    KindError,
			Caption: "Invalid arguments for " + tool,
			Payload: strings.TrimPrefix(err.Error(), "tools: "),
			Tool:    tool,
		}
	}

	res := d.invoker.Invoke(ctx, tool, clean)
	return d.normalize(ctx, tool, clean, res, conv)
}

func (d *Dispatcher) normalize(ctx context.Context, tool string, args map[string]any, res mcp.Result, conv *session.Conversation) Envelope {
	switch res.Kind {
	case mcp.ResultFailure:
		return failureEnvelope(tool, res.Failure)
	case mcp.ResultAwaitingClient:
		if tool == tools.CaptureImage {
			conv.AwaitArtifact(tool)
			observe.Logger(ctx).Info("dispatch: waiting for client artifact", "tool", tool)
			return Envelope{Kind: KindCollect, Payload: MsgTakePicture, Tool: tool}
		}
		// Only the camera tool may start the two-phase flow. For any other
		// tool the sentinel is ordinary text.
		res = mcp.TextResult(mcp.AwaitingClientSentinel)
	}

	switch tool {
	case tools.Chat:
		text, ok := primaryText(res)
		if !ok {
			return diagnostic(tool, res)
		}
		return Envelope{Kind: KindText, Payload: text, Tool: tool}

	case tools.GenerateImage:
		url, ok := primaryText(res)
		if !ok {
			return diagnostic(tool, res)
		}
		return Envelope{
			Kind:    KindImage,
			Payload: strings.TrimSpace(url),
			Caption: fmt.Sprintf("DALL·E image for: %v", args["prompt"]),
			Tool:    tool,
		}

	case tools.Speak:
		data, ok := primaryText(res)
		if !ok {
			return diagnostic(tool, res)
		}
		data = strings.TrimSpace(data)
		if !strings.HasPrefix(data, audioPrefix) {
			return Envelope{Kind: KindError, Caption: MsgInvalidAudio, Payload: fenceJSON(data), Tool: tool}
		}
		return Envelope{
			Kind:    KindAudio,
			Payload: data,
			Caption: fmt.Sprintf("Speech synthesized for: %v", args["text"]),
			Tool:    tool,
		}

	case tools.CaptureImage:
		// Anything but the sentinel means the server does not implement the
		// two-phase flow.
		return diagnostic(tool, res)

	case tools.DescribeImage:
		text, ok := primaryText(res)
		if !ok {
			return diagnostic(tool, res)
		}
		return Envelope{Kind: KindText, Caption: MsgDescribeHeader, Payload: text, Tool: tool}

	default:
		return recordEnvelope(tool, res)
	}
}

// SubmitArtifact uploads client-captured image data for conv and records the
// returned reference as the conversation's last artifact. On failure the
// artifact state of conv is left unchanged.
func (d *Dispatcher) SubmitArtifact(ctx context.Context, conv *session.Conversation, data []byte, contentType string) Envelope {
	ctx, span := observe.StartSpan(observe.WithConversation(ctx, conv.ID), "dispatch.artifact")
	defer span.End()

	tool := conv.Pending()
	if tool == "" {
		tool = tools.CaptureImage
	}
	conv.Append(session.RoleUser, fmt.Sprintf("[image upload, %d bytes]", len(data)))

	env := d.submit(ctx, conv, data, contentType, tool)

	conv.Append(session.RoleAssistant, env.Text())
	d.metrics.RecordEnvelope(ctx, string(env.Kind), tool)
	return env
}

func (d *Dispatcher) submit(ctx context.Context, conv *session.Conversation, data []byte, contentType, tool string) Envelope {
	if len(data) == 0 {
		return Envelope{Kind: KindError, Payload: MsgNoImageData, Tool: tool}
	}

	start := time.Now()
	ref, err := d.store.Upload(ctx, data, contentType)
	if err != nil {
		observe.Logger(ctx).Error("dispatch: artifact upload failed", "err", err)
		return Envelope{Kind: KindError, Caption: "Upload failed", Payload: err.Error(), Tool: tool}
	}
	conv.RecordArtifact(ref)
	observe.Logger(ctx).Info("dispatch: artifact recorded",
		"bytes", len(data),
		"duration", time.Since(start),
	)
	return Envelope{Kind: KindText, Caption: MsgCaptured, Payload: ref, Tool: tool}
}

// primaryText extracts the leading text value of res.
func primaryText(res mcp.Result) (string, bool) {
	switch res.Kind {
	case mcp.ResultText:
		return res.Text, true
	case mcp.ResultParts:
		if len(res.Parts) > 0 && res.Parts[0].Kind == mcp.PartText {
			return res.Parts[0].Text, true
		}
	}
	return "", false
}

// recordEnvelope renders a record-store result as a fenced JSON block.
func recordEnvelope(tool string, res mcp.Result) Envelope {
	var body string
	switch res.Kind {
	case mcp.ResultStructured:
		body = fenceJSON(string(res.Structured))
	default:
		text, ok := primaryText(res)
		if !ok {
			return diagnostic(tool, res)
		}
		body = fenceJSON(text)
	}
	return Envelope{Kind: KindText, Caption: "Tool: " + tool, Payload: body, Tool: tool}
}

func failureEnvelope(tool string, f *mcp.Failure) Envelope {
	if f == nil {
		f = &mcp.Failure{Kind: mcp.FailureShape, Message: "missing failure detail"}
	}
	env := Envelope{Kind: KindError, Payload: f.Message, Tool: tool}
	switch f.Kind {
	case mcp.FailureTransport:
		env.Caption = "Could not reach the tool server"
	case mcp.FailureTool:
		env.Caption = "Tool " + tool + " reported an error"
	case mcp.FailureShape:
		env.Caption = "Unexpected result from " + tool
		if f.Raw != "" {
			env.Payload = f.Message + "\n\n" + fenceJSON(f.Raw)
		}
	}
	return env
}

// diagnostic reports a result whose shape does not fit the tool.
func diagnostic(tool string, res mcp.Result) Envelope {
	return Envelope{
		Kind:    KindError,
		Caption: "Unexpected result from " + tool,
		Payload: fenceJSON(describeResult(res)),
		Tool:    tool,
	}
}

// describeResult renders res as indented JSON for inspection.
func describeResult(res mcp.Result) string {
	view := struct {
		Kind       string          `json:"kind"`
		Text       string          `json:"text,omitempty"`
		Parts      []partView      `json:"parts,omitempty"`
		Structured json.RawMessage `json:"structured,omitempty"`
	}{Kind: res.Kind.String(), Text: res.Text, Structured: res.Structured}
	for _, p := range res.Parts {
		view.Parts = append(view.Parts, partView{Kind: partKind(p.Kind), Text: p.Text, MIMEType: p.MIMEType, Bytes: len(p.Data)})
	}
	out, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return res.Kind.String()
	}
	return string(out)
}

type partView struct {
	Kind     string `json:"kind"`
	Text     string `json:"text,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	Bytes    int    `json:"bytes,omitempty"`
}

func partKind(k mcp.PartKind) string {
	switch k {
	case mcp.PartText:
		return "text"
	case mcp.PartImage:
		return "image"
	case mcp.PartAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// fenceJSON wraps s in a json code fence, pretty-printing it when it parses.
func fenceJSON(s string) string {
	var buf bytes.Buffer
	if json.Indent(&buf, []byte(strings.TrimSpace(s)), "", "  ") == nil {
		s = buf.String()
	} else if b, err := json.Marshal(s); err == nil {
		s = string(b)
	}
	return "```json\n" + s + "\n```"
}
