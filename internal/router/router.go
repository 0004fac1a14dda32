// Package router turns free-form user text into a routing [Decision] by asking
// an LLM oracle to pick one tool from a [tools.Registry].
//
// Route makes exactly one oracle call per invocation and never fails: when
// the oracle errors or answers with anything other than a strict
// {"tool": ..., "args": {...}} object, the decision is degraded to the
// registry's fallback tool with a diagnostic prompt.
//
// The router does not see conversation state. Preconditions such as "an image
// has been captured" are enforced by the dispatcher.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/toolroute/internal/observe"
	"github.com/MrWong99/toolroute/internal/tools"
	"github.com/MrWong99/toolroute/pkg/provider/llm"
)

// Degradation reasons reported on [Decision.Reason] and as metric labels.
const (
	ReasonOracleError = "oracle_error"
	ReasonInvalidJSON = "invalid_json"
	ReasonMissingTool = "missing_tool"
	ReasonUnknownTool = "unknown_tool"
)

// Decision is the routing outcome for one turn.
type Decision struct {
	// Input is the user text the decision was made for.
	Input string

	Tool string
	Args map[string]any

	// Degraded is set when the decision is the fallback produced by a failure.
	Degraded bool

	// Reason is one of the Reason* constants when Degraded is true.
	Reason string
}

// Option is a functional option for configuring a [Router].
type Option func(*Router)

// WithTimeout bounds the oracle call. Zero leaves the caller's context in charge.
func WithTimeout(d time.Duration) Option {
	return func(r *Router) { r.timeout = d }
}

// WithMetrics overrides the default metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithTemperature sets the sampling temperature sent to the oracle.
func WithTemperature(t float64) Option {
	return func(r *Router) { r.temperature = t }
}

// Router selects tools. It is safe for concurrent use.
type Router struct {
	oracle      llm.Provider
	registry    *tools.Registry
	prompt      string
	timeout     time.Duration
	temperature float64
	metrics     *observe.Metrics
}

// New creates a Router bound to registry. The system prompt is rendered once.
func New(oracle llm.Provider, registry *tools.Registry, opts ...Option) *Router {
	r := &Router{
		oracle:   oracle,
		registry: registry,
		prompt:   SystemPrompt(registry),
		metrics:  observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Prompt returns the rendered system prompt.
func (r *Router) Prompt() string { return r.prompt }

// Route asks the oracle to choose a tool for text.
func (r *Router) Route(ctx context.Context, text string) Decision {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "router.route")
	defer span.End()

	d := r.route(ctx, text)
	d.Input = text

	r.metrics.RecordRoute(ctx, time.Since(start), d.Reason)
	span.SetAttributes(
		attribute.String("tool", d.Tool),
		attribute.Bool("degraded", d.Degraded),
	)
	return d
}

func (r *Router) route(ctx context.Context, text string) Decision {
	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	resp, err := r.oracle.Complete(callCtx, llm.CompletionRequest{
		SystemPrompt: r.prompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: text}},
		Temperature:  r.temperature,
		JSONObject:   true,
	})
	if err != nil {
		return r.degrade(ctx, ReasonOracleError, "ERROR: oracle request failed: "+err.Error(), "")
	}

	raw := strings.TrimSpace(resp.Content)
	tool, args, err := Decode(raw)
	switch {
	case errors.Is(err, ErrMissingTool):
		return r.degrade(ctx, ReasonMissingTool, "ERROR: No tool in reply: "+raw, raw)
	case err != nil:
		return r.degrade(ctx, ReasonInvalidJSON, "ERROR: Invalid JSON returned: "+raw, raw)
	}
	if _, ok := r.registry.Lookup(tool); !ok {
		return r.degrade(ctx, ReasonUnknownTool, fmt.Sprintf("ERROR: Unknown tool %q returned: %s", tool, raw), raw)
	}

	observe.Logger(ctx).Debug("router: tool selected", "tool", tool, "args", len(args))
	return Decision{Tool: tool, Args: args}
}

func (r *Router) degrade(ctx context.Context, reason, diagnostic, raw string) Decision {
	observe.Logger(ctx).Warn("router: degraded to fallback tool",
		slog.String("reason", reason),
		slog.String("raw", raw),
	)
	return Decision{
		Tool:     r.registry.Fallback(),
		Args:     map[string]any{"prompt": diagnostic},
		Degraded: true,
		Reason:   reason,
	}
}

// SystemPrompt renders the routing instructions for registry.
func SystemPrompt(registry *tools.Registry) string {
	var b strings.Builder
	b.WriteString("You are a tool routing assistant. You receive a natural language user request and determine which MCP tool to use.\n\n")
	b.WriteString("Available tools and their signatures:\n")
	for _, sig := range registry.Signatures() {
		b.WriteString("- " + sig + "\n")
	}
	b.WriteString("\nNotes:\n")
	for _, rule := range registry.Rules() {
		b.WriteString("- " + rule.String() + "\n")
	}
	b.WriteString("- For everything else, fallback to `" + registry.Fallback() + "`.\n\n")
	b.WriteString("Respond ONLY in compact JSON like:\n")
	b.WriteString(`{"tool": "tool_name", "args": {"arg1": "value"}}`)
	b.WriteString("\nUse exactly the keys \"tool\" and \"args\". Argument values must be strings, numbers or booleans.")
	return b.String()
}
