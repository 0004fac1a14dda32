// Package bridge implements [mcp.Invoker] on top of the official MCP Go SDK.
//
// A [Bridge] holds no live connection. Every [Bridge.Invoke] opens a fresh
// client session to the configured server, issues exactly one tools/call
// request, and closes the session again on every exit path. The raw
// [mcpsdk.CallToolResult] is decoded into the [mcp.Result] tagged union by
// [Decode]; anything the decoder does not recognise fails closed as
// [mcp.FailureShape].
//
// Typical usage:
//
//	b, err := bridge.New(mcp.ServerConfig{
//	    Name:      "toolroute-server",
//	    Transport: mcp.TransportStdio,
//	    Command:   "toolroute-server -config server.yaml",
//	})
//	if err != nil { ... }
//
//	res := b.Invoke(ctx, "gen_image_dalle3", map[string]any{"prompt": "a red bicycle"})
//	if res.Kind == mcp.ResultFailure { ... }
package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/toolroute/internal/mcp"
	"github.com/MrWong99/toolroute/internal/observe"
	"github.com/MrWong99/toolroute/internal/resilience"
)

// TransportFunc builds the transport for a single session. It is called once
// per [Bridge.Invoke].
type TransportFunc func(ctx context.Context) (mcpsdk.Transport, error)

// Option is a functional option for configuring a [Bridge].
type Option func(*Bridge)

// WithCallTimeout bounds each invocation, including session setup and
// teardown. Zero (the default) leaves the caller's context in charge.
func WithCallTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		b.timeout = d
	}
}

// WithMetrics records tool call counters and latencies on m.
// The default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// WithTransport replaces the transport derived from [mcp.ServerConfig].
// Useful for in-memory transports in tests.
func WithTransport(fn TransportFunc) Option {
	return func(b *Bridge) {
		b.transport = fn
	}
}

// WithBreaker guards invocations with cb. Transport failures count against
// the breaker; while it is open, Invoke fails fast with [mcp.FailureTransport]
// instead of starting a session.
func WithBreaker(cb *resilience.Breaker) Option {
	return func(b *Bridge) {
		b.breaker = cb
	}
}

// Bridge is a session-per-call [mcp.Invoker]. It is safe for concurrent use.
type Bridge struct {
	cfg       mcp.ServerConfig
	client    *mcpsdk.Client
	transport TransportFunc
	timeout   time.Duration
	metrics   *observe.Metrics
	breaker   *resilience.Breaker
}

var _ mcp.Invoker = (*Bridge)(nil)

// New validates cfg and returns a ready-to-use Bridge. When [WithTransport] is
// supplied, cfg.Transport, cfg.Command and cfg.URL are not consulted.
func New(cfg mcp.ServerConfig, opts ...Option) (*Bridge, error) {
	b := &Bridge{
		cfg: cfg,
		client: mcpsdk.NewClient(
			&mcpsdk.Implementation{Name: "toolroute-bridge", Version: "1.0.0"},
			nil,
		),
	}
	for _, o := range opts {
		o(b)
	}
	if b.metrics == nil {
		b.metrics = observe.DefaultMetrics()
	}
	if b.cfg.Name == "" {
		b.cfg.Name = "tools"
	}

	if b.transport == nil {
		fn, err := transportFor(b.cfg)
		if err != nil {
			return nil, err
		}
		b.transport = fn
	}
	return b, nil
}

// transportFor maps a server config to a TransportFunc.
func transportFor(cfg mcp.ServerConfig) (TransportFunc, error) {
	switch cfg.Transport {
	case mcp.TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return nil, fmt.Errorf("bridge: stdio server %q requires a non-empty command", cfg.Name)
		}
		env := os.Environ()
		for k, v := range cfg.Env {
			env = append(env, k+"="+v)
		}
		return func(ctx context.Context) (mcpsdk.Transport, error) {
			cmd := exec.CommandContext(ctx, executable, args...)
			cmd.Env = env
			cmd.Stderr = os.Stderr
			return &mcpsdk.CommandTransport{Command: cmd}, nil
		}, nil

	case mcp.TransportStreamableHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("bridge: streamable-http server %q requires a non-empty url", cfg.Name)
		}
		return func(context.Context) (mcpsdk.Transport, error) {
			return &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}, nil
		}, nil

	default:
		return nil, fmt.Errorf("bridge: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}
}

// splitCommand separates an executable from its whitespace-delimited
// arguments.
func splitCommand(command string) (string, []string) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

// Invoke implements [mcp.Invoker]. It never returns a Go error; connection,
// protocol, tool and decoding problems all surface as [mcp.ResultFailure].
func (b *Bridge) Invoke(ctx context.Context, tool string, args map[string]any) mcp.Result {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	ctx, span := observe.StartSpan(ctx, "mcp.invoke")
	defer span.End()
	span.SetAttributes(attribute.String("tool", tool), attribute.String("server", b.cfg.Name))

	start := time.Now()
	res := b.guarded(ctx, tool, args)
	res.DurationMs = time.Since(start).Milliseconds()

	status := "ok"
	if res.Kind == mcp.ResultFailure {
		status = res.Failure.Kind.String()
		span.SetStatus(codes.Error, res.Failure.Message)
	}
	span.SetAttributes(attribute.String("result", res.Kind.String()))
	b.metrics.RecordToolCall(ctx, tool, status, time.Since(start))

	observe.Logger(ctx).Debug("tool invoked",
		"tool", tool,
		"server", b.cfg.Name,
		"result", res.Kind.String(),
		"duration_ms", res.DurationMs,
	)
	return res
}

// guarded runs invoke through the breaker when one is configured. Only
// transport failures trip it; tool and shape failures mean the server is up.
func (b *Bridge) guarded(ctx context.Context, tool string, args map[string]any) mcp.Result {
	if b.breaker == nil {
		return b.invoke(ctx, tool, args)
	}
	var res mcp.Result
	err := b.breaker.Do(func() error {
		res = b.invoke(ctx, tool, args)
		if res.Kind == mcp.ResultFailure && res.Failure.Kind == mcp.FailureTransport {
			return res.Failure
		}
		return nil
	})
	if errors.Is(err, resilience.ErrOpen) {
		return mcp.FailureResult(mcp.FailureTransport, "bridge: server %q unavailable (circuit open)", b.cfg.Name)
	}
	return res
}

func (b *Bridge) invoke(ctx context.Context, tool string, args map[string]any) mcp.Result {
	session, err := b.connect(ctx)
	if err != nil {
		return mcp.FailureResult(mcp.FailureTransport, "%v", err)
	}
	defer b.release(ctx, session)

	if args == nil {
		args = map[string]any{}
	}
	raw, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      tool,
		Arguments: args,
	})
	if err != nil {
		return mcp.FailureResult(mcp.FailureTransport, "bridge: call to tool %q failed: %v", tool, err)
	}
	return Decode(raw)
}

func (b *Bridge) connect(ctx context.Context) (*mcpsdk.ClientSession, error) {
	transport, err := b.transport(ctx)
	if err != nil {
		return nil, fmt.Errorf("bridge: build transport for %q: %w", b.cfg.Name, err)
	}
	session, err := b.client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("bridge: failed to connect to server %q: %w", b.cfg.Name, err)
	}
	return session, nil
}

func (b *Bridge) release(ctx context.Context, session *mcpsdk.ClientSession) {
	if err := session.Close(); err != nil && !errors.Is(err, context.Canceled) {
		observe.Logger(ctx).Warn("bridge: session close failed", "server", b.cfg.Name, "err", err)
	}
}

// Ping opens a session, pings the server and closes the session again. It is
// intended for readiness checks.
func (b *Bridge) Ping(ctx context.Context) error {
	session, err := b.connect(ctx)
	if err != nil {
		return err
	}
	defer b.release(ctx, session)
	if err := session.Ping(ctx, nil); err != nil {
		return fmt.Errorf("bridge: ping %q: %w", b.cfg.Name, err)
	}
	return nil
}

// Tools lists the tool names advertised by the server.
func (b *Bridge) Tools(ctx context.Context) ([]string, error) {
	session, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer b.release(ctx, session)

	var names []string
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("bridge: failed to list tools for server %q: %w", b.cfg.Name, err)
		}
		names = append(names, tool.Name)
	}
	return names, nil
}

