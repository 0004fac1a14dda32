// Package app wires the router, the dispatcher and the conversation registry
// into the turn pipeline shared by the HTTP and console front ends.
//
// The App owns the lifecycle: New assembles the pipeline, Turn and
// SubmitImage drive a conversation, and Shutdown runs the registered closers.
// At most one turn per conversation is in flight at any time; distinct
// conversations proceed concurrently.
//
// For testing, pass fakes for the [Router] and [Dispatcher] interfaces.
package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/toolroute/internal/dispatch"
	"github.com/MrWong99/toolroute/internal/observe"
	"github.com/MrWong99/toolroute/internal/router"
	"github.com/MrWong99/toolroute/internal/session"
)

// Router turns user text into a routing decision. *router.Router satisfies it.
type Router interface {
	Route(ctx context.Context, text string) router.Decision
}

// Dispatcher executes decisions and image submissions against a
// conversation. *dispatch.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, dec router.Decision, conv *session.Conversation) dispatch.Envelope
	SubmitArtifact(ctx context.Context, conv *session.Conversation, data []byte, contentType string) dispatch.Envelope
}

// App owns the turn pipeline and the open conversations.
type App struct {
	router        Router
	dispatcher    Dispatcher
	conversations *Manager
	metrics       *observe.Metrics

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics records turn metrics on m. The default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithCloser registers fn to run during [App.Shutdown]. Closers run in
// registration order.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// WithManager injects the conversation registry instead of creating one.
func WithManager(m *Manager) Option {
	return func(a *App) { a.conversations = m }
}

// New creates an App from its two pipeline stages.
func New(r Router, d Dispatcher, opts ...Option) *App {
	a := &App{router: r, dispatcher: d}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.conversations == nil {
		a.conversations = NewManager(a.metrics)
	}
	return a
}

// Conversations returns the registry of open conversations.
func (a *App) Conversations() *Manager { return a.conversations }

// Turn routes text, dispatches the decision against conv and returns the
// resulting envelope. Routing and tool problems are reported as envelopes;
// the only error is [ErrUnknownConversation] when conv is not open in the
// [Manager].
func (a *App) Turn(ctx context.Context, conv *session.Conversation, text string) (dispatch.Envelope, error) {
	unlock, err := a.conversations.lock(conv)
	if err != nil {
		return dispatch.Envelope{}, err
	}
	defer unlock()

	ctx, span := observe.StartSpan(observe.WithConversation(ctx, conv.ID), "app.turn")
	defer span.End()

	start := time.Now()
	dec := a.router.Route(ctx, text)
	env := a.dispatcher.Dispatch(ctx, dec, conv)

	observe.Logger(ctx).Info("turn completed",
		"tool", dec.Tool,
		"degraded", dec.Degraded,
		"kind", string(env.Kind),
		"phase", conv.Phase().String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return env, nil
}

// SubmitImage uploads a captured photo for conv. It is serialised with
// [App.Turn] on the same conversation.
func (a *App) SubmitImage(ctx context.Context, conv *session.Conversation, data []byte, contentType string) (dispatch.Envelope, error) {
	unlock, err := a.conversations.lock(conv)
	if err != nil {
		return dispatch.Envelope{}, err
	}
	defer unlock()

	ctx, span := observe.StartSpan(observe.WithConversation(ctx, conv.ID), "app.submit_image")
	defer span.End()

	env := a.dispatcher.SubmitArtifact(ctx, conv, data, contentType)
	observe.Logger(ctx).Info("image submitted",
		"bytes", len(data),
		"content_type", contentType,
		"kind", string(env.Kind),
	)
	return env, nil
}

// Snapshot returns a copy of conv's state taken between turns.
func (a *App) Snapshot(conv *session.Conversation) (session.Snapshot, error) {
	unlock, err := a.conversations.lock(conv)
	if err != nil {
		return session.Snapshot{}, err
	}
	defer unlock()
	return conv.Snapshot(), nil
}

// Shutdown ends all open conversations and runs the closers. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		n := a.conversations.EndAll()
		slog.Info("shutting down", "conversations", n, "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
