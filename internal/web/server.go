// Package web exposes the turn pipeline over a small JSON HTTP API.
//
// Routes:
//
//	POST   /v1/conversations                 open a conversation
//	GET    /v1/conversations/{id}            conversation snapshot
//	DELETE /v1/conversations/{id}            end a conversation
//	POST   /v1/conversations/{id}/messages   run a turn: {"text": "..."}
//	POST   /v1/conversations/{id}/image      submit a captured photo (raw body)
//
// The handler also serves /healthz, /readyz and /metrics. Every request passes
// through [observe.Middleware].
package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/MrWong99/toolroute/internal/app"
	"github.com/MrWong99/toolroute/internal/dispatch"
	"github.com/MrWong99/toolroute/internal/health"
	"github.com/MrWong99/toolroute/internal/observe"
	"github.com/MrWong99/toolroute/internal/session"
)

// DefaultMaxImageBytes caps the body of an image submission.
const DefaultMaxImageBytes = 10 << 20

// maxMessageBytes caps the JSON body of a message request.
const maxMessageBytes = 64 << 10

// Option is a functional option for New.
type Option func(*Server)

// WithHealth mounts h on /healthz and /readyz. Without it /readyz runs no
// checks.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics records HTTP metrics on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler replaces the /metrics scrape handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.scrape = h }
}

// WithMaxImageBytes overrides [DefaultMaxImageBytes].
func WithMaxImageBytes(n int64) Option {
	return func(s *Server) { s.maxImageBytes = n }
}

// Server serves the HTTP API for an [app.App].
type Server struct {
	app           *app.App
	health        *health.Handler
	metrics       *observe.Metrics
	scrape        http.Handler
	maxImageBytes int64
}

// New creates a Server backed by a.
func New(a *app.App, opts ...Option) *Server {
	s := &Server{app: a, maxImageBytes: DefaultMaxImageBytes}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.scrape == nil {
		s.scrape = observe.MetricsHandler()
	}
	if s.health == nil {
		s.health = health.New(nil)
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/conversations", s.handleCreate)
	mux.HandleFunc("GET /v1/conversations/{id}", s.handleGet)
	mux.HandleFunc("DELETE /v1/conversations/{id}", s.handleDelete)
	mux.HandleFunc("POST /v1/conversations/{id}/messages", s.handleMessage)
	mux.HandleFunc("POST /v1/conversations/{id}/image", s.handleImage)
	s.health.Register(mux)
	mux.Handle("GET /metrics", s.scrape)
	return observe.Middleware(s.metrics)(mux)
}

// messageRequest is the JSON body for the messages endpoint.
type messageRequest struct {
	Text string `json:"text"`
}

// turnResponse is returned by the messages and image endpoints.
type turnResponse struct {
	Envelope dispatch.Envelope `json:"envelope"`
	Phase    session.Phase     `json:"phase"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	conv := s.app.Conversations().Create()
	observe.Logger(r.Context()).Info("conversation opened", "conversation", conv.ID)
	snap, err := s.app.Snapshot(conv)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/conversations/"+conv.ID)
	writeJSON(w, r, http.StatusCreated, snap)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.lookup(w, r)
	if !ok {
		return
	}
	snap, err := s.app.Snapshot(conv)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.app.Conversations().End(id) {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}
	observe.Logger(r.Context()).Info("conversation ended", "conversation", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req messageRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	env, err := s.app.Turn(r.Context(), conv, text)
	s.reply(w, r, conv, env, err)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.lookup(w, r)
	if !ok {
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxImageBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "image too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	env, err := s.app.SubmitImage(r.Context(), conv, data, contentType)
	s.reply(w, r, conv, env, err)
}

// reply writes the turn response for env, or the error from producing it.
func (s *Server) reply(w http.ResponseWriter, r *http.Request, conv *session.Conversation, env dispatch.Envelope, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	snap, err := s.app.Snapshot(conv)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, turnResponse{Envelope: env, Phase: snap.Phase})
}

// fail maps a pipeline error to a status. A conversation ended mid-request
// is reported the same as one that never existed.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, app.ErrUnknownConversation) {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}
	observe.Logger(r.Context()).Error("web: request failed", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

// lookup resolves the {id} path value, writing a 404 when it is unknown.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Conversation, bool) {
	conv, ok := s.app.Conversations().Get(r.PathValue("id"))
	if !ok {
		http.Error(w, "conversation not found", http.StatusNotFound)
	}
	return conv, ok
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		observe.Logger(r.Context()).Warn("web: encode response failed", "status", status, "err", err)
	}
}
