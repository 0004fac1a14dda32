// Package session holds per-conversation state: the turn history, the
// capture phase and the reference of the most recently uploaded artifact.
//
// A Conversation is not safe for concurrent use. Callers serialise turns on a
// conversation; the dispatcher is the only component that mutates it.
package session

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one history entry.
type Message struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Phase is the capture state of a conversation.
type Phase int

const (
	// PhaseReady accepts ordinary turns.
	PhaseReady Phase = iota

	// PhaseAwaitingArtifact means a capture tool asked the client for an
	// image and the conversation is waiting for [Conversation.RecordArtifact].
	PhaseAwaitingArtifact
)

// String returns the wire name of p.
func (p Phase) String() string {
	switch p {
	case PhaseReady:
		return "ready"
	case PhaseAwaitingArtifact:
		return "awaiting_artifact"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Conversation is the state carried across turns.
type Conversation struct {
	ID        string
	CreatedAt time.Time

	history      []Message
	pending      string
	phase        Phase
	lastArtifact string

	now func() time.Time
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithID overrides the generated conversation ID.
func WithID(id string) Option {
	return func(c *Conversation) { c.ID = id }
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Conversation) { c.now = now }
}

// New creates an empty conversation in [PhaseReady] with a random UUID.
func New(opts ...Option) *Conversation {
	c := &Conversation{ID: uuid.NewString(), now: time.Now}
	for _, o := range opts {
		o(c)
	}
	c.CreatedAt = c.now()
	return c
}

// Append adds a history entry. History is append-only.
func (c *Conversation) Append(role Role, content string) {
	c.history = append(c.history, Message{Role: role, Content: content, At: c.now()})
}

// AwaitArtifact marks tool as pending and enters [PhaseAwaitingArtifact].
func (c *Conversation) AwaitArtifact(tool string) {
	c.pending = tool
	c.phase = PhaseAwaitingArtifact
}

// RecordArtifact stores ref as the last artifact, clears the pending tool and
// returns to [PhaseReady].
func (c *Conversation) RecordArtifact(ref string) {
	c.lastArtifact = ref
	c.pending = ""
	c.phase = PhaseReady
}

// History returns a copy of the history.
func (c *Conversation) History() []Message { return slices.Clone(c.history) }

// Pending returns the tool waiting for a client artifact, or "".
func (c *Conversation) Pending() string { return c.pending }

// Phase returns the current phase.
func (c *Conversation) Phase() Phase { return c.phase }

// LastArtifact returns the reference of the last uploaded artifact, or "".
func (c *Conversation) LastArtifact() string { return c.lastArtifact }

// Snapshot is an immutable copy of a conversation for sinks.
type Snapshot struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Phase        Phase     `json:"phase"`
	Pending      string    `json:"pending,omitempty"`
	LastArtifact string    `json:"last_artifact,omitempty"`
	History      []Message `json:"history"`
}

// Snapshot returns a copy of the current state.
func (c *Conversation) Snapshot() Snapshot {
	h := c.History()
	if h == nil {
		h = []Message{}
	}
	return Snapshot{
		ID:           c.ID,
		CreatedAt:    c.CreatedAt,
		Phase:        c.phase,
		Pending:      c.pending,
		LastArtifact: c.lastArtifact,
		History:      h,
	}
}
