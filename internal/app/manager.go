package app

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/toolroute/internal/observe"
	"github.com/MrWong99/toolroute/internal/session"
)

// ErrUnknownConversation is returned for a conversation that was never
// registered with the Manager or has already ended.
var ErrUnknownConversation = errors.New("app: conversation not found")

// entry pairs a conversation with the lock that serialises its turns.
type entry struct {
	mu   sync.Mutex
	conv *session.Conversation

	// ended is guarded by Manager.mu.
	ended bool
}

// Manager holds the open conversations keyed by ID. State is in memory only
// and is dropped on [Manager.End]. All methods are safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	metrics *observe.Metrics
}

// NewManager returns an empty Manager. A nil m selects [observe.DefaultMetrics].
func NewManager(m *observe.Metrics) *Manager {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Manager{entries: make(map[string]*entry), metrics: m}
}

// Create opens a new conversation and registers it.
func (m *Manager) Create(opts ...session.Option) *session.Conversation {
	conv := session.New(opts...)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.add(conv)
	return conv
}

// Adopt registers a conversation created elsewhere. Adopting an ID that is
// already open is a no-op.
func (m *Manager) Adopt(conv *session.Conversation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[conv.ID]; !ok {
		m.add(conv)
	}
}

// Get returns the conversation with id.
func (m *Manager) Get(id string) (*session.Conversation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, false
	}
	return e.conv, true
}

// End drops the conversation with id. It reports whether it existed.
func (m *Manager) End(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return false
	}
	e.ended = true
	delete(m.entries, id)
	m.metrics.ActiveConversations.Add(context.Background(), -1)
	return true
}

// EndAll drops every conversation and returns how many were open.
func (m *Manager) EndAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.entries)
	for _, e := range m.entries {
		e.ended = true
	}
	clear(m.entries)
	if n > 0 {
		m.metrics.ActiveConversations.Add(context.Background(), int64(-n))
	}
	return n
}

// Len returns the number of open conversations.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// lock acquires the turn lock for conv. It fails with
// [ErrUnknownConversation] when conv is not open, including when conv was
// ended while the caller waited for the lock. The returned function releases
// the lock.
func (m *Manager) lock(conv *session.Conversation) (func(), error) {
	m.mu.Lock()
	e, ok := m.entries[conv.ID]
	m.mu.Unlock()
	if !ok || e.conv != conv {
		return nil, ErrUnknownConversation
	}

	e.mu.Lock()
	m.mu.Lock()
	ended := e.ended
	m.mu.Unlock()
	if ended {
		e.mu.Unlock()
		return nil, ErrUnknownConversation
	}
	return e.mu.Unlock, nil
}

// add must be called with mu held.
func (m *Manager) add(conv *session.Conversation) *entry {
	e := &entry{conv: conv}
	m.entries[conv.ID] = e
	m.metrics.ActiveConversations.Add(context.Background(), 1)
	return e
}
