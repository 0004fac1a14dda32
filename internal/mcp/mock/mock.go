// Package mock provides an in-memory test double for [mcp.Invoker].
//
// [Invoker] records every call for assertion in tests and returns either a
// per-tool configured result or a shared default. It is safe for concurrent
// use via an internal [sync.Mutex].
//
// Typical usage:
//
//	inv := &mock.Invoker{}
//	inv.Results = map[string]mcp.Result{
//	    "gen_image_dalle3": mcp.TextResult("https://img.example/1.png"),
//	}
//
//	// inject inv into the system under test …
//
//	if got := inv.CallCount("gen_image_dalle3"); got != 1 {
//	    t.Errorf("expected 1 call, got %d", got)
//	}
package mock

import (
	"context"
	"maps"
	"sync"

	"github.com/MrWong99/toolroute/internal/mcp"
)

// Call records a single invocation.
type Call struct {
	Tool string
	Args map[string]any
}

// Invoker is a configurable test double for [mcp.Invoker].
type Invoker struct {
	mu    sync.Mutex
	calls []Call

	// Results maps a tool name to the result returned for it.
	Results map[string]mcp.Result

	// Default is returned for tools missing from Results. When its Kind is
	// zero an empty [mcp.ResultText] is returned instead.
	Default mcp.Result

	// Func, when non-nil, takes precedence over Results and Default.
	Func func(tool string, args map[string]any) mcp.Result
}

// Invoke implements [mcp.Invoker].
func (m *Invoker) Invoke(_ context.Context, tool string, args map[string]any) mcp.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Tool: tool, Args: maps.Clone(args)})

	if m.Func != nil {
		return m.Func(tool, args)
	}
	if r, ok := m.Results[tool]; ok {
		return r
	}
	if m.Default.Kind == 0 {
		return mcp.TextResult("")
	}
	return m.Default
}

// Calls returns a copy of all recorded invocations.
func (m *Invoker) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times tool was invoked. An empty tool counts
// every invocation.
func (m *Invoker) CallCount(tool string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tool == "" {
		return len(m.calls)
	}
	n := 0
	for _, c := range m.calls {
		if c.Tool == tool {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls without altering response configuration.
func (m *Invoker) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

var _ mcp.Invoker = (*Invoker)(nil)
