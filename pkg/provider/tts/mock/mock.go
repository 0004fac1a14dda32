// Package mock provides a test double for the tts.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/toolroute/pkg/provider/tts"
)

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Speech is returned by Synthesize. Nil yields a short MP3 placeholder.
	Speech *tts.Speech

	// Err, if non-nil, is returned by Synthesize.
	Err error

	// Calls records every request in order.
	Calls []tts.Request
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize records req and returns the configured result.
func (p *Provider) Synthesize(_ context.Context, req tts.Request) (*tts.Speech, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, req)
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Speech == nil {
		return &tts.Speech{Audio: []byte("mp3"), MIMEType: "audio/mp3"}, nil
	}
	return p.Speech, nil
}
