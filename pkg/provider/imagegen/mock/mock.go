// Package mock provides a test double for the imagegen.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/toolroute/pkg/provider/imagegen"
)

// Provider is a mock implementation of imagegen.Provider.
type Provider struct {
	mu sync.Mutex

	// URL is returned by Generate.
	URL string

	// Err, if non-nil, is returned by Generate.
	Err error

	// Prompts records every prompt in order.
	Prompts []string
}

var _ imagegen.Provider = (*Provider)(nil)

// Generate records prompt and returns the configured result.
func (p *Provider) Generate(_ context.Context, prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Prompts = append(p.Prompts, prompt)
	if p.Err != nil {
		return "", p.Err
	}
	return p.URL, nil
}
