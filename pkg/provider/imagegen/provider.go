// Package imagegen defines the Provider interface for text-to-image backends.
package imagegen

import "context"

// Provider generates images from text prompts.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Generate renders prompt and returns a URL at which the image can be fetched.
	Generate(ctx context.Context, prompt string) (string, error)
}
