// Package tts defines the Provider interface for text-to-speech backends.
//
// Providers synthesise a complete utterance in one request and return the
// encoded audio. Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"encoding/base64"
)

// Default voice settings applied when a request leaves them empty.
const (
	DefaultVoice = "nova"
	DefaultTone  = "cheerful"
)

// Request describes one synthesis call.
type Request struct {
	// Text is the utterance to speak. Required.
	Text string

	// Voice is a provider-specific voice name. Empty selects [DefaultVoice].
	Voice string

	// Tone is a free-form speaking style such as "calm" or "excited".
	// Empty selects [DefaultTone].
	Tone string
}

// Speech is synthesised audio.
type Speech struct {
	Audio    []byte
	MIMEType string
}

// DataURL renders s as a base64 data URL, e.g. "data:audio/mp3;base64,...".
func (s *Speech) DataURL() string {
	return "data:" + s.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(s.Audio)
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders req as audio. An empty req.Text is an error.
	Synthesize(ctx context.Context, req Request) (*Speech, error)
}
