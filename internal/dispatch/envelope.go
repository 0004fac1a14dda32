package dispatch

import "strings"

// Kind tags the content of an [Envelope].
type Kind string

const (
	// KindText carries plain or Markdown text.
	KindText Kind = "text"

	// KindImage carries an image URL.
	KindImage Kind = "image"

	// KindAudio carries an inline audio data URL.
	KindAudio Kind = "audio"

	// KindError carries a user-visible failure description.
	KindError Kind = "error"

	// KindCollect instructs the sink to capture an image from the user and
	// submit it with [Dispatcher.SubmitArtifact].
	KindCollect Kind = "collect"
)

// Envelope is the normalised, renderable outcome of one turn.
type Envelope struct {
	Kind    Kind   `json:"kind"`
	Payload string `json:"payload"`
	Caption string `json:"caption,omitempty"`
	Tool    string `json:"tool,omitempty"`
}

// Text renders e as a single history entry. Audio payloads are omitted.
func (e Envelope) Text() string {
	switch e.Kind {
	case KindAudio:
		if e.Caption == "" {
			return "[audio]"
		}
		return e.Caption + " [audio]"
	case KindError:
		if e.Caption == "" {
			return "Error: " + e.Payload
		}
		return "Error: " + e.Caption + "\n" + e.Payload
	default:
		if e.Caption == "" {
			return e.Payload
		}
		return strings.TrimSpace(e.Caption + "\n" + e.Payload)
	}
}
