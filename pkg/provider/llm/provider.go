// Package llm defines the text-completion provider used both as the routing
// oracle and by the tool server's chat and vision tools.
//
// Only single-shot completion is modelled. Tool calling and token streaming
// are not used: the router asks for a JSON reply in plain text and validates
// it itself.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation sent to a provider.
type Message struct {
	// Role is one of [RoleSystem], [RoleUser] or [RoleAssistant].
	Role string

	// Content is the text of the message.
	Content string

	// ImageURLs attaches images to a user message for vision-capable models.
	ImageURLs []string
}

// Usage reports token consumption of a single completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest is the input to [Provider.Complete].
type CompletionRequest struct {
	// SystemPrompt is prepended as a system message when non-empty.
	SystemPrompt string

	// Messages are sent after the system prompt, in order.
	Messages []Message

	// Temperature is passed through when non-zero.
	Temperature float64

	// MaxTokens caps the completion length when positive.
	MaxTokens int

	// JSONObject asks the backend to constrain the reply to a single JSON
	// object. Backends without such a mode ignore it; callers still validate
	// the reply.
	JSONObject bool
}

// CompletionResponse is the output of [Provider.Complete].
type CompletionResponse struct {
	Content string

	// FinishReason is the backend's stop reason ("stop", "length", ...) when
	// it reports one.
	FinishReason string

	Usage Usage
}

// Provider produces a single completion for a request.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
