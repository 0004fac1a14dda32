package config

import (
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/toolroute/pkg/provider/imagegen"
	imagegenopenai "github.com/MrWong99/toolroute/pkg/provider/imagegen/openai"
	"github.com/MrWong99/toolroute/pkg/provider/llm"
	"github.com/MrWong99/toolroute/pkg/provider/llm/anyllm"
	llmopenai "github.com/MrWong99/toolroute/pkg/provider/llm/openai"
	"github.com/MrWong99/toolroute/pkg/provider/tts"
	ttsopenai "github.com/MrWong99/toolroute/pkg/provider/tts/openai"
)

// RegisterBuiltins wires all built-in provider factories into reg.
//
// "openai" is served by the native OpenAI client, which also accepts image
// inputs. Every other LLM name is routed through any-llm-go.
func RegisterBuiltins(reg *Registry) {
	reg.RegisterLLM("openai", func(entry ProviderEntry) (llm.Provider, error) {
		return llmopenai.New(entry.APIKey, entry.Model, openAIOptions(entry)...)
	})

	// anthropic, gemini, deepseek, mistral, groq, llamacpp, llamafile all
	// share the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range anyllm.Backends {
		if providerName == "openai" {
			continue
		}
		reg.RegisterLLM(providerName, func(entry ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			// ollama is a local server addressed by BaseURL only.
			if entry.APIKey != "" && providerName != "ollama" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	reg.RegisterTTS("openai", func(entry ProviderEntry) (tts.Provider, error) {
		return ttsopenai.New(entry.APIKey, entry.Model, openAIOptions(entry)...)
	})

	reg.RegisterImageGen("openai", func(entry ProviderEntry) (imagegen.Provider, error) {
		return imagegenopenai.New(entry.APIKey, entry.Model, openAIOptions(entry)...)
	})

	for _, kind := range []string{KindLLM, KindTTS, KindImageGen} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

func openAIOptions(entry ProviderEntry) []llmopenai.Option {
	var opts []llmopenai.Option
	if entry.BaseURL != "" {
		opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
	}
	if org := optString(entry.Options, "organization"); org != "" {
		opts = append(opts, llmopenai.WithOrganization(org))
	}
	if entry.Timeout > 0 {
		opts = append(opts, llmopenai.WithTimeout(entry.Timeout))
	}
	return opts
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}
