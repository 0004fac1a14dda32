// Package openai provides a TTS provider backed by the OpenAI speech API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"

	oai "github.com/openai/openai-go"

	llmopenai "github.com/MrWong99/toolroute/pkg/provider/llm/openai"
	"github.com/MrWong99/toolroute/pkg/provider/tts"
)

// DefaultModel is the speech model used when none is configured.
const DefaultModel = "gpt-4o-mini-tts"

// Provider implements tts.Provider using OpenAI speech synthesis.
type Provider struct {
	client oai.Client
	model  string
}

var _ tts.Provider = (*Provider)(nil)

// New constructs a speech provider. An empty model selects [DefaultModel].
// Client options are shared with the chat provider.
func New(apiKey, model string, opts ...llmopenai.Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("tts/openai: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	return &Provider{
		client: oai.NewClient(llmopenai.RequestOptions(apiKey, opts...)...),
		model:  model,
	}, nil
}

// Synthesize implements tts.Provider. Audio is returned as MP3.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Speech, error) {
	if req.Text == "" {
		return nil, errors.New("tts/openai: text must not be empty")
	}
	voice, tone := req.Voice, req.Tone
	if voice == "" {
		voice = tts.DefaultVoice
	}
	if tone == "" {
		tone = tts.DefaultTone
	}

	resp, err := p.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Input:          req.Text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		Instructions:   oai.String("Speak in a " + tone + " tone."),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, fmt.Errorf("tts/openai: speech: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts/openai: read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("tts/openai: empty audio response")
	}
	return &tts.Speech{Audio: audio, MIMEType: "audio/mp3"}, nil
}
