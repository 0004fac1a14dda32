// Package openai provides an image generation provider backed by DALL·E.
package openai

import (
	"context"
	"errors"
	"fmt"

	oai "github.com/openai/openai-go"

	"github.com/MrWong99/toolroute/pkg/provider/imagegen"
	llmopenai "github.com/MrWong99/toolroute/pkg/provider/llm/openai"
)

// Provider implements imagegen.Provider with a single 1024x1024 standard
// quality image per prompt.
type Provider struct {
	client oai.Client
	model  oai.ImageModel
}

var _ imagegen.Provider = (*Provider)(nil)

// New constructs an image provider. An empty model selects dall-e-3.
func New(apiKey, model string, opts ...llmopenai.Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("imagegen/openai: apiKey must not be empty")
	}
	m := oai.ImageModelDallE3
	if model != "" {
		m = oai.ImageModel(model)
	}
	return &Provider{
		client: oai.NewClient(llmopenai.RequestOptions(apiKey, opts...)...),
		model:  m,
	}, nil
}

// Generate implements imagegen.Provider.
func (p *Provider) Generate(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", errors.New("imagegen/openai: prompt must not be empty")
	}
	resp, err := p.client.Images.Generate(ctx, oai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          p.model,
		N:              oai.Int(1),
		Size:           oai.ImageGenerateParamsSize1024x1024,
		Quality:        oai.ImageGenerateParamsQualityStandard,
		ResponseFormat: oai.ImageGenerateParamsResponseFormatURL,
	})
	if err != nil {
		return "", fmt.Errorf("imagegen/openai: generate: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", errors.New("imagegen/openai: response carried no image url")
	}
	return resp.Data[0].URL, nil
}
