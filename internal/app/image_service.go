package app

import (
	"context"
	"strings"

	"gopherchat/internal/ai"
)

type ImageService struct {
	apiKeys     *ApiKeyService
	client      *ai.ImageClient
	defaultConf ai.ImageConfig
}

type GenerateImageInput struct {
	UserID uint
	Prompt string
	Width  int
	Height int
	Steps  int
	Seed   int64
	Count  int
}

func NewImageService(apiKeys *ApiKeyService, defaultConf ai.ImageConfig) *ImageService {
	return &ImageService{
		apiKeys:     apiKeys,
		client:      ai.NewImageClient(),
		defaultConf: defaultConf,
	}
}

// Generate forwards the prompt to the image provider, preferring the user's
// stored key over the process-level fallback.
func (s *ImageService) Generate(ctx context.Context, input GenerateImageInput) ([]ai.GeneratedImage, error) {
	prompt := strings.TrimSpace(input.Prompt)
	if prompt == "" {
		return nil, ErrInvalidInput
	}
	if input.Width <= 0 {
		input.Width = 1024
	}
	if input.Height <= 0 {
		input.Height = 1024
	}

	cfg := s.defaultConf
	if input.UserID != 0 {
		userKey, err := s.apiKeys.ImageKeyFor(input.UserID)
		if err != nil {
			return nil, err
		}
		if userKey != "" {
			cfg.APIKey = userKey
		}
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	return s.client.Generate(ctx, cfg, ai.ImageRequest{
		Prompt: prompt,
		Width:  input.Width,
		Height: input.Height,
		Steps:  input.Steps,
		Seed:   input.Seed,
		Count:  input.Count,
	})
}
