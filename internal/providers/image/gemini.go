package image

import (
	"context"
	"fmt"
	"strings"

	"server/internal/providers/genai"
)

// GeminiGenerator renders marketing images through the Gemini client.
type GeminiGenerator struct {
	client *genai.Client
}

func NewGeminiGenerator(client *genai.Client) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

func (g *GeminiGenerator) Generate(ctx context.Context, req GenerateRequest) (Asset, error) {
	asset, err := g.client.GenerateImage(ctx, genai.ImageRequest{
		Prompt:      buildPrompt(req),
		AspectRatio: aspectForType(req.ImageType),
		RequestID:   req.RequestID,
	})
	if err != nil {
		return Asset{}, fmt.Errorf("image generation: %w", err)
	}
	return Asset{
		StorageKey: storageKeyFor(req),
		Format:     asset.Format,
		Width:      asset.Width,
		Height:     asset.Height,
		Data:       asset.Data,
	}, nil
}

func storageKeyFor(req GenerateRequest) string {
	return fmt.Sprintf("generated/%s/%s.png", req.ProjectID, strings.ToLower(string(req.ImageType)))
}

var _ Generator = (*GeminiGenerator)(nil)
