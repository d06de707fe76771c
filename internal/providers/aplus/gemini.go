package aplus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"server/internal/domain"
	"server/internal/providers/genai"
)

// GeminiGenerator produces structured A+ modules through the Gemini client.
type GeminiGenerator struct {
	client *genai.Client
}

func NewGeminiGenerator(client *genai.Client) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

func (g *GeminiGenerator) Generate(ctx context.Context, info ProductInfo) ([]domain.APlusModule, error) {
	text, err := g.client.GenerateText(ctx, genai.TextRequest{
		Prompt:    buildPrompt(info),
		RequestID: info.RequestID,
	})
	if err != nil {
		return nil, fmt.Errorf("aplus generation: %w", err)
	}

	var modules []domain.APlusModule
	if err := json.Unmarshal([]byte(extractJSONArray(text)), &modules); err != nil {
		// The model occasionally returns prose around the JSON; fall back to
		// a deterministic module set built from the product info itself.
		return fallbackModules(info), nil
	}
	if len(modules) == 0 {
		return fallbackModules(info), nil
	}
	return modules, nil
}

func buildPrompt(info ProductInfo) string {
	var sb strings.Builder
	sb.WriteString("Write Amazon A+ content modules as a JSON array of objects with fields type, title, body.")
	fmt.Fprintf(&sb, " Product: %s.", info.Title)
	if info.ProductType != "" {
		fmt.Fprintf(&sb, " Category: %s.", info.ProductType)
	}
	if info.Description != "" {
		fmt.Fprintf(&sb, " Description: %s.", info.Description)
	}
	if len(info.Features) > 0 {
		fmt.Fprintf(&sb, " Features: %s.", strings.Join(info.Features, "; "))
	}
	if info.BrandTone != "" {
		fmt.Fprintf(&sb, " Brand tone: %s.", info.BrandTone)
	}
	if info.Premium {
		sb.WriteString(" Include premium modules: brand story and comparison table.")
	}
	return sb.String()
}

// extractJSONArray strips any prose surrounding the first JSON array in the
// model output.
func extractJSONArray(text string) string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return text
	}
	return text[start : end+1]
}

func fallbackModules(info ProductInfo) []domain.APlusModule {
	modules := []domain.APlusModule{
		{Type: "STANDARD_TEXT", Title: info.Title, Body: info.Description},
	}
	for _, feature := range info.Features {
		modules = append(modules, domain.APlusModule{
			Type:  "STANDARD_SINGLE_SIDE_IMAGE",
			Title: feature,
			Body:  fmt.Sprintf("%s: %s", info.Title, feature),
		})
	}
	if info.Premium {
		modules = append(modules, domain.APlusModule{
			Type:  "PREMIUM_BRAND_STORY",
			Title: "Our Story",
			Body:  fmt.Sprintf("The brand behind %s.", info.Title),
		})
	}
	return modules
}

var _ Generator = (*GeminiGenerator)(nil)
