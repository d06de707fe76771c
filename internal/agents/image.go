// Package agents contains the concrete generation agents behind the queue's
// job handlers. Each one implements the agent framework contract over a
// provider collaborator.
package agents

import (
	"context"
	"strings"

	"server/internal/agent"
	"server/internal/domain"
	"server/internal/providers/image"
)

// ImageInput is the validated input for one marketing image generation.
type ImageInput struct {
	ProjectID   string           `validate:"required"`
	ImageType   domain.ImageType `validate:"required"`
	Style       string
	Title       string `validate:"required"`
	ProductType string
	Description string
	BrandTone   string
}

// ImageOutput carries the generated asset back to the handler.
type ImageOutput struct {
	Asset image.Asset
}

// imageCredits prices each variant; richer compositions cost more.
var imageCredits = map[domain.ImageType]int{
	domain.ImageTypeMain:      2,
	domain.ImageTypeFeature:   2,
	domain.ImageTypeInfo:      3,
	domain.ImageTypeCompare:   3,
	domain.ImageTypeDimension: 3,
	domain.ImageTypeLifestyle: 4,
}

// ImageAgent generates one marketing image per invocation.
type ImageAgent struct {
	agent.Base[ImageInput]
	generator image.Generator
}

func NewImageAgent(generator image.Generator) *ImageAgent {
	return &ImageAgent{
		Base:      agent.Base[ImageInput]{AgentName: "image-agent"},
		generator: generator,
	}
}

func (a *ImageAgent) Validate(input ImageInput) []agent.FieldError {
	fields := a.Base.Validate(input)
	if input.ImageType != "" && !input.ImageType.Valid() {
		fields = append(fields, agent.FieldError{Field: "ImageType", Message: "unsupported image type"})
	}
	return fields
}

func (a *ImageAgent) Process(ctx context.Context, input ImageInput, inv *agent.Invocation) agent.Result[ImageOutput] {
	asset, err := a.generator.Generate(ctx, image.GenerateRequest{
		ProjectID:   input.ProjectID,
		RequestID:   inv.JobID,
		ImageType:   input.ImageType,
		Style:       input.Style,
		Title:       input.Title,
		ProductType: input.ProductType,
		Description: input.Description,
		BrandTone:   input.BrandTone,
	})
	if err != nil {
		return agent.Failure[ImageOutput](classifyProviderError(a.Name(), err))
	}
	return agent.Success(ImageOutput{Asset: asset})
}

func (a *ImageAgent) CreditsRequired(input ImageInput) int {
	if cost, ok := imageCredits[input.ImageType]; ok {
		return cost
	}
	return 2
}

// classifyProviderError separates content-policy rejections (permanent) from
// ordinary provider failures (retryable when transient).
func classifyProviderError(agentName string, err error) *agent.Error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "content policy") || strings.Contains(msg, "safety") || strings.Contains(msg, "blocked") {
		return agent.NewError(agentName, agent.CodePolicy, "generation rejected by content policy", err, false)
	}
	return agent.WrapError(agentName, agent.CodeProvider, "generation failed", err)
}
