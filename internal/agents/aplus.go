package agents

import (
	"context"

	"server/internal/agent"
	"server/internal/domain"
	"server/internal/providers/aplus"
)

// APlusInput is the validated input for one A+ content generation.
type APlusInput struct {
	ProjectID      string `validate:"required"`
	Title          string `validate:"required"`
	ProductType    string
	Description    string
	Features       []string
	BrandTone      string
	GenerateImages bool
	IsPremium      bool
}

// APlusOutput carries the generated modules back to the handler.
type APlusOutput struct {
	Modules []domain.APlusModule
}

// APlusAgent generates structured A+ listing content.
type APlusAgent struct {
	agent.Base[APlusInput]
	generator aplus.Generator
}

func NewAPlusAgent(generator aplus.Generator) *APlusAgent {
	return &APlusAgent{
		Base:      agent.Base[APlusInput]{AgentName: "aplus-agent"},
		generator: generator,
	}
}

func (a *APlusAgent) Process(ctx context.Context, input APlusInput, inv *agent.Invocation) agent.Result[APlusOutput] {
	modules, err := a.generator.Generate(ctx, aplus.ProductInfo{
		ProjectID:   input.ProjectID,
		RequestID:   inv.JobID,
		Title:       input.Title,
		ProductType: input.ProductType,
		Description: input.Description,
		Features:    input.Features,
		BrandTone:   input.BrandTone,
		Premium:     input.IsPremium,
		WithImages:  input.GenerateImages,
	})
	if err != nil {
		return agent.Failure[APlusOutput](classifyProviderError(a.Name(), err))
	}
	if len(modules) == 0 {
		return agent.Failure[APlusOutput](agent.NewError(a.Name(), agent.CodeProvider, "provider returned no modules", nil, false))
	}
	return agent.Success(APlusOutput{Modules: modules})
}

// CreditsRequired prices premium content above standard, with a surcharge for
// module imagery.
func (a *APlusAgent) CreditsRequired(input APlusInput) int {
	cost := 5
	if input.IsPremium {
		cost = 10
	}
	if input.GenerateImages {
		cost += 2
	}
	return cost
}
