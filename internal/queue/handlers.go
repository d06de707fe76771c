package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"server/internal/agent"
	"server/internal/agents"
	"server/internal/credits"
	"server/internal/domain"
	"server/internal/project"
	"server/internal/storage"
)

// JobHandlers translates claimed job payloads into agent invocations and
// reports side effects (assets, credits) to the owning collaborators.
type JobHandlers struct {
	projects *project.Service
	ledger   *credits.Ledger
	image    *agents.ImageAgent
	aplus    *agents.APlusAgent
	files    *storage.FileStore
	logger   zerolog.Logger
}

func NewJobHandlers(
	projects *project.Service,
	ledger *credits.Ledger,
	image *agents.ImageAgent,
	aplus *agents.APlusAgent,
	files *storage.FileStore,
	logger zerolog.Logger,
) *JobHandlers {
	return &JobHandlers{
		projects: projects,
		ledger:   ledger,
		image:    image,
		aplus:    aplus,
		files:    files,
		logger:   logger,
	}
}

// HandleGenerateImage runs one marketing image generation.
func (h *JobHandlers) HandleGenerateImage(ctx context.Context, job *domain.Job) error {
	var p domain.ImageJobPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return Permanent(fmt.Errorf("decode image payload: %w", err))
	}

	proj, err := h.loadProject(ctx, p.ProjectID)
	if err != nil {
		return err
	}

	input := agents.ImageInput{
		ProjectID:   p.ProjectID,
		ImageType:   p.ImageType,
		Style:       p.Style,
		Title:       proj.Title,
		ProductType: proj.ProductType,
		Description: proj.Description,
		BrandTone:   proj.BrandKit.Tone,
	}
	inv := agent.NewInvocation(job.OwnerID, p.ProjectID, job.ID)

	res := agent.Execute(ctx, h.image, input, inv, h.logger)
	if !res.Success {
		if !h.image.ShouldRetry(input, res.Err, job.RetryCount+1) {
			return Permanent(res.Err)
		}
		return res.Err
	}

	asset := res.Data.Asset
	if h.files != nil && len(asset.Data) > 0 {
		key, err := h.files.Write(ctx, asset.StorageKey, asset.Data)
		if err != nil {
			h.logger.Warn().Err(err).Str("job_id", job.ID).Msg("handler: persist image asset failed")
		} else {
			asset.StorageKey = key
		}
	}

	cost := h.image.CreditsRequired(input)
	if _, err := h.ledger.Debit(ctx, job.OwnerID, cost, "generate-image:"+string(p.ImageType)); err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			return Permanent(err)
		}
		return fmt.Errorf("debit image credits: %w", err)
	}

	if err := h.projects.AppendImage(ctx, p.ProjectID, domain.ProjectImage{
		Type:       p.ImageType,
		StorageKey: asset.StorageKey,
		Format:     asset.Format,
		Width:      asset.Width,
		Height:     asset.Height,
	}); err != nil {
		return fmt.Errorf("record generated image: %w", err)
	}
	return nil
}

// HandleGenerateAPlus runs one A+ content generation.
func (h *JobHandlers) HandleGenerateAPlus(ctx context.Context, job *domain.Job) error {
	var p domain.APlusJobPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return Permanent(fmt.Errorf("decode aplus payload: %w", err))
	}

	proj, err := h.loadProject(ctx, p.ProjectID)
	if err != nil {
		return err
	}

	input := agents.APlusInput{
		ProjectID:      p.ProjectID,
		Title:          proj.Title,
		ProductType:    proj.ProductType,
		Description:    proj.Description,
		Features:       proj.Features,
		BrandTone:      proj.BrandKit.Tone,
		GenerateImages: p.GenerateImages,
		IsPremium:      p.IsPremium,
	}
	inv := agent.NewInvocation(job.OwnerID, p.ProjectID, job.ID)

	res := agent.Execute(ctx, h.aplus, input, inv, h.logger)
	if !res.Success {
		if !h.aplus.ShouldRetry(input, res.Err, job.RetryCount+1) {
			return Permanent(res.Err)
		}
		return res.Err
	}

	cost := h.aplus.CreditsRequired(input)
	if _, err := h.ledger.Debit(ctx, job.OwnerID, cost, "generate-aplus"); err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			return Permanent(err)
		}
		return fmt.Errorf("debit aplus credits: %w", err)
	}

	if err := h.projects.SetAPlusModules(ctx, p.ProjectID, res.Data.Modules); err != nil {
		return fmt.Errorf("record aplus modules: %w", err)
	}
	return nil
}

func (h *JobHandlers) loadProject(ctx context.Context, projectID string) (*domain.Project, error) {
	proj, err := h.projects.Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, Permanent(fmt.Errorf("project %s: %w", projectID, err))
		}
		return nil, fmt.Errorf("load project %s: %w", projectID, err)
	}
	return proj, nil
}
