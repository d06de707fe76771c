// Package pack decomposes a "complete pack" request into independent child
// jobs and aggregates their outcomes into the parent project's status.
//
// Aggregation is fail-fast: the pack succeeds only when every child
// completes, and fails the moment any child exhausts its retry budget, even
// while siblings are still pending. Partial packs are not valid deliverables.
//
// Children carry the id of the pack job that enqueued them. The expected
// child count is recorded on the project before the first child exists, and
// completion is a single guarded statement over that count, so neither a
// concurrent worker finishing a child mid-fanout nor a crash-and-resume of
// the fanout can complete a partial pack.
package pack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

// JobStore is the slice of the job record store the orchestrator needs.
type JobStore interface {
	EnqueueChild(ctx context.Context, t domain.JobType, payload any, ownerID, projectID, parentJobID string) (string, error)
	ListChildren(ctx context.Context, parentJobID string) ([]domain.Job, error)
	CountActiveSiblings(ctx context.Context, projectID, excludeParentJobID string) (int, error)
}

// ProjectService drives the parent entity's derived status.
type ProjectService interface {
	Get(ctx context.Context, projectID string) (*domain.Project, error)
	SetProcessing(ctx context.Context, projectID string, expectedChildren int) error
	CompleteWhenPackDone(ctx context.Context, projectID, packJobID string) (bool, error)
	SetFailed(ctx context.Context, projectID, reason string) error
}

// Request describes one complete-pack decomposition. PackJobID is the claimed
// pack job driving the fanout; children are linked to it. The image type set
// is a subscription-tier policy decided outside this core; an empty set falls
// back to the orchestrator's configured default.
type Request struct {
	PackJobID    string
	ProjectID    string
	OwnerID      string
	IncludeAPlus bool
	ImageTypes   []domain.ImageType
}

// plannedChild identifies one planned child within a pack run.
type plannedChild struct {
	jobType   domain.JobType
	imageType domain.ImageType
}

func (c plannedChild) key() string {
	if c.jobType == domain.JobTypeGenerateImage {
		return string(c.jobType) + "/" + string(c.imageType)
	}
	return string(c.jobType)
}

type Orchestrator struct {
	store      JobStore
	projects   ProjectService
	imageTypes []domain.ImageType
	logger     zerolog.Logger
}

func NewOrchestrator(store JobStore, projects ProjectService, imageTypes []domain.ImageType, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:      store,
		projects:   projects,
		imageTypes: imageTypes,
		logger:     logger,
	}
}

// buildPlan expands the request into the full child set, deduplicated.
func (o *Orchestrator) buildPlan(req Request) []plannedChild {
	types := req.ImageTypes
	if len(types) == 0 {
		types = o.imageTypes
	}
	plan := make([]plannedChild, 0, len(types)+1)
	seen := make(map[domain.ImageType]bool, len(types))
	for _, t := range types {
		if seen[t] {
			continue
		}
		seen[t] = true
		plan = append(plan, plannedChild{jobType: domain.JobTypeGenerateImage, imageType: t})
	}
	if req.IncludeAPlus {
		plan = append(plan, plannedChild{jobType: domain.JobTypeGenerateAPlus})
	}
	return plan
}

// EnqueuePack fans the request out into the run's child jobs and returns
// their ids, previously enqueued children included.
//
// On a fresh run the parent project is set to PROCESSING, with the expected
// child count, before the first child is enqueued. A project with in-flight
// work belonging to another run is not re-enqueued (domain.ErrDuplicatePack).
// A re-run of the same pack job, as after a worker crash mid-fanout and a
// reclaim sweep, enqueues only the children missing from the plan. An enqueue
// error after the fanout started finalizes the project as FAILED before
// returning.
func (o *Orchestrator) EnqueuePack(ctx context.Context, req Request) ([]string, error) {
	plan := o.buildPlan(req)
	if len(plan) == 0 {
		return nil, fmt.Errorf("pack for project %s has no work", req.ProjectID)
	}

	existing, err := o.store.ListChildren(ctx, req.PackJobID)
	if err != nil {
		return nil, fmt.Errorf("list pack children: %w", err)
	}

	if len(existing) == 0 {
		active, err := o.store.CountActiveSiblings(ctx, req.ProjectID, req.PackJobID)
		if err != nil {
			return nil, fmt.Errorf("check in-flight jobs: %w", err)
		}
		if active > 0 {
			return nil, domain.ErrDuplicatePack
		}
		if err := o.projects.SetProcessing(ctx, req.ProjectID, len(plan)); err != nil {
			return nil, fmt.Errorf("start pack: %w", err)
		}
	} else {
		// Resuming an interrupted fanout. Only fill the gaps, and only while
		// the run is still live; a child may have terminally failed and
		// finalized the project in the meantime.
		proj, err := o.projects.Get(ctx, req.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("load project: %w", err)
		}
		if proj.Status != domain.ProjectStatusProcessing {
			o.logger.Warn().
				Str("project_id", req.ProjectID).
				Str("status", string(proj.Status)).
				Msg("pack: resume skipped, run already finalized")
			return nil, nil
		}
	}

	have := make(map[string]string, len(existing))
	for i := range existing {
		key, err := childKey(&existing[i])
		if err != nil {
			o.logger.Error().Err(err).Str("job_id", existing[i].ID).Msg("pack: unreadable child payload")
			continue
		}
		have[key] = existing[i].ID
	}

	ids := make([]string, 0, len(plan))
	enqueued := 0
	for _, child := range plan {
		if id, ok := have[child.key()]; ok {
			ids = append(ids, id)
			continue
		}
		id, err := o.store.EnqueueChild(ctx, child.jobType, o.childPayload(child, req), req.OwnerID, req.ProjectID, req.PackJobID)
		if err != nil {
			return ids, o.abort(ctx, req.ProjectID, fmt.Errorf("enqueue %s child: %w", child.key(), err))
		}
		ids = append(ids, id)
		enqueued++
	}

	o.logger.Info().
		Str("project_id", req.ProjectID).
		Str("pack_job_id", req.PackJobID).
		Int("children", len(ids)).
		Int("enqueued", enqueued).
		Bool("include_aplus", req.IncludeAPlus).
		Msg("pack: children enqueued")
	return ids, nil
}

func (o *Orchestrator) childPayload(child plannedChild, req Request) any {
	if child.jobType == domain.JobTypeGenerateAPlus {
		return domain.APlusJobPayload{
			ProjectID:      req.ProjectID,
			GenerateImages: true,
		}
	}
	return domain.ImageJobPayload{
		ProjectID: req.ProjectID,
		ImageType: child.imageType,
	}
}

// childKey derives the plan identity of an already-enqueued child.
func childKey(job *domain.Job) (string, error) {
	if job.Type != domain.JobTypeGenerateImage {
		return string(job.Type), nil
	}
	var p domain.ImageJobPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return "", fmt.Errorf("decode image child payload: %w", err)
	}
	return string(job.Type) + "/" + string(p.ImageType), nil
}

func (o *Orchestrator) abort(ctx context.Context, projectID string, cause error) error {
	if err := o.projects.SetFailed(ctx, projectID, cause.Error()); err != nil {
		o.logger.Error().Err(err).Str("project_id", projectID).Msg("pack: abort finalization failed")
	}
	return cause
}

// HandleJob is the generate-complete-pack job handler. A re-run of the same
// job tops up missing children; a different run already in flight for the
// project is a no-op rather than a double enqueue.
func (o *Orchestrator) HandleJob(ctx context.Context, job *domain.Job) error {
	var p domain.PackJobPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("decode pack payload: %w", err)
	}
	_, err := o.EnqueuePack(ctx, Request{
		PackJobID:    job.ID,
		ProjectID:    p.ProjectID,
		OwnerID:      job.OwnerID,
		IncludeAPlus: p.IncludeAPlus,
	})
	if errors.Is(err, domain.ErrDuplicatePack) {
		o.logger.Info().Str("project_id", p.ProjectID).Msg("pack: already in flight, skipping")
		return nil
	}
	return err
}

// JobCompleted recomputes the parent status when a pack child completes. The
// SQL guard flips the project to COMPLETED only once every expected child of
// the run is completed, and keeps an already-FAILED project failed.
func (o *Orchestrator) JobCompleted(ctx context.Context, job *domain.Job) {
	if job.ProjectID == "" || job.ParentJobID == "" || job.Type == domain.JobTypeGeneratePack {
		return
	}
	done, err := o.projects.CompleteWhenPackDone(ctx, job.ProjectID, job.ParentJobID)
	if err != nil {
		o.logger.Error().Err(err).Str("project_id", job.ProjectID).Msg("pack: completion check failed")
		return
	}
	if done {
		o.logger.Info().
			Str("project_id", job.ProjectID).
			Str("pack_job_id", job.ParentJobID).
			Msg("pack: all children completed")
	}
}

// JobFailed fails the parent as soon as a pack child, or the pack job itself,
// is terminally failed. Standalone jobs never drive pack status. The first
// reason is preserved by the set-once semantics of SetFailed.
func (o *Orchestrator) JobFailed(ctx context.Context, job *domain.Job, reason string) {
	if job.ProjectID == "" {
		return
	}
	if job.ParentJobID == "" && job.Type != domain.JobTypeGeneratePack {
		return
	}
	if err := o.projects.SetFailed(ctx, job.ProjectID, reason); err != nil {
		o.logger.Error().Err(err).Str("project_id", job.ProjectID).Msg("pack: failure propagation failed")
	}
}
