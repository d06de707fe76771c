// Package project is the boundary to the listing entity owning generated
// assets. The queue core only drives status transitions and asset appends;
// project CRUD lives with the web layer.
package project

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

type Service struct {
	sql    infra.SQLExecutor
	logger zerolog.Logger
}

func NewService(sql infra.SQLExecutor, logger zerolog.Logger) *Service {
	return &Service{sql: sql, logger: logger}
}

// Get loads a project with its generated assets.
func (s *Service) Get(ctx context.Context, projectID string) (*domain.Project, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QGetProject, projectID)
	var (
		p            domain.Project
		featuresJSON []byte
		brandJSON    []byte
		imagesJSON   []byte
		aplusJSON    []byte
	)
	if err := row.Scan(
		&p.ID,
		&p.OwnerID,
		&p.Title,
		&p.ProductType,
		&p.Description,
		&featuresJSON,
		&brandJSON,
		&imagesJSON,
		&aplusJSON,
		&p.Status,
		&p.FailureReason,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	if err := json.Unmarshal(featuresJSON, &p.Features); err != nil {
		return nil, fmt.Errorf("decode project features: %w", err)
	}
	if err := json.Unmarshal(brandJSON, &p.BrandKit); err != nil {
		return nil, fmt.Errorf("decode brand kit: %w", err)
	}
	if err := json.Unmarshal(imagesJSON, &p.Images); err != nil {
		return nil, fmt.Errorf("decode project images: %w", err)
	}
	if err := json.Unmarshal(aplusJSON, &p.APlusModules); err != nil {
		return nil, fmt.Errorf("decode aplus modules: %w", err)
	}
	return &p, nil
}

// SetProcessing starts a generation run, recording how many children the run
// will enqueue and clearing any previous failure reason.
func (s *Service) SetProcessing(ctx context.Context, projectID string, expectedChildren int) error {
	if _, err := s.sql.Exec(ctx, sqlinline.QSetProjectProcessing, projectID, expectedChildren); err != nil {
		return fmt.Errorf("set project processing: %w", err)
	}
	return nil
}

// CompleteWhenPackDone flips a PROCESSING project to COMPLETED once every
// expected child of the given pack run is completed, and reports whether the
// flip happened. The count check and the flip are one statement, so a child
// completing while siblings are still being enqueued can never complete a
// partial pack, and a project that has already failed keeps its FAILED status.
func (s *Service) CompleteWhenPackDone(ctx context.Context, projectID, packJobID string) (bool, error) {
	tag, err := s.sql.Exec(ctx, sqlinline.QSetProjectCompleted, projectID, packJobID)
	if err != nil {
		return false, fmt.Errorf("set project completed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetFailed flips a PROCESSING project to FAILED. The first failure reason is
// kept; later calls never overwrite it.
func (s *Service) SetFailed(ctx context.Context, projectID, reason string) error {
	tag, err := s.sql.Exec(ctx, sqlinline.QSetProjectFailed, projectID, reason)
	if err != nil {
		return fmt.Errorf("set project failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		s.logger.Debug().Str("project_id", projectID).Msg("project: failure skipped, not processing")
	}
	return nil
}

// AppendImage records one generated marketing image on the project.
func (s *Service) AppendImage(ctx context.Context, projectID string, img domain.ProjectImage) error {
	payload, err := json.Marshal([]domain.ProjectImage{img})
	if err != nil {
		return fmt.Errorf("encode project image: %w", err)
	}
	if _, err := s.sql.Exec(ctx, sqlinline.QAppendProjectImage, projectID, payload); err != nil {
		return fmt.Errorf("append project image: %w", err)
	}
	return nil
}

// SetAPlusModules replaces the project's A+ content.
func (s *Service) SetAPlusModules(ctx context.Context, projectID string, modules []domain.APlusModule) error {
	payload, err := json.Marshal(modules)
	if err != nil {
		return fmt.Errorf("encode aplus modules: %w", err)
	}
	if _, err := s.sql.Exec(ctx, sqlinline.QSetProjectAPlusModules, projectID, payload); err != nil {
		return fmt.Errorf("set aplus modules: %w", err)
	}
	return nil
}
