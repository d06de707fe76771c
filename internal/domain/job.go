package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// JobType enumerates the handlers a queued job can route to.
type JobType string

const (
	JobTypeGenerateImage JobType = "generate-image"
	JobTypeGenerateAPlus JobType = "generate-aplus"
	JobTypeGeneratePack  JobType = "generate-complete-pack"
)

// JobStatus enumerates job lifecycle states.
//
// The only legal transitions are:
//
//	pending --claim--> processing --complete--> completed
//	processing --fail (retries left)--> pending
//	processing --fail (budget exhausted)--> failed
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// DefaultMaxRetries is the retry budget assigned to jobs enqueued without an
// explicit override.
const DefaultMaxRetries = 3

// Job is one durable unit of queued asynchronous work.
type Job struct {
	ID           string
	Type         JobType
	Status       JobStatus
	Payload      json.RawMessage
	RetryCount   int
	MaxRetries   int
	ErrorMessage string
	OwnerID      string
	ProjectID    string
	ParentJobID  string
	CreatedAt    time.Time
	ProcessedAt  *time.Time
	CompletedAt  *time.Time
}

// ImageType enumerates the marketing image variants a listing can request.
type ImageType string

const (
	ImageTypeMain      ImageType = "MAIN_IMAGE"
	ImageTypeInfo      ImageType = "INFOGRAPHIC"
	ImageTypeFeature   ImageType = "FEATURE_HIGHLIGHT"
	ImageTypeLifestyle ImageType = "LIFESTYLE"
	ImageTypeCompare   ImageType = "COMPARISON_CHART"
	ImageTypeDimension ImageType = "DIMENSION_DIAGRAM"
)

// Valid reports whether the image type is one of the supported variants.
func (t ImageType) Valid() bool {
	switch t {
	case ImageTypeMain, ImageTypeInfo, ImageTypeFeature, ImageTypeLifestyle, ImageTypeCompare, ImageTypeDimension:
		return true
	}
	return false
}

// ParseImageType normalizes free-form input into an ImageType.
func ParseImageType(raw string) (ImageType, bool) {
	t := ImageType(strings.ToUpper(strings.TrimSpace(raw)))
	return t, t.Valid()
}

// ImageJobPayload is the payload shape for generate-image jobs.
type ImageJobPayload struct {
	ProjectID string    `json:"project_id" validate:"required"`
	ImageType ImageType `json:"image_type" validate:"required"`
	Style     string    `json:"style,omitempty"`
}

// APlusJobPayload is the payload shape for generate-aplus jobs.
type APlusJobPayload struct {
	ProjectID      string `json:"project_id" validate:"required"`
	GenerateImages bool   `json:"generate_images"`
	IsPremium      bool   `json:"is_premium"`
}

// PackJobPayload is the payload shape for generate-complete-pack jobs.
type PackJobPayload struct {
	ProjectID    string `json:"project_id" validate:"required"`
	IncludeAPlus bool   `json:"include_aplus"`
}
