package domain

import "time"

// ProjectStatus enumerates listing project lifecycle states as surfaced to the UI.
type ProjectStatus string

const (
	ProjectStatusDraft      ProjectStatus = "DRAFT"
	ProjectStatusProcessing ProjectStatus = "PROCESSING"
	ProjectStatusCompleted  ProjectStatus = "COMPLETED"
	ProjectStatusFailed     ProjectStatus = "FAILED"
)

// ProjectImage records one generated marketing image attached to a project.
type ProjectImage struct {
	Type       ImageType `json:"type"`
	StorageKey string    `json:"storage_key"`
	Format     string    `json:"format"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
}

// APlusModule is one block of structured A+ content.
type APlusModule struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	ImageKey string `json:"image_key,omitempty"`
}

// BrandKit carries the seller's branding hints passed to generation providers.
type BrandKit struct {
	Tone         string `json:"tone"`
	PrimaryColor string `json:"primary_color"`
	Font         string `json:"font"`
}

// Project is the listing entity owning generated assets. Its displayed status
// is a derived aggregate over the project's jobs, never a property of any
// single job row.
type Project struct {
	ID            string
	OwnerID       string
	Title         string
	ProductType   string
	Description   string
	Features      []string
	BrandKit      BrandKit
	Images        []ProjectImage
	APlusModules  []APlusModule
	Status        ProjectStatus
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
