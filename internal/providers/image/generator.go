package image

import (
	"context"

	"server/internal/domain"
)

// GenerateRequest describes a normalized request passed to any image provider.
type GenerateRequest struct {
	ProjectID   string
	RequestID   string
	ImageType   domain.ImageType
	Style       string
	Title       string
	ProductType string
	Description string
	BrandTone   string
}

// Asset represents one generated marketing image.
type Asset struct {
	StorageKey string
	Format     string
	Width      int
	Height     int
	Data       []byte
}

// Generator is the contract implemented by all image providers.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (Asset, error)
}
