package aplus

import (
	"context"

	"server/internal/domain"
)

// ProductInfo carries the listing details the content generator works from.
type ProductInfo struct {
	ProjectID   string
	RequestID   string
	Title       string
	ProductType string
	Description string
	Features    []string
	BrandTone   string
	Premium     bool
	WithImages  bool
}

// Generator is the contract implemented by all A+ content providers.
type Generator interface {
	Generate(ctx context.Context, info ProductInfo) ([]domain.APlusModule, error)
}
