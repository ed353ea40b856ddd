package repository

import (
	"context"
	"errors"

	"loan-risk/domain"
)

var ErrAnalysisNotFound = errors.New("analysis not found")

// AnalysisRepository persists analyses produced by the service.
type AnalysisRepository interface {
	Save(ctx context.Context, analysis domain.Analysis) error
	Get(ctx context.Context, id string) (domain.Analysis, error)
	// ListRecent returns at most limit analyses, newest first.
	ListRecent(ctx context.Context, limit int) ([]domain.Analysis, error)
}
