package repository

import (
	"context"
	"sort"
	"sync"

	"loan-risk/domain"
)

// AnalysisRepositoryMemory keeps analyses in process memory.
type AnalysisRepositoryMemory struct {
	mu   sync.RWMutex
	data []domain.Analysis
}

func NewAnalysisRepositoryMemory() *AnalysisRepositoryMemory {
	return &AnalysisRepositoryMemory{
		data: []domain.Analysis{},
	}
}

func (r *AnalysisRepositoryMemory) Save(_ context.Context, analysis domain.Analysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = append(r.data, analysis)
	return nil
}

func (r *AnalysisRepositoryMemory) Get(_ context.Context, id string) (domain.Analysis, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.data {
		if a.ID == id {
			return a, nil
		}
	}
	return domain.Analysis{}, ErrAnalysisNotFound
}

func (r *AnalysisRepositoryMemory) ListRecent(_ context.Context, limit int) ([]domain.Analysis, error) {
	r.mu.RLock()
	// reversed so that equal timestamps keep the latest insert first
	out := make([]domain.Analysis, 0, len(r.data))
	for i := len(r.data) - 1; i >= 0; i-- {
		out = append(out, r.data[i])
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
