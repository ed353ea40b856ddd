package repository

import (
	"context"
	"sync"

	"loan-risk/domain"
)

// LoanRepositoryMemory is an in-memory implementation of LoanRepository.
type LoanRepositoryMemory struct {
	mu   sync.RWMutex
	data map[string]domain.LoanRecord
}

// NewLoanRepositoryMemory creates a new in-memory loan repository seeded
// with the given loans.
func NewLoanRepositoryMemory(loans ...domain.LoanRecord) *LoanRepositoryMemory {
	r := &LoanRepositoryMemory{
		data: make(map[string]domain.LoanRecord, len(loans)),
	}
	for _, l := range loans {
		r.data[l.LoanID] = l
	}
	return r
}

// Get returns the loan with the given ID.
func (r *LoanRepositoryMemory) Get(_ context.Context, loanID string) (domain.LoanRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	loan, ok := r.data[loanID]
	if !ok {
		return domain.LoanRecord{}, ErrLoanNotFound
	}
	return loan, nil
}

func (r *LoanRepositoryMemory) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}
