package repository

import (
	"context"
	"errors"

	"loan-risk/domain"
)

var ErrLoanNotFound = errors.New("loan not found")

// LoanRepository is a read-only source of loan records.
type LoanRepository interface {
	Get(ctx context.Context, loanID string) (domain.LoanRecord, error)
}
