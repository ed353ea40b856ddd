package repository

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"loan-risk/logger"
)

// NewLoanRepositoryFile loads every loan of a JSON export into memory.
func NewLoanRepositoryFile(path string) (*LoanRepositoryMemory, error) {
	if path == "" {
		return nil, errors.New("loan file path not specified")
	}

	// #nosec G304 -- path comes from operator config.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read loan file %s", path)
	}

	loans, err := ParseLoans(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse loan file %s", path)
	}

	logger.Info("loans loaded", zap.String("path", path), zap.Int("count", len(loans)))

	return NewLoanRepositoryMemory(loans...), nil
}
