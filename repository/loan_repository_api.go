package repository

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"loan-risk/domain"
)

const maxLoanResponseBytes = 1 << 20

// LoanRepositoryAPI fetches loans from the core banking loan API.
type LoanRepositoryAPI struct {
	baseURL    string
	httpClient *http.Client
}

func NewLoanRepositoryAPI(baseURL string, timeout time.Duration) *LoanRepositoryAPI {
	return &LoanRepositoryAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Get calls GET {base}/loans/{id}.
func (r *LoanRepositoryAPI) Get(ctx context.Context, loanID string) (domain.LoanRecord, error) {
	endpoint := fmt.Sprintf("%s/loans/%s", r.baseURL, url.PathEscape(loanID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.LoanRecord{}, errors.Wrap(err, "failed to build loan request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return domain.LoanRecord{}, errors.Wrapf(err, "loan api unreachable for %s", loanID)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLoanResponseBytes))
	if err != nil {
		return domain.LoanRecord{}, errors.Wrap(err, "failed to read loan response")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.LoanRecord{}, ErrLoanNotFound
	case resp.StatusCode != http.StatusOK:
		return domain.LoanRecord{}, errors.Errorf("loan api error (status %d): %s", resp.StatusCode, string(body))
	}

	loan, err := ParseLoan(body)
	if err != nil {
		return domain.LoanRecord{}, err
	}
	if loan.LoanID != loanID {
		return domain.LoanRecord{}, errors.Errorf("loan api returned loan %s for %s", loan.LoanID, loanID)
	}
	return loan, nil
}
