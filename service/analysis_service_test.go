package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"loan-risk/domain"
	"loan-risk/repository"
)

type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) Analyze(
	ctx context.Context,
	loan domain.LoanRecord,
	risk *domain.RiskAssessment,
	notes string,
) (domain.AnalysisResult, error) {
	args := m.Called(ctx, loan, risk, notes)
	return args.Get(0).(domain.AnalysisResult), args.Error(1)
}

func (m *MockAnalyzer) Model() string {
	return "deepseek-r1:1.5b"
}

type failingStore struct {
	repository.AnalysisRepository
}

func (failingStore) Save(context.Context, domain.Analysis) error {
	return errors.New("disk full")
}

func sampleResult() domain.AnalysisResult {
	return domain.AnalysisResult{
		Summary:        "Test",
		Recommendation: domain.RecommendationApprove,
		Rationale:      []string{"Good financial history"},
		KeyFindings:    []string{},
		Conditions:     []string{},
	}
}

func newTestService(t *testing.T, analyzer Analyzer, withRisk bool) (*AnalysisService, *repository.AnalysisRepositoryMemory) {
	t.Helper()

	var engine *RiskEngine
	if withRisk {
		engine = newEngine(t, mockRules())
	}

	store := repository.NewAnalysisRepositoryMemory()
	svc := NewAnalysisService(
		repository.NewLoanRepositoryMemory(mockLoan()),
		store,
		repository.NewMockCache(),
		time.Hour,
		engine,
		analyzer,
	)

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	n := 0
	svc.now = func() time.Time { return base.Add(time.Duration(n) * time.Minute) }
	svc.newID = func() string {
		n++
		return "analysis-" + strings.Repeat("x", n)
	}
	return svc, store
}

func TestCreateAnalysis_Success(t *testing.T) {
	analyzer := &MockAnalyzer{}
	analyzer.On("Analyze", mock.Anything, mockLoan(), mock.MatchedBy(func(r *domain.RiskAssessment) bool {
		return r != nil && r.Score == 2 && r.Tier == domain.RiskLow
	}), "First-time borrower").Return(sampleResult(), nil).Once()

	svc, store := newTestService(t, analyzer, true)

	got, err := svc.CreateAnalysis(context.Background(), domain.AnalysisRequest{
		LoanID: " 12345 ",
		Notes:  "First-time borrower ",
	})

	require.NoError(t, err)
	assert.Equal(t, "12345", got.LoanID)
	assert.Equal(t, "First-time borrower", got.Notes)
	assert.Equal(t, "deepseek-r1:1.5b", got.Model)
	assert.Equal(t, "Test", got.Result.Summary)
	require.NotNil(t, got.Risk)
	assert.Equal(t, domain.RiskLow, got.Risk.Tier)

	stored, err := store.Get(context.Background(), got.ID)
	require.NoError(t, err)
	assert.Equal(t, got.ID, stored.ID)
	analyzer.AssertExpectations(t)
}

func TestCreateAnalysis_ServesRepeatedRequestsFromCache(t *testing.T) {
	analyzer := &MockAnalyzer{}
	analyzer.On("Analyze", mock.Anything, mock.Anything, mock.Anything, "").Return(sampleResult(), nil).Once()

	svc, store := newTestService(t, analyzer, true)
	req := domain.AnalysisRequest{LoanID: "12345"}

	first, err := svc.CreateAnalysis(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.CreateAnalysis(context.Background(), req)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.Result, second.Result)

	recent, err := store.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
	analyzer.AssertNumberOfCalls(t, "Analyze", 1)
}

func TestCreateAnalysis_WithoutRiskEngine(t *testing.T) {
	analyzer := &MockAnalyzer{}
	analyzer.On("Analyze", mock.Anything, mock.Anything, (*domain.RiskAssessment)(nil), "").Return(sampleResult(), nil)

	svc, _ := newTestService(t, analyzer, false)

	got, err := svc.CreateAnalysis(context.Background(), domain.AnalysisRequest{LoanID: "12345"})

	require.NoError(t, err)
	assert.Nil(t, got.Risk)
}

func TestCreateAnalysis_UnknownLoan(t *testing.T) {
	analyzer := &MockAnalyzer{}
	svc, _ := newTestService(t, analyzer, true)

	_, err := svc.CreateAnalysis(context.Background(), domain.AnalysisRequest{LoanID: "99999"})

	assert.ErrorIs(t, err, repository.ErrLoanNotFound)
	analyzer.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateAnalysis_ModelUnavailable(t *testing.T) {
	analyzer := &MockAnalyzer{}
	analyzer.On("Analyze", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(domain.AnalysisResult{}, ErrModelUnavailable)

	svc, store := newTestService(t, analyzer, true)

	_, err := svc.CreateAnalysis(context.Background(), domain.AnalysisRequest{LoanID: "12345"})

	assert.ErrorIs(t, err, ErrModelUnavailable)
	recent, _ := store.ListRecent(context.Background(), 10)
	assert.Empty(t, recent)
}

func TestCreateAnalysis_InvalidRequest(t *testing.T) {
	svc, _ := newTestService(t, &MockAnalyzer{}, true)

	tests := []struct {
		name string
		req  domain.AnalysisRequest
	}{
		{"missing loan id", domain.AnalysisRequest{LoanID: "   "}},
		{"loan id too long", domain.AnalysisRequest{LoanID: strings.Repeat("1", MaxLoanIDLength+1)}},
		{"notes too long", domain.AnalysisRequest{LoanID: "12345", Notes: strings.Repeat("n", MaxNotesLength+1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateAnalysis(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestCreateAnalysis_SaveFailureIsNotFatal(t *testing.T) {
	analyzer := &MockAnalyzer{}
	analyzer.On("Analyze", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(sampleResult(), nil)

	svc, _ := newTestService(t, analyzer, true)
	svc.analyses = failingStore{}

	got, err := svc.CreateAnalysis(context.Background(), domain.AnalysisRequest{LoanID: "12345"})

	require.NoError(t, err)
	assert.Equal(t, "Test", got.Result.Summary)
}

func TestRecentAnalyses(t *testing.T) {
	analyzer := &MockAnalyzer{}
	analyzer.On("Analyze", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(sampleResult(), nil)

	svc, _ := newTestService(t, analyzer, true)

	empty, err := svc.RecentAnalyses(context.Background(), 0)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	for _, notes := range []string{"a", "b", "c"} {
		_, err := svc.CreateAnalysis(context.Background(), domain.AnalysisRequest{LoanID: "12345", Notes: notes})
		require.NoError(t, err)
	}

	recent, err := svc.RecentAnalyses(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].Notes)
	assert.Equal(t, "b", recent[1].Notes)

	all, err := svc.RecentAnalyses(context.Background(), MaxRecentLimit+50)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestGetAnalysis(t *testing.T) {
	analyzer := &MockAnalyzer{}
	analyzer.On("Analyze", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(sampleResult(), nil)

	svc, _ := newTestService(t, analyzer, true)
	created, err := svc.CreateAnalysis(context.Background(), domain.AnalysisRequest{LoanID: "12345"})
	require.NoError(t, err)

	got, err := svc.GetAnalysis(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.LoanID, got.LoanID)

	_, err = svc.GetAnalysis(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrAnalysisNotFound)
}

func TestScoreLoan(t *testing.T) {
	svc, _ := newTestService(t, &MockAnalyzer{}, true)

	got, err := svc.ScoreLoan(context.Background(), "12345")
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.Score)

	_, err = svc.ScoreLoan(context.Background(), "nope")
	assert.ErrorIs(t, err, repository.ErrLoanNotFound)

	disabled, _ := newTestService(t, &MockAnalyzer{}, false)
	_, err = disabled.ScoreLoan(context.Background(), "12345")
	assert.ErrorIs(t, err, ErrRiskDisabled)
}
