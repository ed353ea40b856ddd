package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"loan-risk/domain"
	"loan-risk/repository"
	"loan-risk/service"
)

type MockAnalysisService struct {
	mock.Mock
}

func (m *MockAnalysisService) CreateAnalysis(ctx context.Context, req domain.AnalysisRequest) (domain.Analysis, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.Analysis), args.Error(1)
}

func (m *MockAnalysisService) RecentAnalyses(ctx context.Context, limit int) ([]domain.Analysis, error) {
	args := m.Called(ctx, limit)
	list, _ := args.Get(0).([]domain.Analysis)
	return list, args.Error(1)
}

func (m *MockAnalysisService) GetAnalysis(ctx context.Context, id string) (domain.Analysis, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Analysis), args.Error(1)
}

func (m *MockAnalysisService) ScoreLoan(ctx context.Context, loanID string) (domain.RiskAssessment, error) {
	args := m.Called(ctx, loanID)
	return args.Get(0).(domain.RiskAssessment), args.Error(1)
}

func setupTestRouter(t *testing.T, svc AnalysisService, capacity int, trustedProxies ...string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	limiter := NewRateLimiter(capacity, time.Minute)
	t.Cleanup(limiter.Stop)

	router, err := SetupRouter(NewAnalysisHandler(svc), limiter, trustedProxies)
	require.NoError(t, err)
	return router
}

func sampleAnalysis() domain.Analysis {
	return domain.Analysis{
		ID:     "a-1",
		LoanID: "12345",
		Model:  "deepseek-r1:1.5b",
		Result: domain.AnalysisResult{
			Summary:        "Test",
			Recommendation: domain.RecommendationApprove,
			Rationale:      []string{},
			KeyFindings:    []string{},
			Conditions:     []string{},
		},
		CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func postAnalysis(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodPost, "/api/analyses", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	router := setupTestRouter(t, &MockAnalysisService{}, 5)

	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestRequestIDIsPropagated(t *testing.T) {
	router := setupTestRouter(t, &MockAnalysisService{}, 5)

	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
}

func TestRecentAnalyses(t *testing.T) {
	t.Run("returns a list", func(t *testing.T) {
		svc := &MockAnalysisService{}
		svc.On("RecentAnalyses", mock.Anything, 0).Return([]domain.Analysis{sampleAnalysis()}, nil)
		router := setupTestRouter(t, svc, 5)

		req, _ := http.NewRequest(http.MethodGet, "/api/analyses/recent", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var got []domain.Analysis
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "12345", got[0].LoanID)
	})

	t.Run("empty store renders an empty array", func(t *testing.T) {
		svc := &MockAnalysisService{}
		svc.On("RecentAnalyses", mock.Anything, 3).Return(nil, nil)
		router := setupTestRouter(t, svc, 5)

		req, _ := http.NewRequest(http.MethodGet, "/api/analyses/recent?limit=3", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[]`, w.Body.String())
	})

	t.Run("invalid limit", func(t *testing.T) {
		router := setupTestRouter(t, &MockAnalysisService{}, 5)

		req, _ := http.NewRequest(http.MethodGet, "/api/analyses/recent?limit=abc", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCreateAnalysis(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		serviceErr error
		wantStatus int
		wantError  string
	}{
		{
			name:       "success",
			body:       `{"loan_id": "12345", "notes": ""}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "model backend down",
			body:       `{"loan_id": "12345", "notes": ""}`,
			serviceErr: fmt.Errorf("analyzing loan 12345: %w", service.ErrModelUnavailable),
			wantStatus: http.StatusInternalServerError,
			wantError:  "analysis failed",
		},
		{
			name:       "unparseable model answer",
			body:       `{"loan_id": "12345"}`,
			serviceErr: service.ErrInvalidModelResponse,
			wantStatus: http.StatusInternalServerError,
			wantError:  "analysis failed",
		},
		{
			name:       "unknown loan",
			body:       `{"loan_id": "99999"}`,
			serviceErr: fmt.Errorf("loading loan 99999: %w", repository.ErrLoanNotFound),
			wantStatus: http.StatusInternalServerError,
			wantError:  "analysis failed",
		},
		{
			name:       "missing loan id",
			body:       `{"notes": "x"}`,
			serviceErr: fmt.Errorf("%w: loan_id is required", service.ErrInvalidRequest),
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request: loan_id is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockAnalysisService{}
			if tt.serviceErr != nil {
				svc.On("CreateAnalysis", mock.Anything, mock.Anything).Return(domain.Analysis{}, tt.serviceErr)
			} else {
				svc.On("CreateAnalysis", mock.Anything, domain.AnalysisRequest{LoanID: "12345"}).Return(sampleAnalysis(), nil)
			}
			router := setupTestRouter(t, svc, 5)

			w := postAnalysis(router, tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantError != "" {
				assert.JSONEq(t, fmt.Sprintf(`{"error":%q}`, tt.wantError), w.Body.String())
				return
			}
			var got domain.Analysis
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.Equal(t, "a-1", got.ID)
			assert.Equal(t, "Test", got.Result.Summary)
		})
	}
}

func TestCreateAnalysis_InvalidJSON(t *testing.T) {
	svc := &MockAnalysisService{}
	router := setupTestRouter(t, svc, 5)

	w := postAnalysis(router, `{invalid-json}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "CreateAnalysis", mock.Anything, mock.Anything)
}

func TestCreateAnalysis_RateLimited(t *testing.T) {
	svc := &MockAnalysisService{}
	svc.On("CreateAnalysis", mock.Anything, mock.Anything).Return(sampleAnalysis(), nil)
	router := setupTestRouter(t, svc, 2)

	assert.Equal(t, http.StatusOK, postAnalysis(router, `{"loan_id": "12345"}`).Code)
	assert.Equal(t, http.StatusOK, postAnalysis(router, `{"loan_id": "12345"}`).Code)

	w := postAnalysis(router, `{"loan_id": "12345"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	svc.AssertNumberOfCalls(t, "CreateAnalysis", 2)
}

func TestCreateAnalysis_ModelDownWithShippedLoans(t *testing.T) {
	loans, err := repository.NewLoanRepositoryFile("../testdata/loans.json")
	require.NoError(t, err)

	analyzer := service.NewLLMAnalyzer(service.NewOllamaClient("http://127.0.0.1:1", time.Second), "deepseek-r1:1.5b", 0)
	svc := service.NewAnalysisService(loans, repository.NewAnalysisRepositoryMemory(), repository.NewMockCache(), time.Minute, nil, analyzer)
	router := setupTestRouter(t, svc, 10)

	for _, loanID := range []string{"test123", "12345"} {
		w := postAnalysis(router, fmt.Sprintf(`{"loan_id": %q, "notes": "Test analysis"}`, loanID))

		assert.Equal(t, http.StatusInternalServerError, w.Code, loanID)
		assert.JSONEq(t, `{"error":"analysis failed"}`, w.Body.String())
	}
}

func TestCreateAnalysis_RateLimitIgnoresForwardedHeaderFromClients(t *testing.T) {
	svc := &MockAnalysisService{}
	svc.On("CreateAnalysis", mock.Anything, mock.Anything).Return(sampleAnalysis(), nil)
	router := setupTestRouter(t, svc, 1)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/analyses", bytes.NewBufferString(`{"loan_id": "12345"}`))
		req.RemoteAddr = "203.0.113.7:40000"
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}

func TestCreateAnalysis_RateLimitUsesForwardedHeaderFromTrustedProxy(t *testing.T) {
	svc := &MockAnalysisService{}
	svc.On("CreateAnalysis", mock.Anything, mock.Anything).Return(sampleAnalysis(), nil)
	router := setupTestRouter(t, svc, 1, "203.0.113.0/24")

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/analyses", bytes.NewBufferString(`{"loan_id": "12345"}`))
		req.RemoteAddr = "203.0.113.7:40000"
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestSetupRouterRejectsInvalidProxies(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute)
	defer limiter.Stop()

	_, err := SetupRouter(NewAnalysisHandler(&MockAnalysisService{}), limiter, []string{"not-an-ip"})
	assert.Error(t, err)
}

func TestGetAnalysis(t *testing.T) {
	svc := &MockAnalysisService{}
	svc.On("GetAnalysis", mock.Anything, "a-1").Return(sampleAnalysis(), nil)
	svc.On("GetAnalysis", mock.Anything, "missing").Return(domain.Analysis{}, repository.ErrAnalysisNotFound)
	router := setupTestRouter(t, svc, 5)

	req, _ := http.NewRequest(http.MethodGet, "/api/analyses/a-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req, _ = http.NewRequest(http.MethodGet, "/api/analyses/missing", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLoanRisk(t *testing.T) {
	svc := &MockAnalysisService{}
	svc.On("ScoreLoan", mock.Anything, "12345").Return(domain.RiskAssessment{
		LoanID:  "12345",
		Score:   2,
		Tier:    domain.RiskLow,
		Matches: []domain.RuleMatch{},
	}, nil)
	svc.On("ScoreLoan", mock.Anything, "00000").Return(domain.RiskAssessment{}, repository.ErrLoanNotFound)
	router := setupTestRouter(t, svc, 5)

	req, _ := http.NewRequest(http.MethodGet, "/api/loans/12345/risk", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got domain.RiskAssessment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 2.0, got.Score)
	assert.Equal(t, domain.RiskLow, got.Tier)

	req, _ = http.NewRequest(http.MethodGet, "/api/loans/00000/risk", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
